package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/context8/marketd/internal/report"
)

// runFastCycle builds and publishes a fast report for every owned symbol.
// In coordinated mode each publish is fenced: the lease token in Redis must
// still match the token held locally, otherwise another node has taken the
// symbol and this cycle's publish is skipped.
func (e *Engine) runFastCycle(ctx context.Context) {
	cycleStart := e.now()

	for symbol, token := range e.ownedSnapshot() {
		if e.coordinated() && !e.verifyLease(ctx, symbol, token) {
			continue
		}

		genStart := e.now()
		r := e.buildFast(symbol, token, genStart)
		e.opts.Metrics.CalcLatencyMs.WithLabelValues("report_generation", "fast").
			Observe(msSince(genStart, e.now()))
		if r == nil {
			continue
		}

		e.opts.Metrics.DataAgeMs.WithLabelValues(symbol).Observe(float64(r.DataAgeMs))

		pubStart := e.now()
		ok := e.opts.Publisher.Publish(ctx, symbol, r)
		e.opts.Metrics.CalcLatencyMs.WithLabelValues("redis_publish", "fast").
			Observe(msSince(pubStart, e.now()))
		if ok {
			e.opts.Metrics.ReportPublishTotal.WithLabelValues(symbol).Inc()
		}
	}

	elapsed := e.now().Sub(cycleStart)
	e.opts.Metrics.CalcLatencyMs.WithLabelValues("fast_cycle_total", "fast").
		Observe(float64(elapsed.Milliseconds()))
	e.warnIfSlow("fast_cycle_slow", elapsed, e.opts.FastPeriod)
}

// buildFast assembles one report under the state lock and merges in the
// most recent slow-cycle analytics, stamped with their compute time.
func (e *Engine) buildFast(symbol string, token int64, now time.Time) *report.Report {
	e.mu.Lock()
	st, ok := e.states[symbol]
	if !ok {
		e.mu.Unlock()
		return nil
	}
	ticker := e.tickers[symbol]
	r := report.BuildFast(st, e.opts.NodeID, token, e.opts.Mode, ticker, now)
	e.mu.Unlock()
	if r == nil {
		return nil
	}

	e.cacheMu.Lock()
	entry, cached := e.slowCache[symbol]
	e.cacheMu.Unlock()
	if cached {
		report.Enrich(r, entry.metrics, entry.at)
	}
	return r
}

// verifyLease checks the fencing token before a publish. A mismatch means
// ownership moved; the renewal loop will drop the symbol shortly.
func (e *Engine) verifyLease(ctx context.Context, symbol string, token int64) bool {
	info, err := e.opts.Leases.Info(ctx, symbol)
	if err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("Lease verification failed, skipping publish")
		return false
	}
	if info.Owner != e.opts.NodeID || info.Token != token {
		e.opts.Metrics.LeaseConflictsTotal.Inc()
		log.Warn().Str("symbol", symbol).
			Int64("held_token", token).Int64("lease_token", info.Token).
			Str("lease_owner", info.Owner).
			Msg("Writer token mismatch, skipping publish")
		return false
	}
	return true
}

func (e *Engine) warnIfSlow(event string, elapsed, period time.Duration) {
	if period <= 0 || elapsed <= period*8/10 {
		return
	}
	log.Warn().
		Int64("cycle_ms", elapsed.Milliseconds()).
		Int64("period_ms", period.Milliseconds()).
		Float64("utilization_pct", 100*float64(elapsed)/float64(period)).
		Msg(event)
}

func msSince(start, end time.Time) float64 {
	return float64(end.Sub(start).Microseconds()) / 1000
}
