package engine

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/context8/marketd/internal/kv"
	"github.com/context8/marketd/internal/report"
)

// onSlowTick starts a slow cycle unless the previous one is still running,
// in which case the tick is skipped and counted.
func (e *Engine) onSlowTick(ctx context.Context) {
	if !e.slowRunning.CompareAndSwap(false, true) {
		e.opts.Metrics.SlowCycleSkipsTotal.Inc()
		log.Warn().Msg("Slow cycle still running, skipping tick")
		return
	}
	go func() {
		defer e.slowRunning.Store(false)
		e.runSlowCycle(ctx)
	}()
}

// runSlowCycle computes the heavy analytics for every owned symbol, caches
// them for fast-cycle merging, and re-publishes the current KV report with
// the new sections attached. Compute holds the state lock per symbol; the
// KV round trips happen outside it.
func (e *Engine) runSlowCycle(ctx context.Context) {
	cycleStart := e.now()

	for symbol, token := range e.ownedSnapshot() {
		computeStart := e.now()

		e.mu.Lock()
		st, ok := e.states[symbol]
		if !ok {
			e.mu.Unlock()
			continue
		}
		metrics := report.ComputeSlow(st, e.opts.TickSize, computeStart)
		e.mu.Unlock()

		e.opts.Metrics.CalcLatencyMs.WithLabelValues("slow_compute", "slow").
			Observe(msSince(computeStart, e.now()))

		e.cacheMu.Lock()
		e.slowCache[symbol] = slowEntry{metrics: metrics, at: computeStart}
		e.cacheMu.Unlock()

		if metrics.Empty() {
			continue
		}
		e.enrichPublished(ctx, symbol, token, metrics)
	}

	elapsed := e.now().Sub(cycleStart)
	e.opts.Metrics.CalcLatencyMs.WithLabelValues("slow_cycle_total", "slow").
		Observe(float64(elapsed.Milliseconds()))
	e.warnIfSlow("slow_cycle_slow", elapsed, e.opts.SlowPeriod)
}

// enrichPublished merges slow metrics into the report currently in KV.
// Publishing is fenced on the writer recorded in the report itself: a
// higher token means another node took over since the snapshot.
func (e *Engine) enrichPublished(ctx context.Context, symbol string, token int64, metrics *report.SlowMetrics) {
	current, err := kv.GetReport(ctx, e.opts.KV, symbol)
	if err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("Slow cycle report fetch failed")
		return
	}
	if current == nil {
		// No fast report yet; the cache will be merged on the next fast cycle.
		return
	}
	if current.Writer.WriterToken > token {
		e.opts.Metrics.LeaseConflictsTotal.Inc()
		log.Warn().Str("symbol", symbol).
			Int64("held_token", token).Int64("report_token", current.Writer.WriterToken).
			Msg("Newer writer published, skipping slow enrichment")
		return
	}

	report.Enrich(current, metrics, e.now())
	if e.opts.Publisher.Publish(ctx, symbol, current) {
		e.opts.Metrics.ReportPublishTotal.WithLabelValues(symbol).Inc()
	}
}
