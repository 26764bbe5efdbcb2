// Package engine runs the per-node production loop: it routes feed events
// into per-symbol state, publishes fast reports on a short period, and
// enriches them with slow-cycle analytics on a long one. Ownership of
// symbols is driven by the assignment controller; events and publishes for
// symbols this node does not own are dropped.
package engine

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/context8/marketd/internal/coord"
	"github.com/context8/marketd/internal/feed"
	"github.com/context8/marketd/internal/report"
	"github.com/context8/marketd/internal/state"
	"github.com/context8/marketd/internal/telemetry"
)

// publisher is the KV write surface the engine needs.
type publisher interface {
	Publish(ctx context.Context, symbol string, report any) bool
}

// leaseReader verifies current lease ownership before a publish.
type leaseReader interface {
	Info(ctx context.Context, symbol string) (coord.LeaseInfo, error)
}

// heartbeater is the membership surface used by the heartbeat loop.
type heartbeater interface {
	Heartbeat(ctx context.Context) error
	Cleanup(ctx context.Context) error
}

// Options wires the engine's collaborators and timing.
type Options struct {
	NodeID string
	Mode   string // "single" or "coordinated"

	FastPeriod time.Duration
	SlowPeriod time.Duration
	TickSize   float64

	HeartbeatInterval time.Duration
	RebalanceInterval time.Duration
	LeaseTTL          time.Duration

	Feed       feed.Client
	Publisher  publisher
	Controller *coord.Controller
	Leases     leaseReader
	Membership heartbeater // nil when running single-instance
	KV         redis.Cmdable
	Metrics    *telemetry.Metrics
}

type slowEntry struct {
	metrics *report.SlowMetrics
	at      time.Time
}

// Engine owns the dispatch loop and both report cycles.
type Engine struct {
	opts Options

	mu      sync.Mutex
	owned   map[string]int64 // symbol -> fencing token
	states  map[string]*state.SymbolState
	tickers map[string]*report.TickerStats

	cacheMu   sync.Mutex
	slowCache map[string]slowEntry

	slowRunning atomic.Bool
	runCtx      context.Context

	now func() time.Time
}

// New builds an engine and hooks it into the controller's ownership
// callbacks.
func New(opts Options) *Engine {
	e := &Engine{
		opts:      opts,
		owned:     make(map[string]int64),
		states:    make(map[string]*state.SymbolState),
		tickers:   make(map[string]*report.TickerStats),
		slowCache: make(map[string]slowEntry),
		runCtx:    context.Background(),
		now:       time.Now,
	}
	opts.Controller.OnAcquired = e.onAcquired
	opts.Controller.OnDropped = e.onDropped
	opts.Controller.OnRenewDenied = func(string) {
		opts.Metrics.LeaseConflictsTotal.Inc()
	}
	return e
}

func (e *Engine) coordinated() bool { return e.opts.Mode == "coordinated" }

// Run drives the engine until the context ends, then releases leases and
// membership presence.
func (e *Engine) Run(ctx context.Context) error {
	e.runCtx = ctx

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return e.opts.Feed.Run(ctx) })
	g.Go(func() error { return e.dispatch(ctx) })
	g.Go(func() error { return e.rebalanceLoop(ctx) })
	g.Go(func() error { return e.renewLoop(ctx) })
	if e.opts.Membership != nil {
		g.Go(func() error { return e.heartbeatLoop(ctx) })
	}

	err := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	e.shutdown(shutdownCtx)

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (e *Engine) shutdown(ctx context.Context) {
	e.opts.Controller.Cleanup(ctx)
	if e.opts.Membership != nil {
		if err := e.opts.Membership.Cleanup(ctx); err != nil {
			log.Warn().Err(err).Msg("Membership cleanup failed")
		}
	}
	e.opts.Metrics.NodeHeartbeat.WithLabelValues(e.opts.NodeID).Set(0)
}

// onAcquired registers ownership and subscribes the feed. Runs from the
// rebalance loop.
func (e *Engine) onAcquired(symbol string, token int64) {
	e.mu.Lock()
	e.owned[symbol] = token
	if _, ok := e.states[symbol]; !ok {
		e.states[symbol] = state.NewSymbolState(symbol)
	}
	e.mu.Unlock()

	if err := e.opts.Feed.Subscribe(e.runCtx, symbol); err != nil {
		log.Error().Err(err).Str("symbol", symbol).Msg("Feed subscribe failed")
	}
}

// onDropped runs before the lease is released, so publishing stops first.
// Symbol state is kept warm for a possible re-acquisition.
func (e *Engine) onDropped(symbol string) {
	e.mu.Lock()
	delete(e.owned, symbol)
	e.mu.Unlock()

	if err := e.opts.Feed.Unsubscribe(e.runCtx, symbol); err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("Feed unsubscribe failed")
	}
}

// dispatch serializes all state mutation and the two report cycles on one
// goroutine; only the slow-cycle compute forks off, re-locking per symbol.
func (e *Engine) dispatch(ctx context.Context) error {
	fastTicker := time.NewTicker(e.opts.FastPeriod)
	defer fastTicker.Stop()
	slowTicker := time.NewTicker(e.opts.SlowPeriod)
	defer slowTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update := <-e.opts.Feed.Books():
			e.handleBook(update)
		case trade := <-e.opts.Feed.Trades():
			e.handleTrade(trade)
		case ticker := <-e.opts.Feed.Tickers():
			e.handleTicker(ticker)
		case <-fastTicker.C:
			e.runFastCycle(ctx)
		case <-slowTicker.C:
			e.onSlowTick(ctx)
		}
	}
}

func (e *Engine) handleBook(update feed.BookUpdate) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.owned[update.Symbol]; !ok {
		return
	}
	e.states[update.Symbol].ApplyDepth(update.Bids, update.Asks, update.EventTime)
}

func (e *Engine) handleTrade(trade feed.TradeEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.owned[trade.Symbol]; !ok {
		return
	}
	e.states[trade.Symbol].AddTrade(trade.Tick)
}

func (e *Engine) handleTicker(update feed.TickerUpdate) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.owned[update.Symbol]; !ok {
		return
	}
	e.tickers[update.Symbol] = &report.TickerStats{
		LastPrice:    update.LastPrice,
		Change24hPct: update.Change24hPct,
		High24h:      update.High24h,
		Low24h:       update.Low24h,
		Volume24h:    update.Volume24h,
	}
}

// ownedSnapshot returns the owned symbols with their fencing tokens.
func (e *Engine) ownedSnapshot() map[string]int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	snap := make(map[string]int64, len(e.owned))
	for symbol, token := range e.owned {
		snap[symbol] = token
	}
	return snap
}

// heartbeatLoop announces liveness on a jittered interval.
func (e *Engine) heartbeatLoop(ctx context.Context) error {
	for {
		if err := e.opts.Membership.Heartbeat(ctx); err != nil {
			log.Warn().Err(err).Msg("Heartbeat failed")
			e.opts.Metrics.NodeHeartbeat.WithLabelValues(e.opts.NodeID).Set(0)
		} else {
			e.opts.Metrics.NodeHeartbeat.WithLabelValues(e.opts.NodeID).Set(1)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jittered(e.opts.HeartbeatInterval)):
		}
	}
}

// rebalanceLoop converges lease ownership toward the HRW assignment.
func (e *Engine) rebalanceLoop(ctx context.Context) error {
	for {
		acquired, released, err := e.opts.Controller.Rebalance(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("Rebalance failed")
		} else if len(acquired)+len(released) > 0 {
			e.opts.Metrics.HRWRebalancesTotal.Inc()
		}
		e.opts.Metrics.SymbolsAssigned.WithLabelValues(e.opts.NodeID).
			Set(float64(e.opts.Controller.OwnedCount()))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jittered(e.opts.RebalanceInterval)):
		}
	}
}

// renewLoop extends owned leases at half the TTL.
func (e *Engine) renewLoop(ctx context.Context) error {
	interval := e.opts.LeaseTTL / 2
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jittered(interval)):
		}
		e.opts.Controller.RenewAll(ctx)
	}
}

// jittered spreads an interval by ±10% to avoid thundering herds.
func jittered(d time.Duration) time.Duration {
	return time.Duration(float64(d) * (0.9 + 0.2*rand.Float64()))
}
