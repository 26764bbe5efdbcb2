package coord

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// memberLister is the membership surface the controller needs.
type memberLister interface {
	NodeID() string
	ActiveNodeIDs(ctx context.Context) ([]string, error)
}

// leaser is the lease surface the controller needs.
type leaser interface {
	Acquire(ctx context.Context, symbol string, ttl time.Duration) (int64, bool, error)
	Renew(ctx context.Context, symbol string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, symbol string) (bool, error)
}

type ownership struct {
	token      int64
	acquiredAt time.Time
}

// Controller drives symbol assignment: it computes the HRW-desired set on
// each rebalance and converges local lease ownership toward it, honoring
// the minimum hold time and sticky hysteresis.
type Controller struct {
	membership memberLister
	leases     leaser

	symbols   []string
	leaseTTL  time.Duration
	minHold   time.Duration
	stickyPct float64

	// OnAcquired runs after a lease is taken, OnDropped before it is
	// released, so the engine stops publishing before ownership moves.
	// OnRenewDenied fires when a renewal is refused, before the drop.
	OnAcquired    func(symbol string, token int64)
	OnDropped     func(symbol string)
	OnRenewDenied func(symbol string)

	mu    sync.Mutex
	owned map[string]ownership
	now   func() time.Time
}

// NewController builds an assignment controller for the configured symbols.
func NewController(membership memberLister, leases leaser, symbols []string, leaseTTL, minHold time.Duration, stickyPct float64) *Controller {
	return &Controller{
		membership: membership,
		leases:     leases,
		symbols:    symbols,
		leaseTTL:   leaseTTL,
		minHold:    minHold,
		stickyPct:  stickyPct,
		owned:      make(map[string]ownership),
		now:        time.Now,
	}
}

// Rebalance runs one convergence cycle and reports which symbols changed
// hands locally.
func (c *Controller) Rebalance(ctx context.Context) (acquired, released []string, err error) {
	nodes, err := c.membership.ActiveNodeIDs(ctx)
	if err != nil {
		return nil, nil, err
	}
	if len(nodes) == 0 {
		log.Warn().Msg("Rebalance found no active nodes")
		return nil, nil, nil
	}

	self := c.membership.NodeID()
	now := c.now()

	c.mu.Lock()
	desired := make(map[string]bool, len(c.symbols))
	for _, symbol := range c.symbols {
		currentOwner := ""
		if own, ok := c.owned[symbol]; ok {
			currentOwner = self
			if now.Sub(own.acquiredAt) < c.minHold {
				desired[symbol] = true // held too recently to move
				continue
			}
		}
		desired[symbol] = SelectNode(symbol, nodes, currentOwner, c.stickyPct) == self
	}

	var toAcquire, toRelease []string
	for _, symbol := range c.symbols {
		_, have := c.owned[symbol]
		switch {
		case desired[symbol] && !have:
			toAcquire = append(toAcquire, symbol)
		case !desired[symbol] && have:
			toRelease = append(toRelease, symbol)
		}
	}
	c.mu.Unlock()

	for _, symbol := range toRelease {
		c.dropSymbol(ctx, symbol)
		released = append(released, symbol)
	}

	for _, symbol := range toAcquire {
		token, ok, err := c.leases.Acquire(ctx, symbol, c.leaseTTL)
		if err != nil {
			log.Error().Err(err).Str("symbol", symbol).Msg("Lease acquisition error")
			continue
		}
		if !ok {
			// Another node still holds the lease; retry next cycle.
			log.Debug().Str("symbol", symbol).Msg("Lease held by peer")
			continue
		}

		c.mu.Lock()
		c.owned[symbol] = ownership{token: token, acquiredAt: c.now()}
		c.mu.Unlock()

		log.Info().Str("symbol", symbol).Int64("token", token).Str("node", self).
			Msg("Symbol acquired")
		if c.OnAcquired != nil {
			c.OnAcquired(symbol, token)
		}
		acquired = append(acquired, symbol)
	}

	return acquired, released, nil
}

// dropSymbol notifies the engine, releases the lease, then forgets local
// ownership. Notification happens first so no publish races the release.
func (c *Controller) dropSymbol(ctx context.Context, symbol string) {
	if c.OnDropped != nil {
		c.OnDropped(symbol)
	}

	if _, err := c.leases.Release(ctx, symbol); err != nil {
		log.Error().Err(err).Str("symbol", symbol).Msg("Lease release error")
	}

	c.mu.Lock()
	delete(c.owned, symbol)
	c.mu.Unlock()

	log.Info().Str("symbol", symbol).Str("node", c.membership.NodeID()).
		Msg("Symbol released")
}

// RenewAll extends every owned lease. A denied renewal means ownership
// was lost remotely, so the symbol is dropped locally.
func (c *Controller) RenewAll(ctx context.Context) {
	for _, symbol := range c.OwnedSymbols() {
		renewed, err := c.leases.Renew(ctx, symbol, c.leaseTTL)
		if err != nil {
			log.Error().Err(err).Str("symbol", symbol).Msg("Lease renewal error")
			continue
		}
		if !renewed {
			log.Warn().Str("symbol", symbol).Msg("Lease renewal denied, dropping symbol")
			if c.OnRenewDenied != nil {
				c.OnRenewDenied(symbol)
			}
			c.dropSymbol(ctx, symbol)
		}
	}
}

// Token returns the fencing token for an owned symbol.
func (c *Controller) Token(symbol string) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	own, ok := c.owned[symbol]
	return own.token, ok
}

// OwnedSymbols snapshots the currently owned symbols.
func (c *Controller) OwnedSymbols() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	symbols := make([]string, 0, len(c.owned))
	for symbol := range c.owned {
		symbols = append(symbols, symbol)
	}
	return symbols
}

// OwnedCount returns the number of owned symbols.
func (c *Controller) OwnedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.owned)
}

// ConfiguredSymbols returns the full symbol universe this node manages.
func (c *Controller) ConfiguredSymbols() []string { return c.symbols }

// Cleanup releases all owned symbols on shutdown.
func (c *Controller) Cleanup(ctx context.Context) {
	owned := c.OwnedSymbols()
	log.Info().Int("owned", len(owned)).Msg("Releasing owned symbols")
	for _, symbol := range owned {
		c.dropSymbol(ctx, symbol)
	}
}
