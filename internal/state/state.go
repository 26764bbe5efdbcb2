// Package state holds the per-symbol microstructure state: the L2 order
// book with top-20 projections, bounded time-windowed trade buffers, and a
// quantity history feeding percentile-based liquidity metrics.
//
// A SymbolState is exclusively owned by the engine goroutine that routes
// events for its symbol; no internal locking is done here.
package state

import "time"

// AggressorSide marks which side initiated a trade.
type AggressorSide string

const (
	Buy  AggressorSide = "BUY"
	Sell AggressorSide = "SELL"
)

// TradeTick is a single executed trade.
type TradeTick struct {
	Time      time.Time
	Price     float64
	Volume    float64
	Aggressor AggressorSide
}

// Buffer capacities. Sized for roughly 10 trades/sec plus headroom.
const (
	maxLevels       = 20
	cap10s          = 1000
	cap30s          = 3000
	cap30min        = 20000
	capQuantityHist = 10000
)

// SymbolState is the complete tracked state for one symbol.
type SymbolState struct {
	Symbol string
	Book   *OrderBook

	lastTrade *TradeTick
	bestBid   *PriceQty
	bestAsk   *PriceQty

	trades10s   *Ring[TradeTick]
	trades30s   *Ring[TradeTick]
	trades30min *Ring[TradeTick]

	quantityHistory *Ring[float64]

	// lastEventTS is event time: the upstream exchange timestamp of the
	// most recent ingested event for this symbol.
	lastEventTS time.Time
}

// NewSymbolState creates empty state for a symbol.
func NewSymbolState(symbol string) *SymbolState {
	return &SymbolState{
		Symbol:          symbol,
		Book:            NewOrderBook(maxLevels),
		trades10s:       NewRing[TradeTick](cap10s),
		trades30s:       NewRing[TradeTick](cap30s),
		trades30min:     NewRing[TradeTick](cap30min),
		quantityHistory: NewRing[float64](capQuantityHist),
	}
}

// UpdateBid applies a single bid level update (qty 0 removes the level).
func (s *SymbolState) UpdateBid(price, qty float64, eventTime time.Time) {
	s.Book.UpdateBid(price, qty)
	s.refreshBest()
	if qty > 0 {
		s.quantityHistory.Append(qty)
	}
	s.touch(eventTime)
}

// UpdateAsk applies a single ask level update (qty 0 removes the level).
func (s *SymbolState) UpdateAsk(price, qty float64, eventTime time.Time) {
	s.Book.UpdateAsk(price, qty)
	s.refreshBest()
	if qty > 0 {
		s.quantityHistory.Append(qty)
	}
	s.touch(eventTime)
}

// ApplyDepth replaces the whole book with a top-N snapshot from the feed.
// Every retained level quantity is sampled into the quantity history.
func (s *SymbolState) ApplyDepth(bids, asks []PriceQty, eventTime time.Time) {
	s.Book.Replace(bids, asks)
	s.refreshBest()
	for _, lvl := range s.Book.TopBids(maxLevels) {
		s.quantityHistory.Append(lvl.Qty)
	}
	for _, lvl := range s.Book.TopAsks(maxLevels) {
		s.quantityHistory.Append(lvl.Qty)
	}
	s.touch(eventTime)
}

func (s *SymbolState) refreshBest() {
	if bid, ok := s.Book.BestBid(); ok {
		b := bid
		s.bestBid = &b
	} else {
		s.bestBid = nil
	}
	if ask, ok := s.Book.BestAsk(); ok {
		a := ask
		s.bestAsk = &a
	} else {
		s.bestAsk = nil
	}
}

// AddTrade inserts a tick into all three trade windows.
func (s *SymbolState) AddTrade(tick TradeTick) {
	t := tick
	s.lastTrade = &t
	s.trades10s.Append(tick)
	s.trades30s.Append(tick)
	s.trades30min.Append(tick)
	s.touch(tick.Time)
}

func (s *SymbolState) touch(eventTime time.Time) {
	if eventTime.IsZero() {
		eventTime = time.Now().UTC()
	}
	if eventTime.After(s.lastEventTS) {
		s.lastEventTS = eventTime
	}
}

// BestBid returns the cached best bid, or false when none exists.
func (s *SymbolState) BestBid() (PriceQty, bool) {
	if s.bestBid == nil {
		return PriceQty{}, false
	}
	return *s.bestBid, true
}

// BestAsk returns the cached best ask, or false when none exists.
func (s *SymbolState) BestAsk() (PriceQty, bool) {
	if s.bestAsk == nil {
		return PriceQty{}, false
	}
	return *s.bestAsk, true
}

// LastTrade returns the most recent trade, or false when none seen.
func (s *SymbolState) LastTrade() (TradeTick, bool) {
	if s.lastTrade == nil {
		return TradeTick{}, false
	}
	return *s.lastTrade, true
}

// TradesInWindow returns the trades newer than now-window, oldest first.
// Windows up to 10s are served from the dense 10s buffer, up to 30s from
// the 30s buffer, anything longer from the 30-minute buffer.
func (s *SymbolState) TradesInWindow(window time.Duration, now time.Time) []TradeTick {
	buf := s.trades30min
	switch {
	case window <= 10*time.Second:
		buf = s.trades10s
	case window <= 30*time.Second:
		buf = s.trades30s
	}
	cutoff := now.Add(-window)
	return buf.Filter(func(t TradeTick) bool { return t.Time.After(cutoff) })
}

// Trades30Min returns the full 30-minute buffer, oldest first.
func (s *SymbolState) Trades30Min() []TradeTick { return s.trades30min.All() }

// QuantityHistory returns a snapshot of the level-quantity samples.
func (s *SymbolState) QuantityHistory() []float64 { return s.quantityHistory.All() }

// LastEventTS returns the event-time instant of the most recent ingested
// event, or the zero time when nothing was ingested yet.
func (s *SymbolState) LastEventTS() time.Time { return s.lastEventTS }

// DataAge returns now - last_event_ts in milliseconds. The second return
// is false when no event has been ingested yet.
func (s *SymbolState) DataAge(now time.Time) (int64, bool) {
	if s.lastEventTS.IsZero() {
		return 0, false
	}
	age := now.Sub(s.lastEventTS).Milliseconds()
	if age < 0 {
		age = 0
	}
	return age, true
}

// BuffersBounded reports whether every buffer respects its capacity.
func (s *SymbolState) BuffersBounded() bool {
	return s.trades10s.Len() <= s.trades10s.Cap() &&
		s.trades30s.Len() <= s.trades30s.Cap() &&
		s.trades30min.Len() <= s.trades30min.Cap() &&
		s.quantityHistory.Len() <= s.quantityHistory.Cap()
}
