package state

import "sort"

// PriceQty is one order book level.
type PriceQty struct {
	Price float64 `json:"price"`
	Qty   float64 `json:"qty"`
}

// OrderBook is a level-2 book that tracks full bid/ask maps plus cached
// top-N projections (bids descending, asks ascending). A zero quantity
// removes the level; negative quantities are ignored.
type OrderBook struct {
	bids map[float64]float64
	asks map[float64]float64

	topBids []PriceQty // highest price first
	topAsks []PriceQty // lowest price first

	maxLevels int
}

// NewOrderBook creates a book tracking at most maxLevels per side in the
// top projections.
func NewOrderBook(maxLevels int) *OrderBook {
	return &OrderBook{
		bids:      make(map[float64]float64),
		asks:      make(map[float64]float64),
		maxLevels: maxLevels,
	}
}

// UpdateBid inserts, replaces, or (qty == 0) removes a bid level.
func (b *OrderBook) UpdateBid(price, qty float64) {
	b.updateSide(b.bids, price, qty)
	b.recomputeTop()
}

// UpdateAsk inserts, replaces, or (qty == 0) removes an ask level.
func (b *OrderBook) UpdateAsk(price, qty float64) {
	b.updateSide(b.asks, price, qty)
	b.recomputeTop()
}

func (b *OrderBook) updateSide(side map[float64]float64, price, qty float64) {
	if qty == 0 {
		delete(side, price)
		return
	}
	if price <= 0 || qty < 0 {
		return
	}
	side[price] = qty
}

// Replace swaps both sides with the provided levels in one shot. Used when
// the upstream feed delivers full top-N snapshots. Levels with non-positive
// quantity are dropped.
func (b *OrderBook) Replace(bids, asks []PriceQty) {
	clear(b.bids)
	clear(b.asks)
	for _, lvl := range bids {
		if lvl.Price > 0 && lvl.Qty > 0 {
			b.bids[lvl.Price] = lvl.Qty
		}
	}
	for _, lvl := range asks {
		if lvl.Price > 0 && lvl.Qty > 0 {
			b.asks[lvl.Price] = lvl.Qty
		}
	}
	b.recomputeTop()
}

func (b *OrderBook) recomputeTop() {
	b.topBids = topLevels(b.bids, b.maxLevels, true)
	b.topAsks = topLevels(b.asks, b.maxLevels, false)
}

func topLevels(side map[float64]float64, n int, descending bool) []PriceQty {
	levels := make([]PriceQty, 0, len(side))
	for price, qty := range side {
		levels = append(levels, PriceQty{Price: price, Qty: qty})
	}
	sort.Slice(levels, func(i, j int) bool {
		if descending {
			return levels[i].Price > levels[j].Price
		}
		return levels[i].Price < levels[j].Price
	})
	if len(levels) > n {
		levels = levels[:n]
	}
	return levels
}

// BestBid returns the highest bid, or false when the side is empty.
func (b *OrderBook) BestBid() (PriceQty, bool) {
	if len(b.topBids) == 0 {
		return PriceQty{}, false
	}
	return b.topBids[0], true
}

// BestAsk returns the lowest ask, or false when the side is empty.
func (b *OrderBook) BestAsk() (PriceQty, bool) {
	if len(b.topAsks) == 0 {
		return PriceQty{}, false
	}
	return b.topAsks[0], true
}

// TopBids returns up to n bid levels, highest price first.
func (b *OrderBook) TopBids(n int) []PriceQty { return truncate(b.topBids, n) }

// TopAsks returns up to n ask levels, lowest price first.
func (b *OrderBook) TopAsks(n int) []PriceQty { return truncate(b.topAsks, n) }

func truncate(levels []PriceQty, n int) []PriceQty {
	if n < 0 || n > len(levels) {
		n = len(levels)
	}
	out := make([]PriceQty, n)
	copy(out, levels[:n])
	return out
}

// Crossed reports whether the book violates best_bid < best_ask. A book
// with one empty side is never crossed.
func (b *OrderBook) Crossed() bool {
	bid, okBid := b.BestBid()
	ask, okAsk := b.BestAsk()
	return okBid && okAsk && bid.Price >= ask.Price
}
