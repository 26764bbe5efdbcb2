// Package calc contains the pure calculators that turn per-symbol state
// into report metrics. Every function returns nil (or a zero value with
// ok=false) instead of failing when its inputs are missing; callers decide
// whether an absent metric is an error.
package calc

import (
	"math"

	"github.com/context8/marketd/internal/state"
)

// SpreadMetrics bundles the L1 spread family.
type SpreadMetrics struct {
	SpreadBps  float64 `json:"spread_bps"`
	MidPrice   float64 `json:"mid_price"`
	MicroPrice float64 `json:"micro_price"`
}

// SpreadBps computes the bid-ask spread in basis points against the mid.
func SpreadBps(bid, ask state.PriceQty) float64 {
	if bid.Price <= 0 || ask.Price <= 0 {
		return 0
	}
	mid := (bid.Price + ask.Price) / 2
	return round4((ask.Price - bid.Price) / mid * 10000)
}

// MidPrice is the simple average of best bid and best ask.
func MidPrice(bid, ask state.PriceQty) float64 {
	return round8((bid.Price + ask.Price) / 2)
}

// MicroPrice weights each side by the opposite quantity:
// (ask_qty*bid_price + bid_qty*ask_price) / (bid_qty + ask_qty).
// Falls back to the mid when both quantities are zero.
func MicroPrice(bid, ask state.PriceQty) float64 {
	total := bid.Qty + ask.Qty
	if total == 0 {
		return MidPrice(bid, ask)
	}
	return round8((ask.Qty*bid.Price + bid.Qty*ask.Price) / total)
}

// Spread computes the full spread family from the cached best bid/ask.
// Returns nil when either side is missing.
func Spread(s *state.SymbolState) *SpreadMetrics {
	bid, okBid := s.BestBid()
	ask, okAsk := s.BestAsk()
	if !okBid || !okAsk {
		return nil
	}
	return &SpreadMetrics{
		SpreadBps:  SpreadBps(bid, ask),
		MidPrice:   MidPrice(bid, ask),
		MicroPrice: MicroPrice(bid, ask),
	}
}

func round4(v float64) float64 { return math.Round(v*1e4) / 1e4 }
func round8(v float64) float64 { return math.Round(v*1e8) / 1e8 }
func round2(v float64) float64 { return math.Round(v*1e2) / 1e2 }
func round1(v float64) float64 { return math.Round(v*1e1) / 1e1 }
