package calc

import "github.com/context8/marketd/internal/state"

// DepthMetrics summarizes top-of-book liquidity across the top-N levels.
// Imbalance is (bid-ask)/(bid+ask): positive means bid-heavy.
type DepthMetrics struct {
	TotalBidQty float64 `json:"total_bid_qty"`
	TotalAskQty float64 `json:"total_ask_qty"`
	Imbalance   float64 `json:"imbalance"`
}

// Depth sums quantities over the top-20 projections. Returns nil when
// either side is empty.
func Depth(s *state.SymbolState) *DepthMetrics {
	bids := s.Book.TopBids(20)
	asks := s.Book.TopAsks(20)
	if len(bids) == 0 || len(asks) == 0 {
		return nil
	}

	var totalBid, totalAsk float64
	for _, lvl := range bids {
		totalBid += lvl.Qty
	}
	for _, lvl := range asks {
		totalAsk += lvl.Qty
	}

	imbalance := 0.0
	if total := totalBid + totalAsk; total > 0 {
		imbalance = (totalBid - totalAsk) / total
	}

	return &DepthMetrics{
		TotalBidQty: round8(totalBid),
		TotalAskQty: round8(totalAsk),
		Imbalance:   round4(imbalance),
	}
}
