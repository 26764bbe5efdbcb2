package calc

import (
	"time"

	"github.com/context8/marketd/internal/state"
)

// FlowTotals splits traded volume in a window by aggressor side.
type FlowTotals struct {
	BuyVolume  float64 `json:"buy_volume"`
	SellVolume float64 `json:"sell_volume"`
	NetFlow    float64 `json:"net_flow"`
}

// OrdersPerSec is the trade arrival rate over the given window (default
// window used by the fast cycle is 10s).
func OrdersPerSec(s *state.SymbolState, window time.Duration, now time.Time) float64 {
	trades := s.TradesInWindow(window, now)
	if len(trades) == 0 {
		return 0
	}
	return round2(float64(len(trades)) / window.Seconds())
}

// NetFlow computes buy volume minus sell volume over the window (fast
// cycle uses 30s). Returns nil when the window holds no trades.
func NetFlow(s *state.SymbolState, window time.Duration, now time.Time) *FlowTotals {
	trades := s.TradesInWindow(window, now)
	if len(trades) == 0 {
		return nil
	}

	var buy, sell float64
	for _, t := range trades {
		switch t.Aggressor {
		case state.Buy:
			buy += t.Volume
		case state.Sell:
			sell += t.Volume
		}
	}

	return &FlowTotals{
		BuyVolume:  round8(buy),
		SellVolume: round8(sell),
		NetFlow:    round8(buy - sell),
	}
}

// FlowAcceleration splits the window in half and returns the change in
// per-second trade rate between the halves, per second
// ((recent−older)/(W/2)). Zero when either half is empty.
func FlowAcceleration(trades []state.TradeTick, window time.Duration, now time.Time) float64 {
	if len(trades) < 2 {
		return 0
	}

	half := window / 2
	var recent, older int
	for _, t := range trades {
		age := now.Sub(t.Time)
		switch {
		case age < 0:
			continue
		case age <= half:
			recent++
		case age <= window:
			older++
		}
	}
	if recent == 0 || older == 0 {
		return 0
	}

	halfSec := half.Seconds()
	recentRate := float64(recent) / halfSec
	olderRate := float64(older) / halfSec
	return (recentRate - olderRate) / halfSec
}
