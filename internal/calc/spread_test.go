package calc

import (
	"math"
	"testing"
	"time"

	"github.com/context8/marketd/internal/state"
)

func almostEqual(a, b, eps float64) bool { return math.Abs(a-b) <= eps }

func TestSpread_MinimalBook(t *testing.T) {
	s := state.NewSymbolState("BTCUSDT")
	now := time.Now().UTC()
	s.ApplyDepth(
		[]state.PriceQty{{Price: 100.0, Qty: 1.0}},
		[]state.PriceQty{{Price: 100.5, Qty: 2.0}},
		now,
	)

	m := Spread(s)
	if m == nil {
		t.Fatal("expected spread metrics for two-sided book")
	}

	if !almostEqual(m.MidPrice, 100.25, 1e-9) {
		t.Errorf("mid = %v, want 100.25", m.MidPrice)
	}
	// (2*100.0 + 1*100.5) / 3
	if !almostEqual(m.MicroPrice, 100.16666667, 1e-6) {
		t.Errorf("micro = %v, want ~100.1667", m.MicroPrice)
	}
	// (0.5 / 100.25) * 10000
	if !almostEqual(m.SpreadBps, 49.8753, 1e-3) {
		t.Errorf("spread bps = %v, want ~49.875", m.SpreadBps)
	}
}

func TestSpread_NilWithoutBothSides(t *testing.T) {
	s := state.NewSymbolState("BTCUSDT")
	s.UpdateBid(100.0, 1.0, time.Now().UTC())

	if Spread(s) != nil {
		t.Error("one-sided book must yield nil spread metrics")
	}
}

func TestMicroPrice_FallsBackToMid(t *testing.T) {
	bid := state.PriceQty{Price: 100.0, Qty: 0}
	ask := state.PriceQty{Price: 101.0, Qty: 0}

	if got := MicroPrice(bid, ask); !almostEqual(got, 100.5, 1e-9) {
		t.Errorf("micro with zero qtys = %v, want mid 100.5", got)
	}
}

func TestSpreadBps_NonNegative(t *testing.T) {
	bid := state.PriceQty{Price: 100.0, Qty: 1}
	ask := state.PriceQty{Price: 100.0, Qty: 1}

	if got := SpreadBps(bid, ask); got < 0 {
		t.Errorf("spread bps = %v, want >= 0", got)
	}
}

func TestDepth_Imbalance(t *testing.T) {
	s := state.NewSymbolState("BTCUSDT")
	now := time.Now().UTC()
	s.ApplyDepth(
		[]state.PriceQty{{Price: 100.0, Qty: 1.0}},
		[]state.PriceQty{{Price: 100.5, Qty: 2.0}},
		now,
	)

	d := Depth(s)
	if d == nil {
		t.Fatal("expected depth metrics")
	}
	if !almostEqual(d.Imbalance, -0.3333, 1e-3) {
		t.Errorf("imbalance = %v, want ~-0.3333", d.Imbalance)
	}
	if d.Imbalance < -1 || d.Imbalance > 1 {
		t.Errorf("imbalance %v outside [-1, 1]", d.Imbalance)
	}
}

func TestDepth_NilOnEmptySide(t *testing.T) {
	s := state.NewSymbolState("BTCUSDT")
	s.UpdateAsk(100.5, 1.0, time.Now().UTC())

	if Depth(s) != nil {
		t.Error("depth must be nil when the bid side is empty")
	}
}
