package calc

import (
	"testing"
	"time"

	"github.com/context8/marketd/internal/state"
)

func uniformHistory(n int, v float64) []float64 {
	h := make([]float64, n)
	for i := range h {
		h[i] = v
	}
	return h
}

func TestPercentile_LinearInterpolation(t *testing.T) {
	samples := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	if got := percentile(samples, 95); !almostEqual(got, 9.55, 1e-9) {
		t.Errorf("P95 = %v, want 9.55", got)
	}
	if got := percentile(samples, 10); !almostEqual(got, 1.9, 1e-9) {
		t.Errorf("P10 = %v, want 1.9", got)
	}
	if got := percentile(samples, 0); got != 1 {
		t.Errorf("P0 = %v, want 1", got)
	}
	if got := percentile(samples, 100); got != 10 {
		t.Errorf("P100 = %v, want 10", got)
	}
	if got := percentile(nil, 50); got != 0 {
		t.Errorf("P50 of empty = %v, want 0", got)
	}
}

func TestWalls_SeverityTiers(t *testing.T) {
	s := state.NewSymbolState("BTCUSDT")
	now := time.Now().UTC()
	s.ApplyDepth(
		[]state.PriceQty{
			{Price: 100.0, Qty: 1.0},  // normal
			{Price: 99.9, Qty: 1.6},   // low (>= 1.5×P95)
			{Price: 99.8, Qty: 2.2},   // medium (>= 2×P95)
			{Price: 99.7, Qty: 3.5},   // high (>= 3×P95)
		},
		[]state.PriceQty{{Price: 100.1, Qty: 1.0}},
		now,
	)

	history := uniformHistory(100, 1.0) // P95 = 1.0
	walls := Walls(s, history)
	if len(walls) != 3 {
		t.Fatalf("got %d walls, want 3: %+v", len(walls), walls)
	}

	bySeverity := map[Severity]int{}
	for _, w := range walls {
		bySeverity[w.Severity]++
		if w.Side != "bid" {
			t.Errorf("wall side = %s, want bid", w.Side)
		}
	}
	if bySeverity[SeverityLow] != 1 || bySeverity[SeverityMedium] != 1 || bySeverity[SeverityHigh] != 1 {
		t.Errorf("severity distribution = %v", bySeverity)
	}
}

func TestWalls_RequireHistory(t *testing.T) {
	s := state.NewSymbolState("BTCUSDT")
	s.ApplyDepth(
		[]state.PriceQty{{Price: 100.0, Qty: 50.0}},
		[]state.PriceQty{{Price: 100.1, Qty: 1.0}},
		time.Now().UTC(),
	)

	if walls := Walls(s, uniformHistory(5, 1.0)); walls != nil {
		t.Errorf("walls with <10 samples = %+v, want none", walls)
	}
}

func TestVacuums_RunsAndSeverity(t *testing.T) {
	s := state.NewSymbolState("BTCUSDT")
	now := time.Now().UTC()

	// Bids: 7 consecutive thin levels below P10 -> one medium vacuum.
	bids := []state.PriceQty{{Price: 100.0, Qty: 5.0}}
	for i := 1; i <= 7; i++ {
		bids = append(bids, state.PriceQty{Price: 100.0 - float64(i)*0.1, Qty: 0.05})
	}
	bids = append(bids, state.PriceQty{Price: 99.1, Qty: 5.0})

	// Asks: only 2 thin levels, below the run threshold.
	asks := []state.PriceQty{
		{Price: 100.1, Qty: 0.05},
		{Price: 100.2, Qty: 0.05},
		{Price: 100.3, Qty: 5.0},
	}
	s.ApplyDepth(bids, asks, now)

	history := uniformHistory(100, 1.0) // P10 = 1.0
	vacuums := Vacuums(s, history)
	if len(vacuums) != 1 {
		t.Fatalf("got %d vacuums, want 1: %+v", len(vacuums), vacuums)
	}

	v := vacuums[0]
	if v.Side != "bid" || v.LevelCount != 7 || v.Severity != SeverityMedium {
		t.Errorf("vacuum = %+v, want bid run of 7, medium", v)
	}
	if !almostEqual(v.PriceStart, 99.9, 1e-9) || !almostEqual(v.PriceEnd, 99.3, 1e-9) {
		t.Errorf("vacuum bounds = [%v, %v]", v.PriceStart, v.PriceEnd)
	}
}

func TestVacuums_TrailingRunFlushed(t *testing.T) {
	s := state.NewSymbolState("BTCUSDT")
	now := time.Now().UTC()

	asks := make([]state.PriceQty, 0, 11)
	asks = append(asks, state.PriceQty{Price: 100.0, Qty: 5.0})
	for i := 1; i <= 10; i++ {
		asks = append(asks, state.PriceQty{Price: 100.0 + float64(i)*0.1, Qty: 0.05})
	}
	s.ApplyDepth([]state.PriceQty{{Price: 99.9, Qty: 5.0}}, asks, now)

	vacuums := Vacuums(s, uniformHistory(100, 1.0))
	if len(vacuums) != 1 {
		t.Fatalf("got %d vacuums, want 1", len(vacuums))
	}
	if vacuums[0].Severity != SeverityHigh || vacuums[0].LevelCount != 10 {
		t.Errorf("trailing run = %+v, want high severity run of 10", vacuums[0])
	}
}
