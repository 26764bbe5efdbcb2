package calc

import (
	"testing"
	"time"

	"github.com/context8/marketd/internal/state"
)

func makeTrades(now time.Time, prices []float64, volume float64) []state.TradeTick {
	trades := make([]state.TradeTick, len(prices))
	for i, p := range prices {
		trades[i] = state.TradeTick{
			Time:      now,
			Price:     p,
			Volume:    volume,
			Aggressor: state.Buy,
		}
	}
	return trades
}

func TestProfile_RequiresTenTrades(t *testing.T) {
	now := time.Now().UTC()
	trades := makeTrades(now, []float64{100, 100, 100, 100, 100, 100, 100, 100, 100}, 1)

	if Profile(trades, 0.01, 5) != nil {
		t.Error("profile with 9 trades must be nil")
	}
}

func TestProfile_SinglePrice(t *testing.T) {
	now := time.Now().UTC()
	prices := make([]float64, 12)
	for i := range prices {
		prices[i] = 100.0
	}

	p := Profile(makeTrades(now, prices, 1), 0.01, 5)
	if p == nil {
		t.Fatal("expected profile")
	}
	if !(p.VAL <= p.POC && p.POC <= p.VAH) {
		t.Errorf("VAL <= POC <= VAH violated: %+v", p)
	}
	if p.TradeCount != 12 {
		t.Errorf("trade count = %d, want 12", p.TradeCount)
	}
	if p.WindowSec != 0 {
		t.Errorf("window = %d, want 0 for identical timestamps", p.WindowSec)
	}
}

func TestProfile_TwoClusterTieBreak(t *testing.T) {
	now := time.Now().UTC()
	// 10 trades at 100.00 and 10 at 100.10, volume 1 each: exactly the
	// tie-break scenario. Expansion prefers the heavier neighbor and the
	// lower-price bin on exact ties.
	var prices []float64
	for i := 0; i < 10; i++ {
		prices = append(prices, 100.00)
	}
	for i := 0; i < 10; i++ {
		prices = append(prices, 100.10)
	}

	p := Profile(makeTrades(now, prices, 1), 0.01, 5)
	if p == nil {
		t.Fatal("expected profile")
	}
	if !(p.VAL <= p.POC && p.POC <= p.VAH) {
		t.Errorf("VAL <= POC <= VAH violated: %+v", p)
	}
	if p.TradeCount != 20 {
		t.Errorf("trade count = %d, want 20", p.TradeCount)
	}
	// POC lands in the lower-price cluster (first max wins).
	if p.POC > 100.05 {
		t.Errorf("POC = %v, want lower-price cluster", p.POC)
	}
	// Value area must reach across both clusters to cover 70%.
	if p.VAH < 100.10 {
		t.Errorf("VAH = %v, should cover the upper cluster", p.VAH)
	}
}

func TestProfile_POCTracksHeaviestBin(t *testing.T) {
	now := time.Now().UTC()
	prices := []float64{
		100.00, 100.00, 100.00, 100.00, 100.00, 100.00, 100.00, 100.00,
		100.30, 100.30,
		100.60,
	}

	p := Profile(makeTrades(now, prices, 1), 0.01, 5)
	if p == nil {
		t.Fatal("expected profile")
	}
	if !almostEqual(p.POC, 100.001, 1e-9) {
		t.Errorf("POC = %v, want center of the 100.00 bin", p.POC)
	}
}

func TestProfile_WindowSeconds(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	trades := make([]state.TradeTick, 12)
	for i := range trades {
		trades[i] = state.TradeTick{
			Time:      base.Add(time.Duration(i*10) * time.Second),
			Price:     100.0,
			Volume:    1,
			Aggressor: state.Sell,
		}
	}

	p := Profile(trades, 0.01, 5)
	if p == nil {
		t.Fatal("expected profile")
	}
	if p.WindowSec != 110 {
		t.Errorf("window = %d s, want 110", p.WindowSec)
	}
}
