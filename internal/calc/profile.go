package calc

import (
	"github.com/context8/marketd/internal/state"
)

// VolumeProfile is the POC/VAH/VAL summary of traded volume by price bin.
// The value area contains at least 70% of total volume around the POC.
type VolumeProfile struct {
	POC        float64 `json:"POC"`
	VAH        float64 `json:"VAH"`
	VAL        float64 `json:"VAL"`
	WindowSec  int     `json:"window_sec"`
	TradeCount int     `json:"trade_count"`
}

const (
	profileMinTrades = 10
	valueAreaPct     = 0.70
)

// Profile bins trade prices on a grid of width tickSize/binsPerTick and
// expands the value area outward from the highest-volume bin, always
// toward the heavier neighbor (left wins exact ties). Returns nil with
// fewer than 10 trades.
func Profile(trades []state.TradeTick, tickSize float64, binsPerTick int) *VolumeProfile {
	if len(trades) < profileMinTrades || tickSize <= 0 || binsPerTick <= 0 {
		return nil
	}

	minPrice, maxPrice := trades[0].Price, trades[0].Price
	for _, t := range trades {
		if t.Price < minPrice {
			minPrice = t.Price
		}
		if t.Price > maxPrice {
			maxPrice = t.Price
		}
	}

	binSize := tickSize / float64(binsPerTick)
	nbins := int((maxPrice-minPrice)/binSize) + 1

	hist := make([]float64, nbins)
	for _, t := range trades {
		idx := int((t.Price - minPrice) / binSize)
		if idx >= nbins {
			idx = nbins - 1
		}
		hist[idx] += t.Volume
	}

	var total float64
	pocIdx := 0
	for i, v := range hist {
		total += v
		if v > hist[pocIdx] {
			pocIdx = i
		}
	}
	if total <= 0 {
		return nil
	}

	edge := func(i int) float64 { return minPrice + float64(i)*binSize }
	poc := edge(pocIdx) + binSize/2

	// Expand [left, right] until the accumulated volume covers the value
	// area. Ties between neighbors go to the lower-price side.
	target := total * valueAreaPct
	left, right := pocIdx, pocIdx
	acc := hist[pocIdx]
	for acc < target {
		leftVol, rightVol := 0.0, 0.0
		if left > 0 {
			leftVol = hist[left-1]
		}
		if right < nbins-1 {
			rightVol = hist[right+1]
		}

		switch {
		case left > 0 && leftVol >= rightVol:
			left--
			acc += hist[left]
		case right < nbins-1:
			right++
			acc += hist[right]
		default:
			acc = target // nothing left to expand into
		}
	}

	val := edge(left)
	vah := edge(right + 1)
	if !(val <= poc && poc <= vah) {
		return nil
	}

	windowSec := 0
	if len(trades) >= 2 {
		windowSec = int(trades[len(trades)-1].Time.Sub(trades[0].Time).Seconds())
	}

	return &VolumeProfile{
		POC:        poc,
		VAH:        vah,
		VAL:        val,
		WindowSec:  windowSec,
		TradeCount: len(trades),
	}
}
