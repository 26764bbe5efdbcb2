package calc

import (
	"math"

	"github.com/context8/marketd/internal/state"
)

// Severity grades walls, vacuums, and anomalies.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Wall is a concentrated resting order well above typical level size.
type Wall struct {
	Side        string   `json:"side"`
	Price       float64  `json:"price"`
	Quantity    float64  `json:"quantity"`
	Severity    Severity `json:"severity"`
	DistanceBps int      `json:"distance_bps"`
}

// Vacuum is a run of consecutive abnormally thin levels.
type Vacuum struct {
	Side       string   `json:"side"`
	PriceStart float64  `json:"price_start"`
	PriceEnd   float64  `json:"price_end"`
	LevelCount int      `json:"level_count"`
	Severity   Severity `json:"severity"`
}

const liquidityMinSamples = 10

// Walls flags levels holding at least 1.5× the P95 of the quantity
// history. Requires ≥10 history samples and a two-sided book for the mid.
func Walls(s *state.SymbolState, history []float64) []Wall {
	if len(history) < liquidityMinSamples {
		return nil
	}
	bid, okBid := s.BestBid()
	ask, okAsk := s.BestAsk()
	if !okBid || !okAsk {
		return nil
	}

	p95 := percentile(history, 95)
	mid := (bid.Price + ask.Price) / 2

	var walls []Wall
	scan := func(side string, levels []state.PriceQty) {
		for _, lvl := range levels {
			if lvl.Qty < p95*1.5 {
				continue
			}
			severity := SeverityLow
			switch {
			case lvl.Qty >= p95*3.0:
				severity = SeverityHigh
			case lvl.Qty >= p95*2.0:
				severity = SeverityMedium
			}
			walls = append(walls, Wall{
				Side:        side,
				Price:       lvl.Price,
				Quantity:    lvl.Qty,
				Severity:    severity,
				DistanceBps: int(math.Abs((lvl.Price - mid) / mid * 10000)),
			})
		}
	}
	scan("bid", s.Book.TopBids(20))
	scan("ask", s.Book.TopAsks(20))
	return walls
}

// Vacuums finds per-side runs of ≥3 consecutive levels thinner than the
// P10 of the quantity history, scanned in top-of-book order.
func Vacuums(s *state.SymbolState, history []float64) []Vacuum {
	if len(history) < liquidityMinSamples {
		return nil
	}
	p10 := percentile(history, 10)

	var vacuums []Vacuum
	scan := func(side string, levels []state.PriceQty) {
		var run []float64
		flush := func() {
			if len(run) >= 3 {
				severity := SeverityLow
				switch {
				case len(run) >= 10:
					severity = SeverityHigh
				case len(run) >= 6:
					severity = SeverityMedium
				}
				vacuums = append(vacuums, Vacuum{
					Side:       side,
					PriceStart: run[0],
					PriceEnd:   run[len(run)-1],
					LevelCount: len(run),
					Severity:   severity,
				})
			}
			run = run[:0]
		}
		for _, lvl := range levels {
			if lvl.Qty < p10 {
				run = append(run, lvl.Price)
			} else {
				flush()
			}
		}
		flush()
	}
	scan("bid", s.Book.TopBids(20))
	scan("ask", s.Book.TopAsks(20))
	return vacuums
}
