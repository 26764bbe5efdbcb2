package report

import (
	"time"

	"github.com/context8/marketd/internal/calc"
	"github.com/context8/marketd/internal/state"
)

// SlowMetrics is the output of one slow-cycle computation for a symbol.
type SlowMetrics struct {
	Profile   *calc.VolumeProfile
	Walls     []calc.Wall
	Vacuums   []calc.Vacuum
	Anomalies []calc.Anomaly
}

// Empty reports whether the slow cycle produced nothing worth merging.
func (m *SlowMetrics) Empty() bool {
	return m.Profile == nil && len(m.Walls) == 0 && len(m.Vacuums) == 0 && len(m.Anomalies) == 0
}

// ComputeSlow runs the compute-intensive analytics against the symbol's
// buffered history: volume profile over the 30-minute window, wall and
// vacuum detection from the quantity history, and the three anomaly
// detectors. Pure computation over snapshots, no I/O.
func ComputeSlow(s *state.SymbolState, tickSize float64, now time.Time) *SlowMetrics {
	m := &SlowMetrics{}

	m.Profile = calc.Profile(s.Trades30Min(), tickSize, 5)

	history := s.QuantityHistory()
	m.Walls = calc.Walls(s, history)
	m.Vacuums = calc.Vacuums(s, history)

	var midPrice float64
	if bid, okBid := s.BestBid(); okBid {
		if ask, okAsk := s.BestAsk(); okAsk {
			midPrice = calc.MidPrice(bid, ask)
		}
	}

	if midPrice > 0 {
		m.Anomalies = append(m.Anomalies, calc.Spoofing(s, midPrice)...)
	}

	m.Anomalies = append(m.Anomalies, calc.Iceberg(s.TradesInWindow(30*time.Second, now))...)

	if midPrice > 0 {
		if depth := calc.Depth(s); depth != nil {
			spread := calc.Spread(s)
			accel := calc.FlowAcceleration(s.TradesInWindow(10*time.Second, now), 10*time.Second, now)
			if spread != nil {
				if flash := calc.FlashCrashRisk(spread.SpreadBps, depth.Imbalance, accel); flash != nil {
					m.Anomalies = append(m.Anomalies, *flash)
				}
			}
		}
	}

	return m
}

// Enrich merges slow-cycle metrics into a fast-cycle report. Fast-cycle
// fields are never overwritten; only the analytics, liquidity, and anomaly
// sections plus the slow-cycle timestamp change.
func Enrich(r *Report, m *SlowMetrics, now time.Time) {
	if r == nil || m == nil {
		return
	}

	if m.Profile != nil {
		if r.Analytics == nil {
			r.Analytics = &Analytics{}
		}
		r.Analytics.VolumeProfile = m.Profile
	}

	if len(m.Walls) > 0 || len(m.Vacuums) > 0 {
		if r.Liquidity == nil {
			r.Liquidity = &Liquidity{}
		}
		if len(m.Walls) > 0 {
			r.Liquidity.Walls = m.Walls
		}
		if len(m.Vacuums) > 0 {
			r.Liquidity.Vacuums = m.Vacuums
		}
	}

	if len(m.Anomalies) > 0 {
		r.Anomalies = m.Anomalies
	}

	r.SlowCycleUpdatedAt = now.UnixMilli()
}
