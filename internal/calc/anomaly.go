package calc

import (
	"fmt"
	"math"

	"github.com/context8/marketd/internal/state"
)

// Anomaly is a detected microstructure irregularity. Fields beyond Type,
// Severity, and Note are populated per detector.
type Anomaly struct {
	Type             string   `json:"type"`
	Side             string   `json:"side,omitempty"`
	Price            float64  `json:"price,omitempty"`
	Quantity         float64  `json:"quantity,omitempty"`
	DistanceBps      int      `json:"distance_bps,omitempty"`
	FillCount        int      `json:"fill_count,omitempty"`
	TotalVolume      float64  `json:"total_volume,omitempty"`
	TriggeredSignals []string `json:"triggered_signals,omitempty"`
	Severity         Severity `json:"severity"`
	Note             string   `json:"note,omitempty"`
}

const (
	spoofDistanceBps  = 50.0
	icebergMinFills   = 5
	icebergToleranceP = 0.10 // percent

	flashSpreadBps  = 20.0
	flashImbalance  = 0.3
	flashFlowAccel  = -100.0
	flashMinSignals = 2
)

// Spoofing flags large far-from-mid orders on the top 10 levels of each
// side: distance > 50 bps and quantity > 2× the side's mean top quantity.
func Spoofing(s *state.SymbolState, midPrice float64) []Anomaly {
	if midPrice <= 0 {
		return nil
	}

	var anomalies []Anomaly
	scan := func(side string, levels []state.PriceQty) {
		if len(levels) == 0 {
			return
		}
		qtys := make([]float64, len(levels))
		for i, lvl := range levels {
			qtys[i] = lvl.Qty
		}
		avg := mean(qtys)
		if avg <= 0 {
			return
		}

		limit := len(levels)
		if limit > 10 {
			limit = 10
		}
		for _, lvl := range levels[:limit] {
			distance := math.Abs((lvl.Price - midPrice) / midPrice * 10000)
			if distance <= spoofDistanceBps || lvl.Qty <= avg*2 {
				continue
			}
			severity := SeverityLow
			switch {
			case lvl.Qty > avg*5 && distance > 100:
				severity = SeverityHigh
			case lvl.Qty > avg*3:
				severity = SeverityMedium
			}
			anomalies = append(anomalies, Anomaly{
				Type:        "spoofing",
				Side:        side,
				Price:       lvl.Price,
				Quantity:    lvl.Qty,
				DistanceBps: int(distance),
				Severity:    severity,
				Note:        fmt.Sprintf("large %s %.2f at %.0fbps from mid, potential spoofing", side, lvl.Qty, distance),
			})
		}
	}
	scan("bid", s.Book.TopBids(20))
	scan("ask", s.Book.TopAsks(20))
	return anomalies
}

// Iceberg buckets trades by rounded price (0.10% tolerance) and flags
// buckets with ≥5 fills. Buy-dominated buckets imply a hidden ask, and
// vice versa.
func Iceberg(trades []state.TradeTick) []Anomaly {
	if len(trades) < icebergMinFills {
		return nil
	}

	type bucket struct {
		fills  int
		volume float64
		buys   int
		sells  int
	}
	buckets := make(map[float64]*bucket)
	order := make([]float64, 0)

	for _, t := range trades {
		step := t.Price * icebergToleranceP / 100
		if step <= 0 {
			continue
		}
		key := math.Round(t.Price/step) * step
		b, ok := buckets[key]
		if !ok {
			b = &bucket{}
			buckets[key] = b
			order = append(order, key)
		}
		b.fills++
		b.volume += t.Volume
		if t.Aggressor == state.Buy {
			b.buys++
		} else {
			b.sells++
		}
	}

	var anomalies []Anomaly
	for _, key := range order {
		b := buckets[key]
		if b.fills < icebergMinFills {
			continue
		}
		side := "bid"
		if b.buys > b.sells {
			side = "ask" // buyers lifting a refilling ask
		}
		severity := SeverityLow
		switch {
		case b.fills >= 20:
			severity = SeverityHigh
		case b.fills >= 10:
			severity = SeverityMedium
		}
		anomalies = append(anomalies, Anomaly{
			Type:        "iceberg",
			Side:        side,
			Price:       key,
			FillCount:   b.fills,
			TotalVolume: b.volume,
			Severity:    severity,
			Note:        fmt.Sprintf("%d fills at ~%.2f with stable depth, potential iceberg", b.fills, key),
		})
	}
	return anomalies
}

// FlashCrashRisk fires when at least two of three stress signals trigger:
// widening spread, one-sided book, decelerating flow. Severity is high
// with all three.
func FlashCrashRisk(spreadBps, imbalance, flowAcceleration float64) *Anomaly {
	var signals []string
	if spreadBps > flashSpreadBps {
		signals = append(signals, "spread_widening")
	}
	if math.Abs(imbalance) > flashImbalance {
		signals = append(signals, "thin_book")
	}
	if flowAcceleration < flashFlowAccel {
		signals = append(signals, "negative_flow")
	}
	if len(signals) < flashMinSignals {
		return nil
	}

	severity := SeverityMedium
	if len(signals) == 3 {
		severity = SeverityHigh
	}
	return &Anomaly{
		Type:             "flash_crash_risk",
		TriggeredSignals: signals,
		Severity:         severity,
		Note:             fmt.Sprintf("%d of 3 flash crash signals active", len(signals)),
	}
}
