// Package report assembles the published market report: the fast-cycle
// snapshot built every publish period and the slow-cycle enrichment layered
// on top of it.
package report

import (
	"github.com/context8/marketd/internal/calc"
	"github.com/context8/marketd/internal/state"
)

// SchemaVersion is the wire version readers validate against.
const SchemaVersion = "1.1"

// Writer identifies the producing node and its fencing token.
type Writer struct {
	NodeID      string `json:"nodeId"`
	WriterToken int64  `json:"writerToken"`
}

// Ingestion indicates data pipeline health for the symbol.
type Ingestion struct {
	Status     string `json:"status"`
	LastUpdate string `json:"last_update"`
}

// Depth is the top-20 book snapshot with aggregates.
type Depth struct {
	Top20Bid  []state.PriceQty `json:"top20_bid"`
	Top20Ask  []state.PriceQty `json:"top20_ask"`
	SumBid    float64          `json:"sum_bid"`
	SumAsk    float64          `json:"sum_ask"`
	Imbalance float64          `json:"imbalance"`
}

// Flow is market activity intensity over the fast windows.
type Flow struct {
	OrdersPerSec float64 `json:"orders_per_sec"`
	NetFlow      float64 `json:"net_flow"`
}

// HealthComponents breaks the score down per signal. Only freshness is
// populated today; the rest are reserved.
type HealthComponents struct {
	Spread    float64 `json:"spread"`
	Depth     float64 `json:"depth"`
	Balance   float64 `json:"balance"`
	Flow      float64 `json:"flow"`
	Anomalies float64 `json:"anomalies"`
	Freshness float64 `json:"freshness"`
}

// HealthBlock is the composite market quality score.
type HealthBlock struct {
	Score      int              `json:"score"`
	Components HealthComponents `json:"components"`
}

// Analytics holds slow-cycle derived analytics.
type Analytics struct {
	VolumeProfile *calc.VolumeProfile `json:"volume_profile,omitempty"`
}

// Liquidity holds slow-cycle liquidity features.
type Liquidity struct {
	Walls   []calc.Wall   `json:"walls,omitempty"`
	Vacuums []calc.Vacuum `json:"vacuums,omitempty"`
}

// Report is the complete per-symbol market analysis snapshot, published as
// a single JSON value per symbol.
type Report struct {
	SchemaVersion string `json:"schemaVersion"`
	Writer        Writer `json:"writer"`
	UpdatedAt     int64  `json:"updatedAt"`
	Mode          string `json:"mode"`

	Symbol      string    `json:"symbol"`
	Venue       string    `json:"venue"`
	GeneratedAt string    `json:"generated_at"`
	DataAgeMs   int64     `json:"data_age_ms"`
	Ingestion   Ingestion `json:"ingestion"`

	LastPrice    float64 `json:"last_price"`
	Change24hPct float64 `json:"change_24h_pct"`
	High24h      float64 `json:"high_24h"`
	Low24h       float64 `json:"low_24h"`
	Volume24h    float64 `json:"volume_24h"`

	BestBid    state.PriceQty `json:"best_bid"`
	BestAsk    state.PriceQty `json:"best_ask"`
	SpreadBps  float64        `json:"spread_bps"`
	MidPrice   float64        `json:"mid_price"`
	MicroPrice float64        `json:"micro_price"`

	Depth  Depth       `json:"depth"`
	Flow   Flow        `json:"flow"`
	Health HealthBlock `json:"health"`

	// Slow-cycle enrichment. Absent until the first slow cycle completes.
	Analytics          *Analytics     `json:"analytics,omitempty"`
	Liquidity          *Liquidity     `json:"liquidity,omitempty"`
	Anomalies          []calc.Anomaly `json:"anomalies,omitempty"`
	SlowCycleUpdatedAt int64          `json:"slow_cycle_updated_at,omitempty"`
}

// TickerStats carries 24h rolling statistics from the exchange ticker
// stream. Zero values fall back to trade-derived numbers in BuildFast.
type TickerStats struct {
	LastPrice    float64
	Change24hPct float64
	High24h      float64
	Low24h       float64
	Volume24h    float64
}
