package report

import (
	"time"

	"github.com/context8/marketd/internal/calc"
	"github.com/context8/marketd/internal/state"
)

const (
	ordersPerSecWindow = 10 * time.Second
	netFlowWindow      = 30 * time.Second
)

func isoUTC(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.999999Z07:00")
}

// BuildFast assembles the fast-cycle report for one symbol. Returns nil
// when the book is not two-sided yet; a report is only worth publishing
// once spread and depth metrics exist.
func BuildFast(s *state.SymbolState, nodeID string, writerToken int64, mode string, ticker *TickerStats, now time.Time) *Report {
	bestBid, okBid := s.BestBid()
	bestAsk, okAsk := s.BestAsk()
	if !okBid || !okAsk {
		return nil
	}

	spread := calc.Spread(s)
	depth := calc.Depth(s)
	if spread == nil || depth == nil {
		return nil
	}

	dataAge, hasData := s.DataAge(now)
	ingestionStatus := "ok"
	switch {
	case dataAge > 2000:
		ingestionStatus = "down"
	case dataAge > 1000:
		ingestionStatus = "degraded"
	}

	lastUpdate := now
	if ts := s.LastEventTS(); !ts.IsZero() {
		lastUpdate = ts
	}

	netFlow := 0.0
	if f := calc.NetFlow(s, netFlowWindow, now); f != nil {
		netFlow = f.NetFlow
	}

	var agePtr *int64
	if hasData {
		agePtr = &dataAge
	}
	health := calc.HealthScore(calc.HealthInputs{
		DataAgeMs: agePtr,
		SpreadBps: &spread.SpreadBps,
		Imbalance: &depth.Imbalance,
	})

	lastPrice := spread.MidPrice
	if trade, ok := s.LastTrade(); ok {
		lastPrice = trade.Price
	}

	change24h, volume24h := 0.0, 0.0
	high24h, low24h := lastPrice, lastPrice
	if ticker != nil {
		change24h = ticker.Change24hPct
		volume24h = ticker.Volume24h
		if ticker.High24h > 0 {
			high24h = ticker.High24h
		}
		if ticker.Low24h > 0 {
			low24h = ticker.Low24h
		}
		if ticker.LastPrice > 0 {
			lastPrice = ticker.LastPrice
		}
	}

	return &Report{
		SchemaVersion: SchemaVersion,
		Writer:        Writer{NodeID: nodeID, WriterToken: writerToken},
		UpdatedAt:     now.UnixMilli(),
		Mode:          mode,

		Symbol:      s.Symbol,
		Venue:       "BINANCE",
		GeneratedAt: isoUTC(now),
		DataAgeMs:   dataAge,
		Ingestion: Ingestion{
			Status:     ingestionStatus,
			LastUpdate: isoUTC(lastUpdate),
		},

		LastPrice:    lastPrice,
		Change24hPct: change24h,
		High24h:      high24h,
		Low24h:       low24h,
		Volume24h:    volume24h,

		BestBid:    bestBid,
		BestAsk:    bestAsk,
		SpreadBps:  spread.SpreadBps,
		MidPrice:   spread.MidPrice,
		MicroPrice: spread.MicroPrice,

		Depth: Depth{
			Top20Bid:  s.Book.TopBids(20),
			Top20Ask:  s.Book.TopAsks(20),
			SumBid:    depth.TotalBidQty,
			SumAsk:    depth.TotalAskQty,
			Imbalance: depth.Imbalance,
		},
		Flow: Flow{
			OrdersPerSec: calc.OrdersPerSec(s, ordersPerSecWindow, now),
			NetFlow:      netFlow,
		},
		Health: HealthBlock{
			Score: int(health.Score),
			Components: HealthComponents{
				Freshness: health.Score,
			},
		},
	}
}
