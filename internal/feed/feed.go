// Package feed ingests market data from the exchange websocket and fans
// it out as typed events: depth snapshots, trades, and 24h tickers.
package feed

import (
	"context"
	"time"

	"github.com/context8/marketd/internal/state"
)

// BookUpdate is a top-N depth snapshot for one symbol.
type BookUpdate struct {
	Symbol    string
	Bids      []state.PriceQty
	Asks      []state.PriceQty
	EventTime time.Time
}

// TradeEvent is a single executed trade for one symbol.
type TradeEvent struct {
	Symbol string
	Tick   state.TradeTick
}

// TickerUpdate carries 24h rolling statistics for one symbol.
type TickerUpdate struct {
	Symbol       string
	LastPrice    float64
	Change24hPct float64
	High24h      float64
	Low24h       float64
	Volume24h    float64
	EventTime    time.Time
}

// Client is the market data source. Run blocks until the context ends,
// reconnecting as needed; Subscribe and Unsubscribe may be called at any
// time and survive reconnects.
type Client interface {
	Subscribe(ctx context.Context, symbol string) error
	Unsubscribe(ctx context.Context, symbol string) error
	Books() <-chan BookUpdate
	Trades() <-chan TradeEvent
	Tickers() <-chan TickerUpdate
	Run(ctx context.Context) error
}
