package feed

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/context8/marketd/internal/state"
)

// Binance combined stream wire types. All prices and quantities arrive as
// strings. https://binance-docs.github.io/apidocs/spot/en/#websocket-market-streams

// wsEnvelope wraps every combined stream message:
// {"stream":"btcusdt@trade","data":{...}}
type wsEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// wsDepthSnapshot is a partial book snapshot from <symbol>@depth20@100ms.
// The payload carries no symbol; it is derived from the stream name.
type wsDepthSnapshot struct {
	LastUpdateID int64      `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
}

// wsTrade is a trade from <symbol>@trade.
type wsTrade struct {
	EventType    string `json:"e"`
	EventTime    int64  `json:"E"`
	Symbol       string `json:"s"`
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	TradeTime    int64  `json:"T"`
	BuyerIsMaker bool   `json:"m"`
}

// wsTicker is a 24h rolling ticker from <symbol>@ticker.
type wsTicker struct {
	EventTime          int64  `json:"E"`
	Symbol             string `json:"s"`
	LastPrice          string `json:"c"`
	PriceChangePercent string `json:"P"`
	HighPrice          string `json:"h"`
	LowPrice           string `json:"l"`
	Volume             string `json:"v"`
}

// wsRequest is a SUBSCRIBE/UNSUBSCRIBE control frame.
type wsRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

// streamSymbol extracts the upper-case symbol from a combined stream name
// like "btcusdt@depth20@100ms".
func streamSymbol(stream string) string {
	name, _, found := strings.Cut(stream, "@")
	if !found {
		return ""
	}
	return strings.ToUpper(name)
}

// parseLevels converts [[price, qty], ...] string pairs, dropping
// malformed or non-positive entries.
func parseLevels(raw [][]string) []state.PriceQty {
	levels := make([]state.PriceQty, 0, len(raw))
	for _, pair := range raw {
		if len(pair) < 2 {
			continue
		}
		price, err := strconv.ParseFloat(pair[0], 64)
		if err != nil {
			continue
		}
		qty, err := strconv.ParseFloat(pair[1], 64)
		if err != nil {
			continue
		}
		if price <= 0 || qty < 0 {
			continue
		}
		levels = append(levels, state.PriceQty{Price: price, Qty: qty})
	}
	return levels
}

func (d *wsDepthSnapshot) toBookUpdate(symbol string, received time.Time) BookUpdate {
	return BookUpdate{
		Symbol:    symbol,
		Bids:      parseLevels(d.Bids),
		Asks:      parseLevels(d.Asks),
		EventTime: received,
	}
}

func (t *wsTrade) toTradeEvent() (TradeEvent, bool) {
	price, err := strconv.ParseFloat(t.Price, 64)
	if err != nil || price <= 0 {
		return TradeEvent{}, false
	}
	qty, err := strconv.ParseFloat(t.Quantity, 64)
	if err != nil || qty <= 0 {
		return TradeEvent{}, false
	}

	// The buyer being the maker means a sell order hit the book.
	aggressor := state.Buy
	if t.BuyerIsMaker {
		aggressor = state.Sell
	}

	return TradeEvent{
		Symbol: t.Symbol,
		Tick: state.TradeTick{
			Time:      time.UnixMilli(t.TradeTime).UTC(),
			Price:     price,
			Volume:    qty,
			Aggressor: aggressor,
		},
	}, true
}

func (t *wsTicker) toTickerUpdate() (TickerUpdate, bool) {
	last, err := strconv.ParseFloat(t.LastPrice, 64)
	if err != nil {
		return TickerUpdate{}, false
	}
	change, _ := strconv.ParseFloat(t.PriceChangePercent, 64)
	high, _ := strconv.ParseFloat(t.HighPrice, 64)
	low, _ := strconv.ParseFloat(t.LowPrice, 64)
	volume, _ := strconv.ParseFloat(t.Volume, 64)

	return TickerUpdate{
		Symbol:       t.Symbol,
		LastPrice:    last,
		Change24hPct: change,
		High24h:      high,
		Low24h:       low,
		Volume24h:    volume,
		EventTime:    time.UnixMilli(t.EventTime).UTC(),
	}, true
}
