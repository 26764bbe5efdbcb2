package feed

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	// DefaultStreamURL is the Binance combined stream endpoint.
	DefaultStreamURL = "wss://stream.binance.com:9443/stream"

	readTimeout    = 60 * time.Second
	reconnectMin   = 1 * time.Second
	reconnectMax   = 30 * time.Second
	channelBuffer  = 1024
	controlPerSec  = 5 // Binance caps inbound control frames at 5/sec
	controlBurst   = 5
	handshakeLimit = 10 * time.Second
)

// BinanceClient streams depth snapshots, trades, and tickers over one
// combined websocket connection. Reconnects re-subscribe everything that
// was subscribed before the drop.
type BinanceClient struct {
	url    string
	dialer *websocket.Dialer

	// OnResubscribe is invoked with a reason ("reconnect", "rebalance")
	// whenever subscriptions are replayed onto a connection.
	OnResubscribe func(reason string)

	limiter *rate.Limiter

	mu         sync.Mutex
	conn       *websocket.Conn
	subscribed map[string]bool
	nextID     int64

	books   chan BookUpdate
	trades  chan TradeEvent
	tickers chan TickerUpdate
}

// NewBinanceClient builds a client for the given stream URL (empty means
// the production endpoint).
func NewBinanceClient(url string) *BinanceClient {
	if url == "" {
		url = DefaultStreamURL
	}
	return &BinanceClient{
		url:        url,
		dialer:     &websocket.Dialer{HandshakeTimeout: handshakeLimit},
		limiter:    rate.NewLimiter(rate.Limit(controlPerSec), controlBurst),
		subscribed: make(map[string]bool),
		books:      make(chan BookUpdate, channelBuffer),
		trades:     make(chan TradeEvent, channelBuffer),
		tickers:    make(chan TickerUpdate, channelBuffer),
	}
}

func (c *BinanceClient) Books() <-chan BookUpdate     { return c.books }
func (c *BinanceClient) Trades() <-chan TradeEvent    { return c.trades }
func (c *BinanceClient) Tickers() <-chan TickerUpdate { return c.tickers }

// streamsFor lists the combined stream names consumed per symbol.
func streamsFor(symbol string) []string {
	s := strings.ToLower(symbol)
	return []string{s + "@depth20@100ms", s + "@trade", s + "@ticker"}
}

// Subscribe registers a symbol and, when connected, sends the SUBSCRIBE
// frame. The registration persists across reconnects either way.
func (c *BinanceClient) Subscribe(ctx context.Context, symbol string) error {
	c.mu.Lock()
	c.subscribed[symbol] = true
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	return c.sendControl(ctx, "SUBSCRIBE", streamsFor(symbol))
}

// Unsubscribe deregisters a symbol and tells the exchange to stop its
// streams when connected.
func (c *BinanceClient) Unsubscribe(ctx context.Context, symbol string) error {
	c.mu.Lock()
	delete(c.subscribed, symbol)
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	return c.sendControl(ctx, "UNSUBSCRIBE", streamsFor(symbol))
}

func (c *BinanceClient) sendControl(ctx context.Context, method string, params []string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	c.nextID++
	return c.conn.WriteJSON(wsRequest{Method: method, Params: params, ID: c.nextID})
}

// Run connects and pumps messages until the context ends. Connection
// failures back off exponentially from 1s to 30s.
func (c *BinanceClient) Run(ctx context.Context) error {
	backoff := reconnectMin
	attempt := 0

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
		if err != nil {
			log.Warn().Err(err).Str("url", c.url).Dur("backoff", backoff).
				Msg("Feed connect failed")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > reconnectMax {
				backoff = reconnectMax
			}
			continue
		}
		backoff = reconnectMin
		attempt++

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()

		if err := c.resubscribeAll(ctx, attempt > 1); err != nil {
			log.Warn().Err(err).Msg("Feed resubscribe failed")
		}

		c.readLoop(ctx, conn)

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		_ = conn.Close()
	}
}

// resubscribeAll replays every registered subscription onto the current
// connection.
func (c *BinanceClient) resubscribeAll(ctx context.Context, isReconnect bool) error {
	c.mu.Lock()
	symbols := make([]string, 0, len(c.subscribed))
	for symbol := range c.subscribed {
		symbols = append(symbols, symbol)
	}
	c.mu.Unlock()

	if len(symbols) == 0 {
		return nil
	}

	var streams []string
	for _, symbol := range symbols {
		streams = append(streams, streamsFor(symbol)...)
	}
	if err := c.sendControl(ctx, "SUBSCRIBE", streams); err != nil {
		return err
	}

	if isReconnect && c.OnResubscribe != nil {
		c.OnResubscribe("reconnect")
	}
	log.Info().Int("symbols", len(symbols)).Bool("reconnect", isReconnect).
		Msg("Feed subscriptions active")
	return nil
}

func (c *BinanceClient) readLoop(ctx context.Context, conn *websocket.Conn) {
	// Unblock ReadMessage when the context ends.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})
	conn.SetPingHandler(func(payload string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(payload), time.Now().Add(5*time.Second))
	})

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				log.Warn().Err(err).Msg("Feed read error, reconnecting")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		c.dispatch(msg)
	}
}

// dispatch routes one combined stream message to its typed channel.
// Events are dropped rather than blocking the read loop when a consumer
// falls behind.
func (c *BinanceClient) dispatch(msg []byte) {
	var envelope wsEnvelope
	if err := json.Unmarshal(msg, &envelope); err != nil || envelope.Stream == "" {
		return // control responses and unknown frames
	}

	switch {
	case strings.Contains(envelope.Stream, "@depth"):
		var depth wsDepthSnapshot
		if err := json.Unmarshal(envelope.Data, &depth); err != nil {
			return
		}
		symbol := streamSymbol(envelope.Stream)
		if symbol == "" {
			return
		}
		select {
		case c.books <- depth.toBookUpdate(symbol, time.Now().UTC()):
		default:
			log.Debug().Str("symbol", symbol).Msg("Dropping book update, consumer behind")
		}

	case strings.Contains(envelope.Stream, "@trade"):
		var trade wsTrade
		if err := json.Unmarshal(envelope.Data, &trade); err != nil {
			return
		}
		event, ok := trade.toTradeEvent()
		if !ok {
			return
		}
		select {
		case c.trades <- event:
		default:
			log.Debug().Str("symbol", event.Symbol).Msg("Dropping trade, consumer behind")
		}

	case strings.Contains(envelope.Stream, "@ticker"):
		var ticker wsTicker
		if err := json.Unmarshal(envelope.Data, &ticker); err != nil {
			return
		}
		update, ok := ticker.toTickerUpdate()
		if !ok {
			return
		}
		select {
		case c.tickers <- update:
		default:
		}
	}
}
