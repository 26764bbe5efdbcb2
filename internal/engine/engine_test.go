package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/context8/marketd/internal/coord"
	"github.com/context8/marketd/internal/feed"
	"github.com/context8/marketd/internal/report"
	"github.com/context8/marketd/internal/state"
	"github.com/context8/marketd/internal/telemetry"
)

type fakeFeed struct {
	mu           sync.Mutex
	subscribed   []string
	unsubscribed []string

	books   chan feed.BookUpdate
	trades  chan feed.TradeEvent
	tickers chan feed.TickerUpdate
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{
		books:   make(chan feed.BookUpdate, 16),
		trades:  make(chan feed.TradeEvent, 16),
		tickers: make(chan feed.TickerUpdate, 16),
	}
}

func (f *fakeFeed) Subscribe(_ context.Context, symbol string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed = append(f.subscribed, symbol)
	return nil
}

func (f *fakeFeed) Unsubscribe(_ context.Context, symbol string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribed = append(f.unsubscribed, symbol)
	return nil
}

func (f *fakeFeed) Books() <-chan feed.BookUpdate     { return f.books }
func (f *fakeFeed) Trades() <-chan feed.TradeEvent    { return f.trades }
func (f *fakeFeed) Tickers() <-chan feed.TickerUpdate { return f.tickers }

func (f *fakeFeed) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

type fakePublisher struct {
	mu        sync.Mutex
	published []*report.Report
}

func (p *fakePublisher) Publish(_ context.Context, _ string, r any) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, r.(*report.Report))
	return true
}

func (p *fakePublisher) reports() []*report.Report {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*report.Report(nil), p.published...)
}

type fakeLeases struct {
	info map[string]coord.LeaseInfo
}

func (f *fakeLeases) Info(_ context.Context, symbol string) (coord.LeaseInfo, error) {
	return f.info[symbol], nil
}

type stubLeaser struct{}

func (stubLeaser) Acquire(context.Context, string, time.Duration) (int64, bool, error) {
	return 1, true, nil
}
func (stubLeaser) Renew(context.Context, string, time.Duration) (bool, error) { return true, nil }
func (stubLeaser) Release(context.Context, string) (bool, error)              { return true, nil }

func newTestEngine(mode string) (*Engine, *fakeFeed, *fakePublisher, *fakeLeases) {
	f := newFakeFeed()
	p := &fakePublisher{}
	l := &fakeLeases{info: make(map[string]coord.LeaseInfo)}
	controller := coord.NewController(
		coord.SoloMembership{ID: "node-a"}, stubLeaser{},
		[]string{"BTCUSDT", "ETHUSDT"}, 2*time.Second, 2*time.Second, 0.02,
	)

	e := New(Options{
		NodeID:            "node-a",
		Mode:              mode,
		FastPeriod:        250 * time.Millisecond,
		SlowPeriod:        2 * time.Second,
		TickSize:          0.01,
		HeartbeatInterval: time.Second,
		RebalanceInterval: time.Second,
		LeaseTTL:          2 * time.Second,
		Feed:              f,
		Publisher:         p,
		Controller:        controller,
		Leases:            l,
		Metrics:           telemetry.NewMetrics(),
	})
	return e, f, p, l
}

func seedTwoSidedBook(e *Engine, symbol string) {
	now := time.Now().UTC()
	e.handleBook(feed.BookUpdate{
		Symbol: symbol,
		Bids:   []state.PriceQty{{Price: 100.0, Qty: 1.0}, {Price: 99.9, Qty: 2.0}},
		Asks:   []state.PriceQty{{Price: 100.5, Qty: 2.0}, {Price: 100.6, Qty: 1.5}},
		EventTime: now,
	})
	e.handleTrade(feed.TradeEvent{
		Symbol: symbol,
		Tick: state.TradeTick{
			Time: now, Price: 100.2, Volume: 0.5, Aggressor: state.Buy,
		},
	})
}

func TestFastCycle_PublishesOwnedSymbol(t *testing.T) {
	e, f, p, _ := newTestEngine("single")

	e.onAcquired("BTCUSDT", 7)
	seedTwoSidedBook(e, "BTCUSDT")

	e.runFastCycle(context.Background())

	reports := p.reports()
	require.Len(t, reports, 1)
	r := reports[0]
	assert.Equal(t, "BTCUSDT", r.Symbol)
	assert.Equal(t, "node-a", r.Writer.NodeID)
	assert.Equal(t, int64(7), r.Writer.WriterToken)
	assert.Equal(t, "single", r.Mode)

	assert.Equal(t, []string{"BTCUSDT"}, f.subscribed)
	assert.Equal(t, float64(1),
		testutil.ToFloat64(e.opts.Metrics.ReportPublishTotal.WithLabelValues("BTCUSDT")))
}

func TestFastCycle_UnownedEventsDropped(t *testing.T) {
	e, _, p, _ := newTestEngine("single")

	// Never acquired, so the book update must be ignored.
	seedTwoSidedBook(e, "ETHUSDT")
	e.runFastCycle(context.Background())

	assert.Empty(t, p.reports())
}

func TestFastCycle_FencingMismatchSkips(t *testing.T) {
	e, _, p, l := newTestEngine("coordinated")

	e.onAcquired("BTCUSDT", 7)
	seedTwoSidedBook(e, "BTCUSDT")
	l.info["BTCUSDT"] = coord.LeaseInfo{Owner: "node-b", Token: 9}

	e.runFastCycle(context.Background())

	assert.Empty(t, p.reports())
	assert.Equal(t, float64(1), testutil.ToFloat64(e.opts.Metrics.LeaseConflictsTotal))
}

func TestFastCycle_FencingMatchPublishes(t *testing.T) {
	e, _, p, l := newTestEngine("coordinated")

	e.onAcquired("BTCUSDT", 7)
	seedTwoSidedBook(e, "BTCUSDT")
	l.info["BTCUSDT"] = coord.LeaseInfo{Owner: "node-a", Token: 7}

	e.runFastCycle(context.Background())

	require.Len(t, p.reports(), 1)
	assert.Equal(t, float64(0), testutil.ToFloat64(e.opts.Metrics.LeaseConflictsTotal))
}

func TestDrop_StopsPublishingAndUnsubscribes(t *testing.T) {
	e, f, p, _ := newTestEngine("single")

	e.onAcquired("BTCUSDT", 7)
	seedTwoSidedBook(e, "BTCUSDT")
	e.onDropped("BTCUSDT")

	e.runFastCycle(context.Background())

	assert.Empty(t, p.reports())
	assert.Equal(t, []string{"BTCUSDT"}, f.unsubscribed)
}

func TestSlowTick_ReentrancyGuardSkips(t *testing.T) {
	e, _, _, _ := newTestEngine("single")

	e.slowRunning.Store(true)
	e.onSlowTick(context.Background())

	assert.Equal(t, float64(1), testutil.ToFloat64(e.opts.Metrics.SlowCycleSkipsTotal))
}

func TestSlowCycle_CachesAnalyticsForFastReports(t *testing.T) {
	e, _, p, _ := newTestEngine("single")

	rdb, mock := redismock.NewClientMock()
	e.opts.KV = rdb
	// No fast report published yet, so enrichment waits for the next
	// fast cycle and only the cache is filled.
	mock.ExpectGet("report:BTCUSDT").RedisNil()

	e.onAcquired("BTCUSDT", 7)
	now := time.Now().UTC()
	e.handleBook(feed.BookUpdate{
		Symbol: "BTCUSDT",
		Bids:   []state.PriceQty{{Price: 100.0, Qty: 1.0}},
		Asks:   []state.PriceQty{{Price: 100.5, Qty: 2.0}},
		EventTime: now,
	})
	for i := 0; i < 20; i++ {
		e.handleTrade(feed.TradeEvent{
			Symbol: "BTCUSDT",
			Tick: state.TradeTick{
				Time: now.Add(-time.Duration(i) * time.Second),
				Price: 100.0 + float64(i%3)*0.01, Volume: 1.0, Aggressor: state.Buy,
			},
		})
	}

	e.runSlowCycle(context.Background())
	e.runFastCycle(context.Background())

	reports := p.reports()
	require.Len(t, reports, 1)
	r := reports[0]
	require.NotNil(t, r.Analytics)
	assert.NotNil(t, r.Analytics.VolumeProfile)
	assert.NotZero(t, r.SlowCycleUpdatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}
