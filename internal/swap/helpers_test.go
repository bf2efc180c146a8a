package swap

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Aidin1998/swaptrade/internal/ledger"
	"github.com/Aidin1998/swaptrade/internal/marketdata"
	"github.com/Aidin1998/swaptrade/internal/messaging"
	"github.com/Aidin1998/swaptrade/internal/swap/jobqueue"
	"github.com/Aidin1998/swaptrade/pkg/models"
	"github.com/Aidin1998/swaptrade/testutil"
)

// testPrices wraps the in-memory feed with injectable failures and drift
type testPrices struct {
	*marketdata.MemoryProvider

	mu       sync.Mutex
	failures int
	drift    map[string]decimal.Decimal
}

func (p *testPrices) failNext(n int) {
	p.mu.Lock()
	p.failures = n
	p.mu.Unlock()
}

// driftOnRead moves asset's price by step after every read
func (p *testPrices) driftOnRead(asset string, step decimal.Decimal) {
	p.mu.Lock()
	if p.drift == nil {
		p.drift = make(map[string]decimal.Decimal)
	}
	p.drift[asset] = step
	p.mu.Unlock()
}

func (p *testPrices) CurrentPrice(ctx context.Context, asset string) (decimal.Decimal, error) {
	p.mu.Lock()
	if p.failures > 0 {
		p.failures--
		p.mu.Unlock()
		return decimal.Zero, errors.New("price feed unavailable")
	}
	step, drifting := p.drift[asset]
	p.mu.Unlock()

	price, err := p.MemoryProvider.CurrentPrice(ctx, asset)
	if err == nil && drifting {
		p.MemoryProvider.SetPrice(asset, price.Add(step))
	}
	return price, err
}

// slowProvider blocks until the caller's deadline expires
type slowProvider struct{}

func (slowProvider) CurrentPrice(ctx context.Context, _ string) (decimal.Decimal, error) {
	<-ctx.Done()
	return decimal.Zero, ctx.Err()
}

func (slowProvider) Reserve(ctx context.Context, _, _ string) (decimal.Decimal, error) {
	<-ctx.Done()
	return decimal.Zero, ctx.Err()
}

// cancelOnRead cancels the caller's request right after the nth reserve read
type cancelOnRead struct {
	marketdata.ReserveProvider

	mu     sync.Mutex
	reads  int
	at     int
	cancel context.CancelFunc
}

func (r *cancelOnRead) Reserve(ctx context.Context, from, to string) (decimal.Decimal, error) {
	reserve, err := r.ReserveProvider.Reserve(ctx, from, to)
	r.mu.Lock()
	r.reads++
	if r.reads == r.at && r.cancel != nil {
		r.cancel()
	}
	r.mu.Unlock()
	return reserve, err
}

type testEnv struct {
	db        *gorm.DB
	cfg       Config
	registry  *marketdata.StaticRegistry
	market    *marketdata.MemoryProvider
	prices    *testPrices
	queue     *jobqueue.MemoryQueue
	publisher *messaging.MemoryPublisher
	orch      *Orchestrator
	ledger    *ledger.Ledger
	history   HistoryStore
}

type envSettings struct {
	cfg      Config
	capacity int
	db       *gorm.DB
	market   *marketdata.MemoryProvider
	reserves func(marketdata.ReserveProvider) marketdata.ReserveProvider
}

type envOption func(*envSettings)

func withConfig(fn func(*Config)) envOption {
	return func(s *envSettings) { fn(&s.cfg) }
}

func withQueueCapacity(n int) envOption {
	return func(s *envSettings) { s.capacity = n }
}

// withDB reuses an existing database and market, as a restarted process would
func withDB(db *gorm.DB, market *marketdata.MemoryProvider) envOption {
	return func(s *envSettings) {
		s.db = db
		s.market = market
	}
}

// withReserves wraps the reserve feed the engine reads
func withReserves(wrap func(marketdata.ReserveProvider) marketdata.ReserveProvider) envOption {
	return func(s *envSettings) { s.reserves = wrap }
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Workers = 2
	cfg.MaxAttempts = 3
	cfg.BaseDelay = 5 * time.Millisecond
	cfg.MaxDelay = 20 * time.Millisecond
	cfg.QuoteTimeout = 200 * time.Millisecond
	cfg.LiquidityTimeout = 200 * time.Millisecond
	return cfg
}

// newTestEnv builds an engine over an in-memory database with
// ETH=1000, BTC=20000, USDT=1 and a BTC->ETH pool of 39.6.
func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	settings := &envSettings{cfg: testConfig(), capacity: 100}
	for _, opt := range opts {
		opt(settings)
	}

	db := settings.db
	if db == nil {
		db = testutil.NewTestDB(t)
	}
	market := settings.market
	if market == nil {
		market = marketdata.NewMemoryProvider()
		market.SetPrice("ETH", testutil.Dec("1000"))
		market.SetPrice("BTC", testutil.Dec("20000"))
		market.SetPrice("USDT", testutil.Dec("1"))
		market.SetReserve("BTC", "ETH", testutil.Dec("39.6"))
	}

	var reserves marketdata.ReserveProvider = market
	if settings.reserves != nil {
		reserves = settings.reserves(market)
	}

	registry := marketdata.NewStaticRegistry("BTC", "ETH", "USDT", "SOL")
	prices := &testPrices{MemoryProvider: market}
	queue := jobqueue.NewMemoryQueue(settings.capacity)
	t.Cleanup(func() { _ = queue.Close() })
	publisher := &messaging.MemoryPublisher{}

	orch, err := NewOrchestrator(settings.cfg, Dependencies{
		DB:        db,
		Registry:  registry,
		Prices:    prices,
		Reserves:  reserves,
		Queue:     queue,
		Publisher: publisher,
		Logger:    zap.NewNop(),
	})
	require.NoError(t, err)

	return &testEnv{
		db:        db,
		cfg:       settings.cfg,
		registry:  registry,
		market:    market,
		prices:    prices,
		queue:     queue,
		publisher: publisher,
		orch:      orch,
		ledger:    orch.Ledger(),
		history:   NewGormHistoryStore(db),
	}
}

func newUser() string {
	return uuid.New().String()
}

func (e *testEnv) deposit(t *testing.T, user, asset, amount string) {
	t.Helper()
	require.NoError(t, e.ledger.Deposit(context.Background(), user, asset, testutil.Dec(amount), "seed"))
}

func (e *testEnv) balance(t *testing.T, user, asset string) decimal.Decimal {
	t.Helper()
	bal, err := e.ledger.GetBalance(context.Background(), user, asset)
	require.NoError(t, err)
	return bal
}

func (e *testEnv) swap(t *testing.T, id string) *models.SwapHistory {
	t.Helper()
	row, err := e.history.GetByID(context.Background(), id)
	require.NoError(t, err)
	return row
}

// drain processes queued jobs, including delayed retries, until none remain
func (e *testEnv) drain(t *testing.T) {
	t.Helper()
	for e.queue.Len() > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		job, err := e.queue.Dequeue(ctx)
		cancel()
		require.NoError(t, err)
		e.orch.Workers().ProcessJob(context.Background(), job)
		require.NoError(t, e.queue.Ack(context.Background(), job.ID))
	}
}

func (e *testEnv) submitAsync(t *testing.T, user, from, to, amount string) *AsyncSwapResult {
	t.Helper()
	resp, err := e.orch.ExecuteSwap(context.Background(), SwapRequest{
		UserID:    user,
		FromAsset: from,
		ToAsset:   to,
		AmountIn:  testutil.Dec(amount),
		Async:     true,
	})
	require.NoError(t, err)
	handle, ok := resp.(*AsyncSwapResult)
	require.True(t, ok, "expected async handle, got %T", resp)
	return handle
}

func tol(s string) *decimal.Decimal {
	d := testutil.Dec(s)
	return &d
}
