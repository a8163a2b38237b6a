package launchpad

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rovshanmuradov/fundly/internal/config"
	"github.com/rovshanmuradov/fundly/internal/domain"
	"github.com/rovshanmuradov/fundly/internal/ledger"
	"github.com/rovshanmuradov/fundly/internal/metrics"
	"github.com/rovshanmuradov/fundly/internal/migration"
	"github.com/rovshanmuradov/fundly/internal/storage"
	"github.com/rovshanmuradov/fundly/internal/storage/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const sol = domain.LamportsPerSOL

type memStorage struct {
	mu         sync.Mutex
	trades     []*models.Trade
	migrations map[string]*models.Migration
	migrated   bool
	closed     bool
}

func newMemStorage() *memStorage {
	return &memStorage{migrations: make(map[string]*models.Migration)}
}

func (m *memStorage) SaveTrade(_ context.Context, trade *models.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades = append(m.trades, trade)
	return nil
}

func (m *memStorage) ListTrades(_ context.Context, mint string, _, _ int) ([]*models.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Trade
	for _, t := range m.trades {
		if t.Mint == mint {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memStorage) UpsertMigration(_ context.Context, migration *models.Migration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *migration
	m.migrations[migration.Mint] = &cp
	return nil
}

func (m *memStorage) GetMigration(_ context.Context, mint string) (*models.Migration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.migrations[mint]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *memStorage) SaveFeeWithdrawal(context.Context, *models.FeeWithdrawal) error { return nil }
func (m *memStorage) SaveVestingClaim(context.Context, *models.VestingClaim) error   { return nil }

func (m *memStorage) RunMigrations() error {
	m.migrated = true
	return nil
}

func (m *memStorage) Close() error {
	m.closed = true
	return nil
}

func testConfig(authority, treasury solana.PublicKey) *config.Config {
	return &config.Config{
		Policy: config.PolicyConfig{
			Authority:            authority.String(),
			Treasury:             treasury.String(),
			VirtualSolReserves:   config.DefaultVirtualSolReserves,
			VirtualTokenReserves: config.DefaultVirtualTokenReserves,
			InitialTokenSupply:   config.DefaultInitialTokenSupply,
			FeeBasisPoints:       config.DefaultFeeBasisPoints,
			MigrationThreshold:   config.DefaultMigrationThreshold,
			MigrationFee:         config.DefaultMigrationFee,
		},
		Dex: config.DexConfig{
			Backend:    "memory",
			Retries:    2,
			RetryDelay: time.Millisecond,
			MaxElapsed: time.Second,
		},
		EventBufferSize: 256,
		MetricsEnabled:  true,
	}
}

type harness struct {
	svc       *Service
	store     *memStorage
	authority solana.PublicKey
	treasury  solana.PublicKey
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:     newMemStorage(),
		authority: solana.NewWallet().PublicKey(),
		treasury:  solana.NewWallet().PublicKey(),
	}
	svc, err := NewService(context.Background(), &ServiceConfig{
		Config:  testConfig(h.authority, h.treasury),
		Logger:  zaptest.NewLogger(t),
		Storage: h.store,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	h.svc = svc
	return h
}

func (h *harness) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.svc.Drain(ctx))
}

func TestNewServiceInitializesPolicy(t *testing.T) {
	h := newHarness(t)

	p, err := h.svc.Policies().Snapshot()
	require.NoError(t, err)
	assert.Equal(t, h.authority, p.Authority)
	assert.Equal(t, h.treasury, p.Treasury)
	assert.Equal(t, uint64(85*sol), p.MigrationThreshold)
	assert.Equal(t, "memory", h.svc.Integration().Name())
	assert.NotNil(t, h.svc.Metrics())
	assert.True(t, h.store.migrated)
}

func TestNewServiceRejectsBadPolicy(t *testing.T) {
	cfg := testConfig(solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey())
	cfg.Policy.Treasury = "not a key"

	_, err := NewService(context.Background(), &ServiceConfig{Config: cfg, Logger: zaptest.NewLogger(t)})
	assert.ErrorContains(t, err, "invalid policy configuration")
}

func TestNewServiceUnknownBackend(t *testing.T) {
	cfg := testConfig(solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey())
	cfg.Dex.Backend = "orca"

	_, err := NewService(context.Background(), &ServiceConfig{Config: cfg, Logger: zaptest.NewLogger(t)})
	assert.Error(t, err)
}

func TestLaunchMovesSupplyIntoCurve(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	mint := solana.NewWallet().PublicKey()
	creator := solana.NewWallet().PublicKey()

	c, err := h.svc.Launch(ctx, mint, creator)
	require.NoError(t, err)
	assert.Equal(t, uint64(config.DefaultInitialTokenSupply), c.RealTokenReserves)

	held, err := h.svc.Ledger().Balance(ctx, ledger.CurveTokenVault(mint), domain.Token(mint))
	require.NoError(t, err)
	assert.Equal(t, uint64(config.DefaultInitialTokenSupply), held)

	left, err := h.svc.Ledger().Balance(ctx, creator, domain.Token(mint))
	require.NoError(t, err)
	assert.Zero(t, left)

	_, err = h.svc.Launch(ctx, mint, creator)
	assert.ErrorIs(t, err, domain.ErrCurveExists)
}

func TestConcurrentLaunchMintsSupplyOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	mint := solana.NewWallet().PublicKey()
	creator := solana.NewWallet().PublicKey()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		launched int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.Launch(ctx, mint, creator)
			if err != nil {
				assert.ErrorIs(t, err, domain.ErrCurveExists)
				return
			}
			mu.Lock()
			launched++
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, launched)

	left, err := h.svc.Ledger().Balance(ctx, creator, domain.Token(mint))
	require.NoError(t, err)
	assert.Zero(t, left, "failed launches leave no minted supply behind")

	held, err := h.svc.Ledger().Balance(ctx, ledger.CurveTokenVault(mint), domain.Token(mint))
	require.NoError(t, err)
	assert.Equal(t, uint64(config.DefaultInitialTokenSupply), held)
}

func TestGraduateLocksLiquidity(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	mint := solana.NewWallet().PublicKey()
	_, err := h.svc.Launch(ctx, mint, solana.NewWallet().PublicKey())
	require.NoError(t, err)

	_, err = h.svc.Graduate(ctx, h.authority, mint)
	assert.ErrorIs(t, err, domain.ErrThresholdNotReached)

	buyer := solana.NewWallet().PublicKey()
	require.NoError(t, h.svc.Ledger().Deposit(buyer, domain.SOL(), 100*sol))
	_, err = h.svc.Curves().Buy(ctx, mint, buyer, 100*sol, 0)
	require.NoError(t, err)

	_, err = h.svc.Graduate(ctx, solana.NewWallet().PublicKey(), mint)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	rec, err := h.svc.Graduate(ctx, h.authority, mint)
	require.NoError(t, err)
	assert.Equal(t, migration.StatusLocked, rec.Status)
	require.NotNil(t, rec.LpBurned)
	assert.NotZero(t, *rec.LpBurned)
	assert.True(t, rec.PoolCreated())
	assert.Equal(t, uint64(99*sol)-config.DefaultMigrationFee, rec.SolMigrated)

	c, err := h.svc.Curves().Curve(mint)
	require.NoError(t, err)
	assert.True(t, c.Migrated)
	assert.Equal(t, rec.Pool, c.Pool)

	_, err = h.svc.Graduate(ctx, h.authority, mint)
	assert.ErrorIs(t, err, domain.ErrAlreadyMigrated)

	h.drain(t)
	stored, err := h.store.GetMigration(ctx, mint.String())
	require.NoError(t, err)
	assert.Equal(t, rec.Pool.String(), stored.Pool)
	require.NotNil(t, stored.LpBurned)
	assert.Equal(t, *rec.LpBurned, *stored.LpBurned)

	trades, err := h.store.ListTrades(ctx, mint.String(), 10, 0)
	require.NoError(t, err)
	assert.Len(t, trades, 1)
}

func TestMetricsFollowTrades(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	mint := solana.NewWallet().PublicKey()
	_, err := h.svc.Launch(ctx, mint, solana.NewWallet().PublicKey())
	require.NoError(t, err)

	buyer := solana.NewWallet().PublicKey()
	require.NoError(t, h.svc.Ledger().Deposit(buyer, domain.SOL(), 3*sol))
	for i := 0; i < 3; i++ {
		_, err := h.svc.Curves().Buy(ctx, mint, buyer, sol, 0)
		require.NoError(t, err)
	}
	h.drain(t)

	m, ok := h.svc.Metrics().Metric(metrics.TradeCounterType)
	require.True(t, ok)
	assert.Equal(t, float64(3), testutil.ToFloat64(m.(*prometheus.CounterVec).WithLabelValues("buy")))
	assert.Len(t, h.svc.Journal().Trades(), 3)
}

func TestShutdownClosesStorage(t *testing.T) {
	h := newHarness(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.svc.Shutdown(ctx))
	assert.True(t, h.store.closed)

	// A second shutdown has nothing left to close.
	assert.NoError(t, h.svc.Shutdown(ctx))
}
