package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/rovshanmuradov/fundly/internal/domain"
	"github.com/rovshanmuradov/fundly/internal/events"
	"github.com/rovshanmuradov/fundly/internal/storage/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type mockStorage struct {
	mock.Mock
}

func (m *mockStorage) SaveTrade(ctx context.Context, trade *models.Trade) error {
	return m.Called(ctx, trade).Error(0)
}

func (m *mockStorage) ListTrades(ctx context.Context, mint string, limit, offset int) ([]*models.Trade, error) {
	args := m.Called(ctx, mint, limit, offset)
	trades, _ := args.Get(0).([]*models.Trade)
	return trades, args.Error(1)
}

func (m *mockStorage) UpsertMigration(ctx context.Context, migration *models.Migration) error {
	return m.Called(ctx, migration).Error(0)
}

func (m *mockStorage) GetMigration(ctx context.Context, mint string) (*models.Migration, error) {
	args := m.Called(ctx, mint)
	if fn, ok := args.Get(0).(func(context.Context, string) (*models.Migration, error)); ok {
		return fn(ctx, mint)
	}
	migration, _ := args.Get(0).(*models.Migration)
	return migration, args.Error(1)
}

func (m *mockStorage) SaveFeeWithdrawal(ctx context.Context, withdrawal *models.FeeWithdrawal) error {
	return m.Called(ctx, withdrawal).Error(0)
}

func (m *mockStorage) SaveVestingClaim(ctx context.Context, claim *models.VestingClaim) error {
	return m.Called(ctx, claim).Error(0)
}

func (m *mockStorage) RunMigrations() error {
	return m.Called().Error(0)
}

func (m *mockStorage) Close() error {
	return m.Called().Error(0)
}

func TestIndexTrade(t *testing.T) {
	store := new(mockStorage)
	ix := NewIndexer(store, zaptest.NewLogger(t))

	ev := events.TradeExecutedEvent{
		BaseEvent:         events.NewBase(events.TradeExecuted),
		Side:              domain.SideBuy,
		Actor:             solana.NewWallet().PublicKey(),
		Mint:              solana.NewWallet().PublicKey(),
		SolAmount:         10_000_000_000,
		TokenAmount:       496_240_602,
		Fee:               100_000_000,
		RealSolReserves:   9_900_000_000,
		RealTokenReserves: 503_759_398,
	}
	store.On("SaveTrade", mock.Anything, mock.MatchedBy(func(tr *models.Trade) bool {
		return tr.EventID == ev.ID() &&
			tr.Mint == ev.Mint.String() &&
			tr.Actor == ev.Actor.String() &&
			tr.Side == "buy" &&
			tr.TokenAmount == 496_240_602 &&
			tr.Fee == 100_000_000 &&
			tr.ExecutedAt.Equal(ev.Timestamp())
	})).Return(nil).Once()

	require.NoError(t, ix.Handle(context.Background(), ev))
	store.AssertExpectations(t)
}

func TestIndexMigrationLifecycle(t *testing.T) {
	store := new(mockStorage)
	ix := NewIndexer(store, zaptest.NewLogger(t))
	ctx := context.Background()
	mint := solana.NewWallet().PublicKey()
	pool := solana.NewWallet().PublicKey()

	var row *models.Migration
	store.On("GetMigration", mock.Anything, mint.String()).Return(func(context.Context, string) (*models.Migration, error) {
		if row == nil {
			return nil, ErrNotFound
		}
		copied := *row
		return &copied, nil
	})
	store.On("UpsertMigration", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		row = args.Get(1).(*models.Migration)
	}).Return(nil)

	require.NoError(t, ix.Handle(ctx, events.MigrationThresholdReachedEvent{
		BaseEvent: events.NewBase(events.MigrationThresholdReached),
		Mint:      mint,
	}))
	require.NotNil(t, row)
	assert.Equal(t, "threshold_reached", row.Status)
	assert.NotNil(t, row.EligibleAt)

	require.NoError(t, ix.Handle(ctx, events.MigrationCompletedEvent{
		BaseEvent:      events.NewBase(events.MigrationCompleted),
		Mint:           mint,
		Pool:           solana.NewWallet().PublicKey(),
		SolMigrated:    83_100_000_000,
		TokensMigrated: 42,
		MigrationFee:   6_000_000_000,
	}))
	assert.Equal(t, "migrated", row.Status)
	assert.Equal(t, uint64(83_100_000_000), row.SolMigrated)

	require.NoError(t, ix.Handle(ctx, events.PoolCreatedEvent{BaseEvent: events.NewBase(events.PoolCreated), Mint: mint, Pool: pool}))
	assert.Equal(t, pool.String(), row.Pool)

	require.NoError(t, ix.Handle(ctx, events.LiquidityLockedEvent{BaseEvent: events.NewBase(events.LiquidityLocked), Mint: mint, Pool: pool, LpAmount: 600}))
	assert.Equal(t, "locked", row.Status)
	require.NotNil(t, row.LpBurned)
	assert.Equal(t, uint64(600), *row.LpBurned)
	assert.NotNil(t, row.LockedAt)

	// A late threshold signal does not roll the status back.
	require.NoError(t, ix.Handle(ctx, events.MigrationThresholdReachedEvent{BaseEvent: events.NewBase(events.MigrationThresholdReached), Mint: mint}))
	assert.Equal(t, "locked", row.Status)
}

func TestIndexFeesAndClaims(t *testing.T) {
	store := new(mockStorage)
	ix := NewIndexer(store, zaptest.NewLogger(t))
	ctx := context.Background()

	store.On("SaveFeeWithdrawal", mock.Anything, mock.MatchedBy(func(w *models.FeeWithdrawal) bool {
		return w.Amount == 900_000_000
	})).Return(nil).Once()
	store.On("SaveVestingClaim", mock.Anything, mock.MatchedBy(func(c *models.VestingClaim) bool {
		return c.Amount == 100 && c.TotalClaimed == 700
	})).Return(nil).Once()

	require.NoError(t, ix.Handle(ctx, events.FeesWithdrawnEvent{BaseEvent: events.NewBase(events.FeesWithdrawn), Amount: 900_000_000}))
	require.NoError(t, ix.Handle(ctx, events.VestingClaimedEvent{BaseEvent: events.NewBase(events.VestingClaimed), Amount: 100, TotalClaimed: 700}))
	store.AssertExpectations(t)
}

func TestIndexErrors(t *testing.T) {
	store := new(mockStorage)
	ix := NewIndexer(store, zaptest.NewLogger(t))
	ctx := context.Background()
	dbErr := errors.New("connection refused")

	store.On("SaveTrade", mock.Anything, mock.Anything).Return(dbErr).Once()
	err := ix.Handle(ctx, events.TradeExecutedEvent{BaseEvent: events.NewBase(events.TradeExecuted)})
	assert.ErrorIs(t, err, dbErr)

	store.On("GetMigration", mock.Anything, mock.Anything).Return(nil, dbErr).Once()
	err = ix.Handle(ctx, events.PoolCreatedEvent{BaseEvent: events.NewBase(events.PoolCreated)})
	assert.ErrorIs(t, err, dbErr)
	store.AssertNotCalled(t, "UpsertMigration", mock.Anything, mock.Anything)

	err = ix.Handle(ctx, events.PolicyClosedEvent{BaseEvent: events.NewBase(events.PolicyClosed)})
	assert.ErrorContains(t, err, "unexpected event")
}

func TestAttachSubscribesThroughBus(t *testing.T) {
	store := new(mockStorage)
	bus := events.NewBus(zaptest.NewLogger(t), 8)
	t.Cleanup(func() { _ = bus.Shutdown(context.Background()) })

	NewIndexer(store, zaptest.NewLogger(t)).Attach(bus)
	store.On("SaveVestingClaim", mock.Anything, mock.Anything).Return(nil).Once()

	require.NoError(t, bus.PublishSync(context.Background(), events.VestingClaimedEvent{BaseEvent: events.NewBase(events.VestingClaimed), Amount: 1}))
	store.AssertExpectations(t)
}
