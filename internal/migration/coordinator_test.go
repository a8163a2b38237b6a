package migration

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rovshanmuradov/fundly/internal/curve"
	"github.com/rovshanmuradov/fundly/internal/dex"
	"github.com/rovshanmuradov/fundly/internal/domain"
	"github.com/rovshanmuradov/fundly/internal/events"
	"github.com/rovshanmuradov/fundly/internal/ledger"
	"github.com/rovshanmuradov/fundly/internal/policy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"
)

const sol = domain.LamportsPerSOL

type fixture struct {
	coordinator *Coordinator
	curves      *curve.Engine
	ledger      *ledger.Memory
	dex         *dex.Memory
	events      *events.Recorder
	policy      policy.Policy
	mint        solana.PublicKey
}

func newFixture(t *testing.T, mutate func(*policy.Policy)) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	p := policy.Policy{
		Authority:            solana.NewWallet().PublicKey(),
		Treasury:             solana.NewWallet().PublicKey(),
		VirtualSolReserves:   200 * sol,
		VirtualTokenReserves: 600_000_000_000_000,
		InitialTokenSupply:   1_000_000_000_000_000,
		FeeBasisPoints:       100,
		MigrationThreshold:   85 * sol,
		MigrationFee:         domain.DefaultMigrationFee,
	}
	if mutate != nil {
		mutate(&p)
	}

	l := ledger.NewMemory(logger)
	rec := &events.Recorder{}
	store := policy.NewStore(l, rec, logger)
	require.NoError(t, store.Initialize(ctx, p))
	curves := curve.NewEngine(store, l, rec, logger)
	integration := dex.NewMemory(l, p.DexProgram, logger)

	mint := solana.NewWallet().PublicKey()
	creator := solana.NewWallet().PublicKey()
	require.NoError(t, l.Deposit(creator, domain.Token(mint), p.InitialTokenSupply))
	_, err := curves.Initialize(ctx, mint, creator, p.InitialTokenSupply)
	require.NoError(t, err)

	return &fixture{
		coordinator: NewCoordinator(store, curves, l, integration, rec, logger),
		curves:      curves,
		ledger:      l,
		dex:         integration,
		events:      rec,
		policy:      p,
		mint:        mint,
	}
}

func (f *fixture) buy(t *testing.T, lamports uint64) curve.TradeResult {
	t.Helper()
	buyer := solana.NewWallet().PublicKey()
	require.NoError(t, f.ledger.Deposit(buyer, domain.SOL(), lamports))
	res, err := f.curves.Buy(context.Background(), f.mint, buyer, lamports, 0)
	require.NoError(t, err)
	return res
}

func (f *fixture) balance(t *testing.T, account solana.PublicKey, asset domain.Asset) uint64 {
	t.Helper()
	v, err := f.ledger.Balance(context.Background(), account, asset)
	require.NoError(t, err)
	return v
}

func TestMigrateBeforeThreshold(t *testing.T) {
	f := newFixture(t, nil)
	f.buy(t, 10*sol)

	_, err := f.coordinator.Migrate(context.Background(), f.policy.Authority, f.mint)
	assert.ErrorIs(t, err, domain.ErrThresholdNotReached)
	assert.True(t, domain.Retryable(err))

	status, err := f.coordinator.Status(f.mint)
	require.NoError(t, err)
	assert.Equal(t, StatusNotEligible, status)
}

func TestMigrateRequiresAuthority(t *testing.T) {
	f := newFixture(t, nil)
	f.buy(t, 90*sol)

	_, err := f.coordinator.Migrate(context.Background(), f.policy.Treasury, f.mint)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestMigrate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	bought := f.buy(t, 90*sol)
	treasuryBefore := f.balance(t, f.policy.Treasury, domain.SOL())

	status, err := f.coordinator.Status(f.mint)
	require.NoError(t, err)
	assert.Equal(t, StatusThresholdReached, status)

	rec, err := f.coordinator.Migrate(ctx, f.policy.Authority, f.mint)
	require.NoError(t, err)

	vault := ledger.MigrationVault(f.mint)
	assert.Equal(t, vault, rec.Vault)
	assert.Equal(t, vault, rec.Pool, "pool points at the vault until the dex pool exists")
	assert.Equal(t, bought.Curve.RealSolReserves-domain.DefaultMigrationFee, rec.SolMigrated)
	assert.Equal(t, bought.Curve.RealTokenReserves, rec.TokenMigrated)
	assert.Equal(t, uint64(domain.DefaultMigrationFee), rec.MigrationFee)
	assert.Nil(t, rec.LpBurned)
	assert.Equal(t, StatusMigrated, rec.Status)

	assert.Equal(t, treasuryBefore+domain.DefaultMigrationFee, f.balance(t, f.policy.Treasury, domain.SOL()))
	assert.Equal(t, rec.SolMigrated, f.balance(t, vault, domain.SOL()))
	assert.Equal(t, rec.TokenMigrated, f.balance(t, vault, domain.Token(f.mint)))
	assert.Zero(t, f.balance(t, ledger.CurveSolVault(f.mint), domain.SOL()))
	assert.Zero(t, f.balance(t, ledger.CurveTokenVault(f.mint), domain.Token(f.mint)))

	c, err := f.curves.Curve(f.mint)
	require.NoError(t, err)
	assert.True(t, c.Migrated)
	assert.Zero(t, c.RealSolReserves)
	assert.Zero(t, c.RealTokenReserves)
	assert.Equal(t, vault, c.Pool)

	completed := f.events.OfType(events.MigrationCompleted)
	require.Len(t, completed, 1)
	ev := completed[0].(events.MigrationCompletedEvent)
	assert.Equal(t, rec.SolMigrated, ev.SolMigrated)
	assert.Equal(t, rec.TokenMigrated, ev.TokensMigrated)
	assert.Equal(t, rec.MigrationFee, ev.MigrationFee)

	// Terminal for trading and for migration, whatever the reserves hold now.
	require.NoError(t, f.ledger.Deposit(ledger.CurveSolVault(f.mint), domain.SOL(), 100*sol))
	_, err = f.coordinator.Migrate(ctx, f.policy.Authority, f.mint)
	assert.ErrorIs(t, err, domain.ErrAlreadyMigrated)

	buyer := solana.NewWallet().PublicKey()
	require.NoError(t, f.ledger.Deposit(buyer, domain.SOL(), sol))
	_, err = f.curves.Buy(ctx, f.mint, buyer, sol, 0)
	assert.ErrorIs(t, err, domain.ErrAlreadyMigrated)
}

func TestMigrateReserveChecks(t *testing.T) {
	ctx := context.Background()

	t.Run("fee not covered", func(t *testing.T) {
		f := newFixture(t, func(p *policy.Policy) { p.MigrationThreshold = sol })
		bought := f.buy(t, 3*sol)

		_, err := f.coordinator.Migrate(ctx, f.policy.Authority, f.mint)
		assert.ErrorIs(t, err, domain.ErrInsufficientSOLForMigration)

		c, err := f.curves.Curve(f.mint)
		require.NoError(t, err)
		assert.Equal(t, bought.Curve, c)
		_, err = f.coordinator.Record(f.mint)
		assert.ErrorIs(t, err, domain.ErrNotMigrated)
	})

	t.Run("no sol", func(t *testing.T) {
		f := newFixture(t, func(p *policy.Policy) { p.MigrationThreshold = 0 })

		_, err := f.coordinator.Migrate(ctx, f.policy.Authority, f.mint)
		assert.ErrorIs(t, err, domain.ErrInsufficientSOL)
	})
}

func TestConcurrentMigrateSucceedsOnce(t *testing.T) {
	f := newFixture(t, nil)
	f.buy(t, 90*sol)

	var succeeded, rejected atomic.Int32
	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			_, err := f.coordinator.Migrate(ctx, f.policy.Authority, f.mint)
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, domain.ErrAlreadyMigrated):
				rejected.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(1), succeeded.Load())
	assert.Equal(t, int32(7), rejected.Load())
	assert.Len(t, f.events.OfType(events.MigrationCompleted), 1)
}

func TestPoolCreationAndLock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.buy(t, 90*sol)

	_, err := f.coordinator.LockLiquidity(ctx, f.policy.Authority, f.mint, 1)
	assert.ErrorIs(t, err, domain.ErrNotMigrated)
	_, err = f.coordinator.CreatePool(ctx, f.policy.Authority, f.mint)
	assert.ErrorIs(t, err, domain.ErrNotMigrated)

	migrated, err := f.coordinator.Migrate(ctx, f.policy.Authority, f.mint)
	require.NoError(t, err)

	_, err = f.coordinator.LockReportedLiquidity(ctx, f.policy.Authority, f.mint)
	assert.ErrorIs(t, err, dex.ErrUnknownPool)

	rec, err := f.coordinator.CreatePool(ctx, f.policy.Authority, f.mint)
	require.NoError(t, err)
	assert.True(t, rec.PoolCreated())
	assert.Equal(t, migrated.SolMigrated, rec.SolWithdrawn)
	assert.Equal(t, migrated.TokenMigrated, rec.TokenWithdrawn)

	info, err := f.dex.Pool(rec.Pool)
	require.NoError(t, err)
	assert.Equal(t, migrated.SolMigrated, info.SolAmount)
	assert.Equal(t, migrated.TokenMigrated, info.TokenAmount)
	assert.Equal(t, rec.Vault, info.LPRecipient)
	assert.Equal(t, info.LPSupply, f.balance(t, rec.Vault, domain.LP(rec.Pool)))

	c, err := f.curves.Curve(f.mint)
	require.NoError(t, err)
	assert.Equal(t, rec.Pool, c.Pool)

	_, err = f.coordinator.CreatePool(ctx, f.policy.Authority, f.mint)
	assert.ErrorIs(t, err, domain.ErrPoolExists)

	_, err = f.coordinator.LockLiquidity(ctx, f.policy.Authority, f.mint, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	locked, err := f.coordinator.LockReportedLiquidity(ctx, f.policy.Authority, f.mint)
	require.NoError(t, err)
	require.NotNil(t, locked.LpBurned)
	assert.Equal(t, info.LPSupply, *locked.LpBurned)
	assert.Equal(t, StatusLocked, locked.Status)
	assert.False(t, locked.LockedAt.IsZero())
	assert.Equal(t, info.LPSupply, f.ledger.Burned(domain.LP(rec.Pool)))
	assert.Zero(t, f.balance(t, rec.Vault, domain.LP(rec.Pool)))

	_, err = f.coordinator.LockLiquidity(ctx, f.policy.Authority, f.mint, 1)
	assert.ErrorIs(t, err, domain.ErrLpAlreadyBurned)
	_, err = f.coordinator.LockReportedLiquidity(ctx, f.policy.Authority, f.mint)
	assert.ErrorIs(t, err, domain.ErrLpAlreadyBurned)
	_, err = f.coordinator.WithdrawMigrationFunds(ctx, f.policy.Authority, f.mint, f.policy.Authority, 1, 0)
	assert.ErrorIs(t, err, domain.ErrLiquidityLocked)

	status, err := f.coordinator.Status(f.mint)
	require.NoError(t, err)
	assert.Equal(t, StatusLocked, status)

	assert.Len(t, f.events.OfType(events.PoolCreated), 1)
	locks := f.events.OfType(events.LiquidityLocked)
	require.Len(t, locks, 1)
	assert.Equal(t, info.LPSupply, locks[0].(events.LiquidityLockedEvent).LpAmount)
}

func TestWithdrawMigrationFunds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	recipient := solana.NewWallet().PublicKey()

	_, err := f.coordinator.WithdrawMigrationFunds(ctx, f.policy.Authority, f.mint, recipient, 1, 1)
	assert.ErrorIs(t, err, domain.ErrNotMigrated)

	f.buy(t, 90*sol)
	migrated, err := f.coordinator.Migrate(ctx, f.policy.Authority, f.mint)
	require.NoError(t, err)

	_, err = f.coordinator.WithdrawMigrationFunds(ctx, f.policy.Treasury, f.mint, recipient, 1, 1)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = f.coordinator.WithdrawMigrationFunds(ctx, f.policy.Authority, f.mint, recipient, 0, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	_, err = f.coordinator.WithdrawMigrationFunds(ctx, f.policy.Authority, f.mint, recipient, migrated.SolMigrated+1, 0)
	assert.ErrorIs(t, err, domain.ErrInsufficientSOL)
	_, err = f.coordinator.WithdrawMigrationFunds(ctx, f.policy.Authority, f.mint, recipient, 0, migrated.TokenMigrated+1)
	assert.ErrorIs(t, err, domain.ErrInsufficientTokens)

	rec, err := f.coordinator.WithdrawMigrationFunds(ctx, f.policy.Authority, f.mint, recipient, 2*sol, 1_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(2*sol), rec.SolWithdrawn)
	assert.Equal(t, uint64(1_000), rec.TokenWithdrawn)
	assert.Equal(t, uint64(2*sol), f.balance(t, recipient, domain.SOL()))
	assert.Equal(t, uint64(1_000), f.balance(t, recipient, domain.Token(f.mint)))
	assert.Equal(t, migrated.SolMigrated-2*sol, f.balance(t, rec.Vault, domain.SOL()))

	audits := f.events.OfType(events.MigrationFundsWithdrawn)
	require.Len(t, audits, 1)
	audit := audits[0].(events.MigrationFundsWithdrawnEvent)
	assert.Equal(t, recipient, audit.Recipient)
	assert.Equal(t, f.policy.Authority, audit.Authority)
	assert.Equal(t, uint64(2*sol), audit.SolAmount)
	assert.Equal(t, uint64(1_000), audit.TokenAmount)
}

func TestWatchMarksEligible(t *testing.T) {
	f := newFixture(t, nil)
	bus := events.NewBus(zaptest.NewLogger(t), 16)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = bus.Shutdown(ctx)
	})

	sub := f.coordinator.Watch(bus)
	defer sub.Unsubscribe()

	other := solana.NewWallet().PublicKey()
	require.NoError(t, bus.Publish(events.MigrationThresholdReachedEvent{
		BaseEvent: events.NewBase(events.MigrationThresholdReached),
		Mint:      other,
	}))

	require.Eventually(t, func() bool {
		return len(f.coordinator.Eligible()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []solana.PublicKey{other}, f.coordinator.Eligible())

	status, err := f.coordinator.Status(other)
	require.NoError(t, err)
	assert.Equal(t, StatusThresholdReached, status)
}

func TestEligibleClearedByMigration(t *testing.T) {
	f := newFixture(t, nil)
	f.buy(t, 90*sol)

	signals := f.events.OfType(events.MigrationThresholdReached)
	require.Len(t, signals, 1)
	f.coordinator.markEligible(f.mint, signals[0].Timestamp())
	assert.Equal(t, []solana.PublicKey{f.mint}, f.coordinator.Eligible())

	_, err := f.coordinator.Migrate(context.Background(), f.policy.Authority, f.mint)
	require.NoError(t, err)
	assert.Empty(t, f.coordinator.Eligible())

	f.coordinator.markEligible(f.mint, time.Now())
	assert.Empty(t, f.coordinator.Eligible(), "late signals are ignored")
	assert.Len(t, f.coordinator.Records(), 1)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "not_eligible", StatusNotEligible.String())
	assert.Equal(t, "threshold_reached", StatusThresholdReached.String())
	assert.Equal(t, "migrated", StatusMigrated.String())
	assert.Equal(t, "locked", StatusLocked.String())
}
