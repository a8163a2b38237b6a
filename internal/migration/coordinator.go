// Package migration moves a curve that has crossed the migration threshold
// into an external liquidity pool and locks that liquidity for good.
//
// Per asset the coordinator walks NotEligible -> ThresholdReached ->
// Migrated -> Locked. Migration drains the curve once; pool creation and the
// LP burn are separate, caller-driven steps.
package migration

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rovshanmuradov/fundly/internal/curve"
	"github.com/rovshanmuradov/fundly/internal/dex"
	"github.com/rovshanmuradov/fundly/internal/domain"
	"github.com/rovshanmuradov/fundly/internal/events"
	"github.com/rovshanmuradov/fundly/internal/ledger"
	"github.com/rovshanmuradov/fundly/internal/locker"
	"github.com/rovshanmuradov/fundly/internal/policy"
	"go.uber.org/zap"
)

// Policies is the policy access the coordinator needs.
type Policies interface {
	policy.Source
	Authorize(authority solana.PublicKey) (policy.Policy, error)
}

// Curves is the part of the curve engine the coordinator drives.
type Curves interface {
	Curve(mint solana.PublicKey) (curve.Curve, error)
	Graduate(ctx context.Context, mint solana.PublicKey, plan func(curve.Curve) (curve.Graduation, error)) (curve.Graduated, error)
	RecordPool(mint, pool solana.PublicKey) error
}

// Subscriber delivers events to the coordinator.
type Subscriber interface {
	SubscribeFunc(eventType events.EventType, fn func(context.Context, events.Event) error) events.Subscription
}

// Coordinator owns migration records.
type Coordinator struct {
	mu       sync.RWMutex
	records  map[solana.PublicKey]*Record
	eligible map[solana.PublicKey]time.Time
	locks    *locker.Keyed[solana.PublicKey]

	policy Policies
	curves Curves
	ledger ledger.Ledger
	dex    dex.Integration
	events events.Publisher
	logger *zap.Logger
	now    func() time.Time
}

// NewCoordinator creates a migration coordinator.
func NewCoordinator(policies Policies, curves Curves, l ledger.Ledger, integration dex.Integration, publisher events.Publisher, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		records:  make(map[solana.PublicKey]*Record),
		eligible: make(map[solana.PublicKey]time.Time),
		locks:    locker.New[solana.PublicKey](),
		policy:   policies,
		curves:   curves,
		ledger:   l,
		dex:      integration,
		events:   publisher,
		logger:   logger.Named("migration"),
		now:      time.Now,
	}
}

// Watch marks assets eligible as threshold signals arrive.
func (c *Coordinator) Watch(bus Subscriber) events.Subscription {
	return bus.SubscribeFunc(events.MigrationThresholdReached, func(_ context.Context, e events.Event) error {
		signal, ok := e.(events.MigrationThresholdReachedEvent)
		if !ok {
			return fmt.Errorf("unexpected event %T", e)
		}
		c.markEligible(signal.Mint, signal.Timestamp())
		return nil
	})
}

func (c *Coordinator) markEligible(mint solana.PublicKey, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, migrated := c.records[mint]; migrated {
		return
	}
	if _, ok := c.eligible[mint]; ok {
		return
	}
	c.eligible[mint] = at

	c.logger.Info("Asset eligible for migration", zap.String("mint", mint.String()))
}

// Eligible lists assets that crossed the threshold and are not migrated yet,
// oldest signal first.
func (c *Coordinator) Eligible() []solana.PublicKey {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]solana.PublicKey, 0, len(c.eligible))
	for mint := range c.eligible {
		out = append(out, mint)
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := c.eligible[out[i]], c.eligible[out[j]]
		if ti.Equal(tj) {
			return out[i].String() < out[j].String()
		}
		return ti.Before(tj)
	})
	return out
}

// Status reports the migration phase of mint.
func (c *Coordinator) Status(mint solana.PublicKey) (Status, error) {
	c.mu.RLock()
	rec, migrated := c.records[mint]
	_, signalled := c.eligible[mint]
	var status Status
	if migrated {
		status = rec.Status
	}
	c.mu.RUnlock()

	if migrated {
		return status, nil
	}
	if signalled {
		return StatusThresholdReached, nil
	}

	p, err := c.policy.Snapshot()
	if err != nil {
		return StatusNotEligible, err
	}
	cv, err := c.curves.Curve(mint)
	if err != nil {
		return StatusNotEligible, err
	}
	if cv.Migrated {
		return StatusMigrated, nil
	}
	if cv.RealSolReserves >= p.MigrationThreshold {
		return StatusThresholdReached, nil
	}
	return StatusNotEligible, nil
}

// Record returns a copy of the migration record for mint.
func (c *Coordinator) Record(mint solana.PublicKey) (Record, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rec, ok := c.records[mint]
	if !ok {
		return Record{}, fmt.Errorf("asset %s: %w", mint, domain.ErrNotMigrated)
	}
	return *rec, nil
}

// Records returns every migration record, oldest first.
func (c *Coordinator) Records() []Record {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Record, 0, len(c.records))
	for _, rec := range c.records {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MigratedAt.Before(out[j].MigratedAt) })
	return out
}

func (c *Coordinator) store(rec *Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records[rec.Mint] = rec
	delete(c.eligible, rec.Mint)
}

// Migrate drains the curve of mint into migration custody: the migration fee
// goes to the treasury and the remaining SOL and every real token go to the
// migration vault. The curve is migrated and stops trading.
func (c *Coordinator) Migrate(ctx context.Context, authority, mint solana.PublicKey) (Record, error) {
	p, err := c.policy.Authorize(authority)
	if err != nil {
		return Record{}, err
	}

	unlock := c.locks.Lock(mint)
	defer unlock()

	if _, err := c.Record(mint); err == nil {
		return Record{}, fmt.Errorf("asset %s: %w", mint, domain.ErrAlreadyMigrated)
	}

	vault := ledger.MigrationVault(mint)
	if err := c.ledger.OpenCustody(ctx, vault, ledger.MigrationAuthority()); err != nil {
		return Record{}, fmt.Errorf("failed to open migration custody: %w", err)
	}

	g, err := c.curves.Graduate(ctx, mint, func(cv curve.Curve) (curve.Graduation, error) {
		if cv.RealSolReserves < p.MigrationThreshold {
			return curve.Graduation{}, fmt.Errorf("reserve %d below threshold %d: %w",
				cv.RealSolReserves, p.MigrationThreshold, domain.ErrThresholdNotReached)
		}
		if cv.RealSolReserves == 0 {
			return curve.Graduation{}, domain.ErrInsufficientSOL
		}
		if cv.RealTokenReserves == 0 {
			return curve.Graduation{}, domain.ErrInsufficientTokens
		}
		if cv.RealSolReserves <= p.MigrationFee {
			return curve.Graduation{}, fmt.Errorf("reserve %d does not cover migration fee %d: %w",
				cv.RealSolReserves, p.MigrationFee, domain.ErrInsufficientSOLForMigration)
		}
		return curve.Graduation{Treasury: p.Treasury, Fee: p.MigrationFee, Vault: vault}, nil
	})
	if err != nil {
		return Record{}, err
	}

	rec := &Record{
		Mint:          mint,
		Pool:          vault,
		Vault:         vault,
		SolMigrated:   g.SolMigrated,
		TokenMigrated: g.TokenMigrated,
		MigrationFee:  g.Fee,
		Status:        StatusMigrated,
		MigratedAt:    c.now().UTC(),
	}
	c.store(rec)

	c.logger.Info("Migration completed",
		zap.String("mint", mint.String()),
		zap.String("vault", vault.String()),
		zap.Uint64("sol_migrated", rec.SolMigrated),
		zap.Uint64("tokens_migrated", rec.TokenMigrated),
		zap.Uint64("migration_fee", rec.MigrationFee))

	events.Publish(c.events, c.logger, events.MigrationCompletedEvent{
		BaseEvent:      events.NewBase(events.MigrationCompleted),
		Mint:           mint,
		Pool:           vault,
		SolMigrated:    rec.SolMigrated,
		TokensMigrated: rec.TokenMigrated,
		MigrationFee:   rec.MigrationFee,
	})
	return *rec, nil
}

// WithdrawMigrationFunds moves SOL and tokens out of migration custody before
// the liquidity is locked. Every call is audited.
func (c *Coordinator) WithdrawMigrationFunds(ctx context.Context, authority, mint, recipient solana.PublicKey, solAmount, tokenAmount uint64) (Record, error) {
	if _, err := c.policy.Authorize(authority); err != nil {
		return Record{}, err
	}

	unlock := c.locks.Lock(mint)
	defer unlock()

	return c.withdraw(ctx, authority, mint, recipient, solAmount, tokenAmount)
}

func (c *Coordinator) withdraw(ctx context.Context, authority, mint, recipient solana.PublicKey, solAmount, tokenAmount uint64) (Record, error) {
	if solAmount == 0 && tokenAmount == 0 {
		return Record{}, domain.ErrInvalidAmount
	}
	rec, err := c.Record(mint)
	if err != nil {
		return Record{}, err
	}
	if rec.Status == StatusLocked {
		return Record{}, fmt.Errorf("asset %s: %w", mint, domain.ErrLiquidityLocked)
	}

	solHeld, err := c.ledger.Balance(ctx, rec.Vault, domain.SOL())
	if err != nil {
		return Record{}, err
	}
	if solHeld < solAmount {
		return Record{}, fmt.Errorf("migration vault holds %d lamports, requested %d: %w", solHeld, solAmount, domain.ErrInsufficientSOL)
	}
	tokenHeld, err := c.ledger.Balance(ctx, rec.Vault, domain.Token(mint))
	if err != nil {
		return Record{}, err
	}
	if tokenHeld < tokenAmount {
		return Record{}, fmt.Errorf("migration vault holds %d tokens, requested %d: %w", tokenHeld, tokenAmount, domain.ErrInsufficientTokens)
	}

	authorityKey := ledger.MigrationAuthority()
	if err := c.ledger.Transfer(ctx,
		ledger.Move{From: rec.Vault, To: recipient, Asset: domain.SOL(), Amount: solAmount, Authority: authorityKey},
		ledger.Move{From: rec.Vault, To: recipient, Asset: domain.Token(mint), Amount: tokenAmount, Authority: authorityKey},
	); err != nil {
		return Record{}, fmt.Errorf("migration withdrawal failed: %w", err)
	}

	c.mu.Lock()
	stored := c.records[mint]
	stored.SolWithdrawn += solAmount
	stored.TokenWithdrawn += tokenAmount
	rec = *stored
	c.mu.Unlock()

	c.logger.Warn("Migration funds withdrawn",
		zap.String("mint", mint.String()),
		zap.String("authority", authority.String()),
		zap.String("recipient", recipient.String()),
		zap.Uint64("sol_amount", solAmount),
		zap.Uint64("token_amount", tokenAmount))

	events.Publish(c.events, c.logger, events.MigrationFundsWithdrawnEvent{
		BaseEvent:   events.NewBase(events.MigrationFundsWithdrawn),
		Mint:        mint,
		Authority:   authority,
		Recipient:   recipient,
		SolAmount:   solAmount,
		TokenAmount: tokenAmount,
	})
	return rec, nil
}

// CreatePool hands everything left in migration custody to the DEX
// integration and records the pool it returns. LP tokens are issued back
// into migration custody, ready to be burned by LockLiquidity.
func (c *Coordinator) CreatePool(ctx context.Context, authority, mint solana.PublicKey) (Record, error) {
	if _, err := c.policy.Authorize(authority); err != nil {
		return Record{}, err
	}

	unlock := c.locks.Lock(mint)
	defer unlock()

	rec, err := c.Record(mint)
	if err != nil {
		return Record{}, err
	}
	if rec.Status == StatusLocked {
		return Record{}, fmt.Errorf("asset %s: %w", mint, domain.ErrLiquidityLocked)
	}
	if rec.PoolCreated() {
		return Record{}, fmt.Errorf("asset %s pool %s: %w", mint, rec.Pool, domain.ErrPoolExists)
	}

	solHeld, err := c.ledger.Balance(ctx, rec.Vault, domain.SOL())
	if err != nil {
		return Record{}, err
	}
	tokenHeld, err := c.ledger.Balance(ctx, rec.Vault, domain.Token(mint))
	if err != nil {
		return Record{}, err
	}

	if _, err := c.withdraw(ctx, authority, mint, c.dex.DepositAccount(), solHeld, tokenHeld); err != nil {
		return Record{}, err
	}

	pool, err := c.dex.CreatePool(ctx, dex.PoolRequest{
		Mint:        mint,
		SolAmount:   solHeld,
		TokenAmount: tokenHeld,
		LPRecipient: rec.Vault,
	})
	if err != nil {
		c.logger.Error("Pool creation failed after funds left migration custody",
			zap.String("mint", mint.String()),
			zap.String("integration", c.dex.Name()),
			zap.Uint64("sol_amount", solHeld),
			zap.Uint64("token_amount", tokenHeld),
			zap.Error(err))
		return Record{}, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := c.curves.RecordPool(mint, pool); err != nil {
		return Record{}, err
	}

	c.mu.Lock()
	stored := c.records[mint]
	stored.Pool = pool
	rec = *stored
	c.mu.Unlock()

	c.logger.Info("Pool created",
		zap.String("mint", mint.String()),
		zap.String("pool", pool.String()),
		zap.String("integration", c.dex.Name()))

	events.Publish(c.events, c.logger, events.PoolCreatedEvent{
		BaseEvent:   events.NewBase(events.PoolCreated),
		Mint:        mint,
		Pool:        pool,
		SolAmount:   solHeld,
		TokenAmount: tokenHeld,
	})
	return rec, nil
}

// LockLiquidity burns lpAmount LP tokens of the asset's pool from migration
// custody. It succeeds once per asset.
func (c *Coordinator) LockLiquidity(ctx context.Context, authority, mint solana.PublicKey, lpAmount uint64) (Record, error) {
	if lpAmount == 0 {
		return Record{}, domain.ErrInvalidAmount
	}
	if _, err := c.policy.Authorize(authority); err != nil {
		return Record{}, err
	}

	unlock := c.locks.Lock(mint)
	defer unlock()

	rec, err := c.Record(mint)
	if err != nil {
		return Record{}, err
	}
	if rec.LpBurned != nil {
		return Record{}, fmt.Errorf("asset %s: %w", mint, domain.ErrLpAlreadyBurned)
	}

	if err := c.ledger.Transfer(ctx, ledger.Move{
		From:      rec.Vault,
		To:        ledger.BurnAddress,
		Asset:     domain.LP(rec.Pool),
		Amount:    lpAmount,
		Authority: ledger.MigrationAuthority(),
	}); err != nil {
		return Record{}, fmt.Errorf("lp burn failed: %w", err)
	}

	burned := lpAmount
	c.mu.Lock()
	stored := c.records[mint]
	stored.LpBurned = &burned
	stored.Status = StatusLocked
	stored.LockedAt = c.now().UTC()
	rec = *stored
	c.mu.Unlock()

	c.logger.Info("Liquidity locked",
		zap.String("mint", mint.String()),
		zap.String("pool", rec.Pool.String()),
		zap.Uint64("lp_burned", lpAmount))

	events.Publish(c.events, c.logger, events.LiquidityLockedEvent{
		BaseEvent: events.NewBase(events.LiquidityLocked),
		Mint:      mint,
		Pool:      rec.Pool,
		LpAmount:  lpAmount,
	})
	return rec, nil
}

// LockReportedLiquidity burns the LP amount the DEX integration reports for
// the asset's pool.
func (c *Coordinator) LockReportedLiquidity(ctx context.Context, authority, mint solana.PublicKey) (Record, error) {
	rec, err := c.Record(mint)
	if err != nil {
		return Record{}, err
	}
	if rec.LpBurned != nil {
		return Record{}, fmt.Errorf("asset %s: %w", mint, domain.ErrLpAlreadyBurned)
	}
	if !rec.PoolCreated() {
		return Record{}, fmt.Errorf("asset %s has no pool yet: %w", mint, dex.ErrUnknownPool)
	}

	lp, err := c.dex.ReportLPReceipt(ctx, rec.Pool)
	if err != nil {
		return Record{}, fmt.Errorf("failed to read lp receipt: %w", err)
	}
	return c.LockLiquidity(ctx, authority, mint, lp)
}
