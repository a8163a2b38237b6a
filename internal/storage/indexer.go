package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rovshanmuradov/fundly/internal/events"
	"github.com/rovshanmuradov/fundly/internal/migration"
	"github.com/rovshanmuradov/fundly/internal/storage/models"
	"go.uber.org/zap"
)

// Subscriber is the part of the event bus the indexer listens on.
type Subscriber interface {
	SubscribeFunc(eventType events.EventType, fn func(context.Context, events.Event) error) events.Subscription
}

// Indexer persists launchpad events. Storage failures are returned to the
// bus, which logs them; engine state is never affected.
type Indexer struct {
	store  Storage
	logger *zap.Logger
}

func NewIndexer(store Storage, logger *zap.Logger) *Indexer {
	return &Indexer{store: store, logger: logger.Named("indexer")}
}

// Attach subscribes the indexer to every event it persists.
func (ix *Indexer) Attach(bus Subscriber) []events.Subscription {
	types := []events.EventType{
		events.TradeExecuted,
		events.MigrationThresholdReached,
		events.MigrationCompleted,
		events.PoolCreated,
		events.LiquidityLocked,
		events.FeesWithdrawn,
		events.VestingClaimed,
	}
	subs := make([]events.Subscription, 0, len(types))
	for _, t := range types {
		subs = append(subs, bus.SubscribeFunc(t, ix.Handle))
	}
	return subs
}

// Handle persists one event.
func (ix *Indexer) Handle(ctx context.Context, e events.Event) error {
	var err error
	switch ev := e.(type) {
	case events.TradeExecutedEvent:
		err = ix.store.SaveTrade(ctx, &models.Trade{
			EventID:           ev.ID(),
			Mint:              ev.Mint.String(),
			Actor:             ev.Actor.String(),
			Side:              string(ev.Side),
			SolAmount:         ev.SolAmount,
			TokenAmount:       ev.TokenAmount,
			Fee:               ev.Fee,
			RealSolReserves:   ev.RealSolReserves,
			RealTokenReserves: ev.RealTokenReserves,
			ExecutedAt:        ev.Timestamp(),
		})
	case events.MigrationThresholdReachedEvent:
		err = ix.updateMigration(ctx, ev.Mint.String(), func(m *models.Migration) {
			if m.Status != "" {
				return
			}
			at := ev.Timestamp()
			m.Status = migration.StatusThresholdReached.String()
			m.EligibleAt = &at
		})
	case events.MigrationCompletedEvent:
		err = ix.updateMigration(ctx, ev.Mint.String(), func(m *models.Migration) {
			at := ev.Timestamp()
			m.Status = migration.StatusMigrated.String()
			m.Pool = ev.Pool.String()
			m.SolMigrated = ev.SolMigrated
			m.TokenMigrated = ev.TokensMigrated
			m.MigrationFee = ev.MigrationFee
			m.MigratedAt = &at
		})
	case events.PoolCreatedEvent:
		err = ix.updateMigration(ctx, ev.Mint.String(), func(m *models.Migration) {
			m.Pool = ev.Pool.String()
		})
	case events.LiquidityLockedEvent:
		err = ix.updateMigration(ctx, ev.Mint.String(), func(m *models.Migration) {
			at := ev.Timestamp()
			lp := ev.LpAmount
			m.Status = migration.StatusLocked.String()
			m.LpBurned = &lp
			m.LockedAt = &at
		})
	case events.FeesWithdrawnEvent:
		err = ix.store.SaveFeeWithdrawal(ctx, &models.FeeWithdrawal{
			EventID:     ev.ID(),
			Mint:        ev.Mint.String(),
			Authority:   ev.Authority.String(),
			Treasury:    ev.Treasury.String(),
			Amount:      ev.Amount,
			WithdrawnAt: ev.Timestamp(),
		})
	case events.VestingClaimedEvent:
		err = ix.store.SaveVestingClaim(ctx, &models.VestingClaim{
			EventID:      ev.ID(),
			Beneficiary:  ev.Beneficiary.String(),
			Mint:         ev.Mint.String(),
			Amount:       ev.Amount,
			TotalClaimed: ev.TotalClaimed,
			ClaimedAt:    ev.Timestamp(),
		})
	default:
		return fmt.Errorf("indexer: unexpected event %T", e)
	}

	if err != nil {
		return fmt.Errorf("index %s %s: %w", e.Type(), e.ID(), err)
	}
	ix.logger.Debug("Event indexed",
		zap.String("event_type", string(e.Type())),
		zap.String("event_id", e.ID()))
	return nil
}

// updateMigration applies mutate to the stored row for mint, creating it when
// absent. The bus delivers events one at a time, so read-modify-write is safe.
func (ix *Indexer) updateMigration(ctx context.Context, mint string, mutate func(*models.Migration)) error {
	m, err := ix.store.GetMigration(ctx, mint)
	switch {
	case errors.Is(err, ErrNotFound):
		m = &models.Migration{Mint: mint}
	case err != nil:
		return err
	}

	mutate(m)
	if m.Status == "" {
		m.Status = migration.StatusNotEligible.String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	m.UpdatedAt = time.Now().UTC()
	return ix.store.UpsertMigration(ctx, m)
}
