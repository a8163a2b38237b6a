// internal/events/types.go
package events

import (
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/rovshanmuradov/fundly/internal/domain"
)

// EventType represents the type of event.
type EventType string

const (
	// Curve events
	CurveInitialized          EventType = "curve.initialized"
	TradeExecuted             EventType = "curve.trade_executed"
	MigrationThresholdReached EventType = "curve.migration_threshold_reached"

	// Migration events
	MigrationCompleted      EventType = "migration.completed"
	MigrationFundsWithdrawn EventType = "migration.funds_withdrawn"
	PoolCreated             EventType = "migration.pool_created"
	LiquidityLocked         EventType = "migration.liquidity_locked"

	// Fee events
	FeesWithdrawn EventType = "fees.withdrawn"

	// Vesting events
	VestingScheduleCreated EventType = "vesting.schedule_created"
	VestingClaimed         EventType = "vesting.claimed"

	// Admin events
	PolicyUpdated EventType = "policy.updated"
	PolicyClosed  EventType = "policy.closed"
)

// Event is the base interface for all events.
type Event interface {
	ID() string
	Type() EventType
	Timestamp() time.Time
}

// Publisher accepts events for delivery. Engines publish after their state
// change has been applied; a publish failure never rolls the change back.
type Publisher interface {
	Publish(event Event) error
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	EventID   string
	EventType EventType
	EventTime time.Time
}

// NewBase stamps a new event of the given type.
func NewBase(eventType EventType) BaseEvent {
	return BaseEvent{
		EventID:   uuid.NewString(),
		EventType: eventType,
		EventTime: time.Now().UTC(),
	}
}

// ID returns the unique event identifier.
func (e BaseEvent) ID() string {
	return e.EventID
}

// Type returns the event type.
func (e BaseEvent) Type() EventType {
	return e.EventType
}

// Timestamp returns when the event occurred.
func (e BaseEvent) Timestamp() time.Time {
	return e.EventTime
}

// CurveInitializedEvent is emitted when an asset's supply enters curve custody.
type CurveInitializedEvent struct {
	BaseEvent
	Mint                 solana.PublicKey
	Creator              solana.PublicKey
	VirtualSolReserves   uint64
	VirtualTokenReserves uint64
	TokenSupply          uint64
}

// TradeExecutedEvent is emitted for every buy or sell against a curve.
type TradeExecutedEvent struct {
	BaseEvent
	Side              domain.Side
	Actor             solana.PublicKey
	Mint              solana.PublicKey
	SolAmount         uint64 // sol_in on buy, sol_out on sell
	TokenAmount       uint64 // tokens_out on buy, token_in on sell
	Fee               uint64
	RealSolReserves   uint64
	RealTokenReserves uint64
}

// MigrationThresholdReachedEvent is emitted by a buy that leaves the curve's
// real SOL at or above the migration threshold.
type MigrationThresholdReachedEvent struct {
	BaseEvent
	Mint          solana.PublicKey
	SolReserves   uint64
	TokenReserves uint64
}

// MigrationCompletedEvent is emitted once per asset when the curve is drained.
type MigrationCompletedEvent struct {
	BaseEvent
	Mint           solana.PublicKey
	Pool           solana.PublicKey
	SolMigrated    uint64
	TokensMigrated uint64
	MigrationFee   uint64
}

// MigrationFundsWithdrawnEvent audits every movement out of migration custody.
type MigrationFundsWithdrawnEvent struct {
	BaseEvent
	Mint        solana.PublicKey
	Authority   solana.PublicKey
	Recipient   solana.PublicKey
	SolAmount   uint64
	TokenAmount uint64
}

// PoolCreatedEvent is emitted when the DEX integration reports a new pool.
type PoolCreatedEvent struct {
	BaseEvent
	Mint        solana.PublicKey
	Pool        solana.PublicKey
	SolAmount   uint64
	TokenAmount uint64
}

// LiquidityLockedEvent is emitted when LP tokens are burned.
type LiquidityLockedEvent struct {
	BaseEvent
	Mint     solana.PublicKey
	Pool     solana.PublicKey
	LpAmount uint64
}

// FeesWithdrawnEvent is emitted when accrued platform fees leave a curve vault.
type FeesWithdrawnEvent struct {
	BaseEvent
	Mint      solana.PublicKey
	Authority solana.PublicKey
	Treasury  solana.PublicKey
	Amount    uint64
}

// VestingScheduleCreatedEvent is emitted when an allocation is locked in escrow.
type VestingScheduleCreatedEvent struct {
	BaseEvent
	Beneficiary solana.PublicKey
	Mint        solana.PublicKey
	TotalAmount uint64
	StartTime   time.Time
	CliffTime   time.Time
	EndTime     time.Time
}

// VestingClaimedEvent is emitted for every successful claim.
type VestingClaimedEvent struct {
	BaseEvent
	Beneficiary  solana.PublicKey
	Mint         solana.PublicKey
	Amount       uint64
	TotalClaimed uint64
}

// PolicyUpdatedEvent is emitted when the admin changes the global policy.
type PolicyUpdatedEvent struct {
	BaseEvent
	Authority solana.PublicKey
	Fields    []string
}

// PolicyClosedEvent is emitted when the admin closes the global policy.
type PolicyClosedEvent struct {
	BaseEvent
	Authority solana.PublicKey
	Refunded  uint64
}
