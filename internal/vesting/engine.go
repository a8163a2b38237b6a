package vesting

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rovshanmuradov/fundly/internal/domain"
	"github.com/rovshanmuradov/fundly/internal/events"
	"github.com/rovshanmuradov/fundly/internal/ledger"
	"github.com/rovshanmuradov/fundly/internal/locker"
	"go.uber.org/zap"
)

// Params describes a schedule to create.
type Params struct {
	Beneficiary solana.PublicKey
	Mint        solana.PublicKey
	// Funder supplies the tokens; the beneficiary when zero.
	Funder          solana.PublicKey
	TotalAmount     uint64
	StartTime       time.Time
	CliffDuration   time.Duration
	VestingDuration time.Duration
	ReleaseInterval time.Duration
}

// Validate checks the schedule parameters.
func (p Params) Validate() error {
	if p.TotalAmount == 0 {
		return domain.ErrInvalidAmount
	}
	if p.VestingDuration <= 0 {
		return fmt.Errorf("vesting duration %s: %w", p.VestingDuration, domain.ErrInvalidVestingDuration)
	}
	// A negative cliff would open the schedule before StartTime.
	if p.CliffDuration < 0 || p.CliffDuration >= p.VestingDuration {
		return fmt.Errorf("cliff %s with duration %s: %w", p.CliffDuration, p.VestingDuration, domain.ErrInvalidCliffDuration)
	}
	return nil
}

type key struct {
	beneficiary solana.PublicKey
	mint        solana.PublicKey
}

// Engine owns vesting schedules, one per (beneficiary, mint). Operations on
// one schedule are serialised.
type Engine struct {
	mu        sync.RWMutex
	schedules map[key]*Schedule
	locks     *locker.Keyed[key]

	ledger ledger.Ledger
	events events.Publisher
	logger *zap.Logger
}

// NewEngine creates a vesting engine.
func NewEngine(l ledger.Ledger, publisher events.Publisher, logger *zap.Logger) *Engine {
	return &Engine{
		schedules: make(map[key]*Schedule),
		locks:     locker.New[key](),
		ledger:    l,
		events:    publisher,
		logger:    logger.Named("vesting"),
	}
}

// CreateSchedule locks p.TotalAmount in the schedule's escrow.
func (e *Engine) CreateSchedule(ctx context.Context, p Params) (Schedule, error) {
	if err := p.Validate(); err != nil {
		return Schedule{}, err
	}
	funder := p.Funder
	if funder.IsZero() {
		funder = p.Beneficiary
	}

	k := key{beneficiary: p.Beneficiary, mint: p.Mint}
	unlock := e.locks.Lock(k)
	defer unlock()

	if _, err := e.Schedule(p.Beneficiary, p.Mint); err == nil {
		return Schedule{}, fmt.Errorf("schedule for %s on %s: %w", p.Beneficiary, p.Mint, domain.ErrScheduleExists)
	}

	escrow := ledger.VestingEscrow(p.Mint, p.Beneficiary)
	if err := e.ledger.OpenCustody(ctx, escrow, ledger.VestingAuthority(p.Mint, p.Beneficiary)); err != nil {
		return Schedule{}, fmt.Errorf("failed to open vesting escrow: %w", err)
	}
	if err := e.ledger.Transfer(ctx, ledger.Move{
		From:      funder,
		To:        escrow,
		Asset:     domain.Token(p.Mint),
		Amount:    p.TotalAmount,
		Authority: funder,
	}); err != nil {
		return Schedule{}, fmt.Errorf("failed to fund vesting escrow: %w", err)
	}

	start := p.StartTime.UTC()
	s := &Schedule{
		Beneficiary:     p.Beneficiary,
		Mint:            p.Mint,
		TotalAmount:     p.TotalAmount,
		StartTime:       start,
		CliffTime:       start.Add(p.CliffDuration),
		EndTime:         start.Add(p.VestingDuration),
		ReleaseInterval: p.ReleaseInterval,
		LastClaimTime:   start,
	}

	e.mu.Lock()
	e.schedules[k] = s
	e.mu.Unlock()

	e.logger.Info("Vesting schedule created",
		zap.String("beneficiary", p.Beneficiary.String()),
		zap.String("mint", p.Mint.String()),
		zap.Uint64("total_amount", p.TotalAmount),
		zap.Time("cliff_time", s.CliffTime),
		zap.Time("end_time", s.EndTime))

	events.Publish(e.events, e.logger, events.VestingScheduleCreatedEvent{
		BaseEvent:   events.NewBase(events.VestingScheduleCreated),
		Beneficiary: s.Beneficiary,
		Mint:        s.Mint,
		TotalAmount: s.TotalAmount,
		StartTime:   s.StartTime,
		CliffTime:   s.CliffTime,
		EndTime:     s.EndTime,
	})
	return *s, nil
}

// Schedule returns a copy of the schedule for (beneficiary, mint).
func (e *Engine) Schedule(beneficiary, mint solana.PublicKey) (Schedule, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s, ok := e.schedules[key{beneficiary: beneficiary, mint: mint}]
	if !ok {
		return Schedule{}, fmt.Errorf("schedule for %s on %s: %w", beneficiary, mint, domain.ErrScheduleNotFound)
	}
	return *s, nil
}

// Schedules returns every schedule ordered by start time.
func (e *Engine) Schedules() []Schedule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Schedule, 0, len(e.schedules))
	for _, s := range e.schedules {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

// UnlockedAmount evaluates the schedule for (beneficiary, mint) at now.
func (e *Engine) UnlockedAmount(beneficiary, mint solana.PublicKey, now time.Time) (uint64, error) {
	s, err := e.Schedule(beneficiary, mint)
	if err != nil {
		return 0, err
	}
	return UnlockedAmount(s, now), nil
}

// ClaimablePreview reports what Claim would release at now without claiming.
func (e *Engine) ClaimablePreview(beneficiary, mint solana.PublicKey, now time.Time) (uint64, error) {
	s, err := e.Schedule(beneficiary, mint)
	if err != nil {
		return 0, err
	}
	return ClaimablePreview(s, now), nil
}

// Claim releases everything unlocked and unclaimed at now to the beneficiary.
func (e *Engine) Claim(ctx context.Context, beneficiary, mint solana.PublicKey, now time.Time) (uint64, error) {
	k := key{beneficiary: beneficiary, mint: mint}
	unlock := e.locks.Lock(k)
	defer unlock()

	s, err := e.Schedule(beneficiary, mint)
	if err != nil {
		return 0, err
	}
	if now.Before(s.CliffTime) {
		return 0, fmt.Errorf("cliff at %s: %w", s.CliffTime.Format(time.RFC3339), domain.ErrCliffNotReached)
	}
	claimable := ClaimablePreview(s, now)
	if claimable == 0 {
		return 0, domain.ErrNoTokensToClaim
	}

	if err := e.ledger.Transfer(ctx, ledger.Move{
		From:      ledger.VestingEscrow(mint, beneficiary),
		To:        beneficiary,
		Asset:     domain.Token(mint),
		Amount:    claimable,
		Authority: ledger.VestingAuthority(mint, beneficiary),
	}); err != nil {
		return 0, fmt.Errorf("vesting release failed: %w", err)
	}

	e.mu.Lock()
	stored := e.schedules[k]
	stored.ClaimedAmount += claimable
	stored.LastClaimTime = now.UTC()
	total := stored.ClaimedAmount
	e.mu.Unlock()

	e.logger.Info("Vested tokens claimed",
		zap.String("beneficiary", beneficiary.String()),
		zap.String("mint", mint.String()),
		zap.Uint64("amount", claimable),
		zap.Uint64("total_claimed", total))

	events.Publish(e.events, e.logger, events.VestingClaimedEvent{
		BaseEvent:    events.NewBase(events.VestingClaimed),
		Beneficiary:  beneficiary,
		Mint:         mint,
		Amount:       claimable,
		TotalClaimed: total,
	})
	return claimable, nil
}
