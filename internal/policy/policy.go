// Package policy holds the per-deployment GlobalPolicy: fee rate, seed virtual
// reserves, migration threshold and fee, treasury and DEX integration.
//
// Readers take an immutable Policy snapshot per operation. Mutations are
// restricted to the policy authority and replace the snapshot atomically, so
// no reader ever observes a partial update.
package policy

import (
	"context"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/rovshanmuradov/fundly/internal/domain"
	"github.com/rovshanmuradov/fundly/internal/events"
	"github.com/rovshanmuradov/fundly/internal/ledger"
	"go.uber.org/zap"
)

// Policy is an immutable snapshot of the global configuration.
type Policy struct {
	Authority            solana.PublicKey
	Treasury             solana.PublicKey
	VirtualSolReserves   uint64
	VirtualTokenReserves uint64
	InitialTokenSupply   uint64
	FeeBasisPoints       uint16
	MigrationThreshold   uint64
	MigrationFee         uint64
	DexProgram           solana.PublicKey
}

// Validate checks the policy invariants.
func (p Policy) Validate() error {
	if p.FeeBasisPoints > domain.MaxBasisPoints {
		return fmt.Errorf("fee_basis_points %d: %w", p.FeeBasisPoints, domain.ErrInvalidFeeBasisPoints)
	}
	if p.Treasury.IsZero() {
		return domain.ErrInvalidTreasury
	}
	if p.Authority.IsZero() {
		return fmt.Errorf("authority is not set: %w", domain.ErrUnauthorized)
	}
	if p.VirtualSolReserves == 0 || p.VirtualTokenReserves == 0 {
		return fmt.Errorf("virtual reserves must be positive: %w", domain.ErrInvalidAmount)
	}
	return nil
}

// IsAuthority reports whether key is the policy authority.
func (p Policy) IsAuthority(key solana.PublicKey) bool {
	return !key.IsZero() && key == p.Authority
}

// Update carries the fields to change; nil fields keep their current value.
type Update struct {
	Treasury             *solana.PublicKey
	VirtualSolReserves   *uint64
	VirtualTokenReserves *uint64
	InitialTokenSupply   *uint64
	FeeBasisPoints       *uint16
	MigrationThreshold   *uint64
	MigrationFee         *uint64
	DexProgram           *solana.PublicKey
}

func (u Update) apply(p Policy) (Policy, []string) {
	var fields []string
	if u.Treasury != nil {
		p.Treasury = *u.Treasury
		fields = append(fields, "treasury")
	}
	if u.VirtualSolReserves != nil {
		p.VirtualSolReserves = *u.VirtualSolReserves
		fields = append(fields, "virtual_sol_reserves")
	}
	if u.VirtualTokenReserves != nil {
		p.VirtualTokenReserves = *u.VirtualTokenReserves
		fields = append(fields, "virtual_token_reserves")
	}
	if u.InitialTokenSupply != nil {
		p.InitialTokenSupply = *u.InitialTokenSupply
		fields = append(fields, "initial_token_supply")
	}
	if u.FeeBasisPoints != nil {
		p.FeeBasisPoints = *u.FeeBasisPoints
		fields = append(fields, "fee_basis_points")
	}
	if u.MigrationThreshold != nil {
		p.MigrationThreshold = *u.MigrationThreshold
		fields = append(fields, "migration_threshold")
	}
	if u.MigrationFee != nil {
		p.MigrationFee = *u.MigrationFee
		fields = append(fields, "migration_fee")
	}
	if u.DexProgram != nil {
		p.DexProgram = *u.DexProgram
		fields = append(fields, "dex_program")
	}
	return p, fields
}

// Source is the read side of the policy store.
type Source interface {
	Snapshot() (Policy, error)
}

// Store owns the global policy.
type Store struct {
	mu      sync.RWMutex
	current *Policy
	closed  bool

	ledger ledger.Ledger
	events events.Publisher
	logger *zap.Logger
}

// NewStore creates an uninitialized policy store.
func NewStore(l ledger.Ledger, publisher events.Publisher, logger *zap.Logger) *Store {
	return &Store{
		ledger: l,
		events: publisher,
		logger: logger.Named("policy"),
	}
}

// Initialize creates the policy. It can be called once per store.
func (s *Store) Initialize(ctx context.Context, p Policy) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid policy: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return domain.ErrPolicyClosed
	}
	if s.current != nil {
		return domain.ErrPolicyExists
	}

	account := ledger.PolicyAccount()
	if err := s.ledger.OpenCustody(ctx, account, account); err != nil {
		return fmt.Errorf("failed to open policy custody: %w", err)
	}

	snapshot := p
	s.current = &snapshot

	s.logger.Info("Global policy initialized",
		zap.String("authority", p.Authority.String()),
		zap.String("treasury", p.Treasury.String()),
		zap.Uint64("virtual_sol_reserves", p.VirtualSolReserves),
		zap.Uint64("virtual_token_reserves", p.VirtualTokenReserves),
		zap.Uint16("fee_basis_points", p.FeeBasisPoints),
		zap.Uint64("migration_threshold", p.MigrationThreshold),
		zap.Uint64("migration_fee", p.MigrationFee))
	return nil
}

// Snapshot returns the current policy.
func (s *Store) Snapshot() (Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return Policy{}, domain.ErrPolicyClosed
	}
	if s.current == nil {
		return Policy{}, domain.ErrPolicyNotInitialized
	}
	return *s.current, nil
}

// Authorize returns the current policy if authority is its admin.
func (s *Store) Authorize(authority solana.PublicKey) (Policy, error) {
	p, err := s.Snapshot()
	if err != nil {
		return Policy{}, err
	}
	if !p.IsAuthority(authority) {
		return Policy{}, domain.ErrUnauthorized
	}
	return p, nil
}

// Update applies u on behalf of authority and returns the new snapshot.
func (s *Store) Update(ctx context.Context, authority solana.PublicKey, u Update) (Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Policy{}, domain.ErrPolicyClosed
	}
	if s.current == nil {
		return Policy{}, domain.ErrPolicyNotInitialized
	}
	if !s.current.IsAuthority(authority) {
		return Policy{}, domain.ErrUnauthorized
	}

	next, fields := u.apply(*s.current)
	if err := next.Validate(); err != nil {
		return Policy{}, fmt.Errorf("invalid policy update: %w", err)
	}
	s.current = &next

	s.logger.Info("Global policy updated",
		zap.String("authority", authority.String()),
		zap.Strings("fields", fields))

	events.Publish(s.events, s.logger, events.PolicyUpdatedEvent{
		BaseEvent: events.NewBase(events.PolicyUpdated),
		Authority: authority,
		Fields:    fields,
	})
	return next, nil
}

// Close retires the policy and returns lamports escrowed in the policy account
// to the authority. Every later read fails with ErrPolicyClosed.
func (s *Store) Close(ctx context.Context, authority solana.PublicKey) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, domain.ErrPolicyClosed
	}
	if s.current == nil {
		return 0, domain.ErrPolicyNotInitialized
	}
	if !s.current.IsAuthority(authority) {
		return 0, domain.ErrUnauthorized
	}

	account := ledger.PolicyAccount()
	refund, err := s.ledger.Balance(ctx, account, domain.SOL())
	if err != nil {
		return 0, fmt.Errorf("failed to read policy account balance: %w", err)
	}
	if err := s.ledger.Transfer(ctx, ledger.Move{
		From:      account,
		To:        authority,
		Asset:     domain.SOL(),
		Amount:    refund,
		Authority: account,
	}); err != nil {
		return 0, fmt.Errorf("failed to refund policy account: %w", err)
	}

	s.closed = true
	s.current = nil

	s.logger.Warn("Global policy closed",
		zap.String("authority", authority.String()),
		zap.Uint64("refunded_lamports", refund))

	events.Publish(s.events, s.logger, events.PolicyClosedEvent{
		BaseEvent: events.NewBase(events.PolicyClosed),
		Authority: authority,
		Refunded:  refund,
	})
	return refund, nil
}
