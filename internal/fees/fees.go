// Package fees derives and withdraws platform fees accrued in curve SOL vaults.
// The accrued amount is never stored: it is whatever the vault holds beyond
// the curve's real SOL reserve and a retained minimum.
package fees

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/rovshanmuradov/fundly/internal/curve"
	"github.com/rovshanmuradov/fundly/internal/domain"
	"github.com/rovshanmuradov/fundly/internal/events"
	"github.com/rovshanmuradov/fundly/internal/ledger"
	"github.com/rovshanmuradov/fundly/internal/policy"
	"github.com/rovshanmuradov/fundly/internal/safemath"
	"go.uber.org/zap"
)

// Authorizer resolves the policy on behalf of an admin.
type Authorizer interface {
	Authorize(authority solana.PublicKey) (policy.Policy, error)
}

// Vaults is the part of the curve engine the fee ledger drives.
type Vaults interface {
	Sweep(ctx context.Context, mint, to solana.PublicKey, plan func(curve.Curve) (uint64, error)) (uint64, error)
}

// Accrued returns vaultBalance - realSol - minRetained, or ErrInsufficientFees
// when the vault does not cover the reserve and the retained minimum.
func Accrued(c curve.Curve, vaultBalance, minRetained uint64) (uint64, error) {
	floor, err := safemath.Add64(c.RealSolReserves, minRetained)
	if err != nil {
		return 0, err
	}
	if vaultBalance < floor {
		return 0, fmt.Errorf("vault %d below reserve %d plus retained %d: %w",
			vaultBalance, c.RealSolReserves, minRetained, domain.ErrInsufficientFees)
	}
	return vaultBalance - floor, nil
}

// Ledger withdraws accrued fees to the treasury.
type Ledger struct {
	policy Authorizer
	vaults Vaults
	ledger ledger.Ledger
	events events.Publisher
	logger *zap.Logger
}

// NewLedger creates a fee ledger.
func NewLedger(policies Authorizer, vaults Vaults, l ledger.Ledger, publisher events.Publisher, logger *zap.Logger) *Ledger {
	return &Ledger{
		policy: policies,
		vaults: vaults,
		ledger: l,
		events: publisher,
		logger: logger.Named("fees"),
	}
}

// WithdrawPlatformFees moves the fees accrued in mint's SOL vault to the
// treasury, given the caller-observed vault balance. A declared balance the
// vault does not hold fails with ErrInsufficientFees.
func (l *Ledger) WithdrawPlatformFees(ctx context.Context, authority, mint solana.PublicKey, vaultBalance, minRetained uint64) (uint64, error) {
	return l.withdraw(ctx, authority, mint, minRetained, func(context.Context) (uint64, error) {
		return vaultBalance, nil
	})
}

// WithdrawFromVault is WithdrawPlatformFees with the vault balance read from
// the ledger while the curve is locked.
func (l *Ledger) WithdrawFromVault(ctx context.Context, authority, mint solana.PublicKey, minRetained uint64) (uint64, error) {
	return l.withdraw(ctx, authority, mint, minRetained, func(ctx context.Context) (uint64, error) {
		return l.ledger.Balance(ctx, ledger.CurveSolVault(mint), domain.SOL())
	})
}

func (l *Ledger) withdraw(ctx context.Context, authority, mint solana.PublicKey, minRetained uint64, balance func(context.Context) (uint64, error)) (uint64, error) {
	p, err := l.policy.Authorize(authority)
	if err != nil {
		return 0, err
	}

	amount, err := l.vaults.Sweep(ctx, mint, p.Treasury, func(c curve.Curve) (uint64, error) {
		vaultBalance, err := balance(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to read vault balance: %w", err)
		}
		accrued, err := Accrued(c, vaultBalance, minRetained)
		if err != nil {
			return 0, err
		}
		if accrued == 0 {
			return 0, domain.ErrNoFeesToWithdraw
		}

		held, err := l.ledger.Balance(ctx, ledger.CurveSolVault(mint), domain.SOL())
		if err != nil {
			return 0, fmt.Errorf("failed to read vault balance: %w", err)
		}
		backed, err := Accrued(c, held, minRetained)
		if err != nil {
			return 0, err
		}
		if accrued > backed {
			return 0, fmt.Errorf("declared vault balance %d exceeds held %d: %w",
				vaultBalance, held, domain.ErrInsufficientFees)
		}
		return accrued, nil
	})
	if err != nil {
		return 0, err
	}

	l.logger.Info("Platform fees withdrawn",
		zap.String("mint", mint.String()),
		zap.String("authority", authority.String()),
		zap.String("treasury", p.Treasury.String()),
		zap.Uint64("amount", amount))

	events.Publish(l.events, l.logger, events.FeesWithdrawnEvent{
		BaseEvent: events.NewBase(events.FeesWithdrawn),
		Mint:      mint,
		Authority: authority,
		Treasury:  p.Treasury,
		Amount:    amount,
	})
	return amount, nil
}
