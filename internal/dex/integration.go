// Package dex holds the DEX-integration collaborator: the external service
// that turns migrated capital and tokens into a liquidity pool and reports the
// LP tokens it issued.
package dex

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/rovshanmuradov/fundly/internal/ledger"
	"go.uber.org/zap"
)

var (
	ErrUnknownPool        = errors.New("unknown pool")
	ErrUnsupportedBackend = errors.New("unsupported dex integration")
)

// PoolRequest asks the integration to build a pool from funds already sent to
// its deposit account.
type PoolRequest struct {
	Mint        solana.PublicKey
	SolAmount   uint64
	TokenAmount uint64
	// LPRecipient receives the LP tokens of the new pool.
	LPRecipient solana.PublicKey
}

// Integration is the DEX-integration collaborator.
type Integration interface {
	// Name returns the integration's display name.
	Name() string
	// DepositAccount is where pool funds must be sent before CreatePool.
	DepositAccount() solana.PublicKey
	// CreatePool builds a pool and returns its reference.
	CreatePool(ctx context.Context, req PoolRequest) (solana.PublicKey, error)
	// ReportLPReceipt returns the LP amount issued for pool.
	ReportLPReceipt(ctx context.Context, pool solana.PublicKey) (uint64, error)
}

// New creates an integration by backend name.
func New(name string, l *ledger.Memory, program solana.PublicKey, logger *zap.Logger) (Integration, error) {
	if l == nil {
		return nil, fmt.Errorf("ledger cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "memory":
		return NewMemory(l, program, logger), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedBackend, name)
	}
}
