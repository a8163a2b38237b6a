// Package ledger defines the value-transfer collaborator the launchpad engines
// move SOL, tokens and LP tokens through, and the custody accounts each engine
// owns.
//
// A custody account is opened with an authority. Any move out of a custody
// account must carry that authority; moves out of ordinary holder accounts are
// trusted, since identity verification happens before the engines are invoked.
package ledger

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/rovshanmuradov/fundly/internal/domain"
)

// Move is a single move_value(from, to, amount, kind) instruction.
type Move struct {
	From      solana.PublicKey
	To        solana.PublicKey
	Asset     domain.Asset
	Amount    uint64
	Authority solana.PublicKey
}

func (m Move) String() string {
	return fmt.Sprintf("%s %d %s -> %s", m.Asset, m.Amount, m.From, m.To)
}

// Ledger moves value between named holders.
type Ledger interface {
	// Transfer applies all moves or none of them. Failures wrap
	// domain.ErrTransferFailed.
	Transfer(ctx context.Context, moves ...Move) error

	// Balance returns the balance of account in asset.
	Balance(ctx context.Context, account solana.PublicKey, asset domain.Asset) (uint64, error)

	// OpenCustody registers account as custody controlled by authority.
	// Reopening with the same authority is a no-op.
	OpenCustody(ctx context.Context, account, authority solana.PublicKey) error
}
