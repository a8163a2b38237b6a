// Package curve implements the bonding-curve trading engine: one constant
// product curve per mint, seeded with virtual reserves from the global policy.
package curve

import (
	"math/big"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rovshanmuradov/fundly/internal/domain"
	"github.com/rovshanmuradov/fundly/internal/safemath"
)

// Curve is the state of one bonding curve. Values returned by the engine are
// copies; mutating them has no effect on the engine.
type Curve struct {
	Mint                 solana.PublicKey
	Creator              solana.PublicKey
	VirtualSolReserves   uint64
	VirtualTokenReserves uint64
	RealSolReserves      uint64
	RealTokenReserves    uint64
	TokenSupply          uint64
	Complete             bool
	Migrated             bool
	Pool                 solana.PublicKey
	CreatedAt            time.Time
}

// Reserves returns the total SOL and token reserves the price is computed
// from (virtual plus real), widened.
func (c Curve) Reserves() (sol, token *big.Int) {
	sol = safemath.Add(safemath.U64(c.VirtualSolReserves), safemath.U64(c.RealSolReserves))
	token = safemath.Add(safemath.U64(c.VirtualTokenReserves), safemath.U64(c.RealTokenReserves))
	return sol, token
}

// K returns the constant product of the total reserves.
func (c Curve) K() *big.Int {
	sol, token := c.Reserves()
	return safemath.Mul(sol, token)
}

// Tradable reports the lifecycle error that forbids trading, if any.
func (c Curve) Tradable() error {
	if c.Complete {
		return domain.ErrCurveComplete
	}
	if c.Migrated {
		return domain.ErrAlreadyMigrated
	}
	return nil
}

// Quote is the outcome of a swap computed against a curve snapshot.
type Quote struct {
	Side domain.Side
	// SolAmount is what the trader pays on a buy or receives on a sell.
	SolAmount   uint64
	TokenAmount uint64
	Fee         uint64
	// ReserveSol is the change of the real SOL reserve: net input on a buy,
	// gross output on a sell.
	ReserveSol uint64
}

// TradeResult is returned by Buy and Sell.
type TradeResult struct {
	Quote
	Mint  solana.PublicKey
	Actor solana.PublicKey
	Curve Curve
}

// Graduation tells the engine how to drain a curve into migration custody.
type Graduation struct {
	Treasury solana.PublicKey
	Fee      uint64
	Vault    solana.PublicKey
}

// Graduated describes a completed drain.
type Graduated struct {
	SolMigrated   uint64
	TokenMigrated uint64
	Fee           uint64
	Curve         Curve
}
