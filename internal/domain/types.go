package domain

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

const (
	LamportsPerSOL      = 1_000_000_000
	SolDecimals         = 9
	TokenDecimals       = 6
	MaxBasisPoints      = 10_000
	DefaultMigrationFee = 6 * LamportsPerSOL
)

// Kind is the kind of value a ledger account holds.
type Kind int

const (
	KindSOL Kind = iota
	KindToken
	KindLP
)

func (k Kind) String() string {
	switch k {
	case KindSOL:
		return "SOL"
	case KindToken:
		return "TOKEN"
	case KindLP:
		return "LP"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Asset identifies a fungible balance: native SOL, an SPL token of Mint, or
// LP tokens of the pool identified by Mint.
type Asset struct {
	Kind Kind
	Mint solana.PublicKey
}

func SOL() Asset {
	return Asset{Kind: KindSOL}
}

func Token(mint solana.PublicKey) Asset {
	return Asset{Kind: KindToken, Mint: mint}
}

func LP(pool solana.PublicKey) Asset {
	return Asset{Kind: KindLP, Mint: pool}
}

func (a Asset) String() string {
	if a.Kind == KindSOL {
		return a.Kind.String()
	}
	return a.Kind.String() + ":" + a.Mint.String()
}

// Side is the direction of a trade against a bonding curve.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)
