package curve

import (
	"github.com/rovshanmuradov/fundly/internal/domain"
	"github.com/rovshanmuradov/fundly/internal/safemath"
	"github.com/shopspring/decimal"
)

var one = decimal.NewFromInt(1)

func units(v uint64, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(safemath.U64(v), -decimals)
}

// SpotPrice is the marginal price in SOL per whole token.
func (c Curve) SpotPrice() decimal.Decimal {
	sol, token := c.Reserves()
	if token.Sign() == 0 {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(sol, -domain.SolDecimals).
		Div(decimal.NewFromBigInt(token, -domain.TokenDecimals))
}

// MarketCap values the full token supply at the spot price, in SOL.
func (c Curve) MarketCap() decimal.Decimal {
	return c.SpotPrice().Mul(units(c.TokenSupply, domain.TokenDecimals))
}

// Progress is the share of the migration threshold already raised, in [0, 1].
func (c Curve) Progress(threshold uint64) decimal.Decimal {
	if c.Migrated || threshold == 0 {
		return one
	}
	p := units(c.RealSolReserves, 0).Div(units(threshold, 0))
	if p.GreaterThan(one) {
		return one
	}
	return p
}

// Price converts a settled amount pair into SOL per whole token.
func Price(lamports, tokens uint64) decimal.Decimal {
	if tokens == 0 {
		return decimal.Zero
	}
	return units(lamports, domain.SolDecimals).Div(units(tokens, domain.TokenDecimals))
}
