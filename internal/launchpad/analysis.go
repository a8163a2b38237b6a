package launchpad

import (
	"fmt"

	"github.com/rovshanmuradov/fundly/internal/curve"
	"github.com/rovshanmuradov/fundly/internal/domain"
	"github.com/rovshanmuradov/fundly/internal/policy"
	"github.com/rovshanmuradov/fundly/internal/safemath"
	"github.com/shopspring/decimal"
)

// DefaultWhaleBudgets are the single-buy sizes the impact table probes.
var DefaultWhaleBudgets = []uint64{
	10 * domain.LamportsPerSOL,
	20 * domain.LamportsPerSOL,
	50 * domain.LamportsPerSOL,
	100 * domain.LamportsPerSOL,
	200 * domain.LamportsPerSOL,
	500 * domain.LamportsPerSOL,
}

// DefaultCostShares are the supply shares the cost table prices.
var DefaultCostShares = []decimal.Decimal{
	decimal.RequireFromString("0.10"),
	decimal.RequireFromString("0.25"),
	decimal.RequireFromString("0.50"),
	decimal.RequireFromString("0.75"),
	decimal.RequireFromString("0.90"),
}

// FreshCurve is the curve a new launch would open under p.
func FreshCurve(p policy.Policy) curve.Curve {
	return curve.Curve{
		VirtualSolReserves:   p.VirtualSolReserves,
		VirtualTokenReserves: p.VirtualTokenReserves,
		RealTokenReserves:    p.InitialTokenSupply,
		TokenSupply:          p.InitialTokenSupply,
	}
}

// WhaleImpact is the outcome of one opening buy on a fresh curve.
type WhaleImpact struct {
	Budget uint64
	Tokens uint64
	Share  decimal.Decimal
	// Exhausted is set when the budget would buy more than the curve holds.
	Exhausted bool
}

// AnalyzeWhales quotes each budget as the first buy on a fresh curve.
func AnalyzeWhales(p policy.Policy, budgets []uint64) ([]WhaleImpact, error) {
	c := FreshCurve(p)
	out := make([]WhaleImpact, 0, len(budgets))
	for _, budget := range budgets {
		q, err := curve.QuoteBuy(c, p.FeeBasisPoints, budget)
		if err != nil {
			return nil, fmt.Errorf("quote %d lamports: %w", budget, err)
		}
		impact := WhaleImpact{Budget: budget, Tokens: q.TokenAmount}
		if q.TokenAmount > c.RealTokenReserves {
			impact.Tokens = c.RealTokenReserves
			impact.Exhausted = true
		}
		impact.Share = share(impact.Tokens, c.TokenSupply)
		out = append(out, impact)
	}
	return out, nil
}

// CostPoint is the opening-buy cost of a share of the supply.
type CostPoint struct {
	Share  decimal.Decimal
	Tokens uint64
	Cost   uint64
	// AvgPrice is SOL per whole token, fee included.
	AvgPrice decimal.Decimal
}

// AnalyzeCosts prices each share of the supply as one buy on a fresh curve.
func AnalyzeCosts(p policy.Policy, shares []decimal.Decimal) ([]CostPoint, error) {
	c := FreshCurve(p)
	supply := decimal.NewFromBigInt(safemath.U64(c.TokenSupply), 0)
	out := make([]CostPoint, 0, len(shares))
	for _, s := range shares {
		if !s.IsPositive() || s.GreaterThan(decimal.NewFromInt(1)) {
			return nil, fmt.Errorf("share %s: %w", s, domain.ErrInvalidAmount)
		}
		tokens := uint64(supply.Mul(s).IntPart())
		cost, err := curve.BuyCost(c, p.FeeBasisPoints, tokens)
		if err != nil {
			return nil, fmt.Errorf("price %s of supply: %w", s, err)
		}
		out = append(out, CostPoint{
			Share:    s,
			Tokens:   tokens,
			Cost:     cost,
			AvgPrice: curve.Price(cost, tokens),
		})
	}
	return out, nil
}

// VirtualTokensForMarketCap returns the virtual token reserve that opens a
// curve at marketCap lamports for supply tokens, given virtualSol. The result
// is 0 when the target is unreachable with that virtual SOL.
func VirtualTokensForMarketCap(marketCap, virtualSol, supply uint64) (uint64, error) {
	if marketCap == 0 || supply == 0 {
		return 0, domain.ErrInvalidAmount
	}
	// Opening price virtualSol/(vt+supply) times supply equals marketCap.
	total, err := safemath.MulDiv(safemath.U64(virtualSol), safemath.U64(supply), safemath.U64(marketCap), safemath.RoundDown)
	if err != nil {
		return 0, err
	}
	if total.Cmp(safemath.U64(supply)) <= 0 {
		return 0, nil
	}
	vt, err := safemath.Sub(total, safemath.U64(supply))
	if err != nil {
		return 0, err
	}
	return safemath.Uint64(vt)
}

func share(tokens, supply uint64) decimal.Decimal {
	if supply == 0 {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(safemath.U64(tokens), 0).
		Div(decimal.NewFromBigInt(safemath.U64(supply), 0))
}
