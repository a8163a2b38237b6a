package curve

import (
	"fmt"

	"github.com/rovshanmuradov/fundly/internal/domain"
	"github.com/rovshanmuradov/fundly/internal/safemath"
)

// QuoteBuy prices a buy of solIn lamports. The fee is taken from the input
// before the swap.
func QuoteBuy(c Curve, feeBps uint16, solIn uint64) (Quote, error) {
	if solIn == 0 {
		return Quote{}, domain.ErrInvalidAmount
	}

	fee, err := safemath.BasisPoints(solIn, feeBps)
	if err != nil {
		return Quote{}, err
	}
	net := solIn - fee

	sol, token := c.Reserves()
	k := safemath.Mul(sol, token)
	solAfter := safemath.Add(sol, safemath.U64(net))
	tokenAfter, err := safemath.Div(k, solAfter, safemath.RoundDown)
	if err != nil {
		return Quote{}, err
	}
	diff, err := safemath.Sub(token, tokenAfter)
	if err != nil {
		return Quote{}, err
	}
	out, err := safemath.Uint64(diff)
	if err != nil {
		return Quote{}, err
	}

	return Quote{
		Side:        domain.SideBuy,
		SolAmount:   solIn,
		TokenAmount: out,
		Fee:         fee,
		ReserveSol:  net,
	}, nil
}

// QuoteSell prices a sell of tokenIn base units. The fee is taken from the
// output after the swap.
func QuoteSell(c Curve, feeBps uint16, tokenIn uint64) (Quote, error) {
	if tokenIn == 0 {
		return Quote{}, domain.ErrInvalidAmount
	}

	sol, token := c.Reserves()
	k := safemath.Mul(sol, token)
	tokenAfter := safemath.Add(token, safemath.U64(tokenIn))
	solAfter, err := safemath.Div(k, tokenAfter, safemath.RoundDown)
	if err != nil {
		return Quote{}, err
	}
	diff, err := safemath.Sub(sol, solAfter)
	if err != nil {
		return Quote{}, err
	}
	gross, err := safemath.Uint64(diff)
	if err != nil {
		return Quote{}, err
	}

	fee, err := safemath.BasisPoints(gross, feeBps)
	if err != nil {
		return Quote{}, err
	}

	return Quote{
		Side:        domain.SideSell,
		SolAmount:   gross - fee,
		TokenAmount: tokenIn,
		Fee:         fee,
		ReserveSol:  gross,
	}, nil
}

// BuyCost returns the smallest input, fee included and rounded up, for which
// QuoteBuy yields at least tokens.
func BuyCost(c Curve, feeBps uint16, tokens uint64) (uint64, error) {
	if tokens == 0 {
		return 0, domain.ErrInvalidAmount
	}
	if tokens > c.RealTokenReserves {
		return 0, fmt.Errorf("want %d tokens, curve holds %d: %w", tokens, c.RealTokenReserves, domain.ErrInsufficientTokens)
	}
	if feeBps >= domain.MaxBasisPoints {
		return 0, fmt.Errorf("fee of %d bps leaves nothing to swap: %w", feeBps, domain.ErrInvalidFeeBasisPoints)
	}

	sol, token := c.Reserves()
	k := safemath.Mul(sol, token)
	tokenAfter, err := safemath.Sub(token, safemath.U64(tokens))
	if err != nil {
		return 0, err
	}

	// Smallest S' with floor(k/S') <= T': S' = floor(k/(T'+1)) + 1.
	bound, err := safemath.Div(k, safemath.Add(tokenAfter, safemath.U64(1)), safemath.RoundDown)
	if err != nil {
		return 0, err
	}
	net, err := safemath.Sub(safemath.Add(bound, safemath.U64(1)), sol)
	if err != nil {
		return 0, err
	}

	gross, err := safemath.MulDiv(net, safemath.U64(domain.MaxBasisPoints),
		safemath.U64(uint64(domain.MaxBasisPoints-feeBps)), safemath.RoundUp)
	if err != nil {
		return 0, err
	}
	return safemath.Uint64(gross)
}
