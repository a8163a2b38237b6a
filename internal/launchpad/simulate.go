package launchpad

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rovshanmuradov/fundly/internal/curve"
	"github.com/rovshanmuradov/fundly/internal/domain"
	"github.com/rovshanmuradov/fundly/internal/migration"
	"github.com/rovshanmuradov/fundly/internal/vesting"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Buyer is one participant of a simulated launch.
type Buyer struct {
	Name   string
	Budget uint64
}

// DefaultBuyers returns the reference launch: a handful of small buyers
// followed by a whale.
func DefaultBuyers() []Buyer {
	return []Buyer{
		{Name: "early", Budget: domain.LamportsPerSOL / 2},
		{Name: "small", Budget: 2 * domain.LamportsPerSOL},
		{Name: "medium", Budget: 5 * domain.LamportsPerSOL},
		{Name: "large", Budget: 20 * domain.LamportsPerSOL},
		{Name: "whale", Budget: 100 * domain.LamportsPerSOL},
	}
}

// VestingPlan locks a creator allocation of the first simulated asset.
type VestingPlan struct {
	Amount   uint64
	Cliff    time.Duration
	Duration time.Duration
}

// SimulationPlan drives Simulate.
type SimulationPlan struct {
	Assets    int
	Buyers    []Buyer
	Authority solana.PublicKey
	// Graduate migrates every asset that reaches the threshold.
	Graduate bool
	Vesting  *VestingPlan
	// Start anchors the vesting clock; time.Now when zero.
	Start time.Time
}

// Fill is one simulated buy. Err holds the lifecycle error that stopped the
// buyer, if any.
type Fill struct {
	Buyer  string
	Wallet solana.PublicKey
	Budget uint64
	Spent  uint64
	Tokens uint64
	Fee    uint64
	Price  decimal.Decimal
	Share  decimal.Decimal
	Err    error
}

// AssetReport summarises one simulated asset.
type AssetReport struct {
	Mint    solana.PublicKey
	Creator solana.PublicKey
	Fills   []Fill
	// Curve is the state after the last buy, before any graduation.
	Curve     curve.Curve
	FeesSwept uint64
	Migration *migration.Record
}

// VestingPoint is the unlocked amount at an offset from the schedule start.
type VestingPoint struct {
	Offset   time.Duration
	Unlocked uint64
}

// VestingReport summarises the simulated creator allocation.
type VestingReport struct {
	Schedule vesting.Schedule
	Points   []VestingPoint
	// Claimed is what the halfway claim released.
	Claimed uint64
}

// Report is the outcome of Simulate.
type Report struct {
	Assets   []AssetReport
	Vesting  *VestingReport
	Treasury uint64
}

// Simulate launches plan.Assets curves in parallel, runs the buyers against
// each, graduates the ones past the threshold and optionally vests a creator
// allocation.
func (s *Service) Simulate(ctx context.Context, plan SimulationPlan) (*Report, error) {
	if plan.Assets <= 0 {
		return nil, fmt.Errorf("invalid asset count %d", plan.Assets)
	}
	buyers := plan.Buyers
	if len(buyers) == 0 {
		buyers = DefaultBuyers()
	}

	report := &Report{Assets: make([]AssetReport, plan.Assets)}
	g, gctx := errgroup.WithContext(ctx)
	for i := range report.Assets {
		i := i
		g.Go(func() error {
			ar, err := s.simulateAsset(gctx, plan, buyers)
			if err != nil {
				return fmt.Errorf("asset %d: %w", i, err)
			}
			report.Assets[i] = ar
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if plan.Vesting != nil {
		start := plan.Start
		if start.IsZero() {
			start = time.Now()
		}
		first := report.Assets[0]
		vr, err := s.simulateVesting(ctx, first.Mint, first.Creator, *plan.Vesting, start)
		if err != nil {
			return nil, err
		}
		report.Vesting = vr
	}

	p, err := s.policies.Snapshot()
	if err != nil {
		return nil, err
	}
	report.Treasury, err = s.ledger.Balance(ctx, p.Treasury, domain.SOL())
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (s *Service) simulateAsset(ctx context.Context, plan SimulationPlan, buyers []Buyer) (AssetReport, error) {
	ar := AssetReport{
		Mint:    solana.NewWallet().PublicKey(),
		Creator: solana.NewWallet().PublicKey(),
	}
	c, err := s.Launch(ctx, ar.Mint, ar.Creator)
	if err != nil {
		return ar, err
	}
	ar.Curve = c

	for _, b := range buyers {
		fill, err := s.simulateBuy(ctx, ar.Mint, b)
		if err != nil {
			return ar, err
		}
		ar.Fills = append(ar.Fills, fill)
		if fill.Err == nil {
			if ar.Curve, err = s.curves.Curve(ar.Mint); err != nil {
				return ar, err
			}
		}
	}

	ar.FeesSwept, err = s.fees.WithdrawFromVault(ctx, plan.Authority, ar.Mint, 0)
	if err != nil && !errors.Is(err, domain.ErrNoFeesToWithdraw) {
		return ar, fmt.Errorf("fee sweep: %w", err)
	}

	p, err := s.policies.Snapshot()
	if err != nil {
		return ar, err
	}
	if !plan.Graduate || ar.Curve.RealSolReserves < p.MigrationThreshold {
		return ar, nil
	}
	rec, err := s.Graduate(ctx, plan.Authority, ar.Mint)
	if err != nil {
		return ar, fmt.Errorf("graduate %s: %w", ar.Mint, err)
	}
	ar.Migration = &rec
	return ar, nil
}

// simulateBuy funds a fresh wallet with the buyer's budget and spends it in
// one buy. A buy the curve cannot fill is reported on the fill.
func (s *Service) simulateBuy(ctx context.Context, mint solana.PublicKey, b Buyer) (Fill, error) {
	fill := Fill{Buyer: b.Name, Wallet: solana.NewWallet().PublicKey(), Budget: b.Budget}
	if err := s.ledger.Deposit(fill.Wallet, domain.SOL(), b.Budget); err != nil {
		return fill, err
	}

	res, err := s.curves.Buy(ctx, mint, fill.Wallet, b.Budget, 0)
	switch {
	case errors.Is(err, domain.ErrCurveComplete), errors.Is(err, domain.ErrInsufficientTokens),
		errors.Is(err, domain.ErrAlreadyMigrated):
		s.logger.Debug("Simulated buy skipped",
			zap.String("mint", mint.String()),
			zap.String("buyer", b.Name),
			zap.Error(err))
		fill.Err = err
		return fill, nil
	case err != nil:
		return fill, fmt.Errorf("buy for %s: %w", b.Name, err)
	}

	fill.Spent = res.SolAmount
	fill.Tokens = res.TokenAmount
	fill.Fee = res.Fee
	fill.Price = curve.Price(res.SolAmount, res.TokenAmount)
	fill.Share = share(res.TokenAmount, res.Curve.TokenSupply)
	return fill, nil
}

func (s *Service) simulateVesting(ctx context.Context, mint, creator solana.PublicKey, plan VestingPlan, start time.Time) (*VestingReport, error) {
	if err := s.ledger.Deposit(creator, domain.Token(mint), plan.Amount); err != nil {
		return nil, err
	}
	sched, err := s.vesting.CreateSchedule(ctx, vesting.Params{
		Beneficiary:     creator,
		Mint:            mint,
		TotalAmount:     plan.Amount,
		StartTime:       start,
		CliffDuration:   plan.Cliff,
		VestingDuration: plan.Duration,
	})
	if err != nil {
		return nil, fmt.Errorf("create schedule: %w", err)
	}

	vr := &VestingReport{Schedule: sched}
	for _, offset := range []time.Duration{plan.Cliff - time.Second, plan.Cliff, plan.Duration / 2, plan.Duration} {
		if offset < 0 {
			continue
		}
		vr.Points = append(vr.Points, VestingPoint{
			Offset:   offset,
			Unlocked: vesting.UnlockedAmount(sched, start.Add(offset)),
		})
	}

	halfway := start.Add(plan.Duration / 2)
	if halfway.Before(sched.CliffTime) {
		halfway = sched.CliffTime
	}
	if vr.Claimed, err = s.vesting.Claim(ctx, creator, mint, halfway); err != nil {
		return nil, fmt.Errorf("claim: %w", err)
	}
	if vr.Schedule, err = s.vesting.Schedule(creator, mint); err != nil {
		return nil, err
	}
	return vr, nil
}
