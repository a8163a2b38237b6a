package curve

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rovshanmuradov/fundly/internal/domain"
	"github.com/rovshanmuradov/fundly/internal/events"
	"github.com/rovshanmuradov/fundly/internal/ledger"
	"github.com/rovshanmuradov/fundly/internal/policy"
	"github.com/rovshanmuradov/fundly/internal/safemath"
	"go.uber.org/zap"
)

type entry struct {
	mu    sync.Mutex
	state Curve
}

// Engine owns every curve. Operations on one mint are serialised by that
// curve's lock; different mints trade in parallel.
type Engine struct {
	mu     sync.RWMutex
	curves map[solana.PublicKey]*entry

	policy policy.Source
	ledger ledger.Ledger
	events events.Publisher
	logger *zap.Logger
	now    func() time.Time
}

// NewEngine creates a curve engine.
func NewEngine(policies policy.Source, l ledger.Ledger, publisher events.Publisher, logger *zap.Logger) *Engine {
	return &Engine{
		curves: make(map[solana.PublicKey]*entry),
		policy: policies,
		ledger: l,
		events: publisher,
		logger: logger.Named("curve"),
		now:    time.Now,
	}
}

func (e *Engine) lookup(mint solana.PublicKey) (*entry, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ent, ok := e.curves[mint]
	if !ok {
		return nil, fmt.Errorf("curve %s: %w", mint, domain.ErrCurveNotFound)
	}
	return ent, nil
}

// Initialize creates the curve for mint and moves the creator's full supply
// into curve custody.
func (e *Engine) Initialize(ctx context.Context, mint, creator solana.PublicKey, supply uint64) (Curve, error) {
	if supply == 0 {
		return Curve{}, domain.ErrInvalidAmount
	}
	p, err := e.policy.Snapshot()
	if err != nil {
		return Curve{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.curves[mint]; ok {
		return Curve{}, fmt.Errorf("curve %s: %w", mint, domain.ErrCurveExists)
	}

	authority := ledger.CurveAuthority(mint)
	for _, vault := range []solana.PublicKey{ledger.CurveSolVault(mint), ledger.CurveTokenVault(mint)} {
		if err := e.ledger.OpenCustody(ctx, vault, authority); err != nil {
			return Curve{}, fmt.Errorf("failed to open curve custody: %w", err)
		}
	}

	if err := e.ledger.Transfer(ctx, ledger.Move{
		From:      creator,
		To:        ledger.CurveTokenVault(mint),
		Asset:     domain.Token(mint),
		Amount:    supply,
		Authority: creator,
	}); err != nil {
		return Curve{}, fmt.Errorf("failed to deposit initial supply: %w", err)
	}

	c := Curve{
		Mint:                 mint,
		Creator:              creator,
		VirtualSolReserves:   p.VirtualSolReserves,
		VirtualTokenReserves: p.VirtualTokenReserves,
		RealTokenReserves:    supply,
		TokenSupply:          supply,
		CreatedAt:            e.now().UTC(),
	}
	e.curves[mint] = &entry{state: c}

	e.logger.Info("Bonding curve initialized",
		zap.String("mint", mint.String()),
		zap.String("creator", creator.String()),
		zap.Uint64("token_supply", supply),
		zap.Uint64("virtual_sol_reserves", c.VirtualSolReserves),
		zap.Uint64("virtual_token_reserves", c.VirtualTokenReserves))

	events.Publish(e.events, e.logger, events.CurveInitializedEvent{
		BaseEvent:            events.NewBase(events.CurveInitialized),
		Mint:                 mint,
		Creator:              creator,
		VirtualSolReserves:   c.VirtualSolReserves,
		VirtualTokenReserves: c.VirtualTokenReserves,
		TokenSupply:          supply,
	})
	return c, nil
}

// Buy swaps solIn lamports from buyer for curve tokens.
func (e *Engine) Buy(ctx context.Context, mint, buyer solana.PublicKey, solIn, minTokensOut uint64) (TradeResult, error) {
	if solIn == 0 {
		return TradeResult{}, domain.ErrInvalidAmount
	}
	p, err := e.policy.Snapshot()
	if err != nil {
		return TradeResult{}, err
	}
	ent, err := e.lookup(mint)
	if err != nil {
		return TradeResult{}, err
	}

	ent.mu.Lock()
	defer ent.mu.Unlock()

	c := ent.state
	if err := c.Tradable(); err != nil {
		return TradeResult{}, err
	}

	q, err := QuoteBuy(c, p.FeeBasisPoints, solIn)
	if err != nil {
		return TradeResult{}, err
	}
	if q.TokenAmount < minTokensOut {
		return TradeResult{}, fmt.Errorf("tokens out %d below minimum %d: %w", q.TokenAmount, minTokensOut, domain.ErrSlippageExceeded)
	}
	if q.TokenAmount > c.RealTokenReserves {
		return TradeResult{}, fmt.Errorf("tokens out %d exceed reserve %d: %w", q.TokenAmount, c.RealTokenReserves, domain.ErrInsufficientTokens)
	}
	realSol, err := safemath.Add64(c.RealSolReserves, q.ReserveSol)
	if err != nil {
		return TradeResult{}, err
	}

	if err := e.ledger.Transfer(ctx,
		ledger.Move{From: buyer, To: ledger.CurveSolVault(mint), Asset: domain.SOL(), Amount: q.ReserveSol, Authority: buyer},
		ledger.Move{From: buyer, To: p.Treasury, Asset: domain.SOL(), Amount: q.Fee, Authority: buyer},
		ledger.Move{From: ledger.CurveTokenVault(mint), To: buyer, Asset: domain.Token(mint), Amount: q.TokenAmount, Authority: ledger.CurveAuthority(mint)},
	); err != nil {
		return TradeResult{}, fmt.Errorf("buy settlement failed: %w", err)
	}

	c.RealSolReserves = realSol
	c.RealTokenReserves -= q.TokenAmount
	if c.RealTokenReserves == 0 {
		c.Complete = true
	}
	ent.state = c

	e.logger.Debug("Buy executed",
		zap.String("mint", mint.String()),
		zap.String("buyer", buyer.String()),
		zap.Uint64("sol_in", solIn),
		zap.Uint64("tokens_out", q.TokenAmount),
		zap.Uint64("fee", q.Fee),
		zap.Uint64("real_sol_reserves", c.RealSolReserves),
		zap.Uint64("real_token_reserves", c.RealTokenReserves))

	if c.Complete {
		e.logger.Info("Bonding curve complete", zap.String("mint", mint.String()))
	}
	if !c.Migrated && c.RealSolReserves >= p.MigrationThreshold {
		e.logger.Info("Migration threshold reached",
			zap.String("mint", mint.String()),
			zap.Uint64("real_sol_reserves", c.RealSolReserves),
			zap.Uint64("migration_threshold", p.MigrationThreshold))
		events.Publish(e.events, e.logger, events.MigrationThresholdReachedEvent{
			BaseEvent:     events.NewBase(events.MigrationThresholdReached),
			Mint:          mint,
			SolReserves:   c.RealSolReserves,
			TokenReserves: c.RealTokenReserves,
		})
	}

	e.publishTrade(buyer, q, c)
	return TradeResult{Quote: q, Mint: mint, Actor: buyer, Curve: c}, nil
}

// Sell swaps tokenIn curve tokens from seller for lamports.
func (e *Engine) Sell(ctx context.Context, mint, seller solana.PublicKey, tokenIn, minSolOut uint64) (TradeResult, error) {
	if tokenIn == 0 {
		return TradeResult{}, domain.ErrInvalidAmount
	}
	p, err := e.policy.Snapshot()
	if err != nil {
		return TradeResult{}, err
	}
	ent, err := e.lookup(mint)
	if err != nil {
		return TradeResult{}, err
	}

	ent.mu.Lock()
	defer ent.mu.Unlock()

	c := ent.state
	if err := c.Tradable(); err != nil {
		return TradeResult{}, err
	}

	q, err := QuoteSell(c, p.FeeBasisPoints, tokenIn)
	if err != nil {
		return TradeResult{}, err
	}
	if q.SolAmount < minSolOut {
		return TradeResult{}, fmt.Errorf("sol out %d below minimum %d: %w", q.SolAmount, minSolOut, domain.ErrSlippageExceeded)
	}
	if q.ReserveSol > c.RealSolReserves {
		return TradeResult{}, fmt.Errorf("sol out %d exceeds reserve %d: %w", q.ReserveSol, c.RealSolReserves, domain.ErrInsufficientSOL)
	}
	realToken, err := safemath.Add64(c.RealTokenReserves, tokenIn)
	if err != nil {
		return TradeResult{}, err
	}

	authority := ledger.CurveAuthority(mint)
	if err := e.ledger.Transfer(ctx,
		ledger.Move{From: seller, To: ledger.CurveTokenVault(mint), Asset: domain.Token(mint), Amount: tokenIn, Authority: seller},
		ledger.Move{From: ledger.CurveSolVault(mint), To: seller, Asset: domain.SOL(), Amount: q.SolAmount, Authority: authority},
		ledger.Move{From: ledger.CurveSolVault(mint), To: p.Treasury, Asset: domain.SOL(), Amount: q.Fee, Authority: authority},
	); err != nil {
		return TradeResult{}, fmt.Errorf("sell settlement failed: %w", err)
	}

	c.RealSolReserves -= q.ReserveSol
	c.RealTokenReserves = realToken
	ent.state = c

	e.logger.Debug("Sell executed",
		zap.String("mint", mint.String()),
		zap.String("seller", seller.String()),
		zap.Uint64("token_in", tokenIn),
		zap.Uint64("sol_out", q.SolAmount),
		zap.Uint64("fee", q.Fee),
		zap.Uint64("real_sol_reserves", c.RealSolReserves),
		zap.Uint64("real_token_reserves", c.RealTokenReserves))

	e.publishTrade(seller, q, c)
	return TradeResult{Quote: q, Mint: c.Mint, Actor: seller, Curve: c}, nil
}

func (e *Engine) publishTrade(actor solana.PublicKey, q Quote, c Curve) {
	events.Publish(e.events, e.logger, events.TradeExecutedEvent{
		BaseEvent:         events.NewBase(events.TradeExecuted),
		Side:              q.Side,
		Actor:             actor,
		Mint:              c.Mint,
		SolAmount:         q.SolAmount,
		TokenAmount:       q.TokenAmount,
		Fee:               q.Fee,
		RealSolReserves:   c.RealSolReserves,
		RealTokenReserves: c.RealTokenReserves,
	})
}

// Graduate drains the curve into migration custody. plan runs under the
// curve lock against the current state and decides the migration fee and
// destination; the curve then becomes migrated with zero reserves and its
// pool set to the vault.
func (e *Engine) Graduate(ctx context.Context, mint solana.PublicKey, plan func(Curve) (Graduation, error)) (Graduated, error) {
	ent, err := e.lookup(mint)
	if err != nil {
		return Graduated{}, err
	}

	ent.mu.Lock()
	defer ent.mu.Unlock()

	c := ent.state
	if c.Migrated {
		return Graduated{}, fmt.Errorf("curve %s: %w", mint, domain.ErrAlreadyMigrated)
	}

	g, err := plan(c)
	if err != nil {
		return Graduated{}, err
	}
	if c.RealSolReserves <= g.Fee {
		return Graduated{}, fmt.Errorf("reserve %d does not cover migration fee %d: %w",
			c.RealSolReserves, g.Fee, domain.ErrInsufficientSOLForMigration)
	}
	out := Graduated{
		SolMigrated:   c.RealSolReserves - g.Fee,
		TokenMigrated: c.RealTokenReserves,
		Fee:           g.Fee,
	}

	authority := ledger.CurveAuthority(mint)
	if err := e.ledger.Transfer(ctx,
		ledger.Move{From: ledger.CurveSolVault(mint), To: g.Treasury, Asset: domain.SOL(), Amount: g.Fee, Authority: authority},
		ledger.Move{From: ledger.CurveSolVault(mint), To: g.Vault, Asset: domain.SOL(), Amount: out.SolMigrated, Authority: authority},
		ledger.Move{From: ledger.CurveTokenVault(mint), To: g.Vault, Asset: domain.Token(mint), Amount: out.TokenMigrated, Authority: authority},
	); err != nil {
		return Graduated{}, fmt.Errorf("migration settlement failed: %w", err)
	}

	c.Migrated = true
	c.RealSolReserves = 0
	c.RealTokenReserves = 0
	c.Pool = g.Vault
	ent.state = c
	out.Curve = c

	e.logger.Info("Bonding curve graduated",
		zap.String("mint", mint.String()),
		zap.String("vault", g.Vault.String()),
		zap.Uint64("sol_migrated", out.SolMigrated),
		zap.Uint64("tokens_migrated", out.TokenMigrated),
		zap.Uint64("migration_fee", out.Fee))
	return out, nil
}

// Sweep moves lamports that the curve does not account for out of its SOL
// vault. plan runs under the curve lock and returns the amount to move. A
// sweep never leaves the vault below the curve's real SOL reserve.
func (e *Engine) Sweep(ctx context.Context, mint, to solana.PublicKey, plan func(Curve) (uint64, error)) (uint64, error) {
	ent, err := e.lookup(mint)
	if err != nil {
		return 0, err
	}

	ent.mu.Lock()
	defer ent.mu.Unlock()

	amount, err := plan(ent.state)
	if err != nil {
		return 0, err
	}

	vault := ledger.CurveSolVault(mint)
	held, err := e.ledger.Balance(ctx, vault, domain.SOL())
	if err != nil {
		return 0, fmt.Errorf("failed to read vault balance: %w", err)
	}
	floor, err := safemath.Add64(ent.state.RealSolReserves, amount)
	if err != nil {
		return 0, err
	}
	if held < floor {
		return 0, fmt.Errorf("sweep of %d leaves vault %d below reserve %d: %w",
			amount, held, ent.state.RealSolReserves, domain.ErrInsufficientFees)
	}

	if err := e.ledger.Transfer(ctx, ledger.Move{
		From:      vault,
		To:        to,
		Asset:     domain.SOL(),
		Amount:    amount,
		Authority: ledger.CurveAuthority(mint),
	}); err != nil {
		return 0, fmt.Errorf("sweep failed: %w", err)
	}
	return amount, nil
}

// RecordPool points a migrated curve at its external pool.
func (e *Engine) RecordPool(mint, pool solana.PublicKey) error {
	ent, err := e.lookup(mint)
	if err != nil {
		return err
	}

	ent.mu.Lock()
	defer ent.mu.Unlock()

	if !ent.state.Migrated {
		return fmt.Errorf("curve %s: %w", mint, domain.ErrNotMigrated)
	}
	ent.state.Pool = pool
	return nil
}

// Curve returns a snapshot of the curve for mint.
func (e *Engine) Curve(mint solana.PublicKey) (Curve, error) {
	ent, err := e.lookup(mint)
	if err != nil {
		return Curve{}, err
	}
	ent.mu.Lock()
	defer ent.mu.Unlock()
	return ent.state, nil
}

// Curves returns snapshots of every curve ordered by creation time.
func (e *Engine) Curves() []Curve {
	e.mu.RLock()
	entries := make([]*entry, 0, len(e.curves))
	for _, ent := range e.curves {
		entries = append(entries, ent)
	}
	e.mu.RUnlock()

	out := make([]Curve, 0, len(entries))
	for _, ent := range entries {
		ent.mu.Lock()
		out = append(out, ent.state)
		ent.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Mint.String() < out[j].Mint.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// QuoteBuy prices a buy against the current state without executing it.
func (e *Engine) QuoteBuy(mint solana.PublicKey, solIn uint64) (Quote, error) {
	c, p, err := e.snapshot(mint)
	if err != nil {
		return Quote{}, err
	}
	return QuoteBuy(c, p.FeeBasisPoints, solIn)
}

// QuoteSell prices a sell against the current state without executing it.
func (e *Engine) QuoteSell(mint solana.PublicKey, tokenIn uint64) (Quote, error) {
	c, p, err := e.snapshot(mint)
	if err != nil {
		return Quote{}, err
	}
	return QuoteSell(c, p.FeeBasisPoints, tokenIn)
}

// BuyCost returns the lamports, fee included, needed to buy tokens now.
func (e *Engine) BuyCost(mint solana.PublicKey, tokens uint64) (uint64, error) {
	c, p, err := e.snapshot(mint)
	if err != nil {
		return 0, err
	}
	return BuyCost(c, p.FeeBasisPoints, tokens)
}

func (e *Engine) snapshot(mint solana.PublicKey) (Curve, policy.Policy, error) {
	p, err := e.policy.Snapshot()
	if err != nil {
		return Curve{}, policy.Policy{}, err
	}
	c, err := e.Curve(mint)
	if err != nil {
		return Curve{}, policy.Policy{}, err
	}
	return c, p, nil
}
