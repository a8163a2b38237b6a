package dex

import (
	"context"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/rovshanmuradov/fundly/internal/domain"
	"github.com/rovshanmuradov/fundly/internal/ledger"
	"github.com/rovshanmuradov/fundly/internal/safemath"
	"go.uber.org/zap"
)

// PoolInfo describes a pool created by the in-memory integration.
type PoolInfo struct {
	Address     solana.PublicKey
	Mint        solana.PublicKey
	SolAmount   uint64
	TokenAmount uint64
	LPSupply    uint64
	LPRecipient solana.PublicKey
}

// Memory is a constant-product pool integration settled on the in-memory
// ledger. LP supply is sqrt(sol*token), as in a fresh AMM pool.
type Memory struct {
	mu      sync.Mutex
	ledger  *ledger.Memory
	program solana.PublicKey
	deposit solana.PublicKey
	pools   map[solana.PublicKey]PoolInfo
	logger  *zap.Logger
}

// NewMemory creates an in-memory integration whose accounts derive from program.
func NewMemory(l *ledger.Memory, program solana.PublicKey, logger *zap.Logger) *Memory {
	if program.IsZero() {
		program = ledger.ProgramID
	}
	deposit, _, err := solana.FindProgramAddress([][]byte{[]byte("deposit")}, program)
	if err != nil {
		panic(fmt.Sprintf("failed to derive deposit account: %v", err))
	}
	return &Memory{
		ledger:  l,
		program: program,
		deposit: deposit,
		pools:   make(map[solana.PublicKey]PoolInfo),
		logger:  logger.Named("dex"),
	}
}

func (m *Memory) Name() string {
	return "memory-amm"
}

func (m *Memory) DepositAccount() solana.PublicKey {
	return m.deposit
}

// PoolAddress returns the pool account the integration uses for mint.
func (m *Memory) PoolAddress(mint solana.PublicKey) (solana.PublicKey, error) {
	pool, _, err := solana.FindProgramAddress([][]byte{[]byte("pool"), mint.Bytes()}, m.program)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive pool address: %w", err)
	}
	return pool, nil
}

// CreatePool moves the deposited funds into a new pool account and issues LP
// tokens to the recipient.
func (m *Memory) CreatePool(ctx context.Context, req PoolRequest) (solana.PublicKey, error) {
	if req.SolAmount == 0 || req.TokenAmount == 0 {
		return solana.PublicKey{}, fmt.Errorf("pool needs both sides: %w", domain.ErrInvalidAmount)
	}
	pool, err := m.PoolAddress(req.Mint)
	if err != nil {
		return solana.PublicKey{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.pools[pool]; ok {
		return solana.PublicKey{}, fmt.Errorf("pool %s: %w", pool, domain.ErrPoolExists)
	}

	for _, account := range []solana.PublicKey{m.deposit, pool} {
		if err := m.ledger.OpenCustody(ctx, account, account); err != nil {
			return solana.PublicKey{}, err
		}
	}
	if err := m.ledger.Transfer(ctx,
		ledger.Move{From: m.deposit, To: pool, Asset: domain.SOL(), Amount: req.SolAmount, Authority: m.deposit},
		ledger.Move{From: m.deposit, To: pool, Asset: domain.Token(req.Mint), Amount: req.TokenAmount, Authority: m.deposit},
	); err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to fund pool: %w", err)
	}

	lp, err := safemath.Uint64(safemath.Sqrt(safemath.Mul(safemath.U64(req.SolAmount), safemath.U64(req.TokenAmount))))
	if err != nil {
		return solana.PublicKey{}, err
	}
	if err := m.ledger.Deposit(req.LPRecipient, domain.LP(pool), lp); err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to issue lp tokens: %w", err)
	}

	m.pools[pool] = PoolInfo{
		Address:     pool,
		Mint:        req.Mint,
		SolAmount:   req.SolAmount,
		TokenAmount: req.TokenAmount,
		LPSupply:    lp,
		LPRecipient: req.LPRecipient,
	}

	m.logger.Info("Pool created",
		zap.String("pool", pool.String()),
		zap.String("mint", req.Mint.String()),
		zap.Uint64("sol_amount", req.SolAmount),
		zap.Uint64("token_amount", req.TokenAmount),
		zap.Uint64("lp_supply", lp))
	return pool, nil
}

func (m *Memory) ReportLPReceipt(_ context.Context, pool solana.PublicKey) (uint64, error) {
	info, err := m.Pool(pool)
	if err != nil {
		return 0, err
	}
	return info.LPSupply, nil
}

// Pool returns the state of a pool created by this integration.
func (m *Memory) Pool(pool solana.PublicKey) (PoolInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, ok := m.pools[pool]
	if !ok {
		return PoolInfo{}, fmt.Errorf("%w: %s", ErrUnknownPool, pool)
	}
	return info, nil
}
