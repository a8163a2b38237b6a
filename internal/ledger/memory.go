package ledger

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/rovshanmuradov/fundly/internal/domain"
	"go.uber.org/zap"
)

type balanceKey struct {
	account solana.PublicKey
	asset   domain.Asset
}

// Memory is an in-process Ledger. Each Transfer batch is validated against a
// scratch view of the touched balances and committed under one lock, so a
// failing move leaves every balance untouched.
type Memory struct {
	mu       sync.Mutex
	balances map[balanceKey]uint64
	custody  map[solana.PublicKey]solana.PublicKey
	burned   map[domain.Asset]uint64
	logger   *zap.Logger
}

// NewMemory creates an empty in-memory ledger.
func NewMemory(logger *zap.Logger) *Memory {
	return &Memory{
		balances: make(map[balanceKey]uint64),
		custody:  make(map[solana.PublicKey]solana.PublicKey),
		burned:   make(map[domain.Asset]uint64),
		logger:   logger.Named("ledger"),
	}
}

// Deposit credits account with newly issued value. It is the faucet used to
// fund holders; nothing in the engines calls it.
func (m *Memory) Deposit(account solana.PublicKey, asset domain.Asset, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := balanceKey{account: account, asset: asset}
	if m.balances[key] > math.MaxUint64-amount {
		return fmt.Errorf("deposit %d %s to %s: %w", amount, asset, account, domain.ErrArithmeticOverflow)
	}
	m.balances[key] += amount
	return nil
}

// Withdraw retires amount of asset from account, reversing a Deposit.
func (m *Memory) Withdraw(account solana.PublicKey, asset domain.Asset, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := balanceKey{account: account, asset: asset}
	if m.balances[key] < amount {
		return fmt.Errorf("withdraw %d %s from %s: balance %d: %w",
			amount, asset, account, m.balances[key], domain.ErrTransferFailed)
	}
	m.balances[key] -= amount
	if m.balances[key] == 0 {
		delete(m.balances, key)
	}
	return nil
}

// OpenCustody registers account as custody controlled by authority.
func (m *Memory) OpenCustody(_ context.Context, account, authority solana.PublicKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.custody[account]; ok {
		if current != authority {
			return fmt.Errorf("custody %s already controlled by %s: %w", account, current, domain.ErrUnauthorized)
		}
		return nil
	}
	m.custody[account] = authority

	m.logger.Debug("Custody opened",
		zap.String("account", account.String()),
		zap.String("authority", authority.String()))
	return nil
}

// Balance returns the balance of account in asset.
func (m *Memory) Balance(_ context.Context, account solana.PublicKey, asset domain.Asset) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[balanceKey{account: account, asset: asset}], nil
}

// Burned returns the total amount of asset moved into BurnAddress.
func (m *Memory) Burned(asset domain.Asset) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.burned[asset]
}

// Transfer applies all moves or none of them. Zero-amount moves are skipped.
func (m *Memory) Transfer(ctx context.Context, moves ...Move) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrTransferFailed, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	pending := make(map[balanceKey]uint64)
	burned := make(map[domain.Asset]uint64)
	get := func(k balanceKey) uint64 {
		if v, ok := pending[k]; ok {
			return v
		}
		return m.balances[k]
	}

	for i, mv := range moves {
		if mv.Amount == 0 {
			continue
		}
		if mv.From == BurnAddress {
			return fmt.Errorf("%w: move %d (%s): cannot spend from burn address", domain.ErrTransferFailed, i, mv)
		}
		if authority, ok := m.custody[mv.From]; ok && authority != mv.Authority {
			return fmt.Errorf("%w: move %d (%s): %w", domain.ErrTransferFailed, i, mv, domain.ErrUnauthorized)
		}

		fromKey := balanceKey{account: mv.From, asset: mv.Asset}
		balance := get(fromKey)
		if balance < mv.Amount {
			return fmt.Errorf("%w: move %d (%s): balance %d", domain.ErrTransferFailed, i, mv, balance)
		}
		pending[fromKey] = balance - mv.Amount

		if mv.To == BurnAddress {
			burned[mv.Asset] += mv.Amount
			continue
		}

		toKey := balanceKey{account: mv.To, asset: mv.Asset}
		target := get(toKey)
		if target > math.MaxUint64-mv.Amount {
			return fmt.Errorf("%w: move %d (%s): %w", domain.ErrTransferFailed, i, mv, domain.ErrArithmeticOverflow)
		}
		pending[toKey] = target + mv.Amount
	}

	for k, v := range pending {
		if v == 0 {
			delete(m.balances, k)
			continue
		}
		m.balances[k] = v
	}
	for asset, amount := range burned {
		m.burned[asset] += amount
	}

	if ce := m.logger.Check(zap.DebugLevel, "Transfer batch applied"); ce != nil {
		ce.Write(zap.Int("moves", len(moves)))
	}
	return nil
}
