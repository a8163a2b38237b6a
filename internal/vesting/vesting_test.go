package vesting

import (
	"context"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rovshanmuradov/fundly/internal/domain"
	"github.com/rovshanmuradov/fundly/internal/events"
	"github.com/rovshanmuradov/fundly/internal/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"
)

var epoch = time.Unix(1_700_000_000, 0).UTC()

func at(seconds int) time.Time {
	return epoch.Add(time.Duration(seconds) * time.Second)
}

type fixture struct {
	engine      *Engine
	ledger      *ledger.Memory
	events      *events.Recorder
	beneficiary solana.PublicKey
	mint        solana.PublicKey
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	l := ledger.NewMemory(logger)
	rec := &events.Recorder{}
	f := &fixture{
		engine:      NewEngine(l, rec, logger),
		ledger:      l,
		events:      rec,
		beneficiary: solana.NewWallet().PublicKey(),
		mint:        solana.NewWallet().PublicKey(),
	}
	require.NoError(t, l.Deposit(f.beneficiary, domain.Token(f.mint), 10_000))
	return f
}

// scenario: total 1200, start 0, cliff 100, duration 1000.
func (f *fixture) scenario(t *testing.T) Schedule {
	t.Helper()
	s, err := f.engine.CreateSchedule(context.Background(), Params{
		Beneficiary:     f.beneficiary,
		Mint:            f.mint,
		TotalAmount:     1_200,
		StartTime:       at(0),
		CliffDuration:   100 * time.Second,
		VestingDuration: 1_000 * time.Second,
		ReleaseInterval: 10 * time.Second,
	})
	require.NoError(t, err)
	return s
}

func (f *fixture) held(t *testing.T, account solana.PublicKey) uint64 {
	t.Helper()
	v, err := f.ledger.Balance(context.Background(), account, domain.Token(f.mint))
	require.NoError(t, err)
	return v
}

func TestCreateSchedule(t *testing.T) {
	f := newFixture(t)
	s := f.scenario(t)

	assert.Equal(t, at(100), s.CliffTime)
	assert.Equal(t, at(1_000), s.EndTime)
	assert.Equal(t, s.StartTime, s.LastClaimTime)
	assert.Zero(t, s.ClaimedAmount)
	assert.Equal(t, uint64(1_200), s.Locked())

	assert.Equal(t, uint64(1_200), f.held(t, ledger.VestingEscrow(f.mint, f.beneficiary)))
	assert.Equal(t, uint64(8_800), f.held(t, f.beneficiary))
	assert.Len(t, f.events.OfType(events.VestingScheduleCreated), 1)

	_, err := f.engine.CreateSchedule(context.Background(), Params{
		Beneficiary:     f.beneficiary,
		Mint:            f.mint,
		TotalAmount:     1,
		StartTime:       at(0),
		VestingDuration: time.Second,
	})
	assert.ErrorIs(t, err, domain.ErrScheduleExists)
}

func TestCreateScheduleRejects(t *testing.T) {
	f := newFixture(t)
	base := Params{
		Beneficiary:     f.beneficiary,
		Mint:            f.mint,
		TotalAmount:     100,
		StartTime:       at(0),
		CliffDuration:   10 * time.Second,
		VestingDuration: 100 * time.Second,
	}

	tests := []struct {
		name    string
		mutate  func(p *Params)
		wantErr error
	}{
		{name: "zero amount", mutate: func(p *Params) { p.TotalAmount = 0 }, wantErr: domain.ErrInvalidAmount},
		{name: "zero duration", mutate: func(p *Params) { p.VestingDuration = 0 }, wantErr: domain.ErrInvalidVestingDuration},
		{name: "negative duration", mutate: func(p *Params) { p.VestingDuration = -time.Second }, wantErr: domain.ErrInvalidVestingDuration},
		{name: "cliff equals duration", mutate: func(p *Params) { p.CliffDuration = p.VestingDuration }, wantErr: domain.ErrInvalidCliffDuration},
		{name: "cliff beyond duration", mutate: func(p *Params) { p.CliffDuration = 2 * p.VestingDuration }, wantErr: domain.ErrInvalidCliffDuration},
		{name: "negative cliff", mutate: func(p *Params) { p.CliffDuration = -time.Second }, wantErr: domain.ErrInvalidCliffDuration},
		{name: "unfunded", mutate: func(p *Params) { p.Funder = solana.NewWallet().PublicKey() }, wantErr: domain.ErrTransferFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base
			tt.mutate(&p)
			_, err := f.engine.CreateSchedule(context.Background(), p)
			assert.ErrorIs(t, err, tt.wantErr)

			_, err = f.engine.Schedule(f.beneficiary, f.mint)
			assert.ErrorIs(t, err, domain.ErrScheduleNotFound)
		})
	}
}

func TestScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.scenario(t)

	_, err := f.engine.Claim(ctx, f.beneficiary, f.mint, at(50))
	assert.ErrorIs(t, err, domain.ErrCliffNotReached)

	unlocked, err := f.engine.UnlockedAmount(f.beneficiary, f.mint, at(100))
	require.NoError(t, err)
	assert.Equal(t, uint64(120), unlocked)

	claimed, err := f.engine.Claim(ctx, f.beneficiary, f.mint, at(100))
	require.NoError(t, err)
	assert.Equal(t, uint64(120), claimed)

	unlocked, err = f.engine.UnlockedAmount(f.beneficiary, f.mint, at(1_000))
	require.NoError(t, err)
	assert.Equal(t, uint64(1_200), unlocked)

	claimed, err = f.engine.Claim(ctx, f.beneficiary, f.mint, at(1_000))
	require.NoError(t, err)
	assert.Equal(t, uint64(1_080), claimed)

	_, err = f.engine.Claim(ctx, f.beneficiary, f.mint, at(1_000))
	assert.ErrorIs(t, err, domain.ErrNoTokensToClaim)
	_, err = f.engine.Claim(ctx, f.beneficiary, f.mint, at(5_000))
	assert.ErrorIs(t, err, domain.ErrNoTokensToClaim)

	s, err := f.engine.Schedule(f.beneficiary, f.mint)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_200), s.ClaimedAmount)
	assert.Equal(t, at(1_000), s.LastClaimTime)
	assert.Zero(t, f.held(t, ledger.VestingEscrow(f.mint, f.beneficiary)))
	assert.Equal(t, uint64(10_000), f.held(t, f.beneficiary))

	claims := f.events.OfType(events.VestingClaimed)
	require.Len(t, claims, 2)
	last := claims[1].(events.VestingClaimedEvent)
	assert.Equal(t, uint64(1_080), last.Amount)
	assert.Equal(t, uint64(1_200), last.TotalClaimed)
}

func TestUnlockedAmountIsMonotonic(t *testing.T) {
	s := Schedule{
		TotalAmount: 1_200,
		StartTime:   at(0),
		CliffTime:   at(100),
		EndTime:     at(1_000),
	}

	var prev uint64
	for sec := -10; sec <= 1_100; sec++ {
		got := UnlockedAmount(s, at(sec))
		require.GreaterOrEqual(t, got, prev, "t=%d", sec)
		switch {
		case sec < 100:
			require.Zero(t, got, "t=%d", sec)
		case sec >= 1_000:
			require.Equal(t, uint64(1_200), got, "t=%d", sec)
		default:
			require.Equal(t, uint64(1_200*sec/1_000), got, "t=%d", sec)
		}
		prev = got
	}
}

func TestUnlockedAmountWidens(t *testing.T) {
	s := Schedule{
		TotalAmount: 1 << 63,
		StartTime:   at(0),
		CliffTime:   at(0),
		EndTime:     epoch.Add(100 * 365 * 24 * time.Hour),
	}
	half := epoch.Add(50 * 365 * 24 * time.Hour)
	assert.Equal(t, uint64(1<<62), UnlockedAmount(s, half))
}

func TestClaimIsIdempotentAtSameInstant(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.scenario(t)

	first, err := f.engine.Claim(ctx, f.beneficiary, f.mint, at(555))
	require.NoError(t, err)
	assert.Equal(t, uint64(666), first)

	_, err = f.engine.Claim(ctx, f.beneficiary, f.mint, at(555))
	assert.ErrorIs(t, err, domain.ErrNoTokensToClaim)

	// An earlier instant never claws back.
	_, err = f.engine.Claim(ctx, f.beneficiary, f.mint, at(300))
	assert.ErrorIs(t, err, domain.ErrNoTokensToClaim)
}

func TestClaimablePreview(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.scenario(t)

	preview := func(sec int) uint64 {
		v, err := f.engine.ClaimablePreview(f.beneficiary, f.mint, at(sec))
		require.NoError(t, err)
		return v
	}

	assert.Zero(t, preview(50))
	assert.Equal(t, uint64(600), preview(500))
	assert.Equal(t, uint64(600), preview(500), "preview never mutates")

	_, err := f.engine.Claim(ctx, f.beneficiary, f.mint, at(500))
	require.NoError(t, err)
	assert.Zero(t, preview(500))
	assert.Zero(t, preview(200), "saturates instead of failing")
	assert.Equal(t, uint64(600), preview(1_000))

	_, err = f.engine.ClaimablePreview(solana.NewWallet().PublicKey(), f.mint, at(0))
	assert.ErrorIs(t, err, domain.ErrScheduleNotFound)
}

func TestConcurrentClaims(t *testing.T) {
	f := newFixture(t)
	f.scenario(t)

	g, ctx := errgroup.WithContext(context.Background())
	for sec := 100; sec <= 1_000; sec += 50 {
		g.Go(func() error {
			_, err := f.engine.Claim(ctx, f.beneficiary, f.mint, at(sec))
			if err != nil && !isNoTokens(err) {
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	s, err := f.engine.Schedule(f.beneficiary, f.mint)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_200), s.ClaimedAmount, "the claim at the end time releases the rest")
	assert.Equal(t, s.ClaimedAmount, f.held(t, f.beneficiary)-8_800)
}

func isNoTokens(err error) bool {
	return domain.CodeOf(err) == domain.ErrNoTokensToClaim.Code
}
