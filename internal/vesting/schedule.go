// Package vesting locks token allocations in escrow and releases them
// linearly after a cliff.
package vesting

import (
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rovshanmuradov/fundly/internal/safemath"
)

// Schedule is one linear unlock with a cliff. Unlocking is continuous;
// ReleaseInterval is informational.
type Schedule struct {
	Beneficiary     solana.PublicKey
	Mint            solana.PublicKey
	TotalAmount     uint64
	ClaimedAmount   uint64
	StartTime       time.Time
	CliffTime       time.Time
	EndTime         time.Time
	ReleaseInterval time.Duration
	LastClaimTime   time.Time
}

// UnlockedAmount is 0 before the cliff, TotalAmount from EndTime on, and
// floor(total*(now-start)/(end-start)) in between.
func UnlockedAmount(s Schedule, now time.Time) uint64 {
	if now.Before(s.CliffTime) {
		return 0
	}
	if !now.Before(s.EndTime) {
		return s.TotalAmount
	}

	elapsed := now.Sub(s.StartTime)
	duration := s.EndTime.Sub(s.StartTime)
	if elapsed <= 0 || duration <= 0 {
		return 0
	}
	v, err := safemath.MulDiv(safemath.U64(s.TotalAmount), safemath.U64(uint64(elapsed)), safemath.U64(uint64(duration)), safemath.RoundDown)
	if err != nil {
		return 0
	}
	// elapsed < duration keeps the quotient below TotalAmount.
	return v.Uint64()
}

// ClaimablePreview is what Claim would release at now, saturating at zero.
func ClaimablePreview(s Schedule, now time.Time) uint64 {
	unlocked := UnlockedAmount(s, now)
	if unlocked <= s.ClaimedAmount {
		return 0
	}
	return unlocked - s.ClaimedAmount
}

// Locked is the amount still held in escrow.
func (s Schedule) Locked() uint64 {
	return s.TotalAmount - s.ClaimedAmount
}
