package ledger

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// ProgramID anchors every derived custody address of the launchpad.
var ProgramID = solana.MustPublicKeyFromBase58("5dtdAtkPad7cnAtBq8QLy6mfVbtb81pTrg5gCYxfUCgK")

// BurnAddress destroys whatever is moved into it.
var BurnAddress = solana.MustPublicKeyFromBase58("1nc1nerator11111111111111111111111111111111")

func derive(seeds ...[]byte) solana.PublicKey {
	addr, _, err := solana.FindProgramAddress(seeds, ProgramID)
	if err != nil {
		// FindProgramAddress only fails when no bump in 255..0 is off-curve.
		panic(fmt.Sprintf("derive custody address: %v", err))
	}
	return addr
}

// PolicyAccount holds lamports escrowed by the global policy.
func PolicyAccount() solana.PublicKey {
	return derive([]byte("global_config"))
}

// CurveAuthority signs for both vaults of a bonding curve.
func CurveAuthority(mint solana.PublicKey) solana.PublicKey {
	return derive([]byte("bonding_curve"), mint.Bytes())
}

// CurveSolVault holds the real SOL reserves of a curve.
func CurveSolVault(mint solana.PublicKey) solana.PublicKey {
	return derive([]byte("bonding_curve_sol_vault"), mint.Bytes())
}

// CurveTokenVault holds the real token reserves of a curve.
func CurveTokenVault(mint solana.PublicKey) solana.PublicKey {
	return derive([]byte("bonding_curve_token"), mint.Bytes())
}

// MigrationAuthority signs for every migration vault.
func MigrationAuthority() solana.PublicKey {
	return derive([]byte("migration_authority"))
}

// MigrationVault holds drained curve liquidity and the LP tokens received for it.
func MigrationVault(mint solana.PublicKey) solana.PublicKey {
	return derive([]byte("migration_vault"), mint.Bytes())
}

// VestingAuthority signs for a schedule's escrow.
func VestingAuthority(mint, beneficiary solana.PublicKey) solana.PublicKey {
	return derive([]byte("vesting"), mint.Bytes(), beneficiary.Bytes())
}

// VestingEscrow holds the locked allocation of a schedule.
func VestingEscrow(mint, beneficiary solana.PublicKey) solana.PublicKey {
	return derive([]byte("vesting_vault"), mint.Bytes(), beneficiary.Bytes())
}
