package migration

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// Status is the migration phase of one asset.
type Status int

const (
	StatusNotEligible Status = iota
	StatusThresholdReached
	StatusMigrated
	StatusLocked
)

func (s Status) String() string {
	switch s {
	case StatusNotEligible:
		return "not_eligible"
	case StatusThresholdReached:
		return "threshold_reached"
	case StatusMigrated:
		return "migrated"
	case StatusLocked:
		return "locked"
	default:
		return "unknown"
	}
}

// Record is created exactly once per asset, by its first successful
// migration. LpBurned goes from nil to set exactly once.
type Record struct {
	Mint           solana.PublicKey
	Pool           solana.PublicKey
	Vault          solana.PublicKey
	SolMigrated    uint64
	TokenMigrated  uint64
	MigrationFee   uint64
	LpBurned       *uint64
	Status         Status
	MigratedAt     time.Time
	LockedAt       time.Time
	SolWithdrawn   uint64
	TokenWithdrawn uint64
}

// PoolCreated reports whether the pool reference points at an external pool
// rather than the migration vault.
func (r Record) PoolCreated() bool {
	return r.Pool != r.Vault
}
