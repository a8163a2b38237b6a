package models

import "time"

// Migration mirrors a migration record. Status follows
// not_eligible -> threshold_reached -> migrated -> locked.
type Migration struct {
	BaseModel
	Mint          string  `gorm:"unique;not null;type:varchar(44)"`
	Pool          string  `gorm:"type:varchar(44)"`
	Status        string  `gorm:"index;not null;type:varchar(20)"`
	SolMigrated   uint64  `gorm:"type:numeric(20,0)"`
	TokenMigrated uint64  `gorm:"type:numeric(20,0)"`
	MigrationFee  uint64  `gorm:"type:numeric(20,0)"`
	LpBurned      *uint64 `gorm:"type:numeric(20,0)"`
	EligibleAt    *time.Time
	MigratedAt    *time.Time
	LockedAt      *time.Time
}

// FeeWithdrawal records platform fees moved to the treasury.
type FeeWithdrawal struct {
	BaseModel
	EventID     string    `gorm:"unique;not null;type:varchar(36)"`
	Mint        string    `gorm:"index;not null;type:varchar(44)"`
	Authority   string    `gorm:"not null;type:varchar(44)"`
	Treasury    string    `gorm:"not null;type:varchar(44)"`
	Amount      uint64    `gorm:"type:numeric(20,0);not null"`
	WithdrawnAt time.Time `gorm:"not null"`
}

// VestingClaim records a release from vesting escrow.
type VestingClaim struct {
	BaseModel
	EventID      string    `gorm:"unique;not null;type:varchar(36)"`
	Beneficiary  string    `gorm:"index:idx_claim_owner;not null;type:varchar(44)"`
	Mint         string    `gorm:"index:idx_claim_owner;not null;type:varchar(44)"`
	Amount       uint64    `gorm:"type:numeric(20,0);not null"`
	TotalClaimed uint64    `gorm:"type:numeric(20,0);not null"`
	ClaimedAt    time.Time `gorm:"not null"`
}
