package models

import "time"

type Trade struct {
	BaseModel
	EventID           string    `gorm:"unique;not null;type:varchar(36)"`
	Mint              string    `gorm:"index;not null;type:varchar(44)"`
	Actor             string    `gorm:"index;not null;type:varchar(44)"`
	Side              string    `gorm:"not null;type:varchar(4)"`
	SolAmount         uint64    `gorm:"type:numeric(20,0);not null"`
	TokenAmount       uint64    `gorm:"type:numeric(20,0);not null"`
	Fee               uint64    `gorm:"type:numeric(20,0);not null"`
	RealSolReserves   uint64    `gorm:"type:numeric(20,0);not null"`
	RealTokenReserves uint64    `gorm:"type:numeric(20,0);not null"`
	ExecutedAt        time.Time `gorm:"index;not null"`
}
