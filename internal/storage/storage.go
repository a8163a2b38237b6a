// internal/storage/storage.go
package storage

import (
	"context"
	"errors"

	"github.com/rovshanmuradov/fundly/internal/storage/models"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

// Storage defines the persistence contract of the event indexer.
type Storage interface {
	// Trades
	SaveTrade(ctx context.Context, trade *models.Trade) error
	ListTrades(ctx context.Context, mint string, limit, offset int) ([]*models.Trade, error)

	// Migrations
	UpsertMigration(ctx context.Context, migration *models.Migration) error
	GetMigration(ctx context.Context, mint string) (*models.Migration, error)

	// Fees and vesting
	SaveFeeWithdrawal(ctx context.Context, withdrawal *models.FeeWithdrawal) error
	SaveVestingClaim(ctx context.Context, claim *models.VestingClaim) error

	RunMigrations() error
	Close() error
}
