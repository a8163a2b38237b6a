// Package launchpad wires the policy store, curve engine, fee ledger,
// migration coordinator and vesting engine around one ledger and event bus.
package launchpad

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rovshanmuradov/fundly/internal/config"
	"github.com/rovshanmuradov/fundly/internal/curve"
	"github.com/rovshanmuradov/fundly/internal/dex"
	"github.com/rovshanmuradov/fundly/internal/domain"
	"github.com/rovshanmuradov/fundly/internal/events"
	"github.com/rovshanmuradov/fundly/internal/export"
	"github.com/rovshanmuradov/fundly/internal/fees"
	"github.com/rovshanmuradov/fundly/internal/ledger"
	"github.com/rovshanmuradov/fundly/internal/metrics"
	"github.com/rovshanmuradov/fundly/internal/migration"
	"github.com/rovshanmuradov/fundly/internal/policy"
	"github.com/rovshanmuradov/fundly/internal/storage"
	"github.com/rovshanmuradov/fundly/internal/vesting"
	"go.uber.org/zap"
)

// ServiceConfig configures a Service. Storage is optional.
type ServiceConfig struct {
	Config  *config.Config
	Logger  *zap.Logger
	Storage storage.Storage
}

// Service owns one launchpad deployment.
type Service struct {
	cfg        *config.Config
	ledger     *ledger.Memory
	bus        *events.Bus
	policies   *policy.Store
	curves     *curve.Engine
	fees       *fees.Ledger
	dex        dex.Integration
	migrations *migration.Coordinator
	vesting    *vesting.Engine
	metrics    *metrics.Collector
	journal    *export.Journal
	shutdown   *ShutdownHandler
	logger     *zap.Logger
}

// NewService builds every component and initializes the global policy from
// the configured seed values.
func NewService(ctx context.Context, sc *ServiceConfig) (*Service, error) {
	logger := sc.Logger.Named("launchpad")

	p, err := sc.Config.ToPolicy()
	if err != nil {
		return nil, fmt.Errorf("invalid policy configuration: %w", err)
	}

	s := &Service{
		cfg:      sc.Config,
		ledger:   ledger.NewMemory(sc.Logger),
		bus:      events.NewBus(sc.Logger, sc.Config.EventBufferSize),
		shutdown: NewShutdownHandler(logger),
		logger:   logger,
	}
	s.shutdown.AddFunc("event_bus", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.bus.Shutdown(ctx)
	})

	integration, err := dex.New(sc.Config.Dex.Backend, s.ledger, p.DexProgram, sc.Logger)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.dex = dex.NewRetrying(integration, sc.Config.Dex.Retries, sc.Config.Dex.MaxElapsed, sc.Config.Dex.RetryDelay, sc.Logger)

	s.policies = policy.NewStore(s.ledger, s.bus, sc.Logger)
	s.curves = curve.NewEngine(s.policies, s.ledger, s.bus, sc.Logger)
	s.fees = fees.NewLedger(s.policies, s.curves, s.ledger, s.bus, sc.Logger)
	s.migrations = migration.NewCoordinator(s.policies, s.curves, s.ledger, s.dex, s.bus, sc.Logger)
	s.vesting = vesting.NewEngine(s.ledger, s.bus, sc.Logger)
	s.migrations.Watch(s.bus)

	if sc.Config.MetricsEnabled {
		s.metrics = metrics.NewCollector()
		s.metrics.Attach(s.bus)
	}

	journal, err := export.NewJournal(sc.Config.JournalFile, sc.Logger)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.journal = journal
	journal.Attach(s.bus)
	s.shutdown.Add("journal", journal)

	if sc.Storage != nil {
		if err := sc.Storage.RunMigrations(); err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to migrate storage: %w", err)
		}
		storage.NewIndexer(sc.Storage, sc.Logger).Attach(s.bus)
		s.shutdown.Add("storage", sc.Storage)
	}

	if err := s.policies.Initialize(ctx, p); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to initialize policy: %w", err)
	}

	logger.Info("Launchpad ready",
		zap.String("authority", p.Authority.String()),
		zap.String("dex", s.dex.Name()),
		zap.Bool("metrics", s.metrics != nil),
		zap.Bool("storage", sc.Storage != nil))
	return s, nil
}

func (s *Service) Ledger() *ledger.Memory             { return s.ledger }
func (s *Service) Bus() *events.Bus                   { return s.bus }
func (s *Service) Policies() *policy.Store            { return s.policies }
func (s *Service) Curves() *curve.Engine              { return s.curves }
func (s *Service) Fees() *fees.Ledger                 { return s.fees }
func (s *Service) Integration() dex.Integration       { return s.dex }
func (s *Service) Migrations() *migration.Coordinator { return s.migrations }
func (s *Service) Vesting() *vesting.Engine           { return s.vesting }
func (s *Service) Journal() *export.Journal           { return s.journal }

// Metrics returns nil when metrics are disabled.
func (s *Service) Metrics() *metrics.Collector { return s.metrics }

// Launch mints the configured supply to creator and opens a curve for it.
func (s *Service) Launch(ctx context.Context, mint, creator solana.PublicKey) (curve.Curve, error) {
	p, err := s.policies.Snapshot()
	if err != nil {
		return curve.Curve{}, err
	}
	if _, err := s.curves.Curve(mint); err == nil {
		return curve.Curve{}, fmt.Errorf("curve %s: %w", mint, domain.ErrCurveExists)
	}
	if err := s.ledger.Deposit(creator, domain.Token(mint), p.InitialTokenSupply); err != nil {
		return curve.Curve{}, fmt.Errorf("failed to mint supply: %w", err)
	}

	c, err := s.curves.Initialize(ctx, mint, creator, p.InitialTokenSupply)
	if err != nil {
		// Retire the supply minted for this launch.
		if rerr := s.ledger.Withdraw(creator, domain.Token(mint), p.InitialTokenSupply); rerr != nil {
			s.logger.Error("Failed to retire minted supply",
				zap.String("mint", mint.String()),
				zap.String("creator", creator.String()),
				zap.Uint64("amount", p.InitialTokenSupply),
				zap.Error(rerr))
		}
		return curve.Curve{}, err
	}
	return c, nil
}

// Graduate runs the full post-threshold sequence for mint: migrate, create the
// pool and burn the LP tokens it returned.
func (s *Service) Graduate(ctx context.Context, authority, mint solana.PublicKey) (migration.Record, error) {
	if _, err := s.migrations.Migrate(ctx, authority, mint); err != nil {
		return migration.Record{}, err
	}
	if _, err := s.migrations.CreatePool(ctx, authority, mint); err != nil {
		return migration.Record{}, err
	}
	return s.migrations.LockReportedLiquidity(ctx, authority, mint)
}

// Drain waits until every queued event has been delivered or ctx ends.
func (s *Service) Drain(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if s.bus.Pending() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Shutdown stops the bus and closes the journal and storage.
func (s *Service) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down launchpad")
	return s.shutdown.Shutdown(ctx)
}

// Close implements io.Closer
func (s *Service) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.Shutdown(ctx)
}
