// ====================================
// File: cmd/launchpad/main.go
// ====================================
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/fundly/internal/config"
	"github.com/rovshanmuradov/fundly/internal/export"
	"github.com/rovshanmuradov/fundly/internal/launchpad"
	"github.com/rovshanmuradov/fundly/internal/logger"
	"github.com/rovshanmuradov/fundly/internal/report"
	"github.com/rovshanmuradov/fundly/internal/storage"
	"github.com/rovshanmuradov/fundly/internal/storage/postgres"
)

type options struct {
	assets    int
	exportDir string
	format    string
}

func main() {
	configPath := flag.String("config", "configs/config.json", "path to the configuration file")
	opts := options{}
	flag.IntVar(&opts.assets, "assets", 3, "number of launches to simulate")
	flag.StringVar(&opts.exportDir, "export", "", "directory to export the trade journal to")
	flag.StringVar(&opts.format, "format", string(export.FormatCSV), "export format (csv or json)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(&logger.Config{
		LogFile:     cfg.Log.File,
		MaxSize:     cfg.Log.MaxSize,
		MaxAge:      cfg.Log.MaxAge,
		MaxBackups:  cfg.Log.MaxBackups,
		Compress:    cfg.Log.Compress,
		Development: cfg.Log.Development,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg, log, opts)
	stop()
	if err != nil {
		log.Error("Launchpad failed", zap.Error(err))
	}
	_ = logger.Sync(log)
	if err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger, opts options) error {
	var store storage.Storage
	if cfg.PostgresURL != "" {
		s, err := postgres.NewStorage(cfg.PostgresURL, log)
		if err != nil {
			return err
		}
		store = s
	}

	svc, err := launchpad.NewService(ctx, &launchpad.ServiceConfig{
		Config:  cfg,
		Logger:  log,
		Storage: store,
	})
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := svc.Shutdown(shutdownCtx); err != nil {
			log.Warn("Shutdown incomplete", zap.Error(err))
		}
	}()

	p, err := cfg.ToPolicy()
	if err != nil {
		return err
	}
	whales, err := launchpad.AnalyzeWhales(p, launchpad.DefaultWhaleBudgets)
	if err != nil {
		return err
	}
	costs, err := launchpad.AnalyzeCosts(p, launchpad.DefaultCostShares)
	if err != nil {
		return err
	}

	rep, err := svc.Simulate(ctx, launchpad.SimulationPlan{
		Assets:    opts.assets,
		Authority: p.Authority,
		Graduate:  true,
		Vesting: &launchpad.VestingPlan{
			Amount:   p.InitialTokenSupply / 10,
			Cliff:    30 * 24 * time.Hour,
			Duration: 365 * 24 * time.Hour,
		},
	})
	if err != nil {
		return err
	}

	drainCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := svc.Drain(drainCtx); err != nil {
		log.Warn("Events still pending", zap.Error(err))
	}

	trades := svc.Journal().Trades()
	r := report.NewRenderer(report.DefaultPalette())
	fmt.Println(r.Costs(costs))
	fmt.Println(r.Whales(whales))
	fmt.Println(r.Simulation(rep, p.MigrationThreshold))
	fmt.Println(r.Trades(export.Summarize(trades)))

	if opts.exportDir == "" {
		return nil
	}
	path, err := export.NewTradeExporter(log).ExportTrades(trades, export.ExportOptions{
		Format:    export.ExportFormat(opts.format),
		OutputDir: opts.exportDir,
	})
	if err != nil {
		return fmt.Errorf("failed to export trades: %w", err)
	}
	fmt.Printf("Trades exported to %s\n", path)
	return nil
}
