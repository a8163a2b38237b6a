// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rovshanmuradov/fundly/internal/domain"
	"github.com/rovshanmuradov/fundly/internal/policy"
	"github.com/spf13/viper"
)

// PolicyConfig seeds the global policy. Amounts are in base units: lamports
// for SOL, raw token units (6 decimals) for the asset.
type PolicyConfig struct {
	Authority            string `mapstructure:"authority"`
	Treasury             string `mapstructure:"treasury"`
	VirtualSolReserves   uint64 `mapstructure:"virtual_sol_reserves"`
	VirtualTokenReserves uint64 `mapstructure:"virtual_token_reserves"`
	InitialTokenSupply   uint64 `mapstructure:"initial_token_supply"`
	FeeBasisPoints       uint16 `mapstructure:"fee_basis_points"`
	MigrationThreshold   uint64 `mapstructure:"migration_threshold"`
	MigrationFee         uint64 `mapstructure:"migration_fee"`
	DexProgram           string `mapstructure:"dex_program"`
}

type LogConfig struct {
	File        string `mapstructure:"file"`
	MaxSize     int    `mapstructure:"max_size"`
	MaxAge      int    `mapstructure:"max_age"`
	MaxBackups  int    `mapstructure:"max_backups"`
	Compress    bool   `mapstructure:"compress"`
	Development bool   `mapstructure:"development"`
}

type DexConfig struct {
	Backend    string        `mapstructure:"backend"`
	Retries    uint          `mapstructure:"retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	MaxElapsed time.Duration `mapstructure:"max_elapsed"`
}

type Config struct {
	Policy          PolicyConfig `mapstructure:"policy"`
	Log             LogConfig    `mapstructure:"log"`
	Dex             DexConfig    `mapstructure:"dex"`
	EventBufferSize int          `mapstructure:"event_buffer_size"`
	MetricsEnabled  bool         `mapstructure:"metrics_enabled"`
	PostgresURL     string       `mapstructure:"postgres_url"`
	JournalFile     string       `mapstructure:"journal_file"`
}

const (
	DefaultVirtualSolReserves   = 200 * domain.LamportsPerSOL
	DefaultVirtualTokenReserves = 600_000_000_000_000
	DefaultInitialTokenSupply   = 1_000_000_000_000_000
	DefaultFeeBasisPoints       = 100
	DefaultMigrationThreshold   = 85 * domain.LamportsPerSOL
	DefaultMigrationFee         = domain.DefaultMigrationFee
	DefaultEventBufferSize      = 1024
	DefaultDexRetries           = 5
	DefaultDexRetryDelay        = 500 * time.Millisecond
	DefaultDexMaxElapsed        = 30 * time.Second
)

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"policy.virtual_sol_reserves":   uint64(DefaultVirtualSolReserves),
		"policy.virtual_token_reserves": uint64(DefaultVirtualTokenReserves),
		"policy.initial_token_supply":   uint64(DefaultInitialTokenSupply),
		"policy.fee_basis_points":       DefaultFeeBasisPoints,
		"policy.migration_threshold":    uint64(DefaultMigrationThreshold),
		"policy.migration_fee":          uint64(DefaultMigrationFee),
		"log.file":                      "launchpad.log",
		"log.max_size":                  100,
		"log.max_age":                   7,
		"log.max_backups":               3,
		"log.compress":                  true,
		"dex.backend":                   "memory",
		"dex.retries":                   DefaultDexRetries,
		"dex.retry_delay":               DefaultDexRetryDelay,
		"dex.max_elapsed":               DefaultDexMaxElapsed,
		"event_buffer_size":             DefaultEventBufferSize,
		"metrics_enabled":               true,
	}
}

// LoadConfig reads path, applies defaults and FUNDLY_* environment overrides
// and validates the result.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	for key, value := range defaults() {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix("FUNDLY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range []string{"policy.authority", "policy.treasury", "policy.dex_program", "postgres_url", "journal_file"} {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, validateConfig(&cfg)
}

func validateConfig(cfg *Config) error {
	if err := validatePolicy(&cfg.Policy); err != nil {
		return err
	}
	if cfg.EventBufferSize <= 0 {
		return errors.New("invalid event_buffer_size")
	}
	if cfg.Log.File == "" {
		return errors.New("missing log.file")
	}
	if cfg.Log.MaxSize <= 0 || cfg.Log.MaxAge < 0 || cfg.Log.MaxBackups < 0 {
		return errors.New("invalid log rotation settings")
	}
	if cfg.Dex.RetryDelay <= 0 || cfg.Dex.MaxElapsed <= 0 {
		return errors.New("invalid dex retry budget")
	}
	if cfg.PostgresURL != "" {
		if err := validateURLWithCache(cfg.PostgresURL, "postgres"); err != nil {
			return errors.New("postgres_url must use the postgres scheme")
		}
	}
	return nil
}

func validatePolicy(p *PolicyConfig) error {
	if p.Authority == "" {
		return errors.New("missing policy.authority")
	}
	if p.Treasury == "" {
		return errors.New("missing policy.treasury")
	}
	if p.FeeBasisPoints > domain.MaxBasisPoints {
		return errors.New("policy.fee_basis_points exceeds 10000")
	}
	if p.VirtualSolReserves == 0 || p.VirtualTokenReserves == 0 {
		return errors.New("invalid virtual reserves")
	}
	if p.InitialTokenSupply == 0 {
		return errors.New("invalid policy.initial_token_supply")
	}
	if p.MigrationThreshold <= p.MigrationFee {
		return errors.New("policy.migration_threshold must exceed policy.migration_fee")
	}
	return nil
}

var urlCache sync.Map

func validateURLWithCache(rawURL string, protocol string) error {
	if _, ok := urlCache.Load(rawURL); ok {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) {
		return errors.New("invalid URL protocol")
	}
	urlCache.Store(rawURL, parsed)
	return nil
}

// ToPolicy converts the seed values into a policy record.
func (c *Config) ToPolicy() (policy.Policy, error) {
	authority, err := solana.PublicKeyFromBase58(c.Policy.Authority)
	if err != nil {
		return policy.Policy{}, fmt.Errorf("parse policy.authority: %w", err)
	}
	treasury, err := solana.PublicKeyFromBase58(c.Policy.Treasury)
	if err != nil {
		return policy.Policy{}, fmt.Errorf("parse policy.treasury: %w", err)
	}
	var dexProgram solana.PublicKey
	if c.Policy.DexProgram != "" {
		if dexProgram, err = solana.PublicKeyFromBase58(c.Policy.DexProgram); err != nil {
			return policy.Policy{}, fmt.Errorf("parse policy.dex_program: %w", err)
		}
	}

	p := policy.Policy{
		Authority:            authority,
		Treasury:             treasury,
		VirtualSolReserves:   c.Policy.VirtualSolReserves,
		VirtualTokenReserves: c.Policy.VirtualTokenReserves,
		InitialTokenSupply:   c.Policy.InitialTokenSupply,
		FeeBasisPoints:       c.Policy.FeeBasisPoints,
		MigrationThreshold:   c.Policy.MigrationThreshold,
		MigrationFee:         c.Policy.MigrationFee,
		DexProgram:           dexProgram,
	}
	return p, p.Validate()
}
