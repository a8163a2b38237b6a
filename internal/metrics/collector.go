// internal/metrics/collector.go
package metrics

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rovshanmuradov/fundly/internal/domain"
	"github.com/rovshanmuradov/fundly/internal/events"
)

// MetricType names a metric held by the collector.
type MetricType string

const (
	TradeCounterType       MetricType = "trade_counter"
	TradeVolumeType        MetricType = "trade_volume"
	TradeSizeType          MetricType = "trade_size"
	FeesCollectedType      MetricType = "fees_collected"
	FeesWithdrawnType      MetricType = "fees_withdrawn"
	CurveReservesType      MetricType = "curve_reserves"
	MigrationCounterType   MetricType = "migration_counter"
	MigrationLiquidityType MetricType = "migration_liquidity"
	LiquidityBurnedType    MetricType = "liquidity_burned"
	VestingClaimedType     MetricType = "vesting_claimed"
)

// Subscriber is the part of the event bus the collector listens on.
type Subscriber interface {
	SubscribeFunc(eventType events.EventType, fn func(context.Context, events.Event) error) events.Subscription
}

// Collector keeps launchpad metrics in its own registry and updates them from
// bus events.
type Collector struct {
	metrics  sync.Map
	registry *prometheus.Registry

	tradeCounter       *prometheus.CounterVec
	tradeVolume        *prometheus.CounterVec
	tradeSize          *prometheus.HistogramVec
	feesCollected      prometheus.Counter
	feesWithdrawn      prometheus.Counter
	curveReserves      *prometheus.GaugeVec
	migrationCounter   prometheus.Counter
	migrationLiquidity *prometheus.CounterVec
	liquidityBurned    prometheus.Counter
	vestingClaimed     prometheus.Counter
}

// NewCollector creates a collector with every metric registered.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		tradeCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fundly",
			Name:      "trades_total",
			Help:      "Trades executed against bonding curves",
		}, []string{"side"}),
		tradeVolume: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fundly",
			Name:      "trade_volume_lamports_total",
			Help:      "SOL paid in by buys and paid out by sells, in lamports",
		}, []string{"side"}),
		tradeSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fundly",
			Name:      "trade_size_sol",
			Help:      "Trade size in SOL",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"side"}),
		feesCollected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fundly",
			Name:      "fees_collected_lamports_total",
			Help:      "Platform fees charged on trades, in lamports",
		}),
		feesWithdrawn: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fundly",
			Name:      "fees_withdrawn_lamports_total",
			Help:      "Platform fees moved to the treasury, in lamports",
		}),
		curveReserves: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "fundly",
			Name:      "curve_real_sol_reserves_lamports",
			Help:      "Real SOL reserves of each curve after its latest trade",
		}, []string{"mint"}),
		migrationCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fundly",
			Name:      "migrations_total",
			Help:      "Curves migrated to a DEX",
		}),
		migrationLiquidity: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fundly",
			Name:      "migrated_liquidity_total",
			Help:      "Liquidity moved out of curves at migration, in base units",
		}, []string{"asset"}),
		liquidityBurned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fundly",
			Name:      "lp_burned_total",
			Help:      "LP tokens burned to lock migrated liquidity",
		}),
		vestingClaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fundly",
			Name:      "vesting_claimed_tokens_total",
			Help:      "Tokens released from vesting escrow",
		}),
	}
	c.initializeMetrics()
	return c
}

func (c *Collector) initializeMetrics() {
	metricsMap := map[MetricType]prometheus.Collector{
		TradeCounterType:       c.tradeCounter,
		TradeVolumeType:        c.tradeVolume,
		TradeSizeType:          c.tradeSize,
		FeesCollectedType:      c.feesCollected,
		FeesWithdrawnType:      c.feesWithdrawn,
		CurveReservesType:      c.curveReserves,
		MigrationCounterType:   c.migrationCounter,
		MigrationLiquidityType: c.migrationLiquidity,
		LiquidityBurnedType:    c.liquidityBurned,
		VestingClaimedType:     c.vestingClaimed,
	}

	for metricType, metric := range metricsMap {
		c.metrics.Store(metricType, metric)
		c.registry.MustRegister(metric)
	}
}

// Registry exposes the collector's registry for scraping.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Metric returns the metric registered under t.
func (c *Collector) Metric(t MetricType) (prometheus.Collector, bool) {
	m, ok := c.metrics.Load(t)
	if !ok {
		return nil, false
	}
	return m.(prometheus.Collector), true
}

// Reset clears the labelled metrics (useful for testing).
func (c *Collector) Reset() {
	c.metrics.Range(func(_, value interface{}) bool {
		switch m := value.(type) {
		case *prometheus.CounterVec:
			m.Reset()
		case *prometheus.GaugeVec:
			m.Reset()
		case *prometheus.HistogramVec:
			m.Reset()
		}
		return true
	})
}

// Attach subscribes the collector to every event it records.
func (c *Collector) Attach(bus Subscriber) []events.Subscription {
	types := []events.EventType{
		events.TradeExecuted,
		events.FeesWithdrawn,
		events.MigrationCompleted,
		events.LiquidityLocked,
		events.VestingClaimed,
	}
	subs := make([]events.Subscription, 0, len(types))
	for _, t := range types {
		subs = append(subs, bus.SubscribeFunc(t, c.handle))
	}
	return subs
}

func (c *Collector) handle(_ context.Context, e events.Event) error {
	switch ev := e.(type) {
	case events.TradeExecutedEvent:
		c.RecordTrade(ev)
	case events.FeesWithdrawnEvent:
		c.feesWithdrawn.Add(float64(ev.Amount))
	case events.MigrationCompletedEvent:
		c.migrationCounter.Inc()
		c.migrationLiquidity.WithLabelValues("sol").Add(float64(ev.SolMigrated))
		c.migrationLiquidity.WithLabelValues("token").Add(float64(ev.TokensMigrated))
		c.curveReserves.DeleteLabelValues(ev.Mint.String())
	case events.LiquidityLockedEvent:
		c.liquidityBurned.Add(float64(ev.LpAmount))
	case events.VestingClaimedEvent:
		c.vestingClaimed.Add(float64(ev.Amount))
	default:
		return fmt.Errorf("metrics: unexpected event %T", e)
	}
	return nil
}

// RecordTrade records one executed trade.
func (c *Collector) RecordTrade(ev events.TradeExecutedEvent) {
	side := string(ev.Side)
	c.tradeCounter.WithLabelValues(side).Inc()
	c.tradeVolume.WithLabelValues(side).Add(float64(ev.SolAmount))
	c.tradeSize.WithLabelValues(side).Observe(float64(ev.SolAmount) / domain.LamportsPerSOL)
	c.feesCollected.Add(float64(ev.Fee))
	c.curveReserves.WithLabelValues(ev.Mint.String()).Set(float64(ev.RealSolReserves))
}
