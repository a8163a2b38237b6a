package export

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rovshanmuradov/fundly/internal/events"
	"github.com/rovshanmuradov/fundly/internal/logger"
	"go.uber.org/zap"
)

const journalFlushInterval = time.Second

// Subscriber is the part of the event bus the journal listens on.
type Subscriber interface {
	SubscribeFunc(eventType events.EventType, fn func(context.Context, events.Event) error) events.Subscription
}

// Journal keeps every executed trade in memory and, when given a path, appends
// it to a CSV file.
type Journal struct {
	mu     sync.RWMutex
	trades []Trade
	csv    *logger.SafeCSVWriter
	logger *zap.Logger
}

// NewJournal opens a journal. An empty path keeps trades in memory only.
func NewJournal(path string, log *zap.Logger) (*Journal, error) {
	j := &Journal{logger: log.Named("journal")}
	if path == "" {
		return j, nil
	}

	w, err := logger.NewSafeCSVWriter(path, CSVHeaders(), journalFlushInterval, j.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open trade journal: %w", err)
	}
	j.csv = w
	return j, nil
}

// Attach subscribes the journal to trade events.
func (j *Journal) Attach(bus Subscriber) events.Subscription {
	return bus.SubscribeFunc(events.TradeExecuted, func(_ context.Context, e events.Event) error {
		ev, ok := e.(events.TradeExecutedEvent)
		if !ok {
			return fmt.Errorf("unexpected event %T", e)
		}
		return j.Record(ev)
	})
}

// Record appends one trade.
func (j *Journal) Record(ev events.TradeExecutedEvent) error {
	trade := FromEvent(ev)

	j.mu.Lock()
	j.trades = append(j.trades, trade)
	j.mu.Unlock()

	if j.csv == nil {
		return nil
	}
	return j.csv.WriteRecord(trade.ToCSV())
}

// Trades returns a copy of the recorded trades in arrival order.
func (j *Journal) Trades() []Trade {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]Trade, len(j.trades))
	copy(out, j.trades)
	return out
}

// Close flushes and closes the CSV file, if any.
func (j *Journal) Close() error {
	if j.csv == nil {
		return nil
	}
	return j.csv.Close()
}
