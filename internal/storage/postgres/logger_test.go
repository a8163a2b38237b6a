package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestGormLoggerTrace(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := newGormLogger(zap.New(core))
	ctx := context.Background()
	query := func() (string, int64) { return "SELECT 1", 1 }

	l.Trace(ctx, time.Now(), query, nil)
	assert.Zero(t, logs.Len(), "fast queries are silent at the default level")

	l.Trace(ctx, time.Now().Add(-time.Second), query, nil)
	l.Trace(ctx, time.Now(), query, errors.New("boom"))
	l.Trace(ctx, time.Now(), query, gorm.ErrRecordNotFound)

	entries := logs.TakeAll()
	if assert.Len(t, entries, 2) {
		assert.Equal(t, "Slow query", entries[0].Message)
		assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
		assert.Equal(t, "Query failed", entries[1].Message)
		assert.Equal(t, "SELECT 1", entries[1].ContextMap()["sql"])
	}

	verbose := l.LogMode(logger.Info)
	verbose.Trace(ctx, time.Now(), query, nil)
	assert.Equal(t, 1, logs.FilterMessage("Query").Len())

	l.LogMode(logger.Silent).Trace(ctx, time.Now(), query, errors.New("boom"))
	assert.Equal(t, 1, logs.Len())
}
