package launchpad

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestShutdownHandlerOrder(t *testing.T) {
	sh := NewShutdownHandler(zaptest.NewLogger(t))

	var order []string
	for _, name := range []string{"bus", "journal", "storage"} {
		name := name
		sh.AddFunc(name, func() error {
			order = append(order, name)
			return nil
		})
	}

	require.NoError(t, sh.Shutdown(context.Background()))
	assert.Equal(t, []string{"storage", "journal", "bus"}, order)

	require.NoError(t, sh.Shutdown(context.Background()))
	assert.Len(t, order, 3)
}

func TestShutdownHandlerJoinsErrors(t *testing.T) {
	sh := NewShutdownHandler(zaptest.NewLogger(t))
	errA := errors.New("a failed")
	errB := errors.New("b failed")

	sh.AddFunc("a", func() error { return errA })
	sh.AddFunc("ok", func() error { return nil })
	sh.AddFunc("b", func() error { return errB })

	err := sh.Shutdown(context.Background())
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
	assert.ErrorContains(t, err, "b: b failed")
}

func TestShutdownHandlerTimeout(t *testing.T) {
	sh := NewShutdownHandler(zaptest.NewLogger(t))
	release := make(chan struct{})
	defer close(release)

	sh.AddFunc("stuck", func() error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, sh.Shutdown(ctx), context.DeadlineExceeded)
}
