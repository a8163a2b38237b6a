package dex

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	"github.com/rovshanmuradov/fundly/internal/domain"
	"go.uber.org/zap"
)

// Retrying retries transient failures of the wrapped integration with
// exponential backoff. Errors that cannot succeed on retry (bad input, wrong
// lifecycle phase, unknown pool) are returned at once.
type Retrying struct {
	next       Integration
	maxTries   uint
	maxElapsed time.Duration
	interval   time.Duration
	logger     *zap.Logger
}

// NewRetrying wraps next.
func NewRetrying(next Integration, maxTries uint, maxElapsed, interval time.Duration, logger *zap.Logger) *Retrying {
	if maxTries == 0 {
		maxTries = 1
	}
	return &Retrying{
		next:       next,
		maxTries:   maxTries,
		maxElapsed: maxElapsed,
		interval:   interval,
		logger:     logger.Named("dex_retry"),
	}
}

func (r *Retrying) Name() string {
	return r.next.Name()
}

func (r *Retrying) DepositAccount() solana.PublicKey {
	return r.next.DepositAccount()
}

func (r *Retrying) CreatePool(ctx context.Context, req PoolRequest) (solana.PublicKey, error) {
	return retry(ctx, r, "create_pool", func() (solana.PublicKey, error) {
		return r.next.CreatePool(ctx, req)
	})
}

func (r *Retrying) ReportLPReceipt(ctx context.Context, pool solana.PublicKey) (uint64, error) {
	return retry(ctx, r, "report_lp_receipt", func() (uint64, error) {
		return r.next.ReportLPReceipt(ctx, pool)
	})
}

func retry[T any](ctx context.Context, r *Retrying, op string, fn func() (T, error)) (T, error) {
	policy := backoff.NewExponentialBackOff()
	if r.interval > 0 {
		policy.InitialInterval = r.interval
		policy.MaxInterval = r.interval * 10
	}

	notify := func(err error, d time.Duration) {
		r.logger.Warn("Retrying dex call after error",
			zap.String("operation", op),
			zap.Duration("backoff", d),
			zap.Error(err))
	}

	operation := func() (T, error) {
		v, err := fn()
		if err != nil && permanent(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(r.maxTries),
		backoff.WithNotify(notify),
	}
	if r.maxElapsed > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(r.maxElapsed))
	}

	v, err := backoff.Retry(ctx, operation, opts...)
	if err != nil {
		r.logger.Error("Dex call failed",
			zap.String("operation", op),
			zap.Error(err))
	}
	return v, err
}

func permanent(err error) bool {
	switch domain.ClassOf(err) {
	case domain.ClassValidation, domain.ClassStateMachine, domain.ClassAuthorization:
		return true
	}
	return errors.Is(err, ErrUnknownPool)
}
