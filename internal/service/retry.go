package service

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fjod/go_cart/internal/domain"
	"github.com/fjod/go_cart/internal/metrics"
	"github.com/fjod/go_cart/internal/repository"
	"go.uber.org/zap"
)

// RetryPolicy bounds how often a transaction that lost a race with another one is re-run.
type RetryPolicy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      3,
		InitialInterval: 20 * time.Millisecond,
		MaxInterval:     500 * time.Millisecond,
	}
}

// run calls fn until it succeeds, fails with anything but repository.ErrConflict,
// or the retries are used up. Exhausted conflicts surface as TransientConflict.
func (p RetryPolicy) run(ctx context.Context, op string, logger *zap.Logger, fn func() error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.InitialInterval
	eb.MaxInterval = p.MaxInterval
	eb.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(eb, p.MaxRetries), ctx)

	err := backoff.RetryNotify(func() error {
		err := fn()
		if err == nil || errors.Is(err, repository.ErrConflict) {
			return err
		}
		return backoff.Permanent(err)
	}, b, func(err error, wait time.Duration) {
		metrics.TxRetries.WithLabelValues(op).Inc()
		logger.Debug("retrying transaction",
			zap.String("operation", op),
			zap.Duration("wait", wait),
			zap.Error(err))
	})

	if errors.Is(err, repository.ErrConflict) {
		logger.Warn("transaction conflict not resolved by retries", zap.String("operation", op), zap.Error(err))
		return domain.TransientConflict("%s: concurrent update conflict, try again", op)
	}
	return err
}
