package retry

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// DefaultNotifyPolicy bounds delivery retries for a single notification.
// Short and shallow: a monitor poll must not stall behind a dead
// messaging endpoint.
func DefaultNotifyPolicy(log *zap.Logger) Policy {
	return Policy{
		Name:     "notify_send",
		Attempts: 3,
		Backoff:  ExpoJitter{Base: 300 * time.Millisecond, Max: 5 * time.Second, Jitter: 0.2},
		Retryable: func(err error) bool {
			return err != nil && !errors.Is(err, context.Canceled)
		},
		OnAttempt: func(i int, err error) {
			if log != nil {
				log.Warn("notify retry", zap.Int("attempt", i+1), zap.Error(err))
			}
		},
		OnExhaust: func(err error) {
			if log != nil && !errors.Is(err, context.Canceled) {
				log.Error("notify retries exhausted", zap.Error(err))
			}
		},
	}
}

// DefaultPublishPolicy is used for the optional alert-events producer.
func DefaultPublishPolicy(log *zap.Logger) Policy {
	return Policy{
		Name:     "alert_publish",
		Attempts: 6,
		Backoff:  ExpoJitter{Base: 200 * time.Millisecond, Max: 30 * time.Second, Jitter: 0.2},
		Retryable: func(err error) bool {
			return err != nil && !errors.Is(err, context.Canceled)
		},
		OnAttempt: func(i int, err error) {
			if log != nil {
				log.Warn("alert publish retry", zap.Int("attempt", i+1), zap.Error(err))
			}
		},
		OnExhaust: func(err error) {
			if log != nil && !errors.Is(err, context.Canceled) {
				log.Error("alert publish retries exhausted", zap.Error(err))
			}
		},
	}
}
