package notifier

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"BetSentinel/internal/retry"
)

// Notifier delivers a text message to operators.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Multi fans a message out to several notifiers. Every target is tried; the
// joined error reports the ones that failed.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, text string) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, text); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop drops every message.
type Nop struct{}

func (Nop) Notify(context.Context, string) error { return nil }

// Retrying wraps a notifier with bounded backoff.
type Retrying struct {
	Next   Notifier
	Config retry.Config
	Log    *zap.Logger
}

func (r Retrying) Notify(ctx context.Context, text string) error {
	cfg := r.Config
	if r.Log != nil {
		log := r.Log
		cfg.OnRetry = func(attempt int, err error, _ time.Duration) {
			log.Warn("notification failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
		}
	}
	return retry.Do(ctx, cfg, func(ctx context.Context) error {
		return r.Next.Notify(ctx, text)
	})
}
