package wager

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"BetSentinel/internal/model"
	"BetSentinel/internal/retry"
)

// RetryingSite retries transient site failures with bounded backoff.
// Rejected bets and cancelled contexts are returned at once.
type RetryingSite struct {
	Site   Site
	Config retry.Config
	Log    *zap.Logger
}

func NewRetryingSite(site Site, cfg retry.Config, log *zap.Logger) *RetryingSite {
	if log == nil {
		log = zap.NewNop()
	}
	cfg.RetryIf = func(err error) bool {
		return !errors.Is(err, ErrRejected) && !errors.Is(err, context.Canceled)
	}
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		log.Warn("site call failed, retrying",
			zap.String("site", site.Name()),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
	}
	return &RetryingSite{Site: site, Config: cfg, Log: log}
}

func (r *RetryingSite) Name() string { return r.Site.Name() }

func (r *RetryingSite) Place(ctx context.Context, bet Bet) (model.Outcome, error) {
	return retry.DoWithResult(ctx, r.Config, func(ctx context.Context) (model.Outcome, error) {
		return r.Site.Place(ctx, bet)
	})
}

func (r *RetryingSite) Balance(ctx context.Context) (decimal.Decimal, error) {
	return retry.DoWithResult(ctx, r.Config, func(ctx context.Context) (decimal.Decimal, error) {
		return r.Site.Balance(ctx)
	})
}
