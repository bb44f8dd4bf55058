package wager

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"BetSentinel/internal/model"
)

// Bet is one stake request sent to the wagering site.
type Bet struct {
	Account string
	Stake   decimal.Decimal
	Side    string
}

// Site places bets and reports balances for one account.
// Place blocks until the bet is settled.
type Site interface {
	Place(ctx context.Context, bet Bet) (model.Outcome, error)
	Balance(ctx context.Context) (decimal.Decimal, error)
	Name() string
}

// ErrRejected marks a bet the site refused outright. It is not retried.
var ErrRejected = errors.New("bet rejected")
