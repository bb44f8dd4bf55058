package wager

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"BetSentinel/internal/model"
)

// DryRunSite settles bets locally with a fixed win probability. It never
// touches the network and is used for dry runs and development.
type DryRunSite struct {
	mu      sync.Mutex
	rng     *rand.Rand
	winProb float64
	balance decimal.Decimal
}

// NewDryRunSite creates a simulated site. seed makes runs reproducible.
func NewDryRunSite(balance decimal.Decimal, winProb float64, seed int64) *DryRunSite {
	return &DryRunSite{
		rng:     rand.New(rand.NewSource(seed)),
		winProb: winProb,
		balance: balance,
	}
}

func (s *DryRunSite) Name() string { return "dry-run" }

func (s *DryRunSite) Place(ctx context.Context, bet Bet) (model.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return model.Outcome{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	win := s.rng.Float64() < s.winProb
	profit := bet.Stake.Neg()
	if win {
		profit = bet.Stake.Mul(decimal.RequireFromString("0.99")).Floor()
	}
	s.balance = s.balance.Add(profit)
	return model.Outcome{
		Win:     win,
		Stake:   bet.Stake,
		Profit:  profit,
		Balance: decimal.NewNullDecimal(s.balance),
		At:      time.Now(),
	}, nil
}

func (s *DryRunSite) Balance(context.Context) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balance, nil
}
