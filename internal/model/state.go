package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// MaxHistory bounds AccountState.History.
const MaxHistory = 200

// Outcome is the settled result of one placed bet.
type Outcome struct {
	Win     bool                `json:"win"`
	Stake   decimal.Decimal     `json:"stake"`
	Profit  decimal.Decimal     `json:"profit"`
	Balance decimal.NullDecimal `json:"balance"`
	Round   string              `json:"round,omitempty"`
	At      time.Time           `json:"at"`
}

// AccountState is the persisted mutable record of one account.
type AccountState struct {
	Mode          Mode            `json:"mode"`
	Balance       decimal.Decimal `json:"balance"`
	Fund          decimal.Decimal `json:"fund"`
	LossStreak    int             `json:"loss_streak"`
	WinStreak     int             `json:"win_streak"`
	Warnings      int             `json:"warnings"`
	SessionProfit decimal.Decimal `json:"session_profit"`
	TotalProfit   decimal.Decimal `json:"total_profit"`
	Rounds        int             `json:"rounds"`
	Wins          int             `json:"wins"`
	PresetName    string          `json:"preset_name"`
	LastStake     decimal.Decimal `json:"last_stake"`
	Limits        *RiskLimits     `json:"limits,omitempty"`
	FundNotified  bool            `json:"fund_notified"`
	History       []Outcome       `json:"history,omitempty"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// NewAccountState returns the state of an account that has never run.
func NewAccountState() AccountState {
	return AccountState{Mode: ModeActive}
}

// Clone returns a deep copy safe to mutate.
func (s AccountState) Clone() AccountState {
	c := s
	if s.Limits != nil {
		l := *s.Limits
		c.Limits = &l
	}
	if s.History != nil {
		c.History = append([]Outcome(nil), s.History...)
	}
	return c
}

// Record appends an outcome, keeping at most MaxHistory entries.
func (s *AccountState) Record(o Outcome) {
	s.History = append(s.History, o)
	if len(s.History) > MaxHistory {
		s.History = s.History[len(s.History)-MaxHistory:]
	}
}

// WinRate returns wins/rounds in percent, 0 when no round was played.
func (s AccountState) WinRate() float64 {
	if s.Rounds == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.Rounds) * 100
}
