package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// RiskLimits are the per-account thresholds. A value <= 0 disables its check.
type RiskLimits struct {
	BurnStreak int             `json:"burn_streak"`
	WarnStreak int             `json:"warn_streak"`
	WarnLimit  int             `json:"warn_limit"`
	StopLoss   decimal.Decimal `json:"stop_loss"`
	StopProfit decimal.Decimal `json:"stop_profit"`
}

// Disabled lists the checks switched off by non-positive thresholds.
func (l RiskLimits) Disabled() []string {
	var off []string
	if l.BurnStreak <= 0 {
		off = append(off, "burn_streak")
	}
	if l.WarnStreak <= 0 {
		off = append(off, "warn_streak")
	} else if l.BurnStreak > 0 && l.WarnStreak >= l.BurnStreak {
		off = append(off, "warn_streak(>=burn_streak)")
	}
	if l.WarnLimit <= 0 {
		off = append(off, "warn_limit")
	}
	if !l.StopLoss.IsPositive() {
		off = append(off, "stop_loss")
	}
	if !l.StopProfit.IsPositive() {
		off = append(off, "stop_profit")
	}
	return off
}

func (l RiskLimits) String() string {
	return fmt.Sprintf("burn=%d warn=%d warn_limit=%d stop_loss=%s stop_profit=%s",
		l.BurnStreak, l.WarnStreak, l.WarnLimit, l.StopLoss.String(), l.StopProfit.String())
}

// DecisionKind classifies a risk evaluation result.
type DecisionKind string

const (
	DecisionContinue       DecisionKind = "continue"
	DecisionWarn           DecisionKind = "warn"
	DecisionPause          DecisionKind = "pause"
	DecisionResumeEligible DecisionKind = "resume_eligible"
)

// Decision is returned by the risk controller.
type Decision struct {
	Kind     DecisionKind
	Reason   PauseReason
	Warnings int
	Detail   string
}

func (d Decision) String() string {
	switch d.Kind {
	case DecisionWarn:
		return fmt.Sprintf("warn(%d)", d.Warnings)
	case DecisionPause:
		return fmt.Sprintf("pause(%s)", d.Reason)
	default:
		return string(d.Kind)
	}
}
