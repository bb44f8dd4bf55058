package risk

import (
	"fmt"

	"BetSentinel/internal/model"
)

// Evaluate applies one settled outcome to a copy of state and decides what the
// worker must do next. It never fails: a threshold <= 0 disables its check.
//
// Checks run in order: burn streak, stop-loss floor, stop-profit, warnings.
// A burn found earlier wins over a profit stop found later.
func Evaluate(state model.AccountState, limits model.RiskLimits, out model.Outcome) (model.AccountState, model.Decision) {
	next := state.Clone()

	next.Rounds++
	if out.Win {
		next.Wins++
		next.WinStreak++
		next.LossStreak = 0
	} else {
		next.LossStreak++
		next.WinStreak = 0
	}
	next.SessionProfit = next.SessionProfit.Add(out.Profit)
	next.TotalProfit = next.TotalProfit.Add(out.Profit)
	if out.Balance.Valid {
		next.Balance = out.Balance.Decimal
	}
	next.Record(out)

	if !out.Win && limits.BurnStreak > 0 && next.LossStreak >= limits.BurnStreak {
		return next, pause(model.ReasonBurn, fmt.Sprintf("loss streak %d reached limit %d", next.LossStreak, limits.BurnStreak))
	}
	if !out.Win && limits.StopLoss.IsPositive() && next.SessionProfit.LessThanOrEqual(limits.StopLoss.Neg()) {
		return next, pause(model.ReasonBurn, fmt.Sprintf("session profit %s hit stop-loss -%s", next.SessionProfit, limits.StopLoss))
	}
	if limits.StopProfit.IsPositive() && next.SessionProfit.GreaterThanOrEqual(limits.StopProfit) {
		return next, pause(model.ReasonProfit, fmt.Sprintf("session profit %s reached %s", next.SessionProfit, limits.StopProfit))
	}

	if !out.Win && warnActive(limits) && next.LossStreak == limits.WarnStreak {
		next.Warnings++
		if limits.WarnLimit > 0 && next.Warnings >= limits.WarnLimit {
			return next, pause(model.ReasonBurn, fmt.Sprintf("warning %d reached limit %d", next.Warnings, limits.WarnLimit))
		}
		return next, model.Decision{
			Kind:     model.DecisionWarn,
			Warnings: next.Warnings,
			Detail:   fmt.Sprintf("loss streak %d", next.LossStreak),
		}
	}

	return next, model.Decision{Kind: model.DecisionContinue}
}

// Reassess reports resume_eligible for a risk-paused state whose trigger no
// longer holds under limits. Resuming stays an operator action.
func Reassess(state model.AccountState, limits model.RiskLimits) model.Decision {
	switch state.Mode {
	case model.ModePausedBurn:
		if burnHolds(state, limits) {
			return pause(model.ReasonBurn, "burn condition still holds")
		}
		return model.Decision{Kind: model.DecisionResumeEligible, Reason: model.ReasonBurn}
	case model.ModePausedProfit:
		if limits.StopProfit.IsPositive() && state.SessionProfit.GreaterThanOrEqual(limits.StopProfit) {
			return pause(model.ReasonProfit, "profit condition still holds")
		}
		return model.Decision{Kind: model.DecisionResumeEligible, Reason: model.ReasonProfit}
	case model.ModePausedManual:
		return pause(model.ReasonManual, "manual pause")
	default:
		return model.Decision{Kind: model.DecisionContinue}
	}
}

func burnHolds(state model.AccountState, limits model.RiskLimits) bool {
	if limits.BurnStreak > 0 && state.LossStreak >= limits.BurnStreak {
		return true
	}
	if limits.StopLoss.IsPositive() && state.SessionProfit.LessThanOrEqual(limits.StopLoss.Neg()) {
		return true
	}
	return limits.WarnLimit > 0 && state.Warnings >= limits.WarnLimit
}

func warnActive(l model.RiskLimits) bool {
	if l.WarnStreak <= 0 {
		return false
	}
	return l.BurnStreak <= 0 || l.WarnStreak < l.BurnStreak
}

func pause(reason model.PauseReason, detail string) model.Decision {
	return model.Decision{Kind: model.DecisionPause, Reason: reason, Detail: detail}
}
