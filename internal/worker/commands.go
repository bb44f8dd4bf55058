package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"BetSentinel/internal/errs"
	"BetSentinel/internal/model"
	"BetSentinel/internal/notifier"
	"BetSentinel/internal/risk"
	"BetSentinel/internal/staking"
	"BetSentinel/internal/store"
)

// mutate applies fn to a copy of the state under the worker lock and persists
// the result. fn returns the acknowledgment text.
func (w *Worker) mutate(ctx context.Context, fn func(st *model.AccountState) (string, error)) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	next := w.state.Clone()
	ack, err := fn(&next)
	if err != nil {
		return "", err
	}
	if err := w.commit(ctx, next); err != nil {
		return "", err
	}
	return ack, nil
}

func (w *Worker) transition(st *model.AccountState, to model.Mode) error {
	if !model.CanTransition(st.Mode, to) {
		return fmt.Errorf("%w: %s cannot go from %s to %s", errs.ErrCommand, w.acc.Name, st.Mode, to)
	}
	w.log.Info("mode changed", zap.String("from", string(st.Mode)), zap.String("to", string(to)))
	st.Mode = to
	return nil
}

// Open starts a stopped account with fresh session counters and the current
// site balance.
func (w *Worker) Open(ctx context.Context) (string, error) {
	return w.mutate(ctx, func(st *model.AccountState) (string, error) {
		switch {
		case st.Mode == model.ModeActive:
			return fmt.Sprintf("%s is already active", w.acc.Name), nil
		case st.Mode.Paused():
			return "", fmt.Errorf("%w: %s is %s, use resume", errs.ErrCommand, w.acc.Name, st.Mode)
		}
		if err := w.transition(st, model.ModeActive); err != nil {
			return "", err
		}
		st.LossStreak = 0
		st.WinStreak = 0
		st.Warnings = 0
		st.SessionProfit = decimal.Zero
		st.LastStake = decimal.Zero
		st.FundNotified = false
		if bal, err := w.site.Balance(ctx); err != nil {
			w.log.Warn("balance refresh failed", zap.Error(err))
		} else {
			st.Balance = bal
		}
		return fmt.Sprintf("🟢 %s opened | balance %s | fund %s", w.acc.Name, notifier.Amount(st.Balance), notifier.Amount(st.Fund)), nil
	})
}

// Off stops betting until the next Open.
func (w *Worker) Off(ctx context.Context) (string, error) {
	return w.mutate(ctx, func(st *model.AccountState) (string, error) {
		if st.Mode == model.ModeStopped {
			return fmt.Sprintf("%s is already stopped", w.acc.Name), nil
		}
		if err := w.transition(st, model.ModeStopped); err != nil {
			return "", err
		}
		return fmt.Sprintf("⛔ %s stopped", w.acc.Name), nil
	})
}

// Pause suspends an active account.
func (w *Worker) Pause(ctx context.Context) (string, error) {
	return w.mutate(ctx, func(st *model.AccountState) (string, error) {
		if st.Mode != model.ModeActive {
			return "", fmt.Errorf("%w: %s is %s, only active accounts can be paused", errs.ErrCommand, w.acc.Name, st.Mode)
		}
		if err := w.transition(st, model.ModePausedManual); err != nil {
			return "", err
		}
		return fmt.Sprintf("⏸ %s paused", w.acc.Name), nil
	})
}

// Resume reactivates a paused account. A burn pause clears the loss streak
// and the warnings; a profit pause clears the session profit.
func (w *Worker) Resume(ctx context.Context) (string, error) {
	return w.mutate(ctx, func(st *model.AccountState) (string, error) {
		if !st.Mode.Paused() {
			return "", fmt.Errorf("%w: %s is %s, not paused", errs.ErrCommand, w.acc.Name, st.Mode)
		}
		from := st.Mode
		switch from {
		case model.ModePausedBurn:
			st.LossStreak = 0
			st.Warnings = 0
			st.LastStake = decimal.Zero
			if l := w.limits(); l.StopLoss.IsPositive() && st.SessionProfit.LessThanOrEqual(l.StopLoss.Neg()) {
				st.SessionProfit = decimal.Zero
			}
		case model.ModePausedProfit:
			st.SessionProfit = decimal.Zero
		}
		st.FundNotified = false
		if err := w.transition(st, model.ModeActive); err != nil {
			return "", err
		}
		return fmt.Sprintf("▶️ %s resumed from %s", w.acc.Name, notifier.ModeLabel(from)), nil
	})
}

// SelectPreset switches the staking preset. The loss streak is kept.
func (w *Worker) SelectPreset(ctx context.Context, name string) (string, error) {
	return w.mutate(ctx, func(st *model.AccountState) (string, error) {
		if _, err := w.presets.Get(w.acc.Dir, name); err != nil {
			return "", presetErr(err)
		}
		st.PresetName = name
		return fmt.Sprintf("✅ %s preset set to %s", w.acc.Name, name), nil
	})
}

// SetLimits stores an operator override of the risk limits.
func (w *Worker) SetLimits(ctx context.Context, limits model.RiskLimits) (string, error) {
	return w.mutate(ctx, func(st *model.AccountState) (string, error) {
		l := limits
		st.Limits = &l
		return w.limitsAck(*st, l), nil
	})
}

// SetWarning sets the loss streak that raises a warning and, when limit is
// not negative, the number of warnings that escalates to a burn pause.
func (w *Worker) SetWarning(ctx context.Context, streak, limit int) (string, error) {
	if streak < 1 {
		return "", fmt.Errorf("%w: warning streak must be >= 1", errs.ErrCommand)
	}
	return w.mutate(ctx, func(st *model.AccountState) (string, error) {
		l := w.acc.Config.Limits()
		if st.Limits != nil {
			l = *st.Limits
		}
		l.WarnStreak = streak
		if limit >= 0 {
			l.WarnLimit = limit
		}
		st.Limits = &l
		return w.limitsAck(*st, l), nil
	})
}

func (w *Worker) limitsAck(st model.AccountState, l model.RiskLimits) string {
	ack := fmt.Sprintf("✅ %s limits: %s", w.acc.Name, l.String())
	if off := l.Disabled(); len(off) > 0 {
		ack += "\ndisabled: " + strings.Join(off, ", ")
	}
	if d := risk.Reassess(st, l); d.Kind == model.DecisionResumeEligible {
		ack += "\npause condition cleared, send resume to continue"
	}
	return ack
}

// SetFund sets the bankroll the worker may stake, capped at the last known
// site balance.
func (w *Worker) SetFund(ctx context.Context, amount decimal.Decimal) (string, error) {
	if amount.IsNegative() {
		return "", fmt.Errorf("%w: fund must be >= 0", errs.ErrCommand)
	}
	return w.mutate(ctx, func(st *model.AccountState) (string, error) {
		capped := ""
		if st.Balance.IsPositive() && amount.GreaterThan(st.Balance) {
			amount = st.Balance
			capped = " (capped at balance)"
		}
		st.Fund = amount
		st.FundNotified = false
		return fmt.Sprintf("💰 %s fund set to %s%s", w.acc.Name, notifier.Amount(amount), capped), nil
	})
}

// ResetStats clears counters and history. Mode, fund, preset and limits stay.
func (w *Worker) ResetStats(ctx context.Context) (string, error) {
	return w.mutate(ctx, func(st *model.AccountState) (string, error) {
		st.LossStreak = 0
		st.WinStreak = 0
		st.Warnings = 0
		st.SessionProfit = decimal.Zero
		st.TotalProfit = decimal.Zero
		st.Rounds = 0
		st.Wins = 0
		st.LastStake = decimal.Zero
		st.History = nil
		return fmt.Sprintf("🧹 %s statistics reset", w.acc.Name), nil
	})
}

// RefreshBalance reads the site balance and stores it.
func (w *Worker) RefreshBalance(ctx context.Context) (string, error) {
	bal, err := w.site.Balance(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %s balance: %v", errs.ErrExternal, w.acc.Name, err)
	}
	return w.mutate(ctx, func(st *model.AccountState) (string, error) {
		st.Balance = bal
		return fmt.Sprintf("💳 %s balance %s | fund %s", w.acc.Name, notifier.Amount(bal), notifier.Amount(st.Fund)), nil
	})
}

// Stats renders loss and win streak counts over the recent history.
func (w *Worker) Stats() (string, error) {
	st := w.Snapshot()
	if len(st.History) < risk.MinStatHistory {
		return "", fmt.Errorf("%w: %s has %d settled bets, need %d for statistics",
			errs.ErrCommand, w.acc.Name, len(st.History), risk.MinStatHistory)
	}
	return notifier.FormatStreaks(w.acc.Name, len(st.History), risk.Streaks(st.History, risk.StatWindows)), nil
}

// Status renders the account status.
func (w *Worker) Status() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return notifier.FormatStatus(w.acc.Name, w.state, w.limits())
}

// Presets lists the preset names, marking the selected one.
func (w *Worker) Presets() (string, error) {
	names, err := w.presets.List(w.acc.Dir)
	if err != nil {
		return "", err
	}
	current := w.Snapshot().PresetName
	var b strings.Builder
	fmt.Fprintf(&b, "📋 %s presets\n", w.acc.Name)
	for _, n := range names {
		p, err := w.presets.Get(w.acc.Dir, n)
		if err != nil {
			continue
		}
		mark := "  "
		if n == current {
			mark = "▶ "
		}
		fmt.Fprintf(&b, "%s%s: %s\n", mark, n, p.String())
	}
	return b.String(), nil
}

// SavePreset creates or replaces a preset.
func (w *Worker) SavePreset(ctx context.Context, name string, p model.Preset) (string, error) {
	if err := w.presets.Upsert(ctx, w.acc.Dir, name, p); err != nil {
		return "", presetErr(err)
	}
	return fmt.Sprintf("✅ %s preset %s saved: %s", w.acc.Name, name, p.String()), nil
}

// DeletePreset removes a preset. The selected preset cannot be removed.
func (w *Worker) DeletePreset(ctx context.Context, name string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state.PresetName == name {
		return "", fmt.Errorf("%w: %s is the selected preset of %s", errs.ErrCommand, name, w.acc.Name)
	}
	if err := w.presets.Delete(ctx, w.acc.Dir, name); err != nil {
		return "", presetErr(err)
	}
	return fmt.Sprintf("🗑 %s preset %s deleted", w.acc.Name, name), nil
}

// Simulate renders the stake table for the selected preset, a named preset
// or 7 explicit parameters, checked against the account fund.
func (w *Worker) Simulate(args []string) (string, error) {
	st := w.Snapshot()
	var (
		p     model.Preset
		title string
		err   error
	)
	switch len(args) {
	case 0:
		title = st.PresetName
		p, err = w.presets.Get(w.acc.Dir, st.PresetName)
	case 1:
		title = args[0]
		p, err = w.presets.Get(w.acc.Dir, args[0])
	default:
		title = "custom"
		p, err = staking.ParsePreset(args)
		if err != nil {
			return "", fmt.Errorf("%w: %v", errs.ErrCommand, err)
		}
	}
	if err != nil {
		return "", presetErr(err)
	}
	return notifier.FormatSimulation(title, p, staking.Simulate(p, st.Fund)), nil
}

// presetErr reports unknown or invalid presets as command errors.
func presetErr(err error) error {
	if errors.Is(err, store.ErrPresetNotFound) || errs.Kind(err) == "internal" {
		return fmt.Errorf("%w: %v", errs.ErrCommand, err)
	}
	return err
}
