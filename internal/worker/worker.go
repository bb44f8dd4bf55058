// Package worker runs the per-account betting loop and applies operator
// commands to the account state.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"BetSentinel/internal/account"
	"BetSentinel/internal/errs"
	"BetSentinel/internal/logger"
	"BetSentinel/internal/metrics"
	"BetSentinel/internal/model"
	"BetSentinel/internal/notifier"
	"BetSentinel/internal/recorder"
	"BetSentinel/internal/risk"
	"BetSentinel/internal/staking"
	"BetSentinel/internal/wager"
)

var (
	// ErrNotActive is returned by RunCycle when the account is not betting.
	ErrNotActive = errors.New("account not active")
	// ErrFundTooLow is returned by RunCycle when the next stake exceeds the fund.
	ErrFundTooLow = errors.New("stake exceeds fund")
)

// DefaultInterval is used when neither the account nor Deps set a cadence.
const DefaultInterval = time.Minute

// StateStore loads and persists account state.
type StateStore interface {
	Load(dir string) (model.AccountState, error)
	Save(ctx context.Context, dir string, st model.AccountState) error
}

// PresetStore is the per-account preset registry.
type PresetStore interface {
	Get(dir, name string) (model.Preset, error)
	List(dir string) ([]string, error)
	Upsert(ctx context.Context, dir, name string, p model.Preset) error
	Delete(ctx context.Context, dir, name string) error
}

// Deps are the collaborators of a Worker.
type Deps struct {
	Site     wager.Site
	States   StateStore
	Presets  PresetStore
	Notifier notifier.Notifier
	Recorder recorder.Recorder
	Log      *zap.Logger
	Interval time.Duration
}

// Worker owns one account. A single mutex serialises cycles and commands, so
// a command that arrives mid-cycle is applied after the cycle is persisted.
type Worker struct {
	mu       sync.Mutex
	acc      *account.Account
	site     wager.Site
	states   StateStore
	presets  PresetStore
	notify   notifier.Notifier
	rec      recorder.Recorder
	log      *zap.Logger
	interval time.Duration
	state    model.AccountState
	now      func() time.Time
}

// New loads the persisted state of acc and returns a ready worker.
func New(acc *account.Account, deps Deps) (*Worker, error) {
	if deps.Site == nil || deps.States == nil || deps.Presets == nil {
		return nil, fmt.Errorf("%w: worker %s: site, states and presets are required", errs.ErrConfig, acc.Name)
	}
	w := &Worker{
		acc:      acc,
		site:     deps.Site,
		states:   deps.States,
		presets:  deps.Presets,
		notify:   deps.Notifier,
		rec:      deps.Recorder,
		log:      logger.ForAccount(deps.Log, acc.Name),
		interval: deps.Interval,
		now:      time.Now,
	}
	if w.notify == nil {
		w.notify = notifier.Nop{}
	}
	if w.rec == nil {
		w.rec = recorder.NewNoopRecorder()
	}
	if iv := acc.Config.Betting.CycleInterval; iv > 0 {
		w.interval = iv
	}
	if w.interval <= 0 {
		w.interval = DefaultInterval
	}

	st, err := deps.States.Load(acc.Dir)
	if err != nil {
		return nil, err
	}
	if st.PresetName == "" {
		st.PresetName = acc.Config.Betting.Preset
	}
	if st.PresetName == "" {
		if names, err := deps.Presets.List(acc.Dir); err == nil && len(names) > 0 {
			st.PresetName = names[0]
		}
	}
	if st.Rounds == 0 && st.Fund.IsZero() && acc.Config.Betting.Fund > 0 {
		st.Fund = decimal.NewFromFloat(acc.Config.Betting.Fund)
	}
	w.state = st

	if off := w.limits().Disabled(); len(off) > 0 {
		w.log.Warn("risk checks disabled", zap.Strings("checks", off))
	}
	metrics.ObserveState(acc.Name, st)
	return w, nil
}

func (w *Worker) Name() string               { return w.acc.Name }
func (w *Worker) Account() *account.Account { return w.acc }

// Snapshot returns a copy of the in-memory state.
func (w *Worker) Snapshot() model.AccountState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state.Clone()
}

// Limits returns the effective risk limits: the operator override if set,
// else the configured ones.
func (w *Worker) Limits() model.RiskLimits {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.limits()
}

func (w *Worker) limits() model.RiskLimits {
	if w.state.Limits != nil {
		return *w.state.Limits
	}
	return w.acc.Config.Limits()
}

// Run executes a cycle every interval until ctx is cancelled. The persisted
// mode is left as is on shutdown.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("worker started", zap.Duration("interval", w.interval), zap.String("mode", string(w.Snapshot().Mode)))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.RunCycle(ctx); err != nil {
			switch {
			case errors.Is(err, ErrNotActive), errors.Is(err, ErrFundTooLow):
				w.log.Debug("cycle skipped", zap.Error(err))
			case ctx.Err() != nil:
			default:
				w.log.Warn("cycle failed", zap.String("kind", errs.Kind(err)), zap.Error(err))
			}
		}
		select {
		case <-ctx.Done():
			w.log.Info("worker stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunCycle places one bet and applies its outcome. The in-memory state only
// changes after the new state is persisted.
func (w *Worker) RunCycle(ctx context.Context) (model.Decision, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	st := w.state
	if st.Mode != model.ModeActive {
		return model.Decision{}, fmt.Errorf("%w: %s", ErrNotActive, st.Mode)
	}

	preset, err := w.presets.Get(w.acc.Dir, st.PresetName)
	if err != nil {
		metrics.RecordCycle(w.acc.Name, "error")
		return model.Decision{}, fmt.Errorf("%w: preset %q: %v", errs.ErrConfig, st.PresetName, err)
	}

	stake, err := staking.NextStake(preset, st.LossStreak, st.LastStake)
	if errors.Is(err, staking.ErrSequenceExhausted) {
		return w.exhausted(ctx, preset)
	}
	if err != nil {
		return model.Decision{}, err
	}

	if stake.GreaterThan(st.Fund) {
		metrics.RecordCycle(w.acc.Name, "skipped")
		if !st.FundNotified {
			next := st.Clone()
			next.FundNotified = true
			if err := w.commit(ctx, next); err != nil {
				return model.Decision{}, err
			}
			w.send(ctx, fmt.Sprintf("💸 %s: stake %s exceeds fund %s, betting held", w.acc.Name, notifier.Amount(stake), notifier.Amount(st.Fund)))
		}
		return model.Decision{Kind: model.DecisionContinue}, fmt.Errorf("%w: %s > %s", ErrFundTooLow, stake, st.Fund)
	}

	out, err := w.site.Place(ctx, wager.Bet{Account: w.acc.Name, Stake: stake})
	if err != nil {
		metrics.RecordCycle(w.acc.Name, "error")
		if ctx.Err() == nil {
			w.send(ctx, fmt.Sprintf("⚠️ %s: bet of %s failed: %v", w.acc.Name, notifier.Amount(stake), err))
		}
		return model.Decision{}, fmt.Errorf("%w: place bet: %v", errs.ErrExternal, err)
	}
	if out.Stake.IsZero() {
		out.Stake = stake
	}
	if out.At.IsZero() {
		out.At = w.now()
	}

	next, d := risk.Evaluate(st, w.limits(), out)
	next.LastStake = stake
	next.Fund = next.Fund.Add(out.Profit)
	next.FundNotified = false
	if d.Kind == model.DecisionPause {
		next.Mode = model.PausedMode(d.Reason)
	}
	if err := w.commit(ctx, next); err != nil {
		return model.Decision{}, err
	}

	result := "loss"
	if out.Win {
		result = "win"
	}
	metrics.RecordCycle(w.acc.Name, result)
	metrics.RecordDecision(w.acc.Name, d)
	w.log.Info("cycle settled",
		zap.String("result", result),
		zap.String("stake", stake.String()),
		zap.String("profit", out.Profit.String()),
		zap.Int("loss_streak", next.LossStreak),
		zap.String("session", next.SessionProfit.String()),
		zap.String("decision", d.String()),
	)
	if err := w.rec.RecordCycle(&recorder.CycleEvent{
		Account:       w.acc.Name,
		Stake:         stake,
		Profit:        out.Profit,
		Win:           out.Win,
		LossStreak:    next.LossStreak,
		SessionProfit: next.SessionProfit,
		Balance:       next.Balance,
		Mode:          string(next.Mode),
		Decision:      d.String(),
	}); err != nil {
		w.log.Warn("record cycle", zap.Error(err))
	}
	if d.Kind != model.DecisionContinue {
		w.send(ctx, notifier.FormatCycle(w.acc.Name, out, next, d))
	}
	return d, nil
}

// exhausted pauses the account once the loss streak has used up the preset.
func (w *Worker) exhausted(ctx context.Context, p model.Preset) (model.Decision, error) {
	next := w.state.Clone()
	next.Mode = model.ModePausedBurn
	if err := w.commit(ctx, next); err != nil {
		return model.Decision{}, err
	}
	d := model.Decision{
		Kind:   model.DecisionPause,
		Reason: model.ReasonBurn,
		Detail: fmt.Sprintf("stake sequence exhausted after %d losses (lose_stop %d)", next.LossStreak, p.LoseStop),
	}
	metrics.RecordDecision(w.acc.Name, d)
	w.log.Warn("account paused", zap.String("decision", d.String()), zap.String("detail", d.Detail))
	w.send(ctx, fmt.Sprintf("⏸ %s paused (burn): %s", w.acc.Name, d.Detail))
	return d, nil
}

// commit persists next and only then makes it the live state.
func (w *Worker) commit(ctx context.Context, next model.AccountState) error {
	if err := w.states.Save(ctx, w.acc.Dir, next); err != nil {
		w.log.Error("save state", zap.Error(err))
		return err
	}
	w.state = next
	metrics.ObserveState(w.acc.Name, next)
	return nil
}

func (w *Worker) send(ctx context.Context, text string) {
	if err := w.notify.Notify(ctx, text); err != nil {
		w.log.Warn("notify", zap.Error(err))
	}
}
