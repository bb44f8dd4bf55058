package worker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"BetSentinel/internal/account"
	"BetSentinel/internal/config"
	"BetSentinel/internal/errs"
	"BetSentinel/internal/model"
	"BetSentinel/internal/staking"
	"BetSentinel/internal/store"
	"BetSentinel/internal/wager"
)

// scriptSite settles bets from a fixed list of results; true is a win.
type scriptSite struct {
	mu      sync.Mutex
	results []bool
	err     error
	placed  []decimal.Decimal
	balance decimal.Decimal
	entered chan struct{}
	release chan struct{}
}

func (s *scriptSite) Name() string { return "script" }

func (s *scriptSite) Place(ctx context.Context, bet wager.Bet) (model.Outcome, error) {
	if s.entered != nil {
		s.entered <- struct{}{}
		<-s.release
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return model.Outcome{}, s.err
	}
	win := false
	if len(s.results) > 0 {
		win = s.results[0]
		s.results = s.results[1:]
	}
	s.placed = append(s.placed, bet.Stake)
	profit := bet.Stake.Neg()
	if win {
		profit = staking.WinProfit(bet.Stake)
	}
	return model.Outcome{Win: win, Stake: bet.Stake, Profit: profit}, nil
}

func (s *scriptSite) Balance(context.Context) (decimal.Decimal, error) {
	return s.balance, nil
}

func (s *scriptSite) bets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.placed)
}

type recordNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (r *recordNotifier) Notify(_ context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, text)
	return nil
}

func (r *recordNotifier) count(substr string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.msgs {
		if strings.Contains(m, substr) {
			n++
		}
	}
	return n
}

// failingStore fails every Save once fail is set.
type failingStore struct {
	*store.StateStore
	fail bool
}

func (f *failingStore) Save(ctx context.Context, dir string, st model.AccountState) error {
	if f.fail {
		return errs.ErrStorage
	}
	return f.StateStore.Save(ctx, dir, st)
}

var testPreset = model.Preset{
	Continuous:  1,
	LoseStop:    10,
	Multipliers: [4]float64{2, 2, 2, 2},
	Initial:     decimal.NewFromInt(1000),
}

type fixture struct {
	w      *Worker
	site   *scriptSite
	notes  *recordNotifier
	states *failingStore
	dir    string
}

func newFixture(t *testing.T, risk config.RiskSection, preset model.Preset, results ...bool) *fixture {
	t.Helper()
	dir := t.TempDir()
	locks := store.NewKeyedLock(time.Second)
	states := &failingStore{StateStore: store.NewStateStore("", locks, nil)}
	presets := store.NewPresetRegistry("", locks, nil)
	if err := presets.Upsert(context.Background(), dir, "t", preset); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	acc := &account.Account{
		Name: "alice",
		Dir:  dir,
		Config: config.AccountConfig{
			Betting: config.BettingSection{Preset: "t", Fund: 1_000_000},
			Risk:    risk,
		},
	}
	site := &scriptSite{results: results, balance: decimal.NewFromInt(2_000_000)}
	notes := &recordNotifier{}
	w, err := New(acc, Deps{Site: site, States: states, Presets: presets, Notifier: notes})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &fixture{w: w, site: site, notes: notes, states: states, dir: dir}
}

func TestRunCycle_BurnPausesExactlyOnce(t *testing.T) {
	f := newFixture(t, config.RiskSection{BurnStreak: 3}, testPreset, false, false, false, false)
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		d, err := f.w.RunCycle(ctx)
		if err != nil || d.Kind != model.DecisionContinue {
			t.Fatalf("cycle %d: decision=%v err=%v", i, d, err)
		}
	}
	d, err := f.w.RunCycle(ctx)
	if err != nil {
		t.Fatalf("cycle 3: %v", err)
	}
	if d.Kind != model.DecisionPause || d.Reason != model.ReasonBurn {
		t.Fatalf("decision=%v want=pause(burn)", d)
	}
	if _, err := f.w.RunCycle(ctx); !errors.Is(err, ErrNotActive) {
		t.Fatalf("cycle 4 err=%v want=ErrNotActive", err)
	}
	if n := f.site.bets(); n != 3 {
		t.Fatalf("bets=%d want=3", n)
	}
	if n := f.notes.count("paused (burn)"); n != 1 {
		t.Fatalf("pause notifications=%d want=1", n)
	}

	want := []int64{1000, 2000, 4000}
	for i, s := range f.site.placed {
		if !s.Equal(decimal.NewFromInt(want[i])) {
			t.Fatalf("stake[%d]=%s want=%d", i, s, want[i])
		}
	}

	persisted, err := f.states.Load(f.dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if persisted.Mode != model.ModePausedBurn || persisted.LossStreak != 3 {
		t.Fatalf("persisted mode=%s streak=%d", persisted.Mode, persisted.LossStreak)
	}
}

func TestResume_ResetsByReason(t *testing.T) {
	f := newFixture(t, config.RiskSection{BurnStreak: 2, WarnStreak: 1}, testPreset, false, false)
	ctx := context.Background()
	f.w.RunCycle(ctx)
	if d, _ := f.w.RunCycle(ctx); d.Kind != model.DecisionPause {
		t.Fatalf("decision=%v want=pause", d)
	}
	if f.w.Snapshot().Warnings != 1 {
		t.Fatalf("warnings=%d want=1", f.w.Snapshot().Warnings)
	}

	if _, err := f.w.Resume(ctx); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	st := f.w.Snapshot()
	if st.Mode != model.ModeActive || st.LossStreak != 0 || st.Warnings != 0 {
		t.Fatalf("after resume: mode=%s streak=%d warnings=%d", st.Mode, st.LossStreak, st.Warnings)
	}
	if !st.SessionProfit.Equal(decimal.NewFromInt(-3000)) {
		t.Fatalf("session=%s want=-3000 (burn resume keeps session)", st.SessionProfit)
	}
	if _, err := f.w.Resume(ctx); !errors.Is(err, errs.ErrCommand) {
		t.Fatalf("resume of active err=%v want=ErrCommand", err)
	}
}

func TestSetLimits_ThenProfitStop(t *testing.T) {
	f := newFixture(t, config.RiskSection{}, testPreset, true, true, true)
	ctx := context.Background()

	limits := model.RiskLimits{StopProfit: decimal.NewFromInt(1000)}
	if _, err := f.w.SetLimits(ctx, limits); err != nil {
		t.Fatalf("SetLimits: %v", err)
	}
	if d, _ := f.w.RunCycle(ctx); d.Kind != model.DecisionContinue {
		t.Fatalf("first win decision=%v want=continue", d)
	}
	d, err := f.w.RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if d.Kind != model.DecisionPause || d.Reason != model.ReasonProfit {
		t.Fatalf("decision=%v want=pause(profit)", d)
	}
	if got := f.w.Snapshot().Mode; got != model.ModePausedProfit {
		t.Fatalf("mode=%s", got)
	}

	if _, err := f.w.Resume(ctx); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if s := f.w.Snapshot().SessionProfit; !s.IsZero() {
		t.Fatalf("session=%s want=0 after profit resume", s)
	}
}

func TestRunCycle_SiteFailureLeavesCountersUntouched(t *testing.T) {
	f := newFixture(t, config.RiskSection{BurnStreak: 3}, testPreset)
	f.site.err = errors.New("connection reset")

	_, err := f.w.RunCycle(context.Background())
	if !errors.Is(err, errs.ErrExternal) {
		t.Fatalf("err=%v want=ErrExternal", err)
	}
	st := f.w.Snapshot()
	if st.Rounds != 0 || st.LossStreak != 0 || st.Mode != model.ModeActive {
		t.Fatalf("state changed: %+v", st)
	}
	if n := f.notes.count("failed"); n != 1 {
		t.Fatalf("failure notifications=%d want=1", n)
	}
}

func TestRunCycle_SaveFailureDoesNotCommit(t *testing.T) {
	f := newFixture(t, config.RiskSection{}, testPreset, false, false)
	f.states.fail = true

	if _, err := f.w.RunCycle(context.Background()); !errors.Is(err, errs.ErrStorage) {
		t.Fatalf("err=%v want=ErrStorage", err)
	}
	if st := f.w.Snapshot(); st.Rounds != 0 || st.LossStreak != 0 {
		t.Fatalf("state committed despite save failure: rounds=%d streak=%d", st.Rounds, st.LossStreak)
	}

	f.states.fail = false
	if _, err := f.w.RunCycle(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if st := f.w.Snapshot(); st.Rounds != 1 {
		t.Fatalf("rounds=%d want=1", st.Rounds)
	}
}

func TestRunCycle_FundGateNotifiesOnce(t *testing.T) {
	f := newFixture(t, config.RiskSection{}, testPreset, true)
	ctx := context.Background()
	if _, err := f.w.SetFund(ctx, decimal.NewFromInt(500)); err != nil {
		t.Fatalf("SetFund: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := f.w.RunCycle(ctx); !errors.Is(err, ErrFundTooLow) {
			t.Fatalf("cycle %d err=%v want=ErrFundTooLow", i, err)
		}
	}
	if n := f.site.bets(); n != 0 {
		t.Fatalf("bets=%d want=0", n)
	}
	if n := f.notes.count("exceeds fund"); n != 1 {
		t.Fatalf("fund notifications=%d want=1", n)
	}
	if st := f.w.Snapshot(); st.Mode != model.ModeActive {
		t.Fatalf("mode=%s want=active", st.Mode)
	}
}

func TestRunCycle_SequenceExhaustedPauses(t *testing.T) {
	p := testPreset
	p.LoseStop = 2
	f := newFixture(t, config.RiskSection{}, p, false, false, false)
	ctx := context.Background()

	f.w.RunCycle(ctx)
	f.w.RunCycle(ctx)
	d, err := f.w.RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if d.Kind != model.DecisionPause || d.Reason != model.ReasonBurn {
		t.Fatalf("decision=%v want=pause(burn)", d)
	}
	if n := f.site.bets(); n != 2 {
		t.Fatalf("bets=%d want=2", n)
	}
}

func TestCommandWaitsForCycle(t *testing.T) {
	f := newFixture(t, config.RiskSection{}, testPreset, true)
	f.site.entered = make(chan struct{})
	f.site.release = make(chan struct{})
	ctx := context.Background()

	cycleDone := make(chan error, 1)
	go func() {
		_, err := f.w.RunCycle(ctx)
		cycleDone <- err
	}()
	<-f.site.entered

	pauseDone := make(chan error, 1)
	go func() {
		_, err := f.w.Pause(ctx)
		pauseDone <- err
	}()
	select {
	case <-pauseDone:
		t.Fatal("pause applied while a cycle was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(f.site.release)
	if err := <-cycleDone; err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if err := <-pauseDone; err != nil {
		t.Fatalf("Pause: %v", err)
	}
	st := f.w.Snapshot()
	if st.Rounds != 1 || st.Mode != model.ModePausedManual {
		t.Fatalf("rounds=%d mode=%s", st.Rounds, st.Mode)
	}
}

func TestCommands(t *testing.T) {
	f := newFixture(t, config.RiskSection{BurnStreak: 5}, testPreset)
	ctx := context.Background()

	if _, err := f.w.SelectPreset(ctx, "missing"); !errors.Is(err, errs.ErrCommand) {
		t.Fatalf("SelectPreset(missing) err=%v want=ErrCommand", err)
	}
	if _, err := f.w.Off(ctx); err != nil {
		t.Fatalf("Off: %v", err)
	}
	if _, err := f.w.Pause(ctx); !errors.Is(err, errs.ErrCommand) {
		t.Fatalf("Pause(stopped) err=%v want=ErrCommand", err)
	}
	if _, err := f.w.Open(ctx); err != nil {
		t.Fatalf("Open: %v", err)
	}
	st := f.w.Snapshot()
	if st.Mode != model.ModeActive || !st.Balance.Equal(decimal.NewFromInt(2_000_000)) {
		t.Fatalf("after open: mode=%s balance=%s", st.Mode, st.Balance)
	}

	ack, err := f.w.SetFund(ctx, decimal.NewFromInt(5_000_000))
	if err != nil {
		t.Fatalf("SetFund: %v", err)
	}
	if !strings.Contains(ack, "capped") || !f.w.Snapshot().Fund.Equal(decimal.NewFromInt(2_000_000)) {
		t.Fatalf("fund not capped: ack=%q fund=%s", ack, f.w.Snapshot().Fund)
	}
	if _, err := f.w.SetFund(ctx, decimal.NewFromInt(-1)); !errors.Is(err, errs.ErrCommand) {
		t.Fatalf("negative fund err=%v", err)
	}

	if _, err := f.w.SetWarning(ctx, 2, 3); err != nil {
		t.Fatalf("SetWarning: %v", err)
	}
	if l := f.w.Limits(); l.WarnStreak != 2 || l.WarnLimit != 3 || l.BurnStreak != 5 {
		t.Fatalf("limits=%s", l)
	}
	if _, err := f.w.SetWarning(ctx, 0, -1); !errors.Is(err, errs.ErrCommand) {
		t.Fatalf("SetWarning(0) err=%v want=ErrCommand", err)
	}

	if _, err := f.w.SavePreset(ctx, "big", model.Preset{Continuous: 1, LoseStop: 3, Multipliers: [4]float64{3, 3, 3, 3}, Initial: decimal.NewFromInt(2000)}); err != nil {
		t.Fatalf("SavePreset: %v", err)
	}
	if _, err := f.w.DeletePreset(ctx, "t"); !errors.Is(err, errs.ErrCommand) {
		t.Fatalf("deleting the selected preset err=%v", err)
	}
	list, err := f.w.Presets()
	if err != nil || !strings.Contains(list, "▶ t") || !strings.Contains(list, "big") {
		t.Fatalf("Presets=%q err=%v", list, err)
	}

	sim, err := f.w.Simulate([]string{"big"})
	if err != nil || !strings.Contains(sim, "big") {
		t.Fatalf("Simulate=%q err=%v", sim, err)
	}
	if _, err := f.w.Simulate([]string{"1", "x"}); !errors.Is(err, errs.ErrCommand) {
		t.Fatalf("Simulate bad args err=%v", err)
	}

	if _, err := f.w.ResetStats(ctx); err != nil {
		t.Fatalf("ResetStats: %v", err)
	}
	if !strings.Contains(f.w.Status(), "alice") {
		t.Fatal("status missing account name")
	}
}

func TestRefreshBalanceAndStats(t *testing.T) {
	results := []bool{false, false, true, false, true, true, true, false, false, false, true, true}
	f := newFixture(t, config.RiskSection{}, testPreset, results...)
	ctx := context.Background()

	f.site.balance = decimal.NewFromInt(1_234_567)
	ack, err := f.w.RefreshBalance(ctx)
	if err != nil || !strings.Contains(ack, "1234567") {
		t.Fatalf("RefreshBalance=%q err=%v", ack, err)
	}
	persisted, err := f.states.Load(f.dir)
	if err != nil || !persisted.Balance.Equal(decimal.NewFromInt(1_234_567)) {
		t.Fatalf("persisted balance=%s err=%v", persisted.Balance, err)
	}

	if _, err := f.w.Stats(); !errors.Is(err, errs.ErrCommand) {
		t.Fatalf("Stats without history err=%v want=ErrCommand", err)
	}
	for i := range results {
		if _, err := f.w.RunCycle(ctx); err != nil {
			t.Fatalf("cycle %d: %v", i+1, err)
		}
	}
	out, err := f.w.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	for _, want := range []string{"last 12 bets", "Loss streaks", "Win streaks"} {
		if !strings.Contains(out, want) {
			t.Errorf("stats missing %q:\n%s", want, out)
		}
	}
}

func TestSelectAndDeletePresetKeepSelectionValid(t *testing.T) {
	f := newFixture(t, config.RiskSection{}, testPreset)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		if err := f.w.presets.Upsert(ctx, f.dir, "u", testPreset); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = f.w.SelectPreset(ctx, "u")
		}()
		go func() {
			defer wg.Done()
			_, _ = f.w.DeletePreset(ctx, "u")
		}()
		wg.Wait()

		if name := f.w.Snapshot().PresetName; name == "u" {
			if _, err := f.w.presets.Get(f.dir, "u"); err != nil {
				t.Fatalf("iteration %d: selected preset u was deleted", i)
			}
		}
		if _, err := f.w.SelectPreset(ctx, "t"); err != nil {
			t.Fatalf("SelectPreset(t): %v", err)
		}
	}
}
