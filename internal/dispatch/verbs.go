package dispatch

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"BetSentinel/internal/errs"
	"BetSentinel/internal/model"
	"BetSentinel/internal/notifier"
	"BetSentinel/internal/staking"
)

// DefaultVerbs is the operator command set.
func DefaultVerbs() []Verb {
	return []Verb{
		{Name: "help", Usage: "help", Global: helpVerb},
		{Name: "open", Usage: "open [@name|@all]", Prepare: fixed(func(ctx context.Context, a Account) (string, error) { return a.Open(ctx) })},
		{Name: "off", Usage: "off [@name|@all]", Prepare: fixed(func(ctx context.Context, a Account) (string, error) { return a.Off(ctx) })},
		{Name: "pause", Usage: "pause [@name|@all]", Prepare: fixed(func(ctx context.Context, a Account) (string, error) { return a.Pause(ctx) })},
		{Name: "resume", Usage: "resume [@name|@all]", Prepare: fixed(func(ctx context.Context, a Account) (string, error) { return a.Resume(ctx) })},
		{Name: "status", Usage: "status [@name|@all]", Prepare: fixed(func(_ context.Context, a Account) (string, error) { return a.Status(), nil })},
		{Name: "users", Usage: "users", Global: usersVerb},
		{Name: "balance", Usage: "balance [@name|@all]", Prepare: fixed(func(ctx context.Context, a Account) (string, error) { return a.RefreshBalance(ctx) })},
		{Name: "stats", Usage: "stats [@name|@all]", Prepare: fixed(func(_ context.Context, a Account) (string, error) { return a.Stats() })},
		{Name: "st", Usage: "st <preset> [@name|@all]", Prepare: prepareSelect},
		{Name: "ys", Usage: "ys <preset> <continuous> <lose_stop> <m1> <m2> <m3> <m4> <initial>", Prepare: prepareSavePreset},
		{Name: "yss", Usage: "yss | yss dl <preset>", Prepare: preparePresets},
		{Name: "set", Usage: "set <burn> <warn> <stop_loss> <stop_profit> [warn_limit]", Prepare: prepareLimits},
		{Name: "warn", Aliases: []string{"wlc"}, Usage: "warn <streak> [limit]", Prepare: prepareWarning},
		{Name: "gf", Usage: "gf [amount]", Prepare: prepareFund},
		{Name: "res", Usage: "res [tj|state]", Prepare: prepareReset},
		{Name: "yc", Usage: "yc [preset | <continuous> <lose_stop> <m1> <m2> <m3> <m4> <initial>]", Prepare: prepareSimulate},
		{Name: "ver", Aliases: []string{"version"}, Usage: "ver", Global: versionVerb},
		{Name: "upcheck", Usage: "upcheck [ref]", Global: checkVerb},
		{Name: "update", Aliases: []string{"upnow", "up", "upref"}, Usage: "update [ref]", Global: applyVerb},
		{Name: "reback", Aliases: []string{"uprollback", "rollback"}, Usage: "reback [ref]", Global: rollbackVerb},
		{Name: "restart", Aliases: []string{"reboot"}, Usage: "restart", Global: restartVerb},
	}
}

// NewDefaultRegistry builds the registry of DefaultVerbs.
func NewDefaultRegistry() *Registry {
	r, err := NewRegistry(DefaultVerbs()...)
	if err != nil {
		panic(err)
	}
	return r
}

func fixed(a Action) func([]string) (Action, error) {
	return func(args []string) (Action, error) {
		if len(args) > 0 {
			return nil, fmt.Errorf("%w: unexpected arguments %q", errs.ErrCommand, strings.Join(args, " "))
		}
		return a, nil
	}
}

func usageErr(format string, a ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{errs.ErrCommand}, a...)...)
}

func prepareSelect(args []string) (Action, error) {
	if len(args) != 1 {
		return nil, usageErr("want a preset name")
	}
	name := args[0]
	return func(ctx context.Context, a Account) (string, error) {
		return a.SelectPreset(ctx, name)
	}, nil
}

// prepareSavePreset saves the preset and makes it the selected one.
func prepareSavePreset(args []string) (Action, error) {
	if len(args) != 8 {
		return nil, usageErr("want a name and 7 parameters, got %d arguments", len(args))
	}
	name := args[0]
	p, err := staking.ParsePreset(args[1:])
	if err != nil {
		return nil, usageErr("%v", err)
	}
	return func(ctx context.Context, a Account) (string, error) {
		saved, err := a.SavePreset(ctx, name, p)
		if err != nil {
			return "", err
		}
		selected, err := a.SelectPreset(ctx, name)
		if err != nil {
			return saved, err
		}
		return saved + "\n" + selected, nil
	}, nil
}

func preparePresets(args []string) (Action, error) {
	switch {
	case len(args) == 0:
		return func(_ context.Context, a Account) (string, error) { return a.Presets() }, nil
	case len(args) == 2 && strings.EqualFold(args[0], "dl"):
		name := args[1]
		return func(ctx context.Context, a Account) (string, error) {
			return a.DeletePreset(ctx, name)
		}, nil
	}
	return nil, usageErr("unexpected arguments %q", strings.Join(args, " "))
}

// prepareLimits parses every value before any state is touched. Without a
// fifth argument the account keeps its warn limit.
func prepareLimits(args []string) (Action, error) {
	if len(args) != 4 && len(args) != 5 {
		return nil, usageErr("want 4 or 5 values, got %d", len(args))
	}
	burn, err := nonNegInt("burn", args[0])
	if err != nil {
		return nil, err
	}
	warn, err := nonNegInt("warn", args[1])
	if err != nil {
		return nil, err
	}
	stopLoss, err := nonNegDecimal("stop_loss", args[2])
	if err != nil {
		return nil, err
	}
	stopProfit, err := nonNegDecimal("stop_profit", args[3])
	if err != nil {
		return nil, err
	}
	warnLimit := -1
	if len(args) == 5 {
		if warnLimit, err = nonNegInt("warn_limit", args[4]); err != nil {
			return nil, err
		}
	}
	return func(ctx context.Context, a Account) (string, error) {
		l := model.RiskLimits{BurnStreak: burn, WarnStreak: warn, StopLoss: stopLoss, StopProfit: stopProfit, WarnLimit: warnLimit}
		if warnLimit < 0 {
			l.WarnLimit = a.Limits().WarnLimit
		}
		return a.SetLimits(ctx, l)
	}, nil
}

func prepareWarning(args []string) (Action, error) {
	switch len(args) {
	case 0:
		return func(_ context.Context, a Account) (string, error) {
			return fmt.Sprintf("%s limits: %s", a.Name(), a.Limits().String()), nil
		}, nil
	case 1, 2:
	default:
		return nil, usageErr("want a streak and an optional limit")
	}
	streak, err := nonNegInt("streak", args[0])
	if err != nil {
		return nil, err
	}
	if streak < 1 {
		return nil, usageErr("streak must be >= 1")
	}
	limit := -1
	if len(args) == 2 {
		if limit, err = nonNegInt("limit", args[1]); err != nil {
			return nil, err
		}
	}
	return func(ctx context.Context, a Account) (string, error) {
		return a.SetWarning(ctx, streak, limit)
	}, nil
}

func prepareFund(args []string) (Action, error) {
	switch len(args) {
	case 0:
		return func(_ context.Context, a Account) (string, error) {
			st := a.Snapshot()
			return fmt.Sprintf("%s fund %s | balance %s", a.Name(), notifier.Amount(st.Fund), notifier.Amount(st.Balance)), nil
		}, nil
	case 1:
	default:
		return nil, usageErr("want one amount")
	}
	amount, err := nonNegDecimal("amount", args[0])
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, a Account) (string, error) {
		return a.SetFund(ctx, amount)
	}, nil
}

func prepareReset(args []string) (Action, error) {
	if len(args) > 1 || len(args) == 1 && !strings.EqualFold(args[0], "tj") && !strings.EqualFold(args[0], "state") {
		return nil, usageErr("unexpected arguments %q", strings.Join(args, " "))
	}
	return func(ctx context.Context, a Account) (string, error) { return a.ResetStats(ctx) }, nil
}

func prepareSimulate(args []string) (Action, error) {
	if len(args) > 1 {
		if _, err := staking.ParsePreset(args); err != nil {
			return nil, usageErr("%v", err)
		}
	}
	return func(_ context.Context, a Account) (string, error) { return a.Simulate(args) }, nil
}

func nonNegInt(name, s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, usageErr("%s %q is not an integer", name, s)
	}
	if n < 0 {
		return 0, usageErr("%s must not be negative", name)
	}
	return n, nil
}

func nonNegDecimal(name, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, usageErr("%s %q is not a number", name, s)
	}
	if d.IsNegative() {
		return decimal.Zero, usageErr("%s must not be negative", name)
	}
	return d, nil
}

func helpVerb(_ context.Context, d *Dispatcher, _ Command) (string, error) {
	var b strings.Builder
	b.WriteString("<b>Commands</b>\n")
	for _, v := range d.reg.Verbs() {
		b.WriteString("• " + v.Usage)
		if len(v.Aliases) > 0 {
			b.WriteString(" (" + strings.Join(v.Aliases, ", ") + ")")
		}
		b.WriteString("\n")
	}
	b.WriteString("\nAccount commands take @name or @all; without one they apply to the account bound to this chat.")
	return b.String(), nil
}

func usersVerb(_ context.Context, d *Dispatcher, _ Command) (string, error) {
	return notifier.FormatUsers(d.Lines()), nil
}

func (d *Dispatcher) requireUpdater() (Updater, error) {
	if d.updater == nil {
		return nil, fmt.Errorf("%w: updates are not configured", errs.ErrCommand)
	}
	return d.updater, nil
}

func target(cmd Command) (string, error) {
	if len(cmd.Args) > 1 {
		return "", usageErr("want at most one ref")
	}
	if len(cmd.Args) == 1 {
		return cmd.Args[0], nil
	}
	return "", nil
}

func versionVerb(ctx context.Context, d *Dispatcher, _ Command) (string, error) {
	u, err := d.requireUpdater()
	if err != nil {
		return "", err
	}
	cur, err := u.Version(ctx)
	if err != nil {
		return "", err
	}
	st := u.Status()
	var b strings.Builder
	b.WriteString(fmt.Sprintf("🏷 Version %s\nUpdate state: %s\n", cur.Short(), st.State))
	if !st.Release.Previous.IsZero() {
		b.WriteString(fmt.Sprintf("Previous: %s\n", st.Release.Previous.Short()))
	}
	if !st.Release.Candidate.IsZero() {
		b.WriteString(fmt.Sprintf("Candidate: %s\n", st.Release.Candidate.Short()))
	}
	if st.Release.LastError != "" {
		b.WriteString(fmt.Sprintf("Last error: %s\n", st.Release.LastError))
	}
	return b.String(), nil
}

func checkVerb(ctx context.Context, d *Dispatcher, cmd Command) (string, error) {
	u, err := d.requireUpdater()
	if err != nil {
		return "", err
	}
	ref, err := target(cmd)
	if err != nil {
		return "", err
	}
	res, err := u.Check(ctx, ref)
	if err != nil {
		return "", err
	}
	if !res.Available {
		return fmt.Sprintf("✅ Up to date (%s)", res.Current.Short()), nil
	}
	return fmt.Sprintf("🆕 %s available (running %s). Send update to apply.", res.Candidate.Short(), res.Current.Short()), nil
}

func applyVerb(ctx context.Context, d *Dispatcher, cmd Command) (string, error) {
	u, err := d.requireUpdater()
	if err != nil {
		return "", err
	}
	ref, err := target(cmd)
	if err != nil {
		return "", err
	}
	res, err := u.Apply(ctx, ref)
	if err != nil {
		return "", err
	}
	if !res.Changed {
		return fmt.Sprintf("✅ Already on %s", res.To.Short()), nil
	}
	return fmt.Sprintf("⬆️ Updated %s → %s, restarting", res.From.Short(), res.To.Short()), nil
}

func rollbackVerb(ctx context.Context, d *Dispatcher, cmd Command) (string, error) {
	u, err := d.requireUpdater()
	if err != nil {
		return "", err
	}
	ref, err := target(cmd)
	if err != nil {
		return "", err
	}
	res, err := u.Rollback(ctx, ref)
	if err != nil {
		return "", err
	}
	if !res.Changed {
		return fmt.Sprintf("✅ Already on %s", res.To.Short()), nil
	}
	return fmt.Sprintf("↩️ Rolled back %s → %s, restarting", res.From.Short(), res.To.Short()), nil
}

func restartVerb(ctx context.Context, d *Dispatcher, cmd Command) (string, error) {
	u, err := d.requireUpdater()
	if err != nil {
		return "", err
	}
	if len(cmd.Args) > 0 {
		return "", usageErr("restart takes no arguments")
	}
	if err := u.Restart(ctx); err != nil {
		return "", err
	}
	return "🔄 Restarting", nil
}
