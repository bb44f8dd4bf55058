// Package dispatch turns operator chat messages into account and update
// operations.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"BetSentinel/internal/errs"
	"BetSentinel/internal/metrics"
	"BetSentinel/internal/model"
	"BetSentinel/internal/notifier"
	"BetSentinel/internal/recorder"
	"BetSentinel/internal/update"
)

// Account is the per-account command surface.
type Account interface {
	Name() string
	Open(ctx context.Context) (string, error)
	Off(ctx context.Context) (string, error)
	Pause(ctx context.Context) (string, error)
	Resume(ctx context.Context) (string, error)
	Status() string
	Snapshot() model.AccountState
	Limits() model.RiskLimits
	SelectPreset(ctx context.Context, name string) (string, error)
	SavePreset(ctx context.Context, name string, p model.Preset) (string, error)
	DeletePreset(ctx context.Context, name string) (string, error)
	Presets() (string, error)
	SetLimits(ctx context.Context, limits model.RiskLimits) (string, error)
	SetWarning(ctx context.Context, streak, limit int) (string, error)
	SetFund(ctx context.Context, amount decimal.Decimal) (string, error)
	ResetStats(ctx context.Context) (string, error)
	RefreshBalance(ctx context.Context) (string, error)
	Stats() (string, error)
	Simulate(args []string) (string, error)
}

// Updater is the release management surface.
type Updater interface {
	Status() update.Status
	Version(ctx context.Context) (model.ReleaseRef, error)
	Check(ctx context.Context, target string) (update.CheckResult, error)
	Apply(ctx context.Context, target string) (update.Result, error)
	Rollback(ctx context.Context, target string) (update.Result, error)
	Restart(ctx context.Context) error
}

// ErrForeignChat rejects commands from chats outside the allowlist.
var ErrForeignChat = errors.New("chat is not allowed to send commands")

// Origin identifies where a command came from.
type Origin struct {
	ChatID string
	UserID int64
}

func (o Origin) String() string {
	if o.ChatID == "" {
		return "local"
	}
	return "chat:" + o.ChatID
}

// Reply is the outcome of a command on one account. Account is empty for
// global verbs.
type Reply struct {
	Account string
	Text    string
	Err     error
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithBinding sets the chat-to-account lookup used when no target is given.
func WithBinding(bind func(chatID string) (string, bool)) Option {
	return func(d *Dispatcher) { d.bind = bind }
}

// WithAllowedChats restricts remote commands to the given chats. Local
// origins (no chat) are always accepted. Without this option every chat is.
func WithAllowedChats(ids ...string) Option {
	return func(d *Dispatcher) {
		d.allowed = make(map[string]bool, len(ids))
		for _, id := range ids {
			if id = strings.TrimSpace(id); id != "" {
				d.allowed[id] = true
			}
		}
	}
}

func WithUpdater(u Updater) Option {
	return func(d *Dispatcher) { d.updater = u }
}

func WithRecorder(r recorder.Recorder) Option {
	return func(d *Dispatcher) { d.rec = r }
}

func WithLogger(log *zap.Logger) Option {
	return func(d *Dispatcher) { d.log = log }
}

// Dispatcher routes parsed commands to accounts or the updater.
type Dispatcher struct {
	reg      *Registry
	accounts []Account
	byName   map[string]Account
	bind     func(chatID string) (string, bool)
	allowed  map[string]bool
	updater  Updater
	rec      recorder.Recorder
	log      *zap.Logger
}

// New creates a dispatcher over accounts. Names are matched case-insensitively.
func New(reg *Registry, accounts []Account, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		reg:      reg,
		accounts: accounts,
		byName:   make(map[string]Account, len(accounts)),
		rec:      recorder.NewNoopRecorder(),
		log:      zap.NewNop(),
	}
	for _, a := range accounts {
		d.byName[strings.ToLower(a.Name())] = a
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Accounts returns the accounts in registration order.
func (d *Dispatcher) Accounts() []Account {
	return d.accounts
}

// Lines snapshots every account for listing and summaries.
func (d *Dispatcher) Lines() []notifier.AccountLine {
	lines := make([]notifier.AccountLine, 0, len(d.accounts))
	for _, a := range d.accounts {
		lines = append(lines, notifier.AccountLine{Name: a.Name(), State: a.Snapshot()})
	}
	return lines
}

// Dispatch runs one command. The returned error covers parse, lookup and
// target failures; per-account failures are carried in the replies so that
// @all stays best-effort.
func (d *Dispatcher) Dispatch(ctx context.Context, origin Origin, text string) ([]Reply, error) {
	if !d.allows(origin) {
		err := fmt.Errorf("%w: %w: %s", errs.ErrCommand, ErrForeignChat, origin.ChatID)
		d.finish(origin, Command{Verb: "?"}, "", err)
		return nil, err
	}
	cmd, err := Parse(text)
	if err != nil {
		d.finish(origin, Command{Verb: "?"}, "", err)
		return nil, err
	}
	verb, ok := d.reg.Lookup(cmd.Verb)
	if !ok {
		err := fmt.Errorf("%w: unknown command %q, send help for the list", errs.ErrCommand, cmd.Verb)
		d.finish(origin, cmd, "", err)
		return nil, err
	}

	if verb.Global != nil {
		if cmd.All || cmd.Selector != "" {
			err := fmt.Errorf("%w: %s applies to the whole bot and takes no @target", errs.ErrCommand, verb.Name)
			d.finish(origin, cmd, "", err)
			return nil, err
		}
		out, err := verb.Global(ctx, d, cmd)
		d.finish(origin, cmd, "", err)
		return []Reply{{Text: out, Err: err}}, nil
	}

	action, err := verb.Prepare(cmd.Args)
	if err != nil {
		if !errors.Is(err, errs.ErrCommand) {
			err = fmt.Errorf("%w: %v", errs.ErrCommand, err)
		}
		err = fmt.Errorf("%w\nusage: %s", err, verb.Usage)
		d.finish(origin, cmd, "", err)
		return nil, err
	}
	targets, err := d.targets(cmd, origin)
	if err != nil {
		d.finish(origin, cmd, "", err)
		return nil, err
	}

	replies := make([]Reply, 0, len(targets))
	for _, acc := range targets {
		if err := ctx.Err(); err != nil {
			replies = append(replies, Reply{Account: acc.Name(), Err: err})
			continue
		}
		out, err := action(ctx, acc)
		d.finish(origin, cmd, acc.Name(), err)
		replies = append(replies, Reply{Account: acc.Name(), Text: out, Err: err})
	}
	return replies, nil
}

func (d *Dispatcher) allows(origin Origin) bool {
	return d.allowed == nil || origin.ChatID == "" || d.allowed[origin.ChatID]
}

// targets resolves the accounts a command applies to: @all, @name, the
// account bound to the chat, or the only configured account.
func (d *Dispatcher) targets(cmd Command, origin Origin) ([]Account, error) {
	switch {
	case cmd.All:
		if len(d.accounts) == 0 {
			return nil, fmt.Errorf("%w: no accounts configured", errs.ErrCommand)
		}
		return d.accounts, nil
	case cmd.Selector != "":
		acc, ok := d.byName[strings.ToLower(cmd.Selector)]
		if !ok {
			return nil, fmt.Errorf("%w: unknown account %q", errs.ErrCommand, cmd.Selector)
		}
		return []Account{acc}, nil
	}
	if d.bind != nil && origin.ChatID != "" {
		if name, ok := d.bind(origin.ChatID); ok {
			if acc, ok := d.byName[strings.ToLower(name)]; ok {
				return []Account{acc}, nil
			}
		}
	}
	if len(d.accounts) == 1 {
		return d.accounts, nil
	}
	return nil, fmt.Errorf("%w: target required, add @name or @all", errs.ErrCommand)
}

func (d *Dispatcher) finish(origin Origin, cmd Command, target string, err error) {
	result := "ok"
	if err != nil {
		result = errs.Kind(err)
	}
	metrics.RecordCommand(cmd.Verb, result)

	evt := &recorder.CommandEvent{
		Origin: origin.String(),
		Verb:   cmd.Verb,
		Target: target,
		Args:   strings.Join(cmd.Args, " "),
		OK:     err == nil,
	}
	if err != nil {
		evt.Error = err.Error()
		d.log.Info("command rejected",
			zap.String("verb", cmd.Verb), zap.String("target", target),
			zap.String("origin", evt.Origin), zap.String("kind", result), zap.Error(err))
	} else {
		d.log.Info("command handled",
			zap.String("verb", cmd.Verb), zap.String("target", target), zap.String("origin", evt.Origin))
	}
	if err := d.rec.RecordCommand(evt); err != nil {
		d.log.Warn("record command", zap.Error(err))
	}
}

// Handle dispatches text and renders the reply for chat.
func (d *Dispatcher) Handle(ctx context.Context, origin Origin, text string) string {
	replies, err := d.Dispatch(ctx, origin, text)
	return render(replies, err)
}

func render(replies []Reply, err error) string {
	if err != nil {
		return renderErr(err)
	}
	if len(replies) == 1 {
		if replies[0].Err != nil {
			return renderErr(replies[0].Err)
		}
		return replies[0].Text
	}
	var b strings.Builder
	for i, r := range replies {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if r.Err != nil {
			b.WriteString(fmt.Sprintf("%s: %s", r.Account, renderErr(r.Err)))
			continue
		}
		b.WriteString(r.Text)
	}
	return b.String()
}

// HandleMessage adapts Handle to the Telegram poller. Foreign chats get no
// reply.
func (d *Dispatcher) HandleMessage(ctx context.Context, msg notifier.Message) string {
	replies, err := d.Dispatch(ctx, Origin{ChatID: msg.ChatID, UserID: msg.UserID}, msg.Text)
	if errors.Is(err, ErrForeignChat) {
		return ""
	}
	return render(replies, err)
}

func renderErr(err error) string {
	return "❌ " + err.Error()
}
