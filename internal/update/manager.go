// Package update checks, applies and rolls back deployments of the bot's own
// code tree, keeping a durable record of the previous release.
package update

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"BetSentinel/internal/errs"
	"BetSentinel/internal/metrics"
	"BetSentinel/internal/model"
	"BetSentinel/internal/notifier"
	"BetSentinel/internal/recorder"
	"BetSentinel/internal/store"
)

// ErrUpdateInFlight is returned while another check, apply or rollback holds
// the lock.
var ErrUpdateInFlight = errors.New("update already in progress")

// staleLockAge is how old a lock file must be before it is considered left
// over from a crashed process.
const staleLockAge = 30 * time.Minute

// dependencyFiles trigger the installer when they differ between releases.
var dependencyFiles = []string{"go.mod", "go.sum"}

// Options configure a Manager.
type Options struct {
	Root         string
	LockFile     string
	StateFile    string
	RollbackFile string
	Source       VersionSource
	Installer    Installer
	Restarter    Restarter
	Recorder     recorder.Recorder
	Log          *zap.Logger
}

// Status is a snapshot of the manager.
type Status struct {
	State   model.UpdateState
	Release model.ReleaseState
}

// CheckResult is returned by Check.
type CheckResult struct {
	Current   model.ReleaseRef
	Candidate model.ReleaseRef
	Available bool
}

// Result is returned by Apply and Rollback.
type Result struct {
	From    model.ReleaseRef
	To      model.ReleaseRef
	Changed bool
}

// rollbackRecord is written before the tree moves so a crash mid-apply can
// still find its way back.
type rollbackRecord struct {
	Previous model.ReleaseRef `json:"previous"`
	Target   model.ReleaseRef `json:"target"`
	At       time.Time        `json:"at"`
}

// Manager runs the update state machine. Check, Apply and Rollback are
// exclusive within the process (TryLock); Apply and Rollback also across
// processes (O_EXCL lock file).
type Manager struct {
	op sync.Mutex

	mu      sync.Mutex
	state   model.UpdateState
	release model.ReleaseState

	root         string
	lockFile     string
	stateFile    string
	rollbackFile string
	src          VersionSource
	inst         Installer
	restarter    Restarter
	rec          recorder.Recorder
	log          *zap.Logger
}

// NewManager loads the persisted release state.
func NewManager(opts Options) (*Manager, error) {
	if opts.Source == nil {
		return nil, fmt.Errorf("%w: update manager needs a version source", errs.ErrConfig)
	}
	m := &Manager{
		state:        model.UpdateIdle,
		root:         opts.Root,
		lockFile:     inRoot(opts.Root, opts.LockFile, ".update.lock"),
		stateFile:    inRoot(opts.Root, opts.StateFile, ".release_state.json"),
		rollbackFile: inRoot(opts.Root, opts.RollbackFile, ".release_rollback.json"),
		src:          opts.Source,
		inst:         opts.Installer,
		restarter:    opts.Restarter,
		rec:          opts.Recorder,
		log:          opts.Log,
	}
	if m.log == nil {
		m.log = zap.NewNop()
	}
	if m.rec == nil {
		m.rec = recorder.NewNoopRecorder()
	}
	if _, err := store.ReadJSON(m.stateFile, &m.release); err != nil {
		return nil, err
	}
	metrics.SetUpdateState(m.state)
	return m, nil
}

func inRoot(root, path, def string) string {
	if path == "" {
		path = def
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

// Status returns the current state and release record.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{State: m.state, Release: m.release}
}

// Version returns the ref the tree is on right now.
func (m *Manager) Version(ctx context.Context) (model.ReleaseRef, error) {
	return m.src.Current(ctx)
}

// Check looks for a candidate: target when given, else the latest release.
// It does not run while an apply or rollback is in flight.
func (m *Manager) Check(ctx context.Context, target string) (CheckResult, error) {
	if !m.op.TryLock() {
		return CheckResult{}, ErrUpdateInFlight
	}
	defer m.op.Unlock()
	m.setState(model.UpdateChecking)

	res, err := m.check(ctx, target)
	if err != nil {
		err = fmt.Errorf("%w: check: %v", errs.ErrUpdate, err)
		m.finish("check", model.UpdateFailed, res.Current, res.Candidate, err)
		return res, err
	}
	next := model.UpdateUpToDate
	if res.Available {
		next = model.UpdateCandidateAvailable
	}
	m.mu.Lock()
	m.release.Candidate = res.Candidate
	if m.release.Current.IsZero() {
		m.release.Current = res.Current
	}
	m.mu.Unlock()
	m.finish("check", next, res.Current, res.Candidate, nil)
	return res, nil
}

func (m *Manager) check(ctx context.Context, target string) (CheckResult, error) {
	cur, err := m.src.Current(ctx)
	if err != nil {
		return CheckResult{}, err
	}
	res := CheckResult{Current: cur}
	cand, err := m.resolveTarget(ctx, target)
	if err != nil {
		return res, err
	}
	res.Candidate = cand
	res.Available = cand.Commit != cur.Commit
	return res, nil
}

func (m *Manager) resolveTarget(ctx context.Context, target string) (model.ReleaseRef, error) {
	if err := m.src.Fetch(ctx); err != nil {
		return model.ReleaseRef{}, err
	}
	if strings.TrimSpace(target) == "" {
		return m.src.Latest(ctx)
	}
	return m.src.Resolve(ctx, target)
}

// Apply moves the tree to target (latest release when empty), refreshes
// dependencies when needed, records the previous ref and restarts. A failure
// leaves the running release unchanged.
func (m *Manager) Apply(ctx context.Context, target string) (Result, error) {
	unlock, err := m.acquire()
	if err != nil {
		return Result{}, err
	}
	defer unlock()

	m.setState(model.UpdateApplying)
	res, err := m.apply(ctx, target)
	if err != nil {
		err = fmt.Errorf("%w: apply: %v", errs.ErrUpdate, err)
		m.finish("apply", model.UpdateFailed, res.From, res.To, err)
		return res, err
	}
	if !res.Changed {
		m.finish("apply", model.UpdateUpToDate, res.From, res.To, nil)
		return res, nil
	}
	m.finish("apply", model.UpdateApplied, res.From, res.To, nil)
	m.restart(ctx)
	return res, nil
}

func (m *Manager) apply(ctx context.Context, target string) (Result, error) {
	if err := m.checkClean(ctx); err != nil {
		return Result{}, err
	}
	cur, err := m.src.Current(ctx)
	if err != nil {
		return Result{}, err
	}
	res := Result{From: cur}
	cand, err := m.resolveTarget(ctx, target)
	if err != nil {
		return res, err
	}
	res.To = cand
	if cand.Commit == cur.Commit {
		return res, nil
	}
	if err := m.move(ctx, cur, cand); err != nil {
		return res, err
	}
	res.Changed = true

	m.mu.Lock()
	m.release.Previous = cur
	m.release.Current = cand
	m.release.Candidate = model.ReleaseRef{}
	if cand.Kind == model.RefTag {
		m.release.LastNotified = cand.Name
	}
	m.mu.Unlock()
	return res, nil
}

// Rollback returns to target, or to the recorded previous release when
// target is empty.
func (m *Manager) Rollback(ctx context.Context, target string) (Result, error) {
	unlock, err := m.acquire()
	if err != nil {
		return Result{}, err
	}
	defer unlock()

	m.setState(model.UpdateApplying)
	res, err := m.rollback(ctx, target)
	if err != nil {
		err = fmt.Errorf("%w: rollback: %v", errs.ErrUpdate, err)
		m.finish("rollback", model.UpdateFailed, res.From, res.To, err)
		return res, err
	}
	if !res.Changed {
		m.finish("rollback", model.UpdateUpToDate, res.From, res.To, nil)
		return res, nil
	}
	m.finish("rollback", model.UpdateRolledBack, res.From, res.To, nil)
	m.restart(ctx)
	return res, nil
}

func (m *Manager) rollback(ctx context.Context, target string) (Result, error) {
	if err := m.checkClean(ctx); err != nil {
		return Result{}, err
	}
	cur, err := m.src.Current(ctx)
	if err != nil {
		return Result{}, err
	}
	res := Result{From: cur}

	var to model.ReleaseRef
	if strings.TrimSpace(target) == "" {
		to = m.previous()
		if to.IsZero() {
			return res, errors.New("no previous release recorded")
		}
	} else {
		if to, err = m.resolveTarget(ctx, target); err != nil {
			return res, err
		}
	}
	res.To = to
	if to.Commit == cur.Commit {
		return res, nil
	}
	if err := m.move(ctx, cur, to); err != nil {
		return res, err
	}
	res.Changed = true

	m.mu.Lock()
	m.release.Previous = cur
	m.release.Current = to
	m.mu.Unlock()
	return res, nil
}

// previous prefers the release state and falls back to the rollback record
// left by an apply that never finished.
func (m *Manager) previous() model.ReleaseRef {
	m.mu.Lock()
	prev := m.release.Previous
	m.mu.Unlock()
	if !prev.IsZero() {
		return prev
	}
	var rec rollbackRecord
	if ok, err := store.ReadJSON(m.rollbackFile, &rec); err != nil || !ok {
		return model.ReleaseRef{}
	}
	return rec.Previous
}

// move checks out to and refreshes dependencies, restoring from on failure.
func (m *Manager) move(ctx context.Context, from, to model.ReleaseRef) error {
	if err := store.WriteJSON(m.rollbackFile, rollbackRecord{Previous: from, Target: to, At: time.Now()}); err != nil {
		return err
	}
	if err := m.src.Checkout(ctx, to.Commit); err != nil {
		return err
	}
	if m.inst == nil {
		return nil
	}
	changed, err := m.src.Changed(ctx, from.Commit, to.Commit, dependencyFiles...)
	if err != nil {
		changed = true
		m.log.Warn("dependency diff failed, installing anyway", zap.Error(err))
	}
	if !changed {
		return nil
	}
	if err := m.inst.Install(ctx, m.root); err != nil {
		if rerr := m.src.Checkout(ctx, from.Commit); rerr != nil {
			return fmt.Errorf("install: %v; restoring %s also failed: %v", err, from.Short(), rerr)
		}
		return fmt.Errorf("install: %v; restored %s", err, from.Short())
	}
	return nil
}

// checkClean refuses to move a tree with uncommitted code changes.
func (m *Manager) checkClean(ctx context.Context) error {
	dirty, err := m.src.Dirty(ctx)
	if err != nil {
		return err
	}
	var blocking []string
	for _, p := range dirty {
		if !isRuntimeFile(p, m.runtimeFiles()) {
			blocking = append(blocking, p)
		}
	}
	if len(blocking) > 0 {
		return fmt.Errorf("uncommitted changes: %s", strings.Join(blocking, ", "))
	}
	return nil
}

func (m *Manager) runtimeFiles() []string {
	var names []string
	for _, p := range []string{m.lockFile, m.stateFile, m.rollbackFile} {
		if rel, err := filepath.Rel(m.root, p); err == nil {
			names = append(names, filepath.ToSlash(rel))
		}
	}
	return names
}

// isRuntimeFile reports files the bot writes at runtime; they never block an
// update.
func isRuntimeFile(path string, extra []string) bool {
	p := filepath.ToSlash(strings.TrimSpace(path))
	if p == "" {
		return true
	}
	for _, e := range extra {
		if p == e {
			return true
		}
	}
	base := filepath.Base(p)
	switch {
	case strings.HasPrefix(p, "users/") && !strings.HasPrefix(p, "users/_template/"):
		return true
	case strings.HasPrefix(p, "data/"), strings.HasPrefix(p, "logs/"):
		return true
	case strings.HasSuffix(p, ".log"), strings.Contains(base, ".log."):
		return true
	case strings.HasSuffix(p, ".db"), strings.HasSuffix(p, ".db-wal"), strings.HasSuffix(p, ".db-shm"):
		return true
	case strings.HasSuffix(p, ".session"), strings.HasSuffix(p, ".session-journal"):
		return true
	case p == "state.json", strings.HasPrefix(base, ".release_"), base == ".update.lock":
		return true
	}
	return false
}

// acquire takes the in-process lock and the lock file.
func (m *Manager) acquire() (func(), error) {
	if !m.op.TryLock() {
		return nil, ErrUpdateInFlight
	}
	f, err := os.OpenFile(m.lockFile, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if errors.Is(err, os.ErrExist) && m.staleLock() {
		m.log.Warn("removing stale update lock", zap.String("path", m.lockFile))
		_ = os.Remove(m.lockFile)
		f, err = os.OpenFile(m.lockFile, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	}
	if err != nil {
		m.op.Unlock()
		if errors.Is(err, os.ErrExist) {
			return nil, ErrUpdateInFlight
		}
		return nil, fmt.Errorf("%w: create lock: %v", errs.ErrUpdate, err)
	}
	_, _ = f.WriteString(strconv.Itoa(os.Getpid()) + "\n")
	_ = f.Close()
	return func() {
		if err := os.Remove(m.lockFile); err != nil && !os.IsNotExist(err) {
			m.log.Warn("remove update lock", zap.Error(err))
		}
		m.op.Unlock()
	}, nil
}

func (m *Manager) staleLock() bool {
	fi, err := os.Stat(m.lockFile)
	return err == nil && time.Since(fi.ModTime()) > staleLockAge
}

func (m *Manager) setState(s model.UpdateState) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
	metrics.SetUpdateState(s)
}

// finish sets the final state, persists the release record and records the
// event.
func (m *Manager) finish(action string, s model.UpdateState, from, to model.ReleaseRef, opErr error) {
	m.mu.Lock()
	m.state = s
	m.release.LastError = ""
	if opErr != nil {
		m.release.LastError = opErr.Error()
	}
	m.release.UpdatedAt = time.Now()
	rel := m.release
	m.mu.Unlock()
	metrics.SetUpdateState(s)

	if err := store.WriteJSON(m.stateFile, rel); err != nil {
		m.log.Error("persist release state", zap.Error(err))
	}
	evt := &recorder.UpdateEvent{Action: action, From: from.Short(), To: to.Short(), State: string(s)}
	if opErr != nil {
		evt.Error = opErr.Error()
		m.log.Warn("update step failed", zap.String("action", action), zap.Error(opErr))
	} else {
		m.log.Info("update step done", zap.String("action", action), zap.String("state", string(s)),
			zap.String("from", from.Short()), zap.String("to", to.Short()))
	}
	if err := m.rec.RecordUpdate(evt); err != nil {
		m.log.Warn("record update", zap.Error(err))
	}
}

func (m *Manager) restart(ctx context.Context) {
	if m.restarter == nil {
		m.log.Warn("no restarter configured, new code runs after a manual restart")
		return
	}
	if err := m.restarter.Restart(ctx); err != nil {
		m.log.Error("restart failed", zap.Error(err))
	}
}

// Restart asks the restarter without moving the tree.
func (m *Manager) Restart(ctx context.Context) error {
	if m.restarter == nil {
		return fmt.Errorf("%w: no restarter configured", errs.ErrUpdate)
	}
	return m.restarter.Restart(ctx)
}

// NotifyNewRelease checks the latest release and notifies once per new tag.
func (m *Manager) NotifyNewRelease(ctx context.Context, n notifier.Notifier) (bool, error) {
	res, err := m.Check(ctx, "")
	if err != nil {
		return false, err
	}
	if !res.Available {
		return false, nil
	}
	m.mu.Lock()
	already := m.release.LastNotified == res.Candidate.Name
	m.mu.Unlock()
	if already {
		return false, nil
	}

	text := fmt.Sprintf("🆕 New release %s available (running %s). Send update to apply.",
		res.Candidate.Short(), res.Current.Short())
	if err := n.Notify(ctx, text); err != nil {
		return false, fmt.Errorf("%w: notify release: %v", errs.ErrExternal, err)
	}

	m.mu.Lock()
	m.release.LastNotified = res.Candidate.Name
	rel := m.release
	m.mu.Unlock()
	if err := store.WriteJSON(m.stateFile, rel); err != nil {
		return true, err
	}
	return true, nil
}
