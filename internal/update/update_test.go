package update

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"BetSentinel/internal/errs"
	"BetSentinel/internal/model"
)

type fakeSource struct {
	mu        sync.Mutex
	head      model.ReleaseRef
	refs      map[string]model.ReleaseRef
	latest    string
	dirty     []string
	fetchErr  error
	changed   bool
	checkouts []string
	onFetch   func()
}

func newFakeSource() *fakeSource {
	v1 := model.ReleaseRef{Name: "v1.0.0", Commit: "1111111111", Kind: model.RefTag}
	v2 := model.ReleaseRef{Name: "v1.1.0", Commit: "2222222222", Kind: model.RefTag}
	return &fakeSource{
		head:   v1,
		refs:   map[string]model.ReleaseRef{"v1.0.0": v1, "v1.1.0": v2},
		latest: "v1.1.0",
	}
}

func (f *fakeSource) Current(context.Context) (model.ReleaseRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.head, nil
}

func (f *fakeSource) Dirty(context.Context) ([]string, error) { return f.dirty, nil }

func (f *fakeSource) Fetch(context.Context) error {
	if f.onFetch != nil {
		f.onFetch()
	}
	return f.fetchErr
}

func (f *fakeSource) Resolve(_ context.Context, ref string) (model.ReleaseRef, error) {
	r, ok := f.refs[ref]
	if !ok {
		return model.ReleaseRef{}, fmt.Errorf("unknown ref %q", ref)
	}
	return r, nil
}

func (f *fakeSource) Latest(ctx context.Context) (model.ReleaseRef, error) {
	return f.Resolve(ctx, f.latest)
}

func (f *fakeSource) Checkout(_ context.Context, commit string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.refs {
		if r.Commit == commit {
			f.head = r
			f.checkouts = append(f.checkouts, r.Name)
			return nil
		}
	}
	return fmt.Errorf("no commit %s", commit)
}

func (f *fakeSource) Changed(context.Context, string, string, ...string) (bool, error) {
	return f.changed, nil
}

type fakeRestarter struct {
	mu    sync.Mutex
	calls int
}

func (r *fakeRestarter) Restart(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return nil
}

type fakeInstaller struct {
	err   error
	calls int
}

func (i *fakeInstaller) Install(context.Context, string) error {
	i.calls++
	return i.err
}

type recordNotifier struct{ msgs []string }

func (r *recordNotifier) Notify(_ context.Context, text string) error {
	r.msgs = append(r.msgs, text)
	return nil
}

func newManager(t *testing.T, src *fakeSource, inst Installer) (*Manager, *fakeRestarter, string) {
	t.Helper()
	root := t.TempDir()
	rs := &fakeRestarter{}
	m, err := NewManager(Options{Root: root, Source: src, Installer: inst, Restarter: rs})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m, rs, root
}

func TestApply_FetchFailureLeavesReleaseUnchanged(t *testing.T) {
	src := newFakeSource()
	src.fetchErr = errors.New("network unreachable")
	m, rs, root := newManager(t, src, nil)

	_, err := m.Apply(context.Background(), "")
	if !errors.Is(err, errs.ErrUpdate) {
		t.Fatalf("err=%v want=ErrUpdate", err)
	}
	st := m.Status()
	if st.State != model.UpdateFailed {
		t.Fatalf("state=%s want=failed", st.State)
	}
	if st.Release.LastError == "" {
		t.Fatal("last error not recorded")
	}
	if src.head.Name != "v1.0.0" || len(src.checkouts) != 0 || rs.calls != 0 {
		t.Fatalf("tree moved: head=%s checkouts=%v restarts=%d", src.head.Name, src.checkouts, rs.calls)
	}
	if _, err := os.Stat(filepath.Join(root, ".update.lock")); !os.IsNotExist(err) {
		t.Fatalf("lock file left behind: %v", err)
	}
}

func TestApplyThenRollback_ReturnsToPrevious(t *testing.T) {
	src := newFakeSource()
	m, rs, root := newManager(t, src, nil)
	ctx := context.Background()

	res, err := m.Apply(ctx, "")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !res.Changed || res.From.Name != "v1.0.0" || res.To.Name != "v1.1.0" {
		t.Fatalf("apply result=%+v", res)
	}
	if st := m.Status(); st.State != model.UpdateApplied || st.Release.Previous.Name != "v1.0.0" {
		t.Fatalf("after apply: state=%s previous=%s", st.State, st.Release.Previous.Name)
	}

	res, err = m.Rollback(ctx, "")
	if err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if res.To.Name != "v1.0.0" || src.head.Name != "v1.0.0" {
		t.Fatalf("rolled back to %s, head %s, want v1.0.0", res.To.Name, src.head.Name)
	}
	if st := m.Status(); st.State != model.UpdateRolledBack {
		t.Fatalf("state=%s want=rolled_back", st.State)
	}
	if rs.calls != 2 {
		t.Fatalf("restarts=%d want=2", rs.calls)
	}

	reloaded, err := NewManager(Options{Root: root, Source: src})
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := reloaded.Status().Release.Current.Name; got != "v1.0.0" {
		t.Fatalf("persisted current=%s want=v1.0.0", got)
	}
}

func TestRollback_WithoutHistory(t *testing.T) {
	m, _, _ := newManager(t, newFakeSource(), nil)
	if _, err := m.Rollback(context.Background(), ""); !errors.Is(err, errs.ErrUpdate) {
		t.Fatalf("err=%v want=ErrUpdate", err)
	}
}

func TestApply_ConcurrentRequestRejected(t *testing.T) {
	src := newFakeSource()
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	src.onFetch = func() {
		once.Do(func() {
			close(entered)
			<-release
		})
	}
	m, _, _ := newManager(t, src, nil)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := m.Apply(ctx, "")
		done <- err
	}()
	<-entered

	if _, err := m.Apply(ctx, ""); !errors.Is(err, ErrUpdateInFlight) {
		t.Fatalf("second apply err=%v want=ErrUpdateInFlight", err)
	}
	if _, err := m.Rollback(ctx, ""); !errors.Is(err, ErrUpdateInFlight) {
		t.Fatalf("rollback during apply err=%v want=ErrUpdateInFlight", err)
	}
	if _, err := m.Check(ctx, ""); !errors.Is(err, ErrUpdateInFlight) {
		t.Fatalf("check during apply err=%v want=ErrUpdateInFlight", err)
	}
	if _, err := m.NotifyNewRelease(ctx, &recordNotifier{}); !errors.Is(err, ErrUpdateInFlight) {
		t.Fatalf("release check during apply err=%v want=ErrUpdateInFlight", err)
	}
	if st := m.Status(); st.State != model.UpdateApplying || !st.Release.Candidate.IsZero() {
		t.Fatalf("state during apply=%s candidate=%s, want applying and no candidate", st.State, st.Release.Candidate.Short())
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first apply: %v", err)
	}
}

func TestApply_LockFileHeldByAnotherProcess(t *testing.T) {
	m, _, root := newManager(t, newFakeSource(), nil)
	if err := os.WriteFile(filepath.Join(root, ".update.lock"), []byte("1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Apply(context.Background(), ""); !errors.Is(err, ErrUpdateInFlight) {
		t.Fatalf("err=%v want=ErrUpdateInFlight", err)
	}
}

func TestApply_InstallFailureRestoresPrevious(t *testing.T) {
	src := newFakeSource()
	src.changed = true
	inst := &fakeInstaller{err: errors.New("go: module lookup disabled")}
	m, rs, _ := newManager(t, src, inst)

	if _, err := m.Apply(context.Background(), ""); !errors.Is(err, errs.ErrUpdate) {
		t.Fatalf("err=%v want=ErrUpdate", err)
	}
	if inst.calls != 1 {
		t.Fatalf("install calls=%d want=1", inst.calls)
	}
	if src.head.Name != "v1.0.0" {
		t.Fatalf("head=%s want=v1.0.0 restored", src.head.Name)
	}
	if rs.calls != 0 {
		t.Fatalf("restarted after failed install")
	}
	if st := m.Status(); st.Release.Current.Name == "v1.1.0" {
		t.Fatal("current release advanced despite failure")
	}
}

func TestApply_DirtyTree(t *testing.T) {
	src := newFakeSource()
	src.dirty = []string{"users/alice/state.json", "bot.log", ".release_state.json"}
	m, _, _ := newManager(t, src, nil)
	if _, err := m.Apply(context.Background(), ""); err != nil {
		t.Fatalf("runtime files must not block: %v", err)
	}

	src2 := newFakeSource()
	src2.dirty = []string{"users/alice/state.json", "internal/worker/worker.go"}
	m2, _, _ := newManager(t, src2, nil)
	if _, err := m2.Apply(context.Background(), ""); !errors.Is(err, errs.ErrUpdate) {
		t.Fatalf("err=%v want=ErrUpdate for code changes", err)
	}
	if len(src2.checkouts) != 0 {
		t.Fatal("checkout happened on a dirty tree")
	}
}

func TestApply_NoOpWhenAlreadyCurrent(t *testing.T) {
	src := newFakeSource()
	m, rs, _ := newManager(t, src, nil)
	res, err := m.Apply(context.Background(), "v1.0.0")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Changed || rs.calls != 0 || len(src.checkouts) != 0 {
		t.Fatalf("no-op apply changed things: %+v restarts=%d", res, rs.calls)
	}
	if st := m.Status(); st.State != model.UpdateUpToDate {
		t.Fatalf("state=%s want=up_to_date", st.State)
	}
}

func TestCheck(t *testing.T) {
	m, _, _ := newManager(t, newFakeSource(), nil)
	res, err := m.Check(context.Background(), "")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !res.Available || res.Candidate.Name != "v1.1.0" {
		t.Fatalf("check=%+v", res)
	}
	if st := m.Status(); st.State != model.UpdateCandidateAvailable {
		t.Fatalf("state=%s", st.State)
	}
	if _, err := m.Check(context.Background(), "nope"); !errors.Is(err, errs.ErrUpdate) {
		t.Fatalf("unknown target err=%v", err)
	}
}

func TestNotifyNewRelease_OncePerTag(t *testing.T) {
	m, _, _ := newManager(t, newFakeSource(), nil)
	n := &recordNotifier{}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := m.NotifyNewRelease(ctx, n); err != nil {
			t.Fatalf("NotifyNewRelease: %v", err)
		}
	}
	if len(n.msgs) != 1 {
		t.Fatalf("notifications=%d want=1", len(n.msgs))
	}
}

func TestIsRuntimeFile(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"users/alice/state.json", true},
		{"users/_template/presets.json", false},
		{"bot.log", true},
		{"logs/bot.log.1", true},
		{"data/bet_sentinel.db", true},
		{".release_rollback.json", true},
		{".update.lock", true},
		{"main.go", false},
		{"go.mod", false},
	}
	for _, tt := range tests {
		if got := isRuntimeFile(tt.path, nil); got != tt.want {
			t.Errorf("isRuntimeFile(%q)=%v want=%v", tt.path, got, tt.want)
		}
	}
}

func TestParseSlug(t *testing.T) {
	tests := []struct {
		url  string
		want string
		ok   bool
	}{
		{"https://github.com/acme/bets.git", "acme/bets", true},
		{"git@github.com:acme/bets.git", "acme/bets", true},
		{"ssh://git@github.com/acme/bets", "acme/bets", true},
		{"https://gitlab.com/acme/bets.git", "", false},
	}
	for _, tt := range tests {
		got, ok := parseSlug(tt.url)
		if got != tt.want || ok != tt.ok {
			t.Errorf("parseSlug(%q)=%q,%v want=%q,%v", tt.url, got, ok, tt.want, tt.ok)
		}
	}
}

func TestParsePorcelain(t *testing.T) {
	out := " M internal/worker/worker.go\n?? users/bob/state.json\nR  old.go -> new.go\n"
	got := parsePorcelain(out)
	want := []string{"internal/worker/worker.go", "users/bob/state.json", "new.go"}
	if len(got) != len(want) {
		t.Fatalf("paths=%v want=%v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("paths[%d]=%q want=%q", i, got[i], want[i])
		}
	}
}

func TestGitHubReleases_LatestTag(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/acme/bets/releases/latest":
			_, _ = w.Write([]byte(`{"tag_name":"v2.0.0","name":"Two"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	rel := NewGitHubReleases("acme/bets")
	rel.APIBase = srv.URL
	tag, err := rel.LatestTag(context.Background())
	if err != nil || tag != "v2.0.0" {
		t.Fatalf("tag=%q err=%v", tag, err)
	}

	rel.Repo = "acme/none"
	if _, err := rel.LatestTag(context.Background()); !errors.Is(err, ErrNoRelease) {
		t.Fatalf("err=%v want=ErrNoRelease", err)
	}
}
