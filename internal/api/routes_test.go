package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"BetSentinel/internal/model"
	"BetSentinel/internal/notifier"
	"BetSentinel/internal/update"
)

type staticAccounts []notifier.AccountLine

func (s staticAccounts) Lines() []notifier.AccountLine { return s }

type staticRelease struct{}

func (staticRelease) Status() update.Status {
	return update.Status{
		State:   model.UpdateApplied,
		Release: model.ReleaseState{Current: model.ReleaseRef{Name: "v1.1.0", Commit: "bbbbbbb", Kind: model.RefTag}},
	}
}

func newRouter(withRelease bool) http.Handler {
	st := model.NewAccountState()
	st.PresetName = "1w"
	st.SessionProfit = decimal.NewFromInt(-3000)
	deps := Dependencies{Accounts: staticAccounts{{Name: "alice", State: st}}}
	if withRelease {
		deps.Releases = staticRelease{}
	}
	return SetupRoutes(deps)
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRoutes(t *testing.T) {
	h := newRouter(true)
	tests := []struct {
		path   string
		status int
		body   string
	}{
		{"/healthz", http.StatusOK, `"status":"ok"`},
		{"/accounts", http.StatusOK, `"session_profit":"-3000"`},
		{"/accounts/ALICE", http.StatusOK, `"preset":"1w"`},
		{"/accounts/bob", http.StatusNotFound, "unknown account bob"},
		{"/release", http.StatusOK, `"state":"applied"`},
		{"/metrics", http.StatusOK, "go_goroutines"},
	}
	for _, tt := range tests {
		w := get(h, tt.path)
		if w.Code != tt.status {
			t.Fatalf("%s: status=%d want=%d", tt.path, w.Code, tt.status)
		}
		if !strings.Contains(w.Body.String(), tt.body) {
			t.Fatalf("%s: body=%q want substring %q", tt.path, w.Body.String(), tt.body)
		}
	}
}

func TestRoutes_NoUpdater(t *testing.T) {
	if w := get(newRouter(false), "/release"); w.Code != http.StatusNotFound {
		t.Fatalf("status=%d want=404", w.Code)
	}
}

func TestRoutes_RejectsWrites(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/accounts", nil)
	w := httptest.NewRecorder()
	newRouter(true).ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d want=405", w.Code)
	}
}
