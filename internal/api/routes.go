// Package api serves the read-only monitoring endpoints.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"BetSentinel/internal/notifier"
	"BetSentinel/internal/update"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// AccountLister snapshots every account.
type AccountLister interface {
	Lines() []notifier.AccountLine
}

// ReleaseReporter exposes the update manager state.
type ReleaseReporter interface {
	Status() update.Status
}

// Dependencies are the sources behind the routes. Releases may be nil.
type Dependencies struct {
	Accounts AccountLister
	Releases ReleaseReporter
	Log      *zap.Logger
}

type accountView struct {
	Name          string  `json:"name"`
	Mode          string  `json:"mode"`
	Preset        string  `json:"preset"`
	Balance       string  `json:"balance"`
	Fund          string  `json:"fund"`
	SessionProfit string  `json:"session_profit"`
	TotalProfit   string  `json:"total_profit"`
	LossStreak    int     `json:"loss_streak"`
	Warnings      int     `json:"warnings"`
	Rounds        int     `json:"rounds"`
	WinRate       float64 `json:"win_rate"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// SetupRoutes builds the router:
//
//	GET /healthz
//	GET /metrics
//	GET /accounts
//	GET /accounts/{name}
//	GET /release
func SetupRoutes(deps Dependencies) *mux.Router {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	r := mux.NewRouter()
	r.Use(recovery(log), logging(log))

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/accounts", func(w http.ResponseWriter, _ *http.Request) {
		lines := deps.Accounts.Lines()
		out := make([]accountView, 0, len(lines))
		for _, l := range lines {
			out = append(out, view(l))
		}
		writeJSON(w, http.StatusOK, out)
	}).Methods(http.MethodGet)

	r.HandleFunc("/accounts/{name}", func(w http.ResponseWriter, req *http.Request) {
		name := mux.Vars(req)["name"]
		for _, l := range deps.Accounts.Lines() {
			if strings.EqualFold(l.Name, name) {
				writeJSON(w, http.StatusOK, view(l))
				return
			}
		}
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown account " + name})
	}).Methods(http.MethodGet)

	r.HandleFunc("/release", func(w http.ResponseWriter, _ *http.Request) {
		if deps.Releases == nil {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "updates are not configured"})
			return
		}
		st := deps.Releases.Status()
		writeJSON(w, http.StatusOK, map[string]any{"state": st.State, "release": st.Release})
	}).Methods(http.MethodGet)

	return r
}

func view(l notifier.AccountLine) accountView {
	st := l.State
	return accountView{
		Name:          l.Name,
		Mode:          string(st.Mode),
		Preset:        st.PresetName,
		Balance:       st.Balance.String(),
		Fund:          st.Fund.String(),
		SessionProfit: st.SessionProfit.String(),
		TotalProfit:   st.TotalProfit.String(),
		LossStreak:    st.LossStreak,
		Warnings:      st.Warnings,
		Rounds:        st.Rounds,
		WinRate:       st.WinRate(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Serve runs an HTTP server on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, h http.Handler, log *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
