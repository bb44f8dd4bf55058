// Package metrics exposes Prometheus counters and gauges for workers,
// commands and the update manager.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"BetSentinel/internal/model"
)

const namespace = "betsentinel"

// CyclesTotal counts betting cycles by result: win, loss, skipped, error.
var CyclesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "worker",
		Name:      "cycles_total",
		Help:      "Total number of betting cycles",
	},
	[]string{"account", "result"},
)

// DecisionsTotal counts non-continue risk decisions.
var DecisionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "risk",
		Name:      "decisions_total",
		Help:      "Total number of risk decisions by kind and reason",
	},
	[]string{"account", "kind", "reason"},
)

var SessionProfit = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "worker",
		Name:      "session_profit",
		Help:      "Current session profit per account",
	},
	[]string{"account"},
)

// AccountMode is 1 for the account's current mode and 0 for the others.
var AccountMode = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "worker",
		Name:      "account_mode",
		Help:      "Current account mode (1 = active for that label)",
	},
	[]string{"account", "mode"},
)

var CommandsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dispatch",
		Name:      "commands_total",
		Help:      "Total number of operator commands by verb and result",
	},
	[]string{"verb", "result"},
)

var UpdateState = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "update",
		Name:      "state",
		Help:      "Current update manager state (1 = active for that label)",
	},
	[]string{"state"},
)

var allModes = []model.Mode{
	model.ModeActive, model.ModePausedManual, model.ModePausedBurn,
	model.ModePausedProfit, model.ModeStopped,
}

var allUpdateStates = []model.UpdateState{
	model.UpdateIdle, model.UpdateChecking, model.UpdateUpToDate, model.UpdateCandidateAvailable,
	model.UpdateApplying, model.UpdateApplied, model.UpdateFailed, model.UpdateRolledBack,
}

// RecordCycle counts one cycle result.
func RecordCycle(account, result string) {
	CyclesTotal.WithLabelValues(account, result).Inc()
}

// RecordDecision counts a decision unless it is a plain continue.
func RecordDecision(account string, d model.Decision) {
	if d.Kind == model.DecisionContinue {
		return
	}
	DecisionsTotal.WithLabelValues(account, string(d.Kind), string(d.Reason)).Inc()
}

// ObserveState publishes the mode and session profit of an account.
func ObserveState(account string, st model.AccountState) {
	for _, m := range allModes {
		v := 0.0
		if m == st.Mode {
			v = 1
		}
		AccountMode.WithLabelValues(account, string(m)).Set(v)
	}
	SessionProfit.WithLabelValues(account).Set(st.SessionProfit.InexactFloat64())
}

func RecordCommand(verb, result string) {
	CommandsTotal.WithLabelValues(verb, result).Inc()
}

func SetUpdateState(s model.UpdateState) {
	for _, u := range allUpdateStates {
		v := 0.0
		if u == s {
			v = 1
		}
		UpdateState.WithLabelValues(string(u)).Set(v)
	}
}
