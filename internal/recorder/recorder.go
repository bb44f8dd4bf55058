package recorder

import "github.com/shopspring/decimal"

// CycleEvent is one settled betting cycle.
type CycleEvent struct {
	Account       string
	Stake         decimal.Decimal
	Profit        decimal.Decimal
	Win           bool
	LossStreak    int
	SessionProfit decimal.Decimal
	Balance       decimal.Decimal
	Mode          string
	Decision      string
}

// CommandEvent is one dispatched operator command, per target account.
type CommandEvent struct {
	Origin string
	Verb   string
	Target string
	Args   string
	OK     bool
	Error  string
}

// UpdateEvent is one update manager transition.
type UpdateEvent struct {
	Action string // "check", "apply", "rollback"
	From   string
	To     string
	State  string
	Error  string
}

// Recorder persists history for later analysis.
type Recorder interface {
	RecordCycle(evt *CycleEvent) error
	RecordCommand(evt *CommandEvent) error
	RecordUpdate(evt *UpdateEvent) error
	Close() error
}
