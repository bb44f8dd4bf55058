package model

// Mode is the operating mode of an account worker.
type Mode string

const (
	ModeActive       Mode = "active"
	ModePausedManual Mode = "paused_manual"
	ModePausedBurn   Mode = "paused_burn"
	ModePausedProfit Mode = "paused_profit"
	ModeStopped      Mode = "stopped"
)

// ValidTransitions lists the modes reachable from each mode.
// Every mode may move to stopped (off command or shutdown).
var ValidTransitions = map[Mode][]Mode{
	ModeActive:       {ModePausedManual, ModePausedBurn, ModePausedProfit, ModeStopped},
	ModePausedManual: {ModeActive, ModeStopped},
	ModePausedBurn:   {ModeActive, ModeStopped},
	ModePausedProfit: {ModeActive, ModeStopped},
	ModeStopped:      {ModeActive},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to Mode) bool {
	for _, m := range ValidTransitions[from] {
		if m == to {
			return true
		}
	}
	return false
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	_, ok := ValidTransitions[m]
	return ok
}

// Paused reports whether m is one of the paused modes.
func (m Mode) Paused() bool {
	return m == ModePausedManual || m == ModePausedBurn || m == ModePausedProfit
}

// PauseReason names why a risk pause happened.
type PauseReason string

const (
	ReasonBurn   PauseReason = "burn"
	ReasonProfit PauseReason = "profit"
	ReasonManual PauseReason = "manual"
)

// PausedMode maps a pause reason to its mode.
func PausedMode(r PauseReason) Mode {
	switch r {
	case ReasonBurn:
		return ModePausedBurn
	case ReasonProfit:
		return ModePausedProfit
	default:
		return ModePausedManual
	}
}
