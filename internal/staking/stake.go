package staking

import (
	"errors"

	"github.com/shopspring/decimal"

	"BetSentinel/internal/model"
)

// ErrSequenceExhausted means the loss streak ran past the preset's lose_stop.
var ErrSequenceExhausted = errors.New("stake sequence exhausted")

var safetyMargin = decimal.RequireFromString("1.01")

// NextStake returns the stake for the next bet given the preset and the
// account's loss streak and last stake.
//
//	streak 0          -> initial
//	streak n          -> last * multiplier[min(n,4)-1] * 1.01
//	streak >= lose_stop -> ErrSequenceExhausted
//
// Every amount is rounded to the nearest preset unit.
func NextStake(p model.Preset, lossStreak int, lastStake decimal.Decimal) (decimal.Decimal, error) {
	unit := p.RoundUnit()
	if lossStreak <= 0 {
		return RoundToUnit(p.Initial, unit), nil
	}
	if lossStreak+1 > p.LoseStop {
		return decimal.Zero, ErrSequenceExhausted
	}
	base := lastStake
	if !base.IsPositive() {
		base = p.Initial
	}
	target := base.Mul(decimal.NewFromFloat(Multiplier(p, lossStreak))).Mul(safetyMargin)
	return RoundToUnit(target, unit), nil
}

// Multiplier returns the multiplier applied after n consecutive losses.
func Multiplier(p model.Preset, n int) float64 {
	switch {
	case n <= 0:
		return 1
	case n >= 4:
		return p.Multipliers[3]
	default:
		return p.Multipliers[n-1]
	}
}

// RoundToUnit rounds v to the nearest multiple of unit, never below one unit.
func RoundToUnit(v, unit decimal.Decimal) decimal.Decimal {
	if !unit.IsPositive() {
		return v
	}
	r := v.Div(unit).Round(0).Mul(unit)
	if r.LessThan(unit) {
		return unit
	}
	return r
}

// WinProfit is the net gain of a winning stake after the 1% site fee.
func WinProfit(stake decimal.Decimal) decimal.Decimal {
	return stake.Mul(decimal.RequireFromString("0.99")).Floor()
}
