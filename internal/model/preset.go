package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// DefaultUnit is the stake rounding unit used by the site.
var DefaultUnit = decimal.NewFromInt(500)

// Preset is a named staking strategy.
type Preset struct {
	Continuous  int             `json:"continuous"`
	LoseStop    int             `json:"lose_stop"`
	Multipliers [4]float64      `json:"multipliers"`
	Initial     decimal.Decimal `json:"initial"`
	Unit        decimal.Decimal `json:"unit,omitempty"`
}

// Validate rejects presets that cannot produce a stake sequence.
func (p Preset) Validate() error {
	if p.Continuous < 1 {
		return fmt.Errorf("continuous must be >= 1, got %d", p.Continuous)
	}
	if p.LoseStop < 1 {
		return fmt.Errorf("lose_stop must be >= 1, got %d", p.LoseStop)
	}
	for i, m := range p.Multipliers {
		if m <= 0 {
			return fmt.Errorf("multiplier %d must be positive, got %v", i+1, m)
		}
	}
	if !p.Initial.IsPositive() {
		return fmt.Errorf("initial stake must be positive, got %s", p.Initial)
	}
	return nil
}

// RoundUnit returns the configured rounding unit or DefaultUnit.
func (p Preset) RoundUnit() decimal.Decimal {
	if p.Unit.IsPositive() {
		return p.Unit
	}
	return DefaultUnit
}

func (p Preset) String() string {
	return fmt.Sprintf("%d %d %.2f %.2f %.2f %.2f %s",
		p.Continuous, p.LoseStop,
		p.Multipliers[0], p.Multipliers[1], p.Multipliers[2], p.Multipliers[3],
		p.Initial.String())
}

// DefaultPresets are installed for accounts without a presets file or template.
func DefaultPresets() map[string]Preset {
	return map[string]Preset{
		"1w": {Continuous: 1, LoseStop: 13, Multipliers: [4]float64{3, 2.1, 2.1, 2.05}, Initial: decimal.NewFromInt(10000)},
		"2w": {Continuous: 1, LoseStop: 13, Multipliers: [4]float64{3, 2.1, 2.1, 2.05}, Initial: decimal.NewFromInt(20000)},
		"yc": {Continuous: 10, LoseStop: 20, Multipliers: [4]float64{2.5, 2.5, 2.5, 2.1}, Initial: decimal.NewFromInt(500)},
	}
}
