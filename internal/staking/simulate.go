package staking

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"BetSentinel/internal/model"
)

// TableSteps is the number of rows in a simulation table.
const TableSteps = 15

// MaxSingleBet caps every simulated stake.
var MaxSingleBet = decimal.NewFromInt(50_000_000)

// Row is one line of a simulated loss sequence.
type Row struct {
	Streak         int
	Multiplier     float64
	Stake          decimal.Decimal
	CumulativeLoss decimal.Decimal
	ProfitIfWin    decimal.Decimal
}

// Simulation is the stake table of a preset.
type Simulation struct {
	Rows        []Row
	Effective   int
	Investment  decimal.Decimal
	Profit      decimal.Decimal
	MaxStake    decimal.Decimal
	Affordable  bool
	FundChecked bool
}

// Simulate builds the stake table for p. Rows beyond lose_stop are kept for
// display but excluded from the effective totals. fund <= 0 skips the
// affordability check.
func Simulate(p model.Preset, fund decimal.Decimal) Simulation {
	start := p.Continuous
	if start < 1 {
		start = 1
	}
	effective := p.LoseStop
	if effective < 1 {
		effective = 1
	}
	if effective > TableSteps {
		effective = TableSteps
	}

	sim := Simulation{Effective: effective}
	prev := decimal.Zero
	cumulative := decimal.Zero
	for i := 0; i < TableSteps; i++ {
		mult := 1.0
		stake := p.Initial
		if i > 0 {
			mult = Multiplier(p, i)
			stake = prev.Mul(decimal.NewFromFloat(mult)).Floor()
		}
		if stake.GreaterThan(MaxSingleBet) {
			stake = MaxSingleBet
		}
		cumulative = cumulative.Add(stake)
		row := Row{
			Streak:         start + i,
			Multiplier:     mult,
			Stake:          stake,
			CumulativeLoss: cumulative,
			ProfitIfWin:    stake.Sub(cumulative.Sub(stake)),
		}
		sim.Rows = append(sim.Rows, row)
		if stake.GreaterThan(sim.MaxStake) {
			sim.MaxStake = stake
		}
		prev = stake
	}

	last := sim.Rows[effective-1]
	sim.Investment = last.CumulativeLoss
	sim.Profit = last.ProfitIfWin
	if fund.IsPositive() {
		sim.FundChecked = true
		sim.Affordable = fund.GreaterThanOrEqual(sim.Investment)
	}
	return sim
}

// ParsePreset parses the 7 positional preset parameters:
// continuous lose_stop m1 m2 m3 m4 initial.
func ParsePreset(args []string) (model.Preset, error) {
	if len(args) != 7 {
		return model.Preset{}, fmt.Errorf("want 7 parameters, got %d", len(args))
	}
	ints := [2]int{}
	for i := 0; i < 2; i++ {
		n, err := strconv.Atoi(args[i])
		if err != nil {
			return model.Preset{}, fmt.Errorf("parameter %d %q is not an integer", i+1, args[i])
		}
		ints[i] = n
	}
	var mults [4]float64
	for i := 0; i < 4; i++ {
		f, err := strconv.ParseFloat(args[2+i], 64)
		if err != nil {
			return model.Preset{}, fmt.Errorf("parameter %d %q is not a number", i+3, args[2+i])
		}
		mults[i] = f
	}
	initial, err := decimal.NewFromString(args[6])
	if err != nil {
		return model.Preset{}, fmt.Errorf("parameter 7 %q is not a number", args[6])
	}
	p := model.Preset{
		Continuous:  ints[0],
		LoseStop:    ints[1],
		Multipliers: mults,
		Initial:     initial,
	}
	if err := p.Validate(); err != nil {
		return model.Preset{}, err
	}
	return p, nil
}
