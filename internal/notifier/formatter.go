package notifier

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"BetSentinel/internal/model"
	"BetSentinel/internal/risk"
	"BetSentinel/internal/staking"
)

// AccountLine pairs an account name with a state snapshot.
type AccountLine struct {
	Name  string
	State model.AccountState
}

var modeLabels = map[model.Mode]string{
	model.ModeActive:       "🟢 active",
	model.ModePausedManual: "⏸ paused (manual)",
	model.ModePausedBurn:   "🔥 paused (burn)",
	model.ModePausedProfit: "💰 paused (profit)",
	model.ModeStopped:      "⛔ stopped",
}

// ModeLabel renders a mode for chat.
func ModeLabel(m model.Mode) string {
	if l, ok := modeLabels[m]; ok {
		return l
	}
	return string(m)
}

// Amount renders a decimal without fractional digits.
func Amount(d decimal.Decimal) string {
	return d.StringFixed(0)
}

// FormatStatus renders the status of one account.
func FormatStatus(name string, st model.AccountState, limits model.RiskLimits) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📊 <b>%s</b> | %s\n\n", html.EscapeString(name), ModeLabel(st.Mode)))
	b.WriteString(fmt.Sprintf("Preset: %s\n", orDash(st.PresetName)))
	b.WriteString(fmt.Sprintf("Balance: %s | Fund: %s\n", Amount(st.Balance), Amount(st.Fund)))
	b.WriteString(fmt.Sprintf("Session: %s | Total: %s\n", Amount(st.SessionProfit), Amount(st.TotalProfit)))
	b.WriteString(fmt.Sprintf("Rounds: %d | Win rate: %.1f%%\n", st.Rounds, st.WinRate()))
	b.WriteString(fmt.Sprintf("Streak: L%d / W%d | Warnings: %d\n", st.LossStreak, st.WinStreak, st.Warnings))
	b.WriteString(fmt.Sprintf("Limits: %s\n", limits.String()))
	if !st.UpdatedAt.IsZero() {
		b.WriteString(fmt.Sprintf("Updated: %s\n", st.UpdatedAt.Format("2006-01-02 15:04")))
	}
	return b.String()
}

// FormatCycle renders the result of one settled bet.
func FormatCycle(name string, out model.Outcome, st model.AccountState, d model.Decision) string {
	result := "❌ loss"
	if out.Win {
		result = "✅ win"
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("🎲 <b>%s</b> %s %s (stake %s)\n", html.EscapeString(name), result, Amount(out.Profit), Amount(out.Stake)))
	b.WriteString(fmt.Sprintf("Session: %s | Streak: L%d / W%d\n", Amount(st.SessionProfit), st.LossStreak, st.WinStreak))
	switch d.Kind {
	case model.DecisionWarn:
		b.WriteString(fmt.Sprintf("⚠️ warning %d: %s\n", d.Warnings, d.Detail))
	case model.DecisionPause:
		b.WriteString(fmt.Sprintf("⏸ paused (%s): %s\n", d.Reason, d.Detail))
	}
	return b.String()
}

// FormatUsers renders one line per account.
func FormatUsers(lines []AccountLine) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("👥 <b>Accounts</b> (%d)\n\n", len(lines)))
	for _, l := range lines {
		b.WriteString(fmt.Sprintf("• %s: %s | session %s | preset %s\n",
			html.EscapeString(l.Name), ModeLabel(l.State.Mode), Amount(l.State.SessionProfit), orDash(l.State.PresetName)))
	}
	return b.String()
}

// FormatDailySummary renders the end-of-day report.
func FormatDailySummary(lines []AccountLine, now time.Time) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📅 <b>Daily summary</b> | %s\n\n", now.Format("2006-01-02")))
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.State.TotalProfit)
		b.WriteString(fmt.Sprintf("• %s: rounds %d, win rate %.1f%%, total %s\n",
			html.EscapeString(l.Name), l.State.Rounds, l.State.WinRate(), Amount(l.State.TotalProfit)))
	}
	b.WriteString(fmt.Sprintf("\nAll accounts: %s", Amount(total)))
	return b.String()
}

// FormatSimulation renders a stake table.
func FormatSimulation(title string, p model.Preset, sim staking.Simulation) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("🔮 <b>Simulation</b> %s\n", html.EscapeString(title)))
	b.WriteString(fmt.Sprintf("<code>%s</code>\n\n", p.String()))
	b.WriteString("<pre>streak  mult   stake        loss         win\n")
	for i, r := range sim.Rows {
		marker := " "
		if i == sim.Effective-1 {
			marker = "*"
		}
		b.WriteString(fmt.Sprintf("%s%-6d %-6.2f %-12s %-12s %s\n",
			marker, r.Streak, r.Multiplier, Amount(r.Stake), Amount(r.CumulativeLoss), Amount(r.ProfitIfWin)))
	}
	b.WriteString("</pre>\n")
	b.WriteString(fmt.Sprintf("Lose-stop %d: investment %s, win at last step %s, max stake %s\n",
		sim.Effective, Amount(sim.Investment), Amount(sim.Profit), Amount(sim.MaxStake)))
	if sim.FundChecked {
		if sim.Affordable {
			b.WriteString("Fund covers the sequence ✅")
		} else {
			b.WriteString("Fund does not cover the sequence ⚠️")
		}
	}
	return b.String()
}

// FormatStreaks renders loss and win run counts per history window.
func FormatStreaks(name string, rounds int, s risk.StreakStats) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📈 <b>%s</b> streaks over the last %d bets\n", html.EscapeString(name), rounds))
	for _, section := range []struct {
		title string
		win   bool
	}{{"Loss streaks", false}, {"Win streaks", true}} {
		counts := s.Loss
		if section.win {
			counts = s.Win
		}
		b.WriteString("\n" + section.title + "\n<pre>len ")
		for _, w := range s.Windows {
			b.WriteString(fmt.Sprintf("| %4d ", w))
		}
		b.WriteString("\n")
		for _, n := range s.Lengths(section.win) {
			b.WriteString(fmt.Sprintf("%3d ", n))
			for _, m := range counts {
				v := "-"
				if c := m[n]; c > 0 {
					v = fmt.Sprintf("%d", c)
				}
				b.WriteString(fmt.Sprintf("| %4s ", v))
			}
			b.WriteString("\n")
		}
		b.WriteString("</pre>")
	}
	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
