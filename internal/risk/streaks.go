package risk

import (
	"sort"

	"BetSentinel/internal/model"
)

// StatWindows are the trailing history lengths the streak statistics cover.
var StatWindows = []int{200, 100, 50, 20}

// MinStatHistory is the fewest settled bets worth summarising.
const MinStatHistory = 10

// StreakStats counts maximal runs of losses and wins by length, once per
// window. Loss[i] and Win[i] belong to Windows[i].
type StreakStats struct {
	Windows []int
	Loss    []map[int]int
	Win     []map[int]int
}

// Lengths returns every run length seen in any window, longest first.
func (s StreakStats) Lengths(win bool) []int {
	counts := s.Loss
	if win {
		counts = s.Win
	}
	seen := make(map[int]bool)
	var out []int
	for _, m := range counts {
		for n := range m {
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out
}

// Streaks computes StreakStats over the tail of history for each window.
// A window longer than the history covers all of it.
func Streaks(history []model.Outcome, windows []int) StreakStats {
	s := StreakStats{Windows: windows}
	for _, w := range windows {
		h := history
		if w < len(h) {
			h = h[len(h)-w:]
		}
		s.Loss = append(s.Loss, runs(h, false))
		s.Win = append(s.Win, runs(h, true))
	}
	return s
}

func runs(h []model.Outcome, win bool) map[int]int {
	counts := make(map[int]int)
	n := 0
	for _, o := range h {
		if o.Win == win {
			n++
			continue
		}
		if n > 0 {
			counts[n]++
		}
		n = 0
	}
	if n > 0 {
		counts[n]++
	}
	return counts
}
