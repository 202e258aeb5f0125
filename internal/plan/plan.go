// Package plan computes the minimal per-symbol fetch windows needed to bring
// stored daily history up to date.
package plan

import (
	"time"

	"cryptosync/internal/domain"
)

// Entry is one symbol's fetch window. Both ends are inclusive; End is always
// the run's "today".
type Entry struct {
	Symbol string
	Start  time.Time
	End    time.Time
}

// Build derives the fetch plan for the given universe. For a symbol with
// coverage through date D the window starts at D+1; a symbol never seen
// starts at today−historyDays. Symbols whose start would land after today
// are already covered and emit no entry. Entries follow the input (rank)
// order, though downstream execution does not depend on it.
func Build(coins []domain.Coin, coverage map[string]time.Time, today time.Time, historyDays int) []Entry {
	today = domain.Day(today)
	defaultStart := today.AddDate(0, 0, -historyDays)

	entries := make([]Entry, 0, len(coins))
	for _, c := range coins {
		start := defaultStart
		if last, ok := coverage[c.Symbol]; ok {
			start = domain.Day(last).AddDate(0, 0, 1)
		}

		if start.After(today) {
			continue
		}

		entries = append(entries, Entry{Symbol: c.Symbol, Start: start, End: today})
	}
	return entries
}
