// Package domain defines the core data types shared across the sync
// pipeline: universe coins, daily OHLCV bars, and date helpers.
package domain

import "time"

// DateFormat is the canonical calendar-date layout used everywhere a bar
// date crosses a boundary (storage, logs, fetch requests).
const DateFormat = "2006-01-02"

// Coin is one entry in the current top-N universe snapshot, ranked by
// market capitalization. The full set is replaced atomically each run; it
// represents "current universe", not history.
type Coin struct {
	Symbol    string  // unique key, case-sensitive (e.g. "BTC-USD")
	Name      string  // display name
	MarketCap float64 // USD, 0.0 when the source reported none
	Rank      int     // dense 1..N, decreasing market cap
}

// Bar is a single daily OHLCV row. Identity is (Symbol, Date); at most one
// bar exists per symbol per calendar date.
type Bar struct {
	Symbol string
	Date   time.Time // midnight UTC, no time component
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Day truncates t to its calendar date at midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
