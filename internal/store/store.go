// Package store provides typed, persistent access to the two sync tables:
// the current top-N coin snapshot and the per-symbol daily bar history.
package store

import (
	"context"
	"time"

	"cryptosync/internal/domain"
)

// CoinStore persists the current universe snapshot.
type CoinStore interface {
	// ReplaceCoins atomically clears the snapshot table and inserts the
	// given coins in a single transaction, tagging each row with source.
	// It returns the wall time spent inside the write transaction.
	ReplaceCoins(ctx context.Context, coins []domain.Coin, source string) (time.Duration, error)
}

// BarStore persists and summarises daily bar history.
type BarStore interface {
	// UpsertBars writes a batch of bars in a single transaction. A row whose
	// (symbol, date) already exists is overwritten with the new values, so
	// the call is idempotent. Empty input is a no-op. It returns the wall
	// time spent inside the write transaction.
	UpsertBars(ctx context.Context, bars []domain.Bar) (time.Duration, error)

	// CoverageMap returns, for every symbol with at least one stored bar,
	// the most recent date present in the history table.
	CoverageMap(ctx context.Context) (map[string]time.Time, error)
}
