package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"cryptosync/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore(%q) returned error: %v", dbPath, err)
	}
	t.Cleanup(func() {
		if cerr := s.Close(); cerr != nil {
			t.Errorf("Close() returned error: %v", cerr)
		}
	})
	return s
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestUpsertBarsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	bar := domain.Bar{
		Symbol: "BTC-USD", Date: day(2024, 6, 10),
		Open: 69000, High: 70000, Low: 68500, Close: 69500, Volume: 1.2e9,
	}
	if _, err := s.UpsertBars(ctx, []domain.Bar{bar}); err != nil {
		t.Fatalf("UpsertBars (first): %v", err)
	}

	// Same (symbol, date) with different values overwrites, never duplicates.
	bar.Close = 69999
	bar.Volume = 2.0e9
	if _, err := s.UpsertBars(ctx, []domain.Bar{bar}); err != nil {
		t.Fatalf("UpsertBars (second): %v", err)
	}

	got, err := s.ReadBars(ctx, "BTC-USD")
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("ReadBars returned %d rows, want 1", len(got))
	}
	if got[0].Close != 69999 || got[0].Volume != 2.0e9 {
		t.Errorf("row = %+v, want latest values (close=69999 volume=2e9)", got[0])
	}
}

func TestUpsertBarsEmptyNoop(t *testing.T) {
	s := newTestStore(t)

	dur, err := s.UpsertBars(context.Background(), nil)
	if err != nil {
		t.Fatalf("UpsertBars(nil): %v", err)
	}
	if dur != 0 {
		t.Errorf("empty upsert reported %v write time, want 0", dur)
	}
}

func TestCoverageMap(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	bars := []domain.Bar{
		{Symbol: "BTC-USD", Date: day(2024, 6, 8), Close: 1},
		{Symbol: "BTC-USD", Date: day(2024, 6, 10), Close: 2},
		{Symbol: "BTC-USD", Date: day(2024, 6, 9), Close: 3},
		{Symbol: "ETH-USD", Date: day(2024, 5, 1), Close: 4},
	}
	if _, err := s.UpsertBars(ctx, bars); err != nil {
		t.Fatalf("UpsertBars: %v", err)
	}

	coverage, err := s.CoverageMap(ctx)
	if err != nil {
		t.Fatalf("CoverageMap: %v", err)
	}
	if len(coverage) != 2 {
		t.Fatalf("CoverageMap has %d entries, want 2", len(coverage))
	}
	if !coverage["BTC-USD"].Equal(day(2024, 6, 10)) {
		t.Errorf("BTC-USD coverage = %v, want 2024-06-10", coverage["BTC-USD"])
	}
	if !coverage["ETH-USD"].Equal(day(2024, 5, 1)) {
		t.Errorf("ETH-USD coverage = %v, want 2024-05-01", coverage["ETH-USD"])
	}
}

func TestCoverageMapEmpty(t *testing.T) {
	s := newTestStore(t)

	coverage, err := s.CoverageMap(context.Background())
	if err != nil {
		t.Fatalf("CoverageMap: %v", err)
	}
	if len(coverage) != 0 {
		t.Errorf("CoverageMap on empty DB has %d entries, want 0", len(coverage))
	}
}

func TestReplaceCoins(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := []domain.Coin{
		{Symbol: "BTC-USD", Name: "Bitcoin USD", MarketCap: 1.3e12, Rank: 1},
		{Symbol: "ETH-USD", Name: "Ethereum USD", MarketCap: 4.0e11, Rank: 2},
		{Symbol: "SOL-USD", Name: "Solana USD", MarketCap: 7.0e10, Rank: 3},
	}
	if _, err := s.ReplaceCoins(ctx, first, "yahoo_screener_api"); err != nil {
		t.Fatalf("ReplaceCoins (first): %v", err)
	}

	// A second snapshot fully replaces the first, not appends to it.
	second := []domain.Coin{
		{Symbol: "BTC-USD", Name: "Bitcoin USD", MarketCap: 1.4e12, Rank: 1},
		{Symbol: "XRP-USD", Name: "XRP USD", MarketCap: 3.0e10, Rank: 2},
	}
	if _, err := s.ReplaceCoins(ctx, second, "yahoo_screener_api"); err != nil {
		t.Fatalf("ReplaceCoins (second): %v", err)
	}

	n, err := s.CoinCount(ctx)
	if err != nil {
		t.Fatalf("CoinCount: %v", err)
	}
	if n != 2 {
		t.Errorf("CoinCount = %d after replace, want 2", n)
	}
}

func TestReplaceCoinsEmptyNoop(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	coins := []domain.Coin{{Symbol: "BTC-USD", Name: "Bitcoin USD", MarketCap: 1, Rank: 1}}
	if _, err := s.ReplaceCoins(ctx, coins, "yahoo_screener_api"); err != nil {
		t.Fatalf("ReplaceCoins: %v", err)
	}

	// Empty input leaves the existing snapshot untouched.
	if _, err := s.ReplaceCoins(ctx, nil, "yahoo_screener_api"); err != nil {
		t.Fatalf("ReplaceCoins(nil): %v", err)
	}
	n, err := s.CoinCount(ctx)
	if err != nil {
		t.Fatalf("CoinCount: %v", err)
	}
	if n != 1 {
		t.Errorf("CoinCount = %d after empty replace, want 1", n)
	}
}
