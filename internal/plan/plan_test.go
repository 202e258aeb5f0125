package plan

import (
	"testing"
	"time"

	"cryptosync/internal/domain"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestBuildGapFill(t *testing.T) {
	coins := []domain.Coin{
		{Symbol: "BTC-USD", Rank: 1},
		{Symbol: "ETH-USD", Rank: 2},
	}
	coverage := map[string]time.Time{
		"BTC-USD": day(2024, 6, 5),
		"ETH-USD": day(2024, 6, 9),
	}
	today := day(2024, 6, 10)

	entries := Build(coins, coverage, today, 10)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}

	// Covered through D ⇒ start at D+1, never D, never a gap.
	if !entries[0].Start.Equal(day(2024, 6, 6)) {
		t.Errorf("BTC-USD start = %v, want 2024-06-06", entries[0].Start)
	}
	if !entries[1].Start.Equal(day(2024, 6, 10)) {
		t.Errorf("ETH-USD start = %v, want 2024-06-10", entries[1].Start)
	}
	for _, e := range entries {
		if !e.End.Equal(today) {
			t.Errorf("%s end = %v, want today", e.Symbol, e.End)
		}
	}
}

func TestBuildUncoveredUsesHistoryDepth(t *testing.T) {
	coins := []domain.Coin{{Symbol: "NEW-USD", Rank: 1}}
	today := day(2024, 6, 10)

	entries := Build(coins, nil, today, 10)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if !entries[0].Start.Equal(day(2024, 5, 31)) {
		t.Errorf("start = %v, want today−10d = 2024-05-31", entries[0].Start)
	}
}

func TestBuildSkipsFullyCovered(t *testing.T) {
	coins := []domain.Coin{
		{Symbol: "BTC-USD", Rank: 1},
		{Symbol: "ETH-USD", Rank: 2},
	}
	coverage := map[string]time.Time{
		"BTC-USD": day(2024, 6, 10), // covered through today ⇒ start would be tomorrow
		"ETH-USD": day(2024, 6, 8),
	}

	entries := Build(coins, coverage, day(2024, 6, 10), 10)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1 (BTC-USD skipped)", len(entries))
	}
	if entries[0].Symbol != "ETH-USD" {
		t.Errorf("remaining entry is %q, want ETH-USD", entries[0].Symbol)
	}
}

func TestBuildPreservesRankOrder(t *testing.T) {
	coins := []domain.Coin{
		{Symbol: "BTC-USD", Rank: 1},
		{Symbol: "ETH-USD", Rank: 2},
		{Symbol: "SOL-USD", Rank: 3},
	}

	entries := Build(coins, nil, day(2024, 6, 10), 30)
	want := []string{"BTC-USD", "ETH-USD", "SOL-USD"}
	for i, sym := range want {
		if entries[i].Symbol != sym {
			t.Errorf("entries[%d].Symbol = %q, want %q", i, entries[i].Symbol, sym)
		}
	}
}

func TestBuildTruncatesTodayToDate(t *testing.T) {
	coins := []domain.Coin{{Symbol: "BTC-USD", Rank: 1}}
	now := time.Date(2024, 6, 10, 18, 30, 0, 0, time.UTC)

	entries := Build(coins, nil, now, 10)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if !entries[0].End.Equal(day(2024, 6, 10)) {
		t.Errorf("end = %v, want midnight-UTC 2024-06-10", entries[0].End)
	}
}

func TestBuildEndToEndScenario(t *testing.T) {
	// Universe = BTC (cap 100), ETH (cap 50); no prior coverage; depth 10;
	// today 2024-06-10 ⇒ both windows are 2024-05-31 .. 2024-06-10.
	coins := []domain.Coin{
		{Symbol: "BTC-USD", MarketCap: 100, Rank: 1},
		{Symbol: "ETH-USD", MarketCap: 50, Rank: 2},
	}

	entries := Build(coins, map[string]time.Time{}, day(2024, 6, 10), 10)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	for _, e := range entries {
		if !e.Start.Equal(day(2024, 5, 31)) || !e.End.Equal(day(2024, 6, 10)) {
			t.Errorf("%s window = %v..%v, want 2024-05-31..2024-06-10", e.Symbol, e.Start, e.End)
		}
	}
}
