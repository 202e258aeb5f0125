package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/parquet-go/parquet-go"

	"cryptosync/internal/domain"
)

// BarRecord is the Parquet schema for exported daily history rows.
type BarRecord struct {
	Symbol string  `parquet:"symbol"`
	Date   string  `parquet:"date"` // YYYY-MM-DD
	Open   float64 `parquet:"open"`
	High   float64 `parquet:"high"`
	Low    float64 `parquet:"low"`
	Close  float64 `parquet:"close"`
	Volume float64 `parquet:"volume"`
}

// ExportParquet writes the full daily history to one Parquet file per symbol
// under dir (<dir>/<SYMBOL>.parquet), overwriting existing files. It returns
// the number of symbols exported. Intended for downstream analysis tooling;
// the SQLite database remains the source of truth.
func (s *SQLiteStore) ExportParquet(ctx context.Context, dir string) (int, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("creating export dir: %w", err)
	}

	symbols, err := s.historySymbols(ctx)
	if err != nil {
		return 0, err
	}

	exported := 0
	for _, sym := range symbols {
		if ctx.Err() != nil {
			return exported, ctx.Err()
		}

		bars, err := s.ReadBars(ctx, sym)
		if err != nil {
			return exported, err
		}
		if len(bars) == 0 {
			continue
		}

		records := make([]BarRecord, 0, len(bars))
		for _, b := range bars {
			records = append(records, BarRecord{
				Symbol: b.Symbol,
				Date:   b.Date.Format(domain.DateFormat),
				Open:   b.Open,
				High:   b.High,
				Low:    b.Low,
				Close:  b.Close,
				Volume: b.Volume,
			})
		}

		path := filepath.Join(dir, exportFileName(sym))
		if err := parquet.WriteFile(path, records); err != nil {
			return exported, fmt.Errorf("writing %s: %w", path, err)
		}
		exported++
	}

	return exported, nil
}

// historySymbols returns the distinct symbols present in daily_history.
func (s *SQLiteStore) historySymbols(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT symbol FROM daily_history ORDER BY symbol")
	if err != nil {
		return nil, fmt.Errorf("listing history symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, fmt.Errorf("scanning symbol: %w", err)
		}
		symbols = append(symbols, sym)
	}
	return symbols, rows.Err()
}

// exportFileName maps a symbol to a filesystem-safe Parquet file name.
func exportFileName(symbol string) string {
	safe := strings.NewReplacer("/", "_", "\\", "_").Replace(symbol)
	return safe + ".parquet"
}
