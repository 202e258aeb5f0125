package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"cryptosync/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface checks.
var _ CoinStore = (*SQLiteStore)(nil)
var _ BarStore = (*SQLiteStore)(nil)

// SQLiteStore implements CoinStore and BarStore backed by a SQLite database.
// Every write method runs in its own transaction; concurrent callers may
// interleave transactions but never partially overlap one.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, applies the
// performance pragmas this write-heavy workload relies on, and creates the
// schema if it does not exist yet.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=OFF;",
		"PRAGMA temp_store=MEMORY;",
		"PRAGMA cache_size=-64000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying pragma %q: %w", p, err)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// initSchema creates the coins and daily_history tables plus the symbol
// index used by the coverage-map aggregation.
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS coins (
		symbol       TEXT PRIMARY KEY,
		name         TEXT,
		market_cap   REAL,
		rank         INTEGER,
		source       TEXT,
		last_updated TEXT
	);

	CREATE TABLE IF NOT EXISTS daily_history (
		symbol TEXT NOT NULL,
		date   TEXT NOT NULL,
		open   REAL,
		high   REAL,
		low    REAL,
		close  REAL,
		volume REAL,
		PRIMARY KEY (symbol, date)
	);

	CREATE INDEX IF NOT EXISTS idx_daily_history_symbol
		ON daily_history(symbol);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// CoinStore implementation
// ---------------------------------------------------------------------------

// ReplaceCoins atomically replaces the coins snapshot: delete-then-insert in
// one transaction. last_updated is set to the current UTC time.
func (s *SQLiteStore) ReplaceCoins(ctx context.Context, coins []domain.Coin, source string) (time.Duration, error) {
	if len(coins) == 0 {
		return 0, nil
	}

	t0 := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning coins transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM coins"); err != nil {
		return 0, fmt.Errorf("clearing coins: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO coins
		(symbol, name, market_cap, rank, source, last_updated)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("preparing coins insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, c := range coins {
		if _, err := stmt.ExecContext(ctx, c.Symbol, c.Name, c.MarketCap, c.Rank, source, now); err != nil {
			return 0, fmt.Errorf("inserting coin %s: %w", c.Symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing coins: %w", err)
	}
	return time.Since(t0), nil
}

// CoinCount returns the number of rows in the coins snapshot.
func (s *SQLiteStore) CoinCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM coins").Scan(&n)
	return n, err
}

// ---------------------------------------------------------------------------
// BarStore implementation
// ---------------------------------------------------------------------------

// UpsertBars writes bars in a single transaction with last-write-wins
// semantics on the (symbol, date) key.
func (s *SQLiteStore) UpsertBars(ctx context.Context, bars []domain.Bar) (time.Duration, error) {
	if len(bars) == 0 {
		return 0, nil
	}

	t0 := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning bars transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO daily_history
		(symbol, date, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("preparing bars insert: %w", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		date := b.Date.Format(domain.DateFormat)
		if _, err := stmt.ExecContext(ctx, b.Symbol, date, b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			return 0, fmt.Errorf("inserting bar %s/%s: %w", b.Symbol, date, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing bars: %w", err)
	}
	return time.Since(t0), nil
}

// CoverageMap aggregates MAX(date) per symbol over daily_history.
func (s *SQLiteStore) CoverageMap(ctx context.Context) (map[string]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, MAX(date) AS last_date
		FROM daily_history
		GROUP BY symbol
	`)
	if err != nil {
		return nil, fmt.Errorf("querying coverage map: %w", err)
	}
	defer rows.Close()

	coverage := make(map[string]time.Time)
	for rows.Next() {
		var symbol, lastDate string
		if err := rows.Scan(&symbol, &lastDate); err != nil {
			return nil, fmt.Errorf("scanning coverage row: %w", err)
		}
		d, err := time.ParseInLocation(domain.DateFormat, lastDate, time.UTC)
		if err != nil {
			// A malformed date means a row this tool never wrote; skip it.
			continue
		}
		coverage[symbol] = d
	}
	return coverage, rows.Err()
}

// ReadBars returns all stored bars for a symbol ordered by date ascending.
func (s *SQLiteStore) ReadBars(ctx context.Context, symbol string) ([]domain.Bar, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, date, open, high, low, close, volume
		FROM daily_history
		WHERE symbol = ?
		ORDER BY date
	`, symbol)
	if err != nil {
		return nil, fmt.Errorf("querying bars for %s: %w", symbol, err)
	}
	defer rows.Close()

	return scanBars(rows)
}

// scanBars converts daily_history rows into domain bars.
func scanBars(rows *sql.Rows) ([]domain.Bar, error) {
	var bars []domain.Bar
	for rows.Next() {
		var b domain.Bar
		var date string
		if err := rows.Scan(&b.Symbol, &date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scanning bar row: %w", err)
		}
		d, err := time.ParseInLocation(domain.DateFormat, date, time.UTC)
		if err != nil {
			continue
		}
		b.Date = d
		bars = append(bars, b)
	}
	return bars, rows.Err()
}
