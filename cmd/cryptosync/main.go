// Command cryptosync performs one incremental synchronization of daily OHLCV
// history for the top-N cryptocurrencies by market cap into a local SQLite
// database, then prints a timing summary and exits.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cryptosync/internal/config"
	"cryptosync/internal/fetch"
	"cryptosync/internal/plan"
	"cryptosync/internal/store"
	"cryptosync/internal/universe"
	"cryptosync/internal/util"
)

func main() {
	globalStart := time.Now()

	cfgPath := os.Getenv("CRYPTOSYNC_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	util.SetDefault(util.NewLogger(cfg.Logging.Level))

	fmt.Printf("Top %d crypto daily history -> SQLite\n", cfg.Universe.TargetSize)
	fmt.Printf("       DB: %s\n", cfg.Storage.SQLitePath)
	fmt.Printf("       HISTORY_DAYS: %d\n\n", cfg.Fetch.HistoryDays)

	st, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer st.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	dbWriteTime, err := run(ctx, cfg, st)
	if err != nil {
		log.Fatalf("sync failed: %v", err)
	}

	totalTime := time.Since(globalStart)
	fmt.Println()
	fmt.Printf("[TIMER] Total program time      : %.2f seconds\n", totalTime.Seconds())
	fmt.Printf("[TIMER] Time spent in DB writes : %.2f seconds\n", dbWriteTime.Seconds())
	fmt.Printf("[TIMER] Time without DB writes  : %.2f seconds (network + parsing + CPU only)\n",
		(totalTime - dbWriteTime).Seconds())
}

// run executes one full sync and returns the cumulative time spent in store
// write transactions.
func run(ctx context.Context, cfg *config.Config, st *store.SQLiteStore) (time.Duration, error) {
	timeout := time.Duration(cfg.Fetch.RequestTimeoutSecs) * time.Second

	// 1. Discover and persist the current top-N universe.
	var limiter *util.RateLimiter
	if cfg.Universe.RateLimitPerMin > 0 {
		limiter = util.NewRateLimiter(cfg.Universe.RateLimitPerMin)
	}
	selector := universe.NewSelector(
		universe.NewScreenerClient(timeout),
		st,
		limiter,
		cfg.Universe.TargetSize,
		cfg.Universe.PageSize,
		cfg.Universe.MaxPages,
	)
	coins, dbWriteTime, err := selector.Run(ctx)
	if err != nil {
		return dbWriteTime, fmt.Errorf("persisting universe snapshot: %w", err)
	}
	fmt.Printf("[INFO] Universe: %d coins\n", len(coins))

	// 2. Compute the incremental fetch plan from stored coverage.
	coverage, err := st.CoverageMap(ctx)
	if err != nil {
		return dbWriteTime, fmt.Errorf("reading coverage map: %w", err)
	}
	entries := plan.Build(coins, coverage, time.Now().UTC(), cfg.Fetch.HistoryDays)
	fmt.Printf("[INFO] Plan: %d symbols needing updates\n", len(entries))

	// 3. Fetch and persist.
	client := fetch.NewAlpacaClient(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL, timeout)
	dispatcher := fetch.NewDispatcher(client, st, cfg.Fetch)
	stats, err := dispatcher.Execute(ctx, entries)
	dbWriteTime += stats.WriteTime
	if err != nil {
		return dbWriteTime, err
	}
	fmt.Printf("[INFO] Fetch: mode=%s units=%d failed=%d rows=%d\n",
		stats.Mode, stats.Units, stats.FailedUnits, stats.Rows)

	// 4. Optional Parquet export for downstream analysis.
	if cfg.Export.ParquetDir != "" {
		n, err := st.ExportParquet(ctx, cfg.Export.ParquetDir)
		if err != nil {
			return dbWriteTime, fmt.Errorf("exporting parquet: %w", err)
		}
		fmt.Printf("[INFO] Export: %d symbols -> %s\n", n, cfg.Export.ParquetDir)
	}

	return dbWriteTime, ctx.Err()
}
