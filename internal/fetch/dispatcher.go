// Package fetch executes a fetch plan against the historical quote source,
// choosing between one bulk multi-symbol request per batch (uniform date
// ranges) and independent per-symbol requests (mixed ranges), and streams
// fetched rows into the bar store as units complete.
package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"cryptosync/internal/config"
	"cryptosync/internal/domain"
	"cryptosync/internal/plan"
	"cryptosync/internal/store"
	"cryptosync/internal/util"
)

// Backoff between failed bulk-batch attempts: attempt n waits
// min(bulkBackoffMax, n*bulkBackoffBase).
const (
	bulkBackoffBase = 500 * time.Millisecond
	bulkBackoffMax  = 5 * time.Second
)

// progressEvery is the per-symbol mode progress reporting interval.
const progressEvery = 20

// HistoryClient is the external daily-bar source. Both windows are
// end-exclusive, so callers pass plan end + 1 day.
type HistoryClient interface {
	// FetchBatch fetches bars for many symbols sharing one window.
	FetchBatch(ctx context.Context, symbols []string, start, endExclusive time.Time) ([]domain.Bar, error)
	// FetchSymbol fetches bars for a single symbol's window.
	FetchSymbol(ctx context.Context, symbol string, start, endExclusive time.Time) ([]domain.Bar, error)
}

// Stats summarises one Execute call for the run report.
type Stats struct {
	Mode        string        // "bulk", "per-symbol", or "none"
	Units       int           // bulk batches or plan entries executed
	FailedUnits int           // units that yielded no rows due to errors
	Rows        int           // bars persisted
	WriteTime   time.Duration // cumulative time inside store write transactions
}

// Dispatcher runs fetch plans with bounded parallelism. Workers only fetch;
// a single collector persists rows in completion order, which is safe
// because the store upsert is keyed and idempotent.
type Dispatcher struct {
	client HistoryClient
	store  store.BarStore
	cfg    config.Fetch
	log    *slog.Logger

	backoffBase time.Duration
	backoffMax  time.Duration
}

// NewDispatcher creates a Dispatcher over the given source and store.
func NewDispatcher(client HistoryClient, s store.BarStore, cfg config.Fetch) *Dispatcher {
	return &Dispatcher{
		client:      client,
		store:       s,
		cfg:         cfg,
		log:         slog.Default().With("component", "fetch"),
		backoffBase: bulkBackoffBase,
		backoffMax:  bulkBackoffMax,
	}
}

// unitResult is what one worker hands back: rows (possibly none) and whether
// the unit failed outright. Fetch errors never cross this boundary as errors.
type unitResult struct {
	label  string
	rows   []domain.Bar
	failed bool
}

// Execute runs the plan to completion. Fetch-layer failures are contained
// per unit; only storage errors are returned.
func (d *Dispatcher) Execute(ctx context.Context, entries []plan.Entry) (Stats, error) {
	if len(entries) == 0 {
		d.log.Info("plan empty, history already up to date")
		return Stats{Mode: "none"}, nil
	}

	if uniformRange(entries) && len(entries) > 1 {
		d.log.Info("uniform date range, using bulk mode",
			"symbols", len(entries),
			"start", entries[0].Start.Format(domain.DateFormat),
			"end", entries[0].End.Format(domain.DateFormat),
		)
		return d.executeBulk(ctx, entries)
	}

	d.log.Info("mixed date ranges, using per-symbol mode",
		"symbols", len(entries),
		"workers", d.cfg.MaxWorkers,
	)
	return d.executePerSymbol(ctx, entries)
}

// uniformRange reports whether every entry shares one (start, end) pair.
func uniformRange(entries []plan.Entry) bool {
	for _, e := range entries[1:] {
		if !e.Start.Equal(entries[0].Start) || !e.End.Equal(entries[0].End) {
			return false
		}
	}
	return true
}

// ---------------------------------------------------------------------------
// Bulk mode
// ---------------------------------------------------------------------------

// executeBulk partitions the symbols into batches and fetches each batch's
// shared window with one multi-symbol request, retrying failed batches with
// linear backoff. Batches run concurrently; each batch's rows are persisted
// as soon as it completes.
func (d *Dispatcher) executeBulk(ctx context.Context, entries []plan.Entry) (Stats, error) {
	start := entries[0].Start
	endExclusive := entries[0].End.AddDate(0, 0, 1) // source end is exclusive

	symbols := make([]string, 0, len(entries))
	for _, e := range entries {
		symbols = append(symbols, e.Symbol)
	}

	var batches [][]string
	for i := 0; i < len(symbols); i += d.cfg.BulkBatchSize {
		end := min(i+d.cfg.BulkBatchSize, len(symbols))
		batches = append(batches, symbols[i:end])
	}
	totalBatches := len(batches)

	d.log.Info("bulk dispatch",
		"symbols", len(symbols),
		"batches", totalBatches,
		"batch_size", d.cfg.BulkBatchSize,
		"workers", d.cfg.BulkWorkers,
	)

	batchCh := make(chan int, totalBatches)
	for i := range batches {
		batchCh <- i
	}
	close(batchCh)

	results := make(chan unitResult)

	var wg sync.WaitGroup
	workers := min(d.cfg.BulkWorkers, totalBatches)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range batchCh {
				results <- d.fetchBatch(ctx, i, totalBatches, batches[i], start, endExclusive)
			}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	// Bulk progress is reported on every batch completion.
	return d.collect(ctx, results, "bulk", totalBatches, 1)
}

// fetchBatch attempts one bulk batch with up to BulkMaxRetries attempts. An
// empty response is "no data" and does not consume a retry. A batch that
// errors on every attempt is abandoned: its symbols get no rows this run and
// will be planned again next run.
func (d *Dispatcher) fetchBatch(ctx context.Context, idx, total int, symbols []string, start, endExclusive time.Time) unitResult {
	label := fmt.Sprintf("batch %d/%d", idx+1, total)

	attempt := 0
	var rows []domain.Bar
	err := util.Retry(ctx, d.cfg.BulkMaxRetries, d.backoffBase, d.backoffMax, func() error {
		attempt++
		bars, ferr := d.client.FetchBatch(ctx, symbols, start, endExclusive)
		if ferr != nil {
			d.log.Warn("bulk batch attempt failed",
				"batch", label,
				"attempt", fmt.Sprintf("%d/%d", attempt, d.cfg.BulkMaxRetries),
				"symbols", len(symbols),
				"err", ferr,
			)
			return ferr
		}
		rows = bars
		return nil
	})
	if err != nil {
		d.log.Error("bulk batch abandoned",
			"batch", label,
			"attempts", d.cfg.BulkMaxRetries,
			"symbols", len(symbols),
			"err", err,
		)
		return unitResult{label: label, failed: true}
	}

	if len(rows) == 0 {
		d.log.Warn("bulk batch returned no data", "batch", label, "symbols", len(symbols))
	} else {
		d.log.Debug("bulk batch fetched", "batch", label, "attempt", attempt, "rows", len(rows))
	}
	return unitResult{label: label, rows: rows}
}

// ---------------------------------------------------------------------------
// Per-symbol mode
// ---------------------------------------------------------------------------

// executePerSymbol fetches every entry's own window independently. There is
// no retry loop in this mode: a failed or empty fetch means zero rows for
// that symbol this run, and no other symbol is affected.
func (d *Dispatcher) executePerSymbol(ctx context.Context, entries []plan.Entry) (Stats, error) {
	total := len(entries)

	entryCh := make(chan plan.Entry, total)
	for _, e := range entries {
		entryCh <- e
	}
	close(entryCh)

	results := make(chan unitResult)

	var wg sync.WaitGroup
	workers := min(d.cfg.MaxWorkers, total)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for e := range entryCh {
				results <- d.fetchSymbol(ctx, e)
			}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	return d.collect(ctx, results, "per-symbol", total, progressEvery)
}

// fetchSymbol fetches one plan entry. Errors are logged and reported as a
// failed unit with zero rows.
func (d *Dispatcher) fetchSymbol(ctx context.Context, e plan.Entry) unitResult {
	endExclusive := e.End.AddDate(0, 0, 1) // source end is exclusive

	rows, err := d.client.FetchSymbol(ctx, e.Symbol, e.Start, endExclusive)
	if err != nil {
		d.log.Warn("symbol fetch failed", "symbol", e.Symbol, "err", err)
		return unitResult{label: e.Symbol, failed: true}
	}
	if len(rows) == 0 {
		d.log.Warn("symbol fetch returned no data", "symbol", e.Symbol)
		return unitResult{label: e.Symbol}
	}

	d.log.Debug("symbol fetched", "symbol", e.Symbol, "rows", len(rows))
	return unitResult{label: e.Symbol, rows: rows}
}

// ---------------------------------------------------------------------------
// Collection
// ---------------------------------------------------------------------------

// collect persists unit results in completion order and reports progress
// every progressStep completions and at the end. It is the only place the
// dispatcher touches the store; a storage error aborts the run.
func (d *Dispatcher) collect(ctx context.Context, results <-chan unitResult, mode string, total, progressStep int) (Stats, error) {
	stats := Stats{Mode: mode}
	runStart := time.Now()

	for res := range results {
		stats.Units++
		if res.failed {
			stats.FailedUnits++
		}

		if len(res.rows) > 0 {
			dur, err := d.store.UpsertBars(ctx, res.rows)
			stats.WriteTime += dur
			if err != nil {
				return stats, fmt.Errorf("persisting rows for %s: %w", res.label, err)
			}
			stats.Rows += len(res.rows)
		}

		if stats.Units%progressStep == 0 || stats.Units == total {
			d.log.Info("progress",
				"mode", mode,
				"done", fmt.Sprintf("%d/%d", stats.Units, total),
				"rows", stats.Rows,
				"elapsed", time.Since(runStart).Round(100*time.Millisecond),
			)
		}
	}

	return stats, nil
}
