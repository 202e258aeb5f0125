package universe

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"cryptosync/internal/domain"
	"cryptosync/internal/store"
	"cryptosync/internal/util"
)

// snapshotSource tags the coins snapshot with where it came from.
const snapshotSource = "yahoo_screener_api"

// Selector builds the ranked top-N universe by paginating the screener and
// persists it through the coin store.
type Selector struct {
	pages      PageFetcher
	store      store.CoinStore
	limiter    *util.RateLimiter
	targetSize int
	pageSize   int
	maxPages   int
	log        *slog.Logger
}

// NewSelector creates a Selector. limiter paces page requests and may be nil
// to disable pacing.
func NewSelector(pages PageFetcher, s store.CoinStore, limiter *util.RateLimiter, targetSize, pageSize, maxPages int) *Selector {
	return &Selector{
		pages:      pages,
		store:      s,
		limiter:    limiter,
		targetSize: targetSize,
		pageSize:   pageSize,
		maxPages:   maxPages,
		log:        slog.Default().With("component", "universe"),
	}
}

// Run collects, ranks, and persists the current universe. It returns the
// ranked coins and the time spent in the snapshot write transaction.
//
// A failed page fetch is terminal for collection but not for the run: the
// coins gathered so far are still ranked and persisted. Only a storage
// failure returns an error.
func (s *Selector) Run(ctx context.Context) ([]domain.Coin, time.Duration, error) {
	collected := s.collect(ctx)

	// Rank by market cap descending; ties keep discovery order.
	sort.SliceStable(collected, func(i, j int) bool {
		return collected[i].MarketCap > collected[j].MarketCap
	})
	if len(collected) > s.targetSize {
		collected = collected[:s.targetSize]
	}
	for i := range collected {
		collected[i].Rank = i + 1
	}

	s.log.Info("universe ranked", "coins", len(collected))

	writeTime, err := s.store.ReplaceCoins(ctx, collected, snapshotSource)
	if err != nil {
		return nil, 0, err
	}
	return collected, writeTime, nil
}

// collect paginates the screener, deduplicating by symbol, until a stop
// condition is hit: failed page, empty page, page with no new symbols,
// target size reached, or maxPages exhausted.
func (s *Selector) collect(ctx context.Context) []domain.Coin {
	var collected []domain.Coin
	seen := make(map[string]struct{})

	start := 0
	for page := 0; page < s.maxPages; page++ {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				s.log.Warn("page pacing interrupted", "err", err)
				break
			}
		}

		t0 := time.Now()
		quotes, err := s.pages.FetchPage(ctx, start, s.pageSize)
		if err != nil {
			s.log.Error("page fetch failed, stopping collection",
				"page", page+1,
				"start", start,
				"err", err,
			)
			break
		}

		newCount := 0
		for _, q := range quotes {
			if _, dup := seen[q.Symbol]; dup {
				continue
			}
			seen[q.Symbol] = struct{}{}
			collected = append(collected, domain.Coin{
				Symbol:    q.Symbol,
				Name:      q.Name,
				MarketCap: q.MarketCap,
			})
			newCount++
		}

		s.log.Info("page fetched",
			"page", page+1,
			"start", start,
			"quotes", len(quotes),
			"new", newCount,
			"total", len(collected),
			"elapsed", time.Since(t0).Round(time.Millisecond),
		)

		start += s.pageSize

		if len(quotes) == 0 || newCount == 0 || len(collected) >= s.targetSize {
			break
		}
	}

	return collected
}
