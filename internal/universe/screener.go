// Package universe discovers the current top-N cryptocurrency universe from
// the Yahoo screener and persists it as the coins snapshot.
package universe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// screenerID selects the predefined crypto screen.
const screenerID = "all_cryptocurrencies_us"

// defaultMirrors are the equivalent screener endpoints tried in order for
// each page.
var defaultMirrors = []string{
	"https://query1.finance.yahoo.com/v1/finance/screener/predefined/saved",
	"https://query2.finance.yahoo.com/v1/finance/screener/predefined/saved",
}

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) " +
	"Chrome/120.0.0.0 Safari/537.36"

// Quote is one usable screener result after the typed parse step.
type Quote struct {
	Symbol    string
	Name      string
	MarketCap float64 // 0.0 when the source reported none
}

// PageFetcher fetches one screener page starting at the given offset.
type PageFetcher interface {
	FetchPage(ctx context.Context, start, count int) ([]Quote, error)
}

// ScreenerClient fetches screener pages over HTTP, falling back across
// mirrors per page.
type ScreenerClient struct {
	httpClient *http.Client
	mirrors    []string
}

var _ PageFetcher = (*ScreenerClient)(nil)

// NewScreenerClient creates a screener client with the given request timeout.
func NewScreenerClient(timeout time.Duration) *ScreenerClient {
	return &ScreenerClient{
		httpClient: &http.Client{Timeout: timeout},
		mirrors:    defaultMirrors,
	}
}

// ---------------------------------------------------------------------------
// Response parsing
// ---------------------------------------------------------------------------

// screenerResponse mirrors the subset of the screener JSON the selector
// needs. Any shape mismatch is resolved here, at one boundary: a page that
// does not match decodes to zero quotes rather than failing the run.
type screenerResponse struct {
	Finance struct {
		Result []struct {
			Quotes []screenerQuote `json:"quotes"`
		} `json:"result"`
	} `json:"finance"`
}

type screenerQuote struct {
	Symbol    string   `json:"symbol"`
	ShortName string   `json:"shortName"`
	LongName  string   `json:"longName"`
	MarketCap capField `json:"marketCap"`
}

// capField accepts the two shapes the source emits for market cap: a bare
// number, or an object with a "raw" number. Anything else is 0.0 — the
// source conflates "no data" with zero, and we preserve that for
// compatibility with existing databases.
type capField struct {
	Value float64
}

func (c *capField) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		c.Value = n
		return nil
	}

	var wrapped struct {
		Raw float64 `json:"raw"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil {
		c.Value = wrapped.Raw
		return nil
	}

	c.Value = 0
	return nil
}

// toQuote converts a raw screener quote to the typed result, or ok=false for
// records without a symbol.
func (q screenerQuote) toQuote() (Quote, bool) {
	if q.Symbol == "" {
		return Quote{}, false
	}
	name := q.ShortName
	if name == "" {
		name = q.LongName
	}
	if name == "" {
		name = q.Symbol
	}
	return Quote{Symbol: q.Symbol, Name: name, MarketCap: q.MarketCap.Value}, true
}

// ---------------------------------------------------------------------------
// Fetching
// ---------------------------------------------------------------------------

// FetchPage requests one screener page, trying each mirror in order. It
// returns an error only when every mirror fails; a mirror that responds with
// an unexpected JSON shape yields zero quotes from that mirror and the next
// one is tried.
func (c *ScreenerClient) FetchPage(ctx context.Context, start, count int) ([]Quote, error) {
	params := url.Values{
		"formatted": {"false"},
		"lang":      {"en-US"},
		"region":    {"US"},
		"scrIds":    {screenerID},
		"start":     {strconv.Itoa(start)},
		"count":     {strconv.Itoa(count)},
	}

	var lastErr error
	for _, base := range c.mirrors {
		quotes, err := c.fetchMirror(ctx, base, params)
		if err != nil {
			lastErr = err
			continue
		}
		// An empty decode may be a mirror quirk; give the next mirror a
		// chance before concluding the page is empty.
		if len(quotes) == 0 {
			continue
		}
		return quotes, nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("all mirrors failed for page start=%d count=%d: %w", start, count, lastErr)
	}
	return nil, nil
}

// fetchMirror requests and decodes one page from a single mirror.
func (c *ScreenerClient) fetchMirror(ctx context.Context, base string, params url.Values) ([]Quote, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("screener status %d from %s", resp.StatusCode, base)
	}

	var sr screenerResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decoding screener response: %w", err)
	}

	// Missing result/quotes decodes to empty slices: treated as an empty
	// page, not an error.
	var quotes []Quote
	for _, result := range sr.Finance.Result {
		for _, raw := range result.Quotes {
			if q, ok := raw.toQuote(); ok {
				quotes = append(quotes, q)
			}
		}
	}
	return quotes, nil
}
