package fetch

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"cryptosync/internal/domain"
)

// Compile-time interface check.
var _ HistoryClient = (*AlpacaClient)(nil)

// AlpacaClient fetches daily crypto bars from the Alpaca market-data API.
// It is the single boundary where screener symbols ("BTC-USD") are mapped to
// Alpaca crypto pairs ("BTC/USD") and SDK bars become domain rows.
type AlpacaClient struct {
	client *marketdata.Client
}

// NewAlpacaClient creates a client with the given credentials and per-request
// timeout. Credentials may be empty: the crypto data endpoints are public.
func NewAlpacaClient(apiKey, apiSecret, dataURL string, timeout time.Duration) *AlpacaClient {
	opts := marketdata.ClientOpts{
		APIKey:     apiKey,
		APISecret:  apiSecret,
		HTTPClient: &http.Client{Timeout: timeout},
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}

	return &AlpacaClient{client: marketdata.NewClient(opts)}
}

// FetchBatch fetches daily bars for multiple symbols in a single request.
// The source's end is exclusive. Symbols the source has no data for are
// simply absent from the result; an empty result is not an error.
func (c *AlpacaClient) FetchBatch(ctx context.Context, symbols []string, start, endExclusive time.Time) ([]domain.Bar, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	pairs := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		pairs = append(pairs, toPair(sym))
	}

	multiBars, err := c.client.GetCryptoMultiBars(pairs, marketdata.GetCryptoBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     start,
		End:       endExclusive,
	})
	if err != nil {
		return nil, err
	}

	var bars []domain.Bar
	for pair, cryptoBars := range multiBars {
		symbol := fromPair(pair)
		for _, cb := range cryptoBars {
			bars = append(bars, toBar(symbol, cb))
		}
	}
	return bars, nil
}

// FetchSymbol fetches daily bars for one symbol. The source's end is
// exclusive.
func (c *AlpacaClient) FetchSymbol(ctx context.Context, symbol string, start, endExclusive time.Time) ([]domain.Bar, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	cryptoBars, err := c.client.GetCryptoBars(toPair(symbol), marketdata.GetCryptoBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     start,
		End:       endExclusive,
	})
	if err != nil {
		return nil, err
	}

	bars := make([]domain.Bar, 0, len(cryptoBars))
	for _, cb := range cryptoBars {
		bars = append(bars, toBar(symbol, cb))
	}
	return bars, nil
}

// toBar converts an SDK bar to a domain row. OHLCV fields the source omitted
// arrive as zero values and stay zero, matching the stored schema's
// "missing is 0.0" convention.
func toBar(symbol string, cb marketdata.CryptoBar) domain.Bar {
	return domain.Bar{
		Symbol: symbol,
		Date:   domain.Day(cb.Timestamp),
		Open:   cb.Open,
		High:   cb.High,
		Low:    cb.Low,
		Close:  cb.Close,
		Volume: cb.Volume,
	}
}

// toPair maps a screener symbol like "BTC-USD" to the Alpaca pair "BTC/USD".
// Symbols without a quote-currency suffix pass through unchanged.
func toPair(symbol string) string {
	idx := strings.LastIndex(symbol, "-")
	if idx <= 0 || idx == len(symbol)-1 {
		return symbol
	}
	return symbol[:idx] + "/" + symbol[idx+1:]
}

// fromPair is the inverse of toPair.
func fromPair(pair string) string {
	idx := strings.LastIndex(pair, "/")
	if idx <= 0 || idx == len(pair)-1 {
		return pair
	}
	return pair[:idx] + "-" + pair[idx+1:]
}
