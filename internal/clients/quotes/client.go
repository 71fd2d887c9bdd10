// Package quotes provides batched quote fetching from the market data API.
package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/niveshlabs/folio/internal/domain"
)

const (
	// batchSize bounds concurrent requests to the upstream quote source.
	batchSize      = 5
	requestTimeout = 8 * time.Second
)

// Client fetches current quotes per symbol from the quote endpoint.
type Client struct {
	baseURL string
	apiKey  string
	region  string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates a new quote client. apiKey is the bearer token issued by
// the auth collaborator.
func NewClient(baseURL, apiKey string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		region:  "IN",
		client:  &http.Client{Timeout: requestTimeout},
		log:     log.With().Str("client", "quotes").Logger(),
	}
}

// quoteResponse is the wire shape of the quote endpoint.
type quoteResponse struct {
	Symbol        string  `json:"symbol"`
	Open          float64 `json:"open"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	Close         float64 `json:"close"`
	PreviousClose float64 `json:"previousClose"`
	Volume        int64   `json:"volume"`
}

// FetchMany fetches quotes for a set of symbols. Symbols are partitioned into
// fixed-size batches; requests within a batch run concurrently, batches run
// sequentially. A single symbol's failure is logged and omitted from the
// result, it never fails the batch. The returned map holds whatever resolved.
//
// A missing API key is a whole-call precondition and returns AuthError.
func (c *Client) FetchMany(ctx context.Context, symbols []string) (map[string]domain.Quote, error) {
	if c.apiKey == "" {
		return nil, &domain.AuthError{Reason: "quote API key not configured"}
	}

	result := make(map[string]domain.Quote, len(symbols))
	if len(symbols) == 0 {
		return result, nil
	}

	var mu sync.Mutex
	for start := 0; start < len(symbols); start += batchSize {
		end := start + batchSize
		if end > len(symbols) {
			end = len(symbols)
		}
		batch := symbols[start:end]

		var wg sync.WaitGroup
		for _, symbol := range batch {
			wg.Add(1)
			go func(symbol string) {
				defer wg.Done()

				quote, err := c.fetchOne(ctx, symbol)
				if err != nil {
					// Partial results are the contract; skip and move on.
					c.log.Warn().Err(err).Str("symbol", symbol).Msg("Quote fetch failed, omitting symbol")
					return
				}

				mu.Lock()
				result[symbol] = quote
				mu.Unlock()
			}(symbol)
		}
		wg.Wait()
	}

	c.log.Debug().
		Int("requested", len(symbols)).
		Int("resolved", len(result)).
		Msg("Batch quote fetch complete")

	return result, nil
}

// fetchOne fetches the quote for a single symbol.
func (c *Client) fetchOne(ctx context.Context, symbol string) (domain.Quote, error) {
	endpoint := fmt.Sprintf("%s/market/quote/%s?region=%s",
		c.baseURL, url.PathEscape(FeedSymbol(symbol)), c.region)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.Quote{}, &domain.TransientFetchError{Symbol: symbol, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.Quote{}, &domain.NotFoundError{Resource: "quote", Key: symbol}
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return domain.Quote{}, &domain.AuthError{Reason: fmt.Sprintf("quote API returned %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return domain.Quote{}, &domain.TransientFetchError{
			Symbol: symbol,
			Err:    fmt.Errorf("quote API returned status %d", resp.StatusCode),
		}
	}

	var raw quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return domain.Quote{}, &domain.TransientFetchError{Symbol: symbol, Err: err}
	}

	return buildQuote(symbol, raw), nil
}

// buildQuote derives change fields from the raw close/previousClose pair.
// changePercent is 0 when previousClose is absent or zero.
func buildQuote(symbol string, raw quoteResponse) domain.Quote {
	change := 0.0
	changePercent := 0.0
	if raw.PreviousClose != 0 {
		change = raw.Close - raw.PreviousClose
		changePercent = change / raw.PreviousClose * 100
	}

	return domain.Quote{
		Symbol:        symbol,
		Open:          raw.Open,
		High:          raw.High,
		Low:           raw.Low,
		Close:         raw.Close,
		PreviousClose: raw.PreviousClose,
		Volume:        raw.Volume,
		Change:        change,
		ChangePercent: changePercent,
	}
}

// FeedSymbol converts an "{EXCHANGE}:{TICKER}" symbol to the quote API's
// suffix form: NSE:RELIANCE -> RELIANCE.NS, BSE:RELIANCE -> RELIANCE.BO.
// Symbols without an exchange prefix pass through unchanged.
func FeedSymbol(symbol string) string {
	exchange, ticker, found := strings.Cut(symbol, ":")
	if !found {
		return symbol
	}
	switch exchange {
	case "NSE":
		return ticker + ".NS"
	case "BSE":
		return ticker + ".BO"
	default:
		return ticker
	}
}
