// Package nav provides fund NAV lookups with 24h caching, since NAVs are
// published once per trading day.
package nav

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/niveshlabs/folio/internal/domain"
	"github.com/niveshlabs/folio/internal/pricecache"
)

const requestTimeout = 8 * time.Second

// Client fetches mutual fund NAVs from the NAV provider.
type Client struct {
	baseURL string
	client  *http.Client
	cache   *pricecache.Cache
	schemes map[string]string // fund name fragment (upper) -> scheme code
	log     zerolog.Logger
}

// NewClient creates a new NAV client.
// cache is optional - if nil, caching is disabled.
func NewClient(baseURL string, cache *pricecache.Cache, log zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: requestTimeout},
		cache:   cache,
		schemes: defaultSchemeTable(),
		log:     log.With().Str("client", "nav").Logger(),
	}
}

// navResponse is the provider's wire shape; the most recent entry is first.
type navResponse struct {
	Meta struct {
		SchemeName string `json:"scheme_name"`
	} `json:"meta"`
	Data []struct {
		Date string `json:"date"`
		NAV  string `json:"nav"`
	} `json:"data"`
}

// CurrentNAV returns the latest NAV for a fund symbol. Fresh cache entries
// are served without a fetch; when the provider is unreachable a stale cache
// entry is returned rather than failing (stale data beats no data).
func (c *Client) CurrentNAV(ctx context.Context, symbol string) (float64, error) {
	code, err := c.resolveSchemeCode(symbol)
	if err != nil {
		return 0, err
	}

	if c.cache != nil {
		if e, ok := c.cache.Get(code); ok {
			c.log.Debug().Str("symbol", symbol).Str("scheme", code).Float64("nav", e.Value).Msg("Cache hit")
			return e.Value, nil
		}
	}

	value, err := c.fetch(ctx, symbol, code)
	if err != nil {
		if c.cache != nil {
			if e, ok := c.cache.GetStale(code); ok {
				c.log.Warn().Err(err).Str("scheme", code).Float64("nav", e.Value).
					Msg("NAV fetch failed, using stale cached value")
				return e.Value, nil
			}
		}
		return 0, err
	}

	if c.cache != nil {
		c.cache.Put(code, value, "nav_api")
	}

	c.log.Info().Str("symbol", symbol).Str("scheme", code).Float64("nav", value).Msg("Fetched NAV")
	return value, nil
}

// Invalidate drops the cached NAV for a symbol, forcing the next lookup to
// hit the provider. Used after a manual NAV override.
func (c *Client) Invalidate(symbol string) {
	if c.cache == nil {
		return
	}
	if code, err := c.resolveSchemeCode(symbol); err == nil {
		c.cache.Invalidate(code)
	}
}

func (c *Client) fetch(ctx context.Context, symbol, code string) (float64, error) {
	endpoint := fmt.Sprintf("%s/mf/%s", c.baseURL, code)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, &domain.TransientFetchError{Symbol: symbol, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return 0, &domain.NotFoundError{Resource: "scheme", Key: code}
	}
	if resp.StatusCode != http.StatusOK {
		return 0, &domain.TransientFetchError{
			Symbol: symbol,
			Err:    fmt.Errorf("NAV provider returned status %d", resp.StatusCode),
		}
	}

	var raw navResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return 0, &domain.TransientFetchError{Symbol: symbol, Err: err}
	}

	if len(raw.Data) == 0 {
		return 0, &domain.NotFoundError{Resource: "nav", Key: code}
	}

	// Most recent entry first.
	value, err := strconv.ParseFloat(raw.Data[0].NAV, 64)
	if err != nil {
		return 0, &domain.TransientFetchError{
			Symbol: symbol,
			Err:    fmt.Errorf("unparseable NAV %q: %w", raw.Data[0].NAV, err),
		}
	}
	if value <= 0 {
		return 0, &domain.NotFoundError{Resource: "nav", Key: code}
	}

	return value, nil
}

// resolveSchemeCode maps a holding symbol to the provider's scheme code.
// Numeric symbols are scheme codes already; anything else is matched against
// the fund name table.
func (c *Client) resolveSchemeCode(symbol string) (string, error) {
	if symbol == "" {
		return "", &domain.NotFoundError{Resource: "scheme", Key: symbol}
	}
	if isNumeric(symbol) {
		return symbol, nil
	}

	upper := strings.ToUpper(symbol)
	for fragment, code := range c.schemes {
		if strings.Contains(upper, fragment) {
			return code, nil
		}
	}
	return "", &domain.NotFoundError{Resource: "scheme", Key: symbol}
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

// defaultSchemeTable maps fund name fragments to provider scheme codes for
// the funds that appear by name rather than code.
func defaultSchemeTable() map[string]string {
	return map[string]string{
		"PARAG PARIKH FLEXI":  "122639",
		"QUANT SMALL CAP":     "120828",
		"HDFC INDEX SENSEX":   "101305",
		"UTI NIFTY 50":        "120716",
		"SBI BLUECHIP":        "103504",
		"AXIS MIDCAP":         "120505",
		"MIRAE ASSET LARGE":   "118825",
		"ICICI PRU BALANCED":  "120251",
		"KOTAK EMERGING":      "112090",
		"NIPPON SMALL CAP":    "118778",
	}
}
