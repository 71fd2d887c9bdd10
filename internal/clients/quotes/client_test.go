package quotes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/niveshlabs/folio/internal/domain"
)

func newTestServer(t *testing.T, quotes map[string]quoteResponse) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "IN", r.URL.Query().Get("region"))

		parts := strings.Split(r.URL.Path, "/")
		symbol := parts[len(parts)-1]
		q, ok := quotes[symbol]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(q)
	}))
}

func TestFetchMany_Success(t *testing.T) {
	server := newTestServer(t, map[string]quoteResponse{
		"RELIANCE.NS": {Symbol: "RELIANCE.NS", Close: 2200, PreviousClose: 2000, Volume: 1000},
		"TCS.NS":      {Symbol: "TCS.NS", Close: 3500, PreviousClose: 3500},
	})
	defer server.Close()

	client := NewClient(server.URL, "test-token", zerolog.Nop())
	result, err := client.FetchMany(context.Background(), []string{"NSE:RELIANCE", "NSE:TCS"})
	require.NoError(t, err)
	require.Len(t, result, 2)

	rel := result["NSE:RELIANCE"]
	assert.Equal(t, 2200.0, rel.Close)
	assert.Equal(t, 200.0, rel.Change)
	assert.InDelta(t, 10.0, rel.ChangePercent, 1e-9)

	// previousClose == close yields zero change
	tcs := result["NSE:TCS"]
	assert.Equal(t, 0.0, tcs.Change)
	assert.Equal(t, 0.0, tcs.ChangePercent)
}

func TestFetchMany_ZeroPreviousClose(t *testing.T) {
	server := newTestServer(t, map[string]quoteResponse{
		"NEWIPO.NS": {Symbol: "NEWIPO.NS", Close: 150},
	})
	defer server.Close()

	client := NewClient(server.URL, "test-token", zerolog.Nop())
	result, err := client.FetchMany(context.Background(), []string{"NSE:NEWIPO"})
	require.NoError(t, err)

	q := result["NSE:NEWIPO"]
	assert.Equal(t, 150.0, q.Close)
	assert.Equal(t, 0.0, q.ChangePercent)
}

func TestFetchMany_PartialFailure(t *testing.T) {
	// Only RELIANCE resolves; the others 404. The call still succeeds with
	// partial results.
	server := newTestServer(t, map[string]quoteResponse{
		"RELIANCE.NS": {Symbol: "RELIANCE.NS", Close: 2200, PreviousClose: 2000},
	})
	defer server.Close()

	client := NewClient(server.URL, "test-token", zerolog.Nop())
	result, err := client.FetchMany(context.Background(),
		[]string{"NSE:RELIANCE", "NSE:GHOST", "BSE:MISSING"})
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Contains(t, result, "NSE:RELIANCE")
}

func TestFetchMany_MissingAPIKey(t *testing.T) {
	client := NewClient("http://unused", "", zerolog.Nop())

	_, err := client.FetchMany(context.Background(), []string{"NSE:RELIANCE"})
	require.Error(t, err)

	var authErr *domain.AuthError
	assert.ErrorAs(t, err, &authErr)
}

func TestFetchMany_BoundedConcurrency(t *testing.T) {
	var inFlight, maxInFlight int64
	var mu sync.Mutex

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cur := atomic.AddInt64(&inFlight, 1)
		mu.Lock()
		if cur > maxInFlight {
			maxInFlight = cur
		}
		mu.Unlock()
		defer atomic.AddInt64(&inFlight, -1)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(quoteResponse{Close: 100, PreviousClose: 90})
	}))
	defer server.Close()

	symbols := make([]string, 17)
	for i := range symbols {
		symbols[i] = "NSE:SYM" + string(rune('A'+i))
	}

	client := NewClient(server.URL, "test-token", zerolog.Nop())
	result, err := client.FetchMany(context.Background(), symbols)
	require.NoError(t, err)
	assert.Len(t, result, 17)

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, maxInFlight, int64(batchSize))
}

func TestFeedSymbol(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"NSE:RELIANCE", "RELIANCE.NS"},
		{"BSE:RELIANCE", "RELIANCE.BO"},
		{"AAPL", "AAPL"},
		{"MCX:GOLD", "GOLD"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FeedSymbol(tt.in))
	}
}
