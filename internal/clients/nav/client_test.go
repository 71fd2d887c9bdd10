package nav

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/niveshlabs/folio/internal/domain"
	"github.com/niveshlabs/folio/internal/pricecache"
)

const navBody = `{
	"meta": {"scheme_name": "Parag Parikh Flexi Cap Fund"},
	"data": [
		{"date": "28-08-2026", "nav": "87.4210"},
		{"date": "27-08-2026", "nav": "86.9001"}
	]
}`

func TestCurrentNAV_FetchesLatestEntry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/mf/122639", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(navBody))
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, zerolog.Nop())

	nav, err := client.CurrentNAV(context.Background(), "122639")
	require.NoError(t, err)
	assert.InDelta(t, 87.4210, nav, 1e-9)
}

func TestCurrentNAV_NameResolution(t *testing.T) {
	var requestedPath atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestedPath.Store(r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(navBody))
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, zerolog.Nop())

	_, err := client.CurrentNAV(context.Background(), "Parag Parikh Flexi Cap Direct Growth")
	require.NoError(t, err)
	assert.Equal(t, "/mf/122639", requestedPath.Load())
}

func TestCurrentNAV_UnknownScheme(t *testing.T) {
	client := NewClient("http://unused", nil, zerolog.Nop())

	_, err := client.CurrentNAV(context.Background(), "Some Unknown Fund")
	require.Error(t, err)

	var notFound *domain.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestCurrentNAV_CacheHitSkipsFetch(t *testing.T) {
	var calls int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(navBody))
	}))
	defer server.Close()

	cache := pricecache.New(24 * time.Hour)
	client := NewClient(server.URL, cache, zerolog.Nop())

	_, err := client.CurrentNAV(context.Background(), "122639")
	require.NoError(t, err)
	_, err = client.CurrentNAV(context.Background(), "122639")
	require.NoError(t, err)

	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))
}

func TestCurrentNAV_StaleCacheOnFetchFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	cache := pricecache.New(time.Nanosecond) // everything expires immediately
	cache.Put("122639", 85.0, "nav_api")

	client := NewClient(server.URL, cache, zerolog.Nop())

	nav, err := client.CurrentNAV(context.Background(), "122639")
	require.NoError(t, err)
	assert.Equal(t, 85.0, nav)
}

func TestCurrentNAV_EmptyDataIsNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"meta": {"scheme_name": "Ghost Fund"}, "data": []}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, zerolog.Nop())

	_, err := client.CurrentNAV(context.Background(), "999999")
	require.Error(t, err)

	var notFound *domain.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}
