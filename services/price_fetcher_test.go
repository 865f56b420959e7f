package services

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPPriceFetcherFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		fmt.Fprint(w, `[{"id":"copper-1","price":3.5}]`)
	}))
	defer server.Close()

	fetcher := NewHTTPPriceFetcher(server.URL, time.Second)
	assert.Equal(t, server.URL, fetcher.URL())

	body, err := fetcher.Fetch(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"copper-1","price":3.5}]`, string(body))
}

func TestHTTPPriceFetcherStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := NewHTTPPriceFetcher(server.URL, time.Second).Fetch(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUpstreamStatus))
	assert.Contains(t, err.Error(), "429")
}

func TestHTTPPriceFetcherTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	start := time.Now()
	_, err := NewHTTPPriceFetcher(server.URL, 100*time.Millisecond).Fetch(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNetwork))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestHTTPPriceFetcherUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := NewHTTPPriceFetcher(url, time.Second).Fetch(context.Background())
	assert.True(t, errors.Is(err, ErrNetwork))
}
