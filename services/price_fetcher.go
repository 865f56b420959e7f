package services

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	log "github.com/sirupsen/logrus"
)

// maxResponseBytes caps how much of the pricing response is read
const maxResponseBytes = 8 << 20

// HTTPPriceFetcher performs the single GET of a refresh cycle
type HTTPPriceFetcher struct {
	url    string
	client *http.Client
}

// NewHTTPPriceFetcher creates a fetcher for url with a bounded request timeout
func NewHTTPPriceFetcher(url string, timeout time.Duration) *HTTPPriceFetcher {
	return &HTTPPriceFetcher{
		url: url,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// URL returns the configured endpoint
func (f *HTTPPriceFetcher) URL() string {
	return f.url
}

// Fetch issues one GET and returns the raw body. There are no retries; the
// next scheduled or manual cycle is the retry.
func (f *HTTPPriceFetcher) Fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		log.WithError(err).WithField("url", f.url).Warn("Pricing API request failed")
		return nil, errors.Mark(errors.Wrap(err, "failed to fetch prices"), ErrNetwork)
	}
	defer resp.Body.Close()

	log.WithFields(log.Fields{
		"status":   resp.StatusCode,
		"duration": time.Since(start).String(),
	}).Debug("Pricing API response")

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "failed to read response"), ErrNetwork)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Wrapf(ErrUpstreamStatus, "status %d: %s", resp.StatusCode, preview(body))
	}

	return body, nil
}

// preview trims a body for log and error messages
func preview(body []byte) string {
	const limit = 200
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
