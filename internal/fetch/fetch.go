// Package fetch provides a blob-cache-aware HTTP client for clip bytes.
// Reads consult the blob cache first, so clips primed by an offline download
// are served without any network traffic; network fetches can be rate
// limited to avoid hammering the audio host during bulk operations.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"
)

// BlobReader is the read side of the URL-keyed blob cache.
type BlobReader interface {
	Match(url string) ([]byte, bool)
}

// Client fetches clip bytes, transparently served from the blob cache when
// primed.
type Client struct {
	http    *http.Client
	blobs   BlobReader
	limiter *rate.Limiter
}

// NewClient builds a fetcher. blobs may be nil (no cache layer);
// requestsPerSecond of zero disables rate limiting.
func NewClient(blobs BlobReader, requestsPerSecond float64) *Client {
	c := &Client{
		http:  &http.Client{Timeout: 30 * time.Second},
		blobs: blobs,
	}
	if requestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}
	return c
}

// Get returns the bytes for url, from the blob cache when present, else the
// network.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	if c.blobs != nil {
		if data, ok := c.blobs.Match(url); ok {
			log.Debug("clip served from blob cache", "url", url, "bytes", len(data))
			return data, nil
		}
	}
	return c.Fetch(ctx, url)
}

// Fetch always goes to the network, bypassing the blob cache.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: HTTP status %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body of %s: %w", url, err)
	}
	return data, nil
}
