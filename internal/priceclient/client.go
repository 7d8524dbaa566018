package priceclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"time"
)

// cacheTTL is how long a fetched price horizon is considered fresh
// (spec.md §5 Timeouts: "cached for 15 minutes").
const cacheTTL = 15 * time.Minute

// requestTimeout and maxRetries follow spec.md §5: "10s total per
// request, retried at most twice with jittered backoff".
const (
	requestTimeout = 10 * time.Second
	maxRetries     = 2
)

// Client fetches and caches a dynamic price horizon over HTTP,
// grounded on the teacher's entsoe.APIClient request/timeout shape
// (context.WithTimeout per call, a configurable endpoint URL).
type Client struct {
	httpClient *http.Client
	endpoint   string
	logger     *log.Logger

	cached    []HourlyPrice
	fetchedAt time.Time
}

// NewClient returns a Client fetching from endpoint.
func NewClient(endpoint string, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Default()
	}
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		endpoint:   endpoint,
		logger:     logger,
	}
}

// priceDocument is the wire shape expected from the endpoint: a flat
// array of {hour, price} entries covering at least the next 24 hours.
type priceDocument struct {
	Prices []struct {
		Hour  time.Time `json:"hour"`
		Price float64   `json:"price"`
	} `json:"prices"`
}

// Prices returns the cached horizon if it is still fresh, otherwise
// fetches a new one. A fetch failure with a still-usable (possibly
// stale) cache logs a warning and returns the stale data rather than
// failing the tick.
func (c *Client) Prices(ctx context.Context, now time.Time) ([]HourlyPrice, error) {
	if len(c.cached) > 0 && now.Sub(c.fetchedAt) < cacheTTL {
		return c.cached, nil
	}

	fresh, err := c.fetchWithRetry(ctx)
	if err != nil {
		if len(c.cached) > 0 {
			c.logger.Printf("[PRICE] fetch failed, serving stale cache: %v", err)
			return c.cached, nil
		}
		return nil, err
	}

	c.cached = fresh
	c.fetchedAt = now
	return fresh, nil
}

func (c *Client) fetchWithRetry(ctx context.Context) ([]HourlyPrice, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		prices, err := c.fetchOnce(ctx)
		if err == nil {
			return prices, nil
		}
		lastErr = err
		if attempt < maxRetries {
			sleep(jitteredBackoff(attempt))
		}
	}
	return nil, fmt.Errorf("priceclient: fetch failed after %d attempts: %w", maxRetries+1, lastErr)
}

func (c *Client) fetchOnce(ctx context.Context) ([]HourlyPrice, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("priceclient: build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("priceclient: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("priceclient: unexpected status %d", resp.StatusCode)
	}

	var doc priceDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("priceclient: decode response: %w", err)
	}

	out := make([]HourlyPrice, len(doc.Prices))
	for i, p := range doc.Prices {
		out[i] = HourlyPrice{Hour: p.Hour, Price: p.Price}
	}
	return out, nil
}

// sleep is a package var so tests can stub it out without real
// delays.
var sleep = time.Sleep

func jitteredBackoff(attempt int) time.Duration {
	base := time.Duration(1<<uint(attempt)) * time.Second
	jitter := time.Duration(rand.Int63n(int64(base) / 2))
	return base + jitter
}
