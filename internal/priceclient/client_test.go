package priceclient

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func silentLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestClientPricesFetchesAndCaches(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		doc := map[string]any{
			"prices": []map[string]any{
				{"hour": time.Unix(0, 0).UTC().Format(time.RFC3339), "price": 12.5},
			},
		}
		json.NewEncoder(w).Encode(doc)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, silentLogger())
	now := time.Unix(0, 0).UTC()

	prices, err := c.Prices(context.Background(), now)
	if err != nil {
		t.Fatalf("Prices() error = %v", err)
	}
	if len(prices) != 1 || prices[0].Price != 12.5 {
		t.Errorf("prices = %+v, want one entry at 12.5", prices)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}

	// Second call within the cache TTL must not hit the server again.
	_, err = c.Prices(context.Background(), now.Add(time.Minute))
	if err != nil {
		t.Fatalf("Prices() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (cached)", calls)
	}

	// Past the TTL, it fetches again.
	_, err = c.Prices(context.Background(), now.Add(16*time.Minute))
	if err != nil {
		t.Fatalf("Prices() error = %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2 (cache expired)", calls)
	}
}

func TestClientPricesServesStaleCacheOnFetchFailure(t *testing.T) {
	fail := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		doc := map[string]any{
			"prices": []map[string]any{
				{"hour": time.Unix(0, 0).UTC().Format(time.RFC3339), "price": 9.0},
			},
		}
		json.NewEncoder(w).Encode(doc)
	}))
	defer srv.Close()

	orig := sleep
	sleep = func(time.Duration) {}
	defer func() { sleep = orig }()

	c := NewClient(srv.URL, silentLogger())
	now := time.Unix(0, 0).UTC()

	if _, err := c.Prices(context.Background(), now); err != nil {
		t.Fatalf("Prices() error = %v", err)
	}

	fail = true
	prices, err := c.Prices(context.Background(), now.Add(16*time.Minute))
	if err != nil {
		t.Fatalf("Prices() error = %v, want stale cache returned instead", err)
	}
	if len(prices) != 1 || prices[0].Price != 9.0 {
		t.Errorf("prices = %+v, want stale cached value", prices)
	}
}
