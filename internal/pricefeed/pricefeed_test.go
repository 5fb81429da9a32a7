package pricefeed_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/guildpay/ledger-engine/internal/pricefeed"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// --- Static ---

func TestStatic_SetAndDelete(t *testing.T) {
	s := pricefeed.NewStatic(map[string]decimal.Decimal{"ACME": d(10)})
	ctx := context.Background()

	price, ok, err := s.Price(ctx, "ACME")
	if err != nil || !ok {
		t.Fatalf("expected a price, ok=%v err=%v", ok, err)
	}
	if !price.Equal(d(10)) {
		t.Errorf("expected 10, got %s", price)
	}

	s.Set("ACME", d(12))
	price, _, _ = s.Price(ctx, "ACME")
	if !price.Equal(d(12)) {
		t.Errorf("expected 12 after Set, got %s", price)
	}

	s.Delete("ACME")
	if _, ok, _ := s.Price(ctx, "ACME"); ok {
		t.Error("deleted symbol should be unpriced")
	}
}

func TestStatic_PricesOmitsUnknowns(t *testing.T) {
	s := pricefeed.NewStatic(map[string]decimal.Decimal{"ACME": d(10)})

	prices, err := s.Prices(context.Background(), []string{"ACME", "GHOST"})
	if err != nil {
		t.Fatalf("prices failed: %v", err)
	}
	if len(prices) != 1 {
		t.Fatalf("expected 1 price, got %d", len(prices))
	}
	if _, ok := prices["GHOST"]; ok {
		t.Error("unknown symbol must be omitted, not zero")
	}
}

// --- HTTP ---

func newQuoteServer(t *testing.T, table map[string]decimal.Decimal) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sym := r.URL.Query().Get("symbol")
		price, ok := table[sym]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"symbol":%q,"price":%q}`, sym, price.String())
	}))
}

func TestHTTPSource_Price(t *testing.T) {
	srv := newQuoteServer(t, map[string]decimal.Decimal{"ACME": d(12.5)})
	defer srv.Close()

	s := pricefeed.NewHTTPSource(srv.URL)
	price, ok, err := s.Price(context.Background(), "ACME")
	if err != nil || !ok {
		t.Fatalf("expected a price, ok=%v err=%v", ok, err)
	}
	if !price.Equal(d(12.5)) {
		t.Errorf("expected 12.5, got %s", price)
	}
}

func TestHTTPSource_UnknownSymbolIsAbsentNotError(t *testing.T) {
	srv := newQuoteServer(t, nil)
	defer srv.Close()

	s := pricefeed.NewHTTPSource(srv.URL)
	_, ok, err := s.Price(context.Background(), "GHOST")
	if err != nil {
		t.Fatalf("a 404 is a valid answer: %v", err)
	}
	if ok {
		t.Error("unknown symbol must report no price")
	}
}

func TestHTTPSource_ServerErrorPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := pricefeed.NewHTTPSource(srv.URL)
	if _, _, err := s.Price(context.Background(), "ACME"); err == nil {
		t.Error("expected an error on 500")
	}
}

func TestHTTPSource_PricesSkipsUnknowns(t *testing.T) {
	srv := newQuoteServer(t, map[string]decimal.Decimal{"ACME": d(10), "ZORP": d(3)})
	defer srv.Close()

	s := pricefeed.NewHTTPSource(srv.URL)
	prices, err := s.Prices(context.Background(), []string{"ACME", "GHOST", "ZORP"})
	if err != nil {
		t.Fatalf("prices failed: %v", err)
	}
	if len(prices) != 2 {
		t.Errorf("expected 2 prices, got %d", len(prices))
	}
}

// --- Cached ---

func newCachedSource(t *testing.T, primary pricefeed.Source, ttl time.Duration) (*pricefeed.Cached, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return pricefeed.NewCached(primary, rdb, ttl), mr
}

func TestCached_ReadThrough(t *testing.T) {
	primary := pricefeed.NewStatic(map[string]decimal.Decimal{"ACME": d(10)})
	cached, mr := newCachedSource(t, primary, time.Minute)
	ctx := context.Background()

	price, ok, err := cached.Price(ctx, "ACME")
	if err != nil || !ok {
		t.Fatalf("expected a price, ok=%v err=%v", ok, err)
	}
	if !price.Equal(d(10)) {
		t.Errorf("expected 10, got %s", price)
	}

	// The price is now cached: the primary can forget it.
	primary.Delete("ACME")
	price, ok, _ = cached.Price(ctx, "ACME")
	if !ok || !price.Equal(d(10)) {
		t.Errorf("expected the cached price, ok=%v price=%s", ok, price)
	}

	// After expiry the primary is authoritative again.
	mr.FastForward(2 * time.Minute)
	if _, ok, _ := cached.Price(ctx, "ACME"); ok {
		t.Error("expired cache with no primary price should report absent")
	}
}

func TestCached_UnpricedSymbolsAreNotCached(t *testing.T) {
	primary := pricefeed.NewStatic(nil)
	cached, _ := newCachedSource(t, primary, time.Minute)
	ctx := context.Background()

	if _, ok, _ := cached.Price(ctx, "ACME"); ok {
		t.Fatal("expected no price")
	}

	// Once the primary learns the price, the cache must not mask it.
	primary.Set("ACME", d(7))
	price, ok, _ := cached.Price(ctx, "ACME")
	if !ok || !price.Equal(d(7)) {
		t.Errorf("expected 7 from primary, ok=%v price=%s", ok, price)
	}
}

func TestCached_PricesMixesHitsAndMisses(t *testing.T) {
	primary := pricefeed.NewStatic(map[string]decimal.Decimal{"ACME": d(10), "ZORP": d(3)})
	cached, _ := newCachedSource(t, primary, time.Minute)
	ctx := context.Background()

	// Warm ACME only.
	cached.Price(ctx, "ACME")
	primary.Set("ACME", d(99)) // stale on purpose; cache should win

	prices, err := cached.Prices(ctx, []string{"ACME", "ZORP", "GHOST"})
	if err != nil {
		t.Fatalf("prices failed: %v", err)
	}
	if !prices["ACME"].Equal(d(10)) {
		t.Errorf("expected cached ACME=10, got %s", prices["ACME"])
	}
	if !prices["ZORP"].Equal(d(3)) {
		t.Errorf("expected primary ZORP=3, got %s", prices["ZORP"])
	}
	if _, ok := prices["GHOST"]; ok {
		t.Error("unknown symbol must be omitted")
	}
}

// Ensure Static and HTTPSource satisfy the interface the engines consume.
var (
	_ pricefeed.Source = (*pricefeed.Static)(nil)
	_ pricefeed.Source = (*pricefeed.HTTPSource)(nil)
	_ pricefeed.Source = (*pricefeed.Cached)(nil)
)
