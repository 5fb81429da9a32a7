// Package pricefeed supplies current instrument prices to the position
// and liquidation engines. Absence of a price is a valid response, not an
// error: callers skip instruments they cannot price.
package pricefeed

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
)

// Source is the external market-data interface the engine consumes.
type Source interface {
	// Price returns the current price for one symbol. The bool reports
	// whether a price is known.
	Price(ctx context.Context, symbol string) (decimal.Decimal, bool, error)

	// Prices returns prices for the requested symbols, omitting unknowns.
	Prices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error)
}

// Static serves prices from a fixed in-memory table. Used in tests and as
// the fallback when no market-data endpoint is configured.
type Static struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
}

// NewStatic creates a static source, optionally seeded.
func NewStatic(seed map[string]decimal.Decimal) *Static {
	prices := make(map[string]decimal.Decimal, len(seed))
	for sym, p := range seed {
		prices[sym] = p
	}
	return &Static{prices: prices}
}

// Set inserts or replaces one price.
func (s *Static) Set(symbol string, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[symbol] = price
}

// Delete removes a price, making the symbol unpriced.
func (s *Static) Delete(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.prices, symbol)
}

func (s *Static) Price(_ context.Context, symbol string) (decimal.Decimal, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prices[symbol]
	return p, ok, nil
}

func (s *Static) Prices(_ context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]decimal.Decimal, len(symbols))
	for _, sym := range symbols {
		if p, ok := s.prices[sym]; ok {
			out[sym] = p
		}
	}
	return out, nil
}
