package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

// HTTPSource fetches prices from an external quote API:
// GET {base}/quote?symbol=SYM → {"symbol": "SYM", "price": "12.34"}.
// A 404 means the instrument is unknown, which is a valid answer.
type HTTPSource struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSource creates a source against the given base URL.
func NewHTTPSource(baseURL string) *HTTPSource {
	return &HTTPSource{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type quoteResponse struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
}

func (s *HTTPSource) Price(ctx context.Context, symbol string) (decimal.Decimal, bool, error) {
	endpoint := fmt.Sprintf("%s/quote?symbol=%s", s.baseURL, url.QueryEscape(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, false, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("fetch quote for %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return decimal.Zero, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, false, fmt.Errorf("quote API returned %d for %s", resp.StatusCode, symbol)
	}

	var quote quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&quote); err != nil {
		return decimal.Zero, false, fmt.Errorf("decode quote for %s: %w", symbol, err)
	}
	return quote.Price, true, nil
}

func (s *HTTPSource) Prices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(symbols))
	for _, sym := range symbols {
		price, ok, err := s.Price(ctx, sym)
		if err != nil {
			return nil, err
		}
		if ok {
			out[sym] = price
		}
	}
	return out, nil
}
