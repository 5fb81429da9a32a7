package position

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/guildpay/ledger-engine/internal/api"
	"github.com/guildpay/ledger-engine/internal/ledger"
	"github.com/guildpay/ledger-engine/internal/model"
	"github.com/guildpay/ledger-engine/internal/symbol"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidShares),
		errors.Is(err, ErrInvalidPrice),
		errors.Is(err, ErrInvalidLeverage),
		errors.Is(err, symbol.ErrInvalidSymbol):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotOwned):
		return http.StatusNotFound
	case errors.Is(err, ErrInsufficientShares),
		errors.Is(err, ErrLeverageMismatch),
		errors.Is(err, ledger.ErrInsufficientFunds):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// BuyRequest is the JSON body for POST /positions/buy.
type BuyRequest struct {
	AccountID string          `json:"account_id"`
	Symbol    string          `json:"symbol"`
	Shares    decimal.Decimal `json:"shares"`
	Price     decimal.Decimal `json:"price"`
	Leverage  decimal.Decimal `json:"leverage"`
}

// HandleBuy handles POST /api/v1/positions/buy
func (e *Engine) HandleBuy(w http.ResponseWriter, r *http.Request) {
	var req BuyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.AccountID == "" {
		api.WriteError(w, "account_id is required", http.StatusBadRequest)
		return
	}
	if req.Leverage.IsZero() {
		req.Leverage = decimal.NewFromInt(1) // unleveraged by default
	}

	result, err := e.Buy(r.Context(), req.AccountID, req.Symbol, req.Shares, req.Price, req.Leverage)
	if err != nil {
		api.WriteError(w, err.Error(), statusFor(err))
		return
	}
	api.WriteJSON(w, http.StatusOK, result)
}

// SellRequest is the JSON body for POST /positions/sell.
type SellRequest struct {
	AccountID string          `json:"account_id"`
	Symbol    string          `json:"symbol"`
	Shares    decimal.Decimal `json:"shares"`
	Price     decimal.Decimal `json:"price"` // omit to use the price feed
}

// HandleSell handles POST /api/v1/positions/sell
func (e *Engine) HandleSell(w http.ResponseWriter, r *http.Request) {
	var req SellRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.AccountID == "" {
		api.WriteError(w, "account_id is required", http.StatusBadRequest)
		return
	}

	price := req.Price
	if price.IsZero() {
		sym, err := symbol.Normalize(req.Symbol)
		if err != nil {
			api.WriteError(w, err.Error(), http.StatusBadRequest)
			return
		}
		current, ok, err := e.prices.Price(r.Context(), sym)
		if err != nil {
			api.WriteError(w, "price lookup failed", http.StatusBadGateway)
			return
		}
		if !ok {
			api.WriteError(w, "no current price for "+sym, http.StatusConflict)
			return
		}
		price = current
	}

	result, err := e.Sell(r.Context(), req.AccountID, req.Symbol, req.Shares, price)
	if err != nil {
		api.WriteError(w, err.Error(), statusFor(err))
		return
	}
	api.WriteJSON(w, http.StatusOK, result)
}

// HandlePortfolio handles GET /api/v1/accounts/{accountID}/portfolio
func (e *Engine) HandlePortfolio(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	portfolio := e.Portfolio(r.Context(), accountID)
	if portfolio == nil {
		portfolio = map[string]*model.Position{}
	}
	api.WriteJSON(w, http.StatusOK, portfolio)
}

// HandlePortfolioValue handles GET /api/v1/accounts/{accountID}/portfolio/value
// The liquidation pass runs before valuation.
func (e *Engine) HandlePortfolioValue(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	report, err := e.PortfolioValue(r.Context(), accountID)
	if err != nil {
		api.WriteError(w, "portfolio valuation failed", http.StatusBadGateway)
		return
	}
	api.WriteJSON(w, http.StatusOK, report)
}

// LiquidateRequest optionally supplies prices; when absent the engine's
// price feed is consulted for every held symbol.
type LiquidateRequest struct {
	Prices map[string]decimal.Decimal `json:"prices"`
}

// HandleLiquidate handles POST /api/v1/accounts/{accountID}/liquidate
func (e *Engine) HandleLiquidate(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	var req LiquidateRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			api.WriteError(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}

	prices := req.Prices
	if prices == nil {
		held := e.Portfolio(r.Context(), accountID)
		symbols := make([]string, 0, len(held))
		for sym := range held {
			symbols = append(symbols, sym)
		}
		fetched, err := e.prices.Prices(r.Context(), symbols)
		if err != nil {
			api.WriteError(w, "price lookup failed", http.StatusBadGateway)
			return
		}
		prices = fetched
	}

	liquidated, err := e.CheckAndLiquidate(r.Context(), accountID, prices)
	if err != nil {
		api.WriteError(w, "liquidation failed", http.StatusInternalServerError)
		return
	}
	if liquidated == nil {
		liquidated = []string{}
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"liquidated": liquidated})
}
