package distribution

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/guildpay/ledger-engine/internal/api"
	"github.com/guildpay/ledger-engine/internal/model"
	"github.com/guildpay/ledger-engine/internal/symbol"
)

// ProcessRequest is the JSON body for POST /distributions.
type ProcessRequest struct {
	Symbol         string          `json:"symbol"`
	AmountPerShare decimal.Decimal `json:"amount_per_share"`
	CutoffDate     string          `json:"cutoff_date"` // YYYY-MM-DD
}

// HandleProcess handles POST /api/v1/distributions
func (e *Engine) HandleProcess(w http.ResponseWriter, r *http.Request) {
	var req ProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	cutoff, err := time.Parse("2006-01-02", req.CutoffDate)
	if err != nil {
		api.WriteError(w, "cutoff_date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	// Holders opened any time during the cutoff day are eligible.
	cutoff = cutoff.Add(24*time.Hour - time.Nanosecond)

	event, err := e.Process(r.Context(), req.Symbol, req.AmountPerShare, cutoff)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrInvalidAmount) || errors.Is(err, symbol.ErrInvalidSymbol) {
			status = http.StatusBadRequest
		}
		api.WriteError(w, err.Error(), status)
		return
	}
	api.WriteJSON(w, http.StatusOK, event)
}

// HandleList handles GET /api/v1/distributions
func (e *Engine) HandleList(w http.ResponseWriter, r *http.Request) {
	events, err := e.List(r.Context())
	if err != nil {
		api.WriteError(w, "failed to list distributions", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []model.DistributionEvent{}
	}
	api.WriteJSON(w, http.StatusOK, events)
}
