package ledger

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/guildpay/ledger-engine/internal/api"
	"github.com/guildpay/ledger-engine/internal/audit"
	"github.com/guildpay/ledger-engine/internal/model"
)

// statusFor maps ledger errors onto HTTP statuses: validation failures are
// 400, business-rule rejections 409.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrSameAccount):
		return http.StatusBadRequest
	case errors.Is(err, ErrInsufficientFunds), errors.Is(err, ErrAlreadyClaimed):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// BalanceResponse is returned from GET /accounts/{accountID}/balance.
type BalanceResponse struct {
	AccountID string          `json:"account_id"`
	Balance   decimal.Decimal `json:"balance"`
}

// HandleBalance handles GET /api/v1/accounts/{accountID}/balance
func (s *Service) HandleBalance(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	api.WriteJSON(w, http.StatusOK, BalanceResponse{
		AccountID: accountID,
		Balance:   s.Balance(r.Context(), accountID),
	})
}

// MutationRequest is the JSON body for credit and debit.
type MutationRequest struct {
	Amount   decimal.Decimal   `json:"amount"`
	Kind     string            `json:"kind"`     // defaults to "credit" / "debit"
	Category model.Category    `json:"category"` // defaults to "currency"
	Metadata map[string]string `json:"metadata"`
}

func (req *MutationRequest) normalize(defaultKind string) {
	if req.Kind == "" {
		req.Kind = defaultKind
	}
	if !req.Category.Valid() {
		req.Category = model.CategoryCurrency
	}
}

// HandleCredit handles POST /api/v1/accounts/{accountID}/credit
func (s *Service) HandleCredit(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	var req MutationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	req.normalize("credit")

	balance, err := s.Credit(r.Context(), accountID, req.Amount, req.Kind, req.Category, &TxnOpts{Metadata: req.Metadata})
	if err != nil {
		api.WriteError(w, err.Error(), statusFor(err))
		return
	}
	api.WriteJSON(w, http.StatusOK, BalanceResponse{AccountID: accountID, Balance: balance})
}

// HandleDebit handles POST /api/v1/accounts/{accountID}/debit
func (s *Service) HandleDebit(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	var req MutationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	req.normalize("debit")

	balance, err := s.Debit(r.Context(), accountID, req.Amount, req.Kind, req.Category, &TxnOpts{Metadata: req.Metadata})
	if err != nil {
		api.WriteError(w, err.Error(), statusFor(err))
		return
	}
	api.WriteJSON(w, http.StatusOK, BalanceResponse{AccountID: accountID, Balance: balance})
}

// TransferRequest is the JSON body for POST /transfer.
type TransferRequest struct {
	From   string          `json:"from"`
	To     string          `json:"to"`
	Amount decimal.Decimal `json:"amount"`
}

// HandleTransfer handles POST /api/v1/transfer
func (s *Service) HandleTransfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.From == "" || req.To == "" {
		api.WriteError(w, "from and to are required", http.StatusBadRequest)
		return
	}

	if err := s.Transfer(r.Context(), req.From, req.To, req.Amount); err != nil {
		api.WriteError(w, err.Error(), statusFor(err))
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ClaimRequest is the JSON body for bonus claims.
type ClaimRequest struct {
	Kind   string          `json:"kind"`
	Amount decimal.Decimal `json:"amount"`
}

// HandleClaim handles POST /api/v1/accounts/{accountID}/claim
func (s *Service) HandleClaim(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	var req ClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Kind == "" {
		req.Kind = "daily"
	}

	balance, err := s.ClaimBonus(r.Context(), accountID, req.Kind, req.Amount)
	if err != nil {
		api.WriteError(w, err.Error(), statusFor(err))
		return
	}
	api.WriteJSON(w, http.StatusOK, BalanceResponse{AccountID: accountID, Balance: balance})
}

// auditFilter builds a Filter from query parameters.
func auditFilter(r *http.Request) audit.Filter {
	f := audit.Filter{
		Kind:     r.URL.Query().Get("kind"),
		Category: model.Category(r.URL.Query().Get("category")),
	}
	if f.Category != "" && !f.Category.Valid() {
		f.Category = ""
	}
	return f
}

// HandleAuditByAccount handles GET /api/v1/accounts/{accountID}/ledger
func (s *Service) HandleAuditByAccount(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	entries, err := s.AuditByAccount(r.Context(), accountID, auditFilter(r))
	if err != nil {
		api.WriteError(w, "failed to query audit log", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []model.LedgerEntry{}
	}
	api.WriteJSON(w, http.StatusOK, entries)
}

// HandleAuditByTimeRange handles GET /api/v1/ledger?from=...&to=...
// Bounds are RFC 3339; an absent bound is unbounded.
func (s *Service) HandleAuditByTimeRange(w http.ResponseWriter, r *http.Request) {
	from, to := time.Time{}, s.now().Add(time.Second)
	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			api.WriteError(w, "invalid from timestamp", http.StatusBadRequest)
			return
		}
		from = parsed
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			api.WriteError(w, "invalid to timestamp", http.StatusBadRequest)
			return
		}
		to = parsed
	}

	entries, err := s.AuditByTimeRange(r.Context(), from, to, auditFilter(r))
	if err != nil {
		api.WriteError(w, "failed to query audit log", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []model.LedgerEntry{}
	}
	api.WriteJSON(w, http.StatusOK, entries)
}
