package ledger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/guildpay/ledger-engine/internal/audit"
	"github.com/guildpay/ledger-engine/internal/ledger"
	"github.com/guildpay/ledger-engine/internal/model"
	"github.com/guildpay/ledger-engine/internal/store"
)

// newTestRouter mounts the ledger handlers the way cmd/server does.
func newTestRouter(t *testing.T) (*ledger.Service, chi.Router) {
	t.Helper()
	svc := ledger.NewService(context.Background(), store.NewMemoryStore(), audit.NewMemoryLog(), nil, d(1000))

	r := chi.NewRouter()
	r.Get("/api/v1/accounts/{accountID}/balance", svc.HandleBalance)
	r.Post("/api/v1/accounts/{accountID}/credit", svc.HandleCredit)
	r.Post("/api/v1/accounts/{accountID}/debit", svc.HandleDebit)
	r.Post("/api/v1/accounts/{accountID}/claim", svc.HandleClaim)
	r.Post("/api/v1/transfer", svc.HandleTransfer)
	r.Get("/api/v1/accounts/{accountID}/ledger", svc.HandleAuditByAccount)
	r.Get("/api/v1/ledger", svc.HandleAuditByTimeRange)
	return svc, r
}

func doJSON(t *testing.T, router chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandleBalance_NewAccount(t *testing.T) {
	_, router := newTestRouter(t)

	w := doJSON(t, router, "GET", "/api/v1/accounts/alice/balance", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp ledger.BalanceResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.AccountID != "alice" {
		t.Errorf("expected account_id=alice, got %s", resp.AccountID)
	}
	if !resp.Balance.Equal(d(1000)) {
		t.Errorf("expected balance 1000, got %s", resp.Balance)
	}
}

func TestHandleCredit_DefaultsKindAndCategory(t *testing.T) {
	svc, router := newTestRouter(t)

	w := doJSON(t, router, "POST", "/api/v1/accounts/alice/credit", ledger.MutationRequest{Amount: d(50)})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	entries, _ := svc.AuditByAccount(context.Background(), "alice", audit.Filter{})
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Kind != "credit" || entries[0].Category != model.CategoryCurrency {
		t.Errorf("expected default kind/category, got %s/%s", entries[0].Kind, entries[0].Category)
	}
}

func TestHandleDebit_InsufficientFundsIs409(t *testing.T) {
	_, router := newTestRouter(t)

	w := doJSON(t, router, "POST", "/api/v1/accounts/alice/debit", ledger.MutationRequest{Amount: d(5000)})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandleCredit_NegativeAmountIs400(t *testing.T) {
	_, router := newTestRouter(t)

	w := doJSON(t, router, "POST", "/api/v1/accounts/alice/credit", ledger.MutationRequest{Amount: d(-1)})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandleCredit_MalformedBodyIs400(t *testing.T) {
	_, router := newTestRouter(t)

	req := httptest.NewRequest("POST", "/api/v1/accounts/alice/credit", bytes.NewReader([]byte("{not json")))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandleTransfer_OK(t *testing.T) {
	svc, router := newTestRouter(t)

	w := doJSON(t, router, "POST", "/api/v1/transfer", ledger.TransferRequest{
		From: "alice", To: "bob", Amount: d(100),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if balance := svc.Balance(context.Background(), "bob"); !balance.Equal(d(1100)) {
		t.Errorf("expected bob=1100, got %s", balance)
	}
}

func TestHandleTransfer_MissingAccountsIs400(t *testing.T) {
	_, router := newTestRouter(t)

	w := doJSON(t, router, "POST", "/api/v1/transfer", ledger.TransferRequest{From: "alice", Amount: d(1)})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandleTransfer_SelfTransferIs400(t *testing.T) {
	_, router := newTestRouter(t)

	w := doJSON(t, router, "POST", "/api/v1/transfer", ledger.TransferRequest{
		From: "alice", To: "alice", Amount: d(1),
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandleClaim_SecondClaimIs409(t *testing.T) {
	_, router := newTestRouter(t)

	w := doJSON(t, router, "POST", "/api/v1/accounts/alice/claim", ledger.ClaimRequest{Amount: d(100)})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	w = doJSON(t, router, "POST", "/api/v1/accounts/alice/claim", ledger.ClaimRequest{Amount: d(100)})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 on same-day claim, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandleAuditByAccount_KindFilter(t *testing.T) {
	_, router := newTestRouter(t)

	doJSON(t, router, "POST", "/api/v1/accounts/alice/credit", ledger.MutationRequest{Amount: d(10)})
	doJSON(t, router, "POST", "/api/v1/accounts/alice/debit", ledger.MutationRequest{Amount: d(5)})

	w := doJSON(t, router, "GET", "/api/v1/accounts/alice/ledger?kind=debit", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var entries []model.LedgerEntry
	json.Unmarshal(w.Body.Bytes(), &entries)
	if len(entries) != 1 || entries[0].Kind != "debit" {
		t.Errorf("expected only the debit entry, got %+v", entries)
	}
}

func TestHandleAuditByTimeRange_BadTimestampIs400(t *testing.T) {
	_, router := newTestRouter(t)

	w := doJSON(t, router, "GET", "/api/v1/ledger?from=yesterday", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandleAuditByTimeRange_DefaultsToEverything(t *testing.T) {
	_, router := newTestRouter(t)

	doJSON(t, router, "POST", "/api/v1/accounts/alice/credit", ledger.MutationRequest{Amount: d(10)})

	w := doJSON(t, router, "GET", "/api/v1/ledger", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var entries []model.LedgerEntry
	json.Unmarshal(w.Body.Bytes(), &entries)
	if len(entries) != 1 {
		t.Errorf("expected 1 entry, got %d", len(entries))
	}
	if !entries[0].Amount.Equal(decimal.NewFromInt(10)) {
		t.Errorf("expected amount 10, got %s", entries[0].Amount)
	}
}
