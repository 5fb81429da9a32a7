package distribution_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/guildpay/ledger-engine/internal/distribution"
	"github.com/guildpay/ledger-engine/internal/model"
)

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

func TestHandleProcess_CutoffCoversTheWholeDay(t *testing.T) {
	eng, posEng, svc, _, _ := newTestEngines(t)
	ctx := context.Background()

	// Opened late in the cutoff day, still eligible.
	now := time.Date(2025, 6, 1, 23, 30, 0, 0, time.UTC)
	svc.SetNow(func() time.Time { return now })
	posEng.Buy(ctx, "alice", "ACME", d(10), d(1), d(1))

	r := chi.NewRouter()
	r.Post("/api/v1/distributions", eng.HandleProcess)

	w := doJSON(t, r, "POST", "/api/v1/distributions", distribution.ProcessRequest{
		Symbol: "ACME", AmountPerShare: d(1), CutoffDate: "2025-06-01",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var event model.DistributionEvent
	json.Unmarshal(w.Body.Bytes(), &event)
	if event.HoldersPaid != 1 {
		t.Errorf("a same-day opener is eligible, got %d paid", event.HoldersPaid)
	}
}

func TestHandleProcess_BadDateIs400(t *testing.T) {
	eng, _, _, _, _ := newTestEngines(t)

	r := chi.NewRouter()
	r.Post("/api/v1/distributions", eng.HandleProcess)

	w := doJSON(t, r, "POST", "/api/v1/distributions", distribution.ProcessRequest{
		Symbol: "ACME", AmountPerShare: d(1), CutoffDate: "June 1st",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandleProcess_InvalidAmountIs400(t *testing.T) {
	eng, _, _, _, _ := newTestEngines(t)

	r := chi.NewRouter()
	r.Post("/api/v1/distributions", eng.HandleProcess)

	w := doJSON(t, r, "POST", "/api/v1/distributions", distribution.ProcessRequest{
		Symbol: "ACME", AmountPerShare: d(-1), CutoffDate: "2025-06-01",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandleList_EmptyIsEmptyArray(t *testing.T) {
	eng, _, _, _, _ := newTestEngines(t)

	r := chi.NewRouter()
	r.Get("/api/v1/distributions", eng.HandleList)

	req := httptest.NewRequest("GET", "/api/v1/distributions", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if body := bytes.TrimSpace(w.Body.Bytes()); string(body) != "[]" {
		t.Errorf("expected [], got %s", body)
	}
}
