package distribution_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/guildpay/ledger-engine/internal/distribution"
	"github.com/guildpay/ledger-engine/internal/model"
)

func TestFileEventStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.json")
	st := distribution.NewFileEventStore(path)
	ctx := context.Background()

	key := model.DistributionKey("ACME", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), d(0.5))
	event := &model.DistributionEvent{
		ID:             "evt-1",
		Symbol:         "ACME",
		AmountPerShare: d(0.5),
		TotalPaid:      d(75),
		HoldersPaid:    2,
		ProcessedAt:    time.Now().UTC(),
	}

	if _, ok, _ := st.Get(ctx, key); ok {
		t.Fatal("key should not exist before recording")
	}
	if err := st.Record(ctx, key, event); err != nil {
		t.Fatalf("record failed: %v", err)
	}

	// A fresh store over the same file sees the event.
	st2 := distribution.NewFileEventStore(path)
	got, ok, err := st2.Get(ctx, key)
	if err != nil || !ok {
		t.Fatalf("expected recorded event, ok=%v err=%v", ok, err)
	}
	if got.ID != "evt-1" || got.HoldersPaid != 2 {
		t.Errorf("unexpected event: %+v", got)
	}
	if !got.TotalPaid.Equal(d(75)) {
		t.Errorf("expected total 75, got %s", got.TotalPaid)
	}
}

func TestFileEventStore_CorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.json")
	if err := os.WriteFile(path, []byte("{{{"), 0o644); err != nil {
		t.Fatal(err)
	}

	st := distribution.NewFileEventStore(path)
	if _, ok, err := st.Get(context.Background(), "any"); ok || err != nil {
		t.Errorf("corrupt file should read as empty, ok=%v err=%v", ok, err)
	}

	// And recording over it works.
	if err := st.Record(context.Background(), "k", &model.DistributionEvent{ID: "e"}); err != nil {
		t.Fatalf("record over corrupt file failed: %v", err)
	}
}
