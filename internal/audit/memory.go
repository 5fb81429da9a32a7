package audit

import (
	"context"
	"sync"
	"time"

	"github.com/guildpay/ledger-engine/internal/model"
)

// MemoryLog keeps entries in a slice. Used for testing; FailAppend injects
// append faults to exercise the best-effort logging contract.
type MemoryLog struct {
	mu      sync.Mutex
	entries []model.LedgerEntry

	FailAppend error
}

// NewMemoryLog creates an empty in-memory audit log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

func (l *MemoryLog) Append(_ context.Context, entry *model.LedgerEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.FailAppend != nil {
		return l.FailAppend
	}
	l.entries = append(l.entries, *entry)
	return nil
}

func (l *MemoryLog) ByAccount(_ context.Context, accountID string, f Filter) ([]model.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []model.LedgerEntry
	for i := range l.entries {
		e := l.entries[i]
		e.Normalize()
		if e.AccountID == accountID && f.matches(&e) {
			out = append(out, e)
		}
	}
	return applyLimit(out, f.Limit), nil
}

func (l *MemoryLog) ByTimeRange(_ context.Context, from, to time.Time, f Filter) ([]model.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []model.LedgerEntry
	for i := range l.entries {
		e := l.entries[i]
		e.Normalize()
		if e.Timestamp.Before(from) || !e.Timestamp.Before(to) {
			continue
		}
		if f.matches(&e) {
			out = append(out, e)
		}
	}
	return applyLimit(out, f.Limit), nil
}

// All returns a copy of every entry in append order.
func (l *MemoryLog) All() []model.LedgerEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]model.LedgerEntry, len(l.entries))
	copy(out, l.entries)
	return out
}
