// Package audit is the append-only record of every balance-affecting
// operation. The log is independent of the account snapshot: appends are
// best-effort from the caller's perspective and never roll back the
// mutation that triggered them.
package audit

import (
	"context"
	"time"

	"github.com/guildpay/ledger-engine/internal/model"
)

// Filter narrows query results. Zero values match everything.
type Filter struct {
	Kind     string
	Category model.Category
	Limit    int // 0 = unlimited
}

func (f Filter) matches(e *model.LedgerEntry) bool {
	if f.Kind != "" && e.Kind != f.Kind {
		return false
	}
	if f.Category != "" && e.Category != f.Category {
		return false
	}
	return true
}

// Log is the append-only audit store. Entries are never updated or deleted.
type Log interface {
	// Append records one entry. Failures are reported so the caller can
	// log them, but the associated balance mutation has already committed.
	Append(ctx context.Context, entry *model.LedgerEntry) error

	// ByAccount returns entries for one account in append order.
	ByAccount(ctx context.Context, accountID string, f Filter) ([]model.LedgerEntry, error)

	// ByTimeRange returns entries with from <= timestamp < to.
	ByTimeRange(ctx context.Context, from, to time.Time, f Filter) ([]model.LedgerEntry, error)
}

func applyLimit(entries []model.LedgerEntry, limit int) []model.LedgerEntry {
	if limit > 0 && len(entries) > limit {
		return entries[len(entries)-limit:]
	}
	return entries
}
