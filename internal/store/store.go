// Package store defines snapshot persistence for the account mapping.
// Implementations include a JSON document on disk (default), PostgreSQL,
// and in-memory (for testing).
package store

import (
	"context"

	"github.com/guildpay/ledger-engine/internal/model"
)

// Store persists the full account mapping as one snapshot. The ledger
// service owns the in-memory mapping and calls Save after every mutation;
// implementations must serialize concurrent saves so two operations on
// different accounts cannot interleave partial writes.
type Store interface {
	// Load returns the full account mapping. A missing or unreadable
	// snapshot degrades to an empty mapping where the implementation can
	// tell corruption from infrastructure failure.
	Load(ctx context.Context) (map[string]*model.Account, error)

	// Save durably writes the full mapping.
	Save(ctx context.Context, accounts map[string]*model.Account) error
}
