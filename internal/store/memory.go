package store

import (
	"context"
	"sync"

	"github.com/guildpay/ledger-engine/internal/model"
)

// MemoryStore implements Store with an in-memory map. Used for testing and
// development. Not suitable for production (no persistence).
//
// FailLoad and FailSave inject faults so tests can exercise the
// degrade-and-log paths in the ledger service.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[string]*model.Account

	FailLoad error
	FailSave error

	saves int
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[string]*model.Account)}
}

func (s *MemoryStore) Load(_ context.Context) (map[string]*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailLoad != nil {
		return nil, s.FailLoad
	}
	return cloneAccounts(s.accounts), nil
}

func (s *MemoryStore) Save(_ context.Context, accounts map[string]*model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailSave != nil {
		return s.FailSave
	}
	s.accounts = cloneAccounts(accounts)
	s.saves++
	return nil
}

// Saves returns how many snapshots have been written.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func cloneAccounts(in map[string]*model.Account) map[string]*model.Account {
	out := make(map[string]*model.Account, len(in))
	for id, acct := range in {
		out[id] = acct.Clone()
	}
	return out
}
