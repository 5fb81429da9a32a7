package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/guildpay/ledger-engine/internal/model"
)

// snapshotVersion is written into every snapshot document so the layout can
// evolve without breaking older files.
const snapshotVersion = 1

type snapshotDoc struct {
	Version  int                       `json:"version"`
	Accounts map[string]*model.Account `json:"accounts"`
}

// FileStore persists the account mapping as a single JSON document.
// All writes go through one mutex and a temp-file + atomic-rename pair, so
// concurrent business logic on different accounts never produces two
// interleaved partial writes of the same file.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store backed by the JSON document at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the snapshot. A missing file is normal on first run and a
// corrupt one is logged and treated as "no data": both return an empty
// mapping, never an error into the caller's control flow.
func (s *FileStore) Load(_ context.Context) (map[string]*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("snapshot unreadable, starting empty", "path", s.path, "err", err)
		}
		return make(map[string]*model.Account), nil
	}

	var doc snapshotDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		slog.Warn("snapshot corrupt, starting empty", "path", s.path, "err", err)
		return make(map[string]*model.Account), nil
	}
	if doc.Accounts == nil {
		doc.Accounts = make(map[string]*model.Account)
	}
	// Fresh accounts persist without claims or portfolio (omitempty), so
	// the maps decode as nil and must be rebuilt before anyone writes.
	for _, acct := range doc.Accounts {
		if acct.LastClaims == nil {
			acct.LastClaims = make(map[string]time.Time)
		}
		if acct.Portfolio == nil {
			acct.Portfolio = make(map[string]*model.Position)
		}
	}
	return doc.Accounts, nil
}

// Save writes the full mapping, creating any needed directories.
func (s *FileStore) Save(_ context.Context, accounts map[string]*model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(snapshotDoc{
		Version:  snapshotVersion,
		Accounts: accounts,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot dir: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}
