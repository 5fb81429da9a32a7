package distribution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/guildpay/ledger-engine/internal/model"
)

// EventStore persists processed distribution events keyed by their
// idempotency key.
type EventStore interface {
	// Get returns the processed event for a key, if any.
	Get(ctx context.Context, key string) (*model.DistributionEvent, bool, error)

	// Record marks a key processed with its event.
	Record(ctx context.Context, key string, event *model.DistributionEvent) error

	// List returns all processed events, newest first.
	List(ctx context.Context) ([]model.DistributionEvent, error)
}

// FileEventStore keeps processed events in one JSON document, written with
// the same temp-file + rename discipline as the account snapshot.
type FileEventStore struct {
	path string
	mu   sync.Mutex
}

// NewFileEventStore creates an event store backed by the document at path.
func NewFileEventStore(path string) *FileEventStore {
	return &FileEventStore{path: path}
}

func (s *FileEventStore) load() map[string]*model.DistributionEvent {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("distribution events unreadable, starting empty", "path", s.path, "err", err)
		}
		return make(map[string]*model.DistributionEvent)
	}

	events := make(map[string]*model.DistributionEvent)
	if err := json.Unmarshal(data, &events); err != nil {
		slog.Warn("distribution events corrupt, starting empty", "path", s.path, "err", err)
		return make(map[string]*model.DistributionEvent)
	}
	return events
}

func (s *FileEventStore) Get(_ context.Context, key string) (*model.DistributionEvent, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.load()[key]
	return event, ok, nil
}

func (s *FileEventStore) Record(_ context.Context, key string, event *model.DistributionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := s.load()
	events[key] = event

	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return fmt.Errorf("encode distribution events: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create events dir: %w", err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write distribution events: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("commit distribution events: %w", err)
	}
	return nil
}

func (s *FileEventStore) List(_ context.Context) ([]model.DistributionEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := s.load()
	out := make([]model.DistributionEvent, 0, len(events))
	for _, event := range events {
		out = append(out, *event)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ProcessedAt.After(out[j].ProcessedAt)
	})
	return out, nil
}

// MemoryEventStore is the test implementation. FailRecord injects faults.
type MemoryEventStore struct {
	mu     sync.Mutex
	events map[string]*model.DistributionEvent

	FailRecord error
}

// NewMemoryEventStore creates an empty in-memory event store.
func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{events: make(map[string]*model.DistributionEvent)}
}

func (s *MemoryEventStore) Get(_ context.Context, key string) (*model.DistributionEvent, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.events[key]
	return event, ok, nil
}

func (s *MemoryEventStore) Record(_ context.Context, key string, event *model.DistributionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailRecord != nil {
		return s.FailRecord
	}
	s.events[key] = event
	return nil
}

func (s *MemoryEventStore) List(_ context.Context) ([]model.DistributionEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.DistributionEvent, 0, len(s.events))
	for _, event := range s.events {
		out = append(out, *event)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ProcessedAt.After(out[j].ProcessedAt)
	})
	return out, nil
}
