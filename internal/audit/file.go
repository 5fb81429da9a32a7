package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/guildpay/ledger-engine/internal/model"
)

// FileLog appends entries as JSON lines to a single file. One line per
// entry keeps the store append-only on disk and lets readers skip lines
// they cannot decode instead of losing the whole log.
type FileLog struct {
	path string
	mu   sync.Mutex
}

// NewFileLog creates a JSON-lines audit log at path.
func NewFileLog(path string) *FileLog {
	return &FileLog{path: path}
}

func (l *FileLog) Append(_ context.Context, entry *model.LedgerEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode audit entry: %w", err)
	}

	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create audit dir: %w", err)
		}
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

func (l *FileLog) ByAccount(ctx context.Context, accountID string, f Filter) ([]model.LedgerEntry, error) {
	return l.scan(ctx, func(e *model.LedgerEntry) bool {
		return e.AccountID == accountID && f.matches(e)
	}, f.Limit)
}

func (l *FileLog) ByTimeRange(ctx context.Context, from, to time.Time, f Filter) ([]model.LedgerEntry, error) {
	return l.scan(ctx, func(e *model.LedgerEntry) bool {
		if e.Timestamp.Before(from) || !e.Timestamp.Before(to) {
			return false
		}
		return f.matches(e)
	}, f.Limit)
}

// scan reads the whole file, decoding defensively: lines written under an
// older schema get neutral defaults via Normalize, and lines that do not
// decode at all are skipped with a warning rather than failing the query.
func (l *FileLog) scan(_ context.Context, keep func(*model.LedgerEntry) bool, limit int) ([]model.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	var entries []model.LedgerEntry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var e model.LedgerEntry
		if err := json.Unmarshal(line, &e); err != nil {
			slog.Warn("skipping undecodable audit line", "path", l.path, "err", err)
			continue
		}
		e.Normalize()
		if keep(&e) {
			entries = append(entries, e)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}
	return applyLimit(entries, limit), nil
}

// Rotate renames the current log file with a timestamp suffix; the next
// append starts a fresh file. Rotated files are retained for archival.
func (l *FileLog) Rotate() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := os.Stat(l.path); os.IsNotExist(err) {
		return nil
	}
	rotated := fmt.Sprintf("%s.%s", l.path, time.Now().UTC().Format("20060102T150405"))
	if err := os.Rename(l.path, rotated); err != nil {
		return fmt.Errorf("rotate audit log: %w", err)
	}
	slog.Info("audit log rotated", "to", rotated)
	return nil
}
