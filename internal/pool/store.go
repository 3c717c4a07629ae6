package pool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"daily_digest/internal/domain"
)

// Store persists a Snapshot as a single JSON document. Writes go to a
// temp file first and land with an atomic rename, so a crash mid-write
// leaves the previous snapshot intact. Cross-process exclusion is the
// caller's job; Store only serializes goroutines within one process.
type Store struct {
	path   string
	logger *slog.Logger

	mu sync.Mutex
}

func NewStore(path string, logger *slog.Logger) *Store {
	return &Store{path: path, logger: logger}
}

// Load reads the current snapshot. A missing file is an empty state,
// not an error; anything else surfaces as *domain.PersistenceError.
func (s *Store) Load(ctx context.Context) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx)
}

// Update applies fn to the current snapshot and persists the result.
// If fn returns an error the snapshot on disk is left untouched.
func (s *Store) Update(ctx context.Context, fn func(*Snapshot) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.loadLocked(ctx)
	if err != nil {
		return err
	}
	if err := fn(snap); err != nil {
		return err
	}
	return s.writeLocked(snap)
}

func (s *Store) loadLocked(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Debug("pool snapshot missing, starting empty", "path", s.path)
		return NewSnapshot(), nil
	}
	if err != nil {
		return nil, &domain.PersistenceError{Op: "read", Path: s.path, Err: err}
	}

	snap := NewSnapshot()
	if err := json.Unmarshal(data, snap); err != nil {
		return nil, &domain.PersistenceError{Op: "decode", Path: s.path, Err: err}
	}
	if snap.Candidates == nil {
		snap.Candidates = make(map[string][]domain.ArticleRecord)
	}
	return snap, nil
}

func (s *Store) writeLocked(snap *Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return &domain.PersistenceError{Op: "encode", Path: s.path, Err: err}
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return &domain.PersistenceError{Op: "write", Path: s.path, Err: err}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return &domain.PersistenceError{Op: "write", Path: tmp, Err: err}
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return &domain.PersistenceError{Op: "write", Path: s.path, Err: fmt.Errorf("rename: %w", err)}
	}
	return nil
}
