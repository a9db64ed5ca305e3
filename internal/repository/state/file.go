package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

var _ Store = (*FileStore)(nil)

// FileStore keeps one JSON document per monitor kind under a state
// directory. Writes are whole-file overwrites via a temp file and
// rename, so a crash mid-write never leaves a truncated document.
type FileStore struct {
	dir string
	log *zap.Logger
}

func NewFileStore(dir string, log *zap.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return &FileStore{
		dir: dir,
		log: log.With(zap.String("component", "state.file")),
	}, nil
}

func (s *FileStore) path(kind Kind) string {
	return filepath.Join(s.dir, string(kind)+".json")
}

func (s *FileStore) Load(_ context.Context, kind Kind, out any) bool {
	b, err := os.ReadFile(s.path(kind))
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("state read failed, using defaults",
				zap.String("kind", string(kind)), zap.Error(err))
		}
		return false
	}
	if err := decodeInto(b, out); err != nil {
		s.log.Warn("state unparsable, using defaults",
			zap.String("kind", string(kind)), zap.Error(err))
		return false
	}
	return true
}

func (s *FileStore) Save(_ context.Context, kind Kind, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s snapshot: %w", kind, err)
	}
	tmp := s.path(kind) + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write %s snapshot: %w", kind, err)
	}
	if err := os.Rename(tmp, s.path(kind)); err != nil {
		return fmt.Errorf("commit %s snapshot: %w", kind, err)
	}
	return nil
}
