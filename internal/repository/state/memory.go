package state

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is the in-process Store used by tests. It round-trips
// documents through JSON so serialization behaves exactly like the
// durable stores.
type MemoryStore struct {
	mu   sync.Mutex
	docs map[Kind][]byte

	// FailSaves makes every Save return an error, for exercising the
	// save-degrades-to-memory path.
	FailSaves bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: map[Kind][]byte{}}
}

func (s *MemoryStore) Load(_ context.Context, kind Kind, out any) bool {
	s.mu.Lock()
	b, ok := s.docs[kind]
	s.mu.Unlock()
	if !ok {
		return false
	}
	return decodeInto(b, out) == nil
}

func (s *MemoryStore) Save(_ context.Context, kind Kind, v any) error {
	if s.FailSaves {
		return fmt.Errorf("save disabled")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s snapshot: %w", kind, err)
	}
	s.mu.Lock()
	s.docs[kind] = b
	s.mu.Unlock()
	return nil
}

// Corrupt replaces a stored document with junk, for load-degradation
// tests.
func (s *MemoryStore) Corrupt(kind Kind) {
	s.mu.Lock()
	s.docs[kind] = []byte("{not json")
	s.mu.Unlock()
}
