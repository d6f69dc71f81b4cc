package factlog

import (
	"context"
	"iter"
	"sync"
)

// MemoryStore is an in-memory, thread-safe Store implementation. It is
// primarily useful for testing and for single-process deployments that do
// not require durability across restarts.
type MemoryStore struct {
	mu      sync.RWMutex
	flags   map[string]bool
	records [][]byte
}

// NewMemoryStore creates an empty MemoryStore: no flags set, no records.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{flags: make(map[string]bool)}
}

// Get implements FlagStore. Absent keys read as false.
func (s *MemoryStore) Get(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.flags[key], nil
}

// Set implements FlagStore.
func (s *MemoryStore) Set(_ context.Context, key string, value bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags[key] = value
	return nil
}

// Append implements SequenceStore.
func (s *MemoryStore) Append(_ context.Context, record []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, append([]byte(nil), record...))
	return nil
}

// snapshot returns the record slice as of now; records themselves are
// never mutated after append, so sharing the backing arrays is safe.
func (s *MemoryStore) snapshot() [][]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[:len(s.records):len(s.records)]
}

// Seq implements SequenceStore. Each range takes a fresh snapshot.
func (s *MemoryStore) Seq(_ context.Context) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		for _, rec := range s.snapshot() {
			if !yield(rec, nil) {
				return
			}
		}
	}
}

// SeqReverse implements SequenceStore.
func (s *MemoryStore) SeqReverse(_ context.Context) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		records := s.snapshot()
		for i := len(records) - 1; i >= 0; i-- {
			if !yield(records[i], nil) {
				return
			}
		}
	}
}

// Len implements SequenceStore.
func (s *MemoryStore) Len(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}
