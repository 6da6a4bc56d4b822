package store

import (
	"context"
	"sync"

	"github.com/chronolab/chrono/pkg/types"
)

// MemoryStore is the in-process Store used when no persistence backend is
// configured. Runs do not survive a restart.
type MemoryStore struct {
	mu   sync.Mutex
	runs map[string]types.StoredRun
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]types.StoredRun)}
}

// GetByTopic implements Store.
func (s *MemoryStore) GetByTopic(_ context.Context, topic string) (*types.StoredRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[TopicKey(topic)]
	if !ok {
		return nil, nil
	}
	out := run
	out.Entries = append([]types.TimelineEntry(nil), run.Entries...)
	return &out, nil
}

// Upsert implements Store.
func (s *MemoryStore) Upsert(_ context.Context, run *types.StoredRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *run
	stored.Entries = append([]types.TimelineEntry(nil), run.Entries...)
	s.runs[TopicKey(run.Topic)] = stored
	return nil
}
