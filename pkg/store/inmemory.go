package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/Protocol-Lattice/go-session/pkg/transcript"
)

// InMemoryStore keeps transcripts in process memory. Records round-trip
// through JSON so callers never share mutable state with the store.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string][]byte
}

// NewInMemoryStore builds an empty in-process store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string][]byte)}
}

var _ Store = (*InMemoryStore)(nil)

func (s *InMemoryStore) Save(_ context.Context, id string, t *transcript.Transcript) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[id] = data
	return nil
}

func (s *InMemoryStore) Load(_ context.Context, id string) (*transcript.Transcript, error) {
	s.mu.RLock()
	data, ok := s.records[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	t := transcript.New()
	if err := json.Unmarshal(data, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *InMemoryStore) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *InMemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return ErrNotFound
	}
	delete(s.records, id)
	return nil
}
