package services

import (
	"context"
	"sync"

	"github.com/flashbots/tdesoracle/protocol"
)

// SessionStore persists finished session records.
type SessionStore interface {
	SaveSession(ctx context.Context, record *protocol.SessionRecord) error

	// ListSessions returns up to limit records, most recent first.
	ListSessions(ctx context.Context, limit int) ([]*protocol.SessionRecord, error)

	Close() error
}

// DefaultMemoryCapacity is the record count kept by NewInMemoryStore(0).
const DefaultMemoryCapacity = 1024

// InMemoryStore implements SessionStore for testing without a database. It
// keeps the most recent records up to its capacity.
type InMemoryStore struct {
	mu       sync.Mutex
	records  []*protocol.SessionRecord
	capacity int
}

// NewInMemoryStore creates an in-memory store. A capacity <= 0 selects
// DefaultMemoryCapacity.
func NewInMemoryStore(capacity int) *InMemoryStore {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &InMemoryStore{capacity: capacity}
}

// SaveSession stores a copy of record.
func (s *InMemoryStore) SaveSession(ctx context.Context, record *protocol.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := *record
	s.records = append(s.records, &r)
	if over := len(s.records) - s.capacity; over > 0 {
		s.records = append(s.records[:0:0], s.records[over:]...)
	}
	return nil
}

// ListSessions returns stored records, newest first.
func (s *InMemoryStore) ListSessions(ctx context.Context, limit int) ([]*protocol.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || limit > len(s.records) {
		limit = len(s.records)
	}
	out := make([]*protocol.SessionRecord, 0, limit)
	for i := len(s.records) - 1; i >= 0 && len(out) < limit; i-- {
		r := *s.records[i]
		out = append(out, &r)
	}
	return out, nil
}

func (s *InMemoryStore) Close() error {
	return nil
}
