package store

import (
	"context"
	"sync"

	"github.com/authfront/authfront/internal/log"
	"github.com/authfront/authfront/internal/session"
)

// Ensure MemoryStore implements the Store interface
var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps the session slot in process memory. It is the default
// backend and the local cache in front of remote backends.
type MemoryStore struct {
	mu          sync.RWMutex
	rec         *session.Session
	bearer      string
	subscribers map[int]chan Event
	nextSubID   int
}

// NewMemoryStore creates an empty in-memory session store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		subscribers: make(map[int]chan Event),
	}
}

// Save replaces the stored record and notifies subscribers
func (s *MemoryStore) Save(_ context.Context, rec *session.Session) error {
	s.mu.Lock()
	s.rec = rec
	s.bearer = rec.AccessToken
	s.mu.Unlock()

	s.publish(Event{Authenticated: true, Identity: session.IdentityOf(rec)})
	return nil
}

// Load returns the stored record, or nil when none is stored
func (s *MemoryStore) Load(_ context.Context) (*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rec, nil
}

// BearerToken returns the raw access token, or "" when unauthenticated
func (s *MemoryStore) BearerToken(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bearer, nil
}

// Clear removes the record and notifies subscribers
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	s.rec = nil
	s.bearer = ""
	s.mu.Unlock()

	s.publish(Event{Authenticated: false})
	return nil
}

// Subscribe registers a change listener
func (s *MemoryStore) Subscribe() (<-chan Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSubID
	s.nextSubID++
	ch := make(chan Event, 16)
	s.subscribers[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(sub)
		}
	}
	return ch, cancel
}

// publish delivers an event to every subscriber without blocking the
// writer; a subscriber that has fallen 16 events behind misses one
func (s *MemoryStore) publish(ev Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for id, ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
			log.LogWarnWithFields("store", "Dropping change event for slow subscriber", map[string]any{
				"subscriber": id,
			})
		}
	}
}
