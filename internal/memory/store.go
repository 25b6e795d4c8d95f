package memory

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Options bounds the session registry.  The zero value keeps every session
// for the lifetime of the process, which is also what happens when the
// chatbot runs with default configuration.
type Options struct {
	// MaxSessions caps the number of live sessions.  When the cap is hit the
	// least recently used session is dropped.  Zero means no cap.
	MaxSessions int

	// IdleTTL drops sessions that have not been resolved for this long.
	// Zero disables expiry.
	IdleTTL time.Duration

	// OnEvict, if set, is called with the session id and its turn count
	// whenever a session leaves the registry, including through Remove.
	OnEvict func(sessionID string, turns int)
}

// Store maps session identifiers to their Memory.  It is safe for
// concurrent use.
type Store struct {
	mu       sync.Mutex
	sessions *expirable.LRU[string, *Memory]
}

// NewStore constructs an empty registry.
func NewStore(opts Options) *Store {
	size := opts.MaxSessions
	if size < 0 {
		size = 0
	}
	ttl := opts.IdleTTL
	if ttl < 0 {
		ttl = 0
	}
	onEvict := opts.OnEvict
	return &Store{
		sessions: expirable.NewLRU[string, *Memory](size, func(id string, m *Memory) {
			if onEvict != nil {
				onEvict(id, m.Len())
			}
		}, ttl),
	}
}

// GetOrCreate returns the memory registered for sessionID, creating and
// registering an empty one if none exists.  Lookup and insertion happen
// under one lock so two concurrent first requests for the same id share a
// single Memory.
func (s *Store) GetOrCreate(sessionID string) *Memory {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.sessions.Get(sessionID); ok {
		// Re-adding refreshes the idle deadline.
		s.sessions.Add(sessionID, m)
		return m
	}
	m := newMemory(sessionID)
	s.sessions.Add(sessionID, m)
	return m
}

// Lookup returns the memory for sessionID without creating one and without
// touching its recency.
func (s *Store) Lookup(sessionID string) (*Memory, bool) {
	return s.sessions.Peek(sessionID)
}

// Remove drops a session.  It reports whether the session existed.
func (s *Store) Remove(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions.Remove(sessionID)
}

// Len returns the number of registered sessions.
func (s *Store) Len() int {
	return s.sessions.Len()
}
