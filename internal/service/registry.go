package service

import (
	"sync"

	"github.com/makeasinger/clipwatch/internal/poller"
)

// SessionRegistry tracks the live poller session of each generation
// running in this process.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*poller.Session
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*poller.Session),
	}
}

// Register stores s under generationID, replacing any previous session
func (r *SessionRegistry) Register(generationID string, s *poller.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[generationID] = s
}

// Remove drops generationID if it still maps to s
func (r *SessionRegistry) Remove(generationID string, s *poller.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[generationID] == s {
		delete(r.sessions, generationID)
	}
}

// Get returns the live session of generationID, if any
func (r *SessionRegistry) Get(generationID string) (*poller.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[generationID]
	return s, ok
}

// Cancel stops the session of generationID. It reports whether one was running here.
func (r *SessionRegistry) Cancel(generationID string) bool {
	s, ok := r.Get(generationID)
	if !ok {
		return false
	}
	s.Cancel()
	return true
}

// Len returns the number of registered sessions
func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
