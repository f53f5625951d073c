package dashboard

import (
	"sync"

	"github.com/google/uuid"
)

// FlashKind is the style of a one-shot message.
type FlashKind string

const (
	FlashSuccess FlashKind = "success"
	FlashError   FlashKind = "error"
)

// Flash is shown once on the next render and then dropped.
type Flash struct {
	Kind    FlashKind
	Message string
}

// Session is one operator's dashboard state: the call outcome per user and
// pending flash messages. Outcomes are never cleared during the session.
type Session struct {
	ID string

	mu       sync.Mutex
	outcomes map[string]string
	flashes  []Flash
}

func newSession(id string) *Session {
	return &Session{ID: id, outcomes: make(map[string]string)}
}

// Outcome returns the recorded outcome for userID.
func (s *Session) Outcome(userID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.outcomes[userID]
	return o, ok
}

// SetOutcome records or replaces the outcome for userID.
func (s *Session) SetOutcome(userID, outcome string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes[userID] = outcome
}

// claim records outcome only if userID has none yet and reports whether it
// did. Used to make dispatch at-most-once per user.
func (s *Session) claim(userID, outcome string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.outcomes[userID]; ok {
		return false
	}
	s.outcomes[userID] = outcome
	return true
}

// Outcomes returns a copy of every recorded outcome.
func (s *Session) Outcomes() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.outcomes))
	for k, v := range s.outcomes {
		out[k] = v
	}
	return out
}

// AddFlash queues a message for the next render.
func (s *Session) AddFlash(kind FlashKind, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flashes = append(s.flashes, Flash{Kind: kind, Message: msg})
}

// PopFlashes returns and clears the queued messages.
func (s *Session) PopFlashes() []Flash {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.flashes
	s.flashes = nil
	return f
}

// ─── STORE ────────────────────────────────────────────────────────────────────

// SessionStore owns sessions for the lifetime of the dashboard process.
type SessionStore interface {
	// Get returns the session with id, or false when unknown.
	Get(id string) (*Session, bool)
	// Create starts an empty session with a fresh id.
	Create() *Session
}

// MemorySessionStore keeps sessions in a map with no expiry.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemorySessionStore returns an empty store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]*Session)}
}

func (m *MemorySessionStore) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

func (m *MemorySessionStore) Create() *Session {
	s := newSession(uuid.NewString())
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s
}
