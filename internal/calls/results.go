package calls

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrResultNotFound is returned when no call was placed for the user.
var ErrResultNotFound = errors.New("calls: no call result for user")

// CallStage is the position of an interactive call in its lifecycle.
// Stages only move forward: initiated → answered → done.
type CallStage int

const (
	StageInitiated CallStage = iota + 1
	StageAnswered
	StageDone
)

func (s CallStage) String() string {
	switch s {
	case StageInitiated:
		return "initiated"
	case StageAnswered:
		return "answered"
	case StageDone:
		return "done"
	default:
		return "unknown"
	}
}

// CallState is the tracked state of one user's interactive call.
type CallState struct {
	UserID    string
	CallSID   string
	Stage     CallStage
	Summary   string
	UpdatedAt time.Time
}

// ResultStore holds interactive call state keyed by user id. It lives for the
// lifetime of the service process and is never persisted.
type ResultStore interface {
	// Start records a newly placed call, replacing any previous state.
	Start(ctx context.Context, userID, callSID string) error
	// Advance moves the user's call to stage, attaching summary when
	// non-empty. Moving backwards is a no-op.
	Advance(ctx context.Context, userID string, stage CallStage, summary string) error
	// Get returns ErrResultNotFound for unknown users.
	Get(ctx context.Context, userID string) (CallState, error)
}

// MemoryResultStore is a ResultStore backed by a map.
type MemoryResultStore struct {
	mu     sync.RWMutex
	states map[string]CallState
	now    func() time.Time
}

// NewMemoryResultStore returns an empty store.
func NewMemoryResultStore() *MemoryResultStore {
	return &MemoryResultStore{
		states: make(map[string]CallState),
		now:    time.Now,
	}
}

func (m *MemoryResultStore) Start(_ context.Context, userID, callSID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[userID] = CallState{
		UserID:    userID,
		CallSID:   callSID,
		Stage:     StageInitiated,
		UpdatedAt: m.now(),
	}
	return nil
}

func (m *MemoryResultStore) Advance(_ context.Context, userID string, stage CallStage, summary string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.states[userID]
	if !ok {
		// Twilio may call back for a call placed before a restart.
		st = CallState{UserID: userID}
	}
	if stage < st.Stage {
		return nil
	}
	st.Stage = stage
	if summary != "" {
		st.Summary = summary
	}
	st.UpdatedAt = m.now()
	m.states[userID] = st
	return nil
}

func (m *MemoryResultStore) Get(_ context.Context, userID string) (CallState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.states[userID]
	if !ok {
		return CallState{}, ErrResultNotFound
	}
	return st, nil
}
