package workflow

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Manager owns the active session of every logged-in user and serialises
// transitions per session.
type Manager struct {
	wf *Workflow

	mu       sync.Mutex
	active   map[string]Session
	inflight map[uuid.UUID]struct{}
}

func NewManager(wf *Workflow) *Manager {
	return &Manager{
		wf:       wf,
		active:   make(map[string]Session),
		inflight: make(map[uuid.UUID]struct{}),
	}
}

// Workflow returns the underlying state machine.
func (m *Manager) Workflow() *Workflow { return m.wf }

// Current returns the user's active session, starting one if there is none.
func (m *Manager) Current(username string) Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentLocked(username)
}

func (m *Manager) currentLocked(username string) Session {
	s, ok := m.active[username]
	if !ok {
		s = NewSession(username)
		m.active[username] = s
	}
	return s
}

// Start discards the user's active session and begins a new one. A
// transition still running on the old session will not be stored.
func (m *Manager) Start(username string) Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := NewSession(username)
	m.active[username] = s
	return s
}

// Reset drops the user's active session, e.g. on logout.
func (m *Manager) Reset(username string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, username)
}

// Busy reports whether a transition of the user's active session is running.
func (m *Manager) Busy(username string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.active[username]
	if !ok {
		return false
	}
	_, busy := m.inflight[s.ID]
	return busy
}

// Advance applies ev to the user's active session. It returns ErrBusy if an
// earlier Advance of the same session has not returned yet. A session that
// reaches StateFinished is archived and the next Current starts afresh.
func (m *Manager) Advance(ctx context.Context, username string, ev Event) (Session, error) {
	m.mu.Lock()
	s := m.currentLocked(username)
	if _, busy := m.inflight[s.ID]; busy {
		m.mu.Unlock()
		return s, ErrBusy
	}
	m.inflight[s.ID] = struct{}{}
	m.mu.Unlock()

	next, err := m.wf.Advance(ctx, s, ev)

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inflight, s.ID)
	if err != nil {
		return next, err
	}
	cur, ok := m.active[username]
	if !ok || cur.ID != s.ID {
		slog.Info("discarding transition of replaced session", "session", s.ID, "user", username)
		return next, nil
	}
	if next.State == StateFinished {
		delete(m.active, username)
		return next, nil
	}
	m.active[username] = next
	return next, nil
}
