package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/pai-dashboard/internal/notify"
)

// ErrSessionNotFound is returned for unknown or expired session ids.
var ErrSessionNotFound = errors.New("dashboard: session not found")

// Manager is the in-memory registry of open sessions.
type Manager struct {
	deps     Deps
	idleTTL  time.Duration
	sessions map[string]*Session
	mu       sync.RWMutex
	now      func() time.Time
}

// NewManager creates a session registry. Sessions idle for longer than idleTTL
// are closed by Sweep; a zero idleTTL keeps them until deleted.
func NewManager(deps Deps, idleTTL time.Duration) *Manager {
	return &Manager{
		deps:     deps.withDefaults(),
		idleTTL:  idleTTL,
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// Create opens courseID in a new session. The session is registered only if
// the lesson list could be fetched.
func (m *Manager) Create(ctx context.Context, courseID string) (*Session, error) {
	s := NewSession(uuid.NewString(), m.deps)
	if err := s.Open(ctx, courseID); err != nil {
		s.Close()
		return nil, err
	}

	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()
	return s, nil
}

// Get returns an open session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// Delete closes and forgets a session.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	s.Close()
	return nil
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep closes sessions idle for longer than the idle TTL and returns how many
// were closed.
func (m *Manager) Sweep() int {
	if m.idleTTL <= 0 {
		return 0
	}
	cutoff := m.now().Add(-m.idleTTL)

	m.mu.Lock()
	var idle []*Session
	for id, s := range m.sessions {
		if s.LastActive().Before(cutoff) {
			idle = append(idle, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range idle {
		s.Close()
		slog.Info("idle session closed", "session_id", s.ID(), "course_id", s.CourseID())
	}
	return len(idle)
}

// Run sweeps idle sessions until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// CloseAll closes every session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}

// Notify implements notify.Channel by forwarding a notification to the stream
// of the session it addresses. Notifications for unknown sessions are dropped.
func (m *Manager) Notify(_ context.Context, n notify.Notification) error {
	m.mu.RLock()
	s, ok := m.sessions[n.SessionID]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	s.publish(StreamEvent{
		Type:         "notification",
		CourseID:     n.CourseID,
		NodeID:       n.NodeID,
		HasMore:      s.HasMore(),
		Notification: &n,
	})
	return nil
}
