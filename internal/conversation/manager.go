package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-conversation/internal/observability"
	"github.com/spec-kit/ticket-conversation/internal/store"
)

// Session is one open conversation view held on behalf of a client.
type Session struct {
	ID       string
	TicketID string
	View     *View

	lastActive time.Time
}

// ManagerDependencies bundles collaborators for the session manager.
type ManagerDependencies struct {
	Gateway  store.Gateway
	Notifier Notifier
	Metrics  *observability.Metrics
	Logger   *zap.Logger
	IdleTTL  time.Duration
}

// Manager owns the open conversation views, one per session. Views are
// released explicitly by the client or reaped after the idle TTL.
type Manager struct {
	deps ManagerDependencies

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager constructs the session manager.
func NewManager(deps ManagerDependencies) *Manager {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.IdleTTL <= 0 {
		deps.IdleTTL = 15 * time.Minute
	}
	return &Manager{
		deps:     deps,
		sessions: make(map[string]*Session),
	}
}

// Open activates a view for the ticket and registers a session around it.
func (m *Manager) Open(ctx context.Context, ticketID string) (*Session, error) {
	view, err := OpenView(ctx, ticketID, ViewDependencies{
		Gateway:  m.deps.Gateway,
		Notifier: m.deps.Notifier,
		Metrics:  m.deps.Metrics,
		Logger:   m.deps.Logger,
	})
	if err != nil {
		return nil, err
	}

	session := &Session{
		ID:         uuid.NewString(),
		TicketID:   ticketID,
		View:       view,
		lastActive: time.Now(),
	}

	m.mu.Lock()
	m.sessions[session.ID] = session
	m.mu.Unlock()

	m.deps.Metrics.RecordViewEvent("session_opened")
	m.deps.Logger.Info("conversation session opened",
		zap.String("session_id", session.ID),
		zap.String("ticket_id", ticketID))
	return session, nil
}

// Get returns the session and refreshes its idle clock.
func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[sessionID]
	if !ok {
		return nil, false
	}
	session.lastActive = time.Now()
	return session, true
}

// Release tears the session's view down and removes it.
func (m *Manager) Release(sessionID string) bool {
	m.mu.Lock()
	session, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()
	if !ok {
		return false
	}
	session.View.Teardown()
	m.deps.Logger.Info("conversation session released",
		zap.String("session_id", sessionID),
		zap.String("ticket_id", session.TicketID))
	return true
}

// ReapIdle tears down sessions idle for longer than the TTL and reports
// how many were removed.
func (m *Manager) ReapIdle(now time.Time) int {
	var expired []*Session
	m.mu.Lock()
	for id, session := range m.sessions {
		if now.Sub(session.lastActive) > m.deps.IdleTTL {
			delete(m.sessions, id)
			expired = append(expired, session)
		}
	}
	m.mu.Unlock()

	for _, session := range expired {
		session.View.Teardown()
		m.deps.Metrics.RecordViewEvent("session_reaped")
		m.deps.Logger.Info("idle conversation session reaped",
			zap.String("session_id", session.ID),
			zap.String("ticket_id", session.TicketID))
	}
	return len(expired)
}

// CloseAll releases every open session, used on shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, session := range sessions {
		session.View.Teardown()
	}
}

// Count reports the number of open sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
