package session

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/vango-dev/isomorph/pkg/protocol"
)

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// MaxSessionsPerIP is the maximum number of live sessions per client IP.
	// Default: 100. Negative disables the limit.
	MaxSessionsPerIP int

	Logger *slog.Logger
}

// DefaultMaxSessionsPerIP is used when ManagerConfig leaves it zero.
const DefaultMaxSessionsPerIP = 100

// Manager tracks live sessions. It is safe for concurrent use.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	byIP     map[string]int
	stopped  bool

	maxPerIP int
	logger   *slog.Logger
	total    atomic.Uint64
}

// NewManager creates a Manager.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.MaxSessionsPerIP == 0 {
		cfg.MaxSessionsPerIP = DefaultMaxSessionsPerIP
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Manager{
		sessions: make(map[string]*Session),
		byIP:     make(map[string]int),
		maxPerIP: cfg.MaxSessionsPerIP,
		logger:   cfg.Logger.With("component", "session_manager"),
	}
}

// CheckIPLimit reports whether another session from ip would exceed the
// per-IP limit.
func (m *Manager) CheckIPLimit(ip string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.checkIPLocked(ip)
}

func (m *Manager) checkIPLocked(ip string) error {
	if m.maxPerIP > 0 && ip != "" && m.byIP[ip] >= m.maxPerIP {
		return ErrTooManySessionsFromIP
	}
	return nil
}

// Add registers s. It is removed automatically when it closes.
func (m *Manager) Add(s *Session) error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return ErrManagerStopped
	}
	if _, exists := m.sessions[s.id]; exists {
		m.mu.Unlock()
		return ErrDuplicateSession
	}
	if err := m.checkIPLocked(s.ip); err != nil {
		m.mu.Unlock()
		m.logger.Warn("session rejected", "ip", s.ip, "error", err)
		return err
	}
	m.sessions[s.id] = s
	if s.ip != "" {
		m.byIP[s.ip]++
	}
	m.mu.Unlock()

	m.total.Add(1)
	s.OnClose(m.remove)
	return nil
}

func (m *Manager) remove(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[s.id] != s {
		return
	}
	delete(m.sessions, s.id)
	if s.ip != "" {
		if m.byIP[s.ip]--; m.byIP[s.ip] <= 0 {
			delete(m.byIP, s.ip)
		}
	}
}

// Get returns the live session with the given ID, or nil.
func (m *Manager) Get(id string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[id]
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Total returns the number of sessions ever added.
func (m *Manager) Total() uint64 { return m.total.Load() }

// Sessions returns the live sessions, oldest first.
func (m *Manager) Sessions() []*Session {
	m.mu.RLock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].created.Equal(out[j].created) {
			return out[i].id < out[j].id
		}
		return out[i].created.Before(out[j].created)
	})
	return out
}

// Broadcast sends msg to every live session of app, or of every app when
// app is empty, and returns how many sends succeeded.
func (m *Manager) Broadcast(app string, msg protocol.Message) int {
	sent := 0
	for _, s := range m.Sessions() {
		if app != "" && s.app != app {
			continue
		}
		if err := s.Send(msg); err == nil {
			sent++
		}
	}
	return sent
}

// Shutdown closes every session with CloseServerShutdown and waits for
// their teardown or for ctx to end. Later Adds fail.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()

	sessions := m.Sessions()
	for _, s := range sessions {
		s.Close(protocol.CloseServerShutdown, "server shutting down")
	}
	for _, s := range sessions {
		select {
		case <-s.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.logger.Info("sessions closed", "count", len(sessions))
	return nil
}
