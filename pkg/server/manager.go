package server

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
)

// SessionManager manages all live sessions.
// It handles session creation, lookup and the sweep of sessions whose
// client never came back.
type SessionManager struct {
	// Sessions map protected by RWMutex
	sessions map[string]*Session
	mu       sync.RWMutex

	config          *SessionConfig
	deps            sessionDeps
	maxSessions     int
	cleanupInterval time.Duration
	now             func() time.Time

	done        chan struct{}
	cleanupDone chan struct{}
	shutdown    sync.Once

	totalCreated atomic.Uint64
	totalClosed  atomic.Uint64
	peakSessions int

	logger *slog.Logger
}

// ManagerStats is a snapshot of the manager counters.
type ManagerStats struct {
	Active       int
	Attached     int
	Detached     int
	TotalCreated uint64
	TotalClosed  uint64
	Peak         int
}

// NewSessionManager creates a SessionManager and starts its sweep.
func NewSessionManager(config *SessionConfig, maxSessions int, cleanupInterval time.Duration, deps sessionDeps) *SessionManager {
	if config == nil {
		config = DefaultSessionConfig()
	}
	if deps.logger == nil {
		deps.logger = slog.Default()
	}
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultServerConfig().CleanupInterval
	}
	sm := &SessionManager{
		sessions:        make(map[string]*Session),
		config:          config,
		deps:            deps,
		maxSessions:     maxSessions,
		cleanupInterval: cleanupInterval,
		now:             time.Now,
		done:            make(chan struct{}),
		cleanupDone:     make(chan struct{}),
		logger:          deps.logger.With("component", "session_manager"),
	}
	go sm.cleanupLoop()
	return sm
}

// Create starts a session running program.
func (sm *SessionManager) Create(program Program) (*Session, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.maxSessions > 0 && len(sm.sessions) >= sm.maxSessions {
		return nil, ErrMaxSessionsReached
	}

	id := ulid.MustNew(ulid.Timestamp(sm.now()), ulid.DefaultEntropy()).String()
	s := newSession(id, program, sm.config, sm.deps)
	sm.sessions[id] = s
	sm.totalCreated.Add(1)
	if len(sm.sessions) > sm.peakSessions {
		sm.peakSessions = len(sm.sessions)
	}
	sm.deps.metrics.SessionOpened()
	sm.logger.Debug("session created", "session_id", id, "active", len(sm.sessions))
	return s, nil
}

// Get returns the live session with id, or nil.
func (sm *SessionManager) Get(id string) *Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	s := sm.sessions[id]
	if s == nil || s.IsClosed() {
		return nil
	}
	return s
}

// Close closes and forgets the session with id.
func (sm *SessionManager) Close(id string) {
	sm.mu.Lock()
	s := sm.removeLocked(id)
	sm.mu.Unlock()
	if s != nil {
		s.Close()
	}
}

func (sm *SessionManager) removeLocked(id string) *Session {
	s, ok := sm.sessions[id]
	if !ok {
		return nil
	}
	delete(sm.sessions, id)
	sm.totalClosed.Add(1)
	sm.deps.metrics.SessionClosed()
	return s
}

// Count returns the number of tracked sessions.
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

func (sm *SessionManager) cleanupLoop() {
	defer close(sm.cleanupDone)

	ticker := time.NewTicker(sm.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sm.cleanupExpired()
		case <-sm.done:
			return
		}
	}
}

// cleanupExpired closes sessions detached longer than the resume window
// and forgets sessions that closed themselves.
func (sm *SessionManager) cleanupExpired() int {
	now := sm.now()

	sm.mu.Lock()
	var expired []*Session
	for id, s := range sm.sessions {
		if s.IsClosed() || s.expired(now, sm.config.ResumeWindow) {
			expired = append(expired, sm.removeLocked(id))
		}
	}
	sm.mu.Unlock()

	for _, s := range expired {
		s.Close()
	}
	if len(expired) > 0 {
		sm.logger.Info("expired sessions closed", "count", len(expired))
	}
	return len(expired)
}

// Shutdown stops the sweep and closes every session.
func (sm *SessionManager) Shutdown(ctx context.Context) error {
	sm.shutdown.Do(func() {
		close(sm.done)
	})
	<-sm.cleanupDone

	sm.mu.Lock()
	sessions := make([]*Session, 0, len(sm.sessions))
	for id := range sm.sessions {
		sessions = append(sessions, sm.removeLocked(id))
	}
	sm.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.Close()
		}(s)
	}

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-ctx.Done():
		return ctx.Err()
	}

	sm.logger.Info("session manager shutdown", "closed_sessions", len(sessions))
	return nil
}

// Stats returns a snapshot of the manager counters.
func (sm *SessionManager) Stats() ManagerStats {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	st := ManagerStats{
		Active:       len(sm.sessions),
		TotalCreated: sm.totalCreated.Load(),
		TotalClosed:  sm.totalClosed.Load(),
		Peak:         sm.peakSessions,
	}
	for _, s := range sm.sessions {
		if s.IsAttached() {
			st.Attached++
		} else {
			st.Detached++
		}
	}
	return st
}

// ForEach calls fn for every session in creation order until fn returns
// false.
func (sm *SessionManager) ForEach(fn func(*Session) bool) {
	sm.mu.RLock()
	sessions := make([]*Session, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		sessions = append(sessions, s)
	}
	sm.mu.RUnlock()

	// ULIDs sort by creation time.
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].ID < sessions[j].ID })
	for _, s := range sessions {
		if !fn(s) {
			return
		}
	}
}
