package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ManagerDeps configures a Manager.
type ManagerDeps struct {
	Store        SlotStore
	Namespace    string
	Logger       *zap.Logger
	WriteTimeout time.Duration
	Clock        func() time.Time
}

// Manager owns the open sessions and serialises work on each of them.
type Manager struct {
	store        SlotStore
	namespace    string
	logger       *zap.Logger
	writeTimeout time.Duration
	clock        func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry
}

type entry struct {
	mu       sync.Mutex
	session  *Session
	dropped  bool
	lastUsed time.Time
}

// NewManager constructs a Manager.
func NewManager(deps ManagerDeps) (*Manager, error) {
	if deps.Store == nil {
		return nil, errors.New("session: slot store is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Manager{
		store:        deps.Store,
		namespace:    deps.Namespace,
		logger:       logger,
		writeTimeout: deps.WriteTimeout,
		clock:        clock,
		sessions:     make(map[string]*entry),
	}, nil
}

// With runs fn against the session for id, opening it from storage on first use. Calls for the same
// id never overlap.
func (m *Manager) With(ctx context.Context, id string, fn func(*Session) error) error {
	if !ValidID(id) {
		return ErrInvalidSessionID
	}
	for {
		e := m.lookup(id)
		done, err := m.run(ctx, id, e, fn)
		if done {
			return err
		}
	}
}

func (m *Manager) run(ctx context.Context, id string, e *entry, fn func(*Session) error) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.dropped {
		return false, nil
	}
	if e.session == nil {
		s, err := Open(ctx, Deps{
			ID:           id,
			Store:        m.store,
			Namespace:    m.namespace,
			Logger:       m.logger,
			WriteTimeout: m.writeTimeout,
		})
		if err != nil {
			return true, err
		}
		e.session = s
	}
	e.lastUsed = m.clock()
	return true, fn(e.session)
}

// Logout clears every slot of the session and forgets it.
func (m *Manager) Logout(ctx context.Context, id string) error {
	return m.With(ctx, id, func(s *Session) error {
		s.Logout()
		m.drop(id)
		return nil
	})
}

// Sweep forgets sessions idle for longer than maxIdle. Their state stays in the slot store and is
// reloaded on next use. It returns the number of sessions released.
func (m *Manager) Sweep(maxIdle time.Duration) int {
	cutoff := m.clock().Add(-maxIdle)
	m.mu.Lock()
	candidates := make([]string, 0)
	for id, e := range m.sessions {
		if e.mu.TryLock() {
			if e.lastUsed.Before(cutoff) {
				e.dropped = true
				candidates = append(candidates, id)
			}
			e.mu.Unlock()
		}
	}
	for _, id := range candidates {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	return len(candidates)
}

// Len returns the number of sessions held in memory.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) lookup(id string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok {
		e = &entry{}
		m.sessions[id] = e
	}
	return e
}

// drop must be called with the entry lock held.
func (m *Manager) drop(id string) {
	m.mu.Lock()
	if e, ok := m.sessions[id]; ok {
		e.dropped = true
		delete(m.sessions, id)
	}
	m.mu.Unlock()
}
