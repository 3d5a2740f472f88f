package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tree_ton/internal/domain"
	"tree_ton/internal/identity"
	"tree_ton/internal/logger"
	"tree_ton/internal/metrics"

	"github.com/jonboulle/clockwork"
)

// UserStore is the part of the store the manager needs.
type UserStore interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
	GetUserByTelegramID(ctx context.Context, tgID int64) (*domain.User, error)
	CreateUser(ctx context.Context, u *domain.User) error
	UpdateUser(ctx context.Context, u domain.User) error
}

type ManagerOptions struct {
	Session Options
	IdleTTL time.Duration
}

// Manager owns at most one Session per user id.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	// removed from sessions but possibly still writing queued records
	closing map[string]*Session

	store   UserStore
	opts    Options
	idleTTL time.Duration
	clock   clockwork.Clock
	log     *slog.Logger
}

func NewManager(store UserStore, opts ManagerOptions) *Manager {
	sopts := opts.Session.withDefaults()
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = 30 * time.Minute
	}
	return &Manager{
		sessions: make(map[string]*Session),
		closing:  make(map[string]*Session),
		store:    store,
		opts:     sopts,
		idleTTL:  opts.IdleTTL,
		clock:    sopts.Clock,
		log:      logger.With("component", "session_manager"),
	}
}

// Login loads or registers the user behind id and returns its session.
// created is true when the user did not exist before.
func (m *Manager) Login(ctx context.Context, id identity.Identity) (*Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	created := false
	u, err := m.store.GetUserByTelegramID(ctx, id.TelegramID)
	if errors.Is(err, domain.ErrNotFound) {
		fresh := domain.NewUser(id.TelegramID, id.Username, id.FirstName, id.LastName, m.clock.Now())
		if err := m.store.CreateUser(ctx, &fresh); err != nil {
			if !errors.Is(err, domain.ErrAlreadyExists) {
				return nil, false, fmt.Errorf("create user: %w", err)
			}
			u, err = m.store.GetUserByTelegramID(ctx, id.TelegramID)
			if err != nil {
				return nil, false, fmt.Errorf("load user: %w", err)
			}
		} else {
			u = &fresh
			created = true
		}
	} else if err != nil {
		return nil, false, fmt.Errorf("load user: %w", err)
	}

	if _, open := m.sessions[u.ID]; !open && m.awaitClosedLocked(u.ID) {
		if u, err = m.store.GetUser(ctx, u.ID); err != nil {
			return nil, false, fmt.Errorf("reload user: %w", err)
		}
	}

	if !u.Active() {
		return nil, false, domain.ErrAccountDisabled
	}

	s := m.openLocked(*u)
	if _, err := s.Touch(); err != nil {
		return nil, false, err
	}
	return s, created, nil
}

// Session returns the open session for userID, opening it from the store if needed.
func (m *Manager) Session(ctx context.Context, userID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[userID]; ok {
		return s, nil
	}
	m.awaitClosedLocked(userID)
	u, err := m.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !u.Active() {
		return nil, domain.ErrAccountDisabled
	}
	return m.openLocked(*u), nil
}

// Lookup returns the open session for userID, if any.
func (m *Manager) Lookup(userID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	return s, ok
}

func (m *Manager) openLocked(u domain.User) *Session {
	if s, ok := m.sessions[u.ID]; ok {
		return s
	}
	s := New(u, m.store, m.opts)
	s.Start(context.Background())
	m.sessions[u.ID] = s
	metrics.ActiveSessions.Inc()
	m.log.Debug("session opened", "user_id", u.ID)
	return s
}

// Update changes a user that may or may not have a live session. With a live
// session the change goes through it so its next whole-record write keeps the
// change; otherwise the stored record is updated directly.
func (m *Manager) Update(ctx context.Context, userID, op string, fn func(domain.User) (domain.User, error)) (domain.User, error) {
	for {
		m.mu.Lock()
		s, ok := m.sessions[userID]
		if !ok {
			break
		}
		m.mu.Unlock()

		u, err := s.Update(op, fn)
		if !errors.Is(err, ErrClosed) {
			return u, err
		}
		// closed after the lookup; it is no longer in m.sessions
	}
	defer m.mu.Unlock()

	m.awaitClosedLocked(userID)
	u, err := m.store.GetUser(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	next, err := fn(u.Clone())
	if err != nil {
		return *u, err
	}
	if err := m.store.UpdateUser(ctx, next); err != nil {
		return *u, fmt.Errorf("update user %s: %w", userID, err)
	}
	return next, nil
}

// SetStatus changes the account status. Disabling an account closes its session.
func (m *Manager) SetStatus(ctx context.Context, userID string, status domain.UserStatus) (domain.User, error) {
	if !status.Valid() {
		return domain.User{}, fmt.Errorf("status %q: %w", status, domain.ErrInvalidTransition)
	}
	u, err := m.Update(ctx, userID, "set_status", func(u domain.User) (domain.User, error) {
		u.Status = status
		return u, nil
	})
	if err != nil {
		return u, err
	}
	if status != domain.UserStatusActive {
		m.Close(userID)
	}
	return u, nil
}

// Reload replaces the cached copy with the stored record.
func (m *Manager) Reload(ctx context.Context, userID string) (domain.User, error) {
	s, err := m.Session(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	s.Flush()
	u, err := m.store.GetUser(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	return s.Replace(*u), nil
}

// Close ends the session of userID, flushing its writes.
func (m *Manager) Close(userID string) {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	if ok {
		delete(m.sessions, userID)
		m.closing[userID] = s
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	s.Close()
	m.mu.Lock()
	m.forgetClosingLocked(userID, s)
	m.mu.Unlock()
	metrics.ActiveSessions.Dec()
	m.log.Debug("session closed", "user_id", userID)
}

// awaitClosedLocked waits for a closing session of userID to finish its
// writes, so the store holds its last record. It reports whether it waited.
// Session shutdown never takes m.mu, so waiting with it held is safe.
func (m *Manager) awaitClosedLocked(userID string) bool {
	s, ok := m.closing[userID]
	if !ok {
		return false
	}
	s.Wait()
	delete(m.closing, userID)
	return true
}

func (m *Manager) forgetClosingLocked(userID string, s *Session) {
	if m.closing[userID] == s {
		delete(m.closing, userID)
	}
}

// CloseAll ends every session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*Session)
	for id, s := range all {
		m.closing[id] = s
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range all {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.Close()
		}(s)
	}
	wg.Wait()

	m.mu.Lock()
	for id, s := range all {
		m.forgetClosingLocked(id, s)
	}
	m.mu.Unlock()
	metrics.ActiveSessions.Sub(float64(len(all)))
}

// Len is the number of open sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Run evicts idle sessions until ctx is done, then closes all sessions.
func (m *Manager) Run(ctx context.Context) {
	ticker := m.clock.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.CloseAll()
			return
		case <-ticker.Chan():
			m.evictIdle()
		}
	}
}

func (m *Manager) evictIdle() {
	now := m.clock.Now()

	m.mu.Lock()
	var idle []string
	for id, s := range m.sessions {
		if now.Sub(s.LastSeen()) > m.idleTTL {
			idle = append(idle, id)
		}
	}
	m.mu.Unlock()

	for _, id := range idle {
		m.Close(id)
	}
	if len(idle) > 0 {
		m.log.Info("evicted idle sessions", "count", len(idle))
	}
}
