// Package session keeps the live game state of each logged in user. Every change
// goes through Session.apply, which updates the cached record first and then
// queues a whole-record write to the store.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tree_ton/internal/domain"
	"tree_ton/internal/economy"
	"tree_ton/internal/logger"
	"tree_ton/internal/metrics"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
)

var ErrClosed = errors.New("session closed")

// errUnchanged lets a mutation report a no-op without queuing a write.
var errUnchanged = errors.New("unchanged")

// Persister receives every accepted mutation as a full user record.
type Persister interface {
	UpdateUser(ctx context.Context, u domain.User) error
}

// Listener is told about every accepted mutation, in order. It runs with the
// session locked, so it must not block or call back into the session.
type Listener func(domain.User)

type Options struct {
	RegenInterval  time.Duration
	PersistTimeout time.Duration
	Clock          clockwork.Clock
	OnChange       Listener
}

func (o Options) withDefaults() Options {
	if o.RegenInterval <= 0 {
		o.RegenInterval = economy.EnergyRegenInterval
	}
	if o.PersistTimeout <= 0 {
		o.PersistTimeout = 10 * time.Second
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	return o
}

type job struct {
	op   string
	user domain.User
}

type Session struct {
	mu       sync.Mutex
	user     domain.User
	lastSeen time.Time
	closed   bool

	persist Persister
	opts    Options
	log     *slog.Logger

	queueMu  sync.Mutex
	queueCnd *sync.Cond
	queue    []job
	writing  bool
	diverged bool
	wake     chan struct{}

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New wraps u. Call Start to run persistence and energy regeneration.
func New(u domain.User, persist Persister, opts Options) *Session {
	opts = opts.withDefaults()
	s := &Session{
		user:     u.Clone(),
		lastSeen: opts.Clock.Now(),
		persist:  persist,
		opts:     opts,
		log:      logger.With("component", "session", "user_id", u.ID),
		wake:     make(chan struct{}, 1),
	}
	s.queueCnd = sync.NewCond(&s.queueMu)
	return s
}

// Start launches the persistence worker and the regeneration ticker.
func (s *Session) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.persistLoop(ctx)
	}()
	go func() {
		defer s.wg.Done()
		s.regenLoop(ctx)
	}()
}

// Close stops the background work after writing everything still queued.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// Wait blocks until the background work of a closed session has stopped and
// every queued write has been attempted.
func (s *Session) Wait() {
	s.wg.Wait()
}

// ID is the user id this session belongs to.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user.ID
}

// Snapshot returns a copy of the cached user.
func (s *Session) Snapshot() domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user.Clone()
}

// LastSeen is the time of the last user initiated action.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Diverged reports whether the most recent write failed, i.e. the store may
// hold an older record than this session.
func (s *Session) Diverged() bool {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	return s.diverged
}

// apply is the single mutation point. fn receives a private copy; returning an
// error leaves the session untouched. touch marks user activity.
func (s *Session) apply(op string, touch bool, fn func(domain.User) (domain.User, error)) (domain.User, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.User{}, ErrClosed
	}

	next, err := fn(s.user.Clone())
	if err != nil {
		cur := s.user.Clone()
		s.mu.Unlock()
		if errors.Is(err, errUnchanged) {
			return cur, nil
		}
		return cur, err
	}

	if touch {
		now := s.opts.Clock.Now()
		next.LastActive = now
		s.lastSeen = now
	}
	s.user = next
	s.enqueue(job{op: op, user: next.Clone()})
	snapshot := next.Clone()
	// published under s.mu so listeners see snapshots in mutation order
	if s.opts.OnChange != nil {
		s.opts.OnChange(snapshot.Clone())
	}
	s.mu.Unlock()

	metrics.Mutations.WithLabelValues(op).Inc()
	return snapshot, nil
}

func requireActive(u domain.User) error {
	if !u.Active() {
		return domain.ErrAccountDisabled
	}
	return nil
}

// Tap performs one mining action.
func (s *Session) Tap() (domain.User, error) {
	u, err := s.apply("tap", true, func(u domain.User) (domain.User, error) {
		if err := requireActive(u); err != nil {
			return u, err
		}
		return economy.ApplyTap(u, s.opts.Clock.Now())
	})
	switch {
	case err == nil:
		metrics.Taps.WithLabelValues("ok").Inc()
	case errors.Is(err, domain.ErrInsufficientResource):
		metrics.Taps.WithLabelValues("no_energy").Inc()
	}
	return u, err
}

// Convert exchanges points for coins. points <= 0 converts everything convertible.
func (s *Session) Convert(points int64) (domain.User, error) {
	return s.apply("convert", true, func(u domain.User) (domain.User, error) {
		if err := requireActive(u); err != nil {
			return u, err
		}
		if points <= 0 {
			points = economy.ConvertibleAmount(u.Points)
			if points == 0 {
				return u, domain.ErrInsufficientResource
			}
		}
		return economy.ConvertPoints(u, points)
	})
}

// CompleteTask claims a catalog task. Claiming a completed task is a no-op.
func (s *Session) CompleteTask(taskID string) (domain.User, error) {
	task, ok := economy.FindTask(taskID)
	if !ok {
		return s.Snapshot(), fmt.Errorf("task %s: %w", taskID, domain.ErrUnknownTask)
	}
	return s.apply("complete_task", true, func(u domain.User) (domain.User, error) {
		if err := requireActive(u); err != nil {
			return u, err
		}
		if u.HasCompleted(taskID) {
			return u, errUnchanged
		}
		if !economy.Claimable(u, task) {
			return u, domain.ErrTaskNotReady
		}
		next, _ := economy.CompleteTask(u, task)
		return next, nil
	})
}

// Upgrade buys an upgrade with the TON balance.
func (s *Session) Upgrade(upgradeID string) (domain.User, error) {
	return s.apply("upgrade", true, func(u domain.User) (domain.User, error) {
		if err := requireActive(u); err != nil {
			return u, err
		}
		return economy.ApplyUpgrade(u, upgradeID)
	})
}

// ConnectWallet records a verified wallet and its balance.
func (s *Session) ConnectWallet(address string, balance decimal.Decimal) (domain.User, error) {
	return s.apply("connect_wallet", true, func(u domain.User) (domain.User, error) {
		u.WalletAddress = address
		u.TonBalance = balance
		u.IsWalletConnected = true
		return u, nil
	})
}

// DisconnectWallet clears the local wallet address and balance.
func (s *Session) DisconnectWallet() (domain.User, error) {
	return s.apply("disconnect_wallet", true, func(u domain.User) (domain.User, error) {
		if !u.IsWalletConnected && u.WalletAddress == "" {
			return u, errUnchanged
		}
		u.WalletAddress = ""
		u.TonBalance = decimal.Zero
		u.IsWalletConnected = false
		return u, nil
	})
}

// SetTonBalance stores a freshly read wallet balance.
func (s *Session) SetTonBalance(balance decimal.Decimal) (domain.User, error) {
	return s.apply("ton_balance", false, func(u domain.User) (domain.User, error) {
		if !u.IsWalletConnected || u.TonBalance.Equal(balance) {
			return u, errUnchanged
		}
		u.TonBalance = balance
		return u, nil
	})
}

// Touch records activity (login, state fetch).
func (s *Session) Touch() (domain.User, error) {
	return s.apply("touch", true, func(u domain.User) (domain.User, error) {
		return u, nil
	})
}

// Update applies an arbitrary change. It is used for changes that do not come
// from the user, like admin status updates and referral credits.
func (s *Session) Update(op string, fn func(domain.User) (domain.User, error)) (domain.User, error) {
	return s.apply(op, false, fn)
}

// Replace swaps the cached record for an authoritative one without writing it back.
func (s *Session) Replace(u domain.User) domain.User {
	s.mu.Lock()
	s.user = u.Clone()
	snapshot := u.Clone()
	if s.opts.OnChange != nil {
		s.opts.OnChange(snapshot.Clone())
	}
	s.mu.Unlock()

	s.queueMu.Lock()
	s.diverged = false
	s.queueMu.Unlock()

	return snapshot
}

func (s *Session) regenerate() {
	_, err := s.apply("regen", false, func(u domain.User) (domain.User, error) {
		next, changed := economy.RegenerateEnergy(u)
		if !changed {
			return u, errUnchanged
		}
		return next, nil
	})
	if err != nil && !errors.Is(err, ErrClosed) {
		s.log.Warn("energy regeneration failed", "error", err)
	}
}

func (s *Session) regenLoop(ctx context.Context) {
	ticker := s.opts.Clock.NewTicker(s.opts.RegenInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.regenerate()
		}
	}
}

// Flush blocks until every queued write has been attempted. Start must have been called.
func (s *Session) Flush() {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	for len(s.queue) > 0 || s.writing {
		s.queueCnd.Wait()
	}
}

// enqueue is called with s.mu held so queue order equals mutation order.
func (s *Session) enqueue(j job) {
	s.queueMu.Lock()
	s.queue = append(s.queue, j)
	s.queueMu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Session) pop() (job, bool) {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	if len(s.queue) == 0 {
		return job{}, false
	}
	j := s.queue[0]
	s.queue = s.queue[1:]
	s.writing = true
	return j, true
}

func (s *Session) persistLoop(ctx context.Context) {
	for {
		if j, ok := s.pop(); ok {
			s.write(ctx, j)
			continue
		}
		select {
		case <-s.wake:
		case <-ctx.Done():
			s.drain()
			return
		}
	}
}

// drain writes what is left after shutdown, detached from the cancelled context.
func (s *Session) drain() {
	for {
		j, ok := s.pop()
		if !ok {
			return
		}
		s.write(context.Background(), j)
	}
}

func (s *Session) write(ctx context.Context, j job) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.PersistTimeout)
	err := s.persist.UpdateUser(ctx, j.user)
	cancel()

	if err != nil && errors.Is(err, context.Canceled) {
		// shutdown raced the write; retry once detached
		ctx, cancel = context.WithTimeout(context.Background(), s.opts.PersistTimeout)
		err = s.persist.UpdateUser(ctx, j.user)
		cancel()
	}

	s.queueMu.Lock()
	s.writing = false
	s.diverged = err != nil
	s.queueCnd.Broadcast()
	s.queueMu.Unlock()

	if err != nil {
		perr := &domain.PersistenceError{Op: j.op, UserID: j.user.ID, Err: err}
		metrics.PersistFailures.WithLabelValues(j.op).Inc()
		s.log.Error("persistence failed, keeping local state", "op", j.op, "error", perr)
	}
}
