package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"tree_ton/internal/domain"

	"github.com/google/uuid"
)

type referral struct {
	ReferrerID string
	ReferredID string
	Reward     int64
	CreatedAt  time.Time
}

// Memory is a process-local Store used in development and tests.
type Memory struct {
	mu          sync.RWMutex
	users       map[string]domain.User
	byTelegram  map[int64]string
	withdrawals map[string]domain.WithdrawalRequest
	referrals   map[string]referral
}

func NewMemory() *Memory {
	return &Memory{
		users:       make(map[string]domain.User),
		byTelegram:  make(map[int64]string),
		withdrawals: make(map[string]domain.WithdrawalRequest),
		referrals:   make(map[string]referral),
	}
}

func (m *Memory) GetUser(_ context.Context, id string) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	c := u.Clone()
	return &c, nil
}

func (m *Memory) GetUserByTelegramID(ctx context.Context, tgID int64) (*domain.User, error) {
	m.mu.RLock()
	id, ok := m.byTelegram[tgID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("telegram user %d: %w", tgID, domain.ErrNotFound)
	}
	return m.GetUser(ctx, id)
}

func (m *Memory) GetUserByReferralCode(_ context.Context, code string) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if u.ReferralCode == code {
			c := u.Clone()
			return &c, nil
		}
	}
	return nil, fmt.Errorf("referral code %s: %w", code, domain.ErrNotFound)
}

func (m *Memory) CreateUser(_ context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byTelegram[u.TelegramID]; exists {
		return fmt.Errorf("telegram user %d: %w", u.TelegramID, domain.ErrAlreadyExists)
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	m.users[u.ID] = u.Clone()
	m.byTelegram[u.TelegramID] = u.ID
	return nil
}

func (m *Memory) UpdateUser(_ context.Context, u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[u.ID]; !ok {
		return fmt.Errorf("user %s: %w", u.ID, domain.ErrNotFound)
	}
	m.users[u.ID] = u.Clone()
	return nil
}

func (m *Memory) ListUsers(_ context.Context, page, limit int) ([]domain.User, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := make([]domain.User, 0, len(m.users))
	for _, u := range m.users {
		all = append(all, u.Clone())
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].JoinedAt.Equal(all[j].JoinedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].JoinedAt.Before(all[j].JoinedAt)
	})

	return paginate(all, page, limit), len(all), nil
}

func (m *Memory) RecordReferral(_ context.Context, referrerID, referredID string, reward int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.referrals[referredID]; exists {
		return fmt.Errorf("referral for %s: %w", referredID, domain.ErrAlreadyExists)
	}
	m.referrals[referredID] = referral{
		ReferrerID: referrerID,
		ReferredID: referredID,
		Reward:     reward,
		CreatedAt:  time.Now(),
	}
	return nil
}

func (m *Memory) CreateWithdrawal(_ context.Context, w *domain.WithdrawalRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now()
	}
	m.withdrawals[w.ID] = *w
	return nil
}

func (m *Memory) GetWithdrawal(_ context.Context, id string) (*domain.WithdrawalRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w, ok := m.withdrawals[id]
	if !ok {
		return nil, fmt.Errorf("withdrawal %s: %w", id, domain.ErrNotFound)
	}
	return &w, nil
}

func (m *Memory) ListWithdrawals(_ context.Context, f domain.WithdrawalFilter) ([]domain.WithdrawalRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.WithdrawalRequest
	for _, w := range m.withdrawals {
		if f.Match(w) {
			out = append(out, w)
		}
	}
	// newest first
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) UpdateWithdrawal(_ context.Context, w domain.WithdrawalRequest, from domain.WithdrawalStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.withdrawals[w.ID]
	if !ok {
		return fmt.Errorf("withdrawal %s: %w", w.ID, domain.ErrNotFound)
	}
	if cur.Status != from {
		return fmt.Errorf("withdrawal %s is %s: %w", w.ID, cur.Status, domain.ErrStatusConflict)
	}
	m.withdrawals[w.ID] = w
	return nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func paginate[T any](items []T, page, limit int) []T {
	if limit <= 0 {
		return items
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * limit
	if start >= len(items) {
		return nil
	}
	end := min(start+limit, len(items))
	return items[start:end]
}
