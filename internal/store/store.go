// Package store defines the persistence contract shared by the in-memory,
// Postgres and remote API backends.
package store

import (
	"context"

	"tree_ton/internal/domain"
)

// Store is the authoritative home of users and withdrawal requests.
// Lookups of unknown ids return an error wrapping domain.ErrNotFound.
type Store interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
	GetUserByTelegramID(ctx context.Context, tgID int64) (*domain.User, error)
	GetUserByReferralCode(ctx context.Context, code string) (*domain.User, error)
	// CreateUser assigns u.ID when it is empty.
	CreateUser(ctx context.Context, u *domain.User) error
	// UpdateUser replaces the whole record.
	UpdateUser(ctx context.Context, u domain.User) error
	ListUsers(ctx context.Context, page, limit int) ([]domain.User, int, error)

	// RecordReferral stores the referrer/referred pair. A second referral for the
	// same referred user returns domain.ErrAlreadyExists.
	RecordReferral(ctx context.Context, referrerID, referredID string, reward int64) error

	// CreateWithdrawal assigns w.ID and w.CreatedAt when empty.
	CreateWithdrawal(ctx context.Context, w *domain.WithdrawalRequest) error
	GetWithdrawal(ctx context.Context, id string) (*domain.WithdrawalRequest, error)
	ListWithdrawals(ctx context.Context, f domain.WithdrawalFilter) ([]domain.WithdrawalRequest, error)
	// UpdateWithdrawal replaces w only while the stored status still equals from,
	// otherwise it returns domain.ErrStatusConflict.
	UpdateWithdrawal(ctx context.Context, w domain.WithdrawalRequest, from domain.WithdrawalStatus) error

	Ping(ctx context.Context) error
}

// AllUsers walks every page of ListUsers.
func AllUsers(ctx context.Context, s Store, pageSize int) ([]domain.User, error) {
	var all []domain.User
	for page := 1; ; page++ {
		users, total, err := s.ListUsers(ctx, page, pageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, users...)
		if len(users) == 0 || len(all) >= total {
			return all, nil
		}
	}
}
