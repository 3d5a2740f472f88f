package repository

import (
	"context"

	"tree_ton/internal/domain"
	"tree_ton/internal/store"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store implements store.Store on Postgres.
type Store struct {
	db          *pgxpool.Pool
	Users       *UserRepository
	Withdrawals *WithdrawalRepository
	Referrals   *ReferralRepository
	Audit       *AuditRepository
}

var _ store.Store = (*Store)(nil)

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{
		db:          db,
		Users:       NewUserRepository(db),
		Withdrawals: NewWithdrawalRepository(db),
		Referrals:   NewReferralRepository(db),
		Audit:       NewAuditRepository(db),
	}
}

func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	return s.Users.GetByID(ctx, id)
}

func (s *Store) GetUserByTelegramID(ctx context.Context, tgID int64) (*domain.User, error) {
	return s.Users.GetByTgID(ctx, tgID)
}

func (s *Store) GetUserByReferralCode(ctx context.Context, code string) (*domain.User, error) {
	return s.Users.GetByReferralCode(ctx, code)
}

func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	return s.Users.Create(ctx, u)
}

func (s *Store) UpdateUser(ctx context.Context, u domain.User) error {
	return s.Users.Update(ctx, u)
}

func (s *Store) ListUsers(ctx context.Context, page, limit int) ([]domain.User, int, error) {
	return s.Users.List(ctx, page, limit)
}

func (s *Store) RecordReferral(ctx context.Context, referrerID, referredID string, reward int64) error {
	return s.Referrals.Create(ctx, referrerID, referredID, reward)
}

func (s *Store) CreateWithdrawal(ctx context.Context, w *domain.WithdrawalRequest) error {
	return s.Withdrawals.Create(ctx, w)
}

func (s *Store) GetWithdrawal(ctx context.Context, id string) (*domain.WithdrawalRequest, error) {
	return s.Withdrawals.GetByID(ctx, id)
}

func (s *Store) ListWithdrawals(ctx context.Context, f domain.WithdrawalFilter) ([]domain.WithdrawalRequest, error) {
	return s.Withdrawals.List(ctx, f)
}

func (s *Store) UpdateWithdrawal(ctx context.Context, w domain.WithdrawalRequest, from domain.WithdrawalStatus) error {
	return s.Withdrawals.UpdateFrom(ctx, w, from)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
