package repository

import (
	"context"
	"errors"
	"fmt"

	"tree_ton/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const userColumns = `id, telegram_id, username, first_name, last_name,
	points, coins, level, energy, max_energy, mining_rate,
	referral_count, referral_code, completed_tasks,
	wallet_address, ton_balance::text, is_wallet_connected,
	total_mined, joined_at, last_active, last_mining, status`

type UserRepository struct {
	db *pgxpool.Pool
}

func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		u       domain.User
		balance string
		status  string
	)
	if err := row.Scan(
		&u.ID, &u.TelegramID, &u.Username, &u.FirstName, &u.LastName,
		&u.Points, &u.Coins, &u.Level, &u.Energy, &u.MaxEnergy, &u.MiningRate,
		&u.ReferralCount, &u.ReferralCode, &u.CompletedTasks,
		&u.WalletAddress, &balance, &u.IsWalletConnected,
		&u.TotalMined, &u.JoinedAt, &u.LastActive, &u.LastMining, &status,
	); err != nil {
		return nil, err
	}

	d, err := decimal.NewFromString(balance)
	if err != nil {
		return nil, fmt.Errorf("ton_balance %q: %w", balance, err)
	}
	u.TonBalance = d
	u.Status = domain.UserStatus(status)
	if u.CompletedTasks == nil {
		u.CompletedTasks = []string{}
	}
	return &u, nil
}

func (r *UserRepository) getOne(ctx context.Context, what, where string, arg any) (*domain.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+where+` = $1`, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s %v: %w", what, arg, domain.ErrNotFound)
	}
	return u, err
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, "user", "id", id)
}

func (r *UserRepository) GetByTgID(ctx context.Context, tgID int64) (*domain.User, error) {
	return r.getOne(ctx, "telegram user", "telegram_id", tgID)
}

func (r *UserRepository) GetByReferralCode(ctx context.Context, code string) (*domain.User, error) {
	return r.getOne(ctx, "referral code", "referral_code", code)
}

// Create inserts u, assigning a uuid when u.ID is empty.
func (r *UserRepository) Create(ctx context.Context, u *domain.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CompletedTasks == nil {
		u.CompletedTasks = []string{}
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO users (id, telegram_id, username, first_name, last_name,
			points, coins, level, energy, max_energy, mining_rate,
			referral_count, referral_code, completed_tasks,
			wallet_address, ton_balance, is_wallet_connected,
			total_mined, joined_at, last_active, last_mining, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16::numeric, $17, $18, $19, $20, $21, $22)
	`,
		u.ID, u.TelegramID, u.Username, u.FirstName, u.LastName,
		u.Points, u.Coins, u.Level, u.Energy, u.MaxEnergy, u.MiningRate,
		u.ReferralCount, u.ReferralCode, u.CompletedTasks,
		u.WalletAddress, u.TonBalance.String(), u.IsWalletConnected,
		u.TotalMined, u.JoinedAt, u.LastActive, u.LastMining, string(u.Status),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("telegram user %d: %w", u.TelegramID, domain.ErrAlreadyExists)
	}
	return err
}

// Update replaces every mutable column of the user.
func (r *UserRepository) Update(ctx context.Context, u domain.User) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE users SET
			username = $2, first_name = $3, last_name = $4,
			points = $5, coins = $6, level = $7, energy = $8, max_energy = $9, mining_rate = $10,
			referral_count = $11, completed_tasks = $12,
			wallet_address = $13, ton_balance = $14::numeric, is_wallet_connected = $15,
			total_mined = $16, last_active = $17, last_mining = $18, status = $19
		WHERE id = $1
	`,
		u.ID, u.Username, u.FirstName, u.LastName,
		u.Points, u.Coins, u.Level, u.Energy, u.MaxEnergy, u.MiningRate,
		u.ReferralCount, u.CompletedTasks,
		u.WalletAddress, u.TonBalance.String(), u.IsWalletConnected,
		u.TotalMined, u.LastActive, u.LastMining, string(u.Status),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", u.ID, domain.ErrNotFound)
	}
	return nil
}

// List returns one page of users ordered by join time, plus the total count.
func (r *UserRepository) List(ctx context.Context, page, limit int) ([]domain.User, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+userColumns+`
		FROM users
		ORDER BY joined_at, id
		LIMIT $1 OFFSET $2
	`, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	users := make([]domain.User, 0, limit)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, *u)
	}
	return users, total, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
