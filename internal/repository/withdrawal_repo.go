package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"tree_ton/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const withdrawalColumns = `id, user_id, telegram_id, username, amount::text, fee::text, asset, status,
	wallet_address, reason, tx_hash, attempts, last_error, created_at, processed_at, completed_at`

type WithdrawalRepository struct {
	db *pgxpool.Pool
}

func NewWithdrawalRepository(db *pgxpool.Pool) *WithdrawalRepository {
	return &WithdrawalRepository{db: db}
}

func scanWithdrawal(row pgx.Row) (*domain.WithdrawalRequest, error) {
	var (
		w             domain.WithdrawalRequest
		amount, fee   string
		asset, status string
	)
	if err := row.Scan(
		&w.ID, &w.UserID, &w.TelegramID, &w.Username, &amount, &fee, &asset, &status,
		&w.WalletAddress, &w.Reason, &w.TxHash, &w.Attempts, &w.LastError,
		&w.CreatedAt, &w.ProcessedAt, &w.CompletedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if w.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("amount %q: %w", amount, err)
	}
	if w.Fee, err = decimal.NewFromString(fee); err != nil {
		return nil, fmt.Errorf("fee %q: %w", fee, err)
	}
	w.Asset = domain.Asset(asset)
	w.Status = domain.WithdrawalStatus(status)
	return &w, nil
}

// Create inserts w, assigning its id and creation time when unset.
func (r *WithdrawalRepository) Create(ctx context.Context, w *domain.WithdrawalRequest) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO withdrawals (id, user_id, telegram_id, username, amount, fee, asset, status,
			wallet_address, reason, tx_hash, attempts, last_error, created_at, processed_at, completed_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`,
		w.ID, w.UserID, w.TelegramID, w.Username, w.Amount.String(), w.Fee.String(), string(w.Asset), string(w.Status),
		w.WalletAddress, w.Reason, w.TxHash, w.Attempts, w.LastError, w.CreatedAt, w.ProcessedAt, w.CompletedAt,
	)
	return err
}

func (r *WithdrawalRepository) GetByID(ctx context.Context, id string) (*domain.WithdrawalRequest, error) {
	w, err := scanWithdrawal(r.db.QueryRow(ctx, `SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("withdrawal %s: %w", id, domain.ErrNotFound)
	}
	return w, err
}

// List returns the requests matching f, newest first.
func (r *WithdrawalRepository) List(ctx context.Context, f domain.WithdrawalFilter) ([]domain.WithdrawalRequest, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, strings.Replace(cond, "?", "$"+strconv.Itoa(len(args)), 1))
	}
	if f.UserID != "" {
		add("user_id = ?", f.UserID)
	}
	if f.Status != "" {
		add("status = ?", string(f.Status))
	}
	if f.Asset != "" {
		add("asset = ?", string(f.Asset))
	}
	if !f.Since.IsZero() {
		add("created_at >= ?", f.Since)
	}

	q := `SELECT ` + withdrawalColumns + ` FROM withdrawals`
	if len(conds) > 0 {
		q += ` WHERE ` + strings.Join(conds, " AND ")
	}
	q += ` ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.WithdrawalRequest{}
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

// UpdateFrom replaces w while the stored status still equals from.
func (r *WithdrawalRepository) UpdateFrom(ctx context.Context, w domain.WithdrawalRequest, from domain.WithdrawalStatus) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE withdrawals SET
			status = $2, reason = $3, tx_hash = $4, attempts = $5, last_error = $6,
			processed_at = $7, completed_at = $8
		WHERE id = $1 AND status = $9
	`,
		w.ID, string(w.Status), w.Reason, w.TxHash, w.Attempts, w.LastError,
		w.ProcessedAt, w.CompletedAt, string(from),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	if _, err := r.GetByID(ctx, w.ID); err != nil {
		return err
	}
	return fmt.Errorf("withdrawal %s not %s: %w", w.ID, from, domain.ErrStatusConflict)
}
