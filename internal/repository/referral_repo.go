package repository

import (
	"context"
	"fmt"
	"time"

	"tree_ton/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Referral struct {
	ReferrerID string    `json:"referrer_id"`
	ReferredID string    `json:"referred_id"`
	Reward     int64     `json:"reward"`
	CreatedAt  time.Time `json:"created_at"`
}

type ReferralRepository struct {
	db *pgxpool.Pool
}

func NewReferralRepository(db *pgxpool.Pool) *ReferralRepository {
	return &ReferralRepository{db: db}
}

// Create records a referral. A user can be referred only once.
func (r *ReferralRepository) Create(ctx context.Context, referrerID, referredID string, reward int64) error {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO referrals (referrer_id, referred_id, reward)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (referred_id) DO NOTHING`,
		referrerID, referredID, reward,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("referral for %s: %w", referredID, domain.ErrAlreadyExists)
	}
	return nil
}

// GetReferralsByUser returns all referrals made by a user
func (r *ReferralRepository) GetReferralsByUser(ctx context.Context, referrerID string) ([]Referral, error) {
	rows, err := r.db.Query(ctx,
		`SELECT referrer_id, referred_id, reward, created_at
		 FROM referrals
		 WHERE referrer_id = $1
		 ORDER BY created_at DESC`,
		referrerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var referrals []Referral
	for rows.Next() {
		var ref Referral
		if err := rows.Scan(&ref.ReferrerID, &ref.ReferredID, &ref.Reward, &ref.CreatedAt); err != nil {
			return nil, err
		}
		referrals = append(referrals, ref)
	}
	return referrals, rows.Err()
}
