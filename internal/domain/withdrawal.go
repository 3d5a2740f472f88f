package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Asset is the currency a withdrawal pays out.
type Asset string

const (
	AssetCoins Asset = "coins"
	AssetTON   Asset = "ton"
)

// Valid reports whether a is a known asset.
func (a Asset) Valid() bool {
	return a == AssetCoins || a == AssetTON
}

// WithdrawalStatus represents withdrawal processing status
type WithdrawalStatus string

const (
	WithdrawalStatusPending    WithdrawalStatus = "pending"
	WithdrawalStatusProcessing WithdrawalStatus = "processing"
	WithdrawalStatusCompleted  WithdrawalStatus = "completed"
	WithdrawalStatusRejected   WithdrawalStatus = "rejected"
)

// Valid reports whether s is a known status.
func (s WithdrawalStatus) Valid() bool {
	switch s {
	case WithdrawalStatusPending, WithdrawalStatusProcessing, WithdrawalStatusCompleted, WithdrawalStatusRejected:
		return true
	}
	return false
}

// CanTransition reports whether a request may move from one status to another.
// pending -> processing | rejected, processing -> completed. Nothing else.
func CanTransition(from, to WithdrawalStatus) bool {
	switch from {
	case WithdrawalStatusPending:
		return to == WithdrawalStatusProcessing || to == WithdrawalStatusRejected
	case WithdrawalStatusProcessing:
		return to == WithdrawalStatusCompleted
	}
	return false
}

// WithdrawalRequest is a user's request to pay out coins or TON to their wallet.
type WithdrawalRequest struct {
	ID            string           `db:"id" json:"id"`
	UserID        string           `db:"user_id" json:"user_id"`
	TelegramID    int64            `db:"telegram_id" json:"telegram_id"`
	Username      string           `db:"username" json:"username"`
	Amount        decimal.Decimal  `db:"amount" json:"amount"`
	Fee           decimal.Decimal  `db:"fee" json:"fee"`
	Asset         Asset            `db:"asset" json:"asset"`
	Status        WithdrawalStatus `db:"status" json:"status"`
	WalletAddress string           `db:"wallet_address" json:"wallet_address"`
	Reason        string           `db:"reason" json:"reason,omitempty"`
	TxHash        string           `db:"tx_hash" json:"tx_hash,omitempty"`
	Attempts      int              `db:"attempts" json:"attempts"`
	LastError     string           `db:"last_error" json:"last_error,omitempty"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
	ProcessedAt   *time.Time       `db:"processed_at" json:"processed_at,omitempty"`
	CompletedAt   *time.Time       `db:"completed_at" json:"completed_at,omitempty"`
}

// NetAmount is what the payout sends after the fee.
func (w WithdrawalRequest) NetAmount() decimal.Decimal {
	return w.Amount.Sub(w.Fee)
}

// Retryable reports whether the last payment attempt failed and may be repeated.
func (w WithdrawalRequest) Retryable() bool {
	return w.Status == WithdrawalStatusProcessing && w.LastError != ""
}

// WithdrawalFilter narrows withdrawal listings. Zero values match everything.
type WithdrawalFilter struct {
	UserID string
	Status WithdrawalStatus
	Asset  Asset
	Since  time.Time
}

// Match reports whether w passes the filter.
func (f WithdrawalFilter) Match(w WithdrawalRequest) bool {
	if f.UserID != "" && w.UserID != f.UserID {
		return false
	}
	if f.Status != "" && w.Status != f.Status {
		return false
	}
	if f.Asset != "" && w.Asset != f.Asset {
		return false
	}
	if !f.Since.IsZero() && w.CreatedAt.Before(f.Since) {
		return false
	}
	return true
}
