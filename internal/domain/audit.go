package domain

import "time"

// AuditLog represents an audit log entry for tracking important actions
type AuditLog struct {
	ID        int64          `db:"id" json:"id"`
	ActorID   string         `db:"actor_id" json:"actor_id"`
	UserID    string         `db:"user_id" json:"user_id"`
	Action    string         `db:"action" json:"action"`
	Category  string         `db:"category" json:"category"`
	Details   map[string]any `db:"details" json:"details"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
}

// Audit action categories
const (
	AuditCategoryAuth       = "auth"
	AuditCategoryAdmin      = "admin"
	AuditCategoryWithdrawal = "withdrawal"
	AuditCategoryReferral   = "referral"
	AuditCategoryWallet     = "wallet"
)

// Audit actions
const (
	AuditActionLogin = "login"

	AuditActionWithdrawRequest = "withdraw_request"
	AuditActionWithdrawApprove = "withdraw_approve"
	AuditActionWithdrawPayFail = "withdraw_payment_failed"
	AuditActionWithdrawSettle  = "withdraw_settle"
	AuditActionWithdrawReject  = "withdraw_reject"

	AuditActionWalletConnect    = "wallet_connect"
	AuditActionWalletDisconnect = "wallet_disconnect"

	AuditActionReferral = "referral_applied"

	AuditActionAdminSetStatus = "admin_set_status"
	AuditActionAdminBroadcast = "admin_broadcast"
)
