package service

import (
	"context"

	"tree_ton/internal/domain"
	"tree_ton/internal/logger"
)

// AuditSink stores audit entries.
type AuditSink interface {
	Create(ctx context.Context, log *domain.AuditLog) error
}

// AuditReader returns stored audit entries.
type AuditReader interface {
	GetByUserID(ctx context.Context, userID string, limit int) ([]*domain.AuditLog, error)
}

// AuditService handles audit logging. A nil *AuditService drops entries; one
// without a sink only writes them to the log.
type AuditService struct {
	sink AuditSink
}

// NewAuditService creates a new audit service
func NewAuditService(sink AuditSink) *AuditService {
	return &AuditService{sink: sink}
}

// Log creates a new audit log entry
func (s *AuditService) Log(ctx context.Context, actorID, userID, action, category string, details map[string]any) {
	if s == nil {
		return
	}

	entry := &domain.AuditLog{
		ActorID:  actorID,
		UserID:   userID,
		Action:   action,
		Category: category,
		Details:  details,
	}

	if s.sink == nil {
		logger.WithContext(ctx).Info("audit", "action", action, "category", category, "actor_id", actorID, "user_id", userID, "details", details)
		return
	}
	if err := s.sink.Create(ctx, entry); err != nil {
		logger.Error("failed to create audit log", "error", err, "action", action, "user_id", userID)
	}
}

// LogLogin logs a user login
func (s *AuditService) LogLogin(ctx context.Context, userID string, created bool) {
	s.Log(ctx, userID, userID, domain.AuditActionLogin, domain.AuditCategoryAuth, map[string]any{"created": created})
}

// LogWithdrawRequest logs a withdrawal request
func (s *AuditService) LogWithdrawRequest(ctx context.Context, w domain.WithdrawalRequest) {
	s.Log(ctx, w.UserID, w.UserID, domain.AuditActionWithdrawRequest, domain.AuditCategoryWithdrawal, map[string]any{
		"withdrawal_id":  w.ID,
		"amount":         w.Amount.String(),
		"asset":          string(w.Asset),
		"wallet_address": w.WalletAddress,
	})
}

// LogWithdrawApprove logs a successful payout
func (s *AuditService) LogWithdrawApprove(ctx context.Context, actorID string, w domain.WithdrawalRequest) {
	s.Log(ctx, actorID, w.UserID, domain.AuditActionWithdrawApprove, domain.AuditCategoryWithdrawal, map[string]any{
		"withdrawal_id": w.ID,
		"tx_hash":       w.TxHash,
		"attempts":      w.Attempts,
	})
}

// LogWithdrawPaymentFailed logs a failed payout attempt
func (s *AuditService) LogWithdrawPaymentFailed(ctx context.Context, actorID string, w domain.WithdrawalRequest) {
	s.Log(ctx, actorID, w.UserID, domain.AuditActionWithdrawPayFail, domain.AuditCategoryWithdrawal, map[string]any{
		"withdrawal_id": w.ID,
		"error":         w.LastError,
		"attempts":      w.Attempts,
	})
}

// LogWithdrawSettle logs a manual settlement
func (s *AuditService) LogWithdrawSettle(ctx context.Context, actorID string, w domain.WithdrawalRequest) {
	s.Log(ctx, actorID, w.UserID, domain.AuditActionWithdrawSettle, domain.AuditCategoryWithdrawal, map[string]any{
		"withdrawal_id": w.ID,
		"tx_hash":       w.TxHash,
	})
}

// LogWithdrawReject logs a withdrawal rejection
func (s *AuditService) LogWithdrawReject(ctx context.Context, actorID string, w domain.WithdrawalRequest) {
	s.Log(ctx, actorID, w.UserID, domain.AuditActionWithdrawReject, domain.AuditCategoryWithdrawal, map[string]any{
		"withdrawal_id": w.ID,
		"reason":        w.Reason,
	})
}

// LogWallet logs a wallet connect or disconnect
func (s *AuditService) LogWallet(ctx context.Context, userID, action, address string) {
	s.Log(ctx, userID, userID, action, domain.AuditCategoryWallet, map[string]any{"address": address})
}

// LogReferral logs an applied referral
func (s *AuditService) LogReferral(ctx context.Context, referrerID, referredID string, reward int64) {
	s.Log(ctx, referredID, referrerID, domain.AuditActionReferral, domain.AuditCategoryReferral, map[string]any{
		"referred_id": referredID,
		"reward":      reward,
	})
}

// LogAdminAction logs an admin action
func (s *AuditService) LogAdminAction(ctx context.Context, adminID, action, targetUserID string, details map[string]any) {
	if details == nil {
		details = make(map[string]any)
	}
	details["admin_id"] = adminID
	s.Log(ctx, adminID, targetUserID, action, domain.AuditCategoryAdmin, details)
}

// GetUserAuditLogs returns audit logs for a user. It returns nothing when the
// sink cannot be read back.
func (s *AuditService) GetUserAuditLogs(ctx context.Context, userID string, limit int) ([]*domain.AuditLog, error) {
	if s == nil {
		return nil, nil
	}
	r, ok := s.sink.(AuditReader)
	if !ok {
		return nil, nil
	}
	return r.GetByUserID(ctx, userID, limit)
}
