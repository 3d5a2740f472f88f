package handlers

import (
	"net/http"

	"tree_ton/internal/admin"
	"tree_ton/internal/http/middleware"
	"tree_ton/internal/identity"
	"tree_ton/internal/referral"
	"tree_ton/internal/service"
	"tree_ton/internal/session"
	"tree_ton/internal/wallet"
	"tree_ton/internal/withdrawal"

	"github.com/gin-gonic/gin"
)

// Handler serves the mini-app and admin API.
type Handler struct {
	Identity    identity.Provider
	Sessions    *session.Manager
	Referrals   *referral.Service
	Wallets     *wallet.Connector
	Withdrawals *withdrawal.Service
	Admin       *admin.AdminService
	Audit       *service.AuditService

	// AdminSecret enables POST /admin/auth. Empty disables it.
	AdminSecret string
	// IsAdmin marks telegram users whose login token carries the admin role.
	IsAdmin func(tgID int64) bool
}

// getUserID returns the authenticated user id set by middleware.JWT.
func getUserID(c *gin.Context) (string, bool) {
	id := c.GetString(middleware.CtxUserID)
	return id, id != ""
}

// session resolves the caller's live session, writing the error response itself.
func (h *Handler) session(c *gin.Context) (*session.Session, bool) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil, false
	}
	s, err := h.Sessions.Session(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return s, true
}
