package handlers

import (
	"crypto/subtle"
	"net/http"

	"tree_ton/internal/domain"
	"tree_ton/internal/logger"
	"tree_ton/internal/service"

	"github.com/gin-gonic/gin"
)

const maxInitDataLen = 4096

type AuthRequest struct {
	InitData string `json:"init_data"`
}

// Auth logs a mini-app user in from Telegram init data. New users arriving
// through an invite link are credited to their referrer.
func (h *Handler) Auth(c *gin.Context) {
	var req AuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}
	if len(req.InitData) > maxInitDataLen {
		c.JSON(http.StatusBadRequest, gin.H{"error": "init_data too long"})
		return
	}

	ctx := c.Request.Context()
	id, err := h.Identity.Identify(ctx, req.InitData)
	if err != nil {
		respondError(c, err)
		return
	}

	s, created, err := h.Sessions.Login(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	user := s.Snapshot()

	if created && id.StartParam != "" && h.Referrals != nil {
		if _, err := h.Referrals.Apply(ctx, user, id.StartParam); err != nil {
			logger.WithContext(ctx).Info("referral not applied", "user_id", user.ID, "start_param", id.StartParam, "error", err)
		}
	}
	h.Audit.LogLogin(ctx, user.ID, created)

	role := service.RoleUser
	if h.IsAdmin != nil && h.IsAdmin(user.TelegramID) {
		role = service.RoleAdmin
	}
	token, err := service.GenerateJWT(user.ID, role)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token generation failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":   token,
		"user":    user,
		"created": created,
		"role":    role,
	})
}

type AdminAuthRequest struct {
	Secret string `json:"secret"`
}

// AdminAuth issues an admin token for the shared admin secret.
func (h *Handler) AdminAuth(c *gin.Context) {
	if h.AdminSecret == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "admin login disabled"})
		return
	}
	var req AdminAuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}
	if subtle.ConstantTimeCompare([]byte(req.Secret), []byte(h.AdminSecret)) != 1 {
		logger.WithContext(c.Request.Context()).Warn("admin login refused", "ip", c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid secret"})
		return
	}

	token, err := service.GenerateJWT("admin", service.RoleAdmin)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token generation failed"})
		return
	}
	h.Audit.Log(c.Request.Context(), "admin", "", domain.AuditActionLogin, domain.AuditCategoryAdmin, map[string]any{"ip": c.ClientIP()})
	c.JSON(http.StatusOK, gin.H{"token": token})
}
