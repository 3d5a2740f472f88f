package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetReferral returns the caller's invite link, referral count and milestones.
func (h *Handler) GetReferral(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.Referrals.Stats(s.Snapshot()))
}
