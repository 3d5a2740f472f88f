package handlers

import (
	"net/http"

	"tree_ton/internal/domain"
	"tree_ton/internal/economy"

	"github.com/gin-gonic/gin"
)

func userState(u domain.User) gin.H {
	return gin.H{
		"user":          u,
		"mining_reward": economy.MiningReward(u),
		"convertible":   economy.ConvertibleAmount(u.Points),
	}
}

// Me returns the caller's current state and records the visit.
func (h *Handler) Me(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	u, err := s.Touch()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, userState(u))
}

// Tap performs one mining action.
func (h *Handler) Tap(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	u, err := s.Tap()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, userState(u))
}

type ConvertRequest struct {
	// Points to convert. Zero converts everything convertible.
	Points int64 `json:"points"`
}

func (h *Handler) Convert(c *gin.Context) {
	var req ConvertRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
			return
		}
	}
	if req.Points < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "points must be positive"})
		return
	}

	s, ok := h.session(c)
	if !ok {
		return
	}
	before := s.Snapshot()
	u, err := s.Convert(req.Points)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user":   u,
		"coins":  u.Coins - before.Coins,
		"points": before.Points - u.Points,
	})
}

// Sync replaces the cached state with the stored record.
func (h *Handler) Sync(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	u, err := h.Sessions.Reload(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, userState(u))
}
