package handlers

import (
	"net/http"

	"tree_ton/internal/economy"

	"github.com/gin-gonic/gin"
)

// ListUpgrades returns the upgrade catalog priced for the caller.
func (h *Handler) ListUpgrades(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	u := s.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"upgrades":    economy.Upgrades(u),
		"level":       u.Level,
		"ton_balance": u.TonBalance,
	})
}

// BuyUpgrade pays for an upgrade with the wallet's TON balance.
func (h *Handler) BuyUpgrade(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	u, err := s.Upgrade(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u, "upgrades": economy.Upgrades(u)})
}
