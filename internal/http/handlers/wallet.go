package handlers

import (
	"net/http"

	"tree_ton/internal/wallet"

	"github.com/gin-gonic/gin"
)

// ConnectWallet verifies a TON Connect proof and links the wallet.
func (h *Handler) ConnectWallet(c *gin.Context) {
	var req wallet.ConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	if req.Account.Address == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "account address required"})
		return
	}

	s, ok := h.session(c)
	if !ok {
		return
	}
	u, err := h.Wallets.Connect(c.Request.Context(), s, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user":        u,
		"address":     u.WalletAddress,
		"ton_balance": u.TonBalance,
	})
}

func (h *Handler) DisconnectWallet(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	u, err := h.Wallets.Disconnect(c.Request.Context(), s)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
}

// RefreshWallet re-reads the on-chain balance of the linked wallet.
func (h *Handler) RefreshWallet(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	u, err := h.Wallets.Refresh(c.Request.Context(), s)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u, "ton_balance": u.TonBalance})
}
