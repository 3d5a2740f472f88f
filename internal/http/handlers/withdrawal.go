package handlers

import (
	"net/http"

	"tree_ton/internal/domain"
	"tree_ton/internal/withdrawal"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type WithdrawRequestBody struct {
	Asset  domain.Asset    `json:"asset" binding:"required"`
	Amount decimal.Decimal `json:"amount"`
}

// RequestWithdrawal submits a pending withdrawal of coins or TON.
func (h *Handler) RequestWithdrawal(c *gin.Context) {
	var req WithdrawRequestBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	s, ok := h.session(c)
	if !ok {
		return
	}
	w, err := h.Withdrawals.Submit(c.Request.Context(), s.Snapshot(), req.Asset, req.Amount)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"withdrawal": w, "net_amount": w.NetAmount()})
}

// GetWithdrawals lists the caller's requests, newest first.
func (h *Handler) GetWithdrawals(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	list, err := h.Withdrawals.List(c.Request.Context(), domain.WithdrawalFilter{
		UserID: userID,
		Status: domain.WithdrawalStatus(c.Query("status")),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"withdrawals": list})
}

// WithdrawalConfig returns minimums and fees per asset.
func (h *Handler) WithdrawalConfig(c *gin.Context) {
	out := gin.H{}
	for _, a := range []domain.Asset{domain.AssetCoins, domain.AssetTON} {
		out[string(a)] = gin.H{
			"minimum": withdrawal.Minimum(a),
			"fee":     withdrawal.Fee(a),
		}
	}
	c.JSON(http.StatusOK, out)
}
