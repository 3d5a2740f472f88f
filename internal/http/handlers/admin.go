package handlers

import (
	"net/http"
	"strconv"

	"tree_ton/internal/admin"
	"tree_ton/internal/domain"

	"github.com/gin-gonic/gin"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
	auditLogLimit   = 100
)

// queryInt reads a positive integer query value. upper of 0 means unbounded.
func queryInt(c *gin.Context, key string, def, upper int) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil || n <= 0 {
		return def
	}
	if upper > 0 && n > upper {
		return upper
	}
	return n
}

func (h *Handler) AdminStats(c *gin.Context) {
	stats, err := h.Admin.GetStats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// AdminListUsers supports ?search=&status=&page=&limit=.
func (h *Handler) AdminListUsers(c *gin.Context) {
	status := domain.UserStatus(c.Query("status"))
	if status != "" && !status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}
	page, err := h.Admin.ListUsers(c.Request.Context(),
		admin.UserFilter{Search: c.Query("search"), Status: status},
		queryInt(c, "page", 1, 0),
		queryInt(c, "limit", defaultPageSize, maxPageSize),
	)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) AdminGetUser(c *gin.Context) {
	u, err := h.Admin.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
}

// AdminUserAudit returns the latest audit entries about a user.
func (h *Handler) AdminUserAudit(c *gin.Context) {
	logs, err := h.Audit.GetUserAuditLogs(c.Request.Context(), c.Param("id"), queryInt(c, "limit", auditLogLimit, auditLogLimit))
	if err != nil {
		respondError(c, err)
		return
	}
	if logs == nil {
		logs = []*domain.AuditLog{}
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

type UpdateStatusRequest struct {
	Status domain.UserStatus `json:"status" binding:"required"`
}

func (h *Handler) AdminUpdateUserStatus(c *gin.Context) {
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}
	if !req.Status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}
	adminID, _ := getUserID(c)
	u, err := h.Admin.UpdateUserStatus(c.Request.Context(), adminID, c.Param("id"), req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
}

// AdminListWithdrawals supports ?status=.
func (h *Handler) AdminListWithdrawals(c *gin.Context) {
	status := domain.WithdrawalStatus(c.Query("status"))
	if status != "" && !status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}
	list, err := h.Admin.ListWithdrawals(c.Request.Context(), status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"withdrawals": list})
}

func (h *Handler) withdrawalResult(c *gin.Context, w domain.WithdrawalRequest, err error) {
	if err != nil {
		// a failed payment leaves the request processing; report both
		if w.ID != "" {
			status, msg := classify(err)
			c.JSON(status, gin.H{"error": msg, "withdrawal": w})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"withdrawal": w})
}

func (h *Handler) AdminApproveWithdrawal(c *gin.Context) {
	adminID, _ := getUserID(c)
	w, err := h.Withdrawals.Approve(c.Request.Context(), adminID, c.Param("id"))
	h.withdrawalResult(c, w, err)
}

func (h *Handler) AdminRetryWithdrawal(c *gin.Context) {
	adminID, _ := getUserID(c)
	w, err := h.Withdrawals.Retry(c.Request.Context(), adminID, c.Param("id"))
	h.withdrawalResult(c, w, err)
}

type RejectRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) AdminRejectWithdrawal(c *gin.Context) {
	var req RejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}
	adminID, _ := getUserID(c)
	w, err := h.Withdrawals.Reject(c.Request.Context(), adminID, c.Param("id"), req.Reason)
	h.withdrawalResult(c, w, err)
}

type SettleRequest struct {
	TxHash string `json:"tx_hash"`
}

// AdminSettleWithdrawal completes a processing request paid out of band.
func (h *Handler) AdminSettleWithdrawal(c *gin.Context) {
	var req SettleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}
	adminID, _ := getUserID(c)
	w, err := h.Withdrawals.Settle(c.Request.Context(), adminID, c.Param("id"), req.TxHash)
	h.withdrawalResult(c, w, err)
}

func (h *Handler) AdminBroadcast(c *gin.Context) {
	var req admin.BroadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}
	adminID, _ := getUserID(c)
	res, err := h.Admin.Broadcast(c.Request.Context(), adminID, req)
	if err != nil && res.Sent+res.Failed+res.Blocked == 0 {
		respondError(c, err)
		return
	}
	// a broadcast cut short still reports what was delivered
	out := gin.H{"result": res}
	if err != nil {
		out["error"] = err.Error()
	}
	c.JSON(http.StatusOK, out)
}
