package handlers

import (
	"net/http"

	"tree_ton/internal/economy"

	"github.com/gin-gonic/gin"
)

// ListTasks returns the catalog evaluated for the caller.
func (h *Handler) ListTasks(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": economy.TaskViews(s.Snapshot())})
}

// CompleteTask claims a task reward. Claiming twice is a no-op.
func (h *Handler) CompleteTask(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	taskID := c.Param("id")
	before := s.Snapshot()
	u, err := s.CompleteTask(taskID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user":    u,
		"reward":  u.Coins - before.Coins,
		"already": before.HasCompleted(taskID),
		"tasks":   economy.TaskViews(u),
	})
}
