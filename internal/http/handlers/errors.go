package handlers

import (
	"errors"
	"net/http"

	"tree_ton/internal/admin"
	"tree_ton/internal/bot"
	"tree_ton/internal/domain"
	"tree_ton/internal/identity"
	"tree_ton/internal/logger"
	"tree_ton/internal/session"
	"tree_ton/internal/wallet"

	"github.com/gin-gonic/gin"
)

// respondError maps a service error to a status and a user-visible message.
func respondError(c *gin.Context, err error) {
	status, msg := classify(err)
	if status >= http.StatusInternalServerError {
		logger.WithContext(c.Request.Context()).Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": msg})
}

func classify(err error) (int, string) {
	var (
		connErr *wallet.ConnectionError
		txErr   *wallet.TransactionError
	)
	switch {
	case errors.As(err, &connErr):
		return http.StatusBadRequest, "wallet connection failed: " + connErr.Reason
	case errors.As(err, &txErr):
		return http.StatusBadGateway, "payment failed"

	case errors.Is(err, bot.ErrNotConfigured):
		return http.StatusServiceUnavailable, "telegram bot not configured"
	case errors.Is(err, identity.ErrInvalidInitData), errors.Is(err, identity.ErrMissingUser):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, domain.ErrAccountDisabled):
		return http.StatusForbidden, "account disabled"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, domain.ErrUnknownTask), errors.Is(err, domain.ErrUnknownUpgrade):
		return http.StatusNotFound, err.Error()

	case errors.Is(err, domain.ErrInsufficientResource):
		return http.StatusBadRequest, "insufficient balance"
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrBelowMinimum),
		errors.Is(err, domain.ErrDailyLimit),
		errors.Is(err, domain.ErrWalletNotConnected),
		errors.Is(err, domain.ErrTaskNotReady),
		errors.Is(err, domain.ErrReasonRequired),
		errors.Is(err, domain.ErrTxHashRequired),
		errors.Is(err, domain.ErrSelfReferral),
		errors.Is(err, admin.ErrInvalidMessage),
		errors.Is(err, admin.ErrInvalidTarget),
		errors.Is(err, admin.ErrNoRecipients):
		return http.StatusBadRequest, err.Error()

	case errors.Is(err, domain.ErrUpgradeLocked),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrStatusConflict),
		errors.Is(err, domain.ErrPaymentInFlight),
		errors.Is(err, domain.ErrAlreadyExists),
		errors.Is(err, session.ErrClosed):
		return http.StatusConflict, err.Error()
	}
	return http.StatusInternalServerError, "internal error"
}
