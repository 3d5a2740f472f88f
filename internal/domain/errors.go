package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientResource: energy, points, coins or balance too low. State is unchanged.
	ErrInsufficientResource = errors.New("insufficient resource")
	ErrNotFound             = errors.New("not found")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrBelowMinimum         = errors.New("amount below minimum")
	ErrDailyLimit           = errors.New("daily withdrawal limit exceeded")
	ErrWalletNotConnected   = errors.New("wallet not connected")
	ErrUpgradeLocked        = errors.New("upgrade locked")
	ErrUnknownUpgrade       = errors.New("unknown upgrade")
	ErrUnknownTask          = errors.New("unknown task")
	ErrTaskNotReady         = errors.New("task requirements not met")
	ErrAccountDisabled      = errors.New("account disabled")
	ErrInvalidTransition    = errors.New("invalid withdrawal status transition")
	ErrStatusConflict       = errors.New("withdrawal status changed concurrently")
	ErrReasonRequired       = errors.New("rejection reason required")
	ErrTxHashRequired       = errors.New("transaction hash required")
	ErrPaymentInFlight      = errors.New("payment already in progress")
	ErrSelfReferral         = errors.New("self referral")
	ErrAlreadyExists        = errors.New("already exists")
)

// PersistenceError is a failed background write. It is logged, never returned to the
// action that caused it.
type PersistenceError struct {
	Op     string
	UserID string
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s for user %s: %v", e.Op, e.UserID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
