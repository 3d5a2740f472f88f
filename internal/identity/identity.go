// Package identity turns what the mini-app sends at login into a platform identity.
package identity

import (
	"context"
	"errors"
)

var (
	ErrInvalidInitData = errors.New("invalid or stale init data")
	ErrMissingUser     = errors.New("init data has no user")
)

// Identity is the platform user behind a login.
type Identity struct {
	TelegramID int64  `json:"id"`
	Username   string `json:"username"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	// StartParam is the deep link payload (referral code or referrer id).
	StartParam string `json:"-"`
	Synthetic  bool   `json:"-"`
}

// Provider resolves the raw init data sent by the client.
type Provider interface {
	Identify(ctx context.Context, initData string) (Identity, error)
}
