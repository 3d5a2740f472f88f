package domain

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// UserStatus is changed by administrators only.
type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusBanned    UserStatus = "banned"
	UserStatusSuspended UserStatus = "suspended"
)

// Valid reports whether s is one of the known statuses.
func (s UserStatus) Valid() bool {
	switch s {
	case UserStatusActive, UserStatusBanned, UserStatusSuspended:
		return true
	}
	return false
}

// Defaults for a freshly registered user.
const (
	DefaultLevel      = 1
	DefaultEnergy     = 100
	DefaultMaxEnergy  = 100
	DefaultMiningRate = 1

	ReferralCodePrefix = "TREE"
)

type User struct {
	ID         string `db:"id" json:"id"`
	TelegramID int64  `db:"telegram_id" json:"telegram_id"`
	Username   string `db:"username" json:"username"`
	FirstName  string `db:"first_name" json:"first_name"`
	LastName   string `db:"last_name" json:"last_name,omitempty"`

	Points     int64 `db:"points" json:"points"`
	Coins      int64 `db:"coins" json:"coins"`
	Level      int   `db:"level" json:"level"`
	Energy     int   `db:"energy" json:"energy"`
	MaxEnergy  int   `db:"max_energy" json:"max_energy"`
	MiningRate int64 `db:"mining_rate" json:"mining_rate"`

	ReferralCount  int      `db:"referral_count" json:"referral_count"`
	ReferralCode   string   `db:"referral_code" json:"referral_code"`
	CompletedTasks []string `db:"completed_tasks" json:"completed_tasks"`

	WalletAddress     string          `db:"wallet_address" json:"wallet_address,omitempty"`
	TonBalance        decimal.Decimal `db:"ton_balance" json:"ton_balance"`
	IsWalletConnected bool            `db:"is_wallet_connected" json:"is_wallet_connected"`

	TotalMined int64      `db:"total_mined" json:"total_mined"`
	JoinedAt   time.Time  `db:"joined_at" json:"joined_at"`
	LastActive time.Time  `db:"last_active" json:"last_active"`
	LastMining *time.Time `db:"last_mining" json:"last_mining,omitempty"`
	Status     UserStatus `db:"status" json:"status"`
}

// NewUser returns a user with the default economy state. The id is assigned by the store.
func NewUser(telegramID int64, username, firstName, lastName string, now time.Time) User {
	return User{
		TelegramID:     telegramID,
		Username:       username,
		FirstName:      firstName,
		LastName:       lastName,
		Level:          DefaultLevel,
		Energy:         DefaultEnergy,
		MaxEnergy:      DefaultMaxEnergy,
		MiningRate:     DefaultMiningRate,
		ReferralCode:   ReferralCode(telegramID),
		CompletedTasks: []string{},
		TonBalance:     decimal.Zero,
		JoinedAt:       now,
		LastActive:     now,
		Status:         UserStatusActive,
	}
}

// ReferralCode derives the shareable referral code from the telegram id.
func ReferralCode(telegramID int64) string {
	return ReferralCodePrefix + strconv.FormatInt(telegramID, 10)
}

// HasCompleted reports whether taskID is in the completed set.
func (u User) HasCompleted(taskID string) bool {
	for _, id := range u.CompletedTasks {
		if id == taskID {
			return true
		}
	}
	return false
}

// Active reports whether the account may play.
func (u User) Active() bool {
	return u.Status == UserStatusActive
}

// Clone returns a copy that shares no mutable state with u.
func (u User) Clone() User {
	c := u
	c.CompletedTasks = append([]string(nil), u.CompletedTasks...)
	if u.LastMining != nil {
		t := *u.LastMining
		c.LastMining = &t
	}
	return c
}

// DisplayName is used in notifications.
func (u User) DisplayName() string {
	if u.Username != "" {
		return "@" + u.Username
	}
	if u.FirstName != "" {
		return u.FirstName
	}
	return "user " + strconv.FormatInt(u.TelegramID, 10)
}
