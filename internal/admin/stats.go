// Package admin serves the operator views: platform statistics, user
// management, withdrawal processing and broadcasts.
package admin

import (
	"strconv"
	"strings"
	"time"

	"tree_ton/internal/domain"

	"github.com/shopspring/decimal"
)

const (
	ActiveWindow = 7 * 24 * time.Hour
	DailyWindow  = 24 * time.Hour
)

// Stats represents platform statistics
type Stats struct {
	TotalUsers       int   `json:"total_users"`
	ActiveUsers      int   `json:"active_users"`
	DailyActiveUsers int   `json:"daily_active_users"`
	TotalMined       int64 `json:"total_mined"`

	TotalWithdrawals   int             `json:"total_withdrawals"`
	PendingWithdrawals int             `json:"pending_withdrawals"`
	WithdrawnCoins     decimal.Decimal `json:"withdrawn_coins"`
	WithdrawnTON       decimal.Decimal `json:"withdrawn_ton"`

	WalletConnected int `json:"wallet_connected"`
	// ConversionRate is the percentage of users with a connected wallet.
	ConversionRate float64 `json:"conversion_rate"`
}

// RecentlyActive reports whether u is active and was seen within window of now.
func RecentlyActive(u domain.User, now time.Time, window time.Duration) bool {
	return u.Active() && u.LastActive.After(now.Add(-window))
}

// ComputeStats derives the dashboard from the full user and withdrawal lists.
func ComputeStats(users []domain.User, withdrawals []domain.WithdrawalRequest, now time.Time) Stats {
	s := Stats{
		TotalUsers:       len(users),
		TotalWithdrawals: len(withdrawals),
		WithdrawnCoins:   decimal.Zero,
		WithdrawnTON:     decimal.Zero,
	}

	for _, u := range users {
		s.TotalMined += u.TotalMined
		if RecentlyActive(u, now, ActiveWindow) {
			s.ActiveUsers++
		}
		if RecentlyActive(u, now, DailyWindow) {
			s.DailyActiveUsers++
		}
		if u.IsWalletConnected {
			s.WalletConnected++
		}
	}

	for _, w := range withdrawals {
		switch w.Status {
		case domain.WithdrawalStatusPending:
			s.PendingWithdrawals++
		case domain.WithdrawalStatusCompleted:
			if w.Asset == domain.AssetTON {
				s.WithdrawnTON = s.WithdrawnTON.Add(w.Amount)
			} else {
				s.WithdrawnCoins = s.WithdrawnCoins.Add(w.Amount)
			}
		}
	}

	if s.TotalUsers > 0 {
		rate := decimal.NewFromInt(int64(s.WalletConnected)).
			Mul(decimal.NewFromInt(100)).
			Div(decimal.NewFromInt(int64(s.TotalUsers))).
			Round(2)
		s.ConversionRate = rate.InexactFloat64()
	}
	return s
}

// UserFilter narrows the admin user list. Zero values match everything.
type UserFilter struct {
	// Search matches username or first name (case-insensitive) or the telegram id.
	Search string
	Status domain.UserStatus
}

// Match reports whether u passes the filter.
func (f UserFilter) Match(u domain.User) bool {
	if f.Status != "" && u.Status != f.Status {
		return false
	}
	q := strings.ToLower(strings.TrimSpace(f.Search))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(u.Username), q) ||
		strings.Contains(strings.ToLower(u.FirstName), q) ||
		strings.Contains(strconv.FormatInt(u.TelegramID, 10), q)
}

// FilterUsers returns the users passing f, in input order.
func FilterUsers(users []domain.User, f UserFilter) []domain.User {
	out := make([]domain.User, 0, len(users))
	for _, u := range users {
		if f.Match(u) {
			out = append(out, u)
		}
	}
	return out
}
