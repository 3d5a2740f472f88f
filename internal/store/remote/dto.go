package remote

import (
	"time"

	"tree_ton/internal/domain"

	"github.com/shopspring/decimal"
)

// Timestamps travel as unix milliseconds.
func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func toMillisPtr(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

func fromMillisPtr(ms *int64) *time.Time {
	if ms == nil {
		return nil
	}
	t := time.UnixMilli(*ms).UTC()
	return &t
}

type userDTO struct {
	ID                string          `json:"id"`
	TelegramID        int64           `json:"telegramId"`
	Username          string          `json:"username"`
	FirstName         string          `json:"firstName"`
	LastName          string          `json:"lastName,omitempty"`
	Points            int64           `json:"points"`
	Coins             int64           `json:"coins"`
	Level             int             `json:"level"`
	Energy            int             `json:"energy"`
	MaxEnergy         int             `json:"maxEnergy"`
	MiningRate        int64           `json:"miningRate"`
	ReferralCount     int             `json:"referralCount"`
	ReferralCode      string          `json:"referralCode"`
	CompletedTasks    []string        `json:"completedTasks"`
	WalletAddress     string          `json:"walletAddress"`
	TonBalance        decimal.Decimal `json:"tonBalance"`
	IsWalletConnected bool            `json:"isWalletConnected"`
	TotalMined        int64           `json:"totalMined"`
	JoinedAt          int64           `json:"joinedAt"`
	LastActive        int64           `json:"lastActive"`
	LastMining        *int64          `json:"lastMining,omitempty"`
	Status            string          `json:"status"`
}

func newUserDTO(u domain.User) userDTO {
	tasks := u.CompletedTasks
	if tasks == nil {
		tasks = []string{}
	}
	return userDTO{
		ID:                u.ID,
		TelegramID:        u.TelegramID,
		Username:          u.Username,
		FirstName:         u.FirstName,
		LastName:          u.LastName,
		Points:            u.Points,
		Coins:             u.Coins,
		Level:             u.Level,
		Energy:            u.Energy,
		MaxEnergy:         u.MaxEnergy,
		MiningRate:        u.MiningRate,
		ReferralCount:     u.ReferralCount,
		ReferralCode:      u.ReferralCode,
		CompletedTasks:    tasks,
		WalletAddress:     u.WalletAddress,
		TonBalance:        u.TonBalance,
		IsWalletConnected: u.IsWalletConnected,
		TotalMined:        u.TotalMined,
		JoinedAt:          toMillis(u.JoinedAt),
		LastActive:        toMillis(u.LastActive),
		LastMining:        toMillisPtr(u.LastMining),
		Status:            string(u.Status),
	}
}

func (d userDTO) user() domain.User {
	u := domain.User{
		ID:                d.ID,
		TelegramID:        d.TelegramID,
		Username:          d.Username,
		FirstName:         d.FirstName,
		LastName:          d.LastName,
		Points:            d.Points,
		Coins:             d.Coins,
		Level:             d.Level,
		Energy:            d.Energy,
		MaxEnergy:         d.MaxEnergy,
		MiningRate:        d.MiningRate,
		ReferralCount:     d.ReferralCount,
		ReferralCode:      d.ReferralCode,
		CompletedTasks:    d.CompletedTasks,
		WalletAddress:     d.WalletAddress,
		TonBalance:        d.TonBalance,
		IsWalletConnected: d.IsWalletConnected,
		TotalMined:        d.TotalMined,
		JoinedAt:          fromMillis(d.JoinedAt),
		LastActive:        fromMillis(d.LastActive),
		LastMining:        fromMillisPtr(d.LastMining),
		Status:            domain.UserStatus(d.Status),
	}
	if u.CompletedTasks == nil {
		u.CompletedTasks = []string{}
	}
	if u.Status == "" {
		u.Status = domain.UserStatusActive
	}
	if u.ReferralCode == "" {
		u.ReferralCode = domain.ReferralCode(u.TelegramID)
	}
	return u
}

type usersPageDTO struct {
	Users []userDTO `json:"users"`
	Total int       `json:"total"`
}

type referralDTO struct {
	ReferrerID string `json:"referrerId"`
	NewUserID  string `json:"newUserId"`
	Reward     int64  `json:"reward"`
	Timestamp  int64  `json:"timestamp"`
}

type withdrawalDTO struct {
	ID          string          `json:"id"`
	UserID      string          `json:"userId"`
	TelegramID  int64           `json:"telegramId"`
	Username    string          `json:"username"`
	Amount      decimal.Decimal `json:"amount"`
	Fee         decimal.Decimal `json:"fee"`
	Type        string          `json:"type"`
	Address     string          `json:"address"`
	Status      string          `json:"status"`
	Reason      string          `json:"reason,omitempty"`
	TxHash      string          `json:"txHash,omitempty"`
	Attempts    int             `json:"attempts"`
	LastError   string          `json:"lastError,omitempty"`
	CreatedAt   int64           `json:"createdAt"`
	ProcessedAt *int64          `json:"processedAt,omitempty"`
	CompletedAt *int64          `json:"completedAt,omitempty"`

	// ExpectedStatus makes PUT a compare-and-set; the API answers 409 on mismatch.
	ExpectedStatus string `json:"expectedStatus,omitempty"`
}

func newWithdrawalDTO(w domain.WithdrawalRequest) withdrawalDTO {
	return withdrawalDTO{
		ID:          w.ID,
		UserID:      w.UserID,
		TelegramID:  w.TelegramID,
		Username:    w.Username,
		Amount:      w.Amount,
		Fee:         w.Fee,
		Type:        string(w.Asset),
		Address:     w.WalletAddress,
		Status:      string(w.Status),
		Reason:      w.Reason,
		TxHash:      w.TxHash,
		Attempts:    w.Attempts,
		LastError:   w.LastError,
		CreatedAt:   toMillis(w.CreatedAt),
		ProcessedAt: toMillisPtr(w.ProcessedAt),
		CompletedAt: toMillisPtr(w.CompletedAt),
	}
}

func (d withdrawalDTO) withdrawal() domain.WithdrawalRequest {
	return domain.WithdrawalRequest{
		ID:            d.ID,
		UserID:        d.UserID,
		TelegramID:    d.TelegramID,
		Username:      d.Username,
		Amount:        d.Amount,
		Fee:           d.Fee,
		Asset:         domain.Asset(d.Type),
		Status:        domain.WithdrawalStatus(d.Status),
		WalletAddress: d.Address,
		Reason:        d.Reason,
		TxHash:        d.TxHash,
		Attempts:      d.Attempts,
		LastError:     d.LastError,
		CreatedAt:     fromMillis(d.CreatedAt),
		ProcessedAt:   fromMillisPtr(d.ProcessedAt),
		CompletedAt:   fromMillisPtr(d.CompletedAt),
	}
}
