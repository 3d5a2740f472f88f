package admin

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"tree_ton/internal/bot"
	"tree_ton/internal/domain"
	"tree_ton/internal/session"
	"tree_ton/internal/store"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
)

var now = time.Date(2024, 8, 20, 12, 0, 0, 0, time.UTC)

func user(tgID int64, name string, lastActive time.Duration, status domain.UserStatus, wallet bool, mined int64) domain.User {
	u := domain.NewUser(tgID, name, strings.ToUpper(name[:1])+name[1:], "", now.Add(-30*24*time.Hour))
	u.LastActive = now.Add(-lastActive)
	u.Status = status
	u.IsWalletConnected = wallet
	u.TotalMined = mined
	return u
}

func withdrawal(asset domain.Asset, status domain.WithdrawalStatus, amount string) domain.WithdrawalRequest {
	return domain.WithdrawalRequest{Asset: asset, Status: status, Amount: decimal.RequireFromString(amount)}
}

func TestComputeStats(t *testing.T) {
	users := []domain.User{
		user(1, "alice", time.Hour, domain.UserStatusActive, true, 100),
		user(2, "bob", 3*24*time.Hour, domain.UserStatusActive, false, 50),
		user(3, "carol", 10*24*time.Hour, domain.UserStatusActive, true, 25),
		user(4, "dave", time.Hour, domain.UserStatusBanned, false, 5),
	}
	ws := []domain.WithdrawalRequest{
		withdrawal(domain.AssetCoins, domain.WithdrawalStatusPending, "100"),
		withdrawal(domain.AssetCoins, domain.WithdrawalStatusCompleted, "250"),
		withdrawal(domain.AssetTON, domain.WithdrawalStatusCompleted, "0.5"),
		withdrawal(domain.AssetTON, domain.WithdrawalStatusProcessing, "1"),
		withdrawal(domain.AssetCoins, domain.WithdrawalStatusRejected, "300"),
	}

	s := ComputeStats(users, ws, now)

	if s.TotalUsers != 4 || s.ActiveUsers != 2 || s.DailyActiveUsers != 1 {
		t.Fatalf("user counts: %+v", s)
	}
	if s.TotalMined != 180 {
		t.Fatalf("total mined = %d", s.TotalMined)
	}
	if s.TotalWithdrawals != 5 || s.PendingWithdrawals != 1 {
		t.Fatalf("withdrawal counts: %+v", s)
	}
	if !s.WithdrawnCoins.Equal(decimal.NewFromInt(250)) || !s.WithdrawnTON.Equal(decimal.RequireFromString("0.5")) {
		t.Fatalf("withdrawn totals coins=%s ton=%s", s.WithdrawnCoins, s.WithdrawnTON)
	}
	if s.WalletConnected != 2 || s.ConversionRate != 50 {
		t.Fatalf("wallet stats: %+v", s)
	}
}

func TestComputeStatsEmpty(t *testing.T) {
	s := ComputeStats(nil, nil, now)
	if s.TotalUsers != 0 || s.ConversionRate != 0 || !s.WithdrawnTON.IsZero() {
		t.Fatalf("unexpected empty stats %+v", s)
	}
}

func TestFilterUsers(t *testing.T) {
	users := []domain.User{
		user(1001, "alice", 0, domain.UserStatusActive, false, 0),
		user(2002, "bob", 0, domain.UserStatusBanned, false, 0),
		user(3003, "alfred", 0, domain.UserStatusSuspended, false, 0),
	}

	tests := []struct {
		name   string
		filter UserFilter
		want   []int64
	}{
		{"all", UserFilter{}, []int64{1001, 2002, 3003}},
		{"username prefix", UserFilter{Search: "AL"}, []int64{1001, 3003}},
		{"telegram id", UserFilter{Search: "200"}, []int64{2002}},
		{"first name", UserFilter{Search: "Bob"}, []int64{2002}},
		{"status", UserFilter{Status: domain.UserStatusSuspended}, []int64{3003}},
		{"search and status", UserFilter{Search: "al", Status: domain.UserStatusActive}, []int64{1001}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterUsers(users, tt.filter)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d users, want %d", len(got), len(tt.want))
			}
			for i, u := range got {
				if u.TelegramID != tt.want[i] {
					t.Fatalf("user %d = %d, want %d", i, u.TelegramID, tt.want[i])
				}
			}
		})
	}
}

func TestValidateMessage(t *testing.T) {
	if err := ValidateMessage("   "); !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("blank message accepted")
	}
	if err := ValidateMessage(strings.Repeat("я", 4096)); err != nil {
		t.Fatalf("4096 characters must be accepted: %v", err)
	}
	if err := ValidateMessage(strings.Repeat("a", 4097)); !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("4097 characters accepted")
	}
}

type fakeBroadcaster struct {
	ids []int64
	msg string
}

func (f *fakeBroadcaster) Broadcast(_ context.Context, ids []int64, msg string) (bot.BroadcastResult, error) {
	f.ids, f.msg = ids, msg
	return bot.BroadcastResult{Sent: len(ids)}, nil
}

func newService(t *testing.T) (*AdminService, *store.Memory, *session.Manager, *fakeBroadcaster) {
	t.Helper()
	st := store.NewMemory()
	ctx := context.Background()
	for _, u := range []domain.User{
		user(1, "alice", time.Hour, domain.UserStatusActive, true, 10),
		user(2, "bob", 9*24*time.Hour, domain.UserStatusActive, false, 10),
		user(3, "carol", time.Hour, domain.UserStatusBanned, false, 10),
	} {
		if err := st.CreateUser(ctx, &u); err != nil {
			t.Fatalf("create user: %v", err)
		}
	}
	clock := clockwork.NewFakeClockAt(now)
	m := session.NewManager(st, session.ManagerOptions{Session: session.Options{Clock: clock}})
	t.Cleanup(m.CloseAll)
	b := &fakeBroadcaster{}
	return NewAdminService(st, m, b, nil, clock), st, m, b
}

func TestBroadcastTargets(t *testing.T) {
	svc, _, _, b := newService(t)
	ctx := context.Background()

	res, err := svc.Broadcast(ctx, "admin", BroadcastRequest{Message: "hi", Target: TargetAll})
	if err != nil || res.Recipients != 3 || res.Sent != 3 {
		t.Fatalf("all: res=%+v err=%v", res, err)
	}

	res, err = svc.Broadcast(ctx, "admin", BroadcastRequest{Message: "hi", Target: TargetActive})
	if err != nil || res.Recipients != 1 || b.ids[0] != 1 {
		t.Fatalf("active: res=%+v ids=%v err=%v", res, b.ids, err)
	}

	res, err = svc.Broadcast(ctx, "admin", BroadcastRequest{Message: "hi", Target: TargetCustom, UserIDs: []int64{7, 7, 8}})
	if err != nil || res.Recipients != 2 {
		t.Fatalf("custom: res=%+v err=%v", res, err)
	}

	if _, err := svc.Broadcast(ctx, "admin", BroadcastRequest{Message: "hi", Target: "vip"}); !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("expected ErrInvalidTarget, got %v", err)
	}
	if _, err := svc.Broadcast(ctx, "admin", BroadcastRequest{Message: "hi", Target: TargetCustom}); !errors.Is(err, ErrNoRecipients) {
		t.Fatalf("expected ErrNoRecipients, got %v", err)
	}
}

func TestStatsAndStatusUpdate(t *testing.T) {
	svc, st, _, _ := newService(t)
	ctx := context.Background()

	stats, err := svc.GetStats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalUsers != 3 || stats.ActiveUsers != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	page, err := svc.ListUsers(ctx, UserFilter{Status: domain.UserStatusActive}, 1, 1)
	if err != nil || page.Total != 2 || len(page.Users) != 1 {
		t.Fatalf("page=%+v err=%v", page, err)
	}
	target := page.Users[0]

	if _, err := svc.UpdateUserStatus(ctx, "admin", target.ID, domain.UserStatusSuspended); err != nil {
		t.Fatalf("update status: %v", err)
	}
	stored, _ := st.GetUser(ctx, target.ID)
	if stored.Status != domain.UserStatusSuspended {
		t.Fatalf("status not stored: %s", stored.Status)
	}

	if _, err := svc.ListWithdrawals(ctx, "bogus"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid status error, got %v", err)
	}
}
