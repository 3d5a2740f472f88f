package integration

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"tree_ton/internal/db"
	"tree_ton/internal/domain"
	"tree_ton/internal/repository"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

func openStore(t *testing.T) *repository.Store {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}

	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := db.Migrate(context.Background(), pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repository.NewStore(pool)
}

func TestPostgresUserRoundTrip(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()

	tgID := time.Now().UnixNano() % 1_000_000_000
	u := domain.NewUser(tgID, "itest", "Integration", "", time.Now().UTC().Truncate(time.Microsecond))
	if err := st.CreateUser(ctx, &u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := st.CreateUser(ctx, &domain.User{TelegramID: tgID, ReferralCode: "dup"}); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	u.Coins = 250
	u.TonBalance = decimal.RequireFromString("1.25")
	u.CompletedTasks = []string{"daily-login"}
	if err := st.UpdateUser(ctx, u); err != nil {
		t.Fatalf("update user: %v", err)
	}

	got, err := st.GetUserByReferralCode(ctx, u.ReferralCode)
	if err != nil {
		t.Fatalf("get by code: %v", err)
	}
	if got.Coins != 250 || !got.TonBalance.Equal(u.TonBalance) || !got.HasCompleted("daily-login") {
		t.Fatalf("unexpected user %+v", got)
	}

	if _, err := st.GetUser(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresWithdrawalCompareAndSet(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()

	tgID := time.Now().UnixNano()%1_000_000_000 + 1
	u := domain.NewUser(tgID, "itest_w", "Integration", "", time.Now().UTC())
	if err := st.CreateUser(ctx, &u); err != nil {
		t.Fatalf("create user: %v", err)
	}

	w := domain.WithdrawalRequest{
		UserID:     u.ID,
		TelegramID: u.TelegramID,
		Amount:     decimal.RequireFromString("0.5"),
		Fee:        decimal.RequireFromString("0.001"),
		Asset:      domain.AssetTON,
		Status:     domain.WithdrawalStatusPending,
	}
	if err := st.CreateWithdrawal(ctx, &w); err != nil {
		t.Fatalf("create withdrawal: %v", err)
	}

	w.Status = domain.WithdrawalStatusProcessing
	if err := st.UpdateWithdrawal(ctx, w, domain.WithdrawalStatusPending); err != nil {
		t.Fatalf("first transition: %v", err)
	}
	if err := st.UpdateWithdrawal(ctx, w, domain.WithdrawalStatusPending); !errors.Is(err, domain.ErrStatusConflict) {
		t.Fatalf("expected ErrStatusConflict, got %v", err)
	}

	list, err := st.ListWithdrawals(ctx, domain.WithdrawalFilter{UserID: u.ID, Status: domain.WithdrawalStatusProcessing})
	if err != nil || len(list) != 1 || !list[0].Fee.Equal(w.Fee) {
		t.Fatalf("list=%+v err=%v", list, err)
	}

	other := domain.NewUser(tgID+1_000_000_000, "itest_r", "Ref", "", time.Now().UTC())
	if err := st.CreateUser(ctx, &other); err != nil {
		t.Fatalf("create referrer: %v", err)
	}
	if err := st.RecordReferral(ctx, other.ID, u.ID, 100); err != nil {
		t.Fatalf("record referral: %v", err)
	}
	if err := st.RecordReferral(ctx, other.ID, u.ID, 100); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	refs, err := st.Referrals.GetReferralsByUser(ctx, other.ID)
	if err != nil || len(refs) != 1 || refs[0].ReferredID != u.ID || refs[0].Reward != 100 {
		t.Fatalf("referrals=%+v err=%v", refs, err)
	}
}
