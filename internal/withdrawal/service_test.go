package withdrawal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tree_ton/internal/domain"
	"tree_ton/internal/session"
	"tree_ton/internal/store"
	"tree_ton/internal/wallet"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
)

type fakePayer struct {
	mu    sync.Mutex
	calls []wallet.Payment
	err   error
	// block, when set, holds SendPayment until closed
	block chan struct{}
	began chan struct{}
	// onSend runs when a payment starts
	onSend func()
}

func (p *fakePayer) SendPayment(_ context.Context, pay wallet.Payment) (wallet.Receipt, error) {
	if p.onSend != nil {
		p.onSend()
	}
	if p.began != nil {
		p.began <- struct{}{}
	}
	if p.block != nil {
		<-p.block
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, pay)
	if p.err != nil {
		return wallet.Receipt{}, &wallet.TransactionError{To: pay.To, Amount: pay.Amount, Err: p.err}
	}
	return wallet.Receipt{TxHash: "tx-" + pay.Reference}, nil
}

func (p *fakePayer) setErr(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

func (p *fakePayer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

type recordingNotifier struct {
	mu        sync.Mutex
	submitted []string
	admin     []string
	completed []string
	rejected  []string
}

func (n *recordingNotifier) WithdrawalSubmitted(w domain.WithdrawalRequest) {
	n.mu.Lock()
	n.submitted = append(n.submitted, w.ID)
	n.mu.Unlock()
}

func (n *recordingNotifier) AdminNewWithdrawal(w domain.WithdrawalRequest) {
	n.mu.Lock()
	n.admin = append(n.admin, w.ID)
	n.mu.Unlock()
}

func (n *recordingNotifier) WithdrawalCompleted(w domain.WithdrawalRequest) {
	n.mu.Lock()
	n.completed = append(n.completed, w.ID)
	n.mu.Unlock()
}

func (n *recordingNotifier) WithdrawalRejected(w domain.WithdrawalRequest) {
	n.mu.Lock()
	n.rejected = append(n.rejected, w.ID)
	n.mu.Unlock()
}

type fixture struct {
	svc      *Service
	store    *store.Memory
	payer    *fakePayer
	notifier *recordingNotifier
	clock    *clockwork.FakeClock
	user     domain.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 7, 10, 12, 0, 0, 0, time.UTC))
	st := store.NewMemory()

	u := domain.NewUser(321, "alice", "Alice", "", clock.Now())
	u.Coins = 5000
	u.TonBalance = decimal.RequireFromString("2")
	u.WalletAddress = "EQalice"
	u.IsWalletConnected = true
	if err := st.CreateUser(context.Background(), &u); err != nil {
		t.Fatalf("create user: %v", err)
	}

	manager := session.NewManager(st, session.ManagerOptions{Session: session.Options{Clock: clock}})
	t.Cleanup(manager.CloseAll)

	f := &fixture{
		store:    st,
		payer:    &fakePayer{},
		notifier: &recordingNotifier{},
		clock:    clock,
		user:     u,
	}
	f.svc = NewService(st, manager, f.payer, f.notifier, nil, Config{Clock: clock})
	return f
}

func TestValidate(t *testing.T) {
	base := domain.NewUser(1, "u", "U", "", time.Now())
	base.Coins = 40
	base.TonBalance = decimal.RequireFromString("1")

	connected := base
	connected.IsWalletConnected = true
	connected.WalletAddress = "EQx"

	rich := connected
	rich.Coins = 1000

	unwired := rich
	unwired.IsWalletConnected = false
	unwired.WalletAddress = ""

	noAddress := rich
	noAddress.WalletAddress = ""

	banned := rich
	banned.Status = domain.UserStatusBanned

	tests := []struct {
		name   string
		user   domain.User
		asset  domain.Asset
		amount string
		want   error
	}{
		{"coins above balance", base, domain.AssetCoins, "50", domain.ErrInsufficientResource},
		{"coins below minimum", rich, domain.AssetCoins, "99", domain.ErrBelowMinimum},
		{"coins at minimum", rich, domain.AssetCoins, "100", nil},
		{"fractional coins", rich, domain.AssetCoins, "100.5", domain.ErrInvalidAmount},
		{"zero", rich, domain.AssetCoins, "0", domain.ErrInvalidAmount},
		{"ton below minimum", connected, domain.AssetTON, "0.009", domain.ErrBelowMinimum},
		{"ton without wallet", base, domain.AssetTON, "0.5", domain.ErrWalletNotConnected},
		{"coins without wallet", unwired, domain.AssetCoins, "100", domain.ErrWalletNotConnected},
		{"coins with empty address", noAddress, domain.AssetCoins, "100", domain.ErrWalletNotConnected},
		{"ton ok", connected, domain.AssetTON, "0.01", nil},
		{"ton above balance", connected, domain.AssetTON, "1.01", domain.ErrInsufficientResource},
		{"unknown asset", rich, domain.Asset("btc"), "1", domain.ErrInvalidAmount},
		{"disabled account", banned, domain.AssetCoins, "100", domain.ErrAccountDisabled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.user, tt.asset, decimal.RequireFromString(tt.amount))
			if tt.want == nil {
				if err != nil {
					t.Fatalf("unexpected error %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("err=%v, want %v", err, tt.want)
			}
		})
	}
}

func TestSubmitCreatesPendingRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	w, err := f.svc.Submit(ctx, f.user, domain.AssetTON, decimal.RequireFromString("0.5"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if w.Status != domain.WithdrawalStatusPending || !w.Fee.Equal(TONFee) || w.WalletAddress != "EQalice" {
		t.Fatalf("unexpected request %+v", w)
	}
	if len(f.notifier.submitted) != 1 || len(f.notifier.admin) != 1 {
		t.Fatalf("expected user and admin notifications")
	}

	// nothing is reserved at submission
	stored, _ := f.store.GetUser(ctx, f.user.ID)
	if !stored.TonBalance.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("balance changed on submit: %s", stored.TonBalance)
	}

	_, err = f.svc.Submit(ctx, f.user, domain.AssetCoins, decimal.NewFromInt(6000))
	if !errors.Is(err, domain.ErrInsufficientResource) {
		t.Fatalf("expected ErrInsufficientResource, got %v", err)
	}
	list, _ := f.store.ListWithdrawals(ctx, domain.WithdrawalFilter{UserID: f.user.ID})
	if len(list) != 1 {
		t.Fatalf("rejected submission must not create a request, have %d", len(list))
	}
}

func TestSubmitDailyCoinLimit(t *testing.T) {
	f := newFixture(t)
	f.user.Coins = 20000
	ctx := context.Background()

	if _, err := f.svc.Submit(ctx, f.user, domain.AssetCoins, decimal.NewFromInt(6000)); err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := f.svc.Submit(ctx, f.user, domain.AssetCoins, decimal.NewFromInt(4001)); !errors.Is(err, domain.ErrDailyLimit) {
		t.Fatalf("expected ErrDailyLimit, got %v", err)
	}
	if _, err := f.svc.Submit(ctx, f.user, domain.AssetCoins, decimal.NewFromInt(4000)); err != nil {
		t.Fatalf("request up to the cap should pass: %v", err)
	}

	f.clock.Advance(24 * time.Hour)
	if _, err := f.svc.Submit(ctx, f.user, domain.AssetCoins, decimal.NewFromInt(6000)); err != nil {
		t.Fatalf("limit must reset the next day: %v", err)
	}
}

func TestApproveSettlesOnPaymentSuccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	w, err := f.svc.Submit(ctx, f.user, domain.AssetTON, decimal.RequireFromString("1"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	done, err := f.svc.Approve(ctx, "admin", w.ID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if done.Status != domain.WithdrawalStatusCompleted || done.TxHash != "tx-"+w.ID || done.CompletedAt == nil || done.Attempts != 1 {
		t.Fatalf("unexpected completed request %+v", done)
	}
	if !f.payer.calls[0].Amount.Equal(decimal.RequireFromString("0.999")) || f.payer.calls[0].Memo != wallet.PaymentMemo {
		t.Fatalf("unexpected payment %+v", f.payer.calls[0])
	}
	if len(f.notifier.completed) != 1 {
		t.Fatalf("expected a completion notification")
	}

	stored, _ := f.store.GetUser(ctx, f.user.ID)
	if !stored.TonBalance.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("expected debit on completion, balance %s", stored.TonBalance)
	}

	if _, err := f.svc.Approve(ctx, "admin", w.ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("completed request must not be approved again, got %v", err)
	}
	if f.payer.count() != 1 {
		t.Fatalf("expected exactly one payment, got %d", f.payer.count())
	}
}

func TestApprovePaymentFailureStaysRetryable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.payer.setErr(errors.New("hot wallet empty"))

	w, _ := f.svc.Submit(ctx, f.user, domain.AssetCoins, decimal.NewFromInt(200))

	got, err := f.svc.Approve(ctx, "admin", w.ID)
	var terr *wallet.TransactionError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TransactionError, got %v", err)
	}
	if got.Status != domain.WithdrawalStatusProcessing || got.LastError == "" {
		t.Fatalf("failed payment must stay processing with an error: %+v", got)
	}
	stored, _ := f.store.GetWithdrawal(ctx, w.ID)
	if stored.Status != domain.WithdrawalStatusProcessing || !stored.Retryable() {
		t.Fatalf("stored request not retryable: %+v", stored)
	}
	if _, err := f.svc.Approve(ctx, "admin", w.ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("processing request must not be approved again, got %v", err)
	}
	if _, err := f.svc.Reject(ctx, "admin", w.ID, "too late"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("processing request must not be rejected, got %v", err)
	}

	f.payer.setErr(nil)
	done, err := f.svc.Retry(ctx, "admin", w.ID)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if done.Status != domain.WithdrawalStatusCompleted || done.Attempts != 2 || done.LastError != "" {
		t.Fatalf("unexpected request after retry %+v", done)
	}

	if _, err := f.svc.Retry(ctx, "admin", w.ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("completed request must not be retried, got %v", err)
	}
	userAfter, _ := f.store.GetUser(ctx, f.user.ID)
	if userAfter.Coins != 4800 {
		t.Fatalf("expected coins debited once, have %d", userAfter.Coins)
	}
}

func TestConcurrentApproveMakesOnePayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.payer.block = make(chan struct{})
	f.payer.began = make(chan struct{}, 1)

	w, _ := f.svc.Submit(ctx, f.user, domain.AssetCoins, decimal.NewFromInt(300))

	errc := make(chan error, 1)
	go func() {
		_, err := f.svc.Approve(ctx, "admin", w.ID)
		errc <- err
	}()
	<-f.payer.began

	if _, err := f.svc.Approve(ctx, "admin", w.ID); !errors.Is(err, domain.ErrPaymentInFlight) {
		t.Fatalf("expected ErrPaymentInFlight, got %v", err)
	}
	if _, err := f.svc.Settle(ctx, "admin", w.ID, "manual"); !errors.Is(err, domain.ErrPaymentInFlight) {
		t.Fatalf("expected ErrPaymentInFlight for settle, got %v", err)
	}

	close(f.payer.block)
	if err := <-errc; err != nil {
		t.Fatalf("approve: %v", err)
	}
	if f.payer.count() != 1 {
		t.Fatalf("expected one payment, got %d", f.payer.count())
	}
}

func TestRejectRequiresReason(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w, _ := f.svc.Submit(ctx, f.user, domain.AssetCoins, decimal.NewFromInt(100))

	if _, err := f.svc.Reject(ctx, "admin", w.ID, "   "); !errors.Is(err, domain.ErrReasonRequired) {
		t.Fatalf("expected ErrReasonRequired, got %v", err)
	}

	got, err := f.svc.Reject(ctx, "admin", w.ID, "  suspicious activity ")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if got.Status != domain.WithdrawalStatusRejected || got.Reason != "suspicious activity" {
		t.Fatalf("unexpected rejected request %+v", got)
	}
	if f.payer.count() != 0 || len(f.notifier.rejected) != 1 {
		t.Fatalf("rejection must not pay and must notify")
	}
	stored, _ := f.store.GetUser(ctx, f.user.ID)
	if stored.Coins != 5000 {
		t.Fatalf("rejection moved funds: %d", stored.Coins)
	}

	if _, err := f.svc.Approve(ctx, "admin", w.ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("rejected request must not be approved, got %v", err)
	}
}

func TestSettleProcessingRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.payer.setErr(errors.New("timeout"))
	w, _ := f.svc.Submit(ctx, f.user, domain.AssetCoins, decimal.NewFromInt(100))

	if _, err := f.svc.Settle(ctx, "admin", w.ID, "abc"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("pending request must not be settled, got %v", err)
	}
	_, _ = f.svc.Approve(ctx, "admin", w.ID)

	if _, err := f.svc.Settle(ctx, "admin", w.ID, " "); !errors.Is(err, domain.ErrTxHashRequired) {
		t.Fatalf("expected ErrTxHashRequired, got %v", err)
	}
	got, err := f.svc.Settle(ctx, "admin", w.ID, "onchain-hash")
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if got.Status != domain.WithdrawalStatusCompleted || got.TxHash != "onchain-hash" {
		t.Fatalf("unexpected settled request %+v", got)
	}
}

func TestUnknownRequest(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Approve(context.Background(), "admin", "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// ctxStore fails calls made with a finished context, like the network backed stores.
type ctxStore struct {
	*store.Memory
}

func (s ctxStore) UpdateWithdrawal(ctx context.Context, w domain.WithdrawalRequest, from domain.WithdrawalStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Memory.UpdateWithdrawal(ctx, w, from)
}

func (s ctxStore) GetUser(ctx context.Context, id string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.Memory.GetUser(ctx, id)
}

func (s ctxStore) UpdateUser(ctx context.Context, u domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Memory.UpdateUser(ctx, u)
}

func TestPayoutOutcomeRecordedAfterCallerLeaves(t *testing.T) {
	tests := []struct {
		name   string
		payErr error
	}{
		{"payment sent", nil},
		{"payment failed", errors.New("payout service down")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			cs := ctxStore{f.store}
			manager := session.NewManager(cs, session.ManagerOptions{Session: session.Options{Clock: f.clock}})
			t.Cleanup(manager.CloseAll)
			svc := NewService(cs, manager, f.payer, f.notifier, nil, Config{Clock: f.clock})

			w, err := svc.Submit(context.Background(), f.user, domain.AssetCoins, decimal.NewFromInt(200))
			if err != nil {
				t.Fatalf("submit: %v", err)
			}

			// the admin's request ends while the payout is in progress
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			f.payer.onSend = cancel
			f.payer.setErr(tt.payErr)

			_, _ = svc.Approve(ctx, "admin", w.ID)

			stored, err := f.store.GetWithdrawal(context.Background(), w.ID)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			u, _ := f.store.GetUser(context.Background(), f.user.ID)

			if tt.payErr == nil {
				if stored.Status != domain.WithdrawalStatusCompleted || stored.TxHash != "tx-"+w.ID {
					t.Fatalf("completion not recorded: %+v", stored)
				}
				if u.Coins != 4800 {
					t.Fatalf("user not debited, coins %d", u.Coins)
				}
				return
			}
			if stored.Status != domain.WithdrawalStatusProcessing || !stored.Retryable() {
				t.Fatalf("failure not recorded, request not retryable: %+v", stored)
			}
			if u.Coins != 5000 {
				t.Fatalf("failed payment must not debit, coins %d", u.Coins)
			}
		})
	}
}
