// Package withdrawal runs the payout workflow:
//
//	pending --approve--> processing --settle--> completed
//	pending --reject(reason)--> rejected
//
// Only one payment attempt per request may run at a time.
package withdrawal

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"tree_ton/internal/domain"
	"tree_ton/internal/logger"
	"tree_ton/internal/metrics"
	"tree_ton/internal/service"
	"tree_ton/internal/wallet"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
)

var (
	MinCoins = decimal.NewFromInt(100)
	MinTON   = decimal.RequireFromString("0.01")
	// TONFee is charged on every TON withdrawal.
	TONFee = decimal.RequireFromString("0.001")

	DefaultCoinsDailyLimit = decimal.NewFromInt(10000)
)

// recordTimeout bounds the writes that record a payout outcome.
const recordTimeout = 15 * time.Second

// Store is the withdrawal part of the store.
type Store interface {
	CreateWithdrawal(ctx context.Context, w *domain.WithdrawalRequest) error
	GetWithdrawal(ctx context.Context, id string) (*domain.WithdrawalRequest, error)
	ListWithdrawals(ctx context.Context, f domain.WithdrawalFilter) ([]domain.WithdrawalRequest, error)
	UpdateWithdrawal(ctx context.Context, w domain.WithdrawalRequest, from domain.WithdrawalStatus) error
}

// UserUpdater changes a user record, live session or not.
type UserUpdater interface {
	Update(ctx context.Context, userID, op string, fn func(domain.User) (domain.User, error)) (domain.User, error)
}

// Payer broadcasts payouts.
type Payer interface {
	SendPayment(ctx context.Context, p wallet.Payment) (wallet.Receipt, error)
}

// Notifier is told about request lifecycle events. Calls must not block.
type Notifier interface {
	WithdrawalSubmitted(w domain.WithdrawalRequest)
	AdminNewWithdrawal(w domain.WithdrawalRequest)
	WithdrawalCompleted(w domain.WithdrawalRequest)
	WithdrawalRejected(w domain.WithdrawalRequest)
}

type Config struct {
	CoinsDailyLimit decimal.Decimal
	Clock           clockwork.Clock
}

type Service struct {
	store    Store
	users    UserUpdater
	payer    Payer
	notifier Notifier
	audit    *service.AuditService
	limit    decimal.Decimal
	clock    clockwork.Clock
	log      *slog.Logger

	submitMu sync.Mutex

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewService(store Store, users UserUpdater, payer Payer, notifier Notifier, audit *service.AuditService, cfg Config) *Service {
	if cfg.CoinsDailyLimit.IsZero() {
		cfg.CoinsDailyLimit = DefaultCoinsDailyLimit
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Service{
		store:    store,
		users:    users,
		payer:    payer,
		notifier: notifier,
		audit:    audit,
		limit:    cfg.CoinsDailyLimit,
		clock:    cfg.Clock,
		log:      logger.With("component", "withdrawal"),
		inFlight: make(map[string]struct{}),
	}
}

// Minimum is the smallest amount that may be requested for asset.
func Minimum(asset domain.Asset) decimal.Decimal {
	if asset == domain.AssetTON {
		return MinTON
	}
	return MinCoins
}

// Fee is the fee recorded on a request for asset.
func Fee(asset domain.Asset) decimal.Decimal {
	if asset == domain.AssetTON {
		return TONFee
	}
	return decimal.Zero
}

func available(u domain.User, asset domain.Asset) decimal.Decimal {
	if asset == domain.AssetTON {
		return u.TonBalance
	}
	return decimal.NewFromInt(u.Coins)
}

// Validate checks a request of amount in asset against u. Nothing is reserved:
// the balance is only debited once the payout completes.
func Validate(u domain.User, asset domain.Asset, amount decimal.Decimal) error {
	if !asset.Valid() {
		return fmt.Errorf("asset %q: %w", asset, domain.ErrInvalidAmount)
	}
	if !u.Active() {
		return domain.ErrAccountDisabled
	}
	if !amount.IsPositive() {
		return domain.ErrInvalidAmount
	}
	if asset == domain.AssetCoins && !amount.Equal(amount.Truncate(0)) {
		return fmt.Errorf("coins must be whole: %w", domain.ErrInvalidAmount)
	}
	if amount.GreaterThan(available(u, asset)) {
		return domain.ErrInsufficientResource
	}
	if amount.LessThan(Minimum(asset)) {
		return fmt.Errorf("minimum is %s %s: %w", Minimum(asset), asset, domain.ErrBelowMinimum)
	}
	// every payout, coins included, goes to the connected wallet
	if !u.IsWalletConnected || u.WalletAddress == "" {
		return domain.ErrWalletNotConnected
	}
	return nil
}

// Submit creates a pending request for u.
func (s *Service) Submit(ctx context.Context, u domain.User, asset domain.Asset, amount decimal.Decimal) (domain.WithdrawalRequest, error) {
	if err := Validate(u, asset, amount); err != nil {
		return domain.WithdrawalRequest{}, err
	}

	s.submitMu.Lock()
	defer s.submitMu.Unlock()

	now := s.clock.Now()
	if asset == domain.AssetCoins {
		used, err := s.usedToday(ctx, u.ID, now)
		if err != nil {
			return domain.WithdrawalRequest{}, err
		}
		if used.Add(amount).GreaterThan(s.limit) {
			return domain.WithdrawalRequest{}, fmt.Errorf("%s of %s coins used today: %w", used, s.limit, domain.ErrDailyLimit)
		}
	}

	w := domain.WithdrawalRequest{
		UserID:        u.ID,
		TelegramID:    u.TelegramID,
		Username:      u.Username,
		Amount:        amount,
		Fee:           Fee(asset),
		Asset:         asset,
		Status:        domain.WithdrawalStatusPending,
		WalletAddress: u.WalletAddress,
		CreatedAt:     now,
	}
	if err := s.store.CreateWithdrawal(ctx, &w); err != nil {
		return domain.WithdrawalRequest{}, fmt.Errorf("create withdrawal: %w", err)
	}

	metrics.Withdrawals.WithLabelValues(string(asset), string(w.Status)).Inc()
	s.log.Info("withdrawal requested", "withdrawal_id", w.ID, "user_id", u.ID, "asset", asset, "amount", amount.String())
	s.audit.LogWithdrawRequest(ctx, w)
	s.notifier.WithdrawalSubmitted(w)
	s.notifier.AdminNewWithdrawal(w)
	return w, nil
}

// usedToday sums today's coin requests that were not rejected.
func (s *Service) usedToday(ctx context.Context, userID string, now time.Time) (decimal.Decimal, error) {
	y, m, d := now.UTC().Date()
	list, err := s.store.ListWithdrawals(ctx, domain.WithdrawalFilter{
		UserID: userID,
		Asset:  domain.AssetCoins,
		Since:  time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("list withdrawals: %w", err)
	}
	total := decimal.Zero
	for _, w := range list {
		if w.Status != domain.WithdrawalStatusRejected {
			total = total.Add(w.Amount)
		}
	}
	return total, nil
}

// Get returns one request.
func (s *Service) Get(ctx context.Context, id string) (domain.WithdrawalRequest, error) {
	w, err := s.store.GetWithdrawal(ctx, id)
	if err != nil {
		return domain.WithdrawalRequest{}, err
	}
	return *w, nil
}

// List returns requests matching f, newest first.
func (s *Service) List(ctx context.Context, f domain.WithdrawalFilter) ([]domain.WithdrawalRequest, error) {
	return s.store.ListWithdrawals(ctx, f)
}

func (s *Service) acquire(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[id]; busy {
		return false
	}
	s.inFlight[id] = struct{}{}
	return true
}

func (s *Service) release(id string) {
	s.mu.Lock()
	delete(s.inFlight, id)
	s.mu.Unlock()
}

// Approve moves a pending request to processing and pays it. A failed payment
// leaves the request in processing with LastError set; see Retry.
func (s *Service) Approve(ctx context.Context, actorID, id string) (domain.WithdrawalRequest, error) {
	if !s.acquire(id) {
		return domain.WithdrawalRequest{}, domain.ErrPaymentInFlight
	}
	defer s.release(id)

	w, err := s.store.GetWithdrawal(ctx, id)
	if err != nil {
		return domain.WithdrawalRequest{}, err
	}
	if !domain.CanTransition(w.Status, domain.WithdrawalStatusProcessing) {
		return *w, fmt.Errorf("approve %s request: %w", w.Status, domain.ErrInvalidTransition)
	}

	next := *w
	now := s.clock.Now()
	next.Status = domain.WithdrawalStatusProcessing
	next.ProcessedAt = &now
	if err := s.store.UpdateWithdrawal(ctx, next, domain.WithdrawalStatusPending); err != nil {
		return *w, fmt.Errorf("mark processing: %w", err)
	}
	metrics.Withdrawals.WithLabelValues(string(next.Asset), string(next.Status)).Inc()

	return s.pay(ctx, actorID, next)
}

// Retry repeats the payment of a processing request whose last attempt failed.
func (s *Service) Retry(ctx context.Context, actorID, id string) (domain.WithdrawalRequest, error) {
	if !s.acquire(id) {
		return domain.WithdrawalRequest{}, domain.ErrPaymentInFlight
	}
	defer s.release(id)

	w, err := s.store.GetWithdrawal(ctx, id)
	if err != nil {
		return domain.WithdrawalRequest{}, err
	}
	if !w.Retryable() {
		return *w, fmt.Errorf("retry %s request: %w", w.Status, domain.ErrInvalidTransition)
	}
	return s.pay(ctx, actorID, *w)
}

// pay runs one payment attempt for a processing request. Callers hold the
// in-flight slot for w.ID.
func (s *Service) pay(ctx context.Context, actorID string, w domain.WithdrawalRequest) (domain.WithdrawalRequest, error) {
	w.Attempts++
	receipt, err := s.payer.SendPayment(ctx, wallet.Payment{
		Reference: w.ID,
		To:        w.WalletAddress,
		Asset:     w.Asset,
		Amount:    w.NetAmount(),
		Memo:      wallet.MemoFor(w.Asset),
	})

	// The outcome must be recorded even if the caller has gone away.
	ctx, cancel := detached(ctx)
	defer cancel()

	if err != nil {
		metrics.Payments.WithLabelValues("failed").Inc()
		w.LastError = err.Error()
		if uerr := s.store.UpdateWithdrawal(ctx, w, domain.WithdrawalStatusProcessing); uerr != nil {
			s.log.Error("failed to record payment failure", "withdrawal_id", w.ID, "error", uerr)
		}
		s.log.Warn("payment failed", "withdrawal_id", w.ID, "attempt", w.Attempts, "error", err)
		s.audit.LogWithdrawPaymentFailed(ctx, actorID, w)
		return w, err
	}

	metrics.Payments.WithLabelValues("sent").Inc()
	return s.complete(ctx, actorID, w, receipt.TxHash, false)
}

// Settle completes a processing request whose payout was confirmed elsewhere.
func (s *Service) Settle(ctx context.Context, actorID, id, txHash string) (domain.WithdrawalRequest, error) {
	txHash = strings.TrimSpace(txHash)
	if txHash == "" {
		return domain.WithdrawalRequest{}, domain.ErrTxHashRequired
	}
	if !s.acquire(id) {
		return domain.WithdrawalRequest{}, domain.ErrPaymentInFlight
	}
	defer s.release(id)

	w, err := s.store.GetWithdrawal(ctx, id)
	if err != nil {
		return domain.WithdrawalRequest{}, err
	}
	if !domain.CanTransition(w.Status, domain.WithdrawalStatusCompleted) {
		return *w, fmt.Errorf("settle %s request: %w", w.Status, domain.ErrInvalidTransition)
	}
	ctx, cancel := detached(ctx)
	defer cancel()
	return s.complete(ctx, actorID, *w, txHash, true)
}

// detached keeps ctx values but drops its cancellation, with recordTimeout.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
}

func (s *Service) complete(ctx context.Context, actorID string, w domain.WithdrawalRequest, txHash string, manual bool) (domain.WithdrawalRequest, error) {
	now := s.clock.Now()
	w.Status = domain.WithdrawalStatusCompleted
	w.TxHash = txHash
	w.LastError = ""
	w.CompletedAt = &now

	if err := s.store.UpdateWithdrawal(ctx, w, domain.WithdrawalStatusProcessing); err != nil {
		// The money moved. Leave the request in processing without LastError so it
		// cannot be retried; an admin settles it with the hash from the log.
		s.log.Error("payment sent but completion not recorded", "withdrawal_id", w.ID, "tx_hash", txHash, "error", err)
		return w, fmt.Errorf("record completion: %w", err)
	}

	if _, err := s.users.Update(ctx, w.UserID, "withdrawal_debit", func(u domain.User) (domain.User, error) {
		return debit(u, w.Asset, w.Amount), nil
	}); err != nil {
		s.log.Error("failed to debit user", "withdrawal_id", w.ID, "user_id", w.UserID, "error", err)
	}

	metrics.Withdrawals.WithLabelValues(string(w.Asset), string(w.Status)).Inc()
	s.log.Info("withdrawal completed", "withdrawal_id", w.ID, "tx_hash", txHash)
	if manual {
		s.audit.LogWithdrawSettle(ctx, actorID, w)
	} else {
		s.audit.LogWithdrawApprove(ctx, actorID, w)
	}
	s.notifier.WithdrawalCompleted(w)
	return w, nil
}

// debit removes a paid out amount, never going below zero.
func debit(u domain.User, asset domain.Asset, amount decimal.Decimal) domain.User {
	switch asset {
	case domain.AssetCoins:
		u.Coins = max(u.Coins-amount.IntPart(), 0)
	case domain.AssetTON:
		u.TonBalance = decimal.Max(u.TonBalance.Sub(amount), decimal.Zero)
	}
	return u
}

// Reject refuses a pending request. No funds move.
func (s *Service) Reject(ctx context.Context, actorID, id, reason string) (domain.WithdrawalRequest, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return domain.WithdrawalRequest{}, domain.ErrReasonRequired
	}
	if !s.acquire(id) {
		return domain.WithdrawalRequest{}, domain.ErrPaymentInFlight
	}
	defer s.release(id)

	w, err := s.store.GetWithdrawal(ctx, id)
	if err != nil {
		return domain.WithdrawalRequest{}, err
	}
	if !domain.CanTransition(w.Status, domain.WithdrawalStatusRejected) {
		return *w, fmt.Errorf("reject %s request: %w", w.Status, domain.ErrInvalidTransition)
	}

	next := *w
	now := s.clock.Now()
	next.Status = domain.WithdrawalStatusRejected
	next.Reason = reason
	next.ProcessedAt = &now
	if err := s.store.UpdateWithdrawal(ctx, next, domain.WithdrawalStatusPending); err != nil {
		return *w, fmt.Errorf("mark rejected: %w", err)
	}

	metrics.Withdrawals.WithLabelValues(string(next.Asset), string(next.Status)).Inc()
	s.log.Info("withdrawal rejected", "withdrawal_id", id, "reason", reason)
	s.audit.LogWithdrawReject(ctx, actorID, next)
	s.notifier.WithdrawalRejected(next)
	return next, nil
}
