package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"tree_ton/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
)

type fakeSender struct {
	mu   sync.Mutex
	sent map[int64][]string
	errs map[int64]error
}

func newFakeSender() *fakeSender {
	return &fakeSender{sent: map[int64][]string{}, errs: map[int64]error{}}
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	msg, ok := c.(tgbotapi.MessageConfig)
	if !ok {
		return tgbotapi.Message{}, errors.New("unexpected chattable")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[msg.ChatID]; err != nil {
		return tgbotapi.Message{}, err
	}
	if msg.ParseMode != tgbotapi.ModeHTML {
		return tgbotapi.Message{}, errors.New("expected HTML parse mode")
	}
	f.sent[msg.ChatID] = append(f.sent[msg.ChatID], msg.Text)
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) messages(chatID int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent[chatID]...)
}

func TestWithdrawalCompletedTemplate(t *testing.T) {
	fs := newFakeSender()
	n := newNotifier(fs, Options{Clock: clockwork.NewFakeClock()})

	done := time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)
	n.WithdrawalCompleted(domain.WithdrawalRequest{
		TelegramID:  77,
		Amount:      decimal.RequireFromString("1.5"),
		Fee:         decimal.RequireFromString("0.001"),
		Asset:       domain.AssetTON,
		CompletedAt: &done,
	})
	n.Wait()

	msgs := fs.messages(77)
	if len(msgs) != 1 {
		t.Fatalf("expected one message, got %d", len(msgs))
	}
	want := "🌳 <b>Tree TON</b>\n\n✅ <b>Withdrawal Completed</b>\n\nAmount: 1.499 TON\nStatus: Successfully processed\nTime: 2024-06-01 09:30 UTC"
	if msgs[0] != want {
		t.Fatalf("unexpected text:\n%s", msgs[0])
	}
}

func TestReferralRewardTemplate(t *testing.T) {
	fs := newFakeSender()
	n := newNotifier(fs, Options{})

	n.ReferralReward(5, "@friend", 100)
	n.Wait()

	msgs := fs.messages(5)
	if len(msgs) != 1 || !strings.Contains(msgs[0], "🎉 <b>Referral Reward!</b>\n\n@friend joined using your link!\nReward: +100 coins") {
		t.Fatalf("unexpected messages %q", msgs)
	}
}

func TestNotificationFailureIsSwallowed(t *testing.T) {
	fs := newFakeSender()
	fs.errs[9] = errors.New("network down")
	n := newNotifier(fs, Options{AdminIDs: []int64{9, 10}})

	n.AdminNewWithdrawal(domain.WithdrawalRequest{ID: "w-1", Username: "bob", Asset: domain.AssetCoins, Amount: decimal.NewFromInt(150)})
	n.Wait()

	if len(fs.messages(9)) != 0 {
		t.Fatalf("failing admin should have no delivered messages")
	}
	if msgs := fs.messages(10); len(msgs) != 1 || !strings.Contains(msgs[0], "150 COINS") {
		t.Fatalf("unexpected admin alert %q", msgs)
	}
}

func TestBroadcastCounts(t *testing.T) {
	fs := newFakeSender()
	fs.errs[2] = &tgbotapi.Error{Code: 403, Message: "Forbidden: bot was blocked by the user"}
	fs.errs[3] = errors.New("Bad Request: chat not found")
	n := newNotifier(fs, Options{PerSecond: 1000})

	res, err := n.Broadcast(context.Background(), []int64{1, 2, 3, 4}, "hello")
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if res.Sent != 2 || res.Blocked != 1 || res.Failed != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestNilNotifier(t *testing.T) {
	var n *Notifier
	n.Notify(1, "x")
	n.WithdrawalCompleted(domain.WithdrawalRequest{TelegramID: 1})
	n.Wait()
	if _, err := n.Broadcast(context.Background(), []int64{1}, "x"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
