// Package bot sends Telegram messages to players and admins.
package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"sync"

	"tree_ton/internal/domain"
	"tree_ton/internal/logger"
	"tree_ton/internal/metrics"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

const (
	header = "🌳 <b>Tree TON</b>\n\n"

	// MaxMessageLen is the Telegram limit for a text message.
	MaxMessageLen = 4096

	timeLayout = "2006-01-02 15:04 MST"
)

var ErrNotConfigured = errors.New("telegram bot not configured")

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Options struct {
	AdminIDs []int64
	// PerSecond caps outgoing messages during broadcasts.
	PerSecond float64
	Clock     clockwork.Clock
}

// Notifier delivers templated notifications. Single notifications are fire and
// forget: they run in the background and failures are only logged and counted.
// A nil *Notifier drops everything.
type Notifier struct {
	api      sender
	adminIDs []int64
	limiter  *rate.Limiter
	clock    clockwork.Clock
	log      *slog.Logger
	wg       sync.WaitGroup
}

// New connects to the Bot API with token.
func New(token string, opts Options) (*Notifier, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	n := newNotifier(api, opts)
	n.log.Info("telegram bot authorized", "username", api.Self.UserName)
	return n, nil
}

func newNotifier(api sender, opts Options) *Notifier {
	if opts.PerSecond <= 0 {
		opts.PerSecond = 20
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Notifier{
		api:      api,
		adminIDs: opts.AdminIDs,
		limiter:  rate.NewLimiter(rate.Limit(opts.PerSecond), 1),
		clock:    opts.Clock,
		log:      logger.With("component", "notifier"),
	}
}

// Wait blocks until background notifications have been sent.
func (n *Notifier) Wait() {
	if n == nil {
		return
	}
	n.wg.Wait()
}

func (n *Notifier) send(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	_, err := n.api.Send(msg)
	return err
}

func (n *Notifier) dispatch(kind string, chatID int64, text string) {
	if n == nil || chatID == 0 {
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if err := n.send(chatID, text); err != nil {
			metrics.Notifications.WithLabelValues(kind, "failed").Inc()
			n.log.Warn("notification failed", "kind", kind, "chat_id", chatID, "error", err)
			return
		}
		metrics.Notifications.WithLabelValues(kind, "sent").Inc()
	}()
}

// Notify sends a free-form message with the app header.
func (n *Notifier) Notify(chatID int64, message string) {
	n.dispatch("notification", chatID, header+message)
}

func formatAmount(amount fmt.Stringer, asset domain.Asset) string {
	return amount.String() + " " + strings.ToUpper(string(asset))
}

// WithdrawalSubmitted confirms a new request to its owner.
func (n *Notifier) WithdrawalSubmitted(w domain.WithdrawalRequest) {
	text := fmt.Sprintf("Withdrawal request submitted!\n\nAmount: %s\nStatus: Pending review\nRequest: <code>%s</code>",
		formatAmount(w.Amount, w.Asset), w.ID)
	n.dispatch("withdrawal_submitted", w.TelegramID, header+text)
}

// WithdrawalCompleted tells the owner the payout went through.
func (n *Notifier) WithdrawalCompleted(w domain.WithdrawalRequest) {
	if n == nil {
		return
	}
	at := n.clock.Now()
	if w.CompletedAt != nil {
		at = *w.CompletedAt
	}
	text := fmt.Sprintf("✅ <b>Withdrawal Completed</b>\n\nAmount: %s\nStatus: Successfully processed\nTime: %s",
		formatAmount(w.NetAmount(), w.Asset), at.UTC().Format(timeLayout))
	n.dispatch("withdrawal_completed", w.TelegramID, header+text)
}

// WithdrawalRejected tells the owner why the request was refused.
func (n *Notifier) WithdrawalRejected(w domain.WithdrawalRequest) {
	text := fmt.Sprintf("❌ <b>Withdrawal Rejected</b>\n\nAmount: %s\nReason: %s",
		formatAmount(w.Amount, w.Asset), html.EscapeString(w.Reason))
	n.dispatch("withdrawal_rejected", w.TelegramID, header+text)
}

// ReferralReward tells the referrer about a new friend.
func (n *Notifier) ReferralReward(referrerTgID int64, referredName string, reward int64) {
	text := fmt.Sprintf("🎉 <b>Referral Reward!</b>\n\n%s joined using your link!\nReward: +%d coins\nKeep sharing to earn more!",
		html.EscapeString(referredName), reward)
	n.dispatch("referral_reward", referrerTgID, header+text)
}

// AdminNewWithdrawal alerts every admin about a pending request.
func (n *Notifier) AdminNewWithdrawal(w domain.WithdrawalRequest) {
	if n == nil {
		return
	}
	text := fmt.Sprintf("🔔 <b>New withdrawal request</b>\n\nUser: @%s (TG: %d)\nAmount: %s\nWallet: <code>%s</code>\n\nID: <code>%s</code>",
		html.EscapeString(w.Username), w.TelegramID, formatAmount(w.Amount, w.Asset), w.WalletAddress, w.ID)
	for _, adminID := range n.adminIDs {
		n.dispatch("admin_withdrawal", adminID, header+text)
	}
}

// BroadcastResult counts delivery outcomes. Blocked recipients are not in Failed.
type BroadcastResult struct {
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Blocked int `json:"blocked"`
}

// Broadcast sends message with the app header to every chat id, throttled. It
// stops early when ctx ends.
func (n *Notifier) Broadcast(ctx context.Context, chatIDs []int64, message string) (BroadcastResult, error) {
	var res BroadcastResult
	if n == nil {
		return res, ErrNotConfigured
	}

	for _, chatID := range chatIDs {
		if err := n.limiter.Wait(ctx); err != nil {
			return res, err
		}

		err := n.send(chatID, header+message)
		switch {
		case err == nil:
			res.Sent++
		case isBlocked(err):
			res.Blocked++
		default:
			res.Failed++
			n.log.Error("failed to send broadcast", "tg_id", chatID, "error", err)
		}
	}

	metrics.Notifications.WithLabelValues("broadcast", "sent").Add(float64(res.Sent))
	metrics.Notifications.WithLabelValues("broadcast", "failed").Add(float64(res.Failed + res.Blocked))
	n.log.Info("broadcast complete", "sent", res.Sent, "failed", res.Failed, "blocked", res.Blocked)
	return res, nil
}

// isBlocked reports whether the recipient blocked the bot or deleted the account.
func isBlocked(err error) bool {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == 403 {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "blocked") || strings.Contains(msg, "deactivated")
}
