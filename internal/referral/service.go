// Package referral credits users who bring friends into the game.
package referral

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"tree_ton/internal/domain"
	"tree_ton/internal/economy"
	"tree_ton/internal/logger"
	"tree_ton/internal/service"
)

const DefaultReward int64 = 100

type Store interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
	GetUserByReferralCode(ctx context.Context, code string) (*domain.User, error)
	RecordReferral(ctx context.Context, referrerID, referredID string, reward int64) error
}

// UserUpdater applies a mutation through the live session of a user.
type UserUpdater interface {
	Update(ctx context.Context, userID, op string, fn func(domain.User) (domain.User, error)) (domain.User, error)
}

type Notifier interface {
	ReferralReward(referrerTgID int64, referredName string, reward int64)
}

type Service struct {
	store       Store
	users       UserUpdater
	notifier    Notifier
	audit       *service.AuditService
	reward      int64
	botUsername string
	log         *slog.Logger
}

func NewService(store Store, users UserUpdater, notifier Notifier, audit *service.AuditService, reward int64, botUsername string) *Service {
	if reward <= 0 {
		reward = DefaultReward
	}
	return &Service{
		store:       store,
		users:       users,
		notifier:    notifier,
		audit:       audit,
		reward:      reward,
		botUsername: botUsername,
		log:         logger.With("component", "referral"),
	}
}

// Reward is the number of coins credited per referral.
func (s *Service) Reward() int64 { return s.reward }

// resolve finds the referrer named by a start parameter: a TREE code first,
// then a plain user id.
func (s *Service) resolve(ctx context.Context, startParam string) (*domain.User, error) {
	if strings.HasPrefix(startParam, domain.ReferralCodePrefix) {
		u, err := s.store.GetUserByReferralCode(ctx, startParam)
		if err == nil {
			return u, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}
	return s.store.GetUser(ctx, startParam)
}

// Apply credits the referrer named by startParam for the newly registered user.
// It returns the updated referrer.
func (s *Service) Apply(ctx context.Context, referred domain.User, startParam string) (domain.User, error) {
	startParam = strings.TrimSpace(startParam)
	if startParam == "" {
		return domain.User{}, fmt.Errorf("empty start parameter: %w", domain.ErrNotFound)
	}

	referrer, err := s.resolve(ctx, startParam)
	if err != nil {
		return domain.User{}, fmt.Errorf("resolve referrer %q: %w", startParam, err)
	}
	if referrer.ID == referred.ID || referrer.TelegramID == referred.TelegramID {
		return domain.User{}, domain.ErrSelfReferral
	}

	if err := s.store.RecordReferral(ctx, referrer.ID, referred.ID, s.reward); err != nil {
		return domain.User{}, fmt.Errorf("record referral: %w", err)
	}

	updated, err := s.users.Update(ctx, referrer.ID, "referral_credit", func(u domain.User) (domain.User, error) {
		return economy.CreditReferral(u, s.reward), nil
	})
	if err != nil {
		return domain.User{}, fmt.Errorf("credit referrer %s: %w", referrer.ID, err)
	}

	s.log.Info("referral applied", "referrer_id", referrer.ID, "referred_id", referred.ID, "reward", s.reward)
	s.notifier.ReferralReward(updated.TelegramID, referred.DisplayName(), s.reward)
	s.audit.LogReferral(ctx, referrer.ID, referred.ID, s.reward)
	return updated, nil
}

// Stats summarises the referral program for one user.
type Stats struct {
	Count      int                        `json:"count"`
	Earned     int64                      `json:"earned"`
	Reward     int64                      `json:"reward"`
	Code       string                     `json:"code"`
	Link       string                     `json:"link"`
	Milestones []domain.ReferralMilestone `json:"milestones"`
}

func (s *Service) Stats(u domain.User) Stats {
	return Stats{
		Count:      u.ReferralCount,
		Earned:     int64(u.ReferralCount) * s.reward,
		Reward:     s.reward,
		Code:       u.ReferralCode,
		Link:       economy.ReferralLink(s.botUsername, u.ID),
		Milestones: economy.ReferralMilestones(u.ReferralCount),
	}
}
