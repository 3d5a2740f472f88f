package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"tree_ton/internal/bot"
	"tree_ton/internal/domain"
	"tree_ton/internal/logger"
	"tree_ton/internal/service"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

const (
	pageSize = 500

	TargetAll    = "all"
	TargetActive = "active"
	TargetCustom = "custom"
)

var (
	ErrInvalidMessage = errors.New("broadcast message must be 1 to 4096 characters")
	ErrInvalidTarget  = errors.New("unknown broadcast target")
	ErrNoRecipients   = errors.New("no recipients")
)

// Store is the read side the admin views need.
type Store interface {
	ListUsers(ctx context.Context, page, limit int) ([]domain.User, int, error)
	GetUser(ctx context.Context, id string) (*domain.User, error)
	ListWithdrawals(ctx context.Context, f domain.WithdrawalFilter) ([]domain.WithdrawalRequest, error)
}

// StatusSetter changes an account status, closing the session of disabled users.
type StatusSetter interface {
	SetStatus(ctx context.Context, userID string, status domain.UserStatus) (domain.User, error)
}

// Broadcaster delivers a message to many chats.
type Broadcaster interface {
	Broadcast(ctx context.Context, chatIDs []int64, message string) (bot.BroadcastResult, error)
}

// AdminService provides admin statistics and operations
type AdminService struct {
	store  Store
	status StatusSetter
	bcast  Broadcaster
	audit  *service.AuditService
	clock  clockwork.Clock
	log    *slog.Logger
}

func NewAdminService(store Store, status StatusSetter, bcast Broadcaster, audit *service.AuditService, clock clockwork.Clock) *AdminService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &AdminService{
		store:  store,
		status: status,
		bcast:  bcast,
		audit:  audit,
		clock:  clock,
		log:    logger.With("component", "admin"),
	}
}

func (s *AdminService) allUsers(ctx context.Context) ([]domain.User, error) {
	var all []domain.User
	for page := 1; ; page++ {
		users, total, err := s.store.ListUsers(ctx, page, pageSize)
		if err != nil {
			return nil, fmt.Errorf("list users page %d: %w", page, err)
		}
		all = append(all, users...)
		if len(users) == 0 || len(all) >= total {
			return all, nil
		}
	}
}

// GetStats loads users and withdrawals concurrently and aggregates them.
func (s *AdminService) GetStats(ctx context.Context) (Stats, error) {
	var (
		users       []domain.User
		withdrawals []domain.WithdrawalRequest
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		users, err = s.allUsers(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		withdrawals, err = s.store.ListWithdrawals(gctx, domain.WithdrawalFilter{})
		return err
	})
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}

	return ComputeStats(users, withdrawals, s.clock.Now()), nil
}

// UserPage is one page of the filtered user list.
type UserPage struct {
	Users []domain.User `json:"users"`
	Total int           `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

// ListUsers filters every user and returns the requested page.
func (s *AdminService) ListUsers(ctx context.Context, f UserFilter, page, limit int) (UserPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}

	users, err := s.allUsers(ctx)
	if err != nil {
		return UserPage{}, err
	}
	matched := FilterUsers(users, f)

	res := UserPage{Users: []domain.User{}, Total: len(matched), Page: page, Limit: limit}
	start := (page - 1) * limit
	if start < len(matched) {
		end := min(start+limit, len(matched))
		res.Users = matched[start:end]
	}
	return res, nil
}

// GetUser returns one user.
func (s *AdminService) GetUser(ctx context.Context, id string) (domain.User, error) {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return domain.User{}, err
	}
	return *u, nil
}

// UpdateUserStatus sets the account status of userID.
func (s *AdminService) UpdateUserStatus(ctx context.Context, adminID, userID string, status domain.UserStatus) (domain.User, error) {
	u, err := s.status.SetStatus(ctx, userID, status)
	if err != nil {
		return u, err
	}
	s.log.Info("user status changed", "admin_id", adminID, "user_id", userID, "status", status)
	s.audit.LogAdminAction(ctx, adminID, domain.AuditActionAdminSetStatus, userID, map[string]any{"status": string(status)})
	return u, nil
}

// ListWithdrawals returns requests with status, or all when status is empty.
func (s *AdminService) ListWithdrawals(ctx context.Context, status domain.WithdrawalStatus) ([]domain.WithdrawalRequest, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("status %q: %w", status, domain.ErrInvalidTransition)
	}
	return s.store.ListWithdrawals(ctx, domain.WithdrawalFilter{Status: status})
}

// BroadcastRequest selects the recipients of a broadcast.
type BroadcastRequest struct {
	Message string  `json:"message"`
	Target  string  `json:"target"`
	UserIDs []int64 `json:"user_ids"`
}

// BroadcastResult reports a finished broadcast.
type BroadcastResult struct {
	Recipients int `json:"recipients"`
	bot.BroadcastResult
}

// ValidateMessage checks the broadcast length limit.
func ValidateMessage(msg string) error {
	n := utf8.RuneCountInString(msg)
	if strings.TrimSpace(msg) == "" || n > bot.MaxMessageLen {
		return ErrInvalidMessage
	}
	return nil
}

// Recipients resolves the telegram ids a broadcast goes to.
func (s *AdminService) Recipients(ctx context.Context, req BroadcastRequest) ([]int64, error) {
	switch req.Target {
	case TargetCustom:
		return dedupe(req.UserIDs), nil
	case TargetAll, TargetActive, "":
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidTarget, req.Target)
	}

	users, err := s.allUsers(ctx)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	ids := make([]int64, 0, len(users))
	for _, u := range users {
		if req.Target == TargetActive && !RecentlyActive(u, now, ActiveWindow) {
			continue
		}
		ids = append(ids, u.TelegramID)
	}
	return dedupe(ids), nil
}

// Broadcast sends req.Message to the selected users.
func (s *AdminService) Broadcast(ctx context.Context, adminID string, req BroadcastRequest) (BroadcastResult, error) {
	if err := ValidateMessage(req.Message); err != nil {
		return BroadcastResult{}, err
	}
	ids, err := s.Recipients(ctx, req)
	if err != nil {
		return BroadcastResult{}, err
	}
	if len(ids) == 0 {
		return BroadcastResult{}, ErrNoRecipients
	}

	s.log.Info("starting broadcast", "admin_id", adminID, "target", req.Target, "recipients", len(ids))
	res, err := s.bcast.Broadcast(ctx, ids, req.Message)
	out := BroadcastResult{Recipients: len(ids), BroadcastResult: res}
	s.audit.LogAdminAction(ctx, adminID, domain.AuditActionAdminBroadcast, "", map[string]any{
		"target":  req.Target,
		"sent":    res.Sent,
		"failed":  res.Failed,
		"blocked": res.Blocked,
	})
	return out, err
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
