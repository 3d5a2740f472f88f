// Package remote implements store.Store on top of the persistence HTTP API
// the mini-app used before the Go backend existed.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"tree_ton/internal/domain"
	"tree_ton/internal/store"
)

// APIError is a non-2xx answer the client could not map to a domain error.
type APIError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

var _ store.Store = (*Client)(nil)

func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// do sends body as JSON and decodes the answer into out when out is non-nil.
// 404 maps to domain.ErrNotFound and 409 to conflict.
func (c *Client) do(ctx context.Context, method, path string, body, out any, conflict error) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", method, path, domain.ErrNotFound)
	case resp.StatusCode == http.StatusConflict && conflict != nil:
		return fmt.Errorf("%s %s: %w", method, path, conflict)
	case resp.StatusCode >= 400:
		return &APIError{Method: method, Path: path, Status: resp.StatusCode, Body: string(data)}
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) getUser(ctx context.Context, path string) (*domain.User, error) {
	var dto userDTO
	if err := c.do(ctx, http.MethodGet, path, nil, &dto, nil); err != nil {
		return nil, err
	}
	u := dto.user()
	return &u, nil
}

func (c *Client) GetUser(ctx context.Context, id string) (*domain.User, error) {
	return c.getUser(ctx, "/users/"+url.PathEscape(id))
}

func (c *Client) GetUserByTelegramID(ctx context.Context, tgID int64) (*domain.User, error) {
	return c.getUser(ctx, "/users/telegram/"+strconv.FormatInt(tgID, 10))
}

func (c *Client) GetUserByReferralCode(ctx context.Context, code string) (*domain.User, error) {
	return c.getUser(ctx, "/users/referral/"+url.PathEscape(code))
}

// CreateUser lets the API assign the id when u.ID is empty.
func (c *Client) CreateUser(ctx context.Context, u *domain.User) error {
	var created userDTO
	if err := c.do(ctx, http.MethodPost, "/users", newUserDTO(*u), &created, domain.ErrAlreadyExists); err != nil {
		return err
	}
	if u.ID == "" {
		u.ID = created.ID
	}
	if u.ID == "" {
		return errors.New("create user: API returned no id")
	}
	return nil
}

func (c *Client) UpdateUser(ctx context.Context, u domain.User) error {
	return c.do(ctx, http.MethodPut, "/users/"+url.PathEscape(u.ID), newUserDTO(u), nil, nil)
}

func (c *Client) ListUsers(ctx context.Context, page, limit int) ([]domain.User, int, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))

	var res usersPageDTO
	if err := c.do(ctx, http.MethodGet, "/admin/users?"+q.Encode(), nil, &res, nil); err != nil {
		return nil, 0, err
	}
	users := make([]domain.User, 0, len(res.Users))
	for _, d := range res.Users {
		users = append(users, d.user())
	}
	return users, res.Total, nil
}

func (c *Client) RecordReferral(ctx context.Context, referrerID, referredID string, reward int64) error {
	body := referralDTO{
		ReferrerID: referrerID,
		NewUserID:  referredID,
		Reward:     reward,
		Timestamp:  time.Now().UnixMilli(),
	}
	return c.do(ctx, http.MethodPost, "/referrals", body, nil, domain.ErrAlreadyExists)
}

func (c *Client) CreateWithdrawal(ctx context.Context, w *domain.WithdrawalRequest) error {
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
	}
	var created withdrawalDTO
	if err := c.do(ctx, http.MethodPost, "/withdrawals", newWithdrawalDTO(*w), &created, nil); err != nil {
		return err
	}
	if w.ID == "" {
		w.ID = created.ID
	}
	if w.ID == "" {
		return errors.New("create withdrawal: API returned no id")
	}
	return nil
}

func (c *Client) GetWithdrawal(ctx context.Context, id string) (*domain.WithdrawalRequest, error) {
	var dto withdrawalDTO
	if err := c.do(ctx, http.MethodGet, "/withdrawals/"+url.PathEscape(id), nil, &dto, nil); err != nil {
		return nil, err
	}
	w := dto.withdrawal()
	return &w, nil
}

// ListWithdrawals filters by user and status on the server and by the rest locally.
func (c *Client) ListWithdrawals(ctx context.Context, f domain.WithdrawalFilter) ([]domain.WithdrawalRequest, error) {
	q := url.Values{}
	if f.UserID != "" {
		q.Set("userId", f.UserID)
	}
	if f.Status != "" {
		q.Set("status", string(f.Status))
	}
	path := "/withdrawals"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var dtos []withdrawalDTO
	if err := c.do(ctx, http.MethodGet, path, nil, &dtos, nil); err != nil {
		return nil, err
	}
	out := make([]domain.WithdrawalRequest, 0, len(dtos))
	for _, d := range dtos {
		w := d.withdrawal()
		if f.Match(w) {
			out = append(out, w)
		}
	}
	return out, nil
}

func (c *Client) UpdateWithdrawal(ctx context.Context, w domain.WithdrawalRequest, from domain.WithdrawalStatus) error {
	body := newWithdrawalDTO(w)
	body.ExpectedStatus = string(from)
	return c.do(ctx, http.MethodPut, "/withdrawals/"+url.PathEscape(w.ID), body, nil, domain.ErrStatusConflict)
}

func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, nil)
}
