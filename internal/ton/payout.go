package ton

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrPayoutNotConfigured is returned when no payout service URL is set.
var ErrPayoutNotConfigured = errors.New("payout service not configured")

// PayoutRequest is the transfer the payout service signs and broadcasts.
type PayoutRequest struct {
	Reference  string `json:"reference"`
	To         string `json:"to"`
	Asset      string `json:"asset"`
	AmountNano int64  `json:"amount_nano"`
	Amount     string `json:"amount"`
	Memo       string `json:"memo"`
}

// PayoutResponse is the payout service answer.
type PayoutResponse struct {
	TxHash string `json:"tx_hash"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// PayoutClient posts transfers to the hot wallet service.
type PayoutClient struct {
	url        string
	token      string
	httpClient *http.Client
}

func NewPayoutClient(url, token string) *PayoutClient {
	return &PayoutClient{
		url:   strings.TrimSuffix(url, "/"),
		token: token,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Send posts req and returns the transaction hash.
func (p *PayoutClient) Send(ctx context.Context, req PayoutRequest) (string, error) {
	if p == nil || p.url == "" {
		return "", ErrPayoutNotConfigured
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal payout: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url+"/payouts", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.Reference)
	if p.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", &APIError{Status: resp.StatusCode, Body: string(data)}
	}

	var out PayoutResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("unmarshal: %w", err)
	}
	if out.Error != "" || out.Status == "rejected" || out.Status == "failed" {
		return "", fmt.Errorf("payout %s: %s", out.Status, out.Error)
	}
	if out.TxHash == "" {
		return "", errors.New("payout response has no transaction hash")
	}
	return out.TxHash, nil
}
