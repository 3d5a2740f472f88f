// Package wallet defines the blockchain wallet contract used by the rest of the
// backend and ties wallet state to user sessions.
package wallet

import (
	"context"
	"fmt"
	"time"

	"tree_ton/internal/domain"

	"github.com/shopspring/decimal"
)

const (
	// PaymentMemo is attached to every TON withdrawal payment.
	PaymentMemo = "Tree TON Withdrawal"
	// TokenPaymentMemo is attached to coin (token) withdrawal payments.
	TokenPaymentMemo = "Tree TON Token Withdrawal"
)

// Account is the wallet account reported by TON Connect.
type Account struct {
	Address   string `json:"address"`
	Chain     string `json:"chain"`
	PublicKey string `json:"publicKey"`
}

// ProofDomain is the app domain the wallet signed for.
type ProofDomain struct {
	LengthBytes uint32 `json:"lengthBytes"`
	Value       string `json:"value"`
}

// Proof is a TON Connect ton_proof.
type Proof struct {
	Timestamp int64       `json:"timestamp"`
	Domain    ProofDomain `json:"domain"`
	Signature string      `json:"signature"`
	Payload   string      `json:"payload"`
}

// ConnectRequest is what the mini-app sends after the user approved the connection.
type ConnectRequest struct {
	Account Account `json:"account"`
	Proof   *Proof  `json:"proof"`
}

// Connection is a verified wallet.
type Connection struct {
	Address string
	Balance decimal.Decimal
}

// Payment is one outgoing transfer.
type Payment struct {
	// Reference identifies the payment at the payout service; retries reuse it.
	Reference string
	To        string
	Asset     domain.Asset
	Amount    decimal.Decimal
	Memo      string
}

// Receipt confirms a broadcast payment.
type Receipt struct {
	TxHash string
	SentAt time.Time
}

// Provider talks to the blockchain.
type Provider interface {
	// Connect verifies the request and returns the wallet address and balance.
	// It fails with *ConnectionError.
	Connect(ctx context.Context, req ConnectRequest) (Connection, error)
	// Balance returns the wallet balance, or zero when it cannot be read.
	Balance(ctx context.Context, address string) decimal.Decimal
	// SendPayment broadcasts p. It fails with *TransactionError.
	SendPayment(ctx context.Context, p Payment) (Receipt, error)
}

// ConnectionError means the wallet could not be connected.
type ConnectionError struct {
	Reason string
	Err    error
}

func (e *ConnectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("wallet connection failed: %s: %v", e.Reason, e.Err)
	}
	return "wallet connection failed: " + e.Reason
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// TransactionError means a payment was not broadcast or was rejected.
type TransactionError struct {
	To     string
	Amount decimal.Decimal
	Err    error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("payment of %s to %s failed: %v", e.Amount, e.To, e.Err)
}

func (e *TransactionError) Unwrap() error { return e.Err }

// MemoFor returns the payment memo for asset.
func MemoFor(asset domain.Asset) string {
	if asset == domain.AssetCoins {
		return TokenPaymentMemo
	}
	return PaymentMemo
}
