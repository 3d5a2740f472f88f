package wallet

import (
	"context"
	"errors"
	"testing"
	"time"

	"tree_ton/internal/domain"
	"tree_ton/internal/session"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
)

type nopPersister struct{}

func (nopPersister) UpdateUser(context.Context, domain.User) error { return nil }

type stubProvider struct {
	conn    Connection
	err     error
	balance decimal.Decimal
}

func (p stubProvider) Connect(context.Context, ConnectRequest) (Connection, error) {
	return p.conn, p.err
}

func (p stubProvider) Balance(context.Context, string) decimal.Decimal { return p.balance }

func (p stubProvider) SendPayment(context.Context, Payment) (Receipt, error) {
	return Receipt{}, errors.New("not used")
}

func newSession(t *testing.T) *session.Session {
	t.Helper()
	u := domain.NewUser(1, "w", "W", "", time.Now())
	u.ID = "u-1"
	s := session.New(u, nopPersister{}, session.Options{Clock: clockwork.NewFakeClock()})
	s.Start(context.Background())
	t.Cleanup(s.Close)
	return s
}

func TestConnectorLifecycle(t *testing.T) {
	s := newSession(t)
	provider := stubProvider{
		conn:    Connection{Address: "EQwallet", Balance: decimal.RequireFromString("3")},
		balance: decimal.RequireFromString("4.5"),
	}
	c := NewConnector(provider, nil)
	ctx := context.Background()

	if _, err := c.Refresh(ctx, s); !errors.Is(err, domain.ErrWalletNotConnected) {
		t.Fatalf("expected ErrWalletNotConnected, got %v", err)
	}

	u, err := c.Connect(ctx, s, ConnectRequest{})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if !u.IsWalletConnected || u.WalletAddress != "EQwallet" || !u.TonBalance.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("unexpected user after connect %+v", u)
	}

	u, err = c.Refresh(ctx, s)
	if err != nil || !u.TonBalance.Equal(decimal.RequireFromString("4.5")) {
		t.Fatalf("refresh: err=%v balance=%s", err, u.TonBalance)
	}

	u, err = c.Disconnect(ctx, s)
	if err != nil || u.IsWalletConnected || u.WalletAddress != "" || !u.TonBalance.IsZero() {
		t.Fatalf("disconnect: err=%v user=%+v", err, u)
	}
}

func TestConnectorConnectFailureLeavesState(t *testing.T) {
	s := newSession(t)
	c := NewConnector(stubProvider{err: &ConnectionError{Reason: "missing ton_proof"}}, nil)

	u, err := c.Connect(context.Background(), s, ConnectRequest{})
	var cerr *ConnectionError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ConnectionError, got %v", err)
	}
	if u.IsWalletConnected || u.WalletAddress != "" {
		t.Fatalf("failed connect changed state: %+v", u)
	}
}

func TestMemoFor(t *testing.T) {
	if MemoFor(domain.AssetTON) != "Tree TON Withdrawal" {
		t.Fatalf("unexpected ton memo")
	}
	if MemoFor(domain.AssetCoins) != "Tree TON Token Withdrawal" {
		t.Fatalf("unexpected coins memo")
	}
}
