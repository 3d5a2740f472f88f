package wallet

import (
	"context"

	"tree_ton/internal/domain"
	"tree_ton/internal/logger"
	"tree_ton/internal/service"
	"tree_ton/internal/session"
)

// Connector applies wallet operations to a user's session.
type Connector struct {
	provider Provider
	audit    *service.AuditService
}

func NewConnector(provider Provider, audit *service.AuditService) *Connector {
	return &Connector{provider: provider, audit: audit}
}

// Connect verifies the wallet and records its address and balance.
func (c *Connector) Connect(ctx context.Context, s *session.Session, req ConnectRequest) (domain.User, error) {
	conn, err := c.provider.Connect(ctx, req)
	if err != nil {
		logger.WithContext(ctx).Warn("wallet connect refused", "user_id", s.ID(), "error", err)
		return s.Snapshot(), err
	}

	u, err := s.ConnectWallet(conn.Address, conn.Balance)
	if err != nil {
		return u, err
	}
	c.audit.LogWallet(ctx, u.ID, domain.AuditActionWalletConnect, conn.Address)
	return u, nil
}

// Disconnect clears the wallet address and balance.
func (c *Connector) Disconnect(ctx context.Context, s *session.Session) (domain.User, error) {
	before := s.Snapshot()
	u, err := s.DisconnectWallet()
	if err != nil {
		return u, err
	}
	if before.IsWalletConnected {
		c.audit.LogWallet(ctx, u.ID, domain.AuditActionWalletDisconnect, before.WalletAddress)
	}
	return u, nil
}

// Refresh reads the current balance of the connected wallet.
func (c *Connector) Refresh(ctx context.Context, s *session.Session) (domain.User, error) {
	u := s.Snapshot()
	if !u.IsWalletConnected {
		return u, domain.ErrWalletNotConnected
	}
	return s.SetTonBalance(c.provider.Balance(ctx, u.WalletAddress))
}
