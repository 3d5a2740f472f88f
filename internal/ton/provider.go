package ton

import (
	"context"
	"errors"

	"tree_ton/internal/domain"
	"tree_ton/internal/logger"
	"tree_ton/internal/wallet"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
)

// BalanceReader reads wallet balances in nanoTON.
type BalanceReader interface {
	GetBalance(ctx context.Context, address string) (int64, error)
}

// Payer broadcasts payouts.
type Payer interface {
	Send(ctx context.Context, req PayoutRequest) (string, error)
}

// Provider is the TON implementation of wallet.Provider.
type Provider struct {
	balances BalanceReader
	payer    Payer
	network  Network
	domain   string
	clock    clockwork.Clock
}

type ProviderConfig struct {
	Network Network
	// ProofDomain is the app domain wallets must sign for. Empty accepts any domain.
	ProofDomain string
	Clock       clockwork.Clock
}

func NewProvider(balances BalanceReader, payer Payer, cfg ProviderConfig) *Provider {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Network == "" {
		cfg.Network = NetworkMainnet
	}
	return &Provider{
		balances: balances,
		payer:    payer,
		network:  cfg.Network,
		domain:   cfg.ProofDomain,
		clock:    cfg.Clock,
	}
}

var _ wallet.Provider = (*Provider)(nil)

func (p *Provider) Connect(ctx context.Context, req wallet.ConnectRequest) (wallet.Connection, error) {
	if req.Account.Address == "" {
		return wallet.Connection{}, &wallet.ConnectionError{Reason: "no wallet address"}
	}
	if req.Proof == nil {
		return wallet.Connection{}, &wallet.ConnectionError{Reason: "missing ton_proof"}
	}

	addr, err := VerifyProof(req.Account, *req.Proof, p.domain, p.clock.Now())
	if err != nil {
		return wallet.Connection{}, &wallet.ConnectionError{Reason: "proof rejected", Err: err}
	}

	address := addr.ToHuman(true, p.network == NetworkTestnet)
	return wallet.Connection{
		Address: address,
		Balance: p.Balance(ctx, address),
	}, nil
}

func (p *Provider) Balance(ctx context.Context, address string) decimal.Decimal {
	nano, err := p.balances.GetBalance(ctx, address)
	if err != nil {
		logger.WithContext(ctx).Warn("failed to get balance", "address", address, "error", err)
		return decimal.Zero
	}
	return FromNano(nano)
}

func (p *Provider) SendPayment(ctx context.Context, pay wallet.Payment) (wallet.Receipt, error) {
	if pay.To == "" {
		return wallet.Receipt{}, &wallet.TransactionError{To: pay.To, Amount: pay.Amount, Err: errors.New("no destination")}
	}
	if !pay.Amount.IsPositive() {
		return wallet.Receipt{}, &wallet.TransactionError{To: pay.To, Amount: pay.Amount, Err: errors.New("amount must be positive")}
	}

	if p.payer == nil {
		return wallet.Receipt{}, &wallet.TransactionError{To: pay.To, Amount: pay.Amount, Err: ErrPayoutNotConfigured}
	}

	req := PayoutRequest{
		Reference: pay.Reference,
		To:        pay.To,
		Asset:     string(pay.Asset),
		Amount:    pay.Amount.String(),
		Memo:      pay.Memo,
	}
	if req.Memo == "" {
		req.Memo = wallet.MemoFor(pay.Asset)
	}
	if pay.Asset == domain.AssetTON {
		req.AmountNano = ToNano(pay.Amount)
	}

	hash, err := p.payer.Send(ctx, req)
	if err != nil {
		return wallet.Receipt{}, &wallet.TransactionError{To: pay.To, Amount: pay.Amount, Err: err}
	}
	return wallet.Receipt{TxHash: hash, SentAt: p.clock.Now()}, nil
}
