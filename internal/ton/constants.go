package ton

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	// NanoTON is the smallest TON unit (1 TON = 10^9 nanoTON)
	NanoTON = 1_000_000_000

	// ProofTTL is how long a TON Connect proof is valid
	ProofTTL = 15 * time.Minute

	// ProofPrefix starts every signed ton_proof message
	ProofPrefix = "ton-proof-item-v2/"
	// ConnectPrefix is hashed in front of the ton_proof message hash
	ConnectPrefix = "ton-connect"
)

// Network represents TON network type
type Network string

const (
	NetworkMainnet Network = "mainnet"
	NetworkTestnet Network = "testnet"
)

// TON API endpoints
const (
	TonAPIMainnet = "https://tonapi.io/v2"
	TonAPITestnet = "https://testnet.tonapi.io/v2"
)

var nanoPerTON = decimal.NewFromInt(NanoTON)

// ToNano converts a TON amount to nanoTON, truncating below one nanoTON.
func ToNano(amount decimal.Decimal) int64 {
	return amount.Mul(nanoPerTON).Truncate(0).IntPart()
}

// FromNano converts nanoTON to TON.
func FromNano(nano int64) decimal.Decimal {
	return decimal.NewFromInt(nano).Div(nanoPerTON)
}
