package ton

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"tree_ton/internal/wallet"

	tongo "github.com/tonkeeper/tongo/ton"
)

// TON Connect proof verification
// Based on: https://docs.ton.org/develop/dapps/ton-connect/sign

var (
	ErrProofExpired   = errors.New("proof expired")
	ErrDomainMismatch = errors.New("proof domain mismatch")
	ErrBadSignature   = errors.New("invalid proof signature")
)

// VerifyProof checks that the wallet behind account signed proof for
// allowedDomain within ProofTTL of now. It returns the parsed address.
func VerifyProof(account wallet.Account, proof wallet.Proof, allowedDomain string, now time.Time) (tongo.AccountID, error) {
	addr, err := tongo.ParseAccountID(account.Address)
	if err != nil {
		return tongo.AccountID{}, fmt.Errorf("parse address: %w", err)
	}

	age := now.Sub(time.Unix(proof.Timestamp, 0))
	if age > ProofTTL || age < -ProofTTL {
		return addr, ErrProofExpired
	}

	if allowedDomain != "" && proof.Domain.Value != allowedDomain {
		return addr, fmt.Errorf("%w: expected %s, got %s", ErrDomainMismatch, allowedDomain, proof.Domain.Value)
	}
	if proof.Domain.LengthBytes != 0 && int(proof.Domain.LengthBytes) != len(proof.Domain.Value) {
		return addr, fmt.Errorf("%w: length %d does not match %q", ErrDomainMismatch, proof.Domain.LengthBytes, proof.Domain.Value)
	}

	pubKey, err := hex.DecodeString(account.PublicKey)
	if err != nil {
		return addr, fmt.Errorf("invalid public key format: %w", err)
	}
	if len(pubKey) != ed25519.PublicKeySize {
		return addr, errors.New("invalid public key size")
	}

	signature, err := base64.StdEncoding.DecodeString(proof.Signature)
	if err != nil {
		return addr, fmt.Errorf("invalid signature format: %w", err)
	}

	if !ed25519.Verify(pubKey, ProofDigest(addr, proof), signature) {
		return addr, ErrBadSignature
	}
	return addr, nil
}

// ProofDigest builds the hash the wallet signs:
//
//	sha256(0xffff ++ "ton-connect" ++ sha256(message))
//
// where message is "ton-proof-item-v2/" ++ workchain (4 bytes BE) ++ address hash
// ++ domain length (4 bytes LE) ++ domain ++ timestamp (8 bytes LE) ++ payload.
func ProofDigest(addr tongo.AccountID, proof wallet.Proof) []byte {
	var msg []byte
	msg = append(msg, ProofPrefix...)
	msg = binary.BigEndian.AppendUint32(msg, uint32(addr.Workchain))
	msg = append(msg, addr.Address[:]...)
	msg = binary.LittleEndian.AppendUint32(msg, uint32(len(proof.Domain.Value)))
	msg = append(msg, proof.Domain.Value...)
	msg = binary.LittleEndian.AppendUint64(msg, uint64(proof.Timestamp))
	msg = append(msg, proof.Payload...)
	msgHash := sha256.Sum256(msg)

	full := []byte{0xff, 0xff}
	full = append(full, ConnectPrefix...)
	full = append(full, msgHash[:]...)
	digest := sha256.Sum256(full)
	return digest[:]
}

// NormalizeAddress converts any address format to the user-friendly
// bounceable form.
func NormalizeAddress(address string, network Network) (string, error) {
	addr, err := tongo.ParseAccountID(address)
	if err != nil {
		return "", err
	}
	return addr.ToHuman(true, network == NetworkTestnet), nil
}
