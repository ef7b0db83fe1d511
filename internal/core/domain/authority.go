package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

const (
	authorityTag = "marketd/authority"

	MaxSeedLen = 32
)

// Signer is the identity presented to the ledger when moving balances out of a holding or
// minting an asset. Only the types of this package implement it.
type Signer interface {
	Address() string
	signer()
}

// Authority is the signing identity of a market. Its address is the hash of the market seed
// and a nonce chosen so that the hash is not a valid x-only public key, hence no private key
// exists for it and only the engine can sign on its behalf.
type Authority struct {
	address string
	nonce   uint8
}

func (a Authority) Address() string {
	return a.address
}

func (a Authority) Nonce() uint8 {
	return a.nonce
}

func (a Authority) IsZero() bool {
	return a.address == ""
}

func (Authority) signer() {}

// Owner is a holder identified by an x-only public key.
type Owner struct {
	pubkey string
}

// NewOwner parses the given hex x-only public key. Off-curve addresses, like those of
// market authorities, are rejected.
func NewOwner(pubkey string) (Owner, error) {
	buf, err := hex.DecodeString(pubkey)
	if err != nil {
		return Owner{}, fmt.Errorf("invalid owner format: %s", err)
	}
	if _, err := schnorr.ParsePubKey(buf); err != nil {
		return Owner{}, fmt.Errorf("invalid owner pubkey: %s", err)
	}
	return Owner{hex.EncodeToString(buf)}, nil
}

func (o Owner) Address() string {
	return o.pubkey
}

func (Owner) signer() {}

// DeriveAuthority returns the authority of the given seed together with the bump nonce used
// to push its address off the curve. Nonces are tried from 255 downwards.
func DeriveAuthority(seed []byte) (Authority, error) {
	if err := validateSeed(seed); err != nil {
		return Authority{}, err
	}
	for nonce := 255; nonce > 0; nonce-- {
		digest := authorityDigest(seed, uint8(nonce))
		if !isOnCurve(digest) {
			return Authority{hex.EncodeToString(digest), uint8(nonce)}, nil
		}
	}
	return Authority{}, fmt.Errorf("unable to find a valid nonce for seed %x", seed)
}

// RecoverAuthority re-derives the authority of the given seed and nonce.
func RecoverAuthority(seed []byte, nonce uint8) (Authority, error) {
	if err := validateSeed(seed); err != nil {
		return Authority{}, err
	}
	digest := authorityDigest(seed, nonce)
	if isOnCurve(digest) {
		return Authority{}, fmt.Errorf("nonce %d yields an on-curve address", nonce)
	}
	return Authority{hex.EncodeToString(digest), nonce}, nil
}

func validateSeed(seed []byte) error {
	if len(seed) == 0 {
		return fmt.Errorf("missing signer seed")
	}
	if len(seed) > MaxSeedLen {
		return fmt.Errorf("signer seed must be at most %d bytes, got %d", MaxSeedLen, len(seed))
	}
	return nil
}

func authorityDigest(seed []byte, nonce uint8) []byte {
	h := sha256.New()
	h.Write(seed)
	h.Write([]byte{nonce})
	h.Write([]byte(authorityTag))
	return h.Sum(nil)
}

func isOnCurve(buf []byte) bool {
	_, err := schnorr.ParsePubKey(buf)
	return err == nil
}
