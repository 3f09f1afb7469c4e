package identity

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/pkg/errors"
)

// ErrUnknownPastelID is returned when the keyring holds no key for the
// requested identity.
var ErrUnknownPastelID = errors.New("unknown pastelid")

// Keyring is a local secp256k1-backed Service. Signing hashes the message
// with SHA-256 and produces a compact base64 signature; verification
// recovers the public key from the compact signature and compares it to
// the key registered for the PastelID.
type Keyring struct {
	mu   sync.RWMutex
	keys map[string]*btcec.PrivateKey // pastelID -> private key
	pubs map[string]*btcec.PublicKey  // pastelID -> public key (verify-only entries)
}

// NewKeyring creates an empty keyring.
func NewKeyring() *Keyring {
	return &Keyring{
		keys: make(map[string]*btcec.PrivateKey),
		pubs: make(map[string]*btcec.PublicKey),
	}
}

// Generate creates a fresh keypair, registers it under pastelID and
// returns the compressed public key.
func (k *Keyring) Generate(pastelID string) ([]byte, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate private key")
	}
	k.mu.Lock()
	k.keys[pastelID] = priv
	k.pubs[pastelID] = priv.PubKey()
	k.mu.Unlock()
	return priv.PubKey().SerializeCompressed(), nil
}

// Import registers an existing private key under pastelID.
func (k *Keyring) Import(pastelID string, privKeyBytes []byte) error {
	priv, _ := btcec.PrivKeyFromBytes(privKeyBytes)
	if priv == nil {
		return errors.New("invalid private key bytes")
	}
	k.mu.Lock()
	k.keys[pastelID] = priv
	k.pubs[pastelID] = priv.PubKey()
	k.mu.Unlock()
	return nil
}

// RegisterVerifier registers a verify-only public key for a remote
// identity, e.g. a supernode's PastelID.
func (k *Keyring) RegisterVerifier(pastelID string, pubKeyBytes []byte) error {
	pub, err := btcec.ParsePubKey(pubKeyBytes)
	if err != nil {
		return errors.Wrap(err, "invalid public key bytes")
	}
	k.mu.Lock()
	k.pubs[pastelID] = pub
	k.mu.Unlock()
	return nil
}

// Sign implements Service.
func (k *Keyring) Sign(_ context.Context, pastelID string, message string) (string, error) {
	k.mu.RLock()
	priv, ok := k.keys[pastelID]
	k.mu.RUnlock()
	if !ok {
		return "", errors.Wrapf(ErrUnknownPastelID, "no signing key for %s", pastelID)
	}

	digest := sha256.Sum256([]byte(message))
	sig := ecdsa.SignCompact(priv, digest[:], true)
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Verify implements Service.
func (k *Keyring) Verify(_ context.Context, pastelID string, message string, signature string) (bool, error) {
	k.mu.RLock()
	pub, ok := k.pubs[pastelID]
	k.mu.RUnlock()
	if !ok {
		return false, errors.Wrapf(ErrUnknownPastelID, "no public key for %s", pastelID)
	}

	sigBytes, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false, errors.Wrap(err, "malformed signature encoding")
	}

	digest := sha256.Sum256([]byte(message))
	recovered, _, err := ecdsa.RecoverCompact(sigBytes, digest[:])
	if err != nil {
		return false, nil
	}
	return recovered.IsEqual(pub), nil
}
