// Package crypto provides the signing primitives used to attest compiled
// artifacts and audit records.
//
// The Signer interface hides the signing scheme so a deployment can swap
// the default Ed25519 software keys for hardware-backed signing without
// touching compiler logic. The HMAC signer mirrors the shared-secret
// scheme some fleets still run and is kept behind the same interface.
package crypto

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Signer signs arbitrary bytes and identifies the key that did so.
type Signer interface {
	Sign(data []byte) (string, error)
	KeyID() string
	Algorithm() string
	PublicKey() string
}

// Ed25519Signer signs with an in-memory Ed25519 private key.
type Ed25519Signer struct {
	priv  ed25519.PrivateKey
	pub   ed25519.PublicKey
	keyID string
}

// NewEd25519Signer generates a fresh key pair tagged with keyID.
func NewEd25519Signer(keyID string) (*Ed25519Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("crypto: key generation failed: %w", err)
	}
	return &Ed25519Signer{priv: priv, pub: pub, keyID: keyID}, nil
}

// NewEd25519SignerFromKey wraps an existing private key.
func NewEd25519SignerFromKey(priv ed25519.PrivateKey, keyID string) *Ed25519Signer {
	return &Ed25519Signer{
		priv:  priv,
		pub:   priv.Public().(ed25519.PublicKey),
		keyID: keyID,
	}
}

func (s *Ed25519Signer) Sign(data []byte) (string, error) {
	return hex.EncodeToString(ed25519.Sign(s.priv, data)), nil
}

func (s *Ed25519Signer) KeyID() string    { return s.keyID }
func (s *Ed25519Signer) Algorithm() string { return "ED25519" }
func (s *Ed25519Signer) PublicKey() string { return hex.EncodeToString(s.pub) }

// VerifyEd25519 checks a hex signature against a hex public key.
func VerifyEd25519(pubKeyHex, sigHex string, data []byte) (bool, error) {
	pub, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return false, fmt.Errorf("crypto: invalid public key hex: %w", err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return false, fmt.Errorf("crypto: invalid public key size %d", len(pub))
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return false, fmt.Errorf("crypto: invalid signature hex: %w", err)
	}
	return ed25519.Verify(ed25519.PublicKey(pub), data, sig), nil
}

// HMACSigner signs with a shared secret (HMAC-SHA256).
type HMACSigner struct {
	secret []byte
	keyID  string
}

// NewHMACSigner wraps a shared secret tagged with keyID.
func NewHMACSigner(secret []byte, keyID string) *HMACSigner {
	return &HMACSigner{secret: secret, keyID: keyID}
}

func (s *HMACSigner) Sign(data []byte) (string, error) {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

func (s *HMACSigner) KeyID() string    { return s.keyID }
func (s *HMACSigner) Algorithm() string { return "HMAC-SHA256" }

// PublicKey returns empty: shared-secret schemes have nothing to publish.
func (s *HMACSigner) PublicKey() string { return "" }

// VerifyHMAC checks an HMAC-SHA256 hex signature in constant time.
func VerifyHMAC(secret []byte, sigHex string, data []byte) bool {
	mac := hmac.New(sha256.New, secret)
	mac.Write(data)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(sigHex))
}
