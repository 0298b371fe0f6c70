// Package canonicalize provides RFC 8785 (JSON Canonicalization Scheme)
// serialization and content hashing for compiled artifacts.
//
// Determinism is the whole point: the canonical bytes of an IR are the
// checksum input, so two compilations of byte-identical inputs must
// serialize identically regardless of map iteration order or platform.
package canonicalize

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// Canonical returns the RFC 8785 canonical JSON representation of v.
// v is first marshaled with encoding/json so struct tags are respected,
// then transformed into canonical form (sorted keys, no HTML escaping,
// ES6 number formatting).
func Canonical(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: marshal: %w", err)
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: jcs transform: %w", err)
	}
	return out, nil
}

// Hash returns the SHA-256 hex digest of the canonical form of v.
func Hash(v any) (string, error) {
	b, err := Canonical(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// HashBytes returns the SHA-256 hex digest of raw bytes.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
