package crypto

import (
	"fmt"
	"sync"
)

// KeyRing is the signing-key provider: it holds named signers, tracks the
// active key, and keeps rotated keys available for verification of older
// artifacts.
type KeyRing struct {
	mu      sync.RWMutex
	signers map[string]Signer
	active  string
}

// NewKeyRing creates an empty keyring.
func NewKeyRing() *KeyRing {
	return &KeyRing{signers: make(map[string]Signer)}
}

// Add registers a signer. The first key added becomes active.
func (k *KeyRing) Add(s Signer) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.signers[s.KeyID()] = s
	if k.active == "" {
		k.active = s.KeyID()
	}
}

// Rotate makes keyID the active signing key. Old keys stay resolvable.
func (k *KeyRing) Rotate(keyID string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.signers[keyID]; !ok {
		return fmt.Errorf("crypto: unknown key %q", keyID)
	}
	k.active = keyID
	return nil
}

// Revoke removes a key. Revoking the active key leaves the ring without
// an active signer until the next Rotate.
func (k *KeyRing) Revoke(keyID string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.signers, keyID)
	if k.active == keyID {
		k.active = ""
	}
}

// Active returns the current signing key.
func (k *KeyRing) Active() (Signer, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	s, ok := k.signers[k.active]
	if !ok {
		return nil, fmt.Errorf("crypto: no active signing key")
	}
	return s, nil
}

// Get resolves a signer by key id, for verifying older artifacts.
func (k *KeyRing) Get(keyID string) (Signer, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	s, ok := k.signers[keyID]
	if !ok {
		return nil, fmt.Errorf("crypto: unknown key %q", keyID)
	}
	return s, nil
}
