package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEd25519SignVerify(t *testing.T) {
	s, err := NewEd25519Signer("compiler-key-1")
	require.NoError(t, err)

	sig, err := s.Sign([]byte("payload"))
	require.NoError(t, err)

	ok, err := VerifyEd25519(s.PublicKey(), sig, []byte("payload"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyEd25519(s.PublicKey(), sig, []byte("tampered"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHMACSignVerify(t *testing.T) {
	secret := []byte("shared-secret")
	s := NewHMACSigner(secret, "legacy-hmac")

	sig, err := s.Sign([]byte("payload"))
	require.NoError(t, err)

	assert.True(t, VerifyHMAC(secret, sig, []byte("payload")))
	assert.False(t, VerifyHMAC(secret, sig, []byte("other")))
	assert.Equal(t, "HMAC-SHA256", s.Algorithm())
}

func TestKeyRingRotation(t *testing.T) {
	ring := NewKeyRing()

	k1, err := NewEd25519Signer("k1")
	require.NoError(t, err)
	k2, err := NewEd25519Signer("k2")
	require.NoError(t, err)

	ring.Add(k1)
	ring.Add(k2)

	active, err := ring.Active()
	require.NoError(t, err)
	assert.Equal(t, "k1", active.KeyID())

	require.NoError(t, ring.Rotate("k2"))
	active, err = ring.Active()
	require.NoError(t, err)
	assert.Equal(t, "k2", active.KeyID())

	// Rotated-out keys remain resolvable for verification.
	old, err := ring.Get("k1")
	require.NoError(t, err)
	assert.Equal(t, "k1", old.KeyID())

	assert.Error(t, ring.Rotate("missing"))

	ring.Revoke("k2")
	_, err = ring.Active()
	assert.Error(t, err)
}
