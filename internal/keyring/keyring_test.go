package keyring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStaticKeyring_KnownMatchNotRevoked(t *testing.T) {
	pub := []byte("01234567890123456789012345678901")
	k := NewStaticKeyring("kid-1", pub)

	known, match, revoked := k.Evaluate("kid-1", pub)
	assert.True(t, known)
	assert.True(t, match)
	assert.False(t, revoked)
}

func TestStaticKeyring_UnknownKID(t *testing.T) {
	k := NewStaticKeyring("kid-1", []byte("key"))
	known, match, revoked := k.Evaluate("kid-2", []byte("key"))
	assert.False(t, known)
	assert.False(t, match)
	assert.False(t, revoked)
}

func TestStaticKeyring_KeyMismatch(t *testing.T) {
	k := NewStaticKeyring("kid-1", []byte("key-a"))
	known, match, _ := k.Evaluate("kid-1", []byte("key-b"))
	assert.True(t, known)
	assert.False(t, match)
}

func TestStaticKeyring_Revoked(t *testing.T) {
	k := NewStaticKeyring("kid-1", []byte("key"))
	k.Revoke("kid-1")
	known, match, revoked := k.Evaluate("kid-1", []byte("key"))
	assert.True(t, known)
	assert.True(t, match)
	assert.True(t, revoked)
}
