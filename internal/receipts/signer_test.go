package receipts

import (
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testSigner(t *testing.T) *Signer {
	t.Helper()
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i)
	}
	s, err := NewSigner("test-kid-1", seed)
	require.NoError(t, err)
	return s
}

func TestSignAndVerify_RoundTrip(t *testing.T) {
	s := testSigner(t)
	unsigned := NewUnsignedReceipt("w1", "t1", "echo:test", "done", "k1", "plan1",
		[]PolicyTraceEntry{{Rule: "baseline_accept", OK: true, Detail: "work accepted into runtime"}},
		map[string]int64{"ttft_ms": 1, "ttr_ms": 2}, time.Now())

	r, err := s.Sign(unsigned)
	require.NoError(t, err)
	require.Len(t, r.CID, 52)

	v := Verify(r)
	require.True(t, v.OK)
	require.True(t, v.CIDMatch)
	require.True(t, v.SignatureValid)
}

func TestVerify_MutatedCIDFails(t *testing.T) {
	s := testSigner(t)
	unsigned := NewUnsignedReceipt("w1", "t1", "echo:test", "done", "k1", "plan1", nil,
		map[string]int64{"ttft_ms": 1, "ttr_ms": 2}, time.Now())
	r, err := s.Sign(unsigned)
	require.NoError(t, err)

	if r.CID[0] == 'a' {
		r.CID = "b" + r.CID[1:]
	} else {
		r.CID = "a" + r.CID[1:]
	}
	v := Verify(r)
	require.False(t, v.OK)
}

func TestVerify_MutatedFieldFails(t *testing.T) {
	s := testSigner(t)
	unsigned := NewUnsignedReceipt("w1", "t1", "echo:test", "done", "k1", "plan1", nil,
		map[string]int64{"ttft_ms": 1, "ttr_ms": 2}, time.Now())
	r, err := s.Sign(unsigned)
	require.NoError(t, err)

	r.Status = "fail"
	v := Verify(r)
	require.False(t, v.OK)
	require.False(t, v.CIDMatch)
}
