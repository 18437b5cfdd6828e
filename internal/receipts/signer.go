package receipts

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/danvoulez/aurea/internal/nrf"
)

const algEd25519 = "ed25519"

// Signer holds an Ed25519 key pair and the kid under which it signs.
// Read-only after construction; safe for concurrent use by multiple
// scheduler goroutines.
type Signer struct {
	kid     string
	public  ed25519.PublicKey
	private ed25519.PrivateKey
}

// NewSigner derives an Ed25519 key pair from a 32-byte seed.
func NewSigner(kid string, seed []byte) (*Signer, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("receipts: seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &Signer{
		kid:     kid,
		public:  priv.Public().(ed25519.PublicKey),
		private: priv,
	}, nil
}

// KID returns the signer's key identifier.
func (s *Signer) KID() string { return s.kid }

// PublicKeyBase64 returns the signer's raw public key, base64 encoded.
func (s *Signer) PublicKeyBase64() string {
	return base64.StdEncoding.EncodeToString(s.public)
}

// CanonicalBytes returns the canonical JSON form of an unsigned
// receipt, the exact bytes hashed to derive its CID.
func CanonicalBytes(u UnsignedReceipt) ([]byte, error) {
	raw, err := json.Marshal(u)
	if err != nil {
		return nil, fmt.Errorf("receipts: marshal unsigned: %w", err)
	}
	canon, err := nrf.CanonicalizeFromJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("receipts: canonicalize unsigned: %w", err)
	}
	return canon, nil
}

// CIDOf computes the CID of an unsigned receipt's canonical form.
func CIDOf(u UnsignedReceipt) (string, error) {
	canon, err := CanonicalBytes(u)
	if err != nil {
		return "", err
	}
	return nrf.CIDOf(canon), nil
}

// Sign derives the CID of the unsigned receipt and produces a signed
// Receipt over it.
func (s *Signer) Sign(u UnsignedReceipt) (Receipt, error) {
	cid, err := CIDOf(u)
	if err != nil {
		return Receipt{}, err
	}
	sig := ed25519.Sign(s.private, []byte(cid))
	return Receipt{
		UnsignedReceipt: u,
		CID:             cid,
		Signature: Signature{
			Alg:       algEd25519,
			KID:       s.kid,
			PublicKey: s.PublicKeyBase64(),
			Signature: base64.StdEncoding.EncodeToString(sig),
		},
	}, nil
}

// VerificationResult is the structural verification triple the spec
// requires: Ok never throws, it only reports.
type VerificationResult struct {
	OK             bool
	CIDMatch       bool
	SignatureValid bool
}

// Verify recomputes the CID from the receipt's unsigned view, checks
// it against the stored cid, and checks the Ed25519 signature against
// the embedded public key. It never returns an error: malformed input
// simply yields a negative result, per the spec's "verification never
// throws" rule.
func Verify(r Receipt) VerificationResult {
	if r.Signature.Alg != algEd25519 {
		return VerificationResult{}
	}
	cid, err := CIDOf(r.UnsignedReceipt)
	if err != nil {
		return VerificationResult{}
	}
	cidMatch := cid == r.CID

	pub, err := base64.StdEncoding.DecodeString(r.Signature.PublicKey)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return VerificationResult{CIDMatch: cidMatch}
	}
	sig, err := base64.StdEncoding.DecodeString(r.Signature.Signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return VerificationResult{CIDMatch: cidMatch}
	}
	sigValid := ed25519.Verify(ed25519.PublicKey(pub), []byte(r.CID), sig)
	return VerificationResult{
		OK:             cidMatch && sigValid,
		CIDMatch:       cidMatch,
		SignatureValid: sigValid,
	}
}
