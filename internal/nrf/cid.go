package nrf

import (
	"encoding/base32"
	"fmt"
	"strings"

	"lukechampine.com/blake3"
)

// cidLen is the fixed length of every CID this package produces: 52
// lowercase base32 characters, the unpadded encoding of a 32-byte
// digest (ceil(32*8/5) == 52).
const cidLen = 52

// cidEncoding is RFC 4648 base32 with no padding. It emits uppercase;
// CIDOf lowercases its output to the spec's CID format.
var cidEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// CIDOf computes the content identifier for bytes: BLAKE3-256 hashed,
// then encoded as lowercase base32 without padding.
func CIDOf(b []byte) string {
	sum := blake3.Sum256(b)
	return strings.ToLower(cidEncoding.EncodeToString(sum[:]))
}

// CID computes the content identifier for v: canonicalize, then
// CIDOf.
func CID(v interface{}) (string, error) {
	canon, err := Canonicalize(v)
	if err != nil {
		return "", fmt.Errorf("nrf: cid: %w", err)
	}
	return CIDOf(canon), nil
}

// ValidCID reports whether s has the shape of a CID this package
// would produce: exactly 52 lowercase base32 characters.
func ValidCID(s string) bool {
	if len(s) != cidLen {
		return false
	}
	if strings.ToLower(s) != s {
		return false
	}
	_, err := cidEncoding.DecodeString(strings.ToUpper(s))
	return err == nil
}
