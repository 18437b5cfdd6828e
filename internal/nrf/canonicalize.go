// Package nrf implements the canonical serialization and content
// identifier rules used to derive a receipt's CID from its fields.
package nrf

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"unicode/utf16"
	"unicode/utf8"
)

// Canonicalize renders v as canonical NRF bytes: object keys sorted
// lexicographically by UTF-8 byte value, no HTML escaping, integral
// float64/json.Number values rendered without a decimal point, and
// "NaN"/"Infinity"/"-Infinity" string values rejected outright since
// they indicate an upstream float that escaped JSON's own ban on
// non-finite numbers.
func Canonicalize(v interface{}) ([]byte, error) {
	norm, err := normalize(v)
	if err != nil {
		return nil, fmt.Errorf("nrf: canonicalize: %w", err)
	}
	var buf bytes.Buffer
	if err := writeValue(&buf, norm); err != nil {
		return nil, fmt.Errorf("nrf: canonicalize: %w", err)
	}
	return buf.Bytes(), nil
}

// CanonicalizeFromJSON parses raw JSON with number preservation and
// then canonicalizes it, the path used when a payload arrives over the
// wire as already-serialized JSON rather than as a Go value. Unlike a
// plain Decode into interface{}, this rejects an object carrying the
// same key twice instead of silently keeping the last occurrence.
func CanonicalizeFromJSON(raw []byte) ([]byte, error) {
	for i := 0; i+6 <= len(raw); i++ {
		if raw[i] != '\\' {
			continue
		}
		hi, err := strconv.ParseUint(string(raw[i+2:i+6]), 16, 16)
		if raw[i+1] == 'u' && err == nil && utf16.IsSurrogate(rune(hi)) {
			lo, _ := strconv.ParseUint(string(raw[min(i+8, len(raw)):min(i+12, len(raw))]), 16, 16)
			if !bytes.HasPrefix(raw[i+6:], []byte(`\u`)) || utf16.DecodeRune(rune(hi), rune(lo)) == 0xFFFD {
				return nil, fmt.Errorf("nrf: decode: lone surrogate escape at byte %d", i)
			}
			i += 6
		}
		i++
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return nil, fmt.Errorf("nrf: decode: %w", err)
	}
	return Canonicalize(v)
}

// normalize walks v, validating and converting it into the reduced set
// of types writeValue knows how to render: nil, bool, int64, float64,
// string, []interface{}, map[string]interface{}.
func normalize(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case bool:
		return t, nil
	case json.Number:
		return normalizeNumber(t)
	case float64:
		return normalizeFloat(t)
	case int:
		return int64(t), nil
	case int64:
		return t, nil
	case string:
		if err := validateString(t); err != nil {
			return nil, err
		}
		return t, nil
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			n, err := normalize(e)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			if err := validateString(k); err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			n, err := normalize(e)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported type %T", v)
	}
}

func normalizeNumber(n json.Number) (interface{}, error) {
	if i, err := n.Int64(); err == nil {
		return i, nil
	}
	f, err := n.Float64()
	if err != nil {
		return nil, fmt.Errorf("invalid number %q", n.String())
	}
	return normalizeFloat(f)
}

// int64FloatBound is 2^63: the float64 value at which the signed
// 64-bit integer range overflows. Used, together with a round-trip
// check, to decide whether a whole-valued float is exactly
// representable as an int64 rather than relying on a fixed magnitude
// cutoff well below int64's actual range.
const int64FloatBound = 9223372036854775808.0

func normalizeFloat(f float64) (interface{}, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("non-finite number %v not representable", f)
	}
	if f == math.Trunc(f) && f >= -int64FloatBound && f < int64FloatBound {
		if i := int64(f); float64(i) == f {
			return i, nil
		}
	}
	return f, nil
}

// validateString rejects the sentinel strings the spec disallows and
// any string that is not valid UTF-8 (which also excludes surrogate
// code points). Lone \uXXXX surrogate escapes in raw JSON never reach
// here: encoding/json would turn them into U+FFFD, so
// CanonicalizeFromJSON rejects them before decoding.
func validateString(s string) error {
	switch s {
	case "NaN", "Infinity", "-Infinity":
		return fmt.Errorf("disallowed sentinel string %q", s)
	}
	if !utf8.ValidString(s) {
		return fmt.Errorf("invalid UTF-8 string")
	}
	for _, r := range s {
		if utf16.IsSurrogate(r) {
			return fmt.Errorf("lone surrogate in string")
		}
	}
	return nil
}

func writeValue(buf *bytes.Buffer, v interface{}) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case int64:
		fmt.Fprintf(buf, "%d", t)
	case float64:
		fmt.Fprintf(buf, "%s", formatFloat(t))
	case string:
		return writeString(buf, t)
	case []interface{}:
		buf.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeValue(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := writeValue(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unreachable type %T after normalize", v)
	}
	return nil
}

func formatFloat(f float64) string {
	b, _ := json.Marshal(f)
	return string(b)
}

func writeString(buf *bytes.Buffer, s string) error {
	var sub bytes.Buffer
	enc := json.NewEncoder(&sub)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encode string: %w", err)
	}
	// json.Encoder.Encode appends a trailing newline; strip it.
	buf.Write(bytes.TrimSuffix(sub.Bytes(), []byte("\n")))
	return nil
}

// NullStrip removes map keys whose value is nil, recursively, matching
// the spec's null_strip canonicalization profile. Canonicalize does not
// apply it; callers that want that profile call NullStrip first.
func NullStrip(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			if e == nil {
				continue
			}
			out[k] = NullStrip(e)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = NullStrip(e)
		}
		return out
	default:
		return v
	}
}
