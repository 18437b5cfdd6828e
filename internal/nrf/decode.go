package nrf

import (
	"encoding/json"
	"fmt"
)

// decodeValue reads one JSON value from dec via its token stream
// rather than Decode(&v), so object decoding can enforce spec.md's
// "duplicate keys are a serialization error" rule — something
// Decode(&v) into map[string]interface{} cannot do, since it silently
// keeps the last occurrence of a repeated key.
func decodeValue(dec *json.Decoder) (interface{}, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	return decodeFromToken(dec, tok)
}

func decodeFromToken(dec *json.Decoder, tok json.Token) (interface{}, error) {
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			return decodeObject(dec)
		case '[':
			return decodeArray(dec)
		default:
			return nil, fmt.Errorf("unexpected delimiter %q", t)
		}
	case json.Number, string, bool, nil:
		return t, nil
	default:
		return nil, fmt.Errorf("unexpected JSON token %T", tok)
	}
}

// decodeObject reads key/value pairs up to the closing '}', rejecting
// a key seen twice in the same object.
func decodeObject(dec *json.Decoder) (map[string]interface{}, error) {
	out := make(map[string]interface{})
	seen := make(map[string]struct{})
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("object key must be a string, got %T", keyTok)
		}
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("duplicate object key %q", key)
		}
		seen[key] = struct{}{}

		val, err := decodeValue(dec)
		if err != nil {
			return nil, err
		}
		out[key] = val
	}
	if _, err := dec.Token(); err != nil { // consume closing '}'
		return nil, err
	}
	return out, nil
}

// decodeArray reads elements up to the closing ']'.
func decodeArray(dec *json.Decoder) ([]interface{}, error) {
	out := []interface{}{}
	for dec.More() {
		val, err := decodeValue(dec)
		if err != nil {
			return nil, err
		}
		out = append(out, val)
	}
	if _, err := dec.Token(); err != nil { // consume closing ']'
		return nil, err
	}
	return out, nil
}
