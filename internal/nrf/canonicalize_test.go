package nrf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalize_KeyOrderInvariance(t *testing.T) {
	a, err := Canonicalize(map[string]interface{}{"b": int64(1), "a": int64(2)})
	require.NoError(t, err)
	b, err := Canonicalize(map[string]interface{}{"a": int64(2), "b": int64(1)})
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
	assert.Equal(t, `{"a":2,"b":1}`, string(a))
}

func TestCanonicalize_NumberNormalization(t *testing.T) {
	out, err := Canonicalize(map[string]interface{}{"x": 0.0, "y": -0.0, "z": 1.0})
	require.NoError(t, err)
	assert.Equal(t, `{"x":0,"y":0,"z":1}`, string(out))
}

func TestCanonicalize_NaNStringInObjectRejected(t *testing.T) {
	_, err := Canonicalize(map[string]interface{}{"x": "NaN"})
	require.Error(t, err)
}

func TestCanonicalize_DisallowedStrings(t *testing.T) {
	for _, s := range []string{"NaN", "Infinity", "-Infinity"} {
		_, err := Canonicalize(s)
		require.Errorf(t, err, "expected rejection of %q", s)
	}
}

func TestCanonicalize_LoneSurrogateRejected(t *testing.T) {
	_, err := CanonicalizeFromJSON([]byte(`"\uD800"`))
	require.Error(t, err)
}

func TestCanonicalize_DuplicateObjectKeyRejected(t *testing.T) {
	_, err := CanonicalizeFromJSON([]byte(`{"a":1,"a":2}`))
	require.Error(t, err)
}

func TestCanonicalize_DuplicateObjectKeyRejectedNested(t *testing.T) {
	_, err := CanonicalizeFromJSON([]byte(`{"outer":{"x":1,"x":2}}`))
	require.Error(t, err)
}

func TestCanonicalize_NoDuplicateKeysAcrossSiblingObjects(t *testing.T) {
	out, err := CanonicalizeFromJSON([]byte(`[{"a":1},{"a":2}]`))
	require.NoError(t, err)
	assert.Equal(t, `[{"a":1},{"a":2}]`, string(out))
}

func TestCanonicalize_SurrogatePairRoundTrips(t *testing.T) {
	out, err := CanonicalizeFromJSON([]byte(`"😀"`))
	require.NoError(t, err)
	assert.Equal(t, "\"\U0001F600\"", string(out))
}

func TestCanonicalize_PureFunction(t *testing.T) {
	v := map[string]interface{}{"b": int64(1), "a": []interface{}{int64(1), int64(2)}}
	first, err := Canonicalize(v)
	require.NoError(t, err)
	second, err := Canonicalize(v)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCID_FixedLength(t *testing.T) {
	cid, err := CID(map[string]interface{}{"x": int64(1)})
	require.NoError(t, err)
	assert.Len(t, cid, 52)
	assert.Equal(t, cid, stringsToLower(cid))
	assert.True(t, ValidCID(cid))
}

func TestCID_Deterministic(t *testing.T) {
	cid1, err := CID(map[string]interface{}{"b": int64(1), "a": int64(2)})
	require.NoError(t, err)
	cid2, err := CID(map[string]interface{}{"a": int64(2), "b": int64(1)})
	require.NoError(t, err)
	assert.Equal(t, cid1, cid2)
}

func TestCID_DifferentBytesDifferentCID(t *testing.T) {
	cid1, err := CID(map[string]interface{}{"a": int64(1)})
	require.NoError(t, err)
	cid2, err := CID(map[string]interface{}{"a": int64(2)})
	require.NoError(t, err)
	assert.NotEqual(t, cid1, cid2)
}

func TestNullStrip_DropsNullEntriesRecursively(t *testing.T) {
	in := map[string]interface{}{
		"a": nil,
		"b": int64(1),
		"c": map[string]interface{}{"d": nil, "e": int64(2)},
		"f": []interface{}{map[string]interface{}{"g": nil, "h": int64(3)}},
	}
	out := NullStrip(in).(map[string]interface{})
	assert.NotContains(t, out, "a")
	assert.Equal(t, int64(1), out["b"])
	nested := out["c"].(map[string]interface{})
	assert.NotContains(t, nested, "d")
	assert.Equal(t, int64(2), nested["e"])
	list := out["f"].([]interface{})
	elem := list[0].(map[string]interface{})
	assert.NotContains(t, elem, "g")
}

func stringsToLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
