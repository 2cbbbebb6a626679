package value

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"null", nil, `null`},
		{"int", 42, `42`},
		{"float", 1.5, `1.5`},
		{"bool", false, `false`},
		{"no html escape", "<a&b>", `"<a&b>"`},
		{"sorted keys", map[string]any{"b": 1, "a": 2}, `{"a":2,"b":1}`},
		{"nested", map[string]any{"list": []string{"x", "y"}}, `{"list":["x","y"]}`},
		{"line separator", "a\u2028b", "\"a\u2028b\""},
		{"escaped backslash", `\u2028`, `"\\u2028"`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := MarshalCanonical(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, string(got))
		})
	}
}

func TestMarshalCanonical_NFC(t *testing.T) {
	// "e" + combining acute accent normalizes to the precomposed U+00E9.
	decomposed, err := MarshalCanonical("e\u0301")
	require.NoError(t, err)
	composed, err := MarshalCanonical("\u00e9")
	require.NoError(t, err)
	assert.Equal(t, composed, decomposed)
}

func TestMarshalCanonical_RejectsNonFinite(t *testing.T) {
	_, err := MarshalCanonical(math.Inf(1))
	assert.Error(t, err)

	_, err = MarshalCanonical(struct{}{})
	assert.Error(t, err)
}

func TestFingerprint(t *testing.T) {
	a, err := Fingerprint(DomainStatement, map[string]any{"x": 1, "y": []any{"a"}})
	require.NoError(t, err)
	b, err := Fingerprint(DomainStatement, map[string]any{"y": []string{"a"}, "x": int64(1)})
	require.NoError(t, err)
	assert.Equal(t, a, b, "fingerprint must ignore map order and slice element types")
	assert.Len(t, a, 64)

	c, err := Fingerprint("other/v1", map[string]any{"x": 1, "y": []any{"a"}})
	require.NoError(t, err)
	assert.NotEqual(t, a, c, "domain separation must change the fingerprint")
}
