package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"string", "hello", `"hello"`},
		{"empty string", "", `""`},
		{"int", 42, "42"},
		{"negative int", -100, "-100"},
		{"bool", true, "true"},
		{"null", nil, "null"},
		{"empty array", []int{}, "[]"},
		{"empty object", map[string]int{}, "{}"},
		{"dec", MustDec("1.50"), `"1.5"`},
		{"struct tags", Coin{Denom: "uatom", Amount: NewDec(10)}, `{"amount":"10","denom":"uatom"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalSortedKeys(t *testing.T) {
	obj := map[string]any{
		"zebra": 1,
		"alpha": map[string]any{"b": 1, "a": 2},
		"beta":  3,
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":{"a":2,"b":1},"beta":3,"zebra":1}`, string(result))
}

func TestMarshalCanonicalUTF16Ordering(t *testing.T) {
	// U+10000 encodes as the surrogate pair 0xD800 0xDC00, so it sorts
	// before U+E000 in UTF-16 even though UTF-8 byte order says otherwise.
	obj := map[string]int{
		"\uE000":     1,
		"\U00010000": 2,
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, "{\"\U00010000\":2,\"\uE000\":1}", string(result))
}

func TestMarshalCanonicalNoHTMLEscape(t *testing.T) {
	result, err := MarshalCanonical("<script>alert('x') & more</script>")
	require.NoError(t, err)
	assert.Equal(t, `"<script>alert('x') & more</script>"`, string(result))
}

func TestMarshalCanonicalLineSeparators(t *testing.T) {
	result, err := MarshalCanonical("a\u2028b\u2029c")
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\u2029c\"", string(result))

	literal, err := MarshalCanonical(`a\u2028b`)
	require.NoError(t, err)
	assert.Equal(t, `"a\\u2028b"`, string(literal))
}

func TestMarshalCanonicalControlCharacters(t *testing.T) {
	result, err := MarshalCanonical("tab\tnl\nnul\x00q\"bs\\")
	require.NoError(t, err)
	assert.Equal(t, `"tab\tnl\nnul\u0000q\"bs\\"`, string(result))
}

func TestMarshalCanonicalNFC(t *testing.T) {
	composed := "caf\u00e9"
	decomposed := "cafe\u0301"

	a, err := MarshalCanonical(map[string]string{composed: composed})
	require.NoError(t, err)
	b, err := MarshalCanonical(map[string]string{decomposed: decomposed})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestMarshalCanonicalRejectsFloats(t *testing.T) {
	_, err := MarshalCanonical(3.14)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "float")

	_, err = MarshalCanonical(json.RawMessage(`{"x":1e3}`))
	require.Error(t, err)
}

func TestMarshalCanonicalRawMessage(t *testing.T) {
	msg := WasmExecute{ContractAddr: "pair", Msg: json.RawMessage(`{"swap":{"min_return":"5"}}`)}
	result, err := MarshalCanonical(msg)
	require.NoError(t, err)
	assert.Equal(t, `{"contract_addr":"pair","msg":{"swap":{"min_return":"5"}}}`, string(result))
}
