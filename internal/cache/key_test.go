package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveKey(t *testing.T) {
	type pair struct {
		B int `json:"b"`
		A int `json:"a"`
	}

	testCases := []struct {
		name  string
		x, y  any
		equal bool
	}{
		{"map key order", map[string]any{"a": 1, "b": 2}, map[string]any{"b": 2, "a": 1}, true},
		{"sequence order", []int{1, 2, 3}, []int{3, 2, 1}, false},
		{"struct matches map", pair{A: 1, B: 2}, map[string]int{"a": 1, "b": 2}, true},
		{"nested maps", map[string]any{"x": map[string]any{"p": 1, "q": 2}}, map[string]any{"x": map[string]any{"q": 2, "p": 1}}, true},
		{"string vs int", "1", 1, true},
		{"different strings", "qa_1", "qa_2", false},
		{"array vs slice", [2]string{"a", "b"}, []string{"a", "b"}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			kx, ky := DeriveKey(tc.x), DeriveKey(tc.y)
			assert.Len(t, kx, 32)
			if tc.equal {
				assert.Equal(t, kx, ky)
			} else {
				assert.NotEqual(t, kx, ky)
			}
		})
	}
}

func TestDeriveKeyIsStable(t *testing.T) {
	// md5("hello")
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", DeriveKey("hello"))
	assert.Equal(t, DeriveKey(map[string]any{"a": 1}), DeriveKey(map[string]any{"a": 1}))
}

func TestValidateKey(t *testing.T) {
	for _, key := range []string{"qa_d1_123", "stats_sales", "a", "x.y"} {
		assert.NoError(t, validateKey(key), key)
	}
	for _, key := range []string{"", "a/b", `a\b`, "..", "a..b", "nul\x00"} {
		assert.ErrorIs(t, validateKey(key), ErrInvalidKey, key)
	}
}

func TestKeyFromFile(t *testing.T) {
	key, ok := keyFromFile("qa_1.json")
	assert.True(t, ok)
	assert.Equal(t, "qa_1", key)

	for _, name := range []string{"qa_1.txt", "sub/qa_1.json", "notes"} {
		_, ok := keyFromFile(name)
		assert.False(t, ok, name)
	}
}

func TestCanonicalText(t *testing.T) {
	testCases := []struct {
		name    string
		payload any
		want    string
	}{
		{"compact sorted object", map[string]any{"b": 2, "a": 1}, `{"a":1,"b":2}`},
		{"sequence", []any{"x", 1.5, nil}, `["x",1.5,null]`},
		{"bool scalar", true, "true"},
		{"nil scalar", nil, "<nil>"},
		{"string scalar", "hello", "hello"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, canonicalText(tc.payload))
		})
	}
}
