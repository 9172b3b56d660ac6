package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIdempotencyKey_Valid(t *testing.T) {
	key, err := NewIdempotencyKey("order-2024-11-05-8f3a")
	require.NoError(t, err)
	assert.Equal(t, "order-2024-11-05-8f3a", key.String())
}

func TestNewIdempotencyKey_MaxLengthAccepted(t *testing.T) {
	raw := strings.Repeat("a", MaxIdempotencyKeyLength)
	key, err := NewIdempotencyKey(raw)
	require.NoError(t, err)
	assert.Len(t, key.String(), MaxIdempotencyKeyLength)
}

func TestNewIdempotencyKey_Invalid(t *testing.T) {
	testCases := []struct {
		name string
		raw  string
	}{
		{name: "empty", raw: ""},
		{name: "too long", raw: strings.Repeat("a", MaxIdempotencyKeyLength+1)},
		{name: "newline", raw: "abc\ndef"},
		{name: "carriage return", raw: "abc\rdef"},
		{name: "null byte", raw: "abc\x00def"},
		{name: "delete char", raw: "abc\x7fdef"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewIdempotencyKey(tc.raw)
			assert.ErrorIs(t, err, ErrInvalidIdempotencyKey)
		})
	}
}
