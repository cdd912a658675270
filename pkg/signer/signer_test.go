package signer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalizeCompact(t *testing.T) {
	payload := struct {
		TIN    string `json:"tin"`
		Amount float64 `json:"amount"`
		URL    string `json:"url"`
	}{
		TIN:    "P000000045R",
		Amount: 116,
		URL:    "https://example.com/a?b=1&c=2",
	}

	got, err := Canonicalize(payload)
	require.NoError(t, err)

	// Compact, field order fixed by the struct, no HTML escaping of & or <,
	// no trailing newline.
	assert.Equal(t, `{"tin":"P000000045R","amount":116,"url":"https://example.com/a?b=1&c=2"}`, string(got))
}

func TestSignVerifyRoundTrip(t *testing.T) {
	payload := []byte(`{"invcNo":1}`)

	sig := Sign("secret-key", payload)
	assert.NotEmpty(t, sig)
	assert.True(t, Verify("secret-key", payload, sig))

	// Same input signs identically
	assert.Equal(t, sig, Sign("secret-key", payload))
}

func TestVerifyRejectsMutation(t *testing.T) {
	payload := []byte(`{"invcNo":1}`)
	sig := Sign("secret-key", payload)

	assert.False(t, Verify("secret-key", []byte(`{"invcNo":2}`), sig))
	assert.False(t, Verify("other-key", payload, sig))
	assert.False(t, Verify("secret-key", payload, "not base64!!"))
	assert.False(t, Verify("", payload, sig))
}

func TestSignEmptySecretPanics(t *testing.T) {
	assert.Panics(t, func() {
		Sign("", []byte(`{}`))
	})
}
