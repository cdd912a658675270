// Package signer computes and verifies message authentication codes over
// outbound and inbound payloads using the device communication key.
//
// The signature is HMAC-SHA256 over the exact canonical JSON serialization
// of the payload, base64-encoded for transport. Verification compares in
// constant time.
package signer

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Algorithm is the algorithm tag carried alongside the signature.
const Algorithm = "HMAC-SHA256"

// Canonicalize serializes a payload to its exact signed byte form: compact
// JSON with no HTML escaping and the field order fixed by the payload
// struct. Signing and submission must use the same bytes.
func Canonicalize(payload any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return nil, fmt.Errorf("canonicalizing payload: %w", err)
	}
	// Encoder appends a trailing newline; the wire form carries none.
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Sign computes the base64 HMAC-SHA256 signature of payload under secret.
//
// Signing with an empty secret is a programmer error: callers must check
// credential presence first, so Sign panics rather than producing a
// signature the authority would reject.
func Sign(secret string, payload []byte) string {
	if secret == "" {
		panic("signer: empty communication key")
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature is the valid HMAC of payload under
// secret. Comparison is constant-time with respect to the signature.
func Verify(secret string, payload []byte, signature string) bool {
	if secret == "" {
		return false
	}
	want, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(want, mac.Sum(nil))
}
