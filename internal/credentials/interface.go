// Package credentials provides access to device registration material.
//
// A credential is the secret state handed out by the tax authority when a
// control unit is initialized: taxpayer PIN, branch, device serial and the
// communication key every request is signed with. This package defines a
// unified interface that can be implemented by different backends:
//
//   - File-based: credentials as plain YAML files on disk (development)
//   - Encrypted: credentials sealed at rest with a passphrase-derived key
//   - Static: credentials fixed at construction (tests, demo)
//
// The transmission pipeline resolves credentials by device ID without
// knowing the underlying storage mechanism.
package credentials

import (
	"context"
	"errors"

	"github.com/sirosfoundation/go-etims/pkg/device"
)

// Common errors
var (
	ErrCredentialNotFound = errors.New("device credential not found")
	ErrPassphraseRequired = errors.New("passphrase required to unseal credentials")
)

// Provider resolves device credentials.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Lookup returns the credential for the given control unit ID.
	// Returns ErrCredentialNotFound if the device is not registered.
	Lookup(ctx context.Context, deviceID string) (*device.Credential, error)

	// List returns the control unit IDs the provider knows about.
	List(ctx context.Context) ([]string, error)

	// Close releases any resources held by the provider.
	Close() error
}
