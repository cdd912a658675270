// Package device defines the registered identity a business location uses
// to authenticate with the tax authority's signing service.
//
// A credential is created once by the out-of-scope initialization handshake
// and is read-only to the transmission pipeline. Every core operation takes
// the credential as an explicit parameter; there is no ambient "current
// device" context.
package device

import (
	"errors"
	"fmt"
)

// ErrNotInitialized indicates that no valid device credential exists.
// All transmission operations require an initialized credential; callers
// surface this as a precondition failure without allocating a number or
// touching the network.
var ErrNotInitialized = errors.New("device credential not initialized")

// Environment selects the routing target for submissions.
type Environment string

const (
	EnvProduction Environment = "production"
	EnvTest       Environment = "test"
	// EnvDemo never leaves the process; submissions are answered by the
	// in-process demo responder.
	EnvDemo Environment = "demo"
)

// Valid reports whether e is a known environment.
func (e Environment) Valid() bool {
	switch e {
	case EnvProduction, EnvTest, EnvDemo:
		return true
	}
	return false
}

// Credential is the registered identity and shared secret of one control
// unit (device) at one branch of a taxpayer.
type Credential struct {
	// TIN is the taxpayer identification number.
	TIN string `yaml:"tin" json:"tin"`

	// BranchID identifies the branch within the taxpayer ("00" for HQ).
	BranchID string `yaml:"branchId" json:"branchId"`

	// CMCKey is the communication key shared with the authority. It is
	// the HMAC secret for request signing.
	CMCKey string `yaml:"cmcKey" json:"-"`

	// ControlUnitID identifies the registered control unit. It scopes
	// sequence counters: one counter per (control unit, document kind).
	ControlUnitID string `yaml:"controlUnitId" json:"controlUnitId"`

	// Environment selects production, test, or demo routing.
	Environment Environment `yaml:"environment" json:"environment"`
}

// Validate checks that the credential is complete enough to authenticate a
// submission. An incomplete credential wraps [ErrNotInitialized].
func (c *Credential) Validate() error {
	if c == nil {
		return ErrNotInitialized
	}
	switch {
	case c.TIN == "":
		return fmt.Errorf("%w: missing tin", ErrNotInitialized)
	case c.BranchID == "":
		return fmt.Errorf("%w: missing branch id", ErrNotInitialized)
	case c.CMCKey == "":
		return fmt.Errorf("%w: missing communication key", ErrNotInitialized)
	case c.ControlUnitID == "":
		return fmt.Errorf("%w: missing control unit id", ErrNotInitialized)
	}
	if !c.Environment.Valid() {
		return fmt.Errorf("unknown environment %q", c.Environment)
	}
	return nil
}
