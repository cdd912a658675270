package credentials

import (
	"context"
	"sort"

	"github.com/sirosfoundation/go-etims/pkg/device"
)

// StaticProvider holds a fixed credential set. Used by tests and the
// demo environment, where credentials are configured inline.
type StaticProvider struct {
	creds map[string]*device.Credential
}

// NewStaticProvider creates a provider over the given credentials,
// keyed by control unit ID.
func NewStaticProvider(creds ...*device.Credential) *StaticProvider {
	m := make(map[string]*device.Credential, len(creds))
	for _, cred := range creds {
		m[cred.ControlUnitID] = cred
	}
	return &StaticProvider{creds: m}
}

func (p *StaticProvider) Lookup(ctx context.Context, deviceID string) (*device.Credential, error) {
	cred, ok := p.creds[deviceID]
	if !ok {
		return nil, ErrCredentialNotFound
	}
	return cred, nil
}

func (p *StaticProvider) List(ctx context.Context) ([]string, error) {
	ids := make([]string, 0, len(p.creds))
	for id := range p.creds {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (p *StaticProvider) Close() error { return nil }
