package credentials

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/sirosfoundation/go-etims/pkg/device"
)

// FileProvider implements Provider using plain YAML files on disk.
//
// This is intended for development and testing only. In production,
// use the encrypted provider.
//
// Credential files are expected at: {dir}/{deviceID}.yaml
type FileProvider struct {
	dir string

	mu    sync.RWMutex
	cache map[string]*device.Credential
}

// NewFileProvider creates a new file-based credential provider.
func NewFileProvider(dir string) (*FileProvider, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("checking credential directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("credential path is not a directory: %s", dir)
	}

	return &FileProvider{
		dir:   dir,
		cache: make(map[string]*device.Credential),
	}, nil
}

// Lookup returns the credential for the given control unit ID.
func (p *FileProvider) Lookup(ctx context.Context, deviceID string) (*device.Credential, error) {
	p.mu.RLock()
	if cred, ok := p.cache[deviceID]; ok {
		p.mu.RUnlock()
		return cred, nil
	}
	p.mu.RUnlock()

	data, err := os.ReadFile(filepath.Join(p.dir, deviceID+".yaml"))
	if os.IsNotExist(err) {
		return nil, ErrCredentialNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading credential file: %w", err)
	}

	cred, err := decodeCredential(data)
	if err != nil {
		return nil, fmt.Errorf("credential %s: %w", deviceID, err)
	}

	p.mu.Lock()
	p.cache[deviceID] = cred
	p.mu.Unlock()

	return cred, nil
}

// List returns the control unit IDs present in the directory.
func (p *FileProvider) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return nil, fmt.Errorf("reading credential directory: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".yaml"))
	}
	return ids, nil
}

// Close releases resources.
func (p *FileProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache = make(map[string]*device.Credential)
	return nil
}

// credentialFile is the on-disk YAML layout. Environment variables in
// string values are expanded, so secrets can stay out of the file itself.
type credentialFile struct {
	TIN           string `yaml:"tin"`
	BranchID      string `yaml:"branch_id"`
	CMCKey        string `yaml:"cmc_key"`
	ControlUnitID string `yaml:"control_unit_id"`
	Environment   string `yaml:"environment"`
}

func decodeCredential(data []byte) (*device.Credential, error) {
	var file credentialFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}

	cred := &device.Credential{
		TIN:           os.ExpandEnv(file.TIN),
		BranchID:      os.ExpandEnv(file.BranchID),
		CMCKey:        os.ExpandEnv(file.CMCKey),
		ControlUnitID: os.ExpandEnv(file.ControlUnitID),
		Environment:   device.Environment(os.ExpandEnv(file.Environment)),
	}
	if err := cred.Validate(); err != nil {
		return nil, err
	}
	if !cred.Environment.Valid() {
		return nil, fmt.Errorf("unknown environment %q", cred.Environment)
	}
	return cred, nil
}
