package credentials

import (
	"fmt"

	"github.com/sirosfoundation/go-etims/internal/config"
)

// NewProvider creates a Provider based on the configuration.
func NewProvider(cfg *config.CredentialsConfig) (Provider, error) {
	switch cfg.Mode {
	case "file":
		return NewFileProvider(cfg.Dir)
	case "encrypted":
		return NewEncryptedProvider(cfg.Dir, cfg.Passphrase)
	default:
		return nil, fmt.Errorf("unknown credentials mode: %s", cfg.Mode)
	}
}
