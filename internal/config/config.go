// Package config handles configuration loading for the transmission server.
//
// Configuration is loaded from a YAML file with support for environment
// variable expansion (${VAR} or $VAR syntax). This allows sensitive values
// like database credentials and API keys to be injected at runtime.
//
// # Configuration Sections
//
//   - server: HTTP server settings (port, base path, admin key)
//   - storage: Persistence backend (memory, mongodb, or sqlite)
//   - credentials: Where device registration material lives
//   - transport: Submission timeout and base URL overrides
//
// # Example Configuration
//
//	server:
//	  port: 8090
//	  adminKey: ${ETIMS_ADMIN_KEY}
//
//	storage:
//	  type: mongodb
//	  mongodb:
//	    uri: ${MONGODB_URI}
//	    database: etims
//
//	credentials:
//	  mode: encrypted
//	  dir: /etc/etims/credentials
//	  passphrase: ${ETIMS_CREDENTIAL_PASSPHRASE}
//
// See [Load] for loading configuration from a file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Storage     StorageConfig     `yaml:"storage"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Transport   TransportConfig   `yaml:"transport"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port     int    `yaml:"port"`
	BasePath string `yaml:"basePath"`
	AdminKey string `yaml:"adminKey"` // API key for admin endpoints
}

// StorageConfig holds persistence settings
type StorageConfig struct {
	// Type selects the backend: "memory", "mongodb" or "sqlite"
	Type    string        `yaml:"type"`
	MongoDB MongoDBConfig `yaml:"mongodb"`
	SQLite  SQLiteConfig  `yaml:"sqlite"`
}

// MongoDBConfig holds MongoDB connection settings
type MongoDBConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

// SQLiteConfig holds embedded SQLite settings
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// CredentialsConfig holds device credential settings
type CredentialsConfig struct {
	// Mode determines how credentials are stored
	// - "file": plain YAML files (development only)
	// - "encrypted": YAML sealed with a passphrase-derived key
	Mode string `yaml:"mode"`

	// Dir is the directory holding one file per control unit
	Dir string `yaml:"dir"`

	// Passphrase unseals encrypted credentials (encrypted mode only)
	Passphrase string `yaml:"passphrase"`
}

// TransportConfig holds submission settings
type TransportConfig struct {
	// Timeout bounds one request/response round trip
	Timeout time.Duration `yaml:"timeout"`

	// BaseURLs overrides the built-in endpoint per environment,
	// keyed "production", "test" or "demo"
	BaseURLs map[string]string `yaml:"baseUrls"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply defaults
	cfg.applyDefaults()

	// Validate
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8090
	}
	if c.Server.BasePath == "" {
		c.Server.BasePath = "/api"
	}
	if c.Storage.Type == "" {
		c.Storage.Type = "memory"
	}
	if c.Storage.MongoDB.Database == "" {
		c.Storage.MongoDB.Database = "etims"
	}
	if c.Storage.SQLite.Path == "" {
		c.Storage.SQLite.Path = "./data/etims.db"
	}
	if c.Credentials.Mode == "" {
		c.Credentials.Mode = "file" // Default to file for development
	}
	if c.Credentials.Dir == "" {
		c.Credentials.Dir = "./credentials"
	}
	if c.Transport.Timeout == 0 {
		c.Transport.Timeout = 120 * time.Second
	}
}

func (c *Config) validate() error {
	switch c.Storage.Type {
	case "memory", "sqlite":
		// No connection settings required
	case "mongodb":
		if c.Storage.MongoDB.URI == "" {
			return fmt.Errorf("storage.mongodb.uri is required when type is 'mongodb'")
		}
	default:
		return fmt.Errorf("storage.type must be 'memory', 'mongodb' or 'sqlite', got '%s'", c.Storage.Type)
	}

	switch c.Credentials.Mode {
	case "file":
		// Valid mode
	case "encrypted":
		if c.Credentials.Passphrase == "" {
			return fmt.Errorf("credentials.passphrase is required when mode is 'encrypted'")
		}
	default:
		return fmt.Errorf("credentials.mode must be 'file' or 'encrypted', got '%s'", c.Credentials.Mode)
	}

	for env := range c.Transport.BaseURLs {
		switch env {
		case "production", "test", "demo":
		default:
			return fmt.Errorf("transport.baseUrls key must be 'production', 'test' or 'demo', got '%s'", env)
		}
	}

	return nil
}
