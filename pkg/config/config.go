// Package config provides YAML configuration for the DNS server.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

// Configuration errors.
var (
	ErrInvalidConfig      = errors.New("invalid configuration")
	ErrConfigNotFound     = errors.New("configuration file not found")
	ErrInvalidWorkerCount = errors.New("worker count must be positive")
	ErrZoneMissingOrigin  = errors.New("zone entry missing an origin")
	ErrZoneMissingSource  = errors.New("zone entry missing both file and json_file")
)

// Config represents the complete DNS server configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Zones    []ZoneConfig   `yaml:"zones"`
	DNSSEC   DNSSECConfig   `yaml:"dnssec"`
	Security SecurityConfig `yaml:"security"`
	AdminAPI AdminAPIConfig `yaml:"admin_api"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds listener configuration for the DNS server itself.
type ServerConfig struct {
	// ListenAddress is the address to listen on (e.g., ":53" or "0.0.0.0:53").
	ListenAddress string `yaml:"listen_address"`

	// NumWorkers is the number of I/O workers (default: NumCPU).
	NumWorkers int `yaml:"num_workers"`

	// EnableTCP enables the TCP listener alongside UDP.
	EnableTCP bool `yaml:"enable_tcp"`

	// RootHints attaches the 13 root NS/A records as a referral when no
	// locally hosted zone covers a query.
	RootHints bool `yaml:"root_hints"`

	// GracefulShutdownTimeout bounds how long shutdown waits for the
	// admin API server to drain. Stopping the UDP/TCP listeners is not
	// bounded by it.
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout"`
}

// ZoneConfig names one zone to load at startup, either from an RFC 1035
// zone file or a JSON record-list file (see pkg/zonestore/load.go).
type ZoneConfig struct {
	// Origin is the zone's apex name, e.g. "example.com.".
	Origin string `yaml:"origin"`

	// File is a path to an RFC 1035 zone file. Mutually exclusive with
	// JSONFile.
	File string `yaml:"file"`

	// JSONFile is a path to a JSON record list in pkg/zonestore/load.go's
	// format. Mutually exclusive with File.
	JSONFile string `yaml:"json_file"`
}

// DNSSECConfig names per-zone signing key material. A zone absent from
// this list resolves unsigned.
type DNSSECConfig struct {
	// Zones maps a zone origin to the key files used to sign it.
	Zones []DNSSECZoneConfig `yaml:"zones"`
}

// DNSSECZoneConfig names the KSK/ZSK private key files for one zone.
type DNSSECZoneConfig struct {
	Origin string `yaml:"origin"`

	// KeyFiles are dnssec-keygen-style key pair base paths, without
	// extension; pkg/dnssec reads "<path>.key" for the DNSKEY record and
	// "<path>.private" for the private key.
	KeyFiles []string `yaml:"key_files"`

	// SigValidity is how long a produced RRSIG remains valid.
	SigValidity time.Duration `yaml:"sig_validity"`

	// NSEC3 is parsed from configuration but not consulted when the
	// signing hook is built; no NSEC or NSEC3 chain is constructed for a
	// zone, so negative answers carry no denial-of-existence records.
	NSEC3 bool `yaml:"nsec3"`
}

// SecurityConfig holds pre-resolution guard configuration.
type SecurityConfig struct {
	// EnableQueryValidation rejects malformed questions before resolution.
	EnableQueryValidation bool `yaml:"enable_query_validation"`

	// EnableRateLimiting bounds per-source-IP query volume.
	EnableRateLimiting bool `yaml:"enable_rate_limiting"`

	// QueriesPerSecond is the steady-state per-IP token refill rate.
	QueriesPerSecond int `yaml:"queries_per_second"`

	// BurstSize is the maximum per-IP token bucket size.
	BurstSize int `yaml:"burst_size"`
}

// AdminAPIConfig controls the read-only admin introspection surface.
type AdminAPIConfig struct {
	Enabled       bool          `yaml:"enabled"`
	ListenAddress string        `yaml:"listen_address"`
	Username      string        `yaml:"username"`
	PasswordHash  string        `yaml:"password_hash"`
	TokenExpiry   time.Duration `yaml:"token_expiry"`
	CORSOrigins   []string      `yaml:"cors_origins"`
}

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `yaml:"level"`

	// EnableQueryLog enables logging of every resolved query.
	EnableQueryLog bool `yaml:"enable_query_log"`
}

// DefaultConfig returns a configuration with sensible defaults and no
// zones configured.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddress:           ":53",
			NumWorkers:              runtime.NumCPU(),
			EnableTCP:               true,
			RootHints:               true,
			GracefulShutdownTimeout: 10 * time.Second,
		},
		Security: SecurityConfig{
			EnableQueryValidation: true,
			EnableRateLimiting:    true,
			QueriesPerSecond:      100,
			BurstSize:             200,
		},
		AdminAPI: AdminAPIConfig{
			Enabled:       false,
			ListenAddress: ":8053",
			Username:      "admin",
			TokenExpiry:   time.Hour,
		},
		Logging: LoggingConfig{
			Level:          "info",
			EnableQueryLog: false,
		},
	}
}

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadFromFileOrDefault loads configuration from a YAML file, falling
// back to defaults (with no error) when the file doesn't exist.
func LoadFromFileOrDefault(path string) (*Config, error) {
	cfg, err := LoadFromFile(path)
	if err != nil {
		if errors.Is(err, ErrConfigNotFound) {
			return DefaultConfig(), nil
		}

		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.NumWorkers <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidWorkerCount, c.Server.NumWorkers)
	}

	for i, z := range c.Zones {
		if z.Origin == "" {
			return fmt.Errorf("%w: zones[%d]", ErrZoneMissingOrigin, i)
		}
		if z.File == "" && z.JSONFile == "" {
			return fmt.Errorf("%w: zones[%d] (%s)", ErrZoneMissingSource, i, z.Origin)
		}
	}

	return nil
}

// SaveToFile saves the configuration to a YAML file.
func (c *Config) SaveToFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
