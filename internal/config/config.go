package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Connection string registry keys. Tenant-specific entries are keyed
// "Tenant_{tenantId}"; provider entries use the canonical provider id;
// DefaultKey is the configured fallback.
const (
	DefaultKey      = "Default"
	TenantKeyPrefix = "Tenant_"
)

// RetrySettings controls retry behavior for transient operation failures.
type RetrySettings struct {
	MaxRetryCount int  `yaml:"max_retry_count"`
	DelaySeconds  int  `yaml:"delay_seconds"`
	Exponential   bool `yaml:"exponential"`
}

// Config is the migrator's file configuration.
type Config struct {
	// ConnectionStrings maps registry keys (tenant, provider, Default) to
	// connection strings. Values may contain credentials and are never
	// logged unmasked.
	ConnectionStrings map[string]string `yaml:"connection_strings"`

	DefaultProvider string `yaml:"default_provider"`
	DefaultTenant   string `yaml:"default_tenant"`
	Environment     string `yaml:"environment"`

	PluginDir     string `yaml:"plugin_dir"`
	MigrationsDir string `yaml:"migrations_dir"`
	BackupDir     string `yaml:"backup_dir"`

	TimeoutSeconds int  `yaml:"timeout"`
	UseTransaction bool `yaml:"use_transaction"`
	AutoBackup     bool `yaml:"auto_backup"`

	Retry RetrySettings `yaml:"retry"`
}

var globalConfig *Config

// Default returns the built-in configuration used when no file exists yet.
func Default() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	base := filepath.Join(home, ".migrator")
	return &Config{
		ConnectionStrings: map[string]string{},
		DefaultProvider:   "postgres",
		DefaultTenant:     "default",
		Environment:       "development",
		PluginDir:         filepath.Join(base, "plugins"),
		MigrationsDir:     filepath.Join(base, "migrations"),
		BackupDir:         filepath.Join(base, "backups"),
		TimeoutSeconds:    30,
		UseTransaction:    true,
		AutoBackup:        true,
		Retry: RetrySettings{
			MaxRetryCount: 3,
			DelaySeconds:  2,
			Exponential:   true,
		},
	}
}

// Init initializes the configuration from the specified file, creating the
// config directory and a default file on first run.
func Init(configFile string) error {
	cfg, err := Load(configFile)
	if err != nil {
		return err
	}
	globalConfig = cfg
	return nil
}

// Load reads a configuration file, writing defaults if it does not exist.
func Load(configFile string) (*Config, error) {
	cfg := Default()

	configDir := filepath.Dir(configFile)
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %v", err)
	}

	if _, err := os.Stat(configFile); err == nil {
		//nolint:gosec // configFile is constructed internally and safe to read
		data, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %v", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %v", err)
		}
	} else {
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal default config: %v", err)
		}

		if err := os.WriteFile(configFile, data, 0o600); err != nil {
			return nil, fmt.Errorf("failed to write default config file: %v", err)
		}
	}

	if cfg.ConnectionStrings == nil {
		cfg.ConnectionStrings = map[string]string{}
	}

	return cfg, nil
}

// GetConfig returns the global configuration.
func GetConfig() *Config {
	return globalConfig
}

// TenantKey returns the connection-string registry key for a tenant.
func TenantKey(tenantID string) string {
	return TenantKeyPrefix + tenantID
}
