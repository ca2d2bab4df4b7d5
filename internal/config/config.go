// Package config loads generator settings: defaults, then an optional YAML
// file, then environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// defaultMaxEmailBytes is 1 MiB.
const defaultMaxEmailBytes = 1 << 20

// FileEnv names the environment variable holding the YAML config path.
const FileEnv = "TRANSPORT_CONFIG"

// Config holds the complete generator configuration.
type Config struct {
	Logging  LoggingConfig  `yaml:"logging"`
	DKIM     DKIMConfig     `yaml:"dkim"`
	Registry RegistryConfig `yaml:"registry"`
	Limits   LimitsConfig   `yaml:"limits"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DKIMConfig controls where signing keys come from.
type DKIMConfig struct {
	// Offline disables DNS; only Keys are consulted.
	Offline       bool          `yaml:"offline"`
	LookupTimeout time.Duration `yaml:"lookup_timeout"`
	// Keys maps <selector>._domainkey.<domain> to its TXT record.
	Keys map[string]string `yaml:"keys"`
}

// RegistryConfig locates the relayer bindings file.
type RegistryConfig struct {
	File string `yaml:"file"`
}

// LimitsConfig bounds a single run.
type LimitsConfig struct {
	MaxEmailBytes int64 `yaml:"max_email_bytes"`
	BatchWorkers  int   `yaml:"batch_workers"`
}

// Load reads .env if present, then the YAML file named by TRANSPORT_CONFIG
// if set, then environment variables.
func Load() (*Config, error) {
	// a missing .env is normal outside development
	_ = godotenv.Load()

	if path := os.Getenv(FileEnv); path != "" {
		return LoadFromFile(path)
	}
	cfg := &Config{}
	cfg.applyDefaults()
	if err := cfg.applyEnvVars(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile uses a YAML file as the base layer, then overrides with
// environment variables.
func LoadFromFile(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.applyEnvVars(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	c.Logging.Level = "info"
	c.DKIM.LookupTimeout = 5 * time.Second
	c.Limits.MaxEmailBytes = defaultMaxEmailBytes
	c.Limits.BatchWorkers = 4
}

// applyEnvVars overrides with non-empty environment variables. Unlike free
// text settings, a malformed number or flag is an error rather than ignored.
func (c *Config) applyEnvVars() error {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}

	if v := os.Getenv("DKIM_OFFLINE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("DKIM_OFFLINE: %w", err)
		}
		c.DKIM.Offline = b
	}
	if v := os.Getenv("DKIM_LOOKUP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("DKIM_LOOKUP_TIMEOUT: %w", err)
		}
		c.DKIM.LookupTimeout = d
	}

	if v := os.Getenv("RELAYER_BINDINGS_FILE"); v != "" {
		c.Registry.File = v
	}

	if v := os.Getenv("MAX_EMAIL_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return fmt.Errorf("MAX_EMAIL_BYTES: %q is not a positive integer", v)
		}
		c.Limits.MaxEmailBytes = n
	}
	if v := os.Getenv("BATCH_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("BATCH_WORKERS: %q is not a positive integer", v)
		}
		c.Limits.BatchWorkers = n
	}
	return nil
}
