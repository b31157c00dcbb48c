package api

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config tunes the appliance connection. Loaded from an optional YAML file;
// zero fields fall back to the defaults below.
type Config struct {
	MaxRetries     int   `yaml:"max_retries"`
	BackoffSeconds int   `yaml:"backoff_seconds"`
	TimeoutSeconds int   `yaml:"timeout_seconds"`
	VerifyTLS      *bool `yaml:"verify_tls"`
}

// DefaultConfig matches the appliance defaults: 3 attempts, 2s between
// attempts, 10s request timeout, certificate verification off (appliances
// commonly run self-signed management certs).
func DefaultConfig() Config {
	return Config{
		MaxRetries:     3,
		BackoffSeconds: 2,
		TimeoutSeconds: 10,
	}
}

// LoadConfig reads a YAML config file and overlays it on the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("could not read config file: %w", err)
	}
	var fileCfg Config
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return cfg, fmt.Errorf("could not parse config file: %w", err)
	}
	if fileCfg.MaxRetries > 0 {
		cfg.MaxRetries = fileCfg.MaxRetries
	}
	if fileCfg.BackoffSeconds > 0 {
		cfg.BackoffSeconds = fileCfg.BackoffSeconds
	}
	if fileCfg.TimeoutSeconds > 0 {
		cfg.TimeoutSeconds = fileCfg.TimeoutSeconds
	}
	if fileCfg.VerifyTLS != nil {
		cfg.VerifyTLS = fileCfg.VerifyTLS
	}
	return cfg, nil
}

func (c Config) backoff() time.Duration {
	return time.Duration(c.BackoffSeconds) * time.Second
}

func (c Config) timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c Config) insecureSkipVerify() bool {
	if c.VerifyTLS == nil {
		return true
	}
	return !*c.VerifyTLS
}
