package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults if necessary
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9090
	}
	if cfg.Migrations == "" {
		cfg.Migrations = "migrations"
	}

	for i := range cfg.Chains {
		c := &cfg.Chains[i]
		if !c.Chain.Valid() {
			return nil, fmt.Errorf("unknown chain %q in config", c.Chain)
		}
		if c.Network == "" {
			c.Network = "mainnet"
		}
		if c.Timeout == 0 {
			c.Timeout = 30 * time.Second
		}
		if c.MaxRetries == 0 {
			c.MaxRetries = 3
		}
	}

	return &cfg, nil
}
