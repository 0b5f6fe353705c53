package config

import (
	"time"

	"github.com/vietddude/basis/internal/core/domain"
	redisclient "github.com/vietddude/basis/internal/infra/redis"
	"github.com/vietddude/basis/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server     ServerConfig       `yaml:"server"`
	Chains     []ChainConfig      `yaml:"chains"`
	Pricing    PricingConfig      `yaml:"pricing"`
	Redis      redisclient.Config `yaml:"redis"`
	Logging    LoggingConfig      `yaml:"logging"`
	Database   postgres.Config    `yaml:"database"`
	Migrations string             `yaml:"migrations"` // goose migrations dir
}

// ServerConfig holds the metrics endpoint settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// ChainConfig holds settings for one blockchain adapter.
type ChainConfig struct {
	Chain          domain.Chain  `yaml:"chain"` // ethereum, solana, bitcoin
	RPCURL         string        `yaml:"rpc_url"`
	APIKey         string        `yaml:"api_key"`
	Network        string        `yaml:"network"`          // mainnet, testnet
	RateLimitDelay time.Duration `yaml:"rate_limit_delay"` // pause between per-item fetches
	ChunkSize      uint64        `yaml:"chunk_size"`       // log-range window (Ethereum)
	MaxRetries     int           `yaml:"max_retries"`
	Timeout        time.Duration `yaml:"timeout"`
}

// PricingConfig holds historical price lookup settings.
type PricingConfig struct {
	BaseURL string `yaml:"base_url"` // empty = public CoinGecko API
	APIKey  string `yaml:"api_key"`
	Enabled bool   `yaml:"enabled"`
}
