// Package config loads alkanes' node configuration from a YAML file plus
// environment overrides, using mapstructure tags on a package-level
// AppConfig and a Load/LoadFromEnv split.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/viper"

	"github.com/alkanes-io/alkanes/internal/runetx"
)

// Config is the unified configuration for an alkanes node.
type Config struct {
	Network struct {
		Chain         string `mapstructure:"chain" json:"chain"` // bitcoin|testnet|regtest|signet
		GenesisHeight uint64 `mapstructure:"genesis_height" json:"genesis_height"`
		ReorgDepth    uint64 `mapstructure:"reorg_depth" json:"reorg_depth"`
	} `mapstructure:"network" json:"network"`

	Execution struct {
		FuelPerMessage uint64 `mapstructure:"fuel_per_message" json:"fuel_per_message"`
	} `mapstructure:"execution" json:"execution"`

	Storage struct {
		KVPath string `mapstructure:"kv_path" json:"kv_path"`
	} `mapstructure:"storage" json:"storage"`

	RPC struct {
		BindAddr        string `mapstructure:"bind_addr" json:"bind_addr"`
		RateLimitPerSec int    `mapstructure:"rate_limit_per_sec" json:"rate_limit_per_sec"`
	} `mapstructure:"rpc" json:"rpc"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// wrap adds context to an error message, returning nil if err is nil.
func wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// envOrDefault returns the environment variable named key, or fallback if
// it is unset or empty.
func envOrDefault(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

// Load reads cmd/config/<env>.yaml (merged over cmd/config/default.yaml)
// plus ALKANES_-prefixed environment overrides into AppConfig.
func Load(env string) (*Config, error) {
	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, wrap(err, "load config")
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.SetEnvPrefix("alkanes")
	viper.AutomaticEnv()

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the ALKANES_ENV environment
// variable to select the environment-specific overlay.
func LoadFromEnv() (*Config, error) {
	return Load(envOrDefault("ALKANES_ENV", ""))
}

// ChainNetwork maps the loaded Network.Chain string to a runetx.Network,
// defaulting to Bitcoin mainnet on an unrecognized value.
func (c *Config) ChainNetwork() runetx.Network {
	switch c.Network.Chain {
	case "testnet":
		return runetx.Testnet
	case "regtest":
		return runetx.Regtest
	case "signet":
		return runetx.Signet
	default:
		return runetx.Bitcoin
	}
}

// rateLimitOrDefault parses RPC.RateLimitPerSec, defaulting to def when
// unset or non-positive.
func rateLimitOrDefault(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// RateLimitPerSec returns the configured RPC rate limit, defaulting to 50
// requests/sec when unset.
func (c *Config) RateLimitPerSec() int {
	return rateLimitOrDefault(c.RPC.RateLimitPerSec, 50)
}

// ParseUint64Env reads an environment variable as a uint64, or returns
// fallback if unset, empty, or unparsable.
func ParseUint64Env(key string, fallback uint64) uint64 {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}
