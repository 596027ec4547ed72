// Copyright 2025 Certen Protocol
//
// Package config loads the node's runtime configuration in layers:
// built-in defaults, an optional YAML overlay file for operators who
// prefer a config file to a long env-var list, then MIDEN_NODE_-prefixed
// environment variables. CLI flags set on the command line take
// precedence over all three.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every knob the bundled node, and the standalone store and
// block-producer binaries, need at startup.
type Config struct {
	// RPCURL is the address the store/block-producer HTTP RPC listens on.
	RPCURL string `yaml:"rpc_url"`
	// DataDir is the root directory for the block store, account tree
	// history and the SQLite data file.
	DataDir string `yaml:"data_dir"`
	// AccountsDir holds the genesis account state read by `bootstrap`.
	AccountsDir string `yaml:"accounts_dir"`

	// BatchProverURL and BlockProverURL record remote prover addresses.
	// They do not select a prover: the node runs the in-process stub
	// prover whether or not they are set.
	BatchProverURL string `yaml:"batch_prover_url"`
	BlockProverURL string `yaml:"block_prover_url"`

	// EnableOTEL records the OpenTelemetry tracing toggle. No code reads
	// it, so it has no effect on tracing or logging.
	EnableOTEL bool `yaml:"enable_otel"`

	// BlockInterval and BatchInterval are the block-producer/batch-
	// builder tick periods.
	BlockInterval time.Duration `yaml:"block_interval"`
	BatchInterval time.Duration `yaml:"batch_interval"`
}

// Default returns the built-in defaults, the lowest-precedence layer.
func Default() Config {
	return Config{
		RPCURL:        "0.0.0.0:8080",
		DataDir:       "./data",
		AccountsDir:   "",
		BlockInterval: 10 * time.Second,
		BatchInterval: 2 * time.Second,
	}
}

// Load builds a Config by layering, from lowest to highest precedence:
// built-in defaults, an optional YAML file at yamlPath (ignored if
// empty or missing), and MIDEN_NODE_-prefixed environment variables.
// CLI flags are applied by the caller afterward by assigning the parsed
// flag values to fields of the returned Config.
func Load(yamlPath string) (Config, error) {
	cfg := Default()

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("config: reading %s: %w", yamlPath, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parsing %s: %w", yamlPath, err)
		}
	}

	cfg.RPCURL = getEnv("MIDEN_NODE_RPC_URL", cfg.RPCURL)
	cfg.DataDir = getEnv("MIDEN_NODE_DATA_DIRECTORY", cfg.DataDir)
	cfg.AccountsDir = getEnv("MIDEN_NODE_ACCOUNTS_DIRECTORY", cfg.AccountsDir)
	cfg.BatchProverURL = getEnv("MIDEN_NODE_BATCH_PROVER_URL", cfg.BatchProverURL)
	cfg.BlockProverURL = getEnv("MIDEN_NODE_BLOCK_PROVER_URL", cfg.BlockProverURL)
	cfg.EnableOTEL = getEnvBool("MIDEN_NODE_ENABLE_OTEL", cfg.EnableOTEL)
	cfg.BlockInterval = getEnvDuration("MIDEN_NODE_BLOCK_INTERVAL", cfg.BlockInterval)
	cfg.BatchInterval = getEnvDuration("MIDEN_NODE_BATCH_INTERVAL", cfg.BatchInterval)

	return cfg, nil
}

// Validate checks the fields required to start serving.
func (c Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("config: data directory is required")
	}
	if c.RPCURL == "" {
		return fmt.Errorf("config: rpc url is required")
	}
	if c.BlockInterval <= 0 {
		return fmt.Errorf("config: block interval must be positive")
	}
	if c.BatchInterval <= 0 {
		return fmt.Errorf("config: batch interval must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}
