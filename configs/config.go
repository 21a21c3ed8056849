package configs

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the entire configuration structure read from config.yml.
// Secrets (the database DSN, the RPC bearer credential) are never stored in
// this file; they are overlaid from named environment variables at load
// time.
type Config struct {
	RPC       RPCYAMLData       `yaml:"rpc"`
	Lookback  LookbackYAMLData  `yaml:"lookback"`
	Monitor   MonitorYAMLData   `yaml:"monitor"`
	Discovery DiscoveryYAMLData `yaml:"discovery"`
	Database  DatabaseYAMLData  `yaml:"database"`
	HTTP      HTTPYAMLData      `yaml:"http"`

	apiKey string
}

// RPCYAMLData configures the archival RPC endpoint.
type RPCYAMLData struct {
	Endpoint            string `yaml:"endpoint"`
	APIKeyEnv           string `yaml:"apiKeyEnv"`
	MissingBlockRetries int    `yaml:"missingBlockRetries"`
}

// LookbackYAMLData configures the Gap Filler's seed and backward windows,
// in blocks.
type LookbackYAMLData struct {
	SeedBlocks     uint64 `yaml:"seedBlocks"`
	BackwardBlocks uint64 `yaml:"backwardBlocks"`
}

// MonitorYAMLData configures the account-monitor cycle cadence.
type MonitorYAMLData struct {
	CycleIntervalSec int `yaml:"cycleIntervalSec"`
}

// DiscoveryYAMLData configures the token-discovery cycle cadence.
type DiscoveryYAMLData struct {
	CycleIntervalSec int `yaml:"cycleIntervalSec"`
}

// DatabaseYAMLData names the environment variable holding the storage DSN
// (DATABASE_URL when DSNEnv is empty).
type DatabaseYAMLData struct {
	DSNEnv string `yaml:"dsnEnv"`
}

// HTTPYAMLData configures the manual-operation HTTP adapter. Empty Addr
// disables it.
type HTTPYAMLData struct {
	Addr string `yaml:"addr"`
}

// LoadConfig reads and parses config.yml into a Config struct, then
// resolves rpc.apiKeyEnv against the current environment (populated from a
// .env file by the caller via godotenv, when one is present).
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	if config.RPC.APIKeyEnv != "" {
		config.apiKey = os.Getenv(config.RPC.APIKeyEnv)
	}

	return &config, nil
}

// APIKey returns the archival RPC bearer credential resolved from the
// environment variable named by rpc.apiKeyEnv.
func (c *Config) APIKey() string {
	return c.apiKey
}

// DatabaseDSN resolves the storage connection string from the environment
// variable named by database.dsnEnv, or from DATABASE_URL when that key is
// unset.
func (c *Config) DatabaseDSN() (string, error) {
	name := c.Database.DSNEnv
	if name == "" {
		name = "DATABASE_URL"
	}
	dsn := os.Getenv(name)
	if dsn == "" {
		return "", fmt.Errorf("environment variable %s is not set", name)
	}
	return dsn, nil
}

// MonitorCycleInterval converts the configured cadence to a time.Duration.
func (c *Config) MonitorCycleInterval() time.Duration {
	return time.Duration(c.Monitor.CycleIntervalSec) * time.Second
}

// DiscoveryCycleInterval converts the configured token-discovery cadence to
// a time.Duration.
func (c *Config) DiscoveryCycleInterval() time.Duration {
	return time.Duration(c.Discovery.CycleIntervalSec) * time.Second
}

// EffectiveMissingBlockRetries returns the configured retry cap, falling
// back to the balance service's own default of 10 when unset.
func (c *Config) EffectiveMissingBlockRetries() int {
	if c.RPC.MissingBlockRetries <= 0 {
		return 10
	}
	return c.RPC.MissingBlockRetries
}
