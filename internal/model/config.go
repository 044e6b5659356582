package model

type Config struct {
	Network NetworkConfig `yaml:"network"`
	Mint    MintConfig    `yaml:"mint"`
	Ledger  LedgerConfig  `yaml:"ledger"`
	Audit   AuditConfig   `yaml:"audit"`
	Logging LoggingConfig `yaml:"logging"`
}

type NetworkConfig struct {
	// Endpoint is the remote ledger RPC URL. The aliases "devnet",
	// "testnet", and "mainnet" are resolved by the transport.
	Endpoint string `yaml:"endpoint"`
}

type MintConfig struct {
	Concurrency       int     `yaml:"concurrency"`
	MaxAttempts       int     `yaml:"max_attempts"`
	BaseBackoffMs     int     `yaml:"base_backoff_ms"`
	MaxBackoffMs      int     `yaml:"max_backoff_ms"`
	PerCallTimeoutSec int     `yaml:"per_call_timeout_sec"`
	RatePerSec        float64 `yaml:"rate_per_sec"` // 0 = unlimited
	Resume            bool    `yaml:"resume"`
}

type LedgerConfig struct {
	// Path of the progress ledger file. Empty means a .ledger.yaml file
	// next to the manifest.
	Path string `yaml:"path"`
}

type AuditConfig struct {
	Path     string `yaml:"path"`
	MaxBytes int64  `yaml:"max_bytes"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns the tuning defaults applied under explicit flags
// and config-file values.
func DefaultConfig() Config {
	return Config{
		Network: NetworkConfig{Endpoint: "devnet"},
		Mint: MintConfig{
			Concurrency:       4,
			MaxAttempts:       5,
			BaseBackoffMs:     500,
			MaxBackoffMs:      30000,
			PerCallTimeoutSec: 60,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// ApplyDefaults fills zero-valued tuning knobs in place.
func (c *Config) ApplyDefaults() {
	def := DefaultConfig()
	if c.Network.Endpoint == "" {
		c.Network.Endpoint = def.Network.Endpoint
	}
	if c.Mint.Concurrency <= 0 {
		c.Mint.Concurrency = def.Mint.Concurrency
	}
	if c.Mint.MaxAttempts <= 0 {
		c.Mint.MaxAttempts = def.Mint.MaxAttempts
	}
	if c.Mint.BaseBackoffMs <= 0 {
		c.Mint.BaseBackoffMs = def.Mint.BaseBackoffMs
	}
	if c.Mint.MaxBackoffMs <= 0 {
		c.Mint.MaxBackoffMs = def.Mint.MaxBackoffMs
	}
	if c.Mint.PerCallTimeoutSec <= 0 {
		c.Mint.PerCallTimeoutSec = def.Mint.PerCallTimeoutSec
	}
	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
}
