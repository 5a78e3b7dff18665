// Package config loads the marketplace daemon configuration from TOML.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	ListenAddress   string  `toml:"ListenAddress"`
	DataDir         string  `toml:"DataDir"`
	IndexPath       string  `toml:"IndexPath"`
	FeeCollector    string  `toml:"FeeCollector"`
	RecordReserve   uint64  `toml:"RecordReserve"`
	JWTSecret       string  `toml:"JWTSecret"`
	RateLimitPerSec float64 `toml:"RateLimitPerSec"`
	RateLimitBurst  int     `toml:"RateLimitBurst"`
	ServiceName     string  `toml:"ServiceName"`
	Environment     string  `toml:"Environment"`
	LogPath         string  `toml:"LogPath"`
	LogMaxSizeMB    int     `toml:"LogMaxSizeMB"`
	LogMaxBackups   int     `toml:"LogMaxBackups"`
}

// Default returns a configuration suitable for local development. The JWT
// secret is intentionally empty so Validate fails until one is set.
func Default() *Config {
	return &Config{
		ListenAddress:   ":8646",
		DataDir:         "./market-data",
		IndexPath:       "./market-data/index.db",
		RecordReserve:   1,
		RateLimitPerSec: 50,
		RateLimitBurst:  100,
		ServiceName:     "marketd",
		Environment:     "dev",
		LogMaxSizeMB:    64,
		LogMaxBackups:   4,
	}
}

// Load reads the configuration from path. A missing file is written out
// with defaults and then rejected by Validate until the operator fills in
// the secrets.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := writeDefault(path, cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return cfg, nil
}

func writeDefault(path string, cfg *Config) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("config: create %s: %w", path, err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("config: write defaults: %w", err)
	}
	return nil
}

// Validate checks the configuration for operability.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddress) == "" {
		return fmt.Errorf("config: ListenAddress must not be empty")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: DataDir must not be empty")
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("config: JWTSecret must be set")
	}
	if _, err := c.FeeCollectorAddress(); err != nil {
		return err
	}
	if c.RateLimitPerSec <= 0 {
		return fmt.Errorf("config: RateLimitPerSec must be positive")
	}
	if c.RateLimitBurst <= 0 {
		return fmt.Errorf("config: RateLimitBurst must be positive")
	}
	return nil
}

// FeeCollectorAddress decodes the configured fee collector into its binary
// form. An optional 0x prefix is accepted.
func (c *Config) FeeCollectorAddress() ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(c.FeeCollector), "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, fmt.Errorf("config: FeeCollector is not hex: %w", err)
	}
	if len(decoded) != 20 {
		return addr, fmt.Errorf("config: FeeCollector must be 20 bytes, got %d", len(decoded))
	}
	copy(addr[:], decoded)
	return addr, nil
}
