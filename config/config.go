package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config carries the daemon settings. Market policy knobs (edition cap,
// auction windows, fee collection) live here so operators can adjust them
// without code changes.
type Config struct {
	RPCAddress          string   `toml:"RPCAddress"`
	DataDir             string   `toml:"DataDir"`
	ServiceName         string   `toml:"ServiceName"`
	Environment         string   `toml:"Environment"`
	AdminAddress        string   `toml:"AdminAddress"`
	EscrowVaultAddress  string   `toml:"EscrowVaultAddress"`
	FeeCollectorAddress string   `toml:"FeeCollectorAddress"`
	MaxEditions         uint64   `toml:"MaxEditions"`
	AuctionWindowHours  []uint64 `toml:"AuctionWindowHours"`
}

func defaultConfig() *Config {
	return &Config{
		RPCAddress:         "127.0.0.1:8645",
		DataDir:            "./data",
		ServiceName:        "editiond",
		Environment:        "dev",
		MaxEditions:        100,
		AuctionWindowHours: []uint64{24, 48, 72},
	}
}

// Load loads the configuration from the given path. When no file exists yet a
// default one is written and an error is returned, since the default cannot
// run as-is: the operator has to fill in EscrowVaultAddress first.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if _, err := createDefault(path); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("config: wrote default config to %s; set EscrowVaultAddress before starting", path)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the daemon cannot run with.
func (c *Config) Validate() error {
	if c.RPCAddress == "" {
		return fmt.Errorf("config: RPCAddress must not be empty")
	}
	if c.DataDir == "" {
		return fmt.Errorf("config: DataDir must not be empty")
	}
	if c.MaxEditions == 0 {
		return fmt.Errorf("config: MaxEditions must be positive")
	}
	if len(c.AuctionWindowHours) == 0 {
		return fmt.Errorf("config: at least one auction window is required")
	}
	for _, hours := range c.AuctionWindowHours {
		if hours == 0 {
			return fmt.Errorf("config: auction windows must be positive")
		}
	}
	if c.EscrowVaultAddress == "" {
		return fmt.Errorf("config: EscrowVaultAddress must not be empty")
	}
	return nil
}

func createDefault(path string) (*Config, error) {
	cfg := defaultConfig()
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	if _, err := file.WriteString("# Generated default configuration. EscrowVaultAddress must be set before\n# the daemon will start.\n"); err != nil {
		return nil, err
	}
	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
