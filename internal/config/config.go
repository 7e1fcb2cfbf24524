// Package config loads the tool's TOML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/procorg/procorg/internal/logger"
)

// Config is the top-level TOML structure.
//
//	data_dir = "/var/lib/procorg"
//	listen = ":8420"
//	poll_interval = "200ms"
//	stop_grace = "5s"
//	scheduler_tick = "1s"
//	history_dsn = "sqlite:///var/lib/procorg/history.db"
//
//	[log]
//	level = "info"
//	file = "/var/log/procorg/procorg.log"
type Config struct {
	DataDir       string        `toml:"data_dir" mapstructure:"data_dir"`
	Listen        string        `toml:"listen" mapstructure:"listen"`
	PollInterval  time.Duration `toml:"poll_interval" mapstructure:"poll_interval"`
	StopGrace     time.Duration `toml:"stop_grace" mapstructure:"stop_grace"`
	SchedulerTick time.Duration `toml:"scheduler_tick" mapstructure:"scheduler_tick"`
	HistoryDSN    string        `toml:"history_dsn" mapstructure:"history_dsn"`
	Log           logger.Config `toml:"log" mapstructure:"log"`
}

// Default returns the configuration used when no file is given. The data
// directory lands under the invoking user's home so unprivileged use works
// out of the box.
func Default() Config {
	dataDir := ".procorg"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".procorg")
	}
	return Config{
		DataDir: dataDir,
		Listen:  ":8420",
	}
}

// Load reads a TOML config file, layered over Default.
func Load(path string) (Config, error) {
	cfg := Default()
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.DataDir == "" {
		return Config{}, fmt.Errorf("config %s: data_dir must not be empty", path)
	}
	return cfg, nil
}

// RegistryPath resolves the registry file inside the data directory.
func (c Config) RegistryPath() string {
	return filepath.Join(c.DataDir, "registry.json")
}
