package config

import (
	"os"
	"path/filepath"
	"time"
)

// WatchConfig is the configuration of the liveadmin-watch client
type WatchConfig struct {
	ServerURL string        `yaml:"server_url"` // base URL of liveadmin-server, e.g. https://admin.example.com
	TokenFile string        `yaml:"token_file"` // where login stores the bearer token
	BaseDelay time.Duration `yaml:"base_delay"` // reconnect delay unit, multiplied by the attempt number
	Logger    LoggerConfig  `yaml:"logger"`
}

func (c *WatchConfig) applyDefaults() {
	if c.ServerURL == "" {
		c.ServerURL = "http://localhost:5235"
	}
	if c.TokenFile == "" {
		c.TokenFile = DefaultTokenFile()
	}
	c.BaseDelay = durationOr(c.BaseDelay, time.Second)
	if c.Logger.Format == "" {
		c.Logger.Format = "console"
	}
}

// DefaultTokenFile returns $HOME/.liveadmin/token, falling back to the working directory
func DefaultTokenFile() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(".liveadmin", "token")
	}
	return filepath.Join(home, ".liveadmin", "token")
}

// DefaultWatchConfig is used when no configuration file is found
func DefaultWatchConfig() *WatchConfig {
	cfg := &WatchConfig{}
	cfg.applyDefaults()
	return cfg
}
