package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Defaults used when fields are absent from the config file.
const (
	DefaultAPIURL    = "https://api.ember.chat"
	DefaultSocketURL = "wss://api.ember.chat/socket"
)

// Config represents the global ~/.ember/config.toml.
type Config struct {
	APIURL      string `toml:"api_url"`
	SocketURL   string `toml:"socket_url"`
	DefaultUser string `toml:"default_user"`
}

// Load reads config from the given path and fills in defaults for any
// absent field. Returns nil config and error if the file is missing or
// unparseable.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// Default returns a config populated entirely from defaults, used when no
// config file exists yet.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.APIURL == "" {
		c.APIURL = DefaultAPIURL
	}
	if c.SocketURL == "" {
		c.SocketURL = DefaultSocketURL
	}
}
