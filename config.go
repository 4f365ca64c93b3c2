package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	TokenFile           string `toml:"token_file"`
	APIBase             string `toml:"api_base"`
	DefaultChannel      string `toml:"default_channel"`
	RefreshIntervalMs   int    `toml:"refresh_interval_ms"`
	ListRefreshInterval int    `toml:"list_refresh_interval_s"`
	HistoryTTLSeconds   int    `toml:"history_ttl_s"`
	RefreshBatchLimit   int    `toml:"refresh_batch_limit"`
	HistoryFetchLimit   int    `toml:"history_fetch_limit"`
	MaxMessages         int    `toml:"max_messages"`
	APIRatePerSec       int    `toml:"api_rate_per_sec"`
}

func (c Config) refreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalMs) * time.Millisecond
}

func (c Config) listRefreshInterval() time.Duration {
	return time.Duration(c.ListRefreshInterval) * time.Second
}

func (c Config) historyTTL() time.Duration {
	return time.Duration(c.HistoryTTLSeconds) * time.Second
}

func defaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		TokenFile:           filepath.Join(home, ".slack_token"),
		DefaultChannel:      "general",
		RefreshIntervalMs:   1000,
		ListRefreshInterval: 60,
		HistoryTTLSeconds:   180,
		RefreshBatchLimit:   15,
		HistoryFetchLimit:   100,
		MaxMessages:         500,
		APIRatePerSec:       10,
	}
}

func configPath(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	if p := os.Getenv("SLACKER_CONFIG"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.toml"
	}
	return filepath.Join(home, ".config", "slacker", "config.toml")
}

func LoadConfig(flagPath string) (Config, error) {
	cfg := defaultConfig()

	path := configPath(flagPath)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}

	def := defaultConfig()
	if cfg.RefreshIntervalMs <= 0 {
		cfg.RefreshIntervalMs = def.RefreshIntervalMs
	}
	if cfg.ListRefreshInterval <= 0 {
		cfg.ListRefreshInterval = def.ListRefreshInterval
	}
	if cfg.HistoryTTLSeconds <= 0 {
		cfg.HistoryTTLSeconds = def.HistoryTTLSeconds
	}
	if cfg.RefreshBatchLimit <= 0 {
		cfg.RefreshBatchLimit = def.RefreshBatchLimit
	}
	if cfg.HistoryFetchLimit <= 0 {
		cfg.HistoryFetchLimit = def.HistoryFetchLimit
	}
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = def.MaxMessages
	}
	if cfg.APIRatePerSec <= 0 {
		cfg.APIRatePerSec = def.APIRatePerSec
	}
	if cfg.TokenFile == "" {
		cfg.TokenFile = def.TokenFile
	}
	if cfg.DefaultChannel == "" {
		cfg.DefaultChannel = def.DefaultChannel
	}

	return cfg, nil
}

// LoadToken reads the API token from the configured token file.
func LoadToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	tok := string(data)
	for len(tok) > 0 && (tok[len(tok)-1] == '\n' || tok[len(tok)-1] == '\r' || tok[len(tok)-1] == ' ') {
		tok = tok[:len(tok)-1]
	}
	return tok, nil
}
