package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/natefinch/atomic"

	"github.com/CTAG07/Pizzabot/pkg/markov"
)

// magicEnv overrides BotConfig.LegacyMagic when set.
const magicEnv = "PIZZABOT_MAGIC"

// ServerConfig holds the configuration for the API server and its storage.
type ServerConfig struct {
	ApiAddr      string `json:"api_addr"`
	LogLevel     string `json:"log_level"`
	DataDir      string `json:"data_dir"`
	DatabasePath string `json:"database_path"`
}

// BotConfig holds the settings of the reply model and its corpus.
type BotConfig struct {
	LegacyDir      string   `json:"legacy_dir"`
	LegacyMagic    string   `json:"legacy_magic"`
	SkipChannels   []string `json:"skip_channels"`
	ContextBias    int      `json:"context_bias"`
	EndingRetries  int      `json:"ending_retries"`
	ReplyToSelf    bool     `json:"reply_to_self"`
	JournalEnabled bool     `json:"journal_enabled"`
}

// Config is the top-level configuration struct that aggregates all other configs.
type Config struct {
	Server *ServerConfig `json:"server_config"`
	Bot    *BotConfig    `json:"bot_config"`
}

// DefaultServerConfig creates a server configuration with default values.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ApiAddr:      ":7280",
		LogLevel:     "info",
		DataDir:      "./data",
		DatabasePath: "./data/pizzabot.db",
	}
}

// DefaultBotConfig creates a bot configuration with default values.
func DefaultBotConfig() *BotConfig {
	return &BotConfig{
		LegacyDir:      "",
		LegacyMagic:    "",
		SkipChannels:   []string{},
		ContextBias:    markov.DefaultContextBias,
		EndingRetries:  markov.DefaultEndingRetries,
		ReplyToSelf:    false,
		JournalEnabled: true,
	}
}

// DefaultConfig returns a complete configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Server: DefaultServerConfig(),
		Bot:    DefaultBotConfig(),
	}
}

// LoadConfig reads the configuration from a JSON file at the given path.
// If the file doesn't exist, it creates one with default values.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	file, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		var data []byte
		data, err = json.MarshalIndent(config, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to marshal default config: %w", err)
		}
		if err = atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
			// The bot can still run with defaults.
			fmt.Printf("warning: failed to write default config file: %v\n", err)
		}
	} else if err = json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// A section set to null in the file falls back to its defaults.
	if config.Server == nil {
		config.Server = DefaultServerConfig()
	}
	if config.Bot == nil {
		config.Bot = DefaultBotConfig()
	}
	if magic, ok := os.LookupEnv(magicEnv); ok {
		config.Bot.LegacyMagic = magic
	}
	return config, nil
}

// ConfigManager handles thread-safe access to the configuration and its file.
type ConfigManager struct {
	config     *Config
	mu         sync.RWMutex
	configPath string
}

// NewConfigManager loads the config and initializes the manager.
func NewConfigManager(path string) (*ConfigManager, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return &ConfigManager{config: cfg, configPath: path}, nil
}

// Get returns a copy of the current configuration.
func (cm *ConfigManager) Get() Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	server := *cm.config.Server
	bot := *cm.config.Bot
	bot.SkipChannels = append([]string(nil), bot.SkipChannels...)
	return Config{Server: &server, Bot: &bot}
}

// Update replaces the configuration and saves it to disk. Changes take effect on
// the next restart.
func (cm *ConfigManager) Update(newConfig Config) error {
	if newConfig.Server == nil || newConfig.Bot == nil {
		return fmt.Errorf("config must contain both server_config and bot_config")
	}
	if newConfig.Bot.ContextBias < 1 {
		return fmt.Errorf("context_bias must be at least 1, got %d", newConfig.Bot.ContextBias)
	}
	if newConfig.Bot.EndingRetries < 0 {
		return fmt.Errorf("ending_retries must not be negative, got %d", newConfig.Bot.EndingRetries)
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()

	data, err := json.MarshalIndent(newConfig, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err = atomic.WriteFile(cm.configPath, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	*cm.config = newConfig
	return nil
}
