package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	config, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), config)

	data, err := os.ReadFile(path)
	require.NoError(t, err, "a missing config file should be created")
	var onDisk Config
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.Equal(t, DefaultServerConfig(), onDisk.Server)
	assert.True(t, onDisk.Bot.JournalEnabled)
}

func TestLoadConfigMergesWithDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{"server_config": {"api_addr": ":9999"}, "bot_config": {"context_bias": 7, "skip_channels": ["a"]}}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	config, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", config.Server.ApiAddr)
	assert.Equal(t, "info", config.Server.LogLevel)
	assert.Equal(t, 7, config.Bot.ContextBias)
	assert.Equal(t, 5, config.Bot.EndingRetries)
	assert.Equal(t, []string{"a"}, config.Bot.SkipChannels)
}

func TestLoadConfigNullSection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"server_config": null}`), 0o644))

	config, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultServerConfig(), config.Server)
}

func TestLoadConfigInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o644))

	_, err := LoadConfig(path)
	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestLoadConfigMagicFromEnv(t *testing.T) {
	t.Setenv(magicEnv, "~secret~")
	config, err := LoadConfig(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)
	assert.Equal(t, "~secret~", config.Bot.LegacyMagic)
}

func TestConfigManagerUpdate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cm, err := NewConfigManager(path)
	require.NoError(t, err)

	updated := cm.Get()
	updated.Bot.ContextBias = 9
	updated.Server.LogLevel = "debug"
	require.NoError(t, cm.Update(updated))
	assert.Equal(t, 9, cm.Get().Bot.ContextBias)

	reloaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9, reloaded.Bot.ContextBias)
	assert.Equal(t, "debug", reloaded.Server.LogLevel)
}

func TestConfigManagerRejectsInvalid(t *testing.T) {
	cm, err := NewConfigManager(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)

	testCases := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"missing bot section", func(c *Config) { c.Bot = nil }},
		{"zero context bias", func(c *Config) { c.Bot.ContextBias = 0 }},
		{"negative retries", func(c *Config) { c.Bot.EndingRetries = -1 }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := cm.Get()
			tc.mutate(&c)
			assert.Error(t, cm.Update(c))
			assert.Equal(t, DefaultConfig().Bot.ContextBias, cm.Get().Bot.ContextBias)
		})
	}
}

func TestConfigManagerGetReturnsCopy(t *testing.T) {
	cm, err := NewConfigManager(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)

	c := cm.Get()
	c.Bot.ContextBias = 100
	c.Bot.SkipChannels = append(c.Bot.SkipChannels, "x")
	assert.Equal(t, DefaultBotConfig().ContextBias, cm.Get().Bot.ContextBias)
	assert.Empty(t, cm.Get().Bot.SkipChannels)
}
