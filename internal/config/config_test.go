package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"PORT", "SERVICE_NAME",
	"LLM_API_URL", "LLM_API_MODEL", "LLM_API_MAX_TOKENS", "LLM_API_TEMPERATURE",
	"LLM_API_CONNECT_TIMEOUT", "LLM_API_READ_TIMEOUT", "LLM_API_REQUEST_TIMEOUT",
	"LOG_LEVEL", "LOG_FORMAT",
}

// clearEnv unsets every variable Load reads and restores them afterwards.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		if old, ok := os.LookupEnv(key); ok {
			require.NoError(t, os.Unsetenv(key))
			t.Cleanup(func() { os.Setenv(key, old) })
		}
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaultsWithURLFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("LLM_API_URL", "http://localhost:8080/")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", cfg.LLM.BaseURL)
	assert.Equal(t, DefaultModel, cfg.LLM.Model)
	assert.Equal(t, DefaultMaxTokens, cfg.LLM.MaxTokens)
	assert.InDelta(t, DefaultTemperature, cfg.LLM.Temperature, 1e-9)
	assert.Equal(t, 3*time.Second, cfg.LLM.ConnectTimeout)
	assert.Equal(t, 3*time.Second, cfg.LLM.ReadTimeout)
	assert.Equal(t, DefaultPort, cfg.Server.Port)
	assert.Equal(t, DefaultServiceName, cfg.Service.Name)
}

func TestLoadRequiresBaseURL(t *testing.T) {
	clearEnv(t)

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm.base_url")
}

func TestLoadYAMLFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
server:
  port: 9000
service:
  name: chat-gw
llm:
  base_url: http://llm.internal:8000
  model: qwen2.5-7b
  max_tokens: 512
  temperature: 0.2
  connect_timeout: 1500ms
  read_timeout: 2s
logging:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "chat-gw", cfg.Service.Name)
	assert.Equal(t, "http://llm.internal:8000", cfg.LLM.BaseURL)
	assert.Equal(t, "qwen2.5-7b", cfg.LLM.Model)
	assert.Equal(t, 512, cfg.LLM.MaxTokens)
	assert.InDelta(t, 0.2, cfg.LLM.Temperature, 1e-9)
	assert.Equal(t, 1500*time.Millisecond, cfg.LLM.ConnectTimeout)
	assert.Equal(t, 2*time.Second, cfg.LLM.ReadTimeout)
	assert.Equal(t, DefaultRequestTimeout, cfg.LLM.RequestTimeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
llm:
  base_url: http://file:8000
  model: from-file
`)
	t.Setenv("LLM_API_MODEL", "from-env")
	t.Setenv("LLM_API_MAX_TOKENS", "64")
	t.Setenv("LLM_API_TEMPERATURE", "1.1")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://file:8000", cfg.LLM.BaseURL)
	assert.Equal(t, "from-env", cfg.LLM.Model)
	assert.Equal(t, 64, cfg.LLM.MaxTokens)
	assert.InDelta(t, 1.1, cfg.LLM.Temperature, 1e-9)
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}

func TestApplyEnvRejectsMalformedValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "port", env: map[string]string{"PORT": "http"}},
		{name: "max tokens", env: map[string]string{"LLM_API_MAX_TOKENS": "many"}},
		{name: "temperature", env: map[string]string{"LLM_API_TEMPERATURE": "warm"}},
		{name: "timeout", env: map[string]string{"LLM_API_READ_TIMEOUT": "3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			lookup := func(key string) (string, bool) {
				v, ok := tt.env[key]
				return v, ok
			}
			assert.Error(t, applyEnv(&cfg, lookup))
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Defaults()
		cfg.LLM.BaseURL = "http://localhost:8080"
		return cfg
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port zero", func(c *Config) { c.Server.Port = 0 }},
		{"port too large", func(c *Config) { c.Server.Port = 70000 }},
		{"empty service name", func(c *Config) { c.Service.Name = " " }},
		{"no scheme", func(c *Config) { c.LLM.BaseURL = "localhost:8080" }},
		{"ftp scheme", func(c *Config) { c.LLM.BaseURL = "ftp://localhost" }},
		{"empty model", func(c *Config) { c.LLM.Model = "" }},
		{"zero max tokens", func(c *Config) { c.LLM.MaxTokens = 0 }},
		{"negative temperature", func(c *Config) { c.LLM.Temperature = -0.1 }},
		{"zero connect timeout", func(c *Config) { c.LLM.ConnectTimeout = 0 }},
		{"zero read timeout", func(c *Config) { c.LLM.ReadTimeout = 0 }},
		{"zero request timeout", func(c *Config) { c.LLM.RequestTimeout = 0 }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestUpstreamURLs(t *testing.T) {
	c := LLMConfig{BaseURL: "http://localhost:8080"}
	assert.Equal(t, "http://localhost:8080/v1/chat/completions", c.CompletionsURL())
	assert.Equal(t, "http://localhost:8080/v1/models", c.ModelsURL())
}
