package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPort           = 8082
	DefaultServiceName    = "llm-chat-ui"
	DefaultModel          = "local-model"
	DefaultMaxTokens      = 2048
	DefaultTemperature    = 0.7
	DefaultConnectTimeout = 3 * time.Second
	DefaultReadTimeout    = 3 * time.Second
	DefaultRequestTimeout = 120 * time.Second

	logFormatText = "text"
	logFormatJSON = "json"
)

// Config represents the application configuration. It is built once at
// startup and treated as read-only afterwards.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Service ServiceConfig `yaml:"service"`
	LLM     LLMConfig     `yaml:"llm"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig defines listener configuration.
type ServerConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// ServiceConfig names this gateway in health reports.
type ServiceConfig struct {
	Name string `yaml:"name"`
}

// LLMConfig describes the upstream completion server and the defaults applied
// to chat requests that leave a field unset.
type LLMConfig struct {
	BaseURL        string        `yaml:"base_url"`
	Model          string        `yaml:"model"`
	MaxTokens      int           `yaml:"max_tokens"`
	Temperature    float64       `yaml:"temperature"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// LoggingConfig controls the process-wide slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults returns a configuration populated with built-in defaults. The
// upstream base URL has no default.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:           DefaultPort,
			AllowedOrigins: []string{"*"},
		},
		Service: ServiceConfig{Name: DefaultServiceName},
		LLM: LLMConfig{
			Model:          DefaultModel,
			MaxTokens:      DefaultMaxTokens,
			Temperature:    DefaultTemperature,
			ConnectTimeout: DefaultConnectTimeout,
			ReadTimeout:    DefaultReadTimeout,
			RequestTimeout: DefaultRequestTimeout,
		},
		Logging: LoggingConfig{Level: "info", Format: logFormatText},
	}
}

// Load builds the configuration from defaults, an optional YAML file, an
// optional .env file and the process environment, in that order, and
// validates the result.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return Config{}, fmt.Errorf("resolve config path: %w", err)
		}

		data, err := os.ReadFile(absPath)
		if err != nil {
			return Config{}, fmt.Errorf("read config file %q: %w", absPath, err)
		}

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %q: %w", absPath, err)
		}
	}

	// godotenv never overrides variables that are already set.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env file: %w", err)
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}

	cfg.LLM.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.LLM.BaseURL), "/")

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type lookupFunc func(key string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	if v, ok := lookup("PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		cfg.Server.Port = port
	}
	if v, ok := lookup("SERVICE_NAME"); ok {
		cfg.Service.Name = v
	}
	if v, ok := lookup("LLM_API_URL"); ok {
		cfg.LLM.BaseURL = v
	}
	if v, ok := lookup("LLM_API_MODEL"); ok {
		cfg.LLM.Model = v
	}
	if v, ok := lookup("LLM_API_MAX_TOKENS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid LLM_API_MAX_TOKENS %q: %w", v, err)
		}
		cfg.LLM.MaxTokens = n
	}
	if v, ok := lookup("LLM_API_TEMPERATURE"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid LLM_API_TEMPERATURE %q: %w", v, err)
		}
		cfg.LLM.Temperature = f
	}

	durations := []struct {
		key    string
		target *time.Duration
	}{
		{"LLM_API_CONNECT_TIMEOUT", &cfg.LLM.ConnectTimeout},
		{"LLM_API_READ_TIMEOUT", &cfg.LLM.ReadTimeout},
		{"LLM_API_REQUEST_TIMEOUT", &cfg.LLM.RequestTimeout},
	}
	for _, d := range durations {
		v, ok := lookup(d.key)
		if !ok {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", d.key, v, err)
		}
		*d.target = parsed
	}

	if v, ok := lookup("LOG_LEVEL"); ok {
		cfg.Logging.Level = v
	}
	if v, ok := lookup("LOG_FORMAT"); ok {
		cfg.Logging.Format = v
	}
	return nil
}

// Validate performs strict sanity checks on the configuration.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid TCP port, got %d", c.Server.Port)
	}
	if strings.TrimSpace(c.Service.Name) == "" {
		return errors.New("service.name must not be empty")
	}

	if strings.TrimSpace(c.LLM.BaseURL) == "" {
		return errors.New("llm.base_url must be provided (or set LLM_API_URL)")
	}
	u, err := url.Parse(c.LLM.BaseURL)
	if err != nil {
		return fmt.Errorf("llm.base_url %q is not a valid URL: %w", c.LLM.BaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("llm.base_url %q must use http or https", c.LLM.BaseURL)
	}
	if u.Host == "" {
		return fmt.Errorf("llm.base_url %q must include a host", c.LLM.BaseURL)
	}

	if strings.TrimSpace(c.LLM.Model) == "" {
		return errors.New("llm.model must not be empty")
	}
	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("llm.max_tokens must be positive, got %d", c.LLM.MaxTokens)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be within [0, 2], got %g", c.LLM.Temperature)
	}
	if c.LLM.ConnectTimeout <= 0 {
		return errors.New("llm.connect_timeout must be positive")
	}
	if c.LLM.ReadTimeout <= 0 {
		return errors.New("llm.read_timeout must be positive")
	}
	if c.LLM.RequestTimeout <= 0 {
		return errors.New("llm.request_timeout must be positive")
	}

	switch strings.ToLower(c.Logging.Format) {
	case logFormatText, logFormatJSON:
	default:
		return fmt.Errorf("logging.format %q must be one of %q or %q", c.Logging.Format, logFormatText, logFormatJSON)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q must be one of debug, info, warn, error", c.Logging.Level)
	}

	return nil
}

// CompletionsURL is the upstream chat completions endpoint.
func (c LLMConfig) CompletionsURL() string {
	return c.BaseURL + "/v1/chat/completions"
}

// ModelsURL is the upstream model listing endpoint.
func (c LLMConfig) ModelsURL() string {
	return c.BaseURL + "/v1/models"
}
