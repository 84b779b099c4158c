// Package config loads host settings from defaults, a YAML file, a .env file
// and the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// DefaultFile is the config file looked up in the working directory.
const DefaultFile = "llmfsm.yaml"

// Config holds everything a host needs to build clients, stores and loggers.
type Config struct {
	Provider     string `yaml:"provider" mapstructure:"provider"`
	Model        string `yaml:"model" mapstructure:"model"`
	APIKey       string `yaml:"api_key" mapstructure:"api_key"`
	Organization string `yaml:"organization" mapstructure:"organization"`
	BaseURL      string `yaml:"base_url" mapstructure:"base_url"`
	MaxRetries   int    `yaml:"max_retries" mapstructure:"max_retries"`
	// ClientRetries repeats model calls that failed on network, rate limit or timeout.
	ClientRetries int           `yaml:"client_retries" mapstructure:"client_retries"`
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout"`
	LogLevel      string        `yaml:"log_level" mapstructure:"log_level"`
	ContentDir    string        `yaml:"content_dir" mapstructure:"content_dir"`
	MaxInputSize  int           `yaml:"max_input_size" mapstructure:"max_input_size"`
	// Script is the reply file of the scripted provider.
	Script string      `yaml:"script" mapstructure:"script"`
	Store  StoreConfig `yaml:"store" mapstructure:"store"`
}

// StoreConfig selects the session backend.
type StoreConfig struct {
	Kind        string        `yaml:"kind" mapstructure:"kind"` // memory, file, redis, sqlite
	Path        string        `yaml:"path" mapstructure:"path"`
	RedisAddr   string        `yaml:"redis_addr" mapstructure:"redis_addr"`
	RedisPrefix string        `yaml:"redis_prefix" mapstructure:"redis_prefix"`
	TTL         time.Duration `yaml:"ttl" mapstructure:"ttl"`
	// EncryptionKey is a base64 AES-256 key. Snapshots are encrypted at rest when set.
	EncryptionKey string   `yaml:"encryption_key" mapstructure:"encryption_key"`
	FallbackKeys  []string `yaml:"fallback_keys" mapstructure:"fallback_keys"`
	// MaskKeys are patterns of context keys masked before saving.
	MaskKeys []string `yaml:"mask_keys" mapstructure:"mask_keys"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Provider:      "openai",
		MaxRetries:    2,
		ClientRetries: 2,
		Timeout:       60 * time.Second,
		LogLevel:      "info",
		ContentDir:    "content",
		MaxInputSize:  4096,
		Store: StoreConfig{
			Kind: "file",
			Path: ".llmfsm/sessions",
		},
	}
}

// Load builds a Config. A missing file or envFile is not an error; pass ""
// to skip either one.
func Load(file, envFile string) (Config, error) {
	cfg := Default()

	if file != "" {
		data, err := os.ReadFile(file)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse %s: %w", file, err)
			}
		}
	}

	dotenv := map[string]string{}
	if envFile != "" {
		m, err := godotenv.Read(envFile)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("failed to read %s: %w", envFile, err)
		default:
			dotenv = m
		}
	}

	if err := cfg.applyEnv(func(key string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return dotenv[key]
	}); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(getenv func(string) string) error {
	set := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := getenv(k); v != "" {
				*dst = v
				return
			}
		}
	}
	set(&c.Provider, "LLMFSM_PROVIDER")
	set(&c.Model, "LLMFSM_MODEL")
	set(&c.LogLevel, "LLMFSM_LOG_LEVEL")
	set(&c.ContentDir, "LLMFSM_CONTENT_DIR")
	set(&c.Store.Kind, "LLMFSM_STORE")
	set(&c.Store.Path, "LLMFSM_STORE_PATH")
	set(&c.Store.RedisAddr, "LLMFSM_REDIS_ADDR")
	set(&c.Store.RedisPrefix, "LLMFSM_REDIS_PREFIX")
	set(&c.Script, "LLMFSM_SCRIPT")
	set(&c.Store.EncryptionKey, "LLMFSM_ENCRYPTION_KEY")

	switch c.Provider {
	case "gemini":
		set(&c.APIKey, "GOOGLE_API_KEY", "GEMINI_API_KEY")
		set(&c.BaseURL, "GOOGLE_GEMINI_BASE_URL")
	default:
		set(&c.APIKey, "OPENAI_API_KEY")
		set(&c.Organization, "OPENAI_ORGANIZATION")
		set(&c.BaseURL, "OPENAI_BASE_URL")
	}

	if v := getenv("LLMFSM_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("LLMFSM_MAX_RETRIES: %w", err)
		}
		c.MaxRetries = n
	}
	if v := getenv("LLMFSM_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("LLMFSM_TIMEOUT: %w", err)
		}
		c.Timeout = d
	}
	return nil
}

// ApplyOverrides decodes loosely typed values (flags, JSON bodies) onto c.
// Keys follow the yaml names; durations may be strings such as "30s".
func (c *Config) ApplyOverrides(overrides map[string]any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           c,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(overrides); err != nil {
		return fmt.Errorf("invalid config override: %w", err)
	}
	return c.Validate()
}

// Validate checks enumerated fields.
func (c *Config) Validate() error {
	switch c.Provider {
	case "openai", "gemini", "scripted":
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}
	switch strings.ToLower(c.Store.Kind) {
	case "memory", "file", "redis", "sqlite":
	default:
		return fmt.Errorf("unknown store kind %q", c.Store.Kind)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}
	if c.ClientRetries < 0 {
		return fmt.Errorf("client_retries must not be negative")
	}
	if c.Provider == "scripted" && c.Script == "" {
		return fmt.Errorf("provider scripted needs a script file")
	}
	return nil
}
