// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/util"
)

// FileName is the config file inside the config directory.
const FileName = "config.toml"

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete rigchat configuration.
type Config struct {
	Server     ServerConfig     `toml:"server"`
	OpenRouter OpenRouterConfig `toml:"openrouter"`
	Ollama     OllamaConfig     `toml:"ollama"`
	OpenAI     OpenAIConfig     `toml:"openai"`
	Storage    StorageConfig    `toml:"storage"`
	Log        LogConfig        `toml:"log"`
	Client     ClientConfig     `toml:"client"`
}

// ServerConfig configures the chat endpoint.
type ServerConfig struct {
	Addr string `toml:"addr"`

	// Password is the shared secret expected verbatim in the Authorization
	// header. Empty disables the check.
	Password string `toml:"password"`

	// RateLimit is requests per second per client IP. Zero disables it.
	RateLimit float64 `toml:"rate_limit"`
	Burst     int     `toml:"burst"`

	MaxBodyBytes   int64    `toml:"max_body_bytes"`
	SystemPrompt   string   `toml:"system_prompt"`
	TrustedProxies []string `toml:"trusted_proxies"`
}

// OpenRouterConfig configures the gateway backend.
type OpenRouterConfig struct {
	APIKey   string   `toml:"api_key"`
	BaseURL  string   `toml:"base_url"`
	SiteURL  string   `toml:"site_url"`
	SiteName string   `toml:"site_name"`
	Models   []string `toml:"models"`
}

// OllamaConfig configures the dedicated-inference backend.
type OllamaConfig struct {
	BaseURL         string   `toml:"base_url"`
	MaxTokens       int      `toml:"max_tokens"`
	ReasoningModels []string `toml:"reasoning_models"`
	ListModels      bool     `toml:"list_models"`
}

// OpenAIConfig configures the generic OpenAI-compatible backend.
type OpenAIConfig struct {
	APIKey          string   `toml:"api_key"`
	BaseURL         string   `toml:"base_url"`
	Temperature     float64  `toml:"temperature"`
	MaxTokens       int      `toml:"max_tokens"`
	ReasoningModels []string `toml:"reasoning_models"`
}

// Enabled reports whether the backend is usable. A key is only required by
// api.openai.com; any other base_url (llama.cpp, vLLM, LM Studio) may be
// keyless.
func (o OpenAIConfig) Enabled() bool {
	if o.APIKey != "" {
		return true
	}
	base := strings.TrimRight(o.BaseURL, "/")
	return base != "" && base != strings.TrimRight(Default().OpenAI.BaseURL, "/")
}

// StorageConfig configures the local message store.
type StorageConfig struct {
	Path string `toml:"path"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "console" or "json"
}

// ClientConfig configures the chat CLI.
type ClientConfig struct {
	Endpoint      string `toml:"endpoint"`
	Password      string `toml:"password"`
	Model         string `toml:"model"`
	Provider      string `toml:"provider"`
	HistoryWindow int    `toml:"history_window"`
	KeepPartial   bool   `toml:"keep_partial"`
	Search        bool   `toml:"search"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         "127.0.0.1:8787",
			RateLimit:    5,
			Burst:        10,
			MaxBodyBytes: 10 << 20,
			SystemPrompt: "You are a helpful assistant. Follow the user's instructions carefully. Respond using Markdown.",
		},
		OpenRouter: OpenRouterConfig{
			BaseURL:  "https://openrouter.ai/api/v1",
			SiteName: "rigchat",
		},
		Ollama: OllamaConfig{
			BaseURL:         "http://127.0.0.1:11434",
			MaxTokens:       2048,
			ReasoningModels: []string{"qwq"},
			ListModels:      true,
		},
		OpenAI: OpenAIConfig{
			BaseURL:     "https://api.openai.com/v1",
			Temperature: 0.7,
			MaxTokens:   1024,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Client: ClientConfig{
			Endpoint:      "http://127.0.0.1:8787",
			Model:         "gpt-4o-mini",
			Provider:      "openai",
			HistoryWindow: 10,
		},
	}
}


// =============================================================================
// LOADING AND SAVING
// =============================================================================

// ConfigDir returns ~/.rigchat.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".rigchat"), nil
}

// LoadDir reads dir/config.toml over the defaults, then applies environment
// overrides and validates. A file that fails to parse is reported as an
// error returned alongside a usable default config; an invalid value is
// fatal and returns a nil config.
func LoadDir(dir string) (*Config, error) {
	cfg := Default()

	var parseErr error
	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); err == nil {
		if err := LoadTOML(cfg, path); err != nil {
			parseErr = err
			cfg = Default()
		}
	}

	cfg.ApplyEnvOverrides()
	if err := cfg.SetDefaults(dir); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, parseErr
}

// LoadTOML decodes path over cfg. Keys the file omits keep their current
// values. The file is made private to its owner since it holds secrets.
func LoadTOML(cfg *Config, path string) error {
	if info, err := os.Stat(path); err == nil && info.Mode().Perm()&0077 != 0 {
		_ = os.Chmod(path, 0600)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// SaveTOML writes cfg to path, readable only by its owner.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# rigchat configuration. Keys are listed by `rigchat config keys`.\n\n")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.SaveFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SetDefaults fills zero values a partial file may leave behind. Zero
// values with meaning (rate_limit, temperature) are kept as given.
func (c *Config) SetDefaults(dir string) error {
	d := Default()
	fill := func(dst *string, def string) {
		if *dst == "" {
			*dst = def
		}
	}
	fillInt := func(dst *int, def int) {
		if *dst == 0 {
			*dst = def
		}
	}

	fill(&c.Server.Addr, d.Server.Addr)
	fillInt(&c.Server.Burst, d.Server.Burst)
	if c.Server.MaxBodyBytes == 0 {
		c.Server.MaxBodyBytes = d.Server.MaxBodyBytes
	}
	fill(&c.OpenRouter.BaseURL, d.OpenRouter.BaseURL)
	fill(&c.Ollama.BaseURL, d.Ollama.BaseURL)
	if c.Ollama.ReasoningModels == nil {
		c.Ollama.ReasoningModels = d.Ollama.ReasoningModels
	}
	fill(&c.OpenAI.BaseURL, d.OpenAI.BaseURL)
	fillInt(&c.OpenAI.MaxTokens, d.OpenAI.MaxTokens)
	fill(&c.Log.Level, d.Log.Level)
	fill(&c.Log.Format, d.Log.Format)
	fill(&c.Client.Endpoint, d.Client.Endpoint)
	fill(&c.Client.Model, d.Client.Model)
	fillInt(&c.Client.HistoryWindow, d.Client.HistoryWindow)

	if c.Storage.Path == "" {
		if dir == "" {
			return errors.New("no directory for default storage path")
		}
		c.Storage.Path = filepath.Join(dir, "rigchat.db")
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError is one rejected setting.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidateErrors lists every rejected setting.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	msgs := make([]string, len(e))
	for i, v := range e {
		msgs[i] = v.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate checks every section and returns ValidateErrors, or nil.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if c.Server.Addr == "" {
		add("server.addr", "must not be empty")
	}
	if c.Server.RateLimit < 0 {
		add("server.rate_limit", "cannot be negative, got %v", c.Server.RateLimit)
	}
	if c.Server.RateLimit > 0 && c.Server.Burst < 1 {
		add("server.burst", "must be at least 1 when rate limiting, got %d", c.Server.Burst)
	}
	if c.Server.MaxBodyBytes <= 0 {
		add("server.max_body_bytes", "must be positive, got %d", c.Server.MaxBodyBytes)
	}

	for _, u := range []struct{ field, raw string }{
		{"openrouter.base_url", c.OpenRouter.BaseURL},
		{"ollama.base_url", c.Ollama.BaseURL},
		{"openai.base_url", c.OpenAI.BaseURL},
		{"client.endpoint", c.Client.Endpoint},
	} {
		if err := checkURL(u.raw); err != nil {
			add(u.field, "%v", err)
		}
	}
	if c.Ollama.MaxTokens < 0 {
		add("ollama.max_tokens", "cannot be negative, got %d", c.Ollama.MaxTokens)
	}
	if c.OpenAI.MaxTokens < 0 {
		add("openai.max_tokens", "cannot be negative, got %d", c.OpenAI.MaxTokens)
	}
	if c.OpenAI.Temperature < 0 || c.OpenAI.Temperature > 2 {
		add("openai.temperature", "must be between 0 and 2, got %v", c.OpenAI.Temperature)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		add("log.level", "invalid level '%s', must be one of: debug, info, warn, error", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "console", "json":
	default:
		add("log.format", "invalid format '%s', must be one of: console, json", c.Log.Format)
	}

	if c.Client.HistoryWindow < 1 || c.Client.HistoryWindow > 100 {
		add("client.history_window", "must be 1-100, got %d", c.Client.HistoryWindow)
	}
	if _, err := model.ParseProvider(c.Client.Provider); err != nil {
		add("client.provider", "unknown provider '%s'", c.Client.Provider)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// checkURL accepts empty, or an absolute http(s) URL.
func checkURL(raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	switch {
	case err != nil:
		return fmt.Errorf("invalid URL: %v", err)
	case u.Scheme != "http" && u.Scheme != "https":
		return fmt.Errorf("URL scheme must be http or https, got '%s'", u.Scheme)
	case u.Host == "":
		return errors.New("URL has no host")
	}
	return nil
}

// =============================================================================
// ENVIRONMENT
// =============================================================================

// envOverrides maps environment variables onto settings. APP_PASSWORD is
// shared by the endpoint and the client.
var envOverrides = []struct {
	name   string
	target func(*Config) []*string
}{
	{"OPENAI_API_KEY", func(c *Config) []*string { return []*string{&c.OpenAI.APIKey} }},
	{"OPENAI_BASE_URL", func(c *Config) []*string { return []*string{&c.OpenAI.BaseURL} }},
	{"OPENROUTER_API_KEY", func(c *Config) []*string { return []*string{&c.OpenRouter.APIKey} }},
	{"OLLAMA_URL", func(c *Config) []*string { return []*string{&c.Ollama.BaseURL} }},
	{"APP_PASSWORD", func(c *Config) []*string { return []*string{&c.Server.Password, &c.Client.Password} }},
	{"RIGCHAT_ADDR", func(c *Config) []*string { return []*string{&c.Server.Addr} }},
	{"RIGCHAT_ENDPOINT", func(c *Config) []*string { return []*string{&c.Client.Endpoint} }},
	{"RIGCHAT_LOG_LEVEL", func(c *Config) []*string { return []*string{&c.Log.Level} }},
}

// ApplyEnvOverrides copies every non-empty override variable into c.
func (c *Config) ApplyEnvOverrides() {
	for _, o := range envOverrides {
		v := os.Getenv(o.name)
		if v == "" {
			continue
		}
		for _, dst := range o.target(c) {
			*dst = v
		}
	}
}

// =============================================================================
// COPIES
// =============================================================================

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Server.TrustedProxies = append([]string(nil), c.Server.TrustedProxies...)
	clone.OpenRouter.Models = append([]string(nil), c.OpenRouter.Models...)
	clone.Ollama.ReasoningModels = append([]string(nil), c.Ollama.ReasoningModels...)
	clone.OpenAI.ReasoningModels = append([]string(nil), c.OpenAI.ReasoningModels...)
	return &clone
}

// Redacted returns a copy safe to print or log.
func (c *Config) Redacted() *Config {
	safe := c.Clone()
	for _, s := range []*string{
		&safe.Server.Password,
		&safe.Client.Password,
		&safe.OpenRouter.APIKey,
		&safe.OpenAI.APIKey,
	} {
		if *s != "" {
			*s = RedactedValue
		}
	}
	return safe
}

// RedactedValue replaces secrets in printed configs.
const RedactedValue = "[REDACTED]"

// String renders the redacted config as TOML.
func (c *Config) String() string {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c.Redacted()); err != nil {
		return fmt.Sprintf("<config: %v>", err)
	}
	return strings.TrimRight(buf.String(), "\n")
}
