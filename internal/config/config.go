package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// GeneratorConfig selects and configures the text generation backend.
type GeneratorConfig struct {
	Type              string `yaml:"type"`
	Model             string `yaml:"model"`
	APIKeyEnv         string `yaml:"api_key_env"`
	BaseURL           string `yaml:"base_url,omitempty"`
	MaxRetries        int    `yaml:"max_retries"`
	HeaderTimeoutSecs int    `yaml:"header_timeout_secs"`
}

// NotesConfig selects where notes are read from.
type NotesConfig struct {
	Type         string   `yaml:"type"`
	Paths        []string `yaml:"paths"`
	SQLitePath   string   `yaml:"sqlite_path"`
	CacheTTLMins int      `yaml:"cache_ttl_mins"`
}

// RedisConfig contains connection details for the Redis session store.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// StorageConfig selects where sessions are persisted.
type StorageConfig struct {
	Type       string       `yaml:"type"`
	Dir        string       `yaml:"dir"`
	SQLitePath string       `yaml:"sqlite_path"`
	Redis      *RedisConfig `yaml:"redis,omitempty"`
}

// ChatConfig holds conversation defaults.
type ChatConfig struct {
	DefaultAgent string `yaml:"default_agent"`
	// TimeoutSecs bounds a single answer; 0 means no bound.
	TimeoutSecs int `yaml:"timeout_secs"`
}

// LogConfig configures the log file.
type LogConfig struct {
	File       string `yaml:"file"`
	Level      string `yaml:"level"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Generator GeneratorConfig `yaml:"generator"`
	Notes     NotesConfig     `yaml:"notes"`
	Storage   StorageConfig   `yaml:"storage"`
	Chat      ChatConfig      `yaml:"chat"`
	Log       LogConfig       `yaml:"log"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(&cfg)
	return &cfg, cfg.Validate()
}

// LoadDefault tries ./config.yaml first, then ~/.config/notechat/config.yaml.
// If neither exists, it writes defaults to ~/.config/notechat/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath := filepath.Join(configDir(), "config.yaml")
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate rejects unknown backend types.
func (c *AppConfig) Validate() error {
	switch c.Generator.Type {
	case "gemini", "openai":
	default:
		return fmt.Errorf("unknown generator: %s", c.Generator.Type)
	}
	switch c.Notes.Type {
	case "dir", "sqlite":
	default:
		return fmt.Errorf("unknown notes store: %s", c.Notes.Type)
	}
	switch c.Storage.Type {
	case "file", "sqlite", "redis", "memory":
	default:
		return fmt.Errorf("unknown storage: %s", c.Storage.Type)
	}
	if c.Chat.TimeoutSecs < 0 {
		return errors.New("chat.timeout_secs must not be negative")
	}
	return nil
}

func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".notechat"
	}
	return filepath.Join(home, ".config", "notechat")
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Generator: GeneratorConfig{Type: "gemini"},
		Notes:     NotesConfig{Type: "dir", Paths: []string{"."}},
		Storage:   StorageConfig{Type: "file"},
		Chat:      ChatConfig{DefaultAgent: "smart-chat"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	dir := configDir()
	if cfg.Generator.Type == "" {
		cfg.Generator.Type = "gemini"
	}
	if cfg.Generator.APIKeyEnv == "" {
		switch cfg.Generator.Type {
		case "openai":
			cfg.Generator.APIKeyEnv = "OPENAI_API_KEY"
		default:
			cfg.Generator.APIKeyEnv = "GEMINI_API_KEY"
		}
	}
	if cfg.Generator.Model == "" {
		switch cfg.Generator.Type {
		case "openai":
			cfg.Generator.Model = "gpt-4o-mini"
		default:
			cfg.Generator.Model = "gemini-2.5-flash"
		}
	}
	if cfg.Generator.Type == "openai" && cfg.Generator.BaseURL == "" {
		cfg.Generator.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Generator.MaxRetries == 0 {
		cfg.Generator.MaxRetries = 2
	}
	if cfg.Generator.HeaderTimeoutSecs == 0 {
		cfg.Generator.HeaderTimeoutSecs = 30
	}

	if cfg.Notes.Type == "" {
		cfg.Notes.Type = "dir"
	}
	if cfg.Notes.SQLitePath == "" {
		cfg.Notes.SQLitePath = filepath.Join(dir, "notes.db")
	}
	if cfg.Notes.CacheTTLMins == 0 {
		cfg.Notes.CacheTTLMins = 60
	}

	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "file"
	}
	if cfg.Storage.Dir == "" {
		cfg.Storage.Dir = filepath.Join(dir, "sessions")
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = filepath.Join(dir, "state.db")
	}
	if cfg.Storage.Type == "redis" {
		if cfg.Storage.Redis == nil {
			cfg.Storage.Redis = &RedisConfig{}
		}
		if cfg.Storage.Redis.Addr == "" {
			cfg.Storage.Redis.Addr = "localhost:6379"
		}
		if cfg.Storage.Redis.Prefix == "" {
			cfg.Storage.Redis.Prefix = "notechat:"
		}
	}

	if cfg.Chat.DefaultAgent == "" {
		cfg.Chat.DefaultAgent = "smart-chat"
	}

	if cfg.Log.File == "" {
		cfg.Log.File = filepath.Join(dir, "notechat.log")
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.MaxSizeMB == 0 {
		cfg.Log.MaxSizeMB = 10
	}
	if cfg.Log.MaxBackups == 0 {
		cfg.Log.MaxBackups = 5
	}
	if cfg.Log.MaxAgeDays == 0 {
		cfg.Log.MaxAgeDays = 30
	}
}
