// Package config loads the process configuration from a TOML file.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the full process configuration.
type Config struct {
	Logging   LoggingConfig   `toml:"logging"`
	Telegram  TelegramConfig  `toml:"telegram"`
	Providers ProvidersConfig `toml:"providers"`
	Gateway   GatewayConfig   `toml:"gateway"`
	Ingest    IngestConfig    `toml:"ingest"`
	Payment   PaymentConfig   `toml:"payment"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level      string `toml:"level"` // debug, info, warn, error
	ShowCaller bool   `toml:"show_caller"`
}

// TelegramConfig holds the bot transport settings.
type TelegramConfig struct {
	BotToken string `toml:"bot_token"`
}

// ProviderConfig configures one LLM backend.
type ProviderConfig struct {
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
}

// ProvidersConfig groups per-family provider settings.
type ProvidersConfig struct {
	OpenAI   ProviderConfig `toml:"openai"`
	Claude   ProviderConfig `toml:"claude"`
	Vertex   ProviderConfig `toml:"vertex"`
	DeepSeek ProviderConfig `toml:"deepseek"`
	XAI      ProviderConfig `toml:"xai"`
}

// GatewayConfig tunes the orchestrator.
type GatewayConfig struct {
	SystemPrompt    string  `toml:"system_prompt"`
	DefaultModel    string  `toml:"default_model"`
	WordLimit       int     `toml:"word_limit"`
	PriceAdjustment float64 `toml:"price_adjustment"`
	IntroText       string  `toml:"intro_text"`
}

// IngestConfig points at the document ingestion backend.
type IngestConfig struct {
	Endpoint       string `toml:"endpoint"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// PaymentConfig configures the credit ledger.
type PaymentConfig struct {
	LedgerPath string  `toml:"ledger_path"`
	Whitelist  []int64 `toml:"whitelist"`
	NativeRate float64 `toml:"native_rate"` // native currency units per USD cent
}

// Load reads and validates the configuration file, applying defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Gateway.DefaultModel == "" {
		c.Gateway.DefaultModel = "gpt-4o"
	}
	if c.Gateway.WordLimit == 0 {
		c.Gateway.WordLimit = 100
	}
	if c.Gateway.PriceAdjustment == 0 {
		c.Gateway.PriceAdjustment = 2
	}
	if c.Ingest.TimeoutSeconds == 0 {
		c.Ingest.TimeoutSeconds = 30
	}
	if c.Payment.LedgerPath == "" {
		c.Payment.LedgerPath = "onegate.db"
	}
	if c.Payment.NativeRate == 0 {
		c.Payment.NativeRate = 1
	}
}

func (c *Config) validate() error {
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token is required")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	return nil
}
