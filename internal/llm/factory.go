// Package llm - Provider factory
package llm

import (
	"fmt"

	"github.com/onegate/onegate/internal/models"
)

// Default endpoints for the OpenAI-compatible backends.
const (
	DeepSeekBaseURL = "https://api.deepseek.com/v1"
)

// ProviderConfig configures one backend instance.
type ProviderConfig struct {
	APIKey  string
	BaseURL string // OpenAI-compatible endpoints only
}

// NewProvider creates a provider instance for a catalog provider family.
// DeepSeek and the Vertex proxy speak the OpenAI wire protocol and ride the
// same adapter with their own base URLs.
func NewProvider(family models.Provider, cfg ProviderConfig) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("provider %s: api key not configured", family)
	}

	switch family {
	case models.ProviderOpenAI:
		return NewOpenAIProvider(string(family), cfg.APIKey, cfg.BaseURL), nil
	case models.ProviderClaude:
		return NewAnthropicProvider(string(family), cfg.APIKey), nil
	case models.ProviderXAI:
		return NewXAIProvider(string(family), cfg.APIKey)
	case models.ProviderDeepSeek:
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = DeepSeekBaseURL
		}
		return NewOpenAIProvider(string(family), cfg.APIKey, baseURL), nil
	case models.ProviderVertex:
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("provider %s: base url not configured", family)
		}
		return NewOpenAIProvider(string(family), cfg.APIKey, cfg.BaseURL), nil
	default:
		return nil, fmt.Errorf("unknown provider family: %s", family)
	}
}

// NewProviders builds the provider map for every family with configuration
// present. Missing keys skip the family rather than failing startup.
func NewProviders(configs map[models.Provider]ProviderConfig) (map[models.Provider]Provider, error) {
	out := make(map[models.Provider]Provider)
	for family, cfg := range configs {
		if cfg.APIKey == "" {
			continue
		}
		p, err := NewProvider(family, cfg)
		if err != nil {
			return nil, err
		}
		out[family] = p
	}
	return out, nil
}
