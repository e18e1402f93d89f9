package models

// Catalog is the static model list loaded into the registry at start.
// Prices are USD per 1K tokens (or per 1K chars for CHAR models).
var Catalog = []Descriptor{
	{
		Provider:         ProviderVertex,
		Name:             "gemini-15",
		FullName:         "Gemini 1.5 Pro",
		Version:          "gemini-1.5-pro-latest",
		Commands:         []string{"gemini15", "g"},
		Prefixes:         []string{"g. "},
		InputPrice:       0.0025,
		OutputPrice:      0.0075,
		MaxContextTokens: 1048576,
		ChargeType:       ChargeChar,
		Stream:           true,
	},
	{
		Provider:         ProviderVertex,
		Name:             "gemini-10",
		FullName:         "Gemini 1.0 Pro",
		Version:          "gemini-1.0-pro",
		Commands:         []string{"gemini", "g10"},
		Prefixes:         []string{"g10. "},
		InputPrice:       0.000125,
		OutputPrice:      0.000375,
		MaxContextTokens: 30720,
		ChargeType:       ChargeChar,
		Stream:           true,
	},
	{
		Provider:         ProviderClaude,
		Name:             "claude-35-sonnet",
		FullName:         "Claude Sonnet 3.5",
		Version:          "claude-3-5-sonnet-20241022",
		Commands:         []string{"sonnet", "claude", "s", "c"},
		Prefixes:         []string{"s. ", "c. "},
		InputPrice:       0.003,
		OutputPrice:      0.015,
		MaxContextTokens: 200000,
		ChargeType:       ChargeToken,
		Stream:           true,
		ContextLookup:    true,
	},
	{
		Provider:         ProviderClaude,
		Name:             "claude-3-opus",
		FullName:         "Claude Opus",
		Version:          "claude-3-opus-20240229",
		Commands:         []string{"opus", "o"},
		Prefixes:         []string{"o. "},
		InputPrice:       0.015,
		OutputPrice:      0.075,
		MaxContextTokens: 200000,
		ChargeType:       ChargeToken,
		Stream:           true,
	},
	{
		Provider:         ProviderClaude,
		Name:             "claude-35-haiku",
		FullName:         "Claude Haiku",
		Version:          "claude-3-5-haiku-20241022",
		Commands:         []string{"haiku", "h"},
		Prefixes:         []string{"h. "},
		InputPrice:       0.001,
		OutputPrice:      0.005,
		MaxContextTokens: 200000,
		ChargeType:       ChargeToken,
		Stream:           true,
	},
	{
		Provider:         ProviderOpenAI,
		Name:             "gpt-4o",
		FullName:         "GPT-4o",
		Version:          "gpt-4o",
		Commands:         []string{"gpto", "ask", "chat", "gpt", "a"},
		Prefixes:         []string{"a. ", ". "},
		InputPrice:       0.005,
		OutputPrice:      0.0015,
		MaxContextTokens: 128000,
		ChargeType:       ChargeToken,
		Stream:           true,
		ContextLookup:    true,
	},
	{
		Provider:         ProviderOpenAI,
		Name:             "gpt-4",
		FullName:         "GPT-4",
		Version:          "gpt-4",
		Commands:         []string{"gpt4"},
		InputPrice:       0.03,
		OutputPrice:      0.06,
		MaxContextTokens: 8192,
		ChargeType:       ChargeToken,
		Stream:           true,
	},
	{
		Provider:         ProviderOpenAI,
		Name:             "gpt-35-turbo",
		FullName:         "GPT-3.5 Turbo",
		Version:          "gpt-3.5-turbo",
		Commands:         []string{"ask35"},
		InputPrice:       0.0015,
		OutputPrice:      0.002,
		MaxContextTokens: 16385,
		ChargeType:       ChargeToken,
		Stream:           true,
	},
	{
		Provider:         ProviderDeepSeek,
		Name:             "deepseek-chat",
		FullName:         "DeepSeek Chat",
		Version:          "deepseek-chat",
		Commands:         []string{"deepseek", "ds"},
		Prefixes:         []string{"ds. "},
		InputPrice:       0.00014,
		OutputPrice:      0.00028,
		MaxContextTokens: 128000,
		ChargeType:       ChargeToken,
		Stream:           true,
	},
	{
		Provider:         ProviderXAI,
		Name:             "grok",
		FullName:         "Grok",
		Version:          "grok-2-latest",
		Commands:         []string{"grok", "x"},
		Prefixes:         []string{"x. "},
		InputPrice:       0.002,
		OutputPrice:      0.01,
		MaxContextTokens: 131072,
		ChargeType:       ChargeToken,
		Stream:           true,
	},
}

// ProviderParams are each provider's default request parameters.
var ProviderParams = map[Provider]Parameters{
	ProviderOpenAI:   {Temperature: 0.8, MaxOutputTokens: 800, SystemPromptStyle: "message"},
	ProviderClaude:   {Temperature: 0.8, MaxOutputTokens: 800, SystemPromptStyle: "field"},
	ProviderVertex:   {Temperature: 0.8, MaxOutputTokens: 800, SystemPromptStyle: "message"},
	ProviderDeepSeek: {Temperature: 1.0, MaxOutputTokens: 800, SystemPromptStyle: "message"},
	ProviderXAI:      {Temperature: 0.8, MaxOutputTokens: 800, SystemPromptStyle: "field"},
}

// ModelOverrides tweak provider defaults per catalog model name.
var ModelOverrides = map[string]Parameters{
	"gpt-4o":        {MaxOutputTokens: 1000},
	"deepseek-chat": {Temperature: 1.3}, // conversational default per DeepSeek docs
}

// NewDefaultRegistry builds the registry from the static catalog.
func NewDefaultRegistry() (*Registry, error) {
	return NewRegistry(Catalog, ProviderParams, ModelOverrides)
}
