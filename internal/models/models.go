// Package models holds the static model catalog and the registry that maps
// invocation commands and prefixes to model descriptors.
package models

// Provider identifies an LLM backend family.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderClaude    Provider = "claude"
	ProviderVertex    Provider = "vertex"
	ProviderDeepSeek  Provider = "deepseek"
	ProviderXAI       Provider = "xai"
)

// ChargeType selects the unit the model is billed by.
type ChargeType string

const (
	ChargeToken ChargeType = "TOKEN"
	ChargeChar  ChargeType = "CHAR"
)

// Descriptor describes one chat model: how it is invoked, what it costs,
// and which provider adapter serves it. Immutable after registry load.
type Descriptor struct {
	Provider Provider
	Name     string // short catalog name, e.g. "claude-35-sonnet"
	FullName string // human-readable, e.g. "Claude Sonnet 3.5"
	Version  string // wire model id sent to the provider API, unique

	Commands []string // leading command words, e.g. "sonnet", "s"
	Prefixes []string // raw prompt prefixes, e.g. "s. " (case-insensitive)

	// Prices are USD per 1K units (tokens or chars, per ChargeType).
	InputPrice  float64
	OutputPrice float64

	MaxContextTokens int
	ChargeType       ChargeType
	Stream           bool

	// ContextLookup marks models whose invocation supports URL/PDF
	// enrichment; for others a URL in the prompt is plain text.
	ContextLookup bool
}

// Parameters are provider defaults merged with per-model overrides.
type Parameters struct {
	Temperature       float64
	MaxOutputTokens   int
	SystemPromptStyle string // "message" (in conversation) or "field" (API param)
}

// PromptPrice returns the cost in USD cents for the given usage, before any
// global price adjustment. For CHAR models the counts are character counts.
func (d *Descriptor) PromptPrice(inputUnits, outputUnits int) float64 {
	price := d.InputPrice*float64(inputUnits) + d.OutputPrice*float64(outputUnits)
	return price / 1000 * 100
}

// MinBalanceEstimate prices a fixed 400-in/400-out reference budget against
// the model's rates. Used as the drain loop's pre-flight balance gate, not
// the final charge.
func (d *Descriptor) MinBalanceEstimate() float64 {
	return d.PromptPrice(400, 400)
}
