// Package llm centralizes model configuration behind capability tiers so
// callers never hard-code a model name.
package llm

// ModelTier groups models by capability rather than name.
type ModelTier string

const (
	// TierLite handles cheap classification and extraction work.
	TierLite ModelTier = "lite"
	// TierStandard covers document adjudication and structured output.
	TierStandard ModelTier = "standard"
	// TierAdvanced is reserved for proposal synthesis and mission
	// planning, where reasoning quality matters most.
	TierAdvanced ModelTier = "advanced"
)

// Provider identifies an LLM vendor.
type Provider string

// ProviderGemini is the only provider currently wired.
const ProviderGemini Provider = "gemini"

// Config maps tiers to concrete model names for one provider.
type Config struct {
	Provider Provider
	Models   map[ModelTier]string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return DefaultGeminiConfig()
}

// DefaultGeminiConfig pins the current Gemini model per tier.
func DefaultGeminiConfig() *Config {
	return &Config{
		Provider: ProviderGemini,
		Models: map[ModelTier]string{
			TierLite:     "gemini-2.5-flash-lite",
			TierStandard: "gemini-2.5-flash",
			TierAdvanced: "gemini-2.5-pro",
		},
	}
}

// GetModel resolves a tier to a model name, falling back to standard and
// then lite when the tier is not configured.
func (c *Config) GetModel(tier ModelTier) string {
	if model, ok := c.Models[tier]; ok {
		return model
	}
	if model, ok := c.Models[TierStandard]; ok {
		return model
	}
	if model, ok := c.Models[TierLite]; ok {
		return model
	}
	return ""
}

// WithModel copies the config with one tier overridden.
func (c *Config) WithModel(tier ModelTier, model string) *Config {
	newConfig := &Config{
		Provider: c.Provider,
		Models:   make(map[ModelTier]string),
	}
	for k, v := range c.Models {
		newConfig.Models[k] = v
	}
	newConfig.Models[tier] = model
	return newConfig
}
