package shadow

// ModelDescriptor describes one registered model's provider binding,
// context-window size, and capability flags.
type ModelDescriptor struct {
	ModelID                     string
	Provider                    string // "anthropic" | "openai"
	ContextWindowTokens         int
	SupportsToolUse             bool
	SupportsInterleavedReasoning bool
	SupportsPromptCaching       bool
	ReasoningEffortDefault      string // "low" | "medium" | "high", empty if N/A
	ThinkingBudgetTokens        int

	// Compression Settings (§4.3), carried on the same read-only descriptor
	// since every caller that resolves a model also needs its compression
	// policy and the two are always read together.
	TokenLimit           int
	CompressionThreshold float64
	SlidingWindowSize    int

	// PricePerMillionInputTokens/PricePerMillionOutputTokens are pricing
	// hints in USD, informational only.
	PricePerMillionInputTokens  float64
	PricePerMillionOutputTokens float64
}

// modelRegistry is the process-wide read-only table initialized at
// startup. It is never mutated after newDefaultModelRegistry returns, matching the
// "no hidden mutation" design note: a small constructor function returning
// an immutable struct rather than a package-level mutable map.
type modelRegistry struct {
	byID map[string]ModelDescriptor
}

var defaultRegistry = newDefaultModelRegistry()

func newDefaultModelRegistry() *modelRegistry {
	descs := []ModelDescriptor{
		{
			ModelID:                      "claude-opus-4",
			Provider:                     "anthropic",
			ContextWindowTokens:          200000,
			SupportsToolUse:              true,
			SupportsInterleavedReasoning: true,
			SupportsPromptCaching:        true,
			ReasoningEffortDefault:       "high",
			ThinkingBudgetTokens:         32000,
			TokenLimit:                   200000,
			CompressionThreshold:         0.7,
			SlidingWindowSize:            12,
			PricePerMillionInputTokens:   15,
			PricePerMillionOutputTokens:  75,
		},
		{
			ModelID:                      "claude-sonnet-4",
			Provider:                     "anthropic",
			ContextWindowTokens:          200000,
			SupportsToolUse:              true,
			SupportsInterleavedReasoning: true,
			SupportsPromptCaching:        true,
			ReasoningEffortDefault:       "medium",
			ThinkingBudgetTokens:         16000,
			TokenLimit:                   200000,
			CompressionThreshold:         0.7,
			SlidingWindowSize:            10,
			PricePerMillionInputTokens:   3,
			PricePerMillionOutputTokens:  15,
		},
		{
			ModelID:                     "gpt-5",
			Provider:                    "openai",
			ContextWindowTokens:         128000,
			SupportsToolUse:             true,
			SupportsInterleavedReasoning: false, // synthetic reasoning framing applies, see Stream Processor
			SupportsPromptCaching:       true,
			ReasoningEffortDefault:      "medium",
			ThinkingBudgetTokens:        0,
			TokenLimit:                  128000,
			CompressionThreshold:        0.05,
			SlidingWindowSize:           8,
			PricePerMillionInputTokens:  10,
			PricePerMillionOutputTokens: 30,
		},
		{
			ModelID:                     "gpt-5-mini",
			Provider:                    "openai",
			ContextWindowTokens:         128000,
			SupportsToolUse:             true,
			SupportsInterleavedReasoning: false,
			SupportsPromptCaching:       true,
			ReasoningEffortDefault:      "low",
			TokenLimit:                  128000,
			CompressionThreshold:        0.05,
			SlidingWindowSize:           8,
			PricePerMillionInputTokens:  0.25,
			PricePerMillionOutputTokens: 2,
		},
	}
	r := &modelRegistry{byID: make(map[string]ModelDescriptor, len(descs))}
	for _, d := range descs {
		r.byID[d.ModelID] = d
	}
	return r
}

// ResolveModel resolves a model id against the process-wide registry.
// Fails with *UnknownModelError if not registered. No side effects.
func ResolveModel(modelID string) (ModelDescriptor, error) {
	return defaultRegistry.resolve(modelID)
}

func (r *modelRegistry) resolve(modelID string) (ModelDescriptor, error) {
	d, ok := r.byID[modelID]
	if !ok {
		return ModelDescriptor{}, &UnknownModelError{ModelID: modelID}
	}
	return d, nil
}

// CompressionTarget returns floor(tokenLimit * compressionThreshold), the
// maximum total prompt tokens buildOptimalContext must respect.
func (d ModelDescriptor) CompressionTarget() int {
	return int(float64(d.TokenLimit) * d.CompressionThreshold)
}
