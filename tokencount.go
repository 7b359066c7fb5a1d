package shadow

import "strings"

// CountTokens estimates the number of tokens a piece of content would
// consume for the given model. This is a pure function with no I/O: an
// estimate, not an exact count, and different model families may estimate
// differently (the Anthropic and OpenAI tokenizers diverge on punctuation
// and whitespace handling enough that a single fixed ratio would mislead
// the Context Manager in one direction or the other).
func CountTokens(content string, modelID string) int {
	if content == "" {
		return 0
	}
	desc, err := ResolveModel(modelID)
	family := "default"
	if err == nil {
		family = desc.Provider
	}
	return countByFamily(content, family)
}

// countByFamily applies a per-provider-family chars-per-token ratio. These
// ratios are rough heuristics (OpenAI's cl100k-family tokenizer averages
// ~4 chars/token on English prose; Anthropic's averages slightly higher on
// code-heavy content) rather than a real BPE tokenizer, matching the Token
// Counter's mandate to be a pure estimate with no failure modes.
func countByFamily(content, family string) int {
	chars := len([]rune(content))
	words := len(strings.Fields(content))

	var charsPerToken float64
	switch family {
	case "anthropic":
		charsPerToken = 3.6
	case "openai":
		charsPerToken = 4.0
	default:
		charsPerToken = 3.8
	}

	byChars := float64(chars) / charsPerToken
	byWords := float64(words) * 1.3 // average subword expansion

	estimate := (byChars + byWords) / 2
	if estimate < 1 {
		return 1
	}
	return int(estimate + 0.5)
}

// CountMessageTokens estimates the tokens a ChatMessage would add to a
// prompt, accounting for its linearized parts and tool-call metadata in
// addition to plain Content.
func CountMessageTokens(msg ChatMessage, modelID string) int {
	text := LinearizeMessage(msg)
	total := CountTokens(text, modelID)
	for _, tc := range msg.ToolCallsIn() {
		total += CountTokens(string(tc.Args), modelID) + 4 // per-call framing overhead
	}
	return total
}

// ToolCallsIn extracts the tool-call parts embedded in a message's Parts,
// for token accounting purposes.
func (m ChatMessage) ToolCallsIn() []ToolCall {
	var calls []ToolCall
	for _, p := range m.Parts {
		if p.Kind == PartToolCall {
			calls = append(calls, ToolCall{ID: p.ToolCallID, Name: p.ToolName, Args: p.Args})
		}
	}
	return calls
}
