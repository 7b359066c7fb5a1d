// Package anthropic implements shadow.ProviderClient against the Anthropic
// Messages API using the official anthropic-sdk-go. It backs Claude-family
// models, which emit native thinking/redacted-thinking events over this API,
// so SupportsNativeReasoning always reports true and providers populate
// ReasoningDelta/RedactedReasoning directly rather than relying on the
// Stream Processor's synthetic reasoning framing (§4.7).
package anthropic

// defaultModel is used when a Provider is constructed without an explicit
// model override.
const defaultModel = "claude-sonnet-4"

// defaultMaxTokens is applied when no WithMaxTokens option is supplied.
const defaultMaxTokens = 8192
