// Package openaicompat implements shadow.ProviderClient against the OpenAI
// Chat Completions API using the official openai-go SDK. It backs
// GPT-5-family models, which do not emit native reasoning/thinking events
// over this API, so SupportsNativeReasoning always reports false and the
// Stream Processor's synthetic reasoning framing applies (§4.7).
package openaicompat

// defaultModel is used when a Provider is constructed without an explicit
// model override.
const defaultModel = "gpt-5"
