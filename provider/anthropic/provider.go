package anthropic

import (
	"context"
	"log/slog"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	shadow "github.com/shadowhq/shadow"
)

// Provider implements shadow.ProviderClient against the Anthropic Messages
// API for Claude-family models. It always reports native reasoning
// support: extended thinking and redacted-thinking blocks arrive directly
// over this API, so the Stream Processor's synthetic reasoning framing
// never applies to calls through this provider.
type Provider struct {
	client sdk.Client
	model  string
	name   string

	maxTokens      int64
	temperature    *float64
	thinkingBudget int64

	logger *slog.Logger
}

// NewProvider creates an Anthropic-backed provider against baseURL (empty
// for api.anthropic.com). model is used when a ChatRequest leaves Model
// empty.
func NewProvider(apiKey, model, baseURL string, opts ...ProviderOption) *Provider {
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}
	if model == "" {
		model = defaultModel
	}
	p := &Provider{
		client:    sdk.NewClient(reqOpts...),
		model:     model,
		name:      "anthropic",
		maxTokens: defaultMaxTokens,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) SupportsNativeReasoning() bool { return true }

// buildParams constructs the Messages request. The returned bool reports
// whether req.ResponseSchema forced the structured-output tool, so callers
// can route the emit_structured_output tool_use block into Content instead
// of ToolCalls.
func (p *Provider) buildParams(req shadow.ChatRequest) (sdk.MessageNewParams, bool) {
	model := req.Model
	if model == "" {
		model = p.model
	}
	messages, system := AdaptMessages(req.Messages)

	params := sdk.MessageNewParams{
		Model:     sdk.Model(model),
		Messages:  messages,
		MaxTokens: p.maxTokens,
	}
	if len(system) > 0 {
		params.System = system
	}
	if p.temperature != nil {
		params.Temperature = sdk.Float(*p.temperature)
	}
	if p.thinkingBudget > 0 {
		params.Thinking = sdk.ThinkingConfigParamOfEnabled(p.thinkingBudget)
	}

	structuredOutput := req.ResponseSchema != nil
	tools := AdaptTools(req.Tools)
	if structuredOutput {
		tools = append(tools, AdaptResponseSchemaTool(req.ResponseSchema))
		params.ToolChoice = sdk.ToolChoiceParamOfTool(structuredOutputTool)
	}
	if len(tools) > 0 {
		params.Tools = tools
	}
	return params, structuredOutput
}

// Chat implements shadow.Provider (and, transitively, shadow.ProviderClient):
// used by the Message Compressor's summarizer and the Pull-Request
// Metadata Generator, both of which need a single complete call rather
// than the streaming surface.
func (p *Provider) Chat(ctx context.Context, req shadow.ChatRequest) (shadow.ChatResponse, error) {
	params, structuredOutput := p.buildParams(req)
	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return shadow.ChatResponse{}, &shadow.ProviderTransportError{Provider: p.name, Cause: err}
	}
	return ParseResponse(msg, structuredOutput), nil
}

var _ shadow.ProviderClient = (*Provider)(nil)
