package openaicompat

import (
	"context"
	"log/slog"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	shadow "github.com/shadowhq/shadow"
)

// Provider implements shadow.ProviderClient against the OpenAI Chat
// Completions API for GPT-5-family and other OpenAI-compatible models.
// It never reports native reasoning support: the Chat Completions API
// exposes no reasoning/thinking events, so every call through this
// provider relies on the Stream Processor's synthetic reasoning framing.
type Provider struct {
	client sdk.Client
	model  string
	name   string

	temperature *float64
	topP        *float64
	maxTokens   int64

	logger *slog.Logger
}

// NewProvider creates an OpenAI-compatible provider against baseURL (empty
// for api.openai.com). model is used when a ChatRequest leaves Model empty.
func NewProvider(apiKey, model, baseURL string, opts ...ProviderOption) *Provider {
	var reqOpts []option.RequestOption
	if apiKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}
	if model == "" {
		model = defaultModel
	}
	p := &Provider{
		client: sdk.NewClient(reqOpts...),
		model:  model,
		name:   "openai",
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) SupportsNativeReasoning() bool { return false }

func (p *Provider) buildParams(req shadow.ChatRequest) sdk.ChatCompletionNewParams {
	model := req.Model
	if model == "" {
		model = p.model
	}
	params := sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(model),
		Messages: AdaptMessages(req.Messages),
	}
	if len(req.Tools) > 0 {
		params.Tools = AdaptTools(req.Tools)
	}
	if req.ResponseSchema != nil {
		params.ResponseFormat = AdaptResponseSchema(req.ResponseSchema)
	}
	if p.temperature != nil {
		params.Temperature = sdk.Float(*p.temperature)
	}
	if p.topP != nil {
		params.TopP = sdk.Float(*p.topP)
	}
	if p.maxTokens > 0 {
		params.MaxCompletionTokens = sdk.Int(p.maxTokens)
	}
	return params
}

// Chat implements shadow.Provider (and, transitively, shadow.ProviderClient):
// used by the Message Compressor's summarizer and the Pull-Request
// Metadata Generator, both of which need a single complete call rather
// than the streaming surface.
func (p *Provider) Chat(ctx context.Context, req shadow.ChatRequest) (shadow.ChatResponse, error) {
	params := p.buildParams(req)
	comp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return shadow.ChatResponse{}, &shadow.ProviderTransportError{Provider: p.name, Cause: err}
	}
	return ParseResponse(comp), nil
}

var _ shadow.ProviderClient = (*Provider)(nil)
