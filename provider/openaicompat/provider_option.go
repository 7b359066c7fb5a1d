package openaicompat

import "log/slog"

// ProviderOption configures a Provider instance.
type ProviderOption func(*Provider)

// WithName sets the provider name returned by Name() (default "openai").
func WithName(name string) ProviderOption {
	return func(p *Provider) { p.name = name }
}

// WithTemperature sets the sampling temperature applied to every request.
func WithTemperature(t float64) ProviderOption {
	return func(p *Provider) { p.temperature = &t }
}

// WithTopP sets nucleus sampling top-p applied to every request.
func WithTopP(topP float64) ProviderOption {
	return func(p *Provider) { p.topP = &topP }
}

// WithMaxTokens caps completion tokens on every request.
func WithMaxTokens(n int64) ProviderOption {
	return func(p *Provider) { p.maxTokens = n }
}

// WithLogger attaches a logger used for provider-level diagnostics.
func WithLogger(l *slog.Logger) ProviderOption {
	return func(p *Provider) { p.logger = l }
}
