package anthropic

import "log/slog"

// ProviderOption configures a Provider instance.
type ProviderOption func(*Provider)

// WithName sets the provider name returned by Name() (default "anthropic").
func WithName(name string) ProviderOption {
	return func(p *Provider) { p.name = name }
}

// WithMaxTokens overrides the default completion token cap.
func WithMaxTokens(n int64) ProviderOption {
	return func(p *Provider) { p.maxTokens = n }
}

// WithTemperature sets the sampling temperature applied to every request.
func WithTemperature(t float64) ProviderOption {
	return func(p *Provider) { p.temperature = &t }
}

// WithThinkingBudget enables extended thinking with the given token budget
// on every request. Must be at least 1024 per the Messages API and less
// than the configured max tokens; callers are responsible for keeping
// per-model ThinkingBudgetTokens (modelregistry.go) consistent with this.
func WithThinkingBudget(tokens int64) ProviderOption {
	return func(p *Provider) { p.thinkingBudget = tokens }
}

// WithLogger attaches a logger used for provider-level diagnostics.
func WithLogger(l *slog.Logger) ProviderOption {
	return func(p *Provider) { p.logger = l }
}
