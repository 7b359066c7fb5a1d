package shadow

import (
	"context"
	"log/slog"
	"sync"
)

// ToolsFactory builds the Tool Registry for one run, rooted at the
// variant's own cloned workspace. A Tool Registry is inherently
// workspace-scoped (its filesystem tools are bound to one root path), so it
// cannot be shared across variants the way Store/SessionHub/ContextManager
// are; the router asks for a fresh one on every SendMessage instead.
type ToolsFactory func(variant Variant, repoFullName string) *ToolRegistry

// RouterConfig wires an OrchestratorRouter's shared dependencies plus one
// ProviderClient per provider family named in the Model Registry.
type RouterConfig struct {
	Store      Store
	Hub        *SessionHub
	Context    *ContextManager
	Summarizer Provider
	Confirmer  ToolConfirmer
	PRGen      PRMetadataGenerator
	Guard      *InjectionGuard
	Logger     *slog.Logger
	Tracer     Tracer
	Clients    map[string]ProviderClient // "anthropic" | "openai" -> client
	Tools      ToolsFactory
}

// OrchestratorRouter builds and runs a short-lived Orchestrator for every
// SendMessage call, selecting the ProviderClient for modelID's provider
// family and a Tool Registry scoped to the variant's own workspace. A
// Stream Processor binds one ProviderClient and one Tool Registry at
// construction and neither can be shared safely across variants or
// provider families, so the router rebuilds both per call rather than
// holding a single long-lived Orchestrator the way a single-provider,
// single-workspace deployment could.
type OrchestratorRouter struct {
	cfg RouterConfig

	mu     sync.Mutex
	active map[string]struct{} // variantID -> running, guards against a double-start across calls
}

func NewOrchestratorRouter(cfg RouterConfig) *OrchestratorRouter {
	if cfg.Logger == nil {
		cfg.Logger = nopLogger
	}
	return &OrchestratorRouter{cfg: cfg, active: make(map[string]struct{})}
}

func (r *OrchestratorRouter) beginRun(variantID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, running := r.active[variantID]; running {
		return false
	}
	r.active[variantID] = struct{}{}
	return true
}

func (r *OrchestratorRouter) endRun(variantID string) {
	r.mu.Lock()
	delete(r.active, variantID)
	r.mu.Unlock()
}

// SendMessage resolves modelID's provider, builds a fresh Tool Registry and
// Stream Processor for variant's workspace, and drives the run to
// completion on a per-call Orchestrator.
func (r *OrchestratorRouter) SendMessage(ctx context.Context, variant Variant, userText, modelID string) error {
	desc, err := ResolveModel(modelID)
	if err != nil {
		return err
	}
	client, ok := r.cfg.Clients[desc.Provider]
	if !ok {
		return &UnknownModelError{ModelID: modelID}
	}

	if !r.beginRun(variant.ID) {
		return &ValidationError{Reason: "variant already has an active run"}
	}
	defer r.endRun(variant.ID)

	task, err := r.cfg.Store.GetTask(ctx, variant.TaskID)
	if err != nil {
		return &PersistenceError{Op: "GetTask", Cause: err}
	}

	registry := r.cfg.Tools(variant, task.RepoFullName)
	processor := NewStreamProcessor(client, registry, r.cfg.Logger)
	orch := NewOrchestrator(OrchestratorConfig{
		Store:      r.cfg.Store,
		Hub:        r.cfg.Hub,
		Context:    r.cfg.Context,
		Tools:      registry,
		Processor:  processor,
		Summarizer: r.cfg.Summarizer,
		Confirmer:  r.cfg.Confirmer,
		PRGen:      r.cfg.PRGen,
		Guard:      r.cfg.Guard,
		Logger:     r.cfg.Logger,
		Tracer:     r.cfg.Tracer,
	})
	return orch.SendMessage(ctx, variant, userText, modelID)
}

// StopStream cancels variantID's active run via the shared SessionHub.
// Every per-call Orchestrator built by SendMessage shares this same hub, so
// a single Cancel reaches whichever one is currently running it.
func (r *OrchestratorRouter) StopStream(variantID string) bool {
	return r.cfg.Hub.Cancel(variantID)
}
