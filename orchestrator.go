package shadow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// RunState is the Agent Orchestrator's per-variant state machine state.
// Distinct from the persisted VariantStatus: IDLE and STOPPING are
// in-memory-only states between the persisted INITIALIZING/RUNNING/
// STOPPED/FAILED values.
type RunState string

const (
	RunInitializing RunState = "INITIALIZING"
	RunIdle         RunState = "IDLE"
	RunRunning      RunState = "RUNNING"
	RunStopping     RunState = "STOPPING"
	RunStopped      RunState = "STOPPED"
	RunFailed       RunState = "FAILED"
)

// ToolConfirmer optionally gates a tool call on human approval before
// execution, suspending the run until Resume or the TTL lapses (§12
// supplement, grounded on the teacher's suspend/resume mechanism).
type ToolConfirmer interface {
	Confirm(ctx context.Context, variantID string, tc ToolCall) (approved bool, err error)
}

// PRMetadataGenerator is invoked once on terminal finish of a run that
// produced file changes, when the task is configured for auto-PR (§4.11).
type PRMetadataGenerator interface {
	Generate(ctx context.Context, req PRMetadataRequest) (PullRequestSnapshot, error)
}

// PRMetadataRequest carries the inputs the generator's model call needs.
type PRMetadataRequest struct {
	TaskTitle        string
	GitDiff          string
	CommitMessages   []string
	WasTaskCompleted bool
}

// OrchestratorConfig wires an Orchestrator's dependencies.
type OrchestratorConfig struct {
	Store       Store
	Hub         *SessionHub
	Context     *ContextManager
	Tools       *ToolRegistry
	Processor   *StreamProcessor
	Summarizer  Provider
	Confirmer   ToolConfirmer       // optional
	PRGen       PRMetadataGenerator // optional
	Guard       *InjectionGuard     // optional; checked against userText before persistence
	Logger      *slog.Logger
	Tracer      Tracer // optional; one span per run (see observer.NewTracer)
}

// Orchestrator drives the per-variant state machine described in §4.8:
// assembles the system prompt, calls the Context Manager, invokes the
// Stream Processor, applies tool results back into the conversation,
// persists every part, advances step count, handles cancellation and
// completion, and triggers post-run PR metadata generation.
type Orchestrator struct {
	cfg OrchestratorConfig

	mu     sync.Mutex
	states map[string]RunState // variantID -> state; invariant: at most one RUNNING/STOPPING per variant
}

func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	if cfg.Logger == nil {
		cfg.Logger = nopLogger
	}
	return &Orchestrator{cfg: cfg, states: make(map[string]RunState)}
}

func (o *Orchestrator) stateOf(variantID string) RunState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.states[variantID]
}

func (o *Orchestrator) setState(variantID string, s RunState) {
	o.mu.Lock()
	o.states[variantID] = s
	o.mu.Unlock()
}

// SendMessage implements the IDLE -> RUNNING transition: persists the USER
// ChatMessage at a freshly allocated sequence, calls the Context Manager,
// opens the Stream Processor, and drives the run to completion. Returns
// once the run reaches a terminal state (STOPPED or FAILED); callers that
// want progress as it happens should subscribe via the SessionHub before
// or immediately after calling SendMessage.
func (o *Orchestrator) SendMessage(ctx context.Context, variant Variant, userText, modelID string) error {
	if cur := o.stateOf(variant.ID); cur == RunRunning || cur == RunStopping {
		return &ValidationError{Reason: "variant already has an active run"}
	}
	if o.cfg.Guard != nil {
		if err := o.cfg.Guard.Check(ctx, userText); err != nil {
			return err
		}
	}
	o.setState(variant.ID, RunRunning)

	if o.cfg.Tracer != nil {
		var span Span
		ctx, span = o.cfg.Tracer.Start(ctx, "orchestrator.run", StringAttr("variant_id", variant.ID), StringAttr("model", modelID))
		defer span.End()
	}

	runCtx, cancel := context.WithCancel(ctx)
	o.cfg.Hub.StartRun(variant.ID, NewID(), cancel)
	defer cancel()

	seq, err := o.cfg.Store.NextSequence(runCtx, variant.TaskID)
	if err != nil {
		o.setState(variant.ID, RunFailed)
		return &PersistenceError{Op: "NextSequence", Cause: err}
	}
	userMsg := NewUserMessage(variant.TaskID, variant.ID, userText, seq)
	if err := o.cfg.Store.AppendMessage(runCtx, userMsg); err != nil {
		o.setState(variant.ID, RunFailed)
		return &PersistenceError{Op: "AppendMessage(user)", Cause: err}
	}

	built, err := o.cfg.Context.BuildOptimalContext(runCtx, variant.TaskID, modelID, o.cfg.Summarizer)
	if err != nil {
		if _, ok := err.(*ErrContextOverflow); !ok {
			o.setState(variant.ID, RunFailed)
			return err
		}
		o.cfg.Logger.Warn("context overflow, proceeding with window only", "variant_id", variant.ID, "error", err)
	}

	task, err := o.cfg.Store.GetTask(runCtx, variant.TaskID)
	if err != nil {
		o.setState(variant.ID, RunFailed)
		return &PersistenceError{Op: "GetTask", Cause: err}
	}
	systemMsg := NewSystemMessage(variant.TaskID, variant.ID, o.buildSystemPrompt(task, variant))

	asstSeq, err := o.cfg.Store.NextSequence(runCtx, variant.TaskID)
	if err != nil {
		o.setState(variant.ID, RunFailed)
		return &PersistenceError{Op: "NextSequence(assistant)", Cause: err}
	}
	asstMsg := NewAssistantMessage(variant.TaskID, variant.ID, modelID, asstSeq)
	if err := o.cfg.Store.AppendMessage(runCtx, asstMsg); err != nil {
		o.setState(variant.ID, RunFailed)
		return &PersistenceError{Op: "AppendMessage(assistant)", Cause: err}
	}

	messages := make([]ChatMessage, 0, len(built.Messages)+2)
	messages = append(messages, systemMsg)
	messages = append(messages, built.Messages...)
	messages = append(messages, userMsg)
	result, runErr := o.drive(runCtx, variant, asstMsg, messages, modelID)

	if runErr != nil {
		if _, cancelled := runErr.(*ErrCancelled); cancelled {
			o.setState(variant.ID, RunStopped)
		} else {
			o.setState(variant.ID, RunFailed)
		}
		o.cfg.Hub.Retire(variant.ID)
		return runErr
	}

	variant.Status = VariantStopped
	_ = o.cfg.Store.UpdateVariant(ctx, variant)
	o.setState(variant.ID, RunIdle)
	o.cfg.Hub.Retire(variant.ID)
	_ = result
	return nil
}

// buildSystemPrompt assembles the leading SYSTEM message every run carries
// (§4.8's "assembles system prompt" step): persona, the task's repository
// and branch, and the names of the tools available this turn. Provider
// adapters split a leading SYSTEM message out into the provider's native
// system channel (provider/anthropic/body.go's AdaptMessages, or a plain
// leading sdk.SystemMessage for provider/openaicompat).
func (o *Orchestrator) buildSystemPrompt(task Task, variant Variant) string {
	var b strings.Builder
	b.WriteString("You are an autonomous coding agent working inside a cloned git repository. ")
	b.WriteString("Use the available tools to read, search, and edit files, run commands, and ")
	b.WriteString("track progress with todos; never claim to have made a change without actually ")
	b.WriteString("applying it through a tool call.\n\n")
	fmt.Fprintf(&b, "Repository: %s\n", task.RepoFullName)
	fmt.Fprintf(&b, "Base branch: %s\n", task.BaseBranch)
	fmt.Fprintf(&b, "Working branch: %s\n", variant.ShadowBranch)
	if task.Title != "" {
		fmt.Fprintf(&b, "Task: %s\n", task.Title)
	}
	if o.cfg.Tools != nil {
		if defs := o.cfg.Tools.AllDefinitions(); len(defs) > 0 {
			b.WriteString("\nAvailable tools:\n")
			for _, d := range defs {
				fmt.Fprintf(&b, "- %s: %s\n", d.Name, d.Description)
			}
		}
	}
	return b.String()
}

// debouncePartCount is the number of parts buffered before a non-critical
// persistence flush; tool-call/tool-result/finish parts always flush
// immediately regardless of this counter (§4.8, §5).
const debouncePartCount = 8

// drive runs the step loop: stream parts from the processor, persist and
// broadcast each, route tool-calls to the executor, and re-invoke the
// provider on tool-use finish until a terminal finish or the step cap.
func (o *Orchestrator) drive(ctx context.Context, variant Variant, asstMsg ChatMessage, messages []ChatMessage, modelID string) (ChatResponse, error) {
	accumulated := messages
	var totalUsage Usage
	var pendingParts []Part
	var lastResult ChatResponse

	for step := 0; step < maxRunSteps; step++ {
		parts := make(chan Part, 64)
		runErrCh := make(chan error, 1)
		go func() {
			runErrCh <- o.cfg.Processor.Run(ctx, StreamRequest{
				Messages:    accumulated,
				Model:       modelID,
				EnableTools: true,
				TaskID:      variant.TaskID,
			}, parts)
		}()

		finishReason := ""
		toolResultNeeded := false

		for p := range parts {
			pendingParts = append(pendingParts, p)
			asstMsg.Parts = append(asstMsg.Parts, p)
			o.cfg.Hub.Publish(ctx, variant.ID, p)

			flush := len(pendingParts) >= debouncePartCount ||
				p.Kind == PartToolCall || p.Kind == PartToolResult || p.Kind == PartFinish

			switch p.Kind {
			case PartToolCall:
				result := o.executeTool(ctx, variant, asstMsg.ID, p)
				resultPart := Part{Kind: PartToolResult, ToolCallID: p.ToolCallID, ToolResult: &result}
				asstMsg.Parts = append(asstMsg.Parts, resultPart)
				pendingParts = append(pendingParts, resultPart)
				o.cfg.Hub.Publish(ctx, variant.ID, resultPart)
				accumulated = append(accumulated, ChatMessage{
					Role:      RoleTool,
					Content:   result.Content,
					TaskID:    variant.TaskID,
					VariantID: variant.ID,
					Parts:     []Part{p, resultPart},
				})
				toolResultNeeded = true
			case PartFinish:
				finishReason = p.FinishReason
				totalUsage.InputTokens += p.Usage.InputTokens
				totalUsage.OutputTokens += p.Usage.OutputTokens
			case PartError:
				flush = true
			}

			if flush {
				_ = o.cfg.Store.UpdateMessageParts(ctx, asstMsg.ID, pendingParts, nil, finishReason)
				pendingParts = nil
			}
		}

		if err := <-runErrCh; err != nil {
			if ctx.Err() != nil {
				_ = o.cfg.Store.UpdateMessageParts(ctx, asstMsg.ID, pendingParts, &totalUsage, FinishCancelled)
				return lastResult, &ErrCancelled{VariantID: variant.ID}
			}
			_ = o.cfg.Store.UpdateMessageParts(ctx, asstMsg.ID, pendingParts, &totalUsage, FinishError)
			return lastResult, &ProviderTransportError{Cause: err}
		}

		if finishReason == FinishToolUse && toolResultNeeded && step < maxRunSteps-1 {
			continue // re-invoke the provider with the accumulated conversation
		}

		// Reaching here with a pending tool-use finish means the step cap was hit.
		if finishReason == "" || (finishReason == FinishToolUse && toolResultNeeded) {
			finishReason = FinishLength
		}
		_ = o.cfg.Store.UpdateMessageParts(ctx, asstMsg.ID, pendingParts, &totalUsage, finishReason)

		task, err := o.cfg.Store.GetTask(ctx, variant.TaskID)
		if err == nil {
			task.TotalTokens += int64(totalUsage.Total())
			_ = o.cfg.Store.UpdateTask(ctx, task)
			if task.AutoPR && o.cfg.PRGen != nil && finishReason == FinishStop {
				o.generatePR(ctx, task, asstMsg)
			}
		}
		return lastResult, nil
	}

	_ = o.cfg.Store.UpdateMessageParts(ctx, asstMsg.ID, pendingParts, &totalUsage, FinishLength)
	return lastResult, nil
}

// executeTool routes a finalized tool-call part through the Tool Registry,
// optionally gating on human confirmation first. ToolCall records are
// written before the tool executes and updated on completion, per §5's
// ordering requirement.
func (o *Orchestrator) executeTool(ctx context.Context, variant Variant, messageID string, p Part) ToolResult {
	tc := ToolCall{
		ID:        p.ToolCallID,
		MessageID: messageID,
		TaskID:    variant.TaskID,
		Name:      p.ToolName,
		Args:      p.Args,
		Status:    ToolCallPending,
		CreatedAt: NowUnix(),
	}
	_ = o.cfg.Store.CreateToolCall(ctx, tc)

	if o.cfg.Confirmer != nil {
		approved, err := o.cfg.Confirmer.Confirm(ctx, variant.ID, tc)
		if err != nil || !approved {
			tc.Status = ToolCallError
			tc.Error = "not approved"
			tc.UpdatedAt = NowUnix()
			_ = o.cfg.Store.UpdateToolCall(ctx, tc)
			return ToolResult{Error: "tool call declined"}
		}
	}

	tc.Status = ToolCallRunning
	tc.UpdatedAt = NowUnix()
	_ = o.cfg.Store.UpdateToolCall(ctx, tc)

	result, err := o.cfg.Tools.Execute(ctx, p.ToolCallID, p.ToolName, p.Args)

	tc.UpdatedAt = NowUnix()
	if err != nil || result.Error != "" {
		tc.Status = ToolCallError
		if err != nil {
			tc.Error = err.Error()
		} else {
			tc.Error = result.Error
		}
	} else {
		tc.Status = ToolCallSuccess
		tc.Result = result.Content
	}
	_ = o.cfg.Store.UpdateToolCall(ctx, tc)
	return result
}

func (o *Orchestrator) generatePR(ctx context.Context, task Task, asstMsg ChatMessage) {
	snapshot, err := o.cfg.PRGen.Generate(ctx, PRMetadataRequest{
		TaskTitle:        task.Title,
		WasTaskCompleted: true,
	})
	if err != nil {
		o.cfg.Logger.Warn("pr metadata generation failed", "task_id", task.ID, "error", err)
		return
	}
	_ = o.cfg.Store.SetPullRequestSnapshot(ctx, asstMsg.ID, snapshot)
}

// StopStream raises the run's abort signal via the SessionHub. In-flight
// tool executions are allowed to complete or be killed according to tool
// policy; the Orchestrator's drive loop observes ctx cancellation and
// closes the run with finish reason cancelled.
func (o *Orchestrator) StopStream(variantID string) bool {
	o.setState(variantID, RunStopping)
	return o.cfg.Hub.Cancel(variantID)
}
