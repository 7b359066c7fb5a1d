package shadow

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ToolDefinition declares one callable tool's name, description, and JSON
// Schema argument shape.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolResult is the typed outcome of a tool execution. Content carries the
// successful result body; Error is set (and Content may still carry partial
// output) on failure. Results are never exceptions — callers route errors
// back into the provider loop as structured data.
type ToolResult struct {
	Content   string `json:"content"`
	Error     string `json:"error,omitempty"`
	Truncated bool   `json:"truncated,omitempty"`
}

const maxToolResultBytes = 16 * 1024

// TruncateResult caps Content at maxToolResultBytes, appending a suffix
// marker, per §4.6 "Results are bounded in size; oversized outputs are
// truncated with a suffix marker."
func TruncateResult(content string) (string, bool) {
	if len(content) <= maxToolResultBytes {
		return content, false
	}
	return content[:maxToolResultBytes] + "\n... (truncated)", true
}

// Tool is one workspace-scoped capability. Execute receives the envelope
// carried over transit: {id, name, argsBytes} per the tagged-variant design
// note — validation against the schema happens at the envelope-to-variant
// boundary, inside Execute, before any filesystem or process action.
type Tool interface {
	Definitions() []ToolDefinition
	Execute(ctx context.Context, name string, args json.RawMessage) (ToolResult, error)
}

// ToolRegistry holds all registered tools, compiles and caches their JSON
// Schemas, and dispatches execution by name.
type ToolRegistry struct {
	tools []Tool

	schemaMu sync.Mutex
	schemas  map[string]*jsonschema.Schema
}

func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{schemas: make(map[string]*jsonschema.Schema)}
}

func (r *ToolRegistry) Add(t Tool) {
	r.tools = append(r.tools, t)
}

func (r *ToolRegistry) AllDefinitions() []ToolDefinition {
	var defs []ToolDefinition
	for _, t := range r.tools {
		defs = append(defs, t.Definitions()...)
	}
	return defs
}

func (r *ToolRegistry) lookup(name string) (Tool, ToolDefinition, bool) {
	for _, t := range r.tools {
		for _, d := range t.Definitions() {
			if d.Name == name {
				return t, d, true
			}
		}
	}
	return nil, ToolDefinition{}, false
}

// compiledSchema compiles and caches def.Parameters, keyed by tool name.
// Mirrors the registry-wide sync.Map schema-compilation cache pattern used
// for plugin manifests elsewhere in the retrieval pack, scoped per-registry
// instead of package-global since a process may host multiple registries
// (one per variant's built-in + custom tool set).
func (r *ToolRegistry) compiledSchema(def ToolDefinition) (*jsonschema.Schema, error) {
	r.schemaMu.Lock()
	defer r.schemaMu.Unlock()
	if s, ok := r.schemas[def.Name]; ok {
		return s, nil
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(def.Name+".schema.json", toJSONAny(def.Parameters)); err != nil {
		return nil, err
	}
	schema, err := c.Compile(def.Name + ".schema.json")
	if err != nil {
		return nil, err
	}
	r.schemas[def.Name] = schema
	return schema, nil
}

func toJSONAny(raw json.RawMessage) any {
	var v any
	_ = json.Unmarshal(raw, &v)
	return v
}

// Validate checks args against the tool's declared schema without
// executing it. Returns a *ValidationError on failure.
func (r *ToolRegistry) Validate(toolCallID, name string, args json.RawMessage) error {
	_, def, ok := r.lookup(name)
	if !ok {
		return &UnknownToolError{ToolName: name}
	}
	schema, err := r.compiledSchema(def)
	if err != nil {
		return &ValidationError{ToolCallID: toolCallID, ToolName: name, Args: args, Reason: "schema compile: " + err.Error()}
	}
	var decoded any
	if err := json.Unmarshal(args, &decoded); err != nil {
		return &ValidationError{ToolCallID: toolCallID, ToolName: name, Args: args, Reason: "invalid JSON: " + err.Error()}
	}
	if err := schema.Validate(decoded); err != nil {
		return &ValidationError{ToolCallID: toolCallID, ToolName: name, Args: args, Reason: err.Error()}
	}
	return nil
}

// Execute validates then dispatches a tool call by name. Execution is
// sequential per run by contract of the caller (the Agent Orchestrator
// never invokes Execute concurrently for the same variant).
func (r *ToolRegistry) Execute(ctx context.Context, toolCallID, name string, args json.RawMessage) (ToolResult, error) {
	t, def, ok := r.lookup(name)
	if !ok {
		return ToolResult{Error: fmt.Sprintf("unknown tool: %s", name)}, &UnknownToolError{ToolName: name}
	}
	if err := r.Validate(toolCallID, name, args); err != nil {
		return ToolResult{Error: err.Error()}, err
	}
	_ = def
	result, err := t.Execute(ctx, name, args)
	if result.Content != "" && !result.Truncated {
		truncated, wasTruncated := TruncateResult(result.Content)
		result.Content = truncated
		result.Truncated = wasTruncated
	}
	return result, err
}
