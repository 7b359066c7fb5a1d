// Package workspace implements the closed set of tools the Agent
// Orchestrator's Tool Registry dispatches against a Variant's cloned-repo
// workspace (§4.6). Grounded on oasis/tools/file (read/write/delete, atomic
// write, parent-dir creation) and oasis/tools/shell (sandboxed terminal
// execution, timeout, output truncation, blocklist), generalized from a
// flat five/one-tool surface to Shadow's ten-tool contract and from a
// string-keyed result to the shared shadow.ToolResult envelope.
package workspace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	shadow "github.com/shadowhq/shadow"
)

// Searcher performs semantic search against a repository's indexed
// namespace, backing the codebase_search tool. Implemented by the index
// package's qdrant-backed store; left nil in configurations where
// background indexing is disabled, in which case codebase_search returns a
// structured error rather than panicking.
type Searcher interface {
	Search(ctx context.Context, repoFullName, query string, dirs []string, topK int) ([]Snippet, error)
}

// Snippet is one semantic-search hit.
type Snippet struct {
	File  string
	Span  string
	Score float32
	Text  string
}

// Todo is one entry of the per-variant todo list maintained by todo_write.
type Todo struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	Status  string `json:"status"` // pending|in_progress|completed|cancelled
}

const (
	maxReadBytes     = 64 * 1024
	maxListEntries   = 500
	maxSearchResults = 50
	maxGrepResults   = 100
	defaultCmdTimeout = 30 * time.Second
	maxCmdTimeout     = 300 * time.Second
)

// Tools is the Variant-scoped implementation of shadow.Tool exposing every
// built-in tool name. One instance is constructed per Variant, bound to its
// workspace path, so file ops can never cross variants and the todo list is
// naturally per-run. Background terminal commands are started and not
// tracked afterwards.
type Tools struct {
	workspacePath string
	repoFullName  string
	searcher      Searcher

	mu    sync.Mutex
	todos []Todo
}

// Option configures Tools.
type Option func(*Tools)

// WithSearcher wires the codebase_search tool to a semantic index.
func WithSearcher(s Searcher) Option {
	return func(t *Tools) { t.searcher = s }
}

// New creates the workspace tool set rooted at workspacePath for the
// repository repoFullName (used to scope codebase_search's namespace).
func New(workspacePath, repoFullName string, opts ...Option) *Tools {
	t := &Tools{workspacePath: workspacePath, repoFullName: repoFullName}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tools) Definitions() []shadow.ToolDefinition {
	return []shadow.ToolDefinition{
		{
			Name:        "read_file",
			Description: "Read a slice of a file with 1-indexed line numbers.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"target_file":{"type":"string"},"should_read_entire_file":{"type":"boolean"},"start_line":{"type":"integer"},"end_line":{"type":"integer"}},"required":["target_file","should_read_entire_file"]}`),
		},
		{
			Name:        "edit_file",
			Description: "Create or overwrite a file's full contents, creating parent directories as needed.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"target_file":{"type":"string"},"code_edit":{"type":"string"},"instructions":{"type":"string"}},"required":["target_file","code_edit"]}`),
		},
		{
			Name:        "search_replace",
			Description: "Replace one exact, unambiguous occurrence of old_string with new_string in a file.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"file_path":{"type":"string"},"old_string":{"type":"string"},"new_string":{"type":"string"}},"required":["file_path","old_string","new_string"]}`),
		},
		{
			Name:        "list_dir",
			Description: "List entries of a workspace directory, annotated [file]/[dir].",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"relative_workspace_path":{"type":"string"}},"required":["relative_workspace_path"]}`),
		},
		{
			Name:        "file_search",
			Description: "Fuzzy filename search, capped results.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"query":{"type":"string"}},"required":["query"]}`),
		},
		{
			Name:        "grep_search",
			Description: "Regex text search across the workspace, capped results.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"query":{"type":"string"},"include_pattern":{"type":"string"},"exclude_pattern":{"type":"string"},"case_sensitive":{"type":"boolean"}},"required":["query"]}`),
		},
		{
			Name:        "codebase_search",
			Description: "Semantic search against the indexed repository namespace; returns top-k snippets with file, span, and score.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"query":{"type":"string"},"target_directories":{"type":"array","items":{"type":"string"}}},"required":["query"]}`),
		},
		{
			Name:        "run_terminal_cmd",
			Description: "Execute a command inside the workspace sandbox with a hard timeout.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"command":{"type":"string"},"is_background":{"type":"boolean"}},"required":["command"]}`),
		},
		{
			Name:        "delete_file",
			Description: "Idempotently delete a file from the workspace.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"target_file":{"type":"string"}},"required":["target_file"]}`),
		},
		{
			Name:        "todo_write",
			Description: "Replace or merge the task's todo list.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"merge":{"type":"boolean"},"todos":{"type":"array","items":{"type":"object"}}},"required":["todos"]}`),
		},
	}
}

func (t *Tools) Execute(ctx context.Context, name string, args json.RawMessage) (shadow.ToolResult, error) {
	switch name {
	case "read_file":
		return t.readFile(args)
	case "edit_file":
		return t.editFile(args)
	case "search_replace":
		return t.searchReplace(args)
	case "list_dir":
		return t.listDir(args)
	case "file_search":
		return t.fileSearch(args)
	case "grep_search":
		return t.grepSearch(args)
	case "codebase_search":
		return t.codebaseSearch(ctx, args)
	case "run_terminal_cmd":
		return t.runTerminalCmd(ctx, args)
	case "delete_file":
		return t.deleteFile(args)
	case "todo_write":
		return t.todoWrite(args)
	default:
		return shadow.ToolResult{}, &shadow.UnknownToolError{ToolName: name}
	}
}

// resolve confines path to the workspace root, rejecting absolute paths and
// traversal per §4.6 "paths ... must not escape it".
func (t *Tools) resolve(path string) (string, error) {
	if path == "" {
		path = "."
	}
	if filepath.IsAbs(path) {
		return "", &shadow.ToolExecutionError{ToolName: "workspace", Cause: fmt.Errorf("absolute paths not allowed: %s", path)}
	}
	cleaned := filepath.Clean(filepath.Join(t.workspacePath, path))
	root := filepath.Clean(t.workspacePath)
	if cleaned != root && !strings.HasPrefix(cleaned, root+string(filepath.Separator)) {
		return "", &shadow.ToolExecutionError{ToolName: "workspace", Cause: fmt.Errorf("path escapes workspace: %s", path)}
	}
	return cleaned, nil
}

func (t *Tools) readFile(args json.RawMessage) (shadow.ToolResult, error) {
	var p struct {
		TargetFile           string `json:"target_file"`
		ShouldReadEntireFile bool   `json:"should_read_entire_file"`
		StartLine            int    `json:"start_line"`
		EndLine              int    `json:"end_line"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return shadow.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}
	resolved, err := t.resolve(p.TargetFile)
	if err != nil {
		return shadow.ToolResult{Error: err.Error()}, nil
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return shadow.ToolResult{Error: "read error: " + err.Error()}, nil
	}
	lines := strings.Split(string(data), "\n")

	start, end := 1, len(lines)
	if !p.ShouldReadEntireFile {
		if p.StartLine > 0 {
			start = p.StartLine
		}
		if p.EndLine > 0 && p.EndLine < len(lines) {
			end = p.EndLine
		}
	}
	if start < 1 {
		start = 1
	}
	if end > len(lines) {
		end = len(lines)
	}

	var b strings.Builder
	if start > 1 {
		fmt.Fprintf(&b, "... (lines 1-%d omitted)\n", start-1)
	}
	for i := start; i <= end && i <= len(lines); i++ {
		fmt.Fprintf(&b, "%d\t%s\n", i, lines[i-1])
	}
	if end < len(lines) {
		fmt.Fprintf(&b, "... (lines %d-%d omitted)\n", end+1, len(lines))
	}
	out := b.String()
	if len(out) > maxReadBytes {
		out = out[:maxReadBytes] + "\n... (truncated)"
	}
	return shadow.ToolResult{Content: out}, nil
}

func (t *Tools) editFile(args json.RawMessage) (shadow.ToolResult, error) {
	var p struct {
		TargetFile string `json:"target_file"`
		CodeEdit   string `json:"code_edit"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return shadow.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}
	resolved, err := t.resolve(p.TargetFile)
	if err != nil {
		return shadow.ToolResult{Error: err.Error()}, nil
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return shadow.ToolResult{Error: "mkdir error: " + err.Error()}, nil
	}
	tmp := resolved + ".tmp-" + shadow.NewID()
	if err := os.WriteFile(tmp, []byte(p.CodeEdit), 0o644); err != nil {
		return shadow.ToolResult{Error: "write error: " + err.Error()}, nil
	}
	if err := os.Rename(tmp, resolved); err != nil {
		_ = os.Remove(tmp)
		return shadow.ToolResult{Error: "rename error: " + err.Error()}, nil
	}
	return shadow.ToolResult{Content: fmt.Sprintf("wrote %d bytes to %s", len(p.CodeEdit), p.TargetFile)}, nil
}

func (t *Tools) searchReplace(args json.RawMessage) (shadow.ToolResult, error) {
	var p struct {
		FilePath  string `json:"file_path"`
		OldString string `json:"old_string"`
		NewString string `json:"new_string"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return shadow.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}
	resolved, err := t.resolve(p.FilePath)
	if err != nil {
		return shadow.ToolResult{Error: err.Error()}, nil
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return shadow.ToolResult{Error: "read error: " + err.Error()}, nil
	}
	content := string(data)
	count := strings.Count(content, p.OldString)
	if count == 0 {
		return shadow.ToolResult{Error: "old_string not found"}, nil
	}
	if count > 1 {
		return shadow.ToolResult{Error: fmt.Sprintf("old_string is ambiguous: %d occurrences", count)}, nil
	}
	updated := strings.Replace(content, p.OldString, p.NewString, 1)
	if err := os.WriteFile(resolved, []byte(updated), 0o644); err != nil {
		return shadow.ToolResult{Error: "write error: " + err.Error()}, nil
	}
	return shadow.ToolResult{Content: fmt.Sprintf("replaced 1 occurrence in %s", p.FilePath)}, nil
}

func (t *Tools) listDir(args json.RawMessage) (shadow.ToolResult, error) {
	var p struct {
		RelativeWorkspacePath string `json:"relative_workspace_path"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return shadow.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}
	resolved, err := t.resolve(p.RelativeWorkspacePath)
	if err != nil {
		return shadow.ToolResult{Error: err.Error()}, nil
	}
	entries, err := os.ReadDir(resolved)
	if err != nil {
		return shadow.ToolResult{Error: "list error: " + err.Error()}, nil
	}
	var b strings.Builder
	for i, e := range entries {
		if i >= maxListEntries {
			fmt.Fprintf(&b, "... (%d more entries omitted)\n", len(entries)-maxListEntries)
			break
		}
		kind := "[file]"
		if e.IsDir() {
			kind = "[dir]"
		}
		fmt.Fprintf(&b, "%s %s\n", kind, e.Name())
	}
	return shadow.ToolResult{Content: b.String()}, nil
}

func (t *Tools) fileSearch(args json.RawMessage) (shadow.ToolResult, error) {
	var p struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return shadow.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}
	query := strings.ToLower(p.Query)
	var matches []string
	_ = filepath.WalkDir(t.workspacePath, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, _ := filepath.Rel(t.workspacePath, path)
		if strings.Contains(strings.ToLower(rel), query) {
			matches = append(matches, rel)
		}
		if len(matches) >= maxSearchResults {
			return filepath.SkipAll
		}
		return nil
	})
	sort.Strings(matches)
	return shadow.ToolResult{Content: strings.Join(matches, "\n")}, nil
}

func (t *Tools) grepSearch(args json.RawMessage) (shadow.ToolResult, error) {
	var p struct {
		Query          string `json:"query"`
		IncludePattern string `json:"include_pattern"`
		ExcludePattern string `json:"exclude_pattern"`
		CaseSensitive  bool   `json:"case_sensitive"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return shadow.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}
	flags := "(?i)"
	if p.CaseSensitive {
		flags = ""
	}
	re, err := regexp.Compile(flags + p.Query)
	if err != nil {
		return shadow.ToolResult{Error: "invalid regex: " + err.Error()}, nil
	}
	var include, exclude *regexp.Regexp
	if p.IncludePattern != "" {
		include, _ = regexp.Compile(p.IncludePattern)
	}
	if p.ExcludePattern != "" {
		exclude, _ = regexp.Compile(p.ExcludePattern)
	}

	var b strings.Builder
	count := 0
	_ = filepath.WalkDir(t.workspacePath, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || count >= maxGrepResults {
			return nil
		}
		rel, _ := filepath.Rel(t.workspacePath, path)
		if include != nil && !include.MatchString(rel) {
			return nil
		}
		if exclude != nil && exclude.MatchString(rel) {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		for i, line := range strings.Split(string(data), "\n") {
			if count >= maxGrepResults {
				return filepath.SkipAll
			}
			if re.MatchString(line) {
				fmt.Fprintf(&b, "%s:%d: %s\n", rel, i+1, line)
				count++
			}
		}
		return nil
	})
	return shadow.ToolResult{Content: b.String()}, nil
}

func (t *Tools) codebaseSearch(ctx context.Context, args json.RawMessage) (shadow.ToolResult, error) {
	var p struct {
		Query             string   `json:"query"`
		TargetDirectories []string `json:"target_directories"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return shadow.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}
	if t.searcher == nil {
		return shadow.ToolResult{Error: "codebase_search unavailable: repository not indexed"}, nil
	}
	hits, err := t.searcher.Search(ctx, t.repoFullName, p.Query, p.TargetDirectories, 10)
	if err != nil {
		return shadow.ToolResult{Error: "search error: " + err.Error()}, nil
	}
	var b strings.Builder
	for _, h := range hits {
		fmt.Fprintf(&b, "%s (%s, score %.3f)\n%s\n\n", h.File, h.Span, h.Score, h.Text)
	}
	return shadow.ToolResult{Content: b.String()}, nil
}

func (t *Tools) runTerminalCmd(ctx context.Context, args json.RawMessage) (shadow.ToolResult, error) {
	var p struct {
		Command      string `json:"command"`
		IsBackground bool   `json:"is_background"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return shadow.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}
	if p.Command == "" {
		return shadow.ToolResult{Error: "command is required"}, nil
	}

	lower := strings.ToLower(p.Command)
	for _, blocked := range []string{"rm -rf /", "sudo ", "mkfs", "> /dev/", "dd if="} {
		if strings.Contains(lower, blocked) {
			return shadow.ToolResult{Error: "command blocked for safety: " + blocked}, nil
		}
	}

	if p.IsBackground {
		cmd := exec.Command("sh", "-c", p.Command)
		cmd.Dir = t.workspacePath
		if err := cmd.Start(); err != nil {
			return shadow.ToolResult{Error: "start error: " + err.Error()}, nil
		}
		go cmd.Wait() //nolint:errcheck // fire-and-forget background process
		return shadow.ToolResult{Content: fmt.Sprintf("started in background (pid %d)", cmd.Process.Pid)}, nil
	}

	cmdCtx, cancel := context.WithTimeout(ctx, defaultCmdTimeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, "sh", "-c", p.Command)
	cmd.Dir = t.workspacePath
	cmd.Cancel = func() error { return cmd.Process.Kill() } // SIGKILL on cancellation, per §5

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()

	output := stdout.String()
	if stderr.Len() > 0 {
		if output != "" {
			output += "\n--- stderr ---\n"
		}
		output += stderr.String()
	}
	content, truncated := shadow.TruncateResult(output)

	if ctx.Err() != nil {
		return shadow.ToolResult{Content: content, Error: "cancelled", Truncated: truncated}, nil
	}
	if cmdCtx.Err() == context.DeadlineExceeded {
		return shadow.ToolResult{Content: content, Error: fmt.Sprintf("command timed out after %s", defaultCmdTimeout), Truncated: truncated}, nil
	}
	if err != nil {
		return shadow.ToolResult{Content: content, Error: "exit: " + err.Error(), Truncated: truncated}, nil
	}
	if content == "" {
		content = "(no output)"
	}
	return shadow.ToolResult{Content: content, Truncated: truncated}, nil
}

func (t *Tools) deleteFile(args json.RawMessage) (shadow.ToolResult, error) {
	var p struct {
		TargetFile string `json:"target_file"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return shadow.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}
	resolved, err := t.resolve(p.TargetFile)
	if err != nil {
		return shadow.ToolResult{Error: err.Error()}, nil
	}
	if rmErr := os.Remove(resolved); rmErr != nil && !os.IsNotExist(rmErr) {
		return shadow.ToolResult{Error: "delete error: " + rmErr.Error()}, nil
	}
	return shadow.ToolResult{Content: fmt.Sprintf("deleted %s", p.TargetFile)}, nil
}

func (t *Tools) todoWrite(args json.RawMessage) (shadow.ToolResult, error) {
	var p struct {
		Merge bool   `json:"merge"`
		Todos []Todo `json:"todos"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return shadow.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !p.Merge {
		t.todos = p.Todos
	} else {
		byID := make(map[string]int, len(t.todos))
		for i, td := range t.todos {
			byID[td.ID] = i
		}
		for _, td := range p.Todos {
			if i, ok := byID[td.ID]; ok {
				t.todos[i] = td
			} else {
				t.todos = append(t.todos, td)
				byID[td.ID] = len(t.todos) - 1
			}
		}
	}
	out, _ := json.Marshal(t.todos)
	return shadow.ToolResult{Content: string(out)}, nil
}

// Todos returns a snapshot of the current todo list, used by the
// Orchestrator to emit the realtime channel's todo-update event (§6).
func (t *Tools) Todos() []Todo {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Todo, len(t.todos))
	copy(out, t.todos)
	return out
}

var _ shadow.Tool = (*Tools)(nil)
