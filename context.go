package shadow

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// ContextStats reports the effect of compression on a built context.
type ContextStats struct {
	UncompressedTokens int
	CompressedTokens   int
	Savings            int
}

// BuiltContext is the result of buildOptimalContext: the assembled prompt
// messages and the statistics describing what compression, if any, applied.
type BuiltContext struct {
	Messages []ChatMessage
	Stats    ContextStats
}

// ContextManager selects and compresses persisted messages into the final
// prompt window for one model call.
type ContextManager struct {
	store      Store
	compressor *MessageCompressor
	logger     *slog.Logger
}

func NewContextManager(store Store, compressor *MessageCompressor, logger *slog.Logger) *ContextManager {
	if logger == nil {
		logger = nopLogger
	}
	return &ContextManager{store: store, compressor: compressor, logger: logger}
}

// BuildOptimalContext implements §4.5. modelID is resolved against the
// Model Registry for tokenLimit/compressionThreshold/slidingWindowSize;
// summarizer is the model used to compute LIGHT/HEAVY summaries.
func (cm *ContextManager) BuildOptimalContext(ctx context.Context, taskID string, modelID string, summarizer Provider) (BuiltContext, error) {
	desc, err := ResolveModel(modelID)
	if err != nil {
		return BuiltContext{}, err
	}

	all, err := cm.store.GetMessages(ctx, taskID, 0)
	if err != nil {
		return BuiltContext{}, &PersistenceError{Op: "GetMessages", Cause: err}
	}

	// Load all USER|ASSISTANT|TOOL messages ordered by (sequence, createdAt).
	msgs := make([]ChatMessage, 0, len(all))
	for _, m := range all {
		if m.Role == RoleUser || m.Role == RoleAssistant || m.Role == RoleTool {
			msgs = append(msgs, m)
		}
	}
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].Sequence != msgs[j].Sequence {
			return msgs[i].Sequence < msgs[j].Sequence
		}
		return msgs[i].CreatedAt < msgs[j].CreatedAt
	})

	if len(msgs) == 0 {
		return BuiltContext{Messages: nil, Stats: ContextStats{}}, nil
	}

	target := desc.CompressionTarget()
	uncompressedTotal := totalTokens(msgs, modelID)

	if uncompressedTotal <= target {
		return BuiltContext{Messages: msgs, Stats: ContextStats{UncompressedTokens: uncompressedTotal, CompressedTokens: uncompressedTotal}}, nil
	}

	window := desc.SlidingWindowSize
	if window > len(msgs) {
		window = len(msgs)
	}
	recent := msgs[len(msgs)-window:]
	older := msgs[:len(msgs)-window]

	recentTokens := totalTokens(recent, modelID)
	if recentTokens > target {
		cm.logger.Warn("sliding window alone exceeds compression target", "task_id", taskID, "window_tokens", recentTokens, "target", target)
		// recent is never compressed or dropped; the caller decides whether to
		// still issue the call with just the window (ErrContextOverflow is
		// non-fatal, the BuiltContext is valid) or reject the request.
		built := BuiltContext{Messages: recent, Stats: ContextStats{UncompressedTokens: uncompressedTotal, CompressedTokens: recentTokens}}
		return built, &ErrContextOverflow{TaskID: taskID, WindowTokens: recentTokens, Target: target}
	}

	// Apply compression levels in order [LIGHT, HEAVY] to older. Between
	// levels, recount total tokens including recent; stop as soon as total
	// <= target.
	compressedOlder := append([]ChatMessage(nil), older...)
	for _, level := range []CompressionLevel{CompressionLight, CompressionHeavy} {
		total := totalTokens(compressedOlder, modelID) + recentTokens
		if total <= target {
			break
		}
		compressedOlder = cm.compressAll(ctx, compressedOlder, level, summarizer)
	}

	total := totalTokens(compressedOlder, modelID) + recentTokens
	if total > target {
		// If still over target after HEAVY, drop oldest messages from older
		// one by one until total <= target. recent is never dropped.
		for len(compressedOlder) > 0 {
			total = totalTokens(compressedOlder, modelID) + recentTokens
			if total <= target {
				break
			}
			compressedOlder = compressedOlder[1:]
		}
	}

	final := append(compressedOlder, recent...)
	compressedTotal := totalTokens(final, modelID)

	return BuiltContext{
		Messages: final,
		Stats: ContextStats{
			UncompressedTokens: uncompressedTotal,
			CompressedTokens:   compressedTotal,
			Savings:            uncompressedTotal - compressedTotal,
		},
	}, nil
}

// compressAll applies level to every message in msgs, replacing Content
// with the compressed summary for counting and prompt purposes. Ordering is
// stable: messages retain their original sequence. Compression is
// best-effort; a message that fails to compress keeps its original content
// so dropping (the next stage) can still proceed.
func (cm *ContextManager) compressAll(ctx context.Context, msgs []ChatMessage, level CompressionLevel, summarizer Provider) []ChatMessage {
	out := make([]ChatMessage, len(msgs))
	for i, m := range msgs {
		v, err := cm.compressor.EnsureLevel(ctx, m, level, summarizer)
		if err != nil {
			out[i] = m
			continue
		}
		compressed := m
		compressed.Content = v.Content
		compressed.ActiveCompressionLevel = level
		if compressed.CompressedVersions == nil {
			compressed.CompressedVersions = map[CompressionLevel]CompressedVersion{}
		}
		compressed.CompressedVersions[level] = v
		out[i] = compressed
	}
	return out
}

func totalTokens(msgs []ChatMessage, modelID string) int {
	total := 0
	for _, m := range msgs {
		total += CountMessageTokens(m, modelID)
	}
	return total
}

// LinearizeMessage flattens a ChatMessage into plain text suitable for the
// provider. Structured parts for assistant messages are linearized: text
// deltas joined, each tool-call rendered as "[Tool Call: name] args=...",
// each tool-result rendered as "[Tool Result: name] ...". TOOL messages are
// folded into the assistant role with the same linearization.
//
// This is done exclusively for context estimation and prompt construction;
// it does not mutate persisted parts, and the linearized form must never be
// written back into storage.
func LinearizeMessage(m ChatMessage) string {
	if len(m.Parts) == 0 {
		return m.Content
	}

	var b strings.Builder
	toolNames := map[string]string{}
	for _, p := range m.Parts {
		switch p.Kind {
		case PartTextDelta, PartReasoning:
			b.WriteString(p.Text)
		case PartToolCallStreamStart:
			toolNames[p.ToolCallID] = p.ToolName
		case PartToolCall:
			toolNames[p.ToolCallID] = p.ToolName
			fmt.Fprintf(&b, "\n[Tool Call: %s] args=%s\n", p.ToolName, string(p.Args))
		case PartToolResult:
			name := toolNames[p.ToolCallID]
			content := ""
			if p.ToolResult != nil {
				content = p.ToolResult.Content
				if p.ToolResult.Error != "" {
					content = "error: " + p.ToolResult.Error
				}
			}
			fmt.Fprintf(&b, "[Tool Result: %s] %s\n", name, content)
		}
	}
	return b.String()
}
