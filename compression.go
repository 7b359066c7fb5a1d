package shadow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// MessageCompressor produces LIGHT and HEAVY summaries of a single message
// using a summarizer model, caching each level durably on the message.
// Grounded in the teacher's async-compression-with-cache shape: a
// compressed level, once computed, is never recomputed for the same
// (messageId, level) pair.
type MessageCompressor struct {
	store  Store
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string]map[CompressionLevel]CompressedVersion
}

// NewMessageCompressor creates a compressor backed by store for durable
// persistence of computed levels.
func NewMessageCompressor(store Store, logger *slog.Logger) *MessageCompressor {
	if logger == nil {
		logger = nopLogger
	}
	return &MessageCompressor{
		store:  store,
		logger: logger,
		cache:  make(map[string]map[CompressionLevel]CompressedVersion),
	}
}

// lightSystemPrompt and heavySystemPrompt are the system prompts used to
// invoke the summarizer model for each compression level; the user turn is
// the linearized message itself (see EnsureLevel).
const lightSystemPrompt = `You compress a single conversation message into a 10-14 sentence structured summary. Preserve every tool call with its arguments, file paths, queries, counts, and outcomes. You may embed a code block only if it is 20 lines or fewer. Do not invent details not present in the source message.`

const heavySystemPrompt = `You compress a single conversation message into 4-6 sentences: decisive actions taken, key files or commands involved, and the final status only. Omit intermediate detail.`

// EnsureLevel returns the message's cached summary at the given level,
// computing it via summarizer on first call. Idempotent per
// (messageId, level): a second call returns the stored content without
// re-invoking the summarizer.
func (c *MessageCompressor) EnsureLevel(ctx context.Context, msg ChatMessage, level CompressionLevel, summarizer Provider) (CompressedVersion, error) {
	if level == CompressionNone {
		return CompressedVersion{Content: msg.Content, Tokens: CountMessageTokens(msg, msg.ModelID)}, nil
	}
	if v, ok := msg.CompressedVersions[level]; ok {
		return v, nil
	}

	c.mu.Lock()
	if levels, ok := c.cache[msg.ID]; ok {
		if v, ok := levels[level]; ok {
			c.mu.Unlock()
			return v, nil
		}
	}
	c.mu.Unlock()

	systemPrompt := lightSystemPrompt
	if level == CompressionHeavy {
		systemPrompt = heavySystemPrompt
	}

	source := LinearizeMessage(msg)
	req := ChatRequest{Messages: []ChatMessage{
		{Role: RoleSystem, Content: systemPrompt},
		{Role: RoleUser, Content: source},
	}}

	resp, err := summarizer.Chat(ctx, req)
	if err != nil {
		// On summarizer failure, return the original content and record the
		// attempt; do not retry inline.
		c.logger.Warn("message compression failed, falling back to original content",
			"message_id", msg.ID, "level", level, "error", err)
		return CompressedVersion{Content: msg.Content, Tokens: CountMessageTokens(msg, msg.ModelID), CompressedAt: NowUnix()}, nil
	}

	v := CompressedVersion{
		Content:      resp.Content,
		Tokens:       CountTokens(resp.Content, msg.ModelID),
		CompressedAt: NowUnix(),
	}

	c.mu.Lock()
	if c.cache[msg.ID] == nil {
		c.cache[msg.ID] = make(map[CompressionLevel]CompressedVersion)
	}
	c.cache[msg.ID][level] = v
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.PersistCompressedVersion(ctx, msg.ID, level, v); err != nil {
			return v, &PersistenceError{Op: fmt.Sprintf("persist compressed version %s/%s", msg.ID, level), Cause: err}
		}
	}

	return v, nil
}
