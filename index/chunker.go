package index

import (
	"strconv"
	"strings"
)

// ChunkConfig controls how a source file is split before embedding.
// Grounded on the line-count-bounded split used by haasonsaas-nexus's
// RecursiveCharacterTextSplitter, adapted from byte-budget prose chunking to
// line-budget source chunking so each chunk's span can be reported as a
// 1-indexed line range for codebase_search results.
type ChunkConfig struct {
	MaxLines     int
	OverlapLines int
	MinLines     int
}

// DefaultChunkConfig returns a line budget suited to source files: 60-line
// chunks with an 8-line overlap, keeping chunks with at least 3 non-blank
// lines.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{MaxLines: 60, OverlapLines: 8, MinLines: 3}
}

// Chunk is one indexable slice of a file, keyed by its 1-indexed line span.
type Chunk struct {
	File      string
	StartLine int
	EndLine   int
	Text      string
}

// Span renders the chunk's line range as the "L<start>-L<end>" form
// tools/workspace.Snippet.Span expects.
func (c Chunk) Span() string {
	if c.StartLine == c.EndLine {
		return "L" + strconv.Itoa(c.StartLine)
	}
	return "L" + strconv.Itoa(c.StartLine) + "-L" + strconv.Itoa(c.EndLine)
}

// ChunkFile splits content into overlapping line-bounded chunks. Any chunk
// with fewer than MinLines lines of non-whitespace content is dropped, the
// same "too small to be useful" filter the grounding splitter applies to
// character chunks.
func ChunkFile(file, content string, cfg ChunkConfig) []Chunk {
	if cfg.MaxLines <= 0 {
		cfg = DefaultChunkConfig()
	}
	lines := strings.Split(content, "\n")
	if len(lines) == 0 {
		return nil
	}

	step := cfg.MaxLines - cfg.OverlapLines
	if step <= 0 {
		step = cfg.MaxLines
	}

	var chunks []Chunk
	for start := 0; start < len(lines); start += step {
		end := start + cfg.MaxLines
		if end > len(lines) {
			end = len(lines)
		}
		slice := lines[start:end]
		text := strings.Join(slice, "\n")
		if nonBlankLineCount(slice) < cfg.MinLines {
			if end == len(lines) {
				break
			}
			continue
		}
		chunks = append(chunks, Chunk{
			File:      file,
			StartLine: start + 1,
			EndLine:   end,
			Text:      text,
		})
		if end == len(lines) {
			break
		}
	}
	return chunks
}

func nonBlankLineCount(lines []string) int {
	n := 0
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			n++
		}
	}
	return n
}
