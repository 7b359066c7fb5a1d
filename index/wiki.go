package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	shadow "github.com/shadowhq/shadow"
)

const (
	maxWikiFilesListed = 400
	maxWikiPromptBytes = 24 * 1024
)

// WikiGenerator implements shadow.WikiGenerator (background.go): it builds
// a directory/file map of the workspace and asks a Provider to summarize
// the codebase from it. Grounded on the same walk-and-filter approach as
// Indexer, reusing skipDirs/skipExts so the wiki job and the indexing job
// agree on what counts as source.
type WikiGenerator struct {
	provider shadow.Provider
	model    string
}

// NewWikiGenerator builds a WikiGenerator that calls provider's Chat method
// with model to synthesize the summary.
func NewWikiGenerator(provider shadow.Provider, model string) *WikiGenerator {
	return &WikiGenerator{provider: provider, model: model}
}

// GenerateWiki implements shadow.WikiGenerator.
func (w *WikiGenerator) GenerateWiki(ctx context.Context, repoFullName, workspacePath string) (shadow.CodebaseUnderstanding, error) {
	tree, err := buildFileTree(workspacePath)
	if err != nil {
		return shadow.CodebaseUnderstanding{}, fmt.Errorf("build file tree: %w", err)
	}

	prompt := wikiPrompt(repoFullName, tree)
	resp, err := w.provider.Chat(ctx, shadow.ChatRequest{
		Model: w.model,
		Messages: []shadow.ChatMessage{
			{Role: shadow.RoleUser, Content: prompt},
		},
	})
	if err != nil {
		return shadow.CodebaseUnderstanding{}, fmt.Errorf("summarize codebase: %w", err)
	}

	return shadow.CodebaseUnderstanding{
		RepoFullName: repoFullName,
		Summary:      strings.TrimSpace(resp.Content),
		GeneratedAt:  shadow.NowUnix(),
	}, nil
}

// buildFileTree walks workspacePath and returns a sorted list of relative
// file paths, reusing the indexing job's skip rules so directories like
// .git and node_modules never reach the prompt.
func buildFileTree(workspacePath string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(workspacePath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if skipExts[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		rel, err := filepath.Rel(workspacePath, path)
		if err != nil {
			rel = path
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	if len(files) > maxWikiFilesListed {
		files = files[:maxWikiFilesListed]
	}
	return files, nil
}

// wikiPrompt renders the file tree into a summarization prompt, truncated to
// maxWikiPromptBytes so a very large repository can't blow the provider's
// context window. No file contents are included, only the listing.
func wikiPrompt(repoFullName string, files []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Repository: %s\n\n", repoFullName)
	b.WriteString("File listing:\n")
	for _, f := range files {
		b.WriteString("- " + f + "\n")
		if b.Len() > maxWikiPromptBytes {
			break
		}
	}
	b.WriteString("\nWrite a concise technical summary of this codebase: its purpose, ")
	b.WriteString("main components, and how they fit together. Base the summary only on ")
	b.WriteString("the file listing above; do not invent functionality it does not imply.")
	out := b.String()
	if len(out) > maxWikiPromptBytes {
		out = out[:maxWikiPromptBytes]
	}
	return out
}

var _ shadow.WikiGenerator = (*WikiGenerator)(nil)
