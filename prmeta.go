package shadow

import (
	"context"
	"encoding/json"
	"fmt"
)

// defaultPRMetadataGenerator invokes a dedicated model call to produce PR
// title/description/draft status from a run's diff and commit history.
// External PR creation (the actual GitHub API call) is outside this core
// per §1; this only produces the PullRequestSnapshot to be recorded.
type defaultPRMetadataGenerator struct {
	provider Provider
}

func NewPRMetadataGenerator(provider Provider) PRMetadataGenerator {
	return &defaultPRMetadataGenerator{provider: provider}
}

const prMetadataSystemPrompt = `You write pull request metadata for a completed coding agent run. Given the task title, git diff, and commit messages, respond with a JSON object: {"title": string, "description": string, "isDraft": bool}. The title is a concise imperative summary. The description explains what changed and why, in markdown. Mark isDraft true only if the task was not fully completed.`

func (g *defaultPRMetadataGenerator) Generate(ctx context.Context, req PRMetadataRequest) (PullRequestSnapshot, error) {
	user := fmt.Sprintf("Task: %s\n\nCompleted: %v\n\nCommit messages:\n%s\n\nDiff:\n%s",
		req.TaskTitle, req.WasTaskCompleted, joinLines(req.CommitMessages), req.GitDiff)

	resp, err := g.provider.Chat(ctx, ChatRequest{Messages: []ChatMessage{
		{Role: RoleSystem, Content: prMetadataSystemPrompt},
		{Role: RoleUser, Content: user},
	}})
	if err != nil {
		return PullRequestSnapshot{}, &ProviderTransportError{Provider: g.provider.Name(), Cause: err}
	}

	var parsed struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		IsDraft     bool   `json:"isDraft"`
	}
	if err := json.Unmarshal([]byte(resp.Content), &parsed); err != nil {
		// Fall back to treating the raw content as the description when the
		// model does not return valid JSON.
		return PullRequestSnapshot{Title: req.TaskTitle, Description: resp.Content, IsDraft: !req.WasTaskCompleted}, nil
	}

	return PullRequestSnapshot{
		Title:       parsed.Title,
		Description: parsed.Description,
		IsDraft:     parsed.IsDraft,
	}, nil
}

func joinLines(lines []string) string {
	out := ""
	for _, l := range lines {
		out += "- " + l + "\n"
	}
	return out
}
