package index

import (
	"context"
	"strings"
	"testing"

	shadow "github.com/shadowhq/shadow"
)

type fakeProvider struct {
	response shadow.ChatResponse
	err      error
	lastReq  shadow.ChatRequest
}

func (f *fakeProvider) Name() string { return "fake-provider" }

func (f *fakeProvider) Chat(ctx context.Context, req shadow.ChatRequest) (shadow.ChatResponse, error) {
	f.lastReq = req
	if f.err != nil {
		return shadow.ChatResponse{}, f.err
	}
	return f.response, nil
}

func TestWikiGenerator_GenerateWiki_ReturnsSummary(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "main.go", "package main\n")
	writeTestFile(t, dir, "internal/server.go", "package internal\n")

	provider := &fakeProvider{response: shadow.ChatResponse{Content: "  This service runs an HTTP API.  "}}
	gen := NewWikiGenerator(provider, "gpt-test")

	result, err := gen.GenerateWiki(context.Background(), "acme/widgets", dir)
	if err != nil {
		t.Fatalf("GenerateWiki returned error: %v", err)
	}
	if result.RepoFullName != "acme/widgets" {
		t.Errorf("unexpected repo: %s", result.RepoFullName)
	}
	if result.Summary != "This service runs an HTTP API." {
		t.Errorf("expected trimmed summary, got %q", result.Summary)
	}
	if result.GeneratedAt == 0 {
		t.Error("expected a non-zero GeneratedAt timestamp")
	}
	if !strings.Contains(provider.lastReq.Messages[0].Content, "main.go") {
		t.Error("expected the prompt to mention the workspace's file listing")
	}
}

func TestWikiGenerator_GenerateWiki_ProviderErrorPropagates(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "main.go", "package main\n")

	provider := &fakeProvider{err: errFakeEmbed}
	gen := NewWikiGenerator(provider, "gpt-test")

	if _, err := gen.GenerateWiki(context.Background(), "acme/widgets", dir); err == nil {
		t.Fatal("expected provider error to propagate")
	}
}

func TestBuildFileTree_SkipsIgnoredDirsAndExtensions(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "main.go", "package main\n")
	writeTestFile(t, dir, "vendor/lib.go", "package lib\n")
	writeTestFile(t, dir, "assets/logo.png", "x")

	files, err := buildFileTree(dir)
	if err != nil {
		t.Fatalf("buildFileTree returned error: %v", err)
	}
	for _, f := range files {
		if strings.HasPrefix(f, "vendor/") {
			t.Errorf("expected vendor/ to be skipped, found %s", f)
		}
		if strings.HasSuffix(f, ".png") {
			t.Errorf("expected .png to be skipped, found %s", f)
		}
	}
	if len(files) != 1 || files[0] != "main.go" {
		t.Errorf("expected only main.go, got %v", files)
	}
}
