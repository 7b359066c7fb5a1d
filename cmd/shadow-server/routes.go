package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	shadow "github.com/shadowhq/shadow"
	"github.com/shadowhq/shadow/index"
)

// errNoVectorStore is returned when the indexing REST endpoints are hit
// without SHADOW_QDRANT_DSN configured, so no VectorStore was wired.
var errNoVectorStore = errors.New("no vector store configured")

// registerRoutes mounts §6's HTTP surface on mux using Go's pattern-based
// ServeMux (method + path wildcards), the same routing style
// oasis/cmd/sandbox/main.go uses for its smaller HTTP surface.
func registerRoutes(mux *http.ServeMux, a *app) {
	mux.HandleFunc("POST /api/tasks/{taskId}/initiate", a.handleInitiateTask)
	mux.HandleFunc("GET /api/tasks/{taskId}", a.handleGetTask)
	mux.HandleFunc("GET /api/tasks/{taskId}/{variantId}/messages", a.handleGetMessages)
	mux.HandleFunc("GET /api/tasks/{taskId}/files/tree", a.handleFileTree)
	mux.HandleFunc("GET /api/tasks/{taskId}/files/content", a.handleFileContent)
	mux.HandleFunc("GET /api/context/usage/{taskId}", a.handleContextUsage)
	mux.HandleFunc("POST /api/indexing/index", a.handleIndexRepository)
	mux.HandleFunc("POST /api/indexing/search", a.handleIndexSearch)
	mux.HandleFunc("DELETE /api/indexing/clear-namespace", a.handleClearNamespace)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeAPIError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// statusForError maps the §7 error taxonomy onto HTTP status codes for the
// REST surface; the realtime channel and webhook have their own mappings.
func statusForError(err error) int {
	switch err.(type) {
	case *shadow.ValidationError, *shadow.UnknownModelError:
		return http.StatusBadRequest
	case *shadow.PersistenceError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// --- POST /api/tasks/{taskId}/initiate ---

type initiateTaskRequest struct {
	Message string   `json:"message"`
	Models  []string `json:"models"`
	UserID  string   `json:"userId"`
}

type initiateTaskResponse struct {
	TaskID   string   `json:"taskId"`
	Variants []string `json:"variantIds"`
}

// handleInitiateTask begins workspace preparation and background services
// for an already-registered Task (repository clone/workspace bring-up is an
// external collaborator per §1): it creates one Variant per requested model,
// starts the Background Service Manager's indexing/wiki jobs for the task's
// repository, and, if message is non-empty, kicks off the first run on each
// variant once created.
func (a *app) handleInitiateTask(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("taskId")
	var req initiateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest, err)
		return
	}
	if len(req.Models) == 0 {
		writeAPIError(w, http.StatusBadRequest, &shadow.ValidationError{Reason: "models is required"})
		return
	}

	task, err := a.store.GetTask(r.Context(), taskID)
	if err != nil {
		writeAPIError(w, http.StatusNotFound, err)
		return
	}

	existing, err := a.store.ListVariants(r.Context(), taskID)
	if err != nil {
		writeAPIError(w, statusForError(err), err)
		return
	}
	seq := len(existing)

	var variants []shadow.Variant
	for _, modelID := range req.Models {
		if _, err := shadow.ResolveModel(modelID); err != nil {
			writeAPIError(w, http.StatusBadRequest, err)
			return
		}
		seq++
		v := shadow.Variant{
			ID:            shadow.NewID(),
			TaskID:        taskID,
			ModelID:       modelID,
			Sequence:      seq,
			Status:        shadow.VariantInitializing,
			Init:          shadow.InitPrepareWorkspace,
			WorkspacePath: filepath.Join(os.TempDir(), "shadow-workspaces", taskID, "variant-"+strconv.Itoa(seq)),
			CreatedAt:     shadow.NowUnix(),
			UpdatedAt:     shadow.NowUnix(),
		}
		v.ShadowBranch = shadow.ShadowBranchName(taskID, seq)
		if err := a.store.CreateVariant(r.Context(), v); err != nil {
			writeAPIError(w, statusForError(err), err)
			return
		}
		variants = append(variants, v)
	}

	if a.bg != nil {
		a.bg.StartForTask(context.WithoutCancel(r.Context()), taskID, task.RepoFullName, variants[0].WorkspacePath)
	}

	if req.Message != "" {
		for _, v := range variants {
			go func(v shadow.Variant) {
				_ = a.router.SendMessage(context.WithoutCancel(r.Context()), v, req.Message, v.ModelID)
			}(v)
		}
	}

	ids := make([]string, len(variants))
	for i, v := range variants {
		ids[i] = v.ID
	}
	writeJSON(w, http.StatusAccepted, initiateTaskResponse{TaskID: taskID, Variants: ids})
}

// --- GET /api/tasks/{taskId} ---

type taskSummaryResponse struct {
	Task     shadow.Task      `json:"task"`
	Variants []shadow.Variant `json:"variants"`
}

func (a *app) handleGetTask(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("taskId")
	task, err := a.store.GetTask(r.Context(), taskID)
	if err != nil {
		writeAPIError(w, http.StatusNotFound, err)
		return
	}
	variants, err := a.store.ListVariants(r.Context(), taskID)
	if err != nil {
		writeAPIError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, taskSummaryResponse{Task: task, Variants: variants})
}

// --- GET /api/tasks/{taskId}/{variantId}/messages ---

func (a *app) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("taskId")
	variantID := r.PathValue("variantId")

	all, err := a.store.GetMessages(r.Context(), taskID, 0)
	if err != nil {
		writeAPIError(w, statusForError(err), err)
		return
	}
	filtered := make([]shadow.ChatMessage, 0, len(all))
	for _, m := range all {
		if m.VariantID == variantID {
			filtered = append(filtered, m)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": filtered})
}

// --- GET /api/tasks/{taskId}/files/tree?variantId= ---

type fileTreeEntry struct {
	Path  string `json:"path"`
	IsDir bool   `json:"isDir"`
}

func (a *app) handleFileTree(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("taskId")
	variantID := r.URL.Query().Get("variantId")
	variant, err := a.resolveVariant(r.Context(), taskID, variantID)
	if err != nil {
		writeAPIError(w, http.StatusNotFound, err)
		return
	}

	var entries []fileTreeEntry
	root := filepath.Clean(variant.WorkspacePath)
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || path == root {
			return nil
		}
		name := d.Name()
		if d.IsDir() && (name == ".git" || name == "node_modules" || name == "vendor") {
			return filepath.SkipDir
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		entries = append(entries, fileTreeEntry{Path: rel, IsDir: d.IsDir()})
		return nil
	})
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// --- GET /api/tasks/{taskId}/files/content?path=&variantId= ---

func (a *app) handleFileContent(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("taskId")
	variantID := r.URL.Query().Get("variantId")
	reqPath := r.URL.Query().Get("path")

	variant, err := a.resolveVariant(r.Context(), taskID, variantID)
	if err != nil {
		writeAPIError(w, http.StatusNotFound, err)
		return
	}

	resolved, err := resolveWorkspacePath(variant.WorkspacePath, reqPath)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, err)
		return
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		writeAPIError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"path": reqPath, "content": string(data)})
}

// resolveWorkspacePath confines reqPath to root, mirroring
// tools/workspace.Tools.resolve's absolute-path and traversal rejection.
func resolveWorkspacePath(root, reqPath string) (string, error) {
	if reqPath == "" || filepath.IsAbs(reqPath) {
		return "", &shadow.ValidationError{Reason: "invalid path"}
	}
	root = filepath.Clean(root)
	cleaned := filepath.Clean(filepath.Join(root, reqPath))
	if cleaned != root && !strings.HasPrefix(cleaned, root+string(filepath.Separator)) {
		return "", &shadow.ValidationError{Reason: "path escapes workspace"}
	}
	return cleaned, nil
}

func (a *app) resolveVariant(ctx context.Context, taskID, variantID string) (shadow.Variant, error) {
	if variantID != "" {
		return a.store.GetVariant(ctx, variantID)
	}
	variants, err := a.store.ListVariants(ctx, taskID)
	if err != nil {
		return shadow.Variant{}, err
	}
	if len(variants) == 0 {
		return shadow.Variant{}, &shadow.ValidationError{Reason: "task has no variants"}
	}
	return variants[0], nil
}

// --- GET /api/context/usage/{taskId}?model= ---

type contextUsageResponse struct {
	TaskID                string           `json:"taskId"`
	Model                 string           `json:"model"`
	TotalMessages         int              `json:"totalMessages"`
	TotalTokens           int              `json:"totalTokens"`
	TokenLimit            int              `json:"tokenLimit"`
	CompressionThreshold  float64          `json:"compressionThreshold"`
	UsagePercentage       float64          `json:"usagePercentage"`
	CompressionActive     bool             `json:"compressionActive"`
	CompressedMessages    int              `json:"compressedMessages"`
	CompressionBreakdown  map[string]int   `json:"compressionBreakdown"`
}

// handleContextUsage reports the current token footprint against the
// model's compression target without performing live compression — that
// only happens inline in the Orchestrator's own context build (§4.5).
func (a *app) handleContextUsage(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("taskId")
	modelID := r.URL.Query().Get("model")
	if modelID == "" {
		writeAPIError(w, http.StatusBadRequest, &shadow.ValidationError{Reason: "model is required"})
		return
	}
	desc, err := shadow.ResolveModel(modelID)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, err)
		return
	}

	messages, err := a.store.GetMessages(r.Context(), taskID, 0)
	if err != nil {
		writeAPIError(w, statusForError(err), err)
		return
	}

	breakdown := map[string]int{}
	totalTokens := 0
	compressed := 0
	for _, m := range messages {
		totalTokens += shadow.CountMessageTokens(m, modelID)
		breakdown[string(m.ActiveCompressionLevel)]++
		if m.ActiveCompressionLevel != shadow.CompressionNone {
			compressed++
		}
	}

	target := desc.CompressionTarget()
	resp := contextUsageResponse{
		TaskID:               taskID,
		Model:                modelID,
		TotalMessages:        len(messages),
		TotalTokens:          totalTokens,
		TokenLimit:           desc.TokenLimit,
		CompressionThreshold: desc.CompressionThreshold,
		UsagePercentage:      percentage(totalTokens, desc.TokenLimit),
		CompressionActive:    totalTokens > target,
		CompressedMessages:   compressed,
		CompressionBreakdown: breakdown,
	}
	writeJSON(w, http.StatusOK, resp)
}

func percentage(n, of int) float64 {
	if of == 0 {
		return 0
	}
	return float64(n) / float64(of) * 100
}

// --- POST /api/indexing/index ---

type indexRequest struct {
	RepoFullName  string `json:"repoFullName"`
	WorkspacePath string `json:"workspacePath"`
}

func (a *app) handleIndexRepository(w http.ResponseWriter, r *http.Request) {
	if a.indexer == nil {
		writeAPIError(w, http.StatusServiceUnavailable, &shadow.BackgroundJobError{Job: "indexing", Cause: errNoVectorStore})
		return
	}
	var req indexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest, err)
		return
	}
	if req.RepoFullName == "" || req.WorkspacePath == "" {
		writeAPIError(w, http.StatusBadRequest, &shadow.ValidationError{Reason: "repoFullName and workspacePath are required"})
		return
	}
	if err := a.indexer.IndexRepository(r.Context(), req.RepoFullName, req.WorkspacePath); err != nil {
		writeAPIError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "indexed"})
}

// --- POST /api/indexing/search ---

type indexSearchRequest struct {
	RepoFullName string   `json:"repoFullName"`
	Query        string   `json:"query"`
	Dirs         []string `json:"dirs,omitempty"`
	TopK         int      `json:"topK,omitempty"`
}

func (a *app) handleIndexSearch(w http.ResponseWriter, r *http.Request) {
	if a.searchr == nil {
		writeAPIError(w, http.StatusServiceUnavailable, &shadow.BackgroundJobError{Job: "indexing", Cause: errNoVectorStore})
		return
	}
	var req indexSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest, err)
		return
	}
	if req.TopK <= 0 {
		req.TopK = 10
	}
	snippets, err := a.searchr.Search(r.Context(), req.RepoFullName, req.Query, req.Dirs, req.TopK)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": snippets})
}

// --- DELETE /api/indexing/clear-namespace ---

type clearNamespaceRequest struct {
	RepoFullName string `json:"repoFullName"`
}

func (a *app) handleClearNamespace(w http.ResponseWriter, r *http.Request) {
	if a.vstore == nil {
		writeAPIError(w, http.StatusServiceUnavailable, &shadow.BackgroundJobError{Job: "indexing", Cause: errNoVectorStore})
		return
	}
	var req clearNamespaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest, err)
		return
	}
	if req.RepoFullName == "" {
		writeAPIError(w, http.StatusBadRequest, &shadow.ValidationError{Reason: "repoFullName is required"})
		return
	}
	collection := index.CollectionName(req.RepoFullName)
	if err := a.vstore.DeleteCollection(r.Context(), collection); err != nil {
		writeAPIError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}
