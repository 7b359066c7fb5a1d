// Package webhook implements §6's GitHub pull-request webhook: verifying
// the HMAC-SHA256 signature GitHub attaches to each delivery and, on a
// closed pull request, stopping every Variant tracking it. Signature
// verification is grounded on haasonsaas-nexus's hmac.Equal usage
// (internal/channels/nextcloudtalk/adapter.go, internal/voice/twilio.go) —
// stdlib by necessity, since no pack example reaches for a third-party HMAC
// library and Go's hmac.Equal is itself the idiomatic constant-time
// comparison §8 requires.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	shadow "github.com/shadowhq/shadow"
)

const signatureHeader = "X-Hub-Signature-256"

// Handler serves GitHub's pull_request webhook. One shared secret verifies
// every delivery, per §6: "validates HMAC-SHA256 signature over the raw
// body using a shared secret".
type Handler struct {
	secret []byte
	store  shadow.Store
	logger *slog.Logger
}

// NewHandler builds a Handler that verifies deliveries against secret and
// stops matching variants in store.
func NewHandler(secret string, store shadow.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(discardHandler{})
	}
	return &Handler{secret: []byte(secret), store: store, logger: logger}
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (discardHandler) WithAttrs([]slog.Attr) slog.Handler        { return discardHandler{} }
func (discardHandler) WithGroup(string) slog.Handler             { return discardHandler{} }

type pullRequestPayload struct {
	Action      string `json:"action"`
	PullRequest struct {
		Number int  `json:"number"`
		Merged bool `json:"merged"`
	} `json:"pull_request"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
}

type successResponse struct {
	Message       string `json:"message"`
	TasksArchived int    `json:"tasksArchived"`
}

// ServeHTTP implements the webhook endpoint. Responds 401 on a bad/missing
// signature and 400 on a malformed payload, per §7's propagation policy.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	if !h.verifySignature(r.Header.Get(signatureHeader), body) {
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var payload pullRequestPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}

	if payload.Action != "closed" {
		writeJSON(w, http.StatusOK, successResponse{Message: "Success", TasksArchived: 0})
		return
	}

	archived, err := h.archiveVariants(r.Context(), payload.Repository.FullName, payload.PullRequest.Number)
	if err != nil {
		h.logger.Error("webhook: failed to archive variants", "error", err,
			"repo", payload.Repository.FullName, "pr", payload.PullRequest.Number)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, successResponse{Message: "Success", TasksArchived: archived})
}

// verifySignature checks header against the HMAC-SHA256 of body, keyed by
// the shared secret, using hmac.Equal for constant-time comparison.
func (h *Handler) verifySignature(header string, body []byte) bool {
	const prefix = "sha256="
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	expectedHex := strings.TrimPrefix(header, prefix)
	expected, err := hex.DecodeString(expectedHex)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, h.secret)
	mac.Write(body)
	computed := mac.Sum(nil)

	return hmac.Equal(expected, computed)
}

// archiveVariants stops every Variant tracking pull request number on
// repoFullName and returns how many were stopped.
func (h *Handler) archiveVariants(ctx context.Context, repoFullName string, number int) (int, error) {
	variants, err := h.store.FindVariantsByPullRequest(ctx, repoFullName, number)
	if err != nil {
		return 0, fmt.Errorf("find variants by pull request: %w", err)
	}

	archived := 0
	for _, v := range variants {
		if v.Status == shadow.VariantStopped {
			continue
		}
		v.Status = shadow.VariantStopped
		v.UpdatedAt = shadow.NowUnix()
		if err := h.store.UpdateVariant(ctx, v); err != nil {
			return archived, fmt.Errorf("update variant %s: %w", v.ID, err)
		}
		archived++
	}
	return archived, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
