// Package postgres implements shadow.Store using PostgreSQL. It provides no
// shadow.RepositoryLock implementation. JSON-shaped columns (parts, compressed_versions, usage,
// pull_request_snapshot) are stored as JSONB; everything else is a plain
// column so the lifecycle queries used by the orchestrator stay index-backed.
//
// Store accepts an externally-owned *pgxpool.Pool via constructor injection.
// The caller creates and closes the pool.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shadowhq/shadow"
)

// Store implements shadow.Store backed by PostgreSQL.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for non-fatal diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

var _ shadow.Store = (*Store)(nil)

// New creates a Store using an existing pgxpool.Pool. The caller owns the
// pool and is responsible for closing it.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{pool: pool}
	for _, o := range opts {
		o(s)
	}
	if s.logger == nil {
		s.logger = shadow.NopLogger()
	}
	return s
}

// Init creates all required tables and indexes. Safe to call multiple times.
func (s *Store) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			repo_full_name TEXT NOT NULL,
			repo_url TEXT NOT NULL,
			base_branch TEXT NOT NULL,
			base_commit TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			total_tokens BIGINT NOT NULL DEFAULT 0,
			pull_request_number INT NOT NULL DEFAULT 0,
			auto_pr BOOLEAN NOT NULL DEFAULT false,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS tasks_repo_idx ON tasks(repo_full_name)`,

		`CREATE TABLE IF NOT EXISTS variants (
			id TEXT PRIMARY KEY,
			task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
			model_id TEXT NOT NULL,
			sequence INT NOT NULL,
			shadow_branch TEXT NOT NULL,
			status TEXT NOT NULL,
			init_status TEXT NOT NULL,
			init_error TEXT NOT NULL DEFAULT '',
			workspace_path TEXT NOT NULL DEFAULT '',
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS variants_task_idx ON variants(task_id)`,

		`CREATE TABLE IF NOT EXISTS chat_messages (
			id TEXT PRIMARY KEY,
			task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
			variant_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			parts JSONB,
			sequence BIGINT NOT NULL,
			created_at BIGINT NOT NULL,
			model_id TEXT NOT NULL DEFAULT '',
			usage JSONB,
			finish_reason TEXT NOT NULL DEFAULT '',
			active_compression_level TEXT NOT NULL DEFAULT 'NONE',
			compressed_versions JSONB,
			pull_request_snapshot JSONB,
			UNIQUE (task_id, sequence)
		)`,
		`CREATE INDEX IF NOT EXISTS chat_messages_task_seq_idx ON chat_messages(task_id, sequence)`,

		`CREATE TABLE IF NOT EXISTS task_sequences (
			task_id TEXT PRIMARY KEY,
			next_sequence BIGINT NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS tool_calls (
			id TEXT PRIMARY KEY,
			message_id TEXT NOT NULL,
			task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			args JSONB,
			status TEXT NOT NULL,
			result TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS tool_calls_task_idx ON tool_calls(task_id)`,
		`CREATE INDEX IF NOT EXISTS tool_calls_message_idx ON tool_calls(message_id)`,

		`CREATE TABLE IF NOT EXISTS codebase_understandings (
			repo_full_name TEXT PRIMARY KEY,
			summary TEXT NOT NULL DEFAULT '',
			generated_at BIGINT NOT NULL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: init: %w", err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// --- Tasks ---

func (s *Store) CreateTask(ctx context.Context, task shadow.Task) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tasks (id, owner, repo_full_name, repo_url, base_branch, base_commit, title, status, total_tokens, pull_request_number, auto_pr, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		task.ID, task.Owner, task.RepoFullName, task.RepoURL, task.BaseBranch, task.BaseCommit,
		task.Title, task.Status, task.TotalTokens, task.PullRequestNum, task.AutoPR, task.CreatedAt, task.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: create task: %w", err)
	}
	return nil
}

func (s *Store) GetTask(ctx context.Context, id string) (shadow.Task, error) {
	var t shadow.Task
	err := s.pool.QueryRow(ctx,
		`SELECT id, owner, repo_full_name, repo_url, base_branch, base_commit, title, status, total_tokens, pull_request_number, auto_pr, created_at, updated_at
		 FROM tasks WHERE id = $1`, id,
	).Scan(&t.ID, &t.Owner, &t.RepoFullName, &t.RepoURL, &t.BaseBranch, &t.BaseCommit,
		&t.Title, &t.Status, &t.TotalTokens, &t.PullRequestNum, &t.AutoPR, &t.CreatedAt, &t.UpdatedAt)
	if err == pgx.ErrNoRows {
		return shadow.Task{}, &shadow.NotFoundError{Kind: "task", ID: id}
	}
	if err != nil {
		return shadow.Task{}, fmt.Errorf("postgres: get task: %w", err)
	}
	return t, nil
}

func (s *Store) UpdateTask(ctx context.Context, task shadow.Task) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE tasks SET owner=$1, repo_full_name=$2, repo_url=$3, base_branch=$4, base_commit=$5, title=$6,
		 status=$7, total_tokens=$8, pull_request_number=$9, auto_pr=$10, updated_at=$11 WHERE id=$12`,
		task.Owner, task.RepoFullName, task.RepoURL, task.BaseBranch, task.BaseCommit, task.Title,
		task.Status, task.TotalTokens, task.PullRequestNum, task.AutoPR, task.UpdatedAt, task.ID)
	if err != nil {
		return fmt.Errorf("postgres: update task: %w", err)
	}
	return nil
}

func (s *Store) ListTasksByRepo(ctx context.Context, repoFullName string) ([]shadow.Task, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, owner, repo_full_name, repo_url, base_branch, base_commit, title, status, total_tokens, pull_request_number, auto_pr, created_at, updated_at
		 FROM tasks WHERE repo_full_name = $1 ORDER BY created_at DESC`, repoFullName)
	if err != nil {
		return nil, fmt.Errorf("postgres: list tasks by repo: %w", err)
	}
	defer rows.Close()

	var tasks []shadow.Task
	for rows.Next() {
		var t shadow.Task
		if err := rows.Scan(&t.ID, &t.Owner, &t.RepoFullName, &t.RepoURL, &t.BaseBranch, &t.BaseCommit,
			&t.Title, &t.Status, &t.TotalTokens, &t.PullRequestNum, &t.AutoPR, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// --- Variants ---

func (s *Store) CreateVariant(ctx context.Context, v shadow.Variant) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO variants (id, task_id, model_id, sequence, shadow_branch, status, init_status, init_error, workspace_path, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		v.ID, v.TaskID, v.ModelID, v.Sequence, v.ShadowBranch, v.Status, v.Init, v.InitError, v.WorkspacePath, v.CreatedAt, v.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: create variant: %w", err)
	}
	return nil
}

func (s *Store) GetVariant(ctx context.Context, id string) (shadow.Variant, error) {
	var v shadow.Variant
	err := s.pool.QueryRow(ctx,
		`SELECT id, task_id, model_id, sequence, shadow_branch, status, init_status, init_error, workspace_path, created_at, updated_at
		 FROM variants WHERE id = $1`, id,
	).Scan(&v.ID, &v.TaskID, &v.ModelID, &v.Sequence, &v.ShadowBranch, &v.Status, &v.Init, &v.InitError, &v.WorkspacePath, &v.CreatedAt, &v.UpdatedAt)
	if err == pgx.ErrNoRows {
		return shadow.Variant{}, &shadow.NotFoundError{Kind: "variant", ID: id}
	}
	if err != nil {
		return shadow.Variant{}, fmt.Errorf("postgres: get variant: %w", err)
	}
	return v, nil
}

func (s *Store) ListVariants(ctx context.Context, taskID string) ([]shadow.Variant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, task_id, model_id, sequence, shadow_branch, status, init_status, init_error, workspace_path, created_at, updated_at
		 FROM variants WHERE task_id = $1 ORDER BY sequence ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list variants: %w", err)
	}
	defer rows.Close()

	var out []shadow.Variant
	for rows.Next() {
		var v shadow.Variant
		if err := rows.Scan(&v.ID, &v.TaskID, &v.ModelID, &v.Sequence, &v.ShadowBranch, &v.Status, &v.Init, &v.InitError, &v.WorkspacePath, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan variant: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) UpdateVariant(ctx context.Context, v shadow.Variant) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE variants SET model_id=$1, shadow_branch=$2, status=$3, init_status=$4, init_error=$5, workspace_path=$6, updated_at=$7 WHERE id=$8`,
		v.ModelID, v.ShadowBranch, v.Status, v.Init, v.InitError, v.WorkspacePath, v.UpdatedAt, v.ID)
	if err != nil {
		return fmt.Errorf("postgres: update variant: %w", err)
	}
	return nil
}

func (s *Store) FindVariantsByPullRequest(ctx context.Context, repoFullName string, pullRequestNumber int) ([]shadow.Variant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT v.id, v.task_id, v.model_id, v.sequence, v.shadow_branch, v.status, v.init_status, v.init_error, v.workspace_path, v.created_at, v.updated_at
		 FROM variants v JOIN tasks t ON t.id = v.task_id
		 WHERE t.repo_full_name = $1 AND t.pull_request_number = $2`,
		repoFullName, pullRequestNumber)
	if err != nil {
		return nil, fmt.Errorf("postgres: find variants by pull request: %w", err)
	}
	defer rows.Close()

	var out []shadow.Variant
	for rows.Next() {
		var v shadow.Variant
		if err := rows.Scan(&v.ID, &v.TaskID, &v.ModelID, &v.Sequence, &v.ShadowBranch, &v.Status, &v.Init, &v.InitError, &v.WorkspacePath, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan variant: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// --- ChatMessages ---

// NextSequence allocates the next strictly increasing sequence number for
// taskID inside a short transaction, using an UPSERT-and-return so callers
// never observe a gap or a duplicate under concurrent senders.
func (s *Store) NextSequence(ctx context.Context, taskID string) (int64, error) {
	var seq int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO task_sequences (task_id, next_sequence) VALUES ($1, 1)
		 ON CONFLICT (task_id) DO UPDATE SET next_sequence = task_sequences.next_sequence + 1
		 RETURNING next_sequence - 1`, taskID,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("postgres: next sequence: %w", err)
	}
	return seq, nil
}

func (s *Store) AppendMessage(ctx context.Context, msg shadow.ChatMessage) error {
	partsJSON, err := json.Marshal(msg.Parts)
	if err != nil {
		return fmt.Errorf("postgres: marshal parts: %w", err)
	}
	usageJSON, err := json.Marshal(msg.Usage)
	if err != nil {
		return fmt.Errorf("postgres: marshal usage: %w", err)
	}
	compressedJSON, err := json.Marshal(msg.CompressedVersions)
	if err != nil {
		return fmt.Errorf("postgres: marshal compressed versions: %w", err)
	}
	var prJSON []byte
	if msg.PullRequestSnapshot != nil {
		prJSON, err = json.Marshal(msg.PullRequestSnapshot)
		if err != nil {
			return fmt.Errorf("postgres: marshal pull request snapshot: %w", err)
		}
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO chat_messages (id, task_id, variant_id, role, content, parts, sequence, created_at, model_id, usage, finish_reason, active_compression_level, compressed_versions, pull_request_snapshot)
		 VALUES ($1,$2,$3,$4,$5,$6::jsonb,$7,$8,$9,$10::jsonb,$11,$12,$13::jsonb,$14::jsonb)`,
		msg.ID, msg.TaskID, msg.VariantID, msg.Role, msg.Content, partsJSON, msg.Sequence, msg.CreatedAt,
		msg.ModelID, usageJSON, msg.FinishReason, msg.ActiveCompressionLevel, compressedJSON, nullableJSON(prJSON))
	if err != nil {
		return fmt.Errorf("postgres: append message: %w", err)
	}
	return nil
}

func (s *Store) UpdateMessageParts(ctx context.Context, messageID string, parts []shadow.Part, usage *shadow.Usage, finishReason string) error {
	partsJSON, err := json.Marshal(parts)
	if err != nil {
		return fmt.Errorf("postgres: marshal parts: %w", err)
	}

	if usage != nil {
		usageJSON, err := json.Marshal(*usage)
		if err != nil {
			return fmt.Errorf("postgres: marshal usage: %w", err)
		}
		_, err = s.pool.Exec(ctx,
			`UPDATE chat_messages SET parts=$1::jsonb, usage=$2::jsonb, finish_reason=$3 WHERE id=$4`,
			partsJSON, usageJSON, finishReason, messageID)
		if err != nil {
			return fmt.Errorf("postgres: update message parts: %w", err)
		}
		return nil
	}

	_, err = s.pool.Exec(ctx,
		`UPDATE chat_messages SET parts=$1::jsonb, finish_reason=$2 WHERE id=$3`,
		partsJSON, finishReason, messageID)
	if err != nil {
		return fmt.Errorf("postgres: update message parts: %w", err)
	}
	return nil
}

func (s *Store) GetMessages(ctx context.Context, taskID string, limit int) ([]shadow.ChatMessage, error) {
	// limit <= 0 means "all messages"; NULLIF turns that into a NULL bind
	// parameter, which LIMIT treats as unbounded, rather than the 0 rows a
	// literal LIMIT 0 would return.
	if limit < 0 {
		limit = 0
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, task_id, variant_id, role, content, parts, sequence, created_at, model_id, usage, finish_reason, active_compression_level, compressed_versions, pull_request_snapshot
		 FROM chat_messages WHERE task_id = $1 ORDER BY sequence ASC LIMIT NULLIF($2, 0)`, taskID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: get messages: %w", err)
	}
	defer rows.Close()

	var out []shadow.ChatMessage
	for rows.Next() {
		msg, err := scanChatMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

func (s *Store) GetMessage(ctx context.Context, id string) (shadow.ChatMessage, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, task_id, variant_id, role, content, parts, sequence, created_at, model_id, usage, finish_reason, active_compression_level, compressed_versions, pull_request_snapshot
		 FROM chat_messages WHERE id = $1`, id)
	msg, err := scanChatMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return shadow.ChatMessage{}, &shadow.NotFoundError{Kind: "message", ID: id}
	}
	if err != nil {
		return shadow.ChatMessage{}, err
	}
	return msg, nil
}

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanChatMessage(row rowScanner) (shadow.ChatMessage, error) {
	var msg shadow.ChatMessage
	var partsJSON, usageJSON, compressedJSON, prJSON []byte
	err := row.Scan(&msg.ID, &msg.TaskID, &msg.VariantID, &msg.Role, &msg.Content, &partsJSON, &msg.Sequence,
		&msg.CreatedAt, &msg.ModelID, &usageJSON, &msg.FinishReason, &msg.ActiveCompressionLevel, &compressedJSON, &prJSON)
	if err != nil {
		return shadow.ChatMessage{}, fmt.Errorf("postgres: scan message: %w", err)
	}
	if len(partsJSON) > 0 {
		_ = json.Unmarshal(partsJSON, &msg.Parts)
	}
	if len(usageJSON) > 0 {
		_ = json.Unmarshal(usageJSON, &msg.Usage)
	}
	if len(compressedJSON) > 0 {
		_ = json.Unmarshal(compressedJSON, &msg.CompressedVersions)
	}
	if len(prJSON) > 0 {
		msg.PullRequestSnapshot = &shadow.PullRequestSnapshot{}
		_ = json.Unmarshal(prJSON, msg.PullRequestSnapshot)
	}
	return msg, nil
}

func (s *Store) PersistCompressedVersion(ctx context.Context, messageID string, level shadow.CompressionLevel, v shadow.CompressedVersion) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE chat_messages
		 SET compressed_versions = COALESCE(compressed_versions, '{}'::jsonb) || jsonb_build_object($1::text, $2::jsonb)
		 WHERE id = $3`,
		string(level), mustJSON(v), messageID)
	if err != nil {
		return fmt.Errorf("postgres: persist compressed version: %w", err)
	}
	return nil
}

func (s *Store) SetPullRequestSnapshot(ctx context.Context, messageID string, snapshot shadow.PullRequestSnapshot) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE chat_messages SET pull_request_snapshot = $1::jsonb WHERE id = $2`,
		mustJSON(snapshot), messageID)
	if err != nil {
		return fmt.Errorf("postgres: set pull request snapshot: %w", err)
	}
	return nil
}

// --- ToolCalls ---

func (s *Store) CreateToolCall(ctx context.Context, tc shadow.ToolCall) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tool_calls (id, message_id, task_id, name, args, status, result, error, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5::jsonb,$6,$7,$8,$9,$10)`,
		tc.ID, tc.MessageID, tc.TaskID, tc.Name, []byte(tc.Args), tc.Status, tc.Result, tc.Error, tc.CreatedAt, tc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: create tool call: %w", err)
	}
	return nil
}

func (s *Store) UpdateToolCall(ctx context.Context, tc shadow.ToolCall) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE tool_calls SET status=$1, result=$2, error=$3, updated_at=$4 WHERE id=$5`,
		tc.Status, tc.Result, tc.Error, tc.UpdatedAt, tc.ID)
	if err != nil {
		return fmt.Errorf("postgres: update tool call: %w", err)
	}
	return nil
}

func (s *Store) GetToolCall(ctx context.Context, toolCallID string) (shadow.ToolCall, error) {
	var tc shadow.ToolCall
	var argsJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, message_id, task_id, name, args, status, result, error, created_at, updated_at FROM tool_calls WHERE id = $1`, toolCallID,
	).Scan(&tc.ID, &tc.MessageID, &tc.TaskID, &tc.Name, &argsJSON, &tc.Status, &tc.Result, &tc.Error, &tc.CreatedAt, &tc.UpdatedAt)
	if err == pgx.ErrNoRows {
		return shadow.ToolCall{}, &shadow.NotFoundError{Kind: "tool_call", ID: toolCallID}
	}
	if err != nil {
		return shadow.ToolCall{}, fmt.Errorf("postgres: get tool call: %w", err)
	}
	tc.Args = argsJSON
	return tc, nil
}

func (s *Store) ListToolCallsByTask(ctx context.Context, taskID string) ([]shadow.ToolCall, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, message_id, task_id, name, args, status, result, error, created_at, updated_at
		 FROM tool_calls WHERE task_id = $1 ORDER BY created_at ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list tool calls: %w", err)
	}
	defer rows.Close()

	var out []shadow.ToolCall
	for rows.Next() {
		var tc shadow.ToolCall
		var argsJSON []byte
		if err := rows.Scan(&tc.ID, &tc.MessageID, &tc.TaskID, &tc.Name, &argsJSON, &tc.Status, &tc.Result, &tc.Error, &tc.CreatedAt, &tc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan tool call: %w", err)
		}
		tc.Args = argsJSON
		out = append(out, tc)
	}
	return out, rows.Err()
}

// --- CodebaseUnderstanding ---

func (s *Store) GetCodebaseUnderstanding(ctx context.Context, repoFullName string) (shadow.CodebaseUnderstanding, error) {
	var cu shadow.CodebaseUnderstanding
	err := s.pool.QueryRow(ctx,
		`SELECT repo_full_name, summary, generated_at FROM codebase_understandings WHERE repo_full_name = $1`, repoFullName,
	).Scan(&cu.RepoFullName, &cu.Summary, &cu.GeneratedAt)
	if err == pgx.ErrNoRows {
		return shadow.CodebaseUnderstanding{}, &shadow.NotFoundError{Kind: "codebase_understanding", ID: repoFullName}
	}
	if err != nil {
		return shadow.CodebaseUnderstanding{}, fmt.Errorf("postgres: get codebase understanding: %w", err)
	}
	return cu, nil
}

func (s *Store) SaveCodebaseUnderstanding(ctx context.Context, cu shadow.CodebaseUnderstanding) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO codebase_understandings (repo_full_name, summary, generated_at) VALUES ($1,$2,$3)
		 ON CONFLICT (repo_full_name) DO UPDATE SET summary = EXCLUDED.summary, generated_at = EXCLUDED.generated_at`,
		cu.RepoFullName, cu.Summary, cu.GeneratedAt)
	if err != nil {
		return fmt.Errorf("postgres: save codebase understanding: %w", err)
	}
	return nil
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("postgres: marshal: %v", err))
	}
	return data
}

func nullableJSON(data []byte) any {
	if len(data) == 0 {
		return nil
	}
	return data
}
