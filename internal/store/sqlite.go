package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Isha1703/campaign-dashboard/internal/domain"
	"github.com/Isha1703/campaign-dashboard/internal/shared"
	"github.com/containerd/errdefs"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS stage_results (
		session_id TEXT NOT NULL,
		stage_label TEXT NOT NULL,
		agent_name TEXT NOT NULL,
		status TEXT NOT NULL,
		invoker TEXT,
		invoker_reason TEXT,
		payload TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (session_id, stage_label)
	);
	CREATE INDEX IF NOT EXISTS idx_stage_results_session ON stage_results(session_id, created_at);

	CREATE TABLE IF NOT EXISTS session_summaries (
		session_id TEXT PRIMARY KEY,
		product TEXT NOT NULL,
		product_cost REAL NOT NULL,
		budget REAL NOT NULL,
		stage TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_session_summaries_updated ON session_summaries(updated_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// PutStageResult persists a stage result, superseding any prior payload
// for the same (session, stage label). Retries on SQLite concurrency
// errors with exponential backoff.
func (s *SQLiteStore) PutStageResult(ctx context.Context, sessionID string, result *domain.StageResult) error {
	maxRetries := 3
	baseDelay := 100 * time.Millisecond

	for i := 0; i < maxRetries; i++ {
		err := s.putStageResultOnce(ctx, sessionID, result)
		if err == nil {
			return nil
		}

		if shared.IsSQLiteConflictError(err) && i < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<i) // 100ms, 200ms, 400ms
			slog.Debug("PutStageResult hit SQLITE_BUSY, retrying",
				"session_id", sessionID,
				"stage", result.StageLabel,
				"attempt", i+1,
				"delay", delay)
			time.Sleep(delay)
			continue
		}

		return fmt.Errorf("put stage result %s/%s: %w", sessionID, result.StageLabel, err)
	}

	return nil
}

func (s *SQLiteStore) putStageResultOnce(ctx context.Context, sessionID string, result *domain.StageResult) error {
	query := `
	INSERT INTO stage_results (session_id, stage_label, agent_name, status, invoker, invoker_reason, payload, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(session_id, stage_label) DO UPDATE SET
		agent_name = excluded.agent_name,
		status = excluded.status,
		invoker = excluded.invoker,
		invoker_reason = excluded.invoker_reason,
		payload = excluded.payload,
		created_at = excluded.created_at`

	payload := string(result.Payload)
	if payload == "" {
		payload = "null"
	}

	_, err := s.db.ExecContext(ctx, query,
		sessionID, result.StageLabel, result.AgentName, result.Status,
		result.Invoker, result.InvokerReason, payload,
		result.Timestamp.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("upsert stage result: %w", err)
	}

	// Touch the derived summary so pollers see fresh activity even if
	// the stage transition has not landed yet.
	_, err = s.db.ExecContext(ctx,
		`UPDATE session_summaries SET updated_at = ? WHERE session_id = ?`,
		time.Now().Unix(), sessionID,
	)
	if err != nil {
		return fmt.Errorf("touch session summary: %w", err)
	}
	return nil
}

// GetStageResult retrieves a persisted stage result.
func (s *SQLiteStore) GetStageResult(ctx context.Context, sessionID, stageLabel string) (*domain.StageResult, error) {
	query := `
		SELECT agent_name, stage_label, status, invoker, invoker_reason, payload, created_at
		FROM stage_results WHERE session_id = ? AND stage_label = ?`

	row := s.db.QueryRowContext(ctx, query, sessionID, stageLabel)

	result, err := scanStageResult(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("stage result %s/%s: %w", sessionID, stageLabel, errdefs.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan stage result: %w", err)
	}
	return result, nil
}

// ListStageResults returns all persisted results for a session in
// completion order.
func (s *SQLiteStore) ListStageResults(ctx context.Context, sessionID string) ([]*domain.StageResult, error) {
	query := `
		SELECT agent_name, stage_label, status, invoker, invoker_reason, payload, created_at
		FROM stage_results WHERE session_id = ? ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query stage results: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close stage result rows", "error", closeErr)
		}
	}()

	var results []*domain.StageResult
	for rows.Next() {
		result, err := scanStageResult(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan stage result row: %w", err)
		}
		results = append(results, result)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stage results: %w", err)
	}
	return results, nil
}

func scanStageResult(scan func(...any) error) (*domain.StageResult, error) {
	var result domain.StageResult
	var invoker, invokerReason sql.NullString
	var payload string
	var createdAt int64

	err := scan(
		&result.AgentName, &result.StageLabel, &result.Status,
		&invoker, &invokerReason, &payload, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	result.Invoker = invoker.String
	result.InvokerReason = invokerReason.String
	result.Payload = json.RawMessage(payload)
	result.Timestamp = time.Unix(0, createdAt)
	return &result, nil
}

// Progress derives the session completion view from persisted results.
func (s *SQLiteStore) Progress(ctx context.Context, sessionID string) (*domain.Progress, error) {
	summary, err := s.GetSessionSummary(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	results, err := s.ListStageResults(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	progress := &domain.Progress{
		SessionID:  sessionID,
		Stage:      summary.Stage,
		TotalCount: domain.TotalStages,
	}
	for _, r := range results {
		if r.Status != domain.ResultCompleted || !domain.IsPipelineLabel(r.StageLabel) {
			continue
		}
		progress.CompletedStages = append(progress.CompletedStages, r.StageLabel)
		progress.CompletedCount++
	}
	progress.Percentage = float64(progress.CompletedCount) / float64(progress.TotalCount) * 100
	return progress, nil
}

// UpsertSessionSummary creates or updates the derived session record.
func (s *SQLiteStore) UpsertSessionSummary(ctx context.Context, summary *domain.SessionSummary) error {
	query := `
	INSERT INTO session_summaries (session_id, product, product_cost, budget, stage, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(session_id) DO UPDATE SET
		stage = excluded.stage,
		updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		summary.SessionID, summary.Product, summary.ProductCost, summary.Budget,
		string(summary.Stage), summary.CreatedAt.Unix(), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert session summary: %w", err)
	}
	return nil
}

// GetSessionSummary retrieves the derived session record.
func (s *SQLiteStore) GetSessionSummary(ctx context.Context, sessionID string) (*domain.SessionSummary, error) {
	query := `
		SELECT session_id, product, product_cost, budget, stage, created_at, updated_at
		FROM session_summaries WHERE session_id = ?`

	row := s.db.QueryRowContext(ctx, query, sessionID)

	var summary domain.SessionSummary
	var stage string
	var createdAt, updatedAt int64

	err := row.Scan(
		&summary.SessionID, &summary.Product, &summary.ProductCost,
		&summary.Budget, &stage, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session %s: %w", sessionID, errdefs.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan session summary: %w", err)
	}

	summary.Stage = domain.Stage(stage)
	summary.CreatedAt = time.Unix(createdAt, 0)
	summary.UpdatedAt = time.Unix(updatedAt, 0)
	return &summary, nil
}

// ListSessionSummaries returns all session summaries, most recently
// updated first.
func (s *SQLiteStore) ListSessionSummaries(ctx context.Context) ([]*domain.SessionSummary, error) {
	query := `
		SELECT session_id, product, product_cost, budget, stage, created_at, updated_at
		FROM session_summaries ORDER BY updated_at DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query session summaries: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close session summary rows", "error", closeErr)
		}
	}()

	var summaries []*domain.SessionSummary
	for rows.Next() {
		var summary domain.SessionSummary
		var stage string
		var createdAt, updatedAt int64

		if err := rows.Scan(
			&summary.SessionID, &summary.Product, &summary.ProductCost,
			&summary.Budget, &stage, &createdAt, &updatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan session summary row: %w", err)
		}

		summary.Stage = domain.Stage(stage)
		summary.CreatedAt = time.Unix(createdAt, 0)
		summary.UpdatedAt = time.Unix(updatedAt, 0)
		summaries = append(summaries, &summary)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session summaries: %w", err)
	}
	return summaries, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
