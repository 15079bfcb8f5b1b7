// Package store provides persistence for stage results and session
// summaries.
package store

import (
	"context"

	"github.com/Isha1703/campaign-dashboard/internal/domain"
)

// Repository is the Result Store: one record per (session, stage),
// last-write-wins, plus a derived per-session summary updated on every
// stage completion. Safe for concurrent use across sessions; within one
// session, writes are sequenced by the orchestrator.
type Repository interface {
	// PutStageResult persists a stage result, overwriting any prior
	// result for the same (session, stage label).
	PutStageResult(ctx context.Context, sessionID string, result *domain.StageResult) error

	// GetStageResult retrieves a persisted stage result. Returns an
	// error wrapping errdefs.ErrNotFound when absent.
	GetStageResult(ctx context.Context, sessionID, stageLabel string) (*domain.StageResult, error)

	// ListStageResults returns all persisted results for a session in
	// completion order.
	ListStageResults(ctx context.Context, sessionID string) ([]*domain.StageResult, error)

	// Progress derives the session's completion view: completed pipeline
	// stages over the fixed total.
	Progress(ctx context.Context, sessionID string) (*domain.Progress, error)

	// UpsertSessionSummary creates or updates the derived session record.
	UpsertSessionSummary(ctx context.Context, summary *domain.SessionSummary) error

	// GetSessionSummary retrieves the derived session record. Returns an
	// error wrapping errdefs.ErrNotFound when absent.
	GetSessionSummary(ctx context.Context, sessionID string) (*domain.SessionSummary, error)

	// ListSessionSummaries returns all session summaries, most recently
	// updated first.
	ListSessionSummaries(ctx context.Context) ([]*domain.SessionSummary, error)

	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	// Close closes the store.
	Close() error
}
