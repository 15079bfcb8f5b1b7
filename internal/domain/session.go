package domain

import (
	"encoding/json"
	"time"
)

// Session is one end-to-end campaign generation attempt. A session is
// owned by the orchestrator for its lifetime: created on start, mutated
// only in response to stage completions or feedback, never deleted.
type Session struct {
	ID          string
	Product     string
	ProductCost float64
	Budget      float64
	Stage       Stage

	// Results maps stage label to that stage's structured payload.
	// CompletedOrder preserves completion order.
	Results        map[string]json.RawMessage
	CompletedOrder []string

	// Assets is the current working set of content assets, populated by
	// the content generation stage and mutated in place by revisions.
	Assets []ContentAsset

	// LastError records the failure that moved the session to StageError.
	LastError string
	// FailedStage is the stage label at which LastError occurred.
	FailedStage string

	CreatedAt   time.Time
	LastUpdated time.Time
}

// RecordResult stores a stage payload on the session, superseding any
// earlier payload for the same label.
func (s *Session) RecordResult(label string, payload json.RawMessage) {
	if s.Results == nil {
		s.Results = make(map[string]json.RawMessage)
	}
	if _, seen := s.Results[label]; !seen {
		s.CompletedOrder = append(s.CompletedOrder, label)
	}
	s.Results[label] = payload
	s.LastUpdated = time.Now()
}

// SessionSummary is the derived per-session record persisted alongside
// stage results, updated on every stage completion.
type SessionSummary struct {
	SessionID   string    `json:"session_id"`
	Product     string    `json:"product"`
	ProductCost float64   `json:"product_cost"`
	Budget      float64   `json:"budget"`
	Stage       Stage     `json:"stage"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Progress is the derived completion view of a session.
type Progress struct {
	SessionID       string   `json:"session_id"`
	Stage           Stage    `json:"stage"`
	CompletedStages []string `json:"completed_stages"`
	CompletedCount  int      `json:"completed_count"`
	TotalCount      int      `json:"total_count"`
	Percentage      float64  `json:"progress_percentage"`
}

// StageUpdate is a single progress event delivered to session watchers.
type StageUpdate struct {
	SessionID  string  `json:"session_id"`
	Stage      Stage   `json:"stage"`
	StageLabel string  `json:"stage_label,omitempty"`
	Percentage float64 `json:"progress_percentage"`
	Error      string  `json:"error,omitempty"`
}
