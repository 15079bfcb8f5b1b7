package domain

import (
	"encoding/json"
	"time"
)

// Stage result statuses.
const (
	ResultCompleted = "completed"
	ResultFailed    = "failed"
)

// StageResult is the persisted output of one stage execution for one
// session. A later result for the same (session, stage) supersedes an
// earlier one; results are never merged.
type StageResult struct {
	AgentName  string          `json:"agent"`
	StageLabel string          `json:"stage"`
	Timestamp  time.Time       `json:"timestamp"`
	Status     string          `json:"status"`
	Payload    json.RawMessage `json:"result"`

	// Invoker metadata records which invocation strategy produced the
	// payload (primary model or degraded simulator) and why it was chosen.
	Invoker       string `json:"invoker,omitempty"`
	InvokerReason string `json:"invoker_reason,omitempty"`
}

// Feedback types accepted in content review.
const (
	FeedbackApprove = "approve"
	FeedbackRevise  = "revise"
)

// FeedbackEvent is one human feedback submission for a session.
type FeedbackEvent struct {
	SessionID    string `json:"session_id"`
	FeedbackType string `json:"feedback_type"`
	FeedbackText string `json:"feedback,omitempty"`
}
