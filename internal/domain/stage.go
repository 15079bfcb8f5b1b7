// Package domain defines the core types for campaign sessions and
// their staged pipeline results.
package domain

// Stage is the lifecycle state of a campaign session.
type Stage string

const (
	// StageInitializing is the state of a freshly created session.
	StageInitializing Stage = "initializing"
	// StageAudienceDone means audience analysis has completed.
	StageAudienceDone Stage = "audience_complete"
	// StageBudgetDone means budget allocation has completed.
	StageBudgetDone Stage = "budget_complete"
	// StagePromptsDone means prompt strategy generation has completed.
	StagePromptsDone Stage = "prompt_complete"
	// StageContentReview means generated content is awaiting human feedback.
	StageContentReview Stage = "content_review"
	// StageRevising means a content revision is in flight.
	StageRevising Stage = "revising"
	// StageCompleted is the terminal success state.
	StageCompleted Stage = "completed"
	// StageError is the terminal failure state, reachable from any state.
	StageError Stage = "error"
)

// Terminal reports whether no further transitions are possible.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageError
}

// AcceptsFeedback reports whether human feedback is valid in this stage.
func (s Stage) AcceptsFeedback() bool {
	return s == StageContentReview
}

// Stage labels used as Result Store keys, one per pipeline stage.
const (
	LabelAudience     = "audience_analysis"
	LabelBudget       = "budget_allocation"
	LabelPrompts      = "prompt_strategy"
	LabelContent      = "content_generation"
	LabelAnalytics    = "analytics"
	LabelOptimization = "optimization"
)

// PipelineLabels is the fixed, ordered set of stages counted toward
// session progress.
var PipelineLabels = []string{
	LabelAudience,
	LabelBudget,
	LabelPrompts,
	LabelContent,
	LabelAnalytics,
	LabelOptimization,
}

// TotalStages is the denominator for progress reporting. Matches
// len(PipelineLabels).
const TotalStages = 6

// IsPipelineLabel reports whether label is one of the six progress-counted
// pipeline stages.
func IsPipelineLabel(label string) bool {
	for _, l := range PipelineLabels {
		if l == label {
			return true
		}
	}
	return false
}
