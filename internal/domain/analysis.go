package domain

// AudiencePlatform is a platform recommendation for one audience group.
type AudiencePlatform struct {
	Platform string `json:"platform"`
	Reason   string `json:"reason,omitempty"`
}

// Audience is one target audience group.
type Audience struct {
	Name         string             `json:"name"`
	Demographics string             `json:"demographics"`
	Platforms    []AudiencePlatform `json:"platforms"`
}

// AudienceAnalysis is the audience stage payload.
type AudienceAnalysis struct {
	Audiences []Audience `json:"audiences"`
}

// PlatformBudget is the slice of an audience's budget given to one platform.
type PlatformBudget struct {
	Platform   string  `json:"platform"`
	Amount     float64 `json:"amount"`
	Percentage float64 `json:"percentage"`
}

// AudienceBudget is the budget allocated to one audience group.
type AudienceBudget struct {
	Audience  string           `json:"audience"`
	Total     float64          `json:"total"`
	Platforms []PlatformBudget `json:"platforms"`
}

// BudgetAllocation is the budget stage payload.
type BudgetAllocation struct {
	TotalBudget float64          `json:"total_budget"`
	Allocations []AudienceBudget `json:"allocations"`
}

// AdPrompt is one creative brief for a single ad.
type AdPrompt struct {
	AdType string `json:"ad_type"`
	Prompt string `json:"prompt"`
	CTA    string `json:"cta,omitempty"`
}

// PlatformPrompts groups ad prompts for one platform.
type PlatformPrompts struct {
	Platform string     `json:"platform"`
	Prompts  []AdPrompt `json:"prompts"`
}

// AudiencePrompts groups platform prompts for one audience.
type AudiencePrompts struct {
	Audience  string            `json:"audience"`
	Platforms []PlatformPrompts `json:"platforms"`
}

// PromptStrategy is the prompt stage payload.
type PromptStrategy struct {
	AudiencePrompts []AudiencePrompts `json:"audience_prompts"`
}

// CalculatedMetrics holds synthesized or reported performance numbers
// for one audience-platform pair.
type CalculatedMetrics struct {
	Audience     string  `json:"audience"`
	Platform     string  `json:"platform"`
	Impressions  int     `json:"impressions"`
	Clicks       int     `json:"clicks"`
	Redirects    int     `json:"redirects"`
	Conversions  int     `json:"conversions"`
	Likes        int     `json:"likes"`
	Cost         float64 `json:"cost"`
	Revenue      float64 `json:"revenue"`
	ROI          float64 `json:"roi"`
	CTR          float64 `json:"ctr"`
	RedirectRate float64 `json:"redirect_rate"`
}

// PerformanceAnalysis is the analytics stage payload, a derived view
// over content assets plus performance numbers.
type PerformanceAnalysis struct {
	ProductCost     float64             `json:"product_cost"`
	TotalRevenue    float64             `json:"total_revenue"`
	TotalCost       float64             `json:"total_cost"`
	OverallROI      float64             `json:"overall_roi"`
	PlatformMetrics []CalculatedMetrics `json:"platform_metrics"`
	BestPerforming  string              `json:"best_performing"`
	WorstPerforming string              `json:"worst_performing"`
}

// Recommendation is one optimization suggestion.
type Recommendation struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
}

// BudgetChange is a recommended budget reallocation for one pair.
type BudgetChange struct {
	Audience  string  `json:"audience"`
	Platform  string  `json:"platform"`
	OldAmount float64 `json:"old_amount"`
	NewAmount float64 `json:"new_amount"`
	Change    float64 `json:"change"`
}

// OptimizationDecision is the optimization stage payload.
type OptimizationDecision struct {
	Summary         string           `json:"summary"`
	Recommendations []Recommendation `json:"recommendations"`
	BudgetChanges   []BudgetChange   `json:"budget_changes"`
}
