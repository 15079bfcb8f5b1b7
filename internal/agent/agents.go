package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Isha1703/campaign-dashboard/internal/domain"
)

// Agent names recorded on stage results.
const (
	NameAudience     = "AudienceAgent"
	NameBudget       = "BudgetAgent"
	NamePrompt       = "PromptAgent"
	NameContent      = "ContentGenerationAgent"
	NameRevision     = "ContentRevisionAgent"
	NameAnalytics    = "AnalyticsAgent"
	NameOptimization = "OptimizationAgent"
)

// Role headers open every stage prompt. The simulator dispatches on
// them; the primary model treats them as system framing.
const (
	roleAudience     = "You are a marketing audience analyst."
	roleBudget       = "You are a media budget planner."
	rolePrompts      = "You are a creative strategist."
	roleContent      = "You are an ad content producer."
	roleRevision     = "You are a content revision specialist."
	roleAnalytics    = "You are a campaign performance analyst."
	roleOptimization = "You are a campaign optimization strategist."
)

// Runner executes the stage agents against the selected invoker and
// decodes their responses into typed payloads.
type Runner struct {
	sel Selection
}

// NewRunner creates a stage agent runner.
func NewRunner(sel Selection) *Runner {
	return &Runner{sel: sel}
}

// Selection returns the invoker selection in use.
func (r *Runner) Selection() Selection { return r.sel }

// run invokes the named agent, parses its output into out, and returns
// the canonical payload bytes for persistence.
func (r *Runner) run(ctx context.Context, name, prompt string, out any) (json.RawMessage, error) {
	raw, err := r.sel.Invoker.Invoke(ctx, prompt)
	if err != nil {
		return nil, &InvocationError{Agent: name, Err: err}
	}
	if err := DecodeResponse(raw, out); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	payload, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal payload: %w", name, err)
	}
	return payload, nil
}

// Result builds a completed stage result carrying invoker metadata.
func (r *Runner) Result(name, label string, payload json.RawMessage) *domain.StageResult {
	return &domain.StageResult{
		AgentName:     name,
		StageLabel:    label,
		Timestamp:     time.Now().UTC(),
		Status:        domain.ResultCompleted,
		Payload:       payload,
		Invoker:       r.sel.Kind,
		InvokerReason: r.sel.Reason,
	}
}

// Audience discovers target audience groups for the product.
func (r *Runner) Audience(ctx context.Context, product string) (*domain.AudienceAnalysis, json.RawMessage, error) {
	prompt := fmt.Sprintf(`%s
Identify exactly 3 distinct target audience groups for the product below.
For each group give a name, demographics, and the social platforms best
suited to reach it, with a short reason per platform.

Product: %s

Respond with a single fenced JSON object:
{"audiences": [{"name": "...", "demographics": "...", "platforms": [{"platform": "...", "reason": "..."}]}]}`,
		roleAudience, product)

	var out domain.AudienceAnalysis
	payload, err := r.run(ctx, NameAudience, prompt, &out)
	if err != nil {
		return nil, nil, err
	}
	if len(out.Audiences) == 0 {
		return nil, nil, fmt.Errorf("%s: no audience groups in response", NameAudience)
	}
	return &out, payload, nil
}

// Budget allocates the campaign budget across audiences and platforms.
func (r *Runner) Budget(ctx context.Context, product string, budget float64, audiences *domain.AudienceAnalysis) (*domain.BudgetAllocation, json.RawMessage, error) {
	audienceJSON, err := marshalBlock(audiences)
	if err != nil {
		return nil, nil, err
	}
	prompt := fmt.Sprintf(`%s
Allocate the campaign budget across the audience groups and their
platforms, weighting by expected return.

Product: %s
Total budget: %.2f

Audience analysis:
%s

Respond with a single fenced JSON object:
{"total_budget": 0, "allocations": [{"audience": "...", "total": 0, "platforms": [{"platform": "...", "amount": 0, "percentage": 0}]}]}`,
		roleBudget, product, budget, audienceJSON)

	var out domain.BudgetAllocation
	payload, err := r.run(ctx, NameBudget, prompt, &out)
	if err != nil {
		return nil, nil, err
	}
	return &out, payload, nil
}

// Prompts produces per-audience, per-platform creative briefs.
func (r *Runner) Prompts(ctx context.Context, product string, audiences *domain.AudienceAnalysis, budget *domain.BudgetAllocation) (*domain.PromptStrategy, json.RawMessage, error) {
	audienceJSON, err := marshalBlock(audiences)
	if err != nil {
		return nil, nil, err
	}
	budgetJSON, err := marshalBlock(budget)
	if err != nil {
		return nil, nil, err
	}
	prompt := fmt.Sprintf(`%s
Create ad prompts for each audience-platform pair below. Cover text and
image ad types per pair, each with a call to action.

Product: %s

Audience analysis:
%s

Budget allocation:
%s

Respond with a single fenced JSON object:
{"audience_prompts": [{"audience": "...", "platforms": [{"platform": "...", "prompts": [{"ad_type": "text_ad|image_ad|video_ad", "prompt": "...", "cta": "..."}]}]}]}`,
		rolePrompts, product, audienceJSON, budgetJSON)

	var out domain.PromptStrategy
	payload, err := r.run(ctx, NamePrompt, prompt, &out)
	if err != nil {
		return nil, nil, err
	}
	return &out, payload, nil
}

// Content generates one advertisement unit per creative brief.
func (r *Runner) Content(ctx context.Context, product string, strategy *domain.PromptStrategy) ([]domain.ContentAsset, error) {
	strategyJSON, err := marshalBlock(strategy)
	if err != nil {
		return nil, err
	}
	prompt := fmt.Sprintf(`%s
Produce one advertisement per prompt below. Text ads carry the finished
copy inline; image and video ads reference their generated media by
locator. Give every ad a unique asset_id.

Product: %s

Prompt strategy:
%s

Respond with a single fenced JSON object:
{"ads": [{"asset_id": "...", "audience": "...", "platform": "...", "ad_type": "...", "content": "...", "status": "generated"}]}`,
		roleContent, product, strategyJSON)

	var out map[string]any
	if _, err := r.run(ctx, NameContent, prompt, &out); err != nil {
		return nil, err
	}
	assets, err := domain.NormalizeAssets(out)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", NameContent, err)
	}
	return assets, nil
}

// Revise rewrites the current assets according to human feedback,
// preserving every asset_id.
func (r *Runner) Revise(ctx context.Context, assets []domain.ContentAsset, feedback string) ([]domain.ContentAsset, error) {
	assetsJSON, err := marshalBlock(domain.ContentSet{Ads: assets})
	if err != nil {
		return nil, err
	}
	prompt := fmt.Sprintf(`%s
Revise the advertisements below according to the user feedback. Keep
every asset_id unchanged; update content and set status to "revised".

User feedback: %s

Current content:
%s

Respond with a single fenced JSON object of the same shape.`,
		roleRevision, feedback, assetsJSON)

	var out map[string]any
	if _, err := r.run(ctx, NameRevision, prompt, &out); err != nil {
		return nil, err
	}
	revised, err := domain.NormalizeAssets(out)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", NameRevision, err)
	}
	return revised, nil
}

// Analytics analyzes campaign performance from synthesized or reported
// metrics. Read-only with respect to assets.
func (r *Runner) Analytics(ctx context.Context, productCost float64, metrics []domain.CalculatedMetrics) (*domain.PerformanceAnalysis, json.RawMessage, error) {
	metricsJSON, err := marshalBlock(metrics)
	if err != nil {
		return nil, nil, err
	}
	prompt := fmt.Sprintf(`%s
Analyze the campaign performance metrics below: totals, overall ROI,
and the best and worst performing audience-platform pairs.

Product cost: %.2f

Metrics:
%s

Respond with a single fenced JSON object:
{"product_cost": 0, "total_revenue": 0, "total_cost": 0, "overall_roi": 0, "platform_metrics": [...], "best_performing": "...", "worst_performing": "..."}`,
		roleAnalytics, productCost, metricsJSON)

	var out domain.PerformanceAnalysis
	payload, err := r.run(ctx, NameAnalytics, prompt, &out)
	if err != nil {
		return nil, nil, err
	}
	return &out, payload, nil
}

// Optimize turns the performance analysis into actionable budget and
// creative recommendations.
func (r *Runner) Optimize(ctx context.Context, performance *domain.PerformanceAnalysis, budget *domain.BudgetAllocation) (*domain.OptimizationDecision, json.RawMessage, error) {
	perfJSON, err := marshalBlock(performance)
	if err != nil {
		return nil, nil, err
	}
	budgetJSON, err := marshalBlock(budget)
	if err != nil {
		return nil, nil, err
	}
	prompt := fmt.Sprintf(`%s
Recommend optimizations for the campaign below: budget reallocations,
targeting adjustments, and creative changes, each with a priority.

Performance analysis:
%s

Current budget allocation:
%s

Respond with a single fenced JSON object:
{"summary": "...", "recommendations": [{"type": "...", "description": "...", "priority": "..."}], "budget_changes": [{"audience": "...", "platform": "...", "old_amount": 0, "new_amount": 0, "change": 0}]}`,
		roleOptimization, perfJSON, budgetJSON)

	var out domain.OptimizationDecision
	payload, err := r.run(ctx, NameOptimization, prompt, &out)
	if err != nil {
		return nil, nil, err
	}
	return &out, payload, nil
}

func marshalBlock(v any) (string, error) {
	buf, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal prompt input: %w", err)
	}
	return "```json\n" + string(buf) + "\n```", nil
}
