package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Isha1703/campaign-dashboard/internal/analytics"
	"github.com/Isha1703/campaign-dashboard/internal/domain"
)

// KindSimulator identifies the degraded deterministic invoker.
const KindSimulator = "simulator"

// Simulator is the degraded invocation strategy: it recognizes each
// stage prompt by its role header, reads the structured inputs embedded
// in the prompt, and produces deterministic fenced-JSON output. Used
// when the primary model is unavailable and in tests.
type Simulator struct{}

// NewSimulator creates a deterministic simulator invoker.
func NewSimulator() *Simulator { return &Simulator{} }

// Kind identifies this invoker.
func (s *Simulator) Kind() string { return KindSimulator }

// Invoke produces a canned but input-derived response for the stage
// identified by the prompt's role header.
func (s *Simulator) Invoke(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	switch {
	case strings.Contains(prompt, roleAudience):
		return fence(s.audience())
	case strings.Contains(prompt, roleBudget):
		return fence(s.budget(prompt))
	case strings.Contains(prompt, rolePrompts):
		return fence(s.prompts(prompt))
	case strings.Contains(prompt, roleContent):
		return fence(s.content(prompt))
	case strings.Contains(prompt, roleRevision):
		return fence(s.revision(prompt))
	case strings.Contains(prompt, roleAnalytics):
		return fence(s.analytics(prompt))
	case strings.Contains(prompt, roleOptimization):
		return fence(s.optimization(prompt))
	default:
		return "", fmt.Errorf("unrecognized stage prompt")
	}
}

func (s *Simulator) audience() domain.AudienceAnalysis {
	return domain.AudienceAnalysis{Audiences: []domain.Audience{
		{
			Name:         "Health-Conscious Millennials",
			Demographics: "Ages 25-35, urban professionals, fitness enthusiasts",
			Platforms: []domain.AudiencePlatform{
				{Platform: "Instagram", Reason: "High engagement with fitness and lifestyle content"},
				{Platform: "TikTok", Reason: "Short-form wellness content performs strongly"},
			},
		},
		{
			Name:         "Tech-Savvy Gen Z",
			Demographics: "Ages 18-25, students and early professionals, tech adopters",
			Platforms: []domain.AudiencePlatform{
				{Platform: "TikTok", Reason: "Primary discovery channel for this cohort"},
				{Platform: "Instagram", Reason: "Product showcase and influencer reach"},
			},
		},
		{
			Name:         "Eco-Conscious Families",
			Demographics: "Ages 30-45, parents, sustainability focused",
			Platforms: []domain.AudiencePlatform{
				{Platform: "Facebook", Reason: "Family-oriented communities and groups"},
				{Platform: "Instagram", Reason: "Visual storytelling around sustainability"},
			},
		},
	}}
}

var budgetLine = regexp.MustCompile(`[Tt]otal budget:\s*\$?([0-9]+(?:\.[0-9]+)?)`)

func (s *Simulator) budget(prompt string) domain.BudgetAllocation {
	total := 1000.0
	if m := budgetLine.FindStringSubmatch(prompt); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			total = v
		}
	}

	audiences := s.audience().Audiences
	if aa, ok := findAudiences(prompt); ok {
		audiences = aa.Audiences
	}

	shares := []float64{0.40, 0.35, 0.25}
	alloc := domain.BudgetAllocation{TotalBudget: total}
	for i, aud := range audiences {
		share := 1.0 / float64(len(audiences))
		if i < len(shares) && len(audiences) == len(shares) {
			share = shares[i]
		}
		ab := domain.AudienceBudget{Audience: aud.Name, Total: total * share}
		platformShares := []float64{0.6, 0.4}
		for j, p := range aud.Platforms {
			ps := 1.0 / float64(len(aud.Platforms))
			if j < len(platformShares) && len(aud.Platforms) == 2 {
				ps = platformShares[j]
			}
			ab.Platforms = append(ab.Platforms, domain.PlatformBudget{
				Platform:   p.Platform,
				Amount:     ab.Total * ps,
				Percentage: share * ps * 100,
			})
		}
		alloc.Allocations = append(alloc.Allocations, ab)
	}
	return alloc
}

func (s *Simulator) prompts(prompt string) domain.PromptStrategy {
	audiences := s.audience().Audiences
	if aa, ok := findAudiences(prompt); ok {
		audiences = aa.Audiences
	}

	var strategy domain.PromptStrategy
	for _, aud := range audiences {
		ap := domain.AudiencePrompts{Audience: aud.Name}
		for _, p := range aud.Platforms {
			pp := domain.PlatformPrompts{
				Platform: p.Platform,
				Prompts: []domain.AdPrompt{
					{
						AdType: domain.AdTypeText,
						Prompt: fmt.Sprintf("Punchy %s copy speaking to %s", p.Platform, aud.Name),
						CTA:    "Shop now",
					},
					{
						AdType: domain.AdTypeImage,
						Prompt: fmt.Sprintf("Product hero shot styled for %s on %s", aud.Name, p.Platform),
						CTA:    "Learn more",
					},
				},
			}
			ap.Platforms = append(ap.Platforms, pp)
		}
		strategy.AudiencePrompts = append(strategy.AudiencePrompts, ap)
	}
	return strategy
}

func (s *Simulator) content(prompt string) domain.ContentSet {
	strategy, ok := findPromptStrategy(prompt)
	if !ok {
		strategy = s.prompts(prompt)
	}

	var set domain.ContentSet
	n := 0
	for _, ap := range strategy.AudiencePrompts {
		for _, pp := range ap.Platforms {
			for _, adPrompt := range pp.Prompts {
				n++
				asset := domain.ContentAsset{
					AssetID:  fmt.Sprintf("asset-%03d", n),
					Audience: ap.Audience,
					Platform: pp.Platform,
					AdType:   adPrompt.AdType,
					Status:   domain.AssetGenerated,
				}
				switch adPrompt.AdType {
				case domain.AdTypeImage:
					asset.Content = fmt.Sprintf("s3://campaign-assets/%s.png", asset.AssetID)
				case domain.AdTypeVideo:
					asset.Content = fmt.Sprintf("job://%s", asset.AssetID)
				default:
					cta := adPrompt.CTA
					if cta == "" {
						cta = "Shop now"
					}
					asset.Content = fmt.Sprintf("%s. %s!", adPrompt.Prompt, cta)
				}
				set.Ads = append(set.Ads, asset)
			}
		}
	}
	return set
}

var feedbackLine = regexp.MustCompile(`(?m)^User feedback:\s*(.+)$`)

func (s *Simulator) revision(prompt string) domain.ContentSet {
	set, ok := findContentSet(prompt)
	if !ok {
		set = s.content(prompt)
	}

	feedback := "general improvements"
	if m := feedbackLine.FindStringSubmatch(prompt); m != nil {
		feedback = strings.TrimSpace(m[1])
	}

	for i := range set.Ads {
		set.Ads[i].Status = domain.AssetRevised
		if !set.Ads[i].IsLocator() {
			set.Ads[i].Content = fmt.Sprintf("%s (reworked for: %s)", set.Ads[i].Content, feedback)
		}
	}
	return set
}

var productCostLine = regexp.MustCompile(`[Pp]roduct cost:\s*\$?([0-9]+(?:\.[0-9]+)?)`)

func (s *Simulator) analytics(prompt string) domain.PerformanceAnalysis {
	cost := 0.0
	if m := productCostLine.FindStringSubmatch(prompt); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			cost = v
		}
	}
	metrics, _ := findMetrics(prompt)
	return analytics.Aggregate(cost, metrics)
}

func (s *Simulator) optimization(prompt string) domain.OptimizationDecision {
	dec := domain.OptimizationDecision{
		Summary: "Shift spend toward the highest-ROI audience-platform pair and refresh underperforming creative.",
		Recommendations: []domain.Recommendation{
			{Type: "budget_reallocation", Description: "Move 10% of spend from the worst to the best performing pair", Priority: "high"},
			{Type: "audience_targeting", Description: "Narrow targeting on low-CTR audiences to raise relevance", Priority: "medium"},
			{Type: "creative_optimization", Description: "Refresh ad copy and imagery on below-average ROI placements", Priority: "medium"},
		},
	}

	pa, ok := findPerformance(prompt)
	if !ok {
		return dec
	}
	dec.Summary = fmt.Sprintf("Reallocate toward %s; %s is underperforming.", pa.BestPerforming, pa.WorstPerforming)
	for _, m := range pa.PlatformMetrics {
		if pairLabel(m) != pa.WorstPerforming && pairLabel(m) != pa.BestPerforming {
			continue
		}
		change := m.Cost * 0.10
		if pairLabel(m) == pa.WorstPerforming {
			change = -change
		}
		dec.BudgetChanges = append(dec.BudgetChanges, domain.BudgetChange{
			Audience:  m.Audience,
			Platform:  m.Platform,
			OldAmount: m.Cost,
			NewAmount: m.Cost + change,
			Change:    change,
		})
	}
	return dec
}

func pairLabel(m domain.CalculatedMetrics) string {
	return fmt.Sprintf("%s (%s)", m.Platform, m.Audience)
}

// fence wraps v in a ```json code block, exercising the primary parse
// path exactly as a real model response would.
func fence(v any) (string, error) {
	buf, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal simulated response: %w", err)
	}
	return "```json\n" + string(buf) + "\n```", nil
}

// fencedBlocks extracts every fenced JSON block embedded in a prompt.
func fencedBlocks(prompt string) []string {
	var blocks []string
	rest := prompt
	for {
		i := strings.Index(rest, "```json")
		if i < 0 {
			break
		}
		rest = rest[i+len("```json"):]
		end := strings.Index(rest, "```")
		if end < 0 {
			break
		}
		blocks = append(blocks, strings.TrimSpace(rest[:end]))
		rest = rest[end+len("```"):]
	}
	return blocks
}

func findAudiences(prompt string) (domain.AudienceAnalysis, bool) {
	for _, b := range fencedBlocks(prompt) {
		var aa domain.AudienceAnalysis
		if err := json.Unmarshal([]byte(b), &aa); err == nil && len(aa.Audiences) > 0 {
			return aa, true
		}
	}
	return domain.AudienceAnalysis{}, false
}

func findPromptStrategy(prompt string) (domain.PromptStrategy, bool) {
	for _, b := range fencedBlocks(prompt) {
		var ps domain.PromptStrategy
		if err := json.Unmarshal([]byte(b), &ps); err == nil && len(ps.AudiencePrompts) > 0 {
			return ps, true
		}
	}
	return domain.PromptStrategy{}, false
}

func findContentSet(prompt string) (domain.ContentSet, bool) {
	for _, b := range fencedBlocks(prompt) {
		var cs domain.ContentSet
		if err := json.Unmarshal([]byte(b), &cs); err == nil && len(cs.Ads) > 0 {
			return cs, true
		}
	}
	return domain.ContentSet{}, false
}

func findMetrics(prompt string) ([]domain.CalculatedMetrics, bool) {
	for _, b := range fencedBlocks(prompt) {
		var ms []domain.CalculatedMetrics
		if err := json.Unmarshal([]byte(b), &ms); err == nil && len(ms) > 0 {
			return ms, true
		}
	}
	return nil, false
}

func findPerformance(prompt string) (domain.PerformanceAnalysis, bool) {
	for _, b := range fencedBlocks(prompt) {
		var pa domain.PerformanceAnalysis
		if err := json.Unmarshal([]byte(b), &pa); err == nil && len(pa.PlatformMetrics) > 0 {
			return pa, true
		}
	}
	return domain.PerformanceAnalysis{}, false
}
