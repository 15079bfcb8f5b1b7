package agent

import (
	"context"
	"testing"

	"github.com/Isha1703/campaign-dashboard/internal/domain"
)

func simRunner() *Runner {
	return NewRunner(Selection{Invoker: NewSimulator(), Kind: KindSimulator, Reason: "test"})
}

func TestAudienceAgent(t *testing.T) {
	r := simRunner()

	audiences, payload, err := r.Audience(context.Background(), "insulated water bottle")
	if err != nil {
		t.Fatalf("Audience failed: %v", err)
	}
	if len(audiences.Audiences) != 3 {
		t.Fatalf("Expected 3 audience groups, got %d", len(audiences.Audiences))
	}
	if len(payload) == 0 {
		t.Error("Expected canonical payload bytes")
	}
	for _, a := range audiences.Audiences {
		if a.Name == "" || len(a.Platforms) == 0 {
			t.Errorf("Audience %+v missing name or platforms", a)
		}
	}
}

func TestBudgetAgentAllocatesFullBudget(t *testing.T) {
	r := simRunner()
	ctx := context.Background()

	audiences, _, err := r.Audience(ctx, "insulated water bottle")
	if err != nil {
		t.Fatalf("Audience failed: %v", err)
	}

	allocation, _, err := r.Budget(ctx, "insulated water bottle", 1000, audiences)
	if err != nil {
		t.Fatalf("Budget failed: %v", err)
	}
	if allocation.TotalBudget != 1000 {
		t.Errorf("Expected total budget 1000, got %v", allocation.TotalBudget)
	}

	var allocated float64
	for _, ab := range allocation.Allocations {
		allocated += ab.Total
	}
	if allocated < 999.9 || allocated > 1000.1 {
		t.Errorf("Allocations should sum to the budget, got %v", allocated)
	}
}

func TestContentAgentCoversAudiencePlatformPairs(t *testing.T) {
	r := simRunner()
	ctx := context.Background()

	audiences, _, err := r.Audience(ctx, "insulated water bottle")
	if err != nil {
		t.Fatalf("Audience failed: %v", err)
	}
	allocation, _, err := r.Budget(ctx, "insulated water bottle", 1000, audiences)
	if err != nil {
		t.Fatalf("Budget failed: %v", err)
	}
	strategy, _, err := r.Prompts(ctx, "insulated water bottle", audiences, allocation)
	if err != nil {
		t.Fatalf("Prompts failed: %v", err)
	}
	assets, err := r.Content(ctx, "insulated water bottle", strategy)
	if err != nil {
		t.Fatalf("Content failed: %v", err)
	}

	type pair struct{ audience, platform string }
	covered := make(map[pair]int)
	ids := make(map[string]bool)
	for _, a := range assets {
		if ids[a.AssetID] {
			t.Errorf("Duplicate asset_id %q", a.AssetID)
		}
		ids[a.AssetID] = true
		covered[pair{a.Audience, a.Platform}]++
	}

	for _, aud := range audiences.Audiences {
		for _, p := range aud.Platforms {
			if covered[pair{aud.Name, p.Platform}] == 0 {
				t.Errorf("No asset for pair (%s, %s)", aud.Name, p.Platform)
			}
		}
	}
}

func TestReviseKeepsAssetIdentity(t *testing.T) {
	r := simRunner()
	ctx := context.Background()

	assets := []domain.ContentAsset{
		{AssetID: "asset-001", Audience: "Gen Z", Platform: "TikTok", AdType: domain.AdTypeText, Content: "Original copy", Status: domain.AssetGenerated},
		{AssetID: "asset-002", Audience: "Gen Z", Platform: "TikTok", AdType: domain.AdTypeImage, Content: "https://cdn.example.com/a.png", Status: domain.AssetGenerated},
	}

	revised, err := r.Revise(ctx, assets, "make the tone more playful")
	if err != nil {
		t.Fatalf("Revise failed: %v", err)
	}
	if len(revised) != len(assets) {
		t.Fatalf("Expected %d assets back, got %d", len(assets), len(revised))
	}
	for i, a := range revised {
		if a.AssetID != assets[i].AssetID {
			t.Errorf("asset_id changed: %q -> %q", assets[i].AssetID, a.AssetID)
		}
		if a.Status != domain.AssetRevised {
			t.Errorf("Expected status revised, got %q", a.Status)
		}
	}
	if revised[0].Content == assets[0].Content {
		t.Error("Expected text asset content to change after revision")
	}
}

func TestAnalyticsAgentAggregates(t *testing.T) {
	r := simRunner()

	metrics := []domain.CalculatedMetrics{
		{Audience: "Gen Z", Platform: "TikTok", Impressions: 10000, Clicks: 400, Conversions: 20, Cost: 200, Revenue: 500, ROI: 150},
		{Audience: "Families", Platform: "Facebook", Impressions: 8000, Clicks: 150, Conversions: 5, Cost: 180, Revenue: 125, ROI: -30.6},
	}

	performance, _, err := r.Analytics(context.Background(), 25, metrics)
	if err != nil {
		t.Fatalf("Analytics failed: %v", err)
	}
	if performance.TotalCost != 380 {
		t.Errorf("Expected total cost 380, got %v", performance.TotalCost)
	}
	if performance.TotalRevenue != 625 {
		t.Errorf("Expected total revenue 625, got %v", performance.TotalRevenue)
	}
	if performance.BestPerforming != "TikTok (Gen Z)" {
		t.Errorf("Unexpected best performer %q", performance.BestPerforming)
	}
	if performance.WorstPerforming != "Facebook (Families)" {
		t.Errorf("Unexpected worst performer %q", performance.WorstPerforming)
	}
}

func TestOptimizationAgentRecommends(t *testing.T) {
	r := simRunner()

	performance := &domain.PerformanceAnalysis{
		ProductCost:     25,
		TotalCost:       380,
		TotalRevenue:    625,
		BestPerforming:  "TikTok (Gen Z)",
		WorstPerforming: "Facebook (Families)",
		PlatformMetrics: []domain.CalculatedMetrics{
			{Audience: "Gen Z", Platform: "TikTok", Cost: 200, ROI: 150},
			{Audience: "Families", Platform: "Facebook", Cost: 180, ROI: -30.6},
		},
	}

	decision, _, err := r.Optimize(context.Background(), performance, &domain.BudgetAllocation{})
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}
	if len(decision.Recommendations) == 0 {
		t.Error("Expected at least one recommendation")
	}
	if len(decision.BudgetChanges) == 0 {
		t.Error("Expected budget changes for best/worst pairs")
	}
	for _, bc := range decision.BudgetChanges {
		if bc.Audience == "Families" && bc.Change >= 0 {
			t.Errorf("Expected budget cut for worst performer, got %+v", bc)
		}
	}
}
