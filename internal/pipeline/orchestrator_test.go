package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Isha1703/campaign-dashboard/internal/agent"
	"github.com/Isha1703/campaign-dashboard/internal/domain"
	"github.com/Isha1703/campaign-dashboard/internal/session"
	"github.com/Isha1703/campaign-dashboard/internal/store"
	"github.com/containerd/errdefs"
)

type fakeResolver struct{}

func (fakeResolver) ResolveDurableURL(ctx context.Context, locator string) (string, error) {
	return "https://cdn.test/" + strings.TrimPrefix(locator, "s3://"), nil
}

// faultyInvoker fails any stage prompt containing failOn and delegates
// the rest to the simulator.
type faultyInvoker struct {
	inner  agent.Invoker
	failOn string
}

func (f *faultyInvoker) Invoke(ctx context.Context, prompt string) (string, error) {
	if strings.Contains(prompt, f.failOn) {
		return "", fmt.Errorf("model backend offline")
	}
	return f.inner.Invoke(ctx, prompt)
}

func (f *faultyInvoker) Kind() string { return f.inner.Kind() }

type testHarness struct {
	orch     *Orchestrator
	sessions *session.Manager
	repo     store.Repository
}

func newHarness(t *testing.T) *testHarness {
	return newHarnessWithInvoker(t, agent.NewSimulator())
}

func newHarnessWithInvoker(t *testing.T, inv agent.Invoker) *testHarness {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "campaigns.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	sessions := session.NewManager()
	runner := agent.NewRunner(agent.Selection{
		Invoker: inv,
		Kind:    agent.KindSimulator,
		Reason:  "test",
	})
	orch := New(repo, sessions, runner, Options{
		Resolver:      fakeResolver{},
		MonitorWindow: time.Millisecond,
		StageTimeout:  5 * time.Second,
	})
	return &testHarness{orch: orch, sessions: sessions, repo: repo}
}

// startToReview starts a campaign and waits for the pipeline to reach
// content review.
func (h *testHarness) startToReview(t *testing.T) domain.Session {
	t.Helper()
	sess, err := h.orch.StartCampaign(context.Background(), "insulated water bottle", 25, 1000)
	if err != nil {
		t.Fatalf("StartCampaign failed: %v", err)
	}

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		current, err := h.sessions.Get(sess.ID)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		switch current.Stage {
		case domain.StageContentReview:
			return current
		case domain.StageError:
			t.Fatalf("Pipeline errored: %s (stage %s)", current.LastError, current.FailedStage)
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("Pipeline did not reach content review in time")
	return domain.Session{}
}

func TestStartCampaignValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	cases := []struct {
		name        string
		product     string
		productCost float64
		budget      float64
	}{
		{"empty product", "  ", 25, 1000},
		{"zero product cost", "bottle", 0, 1000},
		{"negative budget", "bottle", 25, -5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.orch.StartCampaign(ctx, tc.product, tc.productCost, tc.budget)
			if !errdefs.IsInvalidArgument(err) {
				t.Errorf("Expected invalid argument, got %v", err)
			}
		})
	}
}

func TestPipelineReachesContentReview(t *testing.T) {
	h := newHarness(t)
	sess := h.startToReview(t)

	for _, label := range []string{
		domain.LabelAudience, domain.LabelBudget, domain.LabelPrompts, domain.LabelContent,
	} {
		if _, ok := sess.Results[label]; !ok {
			t.Errorf("Missing result for %s", label)
		}
	}
	if len(sess.Assets) == 0 {
		t.Fatal("Expected content assets")
	}
	for _, a := range sess.Assets {
		if strings.HasPrefix(a.Content, "s3://") {
			t.Errorf("Asset %s locator not resolved: %s", a.AssetID, a.Content)
		}
		if a.ResolveError != "" {
			t.Errorf("Asset %s has resolve error: %s", a.AssetID, a.ResolveError)
		}
	}

	progress, err := h.repo.Progress(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("Progress failed: %v", err)
	}
	if progress.CompletedCount != 4 {
		t.Errorf("Expected 4 completed stages, got %d", progress.CompletedCount)
	}
}

func TestApproveCompletesCampaign(t *testing.T) {
	h := newHarness(t)
	sess := h.startToReview(t)
	ctx := context.Background()

	view, err := h.orch.ProvideFeedback(ctx, sess.ID, domain.FeedbackApprove, "")
	if err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	if view.Stage != domain.StageCompleted {
		t.Errorf("Stage = %s, want %s", view.Stage, domain.StageCompleted)
	}

	var outcome struct {
		Analytics    domain.PerformanceAnalysis  `json:"analytics"`
		Optimization domain.OptimizationDecision `json:"optimization"`
	}
	if err := json.Unmarshal(view.Result, &outcome); err != nil {
		t.Fatalf("Decode approval result: %v", err)
	}
	if outcome.Analytics.TotalCost <= 0 {
		t.Errorf("TotalCost = %v, want > 0", outcome.Analytics.TotalCost)
	}
	if outcome.Analytics.TotalRevenue < 0 {
		t.Errorf("TotalRevenue = %v, want >= 0", outcome.Analytics.TotalRevenue)
	}
	if len(outcome.Optimization.Recommendations) == 0 {
		t.Error("Expected optimization recommendations")
	}

	for _, label := range []string{domain.LabelAnalytics, domain.LabelOptimization} {
		if _, err := h.repo.GetStageResult(ctx, sess.ID, label); err != nil {
			t.Errorf("Result %s not persisted: %v", label, err)
		}
	}

	progress, err := h.repo.Progress(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Progress failed: %v", err)
	}
	if progress.CompletedCount != domain.TotalStages {
		t.Errorf("Expected full progress, got %d/%d", progress.CompletedCount, progress.TotalCount)
	}
}

func TestDuplicateApproveIsIdempotent(t *testing.T) {
	h := newHarness(t)
	sess := h.startToReview(t)
	ctx := context.Background()

	first, err := h.orch.ProvideFeedback(ctx, sess.ID, domain.FeedbackApprove, "")
	if err != nil {
		t.Fatalf("Approve failed: %v", err)
	}

	// The session is COMPLETED by now; the replay must still succeed and
	// answer from persisted state rather than reject on stage.
	second, err := h.orch.ProvideFeedback(ctx, sess.ID, domain.FeedbackApprove, "")
	if err != nil {
		t.Fatalf("Duplicate approve failed: %v", err)
	}
	if second.Stage != domain.StageCompleted {
		t.Errorf("Duplicate stage = %s, want %s", second.Stage, domain.StageCompleted)
	}
	if second.Message == "" {
		t.Error("Duplicate should carry an explanatory message")
	}
	if len(second.Result) == 0 {
		t.Fatal("Duplicate approve should return the persisted outcome")
	}
	if string(first.Result) != string(second.Result) {
		t.Error("Duplicate approve should return the persisted outcome")
	}
}

func TestRejectedApproveDoesNotBlockLaterApprove(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	sess := h.sessions.Create("bottle", 25, 1000)
	if _, err := h.orch.ProvideFeedback(ctx, sess.ID, domain.FeedbackApprove, ""); !errdefs.IsFailedPrecondition(err) {
		t.Fatalf("Expected failed precondition, got %v", err)
	}

	// Walk the session to review; the earlier rejection must not count as
	// a processed approve.
	for _, stage := range []domain.Stage{
		domain.StageAudienceDone, domain.StageBudgetDone,
		domain.StagePromptsDone, domain.StageContentReview,
	} {
		if err := h.sessions.Transition(sess.ID, stage); err != nil {
			t.Fatalf("Transition to %s failed: %v", stage, err)
		}
	}

	view, err := h.orch.ProvideFeedback(ctx, sess.ID, domain.FeedbackApprove, "")
	if err != nil {
		t.Fatalf("Approve after rejection failed: %v", err)
	}
	if view.Stage != domain.StageCompleted {
		t.Errorf("Stage = %s, want %s", view.Stage, domain.StageCompleted)
	}
}

func TestReviseKeepsAssetIdentity(t *testing.T) {
	h := newHarness(t)
	sess := h.startToReview(t)
	ctx := context.Background()

	before := make(map[string]string, len(sess.Assets))
	for _, a := range sess.Assets {
		before[a.AssetID] = a.Content
	}

	view, err := h.orch.ProvideFeedback(ctx, sess.ID, domain.FeedbackRevise, "make the tone more playful")
	if err != nil {
		t.Fatalf("Revise failed: %v", err)
	}
	if view.Stage != domain.StageContentReview {
		t.Errorf("Stage = %s, want %s", view.Stage, domain.StageContentReview)
	}

	after, err := h.sessions.Get(sess.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(after.Assets) != len(before) {
		t.Fatalf("Asset count changed: %d -> %d", len(before), len(after.Assets))
	}
	textChanged := false
	for _, a := range after.Assets {
		if _, ok := before[a.AssetID]; !ok {
			t.Errorf("Unknown asset id after revision: %s", a.AssetID)
		}
		if a.Status != domain.AssetRevised {
			t.Errorf("Asset %s status = %s, want %s", a.AssetID, a.Status, domain.AssetRevised)
		}
		if a.AdType == domain.AdTypeText && a.Content != before[a.AssetID] {
			textChanged = true
		}
	}
	if !textChanged {
		t.Error("Expected at least one text asset reworked")
	}

	// The revised result supersedes the original under the content label.
	stored, err := h.repo.GetStageResult(ctx, sess.ID, domain.LabelContent)
	if err != nil {
		t.Fatalf("GetStageResult failed: %v", err)
	}
	if stored.AgentName != agent.NameRevision {
		t.Errorf("Stored agent = %s, want %s", stored.AgentName, agent.NameRevision)
	}
}

func TestReviseThenApprove(t *testing.T) {
	h := newHarness(t)
	sess := h.startToReview(t)
	ctx := context.Background()

	if _, err := h.orch.ProvideFeedback(ctx, sess.ID, domain.FeedbackRevise, "shorter copy"); err != nil {
		t.Fatalf("Revise failed: %v", err)
	}
	view, err := h.orch.ProvideFeedback(ctx, sess.ID, domain.FeedbackApprove, "")
	if err != nil {
		t.Fatalf("Approve after revise failed: %v", err)
	}
	if view.Stage != domain.StageCompleted {
		t.Errorf("Stage = %s, want %s", view.Stage, domain.StageCompleted)
	}
}

func TestReviseReleasedForLaterRevision(t *testing.T) {
	h := newHarness(t)
	sess := h.startToReview(t)
	ctx := context.Background()

	if _, err := h.orch.ProvideFeedback(ctx, sess.ID, domain.FeedbackRevise, "first pass"); err != nil {
		t.Fatalf("First revise failed: %v", err)
	}
	second, err := h.orch.ProvideFeedback(ctx, sess.ID, domain.FeedbackRevise, "second pass")
	if err != nil {
		t.Fatalf("Second revise failed: %v", err)
	}
	if second.Message != "" && strings.Contains(second.Message, "already processed") {
		t.Error("Completed revision should not suppress a later one")
	}
}

func TestFeedbackValidation(t *testing.T) {
	h := newHarness(t)
	sess := h.startToReview(t)
	ctx := context.Background()

	if _, err := h.orch.ProvideFeedback(ctx, sess.ID, domain.FeedbackRevise, "   "); !errdefs.IsInvalidArgument(err) {
		t.Errorf("Empty revise text: expected invalid argument, got %v", err)
	}
	if _, err := h.orch.ProvideFeedback(ctx, sess.ID, "escalate", ""); !errdefs.IsInvalidArgument(err) {
		t.Errorf("Unknown feedback type: expected invalid argument, got %v", err)
	}
	if _, err := h.orch.ProvideFeedback(ctx, "session-missing", domain.FeedbackApprove, ""); !errdefs.IsNotFound(err) {
		t.Errorf("Unknown session: expected not found, got %v", err)
	}
}

func TestFeedbackRejectedOutsideReview(t *testing.T) {
	h := newHarness(t)

	// A session that never ran its pipeline is still initializing.
	sess := h.sessions.Create("bottle", 25, 1000)
	_, err := h.orch.ProvideFeedback(context.Background(), sess.ID, domain.FeedbackApprove, "")
	if !errdefs.IsFailedPrecondition(err) {
		t.Errorf("Expected failed precondition, got %v", err)
	}
}

func TestMonitor(t *testing.T) {
	h := newHarness(t)
	sess := h.startToReview(t)
	ctx := context.Background()

	performance, err := h.orch.Monitor(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Monitor failed: %v", err)
	}
	if performance.TotalCost <= 0 {
		t.Errorf("TotalCost = %v, want > 0", performance.TotalCost)
	}
	if len(performance.PlatformMetrics) == 0 {
		t.Error("Expected platform metrics")
	}

	// Monitoring never mutates the session stage.
	current, err := h.sessions.Get(sess.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if current.Stage != domain.StageContentReview {
		t.Errorf("Monitor changed stage to %s", current.Stage)
	}

	if _, err := h.orch.Monitor(ctx, sess.ID); !errdefs.IsUnavailable(err) {
		t.Errorf("Expected rate limit, got %v", err)
	}
}

func TestMonitorRequiresAssets(t *testing.T) {
	h := newHarness(t)

	sess := h.sessions.Create("bottle", 25, 1000)
	_, err := h.orch.Monitor(context.Background(), sess.ID)
	if !errdefs.IsFailedPrecondition(err) {
		t.Errorf("Expected failed precondition, got %v", err)
	}
}

func TestStageFailureHaltsPipeline(t *testing.T) {
	h := newHarnessWithInvoker(t, &faultyInvoker{
		inner:  agent.NewSimulator(),
		failOn: "You are a media budget planner.",
	})
	ctx := context.Background()

	sess, err := h.orch.StartCampaign(ctx, "insulated water bottle", 25, 1000)
	if err != nil {
		t.Fatalf("StartCampaign failed: %v", err)
	}

	var errored domain.Session
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		current, err := h.sessions.Get(sess.ID)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if current.Stage == domain.StageError {
			errored = current
			break
		}
		if current.Stage == domain.StageContentReview {
			t.Fatal("Pipeline should have failed at budget allocation")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if errored.Stage != domain.StageError {
		t.Fatal("Session did not reach the error state in time")
	}

	if errored.FailedStage != domain.LabelBudget {
		t.Errorf("FailedStage = %s, want %s", errored.FailedStage, domain.LabelBudget)
	}
	if errored.LastError == "" {
		t.Error("Expected failure detail on the session")
	}

	// The completed audience result stays intact and queryable.
	audience, err := h.repo.GetStageResult(ctx, sess.ID, domain.LabelAudience)
	if err != nil {
		t.Fatalf("Audience result lost after failure: %v", err)
	}
	if audience.Status != domain.ResultCompleted {
		t.Errorf("Audience status = %s, want %s", audience.Status, domain.ResultCompleted)
	}

	// The failing stage persists a failed result carrying the cause.
	budget, err := h.repo.GetStageResult(ctx, sess.ID, domain.LabelBudget)
	if err != nil {
		t.Fatalf("Failed stage result not persisted: %v", err)
	}
	if budget.Status != domain.ResultFailed {
		t.Errorf("Budget status = %s, want %s", budget.Status, domain.ResultFailed)
	}
	var failure struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(budget.Payload, &failure); err != nil || failure.Error == "" {
		t.Errorf("Failed payload should carry the cause, got %s", budget.Payload)
	}

	progress, err := h.repo.Progress(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Progress failed: %v", err)
	}
	if progress.CompletedCount != 1 {
		t.Errorf("CompletedCount = %d, want 1", progress.CompletedCount)
	}
}

func TestMergeAssetsDropsUnknownIDs(t *testing.T) {
	current := []domain.ContentAsset{
		{AssetID: "asset-001", Content: "original", AdType: domain.AdTypeText, Status: domain.AssetGenerated},
		{AssetID: "asset-002", Content: "https://cdn.test/a.png", AdType: domain.AdTypeImage, Status: domain.AssetGenerated},
	}
	revised := []domain.ContentAsset{
		{AssetID: "asset-001", Content: "reworked"},
		{AssetID: "asset-999", Content: "injected"},
	}

	merged := mergeAssets(current, revised)
	if len(merged) != 2 {
		t.Fatalf("Expected 2 assets, got %d", len(merged))
	}
	if merged[0].Content != "reworked" || merged[0].Status != domain.AssetRevised {
		t.Errorf("Revision not applied: %+v", merged[0])
	}
	if merged[1].Content != "https://cdn.test/a.png" {
		t.Errorf("Unrevised asset changed: %+v", merged[1])
	}
	for _, a := range merged {
		if a.AssetID == "asset-999" {
			t.Error("Unknown asset id must be dropped")
		}
	}
}
