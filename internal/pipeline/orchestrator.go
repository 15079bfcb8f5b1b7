// Package pipeline drives campaign sessions through their staged
// generation pipeline and applies human feedback.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/Isha1703/campaign-dashboard/internal/agent"
	"github.com/Isha1703/campaign-dashboard/internal/analytics"
	"github.com/Isha1703/campaign-dashboard/internal/domain"
	"github.com/Isha1703/campaign-dashboard/internal/media"
	"github.com/Isha1703/campaign-dashboard/internal/session"
	"github.com/Isha1703/campaign-dashboard/internal/store"
	"github.com/containerd/errdefs"
)

// Options configures optional orchestrator collaborators.
type Options struct {
	// Resolver converts content locators to durable URLs. Nil leaves
	// locators untouched.
	Resolver media.Resolver
	// Poller waits for job:// locators. Nil leaves them untouched.
	Poller *media.Poller
	// MonitorWindow rate-limits read-only monitoring per session.
	MonitorWindow time.Duration
	// StageTimeout bounds a single agent invocation.
	StageTimeout time.Duration
}

// Orchestrator owns each session for its lifetime: it is the only
// mutator of session state, in response to stage completions and
// feedback. One logical run per session executes sequentially; runs for
// different sessions interleave freely.
type Orchestrator struct {
	repo     store.Repository
	sessions *session.Manager
	runner   *agent.Runner
	dedup    *Dedup
	opts     Options

	// feedbackLocks serializes feedback handling per session against
	// duplicate concurrent submissions.
	feedbackLocks sync.Map

	monitorMu   sync.Mutex
	lastMonitor map[string]time.Time
}

// New creates an orchestrator.
func New(repo store.Repository, sessions *session.Manager, runner *agent.Runner, opts Options) *Orchestrator {
	if opts.MonitorWindow <= 0 {
		opts.MonitorWindow = 2 * time.Second
	}
	if opts.StageTimeout <= 0 {
		opts.StageTimeout = 2 * time.Minute
	}
	return &Orchestrator{
		repo:        repo,
		sessions:    sessions,
		runner:      runner,
		dedup:       NewDedup(),
		opts:        opts,
		lastMonitor: make(map[string]time.Time),
	}
}

// StartCampaign validates the inputs, creates a session, and drives it
// asynchronously through audience, budget, prompt, and content
// generation to content review. The returned snapshot is the session in
// its initializing stage.
func (o *Orchestrator) StartCampaign(ctx context.Context, product string, productCost, budget float64) (domain.Session, error) {
	if strings.TrimSpace(product) == "" {
		return domain.Session{}, fmt.Errorf("product is required: %w", errdefs.ErrInvalidArgument)
	}
	if productCost <= 0 {
		return domain.Session{}, fmt.Errorf("product_cost must be positive: %w", errdefs.ErrInvalidArgument)
	}
	if budget <= 0 {
		return domain.Session{}, fmt.Errorf("budget must be positive: %w", errdefs.ErrInvalidArgument)
	}

	sess := o.sessions.Create(product, productCost, budget)
	if err := o.repo.UpsertSessionSummary(ctx, summaryOf(sess)); err != nil {
		return domain.Session{}, fmt.Errorf("persist session summary: %w", err)
	}

	slog.Info("Campaign started", "session_id", sess.ID, "product", product, "budget", budget)

	// The run outlives the originating request: an abandoned dashboard
	// does not cancel a campaign in flight.
	go o.run(context.Background(), sess.ID)

	return sess, nil
}

// run executes the linear stage chain for one session. A failure at any
// stage halts the chain and leaves prior results intact and queryable.
func (o *Orchestrator) run(ctx context.Context, id string) {
	sess, err := o.sessions.Get(id)
	if err != nil {
		slog.Error("Pipeline run lost its session", "session_id", id, "error", err)
		return
	}

	audiences, payload, err := invokeStage(ctx, o.opts.StageTimeout, func(sctx context.Context) (*domain.AudienceAnalysis, json.RawMessage, error) {
		return o.runner.Audience(sctx, sess.Product)
	})
	if err != nil {
		o.fail(ctx, id, agent.NameAudience, domain.LabelAudience, err)
		return
	}
	if err := o.completeStage(ctx, id, agent.NameAudience, domain.LabelAudience, payload, domain.StageAudienceDone); err != nil {
		o.fail(ctx, id, agent.NameAudience, domain.LabelAudience, err)
		return
	}

	allocation, payload, err := invokeStage(ctx, o.opts.StageTimeout, func(sctx context.Context) (*domain.BudgetAllocation, json.RawMessage, error) {
		return o.runner.Budget(sctx, sess.Product, sess.Budget, audiences)
	})
	if err != nil {
		o.fail(ctx, id, agent.NameBudget, domain.LabelBudget, err)
		return
	}
	if err := o.completeStage(ctx, id, agent.NameBudget, domain.LabelBudget, payload, domain.StageBudgetDone); err != nil {
		o.fail(ctx, id, agent.NameBudget, domain.LabelBudget, err)
		return
	}

	strategy, payload, err := invokeStage(ctx, o.opts.StageTimeout, func(sctx context.Context) (*domain.PromptStrategy, json.RawMessage, error) {
		return o.runner.Prompts(sctx, sess.Product, audiences, allocation)
	})
	if err != nil {
		o.fail(ctx, id, agent.NamePrompt, domain.LabelPrompts, err)
		return
	}
	if err := o.completeStage(ctx, id, agent.NamePrompt, domain.LabelPrompts, payload, domain.StagePromptsDone); err != nil {
		o.fail(ctx, id, agent.NamePrompt, domain.LabelPrompts, err)
		return
	}

	sctx, cancel := context.WithTimeout(ctx, o.opts.StageTimeout)
	assets, err := o.runner.Content(sctx, sess.Product, strategy)
	cancel()
	if err != nil {
		o.fail(ctx, id, agent.NameContent, domain.LabelContent, err)
		return
	}

	// Locator resolution happens before the content result is final.
	// Resolution failure marks the asset and moves on; it never blocks
	// the pipeline.
	assets = o.resolveAssets(ctx, id, assets)

	contentPayload, err := json.Marshal(domain.ContentSet{Ads: assets})
	if err != nil {
		o.fail(ctx, id, agent.NameContent, domain.LabelContent, fmt.Errorf("marshal content payload: %w", err))
		return
	}
	if err := o.repo.PutStageResult(ctx, id, o.runner.Result(agent.NameContent, domain.LabelContent, contentPayload)); err != nil {
		o.fail(ctx, id, agent.NameContent, domain.LabelContent, err)
		return
	}
	err = o.sessions.Update(id, func(s *domain.Session) error {
		s.RecordResult(domain.LabelContent, contentPayload)
		s.Assets = assets
		return nil
	})
	if err == nil {
		err = o.sessions.TransitionWithLabel(id, domain.StageContentReview, domain.LabelContent)
	}
	if err != nil {
		o.fail(ctx, id, agent.NameContent, domain.LabelContent, err)
		return
	}
	o.syncSummary(ctx, id)

	slog.Info("Campaign ready for review", "session_id", id, "assets", len(assets))
}

// invokeStage runs one agent call under the per-stage timeout.
func invokeStage[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, json.RawMessage, error)) (T, json.RawMessage, error) {
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(sctx)
}

// completeStage persists a completed result, records it on the session,
// and advances the state machine. Persistence happens first: a caller
// polling the store must see the result before the stage advances.
func (o *Orchestrator) completeStage(ctx context.Context, id, agentName, label string, payload json.RawMessage, next domain.Stage) error {
	if err := o.repo.PutStageResult(ctx, id, o.runner.Result(agentName, label, payload)); err != nil {
		return err
	}
	err := o.sessions.Update(id, func(s *domain.Session) error {
		s.RecordResult(label, payload)
		return nil
	})
	if err != nil {
		return err
	}
	if err := o.sessions.TransitionWithLabel(id, next, label); err != nil {
		return err
	}
	o.syncSummary(ctx, id)
	slog.Info("Stage completed", "session_id", id, "stage", label, "agent", agentName)
	return nil
}

// fail marks the current stage failed and moves the session to ERROR.
// Previously persisted results stay intact and queryable.
func (o *Orchestrator) fail(ctx context.Context, id, agentName, label string, cause error) {
	var malformed *agent.MalformedResponseError
	if errors.As(cause, &malformed) {
		slog.Error("Agent returned malformed response",
			"session_id", id, "stage", label, "agent", agentName, "raw", malformed.Raw)
	} else {
		slog.Error("Stage failed", "session_id", id, "stage", label, "agent", agentName, "error", cause)
	}

	failure, err := json.Marshal(map[string]string{"error": cause.Error()})
	if err == nil {
		result := o.runner.Result(agentName, label, failure)
		result.Status = domain.ResultFailed
		if putErr := o.repo.PutStageResult(ctx, id, result); putErr != nil {
			slog.Error("Failed to persist stage failure", "session_id", id, "stage", label, "error", putErr)
		}
	}

	if failErr := o.sessions.Fail(id, label, cause); failErr != nil {
		slog.Error("Failed to mark session errored", "session_id", id, "error", failErr)
	}
	o.syncSummary(ctx, id)
}

// resolveAssets converts locator-valued assets to durable URLs. Assets
// that cannot be resolved keep their locator with an error marker.
func (o *Orchestrator) resolveAssets(ctx context.Context, id string, assets []domain.ContentAsset) []domain.ContentAsset {
	for i, a := range assets {
		if !a.IsLocator() || a.ResolveError != "" {
			continue
		}

		var url string
		var err error
		switch {
		case strings.HasPrefix(a.Content, "job://"):
			if o.opts.Poller == nil {
				continue
			}
			url, err = o.opts.Poller.Wait(ctx, strings.TrimPrefix(a.Content, "job://"))
		default:
			if o.opts.Resolver == nil {
				continue
			}
			url, err = o.opts.Resolver.ResolveDurableURL(ctx, a.Content)
		}

		if err != nil {
			slog.Warn("Asset resolution failed",
				"session_id", id, "asset_id", a.AssetID, "locator", a.Content, "error", err)
			assets[i].ResolveError = err.Error()
			continue
		}
		assets[i].Content = url
	}
	return assets
}

// FeedbackResult is the session view returned after feedback handling.
type FeedbackResult struct {
	SessionID string          `json:"session_id"`
	Stage     domain.Stage    `json:"stage"`
	Result    json.RawMessage `json:"result,omitempty"`
	Message   string          `json:"message,omitempty"`
}

// ProvideFeedback dispatches approve/revise feedback for a session in
// content review. Duplicate submissions are idempotent: they return the
// already-persisted outcome without re-running the downstream pipeline.
func (o *Orchestrator) ProvideFeedback(ctx context.Context, id, feedbackType, feedbackText string) (*FeedbackResult, error) {
	if _, err := o.sessions.Get(id); err != nil {
		return nil, err
	}

	switch feedbackType {
	case domain.FeedbackApprove:
	case domain.FeedbackRevise:
		if strings.TrimSpace(feedbackText) == "" {
			return nil, fmt.Errorf("revise feedback requires feedback text: %w", errdefs.ErrInvalidArgument)
		}
	default:
		return nil, fmt.Errorf("unknown feedback type %q: %w", feedbackType, errdefs.ErrInvalidArgument)
	}

	// One feedback handler per session at a time; a concurrent duplicate
	// is rejected rather than queued.
	lock, _ := o.feedbackLocks.LoadOrStore(id, &sync.Mutex{})
	mutex := lock.(*sync.Mutex)
	if !mutex.TryLock() {
		return nil, fmt.Errorf("feedback already being processed: %w", errdefs.ErrConflict)
	}
	defer mutex.Unlock()

	// The replay check runs before the stage check: a session that already
	// processed its approve is COMPLETED and no longer accepts feedback,
	// yet a retransmitted approve must still see the persisted outcome.
	if !o.dedup.ShouldProcess(id, feedbackType) {
		return o.duplicateFeedbackView(ctx, id, feedbackType)
	}

	sess, err := o.sessions.Get(id)
	if err != nil {
		o.dedup.Release(id, feedbackType)
		return nil, err
	}
	if !sess.Stage.AcceptsFeedback() {
		// First-time feedback in the wrong stage is rejected, not recorded:
		// the key is freed so the same feedback works once review is reached.
		o.dedup.Release(id, feedbackType)
		return nil, fmt.Errorf("feedback not accepted in stage %s: %w", sess.Stage, errdefs.ErrFailedPrecondition)
	}

	switch feedbackType {
	case domain.FeedbackApprove:
		return o.approve(ctx, id)
	default:
		return o.revise(ctx, id, feedbackText)
	}
}

// duplicateFeedbackView answers a replayed feedback submission from
// persisted state, with no side effects.
func (o *Orchestrator) duplicateFeedbackView(ctx context.Context, id, feedbackType string) (*FeedbackResult, error) {
	sess, err := o.sessions.Get(id)
	if err != nil {
		return nil, err
	}

	view := &FeedbackResult{
		SessionID: id,
		Stage:     sess.Stage,
		Message:   fmt.Sprintf("%s feedback already processed", feedbackType),
	}
	if feedbackType == domain.FeedbackApprove {
		if payload, err := o.approvedPayload(ctx, id); err == nil {
			view.Result = payload
		}
	}
	slog.Info("Duplicate feedback suppressed", "session_id", id, "feedback_type", feedbackType)
	return view, nil
}

func (o *Orchestrator) approvedPayload(ctx context.Context, id string) (json.RawMessage, error) {
	analyticsResult, err := o.repo.GetStageResult(ctx, id, domain.LabelAnalytics)
	if err != nil {
		return nil, err
	}
	optResult, err := o.repo.GetStageResult(ctx, id, domain.LabelOptimization)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]json.RawMessage{
		"analytics":    analyticsResult.Payload,
		"optimization": optResult.Payload,
	})
}

// approve runs analytics and optimization synchronously and completes
// the session.
func (o *Orchestrator) approve(ctx context.Context, id string) (*FeedbackResult, error) {
	sess, err := o.sessions.Get(id)
	if err != nil {
		return nil, err
	}

	metrics := analytics.SampleMetrics(sess.Assets, sess.ProductCost, o.newRand())

	performance, analyticsPayload, err := invokeStage(ctx, o.opts.StageTimeout, func(sctx context.Context) (*domain.PerformanceAnalysis, json.RawMessage, error) {
		return o.runner.Analytics(sctx, sess.ProductCost, metrics)
	})
	if err != nil {
		o.dedup.Release(id, domain.FeedbackApprove)
		o.fail(ctx, id, agent.NameAnalytics, domain.LabelAnalytics, err)
		return nil, err
	}
	if err := o.repo.PutStageResult(ctx, id, o.runner.Result(agent.NameAnalytics, domain.LabelAnalytics, analyticsPayload)); err != nil {
		o.dedup.Release(id, domain.FeedbackApprove)
		return nil, err
	}

	var allocation domain.BudgetAllocation
	if raw, ok := sess.Results[domain.LabelBudget]; ok {
		if err := json.Unmarshal(raw, &allocation); err != nil {
			slog.Warn("Budget payload not decodable for optimization", "session_id", id, "error", err)
		}
	}

	_, optPayload, err := invokeStage(ctx, o.opts.StageTimeout, func(sctx context.Context) (*domain.OptimizationDecision, json.RawMessage, error) {
		return o.runner.Optimize(sctx, performance, &allocation)
	})
	if err != nil {
		o.dedup.Release(id, domain.FeedbackApprove)
		o.fail(ctx, id, agent.NameOptimization, domain.LabelOptimization, err)
		return nil, err
	}
	if err := o.repo.PutStageResult(ctx, id, o.runner.Result(agent.NameOptimization, domain.LabelOptimization, optPayload)); err != nil {
		o.dedup.Release(id, domain.FeedbackApprove)
		return nil, err
	}

	err = o.sessions.Update(id, func(s *domain.Session) error {
		s.RecordResult(domain.LabelAnalytics, analyticsPayload)
		s.RecordResult(domain.LabelOptimization, optPayload)
		return nil
	})
	if err == nil {
		err = o.sessions.TransitionWithLabel(id, domain.StageCompleted, domain.LabelOptimization)
	}
	if err != nil {
		o.dedup.Release(id, domain.FeedbackApprove)
		return nil, err
	}
	o.syncSummary(ctx, id)

	slog.Info("Campaign completed", "session_id", id)

	payload, err := json.Marshal(map[string]json.RawMessage{
		"analytics":    analyticsPayload,
		"optimization": optPayload,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal approval result: %w", err)
	}
	return &FeedbackResult{SessionID: id, Stage: domain.StageCompleted, Result: payload}, nil
}

// revise runs the revision agent against the current assets and merges
// the output in place, preserving every asset identity.
func (o *Orchestrator) revise(ctx context.Context, id, feedbackText string) (*FeedbackResult, error) {
	// The revise key is released when this revision finishes, so a later,
	// different revision is a new event; only in-flight duplicates collapse.
	defer o.dedup.Release(id, domain.FeedbackRevise)

	if err := o.sessions.Transition(id, domain.StageRevising); err != nil {
		return nil, err
	}

	sess, err := o.sessions.Get(id)
	if err != nil {
		return nil, err
	}

	sctx, cancel := context.WithTimeout(ctx, o.opts.StageTimeout)
	revised, err := o.runner.Revise(sctx, sess.Assets, feedbackText)
	cancel()
	if err != nil {
		o.fail(ctx, id, agent.NameRevision, domain.LabelContent, err)
		return nil, err
	}

	merged := mergeAssets(sess.Assets, revised)
	merged = o.resolveAssets(ctx, id, merged)

	payload, err := json.Marshal(domain.ContentSet{Ads: merged})
	if err != nil {
		return nil, fmt.Errorf("marshal revised content: %w", err)
	}

	// The revised result supersedes the original content result under
	// the same stage label; it never merges with it in the store.
	if err := o.repo.PutStageResult(ctx, id, o.runner.Result(agent.NameRevision, domain.LabelContent, payload)); err != nil {
		return nil, err
	}

	err = o.sessions.Update(id, func(s *domain.Session) error {
		s.RecordResult(domain.LabelContent, payload)
		s.Assets = merged
		return nil
	})
	if err == nil {
		err = o.sessions.TransitionWithLabel(id, domain.StageContentReview, domain.LabelContent)
	}
	if err != nil {
		return nil, err
	}
	o.syncSummary(ctx, id)

	slog.Info("Content revised", "session_id", id, "assets", len(merged))

	return &FeedbackResult{
		SessionID: id,
		Stage:     domain.StageContentReview,
		Result:    payload,
		Message:   "content revised; awaiting further review",
	}, nil
}

// mergeAssets applies revised assets onto the current set by asset_id.
// The identity set never changes: unknown revised ids are dropped and
// unrevised assets pass through untouched.
func mergeAssets(current, revised []domain.ContentAsset) []domain.ContentAsset {
	byID := make(map[string]domain.ContentAsset, len(revised))
	for _, r := range revised {
		byID[r.AssetID] = r
	}

	merged := make([]domain.ContentAsset, len(current))
	for i, a := range current {
		if r, ok := byID[a.AssetID]; ok {
			a.Content = r.Content
			a.Status = domain.AssetRevised
			if r.Status != "" {
				a.Status = r.Status
			}
			a.ResolveError = ""
		}
		merged[i] = a
	}
	return merged
}

// Monitor re-runs the analytics stage read-only over freshly
// synthesized performance numbers. Session stage is not mutated and
// nothing is persisted. Rate-limited per session.
func (o *Orchestrator) Monitor(ctx context.Context, id string) (*domain.PerformanceAnalysis, error) {
	sess, err := o.sessions.Get(id)
	if err != nil {
		return nil, err
	}
	if len(sess.Assets) == 0 {
		return nil, fmt.Errorf("no content assets to monitor: %w", errdefs.ErrFailedPrecondition)
	}

	o.monitorMu.Lock()
	last, seen := o.lastMonitor[id]
	if seen && time.Since(last) < o.opts.MonitorWindow {
		o.monitorMu.Unlock()
		return nil, fmt.Errorf("monitor rate limit: retry after %s: %w", o.opts.MonitorWindow, errdefs.ErrUnavailable)
	}
	o.lastMonitor[id] = time.Now()
	o.monitorMu.Unlock()

	metrics := analytics.SampleMetrics(sess.Assets, sess.ProductCost, o.newRand())
	performance, _, err := invokeStage(ctx, o.opts.StageTimeout, func(sctx context.Context) (*domain.PerformanceAnalysis, json.RawMessage, error) {
		return o.runner.Analytics(sctx, sess.ProductCost, metrics)
	})
	if err != nil {
		return nil, err
	}
	return performance, nil
}

func (o *Orchestrator) syncSummary(ctx context.Context, id string) {
	sess, err := o.sessions.Get(id)
	if err != nil {
		return
	}
	if err := o.repo.UpsertSessionSummary(ctx, summaryOf(sess)); err != nil {
		slog.Warn("Failed to update session summary", "session_id", id, "error", err)
	}
}

func summaryOf(s domain.Session) *domain.SessionSummary {
	return &domain.SessionSummary{
		SessionID:   s.ID,
		Product:     s.Product,
		ProductCost: s.ProductCost,
		Budget:      s.Budget,
		Stage:       s.Stage,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.LastUpdated,
	}
}

func (o *Orchestrator) newRand() *rand.Rand {
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}
