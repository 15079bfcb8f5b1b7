package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/Isha1703/campaign-dashboard/internal/domain"
	"github.com/Isha1703/campaign-dashboard/internal/pipeline"
	"github.com/Isha1703/campaign-dashboard/internal/session"
	"github.com/Isha1703/campaign-dashboard/internal/store"
	"github.com/go-chi/chi/v5"
)

// maxRequestBodySize bounds campaign request bodies (1MB).
const maxRequestBodySize = 1 << 20

// CampaignHandler serves the campaign lifecycle endpoints.
type CampaignHandler struct {
	repo     store.Repository
	sessions *session.Manager
	orch     *pipeline.Orchestrator
}

// NewCampaignHandler creates a campaign handler.
func NewCampaignHandler(repo store.Repository, sessions *session.Manager, orch *pipeline.Orchestrator) *CampaignHandler {
	return &CampaignHandler{repo: repo, sessions: sessions, orch: orch}
}

// RegisterRoutes registers campaign routes.
func (h *CampaignHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/campaign/start", h.Start)
		r.Post("/campaign/feedback", h.Feedback)
		r.Get("/campaign/{sessionID}", h.GetSession)
		r.Get("/campaign/{sessionID}/progress", h.Progress)
		r.Get("/campaign/{sessionID}/agent/{stageLabel}", h.AgentResult)
		r.Get("/campaign/{sessionID}/results", h.Results)
		r.Post("/campaign/{sessionID}/monitor", h.Monitor)
		r.Get("/sessions", h.ListSessions)
		r.Get("/health", h.Health)
	})
}

type startRequest struct {
	Product     string  `json:"product"`
	ProductCost float64 `json:"product_cost"`
	Budget      float64 `json:"budget"`
}

// Start creates a session and launches the generation pipeline.
func (h *CampaignHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, err := h.orch.StartCampaign(r.Context(), req.Product, req.ProductCost, req.Budget)
	if err != nil {
		slog.Warn("Campaign start rejected", "error", err)
		Error(w, StatusFromError(err), err.Error())
		return
	}

	OK(w, map[string]interface{}{
		"session_id": sess.ID,
		"stage":      sess.Stage,
		"progress":   0,
	})
}

// Feedback applies approve/revise feedback to a session in review.
func (h *CampaignHandler) Feedback(w http.ResponseWriter, r *http.Request) {
	var req domain.FeedbackEvent
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == "" {
		Error(w, http.StatusBadRequest, "session_id is required")
		return
	}

	result, err := h.orch.ProvideFeedback(r.Context(), req.SessionID, req.FeedbackType, req.FeedbackText)
	if err != nil {
		stage := ""
		if sess, serr := h.sessions.Get(req.SessionID); serr == nil {
			stage = string(sess.Stage)
		}
		slog.Warn("Feedback rejected", "session_id", req.SessionID, "feedback_type", req.FeedbackType, "error", err)
		ErrorAtStage(w, StatusFromError(err), err.Error(), stage)
		return
	}

	OK(w, map[string]interface{}{
		"stage":   result.Stage,
		"result":  result.Result,
		"message": result.Message,
	})
}

// GetSession returns the live session view.
func (h *CampaignHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		Error(w, StatusFromError(err), err.Error())
		return
	}

	OK(w, map[string]interface{}{
		"session_id":   sess.ID,
		"product":      sess.Product,
		"product_cost": sess.ProductCost,
		"budget":       sess.Budget,
		"stage":        sess.Stage,
		"assets":       sess.Assets,
		"error":        sess.LastError,
		"failed_stage": sess.FailedStage,
		"created_at":   sess.CreatedAt,
		"last_updated": sess.LastUpdated,
	})
}

// Progress returns the derived completion view from the result store,
// so callers can poll it even if the in-memory session is gone.
func (h *CampaignHandler) Progress(w http.ResponseWriter, r *http.Request) {
	progress, err := h.repo.Progress(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		Error(w, StatusFromError(err), err.Error())
		return
	}

	OK(w, map[string]interface{}{
		"stage":               progress.Stage,
		"progress_percentage": progress.Percentage,
		"completed_stages":    progress.CompletedStages,
		"completed_count":     progress.CompletedCount,
		"total_count":         progress.TotalCount,
	})
}

// AgentResult returns the persisted stage result for one stage label.
func (h *CampaignHandler) AgentResult(w http.ResponseWriter, r *http.Request) {
	result, err := h.repo.GetStageResult(r.Context(), chi.URLParam(r, "sessionID"), chi.URLParam(r, "stageLabel"))
	if err != nil {
		Error(w, StatusFromError(err), err.Error())
		return
	}
	OK(w, map[string]interface{}{"result": result})
}

// Results returns every persisted stage result for a session in
// completion order.
func (h *CampaignHandler) Results(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if _, err := h.repo.GetSessionSummary(r.Context(), sessionID); err != nil {
		Error(w, StatusFromError(err), err.Error())
		return
	}

	results, err := h.repo.ListStageResults(r.Context(), sessionID)
	if err != nil {
		Error(w, StatusFromError(err), err.Error())
		return
	}
	OK(w, map[string]interface{}{"results": results})
}

// Monitor re-runs analytics read-only over current assets.
func (h *CampaignHandler) Monitor(w http.ResponseWriter, r *http.Request) {
	performance, err := h.orch.Monitor(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		Error(w, StatusFromError(err), err.Error())
		return
	}
	OK(w, map[string]interface{}{"performance": performance})
}

// ListSessions returns all known session summaries.
func (h *CampaignHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.repo.ListSessionSummaries(r.Context())
	if err != nil {
		Error(w, StatusFromError(err), err.Error())
		return
	}
	OK(w, map[string]interface{}{"sessions": summaries, "count": len(summaries)})
}

// Health reports service and store health.
func (h *CampaignHandler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Ping(r.Context()); err != nil {
		Error(w, http.StatusServiceUnavailable, "store unreachable")
		return
	}
	OK(w, map[string]interface{}{"status": "healthy", "time": time.Now().UTC()})
}
