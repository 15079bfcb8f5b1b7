package api

import (
	"log/slog"
	"net/http"

	"github.com/Isha1703/campaign-dashboard/internal/domain"
	"github.com/Isha1703/campaign-dashboard/internal/session"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
)

// ProgressSocket streams stage-change events for one session over a
// WebSocket, so the dashboard does not have to poll.
type ProgressSocket struct {
	sessions *session.Manager
	isDev    bool
}

// NewProgressSocket creates the progress stream handler.
func NewProgressSocket(sessions *session.Manager, isDev bool) *ProgressSocket {
	return &ProgressSocket{sessions: sessions, isDev: isDev}
}

// ServeHTTP upgrades the connection and forwards stage updates until
// the session reaches a terminal stage or the client goes away.
func (h *ProgressSocket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	sess, err := h.sessions.Get(sessionID)
	if err != nil {
		Error(w, StatusFromError(err), err.Error())
		return
	}

	updates, cancel, err := h.sessions.Watch(sessionID)
	if err != nil {
		Error(w, StatusFromError(err), err.Error())
		return
	}
	defer cancel()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: h.isDev,
	})
	if err != nil {
		slog.Warn("WebSocket accept failed", "session_id", sessionID, "error", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	ctx := r.Context()

	// Initial snapshot so late subscribers see the current stage.
	first := domain.StageUpdate{
		SessionID: sessionID,
		Stage:     sess.Stage,
		Error:     sess.LastError,
	}
	if err := wsjson.Write(ctx, conn, first); err != nil {
		return
	}
	if sess.Stage.Terminal() {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if err := wsjson.Write(ctx, conn, update); err != nil {
				slog.Debug("Progress stream write failed", "session_id", sessionID, "error", err)
				return
			}
			if update.Stage.Terminal() {
				return
			}
		}
	}
}
