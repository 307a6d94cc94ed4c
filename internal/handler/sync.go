package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dukerupert/recap/internal/auth"
	"github.com/dukerupert/recap/internal/syncer"
	"github.com/dukerupert/recap/internal/timerange"
	ws "github.com/dukerupert/recap/internal/websocket"
)

type SyncHandler struct {
	syncer *syncer.Service
	hub    *ws.Hub
	logger *slog.Logger
}

func NewSyncHandler(svc *syncer.Service, hub *ws.Hub, logger *slog.Logger) *SyncHandler {
	return &SyncHandler{syncer: svc, hub: hub, logger: logger}
}

type syncRequest struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Force bool   `json:"force"`
}

// Trigger runs one sync pass for the authenticated user over the requested
// window.
func (h *SyncHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	ac, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if ac.PlatformToken == "" {
		writeError(w, http.StatusBadRequest, "platform token header is required")
		return
	}

	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	start, err := parseFlexibleTime(req.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, "start must be RFC3339 or YYYY-MM-DD format")
		return
	}
	end, err := parseFlexibleTime(req.End)
	if err != nil {
		writeError(w, http.StatusBadRequest, "end must be RFC3339 or YYYY-MM-DD format")
		return
	}
	window := timerange.Range{Start: start, End: end}
	if !window.Valid() {
		writeError(w, http.StatusBadRequest, "start must be before end")
		return
	}

	out, err := h.syncer.RequestSync(r.Context(), ac.OrgID, ac.UserEmail, ac.PlatformToken, window, req.Force)
	if err != nil {
		h.logger.Error("sync pass failed", "org_id", ac.OrgID, "user", ac.UserEmail, "error", err)
		writeError(w, http.StatusBadGateway, "sync failed")
		return
	}

	h.hub.Notify(ac.OrgID, ac.UserEmail, ws.SyncCompleted(out.PassID, out.TranscriptsFound))
	writeJSON(w, http.StatusOK, out)
}
