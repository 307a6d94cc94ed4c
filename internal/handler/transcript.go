package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/dukerupert/recap/internal/auth"
	"github.com/dukerupert/recap/internal/model"
	"github.com/dukerupert/recap/internal/store"
	"github.com/dukerupert/recap/internal/summary"
	ws "github.com/dukerupert/recap/internal/websocket"
)

type TranscriptHandler struct {
	summaries   *summary.Service
	transcripts *store.TranscriptStore
	hub         *ws.Hub
	logger      *slog.Logger
}

func NewTranscriptHandler(summaries *summary.Service, transcripts *store.TranscriptStore, hub *ws.Hub, logger *slog.Logger) *TranscriptHandler {
	return &TranscriptHandler{summaries: summaries, transcripts: transcripts, hub: hub, logger: logger}
}

type summaryRequest struct {
	OccurrenceID string `json:"occurrence_id"`
	MeetingID    string `json:"meeting_id"`
	TranscriptID string `json:"transcript_id"`
	Subject      string `json:"subject"`
}

// EnsureSummary returns the transcript with its summary, generating it when
// no request has before. The response's ai.status tells the caller whether
// to poll: queued means another request is generating.
func (h *TranscriptHandler) EnsureSummary(w http.ResponseWriter, r *http.Request) {
	ac, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req summaryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.OccurrenceID = strings.TrimSpace(req.OccurrenceID)
	req.MeetingID = strings.TrimSpace(req.MeetingID)
	req.TranscriptID = strings.TrimSpace(req.TranscriptID)
	if req.OccurrenceID == "" || req.MeetingID == "" || req.TranscriptID == "" {
		writeError(w, http.StatusBadRequest, "occurrence_id, meeting_id, and transcript_id are required")
		return
	}
	if ac.PlatformToken == "" {
		writeError(w, http.StatusBadRequest, "platform token header is required")
		return
	}

	t, err := h.summaries.EnsureSummary(r.Context(),
		ac.OrgID, req.OccurrenceID, req.MeetingID, req.TranscriptID, ac.PlatformToken, req.Subject)
	if err != nil {
		h.logger.Error("ensure summary failed", "org_id", ac.OrgID, "transcript", req.TranscriptID, "error", err)
		writeError(w, http.StatusBadGateway, "failed to prepare summary")
		return
	}

	if t.AI.Status == model.AIStatusDone || t.AI.Status == model.AIStatusError {
		h.hub.Notify(ac.OrgID, ac.UserEmail, ws.SummaryReady(t.ID, t.AI.Status))
	}
	writeJSON(w, http.StatusOK, t)
}

// Get serves one stored transcript, tenant-scoped.
func (h *TranscriptHandler) Get(w http.ResponseWriter, r *http.Request) {
	ac, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid transcript id")
		return
	}

	t, err := h.transcripts.GetByID(id)
	if err != nil {
		h.logger.Error("transcript lookup failed", "org_id", ac.OrgID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load transcript")
		return
	}
	if t == nil || t.OrgID != ac.OrgID {
		writeError(w, http.StatusNotFound, "transcript not found")
		return
	}
	if len(t.Participants) > 0 && !slices.Contains(t.Participants, strings.ToLower(ac.UserEmail)) {
		// Soft gate only: participant lists from captions are unreliable.
		h.logger.Warn("transcript read by non-participant",
			"org_id", ac.OrgID, "user", ac.UserEmail, "transcript_id", t.ID)
	}
	writeJSON(w, http.StatusOK, t)
}
