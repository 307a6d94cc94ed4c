package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/recap/internal/auth"
	"github.com/dukerupert/recap/internal/model"
	"github.com/dukerupert/recap/internal/store"
	"github.com/dukerupert/recap/internal/syncer"
	"github.com/dukerupert/recap/internal/timerange"
)

type EventsHandler struct {
	syncer *syncer.Service
	events *store.CachedEventStore
	logger *slog.Logger
}

func NewEventsHandler(svc *syncer.Service, events *store.CachedEventStore, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{syncer: svc, events: events, logger: logger}
}

// List serves the cached view of a window. It never reaches the platform;
// callers wanting fresh data trigger a sync first.
func (h *EventsHandler) List(w http.ResponseWriter, r *http.Request) {
	ac, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	startStr := r.URL.Query().Get("start")
	endStr := r.URL.Query().Get("end")
	if startStr == "" || endStr == "" {
		writeError(w, http.StatusBadRequest, "start and end query parameters are required")
		return
	}

	start, err := parseFlexibleTime(startStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "start must be RFC3339 or YYYY-MM-DD format")
		return
	}
	end, err := parseFlexibleTime(endStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "end must be RFC3339 or YYYY-MM-DD format")
		return
	}

	events, err := h.syncer.ReadCache(ac.OrgID, ac.UserEmail, timerange.Range{Start: start, End: end})
	if err != nil {
		h.logger.Error("cache read failed", "org_id", ac.OrgID, "user", ac.UserEmail, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	if events == nil {
		events = []model.CachedEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

// Get serves one cached event by its platform id.
func (h *EventsHandler) Get(w http.ResponseWriter, r *http.Request) {
	ac, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	event, err := h.events.GetByID(ac.OrgID, ac.UserEmail, r.PathValue("id"))
	if err != nil {
		h.logger.Error("event lookup failed", "org_id", ac.OrgID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load event")
		return
	}
	if event == nil {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}
	writeJSON(w, http.StatusOK, event)
}
