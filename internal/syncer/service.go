// Package syncer orchestrates incremental calendar synchronization: it
// plans which ranges still need fetching, pulls events from the platform,
// annotates them with transcript presence, and persists the results.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/recap/internal/meeting"
	"github.com/dukerupert/recap/internal/metrics"
	"github.com/dukerupert/recap/internal/model"
	"github.com/dukerupert/recap/internal/store"
	"github.com/dukerupert/recap/internal/timerange"
)

// CalendarSource is the slice of the platform client the syncer needs.
type CalendarSource interface {
	ListCalendarView(ctx context.Context, token string, window timerange.Range) ([]model.CalendarEvent, error)
}

// Annotator tags fetched events with transcript presence.
type Annotator interface {
	Annotate(ctx context.Context, token string, events []model.CalendarEvent) []meeting.Annotation
}

// Outcome summarizes one sync pass. Events holds the cached view of the
// requested window after the pass, so callers get fresh reads without a
// second round trip.
type Outcome struct {
	PassID           string              `json:"pass_id"`
	Ranges           []timerange.Range   `json:"ranges"`
	BackfillRan      bool                `json:"backfill_ran"`
	EventsFetched    int                 `json:"events_fetched"`
	EventsChecked    int                 `json:"events_checked"`
	TranscriptsFound int                 `json:"transcripts_found"`
	RowsWritten      int                 `json:"rows_written"`
	Events           []model.CachedEvent `json:"events"`
}

type Service struct {
	source    CalendarSource
	annotator Annotator
	events    *store.CachedEventStore
	states    *store.SyncStateStore
	cfg       PlanConfig
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(source CalendarSource, annotator Annotator, events *store.CachedEventStore, states *store.SyncStateStore, cfg PlanConfig, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		source:    source,
		annotator: annotator,
		events:    events,
		states:    states,
		cfg:       cfg,
		metrics:   m,
		logger:    logger.With("component", "syncer"),
		now:       time.Now,
	}
}

// RequestSync runs one pass for the user: plan ranges against existing
// coverage, fetch, annotate, upsert, widen coverage. Negative transcript
// results are not persisted; they are re-decided on the next pass.
func (s *Service) RequestSync(ctx context.Context, orgID, userEmail, token string, window timerange.Range, force bool) (*Outcome, error) {
	if !window.Valid() {
		return nil, fmt.Errorf("sync window start must precede end")
	}
	started := s.now().UTC()
	passID := uuid.NewString()
	logger := s.logger.With("pass_id", passID, "org_id", orgID, "user", userEmail)

	state, err := s.states.Get(orgID, userEmail)
	if err != nil {
		return nil, fmt.Errorf("load sync state: %w", err)
	}

	ranges, backfillRan := PlanRanges(state, window, force, started, s.cfg)
	logger.Info("sync pass planned", "ranges", len(ranges), "backfill", backfillRan, "force", force)

	fetched, err := s.fetchRanges(ctx, token, ranges)
	if err != nil {
		return nil, err
	}
	s.metrics.EventsFetched.Add(float64(len(fetched)))

	annotations := s.annotator.Annotate(ctx, token, fetched)

	rows := make([]model.CachedEvent, 0, len(annotations))
	found, checked := 0, 0
	for _, an := range annotations {
		reason := an.Reason
		switch reason {
		case meeting.ReasonNoJoinURL, meeting.ReasonCancelled,
			meeting.ReasonNotChecked, meeting.ReasonCheckDisabled:
		default:
			checked++
		}
		if an.HasTranscript {
			reason = "transcript"
			found++
			s.checkAttendance(logger, userEmail, an.Event)
			rows = append(rows, toCachedEvent(orgID, userEmail, an, started))
		}
		s.metrics.Annotations.WithLabelValues(reason).Inc()
	}

	// Rows are independent; a failed row is logged and the pass carries
	// on with whatever was written.
	written, err := s.events.UpsertBatch(rows)
	if err != nil {
		logger.Warn("cached event rows failed to persist", "written", written, "error", err)
	}
	s.metrics.CacheUpserts.Add(float64(written))

	// Only the requested window widens coverage. The recency and backfill
	// ranges are re-fetched on later passes anyway, and folding a disjoint
	// one into the single-interval hull would claim a gap no pass fetched.
	if err := s.states.RecordSync(orgID, userEmail, window, backfillRan, started); err != nil {
		return nil, fmt.Errorf("record coverage: %w", err)
	}

	cached, err := s.events.ListByRange(orgID, userEmail, window)
	if err != nil {
		return nil, fmt.Errorf("read back cache: %w", err)
	}

	s.metrics.SyncPasses.Inc()
	s.metrics.SyncDuration.Observe(s.now().Sub(started).Seconds())
	logger.Info("sync pass complete",
		"fetched", len(fetched), "checked", checked, "with_transcript", found, "written", written)

	return &Outcome{
		PassID:           passID,
		Ranges:           ranges,
		BackfillRan:      backfillRan,
		EventsFetched:    len(fetched),
		EventsChecked:    checked,
		TranscriptsFound: found,
		RowsWritten:      written,
		Events:           cached,
	}, nil
}

// ReadCache serves the cached view of a window without touching the
// platform.
func (s *Service) ReadCache(orgID, userEmail string, window timerange.Range) ([]model.CachedEvent, error) {
	if !window.Valid() {
		return nil, fmt.Errorf("read window start must precede end")
	}
	return s.events.ListByRange(orgID, userEmail, window)
}

// fetchRanges pulls every planned range and deduplicates by event id:
// planned ranges are disjoint, but an event spanning a gap can surface in
// two of them.
func (s *Service) fetchRanges(ctx context.Context, token string, ranges []timerange.Range) ([]model.CalendarEvent, error) {
	seen := make(map[string]bool)
	var out []model.CalendarEvent
	for _, r := range ranges {
		events, err := s.source.ListCalendarView(ctx, token, r)
		if err != nil {
			return nil, fmt.Errorf("fetch calendar range: %w", err)
		}
		for _, ev := range events {
			if seen[ev.ID] {
				continue
			}
			seen[ev.ID] = true
			out = append(out, ev)
		}
	}
	return out, nil
}

// checkAttendance logs when the syncing user is on neither the attendee
// list nor the organizer line. The event is still cached; calendars
// routinely hold forwarded or delegated invites.
func (s *Service) checkAttendance(logger *slog.Logger, userEmail string, ev model.CalendarEvent) {
	if ev.Organizer == userEmail {
		return
	}
	for _, a := range ev.Attendees {
		if a == userEmail {
			return
		}
	}
	logger.Info("user absent from attendee list", "event_id", ev.ID, "subject", ev.Subject)
}

// emailSet folds the organizer into the attendee list and deduplicates,
// preserving first-seen order. Platform payloads repeat addresses when a
// user appears as both required and optional attendee.
func emailSet(organizer string, attendees []string) []string {
	seen := make(map[string]bool, len(attendees)+1)
	var out []string
	add := func(addr string) {
		addr = strings.ToLower(strings.TrimSpace(addr))
		if addr == "" || seen[addr] {
			return
		}
		seen[addr] = true
		out = append(out, addr)
	}
	for _, a := range attendees {
		add(a)
	}
	add(organizer)
	return out
}

func toCachedEvent(orgID, userEmail string, an meeting.Annotation, syncedAt time.Time) model.CachedEvent {
	ev := an.Event
	return model.CachedEvent{
		OrgID:         orgID,
		UserEmail:     userEmail,
		EventID:       ev.ID,
		Subject:       ev.Subject,
		StartRaw:      ev.StartRaw,
		EndRaw:        ev.EndRaw,
		StartTime:     ev.Start.UTC(),
		EndTime:       ev.End.UTC(),
		Location:      ev.Location,
		Organizer:     ev.Organizer,
		Attendees:     emailSet(ev.Organizer, ev.Attendees),
		HasTranscript: true,
		Transcripts:   []model.TranscriptRef{*an.Ref},
		SyncedAt:      syncedAt,
	}
}
