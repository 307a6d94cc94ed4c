package syncer

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/dukerupert/recap/internal/database"
	"github.com/dukerupert/recap/internal/meeting"
	"github.com/dukerupert/recap/internal/metrics"
	"github.com/dukerupert/recap/internal/model"
	"github.com/dukerupert/recap/internal/store"
	"github.com/dukerupert/recap/internal/timerange"
)

type fakeSource struct {
	events []model.CalendarEvent
	calls  []timerange.Range
}

func (f *fakeSource) ListCalendarView(_ context.Context, _ string, window timerange.Range) ([]model.CalendarEvent, error) {
	f.calls = append(f.calls, window)
	var out []model.CalendarEvent
	for _, ev := range f.events {
		if ev.Start.Before(window.End) && ev.End.After(window.Start) {
			out = append(out, ev)
		}
	}
	return out, nil
}

// fakeAnnotator grants a transcript to every event listed in refs.
type fakeAnnotator struct {
	refs map[string]model.TranscriptRef
}

func (f *fakeAnnotator) Annotate(_ context.Context, _ string, events []model.CalendarEvent) []meeting.Annotation {
	out := make([]meeting.Annotation, len(events))
	for i, ev := range events {
		if ref, ok := f.refs[ev.ID]; ok {
			out[i] = meeting.Annotation{Event: ev, HasTranscript: true, Ref: &ref}
		} else {
			out[i] = meeting.Annotation{Event: ev, Reason: meeting.ReasonNoTranscripts}
		}
	}
	return out
}

var testNow = time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)

func sourceEvent(id string, start time.Time) model.CalendarEvent {
	return model.CalendarEvent{
		ID:              id,
		Subject:         "Planning",
		Start:           start,
		End:             start.Add(time.Hour),
		StartRaw:        start.Format(time.RFC3339) + " UTC",
		EndRaw:          start.Add(time.Hour).Format(time.RFC3339) + " UTC",
		Organizer:       "alice@example.com",
		Attendees:       []string{"alice@example.com", "bob@example.com"},
		JoinURL:         "https://t.example.com/j/" + id,
		IsOnlineMeeting: true,
	}
}

func setupService(t *testing.T, source *fakeSource, annotator *fakeAnnotator) *Service {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	svc := NewService(source, annotator,
		store.NewCachedEventStore(db), store.NewSyncStateStore(db),
		planCfg, metrics.New(), slog.New(slog.DiscardHandler))
	svc.now = func() time.Time { return testNow }
	return svc
}

func TestRequestSyncFirstPass(t *testing.T) {
	source := &fakeSource{events: []model.CalendarEvent{
		sourceEvent("ev-1", day(testNow, -2)),
		sourceEvent("ev-2", day(testNow, -4)),
	}}
	annotator := &fakeAnnotator{refs: map[string]model.TranscriptRef{
		"ev-1": {MeetingID: "m-1", TranscriptID: "tr-1"},
	}}
	svc := setupService(t, source, annotator)
	window := timerange.Range{Start: day(testNow, -7), End: testNow}

	out, err := svc.RequestSync(context.Background(), "org-1", "alice@example.com", "tok", window, false)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if out.EventsFetched != 2 || out.EventsChecked != 2 || out.TranscriptsFound != 1 || out.RowsWritten != 1 {
		t.Errorf("counts = fetched %d checked %d found %d written %d, want 2/2/1/1",
			out.EventsFetched, out.EventsChecked, out.TranscriptsFound, out.RowsWritten)
	}
	if !out.BackfillRan {
		t.Error("first pass must backfill")
	}
	if len(out.Events) != 1 || out.Events[0].EventID != "ev-1" {
		t.Fatalf("cached view = %+v, want only the transcript-bearing event", out.Events)
	}
	if got := out.Events[0].Transcripts; len(got) != 1 || got[0].TranscriptID != "tr-1" {
		t.Errorf("transcript refs = %+v", got)
	}
}

func TestRequestSyncSecondPassFetchesOnlyRecency(t *testing.T) {
	source := &fakeSource{}
	svc := setupService(t, source, &fakeAnnotator{})
	window := timerange.Range{Start: day(testNow, -30), End: testNow}

	if _, err := svc.RequestSync(context.Background(), "org-1", "alice@example.com", "tok", window, false); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	source.calls = nil

	out, err := svc.RequestSync(context.Background(), "org-1", "alice@example.com", "tok", window, false)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if out.BackfillRan {
		t.Error("backfill must not re-run within the interval")
	}
	if len(source.calls) != 1 {
		t.Fatalf("fetch calls = %v, want recency only", source.calls)
	}
	if !source.calls[0].Start.Equal(day(testNow, -10)) || !source.calls[0].End.Equal(testNow) {
		t.Errorf("fetched range = %v, want the recency window", source.calls[0])
	}
}

func TestRequestSyncIdempotentRewrite(t *testing.T) {
	source := &fakeSource{events: []model.CalendarEvent{sourceEvent("ev-1", day(testNow, -2))}}
	annotator := &fakeAnnotator{refs: map[string]model.TranscriptRef{
		"ev-1": {MeetingID: "m-1", TranscriptID: "tr-1"},
	}}
	svc := setupService(t, source, annotator)
	window := timerange.Range{Start: day(testNow, -7), End: testNow}

	for i := 0; i < 2; i++ {
		out, err := svc.RequestSync(context.Background(), "org-1", "alice@example.com", "tok", window, true)
		if err != nil {
			t.Fatalf("sync %d: %v", i, err)
		}
		if len(out.Events) != 1 {
			t.Fatalf("sync %d cached view = %d rows, want the same single row", i, len(out.Events))
		}
	}
}

func TestRequestSyncDeduplicatesAttendees(t *testing.T) {
	ev := sourceEvent("ev-1", day(testNow, -2))
	ev.Organizer = "carol@example.com"
	ev.Attendees = []string{"alice@example.com", "bob@example.com", "alice@example.com"}
	source := &fakeSource{events: []model.CalendarEvent{ev}}
	annotator := &fakeAnnotator{refs: map[string]model.TranscriptRef{
		"ev-1": {MeetingID: "m-1", TranscriptID: "tr-1"},
	}}
	svc := setupService(t, source, annotator)
	window := timerange.Range{Start: day(testNow, -7), End: testNow}

	out, err := svc.RequestSync(context.Background(), "org-1", "alice@example.com", "tok", window, false)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if len(out.Events) != 1 {
		t.Fatalf("cached view = %+v, want one event", out.Events)
	}
	want := []string{"alice@example.com", "bob@example.com", "carol@example.com"}
	got := out.Events[0].Attendees
	if len(got) != len(want) {
		t.Fatalf("attendees = %v, want deduplicated set with organizer folded in", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("attendee %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRequestSyncCoalescesOverlappingRanges(t *testing.T) {
	// The first pass plans requested window, recency, and backfill; all
	// three overlap, so the platform sees one fetch and the event inside
	// them is annotated once.
	source := &fakeSource{events: []model.CalendarEvent{sourceEvent("ev-1", day(testNow, -2))}}
	svc := setupService(t, source, &fakeAnnotator{})
	window := timerange.Range{Start: day(testNow, -40), End: day(testNow, -35)}

	out, err := svc.RequestSync(context.Background(), "org-1", "alice@example.com", "tok", window, false)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if len(source.calls) != 1 {
		t.Errorf("fetch calls = %v, want one coalesced range", source.calls)
	}
	if out.EventsFetched != 1 {
		t.Errorf("fetched = %d, want 1", out.EventsFetched)
	}
}

func TestRequestSyncDisjointWindowsStayFetchable(t *testing.T) {
	// Pass one requests a window far older than the backfill horizon, so
	// the planned ranges are disjoint from it. Coverage must not swallow
	// the unfetched stretch in between: a later request inside that
	// stretch still has to reach the platform.
	source := &fakeSource{events: []model.CalendarEvent{sourceEvent("ev-old", day(testNow, -150))}}
	annotator := &fakeAnnotator{refs: map[string]model.TranscriptRef{
		"ev-old": {MeetingID: "m-1", TranscriptID: "tr-1"},
	}}
	svc := setupService(t, source, annotator)

	w1 := timerange.Range{Start: day(testNow, -200), End: day(testNow, -199)}
	if _, err := svc.RequestSync(context.Background(), "org-1", "alice@example.com", "tok", w1, false); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	source.calls = nil

	w2 := timerange.Range{Start: day(testNow, -151), End: day(testNow, -149)}
	out, err := svc.RequestSync(context.Background(), "org-1", "alice@example.com", "tok", w2, false)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}

	fetched := false
	for _, r := range source.calls {
		if r.Contains(day(testNow, -150)) {
			fetched = true
		}
	}
	if !fetched {
		t.Fatalf("fetch calls = %v, want the stretch around day -150 fetched", source.calls)
	}
	if len(out.Events) != 1 || out.Events[0].EventID != "ev-old" {
		t.Errorf("cached view = %+v, want the old event", out.Events)
	}
}

func TestReadCacheNeverFetches(t *testing.T) {
	source := &fakeSource{events: []model.CalendarEvent{sourceEvent("ev-1", day(testNow, -2))}}
	annotator := &fakeAnnotator{refs: map[string]model.TranscriptRef{
		"ev-1": {MeetingID: "m-1", TranscriptID: "tr-1"},
	}}
	svc := setupService(t, source, annotator)
	window := timerange.Range{Start: day(testNow, -7), End: testNow}

	if _, err := svc.RequestSync(context.Background(), "org-1", "alice@example.com", "tok", window, false); err != nil {
		t.Fatalf("sync: %v", err)
	}
	source.calls = nil

	events, err := svc.ReadCache("org-1", "alice@example.com", window)
	if err != nil {
		t.Fatalf("read cache: %v", err)
	}
	if len(events) != 1 || events[0].EventID != "ev-1" {
		t.Errorf("events = %+v", events)
	}
	if len(source.calls) != 0 {
		t.Error("cache read must not touch the platform")
	}
}

func TestRequestSyncInvalidWindow(t *testing.T) {
	svc := setupService(t, &fakeSource{}, &fakeAnnotator{})
	_, err := svc.RequestSync(context.Background(), "org-1", "alice@example.com", "tok",
		timerange.Range{Start: testNow, End: day(testNow, -1)}, false)
	if err == nil {
		t.Fatal("expected error for inverted window")
	}
}
