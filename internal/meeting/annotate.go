package meeting

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/recap/internal/model"
)

// Diagnostic reasons for negative annotations. Every event that ends up
// without a transcript carries one, so a pass can be debugged without
// re-running it.
const (
	ReasonNoJoinURL      = "no-join-url"
	ReasonCancelled      = "cancelled"
	ReasonNotChecked     = "not-checked:limit"
	ReasonCheckDisabled  = "transcript-check-disabled"
	ReasonNoMeetingMatch = "no-meeting-match"
	ReasonNoTranscripts  = "no-transcripts"
)

// Annotation is an immutable record pairing an event with its transcript
// outcome. Fetched events are never mutated in place; concurrent workers
// each produce their own Annotation.
type Annotation struct {
	Event         model.CalendarEvent
	HasTranscript bool
	Ref           *model.TranscriptRef
	Reason        string
}

// AnnotatorConfig caps how much directory traffic one pass may generate.
type AnnotatorConfig struct {
	Enabled     bool
	CheckLimit  int
	Concurrency int
	Picker      PickerConfig
}

// Annotator runs resolve+pick over candidate events under a worker cap.
type Annotator struct {
	resolver *Resolver
	cfg      AnnotatorConfig
	logger   *slog.Logger
}

func NewAnnotator(resolver *Resolver, cfg AnnotatorConfig, logger *slog.Logger) *Annotator {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Annotator{resolver: resolver, cfg: cfg, logger: logger}
}

// Annotate tags every input event with transcript presence or a diagnostic
// reason, preserving input order. Only online-meeting events with a join
// URL are checked; when there are more of those than the check budget, the
// newest-starting candidates win the budget since recent meetings are the
// ones users open. One candidate's transport failure never aborts the
// others.
func (a *Annotator) Annotate(ctx context.Context, token string, events []model.CalendarEvent) []Annotation {
	annotations := make([]Annotation, len(events))

	var candidates []int
	for i, ev := range events {
		switch {
		case ev.IsCancelled:
			annotations[i] = Annotation{Event: ev, Reason: ReasonCancelled}
		case !ev.IsOnlineMeeting || ev.JoinURL == "":
			annotations[i] = Annotation{Event: ev, Reason: ReasonNoJoinURL}
		case !a.cfg.Enabled:
			annotations[i] = Annotation{Event: ev, Reason: ReasonCheckDisabled}
		default:
			candidates = append(candidates, i)
		}
	}

	sort.SliceStable(candidates, func(x, y int) bool {
		return events[candidates[x]].Start.After(events[candidates[y]].Start)
	})

	if a.cfg.CheckLimit > 0 && len(candidates) > a.cfg.CheckLimit {
		for _, i := range candidates[a.cfg.CheckLimit:] {
			annotations[i] = Annotation{Event: events[i], Reason: ReasonNotChecked}
		}
		candidates = candidates[:a.cfg.CheckLimit]
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Concurrency)
	for _, i := range candidates {
		g.Go(func() error {
			annotations[i] = a.check(ctx, token, events[i])
			return nil
		})
	}
	g.Wait()

	return annotations
}

func (a *Annotator) check(ctx context.Context, token string, ev model.CalendarEvent) Annotation {
	meetingID, err := a.resolver.ResolveMeeting(ctx, token, ev)
	if err != nil {
		a.logger.Warn("meeting resolution failed", "event_id", ev.ID, "error", err)
		return Annotation{Event: ev, Reason: fmt.Sprintf("error:%v", err)}
	}
	if meetingID == "" {
		return Annotation{Event: ev, Reason: ReasonNoMeetingMatch}
	}

	transcripts, err := a.resolver.ListTranscripts(ctx, token, meetingID)
	if err != nil {
		a.logger.Warn("transcript listing failed", "event_id", ev.ID, "meeting_id", meetingID, "error", err)
		return Annotation{Event: ev, Reason: fmt.Sprintf("error:%v", err)}
	}
	if len(transcripts) == 0 {
		return Annotation{Event: ev, Reason: ReasonNoTranscripts}
	}

	picked := PickTranscript(transcripts, ev.Start, ev.End, a.cfg.Picker)
	return Annotation{
		Event:         ev,
		HasTranscript: true,
		Ref:           &model.TranscriptRef{MeetingID: meetingID, TranscriptID: picked.ID},
	}
}
