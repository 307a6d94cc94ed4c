package summary

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/recap/internal/metrics"
	"github.com/dukerupert/recap/internal/model"
	"github.com/dukerupert/recap/internal/store"
	"github.com/dukerupert/recap/internal/vtt"
)

// ContentSource downloads transcript payloads from the platform.
type ContentSource interface {
	TranscriptContent(ctx context.Context, token, meetingID, transcriptID string) (string, error)
}

// Generator produces the summary text.
type Generator interface {
	Summarize(ctx context.Context, subject, text string) (string, error)
}

type Config struct {
	Model          string
	StaleLockAfter time.Duration
}

// Service owns the transcript lifecycle: fetch-and-store on first sight,
// then summarize at most once per row.
type Service struct {
	transcripts *store.TranscriptStore
	source      ContentSource
	generator   Generator
	cfg         Config
	metrics     *metrics.Metrics
	logger      *slog.Logger
	now         func() time.Time
}

func NewService(transcripts *store.TranscriptStore, source ContentSource, generator Generator, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		transcripts: transcripts,
		source:      source,
		generator:   generator,
		cfg:         cfg,
		metrics:     m,
		logger:      logger.With("component", "summary"),
		now:         time.Now,
	}
}

// EnsureSummary returns the transcript row for the occurrence, generating
// its summary when no-one has yet. The returned row's AI status carries the
// outcome: done with the summary, queued when another request holds the
// lock, error when generation failed. An error return means infrastructure
// trouble (storage, content download), not a failed generation.
func (s *Service) EnsureSummary(ctx context.Context, orgID, occurrenceID, meetingID, transcriptID, token, subjectHint string) (*model.Transcript, error) {
	t, err := s.lookup(ctx, orgID, occurrenceID, meetingID, transcriptID, token, subjectHint)
	if err != nil {
		return nil, err
	}

	switch t.AI.Status {
	case model.AIStatusDone:
		return t, nil
	case model.AIStatusQueued:
		recovered, err := s.transcripts.RecoverStaleLock(t.ID, s.now().Add(-s.cfg.StaleLockAfter))
		if err != nil {
			return nil, fmt.Errorf("recover stale lock: %w", err)
		}
		if !recovered {
			// Someone else is generating; the caller polls.
			return t, nil
		}
		s.metrics.StaleLocksRecovered.Inc()
		s.logger.Warn("reclaimed stale summarization", "transcript", t.ID)
	}

	acquired, err := s.transcripts.AcquireSummaryLock(t.ID, s.now())
	if err != nil {
		return nil, fmt.Errorf("acquire summary lock: %w", err)
	}
	if !acquired {
		// Lost the race; return whatever state the winner left.
		return s.transcripts.GetByID(t.ID)
	}

	s.generate(ctx, t)
	return s.transcripts.GetByID(t.ID)
}

// lookup finds the stored transcript row, falling back to the meeting-keyed
// form older deployments wrote, and creates the row from platform content
// when neither exists.
func (s *Service) lookup(ctx context.Context, orgID, occurrenceID, meetingID, transcriptID, token, subjectHint string) (*model.Transcript, error) {
	t, err := s.transcripts.GetByKey(orgID, occurrenceID, transcriptID)
	if err != nil {
		return nil, fmt.Errorf("lookup transcript: %w", err)
	}
	if t != nil {
		return t, nil
	}

	t, err = s.transcripts.GetByLegacyKey(orgID, meetingID, transcriptID)
	if err != nil {
		return nil, fmt.Errorf("lookup transcript by legacy key: %w", err)
	}
	if t != nil {
		s.logger.Info("served transcript via legacy key",
			"meeting", meetingID, "transcript", transcriptID)
		return t, nil
	}

	raw, err := s.source.TranscriptContent(ctx, token, meetingID, transcriptID)
	if err != nil {
		return nil, fmt.Errorf("download transcript content: %w", err)
	}

	return s.transcripts.Create(model.Transcript{
		OrgID:        orgID,
		OccurrenceID: occurrenceID,
		MeetingID:    meetingID,
		TranscriptID: transcriptID,
		Subject:      subjectHint,
		RawVTT:       raw,
		Text:         vtt.ToText(raw),
	})
}

// generate runs the summarizer and persists the terminal state. Failures
// land in the row's AI record rather than propagating.
func (s *Service) generate(ctx context.Context, t *model.Transcript) {
	if t.Text == "" {
		s.fail(t.ID, "transcript has no caption text")
		return
	}

	summary, err := s.generator.Summarize(ctx, t.Subject, t.Text)
	if err != nil {
		s.logger.Error("summarization failed", "transcript", t.ID, "error", err)
		s.fail(t.ID, err.Error())
		return
	}

	if err := s.transcripts.CompleteSummary(t.ID, s.cfg.Model, summary, s.now()); err != nil {
		s.logger.Error("persist summary failed", "transcript", t.ID, "error", err)
		return
	}
	s.metrics.Summaries.WithLabelValues(model.AIStatusDone).Inc()
}

func (s *Service) fail(id int64, reason string) {
	if err := s.transcripts.FailSummary(id, reason, s.now()); err != nil {
		s.logger.Error("persist summary failure failed", "transcript", id, "error", err)
		return
	}
	s.metrics.Summaries.WithLabelValues(model.AIStatusError).Inc()
}
