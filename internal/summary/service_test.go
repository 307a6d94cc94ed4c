package summary

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/recap/internal/database"
	"github.com/dukerupert/recap/internal/metrics"
	"github.com/dukerupert/recap/internal/model"
	"github.com/dukerupert/recap/internal/store"
)

const sampleVTT = "WEBVTT\n\n00:00:01.000 --> 00:00:04.000\n<v Alice>We agreed to ship Friday.\n"

type fakeContentSource struct {
	mu      sync.Mutex
	payload string
	err     error
	calls   int
}

func (f *fakeContentSource) TranscriptContent(_ context.Context, _, _, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls += 1
	return f.payload, f.err
}

type fakeGenerator struct {
	mu      sync.Mutex
	summary string
	err     error
	calls   int
}

func (f *fakeGenerator) Summarize(_ context.Context, _, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls += 1
	return f.summary, f.err
}

func setupService(t *testing.T, source *fakeContentSource, gen *fakeGenerator) (*Service, *store.TranscriptStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	transcripts := store.NewTranscriptStore(db)
	svc := NewService(transcripts, source, gen,
		Config{Model: "test-model", StaleLockAfter: 5 * time.Minute},
		metrics.New(), slog.New(slog.DiscardHandler))
	return svc, transcripts
}

func ensure(t *testing.T, svc *Service) *model.Transcript {
	t.Helper()
	tr, err := svc.EnsureSummary(context.Background(),
		"org-1", "occ-1", "m-1", "tr-1", "tok", "Planning")
	if err != nil {
		t.Fatalf("ensure summary: %v", err)
	}
	return tr
}

func TestEnsureSummaryCreatesAndGenerates(t *testing.T) {
	source := &fakeContentSource{payload: sampleVTT}
	gen := &fakeGenerator{summary: "Ship Friday."}
	svc, _ := setupService(t, source, gen)

	tr := ensure(t, svc)
	if tr.AI.Status != model.AIStatusDone {
		t.Fatalf("status = %q, want done", tr.AI.Status)
	}
	if tr.AI.Summary != "Ship Friday." || tr.AI.Model != "test-model" {
		t.Errorf("summary = %+v", tr.AI)
	}
	if !strings.Contains(tr.Text, "Alice: We agreed to ship Friday.") {
		t.Errorf("parsed text = %q", tr.Text)
	}
	if source.calls != 1 || gen.calls != 1 {
		t.Errorf("source calls = %d, generator calls = %d", source.calls, gen.calls)
	}
}

func TestEnsureSummaryDoneShortCircuits(t *testing.T) {
	source := &fakeContentSource{payload: sampleVTT}
	gen := &fakeGenerator{summary: "Ship Friday."}
	svc, _ := setupService(t, source, gen)

	ensure(t, svc)
	tr := ensure(t, svc)
	if tr.AI.Status != model.AIStatusDone {
		t.Fatalf("status = %q", tr.AI.Status)
	}
	if source.calls != 1 || gen.calls != 1 {
		t.Errorf("repeat request re-ran work: source %d, generator %d", source.calls, gen.calls)
	}
}

func TestEnsureSummaryLegacyKeyFallback(t *testing.T) {
	source := &fakeContentSource{err: fmt.Errorf("platform should not be called")}
	gen := &fakeGenerator{summary: "From legacy row."}
	svc, transcripts := setupService(t, source, gen)

	// A row written by an older deployment: same meeting and transcript,
	// different occurrence key.
	_, err := transcripts.Create(model.Transcript{
		OrgID:        "org-1",
		OccurrenceID: "legacy-occ",
		MeetingID:    "m-1",
		TranscriptID: "tr-1",
		Text:         "Alice: old text.",
	})
	if err != nil {
		t.Fatalf("seed legacy row: %v", err)
	}

	tr := ensure(t, svc)
	if tr.OccurrenceID != "legacy-occ" {
		t.Fatalf("served row = %+v, want the legacy row", tr)
	}
	if tr.AI.Status != model.AIStatusDone || tr.AI.Summary != "From legacy row." {
		t.Errorf("ai = %+v", tr.AI)
	}
	if source.calls != 0 {
		t.Error("legacy hit must not re-download content")
	}
}

func TestEnsureSummaryGenerationFailurePersists(t *testing.T) {
	source := &fakeContentSource{payload: sampleVTT}
	gen := &fakeGenerator{err: fmt.Errorf("model overloaded")}
	svc, _ := setupService(t, source, gen)

	tr := ensure(t, svc)
	if tr.AI.Status != model.AIStatusError {
		t.Fatalf("status = %q, want error", tr.AI.Status)
	}
	if !strings.Contains(tr.AI.Error, "model overloaded") {
		t.Errorf("error = %q", tr.AI.Error)
	}

	// A later request retries from the error state.
	gen.mu.Lock()
	gen.err = nil
	gen.summary = "Second attempt."
	gen.mu.Unlock()

	tr = ensure(t, svc)
	if tr.AI.Status != model.AIStatusDone || tr.AI.Summary != "Second attempt." {
		t.Fatalf("retry outcome = %+v", tr.AI)
	}
}

func TestEnsureSummaryEmptyTranscript(t *testing.T) {
	source := &fakeContentSource{payload: "WEBVTT\n"}
	gen := &fakeGenerator{summary: "should not run"}
	svc, _ := setupService(t, source, gen)

	tr := ensure(t, svc)
	if tr.AI.Status != model.AIStatusError {
		t.Fatalf("status = %q, want error", tr.AI.Status)
	}
	if gen.calls != 0 {
		t.Error("generator must not run on empty text")
	}
}

func TestEnsureSummaryConcurrentSingleGeneration(t *testing.T) {
	source := &fakeContentSource{payload: sampleVTT}
	gen := &fakeGenerator{summary: "Once."}
	svc, transcripts := setupService(t, source, gen)

	// Seed the row so racing requests contend on the lock, not creation.
	seeded, err := transcripts.Create(model.Transcript{
		OrgID:        "org-1",
		OccurrenceID: "occ-1",
		MeetingID:    "m-1",
		TranscriptID: "tr-1",
		Text:         "Alice: hello.",
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.EnsureSummary(context.Background(),
				"org-1", "occ-1", "m-1", "tr-1", "tok", "Planning")
		}()
	}
	wg.Wait()

	if gen.calls != 1 {
		t.Fatalf("generator ran %d times, want exactly once", gen.calls)
	}
	tr, err := transcripts.GetByID(seeded.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if tr.AI.Status != model.AIStatusDone || tr.AI.Summary != "Once." {
		t.Errorf("final state = %+v", tr.AI)
	}
}

func TestEnsureSummaryStaleLockRecovery(t *testing.T) {
	source := &fakeContentSource{payload: sampleVTT}
	gen := &fakeGenerator{summary: "Recovered."}
	svc, transcripts := setupService(t, source, gen)

	seeded, err := transcripts.Create(model.Transcript{
		OrgID:        "org-1",
		OccurrenceID: "occ-1",
		MeetingID:    "m-1",
		TranscriptID: "tr-1",
		Text:         "Alice: hello.",
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	// A crashed worker left the row queued ten minutes ago.
	if ok, err := transcripts.AcquireSummaryLock(seeded.ID, time.Now().UTC().Add(-10*time.Minute)); err != nil || !ok {
		t.Fatalf("acquire: ok=%v err=%v", ok, err)
	}

	tr := ensure(t, svc)
	if tr.AI.Status != model.AIStatusDone || tr.AI.Summary != "Recovered." {
		t.Fatalf("state = %+v, want recovered and regenerated", tr.AI)
	}
}

func TestEnsureSummaryFreshLockObservedAsQueued(t *testing.T) {
	source := &fakeContentSource{payload: sampleVTT}
	gen := &fakeGenerator{summary: "should not run"}
	svc, transcripts := setupService(t, source, gen)

	seeded, err := transcripts.Create(model.Transcript{
		OrgID:        "org-1",
		OccurrenceID: "occ-1",
		MeetingID:    "m-1",
		TranscriptID: "tr-1",
		Text:         "Alice: hello.",
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if ok, err := transcripts.AcquireSummaryLock(seeded.ID, time.Now().UTC()); err != nil || !ok {
		t.Fatalf("acquire: ok=%v err=%v", ok, err)
	}

	tr := ensure(t, svc)
	if tr.AI.Status != model.AIStatusQueued {
		t.Fatalf("status = %q, want queued while another worker holds the lock", tr.AI.Status)
	}
	if gen.calls != 0 {
		t.Error("generator must not run while the lock is held")
	}
}
