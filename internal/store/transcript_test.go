package store

import (
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/recap/internal/model"
)

func testTranscript() model.Transcript {
	start := time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	return model.Transcript{
		OrgID:        "org-1",
		OccurrenceID: "occ-1",
		MeetingID:    "m-1",
		TranscriptID: "t-1",
		Subject:      "Weekly Sync",
		StartTime:    &start,
		EndTime:      &end,
		Participants: []string{"alice@example.com", "bob@example.com"},
		RawVTT:       "WEBVTT\n\n00:01.000 --> 00:02.000\nHello\n",
		Text:         "Hello",
	}
}

func TestCreateAndGetByKey(t *testing.T) {
	s := NewTranscriptStore(setupTestDB(t))

	created, err := s.Create(testTranscript())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == 0 {
		t.Fatal("expected row id")
	}
	if created.AI.Status != model.AIStatusNone {
		t.Errorf("ai status = %q, want none", created.AI.Status)
	}

	got, err := s.GetByKey("org-1", "occ-1", "t-1")
	if err != nil {
		t.Fatalf("get by key: %v", err)
	}
	if got == nil || got.ID != created.ID {
		t.Fatalf("get by key = %v, want id %d", got, created.ID)
	}
	if got.Text != "Hello" {
		t.Errorf("text = %q, want %q", got.Text, "Hello")
	}
}

func TestCreateDuplicateFallsBackToExisting(t *testing.T) {
	s := NewTranscriptStore(setupTestDB(t))

	first, err := s.Create(testTranscript())
	if err != nil {
		t.Fatalf("first create: %v", err)
	}

	dup := testTranscript()
	dup.Text = "different body from the losing request"
	second, err := s.Create(dup)
	if err != nil {
		t.Fatalf("duplicate create should not error: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("duplicate create returned id %d, want existing id %d", second.ID, first.ID)
	}
	if second.Text != "Hello" {
		t.Errorf("duplicate create must return the existing row, got text %q", second.Text)
	}
}

func TestGetByLegacyKey(t *testing.T) {
	s := NewTranscriptStore(setupTestDB(t))

	created, err := s.Create(testTranscript())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Lookup without knowing the occurrence id.
	got, err := s.GetByLegacyKey("org-1", "m-1", "t-1")
	if err != nil {
		t.Fatalf("get by legacy key: %v", err)
	}
	if got == nil || got.ID != created.ID {
		t.Fatalf("legacy lookup = %v, want id %d", got, created.ID)
	}
}

func TestAcquireSummaryLockSingleWinner(t *testing.T) {
	s := NewTranscriptStore(setupTestDB(t))

	created, err := s.Create(testTranscript())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	const callers = 8
	var wg sync.WaitGroup
	wins := make(chan bool, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.AcquireSummaryLock(created.ID, time.Now())
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			wins <- ok
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for ok := range wins {
		if ok {
			won++
		}
	}
	if won != 1 {
		t.Fatalf("%d callers acquired the lock, want exactly 1", won)
	}

	got, _ := s.GetByID(created.ID)
	if got.AI.Status != model.AIStatusQueued {
		t.Errorf("ai status = %q, want queued", got.AI.Status)
	}
}

func TestAcquireFromErrorState(t *testing.T) {
	s := NewTranscriptStore(setupTestDB(t))

	created, _ := s.Create(testTranscript())
	now := time.Now()

	if ok, _ := s.AcquireSummaryLock(created.ID, now); !ok {
		t.Fatal("first acquire should succeed")
	}
	if err := s.FailSummary(created.ID, "model unavailable", now); err != nil {
		t.Fatalf("fail summary: %v", err)
	}

	got, _ := s.GetByID(created.ID)
	if got.AI.Status != model.AIStatusError || got.AI.Error != "model unavailable" {
		t.Fatalf("after fail: status=%q error=%q", got.AI.Status, got.AI.Error)
	}

	// error -> queued is a legal retry transition.
	if ok, _ := s.AcquireSummaryLock(created.ID, now.Add(time.Minute)); !ok {
		t.Fatal("re-acquire from error state should succeed")
	}
}

func TestCompleteSummary(t *testing.T) {
	s := NewTranscriptStore(setupTestDB(t))

	created, _ := s.Create(testTranscript())
	now := time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)

	if ok, _ := s.AcquireSummaryLock(created.ID, now); !ok {
		t.Fatal("acquire should succeed")
	}
	if err := s.CompleteSummary(created.ID, "gpt-4o-mini", "Short recap.", now.Add(10*time.Second)); err != nil {
		t.Fatalf("complete summary: %v", err)
	}

	got, _ := s.GetByID(created.ID)
	if got.AI.Status != model.AIStatusDone {
		t.Errorf("status = %q, want done", got.AI.Status)
	}
	if got.AI.Summary != "Short recap." || got.AI.Model != "gpt-4o-mini" {
		t.Errorf("summary/model = %q/%q", got.AI.Summary, got.AI.Model)
	}
	if got.AI.Error != "" {
		t.Errorf("error should be cleared, got %q", got.AI.Error)
	}

	// done is terminal for acquire.
	if ok, _ := s.AcquireSummaryLock(created.ID, now.Add(time.Minute)); ok {
		t.Error("acquire must not succeed on a done transcript")
	}
}

func TestRecoverStaleLock(t *testing.T) {
	s := NewTranscriptStore(setupTestDB(t))

	created, _ := s.Create(testTranscript())
	lockedAt := time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)

	if ok, _ := s.AcquireSummaryLock(created.ID, lockedAt); !ok {
		t.Fatal("acquire should succeed")
	}

	// Not yet stale: threshold in the past relative to the lock.
	if ok, _ := s.RecoverStaleLock(created.ID, lockedAt.Add(-time.Minute)); ok {
		t.Fatal("fresh lock must not be recovered")
	}

	// Stale: lock is older than the cutoff.
	ok, err := s.RecoverStaleLock(created.ID, lockedAt.Add(5*time.Minute))
	if err != nil {
		t.Fatalf("recover stale lock: %v", err)
	}
	if !ok {
		t.Fatal("stale lock should be recovered")
	}

	got, _ := s.GetByID(created.ID)
	if got.AI.Status != model.AIStatusNone {
		t.Errorf("status = %q, want none after recovery", got.AI.Status)
	}
	if got.AI.Error == "" {
		t.Error("recovery should leave an explanatory error note")
	}

	// And the transcript is acquirable again.
	if ok, _ := s.AcquireSummaryLock(created.ID, time.Now()); !ok {
		t.Error("acquire after recovery should succeed")
	}
}

func TestGetByKeyNotFound(t *testing.T) {
	s := NewTranscriptStore(setupTestDB(t))

	got, err := s.GetByKey("org-1", "missing", "t-1")
	if err != nil {
		t.Fatalf("get by key: %v", err)
	}
	if got != nil {
		t.Error("expected nil for nonexistent transcript")
	}
}
