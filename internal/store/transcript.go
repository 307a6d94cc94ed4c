package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/recap/internal/model"
)

type TranscriptStore struct {
	db *sql.DB
}

func NewTranscriptStore(db *sql.DB) *TranscriptStore {
	return &TranscriptStore{db: db}
}

// Create inserts a transcript row. The unique (org, occurrence, transcript)
// constraint enforces at-most-one row per occurrence; when two requests race
// on the same transcript the loser reads back the winner's row instead of
// surfacing the constraint error.
func (s *TranscriptStore) Create(t model.Transcript) (*model.Transcript, error) {
	participants, err := json.Marshal(t.Participants)
	if err != nil {
		return nil, fmt.Errorf("encode participants: %w", err)
	}

	now := time.Now().UTC()
	result, err := s.db.Exec(
		`INSERT INTO transcripts
		  (org_id, occurrence_id, meeting_id, transcript_id, subject, start_time, end_time,
		   participants, raw_vtt, text, ai_status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.OrgID, t.OccurrenceID, t.MeetingID, t.TranscriptID, t.Subject,
		nullTime(t.StartTime), nullTime(t.EndTime),
		string(participants), t.RawVTT, t.Text, model.AIStatusNone, now, now,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return s.GetByKey(t.OrgID, t.OccurrenceID, t.TranscriptID)
		}
		return nil, fmt.Errorf("insert transcript: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

// GetByKey looks up a transcript by its occurrence-scoped key.
func (s *TranscriptStore) GetByKey(orgID, occurrenceID, transcriptID string) (*model.Transcript, error) {
	return s.getOne(
		`WHERE org_id = ? AND occurrence_id = ? AND transcript_id = ?`,
		orgID, occurrenceID, transcriptID,
	)
}

// GetByLegacyKey looks up a transcript by (org, meeting, transcript) only.
// Older rows were written before occurrence scoping existed; this fallback
// is a transition shim and goes away once all rows carry an occurrence id.
func (s *TranscriptStore) GetByLegacyKey(orgID, meetingID, transcriptID string) (*model.Transcript, error) {
	return s.getOne(
		`WHERE org_id = ? AND meeting_id = ? AND transcript_id = ? ORDER BY id LIMIT 1`,
		orgID, meetingID, transcriptID,
	)
}

// GetByID returns one transcript, or nil when absent.
func (s *TranscriptStore) GetByID(id int64) (*model.Transcript, error) {
	return s.getOne(`WHERE id = ?`, id)
}

const transcriptColumns = `id, org_id, occurrence_id, meeting_id, transcript_id, subject,
	start_time, end_time, participants, raw_vtt, text,
	ai_status, ai_model, ai_summary, ai_error, ai_created_at, ai_updated_at,
	created_at, updated_at`

func (s *TranscriptStore) getOne(where string, args ...any) (*model.Transcript, error) {
	row := s.db.QueryRow(`SELECT `+transcriptColumns+` FROM transcripts `+where, args...)
	t, err := scanTranscript(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query transcript: %w", err)
	}
	return t, nil
}

// AcquireSummaryLock atomically moves the AI status to queued, but only from
// none or error. Exactly one of N concurrent callers wins; the rest see zero
// rows affected and must not generate.
func (s *TranscriptStore) AcquireSummaryLock(id int64, now time.Time) (bool, error) {
	now = now.UTC()
	result, err := s.db.Exec(
		`UPDATE transcripts
		 SET ai_status = ?, ai_error = '',
		     ai_created_at = COALESCE(ai_created_at, ?), ai_updated_at = ?, updated_at = ?
		 WHERE id = ? AND ai_status IN (?, ?)`,
		model.AIStatusQueued, now, now, now, id, model.AIStatusNone, model.AIStatusError,
	)
	if err != nil {
		return false, fmt.Errorf("acquire summary lock: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// RecoverStaleLock forces a queued row back to none when its ai_updated_at
// predates staleBefore. A worker that crashed mid-generation otherwise wedges
// the transcript forever. Returns true when a stale lock was cleared.
func (s *TranscriptStore) RecoverStaleLock(id int64, staleBefore time.Time) (bool, error) {
	result, err := s.db.Exec(
		`UPDATE transcripts
		 SET ai_status = ?, ai_error = 'summarization lock expired; previous attempt presumed dead',
		     ai_updated_at = ?, updated_at = ?
		 WHERE id = ? AND ai_status = ? AND ai_updated_at < ?`,
		model.AIStatusNone, time.Now().UTC(), time.Now().UTC(), id, model.AIStatusQueued, staleBefore.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("recover stale lock: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// CompleteSummary records a successful generation and releases the lock.
func (s *TranscriptStore) CompleteSummary(id int64, modelName, summary string, now time.Time) error {
	now = now.UTC()
	_, err := s.db.Exec(
		`UPDATE transcripts
		 SET ai_status = ?, ai_model = ?, ai_summary = ?, ai_error = '', ai_updated_at = ?, updated_at = ?
		 WHERE id = ? AND ai_status = ?`,
		model.AIStatusDone, modelName, summary, now, now, id, model.AIStatusQueued,
	)
	if err != nil {
		return fmt.Errorf("complete summary: %w", err)
	}
	return nil
}

// FailSummary records a failed generation. The transcript stays summarizable:
// a later acquire succeeds from the error state.
func (s *TranscriptStore) FailSummary(id int64, errText string, now time.Time) error {
	now = now.UTC()
	_, err := s.db.Exec(
		`UPDATE transcripts
		 SET ai_status = ?, ai_error = ?, ai_updated_at = ?, updated_at = ?
		 WHERE id = ? AND ai_status = ?`,
		model.AIStatusError, errText, now, now, id, model.AIStatusQueued,
	)
	if err != nil {
		return fmt.Errorf("fail summary: %w", err)
	}
	return nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func scanTranscript(scanner interface{ Scan(...any) error }) (*model.Transcript, error) {
	var t model.Transcript
	var start, end, aiCreated, aiUpdated sql.NullTime
	var participants string

	err := scanner.Scan(
		&t.ID, &t.OrgID, &t.OccurrenceID, &t.MeetingID, &t.TranscriptID, &t.Subject,
		&start, &end, &participants, &t.RawVTT, &t.Text,
		&t.AI.Status, &t.AI.Model, &t.AI.Summary, &t.AI.Error, &aiCreated, &aiUpdated,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if start.Valid {
		t.StartTime = &start.Time
	}
	if end.Valid {
		t.EndTime = &end.Time
	}
	if aiCreated.Valid {
		t.AI.CreatedAt = &aiCreated.Time
	}
	if aiUpdated.Valid {
		t.AI.UpdatedAt = &aiUpdated.Time
	}
	if err := json.Unmarshal([]byte(participants), &t.Participants); err != nil {
		return nil, fmt.Errorf("decode participants: %w", err)
	}
	return &t, nil
}
