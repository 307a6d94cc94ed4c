package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dukerupert/recap/internal/model"
	"github.com/dukerupert/recap/internal/timerange"
)

type CachedEventStore struct {
	db *sql.DB
}

func NewCachedEventStore(db *sql.DB) *CachedEventStore {
	return &CachedEventStore{db: db}
}

// UpsertBatch persists transcript-bearing events row by row, keyed by
// (org, user email, event id) so the write is idempotent: re-running a
// sync pass overwrites the same rows and self-heals stale fields. Rows are
// unordered and independent; a failing row does not undo or block the
// rest. Returns the number of rows written plus the joined per-row
// failures, if any.
func (s *CachedEventStore) UpsertBatch(events []model.CachedEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	written := 0
	var errs []error
	for _, e := range events {
		if !e.HasTranscript {
			continue
		}

		attendees, err := json.Marshal(e.Attendees)
		if err != nil {
			errs = append(errs, fmt.Errorf("encode attendees for %s: %w", e.EventID, err))
			continue
		}
		refs, err := json.Marshal(e.Transcripts)
		if err != nil {
			errs = append(errs, fmt.Errorf("encode transcript refs for %s: %w", e.EventID, err))
			continue
		}

		_, err = s.db.Exec(
			`INSERT INTO cached_events
			  (org_id, user_email, event_id, subject, start_raw, end_raw, start_time, end_time,
			   location, organizer, attendees, has_transcript, transcript_refs, synced_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
			 ON CONFLICT(org_id, user_email, event_id) DO UPDATE SET
			   subject = excluded.subject,
			   start_raw = excluded.start_raw,
			   end_raw = excluded.end_raw,
			   start_time = excluded.start_time,
			   end_time = excluded.end_time,
			   location = excluded.location,
			   organizer = excluded.organizer,
			   attendees = excluded.attendees,
			   has_transcript = excluded.has_transcript,
			   transcript_refs = excluded.transcript_refs,
			   synced_at = excluded.synced_at`,
			e.OrgID, e.UserEmail, e.EventID, e.Subject, e.StartRaw, e.EndRaw,
			e.StartTime.UTC(), e.EndTime.UTC(), e.Location, e.Organizer,
			string(attendees), string(refs), e.SyncedAt.UTC(),
		)
		if err != nil {
			errs = append(errs, fmt.Errorf("upsert cached event %s: %w", e.EventID, err))
			continue
		}
		written++
	}

	return written, errors.Join(errs...)
}

// ListByRange returns cached events overlapping the window, newest start
// first. Reads never touch the external platform.
func (s *CachedEventStore) ListByRange(orgID, userEmail string, window timerange.Range) ([]model.CachedEvent, error) {
	rows, err := s.db.Query(
		`SELECT org_id, user_email, event_id, subject, start_raw, end_raw, start_time, end_time,
		        location, organizer, attendees, has_transcript, transcript_refs, synced_at
		 FROM cached_events
		 WHERE org_id = ? AND user_email = ? AND start_time < ? AND end_time > ?
		 ORDER BY start_time DESC`,
		orgID, userEmail, window.End.UTC(), window.Start.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("query cached events: %w", err)
	}
	defer rows.Close()

	var events []model.CachedEvent
	for rows.Next() {
		e, err := scanCachedEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cached event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

// GetByID returns one cached event, or nil when absent.
func (s *CachedEventStore) GetByID(orgID, userEmail, eventID string) (*model.CachedEvent, error) {
	row := s.db.QueryRow(
		`SELECT org_id, user_email, event_id, subject, start_raw, end_raw, start_time, end_time,
		        location, organizer, attendees, has_transcript, transcript_refs, synced_at
		 FROM cached_events
		 WHERE org_id = ? AND user_email = ? AND event_id = ?`,
		orgID, userEmail, eventID,
	)
	e, err := scanCachedEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query cached event: %w", err)
	}
	return e, nil
}

func scanCachedEvent(scanner interface{ Scan(...any) error }) (*model.CachedEvent, error) {
	var e model.CachedEvent
	var attendees, refs string
	var hasTranscript int
	var startTime, endTime, syncedAt time.Time

	err := scanner.Scan(
		&e.OrgID, &e.UserEmail, &e.EventID, &e.Subject, &e.StartRaw, &e.EndRaw,
		&startTime, &endTime, &e.Location, &e.Organizer,
		&attendees, &hasTranscript, &refs, &syncedAt,
	)
	if err != nil {
		return nil, err
	}

	e.StartTime = startTime
	e.EndTime = endTime
	e.SyncedAt = syncedAt
	e.HasTranscript = hasTranscript != 0
	if err := json.Unmarshal([]byte(attendees), &e.Attendees); err != nil {
		return nil, fmt.Errorf("decode attendees: %w", err)
	}
	if err := json.Unmarshal([]byte(refs), &e.Transcripts); err != nil {
		return nil, fmt.Errorf("decode transcript refs: %w", err)
	}
	return &e, nil
}
