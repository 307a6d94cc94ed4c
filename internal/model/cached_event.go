package model

import "time"

// TranscriptRef points at one transcript of a resolved online meeting.
type TranscriptRef struct {
	MeetingID    string `json:"meeting_id"`
	TranscriptID string `json:"transcript_id"`
}

// CachedEvent is the persisted projection of a calendar occurrence that was
// found to have at least one transcript. Keyed by (org, user email, event id);
// repeated syncs overwrite the same row. Events without transcripts are never
// written, so the cache stays small and negative results are re-decided on
// the next pass instead of going stale.
type CachedEvent struct {
	OrgID         string          `json:"org_id"`
	UserEmail     string          `json:"user_email"`
	EventID       string          `json:"event_id"`
	Subject       string          `json:"subject"`
	StartRaw      string          `json:"start"` // original timezone-qualified form
	EndRaw        string          `json:"end"`
	StartTime     time.Time       `json:"start_time"`
	EndTime       time.Time       `json:"end_time"`
	Location      string          `json:"location"`
	Organizer     string          `json:"organizer"`
	Attendees     []string        `json:"attendees"` // lowercased, deduplicated
	HasTranscript bool            `json:"has_transcript"`
	Transcripts   []TranscriptRef `json:"transcripts"`
	SyncedAt      time.Time       `json:"synced_at"`
}
