package model

import "time"

// AI summary lock states. Transitions are compare-and-set against the
// persisted row: none -> queued -> done, queued -> error on failure,
// error -> queued on retry. A queued row older than the staleness threshold
// is forced back to none before a new acquire.
const (
	AIStatusNone   = "none"
	AIStatusQueued = "queued"
	AIStatusDone   = "done"
	AIStatusError  = "error"
)

// AISummary is the summarization sub-record embedded in a Transcript.
type AISummary struct {
	Status    string     `json:"status"`
	Model     string     `json:"model,omitempty"`
	Summary   string     `json:"summary,omitempty"`
	Error     string     `json:"error,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// Transcript is the persisted copy of one platform transcript, scoped to a
// specific calendar occurrence. The (org, occurrence, transcript) key is
// what disambiguates recurring series: the series shares one meeting id but
// each occurrence gets its own row.
type Transcript struct {
	ID           int64      `json:"id"`
	OrgID        string     `json:"org_id"`
	OccurrenceID string     `json:"occurrence_id"`
	MeetingID    string     `json:"meeting_id"`
	TranscriptID string     `json:"transcript_id"`
	Subject      string     `json:"subject"`
	StartTime    *time.Time `json:"start_time,omitempty"`
	EndTime      *time.Time `json:"end_time,omitempty"`
	Participants []string   `json:"participants"`
	RawVTT       string     `json:"-"`
	Text         string     `json:"text"`
	AI           AISummary  `json:"ai"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
