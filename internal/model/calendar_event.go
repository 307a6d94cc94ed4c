package model

import "time"

// CalendarEvent is a single occurrence fetched from the platform's calendar
// view. It is transient: only transcript-bearing events are projected into
// the cache, everything else is discarded at the end of a sync pass.
type CalendarEvent struct {
	ID              string    `json:"id"`
	Subject         string    `json:"subject"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	StartRaw        string    `json:"start_raw"` // original timezone-qualified form
	EndRaw          string    `json:"end_raw"`
	Location        string    `json:"location"`
	Organizer       string    `json:"organizer"`
	Attendees       []string  `json:"attendees"`
	JoinURL         string    `json:"join_url,omitempty"`
	IsOnlineMeeting bool      `json:"is_online_meeting"`
	IsCancelled     bool      `json:"is_cancelled"`
}
