package graph

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dukerupert/recap/internal/model"
	"github.com/dukerupert/recap/internal/timerange"
)

const calendarPageSize = 50

type dateTimeTZ struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

type emailAddress struct {
	Address string `json:"address"`
}

type recipient struct {
	EmailAddress emailAddress `json:"emailAddress"`
}

type apiEvent struct {
	ID       string     `json:"id"`
	Subject  string     `json:"subject"`
	Start    dateTimeTZ `json:"start"`
	End      dateTimeTZ `json:"end"`
	Location struct {
		DisplayName string `json:"displayName"`
	} `json:"location"`
	Organizer       recipient   `json:"organizer"`
	Attendees       []recipient `json:"attendees"`
	IsCancelled     bool        `json:"isCancelled"`
	IsOnlineMeeting bool        `json:"isOnlineMeeting"`
	OnlineMeeting   struct {
		JoinURL string `json:"joinUrl"`
	} `json:"onlineMeeting"`
}

type eventPage struct {
	Value    []apiEvent `json:"value"`
	NextLink string     `json:"@odata.nextLink"`
}

// ListCalendarView fetches every calendar occurrence in the window,
// following pagination until the platform reports no further page.
// Recurring series are already expanded into occurrences by the platform.
func (c *Client) ListCalendarView(ctx context.Context, token string, window timerange.Range) ([]model.CalendarEvent, error) {
	query := url.Values{}
	query.Set("startDateTime", window.Start.UTC().Format(time.RFC3339))
	query.Set("endDateTime", window.End.UTC().Format(time.RFC3339))
	query.Set("$top", fmt.Sprint(calendarPageSize))

	next := c.buildURL("/me/calendarView", query)
	var events []model.CalendarEvent

	for next != "" {
		var page eventPage
		if err := c.get(ctx, token, next, &page); err != nil {
			if IsNotFound(err) {
				return events, nil
			}
			return nil, fmt.Errorf("list calendar view: %w", err)
		}
		for _, e := range page.Value {
			events = append(events, toModelEvent(e))
		}
		next = page.NextLink
	}
	return events, nil
}

func toModelEvent(e apiEvent) model.CalendarEvent {
	ev := model.CalendarEvent{
		ID:              e.ID,
		Subject:         e.Subject,
		StartRaw:        rawDateTime(e.Start),
		EndRaw:          rawDateTime(e.End),
		Location:        e.Location.DisplayName,
		Organizer:       strings.ToLower(e.Organizer.EmailAddress.Address),
		JoinURL:         e.OnlineMeeting.JoinURL,
		IsOnlineMeeting: e.IsOnlineMeeting,
		IsCancelled:     e.IsCancelled,
	}
	ev.Start = parseEventTime(e.Start)
	ev.End = parseEventTime(e.End)
	for _, a := range e.Attendees {
		if addr := strings.ToLower(strings.TrimSpace(a.EmailAddress.Address)); addr != "" {
			ev.Attendees = append(ev.Attendees, addr)
		}
	}
	return ev
}

func rawDateTime(dt dateTimeTZ) string {
	if dt.TimeZone == "" {
		return dt.DateTime
	}
	return dt.DateTime + " " + dt.TimeZone
}

// parseEventTime handles the platform's fractional-second local timestamps
// plus plain RFC3339. Unparseable values yield a zero time; callers treat
// those events as un-orderable rather than failing the fetch.
func parseEventTime(dt dateTimeTZ) time.Time {
	formats := []string{
		"2006-01-02T15:04:05.9999999",
		"2006-01-02T15:04:05",
		time.RFC3339,
	}
	loc := time.UTC
	if dt.TimeZone != "" && dt.TimeZone != "UTC" {
		if l, err := time.LoadLocation(dt.TimeZone); err == nil {
			loc = l
		}
	}
	for _, f := range formats {
		if t, err := time.ParseInLocation(f, dt.DateTime, loc); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
