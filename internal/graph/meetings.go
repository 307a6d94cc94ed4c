package graph

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

// OnlineMeeting is the directory's record of a virtual meeting session.
type OnlineMeeting struct {
	ID       string `json:"id"`
	JoinURL  string `json:"joinWebUrl"`
	Subject  string `json:"subject"`
	StartRaw string `json:"startDateTime"`
	EndRaw   string `json:"endDateTime"`
}

type meetingPage struct {
	Value []OnlineMeeting `json:"value"`
}

// The directory is split across two API surfaces depending on how the
// meeting was created; a miss on the first is retried on the second.
var meetingEndpoints = []string{
	"/me/onlineMeetings",
	"/users/me/onlineMeetings",
}

// MeetingsByJoinURL queries the online-meeting directory by join URL.
// With prefix=false the match is exact; with prefix=true it is a
// starts-with match, used for the query-stripped fallback.
func (c *Client) MeetingsByJoinURL(ctx context.Context, token, joinURL string, prefix bool) ([]OnlineMeeting, error) {
	var filter string
	if prefix {
		filter = fmt.Sprintf("startswith(JoinWebUrl,'%s')", escapeODataLiteral(joinURL))
	} else {
		filter = fmt.Sprintf("JoinWebUrl eq '%s'", escapeODataLiteral(joinURL))
	}
	return c.filterMeetings(ctx, token, filter)
}

// MeetingsByTimeWindow queries the directory for meetings whose recorded
// start and end fall inside [start, end]. Used as a fallback when the join
// URL yields no directory match.
func (c *Client) MeetingsByTimeWindow(ctx context.Context, token string, start, end time.Time) ([]OnlineMeeting, error) {
	filter := fmt.Sprintf("startDateTime ge %s and endDateTime le %s",
		start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339))
	return c.filterMeetings(ctx, token, filter)
}

func (c *Client) filterMeetings(ctx context.Context, token, filter string) ([]OnlineMeeting, error) {
	query := url.Values{}
	query.Set("$filter", filter)

	var lastErr error
	for _, endpoint := range meetingEndpoints {
		var page meetingPage
		err := c.get(ctx, token, c.buildURL(endpoint, query), &page)
		if err != nil {
			if IsNotFound(err) {
				continue
			}
			c.logger.Debug("meeting directory query failed", "endpoint", endpoint, "error", err)
			lastErr = err
			continue
		}
		if len(page.Value) > 0 {
			return page.Value, nil
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("filter meetings: %w", lastErr)
	}
	return nil, nil
}
