package graph

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// TranscriptMeta describes one transcript attached to an online meeting.
// CreatedAt is zero when the platform's timestamp did not parse; the picker
// treats those as undatable and only uses them as a last resort.
type TranscriptMeta struct {
	ID         string    `json:"id"`
	CreatedRaw string    `json:"createdDateTime"`
	CreatedAt  time.Time `json:"-"`
}

type transcriptPage struct {
	Value []TranscriptMeta `json:"value"`
}

// ListTranscripts returns the transcripts recorded for a meeting, oldest
// first as the platform reports them. A meeting with no transcripts yields
// an empty list, not an error.
func (c *Client) ListTranscripts(ctx context.Context, token, meetingID string) ([]TranscriptMeta, error) {
	u := c.buildURL("/me/onlineMeetings/"+url.PathEscape(meetingID)+"/transcripts", nil)

	var page transcriptPage
	if err := c.get(ctx, token, u, &page); err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list transcripts: %w", err)
	}

	for i := range page.Value {
		if t, err := time.Parse(time.RFC3339, page.Value[i].CreatedRaw); err == nil {
			page.Value[i].CreatedAt = t.UTC()
		}
	}
	return page.Value, nil
}

// TranscriptContent downloads the caption payload of one transcript in
// WebVTT form.
func (c *Client) TranscriptContent(ctx context.Context, token, meetingID, transcriptID string) (string, error) {
	u := c.buildURL(
		"/me/onlineMeetings/"+url.PathEscape(meetingID)+"/transcripts/"+url.PathEscape(transcriptID)+"/content",
		url.Values{"$format": []string{"text/vtt"}},
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcript content request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", errNotFound
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &apiError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read transcript content: %w", err)
	}
	return string(body), nil
}
