package meeting

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/dukerupert/recap/internal/graph"
	"github.com/dukerupert/recap/internal/model"
)

// Directory is the slice of the platform client the resolver needs.
type Directory interface {
	MeetingsByJoinURL(ctx context.Context, token, joinURL string, prefix bool) ([]graph.OnlineMeeting, error)
	MeetingsByTimeWindow(ctx context.Context, token string, start, end time.Time) ([]graph.OnlineMeeting, error)
	ListTranscripts(ctx context.Context, token, meetingID string) ([]graph.TranscriptMeta, error)
}

// ResolverConfig is injected at construction so resolution behavior is
// deterministic per call rather than read from ambient process state.
type ResolverConfig struct {
	// SearchWindow widens the event's span on both sides for the
	// time-window fallback search.
	SearchWindow time.Duration
	// CacheTTL bounds reuse of a join-URL -> meeting-id resolution.
	CacheTTL time.Duration
}

// Resolver locates the online-meeting record behind a calendar event.
type Resolver struct {
	dir    Directory
	cfg    ResolverConfig
	cache  *gocache.Cache
	logger *slog.Logger
}

func NewResolver(dir Directory, cfg ResolverConfig, logger *slog.Logger) *Resolver {
	return &Resolver{
		dir:    dir,
		cfg:    cfg,
		cache:  gocache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		logger: logger,
	}
}

// NormalizeJoinURL canonicalizes a join URL: https scheme enforced,
// lowercased host, and a query-stripped base for loose matching. Returns
// the full and base forms.
func NormalizeJoinURL(raw string) (full, base string, err error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", "", fmt.Errorf("parse join url: %w", err)
	}
	switch u.Scheme {
	case "https":
	case "http":
		u.Scheme = "https"
	default:
		return "", "", fmt.Errorf("join url has unsupported scheme %q", u.Scheme)
	}
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	full = u.String()
	u.RawQuery = ""
	base = strings.TrimRight(u.String(), "/")
	return full, base, nil
}

// ResolveMeeting returns the directory id of the online meeting behind the
// event, or "" when no record matches. Not-found is a normal negative;
// only transport failures return an error.
//
// Match order: exact join URL, exact query-stripped base, prefix on the
// base, then a time-window search around the event with the event's URL as
// tie-break.
func (r *Resolver) ResolveMeeting(ctx context.Context, token string, ev model.CalendarEvent) (string, error) {
	if ev.JoinURL == "" {
		return "", nil
	}
	full, base, err := NormalizeJoinURL(ev.JoinURL)
	if err != nil {
		r.logger.Debug("unusable join url", "event_id", ev.ID, "error", err)
		return "", nil
	}

	key := cacheKey(token, base)
	if id, ok := r.cache.Get(key); ok {
		return id.(string), nil
	}

	id, err := r.resolveByURL(ctx, token, full, base)
	if err != nil {
		return "", err
	}
	if id == "" {
		id, err = r.resolveByTimeWindow(ctx, token, ev, base)
		if err != nil {
			return "", err
		}
	}

	if id != "" {
		r.cache.SetDefault(key, id)
	}
	return id, nil
}

// cacheKey scopes a memoized resolution to the caller. The directory
// answers relative to the bearer token, so the same join URL can map to
// different meeting records for different users; a shared key would hand
// one user another's meeting id.
func cacheKey(token, base string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:8]) + "|" + base
}

func (r *Resolver) resolveByURL(ctx context.Context, token, full, base string) (string, error) {
	attempts := []struct {
		url    string
		prefix bool
	}{
		{full, false},
		{base, false},
		{base, true},
	}
	for _, a := range attempts {
		meetings, err := r.dir.MeetingsByJoinURL(ctx, token, a.url, a.prefix)
		if err != nil {
			return "", fmt.Errorf("meeting lookup by url: %w", err)
		}
		if len(meetings) > 0 {
			return meetings[0].ID, nil
		}
	}
	return "", nil
}

func (r *Resolver) resolveByTimeWindow(ctx context.Context, token string, ev model.CalendarEvent, base string) (string, error) {
	if ev.Start.IsZero() {
		return "", nil
	}
	end := ev.End
	if end.IsZero() {
		end = ev.Start
	}

	meetings, err := r.dir.MeetingsByTimeWindow(ctx, token,
		ev.Start.Add(-r.cfg.SearchWindow), end.Add(r.cfg.SearchWindow))
	if err != nil {
		return "", fmt.Errorf("meeting lookup by time window: %w", err)
	}
	if len(meetings) == 0 {
		return "", nil
	}

	for _, m := range meetings {
		if m.JoinURL == "" {
			continue
		}
		if _, mBase, err := NormalizeJoinURL(m.JoinURL); err == nil && mBase == base {
			return m.ID, nil
		}
	}
	// No URL agreement inside the window: take the first result as the
	// best available guess.
	return meetings[0].ID, nil
}

// ListTranscripts passes through to the directory so the annotator needs
// only a Resolver.
func (r *Resolver) ListTranscripts(ctx context.Context, token, meetingID string) ([]graph.TranscriptMeta, error) {
	return r.dir.ListTranscripts(ctx, token, meetingID)
}
