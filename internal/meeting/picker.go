// Package meeting matches calendar occurrences to online-meeting records
// and their transcripts. The matching is heuristic: the platform gives no
// key linking a transcript to a specific occurrence of a recurring series,
// so resolution works off join URLs and creation-time proximity.
package meeting

import (
	"time"

	"github.com/dukerupert/recap/internal/graph"
)

// PickerConfig holds the acceptance window around an occurrence. The widths
// are policy, not physical constants: transcript generation lags meeting end
// by an unpredictable amount.
type PickerConfig struct {
	WindowBefore time.Duration // before event start
	WindowAfter  time.Duration // after event end
}

// PickTranscript selects the one transcript belonging to this occurrence
// from a meeting's transcript list. A recurring series shares one meeting
// identity across occurrences, so the list may span weeks of sessions.
//
// The anchor is the event's end (or start when end is missing). Transcripts
// created inside [start-before, end+after] win by proximity to the anchor;
// failing that, the closest transcript overall; failing any parseable
// creation time, the last one the platform reported. Pure function of its
// inputs. Returns nil only for an empty list.
func PickTranscript(transcripts []graph.TranscriptMeta, eventStart, eventEnd time.Time, cfg PickerConfig) *graph.TranscriptMeta {
	if len(transcripts) == 0 {
		return nil
	}

	anchor := eventEnd
	if anchor.IsZero() {
		anchor = eventStart
	}

	dated := make([]graph.TranscriptMeta, 0, len(transcripts))
	for _, t := range transcripts {
		if !t.CreatedAt.IsZero() {
			dated = append(dated, t)
		}
	}
	if len(dated) == 0 || anchor.IsZero() {
		// No usable timestamps to compare: best effort is the most recent
		// entry, which the platform lists last.
		if len(dated) > 0 {
			best := dated[0]
			for _, t := range dated[1:] {
				if t.CreatedAt.After(best.CreatedAt) {
					best = t
				}
			}
			return &best
		}
		last := transcripts[len(transcripts)-1]
		return &last
	}

	windowStart := eventStart
	if windowStart.IsZero() {
		windowStart = anchor
	}
	windowEnd := eventEnd
	if windowEnd.IsZero() {
		windowEnd = anchor
	}
	windowStart = windowStart.Add(-cfg.WindowBefore)
	windowEnd = windowEnd.Add(cfg.WindowAfter)

	var inWindow, fallback *graph.TranscriptMeta
	var inWindowDist, fallbackDist time.Duration
	for i := range dated {
		t := &dated[i]
		dist := absDuration(t.CreatedAt.Sub(anchor))
		if fallback == nil || dist < fallbackDist {
			fallback, fallbackDist = t, dist
		}
		if t.CreatedAt.Before(windowStart) || t.CreatedAt.After(windowEnd) {
			continue
		}
		if inWindow == nil || dist < inWindowDist {
			inWindow, inWindowDist = t, dist
		}
	}

	if inWindow != nil {
		return inWindow
	}
	return fallback
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
