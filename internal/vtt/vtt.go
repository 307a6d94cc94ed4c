// Package vtt converts WebVTT caption payloads into plain transcript text.
// It is deliberately a stripped-down reader, not a full WebVTT parser: cue
// timing, positioning, and styling are discarded, only the spoken text and
// speaker attributions survive.
package vtt

import (
	"regexp"
	"strings"
)

var (
	timestampRe = regexp.MustCompile(`^\s*\d{1,2}:\d{2}(:\d{2})?[.,]\d{3}\s+-->\s+\d{1,2}:\d{2}(:\d{2})?[.,]\d{3}`)
	cueIndexRe  = regexp.MustCompile(`^\s*\d+\s*$`)
	voiceRe     = regexp.MustCompile(`<v\s+([^>]+)>`)
	tagRe       = regexp.MustCompile(`</?[^>]+>`)
)

// ToText converts a WebVTT payload to plain text, one caption line per
// output line. Speaker tags become "Speaker: text" prefixes and exact
// consecutive duplicate lines (common in machine captions) are dropped.
func ToText(payload string) string {
	lines := strings.Split(strings.ReplaceAll(payload, "\r\n", "\n"), "\n")

	var out []string
	var prev string
	inNote := false

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)

		// Header line and optional metadata directly after it.
		if i == 0 && strings.HasPrefix(trimmed, "WEBVTT") {
			continue
		}
		if trimmed == "" {
			inNote = false
			continue
		}
		if inNote {
			continue
		}
		if strings.HasPrefix(trimmed, "NOTE") {
			inNote = true
			continue
		}
		if cueIndexRe.MatchString(trimmed) || timestampRe.MatchString(trimmed) {
			continue
		}
		if strings.HasPrefix(trimmed, "STYLE") || strings.HasPrefix(trimmed, "REGION") {
			inNote = true
			continue
		}

		text := voiceRe.ReplaceAllString(trimmed, "$1: ")
		text = tagRe.ReplaceAllString(text, "")
		text = strings.TrimSpace(text)
		if text == "" || text == prev {
			continue
		}

		out = append(out, text)
		prev = text
	}

	return strings.Join(out, "\n")
}
