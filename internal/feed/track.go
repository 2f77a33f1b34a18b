/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package feed

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrIndeterminate marks a duration or timestamp the feed reported in a shape
// we cannot parse. Callers degrade to the safe action instead of guessing.
var ErrIndeterminate = errors.New("indeterminate timing value")

const startedAtLayout = "2006-01-02 15:04:05"

// Track is one entry of the now-playing feed. Duration and StartedAt are kept
// as the raw feed strings; parsing is deferred so a malformed value surfaces
// exactly where a timing decision is made.
type Track struct {
	Artist    string `xml:"artist"`
	Title     string `xml:"title"`
	Duration  string `xml:"duration"`
	StartedAt string `xml:"started_at"`
}

// Identity returns a comparison key for track-change detection.
func (t *Track) Identity() string {
	return t.Artist + "\x00" + t.Title + "\x00" + t.StartedAt
}

// ParsedDuration parses the feed duration, accepting "MM:SS" or "H:MM:SS".
func (t *Track) ParsedDuration() (time.Duration, error) {
	return ParseClipDuration(t.Duration)
}

// ParsedStartedAt parses the feed start timestamp in the station's location.
func (t *Track) ParsedStartedAt(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	parsed, err := time.ParseInLocation(startedAtLayout, strings.TrimSpace(t.StartedAt), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: started_at %q", ErrIndeterminate, t.StartedAt)
	}
	return parsed, nil
}

// EndsAt projects when the track finishes: started_at plus duration.
func (t *Track) EndsAt(loc *time.Location) (time.Time, error) {
	start, err := t.ParsedStartedAt(loc)
	if err != nil {
		return time.Time{}, err
	}
	dur, err := t.ParsedDuration()
	if err != nil {
		return time.Time{}, err
	}
	return start.Add(dur), nil
}

// ParseClipDuration parses "MM:SS" or "H:MM:SS" clip durations. Anything else
// is ErrIndeterminate.
func ParseClipDuration(raw string) (time.Duration, error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("%w: duration %q", ErrIndeterminate, raw)
	}

	values := make([]int, len(parts))
	for i, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 {
			return 0, fmt.Errorf("%w: duration %q", ErrIndeterminate, raw)
		}
		values[i] = n
	}

	var hours, minutes, seconds int
	if len(values) == 2 {
		minutes, seconds = values[0], values[1]
	} else {
		hours, minutes, seconds = values[0], values[1], values[2]
	}
	if seconds > 59 || (len(values) == 3 && minutes > 59) {
		return 0, fmt.Errorf("%w: duration %q", ErrIndeterminate, raw)
	}

	return time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds)*time.Second, nil
}
