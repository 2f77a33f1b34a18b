/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package feed

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFeed(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nowplaying.xml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write feed: %v", err)
	}
	return path
}

const feedWithNext = `<nowplaying>
  <current>
    <artist>Some Band</artist>
    <title>Song A</title>
    <duration>03:25</duration>
    <started_at>2026-03-02 14:40:00</started_at>
  </current>
  <next>
    <artist>Radio Voices</artist>
    <title>Morning Lecture</title>
    <duration>1:02:10</duration>
    <started_at>2026-03-02 14:43:25</started_at>
  </next>
</nowplaying>`

func TestReaderParsesCurrentAndNext(t *testing.T) {
	r := NewReader(writeFeed(t, feedWithNext), 0)

	current, err := r.CurrentTrack()
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if current.Artist != "Some Band" || current.Title != "Song A" {
		t.Fatalf("current = %+v", current)
	}

	dur, err := current.ParsedDuration()
	if err != nil {
		t.Fatalf("duration: %v", err)
	}
	if dur != 3*time.Minute+25*time.Second {
		t.Fatalf("duration = %v", dur)
	}

	next, err := r.NextTrack()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if next == nil || next.Artist != "Radio Voices" {
		t.Fatalf("next = %+v", next)
	}

	has, err := r.HasNextTrack()
	if err != nil || !has {
		t.Fatalf("HasNextTrack = %v, %v", has, err)
	}
}

func TestReaderNoNextMeansPlaylistEnded(t *testing.T) {
	r := NewReader(writeFeed(t, `<nowplaying><current><artist>A</artist><title>T</title><duration>02:00</duration><started_at>2026-03-02 10:00:00</started_at></current></nowplaying>`), 0)

	next, err := r.NextTrack()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if next != nil {
		t.Fatalf("next = %+v, want nil", next)
	}
}

func TestReaderMissingFileIsUnavailable(t *testing.T) {
	r := NewReader(filepath.Join(t.TempDir(), "absent.xml"), 0)

	if _, err := r.CurrentTrack(); !errors.Is(err, ErrFeedUnavailable) {
		t.Fatalf("err = %v, want ErrFeedUnavailable", err)
	}
	if _, err := r.FileModifiedTime(); !errors.Is(err, ErrFeedUnavailable) {
		t.Fatalf("mtime err = %v, want ErrFeedUnavailable", err)
	}
}

func TestReaderGarbageIsMalformed(t *testing.T) {
	r := NewReader(writeFeed(t, "{not xml at all"), 0)

	if _, err := r.CurrentTrack(); !errors.Is(err, ErrFeedMalformed) {
		t.Fatalf("err = %v, want ErrFeedMalformed", err)
	}
}

func TestReaderCachesWithinTTL(t *testing.T) {
	path := writeFeed(t, feedWithNext)
	r := NewReader(path, time.Minute)

	if _, err := r.CurrentTrack(); err != nil {
		t.Fatalf("first read: %v", err)
	}

	// Removing the file must not matter while the cache is fresh.
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := r.CurrentTrack(); err != nil {
		t.Fatalf("cached read: %v", err)
	}
}

func TestParseClipDuration(t *testing.T) {
	cases := []struct {
		raw  string
		want time.Duration
		ok   bool
	}{
		{"03:25", 3*time.Minute + 25*time.Second, true},
		{"1:02:10", time.Hour + 2*time.Minute + 10*time.Second, true},
		{"00:00", 0, true},
		{"59:59", 59*time.Minute + 59*time.Second, true},
		{"", 0, false},
		{"205", 0, false},
		{"3:25:10:00", 0, false},
		{"ab:cd", 0, false},
		{"03:61", 0, false},
		{"-1:20", 0, false},
	}

	for _, tc := range cases {
		got, err := ParseClipDuration(tc.raw)
		if tc.ok {
			if err != nil {
				t.Errorf("ParseClipDuration(%q) error: %v", tc.raw, err)
				continue
			}
			if got != tc.want {
				t.Errorf("ParseClipDuration(%q) = %v, want %v", tc.raw, got, tc.want)
			}
			continue
		}
		if !errors.Is(err, ErrIndeterminate) {
			t.Errorf("ParseClipDuration(%q) err = %v, want ErrIndeterminate", tc.raw, err)
		}
	}
}

func TestTrackEndsAt(t *testing.T) {
	track := &Track{Duration: "03:00", StartedAt: "2026-03-02 14:58:30"}

	ends, err := track.EndsAt(time.UTC)
	if err != nil {
		t.Fatalf("ends: %v", err)
	}
	want := time.Date(2026, 3, 2, 15, 1, 30, 0, time.UTC)
	if !ends.Equal(want) {
		t.Fatalf("ends = %v, want %v", ends, want)
	}

	bad := &Track{Duration: "???", StartedAt: "2026-03-02 14:58:30"}
	if _, err := bad.EndsAt(time.UTC); !errors.Is(err, ErrIndeterminate) {
		t.Fatalf("bad duration err = %v, want ErrIndeterminate", err)
	}
}
