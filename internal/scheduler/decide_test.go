/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduler

import (
	"testing"
	"time"

	"github.com/friendsincode/gjallar/internal/feed"
)

func mkTrack(artist, startedAt, duration string) *feed.Track {
	return &feed.Track{Artist: artist, Title: "t", StartedAt: startedAt, Duration: duration}
}

func TestDecide(t *testing.T) {
	// A Monday afternoon; the hour boundary under test is 15:00.
	now := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)
	margin := 3 * time.Minute

	tests := []struct {
		name   string
		in     Inputs
		action Action
		reason string
	}{
		{
			name: "feed unreadable skips the pass",
			in: Inputs{
				Now:     now,
				FeedErr: feed.ErrFeedUnavailable,
			},
			action: ActionSkip,
			reason: "feed_unreadable",
		},
		{
			name: "playlist ended aborts",
			in: Inputs{
				Now:     now,
				Current: mkTrack("Band", "2026-03-02 14:25:00", "10:00"),
				Next:    nil,
			},
			action: ActionAbort,
			reason: "playlist_ended",
		},
		{
			name: "under the safety floor fires instant",
			in: Inputs{
				Now:     time.Date(2026, 3, 2, 14, 58, 0, 0, time.UTC),
				Current: mkTrack("Band", "2026-03-02 14:57:00", "03:00"),
				Next:    mkTrack("Other Band", "", ""),
			},
			action: ActionInstant,
			reason: "safety_floor",
		},
		{
			name: "current track crossing the boundary fires instant",
			in: Inputs{
				Now:     now,
				Current: mkTrack("Band", "2026-03-02 14:25:00", "41:00"), // ends 15:06
				Next:    mkTrack("Other Band", "", ""),
			},
			action: ActionInstant,
			reason: "current_crosses_boundary",
		},
		{
			name: "boundary crossing wins over lecture classification",
			in: Inputs{
				Now:     now,
				Current: mkTrack("Band", "2026-03-02 14:25:00", "41:00"), // ends 15:06
				Next:    mkTrack("Rev Speaker", "", ""),
			},
			action: ActionInstant,
			reason: "current_crosses_boundary",
		},
		{
			name: "lecture next goes scheduled",
			in: Inputs{
				Now:     now,
				Current: mkTrack("Band", "2026-03-02 14:30:00", "10:00"), // ends 14:40
				Next:    mkTrack("Rev Speaker", "", ""),
			},
			action: ActionScheduled,
			reason: "lecture_next",
		},
		{
			name: "blacklisted artist counts as lecture",
			in: Inputs{
				Now:       now,
				Current:   mkTrack("Band", "2026-03-02 14:30:00", "10:00"),
				Next:      mkTrack("Morning Sermon", "", ""),
				Blacklist: []string{"Morning Sermon"},
			},
			action: ActionScheduled,
			reason: "lecture_next",
		},
		{
			name: "whitelist overrides the lecture heuristic",
			in: Inputs{
				Now:       now,
				Current:   mkTrack("Band", "2026-03-02 14:30:00", "10:00"),
				Next:      mkTrack("Radiohead", "", ""),
				Whitelist: []string{"Radiohead"},
			},
			action: ActionWait,
			reason: "wait_for_track_change",
		},
		{
			name: "music next with runway waits",
			in: Inputs{
				Now:     now,
				Current: mkTrack("Band", "2026-03-02 14:30:00", "10:00"), // ends 14:40
				Next:    mkTrack("Other Band", "", ""),
			},
			action: ActionWait,
			reason: "wait_for_track_change",
		},
		{
			name: "music next without runway fires instant",
			in: Inputs{
				Now:     now,
				Current: mkTrack("Band", "2026-03-02 14:30:00", "28:30"), // ends 14:58:30
				Next:    mkTrack("Other Band", "", ""),
			},
			action: ActionInstant,
			reason: "no_runway_after_track",
		},
		{
			name: "unparsable duration degrades to instant",
			in: Inputs{
				Now:     now,
				Current: mkTrack("Band", "2026-03-02 14:30:00", "about three minutes"),
				Next:    mkTrack("Other Band", "", ""),
			},
			action: ActionInstant,
			reason: "indeterminate_timing",
		},
		{
			name: "unparsable started_at degrades to instant",
			in: Inputs{
				Now:     now,
				Current: mkTrack("Band", "yesterday", "10:00"),
				Next:    mkTrack("Other Band", "", ""),
			},
			action: ActionInstant,
			reason: "indeterminate_timing",
		},
		{
			name: "missing current block degrades to instant",
			in: Inputs{
				Now:  now,
				Next: mkTrack("Other Band", "", ""),
			},
			action: ActionInstant,
			reason: "indeterminate_timing",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.in.SafetyMargin = margin
			tc.in.Location = time.UTC

			got := Decide(tc.in)
			if got.Action != tc.action || got.Reason != tc.reason {
				t.Fatalf("Decide = %s/%s, want %s/%s", got.Action, got.Reason, tc.action, tc.reason)
			}
		})
	}
}
