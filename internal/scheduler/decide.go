/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package scheduler decides when a station's hourly roll fires. The decision
// logic is a pure function over a feed snapshot; the loop around it owns the
// per-station state and hands committed rolls to the trigger runner over a
// job channel.
package scheduler

import (
	"errors"
	"time"

	"github.com/friendsincode/gjallar/internal/classifier"
	"github.com/friendsincode/gjallar/internal/feed"
)

// Action is the outcome of one decision pass.
type Action string

const (
	// ActionInstant interrupts the current track now.
	ActionInstant Action = "instant"

	// ActionScheduled queues the roll after the current track.
	ActionScheduled Action = "scheduled"

	// ActionWait re-evaluates at the next track change.
	ActionWait Action = "wait"

	// ActionAbort gives up on this hour; the playlist has ended.
	ActionAbort Action = "abort"

	// ActionSkip leaves everything untouched; the feed was unreadable and
	// the next poll retries.
	ActionSkip Action = "skip"
)

// Inputs is one feed snapshot plus station policy, everything a decision
// needs. Keeping it a value makes the algorithm testable without a feed file.
type Inputs struct {
	Now     time.Time
	Current *feed.Track
	Next    *feed.Track // nil means the playlist has ended
	FeedErr error

	Blacklist []string
	Whitelist []string

	SafetyMargin time.Duration
	Location     *time.Location
}

// Decision is the committed outcome with its reason code for logs and events.
type Decision struct {
	Action Action
	Reason string
}

// hourEnd returns the next hour boundary in wall-clock terms. Built from
// date components rather than Truncate so zones with fractional offsets
// behave.
func hourEnd(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, now.Location()).Add(time.Hour)
}

// Decide runs the decision algorithm in strict order:
//
//  1. Feed unreadable: skip, retry next poll.
//  2. No next track: abort, the playlist has ended.
//  3. Under the safety margin to the hour boundary: instant, hard floor.
//  4. Current track spills past the boundary: instant.
//  5. Next track is a lecture: scheduled after the current track, which is
//     known to end inside this hour by now.
//  6. Otherwise: wait for the track change if enough runway remains after
//     the current track, instant if not.
//
// Any indeterminate timing value degrades to instant: over-delivery beats a
// missed hourly commitment.
func Decide(in Inputs) Decision {
	loc := in.Location
	if loc == nil {
		loc = time.UTC
	}
	now := in.Now.In(loc)

	if in.FeedErr != nil {
		return Decision{ActionSkip, "feed_unreadable"}
	}
	if in.Next == nil {
		return Decision{ActionAbort, "playlist_ended"}
	}

	boundary := hourEnd(now)
	if boundary.Sub(now) < in.SafetyMargin {
		return Decision{ActionInstant, "safety_floor"}
	}

	if in.Current == nil {
		return Decision{ActionInstant, "indeterminate_timing"}
	}
	currentEnd, err := in.Current.EndsAt(loc)
	if err != nil {
		if errors.Is(err, feed.ErrIndeterminate) {
			return Decision{ActionInstant, "indeterminate_timing"}
		}
		return Decision{ActionInstant, "timing_failure"}
	}

	if currentEnd.After(boundary) {
		return Decision{ActionInstant, "current_crosses_boundary"}
	}

	// The current track ends inside this hour here, so a lecture next always
	// starts before the boundary and the roll can ride the track change.
	if classifier.IsLecture(in.Next.Artist, in.Blacklist, in.Whitelist) {
		return Decision{ActionScheduled, "lecture_next"}
	}

	if boundary.Sub(currentEnd) < in.SafetyMargin {
		return Decision{ActionInstant, "no_runway_after_track"}
	}
	return Decision{ActionWait, "wait_for_track_change"}
}
