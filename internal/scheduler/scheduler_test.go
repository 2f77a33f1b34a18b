/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduler

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/gjallar/internal/eventbus"
	"github.com/friendsincode/gjallar/internal/feed"
	"github.com/friendsincode/gjallar/internal/trigger"
)

func writeFeed(t *testing.T, path, currentArtist, currentStart, currentDur, nextArtist string) {
	t.Helper()

	next := ""
	if nextArtist != "" {
		next = fmt.Sprintf("<next><artist>%s</artist><title>t</title></next>", nextArtist)
	}
	doc := fmt.Sprintf(
		`<nowplaying><current><artist>%s</artist><title>t</title><duration>%s</duration><started_at>%s</started_at></current>%s</nowplaying>`,
		currentArtist, currentDur, currentStart, next)

	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write feed: %v", err)
	}
}

func newTestScheduler(t *testing.T, feedPath string) (*Scheduler, chan trigger.Job) {
	t.Helper()

	jobs := make(chan trigger.Job, 1)
	s := New(Config{
		StationName:       "KTST",
		Location:          time.UTC,
		SafetyMargin:      3 * time.Minute,
		TrackPollInterval: 5 * time.Second,
	}, feed.NewReader(feedPath, 0), jobs, eventbus.NewMemoryBus(), zerolog.Nop())
	return s, jobs
}

func TestHourTickWaitsThenFiresOnTrackChange(t *testing.T) {
	feedPath := filepath.Join(t.TempDir(), "feed.xml")
	s, jobs := newTestScheduler(t, feedPath)

	// Hour boundary at 14:00; plenty of runway after the current track.
	now := time.Date(2026, 3, 2, 14, 0, 5, 0, time.UTC)
	s.now = func() time.Time { return now }
	s.state.lastCheckedHour = 13

	writeFeed(t, feedPath, "Band", "2026-03-02 14:00:00", "10:00", "Other Band")
	s.step()

	if s.state.phase != phaseWaiting || !s.state.hourStart {
		t.Fatalf("after hour tick: phase=%s hourStart=%v, want waiting/true", s.state.phase, s.state.hourStart)
	}
	select {
	case job := <-jobs:
		t.Fatalf("waiting pass must not dispatch, got %+v", job)
	default:
	}

	// Track change into the end of the hour: no runway left.
	now = time.Date(2026, 3, 2, 14, 56, 0, 0, time.UTC)
	writeFeed(t, feedPath, "Next Band", "2026-03-02 14:56:00", "02:00", "Other Band")
	s.step()

	select {
	case job := <-jobs:
		if job.Mode != trigger.ModeInstant {
			t.Fatalf("job mode = %s, want instant", job.Mode)
		}
		if !job.HourStart {
			t.Fatal("hour-start flag must survive the waiting cycle")
		}
	default:
		t.Fatal("track change into no-runway must dispatch a job")
	}

	if s.state.phase != phaseIdle || s.state.hourStart {
		t.Fatalf("after terminal action: phase=%s hourStart=%v, want idle/false", s.state.phase, s.state.hourStart)
	}
}

func TestNoDoubleTriggerWhileWaiting(t *testing.T) {
	feedPath := filepath.Join(t.TempDir(), "feed.xml")
	s, jobs := newTestScheduler(t, feedPath)

	now := time.Date(2026, 3, 2, 14, 0, 5, 0, time.UTC)
	s.now = func() time.Time { return now }
	s.state.lastCheckedHour = 13

	writeFeed(t, feedPath, "Band", "2026-03-02 14:00:00", "10:00", "Other Band")
	s.step()
	if s.state.phase != phaseWaiting {
		t.Fatalf("phase = %s, want waiting", s.state.phase)
	}

	// Same track, same hour: repeated polls stay quiet.
	for i := 0; i < 3; i++ {
		s.step()
	}
	select {
	case job := <-jobs:
		t.Fatalf("unchanged track must not dispatch, got %+v", job)
	default:
	}
	if s.state.phase != phaseWaiting || !s.state.hourStart {
		t.Fatal("waiting state must persist across quiet polls")
	}
}

func TestScheduledJobForLectureNext(t *testing.T) {
	feedPath := filepath.Join(t.TempDir(), "feed.xml")
	s, jobs := newTestScheduler(t, feedPath)

	now := time.Date(2026, 3, 2, 14, 0, 5, 0, time.UTC)
	s.now = func() time.Time { return now }
	s.state.lastCheckedHour = 13

	writeFeed(t, feedPath, "Band", "2026-03-02 14:00:00", "10:00", "Reverend Talk")
	s.step()

	select {
	case job := <-jobs:
		if job.Mode != trigger.ModeScheduled || !job.HourStart {
			t.Fatalf("job = %+v, want scheduled hour-start", job)
		}
	default:
		t.Fatal("lecture next must dispatch a scheduled job")
	}
}

func TestPlaylistEndedAbortsAndClearsFlags(t *testing.T) {
	feedPath := filepath.Join(t.TempDir(), "feed.xml")
	s, jobs := newTestScheduler(t, feedPath)

	now := time.Date(2026, 3, 2, 14, 0, 5, 0, time.UTC)
	s.now = func() time.Time { return now }
	s.state.lastCheckedHour = 13

	writeFeed(t, feedPath, "Band", "2026-03-02 14:00:00", "10:00", "")
	s.step()

	select {
	case job := <-jobs:
		t.Fatalf("abort must not dispatch, got %+v", job)
	default:
	}
	if s.state.phase != phaseIdle || s.state.hourStart {
		t.Fatalf("after abort: phase=%s hourStart=%v, want idle/false", s.state.phase, s.state.hourStart)
	}
}

func TestFeedOutagePreservesWaitingState(t *testing.T) {
	feedPath := filepath.Join(t.TempDir(), "feed.xml")
	s, _ := newTestScheduler(t, feedPath)

	now := time.Date(2026, 3, 2, 14, 0, 5, 0, time.UTC)
	s.now = func() time.Time { return now }
	s.state.lastCheckedHour = 13

	writeFeed(t, feedPath, "Band", "2026-03-02 14:00:00", "10:00", "Other Band")
	s.step()
	if s.state.phase != phaseWaiting {
		t.Fatalf("phase = %s, want waiting", s.state.phase)
	}

	// Feed disappears mid-wait; the waiting cycle must survive the outage.
	if err := os.Remove(feedPath); err != nil {
		t.Fatalf("remove feed: %v", err)
	}
	s.step()
	if s.state.phase != phaseWaiting || !s.state.hourStart {
		t.Fatal("feed outage must preserve waiting state")
	}
}

func TestSleepForBounds(t *testing.T) {
	s, _ := newTestScheduler(t, "unused")

	// Mid-hour, idle: capped at one minute.
	mid := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)
	if got := s.sleepFor(mid); got != time.Minute {
		t.Fatalf("idle mid-hour sleep = %v, want 1m", got)
	}

	// Waiting: track poll interval wins.
	s.state.phase = phaseWaiting
	if got := s.sleepFor(mid); got != 5*time.Second {
		t.Fatalf("waiting sleep = %v, want 5s", got)
	}

	// Seconds before the boundary: floored at one second.
	s.state.phase = phaseIdle
	edge := time.Date(2026, 3, 2, 14, 59, 59, 900_000_000, time.UTC)
	got := s.sleepFor(edge)
	if got < time.Second || got > 3*time.Second {
		t.Fatalf("boundary sleep = %v, want between 1s and 3s", got)
	}
}
