/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package confirm

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/gjallar/internal/feed"
)

// scriptedSource returns a fixed sequence of tracks, repeating the last one.
type scriptedSource struct {
	calls  atomic.Int64
	script []func() (*feed.Track, error)
}

func (s *scriptedSource) CurrentTrack() (*feed.Track, error) {
	i := int(s.calls.Add(1)) - 1
	if i >= len(s.script) {
		i = len(s.script) - 1
	}
	return s.script[i]()
}

func track(artist string) func() (*feed.Track, error) {
	return func() (*feed.Track, error) {
		return &feed.Track{
			Artist:    artist,
			Title:     "x",
			StartedAt: time.Now().Format("2006-01-02 15:04:05"),
		}, nil
	}
}

func feedDown() (*feed.Track, error) {
	return nil, feed.ErrFeedUnavailable
}

func TestWaitForSentinelSeesMarker(t *testing.T) {
	src := &scriptedSource{script: []func() (*feed.Track, error){
		track("Some Band"),
		track("ADROLL"),
	}}
	p := NewPoller(src, 5*time.Millisecond, time.UTC, zerolog.Nop())

	res, err := p.WaitForSentinel(context.Background(), time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if res.Artist != "ADROLL" {
		t.Fatalf("artist = %q", res.Artist)
	}
	if res.StartedAt.IsZero() || res.ObservedAt.IsZero() {
		t.Fatalf("result timestamps not set: %+v", res)
	}
}

func TestWaitForSentinelTimesOut(t *testing.T) {
	src := &scriptedSource{script: []func() (*feed.Track, error){
		track("Some Band"),
	}}
	p := NewPoller(src, 5*time.Millisecond, time.UTC, zerolog.Nop())

	_, err := p.WaitForSentinel(context.Background(), time.Now().Add(30*time.Millisecond))
	if !errors.Is(err, ErrConfirmationTimeout) {
		t.Fatalf("err = %v, want ErrConfirmationTimeout", err)
	}
}

func TestWaitForSentinelSurvivesFeedErrors(t *testing.T) {
	src := &scriptedSource{script: []func() (*feed.Track, error){
		feedDown,
		feedDown,
		track("adRoll"),
	}}
	p := NewPoller(src, 5*time.Millisecond, time.UTC, zerolog.Nop())

	res, err := p.WaitForSentinel(context.Background(), time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if res.Artist != "adRoll" {
		t.Fatalf("artist = %q", res.Artist)
	}
}

func TestWaitForSentinelHonorsContext(t *testing.T) {
	src := &scriptedSource{script: []func() (*feed.Track, error){
		track("Some Band"),
	}}
	p := NewPoller(src, 5*time.Millisecond, time.UTC, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.WaitForSentinel(ctx, time.Now().Add(time.Minute))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestTimeout(t *testing.T) {
	// Mid-hour: the deadline is the top of the hour.
	at := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)
	if got, want := Timeout(at, time.Minute), time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("mid-hour deadline = %v, want %v", got, want)
	}

	// Close to the boundary: the minimum window wins.
	at = time.Date(2026, 3, 2, 14, 59, 30, 0, time.UTC)
	if got, want := Timeout(at, time.Minute), at.Add(time.Minute); !got.Equal(want) {
		t.Fatalf("boundary deadline = %v, want %v", got, want)
	}
}

func TestTimeoutInFractionalOffsetZone(t *testing.T) {
	// The hour boundary is the station's wall-clock hour, which in a +05:30
	// zone sits 30 minutes off the absolute hour grid.
	loc := time.FixedZone("UTC+0530", 5*3600+1800)
	at := time.Date(2026, 3, 2, 14, 30, 0, 0, loc)
	if got, want := Timeout(at, time.Minute), time.Date(2026, 3, 2, 15, 0, 0, 0, loc); !got.Equal(want) {
		t.Fatalf("deadline = %v, want %v", got, want)
	}
}
