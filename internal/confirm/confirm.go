/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package confirm watches the now-playing feed for the sentinel artist the
// player writes while a roll bundle airs. Seeing the sentinel is the only
// evidence a roll actually played.
package confirm

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/gjallar/internal/feed"
	"github.com/friendsincode/gjallar/internal/ledger"
)

// ErrConfirmationTimeout is returned when the sentinel never appeared before
// the deadline. The roll goes to the ledger as unconfirmed, never as failed.
var ErrConfirmationTimeout = errors.New("sentinel not observed before deadline")

// TrackSource is the slice of the feed reader the poller needs.
type TrackSource interface {
	CurrentTrack() (*feed.Track, error)
}

// Result is the observed sentinel evidence.
type Result struct {
	Artist     string
	StartedAt  time.Time
	ObservedAt time.Time
}

// Poller polls the feed until the sentinel artist appears.
type Poller struct {
	source   TrackSource
	interval time.Duration
	loc      *time.Location
	logger   zerolog.Logger
}

// NewPoller creates a confirmation poller. A non-positive interval defaults
// to two seconds.
func NewPoller(source TrackSource, interval time.Duration, loc *time.Location, logger zerolog.Logger) *Poller {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Poller{
		source:   source,
		interval: interval,
		loc:      loc,
		logger:   logger.With().Str("component", "confirm").Logger(),
	}
}

// WaitForSentinel polls the feed until the current artist matches the
// sentinel marker, the deadline passes, or ctx is cancelled. Feed read errors
// are transient: the player rewrites the file constantly, so the poller keeps
// trying until the deadline.
func (p *Poller) WaitForSentinel(ctx context.Context, deadline time.Time) (*Result, error) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if res := p.check(); res != nil {
			return res, nil
		}
		if !time.Now().Before(deadline) {
			return nil, ErrConfirmationTimeout
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Poller) check() *Result {
	track, err := p.source.CurrentTrack()
	if err != nil {
		p.logger.Debug().Err(err).Msg("feed unreadable during confirmation poll, retrying")
		return nil
	}
	if !strings.EqualFold(track.Artist, ledger.SentinelArtist) {
		return nil
	}

	observed := time.Now()
	startedAt, err := track.ParsedStartedAt(p.loc)
	if err != nil {
		// Sentinel seen but its timestamp is garbage. Credit the
		// observation time; the confirmation itself stands.
		p.logger.Warn().Err(err).Msg("sentinel observed with unparseable started_at")
		startedAt = observed
	}

	return &Result{
		Artist:     track.Artist,
		StartedAt:  startedAt,
		ObservedAt: observed,
	}
}

// Timeout computes the confirmation deadline for a roll attempted at now:
// the top of the current hour, but never less than min from now. Short rolls
// near the boundary still get a fair window. The boundary is built from date
// components rather than Truncate so zones with fractional offsets behave.
func Timeout(now time.Time, min time.Duration) time.Time {
	hourEnd := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, now.Location()).Add(time.Hour)
	if floor := now.Add(min); floor.After(hourEnd) {
		return floor
	}
	return hourEnd
}
