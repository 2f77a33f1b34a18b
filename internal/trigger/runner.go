/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package trigger executes a roll end to end: select the eligible ads,
// optionally bundle them with the station ident, hit the player's insertion
// endpoint, and settle the attempt in the ledger. Insertion is fire-and-
// forget at the HTTP level; the sentinel in the feed is the only proof of
// playback.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"gorm.io/gorm"

	"github.com/friendsincode/gjallar/internal/catalog"
	"github.com/friendsincode/gjallar/internal/confirm"
	"github.com/friendsincode/gjallar/internal/eventbus"
	"github.com/friendsincode/gjallar/internal/events"
	"github.com/friendsincode/gjallar/internal/ledger"
	"github.com/friendsincode/gjallar/internal/telemetry"
)

// Mode selects the player endpoint a roll is sent to.
type Mode string

const (
	// ModeInstant interrupts the current track immediately.
	ModeInstant Mode = "instant"

	// ModeScheduled queues the roll after the current track.
	ModeScheduled Mode = "scheduled"
)

// Job is one roll order from the scheduler. The scheduler decides, the
// runner executes; the two communicate only through these values.
type Job struct {
	Mode      Mode
	HourStart bool
}

// Endpoints are the station's player insertion URLs.
type Endpoints struct {
	ScheduledURL string
	InstantURL   string
}

// Bundler is the slice of the audio tool the runner needs.
type Bundler interface {
	catalog.DurationProber
	Concat(ctx context.Context, output string, inputs []string) error
	ValidateBundle(path string, expected, tolerance time.Duration) (time.Duration, error)
}

// SentinelWaiter blocks until the sentinel artist shows up in the feed.
type SentinelWaiter interface {
	WaitForSentinel(ctx context.Context, deadline time.Time) (*confirm.Result, error)
}

// Config carries the runner's wiring for one station.
type Config struct {
	StationID   string
	StationName string
	Endpoints   Endpoints
	IdentPath   string
	BundleDir   string
	Location    *time.Location

	ConcatTolerance time.Duration
	MinConfirmWait  time.Duration
}

// Runner executes roll jobs for one station.
type Runner struct {
	cfg    Config
	db     *gorm.DB
	store  *ledger.Store
	waiter SentinelWaiter
	audio  Bundler
	bus    eventbus.Bus
	client *http.Client
	logger zerolog.Logger
}

// NewRunner creates a roll runner. The HTTP client is traced so insertion
// calls show up in spans alongside the decision that caused them.
func NewRunner(cfg Config, db *gorm.DB, store *ledger.Store, waiter SentinelWaiter, audio Bundler, bus eventbus.Bus, logger zerolog.Logger) *Runner {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.BundleDir == "" {
		cfg.BundleDir = os.TempDir()
	}
	return &Runner{
		cfg:    cfg,
		db:     db,
		store:  store,
		waiter: waiter,
		audio:  audio,
		bus:    bus,
		client: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger.With().
			Str("component", "trigger").
			Str("station", cfg.StationName).
			Logger(),
	}
}

// Serve consumes roll jobs until ctx is cancelled. One job at a time: a
// scheduled roll's confirmation wait must finish before the next roll fires.
func (r *Runner) Serve(ctx context.Context, jobs <-chan Job) {
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			r.Run(ctx, job)
		}
	}
}

// Run executes one roll job. Returns true when the insertion endpoint
// accepted the roll, regardless of how confirmation later settles.
func (r *Runner) Run(ctx context.Context, job Job) bool {
	ctx, span := telemetry.StartSpan(ctx, "gjallar/trigger", "roll")
	defer span.End()
	telemetry.AddSpanAttributes(span, map[string]any{
		"roll.mode":       string(job.Mode),
		"roll.hour_start": job.HourStart,
		"station":         r.cfg.StationName,
	})

	now := time.Now().In(r.cfg.Location)
	rollID := uuid.NewString()
	logger := r.logger.With().Str("roll", rollID).Str("mode", string(job.Mode)).Logger()

	snap, err := catalog.Load(r.db, r.cfg.StationID)
	if err != nil {
		logger.Error().Err(err).Msg("catalog load failed, roll skipped")
		telemetry.RecordError(span, err)
		return false
	}

	sel := snap.Select(now, r.audio, logger)
	if sel.Empty() {
		logger.Info().Msg("no ads eligible this hour, nothing to insert")
		return false
	}

	concatResult := ""
	if job.Mode == ModeInstant && job.HourStart && r.cfg.IdentPath != "" {
		concatResult = r.bundleWithIdent(ctx, rollID, &sel, logger)
		if concatResult == "failed" {
			r.fail(rollID, sel.Names, "concat_failed", logger)
			return false
		}
	}

	status, err := r.callEndpoint(ctx, job.Mode)
	if err != nil {
		logger.Error().Err(err).Str("status", status).Msg("insertion endpoint call failed")
		telemetry.RecordError(span, err)
		telemetry.InsertionCallsTotal.WithLabelValues(r.cfg.StationName, string(job.Mode), "error").Inc()
		r.fail(rollID, sel.Names, "insert_failed", logger)
		return false
	}
	telemetry.InsertionCallsTotal.WithLabelValues(r.cfg.StationName, string(job.Mode), "ok").Inc()

	if err := r.store.RecordRollAttempt(rollID, sel.Names, concatResult, status); err != nil {
		logger.Error().Err(err).Msg("ledger write failed after trigger")
		telemetry.LedgerErrorsTotal.WithLabelValues(r.cfg.StationName).Inc()
		return false
	}

	logger.Info().
		Strs("ads", sel.Names).
		Dur("expected_duration", sel.ExpectedDuration).
		Msg("roll triggered")
	r.bus.Publish(events.EventRollTriggered, events.Payload{
		"roll_id":    rollID,
		"station_id": r.cfg.StationID,
		"mode":       string(job.Mode),
		"ad_names":   sel.Names,
	})

	r.settle(ctx, job.Mode, rollID, now, logger)
	return true
}

// bundleWithIdent concatenates the station ident ahead of the selected ads.
// Returns "ok", "drift", or "failed"; the bundle replaces the selection's
// file list on success.
func (r *Runner) bundleWithIdent(ctx context.Context, rollID string, sel *catalog.Selection, logger zerolog.Logger) string {
	if _, err := os.Stat(r.cfg.IdentPath); err != nil {
		logger.Warn().Str("ident", r.cfg.IdentPath).Msg("station ident missing, inserting ads without it")
		return ""
	}

	expected := sel.ExpectedDuration
	if identDur, err := r.audio.ProbeDuration(r.cfg.IdentPath); err == nil {
		expected += identDur
	}

	output := filepath.Join(r.cfg.BundleDir, "roll-"+rollID+".mp3")
	inputs := append([]string{r.cfg.IdentPath}, sel.Files...)
	if err := r.audio.Concat(ctx, output, inputs); err != nil {
		logger.Error().Err(err).Msg("roll bundling failed")
		return "failed"
	}

	result := "ok"
	if drift, err := r.audio.ValidateBundle(output, expected, r.cfg.ConcatTolerance); err != nil {
		logger.Warn().Err(err).Msg("bundle validation unreadable")
	} else if drift > r.cfg.ConcatTolerance {
		result = fmt.Sprintf("drift_%dms", drift.Milliseconds())
	}

	sel.Files = []string{output}
	return result
}

func (r *Runner) callEndpoint(ctx context.Context, mode Mode) (string, error) {
	url := r.cfg.Endpoints.ScheduledURL
	if mode == ModeInstant {
		url = r.cfg.Endpoints.InstantURL
	}
	if url == "" {
		return "", fmt.Errorf("no %s endpoint configured", mode)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build insertion request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("insertion call: %w", err)
	}
	defer resp.Body.Close()

	status := fmt.Sprintf("%d", resp.StatusCode)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return status, fmt.Errorf("insertion endpoint returned %s", resp.Status)
	}
	return status, nil
}

// settle resolves the pending attempt. Instant rolls interrupt playback
// synchronously, so they confirm immediately; scheduled rolls wait for the
// sentinel to appear in the feed.
func (r *Runner) settle(ctx context.Context, mode Mode, rollID string, triggeredAt time.Time, logger zerolog.Logger) {
	if mode == ModeInstant {
		if err := r.store.ConfirmRollPlayback(rollID, ledger.SentinelArtist, triggeredAt); err != nil {
			logger.Error().Err(err).Msg("ledger confirm failed")
			telemetry.LedgerErrorsTotal.WithLabelValues(r.cfg.StationName).Inc()
			return
		}
		telemetry.ConfirmationsTotal.WithLabelValues(r.cfg.StationName, "confirmed").Inc()
		r.bus.Publish(events.EventRollConfirmed, events.Payload{
			"roll_id":    rollID,
			"station_id": r.cfg.StationID,
			"same_hour":  true,
		})
		return
	}

	deadline := confirm.Timeout(triggeredAt, r.cfg.MinConfirmWait)
	res, err := r.waiter.WaitForSentinel(ctx, deadline)
	switch {
	case err == nil:
		telemetry.ConfirmationWaitSeconds.Observe(res.ObservedAt.Sub(triggeredAt).Seconds())
		if err := r.store.ConfirmRollPlayback(rollID, res.Artist, res.StartedAt); err != nil {
			logger.Error().Err(err).Msg("ledger confirm failed")
			telemetry.LedgerErrorsTotal.WithLabelValues(r.cfg.StationName).Inc()
			return
		}
		telemetry.ConfirmationsTotal.WithLabelValues(r.cfg.StationName, "confirmed").Inc()
		logger.Info().Time("started_at", res.StartedAt).Msg("roll confirmed")
		r.bus.Publish(events.EventRollConfirmed, events.Payload{
			"roll_id":    rollID,
			"station_id": r.cfg.StationID,
			"same_hour":  res.StartedAt.Hour() == triggeredAt.Hour(),
		})

	case errors.Is(err, confirm.ErrConfirmationTimeout):
		if err := r.store.MarkRollUnconfirmed(rollID, "confirm_timeout"); err != nil {
			logger.Error().Err(err).Msg("ledger unconfirm failed")
			telemetry.LedgerErrorsTotal.WithLabelValues(r.cfg.StationName).Inc()
			return
		}
		telemetry.ConfirmationsTotal.WithLabelValues(r.cfg.StationName, "unconfirmed").Inc()
		logger.Warn().Time("deadline", deadline).Msg("sentinel never appeared, roll unconfirmed")
		r.bus.Publish(events.EventRollUnconfirmed, events.Payload{
			"roll_id":    rollID,
			"station_id": r.cfg.StationID,
			"reason":     "confirm_timeout",
		})

	default:
		// Shutdown mid-wait. The attempt stays pending; operators resolve
		// it from the ledger.
		logger.Warn().Err(err).Msg("confirmation wait interrupted, attempt left pending")
	}
}

// fail records a roll that never went pending.
func (r *Runner) fail(rollID string, names []string, reason string, logger zerolog.Logger) {
	if err := r.store.RecordFailure(rollID, names, reason); err != nil {
		logger.Error().Err(err).Msg("ledger failure write failed")
		telemetry.LedgerErrorsTotal.WithLabelValues(r.cfg.StationName).Inc()
	}
	r.bus.Publish(events.EventRollFailed, events.Payload{
		"roll_id":    rollID,
		"station_id": r.cfg.StationID,
		"reason":     reason,
	})
}
