/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/gjallar/internal/eventbus"
	"github.com/friendsincode/gjallar/internal/events"
	"github.com/friendsincode/gjallar/internal/feed"
	"github.com/friendsincode/gjallar/internal/telemetry"
	"github.com/friendsincode/gjallar/internal/trigger"
)

// Event is what woke the decision pass.
type Event string

const (
	// EventHourTick fires when the wall-clock hour changes.
	EventHourTick Event = "hour_tick"

	// EventTrackChange fires when the current track changes while waiting.
	EventTrackChange Event = "track_change"
)

type phase string

const (
	phaseIdle    phase = "idle"
	phaseWaiting phase = "waiting"
)

// State is the per-station scheduler state. One instance per station, owned
// by a single loop; never shared.
type State struct {
	phase phase

	// hourStart marks that the active evaluation cycle began at an hour
	// boundary. Sticky through waiting; cleared together with the phase at
	// every terminal action.
	hourStart bool

	lastCheckedHour int
	lastIdentity    string
	lastFeedMod     time.Time
}

// Phase exposes the current phase for status reporting.
func (s *State) Phase() string { return string(s.phase) }

// HourStart exposes the sticky hour-start flag for status reporting.
func (s *State) HourStart() bool { return s.hourStart }

// transition is one row of the scheduler's transition table.
type transition struct {
	next    phase
	trigger bool // hand a job to the runner
	clear   bool // clear the sticky hour-start flag
}

// transitions maps every decision action to its state effect. The table is
// the whole state machine: a pass looks up its row and applies it, nothing
// else mutates the phase.
var transitions = map[Action]transition{
	ActionInstant:   {next: phaseIdle, trigger: true, clear: true},
	ActionScheduled: {next: phaseIdle, trigger: true, clear: true},
	ActionAbort:     {next: phaseIdle, clear: true},
	ActionWait:      {next: phaseWaiting},
	ActionSkip:      {}, // phase preserved, handled specially
}

// Config is the per-station scheduler policy.
type Config struct {
	StationName string
	Blacklist   []string
	Whitelist   []string
	Location    *time.Location

	SafetyMargin      time.Duration
	TrackPollInterval time.Duration
}

// Scheduler runs the decision loop for one station and hands committed rolls
// to the trigger runner over the job channel. It never executes a roll
// itself.
type Scheduler struct {
	cfg    Config
	feed   *feed.Reader
	jobs   chan<- trigger.Job
	bus    eventbus.Bus
	logger zerolog.Logger

	mu    sync.Mutex
	state State
	now   func() time.Time
}

// New creates a station scheduler.
func New(cfg Config, reader *feed.Reader, jobs chan<- trigger.Job, bus eventbus.Bus, logger zerolog.Logger) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.TrackPollInterval <= 0 {
		cfg.TrackPollInterval = 5 * time.Second
	}
	return &Scheduler{
		cfg:  cfg,
		feed: reader,
		jobs: jobs,
		bus:  bus,
		logger: logger.With().
			Str("component", "scheduler").
			Str("station", cfg.StationName).
			Logger(),
		state: State{phase: phaseIdle, lastCheckedHour: -1},
		now:   time.Now,
	}
}

// StateSnapshot returns a copy of the scheduler state for status reporting.
func (s *Scheduler) StateSnapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Run executes the poll-sleep loop until ctx is cancelled. The first
// iteration only arms the hour tracking; rolls start firing at the next
// boundary, so a process restart mid-hour does not double-insert.
func (s *Scheduler) Run(ctx context.Context) {
	s.mu.Lock()
	s.state.lastCheckedHour = s.now().In(s.cfg.Location).Hour()
	startHour := s.state.lastCheckedHour
	s.mu.Unlock()
	s.logger.Info().Int("hour", startHour).Msg("scheduler started")

	for {
		sleep := s.step()
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("scheduler stopped")
			return
		case <-time.After(sleep):
		}
	}
}

// step runs at most one decision pass and returns how long to sleep. Hour
// boundary and track change are serialized on this single loop; no two
// passes overlap for one station.
func (s *Scheduler) step() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().In(s.cfg.Location)

	switch {
	case now.Hour() != s.state.lastCheckedHour:
		s.state.lastCheckedHour = now.Hour()
		s.state.hourStart = true
		telemetry.SchedulerWakeupsTotal.WithLabelValues(string(EventHourTick)).Inc()
		s.evaluate(EventHourTick, now)

	case s.state.phase == phaseWaiting && s.trackChanged():
		telemetry.SchedulerWakeupsTotal.WithLabelValues(string(EventTrackChange)).Inc()
		s.evaluate(EventTrackChange, now)

	default:
		telemetry.SchedulerWakeupsTotal.WithLabelValues("poll").Inc()
	}

	return s.sleepFor(s.now().In(s.cfg.Location))
}

// evaluate runs one decision pass and applies its transition.
func (s *Scheduler) evaluate(event Event, now time.Time) {
	telemetry.DecisionPassesTotal.WithLabelValues(s.cfg.StationName).Inc()

	current, cerr := s.feed.CurrentTrack()
	next, nerr := s.feed.NextTrack()
	feedErr := cerr
	if feedErr == nil {
		feedErr = nerr
	}

	decision := Decide(Inputs{
		Now:          now,
		Current:      current,
		Next:         next,
		FeedErr:      feedErr,
		Blacklist:    s.cfg.Blacklist,
		Whitelist:    s.cfg.Whitelist,
		SafetyMargin: s.cfg.SafetyMargin,
		Location:     s.cfg.Location,
	})

	telemetry.DecisionsTotal.WithLabelValues(s.cfg.StationName, string(decision.Action)).Inc()
	s.logger.Info().
		Str("event", string(event)).
		Str("action", string(decision.Action)).
		Str("reason", decision.Reason).
		Bool("hour_start", s.state.hourStart).
		Msg("decision pass")
	s.bus.Publish(events.EventDecision, events.Payload{
		"station": s.cfg.StationName,
		"event":   string(event),
		"action":  string(decision.Action),
		"reason":  decision.Reason,
	})

	if decision.Action == ActionSkip {
		// Transient feed trouble. Phase and flags survive so the waiting
		// cycle resumes once the feed is back.
		return
	}

	tr := transitions[decision.Action]
	if tr.trigger {
		s.dispatch(decision.Action)
	}

	s.state.phase = tr.next
	if tr.clear {
		s.state.hourStart = false
	}
	if s.state.phase == phaseWaiting {
		// Arm track-change detection against the track we just examined.
		s.rememberTrack()
	}
}

// dispatch hands the roll to the runner without blocking the loop. A full
// channel means the previous roll is still settling; this hour's roll is
// dropped rather than queued stale.
func (s *Scheduler) dispatch(action Action) {
	mode := trigger.ModeScheduled
	if action == ActionInstant {
		mode = trigger.ModeInstant
	}
	job := trigger.Job{Mode: mode, HourStart: s.state.hourStart}

	select {
	case s.jobs <- job:
	default:
		s.logger.Warn().
			Str("mode", string(mode)).
			Msg("previous roll still in flight, dropping this trigger")
	}
}

// trackChanged compares track identity and feed modification time against
// the armed values. Feed errors read as no change; the next poll retries.
func (s *Scheduler) trackChanged() bool {
	current, err := s.feed.CurrentTrack()
	if err != nil {
		return false
	}
	modTime, err := s.feed.FileModifiedTime()
	if err != nil {
		return false
	}

	if current.Identity() == s.state.lastIdentity && modTime.Equal(s.state.lastFeedMod) {
		return false
	}
	s.state.lastIdentity = current.Identity()
	s.state.lastFeedMod = modTime
	return true
}

func (s *Scheduler) rememberTrack() {
	if current, err := s.feed.CurrentTrack(); err == nil {
		s.state.lastIdentity = current.Identity()
	}
	if modTime, err := s.feed.FileModifiedTime(); err == nil {
		s.state.lastFeedMod = modTime
	}
}

// sleepFor computes the next sleep: time to the hour boundary plus a small
// buffer, bounded by the track poll while waiting and a one minute cap,
// floored at one second against busy-looping.
func (s *Scheduler) sleepFor(now time.Time) time.Duration {
	d := hourEnd(now).Sub(now) + 2*time.Second
	if s.state.phase == phaseWaiting && s.cfg.TrackPollInterval < d {
		d = s.cfg.TrackPollInterval
	}
	if d > time.Minute {
		d = time.Minute
	}
	if d < time.Second {
		d = time.Second
	}
	return d
}
