/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package station owns the per-station worker sets. Every enabled station
// gets its own feed reader, ledger store, scheduler, and roll runner;
// instances share nothing mutable with each other.
package station

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/gjallar/internal/audio"
	"github.com/friendsincode/gjallar/internal/config"
	"github.com/friendsincode/gjallar/internal/confirm"
	"github.com/friendsincode/gjallar/internal/eventbus"
	"github.com/friendsincode/gjallar/internal/events"
	"github.com/friendsincode/gjallar/internal/feed"
	"github.com/friendsincode/gjallar/internal/ledger"
	"github.com/friendsincode/gjallar/internal/models"
	"github.com/friendsincode/gjallar/internal/scheduler"
	"github.com/friendsincode/gjallar/internal/trigger"
)

// Instance is one station's running worker set.
type Instance struct {
	Station   models.Station
	Store     *ledger.Store
	Runner    *trigger.Runner
	Scheduler *scheduler.Scheduler

	jobs   chan trigger.Job
	cancel context.CancelFunc
}

// Manager starts and stops station instances.
type Manager struct {
	db     *gorm.DB
	cfg    *config.Config
	bus    eventbus.Bus
	audio  *audio.Tool
	logger zerolog.Logger

	mu        sync.RWMutex
	instances map[string]*Instance
	wg        sync.WaitGroup
}

// NewManager creates a station manager.
func NewManager(db *gorm.DB, cfg *config.Config, bus eventbus.Bus, logger zerolog.Logger) *Manager {
	return &Manager{
		db:        db,
		cfg:       cfg,
		bus:       bus,
		audio:     audio.NewTool(cfg.FFmpegBin, cfg.FFprobeBin, logger),
		logger:    logger.With().Str("component", "station").Logger(),
		instances: make(map[string]*Instance),
	}
}

// Start loads every enabled station and spins up its workers.
func (m *Manager) Start(ctx context.Context) error {
	var stations []models.Station
	if err := m.db.Where("enabled = ?", true).Find(&stations).Error; err != nil {
		return fmt.Errorf("load stations: %w", err)
	}

	for _, st := range stations {
		m.startStation(ctx, st)
	}

	m.logger.Info().Int("stations", len(stations)).Msg("station manager started")
	return nil
}

func (m *Manager) startStation(ctx context.Context, st models.Station) {
	loc := st.Location()
	stationCtx, cancel := context.WithCancel(ctx)

	reader := feed.NewReader(st.FeedPath, m.cfg.FeedCacheTTL)
	store := ledger.Open(st.LedgerPath, loc, m.logger)
	store.OnConfirmed = m.playCountUpdater(st.ID)

	poller := confirm.NewPoller(reader, m.cfg.ConfirmPollInterval, loc, m.logger)
	runner := trigger.NewRunner(trigger.Config{
		StationID:   st.ID,
		StationName: st.Name,
		Endpoints: trigger.Endpoints{
			ScheduledURL: st.ScheduledURL,
			InstantURL:   st.InstantURL,
		},
		IdentPath:       st.IdentPath,
		Location:        loc,
		ConcatTolerance: m.cfg.ConcatTolerance,
		MinConfirmWait:  m.cfg.MinConfirmWait,
	}, m.db, store, poller, m.audio, m.bus, m.logger)

	jobs := make(chan trigger.Job, 1)
	sched := scheduler.New(scheduler.Config{
		StationName:       st.Name,
		Blacklist:         st.LectureBlacklist,
		Whitelist:         st.LectureWhitelist,
		Location:          loc,
		SafetyMargin:      m.cfg.SafetyMargin,
		TrackPollInterval: m.cfg.TrackPollInterval,
	}, reader, jobs, m.bus, m.logger)

	inst := &Instance{
		Station:   st,
		Store:     store,
		Runner:    runner,
		Scheduler: sched,
		jobs:      jobs,
		cancel:    cancel,
	}

	m.mu.Lock()
	m.instances[st.ID] = inst
	m.mu.Unlock()

	m.wg.Add(2)
	go func() {
		defer m.wg.Done()
		runner.Serve(stationCtx, jobs)
	}()
	go func() {
		defer m.wg.Done()
		sched.Run(stationCtx)
	}()

	m.logger.Info().Str("station", st.Name).Msg("station workers started")
}

// playCountUpdater builds the best-effort denormalized play-count update
// fired on every confirmed roll. Never authoritative; the ledger counters
// are the billing source.
func (m *Manager) playCountUpdater(stationID string) func([]string, time.Time) {
	return func(adNames []string, at time.Time) {
		err := m.db.Model(&models.Ad{}).
			Where("station_id = ?", stationID).
			Where("name IN ?", adNames).
			Updates(map[string]any{
				"play_count":     gorm.Expr("play_count + 1"),
				"last_played_at": at,
			}).Error
		if err != nil {
			m.logger.Warn().Err(err).Strs("ads", adNames).Msg("play count update failed")
		}
	}
}

// TriggerManual queues an operator-requested instant roll for a station.
// Returns an error when the station is unknown or its runner is busy.
func (m *Manager) TriggerManual(stationID, requestedBy string) error {
	inst, ok := m.Instance(stationID)
	if !ok {
		return fmt.Errorf("unknown station %s", stationID)
	}

	select {
	case inst.jobs <- trigger.Job{Mode: trigger.ModeInstant}:
	default:
		return fmt.Errorf("station %s has a roll in flight", inst.Station.Name)
	}

	m.bus.Publish(events.EventManualRoll, events.Payload{
		"station_id":   stationID,
		"requested_by": requestedBy,
	})
	return nil
}

// Instance returns the running instance for a station id.
func (m *Manager) Instance(stationID string) (*Instance, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.instances[stationID]
	return inst, ok
}

// Instances returns all running instances.
func (m *Manager) Instances() []*Instance {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Instance, 0, len(m.instances))
	for _, inst := range m.instances {
		out = append(out, inst)
	}
	return out
}

// Stop cancels every station's workers and waits for them to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	for _, inst := range m.instances {
		inst.cancel()
	}
	m.mu.Unlock()

	m.wg.Wait()
	m.logger.Info().Msg("station manager stopped")
}
