/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package audit persists the roll lifecycle as immutable database rows by
// subscribing to the event bus. The ledger stays the billing source; the
// audit trail is for operators asking what happened and when.
package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/gjallar/internal/eventbus"
	"github.com/friendsincode/gjallar/internal/events"
	"github.com/friendsincode/gjallar/internal/models"
)

// Service subscribes to roll events and stores audit entries.
type Service struct {
	db     *gorm.DB
	bus    eventbus.Bus
	logger zerolog.Logger
}

// NewService creates an audit service.
func NewService(db *gorm.DB, bus eventbus.Bus, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		bus:    bus,
		logger: logger.With().Str("component", "audit").Logger(),
	}
}

// Start subscribes to roll lifecycle events and logs them until ctx ends.
func (s *Service) Start(ctx context.Context) {
	triggered := s.bus.Subscribe(events.EventRollTriggered)
	confirmed := s.bus.Subscribe(events.EventRollConfirmed)
	unconfirmed := s.bus.Subscribe(events.EventRollUnconfirmed)
	failed := s.bus.Subscribe(events.EventRollFailed)
	manual := s.bus.Subscribe(events.EventManualRoll)

	defer func() {
		s.bus.Unsubscribe(events.EventRollTriggered, triggered)
		s.bus.Unsubscribe(events.EventRollConfirmed, confirmed)
		s.bus.Unsubscribe(events.EventRollUnconfirmed, unconfirmed)
		s.bus.Unsubscribe(events.EventRollFailed, failed)
		s.bus.Unsubscribe(events.EventManualRoll, manual)
	}()

	s.logger.Info().Msg("audit service started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("audit service stopping")
			return

		case payload := <-triggered:
			s.logEntry(ctx, models.AuditRollTriggered, payload)

		case payload := <-confirmed:
			s.logEntry(ctx, models.AuditRollConfirmed, payload)

		case payload := <-unconfirmed:
			s.logEntry(ctx, models.AuditRollUnconfirmed, payload)

		case payload := <-failed:
			s.logEntry(ctx, models.AuditRollFailed, payload)

		case payload := <-manual:
			s.logEntry(ctx, models.AuditManualRoll, payload)
		}
	}
}

func (s *Service) logEntry(ctx context.Context, kind models.AuditKind, payload events.Payload) {
	stationID, _ := payload["station_id"].(string)

	details := make(map[string]any, len(payload))
	for k, v := range payload {
		if k == "station_id" {
			continue
		}
		details[k] = v
	}

	entry := models.NewAuditEntry(stationID, kind, details)
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		s.logger.Error().Err(err).Str("kind", string(kind)).Msg("failed to log audit entry")
	}
}

// QueryFilters narrows an audit query.
type QueryFilters struct {
	StationID *string
	Kind      *models.AuditKind
	Since     *time.Time
	Until     *time.Time
	Limit     int
	Offset    int
}

// Query retrieves audit entries, most recent first.
func (s *Service) Query(ctx context.Context, filters QueryFilters) ([]models.AuditEntry, int64, error) {
	var entries []models.AuditEntry
	var total int64

	query := s.db.WithContext(ctx).Model(&models.AuditEntry{})
	if filters.StationID != nil {
		query = query.Where("station_id = ?", *filters.StationID)
	}
	if filters.Kind != nil {
		query = query.Where("kind = ?", *filters.Kind)
	}
	if filters.Since != nil {
		query = query.Where("created_at >= ?", *filters.Since)
	}
	if filters.Until != nil {
		query = query.Where("created_at <= ?", *filters.Until)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 100
	}
	query = query.Limit(limit)
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	if err := query.Order("created_at DESC").Find(&entries).Error; err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}
