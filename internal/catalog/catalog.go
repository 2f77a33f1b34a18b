/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package catalog loads the ad catalog and applies the selection policy.
// Every decision pass loads a fresh snapshot; the catalog can change between
// polls and must never be cached across passes.
package catalog

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/gjallar/internal/models"
)

// DurationProber probes media durations best-effort during selection.
type DurationProber interface {
	ProbeDuration(path string) (time.Duration, error)
}

// Window is the normalized air window of one ad. The modern hour set and the
// legacy hour-object list are collapsed into this shape once, at load time.
type Window struct {
	days  map[time.Weekday]struct{}
	hours map[int]struct{}
}

// NewWindow normalizes the two schedule shapes. The modern hour set always
// wins; the legacy list is consulted only when the modern set is empty. Empty
// sets mean unrestricted.
func NewWindow(days, hours []int, legacy []models.LegacyTime) Window {
	w := Window{}

	if len(days) > 0 {
		w.days = make(map[time.Weekday]struct{}, len(days))
		for _, d := range days {
			if d >= 0 && d <= 6 {
				w.days[time.Weekday(d)] = struct{}{}
			}
		}
	}

	effective := hours
	if len(effective) == 0 {
		for _, lt := range legacy {
			effective = append(effective, lt.Hour)
		}
	}
	if len(effective) > 0 {
		w.hours = make(map[int]struct{}, len(effective))
		for _, h := range effective {
			if h >= 0 && h <= 23 {
				w.hours[h] = struct{}{}
			}
		}
	}

	return w
}

// Allows reports whether the window admits the given instant.
func (w Window) Allows(now time.Time) bool {
	if w.days != nil {
		if _, ok := w.days[now.Weekday()]; !ok {
			return false
		}
	}
	if w.hours != nil {
		if _, ok := w.hours[now.Hour()]; !ok {
			return false
		}
	}
	return true
}

// Item is one selectable catalog entry.
type Item struct {
	Name      string
	MediaPath string
	Window    Window
}

// Snapshot is a point-in-time view of a station's enabled ads.
type Snapshot struct {
	items []Item
}

// Load reads the enabled ads of a station and normalizes their schedules.
func Load(db *gorm.DB, stationID string) (*Snapshot, error) {
	var ads []models.Ad
	err := db.
		Where("station_id = ?", stationID).
		Where("enabled = ?", true).
		Order("name ASC").
		Find(&ads).Error
	if err != nil {
		return nil, fmt.Errorf("load ad catalog: %w", err)
	}

	snap := &Snapshot{items: make([]Item, 0, len(ads))}
	for _, ad := range ads {
		snap.items = append(snap.items, Item{
			Name:      ad.Name,
			MediaPath: ad.MediaPath,
			Window:    NewWindow(ad.Days, ad.Hours, ad.Times),
		})
	}
	return snap, nil
}

// Items exposes the snapshot entries.
func (s *Snapshot) Items() []Item {
	return s.items
}

// Selection is the batch of ads eligible right now. Empty means nothing to
// play, which is not an error.
type Selection struct {
	Files            []string
	Names            []string
	ExpectedDuration time.Duration
}

// Empty reports whether the selection holds no ads.
func (s Selection) Empty() bool {
	return len(s.Names) == 0
}

// Select filters the snapshot down to the ads eligible at now. A duration
// probe failure contributes zero to the expected duration but does not
// exclude the ad.
func (s *Snapshot) Select(now time.Time, probe DurationProber, logger zerolog.Logger) Selection {
	var sel Selection

	for _, item := range s.items {
		if !item.Window.Allows(now) {
			continue
		}
		if _, err := os.Stat(item.MediaPath); err != nil {
			logger.Warn().Str("ad", item.Name).Str("media", item.MediaPath).Msg("ad media missing, skipped")
			continue
		}

		if probe != nil {
			dur, err := probe.ProbeDuration(item.MediaPath)
			if err != nil {
				logger.Warn().Err(err).Str("ad", item.Name).Msg("duration probe failed, counting zero")
			} else {
				sel.ExpectedDuration += dur
			}
		}

		sel.Files = append(sel.Files, item.MediaPath)
		sel.Names = append(sel.Names, item.Name)
	}

	return sel
}
