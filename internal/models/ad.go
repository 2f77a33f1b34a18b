/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"time"

	"github.com/google/uuid"
)

// LegacyTime is the legacy hour-object schedule shape. Older catalogs carry a
// list of these instead of the integer hour set; Hours wins whenever both are
// present.
type LegacyTime struct {
	Hour int `json:"hour"`
}

// Ad is one advertisement in the station catalog.
//
// Days and Hours form the modern schedule spec: Days holds allowed weekdays
// (0=Sunday..6=Saturday), Hours the allowed wall-clock hours. An empty set
// means unrestricted. Times is the legacy fallback consulted only when Hours
// is empty. Both shapes are normalized into a single air window at snapshot
// load time, never re-branched during selection.
type Ad struct {
	ID        string `gorm:"type:uuid;primaryKey" json:"id"`
	StationID string `gorm:"type:uuid;index;not null" json:"station_id"`
	Name      string `gorm:"type:varchar(255);not null;index" json:"name"`
	Enabled   bool   `gorm:"not null;default:true" json:"enabled"`
	MediaPath string `gorm:"type:text;not null" json:"media_path"`

	Days  []int        `gorm:"serializer:json" json:"days,omitempty"`
	Hours []int        `gorm:"serializer:json" json:"hours,omitempty"`
	Times []LegacyTime `gorm:"serializer:json" json:"times,omitempty"`

	// Denormalized display fields, updated best-effort on confirmation.
	// Reports must derive from the ledger counters, not from these.
	PlayCount    int        `json:"play_count"`
	LastPlayedAt *time.Time `json:"last_played_at,omitempty"`

	Station *Station `gorm:"foreignKey:StationID" json:"station,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (Ad) TableName() string {
	return "ads"
}

// NewAd creates an enabled ad for a station.
func NewAd(stationID, name, mediaPath string) *Ad {
	return &Ad{
		ID:        uuid.NewString(),
		StationID: stationID,
		Name:      name,
		Enabled:   true,
		MediaPath: mediaPath,
	}
}
