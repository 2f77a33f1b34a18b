/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"time"

	"github.com/google/uuid"
)

// Station is one managed broadcast station. Each enabled station gets its own
// scheduler, roll runner, and ledger; instances never share mutable state.
type Station struct {
	ID          string `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string `gorm:"uniqueIndex" json:"name"`
	Description string `gorm:"type:text" json:"description,omitempty"`
	Timezone    string `gorm:"type:varchar(64)" json:"timezone"`
	Enabled     bool   `gorm:"not null;default:true" json:"enabled"`

	// Now-playing feed written by the third-party player.
	FeedPath string `gorm:"type:text;not null" json:"feed_path"`

	// Insertion endpoints of the external player; auth token is embedded in
	// the URL by the operator.
	ScheduledURL string `gorm:"type:text;not null" json:"scheduled_url"`
	InstantURL   string `gorm:"type:text;not null" json:"instant_url"`

	// Optional station-identity clip prepended to instant hour-start rolls.
	IdentPath string `gorm:"type:text" json:"ident_path,omitempty"`

	// Play-confirmation ledger document for this station.
	LedgerPath string `gorm:"type:text;not null" json:"ledger_path"`

	// Lecture classifier lists evaluated against the next track's artist.
	LectureBlacklist []string `gorm:"serializer:json" json:"lecture_blacklist,omitempty"`
	LectureWhitelist []string `gorm:"serializer:json" json:"lecture_whitelist,omitempty"`

	Ads []Ad `gorm:"foreignKey:StationID" json:"ads,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (Station) TableName() string {
	return "stations"
}

// NewStation creates a station with defaults applied.
func NewStation(name string) *Station {
	return &Station{
		ID:       uuid.NewString(),
		Name:     name,
		Timezone: "UTC",
		Enabled:  true,
	}
}

// Location resolves the station timezone, falling back to UTC.
func (s *Station) Location() *time.Location {
	if s.Timezone != "" {
		if loc, err := time.LoadLocation(s.Timezone); err == nil {
			return loc
		}
	}
	return time.UTC
}
