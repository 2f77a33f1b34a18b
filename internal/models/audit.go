/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditKind enumerates auditable engine actions.
type AuditKind string

const (
	AuditRollTriggered   AuditKind = "roll.triggered"
	AuditRollConfirmed   AuditKind = "roll.confirmed"
	AuditRollUnconfirmed AuditKind = "roll.unconfirmed"
	AuditRollFailed      AuditKind = "roll.failed"
	AuditManualRoll      AuditKind = "roll.manual"
)

// AuditEntry is one immutable audit trail row.
type AuditEntry struct {
	ID        string         `gorm:"type:uuid;primaryKey" json:"id"`
	StationID string         `gorm:"type:uuid;index" json:"station_id"`
	Kind      AuditKind      `gorm:"type:varchar(64);index" json:"kind"`
	Details   map[string]any `gorm:"type:jsonb;serializer:json" json:"details,omitempty"`
	CreatedAt time.Time      `gorm:"index" json:"created_at"`
}

// TableName returns the table name for GORM.
func (AuditEntry) TableName() string {
	return "audit_entries"
}

// NewAuditEntry creates an audit row.
func NewAuditEntry(stationID string, kind AuditKind, details map[string]any) *AuditEntry {
	return &AuditEntry{
		ID:        uuid.NewString(),
		StationID: stationID,
		Kind:      kind,
		Details:   details,
	}
}
