/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package ledger is the billing-grade play-event store. Roll attempts are
// audit records: they move pending -> confirmed|unconfirmed exactly once and
// are never deleted. Counters change only on the confirmed transition,
// atomically with the ledger move, under a single per-store writer lock.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"
)

// SentinelArtist is the literal the external player writes into the feed's
// artist field while a roll airs. The sole confirmation signal; matching is
// case-insensitive and exact.
const SentinelArtist = "adRoll"

// Status of a roll attempt.
type Status string

const (
	StatusPending     Status = "pending"
	StatusConfirmed   Status = "confirmed"
	StatusUnconfirmed Status = "unconfirmed"
)

var (
	// ErrNotPending is returned when a resolved attempt is resolved again to
	// a different state. Status transitions are monotonic.
	ErrNotPending = errors.New("roll attempt is not pending")

	// ErrUnknownAttempt is returned for ids the ledger has never seen.
	ErrUnknownAttempt = errors.New("unknown roll attempt")

	// ErrSentinelMismatch is returned when a confirmation carries an artist
	// that is not the sentinel marker.
	ErrSentinelMismatch = errors.New("artist is not the sentinel marker")
)

// Confirmation is the observed sentinel evidence for a confirmed roll.
type Confirmation struct {
	OK        bool   `json:"ok"`
	Artist    string `json:"artist"`
	StartedAt string `json:"started_at"`
	SameHour  bool   `json:"same_hour"`
}

// RollAttempt is one ledger row.
type RollAttempt struct {
	ID              string        `json:"id"`
	AdNames         []string      `json:"ad_names"`
	AttemptedAt     time.Time     `json:"attempted_at"`
	AttemptedHour   int           `json:"attempted_hour"`
	ConcatResult    string        `json:"concat_result,omitempty"`
	InsertionResult string        `json:"insertion_result,omitempty"`
	Reason          string        `json:"reason,omitempty"`
	Confirmation    *Confirmation `json:"confirmation,omitempty"`
	ConfirmedAt     *time.Time    `json:"confirmed_at,omitempty"`
	Status          Status        `json:"status"`
}

// Document is the on-disk ledger shape. It round-trips losslessly; missing
// top-level keys default to empty on load.
type Document struct {
	Pending     []RollAttempt             `json:"pending_events"`
	Confirmed   []RollAttempt             `json:"confirmed_events"`
	Unconfirmed []RollAttempt             `json:"unconfirmed_events"`
	Hourly      map[string]map[string]int `json:"hourly_confirmed"`
	Daily       map[string]map[string]int `json:"daily_confirmed"`
	Totals      map[string]int            `json:"confirmed_ad_totals"`
}

func (d *Document) normalize() {
	if d.Pending == nil {
		d.Pending = []RollAttempt{}
	}
	if d.Confirmed == nil {
		d.Confirmed = []RollAttempt{}
	}
	if d.Unconfirmed == nil {
		d.Unconfirmed = []RollAttempt{}
	}
	if d.Hourly == nil {
		d.Hourly = map[string]map[string]int{}
	}
	if d.Daily == nil {
		d.Daily = map[string]map[string]int{}
	}
	if d.Totals == nil {
		d.Totals = map[string]int{}
	}
}

// Store persists the ledger document for one station. All mutations are
// load-mutate-persist-whole under a single mutex; reads share the same lock
// so callers always see a consistent document.
type Store struct {
	path   string
	loc    *time.Location
	logger zerolog.Logger

	mu sync.Mutex

	// OnConfirmed, when set, receives the ad names and confirmation time of
	// every confirmed roll after the ledger has been persisted. Used for the
	// best-effort denormalized play-count update; never authoritative.
	OnConfirmed func(adNames []string, at time.Time)
}

// Open creates a store over the given ledger path. Hour and day stamps are
// evaluated in loc, the station's zone; billing counters must line up with
// the station's wall clock, not the server's.
func Open(path string, loc *time.Location, logger zerolog.Logger) *Store {
	if loc == nil {
		loc = time.UTC
	}
	return &Store{
		path:   path,
		loc:    loc,
		logger: logger.With().Str("component", "ledger").Logger(),
	}
}

// RecordRollAttempt appends a pending attempt.
func (s *Store) RecordRollAttempt(id string, adNames []string, concatResult, insertionResult string) error {
	now := time.Now().In(s.loc)

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.mutate(func(doc *Document) error {
		doc.Pending = append(doc.Pending, RollAttempt{
			ID:              id,
			AdNames:         append([]string(nil), adNames...),
			AttemptedAt:     now,
			AttemptedHour:   now.Hour(),
			ConcatResult:    concatResult,
			InsertionResult: insertionResult,
			Status:          StatusPending,
		})
		return nil
	})
}

// ConfirmRollPlayback validates the sentinel marker and moves the attempt
// pending -> confirmed, incrementing the hourly, daily, and total counters by
// one per ad name. Counters are credited to the attempt hour; a confirmation
// observed in a different wall-clock hour is accepted with same_hour=false.
// Confirming an already confirmed id is a no-op.
func (s *Store) ConfirmRollPlayback(id, artist string, startedAt time.Time) error {
	if !strings.EqualFold(artist, SentinelArtist) {
		return fmt.Errorf("%w: %q", ErrSentinelMismatch, artist)
	}

	var confirmedNames []string
	var confirmedAt time.Time

	s.mu.Lock()
	err := s.mutate(func(doc *Document) error {
		idx := findAttempt(doc.Pending, id)
		if idx < 0 {
			if findAttempt(doc.Confirmed, id) >= 0 {
				return nil // idempotent
			}
			if findAttempt(doc.Unconfirmed, id) >= 0 {
				return fmt.Errorf("confirm %s: %w", id, ErrNotPending)
			}
			return fmt.Errorf("confirm %s: %w", id, ErrUnknownAttempt)
		}

		attempt := doc.Pending[idx]
		now := time.Now().In(s.loc)
		startedLocal := startedAt.In(s.loc)
		sameHour := startedLocal.Hour() == attempt.AttemptedHour

		attempt.Status = StatusConfirmed
		attempt.ConfirmedAt = &now
		attempt.Confirmation = &Confirmation{
			OK:        true,
			Artist:    artist,
			StartedAt: startedLocal.Format("2006-01-02 15:04:05"),
			SameHour:  sameHour,
		}

		doc.Pending = append(doc.Pending[:idx], doc.Pending[idx+1:]...)
		doc.Confirmed = append(doc.Confirmed, attempt)

		hourKey := fmt.Sprintf("%s_%02d", attempt.AttemptedAt.Format("2006-01-02"), attempt.AttemptedHour)
		dayKey := attempt.AttemptedAt.Format("2006-01-02")
		for _, name := range attempt.AdNames {
			bump(doc.Hourly, hourKey, name)
			bump(doc.Daily, dayKey, name)
			doc.Totals[name]++
		}

		if !sameHour {
			s.logger.Warn().
				Str("attempt", id).
				Int("attempted_hour", attempt.AttemptedHour).
				Int("confirmed_hour", startedLocal.Hour()).
				Msg("confirmation crossed an hour boundary, credited to attempt hour")
		}

		confirmedNames = attempt.AdNames
		confirmedAt = now
		return nil
	})
	s.mu.Unlock()

	if err == nil && confirmedNames != nil && s.OnConfirmed != nil {
		s.OnConfirmed(confirmedNames, confirmedAt)
	}
	return err
}

// MarkRollUnconfirmed moves the attempt pending -> unconfirmed with a short
// reason code. Counters are never touched.
func (s *Store) MarkRollUnconfirmed(id, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.mutate(func(doc *Document) error {
		idx := findAttempt(doc.Pending, id)
		if idx < 0 {
			if findAttempt(doc.Unconfirmed, id) >= 0 {
				return nil // idempotent
			}
			if findAttempt(doc.Confirmed, id) >= 0 {
				return fmt.Errorf("unconfirm %s: %w", id, ErrNotPending)
			}
			return fmt.Errorf("unconfirm %s: %w", id, ErrUnknownAttempt)
		}

		attempt := doc.Pending[idx]
		attempt.Status = StatusUnconfirmed
		attempt.Reason = reason
		attempt.Confirmation = &Confirmation{OK: false}

		doc.Pending = append(doc.Pending[:idx], doc.Pending[idx+1:]...)
		doc.Unconfirmed = append(doc.Unconfirmed, attempt)
		return nil
	})
}

// RecordFailure stores a roll that failed before it could go pending
// (selection, bundling, or insertion failure) as an unconfirmed row with a
// reason code. Diagnostic only; counters are never touched.
func (s *Store) RecordFailure(id string, adNames []string, reason string) error {
	now := time.Now().In(s.loc)

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.mutate(func(doc *Document) error {
		doc.Unconfirmed = append(doc.Unconfirmed, RollAttempt{
			ID:            id,
			AdNames:       append([]string(nil), adNames...),
			AttemptedAt:   now,
			AttemptedHour: now.Hour(),
			Reason:        reason,
			Status:        StatusUnconfirmed,
			Confirmation:  &Confirmation{OK: false},
		})
		return nil
	})
}

// Snapshot returns a deep copy of the current document.
func (s *Store) Snapshot() (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("copy ledger: %w", err)
	}
	var out Document
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("copy ledger: %w", err)
	}
	out.normalize()
	return &out, nil
}

// Attempts returns ledger rows filtered by status; empty status means all.
func (s *Store) Attempts(status Status) ([]RollAttempt, error) {
	doc, err := s.Snapshot()
	if err != nil {
		return nil, err
	}

	switch status {
	case StatusPending:
		return doc.Pending, nil
	case StatusConfirmed:
		return doc.Confirmed, nil
	case StatusUnconfirmed:
		return doc.Unconfirmed, nil
	case "":
		all := make([]RollAttempt, 0, len(doc.Pending)+len(doc.Confirmed)+len(doc.Unconfirmed))
		all = append(all, doc.Pending...)
		all = append(all, doc.Confirmed...)
		all = append(all, doc.Unconfirmed...)
		return all, nil
	default:
		return nil, fmt.Errorf("unknown status %q", status)
	}
}

// mutate loads the document, applies fn, and persists the whole document
// atomically. Callers must hold the store mutex.
func (s *Store) mutate(fn func(*Document) error) error {
	doc, err := s.load()
	if err != nil {
		return err
	}
	if err := fn(doc); err != nil {
		return err
	}
	return s.persist(doc)
}

func (s *Store) load() (*Document, error) {
	var doc Document

	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// First run: empty ledger.
	case err != nil:
		return nil, fmt.Errorf("read ledger %s: %w", s.path, err)
	default:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse ledger %s: %w", s.path, err)
		}
	}

	doc.normalize()
	return &doc, nil
}

func (s *Store) persist(doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}

	if err := renameio.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("persist ledger %s: %w", s.path, err)
	}
	return nil
}

func findAttempt(attempts []RollAttempt, id string) int {
	for i := range attempts {
		if attempts[i].ID == id {
			return i
		}
	}
	return -1
}

func bump(m map[string]map[string]int, key, name string) {
	if m[key] == nil {
		m[key] = map[string]int{}
	}
	m[key][name]++
}
