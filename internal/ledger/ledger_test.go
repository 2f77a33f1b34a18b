/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return Open(filepath.Join(t.TempDir(), "ledger.json"), time.Local, zerolog.Nop())
}

func TestConfirmMovesAndCounts(t *testing.T) {
	s := newTestStore(t)

	if err := s.RecordRollAttempt("roll-1", []string{"spot-a", "spot-b"}, "ok", "200"); err != nil {
		t.Fatalf("record: %v", err)
	}

	now := time.Now()
	if err := s.ConfirmRollPlayback("roll-1", "adRoll", now); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	doc, err := s.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(doc.Pending) != 0 || len(doc.Confirmed) != 1 {
		t.Fatalf("pending=%d confirmed=%d, want 0/1", len(doc.Pending), len(doc.Confirmed))
	}

	attempt := doc.Confirmed[0]
	if attempt.Status != StatusConfirmed {
		t.Fatalf("status = %q", attempt.Status)
	}
	if attempt.Confirmation == nil || !attempt.Confirmation.OK || !attempt.Confirmation.SameHour {
		t.Fatalf("confirmation = %+v", attempt.Confirmation)
	}

	// One increment per ad name, not per roll.
	hourKey := fmt.Sprintf("%s_%02d", attempt.AttemptedAt.Format("2006-01-02"), attempt.AttemptedHour)
	dayKey := attempt.AttemptedAt.Format("2006-01-02")
	for _, name := range []string{"spot-a", "spot-b"} {
		if doc.Hourly[hourKey][name] != 1 {
			t.Errorf("hourly[%s][%s] = %d, want 1", hourKey, name, doc.Hourly[hourKey][name])
		}
		if doc.Daily[dayKey][name] != 1 {
			t.Errorf("daily[%s][%s] = %d, want 1", dayKey, name, doc.Daily[dayKey][name])
		}
		if doc.Totals[name] != 1 {
			t.Errorf("totals[%s] = %d, want 1", name, doc.Totals[name])
		}
	}
}

func TestConfirmIsIdempotent(t *testing.T) {
	s := newTestStore(t)

	if err := s.RecordRollAttempt("roll-1", []string{"spot-a"}, "", "200"); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := s.ConfirmRollPlayback("roll-1", "adRoll", time.Now()); err != nil {
		t.Fatalf("first confirm: %v", err)
	}
	if err := s.ConfirmRollPlayback("roll-1", "adRoll", time.Now()); err != nil {
		t.Fatalf("second confirm must be a no-op, got: %v", err)
	}

	doc, _ := s.Snapshot()
	if doc.Totals["spot-a"] != 1 {
		t.Fatalf("totals = %d, want 1 (no double counting)", doc.Totals["spot-a"])
	}
}

func TestSentinelMatchIsCaseInsensitiveExact(t *testing.T) {
	for _, artist := range []string{"ADROLL", "AdRoll", "adroll"} {
		s := newTestStore(t)
		if err := s.RecordRollAttempt("roll-1", []string{"spot-a"}, "", "200"); err != nil {
			t.Fatalf("record: %v", err)
		}
		if err := s.ConfirmRollPlayback("roll-1", artist, time.Now()); err != nil {
			t.Errorf("artist %q must confirm, got: %v", artist, err)
		}
	}

	s := newTestStore(t)
	if err := s.RecordRollAttempt("roll-1", []string{"spot-a"}, "", "200"); err != nil {
		t.Fatalf("record: %v", err)
	}
	err := s.ConfirmRollPlayback("roll-1", "ad roll", time.Now())
	if !errors.Is(err, ErrSentinelMismatch) {
		t.Fatalf("artist with space: err = %v, want ErrSentinelMismatch", err)
	}
}

func TestUnconfirmedNeverTouchesCounters(t *testing.T) {
	s := newTestStore(t)

	if err := s.RecordRollAttempt("roll-1", []string{"spot-a"}, "", "200"); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := s.MarkRollUnconfirmed("roll-1", "confirm_timeout"); err != nil {
		t.Fatalf("unconfirm: %v", err)
	}

	doc, _ := s.Snapshot()
	if len(doc.Unconfirmed) != 1 || doc.Unconfirmed[0].Reason != "confirm_timeout" {
		t.Fatalf("unconfirmed = %+v", doc.Unconfirmed)
	}
	if len(doc.Totals) != 0 || len(doc.Hourly) != 0 || len(doc.Daily) != 0 {
		t.Fatal("counters must stay empty for unconfirmed rolls")
	}

	// Monotonic: a resolved attempt cannot be confirmed afterwards.
	if err := s.ConfirmRollPlayback("roll-1", "adRoll", time.Now()); !errors.Is(err, ErrNotPending) {
		t.Fatalf("confirm after unconfirm: err = %v, want ErrNotPending", err)
	}
}

func TestCrossHourConfirmationCreditedToAttemptHour(t *testing.T) {
	s := newTestStore(t)

	if err := s.RecordRollAttempt("roll-1", []string{"spot-a"}, "", "200"); err != nil {
		t.Fatalf("record: %v", err)
	}

	// A started_at in a different wall-clock hour than the attempt.
	startedAt := time.Now().Add(2 * time.Hour)
	if err := s.ConfirmRollPlayback("roll-1", "adRoll", startedAt); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	doc, _ := s.Snapshot()
	attempt := doc.Confirmed[0]
	if attempt.Confirmation.SameHour {
		t.Fatal("same_hour must be false for cross-hour confirmation")
	}

	// Credited to the attempt hour, not the confirmation hour.
	hourKey := fmt.Sprintf("%s_%02d", attempt.AttemptedAt.Format("2006-01-02"), attempt.AttemptedHour)
	if doc.Hourly[hourKey]["spot-a"] != 1 {
		t.Fatalf("hourly[%s] = %v, want credit in attempt hour", hourKey, doc.Hourly[hourKey])
	}
}

func TestHourStampsUseStationZone(t *testing.T) {
	// A half-hour-offset station zone on a server running in another zone.
	// Attempt hour, the same_hour comparison, and the counter keys must all
	// come from the station's wall clock.
	loc := time.FixedZone("UTC+0530", 5*3600+1800)
	s := Open(filepath.Join(t.TempDir(), "ledger.json"), loc, zerolog.Nop())

	if err := s.RecordRollAttempt("roll-1", []string{"spot-a"}, "", "200"); err != nil {
		t.Fatalf("record: %v", err)
	}

	// The same instant the roll was attempted, expressed in UTC as a feed
	// parse would produce on a UTC server.
	if err := s.ConfirmRollPlayback("roll-1", "adRoll", time.Now().UTC()); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	doc, _ := s.Snapshot()
	attempt := doc.Confirmed[0]

	wantHour := time.Now().In(loc).Hour()
	if attempt.AttemptedHour != wantHour {
		t.Fatalf("attempted_hour = %d, want station-zone hour %d", attempt.AttemptedHour, wantHour)
	}
	if !attempt.Confirmation.SameHour {
		t.Fatal("same-instant confirmation must be same_hour in the station zone")
	}

	hourKey := fmt.Sprintf("%s_%02d", time.Now().In(loc).Format("2006-01-02"), wantHour)
	if doc.Hourly[hourKey]["spot-a"] != 1 {
		t.Fatalf("hourly keys = %v, want credit under %s", doc.Hourly, hourKey)
	}
}

func TestRecordFailure(t *testing.T) {
	s := newTestStore(t)

	if err := s.RecordFailure("roll-1", []string{"spot-a"}, "insert_failed"); err != nil {
		t.Fatalf("record failure: %v", err)
	}

	doc, _ := s.Snapshot()
	if len(doc.Unconfirmed) != 1 {
		t.Fatalf("unconfirmed = %d, want 1", len(doc.Unconfirmed))
	}
	row := doc.Unconfirmed[0]
	if row.Reason != "insert_failed" || row.Status != StatusUnconfirmed {
		t.Fatalf("row = %+v", row)
	}
	if len(doc.Totals) != 0 {
		t.Fatal("failures must not touch counters")
	}
}

func TestLedgerRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	s := Open(path, time.Local, zerolog.Nop())

	if err := s.RecordRollAttempt("roll-1", []string{"spot-a"}, "ok", "200"); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := s.ConfirmRollPlayback("roll-1", "adRoll", time.Now()); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if err := s.RecordRollAttempt("roll-2", []string{"spot-b"}, "", "200"); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := s.MarkRollUnconfirmed("roll-2", "confirm_timeout"); err != nil {
		t.Fatalf("unconfirm: %v", err)
	}
	if err := s.RecordRollAttempt("roll-3", []string{"spot-c"}, "", "200"); err != nil {
		t.Fatalf("record: %v", err)
	}

	before, err := s.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	// A fresh store over the same file must see the identical document.
	reopened := Open(path, time.Local, zerolog.Nop())
	after, err := reopened.Snapshot()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}

	b1, _ := json.Marshal(before)
	b2, _ := json.Marshal(after)
	if string(b1) != string(b2) {
		t.Fatalf("round trip mismatch:\nbefore: %s\nafter:  %s", b1, b2)
	}
	if len(after.Pending) != 1 || len(after.Confirmed) != 1 || len(after.Unconfirmed) != 1 {
		t.Fatalf("after reload: pending=%d confirmed=%d unconfirmed=%d",
			len(after.Pending), len(after.Confirmed), len(after.Unconfirmed))
	}
}

func TestLoadDefaultsMissingKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	if err := os.WriteFile(path, []byte(`{"confirmed_events":[]}`), 0o644); err != nil {
		t.Fatalf("seed ledger: %v", err)
	}

	s := Open(path, time.Local, zerolog.Nop())
	doc, err := s.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if doc.Pending == nil || doc.Unconfirmed == nil || doc.Hourly == nil || doc.Daily == nil || doc.Totals == nil {
		t.Fatalf("missing keys must default to empty: %+v", doc)
	}
}

func TestOnConfirmedHook(t *testing.T) {
	s := newTestStore(t)

	var gotNames []string
	s.OnConfirmed = func(names []string, at time.Time) {
		gotNames = names
	}

	if err := s.RecordRollAttempt("roll-1", []string{"spot-a", "spot-b"}, "", "200"); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := s.ConfirmRollPlayback("roll-1", "adRoll", time.Now()); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if len(gotNames) != 2 {
		t.Fatalf("hook names = %v", gotNames)
	}

	// No hook on the idempotent second confirm.
	gotNames = nil
	if err := s.ConfirmRollPlayback("roll-1", "adRoll", time.Now()); err != nil {
		t.Fatalf("second confirm: %v", err)
	}
	if gotNames != nil {
		t.Fatal("hook must not fire on idempotent confirm")
	}
}
