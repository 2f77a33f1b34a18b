/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package classifier

import "testing"

func TestIsLecture(t *testing.T) {
	blacklist := []string{"Sermon Series", "Deep Talks"}
	whitelist := []string{"Radiohead", "REM"}

	cases := []struct {
		name   string
		artist string
		want   bool
	}{
		{"empty artist", "", false},
		{"whitespace only", "   ", false},
		{"whitelist overrides heuristic", "Radiohead", false},
		{"whitelist case-insensitive", "radiohead", false},
		{"heuristic lowercase r", "readings in history", true},
		{"heuristic uppercase R", "Radio Sermons", true},
		{"blacklisted", "Sermon Series", true},
		{"blacklisted case-insensitive", "deep talks", true},
		{"plain music artist", "Some Band", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsLecture(tc.artist, blacklist, whitelist); got != tc.want {
				t.Fatalf("IsLecture(%q) = %v, want %v", tc.artist, got, tc.want)
			}
		})
	}
}

func TestIsLectureWhitelistBeatsBlacklist(t *testing.T) {
	// An artist on both lists must classify as not-lecture.
	if IsLecture("Rival Acts", []string{"Rival Acts"}, []string{"Rival Acts"}) {
		t.Fatal("whitelist must override both heuristic and blacklist")
	}
}

func TestIsLectureEmptyLists(t *testing.T) {
	if !IsLecture("Recordings", nil, nil) {
		t.Fatal("heuristic must work with nil lists")
	}
	if IsLecture("Some Band", nil, nil) {
		t.Fatal("non-matching artist with nil lists must be false")
	}
}
