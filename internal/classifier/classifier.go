/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package classifier decides whether an artist name denotes spoken-word
// lecture content. Lectures are the safe windows for scheduled ad insertion:
// a roll queued ahead of a lecture airs before long uninterrupted speech.
package classifier

import "strings"

// IsLecture classifies an artist name using the station allow/deny lists plus
// a first-letter heuristic. Evaluation order is load-bearing: the whitelist
// overrides the heuristic, and the heuristic fires before the blacklist.
func IsLecture(artist string, blacklist, whitelist []string) bool {
	artist = strings.TrimSpace(artist)
	if artist == "" {
		return false
	}

	for _, entry := range whitelist {
		if strings.EqualFold(artist, strings.TrimSpace(entry)) {
			return false
		}
	}

	// Station convention: lecture series artists are catalogued under names
	// beginning with 'R' (e.g. "Radio Sermons", "Readings").
	first := artist[:1]
	if strings.EqualFold(first, "r") {
		return true
	}

	for _, entry := range blacklist {
		if strings.EqualFold(artist, strings.TrimSpace(entry)) {
			return true
		}
	}

	return false
}
