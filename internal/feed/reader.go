/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package feed consumes the now-playing document a third-party player
// rewrites while it plays. The engine only ever reads it; absence of the
// next-track block means the playlist has ended.
package feed

import (
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

var (
	// ErrFeedUnavailable marks a missing or unreadable feed file. Transient;
	// callers retry on the next poll.
	ErrFeedUnavailable = errors.New("now-playing feed unavailable")

	// ErrFeedMalformed marks a feed file that exists but does not parse.
	// Transient as well; the player rewrites the file continuously.
	ErrFeedMalformed = errors.New("now-playing feed malformed")
)

type document struct {
	XMLName xml.Name `xml:"nowplaying"`
	Current *Track   `xml:"current"`
	Next    *Track   `xml:"next"`
}

// Reader reads the now-playing feed with a short freshness bound. Reads are
// never cached beyond the TTL so timing decisions see live data.
type Reader struct {
	path string
	ttl  time.Duration

	mu       sync.Mutex
	doc      *document
	modTime  time.Time
	cachedAt time.Time
}

// NewReader creates a feed reader for path. A non-positive ttl disables
// caching entirely.
func NewReader(path string, ttl time.Duration) *Reader {
	return &Reader{path: path, ttl: ttl}
}

// CurrentTrack returns the track playing right now.
func (r *Reader) CurrentTrack() (*Track, error) {
	doc, err := r.load()
	if err != nil {
		return nil, err
	}
	if doc.Current == nil {
		return nil, fmt.Errorf("%w: no current track block", ErrFeedMalformed)
	}
	return doc.Current, nil
}

// NextTrack returns the upcoming track, or nil when the playlist has ended.
func (r *Reader) NextTrack() (*Track, error) {
	doc, err := r.load()
	if err != nil {
		return nil, err
	}
	return doc.Next, nil
}

// HasNextTrack reports whether a next-track block is present.
func (r *Reader) HasNextTrack() (bool, error) {
	doc, err := r.load()
	if err != nil {
		return false, err
	}
	return doc.Next != nil, nil
}

// FileModifiedTime returns the feed file's modification time. Used together
// with track identity to detect track changes.
func (r *Reader) FileModifiedTime() (time.Time, error) {
	info, err := os.Stat(r.path)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrFeedUnavailable, err)
	}
	return info.ModTime(), nil
}

func (r *Reader) load() (*document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.doc != nil && r.ttl > 0 && time.Since(r.cachedAt) < r.ttl {
		return r.doc, nil
	}

	info, err := os.Stat(r.path)
	if err != nil {
		r.doc = nil
		return nil, fmt.Errorf("%w: %v", ErrFeedUnavailable, err)
	}

	data, err := os.ReadFile(r.path)
	if err != nil {
		r.doc = nil
		return nil, fmt.Errorf("%w: %v", ErrFeedUnavailable, err)
	}

	var doc document
	if err := xml.Unmarshal(data, &doc); err != nil {
		r.doc = nil
		return nil, fmt.Errorf("%w: %v", ErrFeedMalformed, err)
	}

	r.doc = &doc
	r.modTime = info.ModTime()
	r.cachedAt = time.Now()
	return r.doc, nil
}
