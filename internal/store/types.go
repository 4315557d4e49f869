// Package store is the persistence substrate for the playback engine: a
// local key/value store (playback positions, download records, aggregate
// duration timelines, derived per-ayah duration records), a URL-keyed blob
// cache for clip bytes, and an optional remote table sharing duration
// timelines between devices.
package store

import (
	"errors"
	"time"
)

// ErrNotConfigured is returned by optional backends that were not set up.
var ErrNotConfigured = errors.New("store: backend not configured")

// DownloadRecord marks a surah as fully downloaded for a reciter. It is a
// completion marker only; the bytes live in the blob cache keyed by URL.
type DownloadRecord struct {
	ID           string    `json:"id"`
	Surah        int       `json:"surah"`
	ReciterID    int       `json:"reciterId"`
	TotalAyah    int       `json:"totalAyah"`
	DownloadedAt time.Time `json:"downloadedAt"`
}

// PlaybackPosition is the resumable position within a surah. It is persisted
// on every ayah change so a new session can pick up where the last left off.
type PlaybackPosition struct {
	Surah     int     `json:"surah"`
	Ayah      int     `json:"ayah"`
	ReciterID int     `json:"reciterId"`
	Elapsed   float64 `json:"elapsedInAyahSeconds"`
}

// LastListened records the most recently played surah across all sessions.
type LastListened struct {
	Surah     int       `json:"surah"`
	Ayah      int       `json:"ayah"`
	SurahName string    `json:"surahName"`
	At        time.Time `json:"at"`
}
