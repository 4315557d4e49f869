// Package offline bulk-caches surah audio and metadata into the blob cache
// so playback works without a network. The completion marker is a
// DownloadRecord in the key/value store; the bytes themselves live in the
// URL-keyed blob cache that ordinary fetches already consult, so a downloaded
// surah plays from disk with no engine changes.
package offline

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/tilawa-app/tilawa/internal/source"
	"github.com/tilawa-app/tilawa/internal/store"
)

// Fetcher downloads clip bytes from the network.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// BlobStore is the URL-keyed byte cache the manager fills.
type BlobStore interface {
	Put(url string, data []byte) error
	Has(url string) bool
	Delete(url string) error
}

// RecordStore persists download completion markers.
type RecordStore interface {
	PutDownloadRecord(rec store.DownloadRecord) error
	GetDownloadRecord(surah, reciterID int) (store.DownloadRecord, bool, error)
	DeleteDownloadRecord(surah, reciterID int) error
	ListDownloadRecords() ([]store.DownloadRecord, error)
}

// DurationResolver resolves a clip's duration while its bytes are at hand.
type DurationResolver interface {
	AyahDuration(ctx context.Context, reciterID, surah, ayah int) float64
}

// ProgressFunc reports download progress in seconds of audio: the seconds
// resolved so far and the running estimate for the whole surah. Unresolved
// ayahs count at the fallback duration, so the total firms up as the
// download proceeds.
type ProgressFunc func(knownSeconds, totalSeconds float64)

// SurahRef identifies one surah for bulk operations.
type SurahRef struct {
	Number    int
	TotalAyah int
}

// Manager coordinates full-surah downloads.
type Manager struct {
	fetcher   Fetcher
	blobs     BlobStore
	records   RecordStore
	durations DurationResolver
	urls      *source.Resolver
	metaURL   func(surah int) string
	fallback  float64
}

// NewManager wires a download manager. metaURL maps a surah number to its
// metadata document URL, cached alongside the clips so offline playback can
// resolve chapter details; nil skips metadata priming. fallbackSeconds is the
// estimate used for ayahs whose duration has not been resolved yet; zero
// selects 3s.
func NewManager(fetcher Fetcher, blobs BlobStore, records RecordStore, durations DurationResolver, urls *source.Resolver, metaURL func(surah int) string, fallbackSeconds float64) *Manager {
	if fallbackSeconds <= 0 {
		fallbackSeconds = 3
	}
	return &Manager{
		fetcher:   fetcher,
		blobs:     blobs,
		records:   records,
		durations: durations,
		urls:      urls,
		metaURL:   metaURL,
		fallback:  fallbackSeconds,
	}
}

// CacheSurah downloads a surah sequentially: the metadata document and every
// ayah's clip bytes into the blob cache (skipping entries already present)
// and each clip duration into the duration store. Individual ayah failures
// are logged and skipped; the completion marker is written for whatever
// succeeded, and a re-run fills the gaps since blob writes are idempotent.
// Returns the number of ayahs whose bytes are cached.
func (m *Manager) CacheSurah(ctx context.Context, surah, totalAyah, reciterID int, onProgress ProgressFunc) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.primeMetadata(ctx, surah)

	cached := 0
	known := 0.0

	for ayah := 1; ayah <= totalAyah; ayah++ {
		if err := ctx.Err(); err != nil {
			return cached, err
		}

		url := m.urls.ClipURLByID(reciterID, surah, ayah)
		if m.blobs.Has(url) {
			cached++
		} else if data, err := m.fetcher.Fetch(ctx, url); err != nil {
			log.Warn("clip download failed, continuing",
				"surah", surah, "ayah", ayah, "error", err)
		} else if err := m.blobs.Put(url, data); err != nil {
			log.Warn("blob cache write failed, continuing",
				"surah", surah, "ayah", ayah, "error", err)
		} else {
			cached++
		}

		known += m.durations.AyahDuration(ctx, reciterID, surah, ayah)
		if onProgress != nil {
			onProgress(known, known+m.fallback*float64(totalAyah-ayah))
		}
	}

	err := m.records.PutDownloadRecord(store.DownloadRecord{
		Surah:     surah,
		ReciterID: reciterID,
		TotalAyah: totalAyah,
	})
	if err != nil {
		return cached, fmt.Errorf("write download record: %w", err)
	}

	log.Info("surah cached", "surah", surah, "ayahs", cached, "of", totalAyah)
	return cached, nil
}

// primeMetadata caches the surah's metadata document so chapter details
// resolve from the blob cache when offline. Best effort: a failure here never
// blocks the audio download.
func (m *Manager) primeMetadata(ctx context.Context, surah int) {
	if m.metaURL == nil {
		return
	}
	url := m.metaURL(surah)
	if m.blobs.Has(url) {
		return
	}
	data, err := m.fetcher.Fetch(ctx, url)
	if err != nil {
		log.Warn("metadata download failed, continuing", "surah", surah, "error", err)
		return
	}
	if err := m.blobs.Put(url, data); err != nil {
		log.Warn("metadata cache write failed, continuing", "surah", surah, "error", err)
	}
}

// IsSurahDownloaded reports whether the completion marker exists. The marker
// is the sole signal for offline availability.
func (m *Manager) IsSurahDownloaded(surah, reciterID int) bool {
	_, ok, err := m.records.GetDownloadRecord(surah, reciterID)
	if err != nil {
		log.Warn("download record read failed", "surah", surah, "error", err)
		return false
	}
	return ok
}

// DeleteSurahCache removes the completion marker. Blob bytes are reclaimed
// separately via PurgeSurahBlobs.
func (m *Manager) DeleteSurahCache(surah, reciterID int) error {
	return m.records.DeleteDownloadRecord(surah, reciterID)
}

// PurgeSurahBlobs removes the cached clip bytes for a surah.
func (m *Manager) PurgeSurahBlobs(surah, totalAyah, reciterID int) error {
	for ayah := 1; ayah <= totalAyah; ayah++ {
		url := m.urls.ClipURLByID(reciterID, surah, ayah)
		if err := m.blobs.Delete(url); err != nil {
			return fmt.Errorf("purge surah %d ayah %d: %w", surah, ayah, err)
		}
	}
	return nil
}

// Downloads lists all completion markers.
func (m *Manager) Downloads() ([]store.DownloadRecord, error) {
	return m.records.ListDownloadRecords()
}

// DownloadAll caches every listed surah in order, reporting per-surah
// completion through onSurah. The first context cancellation stops the run;
// per-ayah failures inside each surah are tolerated as in CacheSurah.
func (m *Manager) DownloadAll(ctx context.Context, surahs []SurahRef, reciterID int, onSurah func(done, total int)) error {
	for i, ref := range surahs {
		if _, err := m.CacheSurah(ctx, ref.Number, ref.TotalAyah, reciterID, nil); err != nil {
			return fmt.Errorf("download surah %d: %w", ref.Number, err)
		}
		if onSurah != nil {
			onSurah(i+1, len(surahs))
		}
	}
	return nil
}
