package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilawa-app/tilawa/internal/timeline"
)

func newTestStore(t *testing.T) *PebbleStore {
	t.Helper()
	s, err := OpenPebble(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAyahDurationRoundTrip(t *testing.T) {
	s := newTestStore(t)

	_, ok, err := s.GetAyahDuration("Alafasy_128kbps", 2, 255)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.PutAyahDuration("Alafasy_128kbps", 2, 255, 7.42))

	seconds, ok, err := s.GetAyahDuration("Alafasy_128kbps", 2, 255)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 7.42, seconds, 1e-9)

	// Entries are keyed by the full (reciter, surah, ayah) triple.
	_, ok, err = s.GetAyahDuration("Husary_128kbps", 2, 255)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTimelineRoundTrip(t *testing.T) {
	s := newTestStore(t)

	m := timeline.DurationMap{1: 4.5, 2: 6.25, 3: 3.0}
	require.NoError(t, s.PutTimeline("Alafasy_128kbps", 114, m))

	got, ok, err := s.GetTimeline("Alafasy_128kbps", 114)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, m, got)

	_, ok, err = s.GetTimeline("Alafasy_128kbps", 113)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPositionRoundTrip(t *testing.T) {
	s := newTestStore(t)

	pos := PlaybackPosition{Surah: 18, Ayah: 10, ReciterID: 2, Elapsed: 3.7}
	require.NoError(t, s.PutPosition(pos))

	got, ok, err := s.GetPosition(18)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, pos, got)

	_, ok, err = s.GetPosition(19)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDownloadRecords(t *testing.T) {
	s := newTestStore(t)

	_, ok, err := s.GetDownloadRecord(36, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.PutDownloadRecord(DownloadRecord{Surah: 36, ReciterID: 1, TotalAyah: 83}))
	require.NoError(t, s.PutDownloadRecord(DownloadRecord{Surah: 67, ReciterID: 3, TotalAyah: 30}))

	rec, ok, err := s.GetDownloadRecord(36, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 83, rec.TotalAyah)
	assert.NotEmpty(t, rec.ID)
	assert.False(t, rec.DownloadedAt.IsZero())

	all, err := s.ListDownloadRecords()
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, s.DeleteDownloadRecord(36, 1))
	_, ok, err = s.GetDownloadRecord(36, 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBlobCacheRoundTrip(t *testing.T) {
	bc, err := NewBlobCache(t.TempDir(), 3)
	require.NoError(t, err)

	const url = "https://everyayah.com/data/Alafasy_128kbps/001001.mp3"
	payload := []byte("mp3 bytes go here, repeated for compressibility: aaaaaaaaaaaa")

	_, ok := bc.Match(url)
	assert.False(t, ok)
	assert.False(t, bc.Has(url))

	require.NoError(t, bc.Put(url, payload))
	assert.True(t, bc.Has(url))
	assert.Equal(t, 1, bc.Len())

	got, ok := bc.Match(url)
	require.True(t, ok)
	assert.Equal(t, payload, got)

	require.NoError(t, bc.Delete(url))
	assert.False(t, bc.Has(url))
	require.NoError(t, bc.Delete(url)) // idempotent
}

func TestBlobCacheIndexPersists(t *testing.T) {
	dir := t.TempDir()
	const url = "https://example.com/a.mp3"

	bc, err := NewBlobCache(dir, 0)
	require.NoError(t, err)
	require.NoError(t, bc.Put(url, []byte("data")))
	require.NoError(t, bc.Close())

	reopened, err := NewBlobCache(dir, 0)
	require.NoError(t, err)
	got, ok := reopened.Match(url)
	require.True(t, ok)
	assert.Equal(t, []byte("data"), got)
}

func TestRemoteTimelinesUnconfigured(t *testing.T) {
	var rt *RemoteTimelines

	ctx := context.Background()
	_, _, err := rt.GetTimeline(ctx, "Alafasy_128kbps", 1)
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.ErrorIs(t, rt.PutTimeline(ctx, "Alafasy_128kbps", 1, nil), ErrNotConfigured)
	rt.Close() // must not panic
}
