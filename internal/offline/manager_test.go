package offline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilawa-app/tilawa/internal/source"
	"github.com/tilawa-app/tilawa/internal/store"
)

type fakeFetcher struct {
	mu    sync.Mutex
	fail  map[string]bool
	calls []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	if f.fail[url] {
		return nil, errors.New("host unreachable")
	}
	return []byte("clip:" + url), nil
}

type fakeBlobs struct {
	mu    sync.Mutex
	data  map[string][]byte
	fail  bool
	count int
}

func newFakeBlobs() *fakeBlobs { return &fakeBlobs{data: map[string][]byte{}} }

func (b *fakeBlobs) Put(url string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail {
		return errors.New("disk full")
	}
	b.data[url] = data
	b.count++
	return nil
}

func (b *fakeBlobs) Has(url string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.data[url]
	return ok
}

func (b *fakeBlobs) Delete(url string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.data, url)
	return nil
}

type fakeRecords struct {
	mu   sync.Mutex
	recs map[string]store.DownloadRecord
}

func newFakeRecords() *fakeRecords { return &fakeRecords{recs: map[string]store.DownloadRecord{}} }

func recKey(surah, reciterID int) string { return fmt.Sprintf("%d:%d", surah, reciterID) }

func (r *fakeRecords) PutDownloadRecord(rec store.DownloadRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs[recKey(rec.Surah, rec.ReciterID)] = rec
	return nil
}

func (r *fakeRecords) GetDownloadRecord(surah, reciterID int) (store.DownloadRecord, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.recs[recKey(surah, reciterID)]
	return rec, ok, nil
}

func (r *fakeRecords) DeleteDownloadRecord(surah, reciterID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.recs, recKey(surah, reciterID))
	return nil
}

func (r *fakeRecords) ListDownloadRecords() ([]store.DownloadRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]store.DownloadRecord, 0, len(r.recs))
	for _, rec := range r.recs {
		out = append(out, rec)
	}
	return out, nil
}

type fixedDurations struct{ seconds float64 }

func (d fixedDurations) AyahDuration(context.Context, int, int, int) float64 { return d.seconds }

func newTestManager(fetcher *fakeFetcher) (*Manager, *fakeBlobs, *fakeRecords) {
	blobs := newFakeBlobs()
	records := newFakeRecords()
	m := NewManager(fetcher, blobs, records, fixedDurations{seconds: 5}, source.NewResolver(""), nil, 3)
	return m, blobs, records
}

func testMetaURL(surah int) string {
	return fmt.Sprintf("https://api.example/%d.json", surah)
}

func TestCacheSurahDownloadsEveryAyah(t *testing.T) {
	fetcher := &fakeFetcher{}
	m, blobs, _ := newTestManager(fetcher)

	cached, err := m.CacheSurah(context.Background(), 114, 6, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, 6, cached)
	assert.Equal(t, 6, blobs.count)
	assert.True(t, m.IsSurahDownloaded(114, 1))
}

func TestCacheSurahToleratesAyahFailure(t *testing.T) {
	urls := source.NewResolver("")
	badURL := urls.ClipURLByID(1, 1, 3)
	fetcher := &fakeFetcher{fail: map[string]bool{badURL: true}}
	m, blobs, _ := newTestManager(fetcher)

	cached, err := m.CacheSurah(context.Background(), 1, 5, 1, nil)
	require.NoError(t, err)

	assert.Equal(t, 4, cached)
	assert.False(t, blobs.Has(badURL))
	for _, ayah := range []int{1, 2, 4, 5} {
		assert.True(t, blobs.Has(urls.ClipURLByID(1, 1, ayah)), "ayah %d", ayah)
	}
	assert.True(t, m.IsSurahDownloaded(1, 1), "partial download still writes the marker")
}

func TestCacheSurahSkipsAlreadyCached(t *testing.T) {
	fetcher := &fakeFetcher{}
	m, _, _ := newTestManager(fetcher)

	_, err := m.CacheSurah(context.Background(), 1, 5, 1, nil)
	require.NoError(t, err)
	first := len(fetcher.calls)

	cached, err := m.CacheSurah(context.Background(), 1, 5, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, cached)
	assert.Equal(t, first, len(fetcher.calls), "re-run must not refetch cached clips")
}

func TestCacheSurahPrimesMetadata(t *testing.T) {
	fetcher := &fakeFetcher{}
	blobs := newFakeBlobs()
	m := NewManager(fetcher, blobs, newFakeRecords(), fixedDurations{seconds: 5},
		source.NewResolver(""), testMetaURL, 3)

	_, err := m.CacheSurah(context.Background(), 18, 4, 1, nil)
	require.NoError(t, err)
	assert.True(t, blobs.Has(testMetaURL(18)), "metadata document cached alongside the clips")

	first := len(fetcher.calls)
	_, err = m.CacheSurah(context.Background(), 18, 4, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, first, len(fetcher.calls), "re-run must not refetch cached metadata")
}

func TestCacheSurahMetadataFailureTolerated(t *testing.T) {
	fetcher := &fakeFetcher{fail: map[string]bool{testMetaURL(19): true}}
	blobs := newFakeBlobs()
	m := NewManager(fetcher, blobs, newFakeRecords(), fixedDurations{seconds: 5},
		source.NewResolver(""), testMetaURL, 3)

	cached, err := m.CacheSurah(context.Background(), 19, 4, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, cached, "metadata failure never blocks the audio download")
	assert.False(t, blobs.Has(testMetaURL(19)))
	assert.True(t, m.IsSurahDownloaded(19, 1))
}

func TestCacheSurahProgressInSeconds(t *testing.T) {
	fetcher := &fakeFetcher{}
	m, _, _ := newTestManager(fetcher)

	var known, total []float64
	_, err := m.CacheSurah(context.Background(), 1, 3, 1, func(k, tot float64) {
		known = append(known, k)
		total = append(total, tot)
	})
	require.NoError(t, err)

	// Each resolved ayah is 5s; unresolved ones estimate at the 3s fallback.
	assert.Equal(t, []float64{5, 10, 15}, known)
	assert.Equal(t, []float64{5 + 6, 10 + 3, 15}, total)
}

func TestCacheSurahCancellation(t *testing.T) {
	fetcher := &fakeFetcher{}
	m, _, _ := newTestManager(fetcher)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cached, err := m.CacheSurah(ctx, 1, 5, 1, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, cached)
	assert.False(t, m.IsSurahDownloaded(1, 1), "no marker after cancellation")
}

func TestDeleteAndPurge(t *testing.T) {
	fetcher := &fakeFetcher{}
	m, blobs, _ := newTestManager(fetcher)
	urls := source.NewResolver("")

	_, err := m.CacheSurah(context.Background(), 1, 5, 1, nil)
	require.NoError(t, err)

	require.NoError(t, m.DeleteSurahCache(1, 1))
	assert.False(t, m.IsSurahDownloaded(1, 1))
	assert.True(t, blobs.Has(urls.ClipURLByID(1, 1, 1)), "marker deletion keeps the bytes")

	require.NoError(t, m.PurgeSurahBlobs(1, 5, 1))
	assert.False(t, blobs.Has(urls.ClipURLByID(1, 1, 1)))
}

func TestDownloadAll(t *testing.T) {
	fetcher := &fakeFetcher{}
	m, _, _ := newTestManager(fetcher)

	var progress [][2]int
	err := m.DownloadAll(context.Background(), []SurahRef{
		{Number: 112, TotalAyah: 4},
		{Number: 113, TotalAyah: 5},
		{Number: 114, TotalAyah: 6},
	}, 1, func(done, total int) {
		progress = append(progress, [2]int{done, total})
	})
	require.NoError(t, err)

	assert.Equal(t, [][2]int{{1, 3}, {2, 3}, {3, 3}}, progress)
	for _, surah := range []int{112, 113, 114} {
		assert.True(t, m.IsSurahDownloaded(surah, 1))
	}
}
