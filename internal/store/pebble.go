package store

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/cockroachdb/pebble/v2"
	"github.com/oklog/ulid/v2"

	"github.com/tilawa-app/tilawa/internal/timeline"
)

// PebbleStore backs the key/value surface and the derived duration tier with
// a single PebbleDB.
//
// Key schema:
//   - duration:<reciterCode>:<surah>:<ayah> -> seconds (float string)
//   - timeline:<reciterCode>:<surah>        -> DurationMap JSON
//   - position:<surah>                      -> PlaybackPosition JSON
//   - lastlistened                          -> LastListened JSON
//   - download:<surah>:<reciterID>          -> DownloadRecord JSON
type PebbleStore struct {
	db *pebble.DB
}

// OpenPebble opens (or creates) the store at path.
func OpenPebble(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble store: %w", err)
	}
	return &PebbleStore{db: db}, nil
}

// Close closes the underlying database.
func (s *PebbleStore) Close() error {
	return s.db.Close()
}

func (s *PebbleStore) get(key string) ([]byte, bool, error) {
	value, closer, err := s.db.Get([]byte(key))
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	defer closer.Close()

	out := make([]byte, len(value))
	copy(out, value)
	return out, true, nil
}

func (s *PebbleStore) set(key string, value []byte) error {
	if err := s.db.Set([]byte(key), value, pebble.Sync); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (s *PebbleStore) delete(key string) error {
	if err := s.db.Delete([]byte(key), pebble.Sync); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Derived duration tier: one record per (reciter, surah, ayah).

func durationKey(reciterCode string, surah, ayah int) string {
	return fmt.Sprintf("duration:%s:%d:%d", reciterCode, surah, ayah)
}

// PutAyahDuration upserts a single resolved clip duration. Writes are
// idempotent: the duration of a fixed audio file does not change.
func (s *PebbleStore) PutAyahDuration(reciterCode string, surah, ayah int, seconds float64) error {
	return s.set(durationKey(reciterCode, surah, ayah),
		[]byte(strconv.FormatFloat(seconds, 'f', -1, 64)))
}

// GetAyahDuration looks up a single clip duration from the derived tier.
func (s *PebbleStore) GetAyahDuration(reciterCode string, surah, ayah int) (float64, bool, error) {
	raw, ok, err := s.get(durationKey(reciterCode, surah, ayah))
	if err != nil || !ok {
		return 0, false, err
	}
	seconds, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		// Corrupted entry: treat as a miss so the resolver re-probes.
		return 0, false, nil
	}
	return seconds, true, nil
}

// Local aggregate tier: a whole surah's duration map as one JSON blob.

func timelineKey(reciterCode string, surah int) string {
	return fmt.Sprintf("timeline:%s:%d", reciterCode, surah)
}

// PutTimeline stores a surah's complete duration map.
func (s *PebbleStore) PutTimeline(reciterCode string, surah int, m timeline.DurationMap) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode timeline: %w", err)
	}
	return s.set(timelineKey(reciterCode, surah), data)
}

// GetTimeline loads a surah's duration map from the local aggregate tier.
func (s *PebbleStore) GetTimeline(reciterCode string, surah int) (timeline.DurationMap, bool, error) {
	raw, ok, err := s.get(timelineKey(reciterCode, surah))
	if err != nil || !ok {
		return nil, false, err
	}
	var m timeline.DurationMap
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, false, nil
	}
	return m, true, nil
}

// Playback position and last-listened records.

func positionKey(surah int) string {
	return fmt.Sprintf("position:%d", surah)
}

// PutPosition persists the resumable position for a surah.
func (s *PebbleStore) PutPosition(pos PlaybackPosition) error {
	data, err := json.Marshal(pos)
	if err != nil {
		return fmt.Errorf("encode position: %w", err)
	}
	return s.set(positionKey(pos.Surah), data)
}

// GetPosition loads the saved position for a surah.
func (s *PebbleStore) GetPosition(surah int) (PlaybackPosition, bool, error) {
	raw, ok, err := s.get(positionKey(surah))
	if err != nil || !ok {
		return PlaybackPosition{}, false, err
	}
	var pos PlaybackPosition
	if err := json.Unmarshal(raw, &pos); err != nil {
		return PlaybackPosition{}, false, nil
	}
	return pos, true, nil
}

// PutLastListened records the most recent listening position globally.
func (s *PebbleStore) PutLastListened(last LastListened) error {
	data, err := json.Marshal(last)
	if err != nil {
		return fmt.Errorf("encode last listened: %w", err)
	}
	return s.set("lastlistened", data)
}

// GetLastListened returns the most recent listening position, if any.
func (s *PebbleStore) GetLastListened() (LastListened, bool, error) {
	raw, ok, err := s.get("lastlistened")
	if err != nil || !ok {
		return LastListened{}, false, err
	}
	var last LastListened
	if err := json.Unmarshal(raw, &last); err != nil {
		return LastListened{}, false, nil
	}
	return last, true, nil
}

// Download records.

func downloadKey(surah, reciterID int) string {
	return fmt.Sprintf("download:%d:%d", surah, reciterID)
}

// PutDownloadRecord marks a surah as downloaded. An empty ID is filled with
// a fresh ULID.
func (s *PebbleStore) PutDownloadRecord(rec DownloadRecord) error {
	if rec.ID == "" {
		rec.ID = ulid.Make().String()
	}
	if rec.DownloadedAt.IsZero() {
		rec.DownloadedAt = time.Now()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode download record: %w", err)
	}
	return s.set(downloadKey(rec.Surah, rec.ReciterID), data)
}

// GetDownloadRecord returns the completion marker for (surah, reciter).
func (s *PebbleStore) GetDownloadRecord(surah, reciterID int) (DownloadRecord, bool, error) {
	raw, ok, err := s.get(downloadKey(surah, reciterID))
	if err != nil || !ok {
		return DownloadRecord{}, false, err
	}
	var rec DownloadRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return DownloadRecord{}, false, nil
	}
	return rec, true, nil
}

// DeleteDownloadRecord removes the completion marker. Blob-cache space is
// reclaimed independently.
func (s *PebbleStore) DeleteDownloadRecord(surah, reciterID int) error {
	return s.delete(downloadKey(surah, reciterID))
}

// ListDownloadRecords returns all download completion markers.
func (s *PebbleStore) ListDownloadRecords() ([]DownloadRecord, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("download:"),
		UpperBound: []byte("download;"), // ';' sorts just after ':'
	})
	if err != nil {
		return nil, fmt.Errorf("iterate downloads: %w", err)
	}
	defer iter.Close()

	var records []DownloadRecord
	for iter.First(); iter.Valid(); iter.Next() {
		var rec DownloadRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}
