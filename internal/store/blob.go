package store

import (
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/klauspost/compress/zstd"
)

// BlobCache is a URL-keyed cache of raw clip bytes on disk. Entries are
// stored as hash-named files with an index persisted alongside them, and are
// optionally zstd-compressed. Writes are idempotent, so re-running a
// download over a partially cached surah just fills the gaps.
type BlobCache struct {
	basePath string

	compressionLevel int
	encoder          *zstd.Encoder
	decoder          *zstd.Decoder

	mu    sync.RWMutex
	index map[string]*blobEntry
}

type blobEntry struct {
	URL        string
	FilePath   string
	Size       int64
	StoredAt   time.Time
	Compressed bool
}

const blobIndexFile = "index.gob"

// NewBlobCache opens the blob cache rooted at basePath, creating it if
// needed. A compressionLevel of zero stores blobs uncompressed.
func NewBlobCache(basePath string, compressionLevel int) (*BlobCache, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create blob cache dir: %w", err)
	}

	bc := &BlobCache{
		basePath:         basePath,
		compressionLevel: compressionLevel,
		index:            make(map[string]*blobEntry),
	}

	if compressionLevel > 0 {
		var err error
		bc.encoder, err = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(compressionLevel)))
		if err != nil {
			return nil, fmt.Errorf("create zstd encoder: %w", err)
		}
		bc.decoder, err = zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("create zstd decoder: %w", err)
		}
	}

	if err := bc.loadIndex(); err != nil {
		// Non-fatal: start with an empty index and let entries repopulate.
		log.Warn("blob cache index unreadable, starting fresh", "error", err)
		bc.index = make(map[string]*blobEntry)
	}

	return bc, nil
}

func blobKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:16])
}

// Put stores the bytes for a URL, replacing any previous entry.
func (bc *BlobCache) Put(url string, data []byte) error {
	key := blobKey(url)
	stored := data
	compressed := false
	if bc.encoder != nil {
		stored = bc.encoder.EncodeAll(data, nil)
		compressed = true
	}

	path := filepath.Join(bc.basePath, key+".bin")
	if err := os.WriteFile(path, stored, 0o644); err != nil {
		return fmt.Errorf("write blob: %w", err)
	}

	bc.mu.Lock()
	bc.index[key] = &blobEntry{
		URL:        url,
		FilePath:   path,
		Size:       int64(len(stored)),
		StoredAt:   time.Now(),
		Compressed: compressed,
	}
	bc.mu.Unlock()

	return bc.saveIndex()
}

// Match returns the cached bytes for a URL, or false on a miss. A missing or
// corrupted file drops the index entry and reports a miss.
func (bc *BlobCache) Match(url string) ([]byte, bool) {
	key := blobKey(url)

	bc.mu.RLock()
	entry, ok := bc.index[key]
	bc.mu.RUnlock()
	if !ok {
		return nil, false
	}

	data, err := os.ReadFile(entry.FilePath)
	if err != nil {
		bc.mu.Lock()
		delete(bc.index, key)
		bc.mu.Unlock()
		return nil, false
	}

	if entry.Compressed {
		if bc.decoder == nil {
			return nil, false
		}
		out, err := bc.decoder.DecodeAll(data, nil)
		if err != nil {
			bc.mu.Lock()
			delete(bc.index, key)
			bc.mu.Unlock()
			return nil, false
		}
		return out, true
	}
	return data, true
}

// Has reports whether a URL is cached without reading the bytes.
func (bc *BlobCache) Has(url string) bool {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	_, ok := bc.index[blobKey(url)]
	return ok
}

// Delete removes a URL's entry and its backing file.
func (bc *BlobCache) Delete(url string) error {
	key := blobKey(url)

	bc.mu.Lock()
	entry, ok := bc.index[key]
	if ok {
		delete(bc.index, key)
	}
	bc.mu.Unlock()

	if !ok {
		return nil
	}
	if err := os.Remove(entry.FilePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove blob: %w", err)
	}
	return bc.saveIndex()
}

// Size returns the total on-disk size of all cached blobs.
func (bc *BlobCache) Size() int64 {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	var size int64
	for _, entry := range bc.index {
		size += entry.Size
	}
	return size
}

// Len returns the number of cached blobs.
func (bc *BlobCache) Len() int {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return len(bc.index)
}

// Close flushes the index to disk.
func (bc *BlobCache) Close() error {
	return bc.saveIndex()
}

func (bc *BlobCache) loadIndex() error {
	f, err := os.Open(filepath.Join(bc.basePath, blobIndexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	bc.mu.Lock()
	defer bc.mu.Unlock()
	return gob.NewDecoder(f).Decode(&bc.index)
}

func (bc *BlobCache) saveIndex() error {
	f, err := os.Create(filepath.Join(bc.basePath, blobIndexFile))
	if err != nil {
		return fmt.Errorf("write blob index: %w", err)
	}
	defer f.Close()

	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return gob.NewEncoder(f).Encode(bc.index)
}
