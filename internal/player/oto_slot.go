//go:build !nocgo
// +build !nocgo

package player

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"
	mp3 "github.com/hajimehoshi/go-mp3"

	"github.com/tilawa-app/tilawa/internal/fetch"
)

// go-mp3 emits 16-bit stereo PCM: 4 bytes per sample frame.
const pcmBytesPerFrame = 4

// The process-wide OTO context. OTO supports exactly one context per
// process; it is created lazily at the first clip's sample rate. The
// per-ayah clips of a single recitation share one encode profile, so the
// rate never changes within a session.
var (
	otoMu   sync.Mutex
	otoCtx  *oto.Context
	otoRate int
)

func audioContext(sampleRate int) (*oto.Context, error) {
	otoMu.Lock()
	defer otoMu.Unlock()

	if otoCtx != nil {
		if sampleRate != otoRate {
			log.Warn("clip sample rate differs from audio context",
				"context", otoRate, "clip", sampleRate)
		}
		return otoCtx, nil
	}

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 2,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return nil, fmt.Errorf("create audio context: %w", err)
	}
	<-ready

	otoCtx = ctx
	otoRate = sampleRate
	return otoCtx, nil
}

// countingReader tracks how many PCM bytes the audio backend has consumed.
type countingReader struct {
	r    io.ReadSeeker
	read int64 // atomic
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		atomic.AddInt64(&c.read, int64(n))
	}
	return n, err
}

func (c *countingReader) Seek(offset int64, whence int) (int64, error) {
	pos, err := c.r.Seek(offset, whence)
	if err == nil {
		atomic.StoreInt64(&c.read, pos)
	}
	return pos, err
}

func (c *countingReader) bytesRead() int64 {
	return atomic.LoadInt64(&c.read)
}

// OtoSlot is the production Slot: it fetches clip bytes (through the blob
// cache), decodes MP3 with go-mp3, and plays PCM through OTO.
type OtoSlot struct {
	index  int
	client *fetch.Client
	notify func(SlotEvent)

	mu         sync.Mutex
	state      SlotState
	url        string
	player     *oto.Player
	reader     *countingReader
	sampleRate int
	duration   time.Duration
	loadGen    int
	watchStop  chan struct{}
}

// NewOtoSlot builds a production slot. Events are delivered on background
// goroutines; the notify callback must be safe for that.
func NewOtoSlot(index int, client *fetch.Client, notify func(SlotEvent)) *OtoSlot {
	return &OtoSlot{index: index, client: client, notify: notify}
}

// Assign begins loading a clip. A still-running previous load for this slot
// is superseded: its completion is dropped, preventing duplicate ready and
// ended signals from a stale clip.
func (s *OtoSlot) Assign(ctx context.Context, url string) {
	s.mu.Lock()
	s.stopWatcherLocked()
	s.closePlayerLocked()
	s.loadGen++
	gen := s.loadGen
	s.url = url
	s.state = SlotLoading
	s.mu.Unlock()

	go s.load(ctx, gen, url)
}

func (s *OtoSlot) load(ctx context.Context, gen int, url string) {
	data, err := s.client.Get(ctx, url)
	if err != nil {
		s.failLoad(gen, fmt.Errorf("fetch clip: %w", err))
		return
	}

	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		s.failLoad(gen, fmt.Errorf("decode clip: %w", err))
		return
	}

	octx, err := audioContext(dec.SampleRate())
	if err != nil {
		s.failLoad(gen, err)
		return
	}

	reader := &countingReader{r: dec}
	player := octx.NewPlayer(reader)

	s.mu.Lock()
	if gen != s.loadGen {
		s.mu.Unlock()
		_ = player.Close()
		return
	}
	s.player = player
	s.reader = reader
	s.sampleRate = dec.SampleRate()
	s.duration = time.Duration(float64(dec.Length()) /
		float64(dec.SampleRate()*pcmBytesPerFrame) * float64(time.Second))
	s.state = SlotReady
	s.mu.Unlock()

	log.Debug("slot loaded", "slot", s.index, "url", url, "duration", s.duration)
	s.notify(SlotEvent{Slot: s.index, Kind: EventReady})
}

func (s *OtoSlot) failLoad(gen int, err error) {
	s.mu.Lock()
	if gen != s.loadGen {
		s.mu.Unlock()
		return
	}
	s.state = SlotError
	s.mu.Unlock()

	log.Debug("slot load failed", "slot", s.index, "error", err)
	s.notify(SlotEvent{Slot: s.index, Kind: EventError, Err: err})
}

// Ready reports whether the clip is buffered and decodable.
func (s *OtoSlot) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.player != nil &&
		(s.state == SlotReady || s.state == SlotPaused || s.state == SlotPlaying)
}

// Play starts audible output and the end-of-clip watcher.
func (s *OtoSlot) Play() {
	s.mu.Lock()
	if s.player == nil {
		s.mu.Unlock()
		return
	}
	s.player.Play()
	s.state = SlotPlaying
	s.startWatcherLocked()
	s.mu.Unlock()
}

// Pause halts output. The watcher is stopped first so the pause is never
// mistaken for the clip ending.
func (s *OtoSlot) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopWatcherLocked()
	if s.player == nil {
		return
	}
	s.player.Pause()
	if s.state == SlotPlaying {
		s.state = SlotPaused
	}
}

// SetPosition seeks within the assigned clip.
func (s *OtoSlot) SetPosition(offset time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.player == nil || s.sampleRate == 0 {
		return
	}

	byteOffset := int64(offset.Seconds() * float64(s.sampleRate*pcmBytesPerFrame))
	byteOffset -= byteOffset % pcmBytesPerFrame
	if _, err := s.player.Seek(byteOffset, io.SeekStart); err != nil {
		log.Debug("slot seek failed", "slot", s.index, "offset", offset, "error", err)
	}
}

// Position is the playhead: bytes handed to the backend minus what it has
// not yet played.
func (s *OtoSlot) Position() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.player == nil || s.reader == nil || s.sampleRate == 0 {
		return 0
	}

	consumed := s.reader.bytesRead() - s.player.UnplayedBufferSize()
	if consumed < 0 {
		consumed = 0
	}
	return time.Duration(float64(consumed) /
		float64(s.sampleRate*pcmBytesPerFrame) * float64(time.Second))
}

// Duration is the clip's decoded length, zero while no clip is loaded.
func (s *OtoSlot) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration
}

// State returns the slot's lifecycle state.
func (s *OtoSlot) State() SlotState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Reset discards the clip and supersedes any in-flight load.
func (s *OtoSlot) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopWatcherLocked()
	s.closePlayerLocked()
	s.loadGen++
	s.url = ""
	s.duration = 0
	s.state = SlotIdle
}

// Close releases the slot's player. The shared audio context stays open for
// the process lifetime.
func (s *OtoSlot) Close() error {
	s.Reset()
	return nil
}

// startWatcherLocked polls for the native end-of-clip condition: the backend
// has drained the clip and stopped on its own.
func (s *OtoSlot) startWatcherLocked() {
	s.stopWatcherLocked()
	stop := make(chan struct{})
	s.watchStop = stop
	player := s.player

	go func() {
		ticker := time.NewTicker(25 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if !player.IsPlaying() {
					s.mu.Lock()
					stillOurs := s.watchStop == stop && s.state == SlotPlaying
					if stillOurs {
						s.state = SlotEnded
						s.watchStop = nil
					}
					s.mu.Unlock()
					if stillOurs {
						s.notify(SlotEvent{Slot: s.index, Kind: EventEnded})
					}
					return
				}
			}
		}
	}()
}

func (s *OtoSlot) stopWatcherLocked() {
	if s.watchStop != nil {
		close(s.watchStop)
		s.watchStop = nil
	}
}

func (s *OtoSlot) closePlayerLocked() {
	if s.player != nil {
		_ = s.player.Close()
		s.player = nil
		s.reader = nil
	}
}
