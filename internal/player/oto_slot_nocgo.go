//go:build nocgo
// +build nocgo

package player

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tilawa-app/tilawa/internal/fetch"
)

// Stub implementation for static analysis and builds without CGO audio
// support. Every assignment reports an error, so the engine pauses instead
// of pretending to play.

var errNoAudio = errors.New("audio not available in nocgo build")

// OtoSlot is the no-audio stand-in for the production slot.
type OtoSlot struct {
	index  int
	notify func(SlotEvent)

	mu    sync.Mutex
	state SlotState
}

// NewOtoSlot builds a stub slot; the fetch client is unused.
func NewOtoSlot(index int, client *fetch.Client, notify func(SlotEvent)) *OtoSlot {
	return &OtoSlot{index: index, notify: notify}
}

// Assign fails immediately. The error is delivered on a background goroutine
// to match the production slot's event delivery.
func (s *OtoSlot) Assign(_ context.Context, _ string) {
	s.mu.Lock()
	s.state = SlotError
	s.mu.Unlock()
	go s.notify(SlotEvent{Slot: s.index, Kind: EventError, Err: errNoAudio})
}

func (s *OtoSlot) Ready() bool { return false }

func (s *OtoSlot) Play() {}

func (s *OtoSlot) Pause() {}

func (s *OtoSlot) SetPosition(time.Duration) {}

func (s *OtoSlot) Position() time.Duration { return 0 }

func (s *OtoSlot) Duration() time.Duration { return 0 }

func (s *OtoSlot) State() SlotState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *OtoSlot) Reset() {
	s.mu.Lock()
	s.state = SlotIdle
	s.mu.Unlock()
}

func (s *OtoSlot) Close() error {
	s.Reset()
	return nil
}
