// Package player implements the dual-slot gapless playback engine. Two
// interchangeable decoder slots are juggled by an active-slot pointer: while
// one slot is audible the other pre-buffers the next clip, and the switch
// between them happens either on the active slot's own ended signal or a
// high-frequency poll that flips slightly before the clip runs out —
// whichever fires first.
package player

import (
	"context"
	"time"
)

// SlotState is the lifecycle of a single decoder slot.
type SlotState int

const (
	SlotIdle SlotState = iota
	SlotLoading
	SlotReady
	SlotPlaying
	SlotPaused
	SlotEnded
	SlotError
)

// String returns the state name for logging.
func (s SlotState) String() string {
	switch s {
	case SlotIdle:
		return "idle"
	case SlotLoading:
		return "loading"
	case SlotReady:
		return "ready"
	case SlotPlaying:
		return "playing"
	case SlotPaused:
		return "paused"
	case SlotEnded:
		return "ended"
	case SlotError:
		return "error"
	default:
		return "unknown"
	}
}

// EventKind identifies a slot notification.
type EventKind int

const (
	// EventReady fires when an assigned clip has buffered enough to play.
	EventReady EventKind = iota

	// EventEnded fires when the slot's clip has played to completion.
	EventEnded

	// EventError fires on a fetch or decode failure.
	EventError
)

// SlotEvent is a notification from a slot to the engine.
type SlotEvent struct {
	Slot int
	Kind EventKind
	Err  error
}

// Slot is one of the two interchangeable decoder handles. The engine owns
// only slot indices and this interface, never decoder internals, so a test
// double can simulate load and ended timing deterministically.
type Slot interface {
	// Assign loads a clip URL into the slot without playing it. Any
	// in-flight load is superseded; its completion must not be reported.
	Assign(ctx context.Context, url string)

	// Ready reports whether the assigned clip is buffered enough to play.
	Ready() bool

	// Play starts or resumes audible output.
	Play()

	// Pause halts audible output without discarding the clip.
	Pause()

	// SetPosition moves the playhead within the assigned clip.
	SetPosition(offset time.Duration)

	// Position is the current playhead within the assigned clip.
	Position() time.Duration

	// Duration is the assigned clip's total length, zero while unknown.
	Duration() time.Duration

	// State returns the slot's lifecycle state.
	State() SlotState

	// Reset discards the assigned clip and returns the slot to idle.
	Reset()

	// Close releases decoder resources.
	Close() error
}
