package player

import (
	"context"
	"sync"
	"time"
)

// MockSlot implements Slot for tests without real audio. Loading and ended
// timing are driven manually, so transition interleavings can be simulated
// deterministically.
type MockSlot struct {
	index  int
	notify func(SlotEvent)

	mu       sync.Mutex
	state    SlotState
	url      string
	position time.Duration
	duration time.Duration
	loadGen  int

	// Test helpers
	AssignCalls int
	PlayCalls   int
	PauseCalls  int
	AssignedURL string
}

// NewMockSlot creates a mock slot delivering events to notify.
func NewMockSlot(index int, notify func(SlotEvent)) *MockSlot {
	return &MockSlot{index: index, notify: notify}
}

// Assign records the URL and enters loading. The load completes only when
// the test calls CompleteLoad.
func (m *MockSlot) Assign(_ context.Context, url string) {
	m.mu.Lock()
	m.loadGen++
	m.url = url
	m.AssignedURL = url
	m.AssignCalls++
	m.state = SlotLoading
	m.position = 0
	m.duration = 0
	m.mu.Unlock()
}

// CompleteLoad finishes the in-flight load with the given clip duration and
// fires EventReady.
func (m *MockSlot) CompleteLoad(duration time.Duration) {
	m.mu.Lock()
	if m.state != SlotLoading {
		m.mu.Unlock()
		return
	}
	m.duration = duration
	m.state = SlotReady
	m.mu.Unlock()
	m.notify(SlotEvent{Slot: m.index, Kind: EventReady})
}

// FailLoad aborts the in-flight load and fires EventError. Calls with no
// load in flight are ignored.
func (m *MockSlot) FailLoad(err error) {
	m.mu.Lock()
	if m.state != SlotLoading {
		m.mu.Unlock()
		return
	}
	m.state = SlotError
	m.mu.Unlock()
	m.notify(SlotEvent{Slot: m.index, Kind: EventError, Err: err})
}

// FireEnded simulates the native end-of-clip signal.
func (m *MockSlot) FireEnded() {
	m.mu.Lock()
	if m.state != SlotPlaying {
		m.mu.Unlock()
		return
	}
	m.state = SlotEnded
	m.position = m.duration
	m.mu.Unlock()
	m.notify(SlotEvent{Slot: m.index, Kind: EventEnded})
}

// AdvanceTo moves the playhead, clamped to the clip duration.
func (m *MockSlot) AdvanceTo(position time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if position > m.duration {
		position = m.duration
	}
	m.position = position
}

// Ready reports whether CompleteLoad has run for the current assignment.
func (m *MockSlot) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == SlotReady || m.state == SlotPaused || m.state == SlotPlaying
}

// Play marks the slot audible.
func (m *MockSlot) Play() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PlayCalls++
	if m.state == SlotReady || m.state == SlotPaused || m.state == SlotEnded {
		m.state = SlotPlaying
	}
}

// Pause halts the slot.
func (m *MockSlot) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PauseCalls++
	if m.state == SlotPlaying {
		m.state = SlotPaused
	}
}

// SetPosition moves the playhead.
func (m *MockSlot) SetPosition(offset time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.position = offset
}

// Position returns the playhead.
func (m *MockSlot) Position() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.position
}

// Duration returns the loaded clip's duration.
func (m *MockSlot) Duration() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.duration
}

// State returns the slot state.
func (m *MockSlot) State() SlotState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Playing reports whether the slot is currently audible.
func (m *MockSlot) Playing() bool {
	return m.State() == SlotPlaying
}

// Reset clears the assignment.
func (m *MockSlot) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadGen++
	m.url = ""
	m.state = SlotIdle
	m.position = 0
	m.duration = 0
}

// Close is a no-op for the mock.
func (m *MockSlot) Close() error {
	m.Reset()
	return nil
}
