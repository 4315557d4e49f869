package player

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Config holds the engine's timing tunables. The margins are empirically
// tuned; treat them as configuration, not derived constants.
type Config struct {
	// EarlySwitchMargin: when the active clip is within this margin of its
	// end, the poll loop flips to the preloaded slot without waiting for
	// the native ended signal.
	EarlySwitchMargin time.Duration

	// PreloadMargin: remaining time in the active clip at which the next
	// clip starts buffering into the inactive slot.
	PreloadMargin time.Duration

	// TickInterval: period of the polling loop.
	TickInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.EarlySwitchMargin <= 0 {
		c.EarlySwitchMargin = 150 * time.Millisecond
	}
	if c.PreloadMargin <= 0 {
		c.PreloadMargin = 2 * time.Second
	}
	if c.TickInterval <= 0 {
		c.TickInterval = 16 * time.Millisecond
	}
	return c
}

// Callbacks deliver engine observations. They are invoked with engine
// internals unlocked but must not call back into the engine synchronously.
type Callbacks struct {
	// OnAyahChange fires when playback advances or jumps to a new ayah.
	OnAyahChange func(ayah int)

	// OnPosition fires on every poll tick while playing.
	OnPosition func(ayah int, elapsed, duration float64)

	// OnStateChange fires when playback starts or stops.
	OnStateChange func(playing bool)
}

// noPreload marks "nothing preloaded" in the preload slot marker.
const noPreload = 0

// Engine drives gapless playback over two slots. All state transitions are
// serialized by one mutex: slot events, poll ticks, and public commands each
// run as one atomic check-then-act step, which is what keeps the "ended" and
// "early switch" paths mutually exclusive for any given transition.
type Engine struct {
	cfg Config
	cb  Callbacks

	mu        sync.Mutex
	slots     [2]Slot
	active    int
	preloaded int
	current   int
	totalAyah int
	urlFor    func(ayah int) string
	looping   bool
	playing   bool
	// pendingPlay defers the play command until the active slot's clip has
	// buffered enough; pendingSeek is applied just before that play.
	pendingPlay bool
	pendingSeek time.Duration
	errored     bool

	stopTick chan struct{}
	closed   bool
}

// New builds an engine; newSlot constructs each of the two slots with the
// engine's event callback.
func New(cfg Config, newSlot func(index int, notify func(SlotEvent)) Slot, cb Callbacks) *Engine {
	e := &Engine{cfg: cfg.withDefaults(), cb: cb, preloaded: noPreload}
	for i := range e.slots {
		e.slots[i] = newSlot(i, e.handleSlotEvent)
	}
	return e
}

// Start launches the polling loop. It returns immediately; the loop runs
// until Close or ctx cancellation.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.stopTick != nil || e.closed {
		e.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	e.stopTick = stop
	e.mu.Unlock()

	go func() {
		ticker := time.NewTicker(e.cfg.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				e.tick()
			}
		}
	}()
}

// Close stops the polling loop and releases both slots.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	if e.stopTick != nil {
		close(e.stopTick)
		e.stopTick = nil
	}
	slots := e.slots
	e.mu.Unlock()

	for _, s := range slots {
		_ = s.Close()
	}
	return nil
}

// SetSource begins a new surah/reciter session: both slots stop and reset,
// and all derived state including the preload marker is cleared.
func (e *Engine) SetSource(urlFor func(ayah int) string, totalAyah int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, s := range e.slots {
		s.Pause()
		s.Reset()
	}
	e.urlFor = urlFor
	e.totalAyah = totalAyah
	e.active = 0
	e.preloaded = noPreload
	e.current = 0
	e.playing = false
	e.pendingPlay = false
	e.pendingSeek = 0
	e.errored = false
}

// LoadAyah loads an ayah into the active slot, optionally playing once
// buffered. Out-of-range requests are ignored.
func (e *Engine) LoadAyah(ayah int, autoplay bool) {
	e.LoadAyahAt(ayah, 0, autoplay)
}

// LoadAyahAt is LoadAyah starting at an offset within the ayah. Any seek or
// jump invalidates the preload marker: the very next transition after a seek
// takes the fallback-load path, never a stale instant switch.
func (e *Engine) LoadAyahAt(ayah int, offset time.Duration, autoplay bool) {
	e.mu.Lock()
	if e.urlFor == nil || ayah < 1 || ayah > e.totalAyah {
		e.mu.Unlock()
		return
	}

	wasPlaying := e.playing
	e.slots[e.active].Pause()
	e.playing = false
	e.preloaded = noPreload
	e.errored = false
	e.current = ayah
	e.pendingSeek = offset
	e.pendingPlay = autoplay
	e.slots[e.active].Assign(context.Background(), e.urlFor(ayah))
	cb := e.cb
	e.mu.Unlock()

	if cb.OnAyahChange != nil {
		cb.OnAyahChange(ayah)
	}
	if wasPlaying && cb.OnStateChange != nil {
		cb.OnStateChange(false)
	}
}

// Preload begins buffering an ayah into the inactive slot. It is a no-op
// when the ayah is already preloaded, out of range, or the active ayah. The
// marker records intent-to-have-loaded; the slot's own readiness is what is
// validated at switch time.
func (e *Engine) Preload(ayah int) {
	e.mu.Lock()
	e.preloadLocked(ayah)
	e.mu.Unlock()
}

func (e *Engine) preloadLocked(ayah int) {
	if e.urlFor == nil || ayah == e.preloaded || ayah < 1 || ayah > e.totalAyah || ayah == e.current {
		return
	}
	inactive := 1 - e.active
	e.slots[inactive].Assign(context.Background(), e.urlFor(ayah))
	e.preloaded = ayah
	log.Debug("preloading ayah", "ayah", ayah, "slot", inactive)
}

// TogglePlay pauses when playing; when paused it plays immediately if the
// clip is buffered, defers the play until buffered otherwise, and re-resolves
// the clip after an error.
func (e *Engine) TogglePlay() {
	e.mu.Lock()

	if e.playing || e.pendingPlay {
		e.slots[e.active].Pause()
		e.playing = false
		e.pendingPlay = false
		cb := e.cb
		e.mu.Unlock()
		if cb.OnStateChange != nil {
			cb.OnStateChange(false)
		}
		return
	}

	if e.errored && e.urlFor != nil && e.current >= 1 {
		// Retry after a playback fault by re-resolving the clip URL.
		ayah := e.current
		e.errored = false
		e.pendingPlay = true
		e.pendingSeek = 0
		e.slots[e.active].Assign(context.Background(), e.urlFor(ayah))
		e.mu.Unlock()
		return
	}

	if e.slots[e.active].Ready() {
		e.slots[e.active].Play()
		e.playing = true
		cb := e.cb
		e.mu.Unlock()
		if cb.OnStateChange != nil {
			cb.OnStateChange(true)
		}
		return
	}

	e.pendingPlay = true
	e.mu.Unlock()
}

// Pause stops audible output, keeping position.
func (e *Engine) Pause() {
	e.mu.Lock()
	if !e.playing {
		e.pendingPlay = false
		e.mu.Unlock()
		return
	}
	e.slots[e.active].Pause()
	e.playing = false
	cb := e.cb
	e.mu.Unlock()
	if cb.OnStateChange != nil {
		cb.OnStateChange(false)
	}
}

// SetLoop toggles restarting from ayah 1 when the surah ends.
func (e *Engine) SetLoop(loop bool) {
	e.mu.Lock()
	e.looping = loop
	e.mu.Unlock()
}

// CurrentAyah returns the ayah the active slot is positioned on.
func (e *Engine) CurrentAyah() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// Playing reports whether audio is audible or a deferred play is pending
// (as during the fallback load between two ayahs).
func (e *Engine) Playing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playing || e.pendingPlay
}

// Loading reports whether the active slot is still buffering.
func (e *Engine) Loading() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.slots[e.active].State() == SlotLoading
}

// PreloadedAyah returns the preload marker, or zero when nothing is
// preloaded.
func (e *Engine) PreloadedAyah() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.preloaded
}

// Position returns the playhead within the current ayah and the ayah's
// duration, in seconds.
func (e *Engine) Position() (elapsed, duration float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.slots[e.active]
	return s.Position().Seconds(), s.Duration().Seconds()
}

// handleSlotEvent processes a slot notification. Events from the inactive
// slot (or from a slot that was active when the event was generated but has
// since been switched away from) are ignored: the activeIndex guard is what
// makes the native-ended and early-switch paths mutually exclusive.
func (e *Engine) handleSlotEvent(ev SlotEvent) {
	e.mu.Lock()

	switch ev.Kind {
	case EventReady:
		if ev.Slot != e.active {
			e.mu.Unlock()
			return
		}
		// The seek offset is applied whether or not playback is pending, so
		// a seek issued while paused still holds once play resumes.
		if e.pendingSeek > 0 {
			e.slots[e.active].SetPosition(e.pendingSeek)
			e.pendingSeek = 0
		}
		if !e.pendingPlay {
			e.mu.Unlock()
			return
		}
		e.pendingPlay = false
		e.slots[e.active].Play()
		e.playing = true
		cb := e.cb
		e.mu.Unlock()
		if cb.OnStateChange != nil {
			cb.OnStateChange(true)
		}

	case EventEnded:
		if ev.Slot != e.active || !e.playing {
			e.mu.Unlock()
			return
		}
		e.advanceLocked()

	case EventError:
		if ev.Slot != e.active {
			// A failed preload just clears the marker; the transition
			// will take the fallback-load path.
			if e.preloaded != noPreload {
				log.Debug("preload failed", "ayah", e.preloaded, "error", ev.Err)
				e.preloaded = noPreload
			}
			e.mu.Unlock()
			return
		}
		log.Warn("playback error, pausing", "ayah", e.current, "error", ev.Err)
		e.errored = true
		e.playing = false
		e.pendingPlay = false
		cb := e.cb
		e.mu.Unlock()
		if cb.OnStateChange != nil {
			cb.OnStateChange(false)
		}

	default:
		e.mu.Unlock()
	}
}

// tick is one iteration of the polling loop: report position, trigger the
// lookahead preload, and perform the early switch when the clip is nearly
// done.
func (e *Engine) tick() {
	e.mu.Lock()
	if !e.playing {
		e.mu.Unlock()
		return
	}

	s := e.slots[e.active]
	duration := s.Duration()
	if duration <= 0 {
		e.mu.Unlock()
		return
	}
	position := s.Position()
	remaining := duration - position

	// The preload margin is deliberately wider than the switch margin so
	// the inactive slot has time to buffer.
	if remaining <= e.cfg.PreloadMargin && e.current < e.totalAyah {
		e.preloadLocked(e.current + 1)
	}

	if remaining <= e.cfg.EarlySwitchMargin {
		// No position sample on the switch path: the outgoing ayah's
		// near-end sample would land after the ayah-change callback.
		e.advanceLocked()
		return
	}

	var report func()
	if e.cb.OnPosition != nil {
		ayah, pos, dur := e.current, position.Seconds(), duration.Seconds()
		cb := e.cb.OnPosition
		report = func() { cb(ayah, pos, dur) }
	}
	e.mu.Unlock()
	if report != nil {
		report()
	}
}

// advanceLocked performs the transition to the next ayah. Called with the
// mutex held from either the native-ended event or the early-switch poll;
// whichever got here first has already advanced e.current, so the loser's
// trigger condition no longer holds. Unlocks e.mu before returning.
func (e *Engine) advanceLocked() {
	next := e.current + 1

	if next > e.totalAyah {
		if e.looping {
			e.loopRestartLocked()
			return
		}
		e.slots[e.active].Pause()
		e.playing = false
		cb := e.cb
		e.mu.Unlock()
		if cb.OnStateChange != nil {
			cb.OnStateChange(false)
		}
		return
	}

	inactive := 1 - e.active
	if e.preloaded == next && e.slots[inactive].Ready() {
		// Instant switch: pause the outgoing slot first so its native
		// ended signal cannot fire a second transition, then flip.
		e.slots[e.active].Pause()
		e.active = inactive
		e.slots[e.active].SetPosition(0)
		e.slots[e.active].Play()
		e.current = next
		e.preloaded = noPreload
		e.playing = true
		e.preloadLocked(next + 1)
		cb := e.cb
		e.mu.Unlock()
		log.Debug("gapless switch", "ayah", next)
		if cb.OnAyahChange != nil {
			cb.OnAyahChange(next)
		}
		return
	}

	// Preload missed (slow network or failed load): reload on the active
	// slot, accepting the audible gap.
	e.preloaded = noPreload
	e.current = next
	e.playing = false
	e.pendingPlay = true
	e.pendingSeek = 0
	e.slots[e.active].Pause()
	e.slots[e.active].Assign(context.Background(), e.urlFor(next))
	cb := e.cb
	e.mu.Unlock()
	log.Debug("preload missed, falling back to direct load", "ayah", next)
	if cb.OnAyahChange != nil {
		cb.OnAyahChange(next)
	}
}

// loopRestartLocked rewinds to ayah 1 after the final ayah when looping.
// Unlocks e.mu before returning.
func (e *Engine) loopRestartLocked() {
	e.slots[e.active].Pause()
	e.preloaded = noPreload
	e.current = 1
	e.playing = false
	e.pendingPlay = true
	e.pendingSeek = 0
	e.slots[e.active].Assign(context.Background(), e.urlFor(1))
	cb := e.cb
	e.mu.Unlock()
	if cb.OnAyahChange != nil {
		cb.OnAyahChange(1)
	}
}
