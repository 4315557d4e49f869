package player

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder captures engine callbacks for assertions.
type recorder struct {
	mu     sync.Mutex
	ayahs  []int
	states []bool
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnAyahChange: func(ayah int) {
			r.mu.Lock()
			r.ayahs = append(r.ayahs, ayah)
			r.mu.Unlock()
		},
		OnStateChange: func(playing bool) {
			r.mu.Lock()
			r.states = append(r.states, playing)
			r.mu.Unlock()
		},
	}
}

func (r *recorder) ayahChanges() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.ayahs...)
}

func testURL(ayah int) string {
	return fmt.Sprintf("https://example.com/clips/%03d.mp3", ayah)
}

// newTestEngine builds an engine over two mock slots with a 10-ayah source
// configured, returning the engine, the slots, and the callback recorder.
func newTestEngine(t *testing.T, totalAyah int) (*Engine, []*MockSlot, *recorder) {
	t.Helper()

	rec := &recorder{}
	slots := make([]*MockSlot, 2)
	e := New(Config{
		EarlySwitchMargin: 150 * time.Millisecond,
		PreloadMargin:     2 * time.Second,
	}, func(i int, notify func(SlotEvent)) Slot {
		slots[i] = NewMockSlot(i, notify)
		return slots[i]
	}, rec.callbacks())
	t.Cleanup(func() { e.Close() })

	e.SetSource(testURL, totalAyah)
	return e, slots, rec
}

// startPlaying brings the engine to "playing ayah" with the given clip
// duration loaded into the active slot.
func startPlaying(t *testing.T, e *Engine, slots []*MockSlot, ayah int, clip time.Duration) {
	t.Helper()
	e.LoadAyah(ayah, true)
	slots[activeOf(e)].CompleteLoad(clip)
	require.True(t, e.Playing())
	require.Equal(t, ayah, e.CurrentAyah())
}

func activeOf(e *Engine) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

func TestLoadAyahAutoplayWaitsForBuffer(t *testing.T) {
	e, slots, _ := newTestEngine(t, 10)

	e.LoadAyah(3, true)
	assert.Equal(t, 3, e.CurrentAyah())
	assert.Equal(t, testURL(3), slots[0].AssignedURL)
	assert.False(t, slots[0].Playing(), "must not play before the clip is buffered")

	slots[0].CompleteLoad(5 * time.Second)
	assert.True(t, slots[0].Playing())
	assert.True(t, e.Playing())
}

func TestLoadAyahOutOfRangeIgnored(t *testing.T) {
	e, slots, _ := newTestEngine(t, 10)

	e.LoadAyah(0, true)
	e.LoadAyah(11, true)

	assert.Zero(t, slots[0].AssignCalls)
	assert.Equal(t, 0, e.CurrentAyah())
}

func TestPreloadTargetsInactiveSlot(t *testing.T) {
	e, slots, _ := newTestEngine(t, 10)
	startPlaying(t, e, slots, 1, 5*time.Second)

	e.Preload(2)

	assert.Equal(t, 2, e.PreloadedAyah())
	assert.Equal(t, testURL(2), slots[1].AssignedURL)
	assert.False(t, slots[1].Playing(), "preload must not play")
}

func TestPreloadNoOps(t *testing.T) {
	e, slots, _ := newTestEngine(t, 10)
	startPlaying(t, e, slots, 4, 5*time.Second)

	e.Preload(5)
	calls := slots[1].AssignCalls

	e.Preload(5)  // already preloaded
	e.Preload(4)  // active ayah
	e.Preload(0)  // out of range
	e.Preload(11) // out of range

	assert.Equal(t, calls, slots[1].AssignCalls)
	assert.Equal(t, 5, e.PreloadedAyah())
}

func TestTickTriggersPreloadNearEnd(t *testing.T) {
	e, slots, _ := newTestEngine(t, 10)
	startPlaying(t, e, slots, 1, 10*time.Second)

	slots[0].AdvanceTo(5 * time.Second)
	e.tick()
	assert.Equal(t, noPreload, e.PreloadedAyah(), "too early to preload")

	slots[0].AdvanceTo(8500 * time.Millisecond) // 1.5s remaining <= 2s margin
	e.tick()
	assert.Equal(t, 2, e.PreloadedAyah())
}

func TestEarlySwitchUsesPreloadedSlot(t *testing.T) {
	e, slots, rec := newTestEngine(t, 10)
	startPlaying(t, e, slots, 1, 10*time.Second)

	e.Preload(2)
	slots[1].CompleteLoad(7 * time.Second)

	// Within the 150ms early-switch margin.
	slots[0].AdvanceTo(9900 * time.Millisecond)
	e.tick()

	assert.Equal(t, 2, e.CurrentAyah())
	assert.Equal(t, 1, activeOf(e))
	assert.True(t, slots[1].Playing())
	assert.False(t, slots[0].Playing(), "outgoing slot must be paused")
	assert.Equal(t, time.Duration(0), slots[1].Position(), "new slot starts at zero")
	assert.Contains(t, rec.ayahChanges(), 2)

	// The switch immediately queues the next preload into the old slot.
	assert.Equal(t, 3, e.PreloadedAyah())
	assert.Equal(t, testURL(3), slots[0].AssignedURL)
}

func TestNativeEndedUsesPreloadedSlot(t *testing.T) {
	e, slots, _ := newTestEngine(t, 10)
	startPlaying(t, e, slots, 1, 10*time.Second)

	e.Preload(2)
	slots[1].CompleteLoad(7 * time.Second)

	slots[0].AdvanceTo(10 * time.Second)
	slots[0].FireEnded()

	assert.Equal(t, 2, e.CurrentAyah())
	assert.Equal(t, 1, activeOf(e))
	assert.True(t, slots[1].Playing())
}

// The ended signal and the early-switch poll race for the same transition;
// whichever fires first wins and the other must do nothing. Simulating both
// orders must produce identical final state.
func TestEndedAndEarlySwitchInterleavings(t *testing.T) {
	type outcome struct {
		current, active, preloaded int
		activePlaying              bool
	}

	run := func(pollFirst bool) outcome {
		rec := &recorder{}
		slots := make([]*MockSlot, 2)
		e := New(Config{EarlySwitchMargin: 150 * time.Millisecond, PreloadMargin: 2 * time.Second},
			func(i int, notify func(SlotEvent)) Slot {
				slots[i] = NewMockSlot(i, notify)
				return slots[i]
			}, rec.callbacks())
		defer e.Close()
		e.SetSource(testURL, 10)

		e.LoadAyah(1, true)
		slots[0].CompleteLoad(10 * time.Second)
		e.Preload(2)
		slots[1].CompleteLoad(7 * time.Second)
		slots[0].AdvanceTo(9950 * time.Millisecond)

		if pollFirst {
			e.tick()
			slots[0].FireEnded() // suppressed: slot 0 is paused, no longer active
		} else {
			slots[0].FireEnded()
			e.tick() // new active clip is nowhere near its end
		}

		return outcome{
			current:       e.CurrentAyah(),
			active:        activeOf(e),
			preloaded:     e.PreloadedAyah(),
			activePlaying: slots[activeOf(e)].Playing(),
		}
	}

	pollWon := run(true)
	endedWon := run(false)

	assert.Equal(t, pollWon, endedWon, "transition outcome must not depend on firing order")
	assert.Equal(t, 2, pollWon.current)
	assert.True(t, pollWon.activePlaying)
}

func TestAtMostOneSlotAudible(t *testing.T) {
	e, slots, _ := newTestEngine(t, 10)
	startPlaying(t, e, slots, 1, 10*time.Second)

	for ayah := 2; ayah <= 6; ayah++ {
		e.Preload(ayah)
		slots[1-activeOf(e)].CompleteLoad(10 * time.Second)
		slots[activeOf(e)].AdvanceTo(9900 * time.Millisecond)
		e.tick()

		playing := 0
		for _, s := range slots {
			if s.Playing() {
				playing++
			}
		}
		require.Equal(t, 1, playing, "exactly one slot audible after switch to ayah %d", ayah)
		require.Equal(t, ayah, e.CurrentAyah())
	}
}

func TestPreloadMissedFallsBackToDirectLoad(t *testing.T) {
	e, slots, rec := newTestEngine(t, 10)
	startPlaying(t, e, slots, 1, 10*time.Second)

	// Preload was issued but never finished buffering.
	e.Preload(2)
	slots[0].AdvanceTo(10 * time.Second)
	slots[0].FireEnded()

	assert.Equal(t, 2, e.CurrentAyah())
	assert.Equal(t, 0, activeOf(e), "fallback reloads on the same active slot")
	assert.Equal(t, testURL(2), slots[0].AssignedURL)
	assert.Equal(t, noPreload, e.PreloadedAyah())
	assert.True(t, e.Playing(), "intent to play survives the gap")

	slots[0].CompleteLoad(6 * time.Second)
	assert.True(t, slots[0].Playing())
	assert.Contains(t, rec.ayahChanges(), 2)
}

func TestSeekClearsPreloadMarker(t *testing.T) {
	e, slots, _ := newTestEngine(t, 10)
	startPlaying(t, e, slots, 1, 10*time.Second)

	e.Preload(2)
	slots[1].CompleteLoad(7 * time.Second)
	require.Equal(t, 2, e.PreloadedAyah())

	e.LoadAyahAt(5, 1500*time.Millisecond, true)

	assert.Equal(t, noPreload, e.PreloadedAyah())
	assert.Equal(t, 5, e.CurrentAyah())

	slots[0].CompleteLoad(8 * time.Second)
	assert.Equal(t, 1500*time.Millisecond, slots[0].Position(), "seek offset applied on ready")
	assert.True(t, slots[0].Playing())
}

func TestSeekWhilePausedAppliesOnPlay(t *testing.T) {
	e, slots, _ := newTestEngine(t, 10)

	e.LoadAyahAt(5, 1500*time.Millisecond, false)
	slots[0].CompleteLoad(8 * time.Second)

	assert.False(t, slots[0].Playing(), "a paused seek must not start playback")
	assert.Equal(t, 1500*time.Millisecond, slots[0].Position(), "offset applied while still paused")

	e.TogglePlay()
	assert.True(t, slots[0].Playing())
	assert.Equal(t, 1500*time.Millisecond, slots[0].Position(), "offset survives pause then play")
}

func TestSetSourceResetsEverything(t *testing.T) {
	e, slots, _ := newTestEngine(t, 10)
	startPlaying(t, e, slots, 3, 10*time.Second)
	e.Preload(4)

	e.SetSource(func(ayah int) string { return fmt.Sprintf("https://other.example/%d.mp3", ayah) }, 7)

	assert.Equal(t, 0, e.CurrentAyah())
	assert.Equal(t, noPreload, e.PreloadedAyah())
	assert.False(t, e.Playing())
	assert.Equal(t, SlotIdle, slots[0].State())
	assert.Equal(t, SlotIdle, slots[1].State())
}

func TestLoopRestartsAtFirstAyah(t *testing.T) {
	e, slots, rec := newTestEngine(t, 3)
	e.SetLoop(true)
	startPlaying(t, e, slots, 3, 5*time.Second)

	slots[0].AdvanceTo(5 * time.Second)
	slots[0].FireEnded()

	assert.Equal(t, 1, e.CurrentAyah())
	assert.Equal(t, testURL(1), slots[0].AssignedURL)
	assert.True(t, e.Playing())

	slots[0].CompleteLoad(5 * time.Second)
	assert.True(t, slots[0].Playing())
	assert.Equal(t, time.Duration(0), slots[0].Position())
	assert.Contains(t, rec.ayahChanges(), 1)
}

func TestEndOfSurahWithoutLoopPauses(t *testing.T) {
	e, slots, _ := newTestEngine(t, 3)
	startPlaying(t, e, slots, 3, 5*time.Second)

	slots[0].AdvanceTo(5 * time.Second)
	slots[0].FireEnded()

	assert.False(t, e.Playing())
	assert.Equal(t, 3, e.CurrentAyah(), "position stays at the final ayah")
	assert.False(t, slots[0].Playing())
}

func TestTogglePlayPausesAndResumes(t *testing.T) {
	e, slots, _ := newTestEngine(t, 10)
	startPlaying(t, e, slots, 1, 10*time.Second)

	e.TogglePlay()
	assert.False(t, e.Playing())
	assert.False(t, slots[0].Playing())

	e.TogglePlay()
	assert.True(t, e.Playing())
	assert.True(t, slots[0].Playing())
}

func TestTogglePlayDefersUntilBuffered(t *testing.T) {
	e, slots, _ := newTestEngine(t, 10)

	e.LoadAyah(1, false)
	e.TogglePlay() // clip still loading
	assert.False(t, slots[0].Playing())

	slots[0].CompleteLoad(4 * time.Second)
	assert.True(t, slots[0].Playing(), "deferred play fires once buffered")
}

func TestActiveSlotErrorPausesWithoutCrash(t *testing.T) {
	e, slots, _ := newTestEngine(t, 10)
	startPlaying(t, e, slots, 1, 10*time.Second)

	slots[0].FailLoad(errors.New("network down")) // ignored: load already done
	e.LoadAyah(2, true)
	slots[0].FailLoad(errors.New("network down"))

	assert.False(t, e.Playing())

	// Toggling play retries by re-resolving the clip.
	assigns := slots[0].AssignCalls
	e.TogglePlay()
	assert.Equal(t, assigns+1, slots[0].AssignCalls)
	slots[0].CompleteLoad(5 * time.Second)
	assert.True(t, e.Playing())
}

func TestPreloadErrorClearsMarker(t *testing.T) {
	e, slots, _ := newTestEngine(t, 10)
	startPlaying(t, e, slots, 1, 10*time.Second)

	e.Preload(2)
	slots[1].FailLoad(errors.New("404"))

	assert.Equal(t, noPreload, e.PreloadedAyah())
	assert.True(t, e.Playing(), "active playback unaffected by a preload failure")
}

func TestPositionReporting(t *testing.T) {
	var mu sync.Mutex
	var lastAyah int
	var lastElapsed float64

	slots := make([]*MockSlot, 2)
	e := New(Config{}, func(i int, notify func(SlotEvent)) Slot {
		slots[i] = NewMockSlot(i, notify)
		return slots[i]
	}, Callbacks{OnPosition: func(ayah int, elapsed, _ float64) {
		mu.Lock()
		lastAyah, lastElapsed = ayah, elapsed
		mu.Unlock()
	}})
	defer e.Close()

	e.SetSource(testURL, 10)
	e.LoadAyah(2, true)
	slots[0].CompleteLoad(10 * time.Second)

	slots[0].AdvanceTo(3 * time.Second)
	e.tick()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, lastAyah)
	assert.InDelta(t, 3.0, lastElapsed, 1e-9)
}

// The tick that performs the early switch must not also emit a position
// sample: the outgoing ayah's near-end sample would arrive after the
// ayah-change notification and corrupt any listener tracking elapsed time.
func TestEarlySwitchTickSkipsPositionSample(t *testing.T) {
	var mu sync.Mutex
	type sample struct {
		ayah    int
		elapsed float64
	}
	var samples []sample

	slots := make([]*MockSlot, 2)
	e := New(Config{EarlySwitchMargin: 150 * time.Millisecond, PreloadMargin: 2 * time.Second},
		func(i int, notify func(SlotEvent)) Slot {
			slots[i] = NewMockSlot(i, notify)
			return slots[i]
		}, Callbacks{OnPosition: func(ayah int, elapsed, _ float64) {
			mu.Lock()
			samples = append(samples, sample{ayah, elapsed})
			mu.Unlock()
		}})
	defer e.Close()

	e.SetSource(testURL, 10)
	e.LoadAyah(1, true)
	slots[0].CompleteLoad(10 * time.Second)
	e.Preload(2)
	slots[1].CompleteLoad(7 * time.Second)

	slots[0].AdvanceTo(3 * time.Second)
	e.tick()
	mu.Lock()
	require.Len(t, samples, 1)
	mu.Unlock()

	slots[0].AdvanceTo(9900 * time.Millisecond)
	e.tick()
	require.Equal(t, 2, e.CurrentAyah())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, samples, 1, "the switching tick must not report the outgoing ayah")
	assert.Equal(t, sample{1, 3.0}, samples[0])
}
