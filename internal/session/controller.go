// Package session is the externally facing playback surface. A Controller
// composes the playback engine, the duration resolver, and the position
// store: callers load a surah and issue transport commands; the controller
// keeps the surah timeline warm in the background, persists resumable
// positions, and exposes a read-only snapshot for rendering.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/oklog/ulid/v2"

	"github.com/tilawa-app/tilawa/internal/player"
	"github.com/tilawa-app/tilawa/internal/quran"
	"github.com/tilawa-app/tilawa/internal/source"
	"github.com/tilawa-app/tilawa/internal/store"
	"github.com/tilawa-app/tilawa/internal/timeline"
)

// TimelineSource resolves a surah's full duration map.
type TimelineSource interface {
	SurahTimeline(ctx context.Context, reciterID, surah, totalAyah int) (timeline.DurationMap, float64)
}

// PositionStore persists resumable playback state.
type PositionStore interface {
	PutPosition(pos store.PlaybackPosition) error
	GetPosition(surah int) (store.PlaybackPosition, bool, error)
	PutLastListened(last store.LastListened) error
	GetLastListened() (store.LastListened, bool, error)
}

// Snapshot is the read-only view of the current session.
type Snapshot struct {
	Surah           int
	SurahName       string
	ReciterID       int
	ReciterName     string
	CurrentAyah     int
	TotalAyah       int
	CurrentTime     float64 // seconds from the start of the surah
	TotalDuration   float64
	Percent         float64
	IsPlaying       bool
	IsLoading       bool
	Looping         bool
	SecondsListened float64
}

// Controller drives one playback session at a time. All methods are safe for
// concurrent use.
type Controller struct {
	engine    *player.Engine
	timelines TimelineSource
	positions PositionStore
	urls      *source.Resolver

	mu        sync.Mutex
	sessionID string
	cancel    context.CancelFunc
	meta      quran.Surah
	reciterID int
	durations timeline.DurationMap
	looping   bool

	// Playhead mirror updated from engine callbacks, so snapshots do not
	// have to poll the slots.
	posAyah    int
	posElapsed float64
	listened   float64
}

// New builds a controller. newSlot constructs the engine's two decoder slots;
// engineCfg zero values select the engine defaults.
func New(engineCfg player.Config, newSlot func(index int, notify func(player.SlotEvent)) player.Slot,
	timelines TimelineSource, positions PositionStore, urls *source.Resolver) *Controller {

	c := &Controller{
		timelines: timelines,
		positions: positions,
		urls:      urls,
		durations: timeline.DurationMap{},
	}
	c.engine = player.New(engineCfg, newSlot, player.Callbacks{
		OnAyahChange:  c.onAyahChange,
		OnPosition:    c.onPosition,
		OnStateChange: c.onStateChange,
	})
	return c
}

// Start launches the engine's polling loop.
func (c *Controller) Start(ctx context.Context) {
	c.engine.Start(ctx)
}

// Close persists the final position, cancels background work, and releases
// the engine.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	surah := c.meta.Number
	reciter := c.reciterID
	ayah := c.posAyah
	elapsed := c.posElapsed
	c.mu.Unlock()

	if surah != 0 && ayah != 0 {
		c.persistPosition(surah, ayah, reciter, elapsed)
	}
	return c.engine.Close()
}

// LoadSurah begins (or jumps within) a session. Loading the surah and
// reciter that are already active is a position jump, keeping in-flight
// buffers; anything else tears the session down, starts the first ayah, and
// resolves the full timeline in the background so progress display firms up
// while playback is already running.
func (c *Controller) LoadSurah(meta quran.Surah, startAyah, reciterID int, autoplay bool) {
	if startAyah < 1 {
		startAyah = 1
	}
	if startAyah > meta.TotalAyah {
		startAyah = meta.TotalAyah
	}

	c.mu.Lock()
	if c.meta.Number == meta.Number && c.reciterID == reciterID && c.meta.Number != 0 {
		c.mu.Unlock()
		c.engine.LoadAyah(startAyah, autoplay || c.engine.Playing())
		return
	}

	if c.cancel != nil {
		c.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	id := ulid.Make().String()

	c.sessionID = id
	c.cancel = cancel
	c.meta = meta
	c.reciterID = reciterID
	c.durations = timeline.DurationMap{}
	c.posAyah = startAyah
	c.posElapsed = 0
	surahNumber := meta.Number
	totalAyah := meta.TotalAyah
	c.mu.Unlock()

	log.Info("session start", "session", id, "surah", surahNumber,
		"reciter", source.ReciterCode(reciterID), "ayah", startAyah)

	c.engine.SetSource(func(ayah int) string {
		return c.urls.ClipURLByID(reciterID, surahNumber, ayah)
	}, totalAyah)
	c.engine.SetLoop(c.Looping())
	c.engine.LoadAyah(startAyah, autoplay)

	go c.resolveTimeline(ctx, id, reciterID, surahNumber, totalAyah)
}

// Resume loads the surah at its persisted position, or from ayah 1 when
// nothing was saved for it.
func (c *Controller) Resume(meta quran.Surah, autoplay bool) {
	pos, ok, err := c.positions.GetPosition(meta.Number)
	if err != nil || !ok {
		c.LoadSurah(meta, 1, source.Reciters()[0].ID, autoplay)
		return
	}
	c.LoadSurah(meta, pos.Ayah, pos.ReciterID, autoplay)
}

func (c *Controller) resolveTimeline(ctx context.Context, id string, reciterID, surah, totalAyah int) {
	durations, total := c.timelines.SurahTimeline(ctx, reciterID, surah, totalAyah)
	if ctx.Err() != nil {
		return
	}

	c.mu.Lock()
	if c.sessionID != id {
		// A newer session superseded this resolution.
		c.mu.Unlock()
		return
	}
	c.durations = durations
	c.mu.Unlock()

	log.Debug("timeline resolved", "session", id, "surah", surah, "total", total)
}

// TogglePlay flips between playing and paused.
func (c *Controller) TogglePlay() { c.engine.TogglePlay() }

// Play starts playback if paused.
func (c *Controller) Play() {
	if !c.engine.Playing() {
		c.engine.TogglePlay()
	}
}

// Pause halts playback, persisting the position.
func (c *Controller) Pause() {
	c.engine.Pause()

	c.mu.Lock()
	surah, reciter := c.meta.Number, c.reciterID
	ayah, elapsed := c.posAyah, c.posElapsed
	c.mu.Unlock()
	if surah != 0 && ayah != 0 {
		c.persistPosition(surah, ayah, reciter, elapsed)
	}
}

// Next advances one ayah; past the final ayah it is a no-op.
func (c *Controller) Next() {
	c.engine.LoadAyah(c.engine.CurrentAyah()+1, c.engine.Playing())
}

// Previous steps one ayah back; before the first ayah it is a no-op.
func (c *Controller) Previous() {
	c.engine.LoadAyah(c.engine.CurrentAyah()-1, c.engine.Playing())
}

// Seek jumps to an absolute number of seconds from the surah start.
func (c *Controller) Seek(globalSeconds float64) {
	c.mu.Lock()
	durations := c.durations
	totalAyah := c.meta.TotalAyah
	c.mu.Unlock()
	if totalAyah == 0 {
		return
	}

	pt := timeline.SeekSeconds(durations, globalSeconds, totalAyah)
	c.engine.LoadAyahAt(pt.Ayah,
		time.Duration(pt.Offset*float64(time.Second)), c.engine.Playing())
}

// SeekPercent jumps to a percentage of the surah timeline.
func (c *Controller) SeekPercent(percent float64) {
	c.mu.Lock()
	durations := c.durations
	totalAyah := c.meta.TotalAyah
	c.mu.Unlock()
	if totalAyah == 0 {
		return
	}

	pt := timeline.SeekTarget(durations, percent, totalAyah)
	c.engine.LoadAyahAt(pt.Ayah,
		time.Duration(pt.Offset*float64(time.Second)), c.engine.Playing())
}

// SetReciter switches reciters mid-surah, restarting the current ayah with
// the new voice and persisting the position under the new reciter.
func (c *Controller) SetReciter(reciterID int) {
	c.mu.Lock()
	if reciterID == c.reciterID || c.meta.Number == 0 {
		c.mu.Unlock()
		return
	}
	meta := c.meta
	ayah := c.posAyah
	c.mu.Unlock()

	playing := c.engine.Playing()
	c.persistPosition(meta.Number, ayah, reciterID, 0)
	c.LoadSurah(meta, ayah, reciterID, playing)
}

// SetLoop toggles restarting from ayah 1 at the end of the surah.
func (c *Controller) SetLoop(loop bool) {
	c.mu.Lock()
	c.looping = loop
	c.mu.Unlock()
	c.engine.SetLoop(loop)
}

// Looping reports the loop setting.
func (c *Controller) Looping() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.looping
}

// Snapshot returns the current session state for rendering.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	meta := c.meta
	reciterID := c.reciterID
	durations := c.durations
	looping := c.looping
	listened := c.listened
	c.mu.Unlock()

	ayah := c.engine.CurrentAyah()
	elapsed, _ := c.engine.Position()
	progress := timeline.SurahProgress(durations, ayah, elapsed, meta.TotalAyah)

	return Snapshot{
		Surah:           meta.Number,
		SurahName:       meta.Name,
		ReciterID:       reciterID,
		ReciterName:     source.ReciterName(reciterID),
		CurrentAyah:     ayah,
		TotalAyah:       meta.TotalAyah,
		CurrentTime:     progress.Elapsed,
		TotalDuration:   progress.Total,
		Percent:         progress.Percent,
		IsPlaying:       c.engine.Playing(),
		IsLoading:       c.engine.Loading(),
		Looping:         looping,
		SecondsListened: listened,
	}
}

// LastListened returns the most recent listening record, if any.
func (c *Controller) LastListened() (store.LastListened, bool) {
	last, ok, err := c.positions.GetLastListened()
	if err != nil {
		log.Warn("last listened read failed", "error", err)
		return store.LastListened{}, false
	}
	return last, ok
}

// onAyahChange mirrors the playhead and persists the resumable position.
// Engine callbacks run with the engine unlocked, so the store writes here
// cannot stall a transition.
func (c *Controller) onAyahChange(ayah int) {
	c.mu.Lock()
	c.posAyah = ayah
	c.posElapsed = 0
	surah, reciter := c.meta.Number, c.reciterID
	name := c.meta.Name
	c.mu.Unlock()

	if surah == 0 {
		return
	}
	c.persistPosition(surah, ayah, reciter, 0)
	if err := c.positions.PutLastListened(store.LastListened{
		Surah:     surah,
		Ayah:      ayah,
		SurahName: name,
		At:        time.Now(),
	}); err != nil {
		log.Warn("last listened write failed", "error", err)
	}
}

// onPosition mirrors the playhead and accumulates listening time from the
// deltas between consecutive ticks of the same ayah.
func (c *Controller) onPosition(ayah int, elapsed, _ float64) {
	c.mu.Lock()
	if ayah == c.posAyah {
		if d := elapsed - c.posElapsed; d > 0 && d <= 1 {
			c.listened += d
		}
	}
	c.posAyah = ayah
	c.posElapsed = elapsed
	c.mu.Unlock()
}

func (c *Controller) onStateChange(playing bool) {
	log.Debug("playback state", "playing", playing)
}

func (c *Controller) persistPosition(surah, ayah, reciterID int, elapsed float64) {
	if err := c.positions.PutPosition(store.PlaybackPosition{
		Surah:     surah,
		Ayah:      ayah,
		ReciterID: reciterID,
		Elapsed:   elapsed,
	}); err != nil {
		log.Warn("position write failed", "surah", surah, "ayah", ayah, "error", err)
	}
}
