// Package duration resolves per-ayah clip durations across three storage
// tiers: a local aggregate timeline, a shared remote timeline table, and a
// derived per-ayah record store backed by probing the clips themselves.
// Probing a hundred clips over HTTP is expensive, so the aggregate tiers
// amortize that cost to once per (surah, reciter) per device and once
// globally; the derived tier guarantees forward progress when neither
// aggregate is complete.
package duration

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/tilawa-app/tilawa/internal/source"
	"github.com/tilawa-app/tilawa/internal/timeline"
)

// DerivedTier stores individual resolved clip durations.
type DerivedTier interface {
	GetAyahDuration(reciterCode string, surah, ayah int) (float64, bool, error)
	PutAyahDuration(reciterCode string, surah, ayah int, seconds float64) error
}

// LocalTier stores whole-surah duration maps on this device.
type LocalTier interface {
	GetTimeline(reciterCode string, surah int) (timeline.DurationMap, bool, error)
	PutTimeline(reciterCode string, surah int, m timeline.DurationMap) error
}

// RemoteTier shares whole-surah duration maps between devices. It is
// optional; a nil RemoteTier disables the middle tier.
type RemoteTier interface {
	GetTimeline(ctx context.Context, reciterCode string, surah int) (timeline.DurationMap, bool, error)
	PutTimeline(ctx context.Context, reciterCode string, surah int, m timeline.DurationMap) error
}

// Prober extracts a clip's intrinsic duration.
type Prober interface {
	ProbeDuration(ctx context.Context, url string) (float64, error)
}

// Options tune the resolver. Zero values select the defaults.
type Options struct {
	FallbackSeconds float64       // assumed duration on probe failure
	ProbeTimeout    time.Duration // per-probe ceiling
	BatchSize       int           // concurrent probes during assembly
}

func (o Options) withDefaults() Options {
	if o.FallbackSeconds <= 0 {
		o.FallbackSeconds = timeline.FallbackSeconds
	}
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = 5 * time.Second
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 10
	}
	return o
}

// Resolver answers duration queries, never failing: every path degrades to
// the fallback duration instead of returning an error.
type Resolver struct {
	derived DerivedTier
	local   LocalTier
	remote  RemoteTier
	prober  Prober
	urls    *source.Resolver
	opts    Options
}

// NewResolver wires a resolver. remote may be nil.
func NewResolver(derived DerivedTier, local LocalTier, remote RemoteTier, prober Prober, urls *source.Resolver, opts Options) *Resolver {
	return &Resolver{
		derived: derived,
		local:   local,
		remote:  remote,
		prober:  prober,
		urls:    urls,
		opts:    opts.withDefaults(),
	}
}

// AyahDuration resolves one clip's duration: derived tier first, then a
// timeout-capped probe whose result is written back best-effort. Probe
// failures resolve to the fallback duration.
func (r *Resolver) AyahDuration(ctx context.Context, reciterID, surah, ayah int) float64 {
	code := source.ReciterCode(reciterID)

	if seconds, ok, err := r.derived.GetAyahDuration(code, surah, ayah); err == nil && ok {
		return seconds
	} else if err != nil {
		log.Warn("derived tier read failed", "surah", surah, "ayah", ayah, "error", err)
	}

	probeCtx, cancel := context.WithTimeout(ctx, r.opts.ProbeTimeout)
	defer cancel()

	seconds, err := r.prober.ProbeDuration(probeCtx, r.urls.ClipURL(code, surah, ayah))
	if err != nil {
		log.Debug("probe failed, using fallback duration",
			"surah", surah, "ayah", ayah, "error", err)
		seconds = r.opts.FallbackSeconds
	}

	// Best-effort write-back: a failed write must not fail the read.
	if err := r.derived.PutAyahDuration(code, surah, ayah, seconds); err != nil {
		log.Warn("derived tier write failed", "surah", surah, "ayah", ayah, "error", err)
	}
	return seconds
}

// SurahTimeline resolves the complete duration map for a surah, in tier
// order: local aggregate, shared aggregate (mirrored down on hit), then
// per-ayah assembly in bounded-concurrency batches (written to the local
// aggregate and published to the shared tier best-effort). The returned map
// always covers every ayah.
func (r *Resolver) SurahTimeline(ctx context.Context, reciterID, surah, totalAyah int) (timeline.DurationMap, float64) {
	code := source.ReciterCode(reciterID)

	tiers := []timelineTier{
		{name: "local-aggregate", lookup: func(context.Context) (timeline.DurationMap, bool) {
			m, ok, err := r.local.GetTimeline(code, surah)
			if err != nil {
				log.Warn("local aggregate read failed", "surah", surah, "error", err)
				return nil, false
			}
			return m, ok && m.Complete(totalAyah)
		}},
		{name: "shared-aggregate", lookup: func(ctx context.Context) (timeline.DurationMap, bool) {
			if r.remote == nil {
				return nil, false
			}
			m, ok, err := r.remote.GetTimeline(ctx, code, surah)
			if err != nil {
				log.Warn("shared aggregate unreachable, degrading to local tiers",
					"surah", surah, "error", err)
				return nil, false
			}
			if !ok || !m.Complete(totalAyah) {
				return nil, false
			}
			// Mirror into the local aggregate so the next session skips
			// the network entirely.
			if err := r.local.PutTimeline(code, surah, m); err != nil {
				log.Warn("mirror to local aggregate failed", "surah", surah, "error", err)
			}
			return m, true
		}},
		{name: "per-ayah-assembly", lookup: func(ctx context.Context) (timeline.DurationMap, bool) {
			return r.assemble(ctx, reciterID, code, surah, totalAyah)
		}},
	}

	m, _, ok := resolveChain(ctx, tiers)
	if !ok {
		// Canceled mid-resolution: pad with fallbacks so callers still get
		// a usable (if approximate) timeline.
		m = timeline.DurationMap{}
	}
	return m, m.Total(totalAyah)
}

// assemble resolves every ayah via the single-ayah path in parallel batches,
// then persists the completed map.
func (r *Resolver) assemble(ctx context.Context, reciterID int, code string, surah, totalAyah int) (timeline.DurationMap, bool) {
	m := make(timeline.DurationMap, totalAyah)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.BatchSize)

	for ayah := 1; ayah <= totalAyah; ayah++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			seconds := r.AyahDuration(gctx, reciterID, surah, ayah)
			mu.Lock()
			m[ayah] = seconds
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		return nil, false
	}

	if err := r.local.PutTimeline(code, surah, m); err != nil {
		log.Warn("local aggregate write failed", "surah", surah, "error", err)
	}

	if r.remote != nil {
		// Publish for other devices without blocking playback startup.
		published := make(timeline.DurationMap, len(m))
		for k, v := range m {
			published[k] = v
		}
		go func() {
			pubCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := r.remote.PutTimeline(pubCtx, code, surah, published); err != nil {
				log.Warn("shared aggregate publish failed", "surah", surah, "error", err)
			}
		}()
	}

	return m, true
}
