package duration

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/tilawa-app/tilawa/internal/timeline"
)

// timelineTier is one lookup in an ordered fallback chain. A lookup returns
// (map, true) only when it can produce a usable timeline; failures and
// misses are both "not ok" so precedence lives in the chain, not the tiers.
type timelineTier struct {
	name   string
	lookup func(ctx context.Context) (timeline.DurationMap, bool)
}

// resolveChain evaluates tiers in order and returns the first hit along with
// the name of the tier that produced it. The chain is the single place the
// tier precedence (local aggregate, shared aggregate, per-ayah assembly) is
// defined.
func resolveChain(ctx context.Context, tiers []timelineTier) (timeline.DurationMap, string, bool) {
	for _, t := range tiers {
		if ctx.Err() != nil {
			return nil, "", false
		}
		if m, ok := t.lookup(ctx); ok {
			log.Debug("timeline resolved", "tier", t.name, "ayahs", len(m))
			return m, t.name, true
		}
	}
	return nil, "", false
}
