package timeline

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSurahProgressUnknownDurations(t *testing.T) {
	// Empty map, 3 ayahs, fallback 3s: 1.5s into ayah 2 means 3+1.5 elapsed
	// out of 9 total.
	p := SurahProgress(DurationMap{}, 2, 1.5, 3)

	assert.InDelta(t, 4.5, p.Elapsed, 1e-9)
	assert.InDelta(t, 9.0, p.Total, 1e-9)
	assert.InDelta(t, 50.0, p.Percent, 1e-9)
}

func TestSurahProgressClampsElapsed(t *testing.T) {
	d := DurationMap{1: 5, 2: 5, 3: 5}

	atBoundary := SurahProgress(d, 2, 5, 3)
	overshot := SurahProgress(d, 2, 7.3, 3)

	assert.Equal(t, atBoundary.Elapsed, overshot.Elapsed)
	assert.Equal(t, atBoundary.Percent, overshot.Percent)

	negative := SurahProgress(d, 2, -1, 3)
	assert.InDelta(t, 5.0, negative.Elapsed, 1e-9)
}

func TestSurahProgressMonotonic(t *testing.T) {
	d := DurationMap{1: 4.2, 2: 6.1, 3: 2.9, 4: 5.5}

	prev := -1.0
	for elapsed := 0.0; elapsed <= 8; elapsed += 0.25 {
		p := SurahProgress(d, 2, elapsed, 4)
		require.GreaterOrEqual(t, p.Elapsed, prev, "elapsed=%f", elapsed)
		prev = p.Elapsed
	}
}

func TestSeekTargetKnownDurations(t *testing.T) {
	// 50% of 15s lands 7.5s in, which is 2.5s into ayah 2.
	pt := SeekTarget(DurationMap{1: 5, 2: 5, 3: 5}, 50, 3)

	assert.Equal(t, 2, pt.Ayah)
	assert.InDelta(t, 2.5, pt.Offset, 1e-9)
}

func TestSeekTargetEdges(t *testing.T) {
	d := DurationMap{1: 5, 2: 5, 3: 5}

	start := SeekTarget(d, 0, 3)
	assert.Equal(t, 1, start.Ayah)
	assert.InDelta(t, 0, start.Offset, 1e-9)

	end := SeekTarget(d, 100, 3)
	assert.Equal(t, 3, end.Ayah)

	over := SeekTarget(d, 140, 3)
	assert.Equal(t, 3, over.Ayah)

	under := SeekTarget(d, -10, 3)
	assert.Equal(t, 1, under.Ayah)
}

func TestSeekRoundTripAtAyahBoundaries(t *testing.T) {
	maps := []DurationMap{
		{1: 5, 2: 5, 3: 5},
		{1: 4.7, 2: 12.3, 3: 0.8, 4: 6.6, 5: 9.1},
		{},                  // all fallback
		{2: 8.4},            // partially known
		{1: 3, 2: 3, 3: 30}, // heavily skewed
	}

	for _, d := range maps {
		totalAyah := 5
		for ayah := 1; ayah <= totalAyah; ayah++ {
			p := SurahProgress(d, ayah, 0, totalAyah)
			pt := SeekTarget(d, p.Percent, totalAyah)
			require.Equal(t, ayah, pt.Ayah, "map=%v ayah=%d", d, ayah)
			require.InDelta(t, 0, pt.Offset, 1e-6, "map=%v ayah=%d", d, ayah)
		}
	}
}

func TestSeekRoundTripMidAyah(t *testing.T) {
	d := DurationMap{1: 4.5, 2: 7.25, 3: 3.75}

	for _, offset := range []float64{0.5, 1.25, 3.6} {
		p := SurahProgress(d, 2, offset, 3)
		pt := SeekTarget(d, p.Percent, 3)
		require.Equal(t, 2, pt.Ayah)
		require.True(t, math.Abs(pt.Offset-offset) < 1e-6,
			"offset %f round-tripped to %f", offset, pt.Offset)
	}
}

func TestSeekSeconds(t *testing.T) {
	d := DurationMap{1: 5, 2: 5, 3: 5}

	pt := SeekSeconds(d, 7.5, 3)
	assert.Equal(t, 2, pt.Ayah)
	assert.InDelta(t, 2.5, pt.Offset, 1e-9)

	pt = SeekSeconds(d, 1000, 3)
	assert.Equal(t, 3, pt.Ayah)
}

func TestDurationMapHelpers(t *testing.T) {
	d := DurationMap{1: 2, 2: 4}

	assert.InDelta(t, 2.0, d.Seconds(1), 1e-9)
	assert.InDelta(t, FallbackSeconds, d.Seconds(3), 1e-9)
	assert.InDelta(t, 9.0, d.Total(3), 1e-9)

	assert.False(t, d.Complete(3))
	assert.True(t, d.Complete(2))
	assert.False(t, DurationMap{1: 0, 2: 1}.Complete(2))
	assert.False(t, DurationMap{}.Complete(0))
}
