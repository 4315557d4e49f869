// Package timeline provides pure conversions between elapsed surah time and
// (ayah, offset-within-ayah) positions, given a per-ayah duration map. It
// performs no I/O; incomplete maps are padded with a fixed fallback duration
// so progress and seeking stay usable while durations are still resolving.
package timeline

// FallbackSeconds is assumed for any ayah whose real duration is unknown.
const FallbackSeconds = 3.0

// DurationMap maps a 1-based ayah number to its clip duration in seconds.
// It marshals to the {"1": 5.2, ...} JSON shape shared by all duration tiers.
type DurationMap map[int]float64

// Seconds returns the duration for ayah n, or the fallback when unknown.
func (m DurationMap) Seconds(n int) float64 {
	if d, ok := m[n]; ok && d > 0 {
		return d
	}
	return FallbackSeconds
}

// Total sums the durations of ayahs 1..totalAyah, padding unknown entries
// with the fallback.
func (m DurationMap) Total(totalAyah int) float64 {
	var total float64
	for i := 1; i <= totalAyah; i++ {
		total += m.Seconds(i)
	}
	return total
}

// Complete reports whether every ayah 1..totalAyah has a positive entry.
func (m DurationMap) Complete(totalAyah int) bool {
	if totalAyah <= 0 {
		return false
	}
	for i := 1; i <= totalAyah; i++ {
		if d, ok := m[i]; !ok || d <= 0 {
			return false
		}
	}
	return true
}

// Progress describes a position on the surah timeline.
type Progress struct {
	Elapsed float64 // seconds elapsed from the start of the surah
	Total   float64 // total surah duration in seconds
	Percent float64 // Elapsed/Total in [0, 100]
}

// SeekPoint is the result of mapping a global position back onto an ayah.
type SeekPoint struct {
	Ayah   int     // 1-based target ayah
	Offset float64 // seconds into the target ayah
}

// SurahProgress computes the global position for a playhead that is elapsed
// seconds into currentAyah. The elapsed time is clamped to the ayah's known
// duration so timing jitter can never report past the ayah boundary.
func SurahProgress(durations DurationMap, currentAyah int, elapsed float64, totalAyah int) Progress {
	var done, total float64
	for i := 1; i <= totalAyah; i++ {
		d := durations.Seconds(i)
		total += d
		switch {
		case i < currentAyah:
			done += d
		case i == currentAyah:
			done += clamp(elapsed, 0, d)
		}
	}

	p := Progress{Elapsed: done, Total: total}
	if total > 0 {
		p.Percent = clamp(done/total*100, 0, 100)
	}
	return p
}

// SeekTarget maps a percentage of the total timeline to the ayah containing
// that instant and the remainder offset within it. It is the inverse of
// SurahProgress: feeding the returned point back through SurahProgress
// reproduces the percentage once all durations are known.
func SeekTarget(durations DurationMap, percent float64, totalAyah int) SeekPoint {
	if totalAyah < 1 {
		return SeekPoint{Ayah: 1}
	}

	target := clamp(percent, 0, 100) / 100 * durations.Total(totalAyah)

	var accumulated float64
	for i := 1; i <= totalAyah; i++ {
		d := durations.Seconds(i)
		if accumulated+d >= target || i == totalAyah {
			offset := target - accumulated
			if offset < 0 {
				offset = 0
			}
			return SeekPoint{Ayah: i, Offset: offset}
		}
		accumulated += d
	}

	return SeekPoint{Ayah: totalAyah}
}

// SeekSeconds is SeekTarget for an absolute number of elapsed seconds rather
// than a percentage.
func SeekSeconds(durations DurationMap, seconds float64, totalAyah int) SeekPoint {
	total := durations.Total(totalAyah)
	if total <= 0 {
		return SeekPoint{Ayah: 1}
	}
	return SeekTarget(durations, clamp(seconds, 0, total)/total*100, totalAyah)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
