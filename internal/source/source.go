// Package source maps (reciter, surah, ayah) triples to clip URLs on the
// audio host. Resolution is pure and total: unknown reciter IDs fall back to
// the default reciter, and every call returns a syntactically valid URL.
// Whether the URL is reachable is the caller's concern.
package source

import "fmt"

// DefaultBaseURL is the public per-ayah audio host.
const DefaultBaseURL = "https://everyayah.com/data"

// DefaultReciterCode is used whenever a reciter ID is not in the catalog.
const DefaultReciterCode = "Alafasy_128kbps"

// Reciter is one entry of the fixed reciter catalog.
type Reciter struct {
	ID   int
	Code string // external host path segment
	Name string
}

var reciters = []Reciter{
	{ID: 1, Code: "Alafasy_128kbps", Name: "Mishary Rashid Al Afasy"},
	{ID: 2, Code: "Abdul_Basit_Murattal_192kbps", Name: "Abdul Basit Murattal"},
	{ID: 3, Code: "Husary_128kbps", Name: "Mahmoud Khalil Al-Husary"},
	{ID: 4, Code: "Minshawy_Murattal_128kbps", Name: "Mohamed Siddiq El-Minshawi"},
	{ID: 5, Code: "Muhammad_Ayyoub_128kbps", Name: "Muhammad Ayyoub"},
}

// Reciters returns the catalog. The returned slice must not be mutated.
func Reciters() []Reciter {
	return reciters
}

// ReciterCode returns the external code for a reciter ID, falling back to
// the default reciter for unknown IDs.
func ReciterCode(id int) string {
	for _, r := range reciters {
		if r.ID == id {
			return r.Code
		}
	}
	return DefaultReciterCode
}

// ReciterName returns the display name for a reciter ID, or empty when the
// ID is not in the catalog.
func ReciterName(id int) string {
	for _, r := range reciters {
		if r.ID == id {
			return r.Name
		}
	}
	return ""
}

// Resolver builds clip URLs against a configurable base host.
type Resolver struct {
	baseURL string
}

// NewResolver creates a resolver for the given host base URL. An empty base
// selects the default public host.
func NewResolver(baseURL string) *Resolver {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Resolver{baseURL: baseURL}
}

// ClipURL returns the clip URL for a reciter code. Surah and ayah numbers
// are zero-padded to three digits, matching the host's layout.
func (r *Resolver) ClipURL(reciterCode string, surah, ayah int) string {
	if reciterCode == "" {
		reciterCode = DefaultReciterCode
	}
	return fmt.Sprintf("%s/%s/%03d%03d.mp3", r.baseURL, reciterCode, surah, ayah)
}

// ClipURLByID is ClipURL keyed by catalog ID instead of external code.
func (r *Resolver) ClipURLByID(reciterID, surah, ayah int) string {
	return r.ClipURL(ReciterCode(reciterID), surah, ayah)
}
