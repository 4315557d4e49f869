// Package quran fetches surah metadata from the quranapi.pages.dev JSON API.
package quran

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tilawa-app/tilawa/internal/fetch"
)

// DefaultAPIURL is the public metadata API base.
const DefaultAPIURL = "https://quranapi.pages.dev/api"

// Surah describes one chapter. Number is 1-based; the list endpoint returns
// surahs in order without a number field, so the client assigns it from the
// position.
type Surah struct {
	Number          int      `json:"surahNo"`
	Name            string   `json:"surahName"`
	NameArabic      string   `json:"surahNameArabic"`
	NameTranslation string   `json:"surahNameTranslation"`
	RevelationPlace string   `json:"revelationPlace"`
	TotalAyah       int      `json:"totalAyah"`
	Arabic          []string `json:"arabic1,omitempty"`
	English         []string `json:"english,omitempty"`
}

// Provider is the metadata surface the session layer depends on.
type Provider interface {
	SurahList(ctx context.Context) ([]Surah, error)
	Surah(ctx context.Context, number int) (Surah, error)
}

// Client is the HTTP Provider. Requests go through the shared fetch client,
// so metadata primed by an offline download is served without network.
type Client struct {
	baseURL string
	fetcher *fetch.Client
}

// NewClient builds a metadata client. An empty baseURL selects the public
// API.
func NewClient(baseURL string, fetcher *fetch.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	return &Client{baseURL: baseURL, fetcher: fetcher}
}

// SurahURL returns the detail endpoint for one chapter. The offline download
// manager primes this URL into the blob cache, which is what lets Surah
// resolve without network for downloaded surahs.
func (c *Client) SurahURL(number int) string {
	return fmt.Sprintf("%s/%d.json", c.baseURL, number)
}

// SurahList fetches the 114-chapter index.
func (c *Client) SurahList(ctx context.Context) ([]Surah, error) {
	data, err := c.fetcher.Get(ctx, c.baseURL+"/surah.json")
	if err != nil {
		return nil, fmt.Errorf("fetch surah list: %w", err)
	}

	var surahs []Surah
	if err := json.Unmarshal(data, &surahs); err != nil {
		return nil, fmt.Errorf("decode surah list: %w", err)
	}
	for i := range surahs {
		surahs[i].Number = i + 1
	}
	return surahs, nil
}

// Surah fetches one chapter's full detail, text included.
func (c *Client) Surah(ctx context.Context, number int) (Surah, error) {
	if number < 1 || number > 114 {
		return Surah{}, fmt.Errorf("surah number %d out of range", number)
	}

	data, err := c.fetcher.Get(ctx, c.SurahURL(number))
	if err != nil {
		return Surah{}, fmt.Errorf("fetch surah %d: %w", number, err)
	}

	var s Surah
	if err := json.Unmarshal(data, &s); err != nil {
		return Surah{}, fmt.Errorf("decode surah %d: %w", number, err)
	}
	s.Number = number
	return s, nil
}
