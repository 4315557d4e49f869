package duration

import (
	"bytes"
	"context"
	"fmt"

	mp3 "github.com/hajimehoshi/go-mp3"

	"github.com/tilawa-app/tilawa/internal/fetch"
)

// ClipProber determines a clip's intrinsic duration by fetching and decoding
// it. Fetches go through the blob-cache-aware client, so clips already
// downloaded for offline use are probed without network traffic.
type ClipProber struct {
	client *fetch.Client
}

// NewClipProber builds a prober over the given fetch client.
func NewClipProber(client *fetch.Client) *ClipProber {
	return &ClipProber{client: client}
}

// go-mp3 emits 16-bit stereo PCM: 4 bytes per sample frame.
const pcmBytesPerFrame = 4

// ProbeDuration returns the clip's duration in seconds.
func (p *ClipProber) ProbeDuration(ctx context.Context, url string) (float64, error) {
	data, err := p.client.Get(ctx, url)
	if err != nil {
		return 0, err
	}

	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("decode %s: %w", url, err)
	}

	seconds := float64(dec.Length()) / float64(dec.SampleRate()*pcmBytesPerFrame)
	if seconds <= 0 {
		return 0, fmt.Errorf("decode %s: empty stream", url)
	}
	return seconds, nil
}
