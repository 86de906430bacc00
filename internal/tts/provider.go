// Package tts turns synthesis units into audio files through one of several
// swappable speech providers.
package tts

import (
	"context"
	"io"
	"net/http"

	"github.com/suPer8Hu/ai-podcaster/internal/apierr"
)

// Request carries everything a provider needs for one call.
type Request struct {
	Text  string
	Voice string
	Model string
	Speed float64
}

// Provider synthesizes speech. Errors are *apierr.Error values; providers
// never retry on their own.
type Provider interface {
	Name() string
	// Format is the file extension of the audio the provider returns.
	Format() string
	Synthesize(ctx context.Context, req Request) ([]byte, error)
}

// readAudio returns the body of a successful response or a classified error.
func readAudio(provider string, resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		return nil, apierr.FromStatus(provider, resp.StatusCode, string(excerpt))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apierr.FromTransport(provider, err)
	}
	if len(data) == 0 {
		return nil, apierr.EmptyResponse(provider)
	}
	return data, nil
}
