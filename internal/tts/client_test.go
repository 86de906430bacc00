package tts

import (
	"context"
	"io"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/suPer8Hu/ai-podcaster/internal/apierr"
	"github.com/suPer8Hu/ai-podcaster/internal/audio"
	"github.com/suPer8Hu/ai-podcaster/internal/script"
)

type stubProvider struct {
	calls atomic.Int32
	data  []byte
	err   error
	wait  time.Duration
}

func (s *stubProvider) Name() string   { return "stub" }
func (s *stubProvider) Format() string { return "mp3" }

func (s *stubProvider) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	s.calls.Add(1)
	if s.wait > 0 {
		select {
		case <-time.After(s.wait):
		case <-ctx.Done():
			return nil, apierr.FromTransport("stub", ctx.Err())
		}
	}
	return s.data, s.err
}

func newTestClient(t *testing.T, opts ClientOptions) (*Client, *audio.Workspace) {
	t.Helper()
	ws, err := audio.NewWorkspace(t.TempDir(), "http://localhost/media")
	if err != nil {
		t.Fatalf("NewWorkspace() error = %v", err)
	}
	return NewClient(ws, opts, log.New(io.Discard)), ws
}

func TestClientWritesChunk(t *testing.T) {
	c, _ := newTestClient(t, ClientOptions{})
	p := &stubProvider{data: make([]byte, 100)}
	unit := script.Unit{Index: 2, Voice: "v1", Speaker: "Alex", Text: "Hello"}

	chunk, err := c.Synthesize(context.Background(), p, "job1", unit, Voice{})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if chunk.Index != 2 || chunk.Voice != "v1" || chunk.Speaker != "Alex" || chunk.Size != 100 {
		t.Fatalf("chunk = %+v", chunk)
	}
	info, err := os.Stat(chunk.Path)
	if err != nil || info.Size() != 100 {
		t.Fatalf("chunk file: %v", err)
	}
	if chunk.URL == "" {
		t.Fatal("chunk should carry a public url")
	}
}

func TestClientRejectsEmptyTextWithoutCalling(t *testing.T) {
	c, _ := newTestClient(t, ClientOptions{})
	p := &stubProvider{data: []byte("x")}
	_, err := c.Synthesize(context.Background(), p, "job1", script.Unit{Text: "  "}, Voice{})
	if apierr.KindOf(err) != apierr.KindValidation {
		t.Fatalf("err = %v, want validation", err)
	}
	if p.calls.Load() != 0 {
		t.Fatal("provider must not be called for empty text")
	}
}

func TestClientSurfacesProviderErrors(t *testing.T) {
	c, _ := newTestClient(t, ClientOptions{})
	p := &stubProvider{err: &apierr.Error{Provider: "stub", Kind: apierr.KindRateLimited}}
	_, err := c.Synthesize(context.Background(), p, "job1", script.Unit{Text: "hi"}, Voice{})
	if apierr.KindOf(err) != apierr.KindRateLimited {
		t.Fatalf("err = %v", err)
	}
	if p.calls.Load() != 1 {
		t.Fatalf("calls = %d, adapter must not retry", p.calls.Load())
	}
}

func TestClientTimeoutIsTransient(t *testing.T) {
	c, _ := newTestClient(t, ClientOptions{Timeout: 10 * time.Millisecond})
	p := &stubProvider{data: []byte("x"), wait: time.Second}
	_, err := c.Synthesize(context.Background(), p, "job1", script.Unit{Text: "hi"}, Voice{})
	if apierr.KindOf(err) != apierr.KindTransient {
		t.Fatalf("err = %v, want transient", err)
	}
}

func TestClientEmptyAudio(t *testing.T) {
	c, _ := newTestClient(t, ClientOptions{})
	_, err := c.Synthesize(context.Background(), &stubProvider{}, "job1", script.Unit{Text: "hi"}, Voice{})
	if apierr.KindOf(err) != apierr.KindEmptyResponse {
		t.Fatalf("err = %v, want empty response", err)
	}
}
