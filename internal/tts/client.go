package tts

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"

	"github.com/suPer8Hu/ai-podcaster/internal/apierr"
	"github.com/suPer8Hu/ai-podcaster/internal/audio"
	"github.com/suPer8Hu/ai-podcaster/internal/script"
)

type ClientOptions struct {
	RequestsPerMinute int
	Timeout           time.Duration
}

// Client turns one synthesis unit into one chunk file in the workspace.
// It validates, throttles and times out calls but never retries them.
type Client struct {
	ws      *audio.Workspace
	limiter *rate.Limiter
	timeout time.Duration
	logger  *log.Logger
}

func NewClient(ws *audio.Workspace, opts ClientOptions, logger *log.Logger) *Client {
	c := &Client{
		ws:      ws,
		timeout: opts.Timeout,
		logger:  logger.With("component", "tts"),
	}
	if opts.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), 1)
	}
	return c
}

// Voice holds the per-job provider settings applied to every unit.
type Voice struct {
	Model string
	Speed float64
}

func (c *Client) Synthesize(ctx context.Context, p Provider, jobID string, unit script.Unit, v Voice) (audio.Chunk, error) {
	chunk := audio.Chunk{Index: unit.Index, Speaker: unit.Speaker, Voice: unit.Voice}
	if strings.TrimSpace(unit.Text) == "" {
		return chunk, apierr.Validation(p.Name(), "text to synthesize is empty")
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return chunk, apierr.FromTransport(p.Name(), err)
		}
	}

	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	data, err := p.Synthesize(callCtx, Request{Text: unit.Text, Voice: unit.Voice, Model: v.Model, Speed: v.Speed})
	if err != nil {
		return chunk, err
	}
	if len(data) == 0 {
		return chunk, apierr.EmptyResponse(p.Name())
	}

	ref, err := c.ws.WriteFile(c.ws.ChunkPath(jobID, unit.Index, p.Format()), data)
	if err != nil {
		return chunk, err
	}
	chunk.FileRef = ref
	c.logger.Debug("synthesized unit",
		"job", jobID,
		"unit", unit.Index,
		"voice", unit.Voice,
		"bytes", humanize.Bytes(uint64(ref.Size)),
		"cost", time.Since(start).Truncate(time.Millisecond),
	)
	return chunk, nil
}
