package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/suPer8Hu/ai-podcaster/internal/apierr"
)

// Request is one completion call.
type Request struct {
	System    string
	Prompt    string
	Model     string
	MaxTokens int
}

type Response struct {
	Text  string
	Model string
}

// Provider drafts text from a prompt. Errors are *apierr.Error values.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (Response, error)
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func messagesFor(req Request) []message {
	out := make([]message, 0, 2)
	if strings.TrimSpace(req.System) != "" {
		out = append(out, message{Role: "system", Content: req.System})
	}
	return append(out, message{Role: "user", Content: req.Prompt})
}

// postJSON sends body to url and decodes a 2xx reply into out. Any other
// outcome comes back classified.
func postJSON(ctx context.Context, client *http.Client, provider, url string, headers map[string]string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return apierr.Validation(provider, err.Error())
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return apierr.Validation(provider, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return apierr.FromTransport(provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		return apierr.FromStatus(provider, resp.StatusCode, string(excerpt))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return apierr.FromTransport(provider, err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return apierr.EmptyResponse(provider)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apierr.Malformed(provider, err)
	}
	return nil
}
