package ai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/suPer8Hu/ai-podcaster/internal/apierr"
)

const ollamaName = "ollama"

type OllamaProvider struct {
	BaseURL string
	Model   string
	Client  *http.Client
}

func NewOllamaProvider(baseURL, model string, timeout time.Duration) *OllamaProvider {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3:latest"
	}
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	return &OllamaProvider{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Model:   model,
		Client:  &http.Client{Timeout: timeout},
	}
}

type ollamaChatReq struct {
	Model    string         `json:"model"`
	Messages []message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  *ollamaOptions `json:"options,omitempty"`
}

type ollamaOptions struct {
	NumPredict int `json:"num_predict,omitempty"`
}

type ollamaChatResp struct {
	Model   string  `json:"model"`
	Message message `json:"message"`
	Error   string  `json:"error,omitempty"`
}

func (p *OllamaProvider) Name() string { return ollamaName }

func (p *OllamaProvider) Complete(ctx context.Context, req Request) (Response, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return Response{}, apierr.Validation(ollamaName, "prompt is required")
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = p.Model
	}

	body := ollamaChatReq{Model: model, Messages: messagesFor(req)}
	if req.MaxTokens > 0 {
		body.Options = &ollamaOptions{NumPredict: req.MaxTokens}
	}

	var decoded ollamaChatResp
	url := fmt.Sprintf("%s/api/chat", p.BaseURL)
	if err := postJSON(ctx, p.Client, ollamaName, url, nil, body, &decoded); err != nil {
		return Response{}, err
	}
	if decoded.Error != "" {
		return Response{}, &apierr.Error{Provider: ollamaName, Kind: apierr.KindMalformed, Message: decoded.Error}
	}
	text := strings.TrimSpace(decoded.Message.Content)
	if text == "" {
		return Response{}, apierr.EmptyResponse(ollamaName)
	}
	return Response{Text: text, Model: model}, nil
}
