package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/suPer8Hu/ai-podcaster/internal/apierr"
)

const openAIName = "openai"

type OpenAIProvider struct {
	BaseURL string
	APIKey  string
	Model   string
	Client  *http.Client
}

func NewOpenAIProvider(baseURL, apiKey, model string, timeout time.Duration) *OpenAIProvider {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "tts-1"
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &OpenAIProvider{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Model:   model,
		Client:  &http.Client{Timeout: timeout},
	}
}

type openAISpeechReq struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	Speed          float64 `json:"speed,omitempty"`
	ResponseFormat string  `json:"response_format"`
}

func (p *OpenAIProvider) Name() string   { return openAIName }
func (p *OpenAIProvider) Format() string { return "mp3" }

func (p *OpenAIProvider) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	if strings.TrimSpace(p.APIKey) == "" {
		return nil, &apierr.Error{Provider: openAIName, Kind: apierr.KindAuth, Message: "api key is required"}
	}
	model := req.Model
	if model == "" {
		model = p.Model
	}
	b, err := json.Marshal(openAISpeechReq{
		Model:          model,
		Input:          req.Text,
		Voice:          req.Voice,
		Speed:          req.Speed,
		ResponseFormat: "mp3",
	})
	if err != nil {
		return nil, apierr.Validation(openAIName, err.Error())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/audio/speech", bytes.NewReader(b))
	if err != nil {
		return nil, apierr.Validation(openAIName, err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.APIKey)

	resp, err := p.Client.Do(httpReq)
	if err != nil {
		return nil, apierr.FromTransport(openAIName, err)
	}
	return readAudio(openAIName, resp)
}
