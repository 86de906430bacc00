package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/suPer8Hu/ai-podcaster/internal/apierr"
)

const elevenLabsName = "elevenlabs"

type ElevenLabsProvider struct {
	BaseURL    string
	APIKey     string
	Model      string
	Stability  float64
	Similarity float64
	Client     *http.Client
}

func NewElevenLabsProvider(baseURL, apiKey, model string, timeout time.Duration) *ElevenLabsProvider {
	if baseURL == "" {
		baseURL = "https://api.elevenlabs.io/v1"
	}
	if model == "" {
		model = "eleven_multilingual_v2"
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &ElevenLabsProvider{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		Model:      model,
		Stability:  0.5,
		Similarity: 0.75,
		Client:     &http.Client{Timeout: timeout},
	}
}

type elevenLabsReq struct {
	Text          string              `json:"text"`
	ModelID       string              `json:"model_id"`
	VoiceSettings elevenLabsVoiceOpts `json:"voice_settings"`
}

type elevenLabsVoiceOpts struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Speed           float64 `json:"speed,omitempty"`
}

func (p *ElevenLabsProvider) Name() string   { return elevenLabsName }
func (p *ElevenLabsProvider) Format() string { return "mp3" }

func (p *ElevenLabsProvider) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	if strings.TrimSpace(p.APIKey) == "" {
		return nil, &apierr.Error{Provider: elevenLabsName, Kind: apierr.KindAuth, Message: "api key is required"}
	}
	if strings.TrimSpace(req.Voice) == "" {
		return nil, apierr.Validation(elevenLabsName, "voice is required")
	}
	model := req.Model
	if model == "" {
		model = p.Model
	}
	b, err := json.Marshal(elevenLabsReq{
		Text:    req.Text,
		ModelID: model,
		VoiceSettings: elevenLabsVoiceOpts{
			Stability:       p.Stability,
			SimilarityBoost: p.Similarity,
			Speed:           req.Speed,
		},
	})
	if err != nil {
		return nil, apierr.Validation(elevenLabsName, err.Error())
	}

	endpoint := p.BaseURL + "/text-to-speech/" + url.PathEscape(req.Voice) + "?output_format=mp3_44100_128"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return nil, apierr.Validation(elevenLabsName, err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/mpeg")
	httpReq.Header.Set("xi-api-key", p.APIKey)

	resp, err := p.Client.Do(httpReq)
	if err != nil {
		return nil, apierr.FromTransport(elevenLabsName, err)
	}
	return readAudio(elevenLabsName, resp)
}
