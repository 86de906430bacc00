package ai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/suPer8Hu/ai-podcaster/internal/apierr"
)

const openRouterName = "openrouter"

type OpenRouterProvider struct {
	BaseURL string
	APIKey  string
	Model   string
	SiteURL string
	AppName string
	Client  *http.Client
}

type openRouterChatReq struct {
	Model     string    `json:"model"`
	Messages  []message `json:"messages"`
	MaxTokens int       `json:"max_tokens,omitempty"`
}

type openRouterChatResp struct {
	Model   string `json:"model"`
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error,omitempty"`
}

func NewOpenRouterProvider(baseURL, apiKey, model, siteURL, appName string, timeout time.Duration) *OpenRouterProvider {
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	return &OpenRouterProvider{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Model:   model,
		SiteURL: siteURL,
		AppName: appName,
		Client:  &http.Client{Timeout: timeout},
	}
}

func (p *OpenRouterProvider) Name() string { return openRouterName }

func (p *OpenRouterProvider) Complete(ctx context.Context, req Request) (Response, error) {
	if strings.TrimSpace(p.APIKey) == "" {
		return Response{}, &apierr.Error{Provider: openRouterName, Kind: apierr.KindAuth, Message: "api key is required"}
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = strings.TrimSpace(p.Model)
	}
	if model == "" {
		return Response{}, apierr.Validation(openRouterName, "model is required")
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return Response{}, apierr.Validation(openRouterName, "prompt is required")
	}

	headers := map[string]string{"Authorization": "Bearer " + p.APIKey}
	if p.SiteURL != "" {
		headers["HTTP-Referer"] = p.SiteURL
	}
	if p.AppName != "" {
		headers["X-Title"] = p.AppName
	}

	body := openRouterChatReq{Model: model, Messages: messagesFor(req), MaxTokens: req.MaxTokens}
	var decoded openRouterChatResp
	url := fmt.Sprintf("%s/chat/completions", p.BaseURL)
	if err := postJSON(ctx, p.Client, openRouterName, url, headers, body, &decoded); err != nil {
		return Response{}, err
	}
	// OpenRouter sometimes reports upstream failures inside a 200 body.
	if decoded.Error != nil && decoded.Error.Message != "" {
		if decoded.Error.Code >= 400 {
			return Response{}, apierr.FromStatus(openRouterName, decoded.Error.Code, decoded.Error.Message)
		}
		return Response{}, &apierr.Error{Provider: openRouterName, Kind: apierr.KindMalformed, Message: decoded.Error.Message}
	}
	if len(decoded.Choices) == 0 || strings.TrimSpace(decoded.Choices[0].Message.Content) == "" {
		return Response{}, apierr.EmptyResponse(openRouterName)
	}
	if decoded.Model != "" {
		model = decoded.Model
	}
	return Response{Text: strings.TrimSpace(decoded.Choices[0].Message.Content), Model: model}, nil
}
