// Package search fetches web context used to enrich a script prompt.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/suPer8Hu/ai-podcaster/internal/apierr"
)

const providerName = "search"

type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"content"`
}

type Client struct {
	BaseURL    string
	APIKey     string
	MaxResults int
	HTTP       *http.Client
}

func NewClient(baseURL, apiKey string, maxResults int, timeout time.Duration) *Client {
	if maxResults <= 0 {
		maxResults = 5
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		MaxResults: maxResults,
		HTTP:       &http.Client{Timeout: timeout},
	}
}

type searchReq struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type searchResp struct {
	Results []Result `json:"results"`
}

// Search runs each query in order and returns the combined results with
// duplicate URLs removed. The first failing query aborts the call.
func (c *Client) Search(ctx context.Context, queries []string) ([]Result, error) {
	var out []Result
	seen := make(map[string]bool)
	for _, q := range queries {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		results, err := c.query(ctx, q)
		if err != nil {
			return out, err
		}
		for _, r := range results {
			if r.URL != "" && seen[r.URL] {
				continue
			}
			seen[r.URL] = true
			out = append(out, r)
		}
	}
	return out, nil
}

func (c *Client) query(ctx context.Context, q string) ([]Result, error) {
	b, err := json.Marshal(searchReq{Query: q, MaxResults: c.MaxResults})
	if err != nil {
		return nil, apierr.Validation(providerName, err.Error())
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/search", bytes.NewReader(b))
	if err != nil {
		return nil, apierr.Validation(providerName, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, apierr.FromTransport(providerName, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		return nil, apierr.FromStatus(providerName, resp.StatusCode, string(excerpt))
	}
	var decoded searchResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, apierr.Malformed(providerName, err)
	}
	return decoded.Results, nil
}

// QueriesFor derives search queries from an article title.
func QueriesFor(title string) []string {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil
	}
	return []string{title, title + " latest news"}
}
