package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/suPer8Hu/ai-podcaster/internal/apierr"
)

func TestOllamaComplete(t *testing.T) {
	var got ollamaChatReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"model":"llama3","message":{"role":"assistant","content":" Alex: Hi \n"}}`))
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "llama3", time.Second)
	resp, err := p.Complete(context.Background(), Request{System: "be brief", Prompt: "write", MaxTokens: 64})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Text != "Alex: Hi" {
		t.Fatalf("text = %q", resp.Text)
	}
	if got.Stream || len(got.Messages) != 2 || got.Messages[0].Role != "system" {
		t.Fatalf("request = %+v", got)
	}
	if got.Options == nil || got.Options.NumPredict != 64 {
		t.Fatalf("options = %+v", got.Options)
	}
}

func TestOpenRouterComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer k" {
			t.Errorf("authorization = %q", r.Header.Get("Authorization"))
		}
		if r.Header.Get("X-Title") != "podcaster" {
			t.Errorf("x-title = %q", r.Header.Get("X-Title"))
		}
		_, _ = w.Write([]byte(`{"model":"m/x","choices":[{"message":{"role":"assistant","content":"Sam: yo"}}]}`))
	}))
	defer srv.Close()

	p := NewOpenRouterProvider(srv.URL, "k", "m/x", "", "podcaster", time.Second)
	resp, err := p.Complete(context.Background(), Request{Prompt: "write"})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Text != "Sam: yo" || resp.Model != "m/x" {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestProviderErrorKinds(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   apierr.Kind
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":"bad key"}`, apierr.KindAuth},
		{"rate limited", http.StatusTooManyRequests, "", apierr.KindRateLimited},
		{"server error", http.StatusBadGateway, "upstream", apierr.KindTransient},
		{"bad request", http.StatusBadRequest, "nope", apierr.KindMalformed},
		{"empty body", http.StatusOK, "", apierr.KindEmptyResponse},
		{"garbage", http.StatusOK, "not json", apierr.KindMalformed},
		{"no choices", http.StatusOK, `{"choices":[]}`, apierr.KindEmptyResponse},
		{"embedded error", http.StatusOK, `{"error":{"message":"slow down","code":429}}`, apierr.KindRateLimited},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			p := NewOpenRouterProvider(srv.URL, "k", "m", "", "", time.Second)
			_, err := p.Complete(context.Background(), Request{Prompt: "x"})
			if got := apierr.KindOf(err); got != tc.want {
				t.Fatalf("kind = %s, want %s (err %v)", got, tc.want, err)
			}
		})
	}
}

func TestProviderTimeoutIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "m", 20*time.Millisecond)
	_, err := p.Complete(context.Background(), Request{Prompt: "x"})
	if apierr.KindOf(err) != apierr.KindTransient {
		t.Fatalf("err = %v, want transient", err)
	}
}

func TestOpenRouterRequiresKey(t *testing.T) {
	p := NewOpenRouterProvider("http://127.0.0.1:1", "", "m", "", "", time.Second)
	_, err := p.Complete(context.Background(), Request{Prompt: "x"})
	if apierr.KindOf(err) != apierr.KindAuth {
		t.Fatalf("err = %v, want auth", err)
	}
}

func TestRegistryCachesInstances(t *testing.T) {
	r := NewRegistry()
	calls := 0
	r.Register(" Ollama ", func() (Provider, error) {
		calls++
		return NewOllamaProvider("", "", 0), nil
	})
	a, err := r.Get("ollama")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	b, _ := r.Get("OLLAMA")
	if a != b || calls != 1 {
		t.Fatalf("factory called %d times", calls)
	}
	if _, err := r.Get("missing"); err == nil {
		t.Fatal("expected unknown provider error")
	}
	if names := r.Names(); len(names) != 1 || names[0] != "ollama" {
		t.Fatalf("names = %v", names)
	}
}
