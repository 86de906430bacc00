package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Queue.Driver != "memory" || cfg.Media.MergeStrategy != "concat" {
		t.Fatalf("queue=%q merge=%q", cfg.Queue.Driver, cfg.Media.MergeStrategy)
	}
	if cfg.Defaults.Version != 1 || len(cfg.Defaults.Voices) != 2 {
		t.Fatalf("defaults = %+v", cfg.Defaults)
	}
}

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeYAML(t, `
http:
  addr: ":9000"
tts:
  concurrency: 3
  timeout: 45s
defaults:
  tts_provider: elevenlabs
  target_minutes: 8
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HTTP.Addr != ":9000" || cfg.TTS.Concurrency != 3 || cfg.TTS.Timeout != 45*time.Second {
		t.Fatalf("yaml not applied: %+v %+v", cfg.HTTP, cfg.TTS)
	}
	if cfg.Defaults.TTSProvider != "elevenlabs" || cfg.Defaults.TargetMinutes != 8 {
		t.Fatalf("defaults = %+v", cfg.Defaults)
	}
	if cfg.Defaults.LLMProvider != "ollama" {
		t.Fatalf("unset default lost: %q", cfg.Defaults.LLMProvider)
	}
	if cfg.LLM.Ollama.Model != "llama3:latest" {
		t.Fatalf("unset section lost: %q", cfg.LLM.Ollama.Model)
	}
}

func TestEnvOverridesYAML(t *testing.T) {
	path := writeYAML(t, "http:\n  addr: \":9000\"\nqueue:\n  workers: 4\n")
	t.Setenv("PODCAST_HTTP_ADDR", ":7000")
	t.Setenv("PODCAST_DB_DSN", "sqlite:/tmp/x.db")
	t.Setenv("PODCAST_TTS_OPENAI_API_KEY", "sk-test")
	t.Setenv("PODCAST_NATS_SERVERS", "nats://one:4222,nats://two:4222")
	t.Setenv("PODCAST_SCHEDULER_INTERVAL", "15m")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HTTP.Addr != ":7000" {
		t.Fatalf("addr = %q, want env value", cfg.HTTP.Addr)
	}
	if cfg.Queue.Workers != 4 {
		t.Fatalf("workers = %d, want yaml value", cfg.Queue.Workers)
	}
	if cfg.DB.DSN != "sqlite:/tmp/x.db" || cfg.TTS.OpenAI.APIKey != "sk-test" {
		t.Fatalf("dsn=%q key=%q", cfg.DB.DSN, cfg.TTS.OpenAI.APIKey)
	}
	if len(cfg.NATS.Servers) != 2 || cfg.Scheduler.Interval != 15*time.Minute {
		t.Fatalf("servers=%v interval=%v", cfg.NATS.Servers, cfg.Scheduler.Interval)
	}
}

func TestValidateRejects(t *testing.T) {
	path := writeYAML(t, "queue:\n  driver: kafka\nmedia:\n  merge_strategy: sox\n")
	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() accepted invalid config")
	}
	for _, want := range []string{"queue.driver", "media.merge_strategy"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %s", err, want)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("Load() of missing file succeeded")
	}
}
