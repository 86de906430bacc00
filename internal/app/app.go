// Package app wires configuration into the running components shared by
// the server and worker binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"slices"
	"strings"

	"github.com/charmbracelet/log"
	"gorm.io/gorm"

	"github.com/suPer8Hu/ai-podcaster/internal/ai"
	"github.com/suPer8Hu/ai-podcaster/internal/articles"
	"github.com/suPer8Hu/ai-podcaster/internal/audio"
	"github.com/suPer8Hu/ai-podcaster/internal/config"
	"github.com/suPer8Hu/ai-podcaster/internal/db"
	"github.com/suPer8Hu/ai-podcaster/internal/events"
	"github.com/suPer8Hu/ai-podcaster/internal/pipeline"
	"github.com/suPer8Hu/ai-podcaster/internal/podcast"
	"github.com/suPer8Hu/ai-podcaster/internal/publish"
	"github.com/suPer8Hu/ai-podcaster/internal/search"
	"github.com/suPer8Hu/ai-podcaster/internal/store/redisstore"
	"github.com/suPer8Hu/ai-podcaster/internal/telemetry"
	"github.com/suPer8Hu/ai-podcaster/internal/tts"
)

// NewLogger builds the process logger from the log section.
func NewLogger(cfg config.LogConfig, w io.Writer) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := log.Options{ReportTimestamp: true, Formatter: log.TextFormatter}
	if strings.EqualFold(cfg.Format, "json") {
		opts.Formatter = log.JSONFormatter
	}
	if lvl, err := log.ParseLevel(cfg.Level); err == nil {
		opts.Level = lvl
	}
	return log.NewWithOptions(w, opts)
}

// App holds everything a binary needs to run jobs.
type App struct {
	Config   config.Config
	Logger   *log.Logger
	DB       *gorm.DB
	Bus      *events.Bus
	Jobs     *podcast.Repo
	Articles *articles.Repo
	Media    *audio.Workspace
	LLMs     *ai.Registry
	Voices   *tts.Registry
	Pipeline *pipeline.Orchestrator
	Metrics  http.Handler

	closers []func(context.Context) error
}

// New connects storage, providers and telemetry. Close releases them.
func New(ctx context.Context, cfg config.Config, logger *log.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close(context.WithoutCancel(ctx))
		}
	}()

	shutdown, metrics, err := telemetry.Setup(ctx, telemetry.Options{
		ServiceName:  cfg.Telemetry.ServiceName,
		Environment:  cfg.Telemetry.Environment,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: cfg.Telemetry.OTLPInsecure,
		StdoutTraces: cfg.Telemetry.StdoutTraces,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	a.closers = append(a.closers, shutdown)
	a.Metrics = metrics

	gdb, err := db.Connect(db.Options{
		DSN:          cfg.DB.DSN,
		MaxOpenConns: cfg.DB.MaxOpenConns,
		MaxIdleConns: cfg.DB.MaxIdleConns,
		LogSQL:       cfg.DB.LogSQL,
	})
	if err != nil {
		return nil, fmt.Errorf("db: %w", err)
	}
	a.DB = gdb
	if cfg.DB.AutoMigrate {
		if err := db.Migrate(gdb, &podcast.GenerationJob{}, &articles.Article{}, &publish.Episode{}); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	var forwarders []events.Forwarder
	if cfg.NATS.Enabled {
		nf, err := events.ConnectNATS(events.NATSOptions{
			Servers:        cfg.NATS.Servers,
			Token:          cfg.NATS.Token,
			ConnectTimeout: cfg.NATS.ConnectTimeout,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("nats: %w", err)
		}
		forwarders = append(forwarders, nf)
		a.closers = append(a.closers, func(context.Context) error { nf.Close(); return nil })
	}
	a.Bus = events.NewBus(cfg.Events.History, logger, forwarders...)
	a.Jobs = podcast.NewRepo(gdb, a.Bus)
	a.Articles = articles.NewRepo(gdb)

	a.Media, err = audio.NewWorkspace(cfg.Media.Dir, cfg.Media.BaseURL)
	if err != nil {
		return nil, err
	}

	a.LLMs = newLLMRegistry(cfg.LLM)
	a.Voices, err = newVoiceRegistry(cfg.TTS)
	if err != nil {
		return nil, err
	}

	var merger audio.Merger = audio.NewConcatMerger(cfg.Media.BufferSize, logger)
	if cfg.Media.MergeStrategy == "ffmpeg" {
		merger = audio.NewFFmpegMerger(cfg.Media.FFmpegPath, cfg.Media.Bitrate, logger)
	}

	deps := pipeline.Deps{
		Jobs:     a.Jobs,
		Articles: a.Articles,
		LLMs:     a.LLMs,
		Voices:   a.Voices,
		Synthesizer: tts.NewClient(a.Media, tts.ClientOptions{
			RequestsPerMinute: cfg.TTS.RequestsPerMinute,
			Timeout:           cfg.TTS.Timeout,
		}, logger),
		Workspace: a.Media,
		Merger:    merger,
		Publisher: publish.NewSink(gdb),
		Locker:    redisstore.NoopLocker{},
	}
	if cfg.Search.Enabled {
		deps.Searcher = search.NewClient(cfg.Search.BaseURL, cfg.Search.APIKey, cfg.Search.MaxResults, cfg.Search.Timeout)
	}
	if cfg.Redis.Enabled {
		rs := redisstore.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err := rs.Ping(ctx); err != nil {
			_ = rs.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		deps.Locker = rs
		a.closers = append(a.closers, func(context.Context) error { return rs.Close() })
	}
	a.Pipeline = pipeline.New(deps, pipeline.Options{
		SynthesisConcurrency: cfg.TTS.Concurrency,
		LockTTL:              cfg.Redis.LockTTL,
		SummaryMaxTokens:     cfg.LLM.SummaryMaxTokens,
	}, logger)

	if err := a.CheckSettings(cfg.Defaults); err != nil {
		return nil, fmt.Errorf("defaults: %w", err)
	}
	ok = true
	return a, nil
}

// CheckSettings rejects settings naming providers this process lacks.
func (a *App) CheckSettings(s podcast.Settings) error {
	var errs []error
	if !slices.Contains(a.LLMs.Names(), s.LLMProvider) {
		errs = append(errs, fmt.Errorf("unknown llm_provider %q (have %s)", s.LLMProvider, strings.Join(a.LLMs.Names(), ", ")))
	}
	if !a.Voices.Has(s.TTSProvider) {
		errs = append(errs, fmt.Errorf("unknown tts_provider %q (have %s)", s.TTSProvider, strings.Join(a.Voices.Names(), ", ")))
	}
	return errors.Join(errs...)
}

// NewService builds the job service on top of queue.
func (a *App) NewService(queue podcast.Enqueuer) *podcast.Service {
	return podcast.NewService(a.Jobs, queue, a.Media, podcast.ServiceOptions{
		Defaults:      a.Config.Defaults,
		CheckSettings: a.CheckSettings,
	}, a.Logger)
}

// Close releases everything New opened, last opened first.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	return errors.Join(errs...)
}

func newLLMRegistry(cfg config.LLMConfig) *ai.Registry {
	reg := ai.NewRegistry()
	reg.Register("ollama", func() (ai.Provider, error) {
		return ai.NewOllamaProvider(cfg.Ollama.BaseURL, cfg.Ollama.Model, cfg.Timeout), nil
	})
	reg.Register("openrouter", func() (ai.Provider, error) {
		o := cfg.OpenRouter
		return ai.NewOpenRouterProvider(o.BaseURL, o.APIKey, o.Model, o.SiteURL, o.AppName, cfg.Timeout), nil
	})
	return reg
}

func newVoiceRegistry(cfg config.TTSConfig) (*tts.Registry, error) {
	reg := tts.NewRegistry()
	reg.Register(tts.NewOpenAIProvider(cfg.OpenAI.BaseURL, cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.Timeout))
	reg.Register(tts.NewElevenLabsProvider(cfg.ElevenLabs.BaseURL, cfg.ElevenLabs.APIKey, cfg.ElevenLabs.Model, cfg.Timeout))
	if strings.TrimSpace(cfg.Exec.Command) != "" {
		p, err := tts.NewExecProvider(cfg.Exec.Command, cfg.Exec.Format)
		if err != nil {
			return nil, fmt.Errorf("tts exec: %w", err)
		}
		reg.Register(p)
	}
	return reg, nil
}

// RequeuePending enqueues jobs left pending by a previous process, oldest
// first. Used with the in-memory queue, which loses its buffer on exit.
func (a *App) RequeuePending(ctx context.Context, q podcast.Enqueuer) (int, error) {
	jobs, err := a.Jobs.List(ctx, podcast.ListFilter{Status: podcast.StatusPending, Limit: 200})
	if err != nil {
		return 0, err
	}
	n := 0
	for i := len(jobs) - 1; i >= 0; i-- {
		if err := q.Enqueue(ctx, jobs[i].ID); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
