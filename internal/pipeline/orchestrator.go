// Package pipeline drives a generation job through its stages: source
// loading, optional search, script drafting, synthesis, merge, optional
// summary and publication.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/suPer8Hu/ai-podcaster/internal/ai"
	"github.com/suPer8Hu/ai-podcaster/internal/apierr"
	"github.com/suPer8Hu/ai-podcaster/internal/articles"
	"github.com/suPer8Hu/ai-podcaster/internal/audio"
	"github.com/suPer8Hu/ai-podcaster/internal/common"
	"github.com/suPer8Hu/ai-podcaster/internal/podcast"
	"github.com/suPer8Hu/ai-podcaster/internal/publish"
	"github.com/suPer8Hu/ai-podcaster/internal/script"
	"github.com/suPer8Hu/ai-podcaster/internal/search"
	"github.com/suPer8Hu/ai-podcaster/internal/tts"
)

const instrumentation = "github.com/suPer8Hu/ai-podcaster/internal/pipeline"

// StagePublishing labels publication failures in the error log. It is not
// a persisted status.
const StagePublishing podcast.Status = "publishing"

type ArticleSource interface {
	Get(ctx context.Context, id uint64) (*articles.Article, error)
}

type Searcher interface {
	Search(ctx context.Context, queries []string) ([]search.Result, error)
}

type Publisher interface {
	Publish(ctx context.Context, item publish.Item) (uint64, error)
}

type LLMs interface {
	Get(name string) (ai.Provider, error)
}

type Voices interface {
	Get(name string) (tts.Provider, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, p tts.Provider, jobID string, unit script.Unit, v tts.Voice) (audio.Chunk, error)
}

// Locker stops duplicate deliveries of the same job early. acquired is
// false when someone else holds the lock.
type Locker interface {
	Lock(ctx context.Context, name, token string, ttl time.Duration) (release func(context.Context) error, acquired bool, err error)
}

// Deps are the collaborators of an Orchestrator. Searcher, Locker and
// Publisher are optional.
type Deps struct {
	Jobs        *podcast.Repo
	Articles    ArticleSource
	Searcher    Searcher
	LLMs        LLMs
	Voices      Voices
	Synthesizer Synthesizer
	Workspace   *audio.Workspace
	Merger      audio.Merger
	Publisher   Publisher
	Locker      Locker
}

type Options struct {
	// SynthesisConcurrency bounds parallel synthesis calls per job.
	SynthesisConcurrency int
	LockTTL              time.Duration
	SummaryMaxTokens     int
}

type Orchestrator struct {
	deps   Deps
	opts   Options
	logger *log.Logger

	tracer     trace.Tracer
	jobsTotal  metric.Int64Counter
	stageTimer metric.Float64Histogram
}

func New(deps Deps, opts Options, logger *log.Logger) *Orchestrator {
	if opts.SynthesisConcurrency <= 0 {
		opts.SynthesisConcurrency = 1
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 30 * time.Minute
	}
	if opts.SummaryMaxTokens <= 0 {
		opts.SummaryMaxTokens = 300
	}
	o := &Orchestrator{
		deps:   deps,
		opts:   opts,
		logger: logger.With("component", "pipeline"),
		tracer: otel.Tracer(instrumentation),
	}

	meter := otel.Meter(instrumentation)
	var err error
	if o.jobsTotal, err = meter.Int64Counter("podcast_jobs_total",
		metric.WithDescription("Finished generation jobs by final status")); err != nil {
		o.logger.Warn("failed to create metric", "error", err)
	}
	if o.stageTimer, err = meter.Float64Histogram("podcast_stage_duration_seconds",
		metric.WithDescription("Time spent per pipeline stage"), metric.WithUnit("s")); err != nil {
		o.logger.Warn("failed to create metric", "error", err)
	}
	return o
}

// run holds the state of one job execution.
type run struct {
	job     *podcast.GenerationJob
	status  podcast.Status
	title   string
	body    string
	context []search.Result
	script  script.Script
	chunks  []audio.Chunk
	final   audio.FileRef
	format  string
	summary string
	episode uint64
}

// Run executes one pending job to a terminal status. It returns nil when
// the job completed or was not runnable here (already claimed, not
// pending), a *StageError when the job failed and that was recorded, and
// any other error when the job store itself could not be used.
func (o *Orchestrator) Run(ctx context.Context, jobID string) (err error) {
	if o.deps.Locker != nil {
		token, _ := common.NewULID()
		release, acquired, lerr := o.deps.Locker.Lock(ctx, "job:"+jobID, token, o.opts.LockTTL)
		switch {
		case lerr != nil:
			o.logger.Warn("job lock unavailable, relying on status claim", "job", jobID, "error", lerr)
		case !acquired:
			o.logger.Info("job locked elsewhere, skipping", "job", jobID)
			return nil
		default:
			defer func() {
				if rerr := release(context.WithoutCancel(ctx)); rerr != nil {
					o.logger.Warn("release job lock", "job", jobID, "error", rerr)
				}
			}()
		}
	}

	job, err := o.deps.Jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != podcast.StatusPending {
		o.logger.Info("job not pending, skipping", "job", jobID, "status", job.Status)
		return nil
	}
	if err := o.deps.Jobs.Transition(ctx, jobID, podcast.StatusPending, podcast.StatusProcessing, nil); err != nil {
		if errors.Is(err, podcast.ErrInvalidTransition) {
			o.logger.Info("job claimed by another worker", "job", jobID)
			return nil
		}
		return err
	}

	ctx, span := o.tracer.Start(ctx, "podcast.job", trace.WithAttributes(attribute.String("job.id", jobID)))
	defer span.End()

	r := &run{job: job, status: podcast.StatusProcessing}
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			o.logger.Error("pipeline panic", "job", jobID, "stage", r.status, "panic", p, "stack", string(debug.Stack()))
			err = o.failJob(ctx, r, fail(r.status, fmt.Errorf("internal error: %v", p)))
		}
		final := podcast.StatusCompleted
		if err != nil {
			final = podcast.StatusFailed
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		if o.jobsTotal != nil {
			o.jobsTotal.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(attribute.String("status", string(final))))
		}
		o.logger.Info("job finished", "job", jobID, "status", final, "cost", time.Since(start).Truncate(time.Millisecond))
	}()

	if se := o.execute(ctx, r); se != nil {
		return o.failJob(ctx, r, se)
	}
	return nil
}

func (o *Orchestrator) execute(ctx context.Context, r *run) *StageError {
	s := r.job.Settings
	steps := []struct {
		stage podcast.Status
		skip  bool
		fn    func(context.Context, *run) *StageError
	}{
		{podcast.StatusProcessing, false, o.loadSource},
		{podcast.StatusSearching, !s.SearchEnabled || o.deps.Searcher == nil, o.enrich},
		{podcast.StatusGeneratingScript, false, o.draftScript},
		{podcast.StatusGeneratingAudio, false, o.synthesize},
		{podcast.StatusMergingAudio, false, o.merge},
		{podcast.StatusGeneratingSummary, !s.SummaryEnabled, o.summarize},
	}
	for _, step := range steps {
		if step.skip {
			continue
		}
		if se := o.runStage(ctx, r, step.stage, step.fn); se != nil {
			return se
		}
	}
	if se := o.publish(ctx, r); se != nil {
		return se
	}
	return o.advance(ctx, r, podcast.StatusCompleted, map[string]any{
		"final_audio": podcast.AudioRef(r.final),
		"summary":     r.summary,
		"episode_id":  nullableID(r.episode),
	})
}

// runStage persists the stage's status (carrying the previous stage's
// results) and then runs it.
func (o *Orchestrator) runStage(ctx context.Context, r *run, stage podcast.Status, fn func(context.Context, *run) *StageError) *StageError {
	if r.status != stage {
		if se := o.advance(ctx, r, stage, o.carry(r, stage)); se != nil {
			return se
		}
	}

	ctx, span := o.tracer.Start(ctx, "podcast.stage."+string(stage))
	defer span.End()
	start := time.Now()
	se := fn(ctx, r)
	cost := time.Since(start)
	if o.stageTimer != nil {
		o.stageTimer.Record(context.WithoutCancel(ctx), cost.Seconds(), metric.WithAttributes(attribute.String("stage", string(stage))))
	}
	if se != nil {
		span.RecordError(se)
		span.SetStatus(codes.Error, se.Error())
		return se
	}
	o.logger.Debug("stage done", "job", r.job.ID, "stage", stage, "cost", cost.Truncate(time.Millisecond))
	return nil
}

// carry returns the fields written together with the move into stage.
func (o *Orchestrator) carry(r *run, stage podcast.Status) map[string]any {
	switch stage {
	case podcast.StatusGeneratingAudio:
		return map[string]any{"script_data": podcast.ScriptData(r.script)}
	case podcast.StatusMergingAudio:
		return map[string]any{"audio_chunks": podcast.AudioChunks(r.chunks)}
	}
	return nil
}

func (o *Orchestrator) advance(ctx context.Context, r *run, to podcast.Status, fields map[string]any) *StageError {
	if err := o.deps.Jobs.Transition(ctx, r.job.ID, r.status, to, fields); err != nil {
		return fail(to, fmt.Errorf("persist status: %w", err))
	}
	r.status = to
	return nil
}

// failJob records se on the job. Once synthesis has started the job's
// files are removed, and the stored references to them with it, so a
// failure at any later stage (publishing included) leaves no orphans.
func (o *Orchestrator) failJob(ctx context.Context, r *run, se *StageError) error {
	ctx = context.WithoutCancel(ctx)
	o.logger.Error("job failed", "job", r.job.ID, "stage", se.Stage, "kind", apierr.KindOf(se.Err), "error", se.Err)
	markFailed := o.deps.Jobs.MarkFailed
	if hasAudio(r.status) {
		if err := o.deps.Workspace.RemoveJob(r.job.ID); err != nil {
			o.logger.Warn("cleanup after failure", "job", r.job.ID, "error", err)
		}
		markFailed = o.deps.Jobs.MarkFailedDiscardingAudio
	}
	if err := markFailed(ctx, r.job.ID, se.Error()); err != nil {
		return fmt.Errorf("record failure of job %s: %w", r.job.ID, err)
	}
	return se
}

// hasAudio reports whether a job in status may have files in the workspace.
func hasAudio(status podcast.Status) bool {
	switch status {
	case podcast.StatusGeneratingAudio, podcast.StatusMergingAudio, podcast.StatusGeneratingSummary:
		return true
	}
	return false
}

func (o *Orchestrator) loadSource(ctx context.Context, r *run) *StageError {
	j := r.job
	r.title, r.body = j.Title, j.SourceText
	if j.SourceArticleID != nil {
		if o.deps.Articles == nil {
			return fail(r.status, apierr.Validation("articles", "no article source configured"))
		}
		a, err := o.deps.Articles.Get(ctx, *j.SourceArticleID)
		if err != nil {
			if errors.Is(err, articles.ErrNotFound) {
				return fail(r.status, apierr.Validation("articles", fmt.Sprintf("article %d not found", *j.SourceArticleID)))
			}
			return fail(r.status, err)
		}
		if r.title == "" {
			r.title = a.Title
		}
		r.body = a.Body
	}
	if strings.TrimSpace(r.body) == "" {
		return fail(r.status, apierr.Validation("articles", "source article text is empty"))
	}
	if r.title == "" {
		r.title = "Untitled episode"
	}
	return nil
}

// enrich never fails the job; without results the script is drafted from
// the article alone.
func (o *Orchestrator) enrich(ctx context.Context, r *run) *StageError {
	results, err := o.deps.Searcher.Search(ctx, search.QueriesFor(r.title))
	if err != nil {
		o.logger.Warn("search enrichment skipped", "job", r.job.ID, "error", err)
		return nil
	}
	r.context = results
	return nil
}

func (o *Orchestrator) draftScript(ctx context.Context, r *run) *StageError {
	s := r.job.Settings
	llm, err := o.deps.LLMs.Get(s.LLMProvider)
	if err != nil {
		return fail(r.status, err)
	}
	prompt, err := ScriptPrompt(r.title, r.body, s, r.context)
	if err != nil {
		return fail(r.status, fmt.Errorf("render prompt: %w", err))
	}
	resp, err := llm.Complete(ctx, ai.Request{System: systemPrompt, Prompt: prompt, Model: s.LLMModel, MaxTokens: s.MaxTokens})
	if err != nil {
		return fail(r.status, err)
	}
	parsed, err := script.Parse(resp.Text)
	if err != nil {
		return fail(r.status, err)
	}
	r.script = parsed
	o.logger.Info("script drafted", "job", r.job.ID, "turns", len(parsed.Turns), "words", parsed.WordCount)
	return nil
}

func (o *Orchestrator) synthesize(ctx context.Context, r *run) *StageError {
	s := r.job.Settings
	voice, err := o.deps.Voices.Get(s.TTSProvider)
	if err != nil {
		return fail(r.status, err)
	}
	r.format = voice.Format()
	units := script.Batch(r.script.Turns, s.BatchOptions())
	if len(units) == 0 {
		return fail(r.status, script.ErrScriptEmpty)
	}

	// Chunks land by unit position, so merge order never depends on which
	// call finished first.
	chunks := make([]audio.Chunk, len(units))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.SynthesisConcurrency)
	for i, u := range units {
		g.Go(func() (err error) {
			// errgroup does not carry panics back to Wait.
			defer func() {
				if p := recover(); p != nil {
					o.logger.Error("synthesis panic", "job", r.job.ID, "unit", u.Index, "panic", p, "stack", string(debug.Stack()))
					err = fmt.Errorf("unit %d: internal error: %v", u.Index, p)
				}
			}()
			c, err := o.deps.Synthesizer.Synthesize(gctx, voice, r.job.ID, u, tts.Voice{Model: s.TTSModel, Speed: s.TTSSpeed})
			if err != nil {
				return fmt.Errorf("unit %d: %w", u.Index, err)
			}
			chunks[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fail(r.status, err)
	}
	r.chunks = chunks
	return nil
}

func (o *Orchestrator) merge(ctx context.Context, r *run) *StageError {
	dest := o.deps.Workspace.FinalPath(r.job.ID, r.format)
	res, err := o.deps.Merger.Merge(ctx, audio.ChunkPaths(r.chunks), dest)
	if err != nil {
		return fail(r.status, err)
	}
	for _, m := range res.Missing {
		o.logger.Warn("chunk missing from merge", "job", r.job.ID, "unit", m.Index, "path", m.Path, "error", m.Err)
	}
	r.final = audio.FileRef{Path: res.Path, URL: o.deps.Workspace.URL(res.Path), Size: res.Size}
	o.logger.Info("audio merged", "job", r.job.ID, "chunks", len(r.chunks), "bytes", humanize.Bytes(uint64(res.Size)))
	return nil
}

// summarize degrades to no summary: the audio is already finished.
func (o *Orchestrator) summarize(ctx context.Context, r *run) *StageError {
	llm, err := o.deps.LLMs.Get(r.job.Settings.LLMProvider)
	if err == nil {
		var prompt string
		prompt, err = SummaryPrompt(r.title, r.script.Raw)
		if err == nil {
			var resp ai.Response
			resp, err = llm.Complete(ctx, ai.Request{Prompt: prompt, Model: r.job.Settings.LLMModel, MaxTokens: o.opts.SummaryMaxTokens})
			r.summary = strings.TrimSpace(resp.Text)
		}
	}
	if err != nil {
		o.logger.Warn("summary skipped", "job", r.job.ID, "error", err)
		r.summary = ""
	}
	return nil
}

func (o *Orchestrator) publish(ctx context.Context, r *run) *StageError {
	if o.deps.Publisher == nil {
		return nil
	}
	id, err := o.deps.Publisher.Publish(ctx, publish.Item{
		JobID:           r.job.ID,
		SourceArticleID: r.job.SourceArticleID,
		Title:           r.title,
		AudioURL:        r.final.URL,
		AudioSize:       r.final.Size,
		DurationMinutes: r.script.EstimatedMinutes,
		Summary:         r.summary,
		Transcript:      r.script.Raw,
	})
	if err != nil {
		return fail(StagePublishing, err)
	}
	r.episode = id
	return nil
}

func nullableID(id uint64) any {
	if id == 0 {
		return nil
	}
	return id
}
