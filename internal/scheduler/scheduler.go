// Package scheduler turns newly published articles into generation jobs.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/suPer8Hu/ai-podcaster/internal/articles"
	"github.com/suPer8Hu/ai-podcaster/internal/podcast"
)

type ArticleLister interface {
	ListRecent(ctx context.Context, since time.Time, limit int) ([]articles.Article, error)
}

type JobIndex interface {
	ArticlesWithJobs(ctx context.Context, ids []uint64) (map[uint64]bool, error)
}

type Submitter interface {
	Submit(ctx context.Context, in podcast.SubmitInput) (*podcast.GenerationJob, bool, error)
}

type Options struct {
	Interval time.Duration
	Lookback time.Duration
	Limit    int
}

type Scheduler struct {
	articles ArticleLister
	jobs     JobIndex
	submit   Submitter
	opts     Options
	logger   *log.Logger
	now      func() time.Time
}

func New(a ArticleLister, jobs JobIndex, submit Submitter, opts Options, logger *log.Logger) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = time.Hour
	}
	if opts.Lookback <= 0 {
		opts.Lookback = 48 * time.Hour
	}
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	return &Scheduler{
		articles: a,
		jobs:     jobs,
		submit:   submit,
		opts:     opts,
		logger:   logger.With("component", "scheduler"),
		now:      time.Now,
	}
}

// Run ticks every Interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler started", "interval", s.opts.Interval, "lookback", s.opts.Lookback)
	t := time.NewTicker(s.opts.Interval)
	defer t.Stop()
	for {
		if _, err := s.Tick(ctx); err != nil {
			s.logger.Warn("scheduler tick", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// Tick creates a job for the newest recent article that has none yet. It
// returns the new job, or nil when there was nothing to do.
func (s *Scheduler) Tick(ctx context.Context) (*podcast.GenerationJob, error) {
	recent, err := s.articles.ListRecent(ctx, s.now().Add(-s.opts.Lookback), s.opts.Limit)
	if err != nil {
		return nil, fmt.Errorf("list recent articles: %w", err)
	}
	if len(recent) == 0 {
		return nil, nil
	}
	ids := make([]uint64, len(recent))
	for i, a := range recent {
		ids[i] = a.ID
	}
	has, err := s.jobs.ArticlesWithJobs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("check existing jobs: %w", err)
	}

	for _, a := range recent {
		if has[a.ID] {
			continue
		}
		id := a.ID
		job, created, err := s.submit.Submit(ctx, podcast.SubmitInput{
			ArticleID: &id,
			Title:     a.Title,
			// Another instance may pick the same article in the same tick.
			IdempotencyKey: fmt.Sprintf("auto:article:%d", a.ID),
		})
		if err != nil {
			return job, fmt.Errorf("submit article %d: %w", a.ID, err)
		}
		if created {
			s.logger.Info("scheduled article", "article", a.ID, "job", job.ID)
		}
		return job, nil
	}
	return nil, nil
}
