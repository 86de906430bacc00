package podcast

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/suPer8Hu/ai-podcaster/internal/common"
)

// Enqueuer hands a job id to whatever runs the pipeline.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobID string) error
}

// FileRemover deletes a job's working files.
type FileRemover interface {
	RemoveJob(jobID string) error
}

var ErrInvalidInput = errors.New("invalid input")

type ServiceOptions struct {
	Defaults Settings
	// CheckSettings is an extra check run after Validate, e.g. that the
	// named providers are configured.
	CheckSettings func(Settings) error
}

type Service struct {
	repo   *Repo
	queue  Enqueuer
	files  FileRemover
	opts   ServiceOptions
	logger *log.Logger
}

func NewService(repo *Repo, queue Enqueuer, files FileRemover, opts ServiceOptions, logger *log.Logger) *Service {
	if opts.Defaults.Version == 0 {
		opts.Defaults = DefaultSettings()
	}
	return &Service{
		repo:   repo,
		queue:  queue,
		files:  files,
		opts:   opts,
		logger: logger.With("component", "jobs"),
	}
}

type SubmitInput struct {
	ArticleID *uint64
	Title     string
	Text      string
	// Settings nil means the configured defaults as they are.
	Settings       *Settings
	IdempotencyKey string
}

// Defaults returns a copy of the configured job settings. Request bodies
// are decoded over it so omitted fields keep their configured values.
func (s *Service) Defaults() Settings {
	return s.opts.Defaults.Clone()
}

// ResolveSettings fills in from the configured defaults and validates it.
func (s *Service) ResolveSettings(in *Settings) (Settings, error) {
	out := s.Defaults()
	if in != nil {
		out = in.Clone().WithDefaults(s.opts.Defaults)
	}
	if err := out.Validate(); err != nil {
		return out, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if s.opts.CheckSettings != nil {
		if err := s.opts.CheckSettings(out); err != nil {
			return out, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	}
	return out, nil
}

// Submit stores a new pending job and enqueues it. With an idempotency key
// that was already used, the earlier job is returned and nothing is
// enqueued. An enqueue failure leaves the job pending; Retry re-enqueues it.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*GenerationJob, bool, error) {
	if in.ArticleID == nil && strings.TrimSpace(in.Text) == "" {
		return nil, false, fmt.Errorf("%w: article id or text is required", ErrInvalidInput)
	}
	settings, err := s.ResolveSettings(in.Settings)
	if err != nil {
		return nil, false, err
	}

	id, err := common.NewULID()
	if err != nil {
		return nil, false, err
	}
	job := &GenerationJob{
		ID:              id,
		SourceArticleID: in.ArticleID,
		Title:           strings.TrimSpace(in.Title),
		SourceText:      in.Text,
		Status:          StatusPending,
		Settings:        settings,
	}
	if key := strings.TrimSpace(in.IdempotencyKey); key != "" {
		job.IdempotencyKey = &key
	}

	job, created, err := s.repo.CreateOrGetExisting(ctx, job)
	if err != nil {
		return nil, false, err
	}
	if !created {
		return job, false, nil
	}
	s.logger.Info("job created", "job", job.ID, "article", job.SourceArticleID)
	if err := s.queue.Enqueue(ctx, job.ID); err != nil {
		return job, true, fmt.Errorf("enqueue job %s: %w", job.ID, err)
	}
	return job, true, nil
}

// Retry revives a failed job and enqueues it again. A pending job is only
// re-enqueued. Any other status is ErrInvalidTransition.
func (s *Service) Retry(ctx context.Context, id string) (*GenerationJob, error) {
	job, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch job.Status {
	case StatusFailed:
		if err := s.repo.ResetForRetry(ctx, id); err != nil {
			return nil, err
		}
		if s.files != nil {
			if err := s.files.RemoveJob(id); err != nil {
				s.logger.Warn("could not remove previous attempt files", "job", id, "error", err)
			}
		}
		s.logger.Info("job reset for retry", "job", id, "attempt", job.Attempts+1)
	case StatusPending:
	default:
		return job, fmt.Errorf("%w: cannot retry a %s job", ErrInvalidTransition, job.Status)
	}

	if err := s.queue.Enqueue(ctx, id); err != nil {
		return nil, fmt.Errorf("enqueue job %s: %w", id, err)
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Get(ctx context.Context, id string) (*GenerationJob, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]GenerationJob, error) {
	return s.repo.List(ctx, f)
}

// Delete removes the job row and every file it wrote.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if s.files != nil {
		if err := s.files.RemoveJob(id); err != nil {
			return fmt.Errorf("remove files for job %s: %w", id, err)
		}
	}
	s.logger.Info("job deleted", "job", id)
	return nil
}
