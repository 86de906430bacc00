package podcast

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Observer is told about every persisted status change.
type Observer interface {
	JobChanged(ctx context.Context, jobID, status, message string)
}

type Repo struct {
	db        *gorm.DB
	observers []Observer
}

func NewRepo(db *gorm.DB, observers ...Observer) *Repo {
	return &Repo{db: db, observers: observers}
}

func (r *Repo) notify(ctx context.Context, id string, status Status, msg string) {
	for _, o := range r.observers {
		o.JobChanged(ctx, id, string(status), msg)
	}
}

func (r *Repo) Create(ctx context.Context, job *GenerationJob) error {
	if job.Status == "" {
		job.Status = StatusPending
	}
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return err
	}
	r.notify(ctx, job.ID, job.Status, "created")
	return nil
}

// CreateOrGetExisting creates job, or returns the job already stored under
// the same idempotency key. created is false in the latter case.
func (r *Repo) CreateOrGetExisting(ctx context.Context, job *GenerationJob) (*GenerationJob, bool, error) {
	if job.IdempotencyKey == nil || *job.IdempotencyKey == "" {
		job.IdempotencyKey = nil
		if err := r.Create(ctx, job); err != nil {
			return nil, false, err
		}
		return job, true, nil
	}

	err := r.Create(ctx, job)
	if err == nil {
		return job, true, nil
	}

	existing, getErr := r.GetByIdempotencyKey(ctx, *job.IdempotencyKey)
	if getErr == nil {
		return existing, false, nil
	}
	if errors.Is(getErr, ErrJobNotFound) {
		return nil, false, err
	}
	return nil, false, getErr
}

func (r *Repo) Get(ctx context.Context, id string) (*GenerationJob, error) {
	var j GenerationJob
	if err := r.db.WithContext(ctx).First(&j, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return &j, nil
}

func (r *Repo) GetByIdempotencyKey(ctx context.Context, key string) (*GenerationJob, error) {
	var j GenerationJob
	if err := r.db.WithContext(ctx).Where("idempotency_key = ?", key).First(&j).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return &j, nil
}

type ListFilter struct {
	Status Status
	Limit  int
}

// List returns the most recent jobs first.
func (r *Repo) List(ctx context.Context, f ListFilter) ([]GenerationJob, error) {
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := r.db.WithContext(ctx).Order("created_at DESC").Order("id DESC").Limit(limit)
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	var jobs []GenerationJob
	if err := q.Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// Transition moves a job from one status to the next, writing fields in the
// same single-row update. It only succeeds if the row is still in from, so
// two workers can never both advance the same job.
func (r *Repo) Transition(ctx context.Context, id string, from, to Status, fields map[string]any) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	updates := map[string]any{}
	for k, v := range fields {
		updates[k] = v
	}
	updates["status"] = to
	updates["updated_at"] = time.Now()

	res := r.db.WithContext(ctx).Model(&GenerationJob{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return r.missOrConflict(ctx, id, from, to)
	}
	r.notify(ctx, id, to, "")
	return nil
}

// MarkFailed records msg and moves any non-terminal job to failed.
func (r *Repo) MarkFailed(ctx context.Context, id string, msg string) error {
	return r.markFailed(ctx, id, msg, nil)
}

// MarkFailedDiscardingAudio is MarkFailed for a job whose audio files were
// already removed: the stored chunk and final audio references are cleared
// with it.
func (r *Repo) MarkFailedDiscardingAudio(ctx context.Context, id string, msg string) error {
	return r.markFailed(ctx, id, msg, map[string]any{
		"audio_chunks": nil,
		"final_audio":  nil,
	})
}

func (r *Repo) markFailed(ctx context.Context, id string, msg string, extra map[string]any) error {
	fields := map[string]any{
		"status":     StatusFailed,
		"error_log":  msg,
		"updated_at": time.Now(),
	}
	for k, v := range extra {
		fields[k] = v
	}
	res := r.db.WithContext(ctx).Model(&GenerationJob{}).
		Where("id = ? AND status NOT IN ?", id, []Status{StatusCompleted, StatusFailed}).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return r.missOrConflict(ctx, id, "", StatusFailed)
	}
	r.notify(ctx, id, StatusFailed, msg)
	return nil
}

// ResetForRetry takes a failed job back to pending and clears everything
// the previous attempt produced. Settings are kept.
func (r *Repo) ResetForRetry(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Model(&GenerationJob{}).
		Where("id = ? AND status = ?", id, StatusFailed).
		Updates(map[string]any{
			"status":       StatusPending,
			"error_log":    nil,
			"script_data":  nil,
			"audio_chunks": nil,
			"final_audio":  nil,
			"summary":      "",
			"episode_id":   nil,
			"attempts":     gorm.Expr("attempts + 1"),
			"updated_at":   time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return r.missOrConflict(ctx, id, StatusFailed, StatusPending)
	}
	r.notify(ctx, id, StatusPending, "retry")
	return nil
}

// Delete removes a job that no worker owns.
func (r *Repo) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).
		Where("id = ? AND status IN ?", id, []Status{StatusPending, StatusCompleted, StatusFailed}).
		Delete(&GenerationJob{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return ErrJobActive
	}
	return nil
}

// ArticlesWithJobs returns which of ids already have a job.
func (r *Repo) ArticlesWithJobs(ctx context.Context, ids []uint64) (map[uint64]bool, error) {
	out := make(map[uint64]bool, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var found []uint64
	if err := r.db.WithContext(ctx).Model(&GenerationJob{}).
		Where("source_article_id IN ?", ids).
		Distinct().
		Pluck("source_article_id", &found).Error; err != nil {
		return nil, err
	}
	for _, id := range found {
		out[id] = true
	}
	return out, nil
}

func (r *Repo) missOrConflict(ctx context.Context, id string, from, to Status) error {
	j, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if from == "" {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, to)
	}
	return fmt.Errorf("%w: job is %s, not %s", ErrInvalidTransition, j.Status, from)
}
