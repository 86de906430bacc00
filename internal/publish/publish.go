// Package publish stores finished episodes as publishable content items.
package publish

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Episode struct {
	ID              uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	JobID           string    `gorm:"type:varchar(26);uniqueIndex;not null" json:"job_id"`
	SourceArticleID *uint64   `gorm:"index" json:"source_article_id,omitempty"`
	Title           string    `gorm:"type:varchar(255);not null" json:"title"`
	AudioURL        string    `gorm:"type:varchar(512);not null" json:"audio_url"`
	AudioSize       int64     `gorm:"not null" json:"audio_size"`
	DurationMinutes float64   `json:"duration_minutes"`
	Summary         string    `gorm:"type:text" json:"summary"`
	Transcript      string    `gorm:"type:text" json:"transcript"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (Episode) TableName() string { return "episodes" }

// Item is what a finished job hands to the sink.
type Item struct {
	JobID           string
	SourceArticleID *uint64
	Title           string
	AudioURL        string
	AudioSize       int64
	DurationMinutes float64
	Summary         string
	Transcript      string
}

type Sink struct {
	db *gorm.DB
}

func NewSink(db *gorm.DB) *Sink {
	return &Sink{db: db}
}

// Publish creates the episode for a job, or updates it when the job was
// published before (a retried job). It returns the episode id.
func (s *Sink) Publish(ctx context.Context, item Item) (uint64, error) {
	if item.JobID == "" || item.AudioURL == "" {
		return 0, errors.New("publish: job id and audio url are required")
	}
	ep := Episode{
		JobID:           item.JobID,
		SourceArticleID: item.SourceArticleID,
		Title:           item.Title,
		AudioURL:        item.AudioURL,
		AudioSize:       item.AudioSize,
		DurationMinutes: item.DurationMinutes,
		Summary:         item.Summary,
		Transcript:      item.Transcript,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "job_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"title", "audio_url", "audio_size", "duration_minutes", "summary", "transcript", "updated_at",
		}),
	}).Create(&ep).Error
	if err != nil {
		return 0, err
	}

	var stored Episode
	if err := s.db.WithContext(ctx).Select("id").First(&stored, "job_id = ?", item.JobID).Error; err != nil {
		return 0, err
	}
	return stored.ID, nil
}

func (s *Sink) GetByJob(ctx context.Context, jobID string) (*Episode, error) {
	var ep Episode
	if err := s.db.WithContext(ctx).First(&ep, "job_id = ?", jobID).Error; err != nil {
		return nil, err
	}
	return &ep, nil
}

// DeleteByJob removes the episode of a deleted job, if any.
func (s *Sink) DeleteByJob(ctx context.Context, jobID string) error {
	return s.db.WithContext(ctx).Where("job_id = ?", jobID).Delete(&Episode{}).Error
}
