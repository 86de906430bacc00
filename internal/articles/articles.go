// Package articles is the read side of the source articles podcasts are
// made from.
package articles

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

var ErrNotFound = errors.New("article not found")

type Article struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Title       string    `gorm:"type:varchar(255);not null" json:"title"`
	Body        string    `gorm:"type:text;not null" json:"body"`
	Published   bool      `gorm:"index;not null;default:false" json:"published"`
	PublishedAt time.Time `gorm:"index" json:"published_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Article) TableName() string { return "articles" }

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) Create(ctx context.Context, a *Article) error {
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *Repo) Get(ctx context.Context, id uint64) (*Article, error) {
	var a Article
	if err := r.db.WithContext(ctx).First(&a, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// ListRecent returns published articles newer than since, newest first.
func (r *Repo) ListRecent(ctx context.Context, since time.Time, limit int) ([]Article, error) {
	if limit <= 0 {
		limit = 10
	}
	var out []Article
	err := r.db.WithContext(ctx).
		Where("published = ? AND published_at >= ?", true, since).
		Order("published_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}
