package scheduler

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/suPer8Hu/ai-podcaster/internal/articles"
	"github.com/suPer8Hu/ai-podcaster/internal/podcast"
)

type nopQueue struct {
	mu  sync.Mutex
	ids []string
}

func (q *nopQueue) Enqueue(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ids = append(q.ids, id)
	return nil
}

type nopFiles struct{}

func (nopFiles) RemoveJob(string) error { return nil }

func setup(t *testing.T) (*Scheduler, *articles.Repo, *podcast.Repo, *nopQueue) {
	t.Helper()
	return setupWithDefaults(t, podcast.DefaultSettings())
}

func setupWithDefaults(t *testing.T, defaults podcast.Settings) (*Scheduler, *articles.Repo, *podcast.Repo, *nopQueue) {
	t.Helper()
	db, err := gorm.Open(gormsqlite.Open(filepath.Join(t.TempDir(), "sched.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&articles.Article{}, &podcast.GenerationJob{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	ar := articles.NewRepo(db)
	jobs := podcast.NewRepo(db)
	q := &nopQueue{}
	svc := podcast.NewService(jobs, q, nopFiles{}, podcast.ServiceOptions{Defaults: defaults}, log.New(io.Discard))
	return New(ar, jobs, svc, Options{Lookback: 24 * time.Hour}, log.New(io.Discard)), ar, jobs, q
}

func addArticle(t *testing.T, r *articles.Repo, title string, age time.Duration, published bool) *articles.Article {
	t.Helper()
	a := &articles.Article{Title: title, Body: "body of " + title, Published: published, PublishedAt: time.Now().Add(-age)}
	if err := r.Create(context.Background(), a); err != nil {
		t.Fatalf("create article: %v", err)
	}
	return a
}

func TestTickPicksNewestWithoutJob(t *testing.T) {
	s, ar, _, q := setup(t)
	addArticle(t, ar, "older", 3*time.Hour, true)
	newest := addArticle(t, ar, "newest", time.Hour, true)
	addArticle(t, ar, "draft", time.Minute, false)
	addArticle(t, ar, "stale", 72*time.Hour, true)

	job, err := s.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if job == nil || job.SourceArticleID == nil || *job.SourceArticleID != newest.ID {
		t.Fatalf("job = %+v, want job for article %d", job, newest.ID)
	}
	if len(q.ids) != 1 || q.ids[0] != job.ID {
		t.Fatalf("enqueued = %v", q.ids)
	}
}

func TestTickJobTakesConfiguredDefaults(t *testing.T) {
	defaults := podcast.DefaultSettings()
	defaults.SearchEnabled = true
	defaults.SummaryEnabled = true
	defaults.OutroText = "Thanks for listening."
	s, ar, _, _ := setupWithDefaults(t, defaults)
	addArticle(t, ar, "fresh", time.Hour, true)

	job, err := s.Tick(context.Background())
	if err != nil || job == nil {
		t.Fatalf("Tick() = %v, %v", job, err)
	}
	if !job.Settings.SearchEnabled || !job.Settings.SummaryEnabled || job.Settings.OutroText != defaults.OutroText {
		t.Fatalf("settings = %+v", job.Settings)
	}
}

func TestTickSkipsArticlesWithJobs(t *testing.T) {
	s, ar, _, _ := setup(t)
	older := addArticle(t, ar, "older", 3*time.Hour, true)
	addArticle(t, ar, "newest", time.Hour, true)

	if _, err := s.Tick(context.Background()); err != nil {
		t.Fatalf("first Tick() error = %v", err)
	}
	job, err := s.Tick(context.Background())
	if err != nil {
		t.Fatalf("second Tick() error = %v", err)
	}
	if job == nil || *job.SourceArticleID != older.ID {
		t.Fatalf("second job = %+v, want article %d", job, older.ID)
	}
	job, err = s.Tick(context.Background())
	if err != nil || job != nil {
		t.Fatalf("third Tick() = %+v, %v, want nothing to do", job, err)
	}
}

func TestTickWithoutArticles(t *testing.T) {
	s, _, _, q := setup(t)
	job, err := s.Tick(context.Background())
	if err != nil || job != nil || len(q.ids) != 0 {
		t.Fatalf("Tick() = %+v, %v, enqueued %v", job, err, q.ids)
	}
}
