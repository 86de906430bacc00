package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/suPer8Hu/ai-podcaster/internal/audio"
	"github.com/suPer8Hu/ai-podcaster/internal/auth"
	"github.com/suPer8Hu/ai-podcaster/internal/events"
	"github.com/suPer8Hu/ai-podcaster/internal/httpapi/handlers"
	"github.com/suPer8Hu/ai-podcaster/internal/podcast"
)

type memQueue struct {
	mu  sync.Mutex
	ids []string
}

func (q *memQueue) Enqueue(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ids = append(q.ids, id)
	return nil
}

type env struct {
	router http.Handler
	repo   *podcast.Repo
	queue  *memQueue
	ws     *audio.Workspace
	token  string
}

const testSecret = "test-secret"

func setup(t *testing.T) *env {
	t.Helper()
	return setupWithDefaults(t, podcast.DefaultSettings())
}

func setupWithDefaults(t *testing.T, defaults podcast.Settings) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()
	db, err := gorm.Open(gormsqlite.Open(filepath.Join(dir, "api.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&podcast.GenerationJob{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	ws, err := audio.NewWorkspace(filepath.Join(dir, "media"), "/media")
	if err != nil {
		t.Fatalf("workspace: %v", err)
	}
	logger := log.New(io.Discard)
	bus := events.NewBus(100, logger)
	repo := podcast.NewRepo(db, bus)
	q := &memQueue{}
	svc := podcast.NewService(repo, q, ws, podcast.ServiceOptions{Defaults: defaults}, logger)

	hash, err := auth.HashPassword("pw")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	h := handlers.NewHandler(svc, bus, handlers.AuthSettings{JWTSecret: testSecret, Username: "admin", PasswordHash: hash}, logger)
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = io.WriteString(w, "podcast_jobs_total 0\n") })
	r := NewRouter(h, RouterOptions{MediaDir: ws.Dir(), MediaPath: "/media", Metrics: metrics}, logger)

	tok, err := auth.SignJWT("admin", testSecret, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return &env{router: r, repo: repo, queue: q, ws: ws, token: tok}
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (e *env) call(t *testing.T, method, path string, body any, headers map[string]string) (int, envelope) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.token)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w.Code, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return v
}

type createResp struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Created bool   `json:"created"`
}

func TestPingAndNotFound(t *testing.T) {
	e := setup(t)
	if code, _ := e.call(t, http.MethodGet, "/ping", nil, nil); code != http.StatusOK {
		t.Fatalf("ping = %d", code)
	}
	if code, env := e.call(t, http.MethodGet, "/nope", nil, nil); code != http.StatusNotFound || env.Code != 40400 {
		t.Fatalf("unknown route = %d %+v", code, env)
	}
}

func TestLogin(t *testing.T) {
	e := setup(t)
	code, env := e.call(t, http.MethodPost, "/login", map[string]string{"username": "admin", "password": "pw"}, nil)
	if code != http.StatusOK {
		t.Fatalf("login = %d %+v", code, env)
	}
	tok := decode[struct {
		Token string `json:"token"`
	}](t, env.Data).Token
	if sub, err := auth.ParseJWT(tok, testSecret); err != nil || sub != "admin" {
		t.Fatalf("token subject = %q err = %v", sub, err)
	}
	if code, _ := e.call(t, http.MethodPost, "/login", map[string]string{"username": "admin", "password": "bad"}, nil); code != http.StatusUnauthorized {
		t.Fatalf("bad password = %d", code)
	}
}

func TestJobsRequireAuth(t *testing.T) {
	e := setup(t)
	e.token = "bogus"
	if code, _ := e.call(t, http.MethodGet, "/api/jobs", nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", code)
	}
}

func TestCreateJobIsIdempotent(t *testing.T) {
	e := setup(t)
	body := map[string]any{"title": "Go news", "text": "Go 1.30 is out."}
	hdr := map[string]string{"Idempotency-Key": "abc"}

	code, env := e.call(t, http.MethodPost, "/api/jobs", body, hdr)
	if code != http.StatusAccepted {
		t.Fatalf("create = %d %+v", code, env)
	}
	first := decode[createResp](t, env.Data)
	if first.JobID == "" || first.Status != "pending" || !first.Created {
		t.Fatalf("first = %+v", first)
	}

	code, env = e.call(t, http.MethodPost, "/api/jobs", body, hdr)
	second := decode[createResp](t, env.Data)
	if code != http.StatusOK || second.JobID != first.JobID || second.Created {
		t.Fatalf("repeat = %d %+v", code, second)
	}
	if len(e.queue.ids) != 1 {
		t.Fatalf("enqueued %d times, want 1", len(e.queue.ids))
	}
}

func TestCreateJobValidation(t *testing.T) {
	e := setup(t)
	code, env := e.call(t, http.MethodPost, "/api/jobs", map[string]any{"title": "no body"}, nil)
	if code != http.StatusBadRequest || env.Code != 10002 {
		t.Fatalf("missing text = %d %+v", code, env)
	}
	code, _ = e.call(t, http.MethodPost, "/api/jobs", map[string]any{"text": "x", "settings": map[string]any{"tts_speed": 9}}, nil)
	if code != http.StatusBadRequest {
		t.Fatalf("bad settings = %d", code)
	}
}

func TestCreateJobSettingsOverlayDefaults(t *testing.T) {
	defaults := podcast.DefaultSettings()
	defaults.SearchEnabled = true
	defaults.SummaryEnabled = true
	defaults.IntroText = "Welcome to the show."
	e := setupWithDefaults(t, defaults)

	body := map[string]any{"text": "Body", "settings": map[string]any{"target_minutes": 3, "summary_enabled": false}}
	code, env := e.call(t, http.MethodPost, "/api/jobs", body, nil)
	if code != http.StatusAccepted {
		t.Fatalf("create = %d %+v", code, env)
	}
	job, err := e.repo.Get(context.Background(), decode[createResp](t, env.Data).JobID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	s := job.Settings
	if s.TargetMinutes != 3 || !s.SearchEnabled || s.SummaryEnabled || s.IntroText != "Welcome to the show." {
		t.Fatalf("settings = %+v", s)
	}

	code, env = e.call(t, http.MethodPost, "/api/jobs", map[string]any{"text": "x", "settings": "fast"}, nil)
	if code != http.StatusBadRequest || env.Code != 10002 {
		t.Fatalf("malformed settings = %d %+v", code, env)
	}
}

func (e *env) createJob(t *testing.T) string {
	t.Helper()
	_, env := e.call(t, http.MethodPost, "/api/jobs", map[string]any{"title": "T", "text": "Body"}, nil)
	return decode[createResp](t, env.Data).JobID
}

func TestGetAndListJobs(t *testing.T) {
	e := setup(t)
	id := e.createJob(t)
	msg := "generating_script: model timed out"
	if err := e.repo.MarkFailed(context.Background(), id, msg); err != nil {
		t.Fatalf("MarkFailed() error = %v", err)
	}

	code, env := e.call(t, http.MethodGet, "/api/jobs/"+id, nil, nil)
	if code != http.StatusOK {
		t.Fatalf("get = %d", code)
	}
	view := decode[map[string]any](t, env.Data)
	if view["status"] != "failed" || view["failed"] != true {
		t.Fatalf("view = %v", view)
	}
	if _, ok := view["error_log"]; ok {
		t.Fatal("error_log shown without asking")
	}
	_, env = e.call(t, http.MethodGet, "/api/jobs/"+id+"?include=error_log", nil, nil)
	if decode[map[string]any](t, env.Data)["error_log"] != msg {
		t.Fatalf("error_log missing: %s", env.Data)
	}

	code, env = e.call(t, http.MethodGet, "/api/jobs?status=failed", nil, nil)
	list := decode[struct {
		Jobs []map[string]any `json:"jobs"`
	}](t, env.Data)
	if code != http.StatusOK || len(list.Jobs) != 1 {
		t.Fatalf("list = %d %s", code, env.Data)
	}
	if code, _ := e.call(t, http.MethodGet, "/api/jobs/missing", nil, nil); code != http.StatusNotFound {
		t.Fatalf("missing job = %d", code)
	}
}

func TestRetryJob(t *testing.T) {
	e := setup(t)
	id := e.createJob(t)

	// Pending: only re-enqueued.
	if code, _ := e.call(t, http.MethodPost, "/api/jobs/"+id+"/retry", nil, nil); code != http.StatusOK {
		t.Fatalf("retry pending = %d", code)
	}
	if len(e.queue.ids) != 2 {
		t.Fatalf("enqueued %d, want 2", len(e.queue.ids))
	}

	if err := e.repo.MarkFailed(context.Background(), id, "boom"); err != nil {
		t.Fatalf("MarkFailed() error = %v", err)
	}
	code, env := e.call(t, http.MethodPost, "/api/jobs/"+id+"/retry", nil, nil)
	if code != http.StatusOK || decode[map[string]any](t, env.Data)["status"] != "pending" {
		t.Fatalf("retry failed = %d %s", code, env.Data)
	}

	ctx := context.Background()
	if err := e.repo.Transition(ctx, id, podcast.StatusPending, podcast.StatusProcessing, nil); err != nil {
		t.Fatalf("Transition() error = %v", err)
	}
	if code, env := e.call(t, http.MethodPost, "/api/jobs/"+id+"/retry", nil, nil); code != http.StatusConflict {
		t.Fatalf("retry processing = %d %+v", code, env)
	}
}

func TestDeleteJob(t *testing.T) {
	e := setup(t)
	id := e.createJob(t)
	ctx := context.Background()
	if err := e.repo.Transition(ctx, id, podcast.StatusPending, podcast.StatusProcessing, nil); err != nil {
		t.Fatalf("Transition() error = %v", err)
	}
	if code, _ := e.call(t, http.MethodDelete, "/api/jobs/"+id, nil, nil); code != http.StatusConflict {
		t.Fatalf("delete active = %d, want 409", code)
	}

	if err := e.repo.MarkFailed(ctx, id, "x"); err != nil {
		t.Fatalf("MarkFailed() error = %v", err)
	}
	if _, err := e.ws.WriteFile(e.ws.ChunkPath(id, 0, "mp3"), []byte("abc")); err != nil {
		t.Fatalf("write chunk: %v", err)
	}
	if code, _ := e.call(t, http.MethodDelete, "/api/jobs/"+id, nil, nil); code != http.StatusOK {
		t.Fatalf("delete failed job = %d", code)
	}
	if _, err := os.Stat(filepath.Join(e.ws.Dir(), id)); !os.IsNotExist(err) {
		t.Fatalf("job files remain: %v", err)
	}
	if code, _ := e.call(t, http.MethodGet, "/api/jobs/"+id, nil, nil); code != http.StatusNotFound {
		t.Fatalf("get deleted = %d", code)
	}
}

func TestEvents(t *testing.T) {
	e := setup(t)
	id := e.createJob(t)
	if err := e.repo.MarkFailed(context.Background(), id, "x"); err != nil {
		t.Fatalf("MarkFailed() error = %v", err)
	}
	_, env := e.call(t, http.MethodGet, "/api/events?since=0", nil, nil)
	got := decode[struct {
		Events []events.Event `json:"events"`
	}](t, env.Data).Events
	if len(got) != 2 || got[0].Status != "pending" || got[1].Status != "failed" {
		t.Fatalf("events = %+v", got)
	}
	_, env = e.call(t, http.MethodGet, "/api/events?since=1", nil, nil)
	if n := len(decode[struct {
		Events []events.Event `json:"events"`
	}](t, env.Data).Events); n != 1 {
		t.Fatalf("since=1 returned %d events", n)
	}
	if code, _ := e.call(t, http.MethodGet, "/api/events?since=x", nil, nil); code != http.StatusBadRequest {
		t.Fatalf("bad since = %d", code)
	}
}

func TestMediaAndMetrics(t *testing.T) {
	e := setup(t)
	ref, err := e.ws.WriteFile(e.ws.FinalPath("job1", "mp3"), []byte("ID3audio"))
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, ref.URL, nil)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Body.String() != "ID3audio" {
		t.Fatalf("media %s = %d %q", ref.URL, w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	e.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte("podcast_jobs_total")) {
		t.Fatalf("metrics = %d %q", w.Code, w.Body.String())
	}
}
