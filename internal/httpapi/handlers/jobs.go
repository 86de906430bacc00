package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/ai-podcaster/internal/audio"
	"github.com/suPer8Hu/ai-podcaster/internal/common"
	"github.com/suPer8Hu/ai-podcaster/internal/podcast"
)

const idempotencyHeader = "Idempotency-Key"

type createJobReq struct {
	ArticleID *uint64         `json:"article_id"`
	Title     string          `json:"title"`
	Text      string          `json:"text"`
	Settings  json.RawMessage `json:"settings"`
}

// jobView is the API shape of a job. The error log is only included when
// asked for.
type jobView struct {
	ID              string              `json:"id"`
	Status          podcast.Status      `json:"status"`
	Title           string              `json:"title"`
	SourceArticleID *uint64             `json:"source_article_id,omitempty"`
	Settings        *podcast.Settings   `json:"settings,omitempty"`
	Script          *podcast.ScriptData `json:"script,omitempty"`
	Chunks          int                 `json:"chunks"`
	FinalAudio      *audio.FileRef      `json:"final_audio,omitempty"`
	Summary         string              `json:"summary,omitempty"`
	EpisodeID       *uint64             `json:"episode_id,omitempty"`
	Failed          bool                `json:"failed"`
	ErrorLog        *string             `json:"error_log,omitempty"`
	Attempts        int                 `json:"attempts"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

func viewOf(j *podcast.GenerationJob, detail, withError bool) jobView {
	v := jobView{
		ID:              j.ID,
		Status:          j.Status,
		Title:           j.Title,
		SourceArticleID: j.SourceArticleID,
		Chunks:          len(j.AudioChunks),
		Summary:         j.Summary,
		EpisodeID:       j.EpisodeID,
		Failed:          j.Status == podcast.StatusFailed,
		Attempts:        j.Attempts,
		CreatedAt:       j.CreatedAt,
		UpdatedAt:       j.UpdatedAt,
	}
	if j.FinalAudio != nil {
		ref := audio.FileRef(*j.FinalAudio)
		ref.Path = ""
		v.FinalAudio = &ref
	}
	if detail {
		v.Settings = &j.Settings
		v.Script = j.ScriptData
	}
	if withError {
		v.ErrorLog = j.ErrorLog
	}
	return v
}

func (h *Handler) CreateJob(c *gin.Context) {
	var req createJobReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	// Settings are decoded over the configured defaults so that fields the
	// caller leaves out, booleans included, keep their configured values.
	var settings *podcast.Settings
	if raw := bytes.TrimSpace(req.Settings); len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
		s := h.Jobs.Defaults()
		if err := json.Unmarshal(raw, &s); err != nil {
			common.Fail(c, http.StatusBadRequest, 10002, "invalid settings: "+err.Error())
			return
		}
		settings = &s
	}
	job, created, err := h.Jobs.Submit(c.Request.Context(), podcast.SubmitInput{
		ArticleID:      req.ArticleID,
		Title:          req.Title,
		Text:           req.Text,
		Settings:       settings,
		IdempotencyKey: c.GetHeader(idempotencyHeader),
	})
	switch {
	case errors.Is(err, podcast.ErrInvalidInput):
		common.Fail(c, http.StatusBadRequest, 10002, err.Error())
		return
	case err != nil && job != nil:
		// Stored but not queued; a retry call queues it.
		h.logger.Error("enqueue failed", "job", job.ID, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"code":    50301,
			"message": "job saved but could not be queued, retry it",
			"data":    gin.H{"job_id": job.ID},
		})
		return
	case err != nil:
		h.logger.Error("submit failed", "error", err)
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to create job")
		return
	}
	status := http.StatusAccepted
	if !created {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{
		"code":    0,
		"message": "ok",
		"data":    gin.H{"job_id": job.ID, "status": job.Status, "created": created},
	})
}

func (h *Handler) ListJobs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	status := podcast.Status(c.Query("status"))
	if status != "" && !status.Valid() {
		common.Fail(c, http.StatusBadRequest, 10003, "unknown status")
		return
	}
	jobs, err := h.Jobs.List(c.Request.Context(), podcast.ListFilter{Status: status, Limit: limit})
	if err != nil {
		h.logger.Error("list jobs", "error", err)
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to list jobs")
		return
	}
	out := make([]jobView, 0, len(jobs))
	for i := range jobs {
		out = append(out, viewOf(&jobs[i], false, false))
	}
	common.OK(c, gin.H{"jobs": out})
}

func (h *Handler) GetJob(c *gin.Context) {
	job, err := h.Jobs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.jobError(c, err)
		return
	}
	withError := c.Query("include") == "error_log"
	common.OK(c, viewOf(job, true, withError))
}

func (h *Handler) RetryJob(c *gin.Context) {
	job, err := h.Jobs.Retry(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.jobError(c, err)
		return
	}
	common.OK(c, viewOf(job, false, false))
}

func (h *Handler) DeleteJob(c *gin.Context) {
	if err := h.Jobs.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.jobError(c, err)
		return
	}
	common.OK(c, gin.H{"deleted": true})
}

func (h *Handler) jobError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, podcast.ErrJobNotFound):
		common.Fail(c, http.StatusNotFound, 40401, "job not found")
	case errors.Is(err, podcast.ErrInvalidTransition):
		common.Fail(c, http.StatusConflict, 40901, err.Error())
	case errors.Is(err, podcast.ErrJobActive):
		common.Fail(c, http.StatusConflict, 40902, "job is running")
	default:
		h.logger.Error("job request failed", "path", c.FullPath(), "error", err)
		common.Fail(c, http.StatusInternalServerError, 50003, "internal error")
	}
}
