package httpapi

import (
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/ai-podcaster/internal/common"
	"github.com/suPer8Hu/ai-podcaster/internal/httpapi/handlers"
	"github.com/suPer8Hu/ai-podcaster/internal/httpapi/middleware"
)

type RouterOptions struct {
	// MediaDir is served under MediaPath when both are set.
	MediaDir  string
	MediaPath string
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
}

func NewRouter(h *handlers.Handler, opts RouterOptions, logger *log.Logger) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.Recovery(logger))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))

	r.GET("/ping", h.Ping)
	r.POST("/login", h.Login)

	if opts.MediaDir != "" && strings.HasPrefix(opts.MediaPath, "/") {
		r.Static(opts.MediaPath, opts.MediaDir)
	}
	if opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(opts.Metrics))
	}

	// JWT required
	api := r.Group("/api")
	api.Use(middleware.AuthRequired(h.Auth.JWTSecret))
	api.POST("/jobs", h.CreateJob)
	api.GET("/jobs", h.ListJobs)
	api.GET("/jobs/:id", h.GetJob)
	api.POST("/jobs/:id/retry", h.RetryJob)
	api.DELETE("/jobs/:id", h.DeleteJob)
	api.GET("/events", h.ListEvents)
	return r
}
