package handlers

import (
	"time"

	"github.com/charmbracelet/log"

	"github.com/suPer8Hu/ai-podcaster/internal/events"
	"github.com/suPer8Hu/ai-podcaster/internal/podcast"
)

// AuthSettings is the single operator account allowed to log in.
type AuthSettings struct {
	JWTSecret    string
	TokenTTL     time.Duration
	Username     string
	PasswordHash string
}

type Handler struct {
	Jobs   *podcast.Service
	Events *events.Bus
	Auth   AuthSettings
	logger *log.Logger
}

func NewHandler(jobs *podcast.Service, bus *events.Bus, authSettings AuthSettings, logger *log.Logger) *Handler {
	if authSettings.TokenTTL <= 0 {
		authSettings.TokenTTL = 24 * time.Hour
	}
	return &Handler{
		Jobs:   jobs,
		Events: bus,
		Auth:   authSettings,
		logger: logger.With("component", "api"),
	}
}
