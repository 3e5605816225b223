package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/amishk599/jobsieve/internal/gate"
	"github.com/amishk599/jobsieve/internal/match"
	"github.com/amishk599/jobsieve/internal/model"
	"github.com/amishk599/jobsieve/internal/orchestrator"
	"github.com/amishk599/jobsieve/internal/pipeline"
	"github.com/amishk599/jobsieve/internal/settings"
)

// Dependencies are the services the API exposes.
type Dependencies struct {
	Driver   *pipeline.Driver
	Jobs     *orchestrator.Orchestrator
	Settings *settings.Service
	Matches  *match.Repository
	Gate     *gate.Gate
	// DefaultUserID is used when a request names no user.
	DefaultUserID string
	Logger        *slog.Logger
}

type handler struct {
	driver        *pipeline.Driver
	jobs          *orchestrator.Orchestrator
	settings      *settings.Service
	matches       *match.Repository
	gate          *gate.Gate
	defaultUserID string
	logger        *slog.Logger
}

func newHandler(d *Dependencies) *handler {
	return &handler{
		driver:        d.Driver,
		jobs:          d.Jobs,
		settings:      d.Settings,
		matches:       d.Matches,
		gate:          d.Gate,
		defaultUserID: d.DefaultUserID,
		logger:        d.Logger,
	}
}

func (h *handler) userID(id string) string {
	if id == "" {
		return h.defaultUserID
	}
	return id
}

// sourceParam reads and validates the :source path parameter. It writes a
// 400 response and returns false for unknown sources.
func sourceParam(c *gin.Context) (model.SourceKind, bool) {
	src, ok := model.ParseSourceKind(c.Param("source"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown source " + c.Param("source")})
		return "", false
	}
	return src, true
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrJobNotFound), errors.Is(err, model.ErrMatchNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, model.ErrGateDenied):
		return http.StatusTooManyRequests
	case errors.Is(err, orchestrator.ErrShutdown):
		return http.StatusServiceUnavailable
	case errors.Is(err, model.ErrJobFatal):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *handler) fail(c *gin.Context, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(status, gin.H{"error": msg + ": " + err.Error()})
}
