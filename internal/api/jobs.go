package api

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/amishk599/jobsieve/internal/model"
)

type submitJobRequest struct {
	Name        string              `json:"name"`
	Kind        model.JobKind       `json:"kind" binding:"required"`
	UserID      string              `json:"user_id"`
	Messages    []model.RawMessage  `json:"messages"`
	BatchSize   int                 `json:"batch_size"`
	Queries     []model.SearchQuery `json:"queries"`
	StepTimeout string              `json:"step_timeout"` // Go duration, e.g. "90s"
	// Start runs the job right away instead of leaving it pending.
	Start bool `json:"start"`
}

func (r submitJobRequest) spec(userID string) (*model.JobSpec, error) {
	spec := &model.JobSpec{
		Name:      r.Name,
		Kind:      r.Kind,
		UserID:    userID,
		Messages:  r.Messages,
		BatchSize: r.BatchSize,
		Queries:   r.Queries,
	}
	if r.StepTimeout != "" {
		d, err := time.ParseDuration(r.StepTimeout)
		if err != nil {
			return nil, err
		}
		spec.StepTimeout = d
	}
	return spec, nil
}

// SubmitJob handles POST /api/v1/jobs.
func (h *handler) SubmitJob(c *gin.Context) {
	var req submitJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	spec, err := req.spec(h.userID(req.UserID))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid step_timeout: " + err.Error()})
		return
	}
	// Reject specs that could never be planned instead of accepting a job
	// that fails on start.
	if _, err := h.driver.Plan(spec); err != nil {
		h.fail(c, "invalid job", err)
		return
	}

	id, err := h.jobs.Submit(spec)
	if err != nil {
		h.fail(c, "submit job", err)
		return
	}
	if req.Start {
		if err := h.jobs.Start(id); err != nil {
			h.fail(c, "start job", err)
			return
		}
	}

	snap, err := h.jobs.Status(id)
	if err != nil {
		h.fail(c, "get job", err)
		return
	}
	c.JSON(http.StatusCreated, snap)
}

// ListJobs handles GET /api/v1/jobs.
func (h *handler) ListJobs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"jobs": h.jobs.List()})
}

// GetJob handles GET /api/v1/jobs/:job_id.
func (h *handler) GetJob(c *gin.Context) {
	snap, err := h.jobs.Status(c.Param("job_id"))
	if err != nil {
		h.fail(c, "get job", err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *handler) StartJob(c *gin.Context)  { h.control(c, "start job", h.jobs.Start) }
func (h *handler) PauseJob(c *gin.Context)  { h.control(c, "pause job", h.jobs.Pause) }
func (h *handler) ResumeJob(c *gin.Context) { h.control(c, "resume job", h.jobs.Resume) }
func (h *handler) StopJob(c *gin.Context)   { h.control(c, "stop job", h.jobs.Stop) }

func (h *handler) control(c *gin.Context, msg string, fn func(id string) error) {
	id := c.Param("job_id")
	if err := fn(id); err != nil {
		h.fail(c, msg, err)
		return
	}
	snap, err := h.jobs.Status(id)
	if err != nil {
		h.fail(c, "get job", err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// StreamJobEvents handles GET /api/v1/jobs/:job_id/events as a server-sent
// event stream. The first event is the job's current snapshot; the stream
// ends after the job's final event.
func (h *handler) StreamJobEvents(c *gin.Context) {
	id := c.Param("job_id")
	events, cancel, err := h.jobs.Subscribe(id)
	if err != nil {
		h.fail(c, "subscribe", err)
		return
	}
	defer cancel()

	snap, err := h.jobs.Status(id)
	if err != nil {
		h.fail(c, "get job", err)
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.SSEvent("snapshot", snap)
	c.Writer.Flush()

	c.Stream(func(io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(string(ev.Type), ev)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
