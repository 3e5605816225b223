package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/amishk599/jobsieve/internal/model"
)

type processMessagesRequest struct {
	UserID   string             `json:"user_id"`
	Messages []model.RawMessage `json:"messages" binding:"required"`
}

type processMessagesResponse struct {
	Summary model.BatchSummary `json:"summary"`
	Error   string             `json:"error,omitempty"`
}

// ProcessMessages handles POST /api/v1/messages. Failures other than fatal
// ones still answer 200 with the counters and the joined error.
func (h *handler) ProcessMessages(c *gin.Context) {
	var req processMessagesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	sum, err := h.driver.ProcessMessages(c.Request.Context(), h.userID(req.UserID), req.Messages)
	if err != nil {
		_ = c.Error(err)
		status := http.StatusOK
		if errors.Is(err, model.ErrJobFatal) {
			status = statusFor(err)
		}
		c.JSON(status, processMessagesResponse{Summary: sum, Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, processMessagesResponse{Summary: sum})
}
