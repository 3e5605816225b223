package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/amishk599/jobsieve/internal/model"
)

type thresholdBody struct {
	Value *int `json:"value" binding:"required"`
}

// GetThreshold handles GET /api/v1/settings/threshold.
func (h *handler) GetThreshold(c *gin.Context) {
	v, err := h.settings.Threshold(c.Request.Context())
	if err != nil {
		h.fail(c, "get threshold", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"value": v})
}

// SetThreshold handles PUT /api/v1/settings/threshold. Out-of-range values
// are clamped; the stored value is returned.
func (h *handler) SetThreshold(c *gin.Context) {
	var body thresholdBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	v, err := h.settings.SetThreshold(c.Request.Context(), *body.Value)
	if err != nil {
		h.fail(c, "set threshold", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"value": v})
}

// GetSourcePreferences handles GET /api/v1/settings/sources/:source.
func (h *handler) GetSourcePreferences(c *gin.Context) {
	src, ok := sourceParam(c)
	if !ok {
		return
	}
	prefs, err := h.settings.AccessPreferences(c.Request.Context(), src)
	if err != nil {
		h.fail(c, "get preferences", err)
		return
	}
	c.JSON(http.StatusOK, prefs)
}

// SetSourcePreferences handles PUT /api/v1/settings/sources/:source and
// returns the clamped preferences that were stored.
func (h *handler) SetSourcePreferences(c *gin.Context) {
	src, ok := sourceParam(c)
	if !ok {
		return
	}
	var prefs model.AccessPreferences
	if err := c.ShouldBindJSON(&prefs); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	stored, err := h.settings.SetAccessPreferences(c.Request.Context(), src, prefs)
	if err != nil {
		h.fail(c, "set preferences", err)
		return
	}
	c.JSON(http.StatusOK, stored)
}

// GetStats handles GET /api/v1/settings/stats.
func (h *handler) GetStats(c *gin.Context) {
	st, err := h.settings.Stats(c.Request.Context())
	if err != nil {
		h.fail(c, "get stats", err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// CheckAccess handles GET /api/v1/access/:source. It reports the gate's
// decision without recording an attempt.
func (h *handler) CheckAccess(c *gin.Context) {
	src, ok := sourceParam(c)
	if !ok {
		return
	}
	d, prefs, err := h.gate.Check(c.Request.Context(), src)
	if err != nil {
		h.fail(c, "check access", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"source": src, "decision": d, "preferences": prefs})
}
