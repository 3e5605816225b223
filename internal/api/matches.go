package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/amishk599/jobsieve/internal/model"
)

type listMatchesQuery struct {
	UserID           string `form:"user_id"`
	IncludeDismissed bool   `form:"include_dismissed"`
	OnlySaved        bool   `form:"only_saved"`
	MinScore         int    `form:"min_score" binding:"min=0,max=100"`
	Limit            int    `form:"limit" binding:"min=0,max=500"`
}

// ListMatches handles GET /api/v1/matches.
func (h *handler) ListMatches(c *gin.Context) {
	var q listMatchesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query parameters: " + err.Error()})
		return
	}
	if q.Limit == 0 {
		q.Limit = 50
	}

	records, err := h.matches.List(c.Request.Context(), h.userID(q.UserID), model.MatchFilter{
		IncludeDismissed: q.IncludeDismissed,
		OnlySaved:        q.OnlySaved,
		MinScore:         q.MinScore,
		Limit:            q.Limit,
	})
	if err != nil {
		h.fail(c, "list matches", err)
		return
	}
	if records == nil {
		records = []model.MatchRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"matches": records})
}

// UpdateMatchFlags handles PATCH /api/v1/matches/:match_id. Flags absent
// from the body are left unchanged.
func (h *handler) UpdateMatchFlags(c *gin.Context) {
	var flags model.MatchFlags
	if err := c.ShouldBindJSON(&flags); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if flags.IsSaved == nil && flags.IsDismissed == nil && flags.IsApplied == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no flags to update"})
		return
	}
	if err := h.matches.SetFlags(c.Request.Context(), c.Param("match_id"), flags); err != nil {
		h.fail(c, "update match", err)
		return
	}
	c.Status(http.StatusNoContent)
}
