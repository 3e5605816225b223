package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// NewRouter builds the gin engine serving the jobsieve HTTP API.
func NewRouter(deps *Dependencies) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "jobsieve"})
	})

	h := newHandler(deps)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/messages", h.ProcessMessages)

		jobs := v1.Group("/jobs")
		{
			jobs.POST("", h.SubmitJob)
			jobs.GET("", h.ListJobs)
			jobs.GET("/:job_id", h.GetJob)
			jobs.GET("/:job_id/events", h.StreamJobEvents)
			jobs.POST("/:job_id/start", h.StartJob)
			jobs.POST("/:job_id/pause", h.PauseJob)
			jobs.POST("/:job_id/resume", h.ResumeJob)
			jobs.POST("/:job_id/stop", h.StopJob)
		}

		settings := v1.Group("/settings")
		{
			settings.GET("/threshold", h.GetThreshold)
			settings.PUT("/threshold", h.SetThreshold)
			settings.GET("/sources/:source", h.GetSourcePreferences)
			settings.PUT("/sources/:source", h.SetSourcePreferences)
			settings.GET("/stats", h.GetStats)
		}

		matches := v1.Group("/matches")
		{
			matches.GET("", h.ListMatches)
			matches.PATCH("/:match_id", h.UpdateMatchFlags)
		}

		v1.GET("/access/:source", h.CheckAccess)
	}

	return r
}
