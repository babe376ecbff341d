package router

import (
	"context"
	"net/http"
	"time"

	"github.com/cuongbtq/media-transcoder/internal/api/handler"
	"github.com/gin-gonic/gin"
)

// HealthChecker reports whether a backing service is usable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Options configures the router beyond the handler dependencies
type Options struct {
	ServiceName string
	Health      map[string]HealthChecker
}

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies, opts Options) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	r.GET("/health", healthHandler(opts))

	// Initialize job handler
	jobHandler := handler.NewJobHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	v1.Use(handler.IdentityMiddleware())
	{
		// POST /api/v1/uploads - Store a source file
		v1.POST("/uploads", jobHandler.UploadFile)

		// GET /api/v1/stats - Job counts by status
		v1.GET("/stats", jobHandler.GetStats)

		jobs := v1.Group("/jobs")
		{
			// POST /api/v1/jobs - Create a pending job
			jobs.POST("", jobHandler.CreateJob)

			// GET /api/v1/jobs - List jobs with filtering and pagination
			jobs.GET("", jobHandler.ListJobs)

			// GET /api/v1/jobs/:job_id - Get job details
			jobs.GET("/:job_id", jobHandler.GetJob)

			// POST /api/v1/jobs/:job_id/start - Queue a pending job
			jobs.POST("/:job_id/start", jobHandler.StartJob)

			// GET /api/v1/jobs/:job_id/progress - Live progress
			jobs.GET("/:job_id/progress", jobHandler.GetProgress)

			// GET /api/v1/jobs/:job_id/download - Time-limited download URL
			jobs.GET("/:job_id/download", jobHandler.GetDownloadURL)
		}
	}

	return r
}

func healthHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		status := http.StatusOK
		checks := gin.H{}
		for name, checker := range opts.Health {
			if err := checker.HealthCheck(ctx); err != nil {
				status = http.StatusServiceUnavailable
				checks[name] = err.Error()
				continue
			}
			checks[name] = "ok"
		}

		state := "healthy"
		if status != http.StatusOK {
			state = "unhealthy"
		}

		c.JSON(status, gin.H{
			"status":  state,
			"service": opts.ServiceName,
			"checks":  checks,
		})
	}
}
