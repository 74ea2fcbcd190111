package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/saxslab/sasjobs-backend/internal/handlers"
	"github.com/saxslab/sasjobs-backend/internal/middleware"
)

type RouterConfig struct {
	JobsHandler    *handlers.JobsHandler
	QueuesHandler  *handlers.QueuesHandler
	AuthMiddleware *middleware.AuthMiddleware
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	// Cors
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:80",
			"http://localhost:3000",
			"http://localhost:5174",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	// ===============
	// || Public    ||
	// ===============
	router.GET("/healthcheck", handlers.HealthCheck)

	// ===============
	// || Protected ||
	// ===============
	api := router.Group("/api")
	api.Use(cfg.AuthMiddleware.RequireAuth())
	// Jobs
	api.POST("/jobs", cfg.JobsHandler.SubmitJob)
	api.GET("/jobs", cfg.JobsHandler.ListJobs)
	api.GET("/jobs/:id", cfg.JobsHandler.GetJobByID)
	api.GET("/jobs/:id/status", cfg.JobsHandler.GetJobStatus)
	api.DELETE("/jobs/:id", cfg.JobsHandler.DeleteJob)
	// Queue admin
	admin := api.Group("/admin")
	admin.GET("/queues", cfg.QueuesHandler.ListQueues)
	admin.GET("/queues/:name", cfg.QueuesHandler.GetQueue)
	admin.GET("/queues/:name/jobs", cfg.QueuesHandler.GetQueueJobs)
	admin.POST("/queues/:name/pause", cfg.QueuesHandler.PauseQueue)
	admin.POST("/queues/:name/resume", cfg.QueuesHandler.ResumeQueue)
	admin.POST("/queues/:name/drain", cfg.QueuesHandler.DrainQueue)

	return router
}
