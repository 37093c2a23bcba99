package routes

import (
	"net/http"
	"time"

	"github.com/convoscope/backend/internal/config"
	"github.com/convoscope/backend/internal/controllers"
	"github.com/convoscope/backend/internal/services"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// SetupRoutes configures all application routes and wires the service
// graph. The returned JobService is stopped by main on shutdown.
func SetupRoutes(r *gin.Engine, db *gorm.DB, cfg *config.Config) *services.JobService {
	// Initialize services
	cacheService := services.NewCacheService(db, cfg.CacheMaxBytes)
	eventHub := services.NewEventHub()
	pipelineRunner := services.NewPipelineRunner(cfg)
	jobService := services.NewJobService(db, cacheService, eventHub, pipelineRunner, cfg)

	// Initialize controllers
	uploadController := controllers.NewUploadController(db, cacheService, cfg)
	analysisController := controllers.NewAnalysisController(jobService)
	exportController := controllers.NewExportController(jobService)
	cacheController := controllers.NewCacheController(cacheService)
	wsController := controllers.NewWSController(eventHub)

	// API routes
	api := r.Group("/api/v1")
	{
		// Archives
		api.POST("/upload", uploadController.UploadArchive)
		api.GET("/upload/:contentHash", uploadController.GetArchive)
		archives := api.Group("/archives")
		{
			archives.GET("", uploadController.GetArchives)
			archives.GET("/:contentHash", uploadController.GetArchive)
			archives.DELETE("/:contentHash", uploadController.DeleteArchive)
		}

		// Analysis jobs
		analysis := api.Group("/analysis")
		{
			analysis.POST("", analysisController.StartAnalysis)
			analysis.GET("", analysisController.GetJobs)
			analysis.GET("/:jobId", analysisController.GetAnalysisStatus)
			analysis.GET("/:jobId/result", analysisController.GetAnalysisResult)
			analysis.POST("/:jobId/cancel", analysisController.CancelAnalysis)
			analysis.DELETE("/:jobId", analysisController.CancelAnalysis)
		}

		// Export
		api.POST("/export", exportController.CreateExport)
		api.GET("/export/:jobId", exportController.ExportResult)

		// Cache
		cache := api.Group("/cache")
		{
			cache.GET("/stats", cacheController.GetCacheStats)
			cache.DELETE("", cacheController.ClearCache)
		}
	}

	// Health check
	startedAt := time.Now()
	r.GET("/health", func(c *gin.Context) {
		dbStatus := "ok"
		var dbError string
		if sqlDB, err := db.DB(); err != nil {
			dbStatus = "error"
			dbError = err.Error()
		} else if err := sqlDB.Ping(); err != nil {
			dbStatus = "error"
			dbError = err.Error()
		}

		statusCode := http.StatusOK
		overallStatus := "ok"
		if dbStatus != "ok" {
			statusCode = http.StatusServiceUnavailable
			overallStatus = "error"
		}

		cacheEntries, cacheBytes := cacheService.Stats()
		c.JSON(statusCode, gin.H{
			"status":        overallStatus,
			"timestamp":     time.Now().UTC().Format(time.RFC3339),
			"version":       "1.0.0",
			"uptimeSeconds": int64(time.Since(startedAt).Seconds()),
			"activeJobs":    jobService.ActiveJobs(),
			"cache": gin.H{
				"entries":    cacheEntries,
				"totalBytes": cacheBytes,
			},
			"services": gin.H{
				"database": gin.H{
					"status": dbStatus,
					"error":  dbError,
				},
			},
		})
	})

	// Progress stream
	r.GET("/ws", wsController.HandleWS)

	return jobService
}
