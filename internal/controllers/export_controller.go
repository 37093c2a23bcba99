package controllers

import (
	"fmt"
	"net/http"

	"github.com/convoscope/backend/internal/models"
	"github.com/convoscope/backend/internal/services"
	"github.com/gin-gonic/gin"
)

type ExportController struct {
	jobs *services.JobService
}

func NewExportController(jobs *services.JobService) *ExportController {
	return &ExportController{jobs: jobs}
}

type exportRequest struct {
	JobID string `json:"job_id"`
}

// CreateExport accepts {job_id} and serves the result download. Only JSON
// is produced; other formats are left to the frontend.
func (ec *ExportController) CreateExport(c *gin.Context) {
	var req exportRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.JobID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "job_id is required"})
		return
	}
	ec.export(c, req.JobID)
}

// ExportResult serves a complete job's result document as a JSON download.
// The bytes are exactly what the pipeline produced; re-exporting never
// changes them.
func (ec *ExportController) ExportResult(c *gin.Context) {
	ec.export(c, c.Param("jobId"))
}

func (ec *ExportController) export(c *gin.Context, jobID string) {
	job, err := ec.jobs.Status(jobID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}
	if job.Status != models.JobStatusComplete {
		c.JSON(http.StatusConflict, gin.H{
			"error":  "Only complete jobs can be exported",
			"status": job.Status,
		})
		return
	}

	data, err := ec.jobs.FetchResult(job.ResultRef)
	if err != nil {
		c.JSON(http.StatusGone, gin.H{"error": err.Error()})
		return
	}

	filename := fmt.Sprintf("convoscope-analysis-%s.json", jobID)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/json", data)
}
