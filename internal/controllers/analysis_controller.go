package controllers

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/convoscope/backend/internal/models"
	"github.com/convoscope/backend/internal/services"
	"github.com/gin-gonic/gin"
)

type AnalysisController struct {
	jobs *services.JobService
}

func NewAnalysisController(jobs *services.JobService) *AnalysisController {
	return &AnalysisController{jobs: jobs}
}

type startAnalysisRequest struct {
	ContentHash string          `json:"content_hash"`
	Options     json.RawMessage `json:"options"`
}

// StartAnalysis submits a new analysis job for an uploaded archive.
// Omitted options take their defaults; unknown option keys are rejected.
func (ac *AnalysisController) StartAnalysis(c *gin.Context) {
	var req startAnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if req.ContentHash == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content_hash is required"})
		return
	}

	opts := models.DefaultAnalysisOptions()
	if len(req.Options) > 0 {
		dec := json.NewDecoder(bytes.NewReader(req.Options))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&opts); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unrecognized analysis option: " + err.Error()})
			return
		}
	}

	jobID, err := ac.jobs.Submit(req.ContentHash, opts)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"jobId":  jobID,
		"status": models.JobStatusPending,
	})
}

// GetAnalysisStatus returns the job row: status, progress, current step,
// and error details if the job failed.
func (ac *AnalysisController) GetAnalysisStatus(c *gin.Context) {
	job, err := ac.jobs.Status(c.Param("jobId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}

// GetAnalysisResult returns the full result document for a complete job.
func (ac *AnalysisController) GetAnalysisResult(c *gin.Context) {
	job, err := ac.jobs.Status(c.Param("jobId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}
	if job.Status != models.JobStatusComplete {
		c.JSON(http.StatusConflict, gin.H{
			"error":  "Job has no result",
			"status": job.Status,
		})
		return
	}

	data, err := ac.jobs.FetchResult(job.ResultRef)
	if err != nil {
		c.JSON(http.StatusGone, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/json", data)
}

// CancelAnalysis cancels a pending or processing job. Finished jobs are
// not affected.
func (ac *AnalysisController) CancelAnalysis(c *gin.Context) {
	jobID := c.Param("jobId")
	if err := ac.jobs.Cancel(jobID); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"jobId":  jobID,
		"status": models.JobStatusCancelled,
	})
}

// GetJobs lists jobs, newest first, optionally filtered by status.
func (ac *AnalysisController) GetJobs(c *gin.Context) {
	jobs, err := ac.jobs.List(c.Query("status"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch jobs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}
