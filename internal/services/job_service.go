package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/convoscope/backend/internal/config"
	"github.com/convoscope/backend/internal/logger"
	"github.com/convoscope/backend/internal/models"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

// PipelineExecutor runs the analysis pipeline. Satisfied by
// PipelineRunner; swapped out in tests.
type PipelineExecutor interface {
	Run(ctx context.Context, contentHash string, data []byte, opts models.AnalysisOptions, progress ProgressFunc) (*models.AnalysisResult, error)
}

// pipelineRun is the shared state of one in-flight execution. Multiple
// jobs with the same (content hash, options hash) attach to one run; the
// run context is cancelled only when every attached job has detached.
type pipelineRun struct {
	ctx    context.Context
	cancel context.CancelFunc
	jobIDs map[string]bool
}

// flightOutcome is what one pipeline execution yields to every attached
// job: the result reference plus the per-message insight notes, so the
// completion event can carry them without refetching the result.
type flightOutcome struct {
	resultRef string
	notes     []string
}

type flightResult struct {
	resultRef string
	notes     []string
	err       error
}

// JobService owns the job registry and the worker pool. A fixed number of
// workers pull job IDs from a FIFO queue; jobs beyond the concurrency
// ceiling stay pending until a slot frees. At most one pipeline execution
// runs per cache key at any time.
type JobService struct {
	db     *gorm.DB
	cache  *CacheService
	hub    *EventHub
	runner PipelineExecutor
	cfg    *config.Config

	jobQueue chan string
	stopChan chan struct{}
	wg       sync.WaitGroup
	flight   singleflight.Group

	mu      sync.Mutex
	runs    map[string]*pipelineRun
	cancels map[string]chan struct{}

	loadArchive func(contentHash string) ([]byte, error)
}

// NewJobService creates the service and starts its workers.
func NewJobService(db *gorm.DB, cache *CacheService, hub *EventHub, runner PipelineExecutor, cfg *config.Config) *JobService {
	js := &JobService{
		db:       db,
		cache:    cache,
		hub:      hub,
		runner:   runner,
		cfg:      cfg,
		jobQueue: make(chan string, cfg.JobQueueSize),
		stopChan: make(chan struct{}),
		runs:     make(map[string]*pipelineRun),
		cancels:  make(map[string]chan struct{}),
	}
	js.loadArchive = js.readArchiveFromDisk

	for i := 0; i < cfg.MaxConcurrentJobs; i++ {
		js.wg.Add(1)
		go js.worker(i)
	}
	return js
}

// Stop shuts the workers down after their current job.
func (js *JobService) Stop() {
	close(js.stopChan)
	js.wg.Wait()
}

func (js *JobService) worker(id int) {
	defer js.wg.Done()

	for {
		select {
		case jobID := <-js.jobQueue:
			logger.Info("Worker picked up job", map[string]interface{}{
				"workerID": id,
				"jobID":    jobID,
			})
			js.processJob(jobID)
		case <-js.stopChan:
			logger.Info("Worker stopping", map[string]interface{}{"workerID": id})
			return
		}
	}
}

// Submit validates the request, registers a pending job, and enqueues it.
func (js *JobService) Submit(contentHash string, opts models.AnalysisOptions) (string, error) {
	var archive models.Archive
	if err := js.db.Where("content_hash = ?", contentHash).First(&archive).Error; err != nil {
		return "", fmt.Errorf("unknown archive %s", contentHash)
	}
	if err := opts.Validate(); err != nil {
		return "", err
	}

	job := models.AnalysisJob{
		ID:          uuid.New().String(),
		ContentHash: contentHash,
		OptionsHash: opts.Hash(),
		Options:     opts.ToJSONB(),
		Status:      models.JobStatusPending,
		CurrentStep: "Queued",
	}
	if err := js.db.Create(&job).Error; err != nil {
		return "", fmt.Errorf("failed to create job: %w", err)
	}

	js.mu.Lock()
	js.cancels[job.ID] = make(chan struct{})
	js.mu.Unlock()

	select {
	case js.jobQueue <- job.ID:
	default:
		js.db.Model(&models.AnalysisJob{}).Where("id = ?", job.ID).Updates(map[string]interface{}{
			"status":     models.JobStatusFailed,
			"error_kind": models.ErrorKindInternal,
			"error":      "job queue full",
		})
		return "", fmt.Errorf("job queue full")
	}

	logger.WithJob(job.ID).Info("Analysis job submitted")
	return job.ID, nil
}

// Status returns a snapshot of the job.
func (js *JobService) Status(jobID string) (*models.AnalysisJob, error) {
	var job models.AnalysisJob
	if err := js.db.First(&job, "id = ?", jobID).Error; err != nil {
		return nil, fmt.Errorf("job not found")
	}
	return &job, nil
}

// Cancel moves a pending or processing job to cancelled. Terminal jobs are
// left untouched. Cooperative: a processing job stops within one
// classification batch; its partial results are never cached.
func (js *JobService) Cancel(jobID string) error {
	res := js.db.Model(&models.AnalysisJob{}).
		Where("id = ? AND status IN ?", jobID, []models.JobStatus{models.JobStatusPending, models.JobStatusProcessing}).
		Updates(map[string]interface{}{
			"status":       models.JobStatusCancelled,
			"error_kind":   models.ErrorKindCancelled,
			"current_step": "Cancelled",
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("job not found or already finished")
	}

	js.mu.Lock()
	if ch, ok := js.cancels[jobID]; ok {
		close(ch)
		delete(js.cancels, jobID)
	}
	js.mu.Unlock()

	now := time.Now().UTC()
	js.db.Model(&models.AnalysisJob{}).Where("id = ?", jobID).Update("completed_at", &now)

	js.hub.Publish(ProgressEvent{
		Type:   EventError,
		JobID:  jobID,
		Status: string(models.JobStatusCancelled),
		Detail: "cancelled by owner",
	})
	logger.WithJob(jobID).Info("Job cancelled")
	return nil
}

// FetchResult returns the immutable serialized result for a result
// reference.
func (js *JobService) FetchResult(resultRef string) ([]byte, error) {
	parts := strings.SplitN(resultRef, ":", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid result reference")
	}
	data, ok := js.cache.Get(parts[0], parts[1])
	if !ok {
		return nil, fmt.Errorf("result no longer available")
	}
	return data, nil
}

// List returns jobs newest first, optionally filtered by status.
func (js *JobService) List(status string) ([]models.AnalysisJob, error) {
	query := js.db.Order("created_at DESC")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var jobs []models.AnalysisJob
	if err := query.Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// ActiveJobs counts jobs that are pending or processing.
func (js *JobService) ActiveJobs() int64 {
	var count int64
	js.db.Model(&models.AnalysisJob{}).
		Where("status IN ?", []models.JobStatus{models.JobStatusPending, models.JobStatusProcessing}).
		Count(&count)
	return count
}

func (js *JobService) processJob(jobID string) {
	log := logger.WithJob(jobID)

	var job models.AnalysisJob
	if err := js.db.First(&job, "id = ?", jobID).Error; err != nil {
		log.WithField("error", err.Error()).Error("Failed to load job")
		return
	}
	if job.Status != models.JobStatusPending {
		// cancelled while queued
		return
	}

	now := time.Now().UTC()
	res := js.db.Model(&models.AnalysisJob{}).
		Where("id = ? AND status = ?", jobID, models.JobStatusPending).
		Updates(map[string]interface{}{
			"status":       models.JobStatusProcessing,
			"started_at":   &now,
			"current_step": "Starting analysis",
		})
	if res.Error != nil || res.RowsAffected == 0 {
		return
	}
	js.hub.Publish(ProgressEvent{
		Type:   EventProgress,
		JobID:  jobID,
		Status: string(models.JobStatusProcessing),
		Step:   "Starting analysis",
	})

	opts := decodeOptions(job.Options)
	key := job.ContentHash + ":" + job.OptionsHash

	// Cache hit completes immediately; no pipeline execution.
	if cached, ok := js.cache.Get(job.ContentHash, job.OptionsHash); ok {
		log.Info("Cache hit, skipping pipeline")
		js.completeJob(jobID, key, resultNotes(cached))
		return
	}

	data, err := js.loadArchive(job.ContentHash)
	if err != nil {
		js.failJob(jobID, models.ErrorKindInternal, err.Error())
		return
	}

	cancelCh := js.cancelChannel(jobID)
	for {
		run := js.attach(key, jobID)
		resCh := make(chan flightResult, 1)
		go func() {
			v, err, shared := js.flight.Do(key, func() (interface{}, error) {
				outcome, err := js.execute(run.ctx, key, job.ContentHash, data, opts)
				if err != nil {
					return nil, err
				}
				return outcome, nil
			})
			if shared {
				log.Debug("Attached to in-flight execution")
			}
			if err != nil {
				resCh <- flightResult{err: err}
				return
			}
			outcome := v.(*flightOutcome)
			resCh <- flightResult{resultRef: outcome.resultRef, notes: outcome.notes}
		}()

		select {
		case <-cancelCh:
			js.detach(key, jobID)
			log.Info("Job cancelled while processing")
			return
		case result := <-resCh:
			js.detach(key, jobID)
			if result.err != nil {
				// A shared execution can come back cancelled even though
				// this job was never cancelled: its other owners all left
				// before we attached. That cancellation is not ours, so
				// run the pipeline again on a fresh context.
				var cancelled *CancelledError
				if errors.As(result.err, &cancelled) && js.stillProcessing(jobID) {
					log.Info("Shared execution was cancelled by its other owners, retrying")
					continue
				}
				js.finishWithError(jobID, result.err)
				return
			}
			js.completeJob(jobID, result.resultRef, result.notes)
			return
		}
	}
}

func (js *JobService) stillProcessing(jobID string) bool {
	var job models.AnalysisJob
	if err := js.db.First(&job, "id = ?", jobID).Error; err != nil {
		return false
	}
	return job.Status == models.JobStatusProcessing
}

// resultNotes pulls the insight notes back out of a serialized result so a
// cache-hit completion event carries the same notes a fresh run would.
func resultNotes(serialized []byte) []string {
	var partial struct {
		Notes []string `json:"notes"`
	}
	if err := json.Unmarshal(serialized, &partial); err != nil {
		return nil
	}
	return partial.Notes
}

// execute runs the pipeline once per key and caches the result. Runs
// inside singleflight, so concurrent submissions of the same key share it.
func (js *JobService) execute(ctx context.Context, key, contentHash string, data []byte, opts models.AnalysisOptions) (*flightOutcome, error) {
	progress := func(percent int, step string) {
		js.broadcastProgress(key, percent, step)
	}

	result, err := js.runner.Run(ctx, contentHash, data, opts, progress)
	if err != nil {
		return nil, err
	}

	serialized, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize result: %w", err)
	}
	if err := js.cache.Put(contentHash, result.OptionsHash, opts.ToJSONB(), serialized); err != nil {
		// cache trouble never fails the job
		logger.WithError(err, "job_service").Warn("Result not cached")
	}
	return &flightOutcome{resultRef: key, notes: result.Notes}, nil
}

// broadcastProgress mirrors pipeline progress onto every job attached to
// the execution.
func (js *JobService) broadcastProgress(key string, percent int, step string) {
	js.mu.Lock()
	run, ok := js.runs[key]
	var jobIDs []string
	if ok {
		for id := range run.jobIDs {
			jobIDs = append(jobIDs, id)
		}
	}
	js.mu.Unlock()

	for _, jobID := range jobIDs {
		js.db.Model(&models.AnalysisJob{}).
			Where("id = ? AND status = ?", jobID, models.JobStatusProcessing).
			Updates(map[string]interface{}{
				"progress":     percent,
				"current_step": step,
			})
		js.hub.Publish(ProgressEvent{
			Type:     EventProgress,
			JobID:    jobID,
			Progress: percent,
			Step:     step,
			Status:   string(models.JobStatusProcessing),
		})
	}
}

func (js *JobService) attach(key, jobID string) *pipelineRun {
	js.mu.Lock()
	defer js.mu.Unlock()

	run, ok := js.runs[key]
	if !ok {
		ctx, cancel := context.WithTimeout(context.Background(), js.cfg.JobTimeout)
		run = &pipelineRun{ctx: ctx, cancel: cancel, jobIDs: make(map[string]bool)}
		js.runs[key] = run
	}
	run.jobIDs[jobID] = true
	return run
}

// detach drops a job from its run; the last job out cancels the run
// context so an execution nobody wants stops at the next batch boundary.
// Forgetting the flight key makes the next submission start a fresh
// execution instead of joining the doomed one while it winds down.
func (js *JobService) detach(key, jobID string) {
	js.mu.Lock()
	defer js.mu.Unlock()

	run, ok := js.runs[key]
	if !ok {
		return
	}
	delete(run.jobIDs, jobID)
	if len(run.jobIDs) == 0 {
		run.cancel()
		delete(js.runs, key)
		js.flight.Forget(key)
	}
}

func (js *JobService) cancelChannel(jobID string) <-chan struct{} {
	js.mu.Lock()
	defer js.mu.Unlock()

	ch, ok := js.cancels[jobID]
	if !ok {
		// already cancelled; a closed channel keeps the select honest
		ch = make(chan struct{})
		close(ch)
	}
	return ch
}

func (js *JobService) completeJob(jobID, resultRef string, notes []string) {
	now := time.Now().UTC()
	res := js.db.Model(&models.AnalysisJob{}).
		Where("id = ? AND status = ?", jobID, models.JobStatusProcessing).
		Updates(map[string]interface{}{
			"status":       models.JobStatusComplete,
			"progress":     100,
			"current_step": "Analysis complete",
			"result_ref":   resultRef,
			"completed_at": &now,
		})
	if res.Error != nil || res.RowsAffected == 0 {
		return
	}

	js.mu.Lock()
	delete(js.cancels, jobID)
	js.mu.Unlock()

	js.hub.Publish(ProgressEvent{
		Type:      EventComplete,
		JobID:     jobID,
		Progress:  100,
		Status:    string(models.JobStatusComplete),
		ResultRef: resultRef,
		Notes:     notes,
	})
	logger.WithJob(jobID).Info("Job complete")
}

func (js *JobService) finishWithError(jobID string, err error) {
	var cancelled *CancelledError
	var timeout *TimeoutError
	var malformed *MalformedArchiveError

	switch {
	case errors.As(err, &cancelled):
		// Cancel() normally moved the row already and the guarded update
		// below no-ops. A cancellation that reaches a job still marked
		// processing must not leave it stranded there.
		js.markCancelled(jobID, err.Error())
	case errors.As(err, &timeout):
		js.failJob(jobID, models.ErrorKindTimeout, err.Error())
	case errors.As(err, &malformed):
		js.failJob(jobID, models.ErrorKindMalformedArchive, err.Error())
	default:
		js.failJob(jobID, models.ErrorKindInternal, err.Error())
	}
}

func (js *JobService) failJob(jobID, kind, detail string) {
	now := time.Now().UTC()
	res := js.db.Model(&models.AnalysisJob{}).
		Where("id = ? AND status = ?", jobID, models.JobStatusProcessing).
		Updates(map[string]interface{}{
			"status":       models.JobStatusFailed,
			"error_kind":   kind,
			"error":        detail,
			"current_step": "Failed",
			"completed_at": &now,
		})
	if res.Error != nil || res.RowsAffected == 0 {
		return
	}

	js.mu.Lock()
	delete(js.cancels, jobID)
	js.mu.Unlock()

	js.hub.Publish(ProgressEvent{
		Type:      EventError,
		JobID:     jobID,
		Status:    string(models.JobStatusFailed),
		ErrorKind: kind,
		Detail:    detail,
	})
	logger.WithJob(jobID).WithField("error_kind", kind).Warn("Job failed")
}

// markCancelled settles a processing row whose execution was cancelled
// outside of Cancel(). No-op when the row is already terminal.
func (js *JobService) markCancelled(jobID, detail string) {
	now := time.Now().UTC()
	res := js.db.Model(&models.AnalysisJob{}).
		Where("id = ? AND status = ?", jobID, models.JobStatusProcessing).
		Updates(map[string]interface{}{
			"status":       models.JobStatusCancelled,
			"error_kind":   models.ErrorKindCancelled,
			"current_step": "Cancelled",
			"completed_at": &now,
		})
	if res.Error != nil || res.RowsAffected == 0 {
		return
	}

	js.mu.Lock()
	delete(js.cancels, jobID)
	js.mu.Unlock()

	js.hub.Publish(ProgressEvent{
		Type:      EventError,
		JobID:     jobID,
		Status:    string(models.JobStatusCancelled),
		ErrorKind: models.ErrorKindCancelled,
		Detail:    detail,
	})
	logger.WithJob(jobID).Info("Job cancelled during execution")
}

func (js *JobService) readArchiveFromDisk(contentHash string) ([]byte, error) {
	var archive models.Archive
	if err := js.db.Where("content_hash = ?", contentHash).First(&archive).Error; err != nil {
		return nil, fmt.Errorf("archive record missing for %s", contentHash)
	}
	data, err := os.ReadFile(archive.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive bytes: %w", err)
	}
	return data, nil
}

func decodeOptions(raw models.JSONB) models.AnalysisOptions {
	opts := models.DefaultAnalysisOptions()
	if raw == nil {
		return opts
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return opts
	}
	_ = json.Unmarshal(data, &opts)
	return opts
}
