package models

import (
	"time"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusComplete   JobStatus = "complete"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Terminal reports whether no further transitions are allowed from s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusComplete || s == JobStatusFailed || s == JobStatusCancelled
}

// Error kinds surfaced on failed jobs.
const (
	ErrorKindMalformedArchive = "malformed_archive"
	ErrorKindTimeout          = "timeout"
	ErrorKindCancelled        = "cancelled"
	ErrorKindInternal         = "internal"
)

// AnalysisJob is one background execution of the pipeline over one
// archive+options pair. Status transitions are one-directional:
// pending -> processing -> {complete|failed|cancelled}, pending -> cancelled.
type AnalysisJob struct {
	ID          string     `json:"jobId" gorm:"primaryKey"`
	ContentHash string     `json:"contentHash" gorm:"index;not null"`
	OptionsHash string     `json:"optionsHash" gorm:"index;not null"`
	Options     JSONB      `json:"options" gorm:"type:jsonb"`
	Status      JobStatus  `json:"status" gorm:"not null;default:'pending'"`
	Progress    int        `json:"progress" gorm:"default:0"`
	CurrentStep string     `json:"currentStep"`
	ErrorKind   string     `json:"errorKind,omitempty"`
	Error       string     `json:"error,omitempty"`
	ResultRef   string     `json:"resultRef,omitempty"`
	StartedAt   *time.Time `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func (AnalysisJob) TableName() string {
	return "analysis_jobs"
}
