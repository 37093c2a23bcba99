package services

import (
	"fmt"
	"time"
)

// MalformedArchiveError means the archive structure is unusable. It aborts
// the whole job; per-message problems never raise it.
type MalformedArchiveError struct {
	Reason string
}

func (e *MalformedArchiveError) Error() string {
	return fmt.Sprintf("malformed archive: %s", e.Reason)
}

// TimeoutError means the job exceeded its wall-clock budget.
type TimeoutError struct {
	Limit time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("analysis exceeded the %s time budget", e.Limit)
}

// CancelledError means the job was cancelled by its owner. Not a failure;
// partial results are discarded and never cached.
type CancelledError struct{}

func (e *CancelledError) Error() string {
	return "analysis cancelled"
}

// CacheIOError wraps a cache read or write problem. Callers treat it as a
// cache miss; it never fails a job.
type CacheIOError struct {
	Op  string
	Err error
}

func (e *CacheIOError) Error() string {
	return fmt.Sprintf("cache %s failed: %v", e.Op, e.Err)
}

func (e *CacheIOError) Unwrap() error {
	return e.Err
}
