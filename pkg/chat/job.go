package chat

import "time"

// JobStatus is the lifecycle state of a model download job.
type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// IsActive reports whether the job is still pending or running. Unknown
// statuses are inactive.
func (s JobStatus) IsActive() bool {
	return s == JobPending || s == JobRunning
}

// DownloadJob is a background model download tracked by the service.
type DownloadJob struct {
	ID      int64
	ModelID int64
	Status  JobStatus

	// ProgressBytes only grows while the job is active.
	ProgressBytes int64

	Error      *string
	StartedAt  *time.Time
	FinishedAt *time.Time
}
