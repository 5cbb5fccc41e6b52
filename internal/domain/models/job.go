package models

import "time"

// JobStatus is the lifecycle state of a queued analysis.
type JobStatus string

const (
	JobQueued  JobStatus = "queued"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// Job tracks an asynchronous analysis.
type Job struct {
	ID        string             `json:"id"`
	Status    JobStatus          `json:"status"`
	Attempts  int                `json:"attempts"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
	Request   *AnalyzeRequest    `json:"request,omitempty"`
	Result    *ChangePointRecord `json:"result,omitempty"`
	Error     *ErrorDetail       `json:"error,omitempty"`
}

// ErrorDetail is a mapped failure reported outside an HTTP error response.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Terminal reports whether the job will not change again.
func (j *Job) Terminal() bool {
	return j.Status == JobDone || j.Status == JobFailed
}
