package backfill

import (
	"database/sql"
	"time"

	"github.com/fortuna/pennant/internal/ingest"
)

// JobStatus represents the lifecycle state for a job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Job models the database representation of a backfill job.
type Job struct {
	JobID           int64          `db:"job_id" json:"job_id"`
	StartDate       time.Time      `db:"start_date" json:"start_date"`
	EndDate         time.Time      `db:"end_date" json:"end_date"`
	Mode            ingest.Mode    `db:"mode" json:"mode"`
	Status          JobStatus      `db:"status" json:"status"`
	StatusMessage   sql.NullString `db:"status_message" json:"status_message"`
	ProgressCurrent int            `db:"progress_current" json:"progress_current"`
	ProgressTotal   int            `db:"progress_total" json:"progress_total"`
	GamesAccepted   int            `db:"games_accepted" json:"games_accepted"`
	BlocksDropped   int            `db:"blocks_dropped" json:"blocks_dropped"`
	LastError       sql.NullString `db:"last_error" json:"last_error"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
	StartedAt       sql.NullTime   `db:"started_at" json:"started_at"`
	CompletedAt     sql.NullTime   `db:"completed_at" json:"completed_at"`
}

const jobColumns = `job_id, start_date, end_date, mode, status, status_message,
	progress_current, progress_total, games_accepted, blocks_dropped, last_error,
	created_at, updated_at, started_at, completed_at`

// Spec returns the work described by the job.
func (j *Job) Spec() JobSpec {
	return JobSpec{Start: j.StartDate, End: j.EndDate, Mode: j.Mode}
}

// JobSpec describes the work to be performed by the runner.
type JobSpec struct {
	Start  time.Time   `json:"start"`
	End    time.Time   `json:"end"`
	Mode   ingest.Mode `json:"mode"`
	DryRun bool        `json:"dry_run"`
}

// Dates lists every calendar date of the spec, oldest first.
func (s JobSpec) Dates() []time.Time {
	return enumerateDates(s.Start, s.End)
}

// Progress is a snapshot of a running job.
type Progress struct {
	Current       int      `json:"current"`
	Total         int      `json:"total"`
	GamesAccepted int      `json:"games_accepted"`
	BlocksDropped int      `json:"blocks_dropped"`
	FailedDates   []string `json:"failed_dates,omitempty"`
}

// Reporter receives lifecycle callbacks from the runner. Calls are serialized.
type Reporter interface {
	OnJobStart(spec JobSpec, total int)
	OnDateDone(res ingest.DateResult, progress Progress)
	OnDateFailed(date time.Time, err error, progress Progress)
	OnJobComplete(progress Progress)
	OnJobError(err error)
}

// StatusSummary is returned to API callers.
type StatusSummary struct {
	ActiveJob *Job   `json:"active_job,omitempty"`
	History   []*Job `json:"recent_jobs,omitempty"`
}

func enumerateDates(start, end time.Time) []time.Time {
	if end.Before(start) {
		start, end = end, start
	}

	var dates []time.Time
	current := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	final := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)

	for !current.After(final) {
		dates = append(dates, current)
		current = current.AddDate(0, 0, 1)
	}

	return dates
}
