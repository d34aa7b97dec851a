package backfill

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"

	"github.com/fortuna/pennant/internal/league"
	"github.com/fortuna/pennant/internal/store"
)

// Repository handles persistence for backfill jobs.
type Repository struct {
	db *store.Database
}

// NewRepository constructs a Repository.
func NewRepository(db *store.Database) *Repository {
	return &Repository{db: db}
}

// CreateJob inserts a new job row and returns the stored record.
func (r *Repository) CreateJob(ctx context.Context, job *Job) (*Job, error) {
	query := `
		INSERT INTO backfill_jobs (start_date, end_date, mode, status, status_message, progress_total)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + jobColumns

	stored := &Job{}
	err := r.db.DB().GetContext(ctx, stored, query,
		job.StartDate, job.EndDate, job.Mode, job.Status, job.StatusMessage, job.ProgressTotal)
	if err != nil {
		return nil, errors.Wrap(err, "create backfill job")
	}
	return stored, nil
}

// UpdateStatus updates status, message and optional error.
func (r *Repository) UpdateStatus(ctx context.Context, jobID int64, status JobStatus, message string, lastErr error) error {
	query := `
		UPDATE backfill_jobs
		SET status = $2::text,
			status_message = $3,
			last_error = $4,
			updated_at = NOW(),
			completed_at = CASE WHEN $2::text IN ('completed','failed','cancelled') THEN NOW() ELSE completed_at END
		WHERE job_id = $1
	`

	var errText sql.NullString
	if lastErr != nil {
		errText = sql.NullString{String: lastErr.Error(), Valid: true}
	}

	if _, err := r.db.DB().ExecContext(ctx, query, jobID, string(status), message, errText); err != nil {
		return errors.Wrap(err, "update job status")
	}
	return nil
}

// UpdateProgress updates the progress counters and message.
func (r *Repository) UpdateProgress(ctx context.Context, jobID int64, p Progress, message string) error {
	query := `
		UPDATE backfill_jobs
		SET progress_current = $2,
			progress_total = $3,
			games_accepted = $4,
			blocks_dropped = $5,
			status_message = $6,
			updated_at = NOW()
		WHERE job_id = $1
	`

	_, err := r.db.DB().ExecContext(ctx, query, jobID, p.Current, p.Total, p.GamesAccepted, p.BlocksDropped, message)
	if err != nil {
		return errors.Wrap(err, "update job progress")
	}
	return nil
}

// ResetStuckJobs moves running jobs back to queued (used during service restarts).
func (r *Repository) ResetStuckJobs(ctx context.Context) error {
	_, err := r.db.DB().ExecContext(ctx, `
		UPDATE backfill_jobs
		SET status = 'queued',
			status_message = 'reset after service restart',
			updated_at = NOW()
		WHERE status = 'running'
	`)
	if err != nil {
		return errors.Wrap(err, "reset stuck jobs")
	}
	return nil
}

// MarkNextJobRunning atomically claims the next queued job. It returns nil when
// the queue is empty.
func (r *Repository) MarkNextJobRunning(ctx context.Context) (*Job, error) {
	query := `
		WITH next_job AS (
			SELECT job_id
			FROM backfill_jobs
			WHERE status = 'queued'
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE backfill_jobs
		SET status = 'running',
			status_message = 'starting',
			started_at = COALESCE(started_at, NOW()),
			updated_at = NOW()
		FROM next_job
		WHERE backfill_jobs.job_id = next_job.job_id
		RETURNING backfill_jobs.job_id, backfill_jobs.start_date, backfill_jobs.end_date,
			backfill_jobs.mode, backfill_jobs.status, backfill_jobs.status_message,
			backfill_jobs.progress_current, backfill_jobs.progress_total,
			backfill_jobs.games_accepted, backfill_jobs.blocks_dropped, backfill_jobs.last_error,
			backfill_jobs.created_at, backfill_jobs.updated_at,
			backfill_jobs.started_at, backfill_jobs.completed_at
	`

	job := &Job{}
	err := r.db.DB().GetContext(ctx, job, query)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "claim backfill job")
	}
	return job, nil
}

// GetJob returns one job by id.
func (r *Repository) GetJob(ctx context.Context, jobID int64) (*Job, error) {
	job := &Job{}
	err := r.db.DB().GetContext(ctx, job, `SELECT `+jobColumns+` FROM backfill_jobs WHERE job_id = $1`, jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(league.ErrNotFound, "backfill job %d", jobID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "get backfill job")
	}
	return job, nil
}

// GetActiveJob returns the currently running job, if any.
func (r *Repository) GetActiveJob(ctx context.Context) (*Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM backfill_jobs
		WHERE status = 'running'
		ORDER BY started_at DESC
		LIMIT 1
	`

	job := &Job{}
	err := r.db.DB().GetContext(ctx, job, query)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get active job")
	}
	return job, nil
}

// ListRecentJobs returns the most recent jobs.
func (r *Repository) ListRecentJobs(ctx context.Context, limit int) ([]*Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM backfill_jobs
		ORDER BY created_at DESC
		LIMIT $1
	`

	var jobs []*Job
	if err := r.db.DB().SelectContext(ctx, &jobs, query, limit); err != nil {
		return nil, errors.Wrap(err, "list recent jobs")
	}
	return jobs, nil
}
