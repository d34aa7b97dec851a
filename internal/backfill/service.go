package backfill

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/fortuna/pennant/internal/ingest"
	"github.com/fortuna/pennant/internal/league"
	"github.com/fortuna/pennant/internal/platform/logging"
)

// MaxRangeDays bounds one job. A full NPB season spans about 200 days.
const MaxRangeDays = 400

// Request represents a backfill invocation request.
type Request struct {
	StartDate time.Time
	EndDate   time.Time
	Mode      string
}

// Validate checks the range and mode and returns the normalized spec.
func (r Request) Validate() (JobSpec, error) {
	mode, err := ingest.ParseMode(r.Mode)
	if err != nil {
		return JobSpec{}, err
	}
	if r.StartDate.IsZero() || r.EndDate.IsZero() {
		return JobSpec{}, errors.Wrap(league.ErrInvalidInput, "start and end dates are required")
	}
	start, end := league.Day(r.StartDate), league.Day(r.EndDate)
	if end.Before(start) {
		return JobSpec{}, errors.Wrap(league.ErrInvalidInput, "end date before start date")
	}
	if days := int(end.Sub(start).Hours()/24) + 1; days > MaxRangeDays {
		return JobSpec{}, errors.Wrapf(league.ErrInvalidInput, "range of %d days exceeds %d", days, MaxRangeDays)
	}
	return JobSpec{Start: start, End: end, Mode: mode}, nil
}

type jobStore interface {
	CreateJob(ctx context.Context, job *Job) (*Job, error)
	UpdateStatus(ctx context.Context, jobID int64, status JobStatus, message string, lastErr error) error
	UpdateProgress(ctx context.Context, jobID int64, p Progress, message string) error
	ResetStuckJobs(ctx context.Context) error
	MarkNextJobRunning(ctx context.Context) (*Job, error)
	GetJob(ctx context.Context, jobID int64) (*Job, error)
	GetActiveJob(ctx context.Context) (*Job, error)
	ListRecentJobs(ctx context.Context, limit int) ([]*Job, error)
}

// Service coordinates job persistence, execution, and status reporting.
type Service struct {
	repo   jobStore
	runner *Runner

	historyLimit int
	pollInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *logging.Logger
}

// NewService constructs a Service. Call Start to launch the worker.
func NewService(repo *Repository, runner *Runner, logger *logging.Logger) *Service {
	return newService(repo, runner, logger)
}

func newService(repo jobStore, runner *Runner, logger *logging.Logger) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		repo:         repo,
		runner:       runner,
		historyLimit: 10,
		pollInterval: 3 * time.Second,
		ctx:          ctx,
		cancel:       cancel,
		logger:       logger.Named("backfill"),
	}
}

// Start launches the background worker loop.
func (s *Service) Start() {
	if err := s.repo.ResetStuckJobs(s.ctx); err != nil {
		s.logger.Warn("failed to reset jobs", "error", err)
	}

	s.wg.Add(1)
	go s.worker()
}

// Shutdown stops the worker and waits for the current job to notice.
func (s *Service) Shutdown(ctx context.Context) error {
	s.cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.wg.Wait()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Enqueue validates req and stores a queued job.
func (s *Service) Enqueue(ctx context.Context, req Request) (*Job, error) {
	spec, err := req.Validate()
	if err != nil {
		return nil, err
	}

	job := &Job{
		StartDate:     spec.Start,
		EndDate:       spec.End,
		Mode:          spec.Mode,
		Status:        JobStatusQueued,
		StatusMessage: sql.NullString{String: "queued", Valid: true},
		ProgressTotal: len(spec.Dates()),
	}
	stored, err := s.repo.CreateJob(ctx, job)
	if err != nil {
		return nil, err
	}

	s.logger.Info("backfill queued", "job_id", stored.JobID,
		"start", spec.Start.Format(league.DateLayout), "end", spec.End.Format(league.DateLayout), "mode", spec.Mode)
	return stored, nil
}

// GetJob returns one job.
func (s *Service) GetJob(ctx context.Context, jobID int64) (*Job, error) {
	return s.repo.GetJob(ctx, jobID)
}

// GetStatus returns the currently running job plus recent history.
func (s *Service) GetStatus(ctx context.Context) (*StatusSummary, error) {
	active, err := s.repo.GetActiveJob(ctx)
	if err != nil {
		return nil, err
	}

	history, err := s.repo.ListRecentJobs(ctx, s.historyLimit)
	if err != nil {
		return nil, err
	}

	return &StatusSummary{
		ActiveJob: active,
		History:   history,
	}, nil
}

func (s *Service) worker() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		if s.ctx.Err() != nil {
			return
		}

		job, err := s.repo.MarkNextJobRunning(s.ctx)
		if err != nil {
			s.logger.Warn("claim job error", "error", err)
		}
		if job == nil {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				continue
			}
		}

		s.executeJob(job)
	}
}

func (s *Service) executeJob(job *Job) {
	reporter := &jobReporter{ctx: s.ctx, repo: s.repo, jobID: job.JobID, logger: s.logger}

	progress, err := s.runner.Run(s.ctx, job.Spec(), reporter)
	switch {
	case errors.Is(err, context.Canceled):
		_ = s.repo.UpdateStatus(context.Background(), job.JobID, JobStatusCancelled, "cancelled by shutdown", err)
	case err != nil:
		_ = s.repo.UpdateStatus(s.ctx, job.JobID, JobStatusFailed,
			fmt.Sprintf("%d of %d dates failed", len(progress.FailedDates), progress.Total), err)
	default:
		_ = s.repo.UpdateStatus(s.ctx, job.JobID, JobStatusCompleted, "job completed", nil)
	}
}

type jobReporter struct {
	ctx    context.Context
	repo   jobStore
	jobID  int64
	logger *logging.Logger
}

func (r *jobReporter) update(p Progress, msg string) {
	if err := r.repo.UpdateProgress(r.ctx, r.jobID, p, msg); err != nil {
		r.logger.Warn("progress update failed", "job_id", r.jobID, "error", err)
	}
}

func (r *jobReporter) OnJobStart(_ JobSpec, total int) {
	r.update(Progress{Total: total}, "job starting")
}

func (r *jobReporter) OnDateDone(res ingest.DateResult, p Progress) {
	r.update(p, fmt.Sprintf("processed %s (%d/%d)", res.Date.Format(league.DateLayout), p.Current, p.Total))
}

func (r *jobReporter) OnDateFailed(date time.Time, _ error, p Progress) {
	r.update(p, fmt.Sprintf("failed %s (%d/%d)", date.Format(league.DateLayout), p.Current, p.Total))
}

func (r *jobReporter) OnJobComplete(p Progress) {
	r.update(p, "job complete")
}

func (r *jobReporter) OnJobError(err error) {
	r.logger.Warn("backfill job error", "job_id", r.jobID, "error", err)
}
