package backfill

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortuna/pennant/internal/ingest"
	"github.com/fortuna/pennant/internal/league"
	"github.com/fortuna/pennant/internal/platform/logging"
)

type memJobs struct {
	mu       sync.Mutex
	jobs     []*Job
	progress []Progress
}

func (m *memJobs) CreateJob(_ context.Context, job *Job) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cpy := *job
	cpy.JobID = int64(len(m.jobs) + 1)
	cpy.CreatedAt = time.Now()
	m.jobs = append(m.jobs, &cpy)
	out := cpy
	return &out, nil
}

func (m *memJobs) UpdateStatus(_ context.Context, jobID int64, status JobStatus, message string, lastErr error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.jobs[jobID-1]
	j.Status = status
	j.StatusMessage.String, j.StatusMessage.Valid = message, true
	if lastErr != nil {
		j.LastError.String, j.LastError.Valid = lastErr.Error(), true
	}
	return nil
}

func (m *memJobs) UpdateProgress(_ context.Context, jobID int64, p Progress, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.jobs[jobID-1]
	j.ProgressCurrent, j.ProgressTotal = p.Current, p.Total
	j.GamesAccepted, j.BlocksDropped = p.GamesAccepted, p.BlocksDropped
	m.progress = append(m.progress, p)
	return nil
}

func (m *memJobs) ResetStuckJobs(context.Context) error { return nil }

func (m *memJobs) MarkNextJobRunning(context.Context) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.Status == JobStatusQueued {
			j.Status = JobStatusRunning
			out := *j
			return &out, nil
		}
	}
	return nil, nil
}

func (m *memJobs) GetJob(_ context.Context, jobID int64) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if jobID < 1 || int(jobID) > len(m.jobs) {
		return nil, league.ErrNotFound
	}
	out := *m.jobs[jobID-1]
	return &out, nil
}

func (m *memJobs) GetActiveJob(context.Context) (*Job, error) { return nil, nil }

func (m *memJobs) ListRecentJobs(_ context.Context, limit int) ([]*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Job
	for i := len(m.jobs) - 1; i >= 0 && len(out) < limit; i-- {
		j := *m.jobs[i]
		out = append(out, &j)
	}
	return out, nil
}

func TestService_EnqueueAndRun(t *testing.T) {
	jobs := &memJobs{}
	ing := &fakeIngester{fails: map[string]bool{"2025-03-30": true}}
	svc := newService(jobs, NewRunner(ing, &fakeRecomputer{}, 2, logging.NewNop()), logging.NewNop())
	svc.pollInterval = 10 * time.Millisecond

	ok, err := svc.Enqueue(context.Background(), Request{StartDate: start, EndDate: start.AddDate(0, 0, 1), Mode: "replace"})
	require.NoError(t, err)
	assert.Equal(t, ingest.ModeReplace, ok.Mode)
	assert.Equal(t, 2, ok.ProgressTotal)

	bad, err := svc.Enqueue(context.Background(), Request{StartDate: start, EndDate: start.AddDate(0, 0, 2)})
	require.NoError(t, err)

	svc.Start()
	defer func() {
		require.NoError(t, svc.Shutdown(context.Background()))
	}()

	require.Eventually(t, func() bool {
		a, _ := svc.GetJob(context.Background(), ok.JobID)
		b, _ := svc.GetJob(context.Background(), bad.JobID)
		return a.Status == JobStatusCompleted && b.Status == JobStatusFailed
	}, 2*time.Second, 10*time.Millisecond)

	done, err := svc.GetJob(context.Background(), ok.JobID)
	require.NoError(t, err)
	assert.Equal(t, 2, done.ProgressCurrent)
	assert.Equal(t, 12, done.GamesAccepted)

	failed, err := svc.GetJob(context.Background(), bad.JobID)
	require.NoError(t, err)
	assert.Contains(t, failed.LastError.String, "2025-03-30")

	status, err := svc.GetStatus(context.Background())
	require.NoError(t, err)
	assert.Len(t, status.History, 2)
}

func TestService_EnqueueRejectsInvalid(t *testing.T) {
	t.Parallel()

	svc := newService(&memJobs{}, NewRunner(&fakeIngester{}, nil, 1, logging.NewNop()), logging.NewNop())
	_, err := svc.Enqueue(context.Background(), Request{StartDate: start, EndDate: start.AddDate(0, 0, -3)})
	assert.ErrorIs(t, err, league.ErrInvalidInput)
}
