package backfill

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortuna/pennant/internal/ingest"
	"github.com/fortuna/pennant/internal/league"
	"github.com/fortuna/pennant/internal/platform/logging"
)

var start = time.Date(2025, 3, 28, 0, 0, 0, 0, time.UTC)

type fakeIngester struct {
	mu    sync.Mutex
	seen  map[string]ingest.Mode
	fails map[string]bool
}

func (f *fakeIngester) IngestDate(_ context.Context, date time.Time, mode ingest.Mode) (ingest.DateResult, error) {
	key := date.Format(league.DateLayout)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seen == nil {
		f.seen = map[string]ingest.Mode{}
	}
	f.seen[key] = mode
	if f.fails[key] {
		return ingest.DateResult{}, errors.Mark(errors.New("page unavailable"), league.ErrDependencyUnavailable)
	}
	return ingest.DateResult{Date: date, Mode: mode, Accepted: 6, Dropped: 1}, nil
}

type fakeRecomputer struct {
	seasons []int
}

func (f *fakeRecomputer) Recompute(_ context.Context, season int) (map[league.League][]league.StandingEntry, error) {
	f.seasons = append(f.seasons, season)
	return nil, nil
}

type recordingReporter struct {
	total    int
	done     int
	failed   []time.Time
	complete *Progress
	errs     []error
}

func (r *recordingReporter) OnJobStart(_ JobSpec, total int) { r.total = total }
func (r *recordingReporter) OnDateDone(ingest.DateResult, Progress) {
	r.done++
}
func (r *recordingReporter) OnDateFailed(date time.Time, _ error, _ Progress) {
	r.failed = append(r.failed, date)
}
func (r *recordingReporter) OnJobComplete(p Progress) { r.complete = &p }
func (r *recordingReporter) OnJobError(err error)     { r.errs = append(r.errs, err) }

func TestRunner_AllDates(t *testing.T) {
	t.Parallel()

	ing := &fakeIngester{}
	rec := &fakeRecomputer{}
	rep := &recordingReporter{}
	runner := NewRunner(ing, rec, 3, logging.NewNop())

	spec := JobSpec{Start: start, End: start.AddDate(0, 0, 6), Mode: ingest.ModeReplace}
	progress, err := runner.Run(context.Background(), spec, rep)
	require.NoError(t, err)

	assert.Equal(t, 7, progress.Total)
	assert.Equal(t, 7, progress.Current)
	assert.Equal(t, 42, progress.GamesAccepted)
	assert.Equal(t, 7, progress.BlocksDropped)
	assert.Len(t, ing.seen, 7)
	for _, mode := range ing.seen {
		assert.Equal(t, ingest.ModeReplace, mode)
	}
	assert.Equal(t, []int{2025}, rec.seasons)
	assert.Equal(t, 7, rep.total)
	assert.Equal(t, 7, rep.done)
	require.NotNil(t, rep.complete)
}

func TestRunner_FailedDatesContinue(t *testing.T) {
	t.Parallel()

	ing := &fakeIngester{fails: map[string]bool{"2025-03-29": true, "2025-03-31": true}}
	rec := &fakeRecomputer{}
	rep := &recordingReporter{}
	runner := NewRunner(ing, rec, 2, logging.NewNop())

	progress, err := runner.Run(context.Background(), JobSpec{Start: start, End: start.AddDate(0, 0, 4), Mode: ingest.ModeMerge}, rep)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDatesFailed))

	assert.Equal(t, []string{"2025-03-29", "2025-03-31"}, progress.FailedDates)
	assert.Equal(t, 5, progress.Current)
	assert.Equal(t, 18, progress.GamesAccepted)
	assert.Len(t, rep.failed, 2)
	assert.Nil(t, rep.complete)
	assert.Equal(t, []int{2025}, rec.seasons, "standings are rebuilt from the dates that did land")
}

func TestRunner_DryRun(t *testing.T) {
	t.Parallel()

	ing := &fakeIngester{}
	runner := NewRunner(ing, nil, 1, logging.NewNop())

	progress, err := runner.Run(context.Background(), JobSpec{Start: start, End: start, DryRun: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, progress.Total)
	assert.Empty(t, ing.seen)
}

func TestRunner_SpansSeasons(t *testing.T) {
	t.Parallel()

	rec := &fakeRecomputer{}
	runner := NewRunner(&fakeIngester{}, rec, 4, logging.NewNop())

	dec := time.Date(2024, 12, 30, 0, 0, 0, 0, time.UTC)
	_, err := runner.Run(context.Background(), JobSpec{Start: dec, End: dec.AddDate(0, 0, 3), Mode: ingest.ModeMerge}, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{2024, 2025}, rec.seasons)
}

func TestRequest_Validate(t *testing.T) {
	t.Parallel()

	spec, err := Request{StartDate: start.Add(5 * time.Hour), EndDate: start.AddDate(0, 0, 2)}.Validate()
	require.NoError(t, err)
	assert.Equal(t, start, spec.Start)
	assert.Equal(t, ingest.ModeMerge, spec.Mode)
	assert.Len(t, spec.Dates(), 3)

	tests := []Request{
		{},
		{StartDate: start, EndDate: start.AddDate(0, 0, -1)},
		{StartDate: start, EndDate: start.AddDate(2, 0, 0)},
		{StartDate: start, EndDate: start, Mode: "upsert"},
	}
	for _, req := range tests {
		_, err := req.Validate()
		assert.ErrorIs(t, err, league.ErrInvalidInput)
	}
}
