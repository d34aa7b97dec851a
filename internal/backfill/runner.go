package backfill

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/panjf2000/ants/v2"

	"github.com/fortuna/pennant/internal/ingest"
	"github.com/fortuna/pennant/internal/league"
	"github.com/fortuna/pennant/internal/platform/logging"
)

// DateIngester runs the ingest pipeline for one date.
type DateIngester interface {
	IngestDate(ctx context.Context, date time.Time, mode ingest.Mode) (ingest.DateResult, error)
}

// Recomputer rebuilds standings once a job has written its dates.
type Recomputer interface {
	Recompute(ctx context.Context, season int) (map[league.League][]league.StandingEntry, error)
}

// ErrDatesFailed is returned when at least one date of a job could not be ingested.
var ErrDatesFailed = errors.New("backfill dates failed")

// Runner executes backfill specs over a bounded worker pool.
type Runner struct {
	ingester  DateIngester
	standings Recomputer
	workers   int
	logger    *logging.Logger
}

// NewRunner constructs a runner. standings may be nil.
func NewRunner(ingester DateIngester, standings Recomputer, workers int, logger *logging.Logger) *Runner {
	if workers < 1 {
		workers = 1
	}
	return &Runner{
		ingester:  ingester,
		standings: standings,
		workers:   workers,
		logger:    logger.Named("backfill"),
	}
}

// Run ingests every date of spec, reporting progress via reporter if provided. A
// failed date does not stop the others; Run then returns ErrDatesFailed naming them.
// Standings are recomputed for every season the range touched.
func (r *Runner) Run(ctx context.Context, spec JobSpec, reporter Reporter) (Progress, error) {
	dates := spec.Dates()
	progress := Progress{Total: len(dates)}
	if reporter != nil {
		reporter.OnJobStart(spec, len(dates))
	}

	if spec.DryRun || len(dates) == 0 {
		if reporter != nil {
			reporter.OnJobComplete(progress)
		}
		return progress, nil
	}

	pool, err := ants.NewPool(r.workers)
	if err != nil {
		return progress, errors.Wrap(err, "create worker pool")
	}
	defer pool.Release()

	var (
		mu      sync.Mutex
		workers sync.WaitGroup
	)
	for _, date := range dates {
		if ctx.Err() != nil {
			break
		}

		workers.Add(1)
		if err := pool.Submit(func() {
			defer workers.Done()

			res, err := r.ingester.IngestDate(ctx, date, spec.Mode)

			mu.Lock()
			defer mu.Unlock()
			progress.Current++
			if err != nil {
				progress.FailedDates = append(progress.FailedDates, date.Format(league.DateLayout))
				r.logger.Warn("backfill date failed", "date", date.Format(league.DateLayout), "error", err)
				if reporter != nil {
					reporter.OnDateFailed(date, err, progress)
				}
				return
			}
			progress.GamesAccepted += res.Accepted
			progress.BlocksDropped += res.Dropped
			if reporter != nil {
				reporter.OnDateDone(res, progress)
			}
		}); err != nil {
			workers.Done()
			return progress, errors.Wrap(err, "submit date to worker pool")
		}
	}
	workers.Wait()
	sort.Strings(progress.FailedDates)

	if err := ctx.Err(); err != nil {
		if reporter != nil {
			reporter.OnJobError(err)
		}
		return progress, err
	}

	if r.standings != nil {
		for _, season := range seasons(dates) {
			if _, err := r.standings.Recompute(ctx, season); err != nil {
				err = errors.Wrapf(err, "recompute %d standings", season)
				if reporter != nil {
					reporter.OnJobError(err)
				}
				return progress, err
			}
		}
	}

	if len(progress.FailedDates) > 0 {
		err := errors.Wrapf(ErrDatesFailed, "%d of %d dates: %s",
			len(progress.FailedDates), progress.Total, strings.Join(progress.FailedDates, ", "))
		if reporter != nil {
			reporter.OnJobError(err)
		}
		return progress, err
	}

	if reporter != nil {
		reporter.OnJobComplete(progress)
	}
	r.logger.Info("backfill complete",
		"start", spec.Start.Format(league.DateLayout),
		"end", spec.End.Format(league.DateLayout),
		"mode", spec.Mode,
		"dates", progress.Total,
		"accepted", progress.GamesAccepted,
		"dropped", progress.BlocksDropped)
	return progress, nil
}

func seasons(dates []time.Time) []int {
	var out []int
	seen := map[int]bool{}
	for _, d := range dates {
		if y := d.Year(); !seen[y] {
			seen[y] = true
			out = append(out, y)
		}
	}
	return out
}
