package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/fortuna/pennant/internal/ingest"
	"github.com/fortuna/pennant/internal/league"
	"github.com/fortuna/pennant/internal/platform/logging"
)

// DateIngester runs the ingest pipeline for one date.
type DateIngester interface {
	IngestDate(ctx context.Context, date time.Time, mode ingest.Mode) (ingest.DateResult, error)
}

// Recomputer rebuilds a season's standings.
type Recomputer interface {
	Recompute(ctx context.Context, season int) (map[league.League][]league.StandingEntry, error)
}

// StaleCleaner postpones games that never finished.
type StaleCleaner interface {
	CleanupStaleGames(ctx context.Context, staleAfter int) (int64, error)
}

// Orchestrator manages scheduled tasks for data ingestion
type Orchestrator struct {
	ingester  DateIngester
	standings Recomputer
	cleaner   StaleCleaner
	config    *Config
	logger    *logging.Logger
	now       func() time.Time

	mu       sync.Mutex
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	lastPoll time.Time
	lastRun  time.Time
}

// Config holds scheduler configuration
type Config struct {
	PollInterval         time.Duration // today's page; default 5m
	DailyIngestionHour   int           // JST hour for the yesterday pass; default 4
	StaleAfterDays       int           // default 3
	EnableTodayPolling   bool
	EnableDailyIngestion bool
	MaxRetries           int
	RetryDelay           time.Duration
}

// DefaultConfig returns default scheduler configuration
func DefaultConfig() *Config {
	return &Config{
		PollInterval:         5 * time.Minute,
		DailyIngestionHour:   4,
		StaleAfterDays:       3,
		EnableTodayPolling:   true,
		EnableDailyIngestion: true,
		MaxRetries:           3,
		RetryDelay:           5 * time.Second,
	}
}

// NewOrchestrator creates a new scheduler orchestrator
func NewOrchestrator(ingester DateIngester, standings Recomputer, cleaner StaleCleaner, config *Config, logger *logging.Logger) *Orchestrator {
	if config == nil {
		config = DefaultConfig()
	}
	return &Orchestrator{
		ingester:  ingester,
		standings: standings,
		cleaner:   cleaner,
		config:    config,
		logger:    logger.Named("scheduler"),
		now:       time.Now,
	}
}

// Start launches the enabled loops and blocks until ctx is cancelled or Stop is called.
func (o *Orchestrator) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	o.cancel = cancel
	o.mu.Unlock()

	o.logger.Info("scheduler starting",
		"today_polling", o.config.EnableTodayPolling,
		"poll_interval", o.config.PollInterval,
		"daily_ingestion", o.config.EnableDailyIngestion,
		"daily_hour_jst", o.config.DailyIngestionHour)

	if o.config.EnableTodayPolling {
		o.wg.Add(1)
		go o.runTodayPolling(ctx)
	}
	if o.config.EnableDailyIngestion {
		o.wg.Add(1)
		go o.runDailyIngestion(ctx)
	}

	<-ctx.Done()
	o.wg.Wait()
	o.logger.Info("scheduler stopped")
}

// Stop gracefully stops the scheduler
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	cancel := o.cancel
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (o *Orchestrator) runTodayPolling(ctx context.Context) {
	defer o.wg.Done()

	ticker := time.NewTicker(o.config.PollInterval)
	defer ticker.Stop()

	o.PollToday(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.PollToday(ctx)
		}
	}
}

// PollToday merges the current state of today's page. Standings are rebuilt only
// when a record changed.
func (o *Orchestrator) PollToday(ctx context.Context) {
	today := league.Today(o.now())
	res, err := o.ingestWithRetry(ctx, today, ingest.ModeMerge)

	o.mu.Lock()
	o.lastPoll = o.now()
	o.mu.Unlock()

	if err != nil {
		o.logger.WarnContext(ctx, "today poll failed", "date", today.Format(league.DateLayout), "error", err)
		return
	}
	if res.Summary.Changed() {
		o.recompute(ctx, today.Year())
	}
}

func (o *Orchestrator) runDailyIngestion(ctx context.Context) {
	defer o.wg.Done()

	for {
		next := nextDailyRun(o.now(), o.config.DailyIngestionHour)
		wait := time.Until(next)
		o.logger.Info("next daily ingestion", "at", next.Format(time.RFC3339), "in", wait.Round(time.Second))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			o.RunDaily(ctx)
		}
	}
}

// RunDaily rebuilds yesterday from a fresh page so cancelled and rescheduled games
// lose their stale entries, postpones games left unplayed, then rebuilds standings.
func (o *Orchestrator) RunDaily(ctx context.Context) {
	started := o.now()
	yesterday := league.Today(started).AddDate(0, 0, -1)

	if _, err := o.ingestWithRetry(ctx, yesterday, ingest.ModeReplace); err != nil {
		o.logger.ErrorContext(ctx, "daily ingestion failed", "date", yesterday.Format(league.DateLayout), "error", err)
	}

	if o.cleaner != nil {
		if _, err := o.cleaner.CleanupStaleGames(ctx, o.config.StaleAfterDays); err != nil {
			o.logger.WarnContext(ctx, "stale cleanup failed", "error", err)
		}
	}

	o.recompute(ctx, yesterday.Year())

	o.mu.Lock()
	o.lastRun = o.now()
	o.mu.Unlock()
	o.logger.InfoContext(ctx, "daily ingestion complete",
		"date", yesterday.Format(league.DateLayout),
		"took", o.now().Sub(started).Round(time.Millisecond))
}

// TriggerManualIngestion runs one date immediately and rebuilds its season.
func (o *Orchestrator) TriggerManualIngestion(ctx context.Context, date time.Time, mode ingest.Mode) (ingest.DateResult, error) {
	res, err := o.ingester.IngestDate(ctx, date, mode)
	if err != nil {
		return res, err
	}
	o.recompute(ctx, date.Year())
	return res, nil
}

func (o *Orchestrator) ingestWithRetry(ctx context.Context, date time.Time, mode ingest.Mode) (ingest.DateResult, error) {
	attempts := max(1, o.config.MaxRetries)

	var (
		res ingest.DateResult
		err error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		res, err = o.ingester.IngestDate(ctx, date, mode)
		if err == nil {
			return res, nil
		}
		if errors.Is(err, league.ErrInvalidInput) || attempt == attempts {
			break
		}

		o.logger.WarnContext(ctx, "ingest attempt failed",
			"date", date.Format(league.DateLayout), "attempt", attempt, "of", attempts, "error", err)
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		case <-time.After(o.config.RetryDelay):
		}
	}
	return res, err
}

func (o *Orchestrator) recompute(ctx context.Context, season int) {
	if o.standings == nil {
		return
	}
	if _, err := o.standings.Recompute(ctx, season); err != nil {
		o.logger.ErrorContext(ctx, "standings recompute failed", "season", season, "error", err)
	}
}

// nextDailyRun is the next occurrence of hour:00 in Japan strictly after now.
func nextDailyRun(now time.Time, hour int) time.Time {
	local := now.In(league.Tokyo)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, 0, 0, 0, league.Tokyo)
	if !next.After(local) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Status is the scheduler state reported over REST.
type Status struct {
	TodayPolling   bool      `json:"today_polling_enabled"`
	PollInterval   string    `json:"poll_interval"`
	DailyIngestion bool      `json:"daily_ingestion_enabled"`
	DailyHourJST   int       `json:"daily_ingestion_hour_jst"`
	LastPoll       time.Time `json:"last_poll,omitempty"`
	LastDailyRun   time.Time `json:"last_daily_run,omitempty"`
	NextDailyRun   time.Time `json:"next_daily_run"`
}

// GetStatus returns current scheduler status
func (o *Orchestrator) GetStatus() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Status{
		TodayPolling:   o.config.EnableTodayPolling,
		PollInterval:   o.config.PollInterval.String(),
		DailyIngestion: o.config.EnableDailyIngestion,
		DailyHourJST:   o.config.DailyIngestionHour,
		LastPoll:       o.lastPoll,
		LastDailyRun:   o.lastRun,
		NextDailyRun:   nextDailyRun(o.now(), o.config.DailyIngestionHour),
	}
}
