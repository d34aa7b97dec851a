// Package ingest runs the per-date pipeline that turns a score page into stored
// canonical records: fetch, extract, reconcile, persist, archive, then announce.
package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/fortuna/pennant/internal/ingest/npb"
	"github.com/fortuna/pennant/internal/league"
	"github.com/fortuna/pennant/internal/platform/logging"
	"github.com/fortuna/pennant/internal/reconciliation"
)

// Mode selects how a date's observations combine with what is already stored.
type Mode string

const (
	// ModeMerge keeps stored records and replaces them only with better observations.
	ModeMerge Mode = "merge"
	// ModeReplace rebuilds the date from the fresh observations alone.
	ModeReplace Mode = "replace"
)

// ParseMode accepts "merge" or "replace".
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeMerge, ModeReplace:
		return Mode(s), nil
	case "":
		return ModeMerge, nil
	}
	return "", errors.Wrapf(league.ErrInvalidInput, "mode %q", s)
}

// DateSource extracts observations for one date.
type DateSource interface {
	IngestDate(ctx context.Context, date time.Time) (npb.ExtractResult, error)
}

// GameWriter is the storage side of the pipeline.
type GameWriter interface {
	GetByDate(ctx context.Context, date time.Time) ([]league.Game, error)
	MergeDate(ctx context.Context, date time.Time, games []league.Game, source string) error
	ReplaceDate(ctx context.Context, date time.Time, games []league.Game, source string) error
}

// Archiver receives every canonical record written.
type Archiver interface {
	PutGames(ctx context.Context, games []league.Game) error
}

// FinalPublisher announces games that became final.
type FinalPublisher interface {
	PublishGameFinal(ctx context.Context, g league.Game) error
}

// Invalidator drops cached reads of rewritten dates.
type Invalidator interface {
	InvalidateDates(ctx context.Context, dates ...time.Time)
}

// DateResult reports one pass over one date.
type DateResult struct {
	Date       time.Time              `json:"date"`
	Mode       Mode                   `json:"mode"`
	Accepted   int                    `json:"accepted"`
	Dropped    int                    `json:"dropped"`
	InProgress int                    `json:"in_progress"`
	Reasons    map[string]int         `json:"reasons,omitempty"`
	Summary    reconciliation.Summary `json:"summary"`
	Stored     int                    `json:"stored"`
	NewlyFinal []league.Game          `json:"-"`
	FinalCount int                    `json:"newly_final"`

	// ReplaceRefused is set when a replace pass fell back to merge because the
	// page yielded nothing while records were stored.
	ReplaceRefused bool `json:"replace_refused,omitempty"`
}

// SeasonIngester wires a date source to the reconciliation engine and storage.
type SeasonIngester struct {
	source      string
	dates       DateSource
	engine      *reconciliation.Engine
	games       GameWriter
	archive     Archiver
	events      FinalPublisher
	invalidator Invalidator
	logger      *logging.Logger

	locks dateLocks
}

// dateLocks serializes load, reconcile and persist for one date across callers
// (scheduler passes, backfill workers, imports).
type dateLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func (l *dateLocks) lock(date time.Time) func() {
	key := date.Format(league.DateLayout)
	l.mu.Lock()
	if l.m == nil {
		l.m = make(map[string]*sync.Mutex)
	}
	dm, ok := l.m[key]
	if !ok {
		dm = &sync.Mutex{}
		l.m[key] = dm
	}
	l.mu.Unlock()

	dm.Lock()
	return dm.Unlock
}

// Option configures optional sinks.
type Option func(*SeasonIngester)

func WithArchive(a Archiver) Option { return func(s *SeasonIngester) { s.archive = a } }

func WithPublisher(p FinalPublisher) Option { return func(s *SeasonIngester) { s.events = p } }

func WithInvalidator(i Invalidator) Option { return func(s *SeasonIngester) { s.invalidator = i } }

// NewSeasonIngester creates the pipeline. source tags stored rows.
func NewSeasonIngester(dates DateSource, engine *reconciliation.Engine, games GameWriter, source string, logger *logging.Logger, opts ...Option) *SeasonIngester {
	s := &SeasonIngester{
		source: source,
		dates:  dates,
		engine: engine,
		games:  games,
		logger: logger.Named("ingest"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Engine exposes the reconciliation engine for metrics.
func (s *SeasonIngester) Engine() *reconciliation.Engine {
	return s.engine
}

// IngestDate runs the pipeline for one date. Fetch and storage failures abort the
// date; archive and publish failures are logged and the date still counts. A replace
// over a page without observations degrades to a merge while the date has stored
// records.
func (s *SeasonIngester) IngestDate(ctx context.Context, date time.Time, mode Mode) (DateResult, error) {
	date = league.Day(date)
	out := DateResult{Date: date, Mode: mode}

	extracted, err := s.dates.IngestDate(ctx, date)
	if err != nil {
		return out, errors.Wrapf(err, "extract %s", date.Format(league.DateLayout))
	}
	out.Accepted = extracted.Accepted
	out.Dropped = extracted.Dropped
	out.InProgress = extracted.InProgress
	out.Reasons = extracted.Reasons

	unlock := s.locks.lock(date)
	defer unlock()

	stored, err := s.games.GetByDate(ctx, date)
	if err != nil {
		return out, errors.Wrapf(err, "load stored %s", date.Format(league.DateLayout))
	}
	return s.apply(ctx, out, stored, extracted.Observations)
}

// ApplyObservations reconciles externally supplied observations, such as an
// imported export file, for one date.
func (s *SeasonIngester) ApplyObservations(ctx context.Context, date time.Time, mode Mode, observations []league.Observation) (DateResult, error) {
	date = league.Day(date)
	out := DateResult{Date: date, Mode: mode, Accepted: len(observations)}

	unlock := s.locks.lock(date)
	defer unlock()

	stored, err := s.games.GetByDate(ctx, date)
	if err != nil {
		return out, errors.Wrapf(err, "load stored %s", date.Format(league.DateLayout))
	}
	return s.apply(ctx, out, stored, observations)
}

// apply must run under the date lock.
func (s *SeasonIngester) apply(ctx context.Context, out DateResult, stored []league.Game, observations []league.Observation) (DateResult, error) {
	date := out.Date
	if out.Mode == ModeReplace && len(observations) == 0 && len(stored) > 0 {
		// A page with no usable game (maintenance, new layout, every block dropped)
		// must not wipe settled results.
		s.logger.WarnContext(ctx, "replace refused without observations, merging instead",
			"date", date.Format(league.DateLayout), "stored", len(stored), "dropped", out.Dropped, "in_progress", out.InProgress)
		out.Mode = ModeMerge
		out.ReplaceRefused = true
	}
	switch out.Mode {
	case ModeReplace:
		out.Summary = s.engine.ReplaceDate(date, observations)
	case ModeMerge:
		s.engine.Seed(stored)
		out.Summary = s.engine.MergeAll(observations)
	default:
		return out, errors.Wrapf(league.ErrInvalidInput, "mode %q", out.Mode)
	}

	canonical := s.engine.Date(date)
	out.Stored = len(canonical)

	if out.Mode == ModeReplace {
		err := s.games.ReplaceDate(ctx, date, canonical, s.source)
		if err != nil {
			return out, errors.Wrapf(err, "replace %s", date.Format(league.DateLayout))
		}
	} else if out.Summary.Changed() {
		if err := s.games.MergeDate(ctx, date, canonical, s.source); err != nil {
			return out, errors.Wrapf(err, "merge %s", date.Format(league.DateLayout))
		}
	}

	out.NewlyFinal = newlyFinal(stored, canonical)
	out.FinalCount = len(out.NewlyFinal)

	if out.Mode == ModeReplace || out.Summary.Changed() {
		s.sinks(ctx, out, canonical)
	}

	s.logger.InfoContext(ctx, "date ingested",
		"date", date.Format(league.DateLayout),
		"mode", out.Mode,
		"accepted", out.Accepted,
		"inserted", out.Summary.Inserted,
		"replaced", out.Summary.Replaced,
		"kept", out.Summary.Kept,
		"rejected", out.Summary.Rejected,
		"newly_final", out.FinalCount)
	return out, nil
}

func (s *SeasonIngester) sinks(ctx context.Context, out DateResult, canonical []league.Game) {
	if s.invalidator != nil {
		s.invalidator.InvalidateDates(ctx, out.Date)
	}
	if s.archive != nil && len(canonical) > 0 {
		if err := s.archive.PutGames(ctx, canonical); err != nil {
			s.logger.WarnContext(ctx, "archive write failed", "date", out.Date.Format(league.DateLayout), "error", err)
		}
	}
	if s.events != nil {
		for _, g := range out.NewlyFinal {
			if err := s.events.PublishGameFinal(ctx, g); err != nil {
				s.logger.WarnContext(ctx, "game final publish failed",
					"date", g.DateKey(), "home", g.HomeAbbr, "away", g.AwayAbbr, "error", err)
			}
		}
	}
}

// newlyFinal lists canonical completed records whose stored counterpart was absent,
// not completed, or carried a different score.
func newlyFinal(stored, canonical []league.Game) []league.Game {
	before := make(map[reconciliation.PairKey]league.Game, len(stored))
	for _, g := range stored {
		before[reconciliation.PairOf(&g)] = g
	}

	var out []league.Game
	for _, g := range canonical {
		if g.Status != league.StatusCompleted {
			continue
		}
		prev, ok := before[reconciliation.PairOf(&g)]
		if ok && prev.Status == league.StatusCompleted &&
			prev.HomeScore == g.HomeScore && prev.AwayScore == g.AwayScore {
			continue
		}
		out = append(out, g)
	}
	return out
}
