package service

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/fortuna/pennant/internal/cache"
	"github.com/fortuna/pennant/internal/league"
	"github.com/fortuna/pennant/internal/platform/logging"
)

// StandingStore persists ranked standings per league.
type StandingStore interface {
	ReplaceByLeague(ctx context.Context, lg league.League, entries []league.StandingEntry) error
	ListByLeague(ctx context.Context, lg league.League) ([]league.StandingEntry, error)
}

// StandingsPublisher announces recomputed standings.
type StandingsPublisher interface {
	PublishStandings(ctx context.Context, lg league.League, entries []league.StandingEntry) error
}

const standingsTTL = 30 * time.Minute

// StandingsService recomputes, stores and serves league standings.
type StandingsService struct {
	games     GameStore
	standings StandingStore
	cache     Cache
	events    StandingsPublisher
	calc      *StandingsCalculator
	analyzer  *PennantAnalyzer
	logger    *logging.Logger
}

// NewStandingsService wires the calculator and analyzer to storage. c and events may be nil.
func NewStandingsService(
	games GameStore,
	standings StandingStore,
	c Cache,
	events StandingsPublisher,
	ref *league.Reference,
	rules league.Rules,
	logger *logging.Logger,
) *StandingsService {
	return &StandingsService{
		games:     games,
		standings: standings,
		cache:     c,
		events:    events,
		calc:      NewStandingsCalculator(ref),
		analyzer:  NewPennantAnalyzer(rules),
		logger:    logger.Named("standings"),
	}
}

// Calculate ranks and analyzes games without touching storage.
func (s *StandingsService) Calculate(games []league.Game) map[league.League][]league.StandingEntry {
	return s.analyzer.AnalyzeAll(s.calc.Compute(games))
}

// Recompute rebuilds standings for the season from every stored game, then persists,
// caches and publishes each league. Inconsistent aggregates abort before any write.
func (s *StandingsService) Recompute(ctx context.Context, season int) (map[league.League][]league.StandingEntry, error) {
	games, err := s.games.ListSeason(ctx, season)
	if err != nil {
		return nil, errors.Wrap(err, "fetching season games")
	}

	all := s.Calculate(games)
	for _, lg := range league.Leagues {
		if bad := ValidateAggregates(all[lg]); len(bad) > 0 {
			return nil, errors.Wrapf(league.ErrInvalidInput, "%s standings inconsistent for teams %v", lg, bad)
		}
	}

	for _, lg := range league.Leagues {
		entries := all[lg]
		if err := s.standings.ReplaceByLeague(ctx, lg, entries); err != nil {
			return nil, errors.Wrapf(err, "persisting %s standings", lg)
		}
		if s.cache != nil {
			if err := s.cache.SetJSON(ctx, cache.StandingsKey(lg), entries, standingsTTL); err != nil {
				s.logger.Warn("standings cache write failed", "league", lg, "error", err)
			}
		}
		if s.events != nil {
			if err := s.events.PublishStandings(ctx, lg, entries); err != nil {
				s.logger.Warn("standings publish failed", "league", lg, "error", err)
			}
		}
	}

	s.logger.Info("standings recomputed", "season", season, "games", len(games))
	return all, nil
}

// Get returns the stored standings of one league, preferring the cache.
func (s *StandingsService) Get(ctx context.Context, lg league.League) ([]league.StandingEntry, error) {
	if !lg.Valid() {
		return nil, errors.Wrapf(league.ErrInvalidInput, "league %q", lg)
	}

	key := cache.StandingsKey(lg)
	if s.cache != nil {
		var cached []league.StandingEntry
		err := s.cache.GetJSON(ctx, key, &cached)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			s.logger.Warn("standings cache read failed", "league", lg, "error", err)
		}
	}

	entries, err := s.standings.ListByLeague(ctx, lg)
	if err != nil {
		return nil, errors.Wrapf(err, "fetching %s standings", lg)
	}
	if s.cache != nil && len(entries) > 0 {
		if err := s.cache.SetJSON(ctx, key, entries, standingsTTL); err != nil {
			s.logger.Warn("standings cache write failed", "league", lg, "error", err)
		}
	}
	return entries, nil
}
