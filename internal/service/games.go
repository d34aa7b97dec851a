package service

import (
	"context"
	"io"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/fortuna/pennant/internal/cache"
	"github.com/fortuna/pennant/internal/export"
	"github.com/fortuna/pennant/internal/league"
	"github.com/fortuna/pennant/internal/platform/logging"
)

// GameStore is the read side of the game repository.
type GameStore interface {
	GetByDate(ctx context.Context, date time.Time) ([]league.Game, error)
	ListRange(ctx context.Context, from, to time.Time) ([]league.Game, error)
	ListSeason(ctx context.Context, year int) ([]league.Game, error)
	GetByTeam(ctx context.Context, teamID int, from, to time.Time) ([]league.Game, error)
	GetUpcomingGames(ctx context.Context, from time.Time, limit int) ([]league.Game, error)
	CleanupStaleGames(ctx context.Context, before time.Time) (int64, error)
}

// Cache is the JSON cache used for read paths. A nil Cache disables caching.
type Cache interface {
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	GetJSON(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
}

const (
	settledGamesTTL = 6 * time.Hour
	maxUpcoming     = 100
)

// GameService handles game queries
type GameService struct {
	games  GameStore
	ref    *league.Reference
	calc   *StandingsCalculator
	cache  Cache
	logger *logging.Logger
	now    func() time.Time
}

// NewGameService creates a new game service
func NewGameService(games GameStore, ref *league.Reference, c Cache, logger *logging.Logger) *GameService {
	return &GameService{
		games:  games,
		ref:    ref,
		calc:   NewStandingsCalculator(ref),
		cache:  c,
		logger: logger.Named("games"),
		now:    time.Now,
	}
}

// GameSummary contains game details with team information
type GameSummary struct {
	league.Game
	HomeTeam league.TeamIdentity `json:"home_team"`
	AwayTeam league.TeamIdentity `json:"away_team"`
}

// GetGamesByDate retrieves all games on a specific date. Dates before today are
// cached; the ingester invalidates a date whenever it rewrites it.
func (s *GameService) GetGamesByDate(ctx context.Context, date time.Time) ([]GameSummary, error) {
	date = league.Day(date)
	key := cache.GamesKey(date)
	settled := date.Before(league.Today(s.now()))

	if settled && s.cache != nil {
		var cached []GameSummary
		err := s.cache.GetJSON(ctx, key, &cached)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			s.logger.Warn("games cache read failed", "key", key, "error", err)
		}
	}

	games, err := s.games.GetByDate(ctx, date)
	if err != nil {
		return nil, errors.Wrap(err, "fetching games by date")
	}
	summaries := s.enrichGamesWithTeams(games)

	if settled && s.cache != nil {
		if err := s.cache.SetJSON(ctx, key, summaries, settledGamesTTL); err != nil {
			s.logger.Warn("games cache write failed", "key", key, "error", err)
		}
	}
	return summaries, nil
}

// InvalidateDates drops cached game lists for the given dates.
func (s *GameService) InvalidateDates(ctx context.Context, dates ...time.Time) {
	if s.cache == nil || len(dates) == 0 {
		return
	}
	keys := make([]string, 0, len(dates))
	for _, d := range dates {
		keys = append(keys, cache.GamesKey(d))
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.logger.Warn("games cache invalidation failed", "keys", keys, "error", err)
	}
}

// GetUpcomingGames retrieves scheduled games from today (Japan time) onwards.
func (s *GameService) GetUpcomingGames(ctx context.Context, limit int) ([]GameSummary, error) {
	if limit <= 0 || limit > maxUpcoming {
		limit = maxUpcoming
	}
	games, err := s.games.GetUpcomingGames(ctx, league.Today(s.now()), limit)
	if err != nil {
		return nil, errors.Wrap(err, "fetching upcoming games")
	}
	return s.enrichGamesWithTeams(games), nil
}

// GetTeamSchedule retrieves a team's games in the range.
func (s *GameService) GetTeamSchedule(ctx context.Context, teamID int, from, to time.Time) ([]GameSummary, error) {
	if _, ok := s.ref.ByID(teamID); !ok {
		return nil, errors.Wrapf(league.ErrNotFound, "team %d", teamID)
	}
	if to.Before(from) {
		return nil, errors.Wrap(league.ErrInvalidInput, "range ends before it starts")
	}
	games, err := s.games.GetByTeam(ctx, teamID, from, to)
	if err != nil {
		return nil, errors.Wrap(err, "fetching team schedule")
	}
	return s.enrichGamesWithTeams(games), nil
}

// HeadToHead is the season record of team against opponent.
func (s *GameService) HeadToHead(ctx context.Context, season, team, opponent int) (league.HeadToHead, error) {
	for _, id := range []int{team, opponent} {
		if _, ok := s.ref.ByID(id); !ok {
			return league.HeadToHead{}, errors.Wrapf(league.ErrNotFound, "team %d", id)
		}
	}
	if team == opponent {
		return league.HeadToHead{}, errors.Wrap(league.ErrInvalidInput, "a team has no record against itself")
	}

	games, err := s.games.ListSeason(ctx, season)
	if err != nil {
		return league.HeadToHead{}, errors.Wrap(err, "fetching season games")
	}
	return s.calc.HeadToHead(games, team, opponent), nil
}

// Export writes the canonical text form of every game in the range.
func (s *GameService) Export(ctx context.Context, w io.Writer, from, to time.Time) error {
	if to.Before(from) {
		return errors.Wrap(league.ErrInvalidInput, "range ends before it starts")
	}
	games, err := s.games.ListRange(ctx, from, to)
	if err != nil {
		return errors.Wrap(err, "fetching games for export")
	}

	// Live records have no text form; export what is settled.
	out := games[:0]
	for _, g := range games {
		if g.Status != league.StatusInProgress {
			out = append(out, g)
		}
	}
	return export.Encode(w, out)
}

// CleanupStaleGames marks games still unplayed staleAfter days past their date as postponed.
func (s *GameService) CleanupStaleGames(ctx context.Context, staleAfter int) (int64, error) {
	before := league.Today(s.now()).AddDate(0, 0, -staleAfter)
	count, err := s.games.CleanupStaleGames(ctx, before)
	if err != nil {
		return 0, errors.Wrap(err, "cleaning up stale games")
	}
	if count > 0 {
		s.logger.Info("stale games postponed", "count", count, "before", before.Format(league.DateLayout))
	}
	return count, nil
}

// InningLine is one inning of a scoreboard. A nil side was not played.
type InningLine struct {
	Inning int  `json:"inning"`
	Away   *int `json:"away"`
	Home   *int `json:"home"`
}

// Scoreboard is the inning-by-inning view of one game.
type Scoreboard struct {
	Game         GameSummary  `json:"game"`
	Innings      []InningLine `json:"innings"`
	AwayRuns     int          `json:"away_inning_runs"`
	HomeRuns     int          `json:"home_inning_runs"`
	ExtraInnings bool         `json:"extra_innings"`
}

// GetScoreboard returns the inning breakdown of the game teamID played on date.
func (s *GameService) GetScoreboard(ctx context.Context, date time.Time, teamID int) (Scoreboard, error) {
	if _, ok := s.ref.ByID(teamID); !ok {
		return Scoreboard{}, errors.Wrapf(league.ErrNotFound, "team %d", teamID)
	}
	games, err := s.GetGamesByDate(ctx, date)
	if err != nil {
		return Scoreboard{}, err
	}
	for _, g := range games {
		if g.Involves(teamID) {
			return BuildScoreboard(g), nil
		}
	}
	return Scoreboard{}, errors.Wrapf(league.ErrNotFound, "team %d has no game on %s", teamID, league.Day(date).Format(league.DateLayout))
}

// BuildScoreboard lays out the inning arrays of g. A game with any inning data is
// padded to nine innings; sums cover played half innings only.
func BuildScoreboard(g GameSummary) Scoreboard {
	sb := Scoreboard{Game: g, Innings: []InningLine{}}
	n := max(len(g.InningsAway), len(g.InningsHome))
	if n > 0 && n < 9 {
		n = 9
	}
	for i := 0; i < n; i++ {
		line := InningLine{Inning: i + 1}
		if i < len(g.InningsAway) && g.InningsAway[i].Valid {
			v := int(g.InningsAway[i].Int32)
			line.Away = &v
			sb.AwayRuns += v
		}
		if i < len(g.InningsHome) && g.InningsHome[i].Valid {
			v := int(g.InningsHome[i].Int32)
			line.Home = &v
			sb.HomeRuns += v
		}
		sb.Innings = append(sb.Innings, line)
	}
	sb.ExtraInnings = g.FinalInningCount() > 9
	return sb
}

// enrichGamesWithTeams adds team details to games
func (s *GameService) enrichGamesWithTeams(games []league.Game) []GameSummary {
	summaries := make([]GameSummary, 0, len(games))
	for _, g := range games {
		home, _ := s.ref.ByID(g.HomeTeamID)
		away, _ := s.ref.ByID(g.AwayTeamID)
		summaries = append(summaries, GameSummary{Game: g, HomeTeam: home, AwayTeam: away})
	}
	return summaries
}
