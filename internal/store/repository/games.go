package repository

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"

	"github.com/fortuna/pennant/internal/league"
	"github.com/fortuna/pennant/internal/store"
)

// GameRepository persists canonical game records.
type GameRepository struct {
	db *store.Database
}

// NewGameRepository creates a new game repository
func NewGameRepository(db *store.Database) *GameRepository {
	return &GameRepository{db: db}
}

const upsertGameQuery = `
INSERT INTO games (
	game_date, team_low, team_high, home_team_id, away_team_id, home_abbr, away_abbr,
	league, status, home_score, away_score, innings_home, innings_away, final_inning, game_time,
	home_hits, away_hits, home_errors, away_errors, venue, duration, attendance, weather,
	is_draw, winner, source, updated_at
)
VALUES (
	:game_date, :team_low, :team_high, :home_team_id, :away_team_id, :home_abbr, :away_abbr,
	:league, :status, :home_score, :away_score, :innings_home, :innings_away, :final_inning, :game_time,
	:home_hits, :away_hits, :home_errors, :away_errors, :venue, :duration, :attendance, :weather,
	:is_draw, :winner, :source, :updated_at
)
ON CONFLICT (game_date, team_low, team_high) DO UPDATE SET
	home_team_id = EXCLUDED.home_team_id,
	away_team_id = EXCLUDED.away_team_id,
	home_abbr = EXCLUDED.home_abbr,
	away_abbr = EXCLUDED.away_abbr,
	league = EXCLUDED.league,
	status = EXCLUDED.status,
	home_score = EXCLUDED.home_score,
	away_score = EXCLUDED.away_score,
	innings_home = EXCLUDED.innings_home,
	innings_away = EXCLUDED.innings_away,
	final_inning = EXCLUDED.final_inning,
	game_time = EXCLUDED.game_time,
	home_hits = EXCLUDED.home_hits,
	away_hits = EXCLUDED.away_hits,
	home_errors = EXCLUDED.home_errors,
	away_errors = EXCLUDED.away_errors,
	venue = EXCLUDED.venue,
	duration = EXCLUDED.duration,
	attendance = EXCLUDED.attendance,
	weather = EXCLUDED.weather,
	is_draw = EXCLUDED.is_draw,
	winner = EXCLUDED.winner,
	source = EXCLUDED.source,
	updated_at = EXCLUDED.updated_at`

// MergeDate upserts records by (date, team pair) and leaves other records of the
// date in place. The caller has already reconciled each record against storage.
func (r *GameRepository) MergeDate(ctx context.Context, date time.Time, games []league.Game, source string) error {
	return r.write(ctx, date, games, source, false)
}

// ReplaceDate makes games the complete record set for date. Stored records of
// that date that are absent from games are deleted.
func (r *GameRepository) ReplaceDate(ctx context.Context, date time.Time, games []league.Game, source string) error {
	return r.write(ctx, date, games, source, true)
}

func (r *GameRepository) write(ctx context.Context, date time.Time, games []league.Game, source string, replace bool) error {
	day := league.Day(date)
	for _, g := range games {
		if !league.Day(g.Date).Equal(day) {
			return errors.Wrapf(league.ErrInvalidInput, "record dated %s in batch for %s",
				g.Date.Format(league.DateLayout), day.Format(league.DateLayout))
		}
	}

	tx, err := r.db.DB().BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx for game write")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if replace {
		if _, err := tx.ExecContext(ctx, `DELETE FROM games WHERE game_date = $1`, day); err != nil {
			return errors.Wrap(err, "clearing games for date")
		}
	}

	if err := upsertGames(ctx, tx, games, source); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit game write")
	}
	return nil
}

func upsertGames(ctx context.Context, tx *sqlx.Tx, games []league.Game, source string) error {
	for _, g := range games {
		if _, err := tx.NamedExecContext(ctx, upsertGameQuery, store.GameRowFrom(g, source)); err != nil {
			return errors.Wrapf(err, "upserting game %s %s@%s", g.DateKey(), g.AwayAbbr, g.HomeAbbr)
		}
	}
	return nil
}

// GetByDate returns all games on a specific date
func (r *GameRepository) GetByDate(ctx context.Context, date time.Time) ([]league.Game, error) {
	query := `SELECT ` + store.GameColumns + `
		FROM games
		WHERE game_date = $1
		ORDER BY team_low, team_high`

	return r.selectGames(ctx, "querying games by date", query, league.Day(date))
}

// ListRange returns games with from <= date <= to, oldest first.
func (r *GameRepository) ListRange(ctx context.Context, from, to time.Time) ([]league.Game, error) {
	query := `SELECT ` + store.GameColumns + `
		FROM games
		WHERE game_date BETWEEN $1 AND $2
		ORDER BY game_date, team_low, team_high`

	return r.selectGames(ctx, "querying games by range", query, league.Day(from), league.Day(to))
}

// ListSeason returns every game of the calendar year.
func (r *GameRepository) ListSeason(ctx context.Context, year int) ([]league.Game, error) {
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	return r.ListRange(ctx, from, from.AddDate(1, 0, -1))
}

// GetByTeam returns a team's games in the range, oldest first.
func (r *GameRepository) GetByTeam(ctx context.Context, teamID int, from, to time.Time) ([]league.Game, error) {
	query := `SELECT ` + store.GameColumns + `
		FROM games
		WHERE (home_team_id = $1 OR away_team_id = $1)
			AND game_date BETWEEN $2 AND $3
		ORDER BY game_date`

	return r.selectGames(ctx, "querying team games", query, teamID, league.Day(from), league.Day(to))
}

// GetUpcomingGames returns scheduled games on or after from.
func (r *GameRepository) GetUpcomingGames(ctx context.Context, from time.Time, limit int) ([]league.Game, error) {
	query := `SELECT ` + store.GameColumns + `
		FROM games
		WHERE status = 'SCHEDULED' AND game_date >= $1
		ORDER BY game_date, game_time NULLS LAST, team_low
		LIMIT $2`

	return r.selectGames(ctx, "querying upcoming games", query, league.Day(from), limit)
}

// CleanupStaleGames marks scheduled records older than before as postponed. A game
// still unplayed days after its date did not take place.
func (r *GameRepository) CleanupStaleGames(ctx context.Context, before time.Time) (int64, error) {
	query := `
		UPDATE games
		SET status = 'POSTPONED', home_score = NULL, away_score = NULL,
			is_draw = FALSE, winner = 'none', updated_at = NOW()
		WHERE status IN ('SCHEDULED', 'IN_PROGRESS')
			AND game_date < $1`

	result, err := r.db.DB().ExecContext(ctx, query, league.Day(before))
	if err != nil {
		return 0, errors.Wrap(err, "cleaning up stale games")
	}
	return result.RowsAffected()
}

func (r *GameRepository) selectGames(ctx context.Context, op, query string, args ...interface{}) ([]league.Game, error) {
	var rows []store.GameRow
	if err := r.db.DB().SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, op)
	}

	games := make([]league.Game, 0, len(rows))
	for _, row := range rows {
		games = append(games, row.Game())
	}
	return games, nil
}
