package repository

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/fortuna/pennant/internal/league"
	"github.com/fortuna/pennant/internal/store"
)

// StandingRepository stores the latest computed table per league.
type StandingRepository struct {
	db *store.Database
}

func NewStandingRepository(db *store.Database) *StandingRepository {
	return &StandingRepository{db: db}
}

// ReplaceByLeague swaps the stored table of lg for entries in one transaction.
func (r *StandingRepository) ReplaceByLeague(ctx context.Context, lg league.League, entries []league.StandingEntry) error {
	if !lg.Valid() {
		return errors.Wrapf(league.ErrInvalidInput, "league %q", string(lg))
	}
	for _, e := range entries {
		if e.League != lg {
			return errors.Wrapf(league.ErrInvalidInput, "team %d is not in %s", e.TeamID, lg)
		}
		if !e.Consistent() {
			return errors.Wrapf(league.ErrInvalidInput, "team %d: W+L+D != GP", e.TeamID)
		}
	}

	tx, err := r.db.DB().BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx for standings")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM standings WHERE league = $1`, string(lg)); err != nil {
		return errors.Wrap(err, "clearing standings")
	}

	query := `
		INSERT INTO standings (
			league, team_id, rank, games_played, wins, losses, draws, runs_for, runs_against,
			home_wins, home_losses, away_wins, away_losses, last10_wins, last10_losses, last10_draws,
			streak, win_pct, games_behind, remaining, magic_number, elimination_number,
			clinch_status, computed_at
		)
		VALUES (
			:league, :team_id, :rank, :games_played, :wins, :losses, :draws, :runs_for, :runs_against,
			:home_wins, :home_losses, :away_wins, :away_losses, :last10_wins, :last10_losses, :last10_draws,
			:streak, :win_pct, :games_behind, :remaining, :magic_number, :elimination_number,
			:clinch_status, :computed_at
		)`

	now := time.Now().UTC()
	for _, e := range entries {
		if _, err := tx.NamedExecContext(ctx, query, store.StandingRowFrom(e, now)); err != nil {
			return errors.Wrapf(err, "inserting standing for team %d", e.TeamID)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit standings")
	}
	return nil
}

// ListByLeague returns the stored table of lg in rank order.
func (r *StandingRepository) ListByLeague(ctx context.Context, lg league.League) ([]league.StandingEntry, error) {
	var rows []store.StandingRow
	err := r.db.DB().SelectContext(ctx, &rows, `
		SELECT s.league, s.team_id, s.rank, s.games_played, s.wins, s.losses, s.draws,
			s.runs_for, s.runs_against, s.home_wins, s.home_losses, s.away_wins, s.away_losses,
			s.last10_wins, s.last10_losses, s.last10_draws, s.streak, s.win_pct, s.games_behind,
			s.remaining, s.magic_number, s.elimination_number, s.clinch_status, s.computed_at,
			t.abbreviation, t.name
		FROM standings s
		JOIN teams t ON t.team_id = s.team_id
		WHERE s.league = $1
		ORDER BY s.rank`, string(lg))
	if err != nil {
		return nil, errors.Wrap(err, "querying standings")
	}

	entries := make([]league.StandingEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, row.Entry())
	}
	return entries, nil
}
