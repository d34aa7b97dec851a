package repository

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"

	"github.com/fortuna/pennant/internal/league"
	"github.com/fortuna/pennant/internal/store"
)

// TeamRepository handles team data access
type TeamRepository struct {
	db *store.Database
}

// NewTeamRepository creates a new team repository
func NewTeamRepository(db *store.Database) *TeamRepository {
	return &TeamRepository{db: db}
}

// SyncReference upserts every reference team so game rows can reference them.
func (r *TeamRepository) SyncReference(ctx context.Context, ref *league.Reference) error {
	query := `
		INSERT INTO teams (team_id, abbreviation, name, english_name, league, labels, updated_at)
		VALUES (:team_id, :abbreviation, :name, :english_name, :league, :labels, NOW())
		ON CONFLICT (team_id) DO UPDATE SET
			abbreviation = EXCLUDED.abbreviation,
			name = EXCLUDED.name,
			english_name = EXCLUDED.english_name,
			league = EXCLUDED.league,
			labels = EXCLUDED.labels,
			updated_at = NOW()`

	tx, err := r.db.DB().BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx for team sync")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, t := range ref.Teams() {
		if _, err := tx.NamedExecContext(ctx, query, store.TeamRowFrom(t)); err != nil {
			return errors.Wrapf(err, "upserting team %s", t.Abbreviation)
		}
	}
	return errors.Wrap(tx.Commit(), "commit team sync")
}

// GetAll returns every stored team ordered by id.
func (r *TeamRepository) GetAll(ctx context.Context) ([]league.TeamIdentity, error) {
	var rows []store.TeamRow
	err := r.db.DB().SelectContext(ctx, &rows, `
		SELECT team_id, abbreviation, name, english_name, league, labels, updated_at
		FROM teams
		ORDER BY team_id`)
	if err != nil {
		return nil, errors.Wrap(err, "querying teams")
	}

	teams := make([]league.TeamIdentity, 0, len(rows))
	for _, row := range rows {
		teams = append(teams, row.Identity())
	}
	return teams, nil
}

// LoadReference builds the reference table from storage.
func (r *TeamRepository) LoadReference(ctx context.Context) (*league.Reference, error) {
	teams, err := r.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	return league.NewReference(teams)
}

// GetByID finds a team by ID
func (r *TeamRepository) GetByID(ctx context.Context, teamID int) (league.TeamIdentity, error) {
	var row store.TeamRow
	err := r.db.DB().GetContext(ctx, &row, `
		SELECT team_id, abbreviation, name, english_name, league, labels, updated_at
		FROM teams
		WHERE team_id = $1`, teamID)
	if errors.Is(err, sql.ErrNoRows) {
		return league.TeamIdentity{}, errors.Wrapf(league.ErrNotFound, "team %d", teamID)
	}
	if err != nil {
		return league.TeamIdentity{}, errors.Wrap(err, "querying team")
	}
	return row.Identity(), nil
}
