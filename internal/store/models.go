package store

import (
	"database/sql"
	"strconv"
	"time"

	"github.com/lib/pq"

	"github.com/fortuna/pennant/internal/league"
)

// NotPlayed is the stored token for an inning that was never played.
const NotPlayed = "X"

// TeamRow is a reference team as stored.
type TeamRow struct {
	TeamID       int            `json:"team_id" db:"team_id"`
	Abbreviation string         `json:"abbreviation" db:"abbreviation"`
	Name         string         `json:"name" db:"name"`
	EnglishName  string         `json:"english_name" db:"english_name"`
	League       string         `json:"league" db:"league"`
	Labels       pq.StringArray `json:"labels" db:"labels"`
	UpdatedAt    time.Time      `json:"updated_at" db:"updated_at"`
}

// TeamRowFrom converts reference data to a row.
func TeamRowFrom(t league.TeamIdentity) TeamRow {
	return TeamRow{
		TeamID:       t.ID,
		Abbreviation: t.Abbreviation,
		Name:         t.Name,
		EnglishName:  t.EnglishName,
		League:       string(t.League),
		Labels:       pq.StringArray(append([]string{}, t.Labels...)),
	}
}

// Identity converts the row back to reference data.
func (r TeamRow) Identity() league.TeamIdentity {
	return league.TeamIdentity{
		ID:           r.TeamID,
		Abbreviation: r.Abbreviation,
		Name:         r.Name,
		EnglishName:  r.EnglishName,
		League:       league.League(r.League),
		Labels:       []string(r.Labels),
	}
}

// GameRow is one canonical record, keyed by date and the ordered team pair.
type GameRow struct {
	GameDate    time.Time      `db:"game_date"`
	TeamLow     int            `db:"team_low"`
	TeamHigh    int            `db:"team_high"`
	HomeTeamID  int            `db:"home_team_id"`
	AwayTeamID  int            `db:"away_team_id"`
	HomeAbbr    string         `db:"home_abbr"`
	AwayAbbr    string         `db:"away_abbr"`
	League      string         `db:"league"`
	Status      string         `db:"status"`
	HomeScore   sql.NullInt32  `db:"home_score"`
	AwayScore   sql.NullInt32  `db:"away_score"`
	InningsHome pq.StringArray `db:"innings_home"`
	InningsAway pq.StringArray `db:"innings_away"`
	FinalInning sql.NullInt32  `db:"final_inning"`
	GameTime    sql.NullString `db:"game_time"`
	HomeHits    sql.NullInt32  `db:"home_hits"`
	AwayHits    sql.NullInt32  `db:"away_hits"`
	HomeErrors  sql.NullInt32  `db:"home_errors"`
	AwayErrors  sql.NullInt32  `db:"away_errors"`
	Venue       sql.NullString `db:"venue"`
	Duration    sql.NullString `db:"duration"`
	Attendance  sql.NullInt32  `db:"attendance"`
	Weather     sql.NullString `db:"weather"`
	IsDraw      bool           `db:"is_draw"`
	Winner      string         `db:"winner"`
	Source      string         `db:"source"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

// GameColumns is the select list matching GameRow.
const GameColumns = `game_date, team_low, team_high, home_team_id, away_team_id, home_abbr, away_abbr,
	league, status, home_score, away_score, innings_home, innings_away, final_inning, game_time,
	home_hits, away_hits, home_errors, away_errors, venue, duration, attendance, weather,
	is_draw, winner, source, updated_at`

// GameRowFrom converts a canonical record to its row.
func GameRowFrom(g league.Game, source string) GameRow {
	low, high := g.HomeTeamID, g.AwayTeamID
	if low > high {
		low, high = high, low
	}
	updated := g.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	return GameRow{
		GameDate:    league.Day(g.Date),
		TeamLow:     low,
		TeamHigh:    high,
		HomeTeamID:  g.HomeTeamID,
		AwayTeamID:  g.AwayTeamID,
		HomeAbbr:    g.HomeAbbr,
		AwayAbbr:    g.AwayAbbr,
		League:      string(g.League),
		Status:      string(g.Status),
		HomeScore:   g.HomeScore,
		AwayScore:   g.AwayScore,
		InningsHome: EncodeInnings(g.InningsHome),
		InningsAway: EncodeInnings(g.InningsAway),
		FinalInning: g.FinalInning,
		GameTime:    g.GameTime,
		HomeHits:    g.HomeHits,
		AwayHits:    g.AwayHits,
		HomeErrors:  g.HomeErrors,
		AwayErrors:  g.AwayErrors,
		Venue:       g.Venue,
		Duration:    g.Duration,
		Attendance:  g.Attendance,
		Weather:     g.Weather,
		IsDraw:      g.IsDraw,
		Winner:      string(g.Winner),
		Source:      source,
		UpdatedAt:   updated,
	}
}

// Game converts the row back to a canonical record.
func (r GameRow) Game() league.Game {
	return league.Game{
		Date:        league.Day(r.GameDate),
		HomeTeamID:  r.HomeTeamID,
		AwayTeamID:  r.AwayTeamID,
		HomeAbbr:    r.HomeAbbr,
		AwayAbbr:    r.AwayAbbr,
		League:      league.League(r.League),
		Status:      league.Status(r.Status),
		HomeScore:   r.HomeScore,
		AwayScore:   r.AwayScore,
		InningsHome: DecodeInnings(r.InningsHome),
		InningsAway: DecodeInnings(r.InningsAway),
		FinalInning: r.FinalInning,
		GameTime:    r.GameTime,
		HomeHits:    r.HomeHits,
		AwayHits:    r.AwayHits,
		HomeErrors:  r.HomeErrors,
		AwayErrors:  r.AwayErrors,
		Venue:       r.Venue,
		Duration:    r.Duration,
		Attendance:  r.Attendance,
		Weather:     r.Weather,
		IsDraw:      r.IsDraw,
		Winner:      league.Winner(r.Winner),
		UpdatedAt:   r.UpdatedAt,
	}
}

// EncodeInnings stores absent cells as NotPlayed.
func EncodeInnings(in []sql.NullInt32) pq.StringArray {
	out := make(pq.StringArray, len(in))
	for i, v := range in {
		if v.Valid {
			out[i] = strconv.Itoa(int(v.Int32))
		} else {
			out[i] = NotPlayed
		}
	}
	return out
}

// DecodeInnings is the inverse of EncodeInnings. Unreadable cells become absent.
func DecodeInnings(in pq.StringArray) []sql.NullInt32 {
	if len(in) == 0 {
		return nil
	}
	out := make([]sql.NullInt32, len(in))
	for i, s := range in {
		if n, err := strconv.Atoi(s); err == nil {
			out[i] = sql.NullInt32{Int32: int32(n), Valid: true}
		}
	}
	return out
}

// StandingRow is one persisted standings line.
type StandingRow struct {
	League            string         `db:"league"`
	TeamID            int            `db:"team_id"`
	Rank              int            `db:"rank"`
	GamesPlayed       int            `db:"games_played"`
	Wins              int            `db:"wins"`
	Losses            int            `db:"losses"`
	Draws             int            `db:"draws"`
	RunsFor           int            `db:"runs_for"`
	RunsAgainst       int            `db:"runs_against"`
	HomeWins          int            `db:"home_wins"`
	HomeLosses        int            `db:"home_losses"`
	AwayWins          int            `db:"away_wins"`
	AwayLosses        int            `db:"away_losses"`
	Last10Wins        int            `db:"last10_wins"`
	Last10Losses      int            `db:"last10_losses"`
	Last10Draws       int            `db:"last10_draws"`
	Streak            string         `db:"streak"`
	WinPct            float64        `db:"win_pct"`
	GamesBehind       float64        `db:"games_behind"`
	Remaining         int            `db:"remaining"`
	MagicNumber       sql.NullInt32  `db:"magic_number"`
	EliminationNumber sql.NullInt32  `db:"elimination_number"`
	ClinchStatus      sql.NullString `db:"clinch_status"`
	ComputedAt        time.Time      `db:"computed_at"`
	Abbreviation      string         `db:"abbreviation"`
	Name              string         `db:"name"`
}

// StandingRowFrom converts a standings entry to its row.
func StandingRowFrom(e league.StandingEntry, computedAt time.Time) StandingRow {
	return StandingRow{
		League:            string(e.League),
		TeamID:            e.TeamID,
		Rank:              e.Rank,
		GamesPlayed:       e.GamesPlayed,
		Wins:              e.Wins,
		Losses:            e.Losses,
		Draws:             e.Draws,
		RunsFor:           e.RunsFor,
		RunsAgainst:       e.RunsAgainst,
		HomeWins:          e.HomeWins,
		HomeLosses:        e.HomeLosses,
		AwayWins:          e.AwayWins,
		AwayLosses:        e.AwayLosses,
		Last10Wins:        e.Last10Wins,
		Last10Losses:      e.Last10Losses,
		Last10Draws:       e.Last10Draws,
		Streak:            e.Streak,
		WinPct:            e.Pct,
		GamesBehind:       e.GamesBehind,
		Remaining:         e.Remaining,
		MagicNumber:       nullIntPtr(e.MagicNumber),
		EliminationNumber: nullIntPtr(e.EliminationNumber),
		ClinchStatus:      sql.NullString{String: string(e.ClinchStatus), Valid: e.ClinchStatus != ""},
		ComputedAt:        computedAt,
		Abbreviation:      e.Abbreviation,
		Name:              e.Name,
	}
}

// Entry converts the row back to a standings entry.
func (r StandingRow) Entry() league.StandingEntry {
	return league.StandingEntry{
		Aggregate: league.Aggregate{
			TeamID:       r.TeamID,
			GamesPlayed:  r.GamesPlayed,
			Wins:         r.Wins,
			Losses:       r.Losses,
			Draws:        r.Draws,
			RunsFor:      r.RunsFor,
			RunsAgainst:  r.RunsAgainst,
			HomeWins:     r.HomeWins,
			HomeLosses:   r.HomeLosses,
			AwayWins:     r.AwayWins,
			AwayLosses:   r.AwayLosses,
			Last10Wins:   r.Last10Wins,
			Last10Losses: r.Last10Losses,
			Last10Draws:  r.Last10Draws,
			Streak:       r.Streak,
		},
		Abbreviation:      r.Abbreviation,
		Name:              r.Name,
		League:            league.League(r.League),
		Rank:              r.Rank,
		Pct:               r.WinPct,
		GamesBehind:       r.GamesBehind,
		Remaining:         r.Remaining,
		MagicNumber:       intPtr(r.MagicNumber),
		EliminationNumber: intPtr(r.EliminationNumber),
		ClinchStatus:      league.ClinchStatus(r.ClinchStatus.String),
	}
}

func nullIntPtr(p *int) sql.NullInt32 {
	if p == nil {
		return sql.NullInt32{}
	}
	return sql.NullInt32{Int32: int32(*p), Valid: true}
}

func intPtr(n sql.NullInt32) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int32)
	return &v
}
