package league

import (
	"database/sql"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// DateLayout is the canonical date format used in keys, exports and URLs.
const DateLayout = "2006-01-02"

// Status is the lifecycle state of a game.
type Status string

const (
	StatusScheduled  Status = "SCHEDULED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusPostponed  Status = "POSTPONED"
)

// Valid reports whether s is one of the four states.
func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusInProgress, StatusCompleted, StatusPostponed:
		return true
	}
	return false
}

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusPostponed
}

func (s Status) String() string {
	return string(s)
}

// ParseStatus accepts the enum names in any case plus the lowercase storage names.
func ParseStatus(raw string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "scheduled":
		return StatusScheduled, true
	case "in_progress", "in-progress", "live":
		return StatusInProgress, true
	case "completed", "final":
		return StatusCompleted, true
	case "postponed", "cancelled", "canceled":
		return StatusPostponed, true
	}
	return "", false
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, errors.Newf("unknown status %q", string(s))
	}
	return []byte(s), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(b []byte) error {
	parsed, ok := ParseStatus(string(b))
	if !ok {
		return errors.Newf("unknown status %q", string(b))
	}
	*s = parsed
	return nil
}

// Winner names the side that won a completed game.
type Winner string

const (
	WinnerHome Winner = "home"
	WinnerAway Winner = "away"
	WinnerDraw Winner = "draw"
	WinnerNone Winner = "none"
)

// Game is the canonical record of one game. Optional fields are present when Valid.
type Game struct {
	Date        time.Time       `json:"game_date"`
	HomeTeamID  int             `json:"home_team_id"`
	AwayTeamID  int             `json:"away_team_id"`
	HomeAbbr    string          `json:"home_team_abbr"`
	AwayAbbr    string          `json:"away_team_abbr"`
	League      League          `json:"league"`
	HomeScore   sql.NullInt32   `json:"home_score"`
	AwayScore   sql.NullInt32   `json:"away_score"`
	Status      Status          `json:"status"`
	InningsHome []sql.NullInt32 `json:"innings_home,omitempty"`
	InningsAway []sql.NullInt32 `json:"innings_away,omitempty"`
	FinalInning sql.NullInt32   `json:"final_inning"`
	GameTime    sql.NullString  `json:"game_time"`
	HomeHits    sql.NullInt32   `json:"home_hits"`
	AwayHits    sql.NullInt32   `json:"away_hits"`
	HomeErrors  sql.NullInt32   `json:"home_errors"`
	AwayErrors  sql.NullInt32   `json:"away_errors"`
	Venue       sql.NullString  `json:"venue"`
	Duration    sql.NullString  `json:"duration"`
	Attendance  sql.NullInt32   `json:"attendance"`
	Weather     sql.NullString  `json:"weather"`
	IsDraw      bool            `json:"is_draw"`
	Winner      Winner          `json:"winner"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Observation is one raw extraction of a game, tagged with the pass that produced it.
type Observation struct {
	Game
	Source     string    `json:"source"`
	ObservedAt time.Time `json:"observed_at"`
}

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, errors.Wrapf(ErrInvalidInput, "date %q: %v", s, err)
	}
	return t, nil
}

// DateKey is the game's date in DateLayout.
func (g *Game) DateKey() string {
	return g.Date.Format(DateLayout)
}

// HasScores reports whether both totals are present.
func (g *Game) HasScores() bool {
	return g.HomeScore.Valid && g.AwayScore.Valid
}

// Finalize forces the record invariants and recomputes IsDraw and Winner.
func (g *Game) Finalize() {
	g.Date = Day(g.Date)
	if g.Status == StatusPostponed {
		g.HomeScore = sql.NullInt32{}
		g.AwayScore = sql.NullInt32{}
	}

	g.IsDraw = false
	g.Winner = WinnerNone
	if g.Status != StatusCompleted || !g.HasScores() {
		return
	}
	switch {
	case g.HomeScore.Int32 == g.AwayScore.Int32:
		g.IsDraw = true
		g.Winner = WinnerDraw
	case g.HomeScore.Int32 > g.AwayScore.Int32:
		g.Winner = WinnerHome
	default:
		g.Winner = WinnerAway
	}
}

// Validate checks the structural invariants of a canonical record.
func (g *Game) Validate() error {
	switch {
	case g.Date.IsZero():
		return errors.Wrap(ErrInvalidRecord, "missing date")
	case g.HomeTeamID <= 0 || g.AwayTeamID <= 0:
		return errors.Wrap(ErrInvalidRecord, "missing team id")
	case g.HomeTeamID == g.AwayTeamID:
		return errors.Wrapf(ErrInvalidRecord, "team %d cannot play itself", g.HomeTeamID)
	case !g.Status.Valid():
		return errors.Wrapf(ErrInvalidRecord, "status %q", string(g.Status))
	case g.Status == StatusPostponed && (g.HomeScore.Valid || g.AwayScore.Valid):
		return errors.Wrap(ErrInvalidRecord, "postponed game carries a score")
	case g.Status == StatusCompleted && !g.HasScores():
		return errors.Wrap(ErrInvalidRecord, "completed game without both scores")
	case g.IsDraw != (g.Status == StatusCompleted && g.HasScores() && g.HomeScore.Int32 == g.AwayScore.Int32):
		return errors.Wrap(ErrInvalidRecord, "draw flag disagrees with score")
	}
	return nil
}

// InningEntries counts entries across both inning arrays.
func (g *Game) InningEntries() int {
	return len(g.InningsHome) + len(g.InningsAway)
}

// FinalInningCount is the explicit final inning, else the longest inning array.
func (g *Game) FinalInningCount() int {
	if g.FinalInning.Valid {
		return int(g.FinalInning.Int32)
	}
	n := len(g.InningsAway)
	if len(g.InningsHome) > n {
		n = len(g.InningsHome)
	}
	return n
}

// PopulatedOptional counts the optional descriptive fields that are present.
func (g *Game) PopulatedOptional() int {
	n := 0
	for _, present := range []bool{
		g.FinalInning.Valid,
		g.GameTime.Valid,
		g.HomeHits.Valid || g.AwayHits.Valid,
		g.HomeErrors.Valid || g.AwayErrors.Valid,
		g.Venue.Valid,
		g.Duration.Valid,
		g.Attendance.Valid,
		g.Weather.Valid,
	} {
		if present {
			n++
		}
	}
	return n
}

// Involves reports whether team id played in the game.
func (g *Game) Involves(teamID int) bool {
	return g.HomeTeamID == teamID || g.AwayTeamID == teamID
}

// Clone returns a deep copy so stored records are never shared with callers.
func (g Game) Clone() Game {
	g.InningsHome = append([]sql.NullInt32(nil), g.InningsHome...)
	g.InningsAway = append([]sql.NullInt32(nil), g.InningsAway...)
	return g
}

// Tokyo is Japan Standard Time. Japan observes no daylight saving, so a fixed zone
// avoids depending on tzdata in minimal images.
var Tokyo = time.FixedZone("JST", 9*60*60)

// Today is the current calendar date in Japan, as a UTC midnight.
func Today(now time.Time) time.Time {
	return Day(now.In(Tokyo))
}
