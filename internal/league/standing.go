package league

// ClinchStatus labels a team's pennant-race position. Empty means no label.
type ClinchStatus string

const (
	ClinchChampion   ClinchStatus = "champion"
	ClinchClose      ClinchStatus = "close"
	ClinchDanger     ClinchStatus = "danger"
	ClinchEliminated ClinchStatus = "eliminated"
)

// Aggregate is a team's season totals, always recomputed from the full canonical set.
type Aggregate struct {
	TeamID      int `json:"team_id"`
	GamesPlayed int `json:"games_played"`
	Wins        int `json:"wins"`
	Losses      int `json:"losses"`
	Draws       int `json:"draws"`
	RunsFor     int `json:"runs_for"`
	RunsAgainst int `json:"runs_against"`

	HomeWins     int    `json:"home_wins"`
	HomeLosses   int    `json:"home_losses"`
	AwayWins     int    `json:"away_wins"`
	AwayLosses   int    `json:"away_losses"`
	Last10Wins   int    `json:"last10_wins"`
	Last10Losses int    `json:"last10_losses"`
	Last10Draws  int    `json:"last10_draws"`
	Streak       string `json:"streak,omitempty"`
}

// WinPct is wins over decisive games; draws are excluded from the denominator.
func (a Aggregate) WinPct() float64 {
	decisive := a.Wins + a.Losses
	if decisive == 0 {
		return 0
	}
	return float64(a.Wins) / float64(decisive)
}

// RunDifferential is runs for minus runs against.
func (a Aggregate) RunDifferential() int {
	return a.RunsFor - a.RunsAgainst
}

// Consistent checks W+L+D == GP.
func (a Aggregate) Consistent() bool {
	return a.Wins+a.Losses+a.Draws == a.GamesPlayed
}

// StandingEntry is an aggregate ranked within its league.
type StandingEntry struct {
	Aggregate
	Abbreviation      string       `json:"abbreviation"`
	Name              string       `json:"name"`
	League            League       `json:"league"`
	Rank              int          `json:"rank"`
	Pct               float64      `json:"win_pct"`
	GamesBehind       float64      `json:"games_behind"`
	Remaining         int          `json:"remaining"`
	MagicNumber       *int         `json:"magic_number,omitempty"`
	EliminationNumber *int         `json:"elimination_number,omitempty"`
	ClinchStatus      ClinchStatus `json:"clinch_status,omitempty"`
}

// HeadToHead is the record of one team against one opponent.
type HeadToHead struct {
	TeamID      int `json:"team_id"`
	OpponentID  int `json:"opponent_id"`
	GamesPlayed int `json:"games_played"`
	Wins        int `json:"wins"`
	Losses      int `json:"losses"`
	Draws       int `json:"draws"`
	RunsFor     int `json:"runs_for"`
	RunsAgainst int `json:"runs_against"`
}

// ClinchScenario splits one league's table into the leader, the teams still alive
// and the teams already out of the race.
type ClinchScenario struct {
	Leader     *ScenarioTeam  `json:"leader,omitempty"`
	Contenders []ScenarioTeam `json:"contenders"`
	Eliminated []ScenarioTeam `json:"eliminated"`
}

// ScenarioTeam is one line of a ClinchScenario.
type ScenarioTeam struct {
	TeamID            int          `json:"team_id"`
	Abbreviation      string       `json:"abbreviation"`
	GamesBehind       float64      `json:"games_behind"`
	MagicNumber       *int         `json:"magic_number,omitempty"`
	EliminationNumber *int         `json:"elimination_number,omitempty"`
	ClinchStatus      ClinchStatus `json:"clinch_status,omitempty"`
}

// LeagueComparison averages one league's standings.
type LeagueComparison struct {
	League                League  `json:"league"`
	Teams                 int     `json:"teams"`
	TotalGames            int     `json:"total_games"`
	AvgWinPct             float64 `json:"avg_win_pct"`
	AvgRunsPerGame        float64 `json:"avg_runs_per_game"`
	AvgRunsAllowedPerGame float64 `json:"avg_runs_allowed_per_game"`
}
