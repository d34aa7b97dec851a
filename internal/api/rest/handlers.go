package rest

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cockroachdb/errors"
	"github.com/gorilla/mux"
	"github.com/valyala/bytebufferpool"

	"github.com/fortuna/pennant/internal/league"
	"github.com/fortuna/pennant/internal/platform/logging"
	"github.com/fortuna/pennant/internal/reconciliation"
	"github.com/fortuna/pennant/internal/service"
)

// GameQueries is the game read surface served over REST.
type GameQueries interface {
	GetGamesByDate(ctx context.Context, date time.Time) ([]service.GameSummary, error)
	GetUpcomingGames(ctx context.Context, limit int) ([]service.GameSummary, error)
	GetTeamSchedule(ctx context.Context, teamID int, from, to time.Time) ([]service.GameSummary, error)
	HeadToHead(ctx context.Context, season, team, opponent int) (league.HeadToHead, error)
	Export(ctx context.Context, w io.Writer, from, to time.Time) error
	CleanupStaleGames(ctx context.Context, staleAfter int) (int64, error)
	GetScoreboard(ctx context.Context, date time.Time, teamID int) (service.Scoreboard, error)
}

// StandingsQueries reads and rebuilds league tables.
type StandingsQueries interface {
	Get(ctx context.Context, lg league.League) ([]league.StandingEntry, error)
	Recompute(ctx context.Context, season int) (map[league.League][]league.StandingEntry, error)
}

// MetricsSource exposes reconciliation counters.
type MetricsSource interface {
	GetMetrics() reconciliation.Metrics
}

// HealthChecker is implemented by the database and the cache.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies wires the handler to the services.
type Dependencies struct {
	Games          GameQueries
	Standings      StandingsQueries
	Metrics        MetricsSource
	Reference      *league.Reference
	Season         int
	StaleAfterDays int
	Checks         map[string]HealthChecker
	Logger         *logging.Logger
}

// Handler contains dependencies for HTTP handlers
type Handler struct {
	games      GameQueries
	standings  StandingsQueries
	metrics    MetricsSource
	ref        *league.Reference
	season     int
	staleAfter int
	checks     map[string]HealthChecker
	logger     *logging.Logger
	now        func() time.Time
}

const (
	defaultUpcoming = 20
	maxExportDays   = 31
)

// NewHandler creates a new handler
func NewHandler(deps Dependencies) *Handler {
	return &Handler{
		games:      deps.Games,
		standings:  deps.Standings,
		metrics:    deps.Metrics,
		ref:        deps.Reference,
		season:     deps.Season,
		staleAfter: deps.StaleAfterDays,
		checks:     deps.Checks,
		logger:     deps.Logger.Named("rest"),
		now:        time.Now,
	}
}

// HealthCheck reports the state of each backing dependency.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(h.checks))
	for name, c := range h.checks {
		if err := c.HealthCheck(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	state := "healthy"
	if status != http.StatusOK {
		state = "degraded"
	}
	respondJSON(w, status, map[string]interface{}{
		"status":  state,
		"service": "pennant",
		"season":  h.season,
		"checks":  checks,
	})
}

// GetTeams lists the reference teams, optionally filtered by ?league=.
func (h *Handler) GetTeams(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("league")
	if raw == "" {
		respondJSON(w, http.StatusOK, h.ref.Teams())
		return
	}
	lg, ok := league.ParseLeague(raw)
	if !ok {
		respondError(w, errors.Wrapf(league.ErrInvalidInput, "league %q", raw))
		return
	}
	respondJSON(w, http.StatusOK, h.ref.InLeague(lg))
}

// GetTeam returns one team by id or abbreviation.
func (h *Handler) GetTeam(w http.ResponseWriter, r *http.Request) {
	team, err := h.team(mux.Vars(r)["teamID"])
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, team)
}

// GetTeamSchedule returns a team's games between ?from and ?to (default: the season).
func (h *Handler) GetTeamSchedule(w http.ResponseWriter, r *http.Request) {
	team, err := h.team(mux.Vars(r)["teamID"])
	if err != nil {
		respondError(w, err)
		return
	}

	from := time.Date(h.season, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(h.season, time.December, 31, 0, 0, 0, 0, time.UTC)
	if from, err = dateParam(r, "from", from); err != nil {
		respondError(w, err)
		return
	}
	if to, err = dateParam(r, "to", to); err != nil {
		respondError(w, err)
		return
	}

	games, err := h.games.GetTeamSchedule(r.Context(), team.ID, from, to)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, games)
}

// GetHeadToHead returns the season record of team against opponent.
func (h *Handler) GetHeadToHead(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	team, err := h.team(vars["teamID"])
	if err != nil {
		respondError(w, err)
		return
	}
	opponent, err := h.team(vars["opponentID"])
	if err != nil {
		respondError(w, err)
		return
	}
	season, err := intParam(r, "season", h.season)
	if err != nil {
		respondError(w, err)
		return
	}

	record, err := h.games.HeadToHead(r.Context(), season, team.ID, opponent.ID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"season":   season,
		"team":     team,
		"opponent": opponent,
		"record":   record,
	})
}

// GetStandings returns both league tables.
func (h *Handler) GetStandings(w http.ResponseWriter, r *http.Request) {
	out := make(map[league.League][]league.StandingEntry, len(league.Leagues))
	for _, lg := range league.Leagues {
		entries, err := h.standings.Get(r.Context(), lg)
		if err != nil {
			respondError(w, err)
			return
		}
		out[lg] = entries
	}
	respondJSON(w, http.StatusOK, out)
}

// GetClinchScenarios splits each league into leader, contenders and eliminated teams.
func (h *Handler) GetClinchScenarios(w http.ResponseWriter, r *http.Request) {
	out := make(map[league.League]league.ClinchScenario, len(league.Leagues))
	for _, lg := range league.Leagues {
		entries, err := h.standings.Get(r.Context(), lg)
		if err != nil {
			respondError(w, err)
			return
		}
		out[lg] = service.Scenarios(entries)
	}
	respondJSON(w, http.StatusOK, out)
}

// GetLeagueComparison averages the two league tables side by side.
func (h *Handler) GetLeagueComparison(w http.ResponseWriter, r *http.Request) {
	out := make(map[league.League]league.LeagueComparison, len(league.Leagues))
	for _, lg := range league.Leagues {
		entries, err := h.standings.Get(r.Context(), lg)
		if err != nil {
			respondError(w, err)
			return
		}
		out[lg] = service.CompareLeague(lg, entries)
	}
	respondJSON(w, http.StatusOK, out)
}

// GetLeagueStandings returns one league table.
func (h *Handler) GetLeagueStandings(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["league"]
	lg, ok := league.ParseLeague(raw)
	if !ok {
		respondError(w, errors.Wrapf(league.ErrInvalidInput, "league %q", raw))
		return
	}

	entries, err := h.standings.Get(r.Context(), lg)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"league":    lg,
		"standings": entries,
	})
}

// RecomputeStandings rebuilds the tables of ?season from stored games.
func (h *Handler) RecomputeStandings(w http.ResponseWriter, r *http.Request) {
	season, err := intParam(r, "season", h.season)
	if err != nil {
		respondError(w, err)
		return
	}

	out, err := h.standings.Recompute(r.Context(), season)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, out)
}

// GetGamesByDate returns all games on ?date (default: today in Japan).
func (h *Handler) GetGamesByDate(w http.ResponseWriter, r *http.Request) {
	date, err := dateParam(r, "date", league.Today(h.now()))
	if err != nil {
		respondError(w, err)
		return
	}

	games, err := h.games.GetGamesByDate(r.Context(), date)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"date":  date.Format(league.DateLayout),
		"games": games,
	})
}

// GetUpcomingGames returns scheduled games from today on.
func (h *Handler) GetUpcomingGames(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", defaultUpcoming)
	if err != nil {
		respondError(w, err)
		return
	}

	games, err := h.games.GetUpcomingGames(r.Context(), limit)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, games)
}

// CleanupStaleGames marks long-unplayed scheduled games as postponed.
func (h *Handler) CleanupStaleGames(w http.ResponseWriter, r *http.Request) {
	count, err := h.games.CleanupStaleGames(r.Context(), h.staleAfter)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message":       "Stale games cleaned up",
		"games_updated": count,
	})
}

// GetScoreboard returns the inning breakdown of a team's game on {date}.
func (h *Handler) GetScoreboard(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	date, err := league.ParseDate(vars["date"])
	if err != nil {
		respondError(w, err)
		return
	}
	team, err := h.team(vars["teamID"])
	if err != nil {
		respondError(w, err)
		return
	}

	sb, err := h.games.GetScoreboard(r.Context(), date, team.ID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sb)
}

// ExportDate writes the canonical text of {date}, or of {date}..?to.
func (h *Handler) ExportDate(w http.ResponseWriter, r *http.Request) {
	from, err := league.ParseDate(mux.Vars(r)["date"])
	if err != nil {
		respondError(w, err)
		return
	}
	to, err := dateParam(r, "to", from)
	if err != nil {
		respondError(w, err)
		return
	}
	if to.Before(from) || to.Sub(from) > maxExportDays*24*time.Hour {
		respondError(w, errors.Wrapf(league.ErrInvalidInput, "export range must be 1-%d days", maxExportDays+1))
		return
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	if err := h.games.Export(r.Context(), buf, from, to); err != nil {
		respondError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.B); err != nil {
		h.logger.Warn("export write failed", "error", err)
	}
}

// GetReconciliationMetrics returns the engine counters.
func (h *Handler) GetReconciliationMetrics(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.metrics.GetMetrics())
}

func (h *Handler) team(raw string) (league.TeamIdentity, error) {
	if id, err := strconv.Atoi(raw); err == nil {
		if t, ok := h.ref.ByID(id); ok {
			return t, nil
		}
	} else if t, ok := h.ref.ByAbbreviation(raw); ok {
		return t, nil
	}
	return league.TeamIdentity{}, errors.Wrapf(league.ErrNotFound, "team %q", raw)
}

func dateParam(r *http.Request, name string, def time.Time) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	return league.ParseDate(raw)
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.Wrapf(league.ErrInvalidInput, "%s must be a positive integer", name)
	}
	return n, nil
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = sonic.ConfigDefault.NewEncoder(w).Encode(data)
}

// respondError maps err onto a status code and writes the error body.
func respondError(w http.ResponseWriter, err error) {
	status, message := errorStatus(err)
	respondJSON(w, status, map[string]interface{}{
		"error":   message,
		"status":  status,
		"details": err.Error(),
	})
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, league.ErrInvalidInput):
		return http.StatusBadRequest, "invalid input"
	case errors.Is(err, league.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, league.ErrDependencyUnavailable):
		return http.StatusServiceUnavailable, "dependency unavailable"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
