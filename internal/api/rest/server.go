package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/fortuna/pennant/internal/platform/logging"
)

// Options configures the HTTP listener.
type Options struct {
	Port         string
	CORSOrigins  []string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	ServiceName  string
}

// Server represents the REST API server
type Server struct {
	port   string
	server *http.Server
	router *mux.Router
}

// NewServer creates a new REST API server. Extra routes such as the websocket
// endpoint can be added through Router before Start.
func NewServer(opts Options, handler *Handler, backfillHandler *BackfillHandler, logger *logging.Logger) *Server {
	logger = logger.Named("http")
	router := NewRouter(handler, backfillHandler, logger)

	name := opts.ServiceName
	if name == "" {
		name = "pennant"
	}

	return &Server{
		port:   opts.Port,
		router: router,
		server: &http.Server{
			Addr:         fmt.Sprintf(":%s", opts.Port),
			Handler:      TracingMiddleware(name, CORSMiddleware(opts.CORSOrigins)(router)),
			ReadTimeout:  opts.ReadTimeout,
			WriteTimeout: opts.WriteTimeout,
		},
	}
}

// NewRouter builds the route table. backfillHandler may be nil. CORS wraps the
// router from outside so preflight requests never reach method matching.
func NewRouter(handler *Handler, backfillHandler *BackfillHandler, logger *logging.Logger) *mux.Router {
	router := mux.NewRouter()

	router.Use(RecoveryMiddleware(logger))
	router.Use(LoggingMiddleware(logger))

	router.HandleFunc("/health", handler.HealthCheck).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()

	// Games
	api.HandleFunc("/games/upcoming", handler.GetUpcomingGames).Methods("GET")
	api.HandleFunc("/games/cleanup", handler.CleanupStaleGames).Methods("POST")
	api.HandleFunc("/games", handler.GetGamesByDate).Methods("GET")
	api.HandleFunc("/games/{date:[0-9]{4}-[0-9]{2}-[0-9]{2}}/teams/{teamID}/innings", handler.GetScoreboard).Methods("GET")
	api.HandleFunc("/export/{date}", handler.ExportDate).Methods("GET")

	// Standings
	api.HandleFunc("/standings", handler.GetStandings).Methods("GET")
	api.HandleFunc("/standings/recompute", handler.RecomputeStandings).Methods("POST")
	api.HandleFunc("/standings/scenarios", handler.GetClinchScenarios).Methods("GET")
	api.HandleFunc("/standings/comparison", handler.GetLeagueComparison).Methods("GET")
	api.HandleFunc("/standings/{league}", handler.GetLeagueStandings).Methods("GET")

	// Teams
	api.HandleFunc("/teams", handler.GetTeams).Methods("GET")
	api.HandleFunc("/teams/{teamID}", handler.GetTeam).Methods("GET")
	api.HandleFunc("/teams/{teamID}/schedule", handler.GetTeamSchedule).Methods("GET")
	api.HandleFunc("/teams/{teamID}/vs/{opponentID}", handler.GetHeadToHead).Methods("GET")

	api.HandleFunc("/metrics/reconciliation", handler.GetReconciliationMetrics).Methods("GET")

	if backfillHandler != nil {
		api.HandleFunc("/backfill", backfillHandler.HandleBackfillRequest).Methods("POST")
		api.HandleFunc("/backfill/status", backfillHandler.HandleBackfillStatus).Methods("GET")
		api.HandleFunc("/backfill/{jobID:[0-9]+}", backfillHandler.HandleBackfillJob).Methods("GET")
		api.HandleFunc("/scheduler/status", backfillHandler.HandleSchedulerStatus).Methods("GET")
		api.HandleFunc("/scheduler/ingest", backfillHandler.HandleManualIngest).Methods("POST")
	}

	return router
}

// Router exposes the route table for additional endpoints.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Start starts the REST API server
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
