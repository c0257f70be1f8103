package rest

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
)

// Server represents the REST API server
type Server struct {
	port   string
	server *http.Server
	router *mux.Router
}

// NewServer creates a new REST API server. db, cache and runs may be nil
// when the backend is not configured.
func NewServer(port string, predictions Predictions, db HealthChecker, cache CacheChecker, runs Runs) *Server {
	handler := NewHandler(predictions, db, cache)

	router := mux.NewRouter()

	// Apply middleware
	router.Use(RecoveryMiddleware)
	router.Use(LoggingMiddleware)
	router.Use(CORSMiddleware)

	// Health check
	router.HandleFunc("/health", handler.HealthCheck).Methods("GET")

	// API v1 routes
	api := router.PathPrefix("/api/v1").Subrouter()

	// Seasons and rankings
	api.HandleFunc("/seasons", handler.GetSeasons).Methods("GET")
	api.HandleFunc("/split", handler.GetSplit).Methods("GET")
	api.HandleFunc("/seasons/{season:[0-9]+}/rankings", handler.GetRankings).Methods("GET")
	api.HandleFunc("/seasons/{season:[0-9]+}/history", handler.GetHistory).Methods("GET")
	api.HandleFunc("/evaluation/winner-ranks", handler.GetWinnerRanks).Methods("GET")

	// Pipeline runs
	if runs != nil {
		runHandler := NewRunHandler(runs)
		api.HandleFunc("/runs", runHandler.HandleRunRequest).Methods("POST")
		api.HandleFunc("/runs/status", runHandler.HandleRunStatus).Methods("GET")
	}

	return &Server{
		port:   port,
		router: router,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%s", port),
			Handler: router,
		},
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
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
