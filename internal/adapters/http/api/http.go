// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/okian/venuestats/internal/adapters/repository"
	service "github.com/okian/venuestats/internal/app"
	"github.com/okian/venuestats/internal/domain/geo"
	"github.com/okian/venuestats/internal/domain/model"
	"github.com/okian/venuestats/internal/domain/types"
)

// Dependencies required by HTTP handlers. The service implements all of
// them; handlers only see the slice they use.
type Dependencies interface {
	OutcomeDependencies
	AggregateDependencies
	NearbyDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	outcomesHandler  *OutcomesHandler
	aggregateHandler *AggregateHandler
	nearbyHandler    *NearbyHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:    NewHealthHandler(),
		statsHandler:     NewStatsHandler(statsProvider),
		outcomesHandler:  NewOutcomesHandler(deps),
		aggregateHandler: NewAggregateHandler(deps),
		nearbyHandler:    NewNearbyHandler(deps),
	}
}

// Register attaches all HTTP routes to r.
func (s *Server) Register(_ context.Context, r *mux.Router) {
	r.Use(MetricsMiddleware)

	r.HandleFunc("/healthz", s.healthHandler.HandleHealth).Methods(http.MethodGet).Name("healthz")
	r.Handle("/metrics", s.healthHandler.MetricsHandler()).Methods(http.MethodGet).Name("metrics")
	r.HandleFunc("/service/stats", s.statsHandler.HandleStats).Methods(http.MethodGet).Name("service_stats")

	r.HandleFunc("/outcomes", s.outcomesHandler.HandlePostOutcome).Methods(http.MethodPost).Name("outcomes")

	r.HandleFunc("/stats/users/{user}", s.aggregateHandler.HandleGetUser).Methods(http.MethodGet).Name("user_stats")
	r.HandleFunc("/stats/venues/{venue}", s.aggregateHandler.HandleGetVenue).Methods(http.MethodGet).Name("venue_stats")
	r.HandleFunc("/stats/pairs/{user}/{venue}", s.aggregateHandler.HandleGetPair).Methods(http.MethodGet).Name("pair_stats")
	r.HandleFunc("/points/{user}", s.aggregateHandler.HandleGetPoints).Methods(http.MethodGet).Name("points")

	r.HandleFunc("/venues/nearby", s.nearbyHandler.HandleGetNearby).Methods(http.MethodGet).Name("nearby")
}

// Handler returns a router with every route registered.
func (s *Server) Handler(ctx context.Context) http.Handler {
	r := mux.NewRouter()
	s.Register(ctx, r)
	return r
}

// Entry shapes returned by the aggregate endpoints.
type (
	pairResponse struct {
		User  any `json:"user"`
		Venue any `json:"venue"`
	}
	nearbyResponse struct {
		Venues []types.NearbyVenue `json:"venues"`
	}
	errorResponse struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeServiceError maps a service error onto a status code.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, types.ErrInvalidMessage),
		errors.Is(err, model.ErrUnknownReservationStatus),
		errors.Is(err, geo.ErrInvalidCoordinate):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, service.ErrBusy), errors.Is(err, ErrBackpressure):
		writeError(w, http.StatusTooManyRequests, "backpressure", err)
	case errors.Is(err, service.ErrPartialAggregateWrite):
		// Checked before unavailability: the failed half's cause is wrapped.
		writeError(w, http.StatusInternalServerError, "partial_write", err)
	case errors.Is(err, service.ErrNotStarted), errors.Is(err, repository.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "timeout", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}
