// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/okian/venuestats/internal/domain/stats"
	"github.com/okian/venuestats/internal/domain/types"
)

// AggregateDependencies defines the read side of the stats and points.
type AggregateDependencies interface {
	GetUserStats(ctx context.Context, user string) (stats.UserStatEntry, error)
	GetVenueStats(ctx context.Context, venue string) (stats.VenueStatEntry, error)
	GetPair(ctx context.Context, user, venue string) (stats.UserStatEntry, stats.VenueStatEntry, error)
	Points(ctx context.Context, user string) (int64, error)
}

// AggregateHandler serves user and venue aggregates.
type AggregateHandler struct {
	deps AggregateDependencies
}

// NewAggregateHandler creates a new aggregate handler.
func NewAggregateHandler(deps AggregateDependencies) *AggregateHandler {
	return &AggregateHandler{deps: deps}
}

// HandleGetUser handles GET /stats/users/{user}.
func (h *AggregateHandler) HandleGetUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.deps.GetUserStats(r.Context(), mux.Vars(r)["user"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// HandleGetVenue handles GET /stats/venues/{venue}.
func (h *AggregateHandler) HandleGetVenue(w http.ResponseWriter, r *http.Request) {
	v, err := h.deps.GetVenueStats(r.Context(), mux.Vars(r)["venue"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// HandleGetPair handles GET /stats/pairs/{user}/{venue}.
func (h *AggregateHandler) HandleGetPair(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	u, v, err := h.deps.GetPair(r.Context(), vars["user"], vars["venue"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pairResponse{User: u, Venue: v})
}

// HandleGetPoints handles GET /points/{user}.
func (h *AggregateHandler) HandleGetPoints(w http.ResponseWriter, r *http.Request) {
	user := mux.Vars(r)["user"]
	p, err := h.deps.Points(r.Context(), user)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.PointsBalance{User: user, Points: p})
}
