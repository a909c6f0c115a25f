// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/okian/venuestats/internal/domain/types"
)

// NearbyDependencies defines the interface for venue ranking.
type NearbyDependencies interface {
	NearbyVenues(ctx context.Context, lat, lon float64, limit int) ([]types.NearbyVenue, error)
}

// NearbyHandler ranks venues by distance.
type NearbyHandler struct {
	deps NearbyDependencies
}

// NewNearbyHandler creates a new nearby handler.
func NewNearbyHandler(deps NearbyDependencies) *NearbyHandler {
	return &NearbyHandler{deps: deps}
}

// HandleGetNearby handles GET /venues/nearby?lat=&lon=&limit=.
func (h *NearbyHandler) HandleGetNearby(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_nearby"
	q := r.URL.Query()

	lat, err := strconv.ParseFloat(q.Get("lat"), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, fmt.Errorf("lat: %w", err)))
		return
	}
	lon, err := strconv.ParseFloat(q.Get("lon"), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, fmt.Errorf("lon: %w", err)))
		return
	}
	limit := 0
	if s := q.Get("limit"); s != "" {
		if limit, err = strconv.Atoi(s); err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
	}

	venues, err := h.deps.NearbyVenues(r.Context(), lat, lon, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nearbyResponse{Venues: venues})
}
