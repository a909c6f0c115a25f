// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/okian/venuestats/internal/domain/model"
	"github.com/okian/venuestats/internal/domain/types"
)

// OutcomeDependencies defines the interface for outcome ingestion.
type OutcomeDependencies interface {
	// Submit deduplicates and queues an event for the workers.
	Submit(ctx context.Context, e model.OutcomeEvent) (types.OutcomeResult, error)
	// Apply deduplicates and processes an event inline.
	Apply(ctx context.Context, e model.OutcomeEvent) (types.OutcomeResult, error)
}

// OutcomesHandler handles reservation outcome submissions.
type OutcomesHandler struct {
	deps OutcomeDependencies
	now  func() time.Time
}

// NewOutcomesHandler creates a new outcomes handler.
func NewOutcomesHandler(deps OutcomeDependencies) *OutcomesHandler {
	return &OutcomesHandler{deps: deps, now: time.Now}
}

// HandlePostOutcome handles POST /outcomes requests. With ?sync=true the
// outcome is applied before responding; otherwise it is queued and 202 is
// returned. Duplicates answer 200.
func (h *OutcomesHandler) HandlePostOutcome(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_outcome"

	var msg types.OutcomeMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	e, err := msg.ToEvent(h.now())
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	inline, _ := strconv.ParseBool(r.URL.Query().Get("sync"))

	var res types.OutcomeResult
	if inline {
		res, err = h.deps.Apply(r.Context(), e)
	} else {
		res, err = h.deps.Submit(r.Context(), e)
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}

	switch {
	case res.Duplicate, inline:
		writeJSON(w, http.StatusOK, res)
	default:
		writeJSON(w, http.StatusAccepted, res)
	}
}
