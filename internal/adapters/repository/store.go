// Package repository defines the stat store, point ledger and venue source
// interfaces together with memory, Redis and Postgres implementations.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/venuestats/internal/domain/stats"
	"github.com/okian/venuestats/pkg/metrics"
)

// VenueRow is one venue as delivered by a paginated venue query. Coordinates
// are kept as the literals the source holds; parsing happens in the caller.
type VenueRow struct {
	ID        string `json:"id"`
	Latitude  string `json:"latitude"`
	Longitude string `json:"longitude"`
}

// StatStore provides read/write access to the running aggregates.
// Absent entries are returned as zeroed defaults, never as errors.
type StatStore interface {
	GetUser(ctx context.Context, user string) (stats.UserStatEntry, error)
	SaveUser(ctx context.Context, e stats.UserStatEntry) error
	GetVenue(ctx context.Context, venue string) (stats.VenueStatEntry, error)
	SaveVenue(ctx context.Context, e stats.VenueStatEntry) error
}

// PairSaver is implemented by stores that can write a user and a venue entry
// in one atomic step.
type PairSaver interface {
	SavePair(ctx context.Context, u stats.UserStatEntry, v stats.VenueStatEntry) error //nolint:gocritic // hugeParam: entries are values
}

// PointLedger accumulates point deltas per user.
type PointLedger interface {
	// AddPoints adds amount to user's running total and returns the new total.
	AddPoints(ctx context.Context, user string, amount int) (int64, error)
	// Points returns user's running total, 0 when unknown.
	Points(ctx context.Context, user string) (int64, error)
}

// VenueSource pages through venue coordinates. An empty page means the source
// is exhausted.
type VenueSource interface {
	VenuePage(ctx context.Context, offset, limit int) ([]VenueRow, error)
}

// Store bundles everything a backend provides.
type Store interface {
	StatStore
	PairSaver
	PointLedger
	VenueSource
	Close() error
}

func checkPage(offset, limit int) error {
	if offset < 0 || limit <= 0 {
		return fmt.Errorf("%w: offset=%d limit=%d", ErrInvalidPage, offset, limit)
	}
	return nil
}

func checkVenue(row VenueRow) error {
	if row.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidVenue)
	}
	return nil
}

// observe records the latency and outcome of one store operation. It is
// deferred with a pointer to the named error result.
func observe(backend, op string, start time.Time, errp *error) {
	metrics.RecordStoreOp(backend, op, float64(time.Since(start).Microseconds())/1000, *errp)
}
