// Package scoring derives reward and penalty points from reservation outcomes.
package scoring

import (
	"context"
	"fmt"

	"github.com/okian/venuestats/internal/domain/model"
)

// Default point amounts.
const (
	DefaultReward  = 50
	DefaultPenalty = -50
)

// venueActorPrefix prefixes venue identities in the actor field.
const venueActorPrefix = "venue/"

// Option applies a configuration option to the PointScorer.
type Option func(*PointScorer)

// WithReward sets the points granted for non-negative outcomes.
func WithReward(points int) Option {
	return func(s *PointScorer) {
		if points >= 0 {
			s.reward = points
		}
	}
}

// WithPenalty sets the points charged for canceled or expired reservations.
func WithPenalty(points int) Option {
	return func(s *PointScorer) {
		if points <= 0 {
			s.penalty = points
		}
	}
}

// Input is the reservation transition being scored.
type Input struct {
	Reservation model.Reservation
	// Actor is who triggered the transition, empty when unknown.
	Actor string
}

// Result is the point delta owed to the reservation's user.
type Result struct {
	User   string
	Points int
}

// Scorer computes point deltas.
type Scorer interface {
	// Score computes a delta, honoring ctx for cancellation.
	Score(ctx context.Context, in Input) (Result, error)
}

// PointScorer implements Scorer with a fixed reward and penalty.
type PointScorer struct {
	reward  int
	penalty int
}

// NewPointScorer creates a scorer with configuration options.
func NewPointScorer(opts ...Option) *PointScorer {
	s := &PointScorer{
		reward:  DefaultReward,
		penalty: DefaultPenalty,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// VenueActor returns the actor identity of venue.
func VenueActor(venue string) string {
	return venueActorPrefix + venue
}

// Score computes the delta for in.
func (s *PointScorer) Score(ctx context.Context, in Input) (Result, error) { //nolint:gocritic // hugeParam
	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("context cancelled: %w", err)
	}
	points, err := s.Points(in.Reservation, in.Actor)
	if err != nil {
		return Result{}, err
	}
	return Result{User: in.Reservation.User, Points: points}, nil
}

// Points applies the policy:
//   - canceled or expired: the penalty, waived only when the venue itself
//     canceled. Expiries are never waived.
//   - any other recognized status: the reward.
func (s *PointScorer) Points(r model.Reservation, actor string) (int, error) { //nolint:gocritic // hugeParam
	if !r.Status.Valid() {
		return 0, fmt.Errorf("%w: %q", model.ErrUnknownReservationStatus, string(r.Status))
	}
	if !r.Status.Negative() {
		return s.reward, nil
	}
	if r.Status == model.StatusCanceled && actor != "" && actor == VenueActor(r.Venue) {
		return 0, nil
	}
	return s.penalty, nil
}

// ScorePoints scores r with the default amounts.
func ScorePoints(r model.Reservation, actor string) (int, error) { //nolint:gocritic // hugeParam
	return defaultScorer.Points(r, actor)
}

var defaultScorer = NewPointScorer() //nolint:gochecknoglobals // stateless default amounts
