// Package types contains the wire types shared by the HTTP API, the stream
// consumer and the outcome simulator.
package types

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/okian/venuestats/internal/domain/model"
)

// ErrInvalidMessage reports an outcome message missing required fields.
var ErrInvalidMessage = errors.New("invalid outcome message")

// OutcomeMessage is a reservation lifecycle transition as received over HTTP
// or Kafka.
type OutcomeMessage struct {
	EventID       string    `json:"event_id,omitempty"`
	ReservationID string    `json:"reservation_id"`
	UserID        string    `json:"user_id"`
	VenueID       string    `json:"venue_id"`
	People        int       `json:"people"`
	ScheduledAt   time.Time `json:"scheduled_at"`
	Status        string    `json:"status"`
	Actor         string    `json:"actor,omitempty"`
}

// ToEvent validates m and converts it into an OutcomeEvent received at now.
func (m OutcomeMessage) ToEvent(now time.Time) (model.OutcomeEvent, error) { //nolint:gocritic // hugeParam: decoded by value
	var missing []string
	if strings.TrimSpace(m.ReservationID) == "" {
		missing = append(missing, "reservation_id")
	}
	if strings.TrimSpace(m.UserID) == "" {
		missing = append(missing, "user_id")
	}
	if strings.TrimSpace(m.VenueID) == "" {
		missing = append(missing, "venue_id")
	}
	if len(missing) > 0 {
		return model.OutcomeEvent{}, fmt.Errorf("%w: missing %s", ErrInvalidMessage, strings.Join(missing, ", "))
	}
	if m.People < 0 {
		return model.OutcomeEvent{}, fmt.Errorf("%w: people must not be negative", ErrInvalidMessage)
	}

	status, err := model.ParseStatus(m.Status)
	if err != nil {
		return model.OutcomeEvent{}, err
	}
	if status == model.StatusAssisted && m.ScheduledAt.IsZero() {
		return model.OutcomeEvent{}, fmt.Errorf("%w: scheduled_at is required for completed reservations", ErrInvalidMessage)
	}

	return model.OutcomeEvent{
		EventID: m.EventID,
		Reservation: model.Reservation{
			ID:          m.ReservationID,
			User:        m.UserID,
			Venue:       m.VenueID,
			People:      m.People,
			ScheduledAt: m.ScheduledAt,
			Status:      status,
		},
		Actor:      m.Actor,
		ReceivedAt: now,
	}, nil
}

// OutcomeResult describes what happened to one submitted outcome.
type OutcomeResult struct {
	EventID   string            `json:"event_id"`
	Kind      model.OutcomeKind `json:"kind,omitempty"`
	Points    int               `json:"points"`
	Balance   int64             `json:"balance,omitempty"`
	Queued    bool              `json:"queued"`
	Duplicate bool              `json:"duplicate"`
}

// NearbyVenue is one venue of a proximity ranking.
type NearbyVenue struct {
	ID         string  `json:"id"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	DistanceKm float64 `json:"distance_km"`
}

// PointsBalance is a user's running point total.
type PointsBalance struct {
	User   string `json:"user"`
	Points int64  `json:"points"`
}
