// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of a reservation.
type Status string

// Recognized lifecycle states.
const (
	StatusUnconfirmed Status = "unconfirmed"
	StatusAccepted    Status = "accepted"
	StatusCanceled    Status = "canceled"
	StatusAssisted    Status = "assisted"
	StatusExpired     Status = "expired"
)

// ParseStatus normalizes a status literal. "completed" is accepted as an alias
// of assisted.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if st == "completed" {
		st = StatusAssisted
	}
	if !st.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownReservationStatus, s)
	}
	return st, nil
}

// Valid reports whether s is one of the five recognized states.
func (s Status) Valid() bool {
	switch s {
	case StatusUnconfirmed, StatusAccepted, StatusCanceled, StatusAssisted, StatusExpired:
		return true
	}
	return false
}

// Negative reports whether s is a canceled or expired outcome.
func (s Status) Negative() bool {
	return s == StatusCanceled || s == StatusExpired
}

// Reservation is the snapshot handed over by the reservation workflow when an
// outcome is finalized.
type Reservation struct {
	ID          string
	User        string
	Venue       string
	People      int
	ScheduledAt time.Time
	Status      Status
}

// OutcomeEvent is the unit of work flowing through the queue.
type OutcomeEvent struct {
	EventID     string      // idempotency key
	Reservation Reservation // snapshot at finalization
	Actor       string      // who triggered the transition; empty when unknown
	ReceivedAt  time.Time
}

// DedupeKey identifies one lifecycle transition of one reservation.
func (e OutcomeEvent) DedupeKey() string { //nolint:gocritic // hugeParam: value receiver keeps OutcomeEvent usable in channels
	if e.EventID != "" {
		return e.EventID
	}
	return e.Reservation.ID + ":" + string(e.Reservation.Status)
}
