package model

import (
	"fmt"
	"time"
)

// OutcomeKind names the stats update derived from a reservation.
type OutcomeKind string

// Outcome kinds. KindNone is reported for statuses that do not touch stats.
const (
	KindNone         OutcomeKind = "none"
	KindCancellation OutcomeKind = "cancellation"
	KindExpiration   OutcomeKind = "expiration"
	KindCompletion   OutcomeKind = "completion"
)

// Outcome is a closed set of stats updates: Cancellation, Expiration and
// Completion. A nil Outcome means no update.
type Outcome interface {
	Kind() OutcomeKind
	outcome()
}

// Cancellation counts a canceled reservation.
type Cancellation struct{}

// Expiration counts an expired reservation.
type Expiration struct{}

// Completion counts an assisted reservation with the people served and the
// time it was scheduled for.
type Completion struct {
	People int
	At     time.Time
}

func (Cancellation) Kind() OutcomeKind { return KindCancellation }
func (Expiration) Kind() OutcomeKind   { return KindExpiration }
func (Completion) Kind() OutcomeKind   { return KindCompletion }

func (Cancellation) outcome() {}
func (Expiration) outcome()   {}
func (Completion) outcome()   {}

// KindOf returns the kind of o, or KindNone for a nil outcome.
func KindOf(o Outcome) OutcomeKind {
	if o == nil {
		return KindNone
	}
	return o.Kind()
}

// Classify maps the reservation status to the stats update it produces.
// Unconfirmed and accepted reservations are unresolved and yield nil.
func Classify(r Reservation) (Outcome, error) { //nolint:gocritic // hugeParam
	switch r.Status {
	case StatusCanceled:
		return Cancellation{}, nil
	case StatusExpired:
		return Expiration{}, nil
	case StatusAssisted:
		return Completion{People: r.People, At: r.ScheduledAt}, nil
	case StatusUnconfirmed, StatusAccepted:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownReservationStatus, string(r.Status))
	}
}
