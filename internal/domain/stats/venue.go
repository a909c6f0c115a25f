package stats

import (
	"time"

	"github.com/okian/venuestats/internal/domain/model"
)

// VenueStatEntry aggregates the outcomes of the reservations made at a venue.
//
// MeanPeopleServed is averaged over accepted reservations only, those that were
// neither canceled nor expired. Days is keyed 0=Monday .. 6=Sunday and Turns by
// "HH:MM"; both count completed reservations.
type VenueStatEntry struct {
	Venue            string         `json:"venue"`
	Total            int            `json:"total"`
	Canceled         float64        `json:"canceled"`
	Expired          float64        `json:"expired"`
	MeanPeopleServed float64        `json:"mean_people_served"`
	Days             map[int]int    `json:"days"`
	Turns            map[string]int `json:"turns"`
}

// NewVenue returns a zeroed entry for venue.
func NewVenue(venue string) VenueStatEntry {
	return VenueStatEntry{
		Venue: venue,
		Days:  make(map[int]int),
		Turns: make(map[string]int),
	}
}

// IncreaseCanceled counts one canceled reservation.
func (e *VenueStatEntry) IncreaseCanceled() {
	e.Total, e.Canceled, e.Expired = bump(e.Total, e.Canceled, e.Expired, 1, 0)
}

// IncreaseExpired counts one expired reservation.
func (e *VenueStatEntry) IncreaseExpired() {
	e.Total, e.Canceled, e.Expired = bump(e.Total, e.Canceled, e.Expired, 0, 1)
}

// IncreaseCompleted counts one assisted reservation that served people at at.
func (e *VenueStatEntry) IncreaseCompleted(people int, at time.Time) {
	accepted := float64(e.Total) * (1 - e.Canceled - e.Expired)
	if e.Total == 0 {
		accepted = 0
	}

	e.Total, e.Canceled, e.Expired = bump(e.Total, e.Canceled, e.Expired, 0, 0)

	denom := float64(e.Total) * (1 - e.Canceled - e.Expired)
	if denom <= 0 {
		e.MeanPeopleServed = float64(people)
	} else {
		e.MeanPeopleServed = (accepted*e.MeanPeopleServed + float64(people)) / denom
	}

	e.ensureMaps()
	e.Days[Weekday(at)]++
	e.Turns[TimeSlot(at)]++
}

// Apply dispatches o to the matching increment. A nil outcome is a no-op.
func (e *VenueStatEntry) Apply(o model.Outcome) {
	switch v := o.(type) {
	case model.Cancellation:
		e.IncreaseCanceled()
	case model.Expiration:
		e.IncreaseExpired()
	case model.Completion:
		e.IncreaseCompleted(v.People, v.At)
	}
}

// Clone returns a deep copy.
func (e VenueStatEntry) Clone() VenueStatEntry {
	days := make(map[int]int, len(e.Days))
	for k, v := range e.Days {
		days[k] = v
	}
	turns := make(map[string]int, len(e.Turns))
	for k, v := range e.Turns {
		turns[k] = v
	}
	e.Days, e.Turns = days, turns
	return e
}

// View returns a copy as reported to callers, with ratios rounded to two
// decimals.
func (e VenueStatEntry) View() VenueStatEntry {
	v := e.Clone()
	v.Canceled = round2(ratio(e.Canceled, e.Total))
	v.Expired = round2(ratio(e.Expired, e.Total))
	return v
}

func (e *VenueStatEntry) ensureMaps() {
	if e.Days == nil {
		e.Days = make(map[int]int)
	}
	if e.Turns == nil {
		e.Turns = make(map[string]int)
	}
}
