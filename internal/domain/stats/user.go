package stats

import "github.com/okian/venuestats/internal/domain/model"

// UserStatEntry aggregates the outcomes of a user's reservations.
type UserStatEntry struct {
	User     string  `json:"user"`
	Total    int     `json:"total"`
	Canceled float64 `json:"canceled"`
	Expired  float64 `json:"expired"`
}

// NewUser returns a zeroed entry for user.
func NewUser(user string) UserStatEntry {
	return UserStatEntry{User: user}
}

// IncreaseCanceled counts one canceled reservation.
func (e *UserStatEntry) IncreaseCanceled() {
	e.Total, e.Canceled, e.Expired = bump(e.Total, e.Canceled, e.Expired, 1, 0)
}

// IncreaseExpired counts one expired reservation.
func (e *UserStatEntry) IncreaseExpired() {
	e.Total, e.Canceled, e.Expired = bump(e.Total, e.Canceled, e.Expired, 0, 1)
}

// IncreaseCompleted counts one assisted reservation. Users carry no
// people/day/time aggregates, so this only grows the total and dilutes both
// ratios.
func (e *UserStatEntry) IncreaseCompleted() {
	e.Total, e.Canceled, e.Expired = bump(e.Total, e.Canceled, e.Expired, 0, 0)
}

// Apply dispatches o to the matching increment. A nil outcome is a no-op.
func (e *UserStatEntry) Apply(o model.Outcome) {
	switch o.(type) {
	case model.Cancellation:
		e.IncreaseCanceled()
	case model.Expiration:
		e.IncreaseExpired()
	case model.Completion:
		e.IncreaseCompleted()
	}
}

// View returns the entry as reported to callers. User ratios are not rounded.
func (e UserStatEntry) View() UserStatEntry {
	e.Canceled = ratio(e.Canceled, e.Total)
	e.Expired = ratio(e.Expired, e.Total)
	return e
}
