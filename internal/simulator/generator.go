package simulator

import (
	"context"
	"crypto/rand"
	"math/big"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/okian/venuestats/internal/domain/model"
	"github.com/okian/venuestats/internal/domain/scoring"
	"github.com/okian/venuestats/pkg/logger"
)

// Status distribution, in percent. The remainder is unconfirmed.
const (
	pctAssisted  = 50
	pctCanceled  = 20
	pctExpired   = 15
	pctAccepted  = 10
	pctVenueCxl  = 25 // share of cancellations triggered by the venue
	maxPeople    = 8
	slotsPerDay  = 12
	slotMinutes  = 30
	firstSlotHr  = 12
	scheduleDays = 14
)

// randInt returns a uniform integer in [0, n) using crypto/rand.
func randInt(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(v.Int64())
}

// pickStatus maps a roll in [0, 100) onto a reservation status.
func pickStatus(roll int) model.Status {
	switch {
	case roll < pctAssisted:
		return model.StatusAssisted
	case roll < pctAssisted+pctCanceled:
		return model.StatusCanceled
	case roll < pctAssisted+pctCanceled+pctExpired:
		return model.StatusExpired
	case roll < pctAssisted+pctCanceled+pctExpired+pctAccepted:
		return model.StatusAccepted
	default:
		return model.StatusUnconfirmed
	}
}

// generateEvents creates config.NumEvents outcomes over a fixed user and
// venue population and returns them with the aggregates they should produce.
func generateEvents(ctx context.Context, config *Config, stats *Stats) ([]Outcome, *Expected, error) {
	logger.Get().Info(ctx, "generating outcomes",
		logger.Int("numEvents", config.NumEvents),
		logger.Int("users", config.Users),
		logger.Int("venues", config.Venues),
	)

	users := make([]string, config.Users)
	for i := range users {
		users[i] = "user-" + uuid.NewString()
	}
	venues := make([]string, config.Venues)
	for i := range venues {
		venues[i] = "venue-" + strconv.Itoa(i+1)
	}

	base := time.Now().UTC().Truncate(24 * time.Hour)
	events := make([]Outcome, 0, config.NumEvents)
	expected := newExpected()
	for i := 0; i < config.NumEvents; i++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		user := users[randInt(len(users))]
		venue := venues[randInt(len(venues))]
		slot := base.AddDate(0, 0, -randInt(scheduleDays)).
			Add(time.Duration(firstSlotHr)*time.Hour + time.Duration(randInt(slotsPerDay)*slotMinutes)*time.Minute)

		o := Outcome{
			EventID:       uuid.NewString(),
			ReservationID: uuid.NewString(),
			UserID:        user,
			VenueID:       venue,
			People:        1 + randInt(maxPeople),
			ScheduledAt:   slot,
			Status:        string(pickStatus(randInt(100))),
			Actor:         user,
		}
		if o.Status == string(model.StatusCanceled) && randInt(100) < pctVenueCxl {
			o.Actor = scoring.VenueActor(venue)
		}
		events = append(events, o)
		expected.add(o)
	}

	stats.EventsGenerated = len(events)
	logger.Get().Info(ctx, "generated outcomes successfully", logger.Int("count", len(events)))
	return events, expected, nil
}

func newExpected() *Expected {
	return &Expected{Users: make(map[string]*Counts), Venues: make(map[string]*Counts)}
}

// add tallies o. Unresolved statuses leave the aggregates untouched.
func (e *Expected) add(o Outcome) { //nolint:gocritic // hugeParam
	var dc, de int
	switch model.Status(o.Status) {
	case model.StatusCanceled:
		dc = 1
	case model.StatusExpired:
		de = 1
	case model.StatusAssisted:
	default:
		return
	}
	for _, c := range []*Counts{bucket(e.Users, o.UserID), bucket(e.Venues, o.VenueID)} {
		c.Total++
		c.Canceled += dc
		c.Expired += de
	}
}

func bucket(m map[string]*Counts, id string) *Counts {
	c, ok := m[id]
	if !ok {
		c = &Counts{}
		m[id] = c
	}
	return c
}
