package service_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/venuestats/internal/adapters/repository"
	service "github.com/okian/venuestats/internal/app"
	"github.com/okian/venuestats/internal/domain/geo"
	"github.com/okian/venuestats/internal/domain/model"
	"github.com/okian/venuestats/internal/domain/scoring"
	"github.com/okian/venuestats/internal/domain/stats"
	"github.com/okian/venuestats/pkg/logger"
)

func init() {
	// Initialize logging for tests
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// monday19 is a Monday at 19:00 UTC.
var monday19 = time.Date(2024, 1, 1, 19, 0, 0, 0, time.UTC)

func reservation(id, user, venue string, status model.Status) model.Reservation {
	return model.Reservation{
		ID:          id,
		User:        user,
		Venue:       venue,
		People:      2,
		ScheduledAt: monday19,
		Status:      status,
	}
}

func event(id, user, venue string, status model.Status) model.OutcomeEvent {
	return model.OutcomeEvent{
		EventID:     id,
		Reservation: reservation("r-"+id, user, venue, status),
		ReceivedAt:  monday19,
	}
}

// splitStore exposes only the StatStore half of a memory store, so the
// service writes each aggregate separately. failUser/failVenue make the
// matching save fail; failRestore makes every later save fail too.
type splitStore struct {
	mem *repository.MemoryStore

	mu          sync.Mutex
	failUser    bool
	failVenue   bool
	failRestore bool
	saves       int
}

func (s *splitStore) GetUser(ctx context.Context, user string) (stats.UserStatEntry, error) {
	return s.mem.GetUser(ctx, user)
}

func (s *splitStore) GetVenue(ctx context.Context, venue string) (stats.VenueStatEntry, error) {
	return s.mem.GetVenue(ctx, venue)
}

func (s *splitStore) SaveUser(ctx context.Context, e stats.UserStatEntry) error {
	if err := s.fail(s.failUser); err != nil {
		return err
	}
	return s.mem.SaveUser(ctx, e)
}

func (s *splitStore) SaveVenue(ctx context.Context, e stats.VenueStatEntry) error { //nolint:gocritic // hugeParam
	if err := s.fail(s.failVenue); err != nil {
		return err
	}
	return s.mem.SaveVenue(ctx, e)
}

func (s *splitStore) fail(half bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if half || (s.failRestore && s.saves > 2) {
		return fmt.Errorf("save: %w", repository.ErrStoreUnavailable)
	}
	return nil
}

// gatedStore blocks every user read until release is closed.
type gatedStore struct {
	*repository.MemoryStore
	release chan struct{}
}

func (s *gatedStore) GetUser(ctx context.Context, user string) (stats.UserStatEntry, error) {
	<-s.release
	return s.MemoryStore.GetUser(ctx, user)
}

func newStore(t *testing.T, opts ...repository.MemoryOption) *repository.MemoryStore {
	t.Helper()
	st := repository.NewMemoryStore(context.Background(), opts...)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestService_New(t *testing.T) {
	Convey("Given a new service with default options", t, func() {
		svc := service.New()
		defer svc.Stop()

		Convey("Then it should have sensible defaults", func() {
			So(svc, ShouldNotBeNil)
			st := svc.GetStats()
			So(st["started"], ShouldEqual, false)
			So(st["queueSize"], ShouldEqual, 100_000)
			So(st["dedupeSize"], ShouldEqual, 500_000)
		})
	})

	Convey("Given a new service with custom options", t, func() {
		svc := service.New(
			service.WithWorkerCount(8),
			service.WithQueueSize(50_000),
			service.WithDedupeSize(25_000),
			service.WithStoreTimeout(time.Second),
			service.WithNearbyLimit(10),
			service.WithVenuePageSize(50),
		)
		defer svc.Stop()

		Convey("Then the options should be applied", func() {
			st := svc.GetStats()
			So(st["workerCount"], ShouldEqual, 8)
			So(st["queueSize"], ShouldEqual, 50_000)
			So(st["dedupeSize"], ShouldEqual, 25_000)
		})
	})
}

func TestService_StartStop(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc := service.New(service.WithWorkerCount(2), service.WithQueueSize(16))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		Convey("When submitting before Start", func() {
			_, err := svc.Submit(ctx, event("e1", "u1", "v1", model.StatusCanceled))

			Convey("Then it should be rejected", func() {
				So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			})
		})

		Convey("When starting and stopping the service", func() {
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.GetStats()["started"], ShouldEqual, true)
			svc.Stop()

			Convey("Then it should be marked as stopped", func() {
				So(svc.GetStats()["started"], ShouldEqual, false)
			})

			Convey("And stopping again should be safe", func() {
				So(func() { svc.Stop() }, ShouldNotPanic)
			})
		})
	})
}

func TestService_RecordOutcome(t *testing.T) {
	Convey("Given a service over a memory store", t, func() {
		ctx := context.Background()
		svc := service.New(service.WithStore(newStore(t)))

		Convey("When a user cancels and then lets a reservation expire", func() {
			_, err := svc.RecordOutcome(ctx, reservation("r1", "u1", "v1", model.StatusCanceled))
			So(err, ShouldBeNil)

			u, err := svc.GetUserStats(ctx, "u1")
			So(err, ShouldBeNil)
			So(u.Total, ShouldEqual, 1)
			So(u.Canceled, ShouldEqual, 1.0)
			So(u.Expired, ShouldEqual, 0.0)

			o, err := svc.RecordOutcome(ctx, reservation("r2", "u1", "v1", model.StatusExpired))
			So(err, ShouldBeNil)
			So(model.KindOf(o), ShouldEqual, model.KindExpiration)

			Convey("Then both ratios should be one half", func() {
				u, err := svc.GetUserStats(ctx, "u1")
				So(err, ShouldBeNil)
				So(u.Total, ShouldEqual, 2)
				So(u.Canceled, ShouldEqual, 0.5)
				So(u.Expired, ShouldEqual, 0.5)
			})

			Convey("And the venue should count the same outcomes", func() {
				v, err := svc.GetVenueStats(ctx, "v1")
				So(err, ShouldBeNil)
				So(v.Total, ShouldEqual, 2)
				So(v.Canceled, ShouldEqual, 0.5)
				So(v.Expired, ShouldEqual, 0.5)
			})
		})

		Convey("When a venue completes two reservations in the same slot", func() {
			r := reservation("r1", "u1", "v1", model.StatusAssisted)
			r.People = 4
			_, err := svc.RecordOutcome(ctx, r)
			So(err, ShouldBeNil)

			v, err := svc.GetVenueStats(ctx, "v1")
			So(err, ShouldBeNil)
			So(v.MeanPeopleServed, ShouldEqual, 4.0)
			So(v.Days[0], ShouldEqual, 1)
			So(v.Turns["19:00"], ShouldEqual, 1)

			r = reservation("r2", "u2", "v1", model.StatusAssisted)
			r.People = 6
			_, err = svc.RecordOutcome(ctx, r)
			So(err, ShouldBeNil)

			Convey("Then the mean and histograms should grow", func() {
				v, err := svc.GetVenueStats(ctx, "v1")
				So(err, ShouldBeNil)
				So(v.MeanPeopleServed, ShouldEqual, 5.0)
				So(v.Days[0], ShouldEqual, 2)
				So(v.Turns["19:00"], ShouldEqual, 2)
			})
		})

		Convey("When the reservation is still unresolved", func() {
			for _, st := range []model.Status{model.StatusUnconfirmed, model.StatusAccepted} {
				o, err := svc.RecordOutcome(ctx, reservation("r1", "u1", "v1", st))
				So(err, ShouldBeNil)
				So(o, ShouldBeNil)
			}

			Convey("Then nothing should be recorded", func() {
				u, v, err := svc.GetPair(ctx, "u1", "v1")
				So(err, ShouldBeNil)
				So(u.Total, ShouldEqual, 0)
				So(v.Total, ShouldEqual, 0)
			})
		})

		Convey("When the status is unknown", func() {
			_, err := svc.RecordOutcome(ctx, reservation("r1", "u1", "v1", model.Status("lost")))

			Convey("Then it should fail without touching the aggregates", func() {
				So(errors.Is(err, model.ErrUnknownReservationStatus), ShouldBeTrue)
				u, err := svc.GetUserStats(ctx, "u1")
				So(err, ShouldBeNil)
				So(u.Total, ShouldEqual, 0)
			})
		})

		Convey("When many outcomes for one pair are recorded concurrently", func() {
			var wg sync.WaitGroup
			for i := 0; i < 50; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					st := model.StatusCanceled
					if i%2 == 1 {
						st = model.StatusExpired
					}
					_, _ = svc.RecordOutcome(ctx, reservation(fmt.Sprintf("r%d", i), "u1", "v1", st))
				}(i)
			}
			wg.Wait()

			Convey("Then no update should be lost", func() {
				u, v, err := svc.GetPair(ctx, "u1", "v1")
				So(err, ShouldBeNil)
				So(u.Total, ShouldEqual, 50)
				So(v.Total, ShouldEqual, 50)
				So(u.Canceled*50, ShouldAlmostEqual, 25, 0.5)
				So(u.Expired*50, ShouldAlmostEqual, 25, 0.5)
			})
		})
	})
}

func TestService_PartialWrite(t *testing.T) {
	Convey("Given a store that writes each aggregate separately", t, func() {
		ctx := context.Background()
		st := &splitStore{mem: newStore(t)}
		svc := service.New(service.WithStore(st))

		Convey("When the venue half fails", func() {
			st.failVenue = true
			_, err := svc.RecordOutcome(ctx, reservation("r1", "u1", "v1", model.StatusCanceled))

			Convey("Then a compensated partial write should be reported", func() {
				So(errors.Is(err, service.ErrPartialAggregateWrite), ShouldBeTrue)
				So(errors.Is(err, repository.ErrStoreUnavailable), ShouldBeTrue)

				var pw *service.PartialWriteError
				So(errors.As(err, &pw), ShouldBeTrue)
				So(pw.Failed, ShouldEqual, service.HalfVenue)
				So(pw.Compensated, ShouldBeTrue)
			})

			Convey("And the user half should be restored", func() {
				u, err := svc.GetUserStats(ctx, "u1")
				So(err, ShouldBeNil)
				So(u.Total, ShouldEqual, 0)
			})
		})

		Convey("When the user half fails and the restore fails too", func() {
			st.failUser = true
			st.failRestore = true
			_, err := svc.RecordOutcome(ctx, reservation("r1", "u1", "v1", model.StatusExpired))

			Convey("Then the error should say the pair is inconsistent", func() {
				var pw *service.PartialWriteError
				So(errors.As(err, &pw), ShouldBeTrue)
				So(pw.Failed, ShouldEqual, service.HalfUser)
				So(pw.Compensated, ShouldBeFalse)
				So(pw.CompensationErr, ShouldNotBeNil)
			})
		})

		Convey("When both halves fail", func() {
			st.failUser = true
			st.failVenue = true
			_, err := svc.RecordOutcome(ctx, reservation("r1", "u1", "v1", model.StatusExpired))

			Convey("Then it should not be a partial write", func() {
				So(err, ShouldNotBeNil)
				So(errors.Is(err, service.ErrPartialAggregateWrite), ShouldBeFalse)
				So(errors.Is(err, repository.ErrStoreUnavailable), ShouldBeTrue)
			})
		})
	})
}

func TestService_Points(t *testing.T) {
	Convey("Given a service with a point ledger", t, func() {
		ctx := context.Background()
		svc := service.New(service.WithStore(newStore(t)))

		Convey("When a user cancels a reservation", func() {
			delta, balance, err := svc.AwardPoints(ctx, reservation("r1", "u1", "v1", model.StatusCanceled), "u1")

			Convey("Then the penalty should be applied", func() {
				So(err, ShouldBeNil)
				So(delta, ShouldEqual, -50)
				So(balance, ShouldEqual, -50)
			})
		})

		Convey("When the venue cancels a reservation", func() {
			delta, balance, err := svc.AwardPoints(ctx, reservation("r1", "u1", "v1", model.StatusCanceled), scoring.VenueActor("v1"))

			Convey("Then nothing should be charged", func() {
				So(err, ShouldBeNil)
				So(delta, ShouldEqual, 0)
				So(balance, ShouldEqual, 0)
			})
		})

		Convey("When a reservation is assisted after an expiry", func() {
			_, _, err := svc.AwardPoints(ctx, reservation("r1", "u1", "v1", model.StatusExpired), scoring.VenueActor("v1"))
			So(err, ShouldBeNil)
			_, _, err = svc.AwardPoints(ctx, reservation("r2", "u1", "v1", model.StatusAssisted), "")
			So(err, ShouldBeNil)

			Convey("Then the balance should net out", func() {
				p, err := svc.Points(ctx, "u1")
				So(err, ShouldBeNil)
				So(p, ShouldEqual, 0)
			})
		})

		Convey("When one reservation reports every step of its lifecycle", func() {
			for _, st := range []model.Status{model.StatusUnconfirmed, model.StatusAccepted, model.StatusAssisted} {
				_, _, err := svc.AwardPoints(ctx, reservation("r1", "u1", "v1", st), "")
				So(err, ShouldBeNil)
			}

			Convey("Then each reported step should be rewarded", func() {
				p, err := svc.Points(ctx, "u1")
				So(err, ShouldBeNil)
				So(p, ShouldEqual, 150)
			})
		})
	})
}

func TestService_Apply(t *testing.T) {
	Convey("Given a service applying events inline", t, func() {
		ctx := context.Background()
		svc := service.New(service.WithStore(newStore(t)))

		Convey("When the same event is applied twice", func() {
			e := event("e1", "u1", "v1", model.StatusCanceled)
			first, err := svc.Apply(ctx, e)
			So(err, ShouldBeNil)
			second, err := svc.Apply(ctx, e)
			So(err, ShouldBeNil)

			Convey("Then it should count once", func() {
				So(first.Kind, ShouldEqual, model.KindCancellation)
				So(first.Points, ShouldEqual, -50)
				So(first.Balance, ShouldEqual, -50)
				So(second.Duplicate, ShouldBeTrue)

				u, err := svc.GetUserStats(ctx, "u1")
				So(err, ShouldBeNil)
				So(u.Total, ShouldEqual, 1)
			})
		})

		Convey("When an accepted reservation is applied", func() {
			res, err := svc.Apply(ctx, event("e2", "u1", "v1", model.StatusAccepted))

			Convey("Then only points should move", func() {
				So(err, ShouldBeNil)
				So(res.Kind, ShouldEqual, model.KindNone)
				So(res.Points, ShouldEqual, 50)
			})
		})

		Convey("When an event fails before anything is written", func() {
			e := event("e3", "u1", "v1", model.Status("lost"))
			_, err := svc.Apply(ctx, e)
			So(err, ShouldNotBeNil)

			Convey("Then a redelivery should not be reported as duplicate", func() {
				res, _ := svc.Apply(ctx, e)
				So(res.Duplicate, ShouldBeFalse)
			})
		})

		Convey("When an event ends in a partial write", func() {
			st := &splitStore{mem: newStore(t), failVenue: true}
			psvc := service.New(service.WithStore(st))
			e := event("e4", "u1", "v1", model.StatusCanceled)
			_, err := psvc.Apply(ctx, e)
			So(errors.Is(err, service.ErrPartialAggregateWrite), ShouldBeTrue)

			Convey("Then the event should stay recorded", func() {
				res, err := psvc.Apply(ctx, e)
				So(err, ShouldBeNil)
				So(res.Duplicate, ShouldBeTrue)
			})
		})
	})
}

func TestService_Submit(t *testing.T) {
	Convey("Given a started service", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		svc := service.New(
			service.WithStore(newStore(t)),
			service.WithWorkerCount(4),
			service.WithQueueSize(128),
		)
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("When events are submitted", func() {
			for i := 0; i < 20; i++ {
				res, err := svc.Submit(ctx, event(fmt.Sprintf("e%d", i), "u1", fmt.Sprintf("v%d", i%3), model.StatusAssisted))
				So(err, ShouldBeNil)
				So(res.Queued, ShouldBeTrue)
			}
			dup, err := svc.Submit(ctx, event("e0", "u1", "v0", model.StatusAssisted))
			So(err, ShouldBeNil)

			Convey("Then duplicates should be reported", func() {
				So(dup.Duplicate, ShouldBeTrue)
				So(dup.Queued, ShouldBeFalse)
			})

			Convey("And the workers should apply every event", func() {
				deadline := time.Now().Add(5 * time.Second)
				var total int
				for time.Now().Before(deadline) {
					u, err := svc.GetUserStats(ctx, "u1")
					So(err, ShouldBeNil)
					if total = u.Total; total == 20 {
						break
					}
					time.Sleep(10 * time.Millisecond)
				}
				So(total, ShouldEqual, 20)
			})
		})
	})

	Convey("Given a service whose queue cannot keep up", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		gate := &gatedStore{MemoryStore: newStore(t), release: make(chan struct{})}
		svc := service.New(
			service.WithStore(gate),
			service.WithWorkerCount(1),
			service.WithQueueSize(1),
		)
		So(svc.Start(ctx), ShouldBeNil)

		var busy []model.OutcomeEvent
		var busyErr error
		for i := 0; i < 10; i++ {
			e := event(fmt.Sprintf("e%d", i), fmt.Sprintf("u%d", i), "v1", model.StatusCanceled)
			if _, err := svc.Submit(ctx, e); err != nil {
				busy = append(busy, e)
				busyErr = err
			}
		}
		close(gate.release)
		defer svc.Stop()

		Convey("Then the rejected submits should be retryable", func() {
			So(len(busy), ShouldBeGreaterThanOrEqualTo, 7)
			So(errors.Is(busyErr, service.ErrBusy), ShouldBeTrue)

			var r interface{ Retryable() bool }
			So(errors.As(busyErr, &r), ShouldBeTrue)
			So(r.Retryable(), ShouldBeTrue)
		})

		Convey("And a rejected event should not count as seen", func() {
			var res any
			deadline := time.Now().Add(5 * time.Second)
			for time.Now().Before(deadline) {
				out, err := svc.Submit(ctx, busy[0])
				if err == nil {
					So(out.Duplicate, ShouldBeFalse)
					res = out
					break
				}
				time.Sleep(10 * time.Millisecond)
			}
			So(res, ShouldNotBeNil)
		})
	})
}

func TestService_NearbyVenues(t *testing.T) {
	Convey("Given venues spread around an anchor", t, func() {
		ctx := context.Background()
		st := newStore(t, repository.WithVenues(
			repository.VenueRow{ID: "far", Latitude: "41.0", Longitude: "2.0"},
			repository.VenueRow{ID: "near", Latitude: "40.001", Longitude: "2.0"},
			repository.VenueRow{ID: "mid", Latitude: "40.1", Longitude: "2.0"},
			repository.VenueRow{ID: "broken", Latitude: "north", Longitude: "2.0"},
		))
		svc := service.New(service.WithStore(st), service.WithVenuePageSize(2), service.WithNearbyLimit(10))

		Convey("When ranking every venue", func() {
			out, err := svc.NearbyVenues(ctx, 40.0, 2.0, 0)

			Convey("Then valid venues should come closest first", func() {
				So(err, ShouldBeNil)
				So(len(out), ShouldEqual, 3)
				So(out[0].ID, ShouldEqual, "near")
				So(out[1].ID, ShouldEqual, "mid")
				So(out[2].ID, ShouldEqual, "far")
				So(out[0].DistanceKm, ShouldBeLessThan, out[1].DistanceKm)
			})
		})

		Convey("When asking for fewer venues", func() {
			out, err := svc.NearbyVenues(ctx, 40.0, 2.0, 1)

			Convey("Then only the closest should be returned", func() {
				So(err, ShouldBeNil)
				So(len(out), ShouldEqual, 1)
				So(out[0].ID, ShouldEqual, "near")
			})
		})

		Convey("When the anchor is not a finite coordinate", func() {
			_, latErr := svc.NearbyVenues(ctx, math.NaN(), 0, 0)
			_, lonErr := svc.NearbyVenues(ctx, 0, math.Inf(1), 0)

			Convey("Then it should be rejected as an invalid coordinate", func() {
				So(errors.Is(latErr, geo.ErrInvalidCoordinate), ShouldBeTrue)
				So(errors.Is(lonErr, geo.ErrInvalidCoordinate), ShouldBeTrue)
			})
		})
	})
}
