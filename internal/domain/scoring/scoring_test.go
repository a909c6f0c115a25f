package scoring_test

import (
	"context"
	"errors"
	"testing"

	"github.com/okian/venuestats/internal/domain/model"
	"github.com/okian/venuestats/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

func reservation(status model.Status) model.Reservation {
	return model.Reservation{ID: "r1", User: "u1", Venue: "v1", People: 2, Status: status}
}

func TestScorePoints(t *testing.T) {
	Convey("Given the default point policy", t, func() {
		Convey("When the user cancels", func() {
			p, err := scoring.ScorePoints(reservation(model.StatusCanceled), "user/u1")
			So(err, ShouldBeNil)
			So(p, ShouldEqual, -50)
		})

		Convey("When nobody is named as the actor of a cancellation", func() {
			p, err := scoring.ScorePoints(reservation(model.StatusCanceled), "")
			So(err, ShouldBeNil)
			So(p, ShouldEqual, -50)
		})

		Convey("When the venue cancels", func() {
			p, err := scoring.ScorePoints(reservation(model.StatusCanceled), scoring.VenueActor("v1"))

			Convey("Then the penalty is waived", func() {
				So(err, ShouldBeNil)
				So(p, ShouldEqual, 0)
			})
		})

		Convey("When a different venue cancels", func() {
			p, err := scoring.ScorePoints(reservation(model.StatusCanceled), "venue/v2")
			So(err, ShouldBeNil)
			So(p, ShouldEqual, -50)
		})

		Convey("When the reservation expires", func() {
			Convey("Then the penalty applies whoever the actor is", func() {
				for _, actor := range []string{"", "user/u1", scoring.VenueActor("v1")} {
					p, err := scoring.ScorePoints(reservation(model.StatusExpired), actor)
					So(err, ShouldBeNil)
					So(p, ShouldEqual, -50)
				}
			})
		})

		Convey("When the reservation is assisted", func() {
			p, err := scoring.ScorePoints(reservation(model.StatusAssisted), scoring.VenueActor("v1"))
			So(err, ShouldBeNil)
			So(p, ShouldEqual, 50)
		})

		Convey("When the reservation is still open", func() {
			for _, s := range []model.Status{model.StatusUnconfirmed, model.StatusAccepted} {
				p, err := scoring.ScorePoints(reservation(s), "")
				So(err, ShouldBeNil)
				So(p, ShouldEqual, 50)
			}
		})

		Convey("When the status is unknown", func() {
			_, err := scoring.ScorePoints(reservation(model.Status("lost")), "")
			So(errors.Is(err, model.ErrUnknownReservationStatus), ShouldBeTrue)
		})
	})
}

func TestPointScorer(t *testing.T) {
	Convey("Given a scorer with custom amounts", t, func() {
		s := scoring.NewPointScorer(scoring.WithReward(10), scoring.WithPenalty(-30))

		Convey("Then results carry the user and the configured delta", func() {
			res, err := s.Score(context.Background(), scoring.Input{Reservation: reservation(model.StatusAssisted)})
			So(err, ShouldBeNil)
			So(res, ShouldResemble, scoring.Result{User: "u1", Points: 10})

			res, err = s.Score(context.Background(), scoring.Input{Reservation: reservation(model.StatusExpired)})
			So(err, ShouldBeNil)
			So(res.Points, ShouldEqual, -30)
		})

		Convey("Then invalid amounts are ignored", func() {
			d := scoring.NewPointScorer(scoring.WithReward(-1), scoring.WithPenalty(5))
			p, _ := d.Points(reservation(model.StatusAssisted), "")
			So(p, ShouldEqual, scoring.DefaultReward)
			p, _ = d.Points(reservation(model.StatusCanceled), "")
			So(p, ShouldEqual, scoring.DefaultPenalty)
		})

		Convey("When the context is already cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			_, err := s.Score(ctx, scoring.Input{Reservation: reservation(model.StatusAssisted)})

			Convey("Then scoring is refused", func() {
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
			})
		})
	})
}
