package model_test

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/venuestats/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestParseStatus(t *testing.T) {
	Convey("Given status literals", t, func() {
		Convey("Then the five lifecycle states parse case-insensitively", func() {
			for in, want := range map[string]model.Status{
				"unconfirmed": model.StatusUnconfirmed,
				"Accepted":    model.StatusAccepted,
				" CANCELED ":  model.StatusCanceled,
				"assisted":    model.StatusAssisted,
				"expired":     model.StatusExpired,
				"completed":   model.StatusAssisted,
			} {
				got, err := model.ParseStatus(in)
				So(err, ShouldBeNil)
				So(got, ShouldEqual, want)
			}
		})

		Convey("Then anything else is an unknown status", func() {
			_, err := model.ParseStatus("refunded")
			So(errors.Is(err, model.ErrUnknownReservationStatus), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "refunded")
		})
	})
}

func TestClassify(t *testing.T) {
	at := time.Date(2024, 3, 4, 19, 0, 0, 0, time.UTC)
	base := model.Reservation{ID: "r1", User: "u1", Venue: "v1", People: 4, ScheduledAt: at}

	Convey("Given reservations in each lifecycle state", t, func() {
		classify := func(s model.Status) (model.Outcome, error) {
			r := base
			r.Status = s
			return model.Classify(r)
		}

		Convey("Then canceled maps to a cancellation", func() {
			o, err := classify(model.StatusCanceled)
			So(err, ShouldBeNil)
			So(o, ShouldResemble, model.Cancellation{})
			So(model.KindOf(o), ShouldEqual, model.KindCancellation)
		})

		Convey("Then expired maps to an expiration", func() {
			o, err := classify(model.StatusExpired)
			So(err, ShouldBeNil)
			So(model.KindOf(o), ShouldEqual, model.KindExpiration)
		})

		Convey("Then assisted maps to a completion carrying people and time", func() {
			o, err := classify(model.StatusAssisted)
			So(err, ShouldBeNil)
			So(o, ShouldResemble, model.Completion{People: 4, At: at})
		})

		Convey("Then unresolved states produce no update", func() {
			for _, s := range []model.Status{model.StatusUnconfirmed, model.StatusAccepted} {
				o, err := classify(s)
				So(err, ShouldBeNil)
				So(o, ShouldBeNil)
				So(model.KindOf(o), ShouldEqual, model.KindNone)
			}
		})

		Convey("Then an unrecognized state is rejected", func() {
			_, err := classify(model.Status("lost"))
			So(errors.Is(err, model.ErrUnknownReservationStatus), ShouldBeTrue)
		})
	})
}

func TestOutcomeEventDedupeKey(t *testing.T) {
	Convey("Given outcome events", t, func() {
		Convey("Then an explicit event id wins", func() {
			e := model.OutcomeEvent{EventID: "evt-1", Reservation: model.Reservation{ID: "r1", Status: model.StatusCanceled}}
			So(e.DedupeKey(), ShouldEqual, "evt-1")
		})

		Convey("Then the reservation transition is used otherwise", func() {
			e := model.OutcomeEvent{Reservation: model.Reservation{ID: "r1", Status: model.StatusCanceled}}
			So(e.DedupeKey(), ShouldEqual, "r1:canceled")
		})
	})
}
