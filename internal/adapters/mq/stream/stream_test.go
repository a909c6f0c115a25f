package stream

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/venuestats/internal/domain/model"
	"github.com/okian/venuestats/internal/domain/types"
	"github.com/okian/venuestats/pkg/logger"
)

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
	fetchErrs int
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if r.fetchErrs > 0 {
		r.fetchErrs--
		r.mu.Unlock()
		return kafka.Message{}, errors.New("broker unreachable")
	}
	if len(r.msgs) > 0 {
		m := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

type busyErr struct{}

func (busyErr) Error() string   { return "busy" }
func (busyErr) Retryable() bool { return true }

type fakeSink struct {
	mu       sync.Mutex
	events   []model.OutcomeEvent
	busyFor  int
	seen     map[string]bool
	rejectID string
}

func (s *fakeSink) Submit(_ context.Context, e model.OutcomeEvent) (types.OutcomeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busyFor > 0 {
		s.busyFor--
		return types.OutcomeResult{}, busyErr{}
	}
	if e.Reservation.ID == s.rejectID {
		return types.OutcomeResult{}, errors.New("rejected")
	}
	if s.seen == nil {
		s.seen = map[string]bool{}
	}
	if s.seen[e.DedupeKey()] {
		return types.OutcomeResult{Duplicate: true}, nil
	}
	s.seen[e.DedupeKey()] = true
	s.events = append(s.events, e)
	return types.OutcomeResult{EventID: e.DedupeKey(), Queued: true}, nil
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func message(offset int64, m types.OutcomeMessage) kafka.Message { //nolint:gocritic // hugeParam
	b, _ := json.Marshal(m)
	return kafka.Message{Offset: offset, Value: b}
}

func canceled(res string) types.OutcomeMessage {
	return types.OutcomeMessage{ReservationID: res, UserID: "u1", VenueID: "v1", People: 2, Status: "canceled"}
}

func runUntil(t *testing.T, c *Consumer, cond func() bool) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Errorf("run returned %v", err)
	}
}

func TestDecode(t *testing.T) {
	Convey("Given kafka messages", t, func() {
		now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

		Convey("A valid message decodes into an event", func() {
			e, err := Decode(message(7, canceled("r1")), now)
			So(err, ShouldBeNil)
			So(e.Reservation.Status, ShouldEqual, model.StatusCanceled)
			So(e.DedupeKey(), ShouldEqual, "r1:canceled")
			So(e.ReceivedAt, ShouldEqual, now)
		})

		Convey("Malformed JSON is a decode error", func() {
			_, err := Decode(kafka.Message{Value: []byte("{")}, now)
			So(errors.Is(err, ErrDecode), ShouldBeTrue)
		})

		Convey("An unknown status is a decode error that keeps its cause", func() {
			m := canceled("r1")
			m.Status = "lost"
			_, err := Decode(message(1, m), now)
			So(errors.Is(err, ErrDecode), ShouldBeTrue)
			So(errors.Is(err, model.ErrUnknownReservationStatus), ShouldBeTrue)
		})
	})
}

func TestConsumer(t *testing.T) {
	Convey("Given a consumer over a fake reader", t, func() {
		opts := []Option{WithLogger(logger.Nop()), WithBackoff(time.Millisecond, 5*time.Millisecond)}

		Convey("Every settled message is committed", func() {
			r := &fakeReader{msgs: []kafka.Message{
				message(1, canceled("r1")),
				{Offset: 2, Value: []byte("not json")},
				message(3, canceled("r1")),
				message(4, canceled("r2")),
			}}
			sink := &fakeSink{}
			c := NewConsumer(r, sink, opts...)

			runUntil(t, c, func() bool { return len(r.commits()) == 4 })

			So(r.commits(), ShouldResemble, []int64{1, 2, 3, 4})
			So(sink.count(), ShouldEqual, 2)
		})

		Convey("A busy sink holds the message until it is accepted", func() {
			r := &fakeReader{msgs: []kafka.Message{message(1, canceled("r1"))}}
			sink := &fakeSink{busyFor: 3}
			c := NewConsumer(r, sink, opts...)

			runUntil(t, c, func() bool { return len(r.commits()) == 1 })

			So(sink.count(), ShouldEqual, 1)
			So(r.commits(), ShouldResemble, []int64{1})
		})

		Convey("A rejected message is committed and skipped", func() {
			r := &fakeReader{msgs: []kafka.Message{message(1, canceled("bad")), message(2, canceled("ok"))}}
			sink := &fakeSink{rejectID: "bad"}
			c := NewConsumer(r, sink, opts...)

			runUntil(t, c, func() bool { return len(r.commits()) == 2 })

			So(sink.count(), ShouldEqual, 1)
		})

		Convey("Fetch errors are retried", func() {
			r := &fakeReader{fetchErrs: 2, msgs: []kafka.Message{message(1, canceled("r1"))}}
			sink := &fakeSink{}
			c := NewConsumer(r, sink, opts...)

			runUntil(t, c, func() bool { return sink.count() == 1 })

			So(sink.count(), ShouldEqual, 1)
		})
	})
}
