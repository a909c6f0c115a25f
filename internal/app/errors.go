package service

import (
	"errors"
	"fmt"

	"github.com/okian/venuestats/internal/adapters/mq/queue"
)

// Sentinel kinds for service errors.
var (
	// ErrPartialAggregateWrite matches *PartialWriteError.
	ErrPartialAggregateWrite = errors.New("partial aggregate write")
	ErrNotStarted            = errors.New("service not started")
	ErrBusy                  = errors.New("outcome queue busy")
)

// Halves of an aggregate pair.
const (
	HalfUser  = "user"
	HalfVenue = "venue"
)

// PartialWriteError reports a pair write where one half committed and the
// other failed. The committed half is rewritten with its previous value;
// Compensated tells whether that rewrite succeeded. When it did not, the
// stores hold one applied half and need reconciling.
type PartialWriteError struct {
	User            string
	Venue           string
	Failed          string // HalfUser or HalfVenue
	Err             error
	Compensated     bool
	CompensationErr error
}

func (e *PartialWriteError) Error() string {
	msg := fmt.Sprintf("partial aggregate write for user %s / venue %s: %s half failed: %v",
		e.User, e.Venue, e.Failed, e.Err)
	if e.Compensated {
		return msg + " (committed half restored)"
	}
	return fmt.Sprintf("%s (restore failed: %v)", msg, e.CompensationErr)
}

// Is matches ErrPartialAggregateWrite.
func (e *PartialWriteError) Is(target error) bool {
	return target == ErrPartialAggregateWrite
}

// Unwrap returns the error of the failed half.
func (e *PartialWriteError) Unwrap() error {
	return e.Err
}

// busyError marks a submit rejected because the queue is full. The caller
// may hold the event and try again.
type busyError struct {
	err error
}

func (e busyError) Error() string   { return fmt.Sprintf("%v: %v", ErrBusy, e.err) }
func (e busyError) Unwrap() []error { return []error{ErrBusy, e.err} }
func (e busyError) Retryable() bool { return true }

func isFull(err error) bool {
	return errors.Is(err, queue.ErrFull)
}
