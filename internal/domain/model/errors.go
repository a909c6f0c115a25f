package model

import "errors"

// Sentinel kinds for reservation model errors.
var (
	ErrUnknownReservationStatus = errors.New("unknown reservation status")
)
