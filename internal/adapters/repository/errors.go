package repository

import "errors"

// Sentinel kinds for store errors.
var (
	// ErrStoreUnavailable reports that the backing store could not be reached.
	// Callers receive it unchanged; nothing in this module retries.
	ErrStoreUnavailable = errors.New("stat store unavailable")
	ErrInvalidPage      = errors.New("invalid venue page")
	ErrInvalidVenue     = errors.New("invalid venue row")
)
