package stream

import "errors"

// Sentinel kinds for stream errors.
var (
	ErrDecode = errors.New("decode lifecycle message")
)
