package simulator

import "time"

// HTTP status code constants.
const (
	StatusOK              = 200
	StatusAccepted        = 202
	StatusTooManyRequests = 429
)

// Worker configuration constants.
const (
	WorkerChannelMultiplier = 2
)

// Runner configuration constants.
const (
	DrainPollInterval    = 250 * time.Millisecond
	PercentageMultiplier = 100
	maxSubmitAttempts    = 5
	submitRetryBackoff   = 50 * time.Millisecond
)
