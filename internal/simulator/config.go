package simulator

import (
	"time"

	"github.com/okian/venuestats/internal/domain/types"
)

// Config holds configuration for the outcome simulation.
type Config struct {
	BaseURL    string        // Base URL of the service
	NumEvents  int           // Number of outcomes to generate
	Users      int           // Size of the simulated user population
	Venues     int           // Size of the simulated venue population
	Workers    int           // Number of concurrent workers
	Timeout    time.Duration // HTTP request timeout
	Settle     time.Duration // Upper bound on waiting for the queue to drain
	OutputFile string        // Output file for generated outcomes
	LogFile    string        // Log file for simulation output
	Verbose    bool          // Enable verbose logging
}

// Outcome is the body posted to /outcomes.
type Outcome = types.OutcomeMessage

// Counts tallies the outcomes expected for one user or venue.
type Counts struct {
	Total    int
	Canceled int
	Expired  int
}

// Expected is what the service should report once every outcome is applied.
type Expected struct {
	Users  map[string]*Counts
	Venues map[string]*Counts
}

// Observed is the ratio view read back from the service.
type Observed struct {
	Total    int     `json:"total"`
	Canceled float64 `json:"canceled"`
	Expired  float64 `json:"expired"`
}

// Stats holds simulation statistics.
type Stats struct {
	EventsGenerated int
	EventsSubmitted int
	EventsQueued    int
	EventsDuplicate int
	EventsRetried   int
	EventsFailed    int
	EntriesVerified int
	EntriesMismatch int
	StartTime       time.Time
	EndTime         time.Time
	Duration        time.Duration
}
