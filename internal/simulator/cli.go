// Package simulator drives a running venue stats service with generated
// reservation outcomes and verifies the aggregates it reports.
package simulator

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/okian/venuestats/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging configures logging to both console and file.
// If logFile is empty, a timestamped filename is generated.
func SetupLogging(logFile string) error {
	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if logFile == "" {
		timestamp := time.Now().Format("20060102_150405")
		logFile = "simulation_" + timestamp + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	multiWriter := io.MultiWriter(os.Stdout, file)
	log.SetOutput(multiWriter)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return nil
}

// ShowHelp prints usage information for the simulator.
func ShowHelp() {
	os.Stdout.WriteString(`Venue Stats Outcome Simulator
=============================

Posts generated reservation outcomes to a running venue stats service and
checks that every user and venue aggregate matches what was sent.

Usage:
  go run ./cmd/outcome-sim [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -events int
        Number of outcomes to generate and submit (default 10000)
  -users int
        Number of simulated users (default 500)
  -venues int
        Number of simulated venues (default 50)
  -workers int
        Number of concurrent workers (default CPU cores * 2)
  -timeout duration
        HTTP request timeout (default 30s)
  -settle duration
        Maximum wait for the service queue to drain (default 2m)
  -output string
        Output file for generated outcomes (default: generated_outcomes_TIMESTAMP.json)
  -log string
        Log file for simulation output (default: simulation_TIMESTAMP.log)
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  go run ./cmd/outcome-sim -events 50000 -workers 16 -url http://localhost:8080
`)
}
