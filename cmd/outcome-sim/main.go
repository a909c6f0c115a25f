package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/venuestats/internal/simulator"
	"github.com/okian/venuestats/pkg/logger"
)

func main() {
	var (
		config simulator.Config
		help   bool
	)

	flag.StringVar(&config.BaseURL, "url", "http://localhost:9080", "Base URL of the service")
	flag.IntVar(&config.NumEvents, "events", 10000, "Number of outcomes to generate and submit")
	flag.IntVar(&config.Users, "users", 500, "Number of simulated users")
	flag.IntVar(&config.Venues, "venues", 50, "Number of simulated venues")
	flag.IntVar(&config.Workers, "workers", runtime.NumCPU()*2, "Number of concurrent workers")
	flag.DurationVar(&config.Timeout, "timeout", 30*time.Second, "HTTP request timeout")
	flag.DurationVar(&config.Settle, "settle", 2*time.Minute, "Maximum wait for the queue to drain")
	flag.StringVar(&config.OutputFile, "output", "", "Output file for generated outcomes")
	flag.StringVar(&config.LogFile, "log", "", "Log file for simulation output")
	flag.BoolVar(&config.Verbose, "verbose", false, "Enable verbose logging")
	flag.BoolVar(&help, "help", false, "Show help message")
	flag.Parse()

	if help {
		simulator.ShowHelp()
		return
	}

	if config.NumEvents <= 0 || config.Users <= 0 || config.Venues <= 0 || config.Workers <= 0 {
		os.Stderr.WriteString("events, users, venues and workers must be positive\n")
		os.Exit(2)
	}

	if err := simulator.SetupLogging(config.LogFile); err != nil {
		os.Stderr.WriteString("failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := simulator.Run(ctx, &config); err != nil {
		logger.Get().Error(ctx, "simulation failed", logger.Error(err))
		stop()
		os.Exit(1) //nolint:gocritic // exitAfterDefer: stop is called explicitly above
	}
}
