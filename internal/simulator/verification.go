package simulator

import (
	"context"
	"fmt"
	"log"
	"math"
	"net/url"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// venueRatioStep is the rounding granularity of venue ratios.
const venueRatioStep = 0.01

// verifyResults reads back every user and venue the simulation touched and
// checks totals and recovered counts against the expected tallies.
func verifyResults(ctx context.Context, config *Config, expected *Expected, stats *Stats) error {
	log.Println("🔍 Verifying aggregates...")

	client := newHTTPClient(config.Timeout)

	var (
		mu         sync.Mutex
		mismatches []string
	)
	record := func(msg string) {
		mu.Lock()
		mismatches = append(mismatches, msg)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(config.Workers)

	check := func(kind, path string, want map[string]*Counts, rounded bool) {
		for id, c := range want {
			id, c := id, c
			g.Go(func() error {
				var got Observed
				if err := client.getJSON(gctx, config.BaseURL+path+url.PathEscape(id), &got); err != nil {
					return fmt.Errorf("read %s %s: %w", kind, id, err)
				}
				if err := compare(got, *c, rounded); err != nil {
					record(fmt.Sprintf("%s %s: %v", kind, id, err))
				}
				return nil
			})
		}
	}
	check("user", "/stats/users/", expected.Users, false)
	check("venue", "/stats/venues/", expected.Venues, true)

	if err := g.Wait(); err != nil {
		return err
	}

	stats.EntriesVerified = len(expected.Users) + len(expected.Venues)
	stats.EntriesMismatch = len(mismatches)

	if len(mismatches) > 0 {
		sort.Strings(mismatches)
		for i, m := range mismatches {
			if i == 10 && !config.Verbose {
				log.Printf("   ... and %d more", len(mismatches)-i)
				break
			}
			log.Printf("   ❌ %s", m)
		}
		return fmt.Errorf("%d of %d aggregates do not match", len(mismatches), stats.EntriesVerified)
	}

	log.Printf("✅ %d aggregates verified", stats.EntriesVerified)
	return nil
}

// compare checks that got's ratios recover want's counts. User ratios are
// exact; venue ratios are rounded, so they may drift by half a step times
// the total.
func compare(got Observed, want Counts, rounded bool) error {
	if got.Total != want.Total {
		return fmt.Errorf("total %d, want %d", got.Total, want.Total)
	}
	tol := 0.5
	if rounded {
		tol += venueRatioStep / 2 * float64(want.Total)
	}
	if d := math.Abs(got.Canceled*float64(got.Total) - float64(want.Canceled)); d > tol {
		return fmt.Errorf("canceled ratio %.4f recovers %.2f, want %d", got.Canceled, got.Canceled*float64(got.Total), want.Canceled)
	}
	if d := math.Abs(got.Expired*float64(got.Total) - float64(want.Expired)); d > tol {
		return fmt.Errorf("expired ratio %.4f recovers %.2f, want %d", got.Expired, got.Expired*float64(got.Total), want.Expired)
	}
	return nil
}
