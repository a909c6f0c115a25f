package service

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/venuestats/internal/domain/geo"
	"github.com/okian/venuestats/internal/domain/ranking"
	"github.com/okian/venuestats/internal/domain/types"
	"github.com/okian/venuestats/pkg/logger"
	"github.com/okian/venuestats/pkg/metrics"
)

// NearbyVenues pages the whole venue source through a distance ranker
// anchored at (lat, lon) and returns the closest venues, at most limit. A
// non-positive limit, or one above the configured cap, selects the cap.
// Venues with malformed coordinates are skipped and logged.
func (s *Service) NearbyVenues(ctx context.Context, lat, lon float64, limit int) ([]types.NearbyVenue, error) {
	start := time.Now()

	anchor, err := geo.NewCoordinate("anchor", lat, lon)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > s.nearbyLimit {
		limit = s.nearbyLimit
	}

	r := ranking.New(anchor)
	skipped := 0
	for offset := 0; ; offset += s.venuePageSize {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("rank venues: %w", err)
		}
		rows, err := s.venues.VenuePage(ctx, offset, s.venuePageSize)
		if err != nil {
			return nil, fmt.Errorf("venue page at %d: %w", offset, err)
		}
		if len(rows) == 0 {
			break
		}

		batch := make([]geo.Coordinate, 0, len(rows))
		for _, row := range rows {
			c, err := geo.ParseCoordinate(row.ID, row.Latitude, row.Longitude)
			if err != nil {
				skipped++
				s.logger.Warn(ctx, "skipping venue with malformed coordinates",
					logger.String("venue", row.ID),
					logger.Error(err),
				)
				continue
			}
			batch = append(batch, c)
		}
		r.AddBatch(batch)
		metrics.RecordRankingBatch()

		if len(rows) < s.venuePageSize {
			break
		}
	}
	if skipped > 0 {
		metrics.RecordErrorByComponent("ranking", "invalid_coordinate")
	}

	candidates := r.Len()
	ranked := r.DrainDistances()
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	out := make([]types.NearbyVenue, len(ranked))
	for i, d := range ranked {
		out[i] = types.NearbyVenue{
			ID:         d.Target.ID,
			Latitude:   d.Target.Lat,
			Longitude:  d.Target.Lon,
			DistanceKm: d.Distance,
		}
	}

	metrics.RecordRanking(candidates, float64(time.Since(start).Microseconds())/1000)
	return out, nil
}
