package service

import (
	"context"
	"fmt"

	"github.com/okian/venuestats/internal/domain/model"
	"github.com/okian/venuestats/internal/domain/scoring"
	"github.com/okian/venuestats/pkg/metrics"
)

// AwardPoints scores the transition of r triggered by actor and adds the
// delta to the user's ledger balance. A zero delta leaves the ledger
// untouched; the returned balance is then the current one.
func (s *Service) AwardPoints(ctx context.Context, r model.Reservation, actor string) (delta int, balance int64, err error) { //nolint:gocritic // hugeParam
	res, err := s.scorer.Score(ctx, scoring.Input{Reservation: r, Actor: actor})
	if err != nil {
		return 0, 0, err
	}
	if res.Points == 0 {
		balance, err = s.ledger.Points(ctx, res.User)
		if err != nil {
			return 0, 0, fmt.Errorf("read points of %s: %w", res.User, err)
		}
		return 0, balance, nil
	}

	balance, err = s.ledger.AddPoints(ctx, res.User, res.Points)
	if err != nil {
		return 0, 0, fmt.Errorf("add points to %s: %w", res.User, err)
	}
	metrics.RecordPoints(res.Points)
	return res.Points, balance, nil
}

// Points returns the user's running balance.
func (s *Service) Points(ctx context.Context, user string) (int64, error) {
	p, err := s.ledger.Points(ctx, user)
	if err != nil {
		return 0, fmt.Errorf("read points of %s: %w", user, err)
	}
	return p, nil
}
