package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/venuestats/internal/adapters/repository"
	"github.com/okian/venuestats/internal/domain/model"
	"github.com/okian/venuestats/internal/domain/stats"
	"github.com/okian/venuestats/pkg/logger"
	"github.com/okian/venuestats/pkg/metrics"
)

func userLockKey(id string) string  { return "user/" + id }
func venueLockKey(id string) string { return "venue/" + id }

// RecordOutcome classifies r and applies the resulting update to both the
// user and the venue aggregate. Unconfirmed and accepted reservations are
// no-ops and return a nil Outcome.
//
// Both aggregates are read, updated and written while holding the user and
// venue key locks. The write phase ignores cancellation of ctx and is bounded
// by the store timeout instead, so a canceled caller never leaves one half
// written and the other unattempted.
func (s *Service) RecordOutcome(ctx context.Context, r model.Reservation) (model.Outcome, error) { //nolint:gocritic // hugeParam
	start := time.Now()

	outcome, err := model.Classify(r)
	if err != nil {
		return nil, err
	}
	if outcome == nil {
		return nil, nil
	}

	unlock := s.locks.Lock(userLockKey(r.User), venueLockKey(r.Venue))
	defer unlock()

	u, v, err := s.loadPair(ctx, r.User, r.Venue)
	if err != nil {
		return nil, fmt.Errorf("load aggregates: %w", err)
	}

	prevU, prevV := u, v.Clone()
	u.Apply(outcome)
	v.Apply(outcome)

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.storeTimeout)
	defer cancel()

	if err := s.savePair(saveCtx, prevU, prevV, u, v); err != nil {
		return nil, err
	}

	metrics.RecordOutcome(string(outcome.Kind()), float64(time.Since(start).Microseconds())/1000)
	return outcome, nil
}

// GetUserStats returns the user's aggregate as reported to callers.
func (s *Service) GetUserStats(ctx context.Context, user string) (stats.UserStatEntry, error) {
	u, err := s.store.GetUser(ctx, user)
	if err != nil {
		return stats.UserStatEntry{}, fmt.Errorf("get user %s: %w", user, err)
	}
	return u.View(), nil
}

// GetVenueStats returns the venue's aggregate as reported to callers.
func (s *Service) GetVenueStats(ctx context.Context, venue string) (stats.VenueStatEntry, error) {
	v, err := s.store.GetVenue(ctx, venue)
	if err != nil {
		return stats.VenueStatEntry{}, fmt.Errorf("get venue %s: %w", venue, err)
	}
	return v.View(), nil
}

// GetPair fetches both aggregates concurrently. It does not take the key
// locks and may observe a pair mid-update.
func (s *Service) GetPair(ctx context.Context, user, venue string) (stats.UserStatEntry, stats.VenueStatEntry, error) {
	u, v, err := s.loadPair(ctx, user, venue)
	if err != nil {
		return stats.UserStatEntry{}, stats.VenueStatEntry{}, err
	}
	return u.View(), v.View(), nil
}

func (s *Service) loadPair(ctx context.Context, user, venue string) (stats.UserStatEntry, stats.VenueStatEntry, error) {
	var (
		u stats.UserStatEntry
		v stats.VenueStatEntry
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		u, err = s.store.GetUser(gctx, user)
		if err != nil {
			return fmt.Errorf("get user %s: %w", user, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		v, err = s.store.GetVenue(gctx, venue)
		if err != nil {
			return fmt.Errorf("get venue %s: %w", venue, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return u, v, err
	}
	return u, v, nil
}

// savePair writes the updated pair. Stores implementing PairSaver write it
// atomically. Otherwise both halves are written concurrently and, if only one
// of them fails, the committed half is rewritten with its previous value.
func (s *Service) savePair(ctx context.Context, prevU stats.UserStatEntry, prevV stats.VenueStatEntry, u stats.UserStatEntry, v stats.VenueStatEntry) error { //nolint:gocritic // hugeParam
	if ps, ok := s.store.(repository.PairSaver); ok {
		if err := ps.SavePair(ctx, u, v); err != nil {
			return fmt.Errorf("save aggregates: %w", err)
		}
		return nil
	}

	var uErr, vErr error
	var g errgroup.Group
	g.Go(func() error {
		uErr = s.store.SaveUser(ctx, u)
		return nil
	})
	g.Go(func() error {
		vErr = s.store.SaveVenue(ctx, v)
		return nil
	})
	_ = g.Wait()

	switch {
	case uErr == nil && vErr == nil:
		return nil
	case uErr != nil && vErr != nil:
		return fmt.Errorf("save aggregates: %w", errors.Join(uErr, vErr))
	}

	pw := &PartialWriteError{User: u.User, Venue: v.Venue}
	if uErr != nil {
		pw.Failed, pw.Err = HalfUser, uErr
		pw.CompensationErr = s.store.SaveVenue(ctx, prevV)
	} else {
		pw.Failed, pw.Err = HalfVenue, vErr
		pw.CompensationErr = s.store.SaveUser(ctx, prevU)
	}
	pw.Compensated = pw.CompensationErr == nil

	metrics.RecordPartialWrite(pw.Compensated)
	fields := []logger.Field{
		logger.String("user", u.User),
		logger.String("venue", v.Venue),
		logger.String("failed", pw.Failed),
		logger.Bool("compensated", pw.Compensated),
		logger.Error(pw.Err),
	}
	if pw.Compensated {
		s.logger.Warn(ctx, "aggregate pair half failed, committed half restored", fields...)
	} else {
		s.logger.Error(ctx, "aggregate pair half failed and could not be restored",
			append(fields, logger.String("restore_error", pw.CompensationErr.Error()))...)
	}
	return pw
}
