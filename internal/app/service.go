// Package service ties the stats aggregator, point awarding and nearby-venue
// ranking to the stores, the outcome queue and the worker pool.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	eventqueue "github.com/okian/venuestats/internal/adapters/mq/queue"
	workerpool "github.com/okian/venuestats/internal/adapters/mq/worker"
	"github.com/okian/venuestats/internal/adapters/repository"
	"github.com/okian/venuestats/internal/domain/dedupe"
	"github.com/okian/venuestats/internal/domain/model"
	"github.com/okian/venuestats/internal/domain/scoring"
	"github.com/okian/venuestats/internal/domain/types"
	"github.com/okian/venuestats/pkg/logger"
	"github.com/okian/venuestats/pkg/metrics"
)

// Service implements the dependencies required by the HTTP API and the
// stream consumer.
type Service struct {
	mu sync.RWMutex

	// Core components
	store   repository.StatStore
	ledger  repository.PointLedger
	venues  repository.VenueSource
	scorer  scoring.Scorer
	deduper dedupe.Deduper
	locks   *keyLocks

	eventQueue *eventqueue.InMemoryQueue
	workerPool *workerpool.Pool

	// ownStore is set when the service created the memory store itself.
	ownStore *repository.MemoryStore

	// Configuration
	workerCount   int
	queueSize     int
	dedupeSize    int
	storeTimeout  time.Duration
	venuePageSize int
	nearbyLimit   int

	// State
	started bool

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the aggregate store. When it also implements PointLedger or
// VenueSource it serves those roles too, unless they are set explicitly.
func WithStore(store repository.StatStore) Option {
	return func(s *Service) {
		if store == nil {
			return
		}
		s.store = store
		if l, ok := store.(repository.PointLedger); ok && s.ledger == nil {
			s.ledger = l
		}
		if v, ok := store.(repository.VenueSource); ok && s.venues == nil {
			s.venues = v
		}
	}
}

// WithLedger sets the point ledger.
func WithLedger(l repository.PointLedger) Option {
	return func(s *Service) {
		if l != nil {
			s.ledger = l
		}
	}
}

// WithVenueSource sets the paginated venue source used for nearby rankings.
func WithVenueSource(v repository.VenueSource) Option {
	return func(s *Service) {
		if v != nil {
			s.venues = v
		}
	}
}

// WithScorer sets the point scorer.
func WithScorer(sc scoring.Scorer) Option {
	return func(s *Service) {
		if sc != nil {
			s.scorer = sc
		}
	}
}

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum size of the outcome queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the deduplication window.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithStoreTimeout bounds the write phase of RecordOutcome.
func WithStoreTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.storeTimeout = d
		}
	}
}

// WithVenuePageSize sets how many venues are fetched per page.
func WithVenuePageSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.venuePageSize = n
		}
	}
}

// WithNearbyLimit caps the number of venues a nearby query returns.
func WithNearbyLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.nearbyLimit = n
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service. Roles left unset by options are served by an
// in-memory store owned by the service.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:   runtime.NumCPU() * 4,
		queueSize:     100_000,
		dedupeSize:    500_000,
		storeTimeout:  5 * time.Second,
		venuePageSize: 1000,
		nearbyLimit:   100,
		locks:         newKeyLocks(),
		logger:        logger.GetOrNop(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.store == nil || s.ledger == nil || s.venues == nil {
		s.ownStore = repository.NewMemoryStore(context.Background())
		if s.store == nil {
			s.store = s.ownStore
		}
		if s.ledger == nil {
			s.ledger = s.ownStore
		}
		if s.venues == nil {
			s.venues = s.ownStore
		}
	}
	if s.scorer == nil {
		s.scorer = scoring.NewPointScorer()
	}
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.logger = s.logger.Named("service")

	return s
}

// Start creates the outcome queue and starts the worker pool.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.logger.Info(ctx, "starting venue stats service...")

	s.eventQueue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
	s.workerPool = workerpool.NewPool(s.workerCount, s.eventQueue, workerpool.ProcessorFunc(s.Process),
		workerpool.WithPoolLogger(s.logger),
	)
	s.workerPool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "venue stats service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
	)

	return nil
}

// Stop drains the queue, stops the workers and closes the store the service
// created itself. Caller-provided stores stay open.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		s.closeOwnStore()
		return
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping venue stats service...")

	if err := s.workerPool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool did not drain", logger.Error(err))
	}
	s.closeOwnStore()

	s.started = false
	s.logger.Info(ctx, "venue stats service stopped")
}

func (s *Service) closeOwnStore() {
	if s.ownStore != nil {
		_ = s.ownStore.Close()
	}
}

// Submit deduplicates e and queues it for the worker pool. A duplicate is
// reported in the result, not as an error. A full queue yields an error
// matching ErrBusy that reports itself retryable.
func (s *Service) Submit(ctx context.Context, e model.OutcomeEvent) (types.OutcomeResult, error) { //nolint:gocritic // hugeParam
	s.mu.RLock()
	started, q := s.started, s.eventQueue
	s.mu.RUnlock()
	if !started {
		return types.OutcomeResult{}, ErrNotStarted
	}

	key := e.DedupeKey()
	res := types.OutcomeResult{EventID: key}
	if s.seenAndRecord(ctx, key) {
		res.Duplicate = true
		return res, nil
	}

	if err := q.Enqueue(ctx, e); err != nil {
		s.deduper.Unrecord(ctx, key)
		if isFull(err) {
			return res, busyError{err: err}
		}
		return res, fmt.Errorf("enqueue %s: %w", key, err)
	}
	res.Queued = true
	return res, nil
}

// Apply deduplicates e and processes it inline.
func (s *Service) Apply(ctx context.Context, e model.OutcomeEvent) (types.OutcomeResult, error) { //nolint:gocritic // hugeParam
	key := e.DedupeKey()
	if s.seenAndRecord(ctx, key) {
		return types.OutcomeResult{EventID: key, Duplicate: true}, nil
	}
	return s.process(ctx, e)
}

// Process applies an already deduplicated event. It is what the workers run.
func (s *Service) Process(ctx context.Context, e model.OutcomeEvent) error { //nolint:gocritic // hugeParam
	_, err := s.process(ctx, e)
	return err
}

// process records the outcome and awards its points. A failure before
// anything was written releases the dedupe key so a redelivery can try
// again. A partial write keeps the key: replaying it would apply the
// committed half twice if its restore failed.
func (s *Service) process(ctx context.Context, e model.OutcomeEvent) (types.OutcomeResult, error) { //nolint:gocritic // hugeParam
	key := e.DedupeKey()
	res := types.OutcomeResult{EventID: key}

	outcome, err := s.RecordOutcome(ctx, e.Reservation)
	if err != nil {
		if !errors.Is(err, ErrPartialAggregateWrite) {
			s.deduper.Unrecord(ctx, key)
		}
		s.logger.Error(ctx, "record outcome failed",
			logger.String("event", key),
			logger.String("user", e.Reservation.User),
			logger.String("venue", e.Reservation.Venue),
			logger.Error(err),
		)
		return res, err
	}
	res.Kind = model.KindOf(outcome)

	delta, balance, err := s.AwardPoints(ctx, e.Reservation, e.Actor)
	if err != nil {
		// The aggregates are already written; redelivering would apply them
		// again, so the key stays recorded.
		metrics.RecordErrorByComponent("service", "award_points")
		s.logger.Error(ctx, "award points failed",
			logger.String("event", key),
			logger.String("user", e.Reservation.User),
			logger.Error(err),
		)
		return res, fmt.Errorf("award points for %s: %w", key, err)
	}
	res.Points, res.Balance = delta, balance

	s.logger.Debug(ctx, "outcome applied",
		logger.String("event", key),
		logger.String("kind", string(res.Kind)),
		logger.Int("points", delta),
	)
	return res, nil
}

func (s *Service) seenAndRecord(ctx context.Context, key string) bool {
	seen := s.deduper.SeenAndRecord(ctx, key)
	if seen {
		metrics.RecordOutcomeDuplicate()
	}
	return seen
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
		"dedupeSeen":  s.deduper.Size(),
		"lockedKeys":  s.locks.Len(),
	}

	if s.started {
		out["queueLength"] = s.eventQueue.Len(context.Background())
		out["processed"] = s.workerPool.Processed()
	}

	return out
}
