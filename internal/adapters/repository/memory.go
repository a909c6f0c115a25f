package repository

import (
	"context"
	"sync"
	"time"

	"github.com/okian/venuestats/internal/domain/stats"
	"github.com/okian/venuestats/pkg/metrics"
)

const backendMemory = "memory"

// MemoryStore keeps every aggregate, ledger balance and venue in process.
// Entries are copied on the way in and out so callers never share maps with
// the store.
type MemoryStore struct {
	mu     sync.RWMutex
	users  map[string]stats.UserStatEntry
	venues map[string]stats.VenueStatEntry
	points map[string]int64

	venueRows  []VenueRow
	venueIndex map[string]int

	metricsUpdateInterval time.Duration

	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewMemoryStore constructs an in-memory store. The background metrics
// updater stops when ctx is done or Close is called.
func NewMemoryStore(ctx context.Context, opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		users:                 make(map[string]stats.UserStatEntry),
		venues:                make(map[string]stats.VenueStatEntry),
		points:                make(map[string]int64),
		venueIndex:            make(map[string]int),
		metricsUpdateInterval: 5 * time.Second,
		stopChan:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.startMetricsUpdater(ctx)
	return s
}

// GetUser returns the stored entry for user or a zeroed one.
func (s *MemoryStore) GetUser(_ context.Context, user string) (stats.UserStatEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.users[user]; ok {
		return e, nil
	}
	return stats.NewUser(user), nil
}

// SaveUser replaces the entry for e.User.
func (s *MemoryStore) SaveUser(_ context.Context, e stats.UserStatEntry) error {
	s.mu.Lock()
	s.users[e.User] = e
	s.mu.Unlock()
	return nil
}

// GetVenue returns the stored entry for venue or a zeroed one.
func (s *MemoryStore) GetVenue(_ context.Context, venue string) (stats.VenueStatEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.venues[venue]; ok {
		return e.Clone(), nil
	}
	return stats.NewVenue(venue), nil
}

// SaveVenue replaces the entry for e.Venue.
func (s *MemoryStore) SaveVenue(_ context.Context, e stats.VenueStatEntry) error { //nolint:gocritic // hugeParam: stored by value
	s.mu.Lock()
	s.venues[e.Venue] = e.Clone()
	s.mu.Unlock()
	return nil
}

// SavePair replaces both entries under one lock.
func (s *MemoryStore) SavePair(_ context.Context, u stats.UserStatEntry, v stats.VenueStatEntry) error { //nolint:gocritic // hugeParam: stored by value
	s.mu.Lock()
	s.users[u.User] = u
	s.venues[v.Venue] = v.Clone()
	s.mu.Unlock()
	return nil
}

// AddPoints adds amount to user's balance.
func (s *MemoryStore) AddPoints(_ context.Context, user string, amount int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points[user] += int64(amount)
	return s.points[user], nil
}

// Points returns user's balance.
func (s *MemoryStore) Points(_ context.Context, user string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.points[user], nil
}

// PutVenue inserts or replaces a venue. Replaced venues keep their position
// in the paging order.
func (s *MemoryStore) PutVenue(_ context.Context, row VenueRow) error {
	if err := checkVenue(row); err != nil {
		return err
	}
	s.mu.Lock()
	s.putVenueLocked(row)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) putVenueLocked(row VenueRow) {
	if i, ok := s.venueIndex[row.ID]; ok {
		s.venueRows[i] = row
		return
	}
	s.venueIndex[row.ID] = len(s.venueRows)
	s.venueRows = append(s.venueRows, row)
}

// VenuePage returns up to limit venues starting at offset, in insertion order.
func (s *MemoryStore) VenuePage(_ context.Context, offset, limit int) ([]VenueRow, error) {
	if err := checkPage(offset, limit); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if offset >= len(s.venueRows) {
		return nil, nil
	}
	end := min(offset+limit, len(s.venueRows))
	out := make([]VenueRow, end-offset)
	copy(out, s.venueRows[offset:end])
	return out, nil
}

// Close stops the background metrics updater.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}

// startMetricsUpdater starts a background goroutine that publishes record counts.
func (s *MemoryStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.updateMetrics()
			}
		}
	}()
}

func (s *MemoryStore) updateMetrics() {
	s.mu.RLock()
	users, venues, ledger, rows := len(s.users), len(s.venues), len(s.points), len(s.venueRows)
	s.mu.RUnlock()

	metrics.UpdateStoreRecords(backendMemory, "users", users)
	metrics.UpdateStoreRecords(backendMemory, "venues", venues)
	metrics.UpdateStoreRecords(backendMemory, "ledger", ledger)
	metrics.UpdateStoreRecords(backendMemory, "venue_rows", rows)
}
