package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/venuestats/internal/domain/stats"
)

const backendRedis = "redis"

// RedisStore keeps aggregates as JSON strings, the ledger as integer counters
// and venue positions in a GEO set.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	geoKey string
}

// NewRedisStore wraps an existing client. The caller owns the client unless
// Close is called on the store.
func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client: client,
		prefix: "venuestats",
		geoKey: "venues:geo",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DialRedis connects to addr and verifies the connection with PING.
func DialRedis(ctx context.Context, addr, password string, db int, opts ...RedisOption) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, unavailable("ping", err)
	}
	return NewRedisStore(client, opts...), nil
}

func (s *RedisStore) userKey(id string) string   { return s.prefix + ":user:" + id }
func (s *RedisStore) venueKey(id string) string  { return s.prefix + ":venue:" + id }
func (s *RedisStore) pointsKey(id string) string { return s.prefix + ":points:" + id }

// GetUser implements StatStore.
func (s *RedisStore) GetUser(ctx context.Context, user string) (e stats.UserStatEntry, err error) {
	defer observe(backendRedis, "get_user", time.Now(), &err)
	e = stats.NewUser(user)
	_, err = s.getJSON(ctx, s.userKey(user), &e)
	return e, err
}

// SaveUser implements StatStore.
func (s *RedisStore) SaveUser(ctx context.Context, e stats.UserStatEntry) (err error) {
	defer observe(backendRedis, "save_user", time.Now(), &err)
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode user %s: %w", e.User, err)
	}
	if err = s.client.Set(ctx, s.userKey(e.User), b, 0).Err(); err != nil {
		return unavailable("set user", err)
	}
	return nil
}

// GetVenue implements StatStore.
func (s *RedisStore) GetVenue(ctx context.Context, venue string) (e stats.VenueStatEntry, err error) {
	defer observe(backendRedis, "get_venue", time.Now(), &err)
	e = stats.NewVenue(venue)
	if _, err = s.getJSON(ctx, s.venueKey(venue), &e); err != nil {
		return e, err
	}
	if e.Days == nil || e.Turns == nil {
		e = e.Clone()
	}
	return e, nil
}

// SaveVenue implements StatStore.
func (s *RedisStore) SaveVenue(ctx context.Context, e stats.VenueStatEntry) (err error) { //nolint:gocritic // hugeParam: encoded as is
	defer observe(backendRedis, "save_venue", time.Now(), &err)
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode venue %s: %w", e.Venue, err)
	}
	if err = s.client.Set(ctx, s.venueKey(e.Venue), b, 0).Err(); err != nil {
		return unavailable("set venue", err)
	}
	return nil
}

// SavePair writes both entries in one MULTI/EXEC block.
func (s *RedisStore) SavePair(ctx context.Context, u stats.UserStatEntry, v stats.VenueStatEntry) (err error) { //nolint:gocritic // hugeParam: encoded as is
	defer observe(backendRedis, "save_pair", time.Now(), &err)
	ub, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("encode user %s: %w", u.User, err)
	}
	vb, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode venue %s: %w", v.Venue, err)
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.userKey(u.User), ub, 0)
		p.Set(ctx, s.venueKey(v.Venue), vb, 0)
		return nil
	})
	if err != nil {
		return unavailable("save pair", err)
	}
	return nil
}

// AddPoints implements PointLedger with INCRBY.
func (s *RedisStore) AddPoints(ctx context.Context, user string, amount int) (total int64, err error) {
	defer observe(backendRedis, "add_points", time.Now(), &err)
	total, err = s.client.IncrBy(ctx, s.pointsKey(user), int64(amount)).Result()
	if err != nil {
		return 0, unavailable("incrby", err)
	}
	return total, nil
}

// Points implements PointLedger.
func (s *RedisStore) Points(ctx context.Context, user string) (total int64, err error) {
	defer observe(backendRedis, "points", time.Now(), &err)
	total, err = s.client.Get(ctx, s.pointsKey(user)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, unavailable("get points", err)
	}
	return total, nil
}

// geoMaxLatitude is the polar bound of Redis GEO web-mercator encoding.
const geoMaxLatitude = 85.05112878

// PutVenue adds or moves a venue in the GEO set.
func (s *RedisStore) PutVenue(ctx context.Context, row VenueRow) error {
	if err := checkVenue(row); err != nil {
		return err
	}
	lat, err := strconv.ParseFloat(row.Latitude, 64)
	if err != nil {
		return fmt.Errorf("%w: latitude %q", ErrInvalidVenue, row.Latitude)
	}
	lon, err := strconv.ParseFloat(row.Longitude, 64)
	if err != nil {
		return fmt.Errorf("%w: longitude %q", ErrInvalidVenue, row.Longitude)
	}
	// Negated bounds so NaN is rejected too.
	if !(lat >= -geoMaxLatitude && lat <= geoMaxLatitude) || !(lon >= -180 && lon <= 180) {
		return fmt.Errorf("%w: (%s, %s) outside the GEO index range", ErrInvalidVenue, row.Latitude, row.Longitude)
	}
	loc := &redis.GeoLocation{Name: row.ID, Latitude: lat, Longitude: lon}
	if err := s.client.GeoAdd(ctx, s.geoKey, loc).Err(); err != nil {
		return unavailable("geoadd", err)
	}
	return nil
}

// VenuePage walks the GEO set in member order. Positions come back from
// GEOPOS, so they carry the precision of the geohash encoding.
func (s *RedisStore) VenuePage(ctx context.Context, offset, limit int) (rows []VenueRow, err error) {
	defer observe(backendRedis, "venue_page", time.Now(), &err)
	if err = checkPage(offset, limit); err != nil {
		return nil, err
	}
	members, err := s.client.ZRange(ctx, s.geoKey, int64(offset), int64(offset+limit-1)).Result()
	if err != nil {
		return nil, unavailable("zrange", err)
	}
	if len(members) == 0 {
		return nil, nil
	}
	positions, err := s.client.GeoPos(ctx, s.geoKey, members...).Result()
	if err != nil {
		return nil, unavailable("geopos", err)
	}
	rows = make([]VenueRow, 0, len(members))
	for i, m := range members {
		if i >= len(positions) || positions[i] == nil {
			continue
		}
		rows = append(rows, VenueRow{
			ID:        m,
			Latitude:  strconv.FormatFloat(positions[i].Latitude, 'f', -1, 64),
			Longitude: strconv.FormatFloat(positions[i].Longitude, 'f', -1, 64),
		})
	}
	return rows, nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// getJSON decodes key into dst and reports whether the key existed.
func (s *RedisStore) getJSON(ctx context.Context, key string, dst any) (bool, error) {
	b, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, unavailable("get "+key, err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}
