package repository

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okian/venuestats/internal/domain/stats"
)

const backendPostgres = "postgres"

//go:embed migrations/*.sql
var migrationsFS embed.FS

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps aggregates, the point ledger and venues in Postgres.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore opens a pool for dsn and checks connectivity.
func NewPostgresStore(ctx context.Context, dsn string, opts ...PostgresOption) (*PostgresStore, error) {
	cfg := postgresConfig{
		maxConns:        20,
		minConns:        2,
		maxConnLifetime: time.Hour,
		maxConnIdleTime: 30 * time.Minute,
		pingTimeout:     5 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}
	poolCfg.MaxConns = cfg.maxConns
	poolCfg.MinConns = cfg.minConns
	poolCfg.MaxConnLifetime = cfg.maxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.maxConnIdleTime
	poolCfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, unavailable("create pool", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, unavailable("ping", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Migrate applies the embedded migrations in lexicographic order, one
// transaction per file.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		sqlb, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return err
		}
		if err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			_, err := tx.Exec(ctx, string(sqlb))
			return err
		}); err != nil {
			return fmt.Errorf("migration %s: %w", name, pgErr(err))
		}
	}
	return nil
}

// GetUser implements StatStore.
func (s *PostgresStore) GetUser(ctx context.Context, user string) (e stats.UserStatEntry, err error) {
	defer observe(backendPostgres, "get_user", time.Now(), &err)
	e = stats.NewUser(user)
	err = s.pool.QueryRow(ctx,
		`SELECT total, canceled, expired FROM user_stats WHERE user_id = $1`, user,
	).Scan(&e.Total, &e.Canceled, &e.Expired)
	if errors.Is(err, pgx.ErrNoRows) {
		return e, nil
	}
	if err != nil {
		return e, pgErr(err)
	}
	return e, nil
}

// SaveUser implements StatStore.
func (s *PostgresStore) SaveUser(ctx context.Context, e stats.UserStatEntry) (err error) {
	defer observe(backendPostgres, "save_user", time.Now(), &err)
	return saveUser(ctx, s.pool, e)
}

// GetVenue implements StatStore.
func (s *PostgresStore) GetVenue(ctx context.Context, venue string) (e stats.VenueStatEntry, err error) {
	defer observe(backendPostgres, "get_venue", time.Now(), &err)
	e = stats.NewVenue(venue)
	var days, turns []byte
	err = s.pool.QueryRow(ctx,
		`SELECT total, canceled, expired, mean_people_served, days, turns FROM venue_stats WHERE venue_id = $1`, venue,
	).Scan(&e.Total, &e.Canceled, &e.Expired, &e.MeanPeopleServed, &days, &turns)
	if errors.Is(err, pgx.ErrNoRows) {
		return e, nil
	}
	if err != nil {
		return e, pgErr(err)
	}
	if err = json.Unmarshal(days, &e.Days); err != nil {
		return e, fmt.Errorf("decode days of %s: %w", venue, err)
	}
	if err = json.Unmarshal(turns, &e.Turns); err != nil {
		return e, fmt.Errorf("decode turns of %s: %w", venue, err)
	}
	return e.Clone(), nil
}

// SaveVenue implements StatStore.
func (s *PostgresStore) SaveVenue(ctx context.Context, e stats.VenueStatEntry) (err error) { //nolint:gocritic // hugeParam: encoded as is
	defer observe(backendPostgres, "save_venue", time.Now(), &err)
	return saveVenue(ctx, s.pool, e)
}

// SavePair writes both entries in one transaction.
func (s *PostgresStore) SavePair(ctx context.Context, u stats.UserStatEntry, v stats.VenueStatEntry) (err error) { //nolint:gocritic // hugeParam: encoded as is
	defer observe(backendPostgres, "save_pair", time.Now(), &err)
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return pgErr(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err = saveUser(ctx, tx, u); err != nil {
		return err
	}
	if err = saveVenue(ctx, tx, v); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return pgErr(err)
	}
	return nil
}

// AddPoints implements PointLedger.
func (s *PostgresStore) AddPoints(ctx context.Context, user string, amount int) (total int64, err error) {
	defer observe(backendPostgres, "add_points", time.Now(), &err)
	err = s.pool.QueryRow(ctx, `
		INSERT INTO point_ledger (user_id, total) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE
		SET total = point_ledger.total + EXCLUDED.total, updated_at = now()
		RETURNING total`, user, int64(amount),
	).Scan(&total)
	if err != nil {
		return 0, pgErr(err)
	}
	return total, nil
}

// Points implements PointLedger.
func (s *PostgresStore) Points(ctx context.Context, user string) (total int64, err error) {
	defer observe(backendPostgres, "points", time.Now(), &err)
	err = s.pool.QueryRow(ctx, `SELECT total FROM point_ledger WHERE user_id = $1`, user).Scan(&total)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, pgErr(err)
	}
	return total, nil
}

// PutVenue inserts or replaces a venue row.
func (s *PostgresStore) PutVenue(ctx context.Context, row VenueRow) (err error) {
	defer observe(backendPostgres, "put_venue", time.Now(), &err)
	if err = checkVenue(row); err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO venues (id, latitude, longitude) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET latitude = EXCLUDED.latitude, longitude = EXCLUDED.longitude`,
		row.ID, row.Latitude, row.Longitude)
	return pgErr(err)
}

// VenuePage returns venues ordered by id.
func (s *PostgresStore) VenuePage(ctx context.Context, offset, limit int) (rows []VenueRow, err error) {
	defer observe(backendPostgres, "venue_page", time.Now(), &err)
	if err = checkPage(offset, limit); err != nil {
		return nil, err
	}
	res, err := s.pool.Query(ctx,
		`SELECT id, latitude, longitude FROM venues ORDER BY id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, pgErr(err)
	}
	rows, err = pgx.CollectRows(res, func(r pgx.CollectableRow) (VenueRow, error) {
		var v VenueRow
		err := r.Scan(&v.ID, &v.Latitude, &v.Longitude)
		return v, err
	})
	if err != nil {
		return nil, pgErr(err)
	}
	return rows, nil
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func saveUser(ctx context.Context, q querier, e stats.UserStatEntry) error {
	_, err := q.Exec(ctx, `
		INSERT INTO user_stats (user_id, total, canceled, expired) VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET total = EXCLUDED.total, canceled = EXCLUDED.canceled, expired = EXCLUDED.expired, updated_at = now()`,
		e.User, e.Total, e.Canceled, e.Expired)
	return pgErr(err)
}

func saveVenue(ctx context.Context, q querier, e stats.VenueStatEntry) error { //nolint:gocritic // hugeParam: encoded as is
	e = e.Clone()
	days, err := json.Marshal(e.Days)
	if err != nil {
		return fmt.Errorf("encode days of %s: %w", e.Venue, err)
	}
	turns, err := json.Marshal(e.Turns)
	if err != nil {
		return fmt.Errorf("encode turns of %s: %w", e.Venue, err)
	}
	_, err = q.Exec(ctx, `
		INSERT INTO venue_stats (venue_id, total, canceled, expired, mean_people_served, days, turns)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7::jsonb)
		ON CONFLICT (venue_id) DO UPDATE
		SET total = EXCLUDED.total, canceled = EXCLUDED.canceled, expired = EXCLUDED.expired,
		    mean_people_served = EXCLUDED.mean_people_served, days = EXCLUDED.days,
		    turns = EXCLUDED.turns, updated_at = now()`,
		e.Venue, e.Total, e.Canceled, e.Expired, e.MeanPeopleServed, string(days), string(turns))
	return pgErr(err)
}

// pgErr classifies err. Server-reported errors are passed through; anything
// else means the database could not be reached.
func pgErr(err error) error {
	if err == nil {
		return nil
	}
	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		return fmt.Errorf("postgres: %w", err)
	}
	return unavailable("postgres", err)
}
