// Package datastore is the SQL-backed appointment store the query monitor
// instruments. Every operation flows through the collector's measurement
// hook, so the store doubles as the reference integration for data-access
// telemetry: reads go through an optional Redis read-through cache whose hits
// surface in query statistics as cached records.
package datastore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	// Database drivers registered for the supported DSNs.
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/redis/go-redis/v9"

	"github.com/Damatnic/astral-core-v7-sub003/internal/logging"
	"github.com/Damatnic/astral-core-v7-sub003/internal/telemetry"
	"github.com/Damatnic/astral-core-v7-sub003/pkg/types"
)

// Appointment is one scheduled session
type Appointment struct {
	ID          string    `json:"id"`
	ClientName  string    `json:"client_name"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// Options configures the store
type Options struct {
	Driver string
	DSN    string

	// CacheAddr enables the read-through cache when non-empty
	CacheAddr     string
	CachePassword string
	CacheDB       int
	CacheTTL      time.Duration
}

// Store wraps a SQL database with query instrumentation and an optional
// read-through cache
type Store struct {
	db        *sql.DB
	collector *telemetry.Collector
	cache     *redis.Client
	ttl       time.Duration
	log       logging.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS appointments (
	id TEXT PRIMARY KEY,
	client_name TEXT NOT NULL,
	scheduled_at TIMESTAMP NOT NULL,
	status TEXT NOT NULL DEFAULT 'scheduled',
	created_at TIMESTAMP NOT NULL
)`

// Open connects to the database, applies the schema, and wires the cache if
// configured. Cache connection failures degrade to uncached reads with a
// logged warning; they are never fatal.
func Open(ctx context.Context, opts Options, collector *telemetry.Collector, log logging.Logger) (*Store, error) {
	if log == nil {
		log = logging.NewNoOpLogger()
	}
	log = log.WithComponent("datastore")

	db, err := sql.Open(opts.Driver, opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening %s datastore: %w", opts.Driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging %s datastore: %w", opts.Driver, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("applying datastore schema: %w", err)
	}

	s := &Store{
		db:        db,
		collector: collector,
		ttl:       opts.CacheTTL,
		log:       log,
	}
	if s.ttl <= 0 {
		s.ttl = time.Minute
	}

	if opts.CacheAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     opts.CacheAddr,
			Password: opts.CachePassword,
			DB:       opts.CacheDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			log.Warn("query cache unavailable, reads will not be cached", "error", err)
			_ = client.Close()
		} else {
			s.cache = client
			log.Info("query cache connected", "addr", opts.CacheAddr)
		}
	}

	return s, nil
}

// CreateAppointment inserts a new appointment and invalidates cached lists
func (s *Store) CreateAppointment(ctx context.Context, appt *Appointment) error {
	if appt.ID == "" {
		return errors.New("appointment id is required")
	}
	if appt.Status == "" {
		appt.Status = "scheduled"
	}
	appt.CreatedAt = time.Now()

	timer := s.collector.StartQuery(
		"INSERT INTO appointments (id, client_name, scheduled_at, status, created_at) VALUES (?, ?, ?, ?, ?)",
		types.OpInsert, "appointments")

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO appointments (id, client_name, scheduled_at, status, created_at) VALUES ($1, $2, $3, $4, $5)",
		appt.ID, appt.ClientName, appt.ScheduledAt, appt.Status, appt.CreatedAt)

	rows := int64(0)
	if err == nil {
		rows, _ = res.RowsAffected()
	}
	timer.Done(rows, err)
	if err != nil {
		return fmt.Errorf("inserting appointment: %w", err)
	}

	s.invalidateLists(ctx)
	return nil
}

// ListAppointments returns up to limit appointments, newest first. Reads go
// through the cache when it is available; hits are recorded as cached
// queries with near-zero duration.
func (s *Store) ListAppointments(ctx context.Context, limit int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 50
	}

	timer := s.collector.StartQuery(
		"SELECT id, client_name, scheduled_at, status, created_at FROM appointments ORDER BY scheduled_at DESC LIMIT ?",
		types.OpRead, "appointments")

	if cached, ok := s.cachedList(ctx, limit); ok {
		timer.MarkCached()
		timer.Done(int64(len(cached)), nil)
		return cached, nil
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, client_name, scheduled_at, status, created_at FROM appointments ORDER BY scheduled_at DESC LIMIT $1",
		limit)
	if err != nil {
		timer.Done(0, err)
		return nil, fmt.Errorf("listing appointments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Appointment
	for rows.Next() {
		var a Appointment
		if err := rows.Scan(&a.ID, &a.ClientName, &a.ScheduledAt, &a.Status, &a.CreatedAt); err != nil {
			timer.Done(int64(len(out)), err)
			return nil, fmt.Errorf("scanning appointment: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		timer.Done(int64(len(out)), err)
		return nil, fmt.Errorf("iterating appointments: %w", err)
	}

	timer.Done(int64(len(out)), nil)
	s.storeList(ctx, limit, out)
	return out, nil
}

// UpdateAppointmentStatus moves an appointment to a new status
func (s *Store) UpdateAppointmentStatus(ctx context.Context, id, status string) error {
	timer := s.collector.StartQuery(
		"UPDATE appointments SET status = ? WHERE id = ?",
		types.OpUpdate, "appointments")

	res, err := s.db.ExecContext(ctx,
		"UPDATE appointments SET status = $1 WHERE id = $2", status, id)

	rows := int64(0)
	if err == nil {
		rows, _ = res.RowsAffected()
	}
	timer.Done(rows, err)
	if err != nil {
		return fmt.Errorf("updating appointment %s: %w", id, err)
	}
	if rows == 0 {
		return fmt.Errorf("appointment %s not found", id)
	}

	s.invalidateLists(ctx)
	return nil
}

// DeleteAppointment removes an appointment
func (s *Store) DeleteAppointment(ctx context.Context, id string) error {
	timer := s.collector.StartQuery(
		"DELETE FROM appointments WHERE id = ?",
		types.OpDelete, "appointments")

	res, err := s.db.ExecContext(ctx, "DELETE FROM appointments WHERE id = $1", id)

	rows := int64(0)
	if err == nil {
		rows, _ = res.RowsAffected()
	}
	timer.Done(rows, err)
	if err != nil {
		return fmt.Errorf("deleting appointment %s: %w", id, err)
	}

	s.invalidateLists(ctx)
	return nil
}

// Close releases the database and cache connections
func (s *Store) Close() error {
	if s.cache != nil {
		_ = s.cache.Close()
	}
	return s.db.Close()
}

func listKey(limit int) string {
	return fmt.Sprintf("appointments:list:%d", limit)
}

func (s *Store) cachedList(ctx context.Context, limit int) ([]Appointment, bool) {
	if s.cache == nil {
		return nil, false
	}
	data, err := s.cache.Get(ctx, listKey(limit)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn("query cache read failed", "error", err)
		}
		return nil, false
	}
	var out []Appointment
	if err := json.Unmarshal(data, &out); err != nil {
		s.log.Warn("discarding undecodable cache entry", "error", err)
		return nil, false
	}
	return out, true
}

func (s *Store) storeList(ctx context.Context, limit int, appts []Appointment) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(appts)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, listKey(limit), data, s.ttl).Err(); err != nil {
		s.log.Warn("query cache write failed", "error", err)
	}
}

func (s *Store) invalidateLists(ctx context.Context) {
	if s.cache == nil {
		return
	}
	iter := s.cache.Scan(ctx, 0, "appointments:list:*", 0).Iterator()
	for iter.Next(ctx) {
		if err := s.cache.Del(ctx, iter.Val()).Err(); err != nil {
			s.log.Warn("query cache invalidation failed", "key", iter.Val(), "error", err)
		}
	}
	if err := iter.Err(); err != nil {
		s.log.Warn("query cache scan failed", "error", err)
	}
}
