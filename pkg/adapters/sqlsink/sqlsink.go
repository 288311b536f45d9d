// Package sqlsink stores analytics events and user profile properties in
// PostgreSQL (lib/pq) or SQLite (go-sqlite3).
package sqlsink

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/beacon/pkg/analytics"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// AnonymousUser is stored as user_id before a user ID is known
const AnonymousUser = "anonymous"

// Config configures the database connection
type Config struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// Event is a stored analytics event
type Event struct {
	ID           string
	Name         string
	UserID       string
	Properties   analytics.Properties
	OutOfSession bool
	CreatedAt    time.Time
}

// Sink is an EventLogger and UserDataDirector writing to SQL tables
type Sink struct {
	db      *sql.DB
	dialect Dialect
	log     logrus.FieldLogger
	now     func() time.Time

	mu     sync.RWMutex
	userID string

	failures atomic.Int64
}

// Open opens the database named by cfg, verifies it and creates the tables
func Open(ctx context.Context, cfg Config, log logrus.FieldLogger) (*Sink, error) {
	dialect, err := ParseDialect(cfg.Driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(string(dialect), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dialect == SQLite {
		// each connection to an in-memory database is a separate database
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sink, err := New(ctx, db, dialect, log)
	if err != nil {
		db.Close()
		return nil, err
	}
	return sink, nil
}

// New wraps an open database and ensures the analytics tables exist
func New(ctx context.Context, db *sql.DB, dialect Dialect, log logrus.FieldLogger) (*Sink, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if log == nil {
		log = logrus.New()
	}

	s := &Sink{
		db:      db,
		dialect: dialect,
		log:     log.WithField("component", "sqlsink"),
		now:     func() time.Time { return time.Now().UTC() },
	}

	if _, err := db.ExecContext(ctx, dialect.schema()); err != nil {
		return nil, fmt.Errorf("failed to ensure analytics tables: %w", err)
	}

	return s, nil
}

// Close closes the underlying database
func (s *Sink) Close() error {
	return s.db.Close()
}

// Failures returns how many writes have failed
func (s *Sink) Failures() int64 {
	return s.failures.Load()
}

func (s *Sink) Configure(ctx context.Context) {}

func (s *Sink) ConfigureUser(ctx context.Context, userID string) {
	s.SetUserID(ctx, userID)
}

func (s *Sink) SetUserID(ctx context.Context, userID string) {
	s.mu.Lock()
	s.userID = userID
	s.mu.Unlock()
}

func (s *Sink) LogEvent(ctx context.Context, name string) {
	s.LogEventWithProperties(ctx, name, nil, false)
}

func (s *Sink) LogEventWithProperties(ctx context.Context, name string, props analytics.Properties, outOfSession bool) {
	var propsJSON *string
	if len(props) > 0 {
		data, err := json.Marshal(props)
		if err != nil {
			s.fail("log_event", err)
			return
		}
		str := string(data)
		propsJSON = &str
	}

	query := s.dialect.rebind(`
		INSERT INTO analytics_events (id, name, user_id, properties, out_of_session, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)

	_, err := s.db.ExecContext(ctx, query,
		uuid.New().String(), name, s.currentUser(), propsJSON, outOfSession, s.now())
	if err != nil {
		s.fail("log_event", err)
	}
}

// SetUserProperties upserts every property in one transaction
func (s *Sink) SetUserProperties(ctx context.Context, props analytics.Properties) {
	if len(props) == 0 {
		return
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for _, name := range props.Keys() {
			if err := s.upsert(ctx, tx, name, analytics.FormatValue(props[name]), analytics.Mutable); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.fail("set_user_properties", err)
	}
}

func (s *Sink) ClearUserProperties(ctx context.Context) {
	query := s.dialect.rebind(`DELETE FROM analytics_user_properties WHERE user_id = ?`)
	if _, err := s.db.ExecContext(ctx, query, s.currentUser()); err != nil {
		s.fail("clear_user_properties", err)
	}
}

// Set upserts a property. An Immutable Set keeps an existing value and locks
// it; locked rows are never updated by later writes.
func (s *Sink) Set(ctx context.Context, name string, value any, mutability analytics.Mutability) {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		return s.upsert(ctx, tx, name, analytics.FormatValue(value), mutability)
	})
	if err != nil {
		s.fail("set", err)
	}
}

// Add reads the current value (zero when absent) and writes the sum
func (s *Sink) Add(ctx context.Context, name string, delta any) {
	d, ok := analytics.ToFloat64(delta)
	if !ok {
		s.fail("add", fmt.Errorf("non-numeric delta %T", delta))
		return
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		query := s.dialect.rebind(`SELECT value FROM analytics_user_properties WHERE user_id = ? AND name = ?`)

		var current float64
		var raw string
		err := tx.QueryRowContext(ctx, query, s.currentUser(), name).Scan(&raw)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("failed to read property: %w", err)
		default:
			current, err = strconv.ParseFloat(raw, 64)
			if err != nil {
				return fmt.Errorf("property %q is not numeric: %w", name, err)
			}
		}

		return s.upsert(ctx, tx, name, analytics.FormatValue(current+d), analytics.Mutable)
	})
	if err != nil {
		s.fail("add", err)
	}
}

func (s *Sink) Unset(ctx context.Context, name string) {
	query := s.dialect.rebind(`DELETE FROM analytics_user_properties WHERE user_id = ? AND name = ?`)
	if _, err := s.db.ExecContext(ctx, query, s.currentUser(), name); err != nil {
		s.fail("unset", err)
	}
}

// Profile returns the stored properties of userID (the current user when empty)
func (s *Sink) Profile(ctx context.Context, userID string) (map[string]string, error) {
	if userID == "" {
		userID = s.currentUser()
	}
	query := s.dialect.rebind(`SELECT name, value FROM analytics_user_properties WHERE user_id = ?`)
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query profile: %w", err)
	}
	defer rows.Close()

	profile := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("failed to scan property: %w", err)
		}
		profile[name] = value
	}
	return profile, rows.Err()
}

// Events returns the most recent events of userID, newest first.
// A non-positive limit returns every event.
func (s *Sink) Events(ctx context.Context, userID string, limit int) ([]Event, error) {
	query := `
		SELECT id, name, user_id, properties, out_of_session, created_at
		FROM analytics_events
		WHERE user_id = ?
		ORDER BY created_at DESC
	`
	args := []any{userID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var propsJSON sql.NullString
		if err := rows.Scan(&e.ID, &e.Name, &e.UserID, &propsJSON, &e.OutOfSession, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Properties = analytics.Properties{}
		if propsJSON.Valid && propsJSON.String != "" {
			props, err := analytics.Encode(jsoniter.RawMessage(propsJSON.String))
			if err != nil {
				return nil, fmt.Errorf("failed to decode properties of event %s: %w", e.ID, err)
			}
			e.Properties = props
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *Sink) upsert(ctx context.Context, tx *sql.Tx, name, value string, mutability analytics.Mutability) error {
	// rows written as immutable are never updated
	conflict := `DO UPDATE SET value = excluded.value, immutable = excluded.immutable, updated_at = excluded.updated_at
		WHERE NOT analytics_user_properties.immutable`
	if mutability == analytics.Immutable {
		// keep the stored value, lock it
		conflict = `DO UPDATE SET immutable = TRUE`
	}
	query := s.dialect.rebind(`
		INSERT INTO analytics_user_properties (user_id, name, value, immutable, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, name) ` + conflict)

	_, err := tx.ExecContext(ctx, query,
		s.currentUser(), name, value, mutability == analytics.Immutable, s.now())
	if err != nil {
		return fmt.Errorf("failed to upsert property %q: %w", name, err)
	}
	return nil
}

func (s *Sink) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.log.WithError(rbErr).Warn("rollback failed")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Sink) fail(op string, err error) {
	s.failures.Add(1)
	s.log.WithError(err).WithField("operation", op).Error("sql sink operation failed")
}

func (s *Sink) currentUser() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.userID == "" {
		return AnonymousUser
	}
	return s.userID
}

var (
	_ analytics.EventLogger      = (*Sink)(nil)
	_ analytics.UserDataDirector = (*Sink)(nil)
)
