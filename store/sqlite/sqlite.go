/*
Package sqlite provides a SQLite-backed implementation of facility.Store.

PURPOSE:
  Persists gate access, locker custody, fines, kiosks and reservations.
  All exclusivity rules live in the schema as (partial) unique indexes, so
  concurrent request handlers are kept honest by the database rather than
  by locks in this process.

KEY TABLES:
  access_records:     Append-only gate log, unique (person_id, location, seq)
  lockers:            Sauna lockers and their status
  locker_usages:      Custody periods, one open row per locker and per person
  fines:              Lost-key penalties, one per usage
  kiosks:             Bookable kiosks
  reservations:       Kiosk bookings, one active row per (kiosk, date)
  reservation_config: Singleton booking configuration

INDEXES:
  Constraint-backed claims (see facility/store.go):
  - idx_access_person_location_seq: entry/exit flip cannot be doubled
  - idx_usages_open_locker / idx_usages_open_person: locker custody
  - idx_reservations_active_slot: kiosk slot exclusivity

CONCURRENCY:
  Transactions are opened with _txlock=immediate so the write lock is taken
  at BEGIN, and the pool holds a single connection. Reads issued through a
  Tx use that Tx; nothing inside WithTx may touch the Store directly.

MIGRATION:
  Versioned SQL files under migrations/ are embedded and applied on New(),
  one transaction per file, tracked in schema_migrations.

USAGE:
  store, err := sqlite.New("./data/club.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - facility/store.go: Interface definitions
  - facility/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/club-engine/facility"
)

var (
	_ facility.Store = (*Store)(nil)
	_ facility.Tx    = (*conn)(nil)
)

// Store implements facility.Store using SQLite.
type Store struct {
	*conn
	db *sql.DB
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn runs every query against q, which is the pool outside a transaction
// and the *sql.Tx inside one.
type conn struct {
	q querier
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	return Open(context.Background(), dbPath)
}

// Open is New with a context for the ping and migrations.
func Open(ctx context.Context, dbPath string) (*Store, error) {
	dsn := dbPath + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: ":memory:" databases are per connection, and SQLite
	// has a single writer anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{conn: &conn{q: db}, db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the pool for read-only collaborators sharing the file
// (directory.SQL). Never use it inside WithTx.
func (s *Store) DB() *sql.DB {
	return s.db
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx facility.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&conn{q: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// Timestamps are stored as fixed-width UTC text so they sort lexically.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func parseNullDecimal(ns sql.NullString) (*decimal.Decimal, error) {
	if !ns.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(ns.String)
	if err != nil {
		return nil, fmt.Errorf("bad decimal %q: %w", ns.String, err)
	}
	return &d, nil
}

func nullBool(ni sql.NullInt64) *bool {
	if !ni.Valid {
		return nil
	}
	b := ni.Int64 != 0
	return &b
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// expectOne turns "no row matched the guard" into errOnMiss.
func expectOne(res sql.Result, errOnMiss error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return errOnMiss
	}
	return nil
}

// uniqueViolation reports whether err is a UNIQUE constraint failure and,
// if so, the "table.column, ..." list SQLite names in the message.
func uniqueViolation(err error) (string, bool) {
	var se sqlite3.Error
	if !errors.As(err, &se) || se.Code != sqlite3.ErrConstraint {
		return "", false
	}
	if se.ExtendedCode != sqlite3.ErrConstraintUnique && se.ExtendedCode != sqlite3.ErrConstraintPrimaryKey {
		return "", false
	}
	msg := se.Error()
	if i := strings.Index(msg, "failed: "); i >= 0 {
		return msg[i+len("failed: "):], true
	}
	return msg, true
}
