/*
store.go - Persistence contract for the facility engine

PURPOSE:
  Defines the interface between custody logic and the database. Every
  mutation runs inside WithTx so that, for example, closing a locker usage,
  freeing the locker and recording the lost-key fine commit together or not
  at all.

KEY INTERFACES:
  Reader: queries, usable inside or outside a transaction
  Writer: guarded writes, only reachable through Tx
  Tx:     Reader + Writer bound to one transaction
  Store:  Reader + WithTx

CONSTRAINT-BACKED CLAIMS:
  Exclusivity is enforced by the store, not by callers holding locks:
  - one active reservation per (kiosk, date)       -> ErrSlotTaken
  - one open usage per locker                      -> ErrLockerUnavailable
  - one open usage per person                      -> ErrPersonAlreadyHasLocker
  - one fine per usage                             -> ErrAlreadyClosed
  - unique (person, location, seq) access records  -> ErrConcurrentModification
  Conditional writes (SetLockerStatus, CloseUsage, TransitionReservation,
  UpdateFineStatus) report a lost race through their error, never by
  silently doing nothing.

IMPLEMENTATIONS:
  - store/sqlite: SQLite with partial unique indexes
  - facility/store: in-memory, for tests and demos

SEE ALSO:
  - errors.go: sentinels returned by implementations
*/
package facility

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// READER
// =============================================================================

// Reader queries. Get* methods return ErrNotFound for unknown IDs.
type Reader interface {
	// LastAccess returns the newest record for (person, location), or nil.
	LastAccess(ctx context.Context, personID PersonID, location string) (*AccessRecord, error)

	// ListAccess returns records newest first.
	ListAccess(ctx context.Context, filter AccessFilter) ([]AccessRecord, error)

	// LatestAccessPerPerson returns the newest record of every person seen at location.
	LatestAccessPerPerson(ctx context.Context, location string) ([]AccessRecord, error)

	// CountAccess counts entries and exits at location with from <= timestamp < to.
	CountAccess(ctx context.Context, location string, from, to time.Time) (entries, exits int, err error)

	GetLocker(ctx context.Context, id LockerID) (*Locker, error)
	ListLockers(ctx context.Context) ([]Locker, error)

	GetUsage(ctx context.Context, id UsageID) (*LockerUsage, error)

	// OpenUsageForPerson returns the person's open usage, or nil.
	OpenUsageForPerson(ctx context.Context, personID PersonID) (*LockerUsage, error)
	ListOpenUsages(ctx context.Context) ([]LockerUsage, error)

	GetFine(ctx context.Context, id FineID) (*Fine, error)
	ListFines(ctx context.Context, filter FineFilter) ([]Fine, error)

	GetKiosk(ctx context.Context, id KioskID) (*Kiosk, error)
	ListKiosks(ctx context.Context) ([]Kiosk, error)

	GetReservation(ctx context.Context, id ReservationID) (*Reservation, error)
	ListReservations(ctx context.Context, filter ReservationFilter) ([]Reservation, error)

	// ReservationConfig returns ErrNotFound until a config has been saved.
	ReservationConfig(ctx context.Context) (ReservationConfig, error)
}

// =============================================================================
// WRITER
// =============================================================================

type Writer interface {
	AppendAccess(ctx context.Context, rec AccessRecord) error

	InsertLocker(ctx context.Context, l Locker) error
	DeleteLocker(ctx context.Context, id LockerID) error

	// SetLockerStatus moves the locker from -> to; ErrConcurrentModification
	// if it was not in from.
	SetLockerStatus(ctx context.Context, id LockerID, from, to LockerStatus) error

	InsertUsage(ctx context.Context, u LockerUsage) error

	// CloseUsage closes an open usage; ErrAlreadyClosed if it was closed.
	CloseUsage(ctx context.Context, id UsageID, exitedAt time.Time, keyLost bool, fineAmount *decimal.Decimal) error

	InsertFine(ctx context.Context, f Fine) error
	UpdateFineStatus(ctx context.Context, id FineID, from, to FineStatus, at time.Time) error

	SaveKiosk(ctx context.Context, k Kiosk) error

	InsertReservation(ctx context.Context, r Reservation) error

	// TransitionReservation moves from -> to; ErrNotActive if it was not in from.
	TransitionReservation(ctx context.Context, id ReservationID, from, to ReservationStatus, at time.Time) error

	// ExpireReservations moves every active reservation dated before today,
	// or dated today with cutoff <= now, to expired. Returns rows changed.
	ExpireReservations(ctx context.Context, today Date, now TimeOfDay, at time.Time) (int, error)

	SaveReservationConfig(ctx context.Context, cfg ReservationConfig) error
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

type Tx interface {
	Reader
	Writer
}

// Store is the engine's persistence. WithTx commits when fn returns nil and
// rolls back otherwise. fn must only use the Tx it is given.
type Store interface {
	Reader
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}
