/*
Package facility provides the shared model of the club's physical-operations engine.

PURPOSE:
  Gate access, sauna locker custody and kiosk reservations all talk about the
  same things: people scanned at a desk, physical resources held for a while,
  and money owed when something goes wrong. This package holds those types,
  the civil date/time helpers, the error taxonomy and the store contract, so
  the access, sauna and kiosk packages never import each other's internals.

KEY CONCEPTS IN THIS FILE (types.go):
  - Person / ResolvedPerson: read-only view of the external member directory
  - AccessRecord: append-only gate event (entry or exit)
  - Locker / LockerUsage / Fine: sauna custody and its penalties
  - Kiosk / Reservation / ReservationConfig: weekly kiosk booking

DESIGN PRINCIPLES:
  1. Immutability: AccessRecord and Fine are never edited (Fine.Status aside)
  2. Precision: money is decimal.Decimal, never float64
  3. Type Safety: distinct ID types keep lockers, kiosks and people apart
  4. Reproducibility: reservations snapshot what a receipt needs

SEE ALSO:
  - time.go: Date, TimeOfDay and Clock
  - errors.go: sentinel and structured errors
  - store.go: persistence contract
  - transitions.go: allowed status changes
*/
package facility

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type PersonID string
type AccessRecordID string
type LockerID string
type UsageID string
type FineID string
type KioskID string
type ReservationID string

// =============================================================================
// PEOPLE - Owned by the external directory, read-only here
// =============================================================================

type PersonKind string

const (
	KindMember    PersonKind = "member"
	KindDependent PersonKind = "dependent"
)

type PersonStatus string

const (
	StatusActive    PersonStatus = "active"
	StatusInactive  PersonStatus = "inactive"
	StatusSuspended PersonStatus = "suspended"
)

// Person is a member or a dependent as seen by the engine.
// GuarantorID is set only for dependents.
type Person struct {
	ID           PersonID
	Kind         PersonKind
	Status       PersonStatus
	GuarantorID  PersonID
	Name         string
	MemberNumber string
}

func (p Person) IsActive() bool { return p.Status == StatusActive }
func (p Person) IsDependent() bool { return p.Kind == KindDependent }

// ResolvedPerson is a scanned person plus, for dependents, the member who
// vouches for them. Guarantor is nil for members and for dependents whose
// guarantor could not be found.
type ResolvedPerson struct {
	Person
	Guarantor *Person
}

// BillingSubject is whose standing decides the person's billing advisories.
func (rp ResolvedPerson) BillingSubject() PersonID {
	if rp.IsDependent() && rp.GuarantorID != "" {
		return rp.GuarantorID
	}
	return rp.ID
}

// DisplayMemberNumber is the title number printed on receipts. Dependents
// carry their guarantor's number.
func (rp ResolvedPerson) DisplayMemberNumber() string {
	if rp.MemberNumber != "" {
		return rp.MemberNumber
	}
	if rp.Guarantor != nil {
		return rp.Guarantor.MemberNumber
	}
	return ""
}

// =============================================================================
// GATE ACCESS
// =============================================================================

type Direction string

const (
	DirectionEntry Direction = "entry"
	DirectionExit  Direction = "exit"
)

// AccessRecord is one pass through a gate. Seq counts records per
// (person, location) starting at 1 and is unique for that pair.
type AccessRecord struct {
	ID         AccessRecordID
	PersonID   PersonID
	PersonKind PersonKind
	Location   string
	Direction  Direction
	Timestamp  time.Time
	OperatorID string
	Seq        int64
}

// AccessFilter narrows access history queries. Zero values mean "any".
type AccessFilter struct {
	PersonID PersonID
	Location string
	From     time.Time
	To       time.Time
	Limit    int
}

// =============================================================================
// SAUNA LOCKERS
// =============================================================================

type LockerStatus string

const (
	LockerAvailable   LockerStatus = "available"
	LockerOccupied    LockerStatus = "occupied"
	LockerMaintenance LockerStatus = "maintenance"
)

type Locker struct {
	ID     LockerID
	Number int
	Code   string
	Status LockerStatus
}

// LockerUsage is one custody period of a locker key. It is open while
// ExitedAt is nil and is closed exactly once.
type LockerUsage struct {
	ID           UsageID
	LockerID     LockerID
	LockerNumber int
	PersonID     PersonID
	PersonKind   PersonKind
	OperatorID   string
	EnteredAt    time.Time
	ExitedAt     *time.Time
	KeyReturned  *bool
	KeyLost      *bool
	FineAmount   *decimal.Decimal
}

func (u LockerUsage) IsOpen() bool { return u.ExitedAt == nil }

// =============================================================================
// FINES
// =============================================================================

type FineStatus string

const (
	FinePending FineStatus = "pending"
	FinePaid    FineStatus = "paid"
	FineWaived  FineStatus = "waived"
)

type Fine struct {
	ID        FineID
	UsageID   UsageID
	PersonID  PersonID
	Amount    decimal.Decimal
	Reason    string
	Status    FineStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

type FineFilter struct {
	PersonID PersonID
	Status   FineStatus
}

// =============================================================================
// KIOSKS & RESERVATIONS
// =============================================================================

type Kiosk struct {
	ID            KioskID
	Number        int
	Name          string
	Capacity      int
	Active        bool
	PriceOverride *decimal.Decimal
}

// Price is the override when set, else the configured default.
func (k Kiosk) Price(defaultPrice decimal.Decimal) decimal.Decimal {
	if k.PriceOverride != nil {
		return *k.PriceOverride
	}
	return defaultPrice
}

type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "active"
	ReservationUsed      ReservationStatus = "used"
	ReservationExpired   ReservationStatus = "expired"
	ReservationCancelled ReservationStatus = "cancelled"
)

// Reservation holds one kiosk for one calendar day. KioskNumber, PersonName
// and MemberNumber are copied at creation so a receipt can be rebuilt from
// this row alone.
type Reservation struct {
	ID           ReservationID
	KioskID      KioskID
	KioskNumber  int
	PersonID     PersonID
	PersonName   string
	MemberNumber string
	Date         Date
	Cutoff       TimeOfDay
	Status       ReservationStatus
	Amount       decimal.Decimal
	Notes        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type ReservationFilter struct {
	KioskID  KioskID
	PersonID PersonID
	Date     *Date
	Status   ReservationStatus
	Limit    int
}

// ReservationConfig is the singleton that drives kiosk booking. Booking
// opens at OpeningWeekday/OpeningTime and stays open until the next cycle
// begins; see kiosk.ComputeWindow for how CycleStartWeekday places that.
type ReservationConfig struct {
	OpeningWeekday         time.Weekday
	OpeningTime            TimeOfDay
	CycleStartWeekday      time.Weekday
	DailyCutoffTime        TimeOfDay
	MaxAdvanceDays         int
	DefaultPrice           decimal.Decimal
	AllowMultiplePerPerson bool
}

// DefaultReservationConfig mirrors what the front desk ran with before the
// config screen existed: Friday 09:00 opening, 09:00 cutoff, a week ahead.
// The cycle starts on the opening weekday, so the window runs from one
// opening to the next.
func DefaultReservationConfig() ReservationConfig {
	return ReservationConfig{
		OpeningWeekday:    time.Friday,
		OpeningTime:       TimeOfDay{Hour: 9},
		CycleStartWeekday: time.Friday,
		DailyCutoffTime:   TimeOfDay{Hour: 9},
		MaxAdvanceDays:    7,
		DefaultPrice:      decimal.Zero,
	}
}
