/*
errors.go - Centralized error types for the facility engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers classify with errors.Is / errors.As; the HTTP layer maps
  categories to status codes through the helpers at the bottom.

ERROR CATEGORIES:
  1. Lookup errors - NotFound, invalid scanned code
  2. Eligibility errors - Denied(reason), never retried
  3. Custody errors - locker and reservation conflicts
  4. Dependency errors - external lookups that failed or timed out

USAGE:
  if errors.Is(err, facility.ErrSlotTaken) {
      // re-query availability, offer another kiosk
  }

  var denied *facility.DeniedError
  if errors.As(err, &denied) {
      log.Printf("denied: %s", denied.Reason)
  }

SEE ALSO:
  - store.go: stores return these sentinels for constraint violations
  - api/handlers.go: maps them to HTTP status codes
*/
package facility

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when an identifier resolves to nothing.
	ErrNotFound = errors.New("not found")

	// ErrInvalidCode is returned for an empty or malformed scanned identifier.
	ErrInvalidCode = errors.New("invalid identifier")

	// ErrInvalidInput is returned when a request fails validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDenied is the hard eligibility failure. See DeniedError.
	ErrDenied = errors.New("access denied")

	// ErrLockerUnavailable is returned when a locker is not available for assignment.
	ErrLockerUnavailable = errors.New("locker unavailable")

	// ErrPersonAlreadyHasLocker enforces one open locker usage per person.
	ErrPersonAlreadyHasLocker = errors.New("person already holds a locker")

	// ErrAlreadyClosed is returned when releasing a usage that was already released.
	ErrAlreadyClosed = errors.New("usage already closed")

	// ErrLockerInUse is returned by admin operations on an occupied locker.
	ErrLockerInUse = errors.New("locker is occupied")

	// ErrInvalidAmount is returned for negative fine amounts or prices.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrReservationClosed is returned when the weekly booking window is not open.
	ErrReservationClosed = errors.New("reservations are closed")

	// ErrSlotTaken is returned when (kiosk, date) already has an active reservation.
	ErrSlotTaken = errors.New("slot already taken")

	// ErrDuplicateBooking is returned when a person may hold only one active reservation.
	ErrDuplicateBooking = errors.New("person already holds an active reservation")

	// ErrDateOutOfRange is returned for dates outside today..today+maxAdvanceDays.
	ErrDateOutOfRange = errors.New("date outside bookable range")

	// ErrKioskInactive is returned when booking a kiosk that is switched off.
	ErrKioskInactive = errors.New("kiosk is inactive")

	// ErrNotActive is returned when cancelling or using a reservation that is no longer active.
	ErrNotActive = errors.New("reservation is not active")

	// ErrInvalidTransition is returned when a status change is not allowed.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrDuplicateNumber is returned when a locker or kiosk number is already in use.
	ErrDuplicateNumber = errors.New("number already in use")

	// ErrConcurrentModification is returned when a guarded write lost a race.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrDependencyUnavailable is returned when an external lookup failed or
	// timed out. Eligibility fails closed on it.
	ErrDependencyUnavailable = errors.New("dependency unavailable")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// DeniedError is a hard eligibility failure with the reason shown to the operator.
type DeniedError struct {
	Reason string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("access denied: %s", e.Reason)
}

func (e *DeniedError) Unwrap() error {
	return ErrDenied
}

// DependencyError wraps a failed external lookup (directory, billing, exams).
type DependencyError struct {
	Dependency string
	Err        error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Dependency, e.Err)
}

func (e *DependencyError) Unwrap() []error {
	return []error{ErrDependencyUnavailable, e.Err}
}

// SlotTakenError names the contested slot so callers can re-query availability.
type SlotTakenError struct {
	KioskID KioskID
	Date    Date
}

func (e *SlotTakenError) Error() string {
	return fmt.Sprintf("kiosk %s already reserved on %s", e.KioskID, e.Date)
}

func (e *SlotTakenError) Unwrap() error {
	return ErrSlotTaken
}

// WindowClosedError tells the caller when booking opens next.
type WindowClosedError struct {
	NextOpening time.Time
}

func (e *WindowClosedError) Error() string {
	return fmt.Sprintf("reservations are closed until %s", e.NextOpening.Format("Mon 2006-01-02 15:04"))
}

func (e *WindowClosedError) Unwrap() error {
	return ErrReservationClosed
}

// NumberConflictError lists locker or kiosk numbers that already exist.
type NumberConflictError struct {
	Numbers []int
}

func (e *NumberConflictError) Error() string {
	parts := make([]string, len(e.Numbers))
	for i, n := range e.Numbers {
		parts[i] = fmt.Sprint(n)
	}
	return fmt.Sprintf("numbers already in use: %s", strings.Join(parts, ", "))
}

func (e *NumberConflictError) Unwrap() error {
	return ErrDuplicateNumber
}

// ValidationError reports a single invalid field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the same call might succeed on retry.
// SlotTaken is deliberately excluded: retry a different slot instead.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification) ||
		errors.Is(err, ErrDependencyUnavailable)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInvalidCode) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrDateOutOfRange)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict returns true if the error is a custody or state conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrLockerUnavailable) ||
		errors.Is(err, ErrPersonAlreadyHasLocker) ||
		errors.Is(err, ErrAlreadyClosed) ||
		errors.Is(err, ErrLockerInUse) ||
		errors.Is(err, ErrReservationClosed) ||
		errors.Is(err, ErrSlotTaken) ||
		errors.Is(err, ErrDuplicateBooking) ||
		errors.Is(err, ErrKioskInactive) ||
		errors.Is(err, ErrNotActive) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrDuplicateNumber) ||
		errors.Is(err, ErrConcurrentModification)
}
