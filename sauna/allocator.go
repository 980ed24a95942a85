/*
Package sauna manages sauna locker custody and the fines it produces.

PURPOSE:
  A member at the sauna desk takes a locker key and returns it on the way
  out. Each custody period is a LockerUsage. Losing the key sends the
  locker to maintenance and raises a fine.

STATE MACHINE (per locker):
  available --Assign--> occupied --Release(key returned)--> available
                                 \--Release(key lost)-----> maintenance
  maintenance --SetStatus--> available (admin, after the lock is replaced)

INVARIANTS:
  - At most one open usage per locker and per person, enforced by the store
  - Locker status only changes inside the transaction that opens or closes
    the usage, so status and usages cannot drift apart
  - A release closes the usage, frees the locker and records the fine
    together or not at all

SEE ALSO:
  - penalties.go: fine ledger
  - facility/store.go: constraint-backed claims
*/
package sauna

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/club-engine/access"
	"github.com/warp/club-engine/facility"
	"github.com/warp/club-engine/metrics"
)

const (
	maxLockersPerBatch = 100
	maxLockerNumber    = 9999
	lockerCodePrefix   = "SAUNA-LKR-"
)

// DefaultFine is charged for a lost key when the operator gives no amount.
var DefaultFine = decimal.RequireFromString("50.00")

// Eligibility is satisfied by *access.Evaluator.
type Eligibility interface {
	Evaluate(ctx context.Context, person facility.ResolvedPerson, purpose access.Purpose) (access.Verdict, error)
}

// =============================================================================
// ALLOCATOR
// =============================================================================

type Allocator struct {
	store       facility.Store
	penalties   *Penalties
	clock       facility.Clock
	eligibility Eligibility
	defaultFine decimal.Decimal
	logger      *zap.Logger
}

type Option func(*Allocator)

// WithEligibility makes Assign require a gate-pass verdict.
func WithEligibility(e Eligibility) Option {
	return func(a *Allocator) { a.eligibility = e }
}

func WithDefaultFine(amount decimal.Decimal) Option {
	return func(a *Allocator) { a.defaultFine = amount }
}

func WithLogger(l *zap.Logger) Option {
	return func(a *Allocator) { a.logger = l }
}

func NewAllocator(store facility.Store, penalties *Penalties, clock facility.Clock, opts ...Option) *Allocator {
	a := &Allocator{
		store:       store,
		penalties:   penalties,
		clock:       clock,
		defaultFine: DefaultFine,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Allocator) Penalties() *Penalties { return a.penalties }

// Assign hands lockerID's key to person.
func (a *Allocator) Assign(ctx context.Context, person facility.ResolvedPerson, lockerID facility.LockerID, operatorID string) (facility.LockerUsage, error) {
	if a.eligibility != nil {
		v, err := a.eligibility.Evaluate(ctx, person, access.PurposeGatePass)
		if err != nil {
			return facility.LockerUsage{}, err
		}
		if !v.Allowed {
			metrics.LockerEvents.WithLabelValues("rejected").Inc()
			return facility.LockerUsage{}, v.Err()
		}
	}

	var usage facility.LockerUsage
	err := a.store.WithTx(ctx, func(tx facility.Tx) error {
		locker, err := tx.GetLocker(ctx, lockerID)
		if err != nil {
			return err
		}
		if locker.Status != facility.LockerAvailable {
			return fmt.Errorf("locker %d is %s: %w", locker.Number, locker.Status, facility.ErrLockerUnavailable)
		}

		open, err := tx.OpenUsageForPerson(ctx, person.ID)
		if err != nil {
			return err
		}
		if open != nil {
			return fmt.Errorf("person %s holds locker %d: %w", person.ID, open.LockerNumber, facility.ErrPersonAlreadyHasLocker)
		}

		err = tx.SetLockerStatus(ctx, lockerID, facility.LockerAvailable, facility.LockerOccupied)
		if errors.Is(err, facility.ErrConcurrentModification) {
			return fmt.Errorf("locker %d: %w", locker.Number, facility.ErrLockerUnavailable)
		}
		if err != nil {
			return err
		}

		usage = facility.LockerUsage{
			ID:           facility.UsageID(uuid.NewString()),
			LockerID:     locker.ID,
			LockerNumber: locker.Number,
			PersonID:     person.ID,
			PersonKind:   person.Kind,
			OperatorID:   operatorID,
			EnteredAt:    a.clock.Now(),
		}
		return tx.InsertUsage(ctx, usage)
	})
	if err != nil {
		if facility.IsConflict(err) {
			metrics.LockerEvents.WithLabelValues("rejected").Inc()
		}
		return facility.LockerUsage{}, err
	}

	metrics.LockerEvents.WithLabelValues("assigned").Inc()
	a.logger.Info("locker assigned",
		zap.Int("locker", usage.LockerNumber),
		zap.String("person_id", string(usage.PersonID)),
		zap.String("usage_id", string(usage.ID)))
	return usage, nil
}

// ReleaseResult is the closed usage and, when the key was lost, its fine.
type ReleaseResult struct {
	Usage facility.LockerUsage
	Fine  *facility.Fine
}

// Release closes an open usage. When keyLost is set the locker goes to
// maintenance and one fine is recorded, for fineAmount or the default when
// nil. fineAmount is ignored when the key came back.
func (a *Allocator) Release(ctx context.Context, usageID facility.UsageID, keyLost bool, fineAmount *decimal.Decimal) (ReleaseResult, error) {
	if fineAmount != nil && fineAmount.IsNegative() {
		return ReleaseResult{}, fmt.Errorf("fine amount %s: %w", fineAmount, facility.ErrInvalidAmount)
	}

	var result ReleaseResult
	err := a.store.WithTx(ctx, func(tx facility.Tx) error {
		usage, err := tx.GetUsage(ctx, usageID)
		if err != nil {
			return err
		}
		if !usage.IsOpen() {
			return fmt.Errorf("usage %s: %w", usageID, facility.ErrAlreadyClosed)
		}

		var amount *decimal.Decimal
		next := facility.LockerAvailable
		if keyLost {
			amt := a.defaultFine
			if fineAmount != nil {
				amt = *fineAmount
			}
			amount = &amt
			next = facility.LockerMaintenance
		}

		now := a.clock.Now()
		if err := tx.CloseUsage(ctx, usageID, now, keyLost, amount); err != nil {
			return err
		}
		if err := tx.SetLockerStatus(ctx, usage.LockerID, facility.LockerOccupied, next); err != nil {
			return err
		}

		if keyLost {
			fine, err := a.penalties.Record(ctx, tx, usageID, usage.PersonID, *amount,
				fmt.Sprintf("lost key – locker %d", usage.LockerNumber))
			if err != nil {
				return err
			}
			result.Fine = &fine
		}

		closed, err := tx.GetUsage(ctx, usageID)
		if err != nil {
			return err
		}
		result.Usage = *closed
		return nil
	})
	if err != nil {
		return ReleaseResult{}, err
	}

	event := "released"
	if keyLost {
		event = "key_lost"
		metrics.FinesRecorded.Inc()
	}
	metrics.LockerEvents.WithLabelValues(event).Inc()
	a.logger.Info("locker released",
		zap.Int("locker", result.Usage.LockerNumber),
		zap.String("usage_id", string(usageID)),
		zap.Bool("key_lost", keyLost))
	return result, nil
}

// =============================================================================
// ADMIN
// =============================================================================

// AddLockers creates quantity lockers numbered from start. Nothing is
// created if any number already exists.
func (a *Allocator) AddLockers(ctx context.Context, start, quantity int) ([]facility.Locker, error) {
	if start < 1 || start > maxLockerNumber {
		return nil, facility.Invalid("start", "must be between 1 and %d", maxLockerNumber)
	}
	if quantity < 1 || quantity > maxLockersPerBatch {
		return nil, facility.Invalid("quantity", "must be between 1 and %d", maxLockersPerBatch)
	}
	if start+quantity-1 > maxLockerNumber {
		return nil, facility.Invalid("quantity", "last number would exceed %d", maxLockerNumber)
	}

	var created []facility.Locker
	err := a.store.WithTx(ctx, func(tx facility.Tx) error {
		existing, err := tx.ListLockers(ctx)
		if err != nil {
			return err
		}
		taken := make(map[int]bool, len(existing))
		for _, l := range existing {
			taken[l.Number] = true
		}

		var conflicts []int
		for n := start; n < start+quantity; n++ {
			if taken[n] {
				conflicts = append(conflicts, n)
			}
		}
		if len(conflicts) > 0 {
			return &facility.NumberConflictError{Numbers: conflicts}
		}

		for n := start; n < start+quantity; n++ {
			l := facility.Locker{
				ID:     facility.LockerID(uuid.NewString()),
				Number: n,
				Code:   fmt.Sprintf("%s%d", lockerCodePrefix, n),
				Status: facility.LockerAvailable,
			}
			if err := tx.InsertLocker(ctx, l); err != nil {
				return err
			}
			created = append(created, l)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	a.logger.Info("lockers added", zap.Int("start", start), zap.Int("quantity", quantity))
	return created, nil
}

// SetStatus toggles a locker between available and maintenance. Occupied is
// only ever set by Assign.
func (a *Allocator) SetStatus(ctx context.Context, id facility.LockerID, to facility.LockerStatus) (facility.Locker, error) {
	if to != facility.LockerAvailable && to != facility.LockerMaintenance {
		return facility.Locker{}, facility.Invalid("status", "must be available or maintenance")
	}

	var locker facility.Locker
	err := a.store.WithTx(ctx, func(tx facility.Tx) error {
		l, err := tx.GetLocker(ctx, id)
		if err != nil {
			return err
		}
		if l.Status == facility.LockerOccupied {
			return fmt.Errorf("locker %d: %w", l.Number, facility.ErrLockerInUse)
		}
		locker = *l
		if l.Status == to {
			return nil
		}
		if !facility.ValidLockerTransition(l.Status, to) {
			return fmt.Errorf("locker %d %s -> %s: %w", l.Number, l.Status, to, facility.ErrInvalidTransition)
		}
		if err := tx.SetLockerStatus(ctx, id, l.Status, to); err != nil {
			return err
		}
		locker.Status = to
		return nil
	})
	return locker, err
}

func (a *Allocator) RemoveLocker(ctx context.Context, id facility.LockerID) error {
	return a.store.WithTx(ctx, func(tx facility.Tx) error {
		l, err := tx.GetLocker(ctx, id)
		if err != nil {
			return err
		}
		if l.Status == facility.LockerOccupied {
			return fmt.Errorf("locker %d: %w", l.Number, facility.ErrLockerInUse)
		}
		return tx.DeleteLocker(ctx, id)
	})
}

func (a *Allocator) ListLockers(ctx context.Context) ([]facility.Locker, error) {
	return a.store.ListLockers(ctx)
}

func (a *Allocator) OpenUsages(ctx context.Context) ([]facility.LockerUsage, error) {
	return a.store.ListOpenUsages(ctx)
}

type Summary struct {
	Total       int
	Available   int
	Occupied    int
	Maintenance int
}

func (a *Allocator) Summary(ctx context.Context) (Summary, error) {
	lockers, err := a.store.ListLockers(ctx)
	if err != nil {
		return Summary{}, err
	}
	var s Summary
	for _, l := range lockers {
		s.Total++
		switch l.Status {
		case facility.LockerAvailable:
			s.Available++
		case facility.LockerOccupied:
			s.Occupied++
		case facility.LockerMaintenance:
			s.Maintenance++
		}
	}
	metrics.LockersByStatus.WithLabelValues(string(facility.LockerAvailable)).Set(float64(s.Available))
	metrics.LockersByStatus.WithLabelValues(string(facility.LockerOccupied)).Set(float64(s.Occupied))
	metrics.LockersByStatus.WithLabelValues(string(facility.LockerMaintenance)).Set(float64(s.Maintenance))
	return s, nil
}
