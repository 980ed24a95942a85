/*
Package kiosk owns kiosk reservations.

PURPOSE:
  Members book a kiosk (barbecue stand) for one calendar day. Booking for
  the coming days opens once a week, each (kiosk, date) can be held by one
  active reservation, and a reservation nobody claimed by the daily cutoff
  expires so the kiosk can be handed out again the same day.

LIFECYCLE:
  active -> used       (MarkUsed, at the desk)
  active -> cancelled  (Cancel)
  active -> expired    (RunExpirySweep, after the cutoff)
  Terminal states never revert.

EXCLUSIVITY:
  The slot check inside Create only produces a friendlier error. The
  store's unique index on active (kiosk, date) rows decides the race.

SEE ALSO:
  - window.go: weekly booking window
  - api/scheduler.go: ticker driving RunExpirySweep
*/
package kiosk

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/club-engine/access"
	"github.com/warp/club-engine/facility"
	"github.com/warp/club-engine/metrics"
)

const maxAdvanceDaysLimit = 60

// Eligibility is satisfied by *access.Evaluator.
type Eligibility interface {
	Evaluate(ctx context.Context, person facility.ResolvedPerson, purpose access.Purpose) (access.Verdict, error)
}

type Scheduler struct {
	store       facility.Store
	clock       facility.Clock
	eligibility Eligibility
	defaults    facility.ReservationConfig
	logger      *zap.Logger
}

type Option func(*Scheduler)

// WithEligibility makes Create require a gate-pass verdict.
func WithEligibility(e Eligibility) Option {
	return func(s *Scheduler) { s.eligibility = e }
}

// WithDefaults sets the config used until one is saved.
func WithDefaults(cfg facility.ReservationConfig) Option {
	return func(s *Scheduler) { s.defaults = cfg }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

func NewScheduler(store facility.Store, clock facility.Clock, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:    store,
		clock:    clock,
		defaults: facility.DefaultReservationConfig(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// =============================================================================
// CONFIG & WINDOW
// =============================================================================

func (s *Scheduler) Config(ctx context.Context) (facility.ReservationConfig, error) {
	return configOrDefault(ctx, s.store, s.defaults)
}

func configOrDefault(ctx context.Context, r facility.Reader, defaults facility.ReservationConfig) (facility.ReservationConfig, error) {
	cfg, err := r.ReservationConfig(ctx)
	if facility.IsNotFound(err) {
		return defaults, nil
	}
	return cfg, err
}

func (s *Scheduler) UpdateConfig(ctx context.Context, cfg facility.ReservationConfig) (facility.ReservationConfig, error) {
	if err := ValidateConfig(cfg); err != nil {
		return facility.ReservationConfig{}, err
	}
	err := s.store.WithTx(ctx, func(tx facility.Tx) error {
		return tx.SaveReservationConfig(ctx, cfg)
	})
	if err != nil {
		return facility.ReservationConfig{}, err
	}
	s.logger.Info("reservation config updated",
		zap.String("opening", fmt.Sprintf("%s %s", cfg.OpeningWeekday, cfg.OpeningTime)),
		zap.String("cutoff", cfg.DailyCutoffTime.String()),
		zap.Int("max_advance_days", cfg.MaxAdvanceDays))
	return cfg, nil
}

func ValidateConfig(cfg facility.ReservationConfig) error {
	if cfg.OpeningWeekday < time.Sunday || cfg.OpeningWeekday > time.Saturday {
		return facility.Invalid("opening_weekday", "must be 0-6")
	}
	if cfg.CycleStartWeekday < time.Sunday || cfg.CycleStartWeekday > time.Saturday {
		return facility.Invalid("cycle_start_weekday", "must be 0-6")
	}
	if !cfg.OpeningTime.Valid() {
		return facility.Invalid("opening_time", "invalid time of day")
	}
	if !cfg.DailyCutoffTime.Valid() {
		return facility.Invalid("daily_cutoff_time", "invalid time of day")
	}
	if cfg.MaxAdvanceDays < 0 || cfg.MaxAdvanceDays > maxAdvanceDaysLimit {
		return facility.Invalid("max_advance_days", "must be between 0 and %d", maxAdvanceDaysLimit)
	}
	if cfg.DefaultPrice.IsNegative() {
		return fmt.Errorf("default price %s: %w", cfg.DefaultPrice, facility.ErrInvalidAmount)
	}
	return nil
}

func (s *Scheduler) Window(ctx context.Context) (Window, error) {
	cfg, err := s.Config(ctx)
	if err != nil {
		return Window{}, err
	}
	return ComputeWindow(cfg, s.clock.Now()), nil
}

// =============================================================================
// CREATE / CANCEL / USE
// =============================================================================

type CreateRequest struct {
	KioskID facility.KioskID
	Person  facility.ResolvedPerson
	Date    facility.Date
	Notes   string
	// BypassWindow lets staff book while the weekly window is closed.
	BypassWindow bool
}

// Create books req.KioskID for req.Date.
//
// Checks run in this order: eligibility, booking window, date range, then
// inside the transaction kiosk state, slot, and the per-person limit. An
// identical repeat request therefore fails with ErrSlotTaken.
func (s *Scheduler) Create(ctx context.Context, req CreateRequest) (facility.Reservation, error) {
	r, err := s.create(ctx, req)
	metrics.ReservationClaims.WithLabelValues(claimOutcome(err)).Inc()
	if err != nil {
		return facility.Reservation{}, err
	}
	s.logger.Info("reservation created",
		zap.String("reservation_id", string(r.ID)),
		zap.Int("kiosk", r.KioskNumber),
		zap.String("date", r.Date.String()),
		zap.String("person_id", string(r.PersonID)))
	return r, nil
}

func (s *Scheduler) create(ctx context.Context, req CreateRequest) (facility.Reservation, error) {
	if strings.TrimSpace(string(req.KioskID)) == "" {
		return facility.Reservation{}, facility.Invalid("kiosk_id", "required")
	}
	if req.Person.ID == "" {
		return facility.Reservation{}, facility.Invalid("person_id", "required")
	}
	if req.Date.IsZero() {
		return facility.Reservation{}, facility.Invalid("date", "required")
	}

	if s.eligibility != nil {
		v, err := s.eligibility.Evaluate(ctx, req.Person, access.PurposeGatePass)
		if err != nil {
			return facility.Reservation{}, err
		}
		if !v.Allowed {
			return facility.Reservation{}, v.Err()
		}
	}

	cfg, err := s.Config(ctx)
	if err != nil {
		return facility.Reservation{}, err
	}
	now := s.clock.Now()

	if !req.BypassWindow {
		if w := ComputeWindow(cfg, now); !w.Open {
			return facility.Reservation{}, &facility.WindowClosedError{NextOpening: w.NextOpening}
		}
	}

	first, last := BookableRange(cfg, now)
	if req.Date.Before(first) || req.Date.After(last) {
		return facility.Reservation{}, fmt.Errorf("%s not in %s..%s: %w", req.Date, first, last, facility.ErrDateOutOfRange)
	}
	if req.Date.Equal(first) && !facility.TimeOfDayOf(now).Before(cfg.DailyCutoffTime) {
		return facility.Reservation{}, fmt.Errorf("%s is past today's cutoff %s: %w", req.Date, cfg.DailyCutoffTime, facility.ErrDateOutOfRange)
	}

	var r facility.Reservation
	err = s.store.WithTx(ctx, func(tx facility.Tx) error {
		kiosk, err := tx.GetKiosk(ctx, req.KioskID)
		if err != nil {
			return err
		}
		if !kiosk.Active {
			return fmt.Errorf("kiosk %d: %w", kiosk.Number, facility.ErrKioskInactive)
		}

		date := req.Date
		held, err := tx.ListReservations(ctx, facility.ReservationFilter{
			KioskID: kiosk.ID, Date: &date, Status: facility.ReservationActive, Limit: 1,
		})
		if err != nil {
			return err
		}
		if len(held) > 0 {
			return &facility.SlotTakenError{KioskID: kiosk.ID, Date: date}
		}

		if !cfg.AllowMultiplePerPerson {
			mine, err := tx.ListReservations(ctx, facility.ReservationFilter{
				PersonID: req.Person.ID, Status: facility.ReservationActive, Limit: 1,
			})
			if err != nil {
				return err
			}
			if len(mine) > 0 {
				return fmt.Errorf("kiosk %d on %s: %w", mine[0].KioskNumber, mine[0].Date, facility.ErrDuplicateBooking)
			}
		}

		r = facility.Reservation{
			ID:           facility.ReservationID(uuid.NewString()),
			KioskID:      kiosk.ID,
			KioskNumber:  kiosk.Number,
			PersonID:     req.Person.ID,
			PersonName:   req.Person.Name,
			MemberNumber: req.Person.DisplayMemberNumber(),
			Date:         date,
			Cutoff:       cfg.DailyCutoffTime,
			Status:       facility.ReservationActive,
			Amount:       kiosk.Price(cfg.DefaultPrice),
			Notes:        strings.TrimSpace(req.Notes),
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		return tx.InsertReservation(ctx, r)
	})
	if err != nil {
		return facility.Reservation{}, err
	}
	return r, nil
}

func claimOutcome(err error) string {
	switch {
	case err == nil:
		return "created"
	case errors.Is(err, facility.ErrSlotTaken):
		return "slot_taken"
	case errors.Is(err, facility.ErrDuplicateBooking):
		return "duplicate"
	case errors.Is(err, facility.ErrReservationClosed):
		return "window_closed"
	case errors.Is(err, facility.ErrDenied):
		return "denied"
	case facility.IsClientError(err):
		return "invalid"
	default:
		return "error"
	}
}

// Cancel frees an active reservation.
func (s *Scheduler) Cancel(ctx context.Context, id facility.ReservationID) (facility.Reservation, error) {
	return s.transition(ctx, id, facility.ReservationCancelled)
}

// MarkUsed records that the member showed up and took the kiosk.
func (s *Scheduler) MarkUsed(ctx context.Context, id facility.ReservationID) (facility.Reservation, error) {
	return s.transition(ctx, id, facility.ReservationUsed)
}

func (s *Scheduler) transition(ctx context.Context, id facility.ReservationID, to facility.ReservationStatus) (facility.Reservation, error) {
	var r facility.Reservation
	err := s.store.WithTx(ctx, func(tx facility.Tx) error {
		cur, err := tx.GetReservation(ctx, id)
		if err != nil {
			return err
		}
		if !facility.ValidReservationTransition(cur.Status, to) {
			return fmt.Errorf("reservation %s is %s: %w", id, cur.Status, facility.ErrNotActive)
		}
		now := s.clock.Now()
		if err := tx.TransitionReservation(ctx, id, cur.Status, to, now); err != nil {
			return err
		}
		r = *cur
		r.Status = to
		r.UpdatedAt = now
		return nil
	})
	if err != nil {
		return facility.Reservation{}, err
	}
	s.logger.Info("reservation "+string(to), zap.String("reservation_id", string(id)))
	return r, nil
}

// =============================================================================
// EXPIRY SWEEP
// =============================================================================

type SweepResult struct {
	Expired int
	At      time.Time
}

// RunExpirySweep expires active reservations whose cutoff has passed today,
// plus any left active on earlier dates. Each row moves under a status
// guard, so overlapping sweeps are harmless and a repeat run is a no-op.
func (s *Scheduler) RunExpirySweep(ctx context.Context) (SweepResult, error) {
	start := time.Now()
	now := s.clock.Now()

	var n int
	err := s.store.WithTx(ctx, func(tx facility.Tx) error {
		var err error
		n, err = tx.ExpireReservations(ctx, facility.DateOf(now), facility.TimeOfDayOf(now), now)
		return err
	})
	metrics.ExpirySweepDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return SweepResult{}, fmt.Errorf("expiry sweep: %w", err)
	}

	metrics.ExpirySweepExpired.Add(float64(n))
	if n > 0 {
		s.logger.Info("reservations expired", zap.Int("count", n), zap.Time("at", now))
	}
	return SweepResult{Expired: n, At: now}, nil
}

// =============================================================================
// QUERIES
// =============================================================================

// ListAvailableKiosks returns active kiosks with no active reservation on
// date. The answer can be stale by the time Create runs.
func (s *Scheduler) ListAvailableKiosks(ctx context.Context, date facility.Date) ([]facility.Kiosk, error) {
	if date.IsZero() {
		return nil, facility.Invalid("date", "required")
	}
	kiosks, err := s.store.ListKiosks(ctx)
	if err != nil {
		return nil, err
	}
	held, err := s.store.ListReservations(ctx, facility.ReservationFilter{Date: &date, Status: facility.ReservationActive})
	if err != nil {
		return nil, err
	}
	taken := make(map[facility.KioskID]bool, len(held))
	for _, r := range held {
		taken[r.KioskID] = true
	}

	available := make([]facility.Kiosk, 0, len(kiosks))
	for _, k := range kiosks {
		if k.Active && !taken[k.ID] {
			available = append(available, k)
		}
	}
	return available, nil
}

func (s *Scheduler) Get(ctx context.Context, id facility.ReservationID) (*facility.Reservation, error) {
	return s.store.GetReservation(ctx, id)
}

func (s *Scheduler) ListReservations(ctx context.Context, filter facility.ReservationFilter) ([]facility.Reservation, error) {
	return s.store.ListReservations(ctx, filter)
}

// Receipt is the printable payload, built from the stored row alone.
type Receipt struct {
	ReservationID facility.ReservationID
	KioskNumber   int
	PersonName    string
	MemberNumber  string
	Date          facility.Date
	Cutoff        facility.TimeOfDay
	Amount        string
	Status        facility.ReservationStatus
	IssuedAt      time.Time
}

func (s *Scheduler) Receipt(ctx context.Context, id facility.ReservationID) (Receipt, error) {
	r, err := s.store.GetReservation(ctx, id)
	if err != nil {
		return Receipt{}, err
	}
	return Receipt{
		ReservationID: r.ID,
		KioskNumber:   r.KioskNumber,
		PersonName:    r.PersonName,
		MemberNumber:  r.MemberNumber,
		Date:          r.Date,
		Cutoff:        r.Cutoff,
		Amount:        r.Amount.StringFixed(2),
		Status:        r.Status,
		IssuedAt:      r.CreatedAt,
	}, nil
}

// =============================================================================
// KIOSK ADMIN
// =============================================================================

// SaveKiosk creates (empty ID) or updates a kiosk.
func (s *Scheduler) SaveKiosk(ctx context.Context, k facility.Kiosk) (facility.Kiosk, error) {
	if k.Number < 1 {
		return facility.Kiosk{}, facility.Invalid("number", "must be at least 1")
	}
	if k.Capacity < 0 {
		return facility.Kiosk{}, facility.Invalid("capacity", "must not be negative")
	}
	if k.PriceOverride != nil && k.PriceOverride.IsNegative() {
		return facility.Kiosk{}, fmt.Errorf("price override %s: %w", k.PriceOverride, facility.ErrInvalidAmount)
	}
	if k.ID == "" {
		k.ID = facility.KioskID(uuid.NewString())
	}
	if strings.TrimSpace(k.Name) == "" {
		k.Name = fmt.Sprintf("Kiosk %d", k.Number)
	}

	err := s.store.WithTx(ctx, func(tx facility.Tx) error {
		return tx.SaveKiosk(ctx, k)
	})
	if err != nil {
		return facility.Kiosk{}, err
	}
	return k, nil
}

func (s *Scheduler) SetKioskActive(ctx context.Context, id facility.KioskID, active bool) (facility.Kiosk, error) {
	var k facility.Kiosk
	err := s.store.WithTx(ctx, func(tx facility.Tx) error {
		cur, err := tx.GetKiosk(ctx, id)
		if err != nil {
			return err
		}
		k = *cur
		k.Active = active
		return tx.SaveKiosk(ctx, k)
	})
	if err != nil {
		return facility.Kiosk{}, err
	}
	return k, nil
}

func (s *Scheduler) ListKiosks(ctx context.Context) ([]facility.Kiosk, error) {
	return s.store.ListKiosks(ctx)
}
