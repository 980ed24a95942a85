// Package store provides Store implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/club-engine/facility"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

var (
	_ facility.Store = (*Memory)(nil)
	_ facility.Tx    = (*memoryTx)(nil)
)

// Memory keeps everything in maps behind one mutex. Transactions hold the
// mutex for their whole duration and roll back by restoring a snapshot, and
// every write checks the same uniqueness rules the SQLite indexes enforce.
type Memory struct {
	mu    sync.Mutex
	state memoryState
}

type memoryState struct {
	access       []facility.AccessRecord
	lockers      map[facility.LockerID]facility.Locker
	usages       map[facility.UsageID]facility.LockerUsage
	fines        map[facility.FineID]facility.Fine
	kiosks       map[facility.KioskID]facility.Kiosk
	reservations map[facility.ReservationID]facility.Reservation
	config       *facility.ReservationConfig
}

func NewMemory() *Memory {
	return &Memory{state: memoryState{
		lockers:      make(map[facility.LockerID]facility.Locker),
		usages:       make(map[facility.UsageID]facility.LockerUsage),
		fines:        make(map[facility.FineID]facility.Fine),
		kiosks:       make(map[facility.KioskID]facility.Kiosk),
		reservations: make(map[facility.ReservationID]facility.Reservation),
	}}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(ctx context.Context, fn func(facility.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.state.clone()
	if err := fn(&memoryTx{st: &m.state}); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

func (s memoryState) clone() memoryState {
	c := memoryState{
		access:       append([]facility.AccessRecord(nil), s.access...),
		lockers:      make(map[facility.LockerID]facility.Locker, len(s.lockers)),
		usages:       make(map[facility.UsageID]facility.LockerUsage, len(s.usages)),
		fines:        make(map[facility.FineID]facility.Fine, len(s.fines)),
		kiosks:       make(map[facility.KioskID]facility.Kiosk, len(s.kiosks)),
		reservations: make(map[facility.ReservationID]facility.Reservation, len(s.reservations)),
	}
	for k, v := range s.lockers {
		c.lockers[k] = v
	}
	for k, v := range s.usages {
		c.usages[k] = v
	}
	for k, v := range s.fines {
		c.fines[k] = v
	}
	for k, v := range s.kiosks {
		c.kiosks[k] = v
	}
	for k, v := range s.reservations {
		c.reservations[k] = v
	}
	if s.config != nil {
		cfg := *s.config
		c.config = &cfg
	}
	return c
}

// read runs a query under the lock, outside any transaction.
func (m *Memory) read() (*memoryTx, func()) {
	m.mu.Lock()
	return &memoryTx{st: &m.state}, m.mu.Unlock
}

// =============================================================================
// READER (non-transactional entry points)
// =============================================================================

func (m *Memory) LastAccess(ctx context.Context, personID facility.PersonID, location string) (*facility.AccessRecord, error) {
	tx, done := m.read()
	defer done()
	return tx.LastAccess(ctx, personID, location)
}

func (m *Memory) ListAccess(ctx context.Context, filter facility.AccessFilter) ([]facility.AccessRecord, error) {
	tx, done := m.read()
	defer done()
	return tx.ListAccess(ctx, filter)
}

func (m *Memory) LatestAccessPerPerson(ctx context.Context, location string) ([]facility.AccessRecord, error) {
	tx, done := m.read()
	defer done()
	return tx.LatestAccessPerPerson(ctx, location)
}

func (m *Memory) CountAccess(ctx context.Context, location string, from, to time.Time) (int, int, error) {
	tx, done := m.read()
	defer done()
	return tx.CountAccess(ctx, location, from, to)
}

func (m *Memory) GetLocker(ctx context.Context, id facility.LockerID) (*facility.Locker, error) {
	tx, done := m.read()
	defer done()
	return tx.GetLocker(ctx, id)
}

func (m *Memory) ListLockers(ctx context.Context) ([]facility.Locker, error) {
	tx, done := m.read()
	defer done()
	return tx.ListLockers(ctx)
}

func (m *Memory) GetUsage(ctx context.Context, id facility.UsageID) (*facility.LockerUsage, error) {
	tx, done := m.read()
	defer done()
	return tx.GetUsage(ctx, id)
}

func (m *Memory) OpenUsageForPerson(ctx context.Context, personID facility.PersonID) (*facility.LockerUsage, error) {
	tx, done := m.read()
	defer done()
	return tx.OpenUsageForPerson(ctx, personID)
}

func (m *Memory) ListOpenUsages(ctx context.Context) ([]facility.LockerUsage, error) {
	tx, done := m.read()
	defer done()
	return tx.ListOpenUsages(ctx)
}

func (m *Memory) GetFine(ctx context.Context, id facility.FineID) (*facility.Fine, error) {
	tx, done := m.read()
	defer done()
	return tx.GetFine(ctx, id)
}

func (m *Memory) ListFines(ctx context.Context, filter facility.FineFilter) ([]facility.Fine, error) {
	tx, done := m.read()
	defer done()
	return tx.ListFines(ctx, filter)
}

func (m *Memory) GetKiosk(ctx context.Context, id facility.KioskID) (*facility.Kiosk, error) {
	tx, done := m.read()
	defer done()
	return tx.GetKiosk(ctx, id)
}

func (m *Memory) ListKiosks(ctx context.Context) ([]facility.Kiosk, error) {
	tx, done := m.read()
	defer done()
	return tx.ListKiosks(ctx)
}

func (m *Memory) GetReservation(ctx context.Context, id facility.ReservationID) (*facility.Reservation, error) {
	tx, done := m.read()
	defer done()
	return tx.GetReservation(ctx, id)
}

func (m *Memory) ListReservations(ctx context.Context, filter facility.ReservationFilter) ([]facility.Reservation, error) {
	tx, done := m.read()
	defer done()
	return tx.ListReservations(ctx, filter)
}

func (m *Memory) ReservationConfig(ctx context.Context) (facility.ReservationConfig, error) {
	tx, done := m.read()
	defer done()
	return tx.ReservationConfig(ctx)
}

// =============================================================================
// TRANSACTIONAL VIEW
// =============================================================================

// memoryTx operates on the state directly; the caller holds the lock.
type memoryTx struct {
	st *memoryState
}

// ----- access records -----

func (tx *memoryTx) LastAccess(_ context.Context, personID facility.PersonID, location string) (*facility.AccessRecord, error) {
	var last *facility.AccessRecord
	for i := range tx.st.access {
		r := tx.st.access[i]
		if r.PersonID == personID && r.Location == location && (last == nil || r.Seq > last.Seq) {
			last = &r
		}
	}
	return last, nil
}

func (tx *memoryTx) ListAccess(_ context.Context, filter facility.AccessFilter) ([]facility.AccessRecord, error) {
	var result []facility.AccessRecord
	for _, r := range tx.st.access {
		if filter.PersonID != "" && r.PersonID != filter.PersonID {
			continue
		}
		if filter.Location != "" && r.Location != filter.Location {
			continue
		}
		if !filter.From.IsZero() && r.Timestamp.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !r.Timestamp.Before(filter.To) {
			continue
		}
		result = append(result, r)
	}
	sortAccessNewestFirst(result)
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (tx *memoryTx) LatestAccessPerPerson(_ context.Context, location string) ([]facility.AccessRecord, error) {
	latest := make(map[facility.PersonID]facility.AccessRecord)
	for _, r := range tx.st.access {
		if r.Location != location {
			continue
		}
		if cur, ok := latest[r.PersonID]; !ok || r.Seq > cur.Seq {
			latest[r.PersonID] = r
		}
	}
	result := make([]facility.AccessRecord, 0, len(latest))
	for _, r := range latest {
		result = append(result, r)
	}
	sortAccessNewestFirst(result)
	return result, nil
}

func (tx *memoryTx) CountAccess(_ context.Context, location string, from, to time.Time) (int, int, error) {
	var entries, exits int
	for _, r := range tx.st.access {
		if r.Location != location || r.Timestamp.Before(from) || !r.Timestamp.Before(to) {
			continue
		}
		if r.Direction == facility.DirectionEntry {
			entries++
		} else {
			exits++
		}
	}
	return entries, exits, nil
}

func (tx *memoryTx) AppendAccess(_ context.Context, rec facility.AccessRecord) error {
	for _, r := range tx.st.access {
		if r.ID == rec.ID {
			return fmt.Errorf("access record %s already exists", rec.ID)
		}
		if r.PersonID == rec.PersonID && r.Location == rec.Location && r.Seq == rec.Seq {
			return facility.ErrConcurrentModification
		}
	}
	tx.st.access = append(tx.st.access, rec)
	return nil
}

func sortAccessNewestFirst(records []facility.AccessRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].Timestamp.Equal(records[j].Timestamp) {
			return records[i].Timestamp.After(records[j].Timestamp)
		}
		return records[i].Seq > records[j].Seq
	})
}

// ----- lockers -----

func (tx *memoryTx) GetLocker(_ context.Context, id facility.LockerID) (*facility.Locker, error) {
	l, ok := tx.st.lockers[id]
	if !ok {
		return nil, fmt.Errorf("locker %s: %w", id, facility.ErrNotFound)
	}
	return &l, nil
}

func (tx *memoryTx) ListLockers(_ context.Context) ([]facility.Locker, error) {
	result := make([]facility.Locker, 0, len(tx.st.lockers))
	for _, l := range tx.st.lockers {
		result = append(result, l)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Number < result[j].Number })
	return result, nil
}

func (tx *memoryTx) InsertLocker(_ context.Context, l facility.Locker) error {
	if _, ok := tx.st.lockers[l.ID]; ok {
		return fmt.Errorf("locker %s already exists", l.ID)
	}
	for _, existing := range tx.st.lockers {
		if existing.Number == l.Number {
			return &facility.NumberConflictError{Numbers: []int{l.Number}}
		}
	}
	tx.st.lockers[l.ID] = l
	return nil
}

func (tx *memoryTx) DeleteLocker(_ context.Context, id facility.LockerID) error {
	if _, ok := tx.st.lockers[id]; !ok {
		return fmt.Errorf("locker %s: %w", id, facility.ErrNotFound)
	}
	delete(tx.st.lockers, id)
	return nil
}

func (tx *memoryTx) SetLockerStatus(_ context.Context, id facility.LockerID, from, to facility.LockerStatus) error {
	l, ok := tx.st.lockers[id]
	if !ok {
		return fmt.Errorf("locker %s: %w", id, facility.ErrNotFound)
	}
	if l.Status != from {
		return fmt.Errorf("locker %s is %s, expected %s: %w", id, l.Status, from, facility.ErrConcurrentModification)
	}
	l.Status = to
	tx.st.lockers[id] = l
	return nil
}

// ----- usages -----

func (tx *memoryTx) GetUsage(_ context.Context, id facility.UsageID) (*facility.LockerUsage, error) {
	u, ok := tx.st.usages[id]
	if !ok {
		return nil, fmt.Errorf("usage %s: %w", id, facility.ErrNotFound)
	}
	return &u, nil
}

func (tx *memoryTx) OpenUsageForPerson(_ context.Context, personID facility.PersonID) (*facility.LockerUsage, error) {
	for _, u := range tx.st.usages {
		if u.PersonID == personID && u.IsOpen() {
			return &u, nil
		}
	}
	return nil, nil
}

func (tx *memoryTx) ListOpenUsages(_ context.Context) ([]facility.LockerUsage, error) {
	var result []facility.LockerUsage
	for _, u := range tx.st.usages {
		if u.IsOpen() {
			result = append(result, u)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].EnteredAt.Before(result[j].EnteredAt) })
	return result, nil
}

func (tx *memoryTx) InsertUsage(_ context.Context, u facility.LockerUsage) error {
	if _, ok := tx.st.usages[u.ID]; ok {
		return fmt.Errorf("usage %s already exists", u.ID)
	}
	for _, existing := range tx.st.usages {
		if !existing.IsOpen() {
			continue
		}
		if existing.LockerID == u.LockerID {
			return facility.ErrLockerUnavailable
		}
		if existing.PersonID == u.PersonID {
			return facility.ErrPersonAlreadyHasLocker
		}
	}
	tx.st.usages[u.ID] = u
	return nil
}

func (tx *memoryTx) CloseUsage(_ context.Context, id facility.UsageID, exitedAt time.Time, keyLost bool, fineAmount *decimal.Decimal) error {
	u, ok := tx.st.usages[id]
	if !ok {
		return fmt.Errorf("usage %s: %w", id, facility.ErrNotFound)
	}
	if !u.IsOpen() {
		return facility.ErrAlreadyClosed
	}
	returned := !keyLost
	lost := keyLost
	u.ExitedAt = &exitedAt
	u.KeyReturned = &returned
	u.KeyLost = &lost
	u.FineAmount = fineAmount
	tx.st.usages[id] = u
	return nil
}

// ----- fines -----

func (tx *memoryTx) GetFine(_ context.Context, id facility.FineID) (*facility.Fine, error) {
	f, ok := tx.st.fines[id]
	if !ok {
		return nil, fmt.Errorf("fine %s: %w", id, facility.ErrNotFound)
	}
	return &f, nil
}

func (tx *memoryTx) ListFines(_ context.Context, filter facility.FineFilter) ([]facility.Fine, error) {
	var result []facility.Fine
	for _, f := range tx.st.fines {
		if filter.PersonID != "" && f.PersonID != filter.PersonID {
			continue
		}
		if filter.Status != "" && f.Status != filter.Status {
			continue
		}
		result = append(result, f)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (tx *memoryTx) InsertFine(_ context.Context, f facility.Fine) error {
	if _, ok := tx.st.fines[f.ID]; ok {
		return fmt.Errorf("fine %s already exists", f.ID)
	}
	for _, existing := range tx.st.fines {
		if existing.UsageID == f.UsageID {
			return facility.ErrAlreadyClosed
		}
	}
	tx.st.fines[f.ID] = f
	return nil
}

func (tx *memoryTx) UpdateFineStatus(_ context.Context, id facility.FineID, from, to facility.FineStatus, at time.Time) error {
	f, ok := tx.st.fines[id]
	if !ok {
		return fmt.Errorf("fine %s: %w", id, facility.ErrNotFound)
	}
	if f.Status != from {
		return fmt.Errorf("fine %s is %s: %w", id, f.Status, facility.ErrInvalidTransition)
	}
	f.Status = to
	f.UpdatedAt = at
	tx.st.fines[id] = f
	return nil
}

// ----- kiosks -----

func (tx *memoryTx) GetKiosk(_ context.Context, id facility.KioskID) (*facility.Kiosk, error) {
	k, ok := tx.st.kiosks[id]
	if !ok {
		return nil, fmt.Errorf("kiosk %s: %w", id, facility.ErrNotFound)
	}
	return &k, nil
}

func (tx *memoryTx) ListKiosks(_ context.Context) ([]facility.Kiosk, error) {
	result := make([]facility.Kiosk, 0, len(tx.st.kiosks))
	for _, k := range tx.st.kiosks {
		result = append(result, k)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Number < result[j].Number })
	return result, nil
}

func (tx *memoryTx) SaveKiosk(_ context.Context, k facility.Kiosk) error {
	for _, existing := range tx.st.kiosks {
		if existing.ID != k.ID && existing.Number == k.Number {
			return &facility.NumberConflictError{Numbers: []int{k.Number}}
		}
	}
	tx.st.kiosks[k.ID] = k
	return nil
}

// ----- reservations -----

func (tx *memoryTx) GetReservation(_ context.Context, id facility.ReservationID) (*facility.Reservation, error) {
	r, ok := tx.st.reservations[id]
	if !ok {
		return nil, fmt.Errorf("reservation %s: %w", id, facility.ErrNotFound)
	}
	return &r, nil
}

func (tx *memoryTx) ListReservations(_ context.Context, filter facility.ReservationFilter) ([]facility.Reservation, error) {
	var result []facility.Reservation
	for _, r := range tx.st.reservations {
		if filter.KioskID != "" && r.KioskID != filter.KioskID {
			continue
		}
		if filter.PersonID != "" && r.PersonID != filter.PersonID {
			continue
		}
		if filter.Date != nil && r.Date != *filter.Date {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool {
		if c := result[i].Date.Compare(result[j].Date); c != 0 {
			return c > 0
		}
		return result[i].KioskNumber < result[j].KioskNumber
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (tx *memoryTx) InsertReservation(_ context.Context, r facility.Reservation) error {
	if _, ok := tx.st.reservations[r.ID]; ok {
		return fmt.Errorf("reservation %s already exists", r.ID)
	}
	if _, ok := tx.st.kiosks[r.KioskID]; !ok {
		return fmt.Errorf("kiosk %s: %w", r.KioskID, facility.ErrNotFound)
	}
	if r.Status == facility.ReservationActive {
		for _, existing := range tx.st.reservations {
			if existing.Status == facility.ReservationActive && existing.KioskID == r.KioskID && existing.Date == r.Date {
				return &facility.SlotTakenError{KioskID: r.KioskID, Date: r.Date}
			}
		}
	}
	tx.st.reservations[r.ID] = r
	return nil
}

func (tx *memoryTx) TransitionReservation(_ context.Context, id facility.ReservationID, from, to facility.ReservationStatus, at time.Time) error {
	r, ok := tx.st.reservations[id]
	if !ok {
		return fmt.Errorf("reservation %s: %w", id, facility.ErrNotFound)
	}
	if r.Status != from {
		return fmt.Errorf("reservation %s is %s: %w", id, r.Status, facility.ErrNotActive)
	}
	r.Status = to
	r.UpdatedAt = at
	tx.st.reservations[id] = r
	return nil
}

func (tx *memoryTx) ExpireReservations(_ context.Context, today facility.Date, now facility.TimeOfDay, at time.Time) (int, error) {
	n := 0
	for id, r := range tx.st.reservations {
		if r.Status != facility.ReservationActive {
			continue
		}
		due := r.Date.Before(today) || (r.Date == today && r.Cutoff.Compare(now) <= 0)
		if !due {
			continue
		}
		r.Status = facility.ReservationExpired
		r.UpdatedAt = at
		tx.st.reservations[id] = r
		n++
	}
	return n, nil
}

// ----- config -----

func (tx *memoryTx) ReservationConfig(_ context.Context) (facility.ReservationConfig, error) {
	if tx.st.config == nil {
		return facility.ReservationConfig{}, fmt.Errorf("reservation config: %w", facility.ErrNotFound)
	}
	return *tx.st.config, nil
}

func (tx *memoryTx) SaveReservationConfig(_ context.Context, cfg facility.ReservationConfig) error {
	tx.st.config = &cfg
	return nil
}
