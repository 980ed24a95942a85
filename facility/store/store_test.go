package store_test

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/club-engine/facility"
	"github.com/warp/club-engine/facility/store"
	"github.com/warp/club-engine/store/sqlite"
)

var at = time.Date(2026, time.March, 10, 10, 0, 0, 0, time.UTC)

// forEachStore runs fn against both Store implementations so they keep
// reporting the same sentinel errors.
func forEachStore(t *testing.T, fn func(t *testing.T, s facility.Store)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, store.NewMemory())
	})
	t.Run("sqlite", func(t *testing.T) {
		s, err := sqlite.New(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		fn(t, s)
	})
}

func tx(t *testing.T, s facility.Store, fn func(tx facility.Tx) error) error {
	t.Helper()
	return s.WithTx(context.Background(), fn)
}

func TestStore_NotFound(t *testing.T) {
	forEachStore(t, func(t *testing.T, s facility.Store) {
		ctx := context.Background()

		_, err := s.GetLocker(ctx, "nope")
		assert.ErrorIs(t, err, facility.ErrNotFound)
		_, err = s.GetKiosk(ctx, "nope")
		assert.ErrorIs(t, err, facility.ErrNotFound)
		_, err = s.GetReservation(ctx, "nope")
		assert.ErrorIs(t, err, facility.ErrNotFound)
		_, err = s.ReservationConfig(ctx)
		assert.ErrorIs(t, err, facility.ErrNotFound)

		last, err := s.LastAccess(ctx, "m-1", "main")
		require.NoError(t, err)
		assert.Nil(t, last)
	})
}

func TestStore_WithTxRollsBack(t *testing.T) {
	forEachStore(t, func(t *testing.T, s facility.Store) {
		boom := errors.New("boom")
		err := tx(t, s, func(tx facility.Tx) error {
			require.NoError(t, tx.InsertLocker(context.Background(), facility.Locker{ID: "l-1", Number: 1, Code: "1", Status: facility.LockerAvailable}))
			return boom
		})
		assert.ErrorIs(t, err, boom)

		lockers, err := s.ListLockers(context.Background())
		require.NoError(t, err)
		assert.Empty(t, lockers)
	})
}

func TestStore_AccessSeqIsExclusive(t *testing.T) {
	forEachStore(t, func(t *testing.T, s facility.Store) {
		ctx := context.Background()
		rec := facility.AccessRecord{
			ID: "a-1", PersonID: "m-1", PersonKind: facility.KindMember,
			Location: "main", Direction: facility.DirectionEntry, Timestamp: at, Seq: 1,
		}
		require.NoError(t, tx(t, s, func(tx facility.Tx) error { return tx.AppendAccess(ctx, rec) }))

		rec.ID = "a-2"
		err := tx(t, s, func(tx facility.Tx) error { return tx.AppendAccess(ctx, rec) })
		assert.ErrorIs(t, err, facility.ErrConcurrentModification)

		entries, exits, err := s.CountAccess(ctx, "main", at, at.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 1, entries)
		assert.Equal(t, 0, exits)
	})
}

func TestStore_LockerCustody(t *testing.T) {
	forEachStore(t, func(t *testing.T, s facility.Store) {
		ctx := context.Background()
		require.NoError(t, tx(t, s, func(tx facility.Tx) error {
			for n := 1; n <= 2; n++ {
				l := facility.Locker{ID: facility.LockerID(strconv.Itoa(n)), Number: n, Code: "c", Status: facility.LockerAvailable}
				if err := tx.InsertLocker(ctx, l); err != nil {
					return err
				}
			}
			return nil
		}))

		// Number reuse is a conflict
		err := tx(t, s, func(tx facility.Tx) error {
			return tx.InsertLocker(ctx, facility.Locker{ID: "x", Number: 2, Code: "c", Status: facility.LockerAvailable})
		})
		var conflict *facility.NumberConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, []int{2}, conflict.Numbers)

		usage := func(id, locker, person string) facility.LockerUsage {
			return facility.LockerUsage{
				ID: facility.UsageID(id), LockerID: facility.LockerID(locker), LockerNumber: 1,
				PersonID: facility.PersonID(person), PersonKind: facility.KindMember, EnteredAt: at,
			}
		}
		insert := func(u facility.LockerUsage) error {
			return tx(t, s, func(tx facility.Tx) error { return tx.InsertUsage(ctx, u) })
		}

		require.NoError(t, insert(usage("u-1", "1", "m-1")))
		assert.ErrorIs(t, insert(usage("u-2", "1", "m-2")), facility.ErrLockerUnavailable)
		assert.ErrorIs(t, insert(usage("u-3", "2", "m-1")), facility.ErrPersonAlreadyHasLocker)

		open, err := s.OpenUsageForPerson(ctx, "m-1")
		require.NoError(t, err)
		require.NotNil(t, open)
		assert.True(t, open.IsOpen())

		fine := decimal.RequireFromString("50.00")
		closeUsage := func() error {
			return tx(t, s, func(tx facility.Tx) error {
				return tx.CloseUsage(ctx, "u-1", at.Add(time.Hour), true, &fine)
			})
		}
		require.NoError(t, closeUsage())
		assert.ErrorIs(t, closeUsage(), facility.ErrAlreadyClosed)

		closed, err := s.GetUsage(ctx, "u-1")
		require.NoError(t, err)
		require.NotNil(t, closed.KeyLost)
		assert.True(t, *closed.KeyLost)
		require.NotNil(t, closed.FineAmount)
		assert.True(t, closed.FineAmount.Equal(fine))

		// Closing frees both the locker and the person
		require.NoError(t, insert(usage("u-4", "1", "m-2")))
		require.NoError(t, insert(usage("u-5", "2", "m-1")))
	})
}

func TestStore_SetLockerStatusGuard(t *testing.T) {
	forEachStore(t, func(t *testing.T, s facility.Store) {
		ctx := context.Background()
		require.NoError(t, tx(t, s, func(tx facility.Tx) error {
			return tx.InsertLocker(ctx, facility.Locker{ID: "l-1", Number: 1, Code: "1", Status: facility.LockerAvailable})
		}))

		err := tx(t, s, func(tx facility.Tx) error {
			return tx.SetLockerStatus(ctx, "l-1", facility.LockerOccupied, facility.LockerAvailable)
		})
		assert.ErrorIs(t, err, facility.ErrConcurrentModification)

		require.NoError(t, tx(t, s, func(tx facility.Tx) error {
			return tx.SetLockerStatus(ctx, "l-1", facility.LockerAvailable, facility.LockerMaintenance)
		}))
		l, err := s.GetLocker(ctx, "l-1")
		require.NoError(t, err)
		assert.Equal(t, facility.LockerMaintenance, l.Status)
	})
}

func TestStore_ReservationSlotAndTransitions(t *testing.T) {
	forEachStore(t, func(t *testing.T, s facility.Store) {
		ctx := context.Background()
		day := facility.NewDate(2026, time.March, 12)
		require.NoError(t, tx(t, s, func(tx facility.Tx) error {
			return tx.SaveKiosk(ctx, facility.Kiosk{ID: "k-1", Number: 1, Active: true})
		}))

		res := func(id, person string) facility.Reservation {
			return facility.Reservation{
				ID: facility.ReservationID(id), KioskID: "k-1", KioskNumber: 1,
				PersonID: facility.PersonID(person), Date: day, Cutoff: facility.TimeOfDay{Hour: 9},
				Status: facility.ReservationActive, CreatedAt: at, UpdatedAt: at,
			}
		}
		insert := func(r facility.Reservation) error {
			return tx(t, s, func(tx facility.Tx) error { return tx.InsertReservation(ctx, r) })
		}
		transition := func(id facility.ReservationID, to facility.ReservationStatus) error {
			return tx(t, s, func(tx facility.Tx) error {
				return tx.TransitionReservation(ctx, id, facility.ReservationActive, to, at)
			})
		}

		require.NoError(t, insert(res("r-1", "m-1")))

		var taken *facility.SlotTakenError
		require.ErrorAs(t, insert(res("r-2", "m-2")), &taken)
		assert.Equal(t, day, taken.Date)

		// A cancelled slot can be booked again
		require.NoError(t, transition("r-1", facility.ReservationCancelled))
		assert.ErrorIs(t, transition("r-1", facility.ReservationUsed), facility.ErrNotActive)
		require.NoError(t, insert(res("r-3", "m-2")))

		active, err := s.ListReservations(ctx, facility.ReservationFilter{Status: facility.ReservationActive})
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, facility.ReservationID("r-3"), active[0].ID)
	})
}

func TestStore_ReservationConfigRoundTrip(t *testing.T) {
	forEachStore(t, func(t *testing.T, s facility.Store) {
		ctx := context.Background()
		cfg := facility.DefaultReservationConfig()
		cfg.DefaultPrice = decimal.RequireFromString("120.50")
		cfg.AllowMultiplePerPerson = true
		cfg.OpeningTime = facility.TimeOfDay{Hour: 8, Minute: 30}

		require.NoError(t, tx(t, s, func(tx facility.Tx) error { return tx.SaveReservationConfig(ctx, cfg) }))

		got, err := s.ReservationConfig(ctx)
		require.NoError(t, err)
		assert.True(t, got.DefaultPrice.Equal(cfg.DefaultPrice))
		got.DefaultPrice = cfg.DefaultPrice
		assert.Equal(t, cfg, got)
	})
}
