package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/club-engine/facility"
)

// =============================================================================
// KIOSKS
// =============================================================================

const kioskColumns = `id, number, name, capacity, active, price_override`

func (c *conn) GetKiosk(ctx context.Context, id facility.KioskID) (*facility.Kiosk, error) {
	kiosks, err := c.queryKiosks(ctx, `SELECT `+kioskColumns+` FROM kiosks WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(kiosks) == 0 {
		return nil, fmt.Errorf("kiosk %s: %w", id, facility.ErrNotFound)
	}
	return &kiosks[0], nil
}

func (c *conn) ListKiosks(ctx context.Context) ([]facility.Kiosk, error) {
	return c.queryKiosks(ctx, `SELECT `+kioskColumns+` FROM kiosks ORDER BY number`)
}

func (c *conn) SaveKiosk(ctx context.Context, k facility.Kiosk) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO kiosks (`+kioskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			number = excluded.number,
			name = excluded.name,
			capacity = excluded.capacity,
			active = excluded.active,
			price_override = excluded.price_override`,
		k.ID, k.Number, k.Name, k.Capacity, boolInt(k.Active), nullDecimal(k.PriceOverride),
	)
	if cols, ok := uniqueViolation(err); ok && strings.Contains(cols, "kiosks.number") {
		return &facility.NumberConflictError{Numbers: []int{k.Number}}
	}
	if err != nil {
		return fmt.Errorf("failed to save kiosk: %w", err)
	}
	return nil
}

func (c *conn) queryKiosks(ctx context.Context, query string, args ...any) ([]facility.Kiosk, error) {
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query kiosks: %w", err)
	}
	defer rows.Close()

	var kiosks []facility.Kiosk
	for rows.Next() {
		var (
			k      facility.Kiosk
			active int
			price  sql.NullString
		)
		if err := rows.Scan(&k.ID, &k.Number, &k.Name, &k.Capacity, &active, &price); err != nil {
			return nil, fmt.Errorf("failed to scan kiosk: %w", err)
		}
		k.Active = active != 0
		if k.PriceOverride, err = parseNullDecimal(price); err != nil {
			return nil, err
		}
		kiosks = append(kiosks, k)
	}
	return kiosks, rows.Err()
}

// =============================================================================
// RESERVATIONS
// =============================================================================

const reservationColumns = `id, kiosk_id, kiosk_number, person_id, person_name, member_number,
	reserved_date, cutoff_time, status, amount, notes, created_at, updated_at`

func (c *conn) GetReservation(ctx context.Context, id facility.ReservationID) (*facility.Reservation, error) {
	rs, err := c.queryReservations(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(rs) == 0 {
		return nil, fmt.Errorf("reservation %s: %w", id, facility.ErrNotFound)
	}
	return &rs[0], nil
}

func (c *conn) ListReservations(ctx context.Context, filter facility.ReservationFilter) ([]facility.Reservation, error) {
	var (
		where []string
		args  []any
	)
	if filter.KioskID != "" {
		where = append(where, "kiosk_id = ?")
		args = append(args, filter.KioskID)
	}
	if filter.PersonID != "" {
		where = append(where, "person_id = ?")
		args = append(args, filter.PersonID)
	}
	if filter.Date != nil {
		where = append(where, "reserved_date = ?")
		args = append(args, filter.Date.String())
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}

	query := `SELECT ` + reservationColumns + ` FROM reservations`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY reserved_date DESC, kiosk_number ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	return c.queryReservations(ctx, query, args...)
}

func (c *conn) InsertReservation(ctx context.Context, r facility.Reservation) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO reservations (`+reservationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.KioskID, r.KioskNumber, r.PersonID, r.PersonName, r.MemberNumber,
		r.Date.String(), r.Cutoff.String(), r.Status, r.Amount.String(), r.Notes,
		formatTime(r.CreatedAt), formatTime(r.UpdatedAt),
	)
	if cols, ok := uniqueViolation(err); ok && strings.Contains(cols, "reservations.kiosk_id") {
		return &facility.SlotTakenError{KioskID: r.KioskID, Date: r.Date}
	}
	if err != nil {
		return fmt.Errorf("failed to insert reservation: %w", err)
	}
	return nil
}

func (c *conn) TransitionReservation(ctx context.Context, id facility.ReservationID, from, to facility.ReservationStatus, at time.Time) error {
	res, err := c.q.ExecContext(ctx,
		`UPDATE reservations SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to, formatTime(at), id, from,
	)
	if err != nil {
		return fmt.Errorf("failed to update reservation: %w", err)
	}
	return expectOne(res, fmt.Errorf("reservation %s not %s: %w", id, from, facility.ErrNotActive))
}

// ExpireReservations relies on zero-padded text: '2026-03-10' and '09:00'
// compare correctly as strings.
func (c *conn) ExpireReservations(ctx context.Context, today facility.Date, now facility.TimeOfDay, at time.Time) (int, error) {
	res, err := c.q.ExecContext(ctx, `
		UPDATE reservations
		SET status = 'expired', updated_at = ?
		WHERE status = 'active'
		  AND (reserved_date < ? OR (reserved_date = ? AND cutoff_time <= ?))`,
		formatTime(at), today.String(), today.String(), now.String(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to expire reservations: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return int(n), nil
}

func (c *conn) queryReservations(ctx context.Context, query string, args ...any) ([]facility.Reservation, error) {
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reservations: %w", err)
	}
	defer rows.Close()

	var rs []facility.Reservation
	for rows.Next() {
		var (
			r                    facility.Reservation
			date, cutoff, amount string
			createdAt, updatedAt string
		)
		if err := rows.Scan(&r.ID, &r.KioskID, &r.KioskNumber, &r.PersonID, &r.PersonName, &r.MemberNumber,
			&date, &cutoff, &r.Status, &amount, &r.Notes, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		if r.Date, err = facility.ParseDate(date); err != nil {
			return nil, err
		}
		if r.Cutoff, err = facility.ParseTimeOfDay(cutoff); err != nil {
			return nil, err
		}
		if r.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("bad reservation amount %q: %w", amount, err)
		}
		if r.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if r.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		rs = append(rs, r)
	}
	return rs, rows.Err()
}

// =============================================================================
// RESERVATION CONFIG
// =============================================================================

func (c *conn) ReservationConfig(ctx context.Context) (facility.ReservationConfig, error) {
	var (
		cfg                            facility.ReservationConfig
		openingTime, cutoffTime, price string
		allowMultiple                  int
	)
	err := c.q.QueryRowContext(ctx, `
		SELECT opening_weekday, opening_time, cycle_start_weekday, daily_cutoff_time,
		       max_advance_days, default_price, allow_multiple_per_person
		FROM reservation_config WHERE id = 1`,
	).Scan(&cfg.OpeningWeekday, &openingTime, &cfg.CycleStartWeekday, &cutoffTime,
		&cfg.MaxAdvanceDays, &price, &allowMultiple)
	if errors.Is(err, sql.ErrNoRows) {
		return cfg, fmt.Errorf("reservation config: %w", facility.ErrNotFound)
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to load reservation config: %w", err)
	}

	if cfg.OpeningTime, err = facility.ParseTimeOfDay(openingTime); err != nil {
		return cfg, err
	}
	if cfg.DailyCutoffTime, err = facility.ParseTimeOfDay(cutoffTime); err != nil {
		return cfg, err
	}
	if cfg.DefaultPrice, err = decimal.NewFromString(price); err != nil {
		return cfg, fmt.Errorf("bad default price %q: %w", price, err)
	}
	cfg.AllowMultiplePerPerson = allowMultiple != 0
	return cfg, nil
}

func (c *conn) SaveReservationConfig(ctx context.Context, cfg facility.ReservationConfig) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO reservation_config (id, opening_weekday, opening_time, cycle_start_weekday,
			daily_cutoff_time, max_advance_days, default_price, allow_multiple_per_person, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			opening_weekday = excluded.opening_weekday,
			opening_time = excluded.opening_time,
			cycle_start_weekday = excluded.cycle_start_weekday,
			daily_cutoff_time = excluded.daily_cutoff_time,
			max_advance_days = excluded.max_advance_days,
			default_price = excluded.default_price,
			allow_multiple_per_person = excluded.allow_multiple_per_person,
			updated_at = excluded.updated_at`,
		int(cfg.OpeningWeekday), cfg.OpeningTime.String(), int(cfg.CycleStartWeekday),
		cfg.DailyCutoffTime.String(), cfg.MaxAdvanceDays, cfg.DefaultPrice.String(),
		boolInt(cfg.AllowMultiplePerPerson), formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("failed to save reservation config: %w", err)
	}
	return nil
}
