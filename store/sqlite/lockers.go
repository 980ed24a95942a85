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
// LOCKERS
// =============================================================================

func (c *conn) GetLocker(ctx context.Context, id facility.LockerID) (*facility.Locker, error) {
	var l facility.Locker
	err := c.q.QueryRowContext(ctx,
		`SELECT id, number, code, status FROM lockers WHERE id = ?`, id,
	).Scan(&l.ID, &l.Number, &l.Code, &l.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("locker %s: %w", id, facility.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get locker: %w", err)
	}
	return &l, nil
}

func (c *conn) ListLockers(ctx context.Context) ([]facility.Locker, error) {
	rows, err := c.q.QueryContext(ctx, `SELECT id, number, code, status FROM lockers ORDER BY number`)
	if err != nil {
		return nil, fmt.Errorf("failed to list lockers: %w", err)
	}
	defer rows.Close()

	var lockers []facility.Locker
	for rows.Next() {
		var l facility.Locker
		if err := rows.Scan(&l.ID, &l.Number, &l.Code, &l.Status); err != nil {
			return nil, fmt.Errorf("failed to scan locker: %w", err)
		}
		lockers = append(lockers, l)
	}
	return lockers, rows.Err()
}

func (c *conn) InsertLocker(ctx context.Context, l facility.Locker) error {
	_, err := c.q.ExecContext(ctx,
		`INSERT INTO lockers (id, number, code, status) VALUES (?, ?, ?, ?)`,
		l.ID, l.Number, l.Code, l.Status,
	)
	if cols, ok := uniqueViolation(err); ok && strings.Contains(cols, "lockers.number") {
		return &facility.NumberConflictError{Numbers: []int{l.Number}}
	}
	if err != nil {
		return fmt.Errorf("failed to insert locker: %w", err)
	}
	return nil
}

func (c *conn) DeleteLocker(ctx context.Context, id facility.LockerID) error {
	res, err := c.q.ExecContext(ctx, `DELETE FROM lockers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete locker: %w", err)
	}
	return expectOne(res, fmt.Errorf("locker %s: %w", id, facility.ErrNotFound))
}

func (c *conn) SetLockerStatus(ctx context.Context, id facility.LockerID, from, to facility.LockerStatus) error {
	res, err := c.q.ExecContext(ctx,
		`UPDATE lockers SET status = ? WHERE id = ? AND status = ?`, to, id, from,
	)
	if err != nil {
		return fmt.Errorf("failed to update locker status: %w", err)
	}
	return expectOne(res, fmt.Errorf("locker %s not %s: %w", id, from, facility.ErrConcurrentModification))
}

// =============================================================================
// LOCKER USAGES
// =============================================================================

const usageColumns = `id, locker_id, locker_number, person_id, person_kind, operator_id,
	entered_at, exited_at, key_returned, key_lost, fine_amount`

func (c *conn) GetUsage(ctx context.Context, id facility.UsageID) (*facility.LockerUsage, error) {
	usages, err := c.queryUsages(ctx, `SELECT `+usageColumns+` FROM locker_usages WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(usages) == 0 {
		return nil, fmt.Errorf("usage %s: %w", id, facility.ErrNotFound)
	}
	return &usages[0], nil
}

func (c *conn) OpenUsageForPerson(ctx context.Context, personID facility.PersonID) (*facility.LockerUsage, error) {
	usages, err := c.queryUsages(ctx,
		`SELECT `+usageColumns+` FROM locker_usages WHERE person_id = ? AND exited_at IS NULL`, personID)
	if err != nil || len(usages) == 0 {
		return nil, err
	}
	return &usages[0], nil
}

func (c *conn) ListOpenUsages(ctx context.Context) ([]facility.LockerUsage, error) {
	return c.queryUsages(ctx,
		`SELECT `+usageColumns+` FROM locker_usages WHERE exited_at IS NULL ORDER BY entered_at`)
}

func (c *conn) InsertUsage(ctx context.Context, u facility.LockerUsage) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO locker_usages (id, locker_id, locker_number, person_id, person_kind, operator_id, entered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.LockerID, u.LockerNumber, u.PersonID, u.PersonKind,
		nullString(u.OperatorID), formatTime(u.EnteredAt),
	)
	if cols, ok := uniqueViolation(err); ok {
		switch {
		case strings.Contains(cols, "locker_usages.locker_id"):
			return facility.ErrLockerUnavailable
		case strings.Contains(cols, "locker_usages.person_id"):
			return facility.ErrPersonAlreadyHasLocker
		}
	}
	if err != nil {
		return fmt.Errorf("failed to insert usage: %w", err)
	}
	return nil
}

func (c *conn) CloseUsage(ctx context.Context, id facility.UsageID, exitedAt time.Time, keyLost bool, fineAmount *decimal.Decimal) error {
	res, err := c.q.ExecContext(ctx, `
		UPDATE locker_usages
		SET exited_at = ?, key_returned = ?, key_lost = ?, fine_amount = ?
		WHERE id = ? AND exited_at IS NULL`,
		formatTime(exitedAt), boolInt(!keyLost), boolInt(keyLost), nullDecimal(fineAmount), id,
	)
	if err != nil {
		return fmt.Errorf("failed to close usage: %w", err)
	}
	return expectOne(res, facility.ErrAlreadyClosed)
}

func (c *conn) queryUsages(ctx context.Context, query string, args ...any) ([]facility.LockerUsage, error) {
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query usages: %w", err)
	}
	defer rows.Close()

	var usages []facility.LockerUsage
	for rows.Next() {
		var (
			u           facility.LockerUsage
			operatorID  sql.NullString
			enteredAt   string
			exitedAt    sql.NullString
			keyReturned sql.NullInt64
			keyLost     sql.NullInt64
			fineAmount  sql.NullString
		)
		if err := rows.Scan(&u.ID, &u.LockerID, &u.LockerNumber, &u.PersonID, &u.PersonKind, &operatorID,
			&enteredAt, &exitedAt, &keyReturned, &keyLost, &fineAmount); err != nil {
			return nil, fmt.Errorf("failed to scan usage: %w", err)
		}
		u.OperatorID = operatorID.String
		if u.EnteredAt, err = parseTime(enteredAt); err != nil {
			return nil, err
		}
		if u.ExitedAt, err = parseNullTime(exitedAt); err != nil {
			return nil, err
		}
		if u.FineAmount, err = parseNullDecimal(fineAmount); err != nil {
			return nil, err
		}
		u.KeyReturned = nullBool(keyReturned)
		u.KeyLost = nullBool(keyLost)
		usages = append(usages, u)
	}
	return usages, rows.Err()
}

// =============================================================================
// FINES
// =============================================================================

const fineColumns = `id, usage_id, person_id, amount, reason, status, created_at, updated_at`

func (c *conn) GetFine(ctx context.Context, id facility.FineID) (*facility.Fine, error) {
	fines, err := c.queryFines(ctx, `SELECT `+fineColumns+` FROM fines WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(fines) == 0 {
		return nil, fmt.Errorf("fine %s: %w", id, facility.ErrNotFound)
	}
	return &fines[0], nil
}

func (c *conn) ListFines(ctx context.Context, filter facility.FineFilter) ([]facility.Fine, error) {
	query := `SELECT ` + fineColumns + ` FROM fines WHERE (? = '' OR person_id = ?) AND (? = '' OR status = ?)
		ORDER BY created_at DESC`
	return c.queryFines(ctx, query, filter.PersonID, filter.PersonID, filter.Status, filter.Status)
}

func (c *conn) InsertFine(ctx context.Context, f facility.Fine) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO fines (`+fineColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.UsageID, f.PersonID, f.Amount.String(), f.Reason, f.Status,
		formatTime(f.CreatedAt), formatTime(f.UpdatedAt),
	)
	if cols, ok := uniqueViolation(err); ok && strings.Contains(cols, "fines.usage_id") {
		return facility.ErrAlreadyClosed
	}
	if err != nil {
		return fmt.Errorf("failed to insert fine: %w", err)
	}
	return nil
}

func (c *conn) UpdateFineStatus(ctx context.Context, id facility.FineID, from, to facility.FineStatus, at time.Time) error {
	res, err := c.q.ExecContext(ctx,
		`UPDATE fines SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to, formatTime(at), id, from,
	)
	if err != nil {
		return fmt.Errorf("failed to update fine: %w", err)
	}
	return expectOne(res, fmt.Errorf("fine %s not %s: %w", id, from, facility.ErrInvalidTransition))
}

func (c *conn) queryFines(ctx context.Context, query string, args ...any) ([]facility.Fine, error) {
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query fines: %w", err)
	}
	defer rows.Close()

	var fines []facility.Fine
	for rows.Next() {
		var (
			f                    facility.Fine
			amount               string
			createdAt, updatedAt string
		)
		if err := rows.Scan(&f.ID, &f.UsageID, &f.PersonID, &amount, &f.Reason, &f.Status,
			&createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan fine: %w", err)
		}
		if f.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("bad fine amount %q: %w", amount, err)
		}
		if f.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if f.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		fines = append(fines, f)
	}
	return fines, rows.Err()
}
