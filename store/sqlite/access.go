package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/warp/club-engine/facility"
)

// =============================================================================
// ACCESS RECORDS (append-only)
// =============================================================================

const accessColumns = `id, person_id, person_kind, location, direction, seq, operator_id, occurred_at`

func (c *conn) AppendAccess(ctx context.Context, rec facility.AccessRecord) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO access_records (`+accessColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.PersonID, rec.PersonKind, rec.Location, rec.Direction,
		rec.Seq, nullString(rec.OperatorID), formatTime(rec.Timestamp),
	)
	if cols, ok := uniqueViolation(err); ok && strings.Contains(cols, "access_records.seq") {
		return fmt.Errorf("access %s/%s seq %d: %w", rec.PersonID, rec.Location, rec.Seq, facility.ErrConcurrentModification)
	}
	if err != nil {
		return fmt.Errorf("failed to append access record: %w", err)
	}
	return nil
}

func (c *conn) LastAccess(ctx context.Context, personID facility.PersonID, location string) (*facility.AccessRecord, error) {
	records, err := c.queryAccess(ctx, `
		SELECT `+accessColumns+` FROM access_records
		WHERE person_id = ? AND location = ?
		ORDER BY seq DESC LIMIT 1`, personID, location)
	if err != nil || len(records) == 0 {
		return nil, err
	}
	return &records[0], nil
}

func (c *conn) ListAccess(ctx context.Context, filter facility.AccessFilter) ([]facility.AccessRecord, error) {
	var (
		where []string
		args  []any
	)
	if filter.PersonID != "" {
		where = append(where, "person_id = ?")
		args = append(args, filter.PersonID)
	}
	if filter.Location != "" {
		where = append(where, "location = ?")
		args = append(args, filter.Location)
	}
	if !filter.From.IsZero() {
		where = append(where, "occurred_at >= ?")
		args = append(args, formatTime(filter.From))
	}
	if !filter.To.IsZero() {
		where = append(where, "occurred_at < ?")
		args = append(args, formatTime(filter.To))
	}

	query := `SELECT ` + accessColumns + ` FROM access_records`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY occurred_at DESC, seq DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	return c.queryAccess(ctx, query, args...)
}

func (c *conn) LatestAccessPerPerson(ctx context.Context, location string) ([]facility.AccessRecord, error) {
	return c.queryAccess(ctx, `
		SELECT a.id, a.person_id, a.person_kind, a.location, a.direction, a.seq, a.operator_id, a.occurred_at
		FROM access_records a
		JOIN (
			SELECT person_id, MAX(seq) AS seq
			FROM access_records
			WHERE location = ?
			GROUP BY person_id
		) latest ON latest.person_id = a.person_id AND latest.seq = a.seq
		WHERE a.location = ?
		ORDER BY a.occurred_at DESC`, location, location)
}

func (c *conn) CountAccess(ctx context.Context, location string, from, to time.Time) (int, int, error) {
	var entries, exits int
	err := c.q.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN direction = 'entry' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN direction = 'exit' THEN 1 ELSE 0 END), 0)
		FROM access_records
		WHERE location = ? AND occurred_at >= ? AND occurred_at < ?`,
		location, formatTime(from), formatTime(to),
	).Scan(&entries, &exits)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count access records: %w", err)
	}
	return entries, exits, nil
}

func (c *conn) queryAccess(ctx context.Context, query string, args ...any) ([]facility.AccessRecord, error) {
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query access records: %w", err)
	}
	defer rows.Close()

	var records []facility.AccessRecord
	for rows.Next() {
		var (
			rec        facility.AccessRecord
			operatorID sql.NullString
			occurredAt string
		)
		if err := rows.Scan(&rec.ID, &rec.PersonID, &rec.PersonKind, &rec.Location,
			&rec.Direction, &rec.Seq, &operatorID, &occurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan access record: %w", err)
		}
		rec.OperatorID = operatorID.String
		if rec.Timestamp, err = parseTime(occurredAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
