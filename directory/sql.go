package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/warp/club-engine/facility"
)

var _ Registry = (*SQL)(nil)

const examApproved = "approved"

// SQL reads the registry tables (members, dependents, dues, medical_exams)
// created by the sqlite store's migrations. The write methods exist for
// seeding and tests; production data arrives through the registry screens.
type SQL struct {
	db    *sql.DB
	clock facility.Clock
}

func NewSQL(db *sql.DB, clock facility.Clock) *SQL {
	return &SQL{db: db, clock: clock}
}

const (
	memberSelect    = `SELECT id, name, COALESCE(member_number, ''), status FROM members`
	dependentSelect = `SELECT d.id, d.name, COALESCE(m.member_number, ''), d.status, d.guarantor_id
		FROM dependents d LEFT JOIN members m ON m.id = d.guarantor_id`
)

func (s *SQL) FindMemberByCode(ctx context.Context, code string) (*facility.Person, error) {
	code = strings.TrimSpace(code)
	row := s.db.QueryRowContext(ctx, memberSelect+`
		WHERE id = ? OR UPPER(member_number) = UPPER(?) OR UPPER(national_id) = UPPER(?) OR UPPER(card_code) = UPPER(?)
		ORDER BY id LIMIT 1`, code, code, code, code)
	return scanMember(row)
}

func (s *SQL) FindDependentByCode(ctx context.Context, code string) (*facility.Person, error) {
	code = strings.TrimSpace(code)
	row := s.db.QueryRowContext(ctx, dependentSelect+`
		WHERE d.id = ? OR UPPER(d.national_id) = UPPER(?) OR UPPER(d.card_code) = UPPER(?)
		ORDER BY d.id LIMIT 1`, code, code, code)
	return scanDependent(row)
}

func (s *SQL) FindPersonByID(ctx context.Context, id facility.PersonID) (*facility.Person, error) {
	p, err := scanMember(s.db.QueryRowContext(ctx, memberSelect+` WHERE id = ?`, id))
	if err != nil || p != nil {
		return p, err
	}
	return scanDependent(s.db.QueryRowContext(ctx, dependentSelect+` WHERE d.id = ?`, id))
}

func scanMember(row *sql.Row) (*facility.Person, error) {
	var p facility.Person
	err := row.Scan(&p.ID, &p.Name, &p.MemberNumber, &p.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan member: %w", err)
	}
	p.Kind = facility.KindMember
	return &p, nil
}

// Dependents carry their guarantor's member number.
func scanDependent(row *sql.Row) (*facility.Person, error) {
	var p facility.Person
	err := row.Scan(&p.ID, &p.Name, &p.MemberNumber, &p.Status, &p.GuarantorID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan dependent: %w", err)
	}
	p.Kind = facility.KindDependent
	return &p, nil
}

// =============================================================================
// BILLING & EXAMS
// =============================================================================

func (s *SQL) IsInGoodStanding(ctx context.Context, id facility.PersonID) (bool, error) {
	today := facility.DateOf(s.clock.Now())
	var overdue int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM dues
		WHERE person_id = ? AND status = 'pending' AND due_date < ?`,
		id, today.String(),
	).Scan(&overdue)
	if err != nil {
		return false, fmt.Errorf("failed to check dues: %w", err)
	}
	return overdue == 0, nil
}

func (s *SQL) HasValidExam(ctx context.Context, id facility.PersonID) (bool, error) {
	today := facility.DateOf(s.clock.Now())
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM medical_exams
		WHERE person_id = ? AND status = ? AND valid_until >= ?`,
		id, examApproved, today.String(),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check exams: %w", err)
	}
	return n > 0, nil
}

// =============================================================================
// WRITES - seeding only
// =============================================================================

func (s *SQL) RegisterPerson(ctx context.Context, p facility.Person, codes Codes) error {
	if p.ID == "" {
		return facility.Invalid("id", "required")
	}
	if p.Status == "" {
		p.Status = facility.StatusActive
	}

	var err error
	if p.Kind == facility.KindDependent {
		if p.GuarantorID == "" {
			return facility.Invalid("guarantor_id", "required for dependents")
		}
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO dependents (id, guarantor_id, name, national_id, card_code, status)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				guarantor_id = excluded.guarantor_id, name = excluded.name,
				national_id = excluded.national_id, card_code = excluded.card_code,
				status = excluded.status`,
			p.ID, p.GuarantorID, p.Name, nullable(codes.NationalID), nullable(codes.CardCode), p.Status)
	} else {
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO members (id, name, member_number, national_id, card_code, status)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name, member_number = excluded.member_number,
				national_id = excluded.national_id, card_code = excluded.card_code,
				status = excluded.status`,
			p.ID, p.Name, nullable(p.MemberNumber), nullable(codes.NationalID), nullable(codes.CardCode), p.Status)
	}
	if err != nil {
		return fmt.Errorf("failed to register %s: %w", p.ID, err)
	}
	return nil
}

func (s *SQL) AddDue(ctx context.Context, personID facility.PersonID, dueDate facility.Date) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dues (id, person_id, due_date, status) VALUES (?, ?, ?, 'pending')`,
		uuid.NewString(), personID, dueDate.String())
	if err != nil {
		return fmt.Errorf("failed to add due: %w", err)
	}
	return nil
}

func (s *SQL) SettleDues(ctx context.Context, personID facility.PersonID) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE dues SET status = 'paid' WHERE person_id = ? AND status = 'pending'`, personID)
	if err != nil {
		return fmt.Errorf("failed to settle dues: %w", err)
	}
	return nil
}

func (s *SQL) RecordExam(ctx context.Context, personID facility.PersonID, validUntil facility.Date) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO medical_exams (id, person_id, status, valid_until) VALUES (?, ?, ?, ?)`,
		uuid.NewString(), personID, examApproved, validUntil.String())
	if err != nil {
		return fmt.Errorf("failed to record exam: %w", err)
	}
	return nil
}

func nullable(s string) any {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return s
}
