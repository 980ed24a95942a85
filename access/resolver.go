/*
Package access decides who may pass a gate and keeps the gate log.

PURPOSE:
  A front-desk scan arrives as a raw string (national ID, card code, member
  number). This package turns it into a person, judges whether that person
  may go in, and appends the entry or exit to the access ledger.

COMPONENTS:
  Resolver:  scanned code -> ResolvedPerson (member first, then dependent)
  Evaluator: ResolvedPerson + purpose -> Verdict{Allowed, Reason, Advisories}
  Ledger:    append-only gate log; direction from the explicit GateState
  Gate:      resolve -> evaluate -> log, the flow the desk screen drives

FAILURE MODEL:
  Every external lookup is bounded by a timeout. A failed or slow lookup is
  a DependencyError and the evaluator fails closed: a check that could not
  be made never counts as passed.

SEE ALSO:
  - facility/errors.go: DeniedError, DependencyError
  - directory/: Directory, Billing and MedicalRecords implementations
*/
package access

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/warp/club-engine/facility"
)

// =============================================================================
// EXTERNAL COLLABORATORS
// =============================================================================

// Directory is the member registry. Find* methods return (nil, nil) when
// nothing matches.
type Directory interface {
	FindMemberByCode(ctx context.Context, code string) (*facility.Person, error)
	FindDependentByCode(ctx context.Context, code string) (*facility.Person, error)
	FindPersonByID(ctx context.Context, id facility.PersonID) (*facility.Person, error)
}

// Billing answers whether a person has no overdue balance.
type Billing interface {
	IsInGoodStanding(ctx context.Context, id facility.PersonID) (bool, error)
}

// MedicalRecords answers whether a person holds a valid, approved exam.
type MedicalRecords interface {
	HasValidExam(ctx context.Context, id facility.PersonID) (bool, error)
}

// =============================================================================
// RESOLVER
// =============================================================================

type Resolver struct {
	directory Directory
	timeout   time.Duration
}

func NewResolver(directory Directory, timeout time.Duration) *Resolver {
	return &Resolver{directory: directory, timeout: timeout}
}

// Resolve maps a scanned code to a person. Members are tried before
// dependents; a code valid on both resolves to the member.
func (r *Resolver) Resolve(ctx context.Context, code string) (facility.ResolvedPerson, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return facility.ResolvedPerson{}, facility.ErrInvalidCode
	}

	member, err := bounded(ctx, r.timeout, "directory", func(ctx context.Context) (*facility.Person, error) {
		return r.directory.FindMemberByCode(ctx, code)
	})
	if err != nil {
		return facility.ResolvedPerson{}, err
	}
	if member != nil {
		return facility.ResolvedPerson{Person: *member}, nil
	}

	dependent, err := bounded(ctx, r.timeout, "directory", func(ctx context.Context) (*facility.Person, error) {
		return r.directory.FindDependentByCode(ctx, code)
	})
	if err != nil {
		return facility.ResolvedPerson{}, err
	}
	if dependent == nil {
		return facility.ResolvedPerson{}, fmt.Errorf("code %q: %w", code, facility.ErrNotFound)
	}
	return r.withGuarantor(ctx, *dependent)
}

// ResolveID loads a person by internal ID, used when the desk already
// picked someone from a list instead of scanning.
func (r *Resolver) ResolveID(ctx context.Context, id facility.PersonID) (facility.ResolvedPerson, error) {
	if strings.TrimSpace(string(id)) == "" {
		return facility.ResolvedPerson{}, facility.ErrInvalidCode
	}
	p, err := bounded(ctx, r.timeout, "directory", func(ctx context.Context) (*facility.Person, error) {
		return r.directory.FindPersonByID(ctx, id)
	})
	if err != nil {
		return facility.ResolvedPerson{}, err
	}
	if p == nil {
		return facility.ResolvedPerson{}, fmt.Errorf("person %s: %w", id, facility.ErrNotFound)
	}
	if p.IsDependent() {
		return r.withGuarantor(ctx, *p)
	}
	return facility.ResolvedPerson{Person: *p}, nil
}

// withGuarantor attaches the guarantor. A missing guarantor is not an error
// here; the evaluator denies such a dependent.
func (r *Resolver) withGuarantor(ctx context.Context, dependent facility.Person) (facility.ResolvedPerson, error) {
	rp := facility.ResolvedPerson{Person: dependent}
	if dependent.GuarantorID == "" {
		return rp, nil
	}
	guarantor, err := bounded(ctx, r.timeout, "directory", func(ctx context.Context) (*facility.Person, error) {
		return r.directory.FindPersonByID(ctx, dependent.GuarantorID)
	})
	if err != nil {
		return facility.ResolvedPerson{}, err
	}
	rp.Guarantor = guarantor
	return rp, nil
}
