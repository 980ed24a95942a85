/*
Package directory provides the member registry, billing standing and
medical-exam lookups the gate relies on.

PURPOSE:
  The club's registry, dues and exam records are owned by other screens.
  The engine reads them through the access.Directory, access.Billing and
  access.MedicalRecords interfaces; this package holds the implementations.

IMPLEMENTATIONS:
  Memory:        in-process registry for tests, demos and scenarios
  SQL:           reads the registry tables from the engine's SQLite file
  StandingCache: Redis read-through cache in front of any Billing

RULES SHARED BY ALL IMPLEMENTATIONS:
  - A member matches by id, member number, national id or card code
  - A dependent matches by id, national id or card code
  - Good standing means no pending due dated before today
  - A valid exam is an approved exam with valid_until >= today
*/
package directory

import (
	"context"
	"strings"
	"sync"

	"github.com/warp/club-engine/access"
	"github.com/warp/club-engine/facility"
)

// Codes are the identifiers a person can be scanned with besides their ID.
type Codes struct {
	NationalID string
	CardCode   string
}

// Registry is a directory that can also be written, used by seeding.
type Registry interface {
	access.Directory
	access.Billing
	access.MedicalRecords

	RegisterPerson(ctx context.Context, p facility.Person, codes Codes) error
	AddDue(ctx context.Context, personID facility.PersonID, dueDate facility.Date) error
	SettleDues(ctx context.Context, personID facility.PersonID) error
	RecordExam(ctx context.Context, personID facility.PersonID, validUntil facility.Date) error
}

var _ Registry = (*Memory)(nil)

// Memory is an in-process Registry.
type Memory struct {
	clock facility.Clock

	mu             sync.RWMutex
	people         map[facility.PersonID]facility.Person
	memberCodes    map[string]facility.PersonID
	dependentCodes map[string]facility.PersonID
	dues           map[facility.PersonID][]facility.Date
	exams          map[facility.PersonID]facility.Date
}

func NewMemory(clock facility.Clock) *Memory {
	return &Memory{
		clock:          clock,
		people:         make(map[facility.PersonID]facility.Person),
		memberCodes:    make(map[string]facility.PersonID),
		dependentCodes: make(map[string]facility.PersonID),
		dues:           make(map[facility.PersonID][]facility.Date),
		exams:          make(map[facility.PersonID]facility.Date),
	}
}

func (m *Memory) RegisterPerson(_ context.Context, p facility.Person, codes Codes) error {
	if p.ID == "" {
		return facility.Invalid("id", "required")
	}
	if p.Kind == facility.KindDependent && p.GuarantorID == "" {
		return facility.Invalid("guarantor_id", "required for dependents")
	}
	if p.Status == "" {
		p.Status = facility.StatusActive
	}
	if p.Kind != facility.KindDependent {
		p.Kind = facility.KindMember
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.people[p.ID] = p
	index := m.memberCodes
	if p.Kind == facility.KindDependent {
		index = m.dependentCodes
	}
	for _, code := range []string{string(p.ID), p.MemberNumber, codes.NationalID, codes.CardCode} {
		if code = normalize(code); code != "" {
			index[code] = p.ID
		}
	}
	return nil
}

// SetStatus changes a registered person's status. Unknown IDs are ignored.
func (m *Memory) SetStatus(id facility.PersonID, status facility.PersonStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.people[id]; ok {
		p.Status = status
		m.people[id] = p
	}
}

func (m *Memory) AddDue(_ context.Context, personID facility.PersonID, dueDate facility.Date) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dues[personID] = append(m.dues[personID], dueDate)
	return nil
}

func (m *Memory) SettleDues(_ context.Context, personID facility.PersonID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.dues, personID)
	return nil
}

func (m *Memory) RecordExam(_ context.Context, personID facility.PersonID, validUntil facility.Date) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.exams[personID]; !ok || validUntil.After(cur) {
		m.exams[personID] = validUntil
	}
	return nil
}

// =============================================================================
// LOOKUPS
// =============================================================================

func (m *Memory) FindMemberByCode(_ context.Context, code string) (*facility.Person, error) {
	return m.find(m.memberCodes, code), nil
}

func (m *Memory) FindDependentByCode(_ context.Context, code string) (*facility.Person, error) {
	return m.find(m.dependentCodes, code), nil
}

func (m *Memory) FindPersonByID(_ context.Context, id facility.PersonID) (*facility.Person, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.people[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *Memory) find(index map[string]facility.PersonID, code string) *facility.Person {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := index[normalize(code)]
	if !ok {
		return nil
	}
	p := m.people[id]
	return &p
}

func (m *Memory) IsInGoodStanding(_ context.Context, id facility.PersonID) (bool, error) {
	today := facility.DateOf(m.clock.Now())

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, due := range m.dues[id] {
		if due.Before(today) {
			return false, nil
		}
	}
	return true, nil
}

func (m *Memory) HasValidExam(_ context.Context, id facility.PersonID) (bool, error) {
	today := facility.DateOf(m.clock.Now())

	m.mu.RLock()
	defer m.mu.RUnlock()
	until, ok := m.exams[id]
	return ok && !until.Before(today), nil
}

func normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
