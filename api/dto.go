/*
dto.go - Data Transfer Objects for the HTTP API

PURPOSE:
  Defines the JSON shapes for requests and responses. Domain types stay
  free of json tags; the conversion helpers at the bottom map between them.

CONVENTIONS:
  - IDs are strings
  - Dates are YYYY-MM-DD, times of day HH:MM
  - Timestamps are RFC3339
  - Money is a decimal string with two places ("50.00")

SEE ALSO:
  - handlers.go: Uses these DTOs
  - facility/types.go: Domain types
*/
package api

import (
	"time"

	"github.com/warp/club-engine/access"
	"github.com/warp/club-engine/facility"
	"github.com/warp/club-engine/kiosk"
	"github.com/warp/club-engine/sauna"
)

// =============================================================================
// GATE DTOs
// =============================================================================

// EvaluateRequest is the body of POST /api/gate/evaluate and /api/gate/scan.
type EvaluateRequest struct {
	Code       string `json:"code"`
	Purpose    string `json:"purpose,omitempty"`
	Location   string `json:"location,omitempty"`
	OperatorID string `json:"operator_id,omitempty"`
}

// LogAccessRequest is the body of POST /api/gate/access. Direction is
// optional; when empty the pass flips the person's current state.
type LogAccessRequest struct {
	PersonID   string `json:"person_id"`
	Location   string `json:"location"`
	OperatorID string `json:"operator_id,omitempty"`
	Direction  string `json:"direction,omitempty"`
}

type PersonDTO struct {
	ID           string     `json:"id"`
	Kind         string     `json:"kind"`
	Status       string     `json:"status"`
	Name         string     `json:"name"`
	MemberNumber string     `json:"member_number,omitempty"`
	GuarantorID  string     `json:"guarantor_id,omitempty"`
	Guarantor    *PersonDTO `json:"guarantor,omitempty"`
}

type VerdictDTO struct {
	Allowed    bool     `json:"allowed"`
	Reason     string   `json:"reason,omitempty"`
	Advisories []string `json:"advisories"`
}

type DecisionDTO struct {
	Person   PersonDTO        `json:"person"`
	Purpose  string           `json:"purpose"`
	Location string           `json:"location,omitempty"`
	Verdict  VerdictDTO       `json:"verdict"`
	State    string           `json:"state,omitempty"`
	Record   *AccessRecordDTO `json:"record,omitempty"`
}

type AccessRecordDTO struct {
	ID         string `json:"id"`
	PersonID   string `json:"person_id"`
	PersonKind string `json:"person_kind"`
	Location   string `json:"location"`
	Direction  string `json:"direction"`
	Timestamp  string `json:"timestamp"`
	OperatorID string `json:"operator_id,omitempty"`
	Seq        int64  `json:"seq"`
}

type DailyStatsDTO struct {
	Location string `json:"location"`
	Date     string `json:"date"`
	Entries  int    `json:"entries"`
	Exits    int    `json:"exits"`
	Present  int    `json:"present"`
}

// =============================================================================
// SAUNA DTOs
// =============================================================================

// AddLockersRequest is the body of POST /api/sauna/lockers.
type AddLockersRequest struct {
	Start    int `json:"start"`
	Quantity int `json:"quantity"`
}

// LockerStatusRequest is the body of PUT /api/sauna/lockers/{id}/status.
type LockerStatusRequest struct {
	Status string `json:"status"`
}

// AssignRequest is the body of POST /api/sauna/usages. Either Code (a
// scanned identifier) or PersonID must be set.
type AssignRequest struct {
	Code       string `json:"code,omitempty"`
	PersonID   string `json:"person_id,omitempty"`
	LockerID   string `json:"locker_id"`
	OperatorID string `json:"operator_id,omitempty"`
}

// ReleaseRequest is the body of POST /api/sauna/usages/{id}/release.
// FineAmount is only read when KeyLost is set.
type ReleaseRequest struct {
	KeyLost    bool    `json:"key_lost"`
	FineAmount *string `json:"fine_amount,omitempty"`
}

type LockerDTO struct {
	ID     string `json:"id"`
	Number int    `json:"number"`
	Code   string `json:"code"`
	Status string `json:"status"`
}

type LockerSummaryDTO struct {
	Total       int         `json:"total"`
	Available   int         `json:"available"`
	Occupied    int         `json:"occupied"`
	Maintenance int         `json:"maintenance"`
	Lockers     []LockerDTO `json:"lockers"`
}

type UsageDTO struct {
	ID           string  `json:"id"`
	LockerID     string  `json:"locker_id"`
	LockerNumber int     `json:"locker_number"`
	PersonID     string  `json:"person_id"`
	PersonKind   string  `json:"person_kind"`
	OperatorID   string  `json:"operator_id,omitempty"`
	EnteredAt    string  `json:"entered_at"`
	ExitedAt     *string `json:"exited_at,omitempty"`
	KeyReturned  *bool   `json:"key_returned,omitempty"`
	KeyLost      *bool   `json:"key_lost,omitempty"`
	FineAmount   *string `json:"fine_amount,omitempty"`
}

type ReleaseResponse struct {
	Usage UsageDTO `json:"usage"`
	Fine  *FineDTO `json:"fine,omitempty"`
}

type FineDTO struct {
	ID        string `json:"id"`
	UsageID   string `json:"usage_id"`
	PersonID  string `json:"person_id"`
	Amount    string `json:"amount"`
	Reason    string `json:"reason"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// FineStatusRequest is the body of POST /api/fines/{id}/status.
type FineStatusRequest struct {
	Status string `json:"status"`
}

// =============================================================================
// KIOSK DTOs
// =============================================================================

type KioskDTO struct {
	ID            string  `json:"id"`
	Number        int     `json:"number"`
	Name          string  `json:"name"`
	Capacity      int     `json:"capacity"`
	Active        bool    `json:"active"`
	PriceOverride *string `json:"price_override,omitempty"`
}

// CreateReservationRequest is the body of POST /api/reservations.
type CreateReservationRequest struct {
	KioskID      string `json:"kiosk_id"`
	Code         string `json:"code,omitempty"`
	PersonID     string `json:"person_id,omitempty"`
	Date         string `json:"date"`
	Notes        string `json:"notes,omitempty"`
	BypassWindow bool   `json:"bypass_window,omitempty"`
}

type ReservationDTO struct {
	ID           string `json:"id"`
	KioskID      string `json:"kiosk_id"`
	KioskNumber  int    `json:"kiosk_number"`
	PersonID     string `json:"person_id"`
	PersonName   string `json:"person_name"`
	MemberNumber string `json:"member_number,omitempty"`
	Date         string `json:"date"`
	Cutoff       string `json:"cutoff"`
	Status       string `json:"status"`
	Amount       string `json:"amount"`
	Notes        string `json:"notes,omitempty"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

type ReceiptDTO struct {
	ReservationID string `json:"reservation_id"`
	KioskNumber   int    `json:"kiosk_number"`
	PersonName    string `json:"person_name"`
	MemberNumber  string `json:"member_number,omitempty"`
	Date          string `json:"date"`
	Cutoff        string `json:"cutoff"`
	Amount        string `json:"amount"`
	Status        string `json:"status"`
	IssuedAt      string `json:"issued_at"`
}

type WindowDTO struct {
	Open        bool    `json:"open"`
	CycleStart  string  `json:"cycle_start"`
	OpenedAt    *string `json:"opened_at,omitempty"`
	NextOpening string  `json:"next_opening"`
	FirstDate   string  `json:"first_bookable_date"`
	LastDate    string  `json:"last_bookable_date"`
}

type SweepResponse struct {
	Expired int    `json:"expired"`
	At      string `json:"at"`
}

// =============================================================================
// SCENARIO DTOs
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is returned when an error occurs.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func formatTime(t time.Time) string {
	return t.Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func toPersonDTO(p facility.Person) PersonDTO {
	return PersonDTO{
		ID:           string(p.ID),
		Kind:         string(p.Kind),
		Status:       string(p.Status),
		Name:         p.Name,
		MemberNumber: p.MemberNumber,
		GuarantorID:  string(p.GuarantorID),
	}
}

func toResolvedDTO(rp facility.ResolvedPerson) PersonDTO {
	dto := toPersonDTO(rp.Person)
	if rp.Guarantor != nil {
		g := toPersonDTO(*rp.Guarantor)
		dto.Guarantor = &g
	}
	return dto
}

func toVerdictDTO(v access.Verdict) VerdictDTO {
	advisories := v.Advisories
	if advisories == nil {
		advisories = []string{}
	}
	return VerdictDTO{Allowed: v.Allowed, Reason: string(v.Reason), Advisories: advisories}
}

func toDecisionDTO(d access.Decision) DecisionDTO {
	return DecisionDTO{
		Person:   toResolvedDTO(d.Person),
		Purpose:  string(d.Purpose),
		Location: d.Location,
		Verdict:  toVerdictDTO(d.Verdict),
		State:    string(d.State),
	}
}

func toAccessRecordDTO(r facility.AccessRecord) AccessRecordDTO {
	return AccessRecordDTO{
		ID:         string(r.ID),
		PersonID:   string(r.PersonID),
		PersonKind: string(r.PersonKind),
		Location:   r.Location,
		Direction:  string(r.Direction),
		Timestamp:  formatTime(r.Timestamp),
		OperatorID: r.OperatorID,
		Seq:        r.Seq,
	}
}

func toAccessRecordDTOs(records []facility.AccessRecord) []AccessRecordDTO {
	dtos := make([]AccessRecordDTO, len(records))
	for i, r := range records {
		dtos[i] = toAccessRecordDTO(r)
	}
	return dtos
}

func toLockerDTO(l facility.Locker) LockerDTO {
	return LockerDTO{ID: string(l.ID), Number: l.Number, Code: l.Code, Status: string(l.Status)}
}

func toLockerDTOs(lockers []facility.Locker) []LockerDTO {
	dtos := make([]LockerDTO, len(lockers))
	for i, l := range lockers {
		dtos[i] = toLockerDTO(l)
	}
	return dtos
}

func toSummaryDTO(s sauna.Summary, lockers []facility.Locker) LockerSummaryDTO {
	return LockerSummaryDTO{
		Total:       s.Total,
		Available:   s.Available,
		Occupied:    s.Occupied,
		Maintenance: s.Maintenance,
		Lockers:     toLockerDTOs(lockers),
	}
}

func toUsageDTO(u facility.LockerUsage) UsageDTO {
	dto := UsageDTO{
		ID:           string(u.ID),
		LockerID:     string(u.LockerID),
		LockerNumber: u.LockerNumber,
		PersonID:     string(u.PersonID),
		PersonKind:   string(u.PersonKind),
		OperatorID:   u.OperatorID,
		EnteredAt:    formatTime(u.EnteredAt),
		ExitedAt:     formatTimePtr(u.ExitedAt),
		KeyReturned:  u.KeyReturned,
		KeyLost:      u.KeyLost,
	}
	if u.FineAmount != nil {
		s := u.FineAmount.StringFixed(2)
		dto.FineAmount = &s
	}
	return dto
}

func toUsageDTOs(usages []facility.LockerUsage) []UsageDTO {
	dtos := make([]UsageDTO, len(usages))
	for i, u := range usages {
		dtos[i] = toUsageDTO(u)
	}
	return dtos
}

func toFineDTO(f facility.Fine) FineDTO {
	return FineDTO{
		ID:        string(f.ID),
		UsageID:   string(f.UsageID),
		PersonID:  string(f.PersonID),
		Amount:    f.Amount.StringFixed(2),
		Reason:    f.Reason,
		Status:    string(f.Status),
		CreatedAt: formatTime(f.CreatedAt),
		UpdatedAt: formatTime(f.UpdatedAt),
	}
}

func toKioskDTO(k facility.Kiosk) KioskDTO {
	dto := KioskDTO{
		ID:       string(k.ID),
		Number:   k.Number,
		Name:     k.Name,
		Capacity: k.Capacity,
		Active:   k.Active,
	}
	if k.PriceOverride != nil {
		s := k.PriceOverride.StringFixed(2)
		dto.PriceOverride = &s
	}
	return dto
}

func toKioskDTOs(kiosks []facility.Kiosk) []KioskDTO {
	dtos := make([]KioskDTO, len(kiosks))
	for i, k := range kiosks {
		dtos[i] = toKioskDTO(k)
	}
	return dtos
}

func toReservationDTO(r facility.Reservation) ReservationDTO {
	return ReservationDTO{
		ID:           string(r.ID),
		KioskID:      string(r.KioskID),
		KioskNumber:  r.KioskNumber,
		PersonID:     string(r.PersonID),
		PersonName:   r.PersonName,
		MemberNumber: r.MemberNumber,
		Date:         r.Date.String(),
		Cutoff:       r.Cutoff.String(),
		Status:       string(r.Status),
		Amount:       r.Amount.StringFixed(2),
		Notes:        r.Notes,
		CreatedAt:    formatTime(r.CreatedAt),
		UpdatedAt:    formatTime(r.UpdatedAt),
	}
}

func toReceiptDTO(r kiosk.Receipt) ReceiptDTO {
	return ReceiptDTO{
		ReservationID: string(r.ReservationID),
		KioskNumber:   r.KioskNumber,
		PersonName:    r.PersonName,
		MemberNumber:  r.MemberNumber,
		Date:          r.Date.String(),
		Cutoff:        r.Cutoff.String(),
		Amount:        r.Amount,
		Status:        string(r.Status),
		IssuedAt:      formatTime(r.IssuedAt),
	}
}

func toWindowDTO(w kiosk.Window, first, last facility.Date) WindowDTO {
	return WindowDTO{
		Open:        w.Open,
		CycleStart:  formatTime(w.CycleStart),
		OpenedAt:    formatTimePtr(w.OpenedAt),
		NextOpening: formatTime(w.NextOpening),
		FirstDate:   first.String(),
		LastDate:    last.String(),
	}
}
