/*
handlers.go - HTTP API handlers for the front desk

PURPOSE:
  Exposes the gate, sauna and kiosk engines via REST API. Handles HTTP
  request/response and JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Gate:
    POST   /api/gate/evaluate                 Resolve a code and judge eligibility
    POST   /api/gate/scan                     Resolve, judge, and log the pass
    POST   /api/gate/access                   Log a pass without judging (manual, optional direction)
    GET    /api/gate/{location}/present       Who is inside
    GET    /api/gate/{location}/stats?date=   Entries, exits, present
    GET    /api/gate/{location}/records       Recent passes

  Sauna:
    GET    /api/sauna/lockers                 Lockers plus status counts
    POST   /api/sauna/lockers                 Bulk add
    PUT    /api/sauna/lockers/{id}/status     available | maintenance
    DELETE /api/sauna/lockers/{id}            Remove a free locker
    POST   /api/sauna/usages                  Hand out a key
    POST   /api/sauna/usages/{id}/release     Take the key back (or record loss)
    GET    /api/sauna/usages/open             Keys currently out

  Fines:
    GET    /api/fines?person_id=&status=
    POST   /api/fines/{id}/status             paid | waived

  Kiosks & reservations:
    GET    /api/kiosks                        All kiosks
    POST   /api/kiosks                        Create or update
    GET    /api/kiosks/available?date=        Bookable on a date
    GET    /api/reservations/config
    PUT    /api/reservations/config
    GET    /api/reservations/window
    GET    /api/reservations
    POST   /api/reservations
    POST   /api/reservations/{id}/cancel
    POST   /api/reservations/{id}/use
    GET    /api/reservations/{id}/receipt

  Admin:
    POST   /api/admin/sweep                   Run one expiry sweep now

ERROR HANDLING:
  Errors are returned as JSON with an HTTP status picked by statusFor:
  - 400: Validation errors, invalid input or code
  - 403: Eligibility denial (code carries the reason)
  - 404: Unknown person, locker, kiosk or reservation
  - 409: Custody and state conflicts (slot taken, locker occupied, ...)
  - 503: Directory, billing or exam lookup failed
  - 500: Internal errors

SECURITY NOTE:
  No authentication. Operator IDs are taken from the request as given.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo data loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/club-engine/access"
	"github.com/warp/club-engine/directory"
	"github.com/warp/club-engine/facility"
	"github.com/warp/club-engine/factory"
	"github.com/warp/club-engine/kiosk"
	"github.com/warp/club-engine/sauna"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Gate          *access.Gate
	Lockers       *sauna.Allocator
	Kiosks        *kiosk.Scheduler
	PolicyFactory *factory.PolicyFactory

	// Registry is the writable directory used by demo scenarios. Nil
	// disables POST /api/scenarios/load.
	Registry directory.Registry

	clock  facility.Clock
	logger *zap.Logger

	// Track currently loaded scenario
	scenarioMu      sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler. logger may be nil.
func NewHandler(gate *access.Gate, lockers *sauna.Allocator, kiosks *kiosk.Scheduler, clock facility.Clock, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Gate:          gate,
		Lockers:       lockers,
		Kiosks:        kiosks,
		PolicyFactory: factory.NewPolicyFactory(),
		clock:         clock,
		logger:        logger,
	}
}

// =============================================================================
// GATE HANDLERS
// =============================================================================

// Evaluate resolves a scanned code and returns the decision without logging.
// POST /api/gate/evaluate
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if !decodeBody(w, r, &req) {
		return
	}

	d, err := h.Gate.ResolveAndEvaluate(r.Context(), req.Code, access.Purpose(req.Purpose), req.Location)
	if err != nil {
		h.writeDecisionError(w, err, d)
		return
	}
	writeJSON(w, http.StatusOK, toDecisionDTO(d))
}

// Scan is the turnstile flow. A denied person gets 403 with the decision in
// details and nothing is logged.
// POST /api/gate/scan
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.Gate.ScanAndLog(r.Context(), req.Code, req.Location, req.OperatorID)
	if err != nil {
		h.writeDecisionError(w, err, res.Decision)
		return
	}

	dto := toDecisionDTO(res.Decision)
	if res.Record != nil {
		rec := toAccessRecordDTO(*res.Record)
		dto.Record = &rec
	}
	writeJSON(w, http.StatusCreated, dto)
}

// LogAccess records a pass for a known person without evaluation.
// POST /api/gate/access
func (h *Handler) LogAccess(w http.ResponseWriter, r *http.Request) {
	var req LogAccessRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var (
		rec facility.AccessRecord
		err error
	)
	if req.Direction == "" {
		rec, err = h.Gate.LogAccess(r.Context(), facility.PersonID(req.PersonID), req.Location, req.OperatorID)
	} else {
		rec, err = h.Gate.LogDirection(r.Context(), facility.PersonID(req.PersonID), req.Location, req.OperatorID,
			facility.Direction(req.Direction))
	}
	if err != nil {
		h.writeErr(w, "Failed to log access", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccessRecordDTO(rec))
}

// Present lists the people currently inside a location.
// GET /api/gate/{location}/present
func (h *Handler) Present(w http.ResponseWriter, r *http.Request) {
	records, err := h.Gate.Ledger().Present(r.Context(), chi.URLParam(r, "location"))
	if err != nil {
		h.writeErr(w, "Failed to list present people", err)
		return
	}
	writeJSON(w, http.StatusOK, toAccessRecordDTOs(records))
}

// Stats returns entries, exits and present count for a day (default today).
// GET /api/gate/{location}/stats?date=YYYY-MM-DD
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	day, ok := queryDate(w, r, "date")
	if !ok {
		return
	}

	stats, err := h.Gate.Ledger().DailyStats(r.Context(), chi.URLParam(r, "location"), day)
	if err != nil {
		h.writeErr(w, "Failed to compute stats", err)
		return
	}
	writeJSON(w, http.StatusOK, DailyStatsDTO{
		Location: stats.Location,
		Date:     stats.Date.String(),
		Entries:  stats.Entries,
		Exits:    stats.Exits,
		Present:  stats.Present,
	})
}

// Records returns the most recent passes at a location, newest first.
// GET /api/gate/{location}/records?person_id=&limit=
func (h *Handler) Records(w http.ResponseWriter, r *http.Request) {
	filter := facility.AccessFilter{
		Location: chi.URLParam(r, "location"),
		PersonID: facility.PersonID(r.URL.Query().Get("person_id")),
	}
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		filter.Limit = n
	}

	records, err := h.Gate.Ledger().Recent(r.Context(), filter)
	if err != nil {
		h.writeErr(w, "Failed to list access records", err)
		return
	}
	writeJSON(w, http.StatusOK, toAccessRecordDTOs(records))
}

// =============================================================================
// SAUNA HANDLERS
// =============================================================================

// ListLockers returns every locker plus counts by status.
// GET /api/sauna/lockers
func (h *Handler) ListLockers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lockers, err := h.Lockers.ListLockers(ctx)
	if err != nil {
		h.writeErr(w, "Failed to list lockers", err)
		return
	}
	summary, err := h.Lockers.Summary(ctx)
	if err != nil {
		h.writeErr(w, "Failed to summarize lockers", err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryDTO(summary, lockers))
}

// AddLockers creates a contiguous block of lockers.
// POST /api/sauna/lockers
func (h *Handler) AddLockers(w http.ResponseWriter, r *http.Request) {
	var req AddLockersRequest
	if !decodeBody(w, r, &req) {
		return
	}

	lockers, err := h.Lockers.AddLockers(r.Context(), req.Start, req.Quantity)
	if err != nil {
		h.writeErr(w, "Failed to add lockers", err)
		return
	}
	writeJSON(w, http.StatusCreated, toLockerDTOs(lockers))
}

// SetLockerStatus switches a free locker between available and maintenance.
// PUT /api/sauna/lockers/{id}/status
func (h *Handler) SetLockerStatus(w http.ResponseWriter, r *http.Request) {
	var req LockerStatusRequest
	if !decodeBody(w, r, &req) {
		return
	}

	l, err := h.Lockers.SetStatus(r.Context(), facility.LockerID(chi.URLParam(r, "id")), facility.LockerStatus(req.Status))
	if err != nil {
		h.writeErr(w, "Failed to update locker", err)
		return
	}
	writeJSON(w, http.StatusOK, toLockerDTO(l))
}

// RemoveLocker deletes a locker that is not occupied.
// DELETE /api/sauna/lockers/{id}
func (h *Handler) RemoveLocker(w http.ResponseWriter, r *http.Request) {
	if err := h.Lockers.RemoveLocker(r.Context(), facility.LockerID(chi.URLParam(r, "id"))); err != nil {
		h.writeErr(w, "Failed to remove locker", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AssignLocker hands a locker key to a person given by code or ID.
// POST /api/sauna/usages
func (h *Handler) AssignLocker(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req AssignRequest
	if !decodeBody(w, r, &req) {
		return
	}

	person, err := h.resolvePerson(r, req.Code, req.PersonID)
	if err != nil {
		h.writeErr(w, "Failed to resolve person", err)
		return
	}

	usage, err := h.Lockers.Assign(ctx, person, facility.LockerID(req.LockerID), req.OperatorID)
	if err != nil {
		h.writeErr(w, "Failed to assign locker", err)
		return
	}
	writeJSON(w, http.StatusCreated, toUsageDTO(usage))
}

// ReleaseLocker closes a usage, recording a fine when the key was lost.
// POST /api/sauna/usages/{id}/release
func (h *Handler) ReleaseLocker(w http.ResponseWriter, r *http.Request) {
	var req ReleaseRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var amount *decimal.Decimal
	if req.KeyLost && req.FineAmount != nil {
		d, err := decimal.NewFromString(*req.FineAmount)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid fine_amount", err)
			return
		}
		amount = &d
	}

	res, err := h.Lockers.Release(r.Context(), facility.UsageID(chi.URLParam(r, "id")), req.KeyLost, amount)
	if err != nil {
		h.writeErr(w, "Failed to release locker", err)
		return
	}

	resp := ReleaseResponse{Usage: toUsageDTO(res.Usage)}
	if res.Fine != nil {
		f := toFineDTO(*res.Fine)
		resp.Fine = &f
	}
	writeJSON(w, http.StatusOK, resp)
}

// OpenUsages lists keys currently handed out.
// GET /api/sauna/usages/open
func (h *Handler) OpenUsages(w http.ResponseWriter, r *http.Request) {
	usages, err := h.Lockers.OpenUsages(r.Context())
	if err != nil {
		h.writeErr(w, "Failed to list open usages", err)
		return
	}
	writeJSON(w, http.StatusOK, toUsageDTOs(usages))
}

// =============================================================================
// FINE HANDLERS
// =============================================================================

// ListFines returns fines, optionally filtered by person and status.
// GET /api/fines?person_id=&status=
func (h *Handler) ListFines(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	fines, err := h.Lockers.Penalties().List(r.Context(), facility.FineFilter{
		PersonID: facility.PersonID(q.Get("person_id")),
		Status:   facility.FineStatus(q.Get("status")),
	})
	if err != nil {
		h.writeErr(w, "Failed to list fines", err)
		return
	}

	dtos := make([]FineDTO, len(fines))
	for i, f := range fines {
		dtos[i] = toFineDTO(f)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SetFineStatus marks a pending fine paid or waived.
// POST /api/fines/{id}/status
func (h *Handler) SetFineStatus(w http.ResponseWriter, r *http.Request) {
	var req FineStatusRequest
	if !decodeBody(w, r, &req) {
		return
	}

	f, err := h.Lockers.Penalties().SetStatus(r.Context(), facility.FineID(chi.URLParam(r, "id")), facility.FineStatus(req.Status))
	if err != nil {
		h.writeErr(w, "Failed to update fine", err)
		return
	}
	writeJSON(w, http.StatusOK, toFineDTO(f))
}

// =============================================================================
// KIOSK HANDLERS
// =============================================================================

// ListKiosks returns all kiosks.
// GET /api/kiosks
func (h *Handler) ListKiosks(w http.ResponseWriter, r *http.Request) {
	kiosks, err := h.Kiosks.ListKiosks(r.Context())
	if err != nil {
		h.writeErr(w, "Failed to list kiosks", err)
		return
	}
	writeJSON(w, http.StatusOK, toKioskDTOs(kiosks))
}

// SaveKiosk creates a kiosk, or updates it when an ID is given.
// POST /api/kiosks
func (h *Handler) SaveKiosk(w http.ResponseWriter, r *http.Request) {
	var req KioskDTO
	if !decodeBody(w, r, &req) {
		return
	}

	k := facility.Kiosk{
		ID:       facility.KioskID(req.ID),
		Number:   req.Number,
		Name:     req.Name,
		Capacity: req.Capacity,
		Active:   req.Active,
	}
	if req.PriceOverride != nil {
		d, err := decimal.NewFromString(*req.PriceOverride)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid price_override", err)
			return
		}
		k.PriceOverride = &d
	}

	saved, err := h.Kiosks.SaveKiosk(r.Context(), k)
	if err != nil {
		h.writeErr(w, "Failed to save kiosk", err)
		return
	}
	writeJSON(w, http.StatusOK, toKioskDTO(saved))
}

// AvailableKiosks lists active kiosks with no active reservation on a date.
// GET /api/kiosks/available?date=YYYY-MM-DD
func (h *Handler) AvailableKiosks(w http.ResponseWriter, r *http.Request) {
	day, ok := queryDate(w, r, "date")
	if !ok {
		return
	}
	if day.IsZero() {
		day = facility.DateOf(h.clock.Now())
	}

	kiosks, err := h.Kiosks.ListAvailableKiosks(r.Context(), day)
	if err != nil {
		h.writeErr(w, "Failed to list available kiosks", err)
		return
	}
	writeJSON(w, http.StatusOK, toKioskDTOs(kiosks))
}

// =============================================================================
// RESERVATION HANDLERS
// =============================================================================

// GetReservationConfig returns the booking rules.
// GET /api/reservations/config
func (h *Handler) GetReservationConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.Kiosks.Config(r.Context())
	if err != nil {
		h.writeErr(w, "Failed to load reservation config", err)
		return
	}
	writeJSON(w, http.StatusOK, h.PolicyFactory.ReservationToJSON(cfg))
}

// UpdateReservationConfig replaces the booking rules. Omitted fields take
// their defaults.
// PUT /api/reservations/config
func (h *Handler) UpdateReservationConfig(w http.ResponseWriter, r *http.Request) {
	var req factory.ReservationConfigJSON
	if !decodeBody(w, r, &req) {
		return
	}

	cfg, err := h.PolicyFactory.ReservationFromJSON(req)
	if err != nil {
		h.writeErr(w, "Invalid reservation config", err)
		return
	}
	saved, err := h.Kiosks.UpdateConfig(r.Context(), cfg)
	if err != nil {
		h.writeErr(w, "Failed to save reservation config", err)
		return
	}
	writeJSON(w, http.StatusOK, h.PolicyFactory.ReservationToJSON(saved))
}

// GetWindow reports whether booking is open and the bookable date range.
// GET /api/reservations/window
func (h *Handler) GetWindow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cfg, err := h.Kiosks.Config(ctx)
	if err != nil {
		h.writeErr(w, "Failed to load reservation config", err)
		return
	}
	now := h.clock.Now()
	first, last := kiosk.BookableRange(cfg, now)
	writeJSON(w, http.StatusOK, toWindowDTO(kiosk.ComputeWindow(cfg, now), first, last))
}

// ListReservations filters by kiosk, person, date and status.
// GET /api/reservations?kiosk_id=&person_id=&date=&status=
func (h *Handler) ListReservations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := facility.ReservationFilter{
		KioskID:  facility.KioskID(q.Get("kiosk_id")),
		PersonID: facility.PersonID(q.Get("person_id")),
		Status:   facility.ReservationStatus(q.Get("status")),
	}
	day, ok := queryDate(w, r, "date")
	if !ok {
		return
	}
	if !day.IsZero() {
		filter.Date = &day
	}

	reservations, err := h.Kiosks.ListReservations(r.Context(), filter)
	if err != nil {
		h.writeErr(w, "Failed to list reservations", err)
		return
	}

	dtos := make([]ReservationDTO, len(reservations))
	for i, res := range reservations {
		dtos[i] = toReservationDTO(res)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateReservation books a kiosk for a person given by code or ID.
// POST /api/reservations
func (h *Handler) CreateReservation(w http.ResponseWriter, r *http.Request) {
	var req CreateReservationRequest
	if !decodeBody(w, r, &req) {
		return
	}

	day, err := facility.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	person, err := h.resolvePerson(r, req.Code, req.PersonID)
	if err != nil {
		h.writeErr(w, "Failed to resolve person", err)
		return
	}

	res, err := h.Kiosks.Create(r.Context(), kiosk.CreateRequest{
		KioskID:      facility.KioskID(req.KioskID),
		Person:       person,
		Date:         day,
		Notes:        req.Notes,
		BypassWindow: req.BypassWindow,
	})
	if err != nil {
		h.writeErr(w, "Failed to create reservation", err)
		return
	}
	writeJSON(w, http.StatusCreated, toReservationDTO(res))
}

// CancelReservation frees the slot of an active reservation.
// POST /api/reservations/{id}/cancel
func (h *Handler) CancelReservation(w http.ResponseWriter, r *http.Request) {
	res, err := h.Kiosks.Cancel(r.Context(), facility.ReservationID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeErr(w, "Failed to cancel reservation", err)
		return
	}
	writeJSON(w, http.StatusOK, toReservationDTO(res))
}

// UseReservation marks an active reservation as used.
// POST /api/reservations/{id}/use
func (h *Handler) UseReservation(w http.ResponseWriter, r *http.Request) {
	res, err := h.Kiosks.MarkUsed(r.Context(), facility.ReservationID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeErr(w, "Failed to mark reservation used", err)
		return
	}
	writeJSON(w, http.StatusOK, toReservationDTO(res))
}

// GetReceipt returns the printable receipt payload.
// GET /api/reservations/{id}/receipt
func (h *Handler) GetReceipt(w http.ResponseWriter, r *http.Request) {
	receipt, err := h.Kiosks.Receipt(r.Context(), facility.ReservationID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeErr(w, "Failed to build receipt", err)
		return
	}
	writeJSON(w, http.StatusOK, toReceiptDTO(receipt))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// TriggerSweep runs one expiry sweep immediately.
// POST /api/admin/sweep
func (h *Handler) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	res, err := h.Kiosks.RunExpirySweep(r.Context())
	if err != nil {
		h.writeErr(w, "Expiry sweep failed", err)
		return
	}
	writeJSON(w, http.StatusOK, SweepResponse{Expired: res.Expired, At: formatTime(res.At)})
}

// Healthz answers liveness checks.
// GET /healthz
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "time": formatTime(time.Now().UTC())})
}

// =============================================================================
// HELPERS
// =============================================================================

// resolvePerson accepts a scanned code or a person ID; the code wins.
func (h *Handler) resolvePerson(r *http.Request, code, personID string) (facility.ResolvedPerson, error) {
	resolver := h.Gate.Resolver()
	if strings.TrimSpace(code) != "" {
		return resolver.Resolve(r.Context(), code)
	}
	if personID == "" {
		return facility.ResolvedPerson{}, facility.Invalid("person", "code or person_id is required")
	}
	return resolver.ResolveID(r.Context(), facility.PersonID(personID))
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

// queryDate parses an optional YYYY-MM-DD query parameter. A zero Date means
// it was absent.
func queryDate(w http.ResponseWriter, r *http.Request, name string) (facility.Date, bool) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return facility.Date{}, true
	}
	d, err := facility.ParseDate(s)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid "+name+" format (use YYYY-MM-DD)", err)
		return facility.Date{}, false
	}
	return d, true
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, facility.ErrDenied):
		return http.StatusForbidden
	case errors.Is(err, facility.ErrDependencyUnavailable):
		return http.StatusServiceUnavailable
	case facility.IsClientError(err):
		return http.StatusBadRequest
	case facility.IsNotFound(err):
		return http.StatusNotFound
	case facility.IsConflict(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

var errorCodes = []struct {
	err  error
	code string
}{
	{facility.ErrDependencyUnavailable, "dependency_unavailable"},
	{facility.ErrInvalidCode, "invalid_code"},
	{facility.ErrInvalidAmount, "invalid_amount"},
	{facility.ErrDateOutOfRange, "date_out_of_range"},
	{facility.ErrInvalidInput, "invalid_input"},
	{facility.ErrNotFound, "not_found"},
	{facility.ErrLockerUnavailable, "locker_unavailable"},
	{facility.ErrPersonAlreadyHasLocker, "person_already_has_locker"},
	{facility.ErrAlreadyClosed, "already_closed"},
	{facility.ErrLockerInUse, "locker_in_use"},
	{facility.ErrReservationClosed, "reservation_closed"},
	{facility.ErrSlotTaken, "slot_taken"},
	{facility.ErrDuplicateBooking, "duplicate_booking"},
	{facility.ErrKioskInactive, "kiosk_inactive"},
	{facility.ErrNotActive, "not_active"},
	{facility.ErrInvalidTransition, "invalid_transition"},
	{facility.ErrDuplicateNumber, "duplicate_number"},
	{facility.ErrConcurrentModification, "concurrent_modification"},
}

// errorCode is the machine-readable code. Denials carry their reason.
func errorCode(err error) string {
	var denied *facility.DeniedError
	if errors.As(err, &denied) {
		return denied.Reason
	}
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}

// writeErr writes err with its mapped status. Server-side failures are logged.
func (h *Handler) writeErr(w http.ResponseWriter, message string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(message, zap.Error(err))
	}
	writeJSON(w, status, ErrorResponse{Error: message, Code: errorCode(err), Details: err.Error()})
}

// writeDecisionError attaches the (denied) decision so the desk screen can
// still show who was scanned.
func (h *Handler) writeDecisionError(w http.ResponseWriter, err error, d access.Decision) {
	if d.Person.ID == "" {
		h.writeErr(w, "Failed to resolve person", err)
		return
	}
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("gate decision failed", zap.Error(err))
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: errorCode(err), Details: toDecisionDTO(d)})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
