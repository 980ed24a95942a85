/*
handlers_test.go - HTTP tests for the front-desk API

Tests for:
- Gate evaluate/scan status codes and decision payloads
- Locker custody and lost-key fines over HTTP
- Reservation conflicts, receipts and cancellation
- Error-to-status mapping
*/
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/club-engine/access"
	"github.com/warp/club-engine/directory"
	"github.com/warp/club-engine/facility"
	"github.com/warp/club-engine/kiosk"
	"github.com/warp/club-engine/sauna"
	"github.com/warp/club-engine/store/sqlite"
)

// Saturday inside the default booking window (opened Friday 09:00).
var testNow = time.Date(2026, time.March, 7, 10, 0, 0, 0, time.UTC)

type testServer struct {
	handler *Handler
	router  *chi.Mux
	clock   *facility.ManualClock
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clock := facility.NewManualClock(testNow)
	registry := directory.NewMemory(clock)

	evaluator := access.NewEvaluator(registry, registry)
	gate := access.NewGate(
		access.NewResolver(registry, access.DefaultLookupTimeout),
		evaluator,
		access.NewLedger(store, clock, nil),
		[]string{"pool"},
		nil)
	lockers := sauna.NewAllocator(store, sauna.NewPenalties(store, clock, nil), clock, sauna.WithEligibility(evaluator))
	kiosks := kiosk.NewScheduler(store, clock, kiosk.WithEligibility(evaluator))

	h := NewHandler(gate, lockers, kiosks, clock, nil)
	h.Registry = registry
	return &testServer{handler: h, router: NewRouter(h, RouterConfig{}), clock: clock}
}

// seeded loads busy-weekend through the API.
func seeded(t *testing.T) *testServer {
	t.Helper()
	ts := setupTestServer(t)
	rec := ts.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: ScenarioBusyWeekend})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// =============================================================================
// GATE
// =============================================================================

func TestScan_EntryThenExit(t *testing.T) {
	// GIVEN: Ana, active with a valid exam
	ts := seeded(t)

	// WHEN: she scans twice at the pool
	first := ts.do(t, http.MethodPost, "/api/gate/scan", EvaluateRequest{Code: "card-1001", Location: "pool", OperatorID: "op-1"})
	second := ts.do(t, http.MethodPost, "/api/gate/scan", EvaluateRequest{Code: "CARD-1001", Location: "pool"})

	// THEN: entry then exit, and nobody is left inside
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	d1 := decode[DecisionDTO](t, first)
	assert.Equal(t, string(access.PurposeExamGated), d1.Purpose)
	assert.Equal(t, string(access.Outside), d1.State)
	require.NotNil(t, d1.Record)
	assert.Equal(t, "entry", d1.Record.Direction)
	assert.Equal(t, "op-1", d1.Record.OperatorID)

	require.Equal(t, http.StatusCreated, second.Code)
	d2 := decode[DecisionDTO](t, second)
	assert.Equal(t, string(access.Inside), d2.State)
	assert.Equal(t, "exit", d2.Record.Direction)

	present := decode[[]AccessRecordDTO](t, ts.do(t, http.MethodGet, "/api/gate/pool/present", nil))
	assert.Empty(t, present)

	stats := decode[DailyStatsDTO](t, ts.do(t, http.MethodGet, "/api/gate/pool/stats", nil))
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, 1, stats.Exits)
	assert.Equal(t, "2026-03-07", stats.Date)

	records := decode[[]AccessRecordDTO](t, ts.do(t, http.MethodGet, "/api/gate/pool/records?limit=1", nil))
	require.Len(t, records, 1)
	assert.Equal(t, "exit", records[0].Direction)
}

func TestScan_DeniedIsForbiddenAndNotLogged(t *testing.T) {
	// GIVEN: Carla is suspended
	ts := seeded(t)

	// WHEN: she scans at the main gate
	rec := ts.do(t, http.MethodPost, "/api/gate/scan", EvaluateRequest{Code: "CARD-1003", Location: "main"})

	// THEN: 403 carrying the reason and the decision, and no record
	require.Equal(t, http.StatusForbidden, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, string(access.ReasonInactiveStatus), resp.Code)
	details, ok := resp.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Carla Souza", details["person"].(map[string]any)["name"])

	records := decode[[]AccessRecordDTO](t, ts.do(t, http.MethodGet, "/api/gate/main/records", nil))
	assert.Empty(t, records)
}

func TestEvaluate_AdvisoryDoesNotBlock(t *testing.T) {
	// GIVEN: Bruno is ten days overdue, his dependent Elisa rides on his standing
	ts := seeded(t)

	rec := ts.do(t, http.MethodPost, "/api/gate/evaluate", EvaluateRequest{Code: "1002"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	d := decode[DecisionDTO](t, rec)
	assert.True(t, d.Verdict.Allowed)
	assert.Equal(t, []string{"member has overdue balance"}, d.Verdict.Advisories)

	rec = ts.do(t, http.MethodPost, "/api/gate/evaluate", EvaluateRequest{Code: "CARD-2002"})
	d = decode[DecisionDTO](t, rec)
	assert.True(t, d.Verdict.Allowed)
	assert.Equal(t, []string{"guarantor has overdue balance"}, d.Verdict.Advisories)
	require.NotNil(t, d.Person.Guarantor)
	assert.Equal(t, "1002", d.Person.Guarantor.MemberNumber)
}

func TestEvaluate_DenialIsAnAnswer(t *testing.T) {
	// Bruno has no exam on file: the pool says no, but the request succeeded.
	ts := seeded(t)

	rec := ts.do(t, http.MethodPost, "/api/gate/evaluate", EvaluateRequest{Code: "CARD-1002", Location: "pool"})
	require.Equal(t, http.StatusOK, rec.Code)
	d := decode[DecisionDTO](t, rec)
	assert.False(t, d.Verdict.Allowed)
	assert.Equal(t, string(access.ReasonExamRequired), d.Verdict.Reason)
}

func TestEvaluate_Errors(t *testing.T) {
	ts := seeded(t)

	rec := ts.do(t, http.MethodPost, "/api/gate/evaluate", EvaluateRequest{Code: "NOPE-9"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/gate/evaluate", EvaluateRequest{Code: "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/gate/evaluate", EvaluateRequest{Code: "CARD-1001", Purpose: "spa"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/gate/evaluate", bytes.NewBufferString("{"))
	raw := httptest.NewRecorder()
	ts.router.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)
}

func TestLogAccess_Manual(t *testing.T) {
	// Carla is suspended but an operator can still record a missed pass.
	ts := seeded(t)

	rec := ts.do(t, http.MethodPost, "/api/gate/access", LogAccessRequest{PersonID: "m-1003", Location: "main", OperatorID: "op-2"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "entry", decode[AccessRecordDTO](t, rec).Direction)

	rec = ts.do(t, http.MethodPost, "/api/gate/access", LogAccessRequest{PersonID: "ghost", Location: "main"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLogAccess_ForcedDirection(t *testing.T) {
	// GIVEN: Ana is inside the pool
	ts := seeded(t)
	rec := ts.do(t, http.MethodPost, "/api/gate/scan", EvaluateRequest{Code: "CARD-1001", Location: "pool"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// WHEN: the desk forces an exit
	rec = ts.do(t, http.MethodPost, "/api/gate/access", LogAccessRequest{PersonID: "m-1001", Location: "pool", Direction: "exit"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "exit", decode[AccessRecordDTO](t, rec).Direction)

	// THEN: her next scan enters again
	rec = ts.do(t, http.MethodPost, "/api/gate/scan", EvaluateRequest{Code: "CARD-1001", Location: "pool"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "entry", decode[DecisionDTO](t, rec).Record.Direction)

	rec = ts.do(t, http.MethodPost, "/api/gate/access", LogAccessRequest{PersonID: "m-1001", Location: "pool", Direction: "in"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// SAUNA
// =============================================================================

func TestLockers_AssignConflictAndLostKey(t *testing.T) {
	// GIVEN: the seed handed Davi the first free locker
	ts := seeded(t)

	open := decode[[]UsageDTO](t, ts.do(t, http.MethodGet, "/api/sauna/usages/open", nil))
	require.Len(t, open, 1)
	usage := open[0]
	assert.Equal(t, "d-2001", usage.PersonID)

	// WHEN: Ana asks for the same locker
	rec := ts.do(t, http.MethodPost, "/api/sauna/usages", AssignRequest{Code: "CARD-1001", LockerID: usage.LockerID})

	// THEN: the locker is unavailable
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "locker_unavailable", decode[ErrorResponse](t, rec).Code)

	// WHEN: Davi loses the key and no amount is given
	rec = ts.do(t, http.MethodPost, "/api/sauna/usages/"+usage.ID+"/release", ReleaseRequest{KeyLost: true})

	// THEN: the default fine is recorded once and the locker goes to maintenance
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	released := decode[ReleaseResponse](t, rec)
	require.NotNil(t, released.Fine)
	assert.Equal(t, "50.00", released.Fine.Amount)
	assert.Equal(t, "d-2001", released.Fine.PersonID)
	require.NotNil(t, released.Usage.KeyLost)
	assert.True(t, *released.Usage.KeyLost)

	summary := decode[LockerSummaryDTO](t, ts.do(t, http.MethodGet, "/api/sauna/lockers", nil))
	assert.Equal(t, seedLockers, summary.Total)
	assert.Equal(t, 1, summary.Maintenance)
	assert.Equal(t, 0, summary.Occupied)

	rec = ts.do(t, http.MethodPost, "/api/sauna/usages/"+usage.ID+"/release", ReleaseRequest{})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already_closed", decode[ErrorResponse](t, rec).Code)

	fines := decode[[]FineDTO](t, ts.do(t, http.MethodGet, "/api/fines?person_id=d-2001", nil))
	require.Len(t, fines, 1)

	rec = ts.do(t, http.MethodPost, "/api/fines/"+fines[0].ID+"/status", FineStatusRequest{Status: "paid"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(t, http.MethodPost, "/api/fines/"+fines[0].ID+"/status", FineStatusRequest{Status: "waived"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestLockers_ExplicitFineAndValidation(t *testing.T) {
	ts := seeded(t)

	rec := ts.do(t, http.MethodPost, "/api/sauna/lockers", AddLockersRequest{Start: 21, Quantity: 2})
	require.Equal(t, http.StatusCreated, rec.Code)
	added := decode[[]LockerDTO](t, rec)
	require.Len(t, added, 2)
	assert.Equal(t, "SAUNA-LKR-21", added[0].Code)

	rec = ts.do(t, http.MethodPost, "/api/sauna/lockers", AddLockersRequest{Start: 20, Quantity: 1})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/sauna/usages", AssignRequest{PersonID: "m-1001", LockerID: added[0].ID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	usage := decode[UsageDTO](t, rec)

	bad := "-1"
	rec = ts.do(t, http.MethodPost, "/api/sauna/usages/"+usage.ID+"/release", ReleaseRequest{KeyLost: true, FineAmount: &bad})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	amount := "75.5"
	rec = ts.do(t, http.MethodPost, "/api/sauna/usages/"+usage.ID+"/release", ReleaseRequest{KeyLost: true, FineAmount: &amount})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "75.50", decode[ReleaseResponse](t, rec).Fine.Amount)

	rec = ts.do(t, http.MethodPut, "/api/sauna/lockers/"+added[0].ID+"/status", LockerStatusRequest{Status: "available"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(t, http.MethodDelete, "/api/sauna/lockers/"+added[1].ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

// =============================================================================
// RESERVATIONS
// =============================================================================

func TestReservations_SlotTakenReceiptCancel(t *testing.T) {
	// GIVEN: Ana holds kiosk 1 for tomorrow
	ts := seeded(t)
	tomorrow := "2026-03-08"

	list := decode[[]ReservationDTO](t, ts.do(t, http.MethodGet, "/api/reservations?date="+tomorrow, nil))
	require.Len(t, list, 1)
	held := list[0]
	assert.Equal(t, "m-1001", held.PersonID)

	// WHEN: Bruno tries the same slot
	rec := ts.do(t, http.MethodPost, "/api/reservations", CreateReservationRequest{KioskID: held.KioskID, Code: "CARD-1002", Date: tomorrow})

	// THEN: 409 slot_taken
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "slot_taken", decode[ErrorResponse](t, rec).Code)

	available := decode[[]KioskDTO](t, ts.do(t, http.MethodGet, "/api/kiosks/available?date="+tomorrow, nil))
	assert.Len(t, available, seedKiosks-1)

	receipt := decode[ReceiptDTO](t, ts.do(t, http.MethodGet, "/api/reservations/"+held.ID+"/receipt", nil))
	assert.Equal(t, 1, receipt.KioskNumber)
	assert.Equal(t, "1001", receipt.MemberNumber)
	assert.Equal(t, "0.00", receipt.Amount)

	// WHEN: Ana cancels
	rec = ts.do(t, http.MethodPost, "/api/reservations/"+held.ID+"/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cancelled", decode[ReservationDTO](t, rec).Status)

	// THEN: Bruno can have it, and a second cancel is a conflict
	rec = ts.do(t, http.MethodPost, "/api/reservations", CreateReservationRequest{KioskID: held.KioskID, PersonID: "m-1002", Date: tomorrow})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "1002", decode[ReservationDTO](t, rec).MemberNumber)

	rec = ts.do(t, http.MethodPost, "/api/reservations/"+held.ID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "not_active", decode[ErrorResponse](t, rec).Code)
}

func TestReservations_Validation(t *testing.T) {
	ts := seeded(t)

	rec := ts.do(t, http.MethodPost, "/api/reservations", CreateReservationRequest{KioskID: "kiosk-2", PersonID: "m-1002", Date: "next week"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/reservations", CreateReservationRequest{KioskID: "kiosk-2", PersonID: "m-1002", Date: "2026-04-30"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "date_out_of_range", decode[ErrorResponse](t, rec).Code)

	rec = ts.do(t, http.MethodPost, "/api/reservations", CreateReservationRequest{KioskID: "kiosk-2", Code: "CARD-1003", Date: "2026-03-09"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/reservations", CreateReservationRequest{KioskID: "kiosk-2", Date: "2026-03-09"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/kiosks/available?date=03/09", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReservations_ConfigAndWindow(t *testing.T) {
	ts := seeded(t)

	window := decode[WindowDTO](t, ts.do(t, http.MethodGet, "/api/reservations/window", nil))
	assert.True(t, window.Open)
	assert.Equal(t, "2026-03-07", window.FirstDate)
	assert.Equal(t, "2026-03-14", window.LastDate)

	days := 3
	rec := ts.do(t, http.MethodPut, "/api/reservations/config", map[string]any{
		"opening_weekday": "monday",
		"max_advance_days": days,
		"default_price":   "40",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	cfg := decode[map[string]any](t, ts.do(t, http.MethodGet, "/api/reservations/config", nil))
	assert.Equal(t, "monday", cfg["opening_weekday"])
	assert.Equal(t, "40.00", cfg["default_price"])

	rec = ts.do(t, http.MethodPut, "/api/reservations/config", map[string]any{"max_advance_days": 90})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTriggerSweep(t *testing.T) {
	// GIVEN: Ana's reservation for tomorrow
	ts := seeded(t)

	// WHEN: the clock passes tomorrow's cutoff and an admin sweeps
	ts.clock.Set(time.Date(2026, time.March, 8, 9, 30, 0, 0, time.UTC))
	rec := ts.do(t, http.MethodPost, "/api/admin/sweep", nil)

	// THEN: it expires exactly once
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[SweepResponse](t, rec).Expired)
	assert.Equal(t, 0, decode[SweepResponse](t, ts.do(t, http.MethodPost, "/api/admin/sweep", nil)).Expired)
}

// =============================================================================
// PLUMBING
// =============================================================================

func TestScenarios_ConcurrentLoadAndRead(t *testing.T) {
	ts := setupTestServer(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, "/api/scenarios/load", strings.NewReader(`{"scenario_id":"empty-club"}`))
			req.Header.Set("Content-Type", "application/json")
			ts.router.ServeHTTP(httptest.NewRecorder(), req)
		}()
		go func() {
			defer wg.Done()
			ts.router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/scenarios/current", nil))
		}()
	}
	wg.Wait()

	rec := ts.do(t, http.MethodGet, "/api/scenarios/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), ScenarioEmptyClub)
}

func TestHealthAndMetrics(t *testing.T) {
	ts := setupTestServer(t)

	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/healthz", nil).Code)

	rec := ts.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&facility.DeniedError{Reason: "delinquent"}, http.StatusForbidden},
		{&facility.DependencyError{Dependency: "billing", Err: fmt.Errorf("timeout")}, http.StatusServiceUnavailable},
		{facility.Invalid("location", "required"), http.StatusBadRequest},
		{facility.ErrInvalidCode, http.StatusBadRequest},
		{fmt.Errorf("kiosk: %w", facility.ErrNotFound), http.StatusNotFound},
		{&facility.SlotTakenError{KioskID: "k", Date: facility.NewDate(2026, 3, 8)}, http.StatusConflict},
		{&facility.WindowClosedError{NextOpening: testNow}, http.StatusConflict},
		{fmt.Errorf("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
	assert.Equal(t, "delinquent", errorCode(&facility.DeniedError{Reason: "delinquent"}))
	assert.Equal(t, "reservation_closed", errorCode(&facility.WindowClosedError{NextOpening: testNow}))
	assert.Equal(t, "internal", errorCode(fmt.Errorf("boom")))
}
