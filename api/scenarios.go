/*
scenarios.go - Demo data loaders for local runs and demonstrations

PURPOSE:

	Populates an empty club with lockers, kiosks and a handful of people so
	the desk screens have something to show. Used by `clubd seed` and by
	POST /api/scenarios/load.

AVAILABLE SCENARIOS:

	empty-club:    Lockers 1-20 and kiosks 1-6, nobody registered
	busy-weekend:  empty-club plus members, dependents, an overdue due,
	               medical exams, a key out and a kiosk booked for tomorrow

HOW SCENARIOS WORK:
 1. Create lockers and kiosks (numbers that already exist are kept)
 2. Register people in the directory (upsert by ID)
 3. Exercise the engines the same way the desk does

Loading twice is safe: existing rows are left alone and custody conflicts
from an earlier load are ignored.

SEE ALSO:
  - handlers.go: Handler wiring
  - cmd/server/main.go: seed command
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/warp/club-engine/directory"
	"github.com/warp/club-engine/facility"
	"github.com/warp/club-engine/kiosk"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

const (
	ScenarioEmptyClub   = "empty-club"
	ScenarioBusyWeekend = "busy-weekend"

	seedLockers = 20
	seedKiosks  = 6
)

var scenarios = []ScenarioDTO{
	{
		ID:          ScenarioEmptyClub,
		Name:        "Empty Club",
		Description: "Lockers 1-20 and kiosks 1-6 with nobody registered",
	},
	{
		ID:          ScenarioBusyWeekend,
		Name:        "Busy Weekend",
		Description: "Members and dependents, an overdue member, one key out and a kiosk booked for tomorrow",
	},
}

type seedPerson struct {
	person facility.Person
	codes  directory.Codes
}

var seedPeople = []seedPerson{
	{
		person: facility.Person{ID: "m-1001", Kind: facility.KindMember, Status: facility.StatusActive, Name: "Ana Costa", MemberNumber: "1001"},
		codes:  directory.Codes{NationalID: "11122233344", CardCode: "CARD-1001"},
	},
	{
		person: facility.Person{ID: "m-1002", Kind: facility.KindMember, Status: facility.StatusActive, Name: "Bruno Lima", MemberNumber: "1002"},
		codes:  directory.Codes{NationalID: "22233344455", CardCode: "CARD-1002"},
	},
	{
		person: facility.Person{ID: "m-1003", Kind: facility.KindMember, Status: facility.StatusSuspended, Name: "Carla Souza", MemberNumber: "1003"},
		codes:  directory.Codes{NationalID: "33344455566", CardCode: "CARD-1003"},
	},
	{
		person: facility.Person{ID: "d-2001", Kind: facility.KindDependent, Status: facility.StatusActive, Name: "Davi Costa", GuarantorID: "m-1001"},
		codes:  directory.Codes{NationalID: "44455566677", CardCode: "CARD-2001"},
	},
	{
		person: facility.Person{ID: "d-2002", Kind: facility.KindDependent, Status: facility.StatusActive, Name: "Elisa Lima", GuarantorID: "m-1002"},
		codes:  directory.Codes{CardCode: "CARD-2002"},
	},
}

// ListScenarios returns available scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the scenario loaded through this handler, if any.
// GET /api/scenarios/current
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	current := h.loadedScenario()
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

func (h *Handler) loadedScenario() string {
	h.scenarioMu.Lock()
	defer h.scenarioMu.Unlock()
	return h.currentScenario
}

// LoadScenario loads a predefined scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := Seed(r.Context(), h, req.ScenarioID); err != nil {
		h.writeErr(w, "Failed to load scenario", err)
		return
	}
	h.scenarioMu.Lock()
	h.currentScenario = req.ScenarioID
	h.scenarioMu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// Seed loads scenarioID through h's engines. busy-weekend needs h.Registry.
func Seed(ctx context.Context, h *Handler, scenarioID string) error {
	switch scenarioID {
	case ScenarioEmptyClub:
		return h.seedFacilities(ctx)
	case ScenarioBusyWeekend:
		if h.Registry == nil {
			return facility.Invalid("scenario_id", "%s needs a writable directory", scenarioID)
		}
		if err := h.seedFacilities(ctx); err != nil {
			return err
		}
		return h.seedPeople(ctx)
	default:
		return facility.Invalid("scenario_id", "unknown scenario %q", scenarioID)
	}
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) seedFacilities(ctx context.Context) error {
	existing, err := h.Lockers.ListLockers(ctx)
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		if _, err := h.Lockers.AddLockers(ctx, 1, seedLockers); err != nil {
			return fmt.Errorf("failed to add lockers: %w", err)
		}
	}

	kiosks, err := h.Kiosks.ListKiosks(ctx)
	if err != nil {
		return err
	}
	taken := make(map[int]bool, len(kiosks))
	for _, k := range kiosks {
		taken[k.Number] = true
	}
	for n := 1; n <= seedKiosks; n++ {
		if taken[n] {
			continue
		}
		_, err := h.Kiosks.SaveKiosk(ctx, facility.Kiosk{
			ID:       facility.KioskID(fmt.Sprintf("kiosk-%d", n)),
			Number:   n,
			Capacity: 30,
			Active:   true,
		})
		if err != nil {
			return fmt.Errorf("failed to add kiosk %d: %w", n, err)
		}
	}

	h.logger.Info("seeded facilities", zap.Int("lockers", seedLockers), zap.Int("kiosks", seedKiosks))
	return nil
}

func (h *Handler) seedPeople(ctx context.Context) error {
	today := facility.DateOf(h.clock.Now())

	for _, sp := range seedPeople {
		if err := h.Registry.RegisterPerson(ctx, sp.person, sp.codes); err != nil {
			return fmt.Errorf("failed to register %s: %w", sp.person.ID, err)
		}
	}

	// Bruno is ten days late. Ana and her dependent have exams for the pool.
	if err := h.Registry.SettleDues(ctx, "m-1002"); err != nil {
		return err
	}
	if err := h.Registry.AddDue(ctx, "m-1002", today.AddDays(-10)); err != nil {
		return err
	}
	for _, id := range []facility.PersonID{"m-1001", "d-2001"} {
		if err := h.Registry.RecordExam(ctx, id, today.AddDays(90)); err != nil {
			return err
		}
	}

	resolver := h.Gate.Resolver()

	davi, err := resolver.ResolveID(ctx, "d-2001")
	if err != nil {
		return err
	}
	if err := h.assignFirstFree(ctx, davi); err != nil {
		return err
	}

	ana, err := resolver.ResolveID(ctx, "m-1001")
	if err != nil {
		return err
	}
	kioskID, err := h.kioskByNumber(ctx, 1)
	if err != nil {
		return err
	}
	_, err = h.Kiosks.Create(ctx, kiosk.CreateRequest{
		KioskID:      kioskID,
		Person:       ana,
		Date:         today.AddDays(1),
		Notes:        "birthday",
		BypassWindow: true,
	})
	if err != nil && !errors.Is(err, facility.ErrSlotTaken) && !errors.Is(err, facility.ErrDuplicateBooking) {
		return fmt.Errorf("failed to book kiosk: %w", err)
	}

	h.logger.Info("seeded people", zap.Int("count", len(seedPeople)))
	return nil
}

func (h *Handler) assignFirstFree(ctx context.Context, person facility.ResolvedPerson) error {
	lockers, err := h.Lockers.ListLockers(ctx)
	if err != nil {
		return err
	}
	for _, l := range lockers {
		if l.Status != facility.LockerAvailable {
			continue
		}
		_, err := h.Lockers.Assign(ctx, person, l.ID, "seed")
		if errors.Is(err, facility.ErrPersonAlreadyHasLocker) {
			return nil
		}
		return err
	}
	return nil
}

func (h *Handler) kioskByNumber(ctx context.Context, number int) (facility.KioskID, error) {
	kiosks, err := h.Kiosks.ListKiosks(ctx)
	if err != nil {
		return "", err
	}
	for _, k := range kiosks {
		if k.Number == number {
			return k.ID, nil
		}
	}
	return "", fmt.Errorf("kiosk %d: %w", number, facility.ErrNotFound)
}
