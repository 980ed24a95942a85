/*
scenarios_test.go - Tests for demo scenarios

PURPOSE:
	Checks each scenario sets up the expected state and that loading it
	again leaves that state unchanged.
*/
package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/club-engine/facility"
)

func TestSeed_EmptyClub(t *testing.T) {
	ts := setupTestServer(t)
	ctx := context.Background()

	require.NoError(t, Seed(ctx, ts.handler, ScenarioEmptyClub))

	lockers, err := ts.handler.Lockers.ListLockers(ctx)
	require.NoError(t, err)
	assert.Len(t, lockers, seedLockers)

	kiosks, err := ts.handler.Kiosks.ListKiosks(ctx)
	require.NoError(t, err)
	assert.Len(t, kiosks, seedKiosks)
	assert.Equal(t, "Kiosk 1", kiosks[0].Name)
}

func TestSeed_BusyWeekendIsRepeatable(t *testing.T) {
	ts := setupTestServer(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		require.NoError(t, Seed(ctx, ts.handler, ScenarioBusyWeekend), "load %d", i+1)
	}

	usages, err := ts.handler.Lockers.OpenUsages(ctx)
	require.NoError(t, err)
	assert.Len(t, usages, 1)

	active, err := ts.handler.Kiosks.ListReservations(ctx, facility.ReservationFilter{Status: facility.ReservationActive})
	require.NoError(t, err)
	assert.Len(t, active, 1)

	lockers, err := ts.handler.Lockers.ListLockers(ctx)
	require.NoError(t, err)
	assert.Len(t, lockers, seedLockers)
}

func TestSeed_Errors(t *testing.T) {
	ts := setupTestServer(t)

	err := Seed(context.Background(), ts.handler, "haunted-house")
	assert.ErrorIs(t, err, facility.ErrInvalidInput)

	ts.handler.Registry = nil
	err = Seed(context.Background(), ts.handler, ScenarioBusyWeekend)
	assert.ErrorIs(t, err, facility.ErrInvalidInput)
}

func TestScenarioRoutes(t *testing.T) {
	ts := setupTestServer(t)

	list := decode[[]ScenarioDTO](t, ts.do(t, http.MethodGet, "/api/scenarios", nil))
	assert.Len(t, list, 2)

	rec := ts.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: ScenarioEmptyClub})
	require.Equal(t, http.StatusOK, rec.Code)

	current := decode[ScenarioDTO](t, ts.do(t, http.MethodGet, "/api/scenarios/current", nil))
	assert.Equal(t, ScenarioEmptyClub, current.ID)

	rec = ts.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
