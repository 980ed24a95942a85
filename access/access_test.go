package access_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/club-engine/access"
	"github.com/warp/club-engine/directory"
	"github.com/warp/club-engine/facility"
	"github.com/warp/club-engine/facility/store"
	"github.com/warp/club-engine/store/sqlite"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var tuesday = time.Date(2026, time.March, 10, 10, 0, 0, 0, time.UTC)

type fixture struct {
	clock *facility.ManualClock
	dir   *directory.Memory
	store facility.Store
	gate  *access.Gate
}

// forEachStore runs fn against the in-memory store and SQLite.
func forEachStore(t *testing.T, fn func(t *testing.T, s facility.Store)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, store.NewMemory())
	})
	t.Run("sqlite", func(t *testing.T) {
		s, err := sqlite.New(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		fn(t, s)
	})
}

func newFixture(t *testing.T, s facility.Store, opts ...access.EvaluatorOption) *fixture {
	t.Helper()
	ctx := context.Background()
	clock := facility.NewManualClock(tuesday)
	dir := directory.NewMemory(clock)

	require.NoError(t, dir.RegisterPerson(ctx, facility.Person{
		ID: "m-1", Name: "Ana Costa", MemberNumber: "1001", Kind: facility.KindMember,
	}, directory.Codes{NationalID: "12345678900", CardCode: "CARD-1"}))
	require.NoError(t, dir.RegisterPerson(ctx, facility.Person{
		ID: "d-1", Name: "Leo Costa", Kind: facility.KindDependent, GuarantorID: "m-1",
	}, directory.Codes{CardCode: "CARD-2"}))

	resolver := access.NewResolver(dir, time.Second)
	evaluator := access.NewEvaluator(dir, dir, opts...)
	ledger := access.NewLedger(s, clock, nil)
	return &fixture{
		clock: clock,
		dir:   dir,
		store: s,
		gate:  access.NewGate(resolver, evaluator, ledger, []string{"pool"}, nil),
	}
}

type failingBilling struct{ err error }

func (f failingBilling) IsInGoodStanding(context.Context, facility.PersonID) (bool, error) {
	return false, f.err
}

type slowBilling struct{ delay time.Duration }

func (s slowBilling) IsInGoodStanding(context.Context, facility.PersonID) (bool, error) {
	time.Sleep(s.delay)
	return true, nil
}

type noExams struct{}

func (noExams) HasValidExam(context.Context, facility.PersonID) (bool, error) { return false, nil }

// =============================================================================
// RESOLVER
// =============================================================================

func TestResolver_MemberByAnyCode(t *testing.T) {
	f := newFixture(t, store.NewMemory())
	ctx := context.Background()

	for _, code := range []string{"m-1", "1001", "12345678900", " card-1 "} {
		rp, err := f.gate.Resolver().Resolve(ctx, code)
		require.NoError(t, err, code)
		assert.Equal(t, facility.PersonID("m-1"), rp.ID)
		assert.Equal(t, facility.KindMember, rp.Kind)
		assert.Nil(t, rp.Guarantor)
	}
}

func TestResolver_DependentCarriesGuarantor(t *testing.T) {
	f := newFixture(t, store.NewMemory())

	rp, err := f.gate.Resolver().Resolve(context.Background(), "CARD-2")
	require.NoError(t, err)
	assert.Equal(t, facility.KindDependent, rp.Kind)
	require.NotNil(t, rp.Guarantor)
	assert.Equal(t, facility.PersonID("m-1"), rp.Guarantor.ID)
	assert.Equal(t, facility.PersonID("m-1"), rp.BillingSubject())
	assert.Equal(t, "1001", rp.DisplayMemberNumber())
}

func TestResolver_MemberWinsOverDependent(t *testing.T) {
	f := newFixture(t, store.NewMemory())
	ctx := context.Background()
	require.NoError(t, f.dir.RegisterPerson(ctx, facility.Person{
		ID: "d-2", Name: "Shared", Kind: facility.KindDependent, GuarantorID: "m-1",
	}, directory.Codes{CardCode: "CARD-1"}))

	rp, err := f.gate.Resolver().Resolve(ctx, "CARD-1")
	require.NoError(t, err)
	assert.Equal(t, facility.PersonID("m-1"), rp.ID)
}

func TestResolver_Errors(t *testing.T) {
	f := newFixture(t, store.NewMemory())
	ctx := context.Background()

	_, err := f.gate.Resolver().Resolve(ctx, "   ")
	assert.ErrorIs(t, err, facility.ErrInvalidCode)

	_, err = f.gate.Resolver().Resolve(ctx, "nobody")
	assert.ErrorIs(t, err, facility.ErrNotFound)
}

// =============================================================================
// EVALUATOR
// =============================================================================

func TestEvaluator_ActiveMemberAllowed(t *testing.T) {
	f := newFixture(t, store.NewMemory())
	d, err := f.gate.ResolveAndEvaluate(context.Background(), "1001", access.PurposeGatePass, "main")
	require.NoError(t, err)
	assert.True(t, d.Verdict.Allowed)
	assert.Empty(t, d.Verdict.Advisories)
	assert.NoError(t, d.Verdict.Err())
}

func TestEvaluator_InactiveStatusDenied(t *testing.T) {
	f := newFixture(t, store.NewMemory())
	f.dir.SetStatus("m-1", facility.StatusSuspended)

	d, err := f.gate.ResolveAndEvaluate(context.Background(), "1001", access.PurposeGatePass, "main")
	require.NoError(t, err)
	assert.False(t, d.Verdict.Allowed)
	assert.Equal(t, access.ReasonInactiveStatus, d.Verdict.Reason)

	var denied *facility.DeniedError
	require.ErrorAs(t, d.Verdict.Err(), &denied)
	assert.Equal(t, "inactive_status", denied.Reason)
}

func TestEvaluator_DependentFollowsGuarantorStatus(t *testing.T) {
	// GIVEN: An active dependent whose guarantor is inactive
	// WHEN: The dependent scans
	// THEN: Denied for inactive status
	f := newFixture(t, store.NewMemory())
	f.dir.SetStatus("m-1", facility.StatusInactive)

	d, err := f.gate.ResolveAndEvaluate(context.Background(), "CARD-2", access.PurposeGatePass, "main")
	require.NoError(t, err)
	assert.False(t, d.Verdict.Allowed)
	assert.Equal(t, access.ReasonInactiveStatus, d.Verdict.Reason)
}

func TestEvaluator_DelinquencyIsAdvisoryByDefault(t *testing.T) {
	f := newFixture(t, store.NewMemory())
	ctx := context.Background()
	require.NoError(t, f.dir.AddDue(ctx, "m-1", facility.NewDate(2026, time.February, 10)))

	d, err := f.gate.ResolveAndEvaluate(ctx, "CARD-2", access.PurposeGatePass, "main")
	require.NoError(t, err)
	assert.True(t, d.Verdict.Allowed)
	assert.Equal(t, []string{"guarantor has overdue balance"}, d.Verdict.Advisories)

	d, err = f.gate.ResolveAndEvaluate(ctx, "1001", access.PurposeGatePass, "main")
	require.NoError(t, err)
	assert.True(t, d.Verdict.Allowed)
	assert.Equal(t, []string{"member has overdue balance"}, d.Verdict.Advisories)
}

func TestEvaluator_DueNotYetOverdue(t *testing.T) {
	f := newFixture(t, store.NewMemory())
	ctx := context.Background()
	require.NoError(t, f.dir.AddDue(ctx, "m-1", facility.DateOf(tuesday)))

	d, err := f.gate.ResolveAndEvaluate(ctx, "1001", access.PurposeGatePass, "main")
	require.NoError(t, err)
	assert.Empty(t, d.Verdict.Advisories)
}

func TestEvaluator_BlockDelinquentRule(t *testing.T) {
	f := newFixture(t, store.NewMemory(), access.WithStandingRule(access.BlockDelinquent{}))
	ctx := context.Background()
	require.NoError(t, f.dir.AddDue(ctx, "m-1", facility.NewDate(2026, time.January, 5)))

	d, err := f.gate.ResolveAndEvaluate(ctx, "1001", access.PurposeGatePass, "main")
	require.NoError(t, err)
	assert.False(t, d.Verdict.Allowed)
	assert.Equal(t, access.ReasonDelinquent, d.Verdict.Reason)
	assert.Contains(t, d.Verdict.Advisories, "member has overdue balance")
}

func TestEvaluator_ExamGatedArea(t *testing.T) {
	f := newFixture(t, store.NewMemory())
	ctx := context.Background()

	d, err := f.gate.ResolveAndEvaluate(ctx, "1001", "", "pool")
	require.NoError(t, err)
	assert.Equal(t, access.PurposeExamGated, d.Purpose)
	assert.False(t, d.Verdict.Allowed)
	assert.Equal(t, access.ReasonExamRequired, d.Verdict.Reason)

	// Expired exam still denies
	require.NoError(t, f.dir.RecordExam(ctx, "m-1", facility.NewDate(2026, time.March, 9)))
	d, err = f.gate.ResolveAndEvaluate(ctx, "1001", "", "pool")
	require.NoError(t, err)
	assert.False(t, d.Verdict.Allowed)

	require.NoError(t, f.dir.RecordExam(ctx, "m-1", facility.NewDate(2026, time.June, 30)))
	d, err = f.gate.ResolveAndEvaluate(ctx, "1001", "", "pool")
	require.NoError(t, err)
	assert.True(t, d.Verdict.Allowed)

	// Main gate never asks for an exam
	d, err = f.gate.ResolveAndEvaluate(ctx, "CARD-2", "", "main")
	require.NoError(t, err)
	assert.Equal(t, access.PurposeGatePass, d.Purpose)
	assert.True(t, d.Verdict.Allowed)
}

func TestEvaluator_FailsClosedOnDependencyError(t *testing.T) {
	outage := errors.New("billing service down")
	ev := access.NewEvaluator(failingBilling{err: outage}, noExams{})
	person := facility.ResolvedPerson{Person: facility.Person{ID: "m-1", Kind: facility.KindMember, Status: facility.StatusActive}}

	v, err := ev.Evaluate(context.Background(), person, access.PurposeGatePass)
	require.Error(t, err)
	assert.False(t, v.Allowed)
	assert.Equal(t, access.ReasonDependencyUnavailable, v.Reason)
	assert.ErrorIs(t, err, facility.ErrDependencyUnavailable)
	assert.ErrorIs(t, err, outage)
	assert.True(t, facility.IsRetryable(err))
}

func TestEvaluator_TimeoutIsDependencyError(t *testing.T) {
	ev := access.NewEvaluator(slowBilling{delay: 200 * time.Millisecond}, noExams{},
		access.WithLookupTimeout(20*time.Millisecond))
	person := facility.ResolvedPerson{Person: facility.Person{ID: "m-1", Kind: facility.KindMember, Status: facility.StatusActive}}

	start := time.Now()
	v, err := ev.Evaluate(context.Background(), person, access.PurposeGatePass)
	assert.Less(t, time.Since(start), 150*time.Millisecond)
	assert.False(t, v.Allowed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	var depErr *facility.DependencyError
	require.ErrorAs(t, err, &depErr)
	assert.Equal(t, "billing", depErr.Dependency)
}

func TestEvaluator_UnknownPurpose(t *testing.T) {
	ev := access.NewEvaluator(failingBilling{}, noExams{})
	v, err := ev.Evaluate(context.Background(), facility.ResolvedPerson{}, access.Purpose("spa"))
	assert.ErrorIs(t, err, facility.ErrInvalidInput)
	assert.False(t, v.Allowed)
}

// =============================================================================
// LEDGER
// =============================================================================

func TestStateAfter(t *testing.T) {
	assert.Equal(t, access.Outside, access.StateAfter(nil))
	assert.Equal(t, access.Inside, access.StateAfter(&facility.AccessRecord{Direction: facility.DirectionEntry}))
	assert.Equal(t, access.Outside, access.StateAfter(&facility.AccessRecord{Direction: facility.DirectionExit}))
	assert.Equal(t, facility.DirectionEntry, access.Outside.NextDirection())
	assert.Equal(t, facility.DirectionExit, access.Inside.NextDirection())
}

func TestLedger_EntryThenExit(t *testing.T) {
	forEachStore(t, func(t *testing.T, s facility.Store) {
		// Scenario A and B: first scan enters, second scan exits
		f := newFixture(t, s)
		ctx := context.Background()

		res, err := f.gate.ScanAndLog(ctx, "1001", "main", "desk-1")
		require.NoError(t, err)
		require.NotNil(t, res.Record)
		assert.Equal(t, facility.DirectionEntry, res.Record.Direction)
		assert.Equal(t, access.Outside, res.State)
		assert.Equal(t, int64(1), res.Record.Seq)
		assert.Equal(t, "desk-1", res.Record.OperatorID)

		f.clock.Advance(time.Hour)
		res, err = f.gate.ScanAndLog(ctx, "1001", "main", "desk-1")
		require.NoError(t, err)
		assert.Equal(t, facility.DirectionExit, res.Record.Direction)
		assert.Equal(t, access.Inside, res.State)
		assert.Equal(t, int64(2), res.Record.Seq)

		state, err := f.gate.Ledger().State(ctx, "m-1", "main")
		require.NoError(t, err)
		assert.Equal(t, access.Outside, state)
	})
}

func TestLedger_LocationsAreIndependent(t *testing.T) {
	forEachStore(t, func(t *testing.T, s facility.Store) {
		f := newFixture(t, s)
		ctx := context.Background()
		person := facility.Person{ID: "m-1", Kind: facility.KindMember}

		rec, err := f.gate.Ledger().Log(ctx, person, "main", "")
		require.NoError(t, err)
		assert.Equal(t, facility.DirectionEntry, rec.Direction)

		rec, err = f.gate.Ledger().Log(ctx, person, "gym", "")
		require.NoError(t, err)
		assert.Equal(t, facility.DirectionEntry, rec.Direction)
	})
}

func TestLedger_ConcurrentScansAlternate(t *testing.T) {
	forEachStore(t, func(t *testing.T, s facility.Store) {
		// GIVEN: Many desks logging the same person at once
		// WHEN: All appends complete
		// THEN: Directions strictly alternate by seq with no gaps
		f := newFixture(t, s)
		ctx := context.Background()
		person := facility.Person{ID: "m-1", Kind: facility.KindMember}

		const n = 8
		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.gate.Ledger().Log(ctx, person, "main", "")
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)

		ok := 0
		for err := range errs {
			if err == nil {
				ok++
			} else {
				assert.ErrorIs(t, err, facility.ErrConcurrentModification)
			}
		}

		records, err := f.gate.Ledger().Recent(ctx, facility.AccessFilter{PersonID: "m-1", Location: "main"})
		require.NoError(t, err)
		require.Len(t, records, ok)
		for _, rec := range records {
			want := facility.DirectionEntry
			if rec.Seq%2 == 0 {
				want = facility.DirectionExit
			}
			assert.Equal(t, want, rec.Direction, "seq %d", rec.Seq)
		}
	})
}

func TestLedger_RejectsEmptyLocation(t *testing.T) {
	f := newFixture(t, store.NewMemory())
	_, err := f.gate.Ledger().Log(context.Background(), facility.Person{ID: "m-1"}, " ", "")
	assert.ErrorIs(t, err, facility.ErrInvalidInput)
}

func TestLedger_PresentAndDailyStats(t *testing.T) {
	forEachStore(t, func(t *testing.T, s facility.Store) {
		f := newFixture(t, s)
		ctx := context.Background()
		ledger := f.gate.Ledger()
		ana := facility.Person{ID: "m-1", Kind: facility.KindMember}
		leo := facility.Person{ID: "d-1", Kind: facility.KindDependent}

		_, err := ledger.Log(ctx, ana, "main", "")
		require.NoError(t, err)
		f.clock.Advance(time.Minute)
		_, err = ledger.Log(ctx, leo, "main", "")
		require.NoError(t, err)
		f.clock.Advance(time.Minute)
		_, err = ledger.Log(ctx, ana, "main", "")
		require.NoError(t, err)

		present, err := ledger.Present(ctx, "main")
		require.NoError(t, err)
		require.Len(t, present, 1)
		assert.Equal(t, facility.PersonID("d-1"), present[0].PersonID)

		stats, err := ledger.DailyStats(ctx, "main", facility.DateOf(tuesday))
		require.NoError(t, err)
		assert.Equal(t, 2, stats.Entries)
		assert.Equal(t, 1, stats.Exits)
		assert.Equal(t, 1, stats.Present)
		assert.Equal(t, facility.DateOf(tuesday), stats.Date)

		recent, err := ledger.Recent(ctx, facility.AccessFilter{Location: "main", Limit: 2})
		require.NoError(t, err)
		require.Len(t, recent, 2)
		assert.Equal(t, facility.PersonID("m-1"), recent[0].PersonID)
		assert.Equal(t, facility.DirectionExit, recent[0].Direction)
	})
}

// =============================================================================
// GATE
// =============================================================================

func TestGate_DeniedScanIsNotLogged(t *testing.T) {
	forEachStore(t, func(t *testing.T, s facility.Store) {
		f := newFixture(t, s)
		ctx := context.Background()

		res, err := f.gate.ScanAndLog(ctx, "1001", "pool", "desk-1")
		assert.ErrorIs(t, err, facility.ErrDenied)
		assert.Nil(t, res.Record)
		assert.Equal(t, access.ReasonExamRequired, res.Verdict.Reason)

		records, err := f.gate.Ledger().Recent(ctx, facility.AccessFilter{PersonID: "m-1"})
		require.NoError(t, err)
		assert.Empty(t, records)
	})
}

func TestGate_LogAccessSkipsEvaluation(t *testing.T) {
	forEachStore(t, func(t *testing.T, s facility.Store) {
		f := newFixture(t, s)
		f.dir.SetStatus("m-1", facility.StatusSuspended)

		rec, err := f.gate.LogAccess(context.Background(), "m-1", "main", "supervisor")
		require.NoError(t, err)
		assert.Equal(t, facility.DirectionEntry, rec.Direction)
		assert.Equal(t, facility.KindMember, rec.PersonKind)
	})
}

func TestGate_LogAccessUnknownPerson(t *testing.T) {
	f := newFixture(t, store.NewMemory())
	_, err := f.gate.LogAccess(context.Background(), "ghost", "main", "")
	assert.ErrorIs(t, err, facility.ErrNotFound)
}

func TestGate_ForcedExitThenScanEnters(t *testing.T) {
	forEachStore(t, func(t *testing.T, s facility.Store) {
		f := newFixture(t, s)
		ctx := context.Background()

		// GIVEN: Ana entered and left without scanning out
		entry, err := f.gate.ScanAndLog(ctx, "CARD-1", "main", "desk-1")
		require.NoError(t, err)
		require.NotNil(t, entry.Record)

		// WHEN: the desk records the missed exit
		exit, err := f.gate.LogDirection(ctx, "m-1", "main", "supervisor", facility.DirectionExit)
		require.NoError(t, err)
		assert.Equal(t, facility.DirectionExit, exit.Direction)
		assert.Equal(t, entry.Record.Seq+1, exit.Seq)

		// THEN: her next scan is an entry
		next, err := f.gate.ScanAndLog(ctx, "CARD-1", "main", "desk-1")
		require.NoError(t, err)
		require.NotNil(t, next.Record)
		assert.Equal(t, facility.DirectionEntry, next.Record.Direction)
		assert.Equal(t, exit.Seq+1, next.Record.Seq)
	})
}

func TestGate_ForcedDirectionRepeats(t *testing.T) {
	forEachStore(t, func(t *testing.T, s facility.Store) {
		f := newFixture(t, s)
		ctx := context.Background()

		// Two forced entries in a row are allowed; the state follows the last one
		for i := 0; i < 2; i++ {
			rec, err := f.gate.LogDirection(ctx, "m-1", "main", "", facility.DirectionEntry)
			require.NoError(t, err)
			assert.Equal(t, facility.DirectionEntry, rec.Direction)
		}
		state, err := f.gate.Ledger().State(ctx, "m-1", "main")
		require.NoError(t, err)
		assert.Equal(t, access.Inside, state)

		_, err = f.gate.LogDirection(ctx, "m-1", "main", "", facility.Direction("sideways"))
		assert.ErrorIs(t, err, facility.ErrInvalidInput)
	})
}
