package access

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/warp/club-engine/facility"
)

// Decision is what the desk screen shows after a scan.
type Decision struct {
	Person   facility.ResolvedPerson
	Purpose  Purpose
	Location string
	Verdict  Verdict
	// State is the person's gate state at Location before this scan.
	State GateState
}

// ScanResult is a Decision plus the record appended when the scan was allowed.
type ScanResult struct {
	Decision
	Record *facility.AccessRecord
}

// Gate wires resolver, evaluator and ledger into the front-desk flow.
type Gate struct {
	resolver  *Resolver
	evaluator *Evaluator
	ledger    *Ledger
	examGated map[string]bool
	logger    *zap.Logger
}

// NewGate builds a Gate. Locations listed in examGated (e.g. "pool") are
// evaluated with PurposeExamGated; every other location is a plain gate pass.
func NewGate(resolver *Resolver, evaluator *Evaluator, ledger *Ledger, examGated []string, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	gated := make(map[string]bool, len(examGated))
	for _, loc := range examGated {
		gated[strings.ToLower(strings.TrimSpace(loc))] = true
	}
	return &Gate{
		resolver:  resolver,
		evaluator: evaluator,
		ledger:    ledger,
		examGated: gated,
		logger:    logger,
	}
}

func (g *Gate) Ledger() *Ledger { return g.ledger }

func (g *Gate) Resolver() *Resolver { return g.resolver }

// PurposeFor picks the purpose a location implies.
func (g *Gate) PurposeFor(location string) Purpose {
	if g.examGated[strings.ToLower(strings.TrimSpace(location))] {
		return PurposeExamGated
	}
	return PurposeGatePass
}

// ResolveAndEvaluate resolves code and judges the person for purpose at
// location. An empty purpose is derived from the location. Nothing is
// written.
//
// On a dependency failure the returned Decision carries a denial and the
// error is a *facility.DependencyError.
func (g *Gate) ResolveAndEvaluate(ctx context.Context, code string, purpose Purpose, location string) (Decision, error) {
	location = strings.TrimSpace(location)
	if purpose == "" {
		purpose = g.PurposeFor(location)
	}

	person, err := g.resolver.Resolve(ctx, code)
	if err != nil {
		return Decision{}, err
	}

	d := Decision{Person: person, Purpose: purpose, Location: location, State: Outside}
	d.Verdict, err = g.evaluator.Evaluate(ctx, person, purpose)
	if err != nil {
		return d, err
	}

	if location != "" {
		if d.State, err = g.ledger.State(ctx, person.ID, location); err != nil {
			return d, err
		}
	}
	return d, nil
}

// ScanAndLog is the turnstile flow: resolve, evaluate, and log the pass when
// allowed. A denied person is not logged in either direction; the returned
// error is then a *facility.DeniedError.
func (g *Gate) ScanAndLog(ctx context.Context, code, location, operatorID string) (ScanResult, error) {
	if strings.TrimSpace(location) == "" {
		return ScanResult{}, facility.Invalid("location", "required")
	}

	d, err := g.ResolveAndEvaluate(ctx, code, "", location)
	res := ScanResult{Decision: d}
	if err != nil {
		return res, err
	}
	if !d.Verdict.Allowed {
		g.logger.Info("scan denied",
			zap.String("person_id", string(d.Person.ID)),
			zap.String("location", d.Location),
			zap.String("reason", string(d.Verdict.Reason)))
		return res, d.Verdict.Err()
	}

	rec, err := g.ledger.Log(ctx, d.Person.Person, d.Location, operatorID)
	if err != nil {
		return res, err
	}
	res.Record = &rec
	return res, nil
}

// LogAccess appends a pass for a known person without evaluating them.
// Operators use it to correct a missed scan.
func (g *Gate) LogAccess(ctx context.Context, personID facility.PersonID, location, operatorID string) (facility.AccessRecord, error) {
	person, err := g.resolver.ResolveID(ctx, personID)
	if err != nil {
		return facility.AccessRecord{}, err
	}
	return g.ledger.Log(ctx, person.Person, location, operatorID)
}

// LogDirection is LogAccess with the direction chosen by the operator.
func (g *Gate) LogDirection(ctx context.Context, personID facility.PersonID, location, operatorID string, dir facility.Direction) (facility.AccessRecord, error) {
	person, err := g.resolver.ResolveID(ctx, personID)
	if err != nil {
		return facility.AccessRecord{}, err
	}
	return g.ledger.LogDirection(ctx, person.Person, location, operatorID, dir)
}
