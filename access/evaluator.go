package access

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/warp/club-engine/facility"
	"github.com/warp/club-engine/metrics"
)

// =============================================================================
// PURPOSE & VERDICT
// =============================================================================

type Purpose string

const (
	PurposeGatePass  Purpose = "gate-pass"
	PurposeExamGated Purpose = "exam-gated-area"
)

func (p Purpose) Valid() bool {
	return p == PurposeGatePass || p == PurposeExamGated
}

type Reason string

const (
	ReasonInactiveStatus        Reason = "inactive_status"
	ReasonExamRequired          Reason = "exam_required"
	ReasonDelinquent            Reason = "delinquent"
	ReasonDependencyUnavailable Reason = "dependency_unavailable"
)

// Verdict is the evaluator's answer. Advisories never block; they are shown
// to the operator next to the decision.
type Verdict struct {
	Allowed    bool
	Reason     Reason
	Advisories []string
}

func Allowed(advisories ...string) Verdict {
	return Verdict{Allowed: true, Advisories: advisories}
}

func Denied(reason Reason, advisories ...string) Verdict {
	return Verdict{Allowed: false, Reason: reason, Advisories: advisories}
}

// Err is nil for an allowed verdict and a *facility.DeniedError otherwise.
func (v Verdict) Err() error {
	if v.Allowed {
		return nil
	}
	return &facility.DeniedError{Reason: string(v.Reason)}
}

// =============================================================================
// STANDING RULE - delinquency policy
// =============================================================================

// StandingRule decides what an overdue balance means at the gate.
type StandingRule interface {
	// Judge returns block=true to deny, or an advisory to attach.
	Judge(subject facility.ResolvedPerson, inGoodStanding bool) (block bool, advisory string)
}

// AdvisoryOnly lets delinquent people in with a warning. This is the default.
type AdvisoryOnly struct{}

func (AdvisoryOnly) Judge(subject facility.ResolvedPerson, inGoodStanding bool) (bool, string) {
	if inGoodStanding {
		return false, ""
	}
	return false, overdueAdvisory(subject)
}

// BlockDelinquent denies anyone whose billing subject is overdue.
type BlockDelinquent struct{}

func (BlockDelinquent) Judge(subject facility.ResolvedPerson, inGoodStanding bool) (bool, string) {
	if inGoodStanding {
		return false, ""
	}
	return true, overdueAdvisory(subject)
}

func overdueAdvisory(subject facility.ResolvedPerson) string {
	if subject.IsDependent() {
		return "guarantor has overdue balance"
	}
	return "member has overdue balance"
}

// =============================================================================
// EVALUATOR
// =============================================================================

type Evaluator struct {
	billing Billing
	medical MedicalRecords
	rule    StandingRule
	timeout time.Duration
	logger  *zap.Logger
}

type EvaluatorOption func(*Evaluator)

func WithStandingRule(rule StandingRule) EvaluatorOption {
	return func(e *Evaluator) { e.rule = rule }
}

func WithLookupTimeout(d time.Duration) EvaluatorOption {
	return func(e *Evaluator) { e.timeout = d }
}

func WithLogger(l *zap.Logger) EvaluatorOption {
	return func(e *Evaluator) { e.logger = l }
}

func NewEvaluator(billing Billing, medical MedicalRecords, opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{
		billing: billing,
		medical: medical,
		rule:    AdvisoryOnly{},
		timeout: DefaultLookupTimeout,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate checks, in order: status (own and guarantor's), billing standing,
// and for exam-gated areas a valid medical exam. Hard failures short-circuit.
//
// A failed lookup returns a dependency_unavailable denial together with the
// *facility.DependencyError, so callers that only look at the verdict still
// deny.
func (e *Evaluator) Evaluate(ctx context.Context, person facility.ResolvedPerson, purpose Purpose) (Verdict, error) {
	v, err := e.evaluate(ctx, person, purpose)

	outcome := "allowed"
	if !v.Allowed {
		outcome = string(v.Reason)
	}
	metrics.GateVerdicts.WithLabelValues(string(purpose), outcome).Inc()

	if err != nil {
		var depErr *facility.DependencyError
		if errors.As(err, &depErr) {
			metrics.DependencyErrors.WithLabelValues(depErr.Dependency).Inc()
		}
		e.logger.Warn("eligibility lookup failed, denying",
			zap.String("person_id", string(person.ID)),
			zap.String("purpose", string(purpose)),
			zap.Error(err))
	}
	return v, err
}

func (e *Evaluator) evaluate(ctx context.Context, person facility.ResolvedPerson, purpose Purpose) (Verdict, error) {
	if !purpose.Valid() {
		return Denied(ReasonInactiveStatus), facility.Invalid("purpose", "unknown purpose %q", purpose)
	}

	// 1. Status
	if !person.IsActive() {
		return Denied(ReasonInactiveStatus), nil
	}
	if person.IsDependent() && (person.Guarantor == nil || !person.Guarantor.IsActive()) {
		return Denied(ReasonInactiveStatus), nil
	}

	// 2. Billing standing of whoever pays
	var advisories []string
	good, err := bounded(ctx, e.timeout, "billing", func(ctx context.Context) (bool, error) {
		return e.billing.IsInGoodStanding(ctx, person.BillingSubject())
	})
	if err != nil {
		return Denied(ReasonDependencyUnavailable), err
	}
	block, advisory := e.rule.Judge(person, good)
	if advisory != "" {
		advisories = append(advisories, advisory)
	}
	if block {
		return Denied(ReasonDelinquent, advisories...), nil
	}

	// 3. Medical exam
	if purpose == PurposeExamGated {
		valid, err := bounded(ctx, e.timeout, "medical_records", func(ctx context.Context) (bool, error) {
			return e.medical.HasValidExam(ctx, person.ID)
		})
		if err != nil {
			return Denied(ReasonDependencyUnavailable, advisories...), err
		}
		if !valid {
			return Denied(ReasonExamRequired, advisories...), nil
		}
	}

	return Allowed(advisories...), nil
}
