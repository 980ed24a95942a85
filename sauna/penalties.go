package sauna

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/club-engine/facility"
	"github.com/warp/club-engine/metrics"
)

// Penalties is the append-only fine ledger. Fines are never deleted; only
// their status moves from pending to paid or waived.
type Penalties struct {
	store  facility.Store
	clock  facility.Clock
	logger *zap.Logger
}

func NewPenalties(store facility.Store, clock facility.Clock, logger *zap.Logger) *Penalties {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Penalties{store: store, clock: clock, logger: logger}
}

// Record appends a fine inside the caller's transaction. A second fine for
// the same usage fails with ErrAlreadyClosed.
func (p *Penalties) Record(ctx context.Context, tx facility.Tx, usageID facility.UsageID, personID facility.PersonID, amount decimal.Decimal, reason string) (facility.Fine, error) {
	if amount.IsNegative() {
		return facility.Fine{}, fmt.Errorf("fine amount %s: %w", amount, facility.ErrInvalidAmount)
	}
	now := p.clock.Now()
	fine := facility.Fine{
		ID:        facility.FineID(uuid.NewString()),
		UsageID:   usageID,
		PersonID:  personID,
		Amount:    amount,
		Reason:    reason,
		Status:    facility.FinePending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.InsertFine(ctx, fine); err != nil {
		return facility.Fine{}, err
	}
	return fine, nil
}

// RecordFine appends a fine against an existing locker usage in its own
// transaction, for charges raised outside Release (a damaged towel, a late
// return). Every fine belongs to exactly one usage.
func (p *Penalties) RecordFine(ctx context.Context, usageID facility.UsageID, personID facility.PersonID, amount decimal.Decimal, reason string) (facility.Fine, error) {
	if usageID == "" {
		return facility.Fine{}, facility.Invalid("usage_id", "required")
	}
	var fine facility.Fine
	err := p.store.WithTx(ctx, func(tx facility.Tx) error {
		if _, err := tx.GetUsage(ctx, usageID); err != nil {
			return err
		}
		var err error
		fine, err = p.Record(ctx, tx, usageID, personID, amount, reason)
		return err
	})
	if err != nil {
		return facility.Fine{}, err
	}
	metrics.FinesRecorded.Inc()
	return fine, nil
}

func (p *Penalties) Get(ctx context.Context, id facility.FineID) (*facility.Fine, error) {
	return p.store.GetFine(ctx, id)
}

func (p *Penalties) List(ctx context.Context, filter facility.FineFilter) ([]facility.Fine, error) {
	return p.store.ListFines(ctx, filter)
}

// SetStatus settles a pending fine as paid or waived.
func (p *Penalties) SetStatus(ctx context.Context, id facility.FineID, to facility.FineStatus) (facility.Fine, error) {
	var updated facility.Fine
	err := p.store.WithTx(ctx, func(tx facility.Tx) error {
		fine, err := tx.GetFine(ctx, id)
		if err != nil {
			return err
		}
		if !facility.ValidFineTransition(fine.Status, to) {
			return fmt.Errorf("fine %s %s -> %s: %w", id, fine.Status, to, facility.ErrInvalidTransition)
		}
		now := p.clock.Now()
		if err := tx.UpdateFineStatus(ctx, id, fine.Status, to, now); err != nil {
			return err
		}
		updated = *fine
		updated.Status = to
		updated.UpdatedAt = now
		return nil
	})
	if err != nil {
		return facility.Fine{}, err
	}

	p.logger.Info("fine settled",
		zap.String("fine_id", string(id)),
		zap.String("status", string(to)),
		zap.String("amount", updated.Amount.StringFixed(2)))
	return updated, nil
}
