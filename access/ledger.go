package access

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/club-engine/facility"
	"github.com/warp/club-engine/metrics"
)

// =============================================================================
// GATE STATE
// =============================================================================

// GateState is where a person stands relative to one location. It is
// recomputed from the latest record, never stored on its own.
type GateState string

const (
	Outside GateState = "outside"
	Inside  GateState = "inside"
)

// StateAfter derives the state left by the latest record (nil = never seen).
func StateAfter(last *facility.AccessRecord) GateState {
	if last != nil && last.Direction == facility.DirectionEntry {
		return Inside
	}
	return Outside
}

// NextDirection is the direction the next pass through the gate will take.
func (s GateState) NextDirection() facility.Direction {
	if s == Inside {
		return facility.DirectionExit
	}
	return facility.DirectionEntry
}

// =============================================================================
// LEDGER
// =============================================================================

const (
	maxAppendAttempts  = 3
	defaultRecentLimit = 100
)

// Ledger is the append-only gate log.
type Ledger struct {
	store  facility.Store
	clock  facility.Clock
	logger *zap.Logger
}

func NewLedger(store facility.Store, clock facility.Clock, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{store: store, clock: clock, logger: logger}
}

// Log appends the next pass for person at location. Two desks scanning the
// same person at once race on the (person, location, seq) key; the loser
// re-reads and flips again.
func (l *Ledger) Log(ctx context.Context, person facility.Person, location, operatorID string) (facility.AccessRecord, error) {
	return l.log(ctx, person, location, operatorID, "")
}

// LogDirection appends a pass in dir regardless of the current state, for
// when the desk knows the toggle is wrong (a missed exit scan, a tailgater).
// The record still takes the next seq, so later scans flip from it.
func (l *Ledger) LogDirection(ctx context.Context, person facility.Person, location, operatorID string, dir facility.Direction) (facility.AccessRecord, error) {
	if dir != facility.DirectionEntry && dir != facility.DirectionExit {
		return facility.AccessRecord{}, facility.Invalid("direction", "must be entry or exit, got %q", dir)
	}
	return l.log(ctx, person, location, operatorID, dir)
}

// log toggles when dir is empty.
func (l *Ledger) log(ctx context.Context, person facility.Person, location, operatorID string, dir facility.Direction) (facility.AccessRecord, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return facility.AccessRecord{}, facility.Invalid("location", "required")
	}
	if person.ID == "" {
		return facility.AccessRecord{}, facility.Invalid("person_id", "required")
	}

	var (
		rec facility.AccessRecord
		err error
	)
	for attempt := 1; attempt <= maxAppendAttempts; attempt++ {
		rec, err = l.append(ctx, person, location, operatorID, dir)
		if !errors.Is(err, facility.ErrConcurrentModification) {
			break
		}
		l.logger.Debug("access append lost race, retrying",
			zap.String("person_id", string(person.ID)),
			zap.String("location", location),
			zap.Int("attempt", attempt))
	}
	if err != nil {
		return facility.AccessRecord{}, err
	}

	metrics.AccessRecords.WithLabelValues(string(rec.Direction)).Inc()
	l.logger.Info("access logged",
		zap.String("person_id", string(rec.PersonID)),
		zap.String("location", rec.Location),
		zap.String("direction", string(rec.Direction)),
		zap.Bool("forced", dir != ""),
		zap.Int64("seq", rec.Seq))
	return rec, nil
}

func (l *Ledger) append(ctx context.Context, person facility.Person, location, operatorID string, dir facility.Direction) (facility.AccessRecord, error) {
	var rec facility.AccessRecord
	err := l.store.WithTx(ctx, func(tx facility.Tx) error {
		last, err := tx.LastAccess(ctx, person.ID, location)
		if err != nil {
			return err
		}

		var seq int64 = 1
		if last != nil {
			seq = last.Seq + 1
		}
		if dir == "" {
			dir = StateAfter(last).NextDirection()
		}
		rec = facility.AccessRecord{
			ID:         facility.AccessRecordID(uuid.NewString()),
			PersonID:   person.ID,
			PersonKind: person.Kind,
			Location:   location,
			Direction:  dir,
			Timestamp:  l.clock.Now(),
			OperatorID: operatorID,
			Seq:        seq,
		}
		return tx.AppendAccess(ctx, rec)
	})
	return rec, err
}

// State reports whether the person is currently inside location.
func (l *Ledger) State(ctx context.Context, personID facility.PersonID, location string) (GateState, error) {
	last, err := l.store.LastAccess(ctx, personID, location)
	if err != nil {
		return Outside, err
	}
	return StateAfter(last), nil
}

// Present lists the latest record of everyone currently inside location.
func (l *Ledger) Present(ctx context.Context, location string) ([]facility.AccessRecord, error) {
	latest, err := l.store.LatestAccessPerPerson(ctx, location)
	if err != nil {
		return nil, err
	}
	present := make([]facility.AccessRecord, 0, len(latest))
	for i := range latest {
		if StateAfter(&latest[i]) == Inside {
			present = append(present, latest[i])
		}
	}
	return present, nil
}

// DailyStats summarizes one location for one day. Present is always "now".
type DailyStats struct {
	Location string
	Date     facility.Date
	Entries  int
	Exits    int
	Present  int
}

func (l *Ledger) DailyStats(ctx context.Context, location string, day facility.Date) (DailyStats, error) {
	loc := l.clock.Now().Location()
	if day.IsZero() {
		day = facility.DateOf(l.clock.Now())
	}
	from := day.At(facility.TimeOfDay{}, loc)
	to := day.AddDays(1).At(facility.TimeOfDay{}, loc)

	entries, exits, err := l.store.CountAccess(ctx, location, from, to)
	if err != nil {
		return DailyStats{}, fmt.Errorf("failed to count access: %w", err)
	}
	present, err := l.Present(ctx, location)
	if err != nil {
		return DailyStats{}, err
	}
	return DailyStats{
		Location: location,
		Date:     day,
		Entries:  entries,
		Exits:    exits,
		Present:  len(present),
	}, nil
}

// Recent returns history newest first, 100 rows unless the filter says otherwise.
func (l *Ledger) Recent(ctx context.Context, filter facility.AccessFilter) ([]facility.AccessRecord, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultRecentLimit
	}
	return l.store.ListAccess(ctx, filter)
}
