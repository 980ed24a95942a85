// Package metrics holds the engine's Prometheus collectors.
//
// Collectors register with the default registry on import; Handler serves
// them at /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "club"

// ─── Gate ───────────────────────────────────────────────────────────────────

// GateVerdicts counts eligibility outcomes. outcome is "allowed" or the deny reason.
var GateVerdicts = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "gate",
	Name:      "verdicts_total",
	Help:      "Eligibility verdicts by purpose and outcome.",
}, []string{"purpose", "outcome"})

var AccessRecords = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "gate",
	Name:      "access_records_total",
	Help:      "Gate records appended, by direction.",
}, []string{"direction"})

var DependencyErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "gate",
	Name:      "dependency_errors_total",
	Help:      "External lookups that failed or timed out.",
}, []string{"dependency"})

// ─── Sauna ──────────────────────────────────────────────────────────────────

var LockerEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "sauna",
	Name:      "locker_events_total",
	Help:      "Locker custody events (assigned, released, key_lost, rejected).",
}, []string{"event"})

var FinesRecorded = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "sauna",
	Name:      "fines_total",
	Help:      "Lost-key fines recorded.",
})

var LockersByStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: namespace,
	Subsystem: "sauna",
	Name:      "lockers",
	Help:      "Lockers per status as of the last summary.",
}, []string{"status"})

// ─── Kiosks ─────────────────────────────────────────────────────────────────

var ReservationClaims = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "kiosk",
	Name:      "reservation_claims_total",
	Help:      "Reservation attempts by outcome.",
}, []string{"outcome"})

var ExpirySweepExpired = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "kiosk",
	Name:      "expiry_sweep_expired_total",
	Help:      "Reservations moved to expired by the sweep.",
})

var ExpirySweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "kiosk",
	Name:      "expiry_sweep_duration_seconds",
	Help:      "Time spent in one expiry sweep.",
	Buckets:   prometheus.DefBuckets,
})

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
