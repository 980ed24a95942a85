/*
Package factory converts JSON (and config-file) policy documents into the
engine's Go types.

PURPOSE:
  The booking rules and the gate policy are edited by staff on a settings
  screen and also live in the service's config file. Both arrive as loose
  documents; the factory validates them, fills defaults and builds the
  typed values the kiosk and access packages run on.

JSON SCHEMA (reservation config):
  {
    "opening_weekday": "friday",      // name or 0-6, Sunday = 0
    "opening_time": "09:00",
    "cycle_start_weekday": "friday",  // optional, defaults to opening_weekday
    "daily_cutoff_time": "09:00",
    "max_advance_days": 7,
    "default_price": "120.00",
    "allow_multiple_per_person": false
  }

JSON SCHEMA (gate policy):
  {
    "exam_gated_locations": ["pool", "gym"],
    "standing_rule": "advisory",      // advisory | block
    "lookup_timeout": "2s"
  }

USAGE:
  f := NewPolicyFactory()
  cfg, err := f.ParseReservationConfig(body)
  policy, err := f.ParseGatePolicy(body)

SEE ALSO:
  - facility/types.go: ReservationConfig
  - access/evaluator.go: StandingRule strategies
  - config/config.go: the same documents under "reservations" and "gate"
*/
package factory

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/club-engine/access"
	"github.com/warp/club-engine/facility"
	"github.com/warp/club-engine/kiosk"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// ReservationConfigJSON is the document form of facility.ReservationConfig.
// Empty fields take the defaults from facility.DefaultReservationConfig.
type ReservationConfigJSON struct {
	OpeningWeekday         string `json:"opening_weekday,omitempty" mapstructure:"opening_weekday"`
	OpeningTime            string `json:"opening_time,omitempty" mapstructure:"opening_time"`
	CycleStartWeekday      string `json:"cycle_start_weekday,omitempty" mapstructure:"cycle_start_weekday"`
	DailyCutoffTime        string `json:"daily_cutoff_time,omitempty" mapstructure:"daily_cutoff_time"`
	MaxAdvanceDays         *int   `json:"max_advance_days,omitempty" mapstructure:"max_advance_days"`
	DefaultPrice           string `json:"default_price,omitempty" mapstructure:"default_price"`
	AllowMultiplePerPerson bool   `json:"allow_multiple_per_person" mapstructure:"allow_multiple_per_person"`
}

// GatePolicyJSON configures eligibility at the gates.
type GatePolicyJSON struct {
	ExamGatedLocations []string `json:"exam_gated_locations,omitempty" mapstructure:"exam_gated_locations"`
	StandingRule       string   `json:"standing_rule,omitempty" mapstructure:"standing_rule"`
	LookupTimeout      string   `json:"lookup_timeout,omitempty" mapstructure:"lookup_timeout"`
}

// GatePolicy is the parsed gate configuration.
type GatePolicy struct {
	ExamGatedLocations []string
	StandingRule       access.StandingRule
	LookupTimeout      time.Duration
}

const (
	StandingAdvisory = "advisory"
	StandingBlock    = "block"
)

// =============================================================================
// POLICY FACTORY
// =============================================================================

// PolicyFactory converts policy documents to Go structs.
type PolicyFactory struct{}

// NewPolicyFactory creates a new policy factory.
func NewPolicyFactory() *PolicyFactory {
	return &PolicyFactory{}
}

// ParseReservationConfig parses a JSON reservation config document.
func (f *PolicyFactory) ParseReservationConfig(jsonStr string) (facility.ReservationConfig, error) {
	var rj ReservationConfigJSON
	if err := json.Unmarshal([]byte(jsonStr), &rj); err != nil {
		return facility.ReservationConfig{}, fmt.Errorf("failed to parse reservation config JSON: %w", err)
	}
	return f.ReservationFromJSON(rj)
}

// ReservationFromJSON builds and validates a ReservationConfig.
func (f *PolicyFactory) ReservationFromJSON(rj ReservationConfigJSON) (facility.ReservationConfig, error) {
	cfg := facility.DefaultReservationConfig()
	var err error

	if rj.OpeningWeekday != "" {
		if cfg.OpeningWeekday, err = ParseWeekday(rj.OpeningWeekday); err != nil {
			return cfg, facility.Invalid("opening_weekday", "%v", err)
		}
	}
	// Without an explicit cycle start the cycle begins at the opening itself.
	cfg.CycleStartWeekday = cfg.OpeningWeekday
	if rj.CycleStartWeekday != "" {
		if cfg.CycleStartWeekday, err = ParseWeekday(rj.CycleStartWeekday); err != nil {
			return cfg, facility.Invalid("cycle_start_weekday", "%v", err)
		}
	}
	if rj.OpeningTime != "" {
		if cfg.OpeningTime, err = facility.ParseTimeOfDay(rj.OpeningTime); err != nil {
			return cfg, facility.Invalid("opening_time", "%v", err)
		}
	}
	if rj.DailyCutoffTime != "" {
		if cfg.DailyCutoffTime, err = facility.ParseTimeOfDay(rj.DailyCutoffTime); err != nil {
			return cfg, facility.Invalid("daily_cutoff_time", "%v", err)
		}
	}
	if rj.MaxAdvanceDays != nil {
		cfg.MaxAdvanceDays = *rj.MaxAdvanceDays
	}
	if rj.DefaultPrice != "" {
		if cfg.DefaultPrice, err = decimal.NewFromString(rj.DefaultPrice); err != nil {
			return cfg, facility.Invalid("default_price", "not a number: %q", rj.DefaultPrice)
		}
	}
	cfg.AllowMultiplePerPerson = rj.AllowMultiplePerPerson

	if err := kiosk.ValidateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ReservationToJSON is the inverse of ReservationFromJSON.
func (f *PolicyFactory) ReservationToJSON(cfg facility.ReservationConfig) ReservationConfigJSON {
	days := cfg.MaxAdvanceDays
	return ReservationConfigJSON{
		OpeningWeekday:         strings.ToLower(cfg.OpeningWeekday.String()),
		OpeningTime:            cfg.OpeningTime.String(),
		CycleStartWeekday:      strings.ToLower(cfg.CycleStartWeekday.String()),
		DailyCutoffTime:        cfg.DailyCutoffTime.String(),
		MaxAdvanceDays:         &days,
		DefaultPrice:           cfg.DefaultPrice.StringFixed(2),
		AllowMultiplePerPerson: cfg.AllowMultiplePerPerson,
	}
}

// ParseGatePolicy parses a JSON gate policy document.
func (f *PolicyFactory) ParseGatePolicy(jsonStr string) (GatePolicy, error) {
	var gj GatePolicyJSON
	if err := json.Unmarshal([]byte(jsonStr), &gj); err != nil {
		return GatePolicy{}, fmt.Errorf("failed to parse gate policy JSON: %w", err)
	}
	return f.GateFromJSON(gj)
}

// GateFromJSON builds a GatePolicy. Defaults: advisory standing rule and
// access.DefaultLookupTimeout.
func (f *PolicyFactory) GateFromJSON(gj GatePolicyJSON) (GatePolicy, error) {
	p := GatePolicy{
		StandingRule:  access.AdvisoryOnly{},
		LookupTimeout: access.DefaultLookupTimeout,
	}

	for _, loc := range gj.ExamGatedLocations {
		if loc = strings.TrimSpace(loc); loc != "" {
			p.ExamGatedLocations = append(p.ExamGatedLocations, loc)
		}
	}

	switch strings.ToLower(strings.TrimSpace(gj.StandingRule)) {
	case "", StandingAdvisory:
	case StandingBlock:
		p.StandingRule = access.BlockDelinquent{}
	default:
		return p, facility.Invalid("standing_rule", "unknown rule %q (want advisory or block)", gj.StandingRule)
	}

	if gj.LookupTimeout != "" {
		d, err := time.ParseDuration(gj.LookupTimeout)
		if err != nil || d <= 0 {
			return p, facility.Invalid("lookup_timeout", "must be a positive duration, got %q", gj.LookupTimeout)
		}
		p.LookupTimeout = d
	}
	return p, nil
}

// =============================================================================
// HELPERS
// =============================================================================

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

// ParseWeekday accepts an English name, a three-letter abbreviation or 0-6.
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if d, ok := weekdays[s]; ok {
		return d, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > 6 {
		return 0, fmt.Errorf("unknown weekday %q", s)
	}
	return time.Weekday(n), nil
}
