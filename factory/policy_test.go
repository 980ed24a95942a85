package factory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/club-engine/access"
	"github.com/warp/club-engine/facility"
)

func TestParseReservationConfig(t *testing.T) {
	f := NewPolicyFactory()

	cfg, err := f.ParseReservationConfig(`{
		"opening_weekday": "Thursday",
		"opening_time": "18:30",
		"cycle_start_weekday": "1",
		"daily_cutoff_time": "10:00",
		"max_advance_days": 14,
		"default_price": "120.50",
		"allow_multiple_per_person": true
	}`)
	require.NoError(t, err)
	assert.Equal(t, time.Thursday, cfg.OpeningWeekday)
	assert.Equal(t, facility.TimeOfDay{Hour: 18, Minute: 30}, cfg.OpeningTime)
	assert.Equal(t, time.Monday, cfg.CycleStartWeekday)
	assert.Equal(t, facility.TimeOfDay{Hour: 10}, cfg.DailyCutoffTime)
	assert.Equal(t, 14, cfg.MaxAdvanceDays)
	assert.Equal(t, "120.50", cfg.DefaultPrice.StringFixed(2))
	assert.True(t, cfg.AllowMultiplePerPerson)
}

func TestParseReservationConfig_Defaults(t *testing.T) {
	cfg, err := NewPolicyFactory().ParseReservationConfig(`{}`)
	require.NoError(t, err)
	assert.Equal(t, facility.DefaultReservationConfig(), cfg)
}

func TestParseReservationConfig_CycleFollowsOpening(t *testing.T) {
	cfg, err := NewPolicyFactory().ParseReservationConfig(`{"opening_weekday": "monday"}`)
	require.NoError(t, err)
	assert.Equal(t, time.Monday, cfg.CycleStartWeekday)
}

func TestParseReservationConfig_Invalid(t *testing.T) {
	f := NewPolicyFactory()
	tests := []struct {
		name string
		json string
	}{
		{"weekday", `{"opening_weekday": "someday"}`},
		{"weekday out of range", `{"opening_weekday": "7"}`},
		{"time", `{"opening_time": "25:00"}`},
		{"price", `{"default_price": "abc"}`},
		{"advance days", `{"max_advance_days": -2}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.ParseReservationConfig(tt.json)
			assert.True(t, facility.IsClientError(err), "got %v", err)
		})
	}

	_, err := f.ParseReservationConfig(`{not json`)
	assert.Error(t, err)
}

func TestReservationToJSON_RoundTrip(t *testing.T) {
	f := NewPolicyFactory()
	cfg := facility.DefaultReservationConfig()
	cfg.OpeningWeekday = time.Wednesday

	rj := f.ReservationToJSON(cfg)
	assert.Equal(t, "wednesday", rj.OpeningWeekday)
	assert.Equal(t, "0.00", rj.DefaultPrice)

	back, err := f.ReservationFromJSON(rj)
	require.NoError(t, err)
	assert.Equal(t, cfg.OpeningWeekday, back.OpeningWeekday)
	assert.True(t, cfg.DefaultPrice.Equal(back.DefaultPrice))
}

func TestParseGatePolicy(t *testing.T) {
	f := NewPolicyFactory()

	p, err := f.ParseGatePolicy(`{"exam_gated_locations": ["pool", " ", "gym"], "standing_rule": "block", "lookup_timeout": "750ms"}`)
	require.NoError(t, err)
	assert.Equal(t, []string{"pool", "gym"}, p.ExamGatedLocations)
	assert.IsType(t, access.BlockDelinquent{}, p.StandingRule)
	assert.Equal(t, 750*time.Millisecond, p.LookupTimeout)

	p, err = f.ParseGatePolicy(`{}`)
	require.NoError(t, err)
	assert.IsType(t, access.AdvisoryOnly{}, p.StandingRule)
	assert.Equal(t, access.DefaultLookupTimeout, p.LookupTimeout)

	_, err = f.ParseGatePolicy(`{"standing_rule": "lenient"}`)
	assert.ErrorIs(t, err, facility.ErrInvalidInput)
	_, err = f.ParseGatePolicy(`{"lookup_timeout": "-1s"}`)
	assert.ErrorIs(t, err, facility.ErrInvalidInput)
}

func TestParseWeekday(t *testing.T) {
	for in, want := range map[string]time.Weekday{"sun": time.Sunday, "FRIDAY": time.Friday, "6": time.Saturday} {
		got, err := ParseWeekday(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
}
