package kiosk

import (
	"time"

	"github.com/warp/club-engine/facility"
)

// Window is the state of the weekly booking window at one instant.
//
// Booking opens at OpeningWeekday/OpeningTime and there is no closing
// event: the window stays open until the next cycle begins. A cycle
// normally begins at CycleStartWeekday 00:00. When CycleStartWeekday is the
// opening weekday (the default) the cycle begins at the opening instant
// itself, so the window is open from one opening to the next and the weekly
// opening only moves OpenedAt forward. Any other cycle start closes the
// window from that day until the opening.
type Window struct {
	Open        bool
	CycleStart  time.Time
	OpenedAt    *time.Time
	NextOpening time.Time
}

// ComputeWindow evaluates cfg at now, in now's location.
func ComputeWindow(cfg facility.ReservationConfig, now time.Time) Window {
	loc := now.Location()
	today := facility.DateOf(now)

	var startTime facility.TimeOfDay
	if cfg.CycleStartWeekday == cfg.OpeningWeekday {
		startTime = cfg.OpeningTime
	}
	back := (int(today.Weekday()) - int(cfg.CycleStartWeekday) + 7) % 7
	cycleStart := today.AddDays(-back)
	if cycleStart.At(startTime, loc).After(now) {
		cycleStart = cycleStart.AddDays(-7)
	}
	offset := (int(cfg.OpeningWeekday) - int(cfg.CycleStartWeekday) + 7) % 7
	openingDay := cycleStart.AddDays(offset)
	opening := openingDay.At(cfg.OpeningTime, loc)

	w := Window{CycleStart: cycleStart.At(startTime, loc)}
	if now.Before(opening) {
		w.NextOpening = opening
		return w
	}
	w.Open = true
	w.OpenedAt = &opening
	w.NextOpening = openingDay.AddDays(7).At(cfg.OpeningTime, loc)
	return w
}

// BookableRange is the first and last date a reservation may be made for.
func BookableRange(cfg facility.ReservationConfig, now time.Time) (first, last facility.Date) {
	today := facility.DateOf(now)
	return today, today.AddDays(cfg.MaxAdvanceDays)
}
