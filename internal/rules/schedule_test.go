package rules

import (
	"testing"
	"time"
)

func strptr(s string) *string { return &s }

// at returns a UTC time on the given weekday (Monday=0) at hh:mm.
// 2024-01-01 is a Monday.
func at(weekday, hour, minute int) time.Time {
	return time.Date(2024, 1, 1+weekday, hour, minute, 0, 0, time.UTC)
}

func TestPassesScheduleUnrestricted(t *testing.T) {
	if !PassesSchedule(at(0, 12, 0), nil) {
		t.Fatal("nil schedule must pass")
	}
	if !PassesSchedule(at(3, 4, 30), &Schedule{}) {
		t.Fatal("empty schedule must pass")
	}
}

func TestPassesScheduleSimpleWindow(t *testing.T) {
	s := &Schedule{}
	s.Days[0] = Bounds{Start: strptr("09:00"), End: strptr("17:00")}

	if !PassesSchedule(at(0, 9, 0), s) {
		t.Fatal("window start is inclusive")
	}
	if !PassesSchedule(at(0, 17, 0), s) {
		t.Fatal("window end is inclusive")
	}
	if PassesSchedule(at(0, 8, 59), s) {
		t.Fatal("before window must fail")
	}
	if PassesSchedule(at(0, 17, 1), s) {
		t.Fatal("after window must fail")
	}
}

func TestPassesScheduleOvernight(t *testing.T) {
	s := &Schedule{}
	s.Days[2] = Bounds{Start: strptr("22:00"), End: strptr("02:00")}

	if !PassesSchedule(at(2, 23, 0), s) {
		t.Fatal("23:00 falls inside the overnight window")
	}
	if !PassesSchedule(at(2, 1, 0), s) {
		t.Fatal("01:00 falls inside the overnight window")
	}
	if PassesSchedule(at(2, 12, 0), s) {
		t.Fatal("12:00 falls outside the overnight window")
	}
	// A different weekday with no entry always passes.
	if !PassesSchedule(at(3, 12, 0), s) {
		t.Fatal("unconfigured weekday must pass")
	}
}

func TestPassesScheduleSingleBound(t *testing.T) {
	s := &Schedule{}
	s.Days[4] = Bounds{Start: strptr("18:00")}
	if !PassesSchedule(at(4, 23, 59), s) {
		t.Fatal("only-start window runs until end of day")
	}
	if PassesSchedule(at(4, 17, 59), s) {
		t.Fatal("before only-start bound must fail")
	}

	s = &Schedule{}
	s.Days[4] = Bounds{End: strptr("08:00")}
	if !PassesSchedule(at(4, 0, 0), s) {
		t.Fatal("only-end window starts at midnight")
	}
	if PassesSchedule(at(4, 8, 1), s) {
		t.Fatal("after only-end bound must fail")
	}
}

func TestPassesScheduleMalformedFailsOpen(t *testing.T) {
	s := &Schedule{}
	s.Days[5] = Bounds{Start: strptr("not-a-time"), End: strptr("17:00")}
	if !PassesSchedule(at(5, 23, 0), s) {
		t.Fatal("malformed time must never block forwarding")
	}
}

func TestPassesScheduleWeekdayMapping(t *testing.T) {
	s := &Schedule{}
	s.Days[6] = Bounds{Start: strptr("10:00"), End: strptr("11:00")}
	// 2024-01-07 is a Sunday.
	sunday := time.Date(2024, 1, 7, 10, 30, 0, 0, time.UTC)
	if !PassesSchedule(sunday, s) {
		t.Fatal("Sunday must resolve to slot 6")
	}
	monday := time.Date(2024, 1, 8, 10, 30, 0, 0, time.UTC)
	if !PassesSchedule(monday, s) {
		t.Fatal("Monday has no bounds and must pass")
	}
}
