package rules

import "time"

// Bounds is the optional start/end of one weekday's forwarding window, both
// UTC "HH:MM" strings.
type Bounds struct {
	Start *string
	End   *string
}

// Schedule restricts when a mapping forwards. Days are indexed Monday=0
// through Sunday=6. A schedule with all bounds nil is unrestricted.
type Schedule struct {
	Days [7]Bounds
}

// IsEmpty reports whether no weekday has any bound set.
func (s *Schedule) IsEmpty() bool {
	for _, d := range s.Days {
		if d.Start != nil || d.End != nil {
			return false
		}
	}
	return true
}

// PassesSchedule reports whether nowUTC falls inside the schedule window for
// its weekday. A nil or empty schedule always passes, as does a weekday with
// no bounds. A single bound defaults the other side to 00:00 or 23:59. When
// start > end the window wraps overnight. Malformed time strings fail open:
// forwarding is never blocked on a parse error.
func PassesSchedule(nowUTC time.Time, schedule *Schedule) bool {
	if schedule == nil || schedule.IsEmpty() {
		return true
	}
	weekday := (int(nowUTC.Weekday()) + 6) % 7 // Monday=0 .. Sunday=6
	bounds := schedule.Days[weekday]
	if bounds.Start == nil && bounds.End == nil {
		return true
	}
	start, ok := parseMinutes(bounds.Start, "00:00")
	if !ok {
		return true
	}
	end, ok := parseMinutes(bounds.End, "23:59")
	if !ok {
		return true
	}
	now := nowUTC.Hour()*60 + nowUTC.Minute()
	switch {
	case bounds.Start == nil:
		return now <= end
	case bounds.End == nil:
		return now >= start
	case start <= end:
		return start <= now && now <= end
	}
	// Overnight window, e.g. 22:00-02:00.
	return now >= start || now <= end
}

// parseMinutes parses an optional "HH:MM" string into minutes since midnight,
// substituting def when the value is nil.
func parseMinutes(value *string, def string) (int, bool) {
	raw := def
	if value != nil {
		raw = *value
	}
	t, err := time.Parse("15:04", raw)
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}
