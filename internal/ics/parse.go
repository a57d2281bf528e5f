package ics

import (
	"bytes"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"calagg/internal/apperr"
)

// ParseFeed parses a calendar payload. An empty or unparseable body is a
// parse error.
func ParseFeed(body []byte) (*ical.Calendar, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, apperr.Parse("parse calendar", ErrEmptyBody)
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, apperr.Parse("parse calendar", err)
	}
	return cal, nil
}

// ruleOf collects the recurrence definition of ev. ok is false when ev has
// no RRULE.
func ruleOf(ev *ical.VEvent) (rule Rule, ok bool, err error) {
	rr := ev.GetProperty(ical.ComponentPropertyRrule)
	if rr == nil {
		return Rule{}, false, nil
	}
	start, err := ev.GetStartAt()
	if err != nil {
		return Rule{}, true, ErrMissingStart
	}
	return Rule{RRule: rr.Value, Start: start, ExDates: exDatesOf(ev)}, true, nil
}

// exDatesOf flattens every EXDATE property of ev. A property may hold a
// comma-separated list; each entry keeps the property's TZID.
func exDatesOf(ev *ical.VEvent) []ExDate {
	var out []ExDate
	for _, p := range ev.GetProperties(ical.ComponentPropertyExdate) {
		var tzid string
		if tzs, ok := p.ICalParameters["TZID"]; ok && len(tzs) > 0 {
			tzid = tzs[0]
		}
		for _, part := range strings.Split(p.Value, ",") {
			out = append(out, ExDate{Value: part, TZID: tzid})
		}
	}
	return out
}

// endDate returns the calendar date ev ends on, in the zone it was written
// in. ok is false when ev has no DTEND.
func endDate(ev *ical.VEvent) (date time.Time, ok bool, err error) {
	if ev.GetProperty(ical.ComponentPropertyDtEnd) == nil {
		return time.Time{}, false, nil
	}
	end, err := ev.GetEndAt()
	if err != nil {
		return time.Time{}, true, ErrInvalidEnd
	}
	return dateOf(end), true, nil
}

// dateOf truncates t to its date in t's own location, expressed as a UTC
// midnight so dates from different zones compare by calendar day.
func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
