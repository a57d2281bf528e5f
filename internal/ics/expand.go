package ics

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	appLog "calagg/internal/log"
)

const (
	// DefaultHorizon is how far past "now" recurring events are expanded.
	DefaultHorizon = 360 * 24 * time.Hour

	defaultMaxOccurrencesPerEvent = 5000
)

// ExDate is one raw EXDATE entry with the TZID parameter of the property it
// came from.
type ExDate struct {
	Value string
	TZID  string
}

// Rule is one recurring-event definition.
type Rule struct {
	// RRule is the RRULE value, e.g. "FREQ=WEEKLY;BYDAY=MO".
	RRule string
	// Start anchors the rule (the event's DTSTART).
	Start   time.Time
	ExDates []ExDate
}

// ExpandConfig controls how recurrence expansion is performed.
type ExpandConfig struct {
	// Now is the lower, exclusive bound of the window. Zero means time.Now().
	Now time.Time

	// Horizon is the window length past Now. Zero means DefaultHorizon.
	Horizon time.Duration

	// MaxOccurrencesPerEvent is a safety cap to avoid extremely large
	// expansions. If zero, defaultMaxOccurrencesPerEvent is used.
	MaxOccurrencesPerEvent int
}

func (c ExpandConfig) normalize() ExpandConfig {
	if c.Now.IsZero() {
		c.Now = time.Now()
	}
	if c.Horizon <= 0 {
		c.Horizon = DefaultHorizon
	}
	if c.MaxOccurrencesPerEvent <= 0 {
		c.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}
	return c
}

// Window returns the open interval occurrences must fall in.
func (c ExpandConfig) Window() (after, before time.Time) {
	c = c.normalize()
	return c.Now, c.Now.Add(c.Horizon)
}

// Expand returns the ordered UTC occurrence starts of rule falling strictly
// inside the configured window.
//
// An UNTIL without a zone designator is read as UTC. Exception dates are
// removed from the result; an entry that cannot be parsed is skipped and the
// rest of the expansion continues.
func Expand(rule Rule, cfg ExpandConfig) ([]time.Time, error) {
	cfg = cfg.normalize()

	text := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(rule.RRule), "RRULE:"))
	if text == "" {
		return nil, ErrEmptyRule
	}
	if rule.Start.IsZero() {
		return nil, fmt.Errorf("%w: %q", ErrMissingStart, rule.RRule)
	}

	opt, err := rrule.StrToROptionInLocation(text, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidRule, rule.RRule, err)
	}
	opt.Dtstart = rule.Start
	r, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidRule, rule.RRule, err)
	}

	var set rrule.Set
	set.RRule(r)

	for _, ex := range rule.ExDates {
		t, err := ParseExDate(ex, rule.Start.Location())
		if err != nil {
			appLog.Debug("expand: skipping malformed exception date", "value", ex.Value, "tzid", ex.TZID, "err", err)
			continue
		}
		set.ExDate(t)
	}

	after, before := cfg.Window()
	occ := set.Between(after, before, false)

	if len(occ) > cfg.MaxOccurrencesPerEvent {
		appLog.Warn("expand: truncated occurrences due to cap",
			"rrule", rule.RRule,
			"count", len(occ),
			"cap", cfg.MaxOccurrencesPerEvent,
		)
		occ = occ[:cfg.MaxOccurrencesPerEvent]
	}

	out := make([]time.Time, 0, len(occ))
	for _, t := range occ {
		out = append(out, t.UTC())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

// ParseExDate parses a basic date or date-time EXDATE value. A trailing Z
// means UTC; otherwise the TZID is used, falling back to loc when the TZID
// is absent or unknown.
func ParseExDate(ex ExDate, loc *time.Location) (time.Time, error) {
	v := strings.TrimSpace(ex.Value)
	if v == "" {
		return time.Time{}, ErrEmptyExDate
	}
	if loc == nil {
		loc = time.UTC
	}
	if ex.TZID != "" {
		if tz, err := time.LoadLocation(ex.TZID); err == nil {
			loc = tz
		}
	}

	// UTC form, e.g., 20250101T090000Z
	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}

	// Local date-time, e.g., 20250101T090000
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, loc)
	}

	// Date-only (all-day), e.g., 20250101
	return time.ParseInLocation("20060102", v, loc)
}
