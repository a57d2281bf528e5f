package ics

import (
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"calagg/internal/model"
)

const icalTimestampFormatUtc = "20060102T150405Z"

// defaultStamp is used as DTSTAMP when a listing has no parseable posted
// date, keeping output byte-stable across runs.
var defaultStamp = time.Date(2023, 1, 2, 0, 10, 0, 0, time.UTC)

var uidNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:calagg:event"))

// Key is the identity of an event inside a Store: its UTC start and end.
// Two events with the same Key are the same event, whatever else differs.
type Key struct {
	Start string
	End   string
}

// KeyOf builds the Key of a start/end pair.
func KeyOf(start, end time.Time) Key {
	return Key{
		Start: start.UTC().Format(icalTimestampFormatUtc),
		End:   end.UTC().Format(icalTimestampFormatUtc),
	}
}

func (k Key) String() string {
	return k.Start + "/" + k.End
}

// KeyOfEvent derives the Key of a VEVENT. DTSTART is required; a missing
// DTEND leaves End empty.
func KeyOfEvent(ev *ical.VEvent) (Key, error) {
	start, err := ev.GetStartAt()
	if err != nil {
		return Key{}, ErrMissingStart
	}
	if ev.GetProperty(ical.ComponentPropertyDtEnd) == nil {
		return Key{Start: start.UTC().Format(icalTimestampFormatUtc)}, nil
	}
	end, err := ev.GetEndAt()
	if err != nil {
		return Key{}, ErrInvalidEnd
	}
	return KeyOf(start, end), nil
}

// NewPrimaryEvent builds the VEVENT for a spreadsheet listing. The UID is
// derived from the listing's content, so unchanged rows produce identical
// output on every run.
func NewPrimaryEvent(e model.Event) *ical.VEvent {
	ev := ical.NewEvent(uuid.NewSHA1(uidNamespace, []byte(e.ContentKey())).String())
	ev.SetSummary(e.Summary())
	ev.SetProperty(ical.ComponentProperty("NAME"), e.Title)
	ev.SetDescription(e.Description)
	ev.SetStartAt(e.Start)
	ev.SetEndAt(e.End)
	ev.SetDtStampTime(postedStamp(e.Posted))
	ev.SetLocation(e.Location)
	if e.URL != "" {
		ev.SetURL(e.URL)
	}
	if len(e.Categories) > 0 {
		ev.SetProperty(ical.ComponentPropertyCategories, strings.Join(e.Categories, ","))
	}
	return ev
}

func postedStamp(posted string) time.Time {
	for _, layout := range []string{"01/02/2006", "1/2/2006"} {
		if t, err := time.Parse(layout, strings.TrimSpace(posted)); err == nil {
			return t
		}
	}
	return defaultStamp
}

func cloneProperty(p ical.IANAProperty) ical.IANAProperty {
	var params map[string][]string
	if p.ICalParameters != nil {
		params = make(map[string][]string, len(p.ICalParameters))
		for k, v := range p.ICalParameters {
			params[k] = append([]string(nil), v...)
		}
	}
	return ical.IANAProperty{BaseProperty: ical.BaseProperty{
		IANAToken:      p.IANAToken,
		ICalParameters: params,
		Value:          p.Value,
	}}
}

// cloneEvent copies every property of ev, keeping only those for which
// keep returns true. Sub-components such as VALARM are shared.
func cloneEvent(ev *ical.VEvent, keep func(token string) bool) *ical.VEvent {
	props := make([]ical.IANAProperty, 0, len(ev.Properties))
	for _, p := range ev.Properties {
		if keep != nil && !keep(strings.ToUpper(p.IANAToken)) {
			continue
		}
		props = append(props, cloneProperty(p))
	}
	return &ical.VEvent{ComponentBase: ical.ComponentBase{
		Properties: props,
		Components: append([]ical.Component(nil), ev.Components...),
	}}
}

// temporalProperties are rebuilt for each occurrence of a recurring event.
var temporalProperties = map[string]bool{
	"DTSTART":       true,
	"DTEND":         true,
	"DTSTAMP":       true,
	"DURATION":      true,
	"RRULE":         true,
	"RDATE":         true,
	"EXDATE":        true,
	"EXRULE":        true,
	"RECURRENCE-ID": true,
}

func nonTemporal(token string) bool { return !temporalProperties[token] }

// newOccurrence builds one concrete instance of a recurring template: the
// template's non-temporal properties plus fresh UTC start, end and stamp.
// The UID gets the start appended so instances stay distinct.
func newOccurrence(template *ical.VEvent, start, end time.Time) *ical.VEvent {
	ev := cloneEvent(template, nonTemporal)
	start, end = start.UTC(), end.UTC()
	uid := propertyValue(template, ical.ComponentPropertyUniqueId)
	ev.SetProperty(ical.ComponentPropertyUniqueId, uid+"-"+start.Format(icalTimestampFormatUtc))
	ev.SetStartAt(start)
	ev.SetEndAt(end)
	ev.SetDtStampTime(start)
	return ev
}

// ensureUID gives ev a deterministic UID when the source omitted one.
func ensureUID(ev *ical.VEvent, scope string) {
	if propertyValue(ev, ical.ComponentPropertyUniqueId) != "" {
		return
	}
	key, _ := KeyOfEvent(ev)
	name := scope + "\x1f" + key.String() + "\x1f" + propertyValue(ev, ical.ComponentPropertySummary)
	ev.SetProperty(ical.ComponentPropertyUniqueId, uuid.NewSHA1(uidNamespace, []byte(name)).String())
}

// prefixSummary prepends slug to the event title, or makes slug the title
// when there is none.
func prefixSummary(ev *ical.VEvent, slug string) {
	for i := range ev.Properties {
		if strings.EqualFold(ev.Properties[i].IANAToken, string(ical.ComponentPropertySummary)) {
			ev.Properties[i].Value = strings.TrimSpace(slug + " " + ev.Properties[i].Value)
			return
		}
	}
	ev.SetProperty(ical.ComponentPropertySummary, slug)
}

func propertyValue(ev *ical.VEvent, prop ical.ComponentProperty) string {
	if p := ev.GetProperty(prop); p != nil {
		return p.Value
	}
	return ""
}
