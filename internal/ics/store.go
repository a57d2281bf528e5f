package ics

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	ical "github.com/arran4/golang-ical"

	"calagg/internal/apperr"
	"calagg/internal/model"
)

const defaultProductID = "-//HPC Social//Calendar//"

// Store is one output calendar: a category, or the aggregate.
//
// Events are deduplicated by Key. existing holds keys seeded from a
// previously written file; added holds keys first seen in this run. The two
// sets never overlap and every key maps to exactly one serialized VEVENT.
type Store struct {
	category    model.CategoryKey
	summary     string
	windowStart time.Time
	productID   string

	existing map[Key]struct{}
	added    map[Key]struct{}
	events   []*ical.VEvent
}

// StoreOption customizes a Store.
type StoreOption func(*Store)

// WithProductID overrides the PRODID written to the calendar header.
func WithProductID(id string) StoreOption {
	return func(s *Store) {
		if id != "" {
			s.productID = id
		}
	}
}

// NewStore creates an empty calendar.
func NewStore(category model.CategoryKey, summary string, windowStart time.Time, opts ...StoreOption) *Store {
	s := &Store{
		category:    category,
		summary:     summary,
		windowStart: windowStart,
		productID:   defaultProductID,
		existing:    make(map[Key]struct{}),
		added:       make(map[Key]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Category() model.CategoryKey { return s.category }

// FileName is the output file name for this calendar.
func (s *Store) FileName() string { return string(s.category) + ".ical" }

// NewCount is the number of events first seen in this run.
func (s *Store) NewCount() int { return len(s.added) }

// Total is the number of events the calendar will contain.
func (s *Store) Total() int { return len(s.existing) + len(s.added) }

// Has reports whether an event with key k is already in the calendar.
func (s *Store) Has(k Key) bool {
	if _, ok := s.existing[k]; ok {
		return true
	}
	_, ok := s.added[k]
	return ok
}

// Add appends ev unless an event with the same Key is already present. The
// check happens before appending, so counts always match the output.
func (s *Store) Add(ev *ical.VEvent) (bool, error) {
	key, err := KeyOfEvent(ev)
	if err != nil {
		return false, apperr.Parse("add event to "+string(s.category), err)
	}
	if s.Has(key) {
		return false, nil
	}
	s.added[key] = struct{}{}
	s.events = append(s.events, ev)
	return true, nil
}

// AddEvent adds a primary-source listing.
func (s *Store) AddEvent(e model.Event) (bool, error) {
	return s.Add(NewPrimaryEvent(e))
}

// IndexExisting seeds the calendar with the events of a previously
// serialized calendar. Those events are kept in the output and no longer
// count as new when added again.
func (s *Store) IndexExisting(r io.Reader) error {
	cal, err := ical.ParseCalendar(r)
	if err != nil {
		return apperr.Parse("index "+string(s.category), err)
	}
	for _, ev := range cal.Events() {
		key, err := KeyOfEvent(ev)
		if err != nil {
			return apperr.Parse("index "+string(s.category), err)
		}
		if s.Has(key) {
			continue
		}
		s.existing[key] = struct{}{}
		s.events = append(s.events, ev)
	}
	return nil
}

// IndexFile runs IndexExisting on the file at path. A missing file means
// there is nothing to index.
func (s *Store) IndexFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return apperr.Config("index "+string(s.category), err)
	}
	defer f.Close()
	return s.IndexExisting(f)
}

// Calendar builds the iCalendar document for the current contents.
func (s *Store) Calendar() *ical.Calendar {
	cal := ical.NewCalendar()
	cal.SetProductId(s.productID)
	cal.SetVersion("2.0")
	cal.SetCalscale("GREGORIAN")
	cal.SetMethod(ical.MethodPublish)
	cal.SetXWRCalName(s.summary)
	cal.SetXWRTimezone("UTC")
	cal.CalendarProperties = append(cal.CalendarProperties,
		ical.CalendarProperty{BaseProperty: ical.BaseProperty{
			IANAToken:      "DTSTART",
			ICalParameters: map[string][]string{"VALUE": {"DATE"}},
			Value:          s.windowStart.Format("20060102"),
		}},
		ical.CalendarProperty{BaseProperty: ical.BaseProperty{
			IANAToken: "SUMMARY",
			Value:     s.summary,
		}},
	)
	for _, ev := range s.events {
		cal.AddVEvent(ev)
	}
	return cal
}

// Serialize renders the calendar with CRLF line endings. The output is a
// valid VCALENDAR even when the store is empty.
func (s *Store) Serialize() []byte {
	return []byte(s.Calendar().Serialize(ical.WithNewLineWindows))
}

func (s *Store) String() string {
	return fmt.Sprintf("%s (%d new, %d total)", s.category, s.NewCount(), s.Total())
}
