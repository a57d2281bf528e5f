package model

import (
	"strings"
	"time"
)

// CategoryKey is a normalized lowercase label selecting one output calendar.
// Valid keys are the ones declared in the category metadata; CategoryAll and
// CategoryGeneral are always present.
type CategoryKey string

const (
	// CategoryAll is the aggregate calendar that receives every event.
	CategoryAll CategoryKey = "all"
	// CategoryGeneral receives events whose label is not a declared category.
	CategoryGeneral CategoryKey = "general"
)

// NormalizeLabel lower-cases and trims a free-form category label.
func NormalizeLabel(label string) CategoryKey {
	return CategoryKey(strings.ToLower(strings.TrimSpace(label)))
}

// Event represents one listing from the primary spreadsheet source.
// Values are built once by the sheet parser and never mutated afterwards.
type Event struct {
	Posted      string
	Title       string
	Description string
	Host        string
	URL         string
	Location    string

	// Start / End are normalized to UTC; Timezone keeps the zone name the
	// row was written in.
	Start    time.Time
	End      time.Time
	Timezone string

	// Categories keeps the labels in the order they were listed.
	Categories []string
}

// ContentKey identifies an event by its full parsed content. Two rows that
// parse to the same record share a key, so a row listed under several
// categories still yields one key.
func (e Event) ContentKey() string {
	parts := []string{
		e.Posted,
		e.Title,
		e.Description,
		e.Host,
		e.URL,
		e.Location,
		e.Start.UTC().Format(time.RFC3339),
		e.End.UTC().Format(time.RFC3339),
		e.Timezone,
		strings.Join(e.Categories, ","),
	}
	return strings.Join(parts, "\x1f")
}

// Summary is the one-line display title used in calendar output.
func (e Event) Summary() string {
	return e.Title + " in " + e.Location + " hosted by " + e.Host
}
