// Package sheet reads the primary event listings from the published
// spreadsheet export.
//
// The export is tab-separated with one listing per row, in this column
// order: posted date, title, description, url, host, location, start, end,
// comma-separated event types, timezone.
package sheet

import (
	"context"
	"fmt"
	"strings"
	"time"

	"calagg/internal/apperr"
	"calagg/internal/fetch"
	appLog "calagg/internal/log"
	"calagg/internal/model"
)

// Columns is the number of fields every row must carry.
const Columns = 10

const dateLayout = "01/02/2006 15:04:05"

const (
	colPosted = iota
	colTitle
	colDescription
	colURL
	colHost
	colLocation
	colStart
	colEnd
	colTypes
	colTimezone
)

// Fetcher retrieves a remote document; *fetch.Fetcher satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, src fetch.Source) (fetch.Result, error)
}

// Load fetches the export at url and parses every listing in it. Any
// failing row fails the whole load.
func Load(ctx context.Context, f Fetcher, url string) ([]model.Event, error) {
	res, err := f.Fetch(ctx, fetch.Source{ID: "sheet", URL: url})
	if err != nil {
		return nil, err
	}
	events, err := Parse(res.Body)
	if err != nil {
		return nil, err
	}
	appLog.Info("sheet loaded", "events", len(events))
	return events, nil
}

// Lines splits an export into data rows. Rows are separated by CRLF only,
// since cells may carry bare newlines. The header row and blank rows are
// dropped and each row is stripped of surrounding quotes.
func Lines(body []byte) []string {
	raw := strings.Split(string(body), "\r\n")
	if len(raw) > 0 {
		raw = raw[1:]
	}
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		if strings.TrimSpace(l) == "" {
			continue
		}
		lines = append(lines, strings.TrimSpace(strings.Trim(l, `"`)))
	}
	return lines
}

// Parse parses a whole export. Errors name the 1-based spreadsheet row,
// counting the header.
func Parse(body []byte) ([]model.Event, error) {
	lines := Lines(body)
	events := make([]model.Event, 0, len(lines))
	for i, line := range lines {
		ev, err := ParseRow(strings.Split(line, "\t"))
		if err != nil {
			return nil, apperr.Parse(fmt.Sprintf("sheet row %d", i+2), err)
		}
		events = append(events, ev)
	}
	return events, nil
}

// ParseRow builds an Event from the fields of one row. Start and end are
// read in the row's timezone (UTC when blank) and stored in UTC.
func ParseRow(fields []string) (model.Event, error) {
	if len(fields) < Columns {
		return model.Event{}, fmt.Errorf("%w: got %d", ErrShortRow, len(fields))
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	tz := fields[colTimezone]
	loc, err := location(tz)
	if err != nil {
		return model.Event{}, err
	}
	start, err := parseDate(fields[colStart], loc)
	if err != nil {
		return model.Event{}, fmt.Errorf("start: %w", err)
	}
	end, err := parseDate(fields[colEnd], loc)
	if err != nil {
		return model.Event{}, fmt.Errorf("end: %w", err)
	}

	posted, _, _ := strings.Cut(fields[colPosted], " ")

	return model.Event{
		Posted:      posted,
		Title:       unquote(fields[colTitle]),
		Description: unquote(fields[colDescription]),
		Host:        fields[colHost],
		URL:         fields[colURL],
		Location:    unquote(fields[colLocation]),
		Start:       start,
		End:         end,
		Timezone:    tz,
		Categories:  splitTypes(fields[colTypes]),
	}, nil
}

// splitTypes returns the trimmed, non-empty event type labels in order.
func splitTypes(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// unquote swaps double quotes for single ones so the export's own quoting
// never leaks into titles.
func unquote(s string) string {
	return strings.ReplaceAll(s, `"`, "'")
}

func location(tz string) (*time.Location, error) {
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("%w %q", ErrUnknownTimezone, tz)
	}
	return loc, nil
}

func parseDate(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return t.UTC(), nil
}
