package ics

import (
	"context"
	"fmt"
	"sort"
	"time"

	ical "github.com/arran4/golang-ical"

	"calagg/internal/apperr"
	"calagg/internal/config"
	"calagg/internal/fetch"
	appLog "calagg/internal/log"
	"calagg/internal/model"
)

// Fetcher retrieves a remote document; *fetch.Fetcher satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, src fetch.Source) (fetch.Result, error)
}

// Merger folds external feeds into the run's calendars.
type Merger struct {
	Fetcher Fetcher
	Expand  ExpandConfig
}

// MergeResult reports what one feed contributed.
type MergeResult struct {
	Slug string
	// Events is the number of concrete events the feed produced after
	// filtering and recurrence expansion.
	Events int
	// Skipped counts source events dropped as incomplete or already ended.
	Skipped int
	// Added maps each target calendar to the number of events it gained.
	Added map[model.CategoryKey]int
}

// Merge fetches feed once and adds its events to every store whose category
// the feed declares, and always to the aggregate. A fetch or parse failure
// is returned as is; nothing is added in that case.
func (m *Merger) Merge(ctx context.Context, feed config.Feed, stores map[model.CategoryKey]*Store) (MergeResult, error) {
	res, err := m.Fetcher.Fetch(ctx, fetch.Source{ID: feed.Slug, URL: feed.URL})
	if err != nil {
		return MergeResult{Slug: feed.Slug}, err
	}
	cal, err := ParseFeed(res.Body)
	if err != nil {
		return MergeResult{Slug: feed.Slug}, fmt.Errorf("feed %s: %w", feed.Slug, err)
	}
	return m.MergeCalendar(feed, cal, stores)
}

// MergeCalendar merges an already parsed feed calendar.
func (m *Merger) MergeCalendar(feed config.Feed, cal *ical.Calendar, stores map[model.CategoryKey]*Store) (MergeResult, error) {
	result := MergeResult{Slug: feed.Slug, Added: make(map[model.CategoryKey]int)}

	events, skipped, err := m.Prepare(feed, cal)
	if err != nil {
		return result, err
	}
	result.Events = len(events)
	result.Skipped = skipped

	for _, key := range targets(feed, stores) {
		store := stores[key]
		appLog.Debug("merge: updating calendar", "category", key, "slug", feed.Slug)
		for _, ev := range events {
			added, err := store.Add(ev)
			if err != nil {
				return result, fmt.Errorf("feed %s: %w", feed.Slug, err)
			}
			if added {
				result.Added[key]++
			}
		}
	}
	return result, nil
}

// Prepare turns the feed's VEVENTs into the concrete events to add:
//   - events without DTEND or a usable DTSTART are skipped;
//   - events that ended before today are skipped unless they recur;
//   - each kept event is copied and its title prefixed with the feed slug;
//   - recurring events are replaced by their occurrences in the window.
func (m *Merger) Prepare(feed config.Feed, cal *ical.Calendar) (events []*ical.VEvent, skipped int, err error) {
	expand := m.Expand.normalize()
	today := dateOf(expand.Now.UTC())

	for _, src := range cal.Events() {
		end, hasEnd, err := endDate(src)
		if err != nil {
			return nil, skipped, apperr.Parse("feed "+feed.Slug, err)
		}
		if !hasEnd {
			skipped++
			continue
		}
		if _, err := src.GetStartAt(); err != nil {
			appLog.Debug("merge: skipping event without start", "slug", feed.Slug, "uid", propertyValue(src, ical.ComponentPropertyUniqueId))
			skipped++
			continue
		}

		rule, recurring, err := ruleOf(src)
		if err != nil {
			return nil, skipped, apperr.Parse("feed "+feed.Slug, err)
		}
		if !recurring && end.Before(today) {
			skipped++
			continue
		}

		copied := cloneEvent(src, nil)
		prefixSummary(copied, feed.Slug)
		ensureUID(copied, feed.Slug)

		if !recurring {
			events = append(events, copied)
			continue
		}

		occ, err := occurrences(copied, rule, expand)
		if err != nil {
			return nil, skipped, apperr.Parse("feed "+feed.Slug, err)
		}
		events = append(events, occ...)
	}
	return events, skipped, nil
}

// occurrences expands template into one event per occurrence. Each
// occurrence keeps the template's duration.
func occurrences(template *ical.VEvent, rule Rule, cfg ExpandConfig) ([]*ical.VEvent, error) {
	starts, err := Expand(rule, cfg)
	if err != nil {
		return nil, err
	}

	var dur time.Duration
	if end, err := template.GetEndAt(); err == nil && end.After(rule.Start) {
		dur = end.Sub(rule.Start)
	}

	out := make([]*ical.VEvent, 0, len(starts))
	for _, start := range starts {
		out = append(out, newOccurrence(template, start, start.Add(dur)))
	}
	return out, nil
}

// targets lists, in a stable order, the stores a feed contributes to.
func targets(feed config.Feed, stores map[model.CategoryKey]*Store) []model.CategoryKey {
	declared := make(map[model.CategoryKey]bool, len(feed.Categories))
	for _, k := range feed.CategoryKeys() {
		declared[k] = true
	}
	var keys []model.CategoryKey
	for key := range stores {
		if key == model.CategoryAll || declared[key] {
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
