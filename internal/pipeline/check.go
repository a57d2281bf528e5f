package pipeline

import (
	"context"
	"errors"
	"fmt"

	"calagg/internal/config"
	"calagg/internal/fetch"
	"calagg/internal/ics"
	appLog "calagg/internal/log"
)

// FeedCheck is the outcome of probing one registered feed.
type FeedCheck struct {
	Feed   config.Feed
	Events int
	Err    error
}

// CheckFeeds validates the feed registry and, unless offline, fetches and
// parses every feed. Registry errors are returned at once; per-feed
// failures are collected and joined so every broken feed is reported.
func (r *Runner) CheckFeeds(ctx context.Context, offline bool) ([]FeedCheck, error) {
	catalog, err := config.LoadCatalog(r.Settings.CalendarPath())
	if err != nil {
		return nil, err
	}
	feeds, err := config.LoadFeeds(r.Settings.FeedsPath(), catalog)
	if err != nil {
		return nil, err
	}
	appLog.Info("feed registry valid", "feeds", len(feeds))
	if offline {
		return nil, nil
	}

	checks := make([]FeedCheck, 0, len(feeds))
	var errs []error
	for _, f := range feeds {
		c := FeedCheck{Feed: f}
		c.Events, c.Err = r.probe(ctx, f)
		if c.Err != nil {
			appLog.Error("feed check failed", c.Err, "slug", f.Slug, "url", fetch.RedactURL(f.URL))
			errs = append(errs, c.Err)
		} else {
			appLog.Info("feed ok", "slug", f.Slug, "events", c.Events)
		}
		checks = append(checks, c)
	}
	return checks, errors.Join(errs...)
}

func (r *Runner) probe(ctx context.Context, f config.Feed) (int, error) {
	res, err := r.Fetcher.Fetch(ctx, fetch.Source{ID: f.Slug, URL: f.URL})
	if err != nil {
		return 0, err
	}
	cal, err := ics.ParseFeed(res.Body)
	if err != nil {
		return 0, fmt.Errorf("feed %s: %w", f.Slug, err)
	}
	return len(cal.Events()), nil
}
