// Package pipeline runs one aggregation pass: primary listings and external
// feeds in, one calendar file per category plus the aggregate out.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"calagg/internal/apperr"
	"calagg/internal/config"
	"calagg/internal/fetch"
	"calagg/internal/ics"
	appLog "calagg/internal/log"
	"calagg/internal/metrics"
	"calagg/internal/model"
	"calagg/internal/sheet"
	"calagg/internal/urlcheck"
)

// StoreReport is the outcome for one written calendar.
type StoreReport struct {
	Category model.CategoryKey
	Path     string
	New      int
	Total    int
}

// Report summarizes a successful run.
type Report struct {
	PrimaryEvents int
	URLQueries    int
	Feeds         []ics.MergeResult
	// Stores is sorted by category, with the aggregate first.
	Stores []StoreReport
}

// Store returns the report for category, if one was written.
func (r Report) Store(category model.CategoryKey) (StoreReport, bool) {
	for _, s := range r.Stores {
		if s.Category == category {
			return s, true
		}
	}
	return StoreReport{}, false
}

// Runner performs aggregation passes. The zero value is not usable; build
// one with New or fill Settings and Fetcher.
type Runner struct {
	Settings *config.Settings
	Fetcher  ics.Fetcher
	// Metrics is optional.
	Metrics *metrics.Recorder
	// Now is the clock used for filtering and expansion; nil means time.Now.
	Now func() time.Time
	// ScannerOptions are passed to the URL scanner.
	ScannerOptions []urlcheck.Option
}

// New wires a Runner from settings.
func New(s *config.Settings) *Runner {
	client := fetch.NewClient(s.HTTPTimeout())
	return &Runner{
		Settings: s,
		Fetcher:  fetch.NewFetcher(client, s.FeedCacheDir),
		Metrics:  metrics.New(),
	}
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Run performs one pass writing into outdir, which must exist. Nothing is
// written unless every fetch, parse and merge succeeded.
func (r *Runner) Run(ctx context.Context, outdir string) (rep Report, err error) {
	started := time.Now()
	if r.Metrics != nil {
		r.Metrics.Begin()
		defer func() {
			r.Metrics.Finish(started, err)
			if werr := r.Metrics.WriteTextfile(r.Settings.MetricsFile); werr != nil {
				appLog.Error("metrics textfile not written", werr, "path", r.Settings.MetricsFile)
			}
		}()
	}

	if err := checkOutputDir(outdir); err != nil {
		return Report{}, err
	}

	scanner, closeCache, err := r.openScanner()
	if err != nil {
		return Report{}, err
	}
	defer func() {
		if cerr := closeCache(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	catalog, err := config.LoadCatalog(r.Settings.CalendarPath())
	if err != nil {
		return Report{}, err
	}
	feeds, err := config.LoadFeeds(r.Settings.FeedsPath(), catalog)
	if err != nil {
		return Report{}, err
	}
	appLog.Info("metadata loaded", "categories", len(catalog.Keys()), "feeds", len(feeds))

	events, err := sheet.Load(ctx, r.Fetcher, r.Settings.SheetURL)
	if err != nil {
		return Report{}, err
	}
	rep.PrimaryEvents = len(events)
	if r.Metrics != nil {
		r.Metrics.SetPrimaryEvents(len(events))
	}

	if scanner != nil {
		err := vetURLs(ctx, scanner, events)
		rep.URLQueries = scanner.Queries()
		if r.Metrics != nil {
			r.Metrics.SetURLQueries(scanner.Queries())
		}
		if err != nil {
			return Report{}, err
		}
	}

	b := &storeBuilder{catalog: catalog, settings: r.Settings, outdir: outdir, stores: make(map[model.CategoryKey]*ics.Store)}
	if _, err := b.ensure(model.CategoryAll); err != nil {
		return Report{}, err
	}
	if err := b.addPrimary(events); err != nil {
		return Report{}, err
	}
	for _, f := range feeds {
		for _, key := range f.CategoryKeys() {
			if _, err := b.ensure(key); err != nil {
				return Report{}, err
			}
		}
	}

	merger := &ics.Merger{
		Fetcher: r.Fetcher,
		Expand: ics.ExpandConfig{
			Now:     r.now(),
			Horizon: time.Duration(r.Settings.HorizonDays) * 24 * time.Hour,
		},
	}
	for _, f := range feeds {
		res, err := merger.Merge(ctx, f, b.stores)
		if err != nil {
			return Report{}, err
		}
		appLog.Info("feed merged", "slug", f.Slug, "events", res.Events, "skipped", res.Skipped, "added_all", res.Added[model.CategoryAll])
		if r.Metrics != nil {
			r.Metrics.ObserveFeed(f.Slug, res.Events, res.Skipped)
		}
		rep.Feeds = append(rep.Feeds, res)
	}

	for _, key := range b.keys() {
		store := b.stores[key]
		path := filepath.Join(outdir, store.FileName())
		if err := config.WriteFileAtomic(path, store.Serialize(), 0o644); err != nil {
			return Report{}, apperr.Config("write "+store.FileName(), err)
		}
		appLog.Info(fmt.Sprintf("Found %d new events and a total of %d for %s", store.NewCount(), store.Total(), key),
			"path", path)
		if r.Metrics != nil {
			r.Metrics.ObserveStore(string(key), store.NewCount(), store.Total())
		}
		rep.Stores = append(rep.Stores, StoreReport{Category: key, Path: path, New: store.NewCount(), Total: store.Total()})
	}
	return rep, nil
}

// openScanner returns a URL scanner and the func that saves its cache, or
// a nil scanner when no key is configured.
func (r *Runner) openScanner() (*urlcheck.Scanner, func() error, error) {
	noop := func() error { return nil }
	if r.Settings.ScannerKey == "" {
		return nil, noop, nil
	}
	cache, err := urlcheck.Open(r.Settings.ScannedURLsPath())
	if err != nil {
		return nil, noop, err
	}
	opts := append([]urlcheck.Option{urlcheck.WithMaxQueries(r.Settings.ScannerMaxQueries)}, r.ScannerOptions...)
	scanner, err := urlcheck.NewScanner(fetch.NewClient(r.Settings.HTTPTimeout()), r.Settings.ScannerKey, cache, opts...)
	if err != nil {
		return nil, noop, err
	}
	return scanner, cache.Close, nil
}

func vetURLs(ctx context.Context, s *urlcheck.Scanner, events []model.Event) error {
	for _, ev := range events {
		if ev.URL == "" {
			continue
		}
		if err := s.Check(ctx, ev.URL); err != nil {
			return fmt.Errorf("listing %q: %w", ev.Title, err)
		}
	}
	return nil
}

func checkOutputDir(dir string) error {
	if dir == "" {
		return apperr.Config("output directory", ErrNoOutputDir)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return apperr.Config("output directory", fmt.Errorf("%w: %s", ErrNoOutputDir, dir))
	}
	if !info.IsDir() {
		return apperr.Config("output directory", fmt.Errorf("%w: %s is not a directory", ErrNoOutputDir, dir))
	}
	return nil
}
