package pipeline

import (
	"path/filepath"
	"sort"

	"calagg/internal/apperr"
	"calagg/internal/config"
	"calagg/internal/ics"
	appLog "calagg/internal/log"
	"calagg/internal/model"
)

// storeBuilder creates the run's calendars on first use.
type storeBuilder struct {
	catalog  *config.Catalog
	settings *config.Settings
	outdir   string
	stores   map[model.CategoryKey]*ics.Store
}

func (b *storeBuilder) ensure(key model.CategoryKey) (*ics.Store, error) {
	if s, ok := b.stores[key]; ok {
		return s, nil
	}
	cat, ok := b.catalog.Lookup(key)
	if !ok {
		return nil, apperr.Config("calendar "+string(key), config.ErrUnknownCategory)
	}
	start, err := cat.StartDate()
	if err != nil {
		return nil, apperr.Config("calendar "+string(key), err)
	}
	s := ics.NewStore(key, cat.Summary, start, ics.WithProductID(b.settings.ProductID))
	if b.settings.Incremental {
		if err := s.IndexFile(filepath.Join(b.outdir, s.FileName())); err != nil {
			return nil, err
		}
		appLog.Debug("calendar indexed", "category", key, "existing", s.Total())
	}
	b.stores[key] = s
	return s, nil
}

// addPrimary routes each listing to the calendars of its labels, and adds
// it once to the aggregate.
func (b *storeBuilder) addPrimary(events []model.Event) error {
	all := b.stores[model.CategoryAll]
	seen := make(map[string]bool, len(events))
	for _, ev := range events {
		for _, key := range b.routes(ev) {
			s, err := b.ensure(key)
			if err != nil {
				return err
			}
			if _, err := s.AddEvent(ev); err != nil {
				return err
			}
		}
		ck := ev.ContentKey()
		if seen[ck] {
			continue
		}
		seen[ck] = true
		if _, err := all.AddEvent(ev); err != nil {
			return err
		}
	}
	return nil
}

// routes resolves the labels of ev to distinct category keys, in label
// order. A listing without labels goes to the general calendar.
func (b *storeBuilder) routes(ev model.Event) []model.CategoryKey {
	if len(ev.Categories) == 0 {
		return []model.CategoryKey{model.CategoryGeneral}
	}
	var keys []model.CategoryKey
	dup := make(map[model.CategoryKey]bool, len(ev.Categories))
	for _, label := range ev.Categories {
		key := b.catalog.Resolve(label)
		if dup[key] {
			continue
		}
		dup[key] = true
		keys = append(keys, key)
	}
	return keys
}

// keys lists the calendars with the aggregate first, then by name.
func (b *storeBuilder) keys() []model.CategoryKey {
	keys := make([]model.CategoryKey, 0, len(b.stores))
	for k := range b.stores {
		if k != model.CategoryAll {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return append([]model.CategoryKey{model.CategoryAll}, keys...)
}
