package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"calagg/internal/apperr"
	"calagg/internal/model"
)

// Category describes one output calendar.
type Category struct {
	Category string `yaml:"category"`
	Summary  string `yaml:"summary"`
	// Start is the calendar's window start, a YYYY-MM-DD date.
	Start string `yaml:"start"`
}

func (c Category) Key() model.CategoryKey {
	return model.CategoryKey(c.Category)
}

var startLayouts = []string{"2006-01-02", "2006-01-02 15:04:05", time.RFC3339}

// StartDate parses Start and truncates it to a UTC date.
func (c Category) StartDate() (time.Time, error) {
	for _, layout := range startLayouts {
		if t, err := time.Parse(layout, c.Start); err == nil {
			t = t.UTC()
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("category %q: %w: %q", c.Category, ErrInvalidStart, c.Start)
}

type calendarFile struct {
	Calendars []Category `yaml:"calendars"`
}

// Catalog is the closed set of category keys known to a run.
type Catalog struct {
	order []Category
	byKey map[model.CategoryKey]Category
}

// NewCatalog validates cats and indexes them by key. The set must declare
// both the aggregate and the general fallback category.
func NewCatalog(cats []Category) (*Catalog, error) {
	c := &Catalog{byKey: make(map[model.CategoryKey]Category, len(cats))}
	for _, cat := range cats {
		if cat.Category == "" {
			return nil, apperr.Config("catalog", fmt.Errorf("%w: category in %+v", ErrMissingField, cat))
		}
		if cat.Summary == "" {
			return nil, apperr.Config("catalog", fmt.Errorf("%w: summary in %+v", ErrMissingField, cat))
		}
		if _, err := cat.StartDate(); err != nil {
			return nil, apperr.Config("catalog", err)
		}
		key := model.NormalizeLabel(cat.Category)
		if key != cat.Key() {
			return nil, apperr.Config("catalog", fmt.Errorf("category %q must be lowercase without surrounding spaces", cat.Category))
		}
		if _, dup := c.byKey[key]; dup {
			return nil, apperr.Config("catalog", fmt.Errorf("%w: %q", ErrDuplicateCategory, cat.Category))
		}
		c.byKey[key] = cat
		c.order = append(c.order, cat)
	}
	for _, required := range []model.CategoryKey{model.CategoryAll, model.CategoryGeneral} {
		if _, ok := c.byKey[required]; !ok {
			return nil, apperr.Config("catalog", fmt.Errorf("%w: %q", ErrMissingCategory, required))
		}
	}
	return c, nil
}

// LoadCatalog reads the category metadata file.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return nil, apperr.Config("load catalog", ErrEmptyPath)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.Config("load catalog", err)
	}
	var f calendarFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, apperr.Config("load catalog", fmt.Errorf("%s: %w", path, err))
	}
	return NewCatalog(f.Calendars)
}

// Resolve maps a free-form label onto a declared key. Unknown labels, and a
// literal "all" which would otherwise bypass the aggregate's dedup, resolve
// to the general fallback.
func (c *Catalog) Resolve(label string) model.CategoryKey {
	key := model.NormalizeLabel(label)
	if key == model.CategoryAll {
		return model.CategoryGeneral
	}
	if _, ok := c.byKey[key]; !ok {
		return model.CategoryGeneral
	}
	return key
}

func (c *Catalog) Lookup(key model.CategoryKey) (Category, bool) {
	cat, ok := c.byKey[key]
	return cat, ok
}

func (c *Catalog) Has(key model.CategoryKey) bool {
	_, ok := c.byKey[key]
	return ok
}

// Keys returns the declared keys in file order.
func (c *Catalog) Keys() []model.CategoryKey {
	keys := make([]model.CategoryKey, 0, len(c.order))
	for _, cat := range c.order {
		keys = append(keys, cat.Key())
	}
	return keys
}
