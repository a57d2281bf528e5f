package config

import (
	"fmt"
	"os"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"calagg/internal/apperr"
	"calagg/internal/model"
)

// Feed is one external calendar merged into the output.
type Feed struct {
	Name    string `yaml:"name"`
	Slug    string `yaml:"slug"`
	URL     string `yaml:"url"`
	Summary string `yaml:"summary"`
	// Categories lists the category calendars this feed contributes to,
	// in addition to the aggregate.
	Categories []string `yaml:"categories"`
}

var requiredFeedFields = []string{"name", "slug", "url", "summary", "categories"}

// ParseFeeds decodes a feed registry, checking that every entry has every
// required field and that categories is a list of strings.
func ParseFeeds(data []byte) ([]Feed, error) {
	var raw []map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, apperr.Config("parse feeds", err)
	}

	feeds := make([]Feed, 0, len(raw))
	for i, entry := range raw {
		for _, field := range requiredFeedFields {
			if v, ok := entry[field]; !ok || v == nil {
				return nil, apperr.Config("parse feeds", fmt.Errorf("feed #%d %v: %w %q", i, entry, ErrMissingField, field))
			}
		}

		var f Feed
		var err error
		if f.Name, err = stringField(entry, "name"); err != nil {
			return nil, apperr.Config("parse feeds", fmt.Errorf("feed #%d: %w", i, err))
		}
		if f.Slug, err = stringField(entry, "slug"); err != nil {
			return nil, apperr.Config("parse feeds", fmt.Errorf("feed %q: %w", f.Name, err))
		}
		if f.URL, err = stringField(entry, "url"); err != nil {
			return nil, apperr.Config("parse feeds", fmt.Errorf("feed %q: %w", f.Name, err))
		}
		if f.Summary, err = stringField(entry, "summary"); err != nil {
			return nil, apperr.Config("parse feeds", fmt.Errorf("feed %q: %w", f.Name, err))
		}

		list, ok := entry["categories"].([]any)
		if !ok {
			return nil, apperr.Config("parse feeds", fmt.Errorf("feed %q: %w", f.Name, ErrInvalidCategories))
		}
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, apperr.Config("parse feeds", fmt.Errorf("feed %q: %w: %v", f.Name, ErrInvalidCategories, item))
			}
			f.Categories = append(f.Categories, s)
		}

		feeds = append(feeds, f)
	}
	return feeds, nil
}

func stringField(entry map[string]any, field string) (string, error) {
	s, ok := entry[field].(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("%w %q", ErrMissingField, field)
	}
	return s, nil
}

// ValidateSlug requires an uppercase slug without whitespace.
func ValidateSlug(slug string) error {
	if strings.IndexFunc(slug, unicode.IsSpace) >= 0 {
		return fmt.Errorf("%w: found whitespace in slug %q, should be all upper with only dashes", ErrInvalidSlug, slug)
	}
	cased := false
	for _, r := range slug {
		if unicode.IsLower(r) {
			return fmt.Errorf("%w: found non-uppercase value in slug %q, should be all upper with only dashes", ErrInvalidSlug, slug)
		}
		if unicode.IsUpper(r) {
			cased = true
		}
	}
	if !cased {
		return fmt.Errorf("%w: slug %q has no uppercase letters", ErrInvalidSlug, slug)
	}
	return nil
}

// ValidateFeeds checks slugs and category references against cat. It makes
// no network calls.
func ValidateFeeds(feeds []Feed, cat *Catalog) error {
	for _, f := range feeds {
		if err := ValidateSlug(f.Slug); err != nil {
			return apperr.Config("validate feeds", fmt.Errorf("feed %q: %w", f.Name, err))
		}
		for _, c := range f.Categories {
			if !cat.Has(model.CategoryKey(c)) {
				return apperr.Config("validate feeds", fmt.Errorf("feed %q: %w %q", f.Name, ErrUnknownCategory, c))
			}
		}
	}
	return nil
}

// LoadFeeds reads, parses and validates the feed registry. A missing file
// means no feeds are configured.
func LoadFeeds(path string, cat *Catalog) ([]Feed, error) {
	if path == "" {
		return nil, apperr.Config("load feeds", ErrEmptyPath)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperr.Config("load feeds", err)
	}
	feeds, err := ParseFeeds(data)
	if err != nil {
		return nil, err
	}
	if err := ValidateFeeds(feeds, cat); err != nil {
		return nil, err
	}
	return feeds, nil
}

// CategoryKeys returns the feed's categories as keys.
func (f Feed) CategoryKeys() []model.CategoryKey {
	keys := make([]model.CategoryKey, 0, len(f.Categories))
	for _, c := range f.Categories {
		keys = append(keys, model.CategoryKey(c))
	}
	return keys
}
