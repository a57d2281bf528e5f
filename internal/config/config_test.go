package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"calagg/internal/apperr"
	"calagg/internal/config"
	"calagg/internal/model"

	. "github.com/smartystreets/goconvey/convey"
)

const calendarYAML = `calendars:
  - category: all
    summary: All Events
    start: 2023-01-01
  - category: general
    summary: General Events
    start: 2023-01-01
  - category: webinar
    summary: Webinars
    start: 2023-02-01
`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"CALAGG_CONFIG", "CALAGG_SHEET_URL", "CALAGG_HORIZON_DAYS", "CALAGG_INCREMENTAL", "CALAGG_SCANNER_KEY", "SCANNER_KEY"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadSettings(t *testing.T) {
	Convey("Given the settings loader", t, func() {
		clearEnv(t)

		Convey("When loading with defaults only", func() {
			s, err := config.Load("")

			Convey("Then defaults are applied", func() {
				So(err, ShouldBeNil)
				So(s.HorizonDays, ShouldEqual, 360)
				So(s.ScannerMaxQueries, ShouldEqual, 5000)
				So(s.Incremental, ShouldBeFalse)
				So(s.CalendarPath(), ShouldEqual, filepath.Join("_data", "calendar.yaml"))
			})
		})

		Convey("When a YAML file and env vars are both present", func() {
			dir := t.TempDir()
			path := writeFile(t, dir, "settings.yaml", "horizon_days: 30\nsheet_url: http://file.test/sheet\ndata_dir: /srv/data\n")
			t.Setenv("CALAGG_SHEET_URL", "http://env.test/sheet")
			t.Setenv("CALAGG_INCREMENTAL", "true")

			s, err := config.Load(path)

			Convey("Then env overrides the file, which overrides defaults", func() {
				So(err, ShouldBeNil)
				So(s.HorizonDays, ShouldEqual, 30)
				So(s.SheetURL, ShouldEqual, "http://env.test/sheet")
				So(s.Incremental, ShouldBeTrue)
				So(s.FeedsPath(), ShouldEqual, "/srv/data/feeds.yaml")
			})
		})

		Convey("When only the legacy scanner variable is set", func() {
			t.Setenv("SCANNER_KEY", "legacy-key")

			s, err := config.Load("")

			Convey("Then it is used as the scanner key", func() {
				So(err, ShouldBeNil)
				So(s.ScannerKey, ShouldEqual, "legacy-key")
			})
		})

		Convey("When the settings file does not exist", func() {
			_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))

			Convey("Then a config error is returned", func() {
				So(err, ShouldNotBeNil)
				So(apperr.KindOf(err), ShouldEqual, apperr.KindConfig)
			})
		})
	})
}

func TestCatalog(t *testing.T) {
	Convey("Given category metadata", t, func() {
		dir := t.TempDir()

		Convey("When the file is well formed", func() {
			cat, err := config.LoadCatalog(writeFile(t, dir, "calendar.yaml", calendarYAML))
			So(err, ShouldBeNil)

			Convey("Then keys keep file order", func() {
				So(cat.Keys(), ShouldResemble, []model.CategoryKey{"all", "general", "webinar"})
			})

			Convey("Then labels resolve against the declared set", func() {
				So(cat.Resolve("Webinar "), ShouldEqual, model.CategoryKey("webinar"))
				So(cat.Resolve("hackathon"), ShouldEqual, model.CategoryGeneral)
				So(cat.Resolve("all"), ShouldEqual, model.CategoryGeneral)
			})

			Convey("Then start dates parse as UTC dates", func() {
				c, ok := cat.Lookup("webinar")
				So(ok, ShouldBeTrue)
				start, err := c.StartDate()
				So(err, ShouldBeNil)
				So(start, ShouldEqual, time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC))
			})
		})

		Convey("When the general fallback is missing", func() {
			_, err := config.NewCatalog([]config.Category{{Category: "all", Summary: "All", Start: "2023-01-01"}})

			Convey("Then loading fails with a config error", func() {
				So(errors.Is(err, config.ErrMissingCategory), ShouldBeTrue)
				So(apperr.KindOf(err), ShouldEqual, apperr.KindConfig)
			})
		})

		Convey("When a start date is malformed", func() {
			_, err := config.NewCatalog([]config.Category{
				{Category: "all", Summary: "All", Start: "soon"},
				{Category: "general", Summary: "General", Start: "2023-01-01"},
			})

			Convey("Then loading fails", func() {
				So(errors.Is(err, config.ErrInvalidStart), ShouldBeTrue)
			})
		})

		Convey("When a category is declared twice", func() {
			_, err := config.NewCatalog([]config.Category{
				{Category: "all", Summary: "All", Start: "2023-01-01"},
				{Category: "general", Summary: "General", Start: "2023-01-01"},
				{Category: "general", Summary: "Again", Start: "2023-01-01"},
			})

			Convey("Then loading fails", func() {
				So(errors.Is(err, config.ErrDuplicateCategory), ShouldBeTrue)
			})
		})
	})
}

func TestFeeds(t *testing.T) {
	Convey("Given a catalog and a feed registry", t, func() {
		dir := t.TempDir()
		cat, err := config.LoadCatalog(writeFile(t, dir, "calendar.yaml", calendarYAML))
		So(err, ShouldBeNil)

		Convey("When the registry is valid", func() {
			path := writeFile(t, dir, "feeds.yaml", `- name: Conference
  slug: CONF
  url: https://conf.test/cal.ics
  summary: Conference talks
  categories:
    - webinar
`)
			feeds, err := config.LoadFeeds(path, cat)

			Convey("Then every entry is decoded", func() {
				So(err, ShouldBeNil)
				So(feeds, ShouldHaveLength, 1)
				So(feeds[0].Slug, ShouldEqual, "CONF")
				So(feeds[0].CategoryKeys(), ShouldResemble, []model.CategoryKey{"webinar"})
			})
		})

		Convey("When a slug is lowercase with a hyphen", func() {
			feeds := []config.Feed{{Name: "Mine", Slug: "my-feed", URL: "https://x.test", Summary: "s", Categories: []string{"webinar"}}}
			err := config.ValidateFeeds(feeds, cat)

			Convey("Then validation reports the slug format", func() {
				So(errors.Is(err, config.ErrInvalidSlug), ShouldBeTrue)
				So(apperr.KindOf(err), ShouldEqual, apperr.KindConfig)
				So(err.Error(), ShouldContainSubstring, "my-feed")
			})
		})

		Convey("When a slug contains whitespace", func() {
			So(errors.Is(config.ValidateSlug("MY FEED"), config.ErrInvalidSlug), ShouldBeTrue)
			So(config.ValidateSlug("MY-FEED-2"), ShouldBeNil)
		})

		Convey("When a feed references an unknown category", func() {
			feeds := []config.Feed{{Name: "Mine", Slug: "MINE", URL: "https://x.test", Summary: "s", Categories: []string{"hackathon"}}}
			err := config.ValidateFeeds(feeds, cat)

			Convey("Then validation names the category", func() {
				So(errors.Is(err, config.ErrUnknownCategory), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "hackathon")
			})
		})

		Convey("When a required field is missing", func() {
			_, err := config.ParseFeeds([]byte("- name: NoURL\n  slug: NOURL\n  summary: s\n  categories: [webinar]\n"))

			Convey("Then parsing names the field", func() {
				So(errors.Is(err, config.ErrMissingField), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, `"url"`)
			})
		})

		Convey("When categories is not a list", func() {
			_, err := config.ParseFeeds([]byte("- name: Bad\n  slug: BAD\n  url: https://x.test\n  summary: s\n  categories: webinar\n"))

			Convey("Then parsing rejects it", func() {
				So(errors.Is(err, config.ErrInvalidCategories), ShouldBeTrue)
			})
		})

		Convey("When the registry file does not exist", func() {
			feeds, err := config.LoadFeeds(filepath.Join(dir, "none.yaml"), cat)

			Convey("Then no feeds are configured", func() {
				So(err, ShouldBeNil)
				So(feeds, ShouldBeEmpty)
			})
		})
	})
}

func TestWriteFileAtomic(t *testing.T) {
	Convey("Given an existing directory", t, func() {
		dir := t.TempDir()
		path := filepath.Join(dir, "all.ical")

		Convey("When writing twice", func() {
			So(config.WriteFileAtomic(path, []byte("one"), 0o644), ShouldBeNil)
			So(config.WriteFileAtomic(path, []byte("two"), 0o644), ShouldBeNil)

			Convey("Then the last content wins and no temp files remain", func() {
				data, err := os.ReadFile(path)
				So(err, ShouldBeNil)
				So(string(data), ShouldEqual, "two")
				entries, err := os.ReadDir(dir)
				So(err, ShouldBeNil)
				So(entries, ShouldHaveLength, 1)
			})
		})

		Convey("When the directory does not exist", func() {
			err := config.WriteFileAtomic(filepath.Join(dir, "missing", "all.ical"), []byte("x"), 0o644)

			Convey("Then the write fails", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})
}
