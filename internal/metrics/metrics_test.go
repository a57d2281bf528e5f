package metrics_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"calagg/internal/apperr"
	"calagg/internal/metrics"

	. "github.com/smartystreets/goconvey/convey"
)

func TestRecorder(t *testing.T) {
	Convey("Given a recorder after a successful run", t, func() {
		r := metrics.New()
		r.ObserveStore("all", 3, 5)
		r.ObserveStore("webinar", 1, 1)
		r.ObserveFeed("CONF", 4, 2)
		r.SetPrimaryEvents(2)
		r.SetURLQueries(1)
		r.Finish(time.Now().Add(-time.Second), nil)

		Convey("When it is written as a textfile", func() {
			path := filepath.Join(t.TempDir(), "calagg.prom")
			So(r.WriteTextfile(path), ShouldBeNil)
			data, err := os.ReadFile(path)
			So(err, ShouldBeNil)
			out := string(data)

			Convey("Then every figure is present", func() {
				So(out, ShouldContainSubstring, `calagg_calendar_new_events{category="all"} 3`)
				So(out, ShouldContainSubstring, `calagg_calendar_events{category="all"} 5`)
				So(out, ShouldContainSubstring, `calagg_calendar_events{category="webinar"} 1`)
				So(out, ShouldContainSubstring, `calagg_feed_events{slug="CONF"} 4`)
				So(out, ShouldContainSubstring, `calagg_feed_skipped_events{slug="CONF"} 2`)
				So(out, ShouldContainSubstring, "calagg_primary_events 2")
				So(out, ShouldContainSubstring, "calagg_url_scanner_queries 1")
				So(out, ShouldContainSubstring, `calagg_runs_total{result="ok"} 1`)
				So(out, ShouldContainSubstring, "calagg_last_success_timestamp_seconds")
				So(out, ShouldNotContainSubstring, "go_goroutines")
			})
		})

		Convey("When the next run drops a calendar and a feed", func() {
			r.Begin()
			r.ObserveStore("all", 0, 5)
			r.Finish(time.Now(), nil)
			path := filepath.Join(t.TempDir(), "calagg.prom")
			So(r.WriteTextfile(path), ShouldBeNil)
			data, err := os.ReadFile(path)
			So(err, ShouldBeNil)
			out := string(data)

			Convey("Then only the current series are exported", func() {
				So(out, ShouldContainSubstring, `calagg_calendar_new_events{category="all"} 0`)
				So(out, ShouldNotContainSubstring, `category="webinar"`)
				So(out, ShouldNotContainSubstring, `slug="CONF"`)
				So(out, ShouldContainSubstring, `calagg_runs_total{result="ok"} 2`)
			})
		})

		Convey("When the next run fails", func() {
			r.Finish(time.Now(), apperr.Network("fetch sheet", errors.New("boom")))
			families, err := r.Registry().Gather()
			So(err, ShouldBeNil)

			Convey("Then the failure is counted by kind", func() {
				var found bool
				for _, mf := range families {
					if mf.GetName() != "calagg_runs_total" {
						continue
					}
					for _, m := range mf.GetMetric() {
						if m.GetLabel()[0].GetValue() == "network" {
							found = true
							So(m.GetCounter().GetValue(), ShouldEqual, 1)
						}
					}
				}
				So(found, ShouldBeTrue)
			})
		})
	})

	Convey("Given no metrics path", t, func() {
		So(metrics.New().WriteTextfile(""), ShouldBeNil)
	})
}
