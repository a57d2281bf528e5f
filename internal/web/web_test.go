package web_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"calagg/internal/apperr"
	"calagg/internal/metrics"
	"calagg/internal/pipeline"
	"calagg/internal/web"

	. "github.com/smartystreets/goconvey/convey"
)

func get(h http.Handler, path string, auth ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if len(auth) == 2 {
		req.SetBasicAuth(auth[0], auth[1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer(t *testing.T) {
	Convey("Given an output directory with a calendar", t, func() {
		outdir := t.TempDir()
		So(os.WriteFile(filepath.Join(outdir, "all.ical"), []byte("BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"), 0o644), ShouldBeNil)
		So(os.WriteFile(filepath.Join(outdir, "notes.txt"), []byte("private"), 0o644), ShouldBeNil)
		rec := metrics.New()
		rec.SetPrimaryEvents(7)
		s := web.NewServer(outdir, web.WithMetrics(rec.Registry()))
		h := s.Handler()

		Convey("Then calendars are served as text/calendar", func() {
			r := get(h, "/calendars/all.ical")
			So(r.Code, ShouldEqual, http.StatusOK)
			So(r.Header().Get("Content-Type"), ShouldEqual, "text/calendar; charset=utf-8")
			So(r.Body.String(), ShouldStartWith, "BEGIN:VCALENDAR")
		})

		Convey("Then other files and traversal are not served", func() {
			So(get(h, "/calendars/notes.txt").Code, ShouldEqual, http.StatusNotFound)
			So(get(h, "/calendars/..%2Fall.ical").Code, ShouldNotEqual, http.StatusOK)
			So(get(h, "/calendars/webinar.ical").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Then health always answers", func() {
			So(get(h, "/health").Body.String(), ShouldEqual, "OK")
		})

		Convey("Then metrics are exposed", func() {
			r := get(h, "/metrics")
			So(r.Code, ShouldEqual, http.StatusOK)
			So(r.Body.String(), ShouldContainSubstring, "calagg_primary_events 7")
		})

		Convey("When no run has finished", func() {
			Convey("Then status is unavailable", func() {
				So(get(h, "/api/status").Code, ShouldEqual, http.StatusServiceUnavailable)
			})
		})

		Convey("When a run succeeded", func() {
			s.Record(pipeline.Report{
				PrimaryEvents: 3,
				Stores:        []pipeline.StoreReport{{Category: "all", Path: filepath.Join(outdir, "all.ical"), New: 2, Total: 3}},
			}, nil)
			r := get(h, "/api/status")

			Convey("Then its counts are reported", func() {
				So(r.Code, ShouldEqual, http.StatusOK)
				var body struct {
					OK        bool `json:"ok"`
					Calendars []struct {
						Category string `json:"category"`
						File     string `json:"file"`
						Total    int    `json:"total"`
					} `json:"calendars"`
				}
				So(json.Unmarshal(r.Body.Bytes(), &body), ShouldBeNil)
				So(body.OK, ShouldBeTrue)
				So(body.Calendars, ShouldHaveLength, 1)
				So(body.Calendars[0].File, ShouldEqual, "all.ical")
				So(body.Calendars[0].Total, ShouldEqual, 3)
			})
		})

		Convey("When a run failed", func() {
			s.Record(pipeline.Report{}, apperr.Network("fetch sheet", errors.New("boom")))
			r := get(h, "/api/status")

			Convey("Then the error kind is reported", func() {
				So(r.Body.String(), ShouldContainSubstring, `"ok":false`)
				So(r.Body.String(), ShouldContainSubstring, `"kind":"network"`)
			})
		})
	})

	Convey("Given a server with basic auth", t, func() {
		s := web.NewServer(t.TempDir(), web.WithBasicAuth("user", "secret"))
		h := s.Handler()

		Convey("Then health stays open", func() {
			So(get(h, "/health").Code, ShouldEqual, http.StatusOK)
		})

		Convey("Then other endpoints need credentials", func() {
			So(get(h, "/api/status").Code, ShouldEqual, http.StatusUnauthorized)
			So(get(h, "/api/status", "user", "wrong").Code, ShouldEqual, http.StatusUnauthorized)
			So(get(h, "/api/status", "user", "secret").Code, ShouldEqual, http.StatusServiceUnavailable)
		})
	})
}
