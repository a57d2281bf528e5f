package fetch_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"calagg/internal/apperr"
	"calagg/internal/fetch"

	. "github.com/smartystreets/goconvey/convey"
)

func TestFetcher(t *testing.T) {
	Convey("Given a fetcher and a test server", t, func() {
		ctx := context.Background()

		Convey("When the server answers 200", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"))
			}))
			defer srv.Close()

			f := fetch.NewFetcher(fetch.NewClient(0), "")
			res, err := f.Fetch(ctx, fetch.Source{ID: "CONF", URL: srv.URL})

			Convey("Then the body is returned", func() {
				So(err, ShouldBeNil)
				So(string(res.Body), ShouldStartWith, "BEGIN:VCALENDAR")
				So(res.FromCache, ShouldBeFalse)
			})
		})

		Convey("When the server answers 500", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			}))
			defer srv.Close()

			f := fetch.NewFetcher(nil, "")
			_, err := f.Fetch(ctx, fetch.Source{ID: "CONF", URL: srv.URL})

			Convey("Then a network error is returned", func() {
				So(errors.Is(err, fetch.ErrStatus), ShouldBeTrue)
				So(apperr.KindOf(err), ShouldEqual, apperr.KindNetwork)
			})
		})

		Convey("When the URL is empty", func() {
			_, err := fetch.NewFetcher(nil, "").Fetch(ctx, fetch.Source{ID: "CONF"})

			Convey("Then a config error is returned", func() {
				So(errors.Is(err, fetch.ErrEmptyURL), ShouldBeTrue)
				So(apperr.KindOf(err), ShouldEqual, apperr.KindConfig)
			})
		})

		Convey("When a cache dir is configured and the server honours ETags", func() {
			hits := 0
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits++
				if r.Header.Get("If-None-Match") == `"v1"` {
					w.WriteHeader(http.StatusNotModified)
					return
				}
				w.Header().Set("ETag", `"v1"`)
				_, _ = w.Write([]byte("payload"))
			}))
			defer srv.Close()

			f := fetch.NewFetcher(nil, t.TempDir())
			first, err := f.Fetch(ctx, fetch.Source{ID: "CONF", URL: srv.URL})
			So(err, ShouldBeNil)
			second, err := f.Fetch(ctx, fetch.Source{ID: "CONF", URL: srv.URL})
			So(err, ShouldBeNil)

			Convey("Then the second fetch reuses the cached body", func() {
				So(hits, ShouldEqual, 2)
				So(first.FromCache, ShouldBeFalse)
				So(second.FromCache, ShouldBeTrue)
				So(string(second.Body), ShouldEqual, "payload")
			})
		})
	})
}

func TestRedactURL(t *testing.T) {
	Convey("Given URLs with private parts", t, func() {
		So(fetch.RedactURL("https://example.com/path/private.ics?token=abcd"), ShouldEqual, "https://example.com/...(redacted)")
		So(fetch.RedactURL("https://example.com?token=abcd"), ShouldEqual, "https://example.com/...(redacted)")
		So(fetch.RedactURL("https://example.com"), ShouldEqual, "https://example.com/...(redacted)")
		So(fetch.RedactURL("not a url"), ShouldEqual, "url://...(redacted)")
	})
}
