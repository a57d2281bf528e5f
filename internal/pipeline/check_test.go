package pipeline_test

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"calagg/internal/apperr"
	"calagg/internal/config"
	"calagg/internal/fetch"

	. "github.com/smartystreets/goconvey/convey"
)

func TestCheckFeeds(t *testing.T) {
	Convey("Given a feed registry", t, func() {
		u := newUpstream()
		defer u.srv.Close()
		r, dataDir, _ := setup(t, u)
		ctx := context.Background()

		Convey("When every feed answers", func() {
			checks, err := r.CheckFeeds(ctx, false)

			Convey("Then each feed reports its event count", func() {
				So(err, ShouldBeNil)
				So(checks, ShouldHaveLength, 1)
				So(checks[0].Feed.Slug, ShouldEqual, "CONF")
				So(checks[0].Events, ShouldEqual, 2)
			})
		})

		Convey("When a feed is down", func() {
			u.feedCode = http.StatusBadGateway
			checks, err := r.CheckFeeds(ctx, false)

			Convey("Then the failure is reported per feed", func() {
				So(errors.Is(err, fetch.ErrStatus), ShouldBeTrue)
				So(checks[0].Err, ShouldNotBeNil)
			})
		})

		Convey("When a slug is malformed", func() {
			bad := "- name: Mine\n  slug: my-feed\n  url: " + u.srv.URL + "/conf.ics\n  summary: Mine\n  categories: [webinar]\n"
			So(os.WriteFile(filepath.Join(dataDir, "feeds.yaml"), []byte(bad), 0o600), ShouldBeNil)
			_, err := r.CheckFeeds(ctx, false)

			Convey("Then validation fails without touching the network", func() {
				So(errors.Is(err, config.ErrInvalidSlug), ShouldBeTrue)
				So(apperr.KindOf(err), ShouldEqual, apperr.KindConfig)
			})
		})

		Convey("When checking offline", func() {
			u.feedCode = http.StatusBadGateway
			checks, err := r.CheckFeeds(ctx, true)

			Convey("Then only the registry is validated", func() {
				So(err, ShouldBeNil)
				So(checks, ShouldBeEmpty)
			})
		})
	})
}
