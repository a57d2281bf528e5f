package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"calagg/internal/apperr"
	"calagg/internal/pipeline"

	. "github.com/smartystreets/goconvey/convey"
)

func TestExitCode(t *testing.T) {
	Convey("Given errors of every kind", t, func() {
		So(exitCode(apperr.Config("x", errors.New("e"))), ShouldEqual, 2)
		So(exitCode(apperr.Network("x", errors.New("e"))), ShouldEqual, 3)
		So(exitCode(apperr.Parse("x", errors.New("e"))), ShouldEqual, 4)
		So(exitCode(apperr.DataQuality("x", errors.New("e"))), ShouldEqual, 5)
		So(exitCode(fmt.Errorf("wrapped: %w", apperr.Parse("x", errors.New("e")))), ShouldEqual, 4)
		So(exitCode(errors.New("plain")), ShouldEqual, 1)
		So(exitCode(context.Canceled), ShouldEqual, 130)
	})
}

func TestUpdateCommand(t *testing.T) {
	Convey("Given the root command", t, func() {
		t.Setenv("CALAGG_CONFIG", "")
		root := newRootCmd()

		Convey("When update is given no directory", func() {
			root.SetArgs([]string{"update"})
			err := root.Execute()

			Convey("Then it fails before doing any work", func() {
				So(err, ShouldNotBeNil)
				So(exitCode(err), ShouldNotEqual, 0)
			})
		})

		Convey("When update is given a directory that does not exist", func() {
			root.SetArgs([]string{"update", filepath.Join(t.TempDir(), "nope")})
			err := root.Execute()

			Convey("Then it is a config error", func() {
				So(errors.Is(err, pipeline.ErrNoOutputDir), ShouldBeTrue)
				So(exitCode(err), ShouldEqual, 2)
			})
		})

		Convey("When the log level is unknown", func() {
			root.SetArgs([]string{"--log-level", "chatty", "update", t.TempDir()})
			err := root.Execute()

			Convey("Then it is a config error", func() {
				So(apperr.KindOf(err), ShouldEqual, apperr.KindConfig)
			})
		})

		Convey("When watch is given a bad schedule", func() {
			root.SetArgs([]string{"watch", "--run-now=false", "--schedule", "every now and then", t.TempDir()})
			err := root.Execute()

			Convey("Then it is a config error", func() {
				So(apperr.KindOf(err), ShouldEqual, apperr.KindConfig)
			})
		})
	})
}
