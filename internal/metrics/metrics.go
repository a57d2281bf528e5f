// Package metrics records per-run figures in a private Prometheus registry
// and exports them as a node_exporter textfile.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"calagg/internal/apperr"
	appLog "calagg/internal/log"
)

const namespace = "calagg"

// Recorder holds the run metrics.
type Recorder struct {
	registry *prometheus.Registry

	storeNew      *prometheus.GaugeVec
	storeTotal    *prometheus.GaugeVec
	feedEvents    *prometheus.GaugeVec
	feedSkipped   *prometheus.GaugeVec
	primaryEvents prometheus.Gauge
	urlQueries    prometheus.Gauge
	runDuration   prometheus.Gauge
	lastSuccess   prometheus.Gauge
	runs          *prometheus.CounterVec
}

// New creates a Recorder with its own registry, so default Go collectors
// stay out of the textfile.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Recorder{
		registry: reg,
		storeNew: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "calendar_new_events",
			Help:      "Events first seen in the last run, per output calendar.",
		}, []string{"category"}),
		storeTotal: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "calendar_events",
			Help:      "Events written in the last run, per output calendar.",
		}, []string{"category"}),
		feedEvents: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "feed_events",
			Help:      "Concrete events produced by each external feed after expansion.",
		}, []string{"slug"}),
		feedSkipped: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "feed_skipped_events",
			Help:      "Feed events dropped for having no end or having ended.",
		}, []string{"slug"}),
		primaryEvents: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "primary_events",
			Help:      "Listings read from the primary spreadsheet.",
		}),
		urlQueries: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "url_scanner_queries",
			Help:      "Reputation API lookups made in the last run.",
		}),
		runDuration: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last run.",
		}),
		lastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time the last successful run finished.",
		}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Runs by outcome; failures are labelled with the error kind.",
		}, []string{"result"}),
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Begin clears the per-calendar and per-feed series left by the previous
// run, so a calendar or feed that no longer exists stops being exported.
func (r *Recorder) Begin() {
	r.storeNew.Reset()
	r.storeTotal.Reset()
	r.feedEvents.Reset()
	r.feedSkipped.Reset()
}

func (r *Recorder) ObserveStore(category string, newCount, total int) {
	r.storeNew.WithLabelValues(category).Set(float64(newCount))
	r.storeTotal.WithLabelValues(category).Set(float64(total))
}

func (r *Recorder) ObserveFeed(slug string, events, skipped int) {
	r.feedEvents.WithLabelValues(slug).Set(float64(events))
	r.feedSkipped.WithLabelValues(slug).Set(float64(skipped))
}

func (r *Recorder) SetPrimaryEvents(n int) { r.primaryEvents.Set(float64(n)) }

func (r *Recorder) SetURLQueries(n int) { r.urlQueries.Set(float64(n)) }

// Finish records the outcome of a run that started at start.
func (r *Recorder) Finish(start time.Time, err error) {
	end := time.Now()
	r.runDuration.Set(end.Sub(start).Seconds())
	if err != nil {
		r.runs.WithLabelValues(string(apperr.KindOf(err))).Inc()
		return
	}
	r.runs.WithLabelValues("ok").Inc()
	r.lastSuccess.Set(float64(end.Unix()))
}

// WriteTextfile writes the registry to path in the text exposition format.
// An empty path is a no-op.
func (r *Recorder) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return apperr.Config("write metrics", err)
	}
	appLog.Debug("metrics written", "path", path)
	return nil
}
