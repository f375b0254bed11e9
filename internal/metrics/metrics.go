// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics holds the Prometheus metrics of a report run. The CLI is
// short-lived, so metrics are written to a node-exporter textfile instead
// of being scraped.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "eloqua_report"

// Metrics holds all Prometheus metrics for report runs.
type Metrics struct {
	RunsTotal            *prometheus.CounterVec
	RunDurationSeconds   prometheus.Histogram
	LastSuccessTimestamp prometheus.Gauge

	StreamRecords         *prometheus.GaugeVec
	StreamFailuresTotal   *prometheus.CounterVec
	StreamDurationSeconds *prometheus.HistogramVec

	ReportRows *prometheus.GaugeVec

	ContactCacheSize    prometheus.Gauge
	ContactLookupsTotal *prometheus.CounterVec
	UploadsTotal        *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates a Metrics instance on its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Report runs by outcome",
			},
			[]string{"status"},
		),
		RunDurationSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Wall time of a single-date report run",
				Buckets:   []float64{30, 60, 120, 300, 600, 1200, 1800, 3600},
			},
		),
		LastSuccessTimestamp: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_success_timestamp_seconds",
				Help:      "Unix time of the last report written",
			},
		),
		StreamRecords: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "stream_records",
				Help:      "Records fetched per stream in the last run",
			},
			[]string{"stream"},
		),
		StreamFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stream_failures_total",
				Help:      "Stream fetches that failed and were degraded or aborted the run",
			},
			[]string{"stream"},
		),
		StreamDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stream_duration_seconds",
				Help:      "Fetch time per stream",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
			},
			[]string{"stream"},
		),
		ReportRows: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "rows",
				Help:      "Rows in the last report by kind",
			},
			[]string{"kind"},
		),
		ContactCacheSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "contact_cache_size",
				Help:      "Contacts held in the persistent cache",
			},
		),
		ContactLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "contact_lookups_total",
				Help:      "Contact resolutions by result",
			},
			[]string{"result"},
		),
		UploadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "uploads_total",
				Help:      "Report uploads by result",
			},
			[]string{"result"},
		),
		registry: reg,
	}

	reg.MustRegister(
		m.RunsTotal,
		m.RunDurationSeconds,
		m.LastSuccessTimestamp,
		m.StreamRecords,
		m.StreamFailuresTotal,
		m.StreamDurationSeconds,
		m.ReportRows,
		m.ContactCacheSize,
		m.ContactLookupsTotal,
		m.UploadsTotal,
	)
	return m
}

// Registry returns the registry holding every metric.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveStream records one stream fetch.
func (m *Metrics) ObserveStream(stream string, records int, took time.Duration, err error) {
	m.StreamDurationSeconds.WithLabelValues(stream).Observe(took.Seconds())
	if err != nil {
		m.StreamFailuresTotal.WithLabelValues(stream).Inc()
		m.StreamRecords.WithLabelValues(stream).Set(0)
		return
	}
	m.StreamRecords.WithLabelValues(stream).Set(float64(records))
}

// ObserveRun records the outcome of a single-date run.
func (m *Metrics) ObserveRun(status string, took time.Duration, finished time.Time) {
	m.RunsTotal.WithLabelValues(status).Inc()
	m.RunDurationSeconds.Observe(took.Seconds())
	if status == "succeeded" || status == "degraded" {
		m.LastSuccessTimestamp.Set(float64(finished.Unix()))
	}
}

// ObserveRows sets the row gauges of the last report.
func (m *Metrics) ObserveRows(sends, forwards, bounced, opened, clicked int) {
	m.ReportRows.WithLabelValues("send").Set(float64(sends))
	m.ReportRows.WithLabelValues("forward").Set(float64(forwards))
	m.ReportRows.WithLabelValues("bounced").Set(float64(bounced))
	m.ReportRows.WithLabelValues("opened").Set(float64(opened))
	m.ReportRows.WithLabelValues("clicked").Set(float64(clicked))
}

// ObserveContacts records one contact resolution pass.
func (m *Metrics) ObserveContacts(cacheSize, hits, fetched, failed int) {
	m.ContactCacheSize.Set(float64(cacheSize))
	m.ContactLookupsTotal.WithLabelValues("hit").Add(float64(hits))
	m.ContactLookupsTotal.WithLabelValues("fetched").Add(float64(fetched))
	m.ContactLookupsTotal.WithLabelValues("failed").Add(float64(failed))
}

// WriteTextfile writes the registry in the text exposition format for the
// node-exporter textfile collector. An empty path is a no-op.
func (m *Metrics) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
