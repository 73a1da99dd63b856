// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package metrics holds the Prometheus instruments for pedigree loads, saves,
// migrations and service requests.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels.
const (
	OutcomeSuccess  = "success"
	OutcomeError    = "error"
	OutcomeRejected = "rejected"
	OutcomeEmpty    = "empty"
)

// Registry is a set of instruments backed by its own prometheus.Registry.
//
// A nil *Registry is valid and records nothing.
type Registry struct {
	registry *prometheus.Registry

	MigrationsApplied *prometheus.CounterVec
	Loads             *prometheus.CounterVec
	Saves             *prometheus.CounterVec
	SaveDuration      prometheus.Histogram
	DocumentsStored   *prometheus.CounterVec
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
}

// NewRegistry creates and registers all instruments.
func NewRegistry() *Registry {
	r := &Registry{registry: prometheus.NewRegistry()}
	f := promauto.With(r.registry)
	r.MigrationsApplied = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pedigree_migrations_applied_total",
			Help: "Number of document format updates applied",
		},
		[]string{"update"},
	)
	r.Loads = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pedigree_loads_total",
			Help: "Number of pedigree loads by outcome",
		},
		[]string{"outcome"},
	)
	r.Saves = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pedigree_saves_total",
			Help: "Number of pedigree saves by outcome",
		},
		[]string{"outcome"},
	)
	r.SaveDuration = f.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pedigree_save_duration_seconds",
			Help:    "Time from save request to server reply",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)
	r.DocumentsStored = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pedigree_documents_stored_total",
			Help: "Number of documents written by the service",
		},
		[]string{"kind"},
	)
	r.RequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pedigree_http_requests_total",
			Help: "Number of service requests by handler and status code",
		},
		[]string{"handler", "code"},
	)
	r.RequestDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pedigree_http_request_duration_seconds",
			Help:    "Service request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"handler"},
	)
	return r
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Instrument wraps a handler with request count and latency instruments.
func (r *Registry) Instrument(name string, h http.Handler) http.Handler {
	if r == nil {
		return h
	}
	labels := prometheus.Labels{"handler": name}
	return promhttp.InstrumentHandlerDuration(r.RequestDuration.MustCurryWith(labels),
		promhttp.InstrumentHandlerCounter(r.RequestsTotal.MustCurryWith(labels), h))
}

// RecordLoad counts a finished load.
func (r *Registry) RecordLoad(outcome string) {
	if r == nil {
		return
	}
	r.Loads.WithLabelValues(outcome).Inc()
}

// RecordSave counts a finished save and its latency.
func (r *Registry) RecordSave(outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.Saves.WithLabelValues(outcome).Inc()
	if outcome != OutcomeRejected {
		r.SaveDuration.Observe(d.Seconds())
	}
}

// RecordMigration counts an applied format update.
func (r *Registry) RecordMigration(update string) {
	if r == nil {
		return
	}
	r.MigrationsApplied.WithLabelValues(update).Inc()
}

// RecordStored counts a document written by the service.
func (r *Registry) RecordStored(kind string) {
	if r == nil {
		return
	}
	r.DocumentsStored.WithLabelValues(kind).Inc()
}
