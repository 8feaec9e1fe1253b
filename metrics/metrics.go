// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

// Package metrics holds the Prometheus collectors of the REPL. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains the Prometheus collectors.
type Metrics struct {
	// Module registry
	moduleLoads   *prometheus.CounterVec
	activeVersion *prometheus.GaugeVec

	// Sandbox
	evaluations        *prometheus.CounterVec
	evaluationDuration *prometheus.HistogramVec

	// Render pipeline
	renders        *prometheus.CounterVec
	renderDuration prometheus.Histogram

	// Workers
	workers prometheus.Gauge
	frames  *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		moduleLoads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docrepl_module_loads_total",
				Help: "Total number of runtime module load attempts",
			},
			[]string{"version", "result"},
		),

		activeVersion: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "docrepl_module_active",
				Help: "Set to 1 for the active runtime version of the most recent registry change",
			},
			[]string{"version"},
		),

		evaluations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docrepl_evaluations_total",
				Help: "Total number of snippet evaluations by outcome",
			},
			[]string{"version", "outcome"},
		),

		evaluationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docrepl_evaluation_duration_seconds",
				Help:    "Duration of snippet evaluations in seconds",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 16), // 1ms to 32s
			},
			[]string{"version"},
		),

		renders: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docrepl_page_renders_total",
				Help: "Total number of page renders by outcome",
			},
			[]string{"outcome"},
		),

		renderDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "docrepl_page_render_duration_seconds",
				Help:    "Duration of completed page renders in seconds",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
			},
		),

		workers: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "docrepl_workers",
				Help: "Current number of attached workers",
			},
		),

		frames: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docrepl_frames_total",
				Help: "Total number of boundary frames by direction",
			},
			[]string{"direction"},
		),
	}
}

// RecordModuleLoad records a module load attempt.
func (m *Metrics) RecordModuleLoad(version string, err error) {
	if m == nil {
		return
	}
	result := "loaded"
	if err != nil {
		result = "failed"
	}
	m.moduleLoads.WithLabelValues(version, result).Inc()
}

// SetActiveVersion marks version as the active module.
func (m *Metrics) SetActiveVersion(version string) {
	if m == nil {
		return
	}
	m.activeVersion.Reset()
	m.activeVersion.WithLabelValues(version).Set(1)
}

// RecordEvaluation records a finished evaluation. Outcome is one of
// "ok", "error", "timeout" or "no_runtime".
func (m *Metrics) RecordEvaluation(version, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.evaluations.WithLabelValues(version, outcome).Inc()
	m.evaluationDuration.WithLabelValues(version).Observe(elapsed.Seconds())
}

// RecordRender records a page render. Outcome is one of "ok", "cancelled"
// or "error".
func (m *Metrics) RecordRender(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.renders.WithLabelValues(outcome).Inc()
	if outcome == "ok" {
		m.renderDuration.Observe(elapsed.Seconds())
	}
}

// WorkerAttached adjusts the worker gauge by delta.
func (m *Metrics) WorkerAttached(delta int) {
	if m == nil {
		return
	}
	m.workers.Add(float64(delta))
}

// RecordFrame counts a frame in direction "in" or "out".
func (m *Metrics) RecordFrame(direction string) {
	if m == nil {
		return
	}
	m.frames.WithLabelValues(direction).Inc()
}
