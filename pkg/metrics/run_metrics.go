// Post-processing run metrics
//
// Copyright (C) 2026 Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import "time"

// RunMetrics describes one post-processing run.
type RunMetrics struct {
	LinesRead       *Counter
	LinesWritten    *Counter
	LayerMarkers    *Counter
	Overrides       *Counter
	Resets          *Counter
	StrippedFan     *Counter
	RangeState      *Gauge
	RangeStartLayer *Gauge
	Duration        *Gauge

	registry *Registry
}

// NewRunMetrics creates and registers the run metrics.
func NewRunMetrics() *RunMetrics {
	m := &RunMetrics{
		LinesRead:       NewCounter("layerspeed_lines_read_total", "Lines read from the input stream"),
		LinesWritten:    NewCounter("layerspeed_lines_written_total", "Lines written to the output stream"),
		LayerMarkers:    NewCounter("layerspeed_layer_markers_total", "Layer markers seen, per instance"),
		Overrides:       NewCounter("layerspeed_overrides_injected_total", "Override commands injected, per instance and kind"),
		Resets:          NewCounter("layerspeed_resets_injected_total", "Reset commands injected, per instance and kind"),
		StrippedFan:     NewCounter("layerspeed_fan_commands_stripped_total", "Original fan commands dropped inside a range"),
		RangeState:      NewGauge("layerspeed_range_state", "Final range state per instance (0 before, 1 in, 2 after)"),
		RangeStartLayer: NewGauge("layerspeed_range_entered_layer", "Zero-based layer at which the range was entered"),
		Duration:        NewGauge("layerspeed_run_duration_seconds", "Wall time of the run"),
		registry:        NewRegistry(),
	}
	for _, metric := range []Metric{
		m.LinesRead, m.LinesWritten, m.LayerMarkers, m.Overrides, m.Resets,
		m.StrippedFan, m.RangeState, m.RangeStartLayer, m.Duration,
	} {
		m.registry.MustRegister(metric)
	}
	return m
}

// ObserveDuration records the run's wall time.
func (m *RunMetrics) ObserveDuration(labels Labels, d time.Duration) {
	m.Duration.Set(labels, d.Seconds())
}

// Registry returns the registry holding the run metrics.
func (m *RunMetrics) Registry() *Registry {
	return m.registry
}
