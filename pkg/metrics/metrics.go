// Metrics collection for the layer speed post-processor
//
// Counters and gauges with label sets, rendered in the Prometheus text
// exposition format. Series are written in sorted label order so a run's
// metrics file is stable.
//
// Copyright (C) 2026 Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// MetricType represents the type of metric
type MetricType int

const (
	TypeCounter MetricType = iota
	TypeGauge
)

func (t MetricType) String() string {
	switch t {
	case TypeCounter:
		return "counter"
	case TypeGauge:
		return "gauge"
	default:
		return "unknown"
	}
}

// Labels represents metric labels as key-value pairs
type Labels map[string]string

// Key generates a unique key for a label set
func (l Labels) Key() string {
	keys := l.sortedKeys()
	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(l[k])
	}
	return sb.String()
}

// String returns labels in Prometheus format
func (l Labels) String() string {
	if len(l) == 0 {
		return ""
	}
	keys := l.sortedKeys()
	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "%s=\"%s\"", k, escapeLabel(l[k]))
	}
	sb.WriteByte('}')
	return sb.String()
}

func (l Labels) sortedKeys() []string {
	keys := make([]string, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (l Labels) clone() Labels {
	out := make(Labels, len(l))
	for k, v := range l {
		out[k] = v
	}
	return out
}

func escapeLabel(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	return strings.ReplaceAll(s, "\n", "\\n")
}

// Metric is the interface for all metric types
type Metric interface {
	Name() string
	Help() string
	Type() MetricType
	Write(sb *strings.Builder)
}

// series is one labelled value of a metric
type series struct {
	labels Labels
	value  float64
}

// vec holds the labelled values shared by counters and gauges
type vec struct {
	name string
	help string
	mu   sync.Mutex
	data map[string]*series
}

func newVec(name, help string) *vec {
	return &vec{name: name, help: help, data: make(map[string]*series)}
}

func (v *vec) add(labels Labels, delta float64, set bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	key := labels.Key()
	s, ok := v.data[key]
	if !ok {
		s = &series{labels: labels.clone()}
		v.data[key] = s
	}
	if set {
		s.value = delta
	} else {
		s.value += delta
	}
}

func (v *vec) get(labels Labels) float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	if s, ok := v.data[labels.Key()]; ok {
		return s.value
	}
	return 0
}

func (v *vec) write(sb *strings.Builder, typ MetricType) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fmt.Fprintf(sb, "# HELP %s %s\n", v.name, v.help)
	fmt.Fprintf(sb, "# TYPE %s %s\n", v.name, typ)
	keys := make([]string, 0, len(v.data))
	for k := range v.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		s := v.data[k]
		fmt.Fprintf(sb, "%s%s %s\n", v.name, s.labels.String(), formatFloat(s.value))
	}
}

// Counter is a monotonically increasing metric
type Counter struct{ *vec }

// NewCounter creates a new counter metric
func NewCounter(name, help string) *Counter {
	return &Counter{newVec(name, help)}
}

func (c *Counter) Name() string     { return c.name }
func (c *Counter) Help() string     { return c.help }
func (c *Counter) Type() MetricType { return TypeCounter }

// Inc increments the counter by 1
func (c *Counter) Inc(labels Labels) { c.add(labels, 1, false) }

// Add increments the counter; negative deltas are ignored
func (c *Counter) Add(labels Labels, delta float64) {
	if delta < 0 {
		return
	}
	c.add(labels, delta, false)
}

// Get returns the current counter value for labels
func (c *Counter) Get(labels Labels) float64 { return c.get(labels) }

func (c *Counter) Write(sb *strings.Builder) { c.write(sb, TypeCounter) }

// Gauge is a metric that can go up and down
type Gauge struct{ *vec }

// NewGauge creates a new gauge metric
func NewGauge(name, help string) *Gauge {
	return &Gauge{newVec(name, help)}
}

func (g *Gauge) Name() string     { return g.name }
func (g *Gauge) Help() string     { return g.help }
func (g *Gauge) Type() MetricType { return TypeGauge }

// Set sets the gauge to the given value
func (g *Gauge) Set(labels Labels, value float64) { g.add(labels, value, true) }

// Add adds the given value to the gauge
func (g *Gauge) Add(labels Labels, delta float64) { g.add(labels, delta, false) }

// Get returns the current gauge value for labels
func (g *Gauge) Get(labels Labels) float64 { return g.get(labels) }

func (g *Gauge) Write(sb *strings.Builder) { g.write(sb, TypeGauge) }

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Registry holds metrics in registration order
type Registry struct {
	mu      sync.RWMutex
	metrics map[string]Metric
	order   []string
}

// NewRegistry creates a new metrics registry
func NewRegistry() *Registry {
	return &Registry{metrics: make(map[string]Metric)}
}

// Register adds a metric to the registry
func (r *Registry) Register(metric Metric) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := metric.Name()
	if _, exists := r.metrics[name]; exists {
		return fmt.Errorf("metric %q already registered", name)
	}
	r.metrics[name] = metric
	r.order = append(r.order, name)
	return nil
}

// MustRegister adds a metric and panics on error
func (r *Registry) MustRegister(metric Metric) {
	if err := r.Register(metric); err != nil {
		panic(err)
	}
}

// Get returns a metric by name
func (r *Registry) Get(name string) Metric {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.metrics[name]
}

// Gather collects all metrics in Prometheus text format
func (r *Registry) Gather() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var sb strings.Builder
	for _, name := range r.order {
		r.metrics[name].Write(&sb)
	}
	return sb.String()
}

// WriteTo writes Gather's output to w.
func (r *Registry) WriteTo(w io.Writer) (int64, error) {
	n, err := io.WriteString(w, r.Gather())
	return int64(n), err
}
