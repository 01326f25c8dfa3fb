// Package prommetrics implements the gateway metrics contract on Prometheus.
package prommetrics

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-tokengate/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder maps counter and histogram observations onto Prometheus vectors.
// The label set of a metric is pinned by its first observation: later calls
// drop unknown tags and fill missing ones with an empty value, since a
// Prometheus vector cannot change its label names after registration.
type Recorder struct {
	registry *prometheus.Registry

	mu         sync.Mutex
	counters   map[string]*counterEntry
	histograms map[string]*histogramEntry
}

type counterEntry struct {
	vec    *prometheus.CounterVec
	labels []string
}

type histogramEntry struct {
	vec    *prometheus.HistogramVec
	labels []string
}

func NewRecorder() *Recorder {
	return &Recorder{
		registry:   prometheus.NewRegistry(),
		counters:   make(map[string]*counterEntry),
		histograms: make(map[string]*histogramEntry),
	}
}

func (r *Recorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	if r == nil || value <= 0 {
		return
	}
	metric := sanitizeName(name)
	if metric == "" {
		return
	}

	r.mu.Lock()
	entry, ok := r.counters[metric]
	if !ok {
		labels := labelNames(tags)
		vec := prometheus.NewCounterVec(prometheus.CounterOpts{Name: metric}, labels)
		if err := r.registry.Register(vec); err != nil {
			r.mu.Unlock()
			return
		}
		entry = &counterEntry{vec: vec, labels: labels}
		r.counters[metric] = entry
	}
	r.mu.Unlock()

	entry.vec.With(labelValues(entry.labels, tags)).Add(float64(value))
}

func (r *Recorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	if r == nil {
		return
	}
	metric := sanitizeName(name)
	if metric == "" {
		return
	}

	r.mu.Lock()
	entry, ok := r.histograms[metric]
	if !ok {
		labels := labelNames(tags)
		vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: metric}, labels)
		if err := r.registry.Register(vec); err != nil {
			r.mu.Unlock()
			return
		}
		entry = &histogramEntry{vec: vec, labels: labels}
		r.histograms[metric] = entry
	}
	r.mu.Unlock()

	entry.vec.With(labelValues(entry.labels, tags)).Observe(value)
}

// Handler exposes the recorder's registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func labelNames(tags map[string]string) []string {
	names := make([]string, 0, len(tags))
	for key := range tags {
		if sanitized := sanitizeName(key); sanitized != "" {
			names = append(names, sanitized)
		}
	}
	sort.Strings(names)
	return names
}

func labelValues(labels []string, tags map[string]string) prometheus.Labels {
	sanitized := make(map[string]string, len(tags))
	for key, value := range tags {
		sanitized[sanitizeName(key)] = value
	}
	values := make(prometheus.Labels, len(labels))
	for _, label := range labels {
		values[label] = sanitized[label]
	}
	return values
}

// sanitizeName maps dotted gateway metric names onto the Prometheus charset.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	var builder strings.Builder
	builder.Grow(len(name))
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_', r == ':':
			builder.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				builder.WriteRune('_')
			}
			builder.WriteRune(r)
		default:
			builder.WriteRune('_')
		}
	}
	return builder.String()
}

var _ core.MetricsRecorder = (*Recorder)(nil)
