// Package metrics provides a small Prometheus-text-format collector so the
// bot can expose counters and latency histograms without pulling in the
// full client library.
package metrics

import (
	"fmt"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Collector is the process-wide collector instance.
var Collector = NewCollector()

// MetricsCollector aggregates counters and histograms.
type MetricsCollector struct {
	mu         sync.Mutex
	counters   map[string]*Counter
	histograms map[string]*Histogram
	startTime  time.Time
}

func NewCollector() *MetricsCollector {
	return &MetricsCollector{
		counters:   make(map[string]*Counter),
		histograms: make(map[string]*Histogram),
		startTime:  time.Now(),
	}
}

// Counter is a monotonically increasing counter.
type Counter struct {
	name  string
	help  string
	value atomic.Int64
}

func (c *Counter) Inc()         { c.value.Add(1) }
func (c *Counter) Add(n int64)  { c.value.Add(n) }
func (c *Counter) Value() int64 { return c.value.Load() }

// Histogram tracks the distribution of observed values.
type Histogram struct {
	name    string
	help    string
	mu      sync.Mutex
	count   int64
	sum     float64
	bounds  []float64
	buckets []int64
}

// Observe records a value.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i, le := range h.bounds {
		if v <= le {
			h.buckets[i]++
		}
	}
}

// Counter returns or creates a counter with the given name.
func (c *MetricsCollector) Counter(name, help string) *Counter {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.counters[name]; ok {
		return existing
	}
	ctr := &Counter{name: name, help: help}
	c.counters[name] = ctr
	return ctr
}

// Histogram returns or creates a histogram with the given bucket bounds.
func (c *MetricsCollector) Histogram(name, help string, bounds []float64) *Histogram {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.histograms[name]; ok {
		return existing
	}
	sort.Float64s(bounds)
	h := &Histogram{
		name:    name,
		help:    help,
		bounds:  bounds,
		buckets: make([]int64, len(bounds)),
	}
	c.histograms[name] = h
	return h
}

// Handler renders all metrics in Prometheus text exposition format.
func (c *MetricsCollector) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		var sb strings.Builder
		fmt.Fprintf(&sb, "# HELP expensebot_uptime_seconds Time since start in seconds\n")
		fmt.Fprintf(&sb, "# TYPE expensebot_uptime_seconds gauge\n")
		fmt.Fprintf(&sb, "expensebot_uptime_seconds %d\n\n", int64(time.Since(c.startTime).Seconds()))

		c.mu.Lock()
		counters := make([]*Counter, 0, len(c.counters))
		for _, ctr := range c.counters {
			counters = append(counters, ctr)
		}
		histograms := make([]*Histogram, 0, len(c.histograms))
		for _, h := range c.histograms {
			histograms = append(histograms, h)
		}
		c.mu.Unlock()

		sort.Slice(counters, func(i, j int) bool { return counters[i].name < counters[j].name })
		sort.Slice(histograms, func(i, j int) bool { return histograms[i].name < histograms[j].name })

		for _, ctr := range counters {
			fmt.Fprintf(&sb, "# HELP %s %s\n", ctr.name, ctr.help)
			fmt.Fprintf(&sb, "# TYPE %s counter\n", ctr.name)
			fmt.Fprintf(&sb, "%s %d\n", ctr.name, ctr.Value())
		}

		for _, h := range histograms {
			h.mu.Lock()
			fmt.Fprintf(&sb, "# HELP %s %s\n", h.name, h.help)
			fmt.Fprintf(&sb, "# TYPE %s histogram\n", h.name)
			for i, le := range h.bounds {
				label := fmt.Sprintf("%g", le)
				if math.IsInf(le, 1) {
					label = "+Inf"
				}
				fmt.Fprintf(&sb, "%s_bucket{le=%q} %d\n", h.name, label, h.buckets[i])
			}
			fmt.Fprintf(&sb, "%s_count %d\n", h.name, h.count)
			fmt.Fprintf(&sb, "%s_sum %f\n", h.name, h.sum)
			h.mu.Unlock()
		}

		fmt.Fprint(w, sb.String())
	}
}

// Pre-defined metrics used across the application.
var (
	TurnsTotal            = Collector.Counter("expensebot_turns_total", "Total turns processed")
	TurnFailures          = Collector.Counter("expensebot_turn_failures_total", "Turns that ended in an error result")
	ModelRequestsTotal    = Collector.Counter("expensebot_model_requests_total", "Total LLM API requests")
	CatalogRequestsTotal  = Collector.Counter("expensebot_catalog_requests_total", "Total catalog delegation requests")
	ImageDownloads        = Collector.Counter("expensebot_image_downloads_total", "Total attachment image downloads")
	ImageDownloadFailures = Collector.Counter("expensebot_image_download_failures_total", "Attachment image downloads that failed")
	DirectiveParseErrors  = Collector.Counter("expensebot_directive_parse_errors_total", "Delegation directives that failed to parse")

	ModelLatency = Collector.Histogram("expensebot_model_latency_seconds", "LLM request latency in seconds",
		[]float64{0.5, 1, 2, 5, 10, 30, 60, 120})
	CatalogLatency = Collector.Histogram("expensebot_catalog_latency_seconds", "Catalog request latency in seconds",
		[]float64{0.5, 1, 2, 5, 10, 30, 60, 120})
)
