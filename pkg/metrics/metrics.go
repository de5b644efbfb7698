// Package metrics counts what a retrieval run did: platform requests, items
// collected, retries, session refreshes and phase outcomes.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "igengage"

// Collector implements instagram.RequestObserver and retrieval.Recorder on a
// private registry.
type Collector struct {
	registry        *prometheus.Registry
	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	itemsTotal      *prometheus.CounterVec
	retriesTotal    *prometheus.CounterVec
	refreshesTotal  *prometheus.CounterVec
	phasesTotal     *prometheus.CounterVec
	phaseDuration   *prometheus.HistogramVec
}

// NewCollector registers every metric on a fresh registry
func NewCollector() (*Collector, error) {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "platform",
			Name:      "requests_total",
			Help:      "Platform API requests by endpoint and HTTP status (0 for transport failures).",
		}, []string{"endpoint", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "platform",
			Name:      "request_duration_seconds",
			Help:      "Latency of platform API requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		itemsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "items_total",
			Help:      "Interactions collected per phase.",
		}, []string{"phase"}),
		retriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "retries_total",
			Help:      "Phase restarts and post fetch retries by reason.",
		}, []string{"phase", "reason"}),
		refreshesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "refreshes_total",
			Help:      "Session refreshes after expiry by result.",
		}, []string{"result"}),
		phasesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "phases_total",
			Help:      "Finished phases by outcome.",
		}, []string{"phase", "outcome"}),
		phaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "phase_duration_seconds",
			Help:      "Wall time of a phase including pacing and backoff.",
			Buckets:   prometheus.ExponentialBuckets(10, 2, 10),
		}, []string{"phase"}),
	}

	for _, col := range []prometheus.Collector{
		c.requestTotal, c.requestDuration, c.itemsTotal, c.retriesTotal,
		c.refreshesTotal, c.phasesTotal, c.phaseDuration,
	} {
		if err := c.registry.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Registry exposes the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveRequest records one platform request
func (c *Collector) ObserveRequest(endpoint string, status int, d time.Duration) {
	label := EndpointLabel(endpoint)
	c.requestTotal.WithLabelValues(label, strconv.Itoa(status)).Inc()
	c.requestDuration.WithLabelValues(label).Observe(d.Seconds())
}

// ItemFetched counts one collected interaction
func (c *Collector) ItemFetched(phase string) {
	c.itemsTotal.WithLabelValues(phase).Inc()
}

// Retry counts a restart or retry
func (c *Collector) Retry(phase, reason string) {
	c.retriesTotal.WithLabelValues(phase, reason).Inc()
}

// Refresh counts a session refresh attempt
func (c *Collector) Refresh(ok bool) {
	result := "failure"
	if ok {
		result = "success"
	}
	c.refreshesTotal.WithLabelValues(result).Inc()
}

// PhaseFinished records a phase outcome and its duration
func (c *Collector) PhaseFinished(phase, outcome string, d time.Duration) {
	c.phasesTotal.WithLabelValues(phase, outcome).Inc()
	c.phaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// WriteToTextfile dumps the registry in the text exposition format, for
// collection by a node exporter textfile collector.
func (c *Collector) WriteToTextfile(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create metrics directory: %w", err)
		}
	}
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}

// EndpointLabel replaces numeric path segments so media ids do not become labels
func EndpointLabel(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if part == "" {
			continue
		}
		if _, err := strconv.ParseUint(part, 10, 64); err == nil {
			parts[i] = ":id"
		}
	}
	return strings.Join(parts, "/")
}
