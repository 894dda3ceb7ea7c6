// Package metrics exposes Prometheus collectors for a linkplayer run.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	linksTotal           *prometheus.CounterVec
	linkDurationSeconds  *prometheus.HistogramVec
	playAttemptsTotal    *prometheus.CounterVec
	driverStartsTotal    *prometheus.CounterVec
	screenshotsTotal     prometheus.Counter
	screenshotBytesTotal prometheus.Counter
	linksRemaining       prometheus.Gauge
	opsRequestsTotal     *prometheus.CounterVec
	opsRequestSeconds    *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		linksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linkplayer_links_total",
				Help: "Total number of links processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		linkDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "linkplayer_link_duration_seconds",
				Help:    "Histogram of wall time spent per link, labeled by outcome.",
				Buckets: []float64{1, 5, 10, 20, 30, 45, 60, 90},
			},
			[]string{"outcome"},
		)

		playAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linkplayer_play_attempts_total",
				Help: "Total number of play attempts, labeled by the method that succeeded.",
			},
			[]string{"method"},
		)

		driverStartsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linkplayer_driver_starts_total",
				Help: "Total number of browser start attempts, labeled by result.",
			},
			[]string{"result"},
		)

		screenshotsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "linkplayer_screenshots_total",
				Help: "Total number of screenshots stored.",
			},
		)

		screenshotBytesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "linkplayer_screenshot_bytes_total",
				Help: "Total number of screenshot bytes stored.",
			},
		)

		linksRemaining = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "linkplayer_links_remaining",
				Help: "Number of links in this node's partition not yet processed.",
			},
		)

		opsRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linkplayer_ops_requests_total",
				Help: "Total number of ops endpoint requests, labeled by method, route and status code.",
			},
			[]string{"method", "route", "code"},
		)

		opsRequestSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "linkplayer_ops_request_duration_seconds",
				Help:    "Histogram of ops endpoint latencies.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest records one request served by the ops listener.
func ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	Init()
	opsRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	opsRequestSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveLink records one finished link.
func ObserveLink(outcome string, duration time.Duration) {
	Init()
	linksTotal.WithLabelValues(outcome).Inc()
	linkDurationSeconds.WithLabelValues(outcome).Observe(duration.Seconds())
}

// ObservePlay records which play method (if any) worked.
func ObservePlay(method string) {
	Init()
	playAttemptsTotal.WithLabelValues(method).Inc()
}

// ObserveDriverStart records a browser start attempt.
func ObserveDriverStart(ok bool) {
	Init()
	result := "error"
	if ok {
		result = "ok"
	}
	driverStartsTotal.WithLabelValues(result).Inc()
}

// ObserveScreenshot records a stored screenshot of size bytes.
func ObserveScreenshot(size int) {
	Init()
	screenshotsTotal.Inc()
	if size > 0 {
		screenshotBytesTotal.Add(float64(size))
	}
}

// SetLinksRemaining sets the remaining-links gauge.
func SetLinksRemaining(n int) {
	Init()
	linksRemaining.Set(float64(n))
}

// Push sends the default registry to a Pushgateway under job, grouped by node.
func Push(ctx context.Context, gatewayURL, job string, node int) error {
	Init()
	err := push.New(gatewayURL, job).
		Gatherer(prometheus.DefaultGatherer).
		Grouping("node", strconv.Itoa(node)).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
