// Package metrics exposes Prometheus collectors for the crawler.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlerRequestsTotal          *prometheus.CounterVec
	crawlerRowsAbandonedTotal     *prometheus.CounterVec
	crawlerItemsTotal             *prometheus.CounterVec
	crawlerDownloadsTotal         *prometheus.CounterVec
	crawlerDownloadBytesTotal     *prometheus.CounterVec
	crawlerPDFProcessedTotal      *prometheus.CounterVec
	crawlerPDFDurationSeconds     prometheus.Histogram
	crawlerExportRowsTotal        prometheus.Counter
	crawlerActivePDFWorkers       prometheus.Gauge
	crawlerRateLimitDelaysSeconds *prometheus.HistogramVec
	crawlerHeadlessPromotions     *prometheus.CounterVec
	httpRequestsTotal             *prometheus.CounterVec
	httpRequestDurationSeconds    *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlerRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_requests_total",
				Help: "Total number of provider or site requests, labeled by provider and outcome.",
			},
			[]string{"provider", "status"},
		)

		crawlerRowsAbandonedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_rows_abandoned_total",
				Help: "Input rows whose pagination chain stopped on an error.",
			},
			[]string{"provider"},
		)

		crawlerItemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_items_total",
				Help: "Result items discovered, labeled by provider.",
			},
			[]string{"provider"},
		)

		crawlerDownloadsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_downloads_total",
				Help: "File downloads, labeled by outcome (fetched, cached, failed, blocked).",
			},
			[]string{"status"},
		)

		crawlerDownloadBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_download_bytes_total",
				Help: "Bytes downloaded, labeled by site.",
			},
			[]string{"site"},
		)

		crawlerPDFProcessedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_pdf_processed_total",
				Help: "PDF post-processing outcomes (ok, no_text, unreadable).",
			},
			[]string{"status"},
		)

		crawlerPDFDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "crawler_pdf_duration_seconds",
				Help:    "Time spent post-processing one PDF.",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 15, 60},
			},
		)

		crawlerExportRowsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_export_rows_total",
				Help: "Rows written to the CSV export.",
			},
		)

		crawlerActivePDFWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_active_pdf_workers",
				Help: "Number of PDF workers currently processing a file.",
			},
		)

		crawlerRateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawler_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		crawlerHeadlessPromotions = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_headless_promotions_total",
				Help: "Site pages re-fetched with headless Chrome, labeled by site.",
			},
			[]string{"site"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of status API requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of status API latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRequest counts one provider or site request.
func ObserveRequest(provider, status string) {
	Init()
	crawlerRequestsTotal.WithLabelValues(provider, status).Inc()
}

// ObserveRowAbandoned counts a row whose chain stopped early.
func ObserveRowAbandoned(provider string) {
	Init()
	crawlerRowsAbandonedTotal.WithLabelValues(provider).Inc()
}

// ObserveItems counts discovered items.
func ObserveItems(provider string, n int) {
	Init()
	if n > 0 {
		crawlerItemsTotal.WithLabelValues(provider).Add(float64(n))
	}
}

// ObserveDownload counts one download attempt and its size.
func ObserveDownload(site, status string, bytesFetched int) {
	Init()
	crawlerDownloadsTotal.WithLabelValues(status).Inc()
	if bytesFetched > 0 {
		crawlerDownloadBytesTotal.WithLabelValues(SanitizeSite(site)).Add(float64(bytesFetched))
	}
}

// ObservePDF records one post-processing outcome.
func ObservePDF(status string, duration time.Duration) {
	Init()
	crawlerPDFProcessedTotal.WithLabelValues(status).Inc()
	crawlerPDFDurationSeconds.Observe(duration.Seconds())
}

// ObserveExportRow counts one CSV row.
func ObserveExportRow() {
	Init()
	crawlerExportRowsTotal.Inc()
}

// IncActivePDFWorkers increments the active PDF workers gauge.
func IncActivePDFWorkers() {
	Init()
	crawlerActivePDFWorkers.Inc()
}

// DecActivePDFWorkers decrements the active PDF workers gauge.
func DecActivePDFWorkers() {
	Init()
	crawlerActivePDFWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	crawlerRateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObservePromotion counts a page promoted to the headless renderer.
func ObservePromotion(site string) {
	Init()
	crawlerHeadlessPromotions.WithLabelValues(SanitizeSite(site)).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
