// Package api serves the crawl status endpoints while a run is in progress:
//   - GET /healthz for liveness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/run for live run counters.
package api
