// Package api hosts the optional operator HTTP server. Routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/studies/{study_id} for a stored record.
//   - POST /v1/run to start a harvest, GET /v1/runs/{run_id} for live progress
//     while it runs and its summary once finished.
package api
