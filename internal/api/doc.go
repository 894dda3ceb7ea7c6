// Package api hosts the optional ops listener that runs alongside a node's
// worker loop. Routes:
//   - GET /healthz for liveness.
//   - GET /readyz, ready once the browser session has started.
//   - GET /metrics for Prometheus scraping.
package api
