// Package main hosts the linkplayer entrypoint.
//
// Architecture overview:
//   - Configuration: internal/config loads defaults, an optional YAML file and the environment through Viper. The
//     CI variables LINKS_URL, HEADLESS, PROXY, CIRCLE_NODE_INDEX and CIRCLE_NODE_TOTAL are read by their bare
//     names; every other key is available as LINKPLAYER_<SECTION>_<KEY>.
//   - Link list: internal/links performs one Colly GET against LINKS_URL and keeps the trimmed, non-empty lines.
//     A failed fetch is logged and treated as an empty list.
//   - Partitioning: internal/partition hands node i of n the slice [i*per, i*per+per) with per = max(1, len/n);
//     the last node absorbs the remainder. An empty share ends the run before Chrome starts.
//   - Worker loop: internal/worker starts one Chromedp session (three attempts, constant backoff) and visits each
//     link in order: navigate, wait, scroll, click play (XPath, then a script fallback), watch, screenshot, cool
//     down. Failures are per link; the loop keeps going and the browser is always released.
//   - Sinks: screenshots go to the local directory, GCS or memory. Each visit is logged and optionally written to
//     Postgres; the run summary is optionally published to Pub/Sub. Prometheus collectors can be scraped from the
//     ops listener or pushed to a Pushgateway when the run ends.
//
// Operational notes:
//   - Exit status is non-zero only for configuration or initialization errors.
//   - SIGINT/SIGTERM cancel the run between steps; waits are cancellable and the browser is closed on the way out.
//   - Parallelism comes from CI nodes; one process drives one browser.
//
// Quick checklist:
//   - Run locally: go run ./cmd/linkplayer --config linkplayer.yaml (or rely solely on env overrides).
//   - Headed debugging: HEADLESS=false LINKPLAYER_LOGGING_DEVELOPMENT=true.
//   - Ops listener: LINKPLAYER_OPS_LISTEN_ADDR=:8080 exposes /healthz, /readyz and /metrics during the run.
package main
