// Package api hosts the service's HTTP surface. Routes:
//   - GET /healthz and /readyz for liveness and readiness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/cards?limit=&offset= to page through stored cards.
//   - GET /v1/cards/search?name= for a case-insensitive exact name lookup.
//   - GET /v1/runs/last for the summary of the most recent crawl pass.
package api
