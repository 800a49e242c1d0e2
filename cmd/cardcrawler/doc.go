// Package main hosts the card crawler entrypoint.
//
// Architecture overview:
//   - Frontier: crawler.tiers expands into index-page URLs ({base}/cards?page=N&tier=T), filled into a closed
//     in-memory queue at the start of every pass.
//   - Worker pool: crawler.concurrency workers drain the queue. Each worker fetches an index page, extracts card
//     links, claims every unseen link in the shared seen set and fetches the detail page. Pacing between index
//     pages and between detail pages is per worker.
//   - Fetch strategies: "proxy" issues one GET through a rendering proxy (or directly when no endpoint is set) via
//     colly; "headless" drives a shared Chrome through chromedp, one tab per fetch, bounded by max_parallel.
//   - Persistence: jsonbin, gcs and local keep the whole collection as one JSON array, loaded at start and written
//     once at the end of a pass. postgres and memory upsert each card as it is scraped. Every backend except local
//     can mirror to storage.mirror_path.
//   - HTTP surface: /healthz and /readyz keep the process alive on hosts that require a listener; /metrics exports
//     Prometheus counters; /v1/cards, /v1/cards/search and /v1/runs/last expose the stored cards and the last run.
//
// Operational notes:
//   - crawler.interval repeats the pass; 0 runs once. With the server enabled the process keeps serving after
//     the last pass until SIGINT/SIGTERM.
//   - Shutdown cancels workers; scraped cards are still flushed before exit.
//
// Quick checklist:
//   - Configure env vars with the CARDS_ prefix (CARDS_CRAWLER_CONCURRENCY, CARDS_STORAGE_KIND,
//     CARDS_STORAGE_JSONBIN_MASTER_KEY, CARDS_FETCHER_PROXY_API_KEY, ...). PORT overrides server.port.
//   - Run locally: go run ./cmd/cardcrawler -config config.yaml
package main
