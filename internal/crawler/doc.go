// Package crawler holds the card crawler's domain model: cards, crawl targets
// and page tasks, the frontier generator, the seen set that gates detail
// fetches, the per-run result accumulator, and the interfaces the engine
// needs from fetchers, persisters, publishers and pacers.
package crawler
