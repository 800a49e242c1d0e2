package crawler

import (
	"fmt"
	"net/url"
	"strings"
)

// GenerateFrontier expands targets into index-page tasks, in target order and
// then ascending page order. It performs no I/O and always yields the same
// sequence for the same input.
func GenerateFrontier(base string, targets ...CrawlTarget) []PageTask {
	base = strings.TrimRight(base, "/")
	total := 0
	for _, t := range targets {
		total += t.Pages()
	}
	tasks := make([]PageTask, 0, total)
	for _, t := range targets {
		for p := t.Start; p <= t.End; p++ {
			tasks = append(tasks, PageTask{
				Tier: t.Tier,
				Page: p,
				URL:  IndexPageURL(base, t.Tier, p),
			})
		}
	}
	return tasks
}

// IndexPageURL builds the listing URL for one tier page.
func IndexPageURL(base, tier string, page int) string {
	return fmt.Sprintf("%s/cards?page=%d&tier=%s", strings.TrimRight(base, "/"), page, url.QueryEscape(tier))
}
