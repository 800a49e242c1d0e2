package crawler

import (
	"errors"
	"fmt"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateFrontierSingleTarget(t *testing.T) {
	t.Parallel()

	tasks := GenerateFrontier("https://shoob.gg/", CrawlTarget{Tier: "2", Start: 1, End: 3})

	require.Equal(t, []PageTask{
		{Tier: "2", Page: 1, URL: "https://shoob.gg/cards?page=1&tier=2"},
		{Tier: "2", Page: 2, URL: "https://shoob.gg/cards?page=2&tier=2"},
		{Tier: "2", Page: 3, URL: "https://shoob.gg/cards?page=3&tier=2"},
	}, tasks)
}

func TestGenerateFrontierTargetOrderThenPageOrder(t *testing.T) {
	t.Parallel()

	tasks := GenerateFrontier("https://shoob.gg",
		CrawlTarget{Tier: "6", Start: 4, End: 5},
		CrawlTarget{Tier: "S", Start: 1, End: 1},
		CrawlTarget{Tier: "1", Start: 3, End: 2},
	)

	got := make([]string, 0, len(tasks))
	for _, task := range tasks {
		got = append(got, fmt.Sprintf("%s/%d", task.Tier, task.Page))
	}
	require.Equal(t, []string{"6/4", "6/5", "S/1"}, got)
	require.Equal(t, tasks, GenerateFrontier("https://shoob.gg",
		CrawlTarget{Tier: "6", Start: 4, End: 5},
		CrawlTarget{Tier: "S", Start: 1, End: 1},
		CrawlTarget{Tier: "1", Start: 3, End: 2},
	), "frontier must be deterministic")
}

func TestNormalizeTier(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"Tier 6":   "6",
		"2":        "2",
		"  Tier S": "S",
		"Tiered":   "Tiered",
	}
	for in, want := range cases {
		require.Equal(t, want, NormalizeTier(in), "input %q", in)
	}
}

func TestNormalizeCard(t *testing.T) {
	t.Parallel()

	card := NormalizeCard(Card{
		URL:    " https://shoob.gg/cards/info/abc ",
		Name:   ptr("  Rem "),
		Tier:   ptr("Tier 6"),
		Series: ptr("   "),
		Maker:  ptr("Card Maker: someone"),
	})

	require.Equal(t, "https://shoob.gg/cards/info/abc", card.URL)
	require.Equal(t, "Rem", *card.Name)
	require.Equal(t, "6", *card.Tier)
	require.Nil(t, card.Series)
	require.Nil(t, card.Img)
	require.Equal(t, "someone", *card.Maker)
}

func TestSeenSetClaimIsAtomic(t *testing.T) {
	t.Parallel()

	set := NewSeenSet("https://a", "https://a", "")
	require.Equal(t, 1, set.Len())
	require.False(t, set.Claim("https://a"))
	require.False(t, set.Claim(""))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if set.Claim("https://b") {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, wins)
	require.False(t, set.Claim("https://b"))
	require.Equal(t, 2, set.Len())
}

func TestCrawlResultCounters(t *testing.T) {
	t.Parallel()

	r := NewCrawlResult()
	r.AddCard(Card{URL: "a"}, false)
	r.AddCard(EmptyCard("b"), true)
	r.IndexPageDone(false)
	r.IndexPageDone(true)
	r.DuplicateSkipped()
	r.PersistFailed()

	s := r.Summary()
	require.Equal(t, 1, s.CardsScraped)
	require.Equal(t, 1, s.CardsFailed)
	require.Equal(t, 2, s.IndexPages)
	require.Equal(t, 1, s.IndexPagesFailed)
	require.Equal(t, 1, s.DuplicatesSkipped)
	require.Equal(t, 1, s.PersistFailures)
	require.Len(t, r.Cards(), 2)
}

func TestFetchErrorUnwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("deadline")
	err := fmt.Errorf("scrape: %w", &FetchError{URL: "https://x", Kind: FetchTimeout, Err: cause})

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, FetchTimeout, fetchErr.Kind)
	require.ErrorIs(t, err, cause)
	require.Equal(t, "fetch https://x: unexpected status 503",
		(&FetchError{URL: "https://x", Kind: FetchStatus, Status: 503}).Error())
}

func ptr(s string) *string {
	return &s
}

func TestCanonicalURL(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"HTTPS://Shoob.GG:443/cards/info/a#top": "https://shoob.gg/cards/info/a",
		"http://shoob.gg:80/cards/info/b":       "http://shoob.gg/cards/info/b",
		"https://shoob.gg/cards?tier=2&page=1":  "https://shoob.gg/cards?page=1&tier=2",
		"https://shoob.gg/cards/info/Rem":       "https://shoob.gg/cards/info/Rem",
	}
	for raw, want := range cases {
		u, err := url.Parse(raw)
		require.NoError(t, err)
		require.Equal(t, want, CanonicalURL(u), raw)
	}
}
