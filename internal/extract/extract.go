// Package extract pulls card fields and detail-page links out of parsed catalog pages.
package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/card-crawler/internal/crawler"
)

// Selectors used on catalog pages.
const (
	NameSelector     = "ol.breadcrumb-new li:last-child span[itemprop='name']"
	TierSelector     = "ol.breadcrumb-new li:nth-child(3) span[itemprop='name']"
	SeriesSelector   = "ol.breadcrumb-new li:nth-child(4) span[itemprop='name']"
	ImageSelector    = ".cardData img.img-fluid"
	MakerSelector    = "p:has(span.padr5)"
	CardLinkSelector = "a[href^='/cards/info/']"
)

// Card reads the card fields from a parsed detail page. Missing elements leave
// the matching field nil; it never fails.
func Card(pageURL string, doc *goquery.Document) crawler.Card {
	card := crawler.Card{URL: pageURL}
	if doc == nil {
		return card
	}
	card.Name = text(doc, NameSelector)
	card.Tier = text(doc, TierSelector)
	card.Series = text(doc, SeriesSelector)
	if src, ok := doc.Find(ImageSelector).First().Attr("src"); ok {
		card.Img = crawler.Nullable(src)
	}
	card.Maker = text(doc, MakerSelector)
	return crawler.NormalizeCard(card)
}

// CardFromHTML parses raw markup and extracts a card from it.
func CardFromHTML(pageURL string, html []byte) (crawler.Card, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return crawler.Card{}, fmt.Errorf("parse detail page %s: %w", pageURL, err)
	}
	return Card(pageURL, doc), nil
}

// CardLinks returns the distinct absolute detail-page URLs referenced by an
// index page, in document order. A page without any card link yields
// crawler.ErrNoCardLinks.
func CardLinks(baseURL string, html []byte) ([]string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url %q: %w", baseURL, err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse index page: %w", err)
	}

	anchors := doc.Find(CardLinkSelector)
	if anchors.Length() == 0 {
		return nil, crawler.ErrNoCardLinks
	}

	seen := make(map[string]struct{}, anchors.Length())
	links := make([]string, 0, anchors.Length())
	anchors.Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		abs := crawler.CanonicalURL(base.ResolveReference(ref))
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		links = append(links, abs)
	})
	return links, nil
}

func text(doc *goquery.Document, selector string) *string {
	sel := doc.Find(selector)
	if sel.Length() == 0 {
		return nil
	}
	return crawler.Nullable(sel.Text())
}
