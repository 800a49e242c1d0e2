package crawler

import (
	"net/url"
	"strings"
)

// CanonicalURL returns the identity form of a card URL. Scheme and host are
// lower-cased, default ports and fragments dropped and query parameters sorted,
// so equivalent links claim the same seen-set entry.
func CanonicalURL(u *url.URL) string {
	c := *u
	c.Scheme = strings.ToLower(c.Scheme)
	c.Host = strings.ToLower(c.Host)
	switch {
	case c.Scheme == "http" && strings.HasSuffix(c.Host, ":80"):
		c.Host = strings.TrimSuffix(c.Host, ":80")
	case c.Scheme == "https" && strings.HasSuffix(c.Host, ":443"):
		c.Host = strings.TrimSuffix(c.Host, ":443")
	}
	c.Fragment = ""
	c.RawFragment = ""
	if c.RawQuery != "" {
		c.RawQuery = c.Query().Encode()
	}
	return c.String()
}
