package crawler

import "strings"

const (
	tierPrefix  = "Tier "
	makerPrefix = "Card Maker:"
)

// NormalizeCard trims every field, turns blanks into nil, strips the "Tier "
// prefix from the tier and the "Card Maker:" label from the maker. Every card
// goes through here regardless of which fetch strategy produced it.
func NormalizeCard(c Card) Card {
	c.URL = strings.TrimSpace(c.URL)
	c.Name = normalizeField(c.Name, "")
	c.Tier = normalizeField(c.Tier, tierPrefix)
	c.Series = normalizeField(c.Series, "")
	c.Img = normalizeField(c.Img, "")
	c.Maker = normalizeField(c.Maker, makerPrefix)
	return c
}

// NormalizeTier strips a leading "Tier " label: "Tier 6" becomes "6" and
// "2" stays "2".
func NormalizeTier(raw string) string {
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), tierPrefix))
}

// NormalizeMaker removes the "Card Maker:" label from the maker paragraph.
func NormalizeMaker(raw string) string {
	return strings.TrimSpace(strings.Replace(raw, makerPrefix, "", 1))
}

// Nullable returns nil for blank strings and a pointer to the trimmed value otherwise.
func Nullable(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func normalizeField(v *string, label string) *string {
	if v == nil {
		return nil
	}
	switch label {
	case tierPrefix:
		return Nullable(NormalizeTier(*v))
	case makerPrefix:
		return Nullable(NormalizeMaker(*v))
	default:
		return Nullable(*v)
	}
}
