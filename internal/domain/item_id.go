package domain

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// DeriveItemID builds the cart id of a product from its display name.
// "Machine Learning Course" and "  machine learning   COURSE!" both map to "machine-learning-course".
func DeriveItemID(name string) string {
	decomposed := norm.NFKD.String(name)

	var b strings.Builder
	b.Grow(len(decomposed))

	pendingHyphen := false
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}

		r = unicode.ToLower(r)
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
			continue
		}

		pendingHyphen = true
	}

	return b.String()
}
