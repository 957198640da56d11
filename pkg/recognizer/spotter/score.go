package spotter

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

// normalize lower-cases s and strips whitespace and punctuation so that
// "Fang ru!" and "fangru" compare equal.
func normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// score rates how well heard matches phrase in [0, 1]. A phrase contained
// verbatim in the utterance scores 1.
func score(heard, phrase string) float64 {
	h, p := normalize(heard), normalize(phrase)
	if h == "" || p == "" {
		return 0
	}
	if strings.Contains(h, p) {
		return 1
	}
	return matchr.JaroWinkler(h, p, false)
}
