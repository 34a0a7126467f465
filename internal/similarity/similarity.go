// Package similarity holds the name-matching helpers shared by the resolver
// and the knowledge-graph matcher.
package similarity

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// JaccardThreshold is the token overlap at which two names are the same place.
const JaccardThreshold = 0.6

// stopwords carry no identity ("The Old Mill" vs "Old Mill").
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "of": true, "at": true,
	"de": true, "la": true, "le": true, "el": true,
}

// Normalize lowercases s, folds diacritics, turns punctuation into spaces and
// collapses whitespace. "Café  d'Or!" becomes "cafe d or".
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(folded)

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Tokens returns the distinct normalized tokens of s without stopwords.
func Tokens(s string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, tok := range strings.Fields(Normalize(s)) {
		if stopwords[tok] || seen[tok] {
			continue
		}
		seen[tok] = true
		out = append(out, tok)
	}
	return out
}

// Jaccard is |A∩B| / |A∪B| over the token sets of a and b.
func Jaccard(a, b string) float64 {
	ta, tb := Tokens(a), Tokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	inter := intersection(ta, tb)
	union := len(ta) + len(tb) - inter
	return float64(inter) / float64(union)
}

// Dice is 2|A∩B| / (|A|+|B|) over the token sets of a and b.
func Dice(a, b string) float64 {
	ta, tb := Tokens(a), Tokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	return 2 * float64(intersection(ta, tb)) / float64(len(ta)+len(tb))
}

func intersection(a, b []string) int {
	set := make(map[string]bool, len(a))
	for _, t := range a {
		set[t] = true
	}
	n := 0
	for _, t := range b {
		if set[t] {
			n++
		}
	}
	return n
}

// Contains reports whether one normalized name contains the other on token
// boundaries ("Spier" in "Spier Wine Farm", not "pier").
func Contains(a, b string) bool {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return false
	}
	return strings.Contains(" "+na+" ", " "+nb+" ") || strings.Contains(" "+nb+" ", " "+na+" ")
}

// FuzzyMatch reports whether a and b name the same thing: equal after
// normalization, one contained in the other, or token Jaccard ≥ 0.6.
func FuzzyMatch(a, b string) bool {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return false
	}
	if na == nb || Contains(a, b) {
		return true
	}
	return Jaccard(a, b) >= JaccardThreshold
}

// Score grades how well a matches b in [0, 1]: 1 for an exact normalized
// match, 0.85 for containment, otherwise token Jaccard.
func Score(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	switch {
	case na == "" || nb == "":
		return 0
	case na == nb:
		return 1
	case Contains(a, b):
		return 0.85
	}
	return Jaccard(a, b)
}
