package engine

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

const maxDescriptionRunes = 600

var stripAll = bluemonday.StrictPolicy()

// cleanDescription turns page or summary text into plain prose: markup
// removed, entities decoded, whitespace collapsed, bounded length.
func cleanDescription(raw string) string {
	text := html.UnescapeString(stripAll.Sanitize(raw))
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= maxDescriptionRunes {
		return text
	}

	runes := []rune(text)[:maxDescriptionRunes]
	cut := string(runes)
	if i := strings.LastIndexAny(cut, ".!?"); i > maxDescriptionRunes/2 {
		return cut[:i+1]
	}
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, ",;:-") + "…"
}
