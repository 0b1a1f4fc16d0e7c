// Package textutil provides the text cleanup shared by every scraper and
// the enhancement stage.
package textutil

import (
	"html"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	tagPattern          = regexp.MustCompile(`<[^>]+>`)
	whitespacePattern   = regexp.MustCompile(`\s+`)
	emptyBracketPattern = regexp.MustCompile(`\[\s*\]|\(\s*\)`)

	titleCaser = cases.Title(language.English)
)

// Clean normalizes scraped text: HTML entities are decoded, tags stripped,
// whitespace collapsed to single spaces, and empty bracket artifacts
// removed. Returns the empty string when nothing survives.
func Clean(text string) string {
	if text == "" {
		return ""
	}

	text = html.UnescapeString(text)
	text = tagPattern.ReplaceAllString(text, "")
	text = whitespacePattern.ReplaceAllString(text, " ")
	text = emptyBracketPattern.ReplaceAllString(text, "")

	return strings.TrimSpace(text)
}

// Truncate shortens text to at most max characters, replacing the tail with
// an ellipsis. The cut lands on a rune boundary so multi-byte text never
// becomes invalid UTF-8. Text already within the limit is returned
// unchanged.
func Truncate(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max || max < 4 {
		return text
	}
	return string(runes[:max-3]) + "..."
}

// TitleCase capitalizes the first letter of each word, matching the
// formatting applied to categories before output.
func TitleCase(text string) string {
	return titleCaser.String(text)
}
