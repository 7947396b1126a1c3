// Package extract turns raw fetched bytes into a title and plain text.
//
// Extraction is deliberately text-scan level: strip script/style blocks,
// strip the remaining markup, collapse whitespace. No DOM is built and no
// entity decoding happens beyond what a naive tag strip buys.
package extract

import (
	"regexp"
	"strings"
)

var (
	titleRe  = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	scriptRe = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script>`)
	styleRe  = regexp.MustCompile(`(?is)<style\b[^>]*>.*?</style>`)
	tagRe    = regexp.MustCompile(`(?s)<[^>]*>`)
	spaceRe  = regexp.MustCompile(`\s+`)
)

// Result holds the extracted parts of one page.
type Result struct {
	Title *string
	Text  string
}

// Page extracts title and plain text from a raw HTML body. maxLen caps the
// text length in runes; zero or negative means no cap. An empty Text means
// the page has no usable content and callers should skip it.
func Page(body string, maxLen int) Result {
	return Result{
		Title: Title(body),
		Text:  Text(body, maxLen),
	}
}

// Title returns the first title-like tag content, whitespace-normalized,
// or nil if absent or empty.
func Title(body string) *string {
	m := titleRe.FindStringSubmatch(body)
	if m == nil {
		return nil
	}
	title := normalizeSpace(m[1])
	if title == "" {
		return nil
	}
	return &title
}

// Text strips markup and collapses whitespace. Script and style blocks are
// removed wholesale before the generic tag strip.
func Text(body string, maxLen int) string {
	text := scriptRe.ReplaceAllString(body, " ")
	text = styleRe.ReplaceAllString(text, " ")
	text = tagRe.ReplaceAllString(text, " ")
	text = normalizeSpace(text)
	if maxLen > 0 {
		if runes := []rune(text); len(runes) > maxLen {
			text = strings.TrimSpace(string(runes[:maxLen]))
		}
	}
	return text
}

// Excerpt returns the leading n runes of text, for preview payloads.
func Excerpt(text string, n int) string {
	runes := []rune(text)
	if n <= 0 || len(runes) <= n {
		return text
	}
	return strings.TrimSpace(string(runes[:n]))
}

func normalizeSpace(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}
