package pipeline

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/JakeFAU/content-orchestrator/internal/content"
)

const ellipsis = "..."

var (
	nonSlugRe   = regexp.MustCompile(`[^a-z0-9]+`)
	fenceRe     = regexp.MustCompile("(?m)^```[a-zA-Z]*\\s*$")
	metaLabelRe = regexp.MustCompile(`(?i)^\s*(meta\s*description|description)\s*:\s*`)
)

// Slugify lowercases title and joins its alphanumeric runs with dashes.
func Slugify(title string) string {
	s := strings.Trim(nonSlugRe.ReplaceAllString(strings.ToLower(title), "-"), "-")
	if len(s) > 80 {
		s = strings.Trim(s[:80], "-")
	}
	if s == "" {
		return "article"
	}
	return s
}

// TruncateMeta shortens s to at most limit runes, cutting at a word boundary
// and ending with an ellipsis.
func TruncateMeta(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	keep := limit - len(ellipsis)
	if keep <= 0 {
		return string([]rune(s)[:limit])
	}
	cut := string([]rune(s)[:keep])
	if i := strings.LastIndex(cut, " "); i > keep/2 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,;:.-") + ellipsis
}

// FallbackMeta derives a meta description from the topic description,
// or the title when the topic has none.
func FallbackMeta(topic content.Topic, limit int) string {
	src := strings.TrimSpace(topic.Description)
	if src == "" {
		src = topic.Title
	}
	return TruncateMeta(src, limit)
}

func cleanMeta(s string) string {
	s = stripFences(s)
	s = metaLabelRe.ReplaceAllString(s, "")
	s = strings.Join(strings.Fields(s), " ")
	return strings.Trim(s, `"'“”`)
}

func stripFences(s string) string {
	return strings.TrimSpace(fenceRe.ReplaceAllString(s, ""))
}
