package textclean

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/JakeFAU/content-orchestrator/internal/apperr"
)

var (
	blankRunRe     = regexp.MustCompile(`\n[ \t]*\n(?:[ \t]*\n)+`)
	blockRe        = regexp.MustCompile(`(?is)<(?:p|h[1-6]|li)\b[^>]*>.*?</(?:p|h[1-6]|li)>`)
	blockOpenRe    = regexp.MustCompile(`(?i)<(?:p|h[1-6]|li)\b`)
	emphasisMarkRe = regexp.MustCompile("[*_#`>~|]+")
	// A marker unit opens with the label, optionally bulleted or qualified,
	// and the label is followed by a separator or ends the unit.
	metaMarkerRe = regexp.MustCompile(`(?i)^\s*(?:[-•]\s*)?(?:(?:suggested|seo|recommended|proposed)\s+)?` +
		`meta[\s-]*description\s*(?:$|[:\-–—])`)
)

// DedupeSections walks chunks in order and removes every section whose
// normalised heading was already seen, in an earlier chunk or earlier in the
// same chunk. A section runs from its heading to the next heading or the end
// of the chunk.
func DedupeSections(chunks []string) []string {
	seen := make(map[string]struct{})
	out := make([]string, len(chunks))
	for i, chunk := range chunks {
		hs := scanHeadings(chunk)
		if len(hs) == 0 {
			out[i] = chunk
			continue
		}
		var b strings.Builder
		b.WriteString(chunk[:hs[0].start])
		for j, h := range hs {
			end := len(chunk)
			if j+1 < len(hs) {
				end = hs[j+1].start
			}
			if h.text != "" {
				if _, dup := seen[h.text]; dup {
					continue
				}
				seen[h.text] = struct{}{}
			}
			b.WriteString(chunk[h.start:end])
		}
		out[i] = b.String()
	}
	return out
}

// StripTopHeadings removes level-one headings; the title is rendered outside
// the body.
func StripTopHeadings(s string) string {
	hs := scanHeadings(s)
	var b strings.Builder
	prev := 0
	for _, h := range hs {
		if h.level != 1 {
			continue
		}
		b.WriteString(s[prev:h.start])
		prev = h.end
	}
	b.WriteString(s[prev:])
	return b.String()
}

// CollapseBlankLines reduces runs of blank lines to one and trims the result.
func CollapseBlankLines(s string) string {
	return strings.TrimSpace(blankRunRe.ReplaceAllString(s, "\n\n"))
}

// ScrubMetaDescription removes meta-description text the model leaked into the
// body. A unit is an HTML paragraph, heading or list item, or else a line
// without such blocks. It is dropped when its visible text starts with a
// "meta description" label. The function is idempotent.
func ScrubMetaDescription(s string) string {
	s = blockRe.ReplaceAllStringFunc(s, func(b string) string {
		if isMetaMarker(b) {
			return ""
		}
		return b
	})
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if !blockOpenRe.MatchString(line) && isMetaMarker(line) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

func isMetaMarker(unit string) bool {
	text := tagRe.ReplaceAllString(unit, " ")
	text = emphasisMarkRe.ReplaceAllString(text, " ")
	return metaMarkerRe.MatchString(text)
}

// Clean applies top-heading removal, blank-line collapsing and the meta
// description scrub to a finished body.
func Clean(s string) string {
	s = StripTopHeadings(s)
	s = CollapseBlankLines(s)
	s = ScrubMetaDescription(s)
	return CollapseBlankLines(s)
}

// CheckLength fails when the visible text of s is not longer than minChars.
func CheckLength(s string, minChars int) error {
	if utf8.RuneCountInString(PlainText(s)) > minChars {
		return nil
	}
	return apperr.Newf(apperr.CodeExecutionFailed, "combine chunks",
		"Combined article too short: %d bytes (minimum %d characters)", len(s), minChars)
}

// Combine deduplicates chunk sections, joins the chunks, cleans the result
// and enforces the length floor.
func Combine(chunks []string, minChars int) (string, error) {
	parts := DedupeSections(chunks)
	trimmed := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			trimmed = append(trimmed, p)
		}
	}
	article := Clean(strings.Join(trimmed, "\n\n"))
	// The scrub can shorten a multi-line heading into one seen before.
	article = CollapseBlankLines(DedupeSections([]string{article})[0])
	if err := CheckLength(article, minChars); err != nil {
		return "", fmt.Errorf("combine %d chunks: %w", len(chunks), err)
	}
	return article, nil
}

// WordCount counts whitespace-separated words of visible text.
func WordCount(s string) int {
	return len(strings.Fields(PlainText(s)))
}
