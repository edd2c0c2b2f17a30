// Package textclean normalises generated article text: it finds headings,
// removes sections whose headings repeat, strips top-level headings, scrubs
// leaked meta descriptions and enforces a minimum length.
package textclean

import (
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	htmlHeadingRe     = regexp.MustCompile(`(?is)<h([1-6])\b[^>]*>(.*?)</h[1-6]\s*>`)
	markdownHeadingRe = regexp.MustCompile(`(?m)^[ \t]*(#{1,6})[ \t]+([^\n]*?)[ \t#]*$`)
	whitespaceRe      = regexp.MustCompile(`\s+`)
	tagRe             = regexp.MustCompile(`<[^>]*>`)
)

// heading is one heading occurrence with its byte span.
type heading struct {
	start, end int
	level      int
	text       string
}

// scanHeadings returns HTML and markdown headings in document order.
func scanHeadings(s string) []heading {
	var out []heading
	for _, m := range htmlHeadingRe.FindAllStringSubmatchIndex(s, -1) {
		out = append(out, heading{
			start: m[0],
			end:   m[1],
			level: int(s[m[2]] - '0'),
			text:  NormalizeHeading(s[m[4]:m[5]]),
		})
	}
	for _, m := range markdownHeadingRe.FindAllStringSubmatchIndex(s, -1) {
		out = append(out, heading{
			start: m[0],
			end:   m[1],
			level: m[3] - m[2],
			text:  NormalizeHeading(s[m[4]:m[5]]),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].start < out[j].start })
	return dropOverlaps(out)
}

// dropOverlaps removes markdown matches that fall inside an HTML heading.
func dropOverlaps(hs []heading) []heading {
	out := hs[:0]
	lastEnd := -1
	for _, h := range hs {
		if h.start < lastEnd {
			continue
		}
		out = append(out, h)
		lastEnd = h.end
	}
	return out
}

// NormalizeHeading lowercases heading text, removes markup and collapses
// whitespace so reworded-only-by-formatting headings compare equal.
func NormalizeHeading(s string) string {
	s = PlainText(s)
	s = strings.Trim(s, " \t*_#:")
	return strings.ToLower(strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " ")))
}

// ExtractHeadings returns the normalised text of every heading in document
// order, skipping empty ones.
func ExtractHeadings(s string) []string {
	var out []string
	for _, h := range scanHeadings(s) {
		if h.text != "" {
			out = append(out, h.text)
		}
	}
	return out
}

// PlainText returns the visible text of an HTML or markdown fragment with
// whitespace collapsed.
func PlainText(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	text := s
	if strings.ContainsAny(s, "<&") {
		// Pad tags so adjacent block elements do not fuse their words.
		padded := tagRe.ReplaceAllString(s, " $0 ")
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(padded))
		if err == nil {
			text = doc.Text()
		} else {
			text = tagRe.ReplaceAllString(s, " ")
		}
	}
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
}
