package fetch

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/content-orchestrator/internal/content"
)

const minParagraphChars = 40

// Extract reduces an HTML document to the fields used as article reference
// material. Text is capped at maxChars runes when maxChars > 0.
func Extract(url string, body []byte, maxChars int) (content.Reference, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return content.Reference{}, fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style, noscript, nav, footer, header, aside, form").Remove()

	ref := content.Reference{URL: url}
	ref.Title = collapse(doc.Find("title").First().Text())
	if ref.Title == "" {
		ref.Title = collapse(doc.Find("h1").First().Text())
	}

	doc.Find("h1, h2, h3").Each(func(_ int, s *goquery.Selection) {
		if text := collapse(s.Text()); text != "" {
			ref.Headings = append(ref.Headings, text)
		}
	})

	var sb strings.Builder
	doc.Find("p, li").Each(func(_ int, s *goquery.Selection) {
		text := collapse(s.Text())
		if len(text) < minParagraphChars {
			return
		}
		if goquery.NodeName(s) == "p" {
			ref.Paragraphs = append(ref.Paragraphs, text)
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(text)
	})
	ref.Text = truncateRunes(sb.String(), maxChars)
	return ref, nil
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return strings.TrimSpace(string(runes[:n]))
}
