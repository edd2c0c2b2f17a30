package prompt

import (
	"regexp"
	"strings"
)

// Chunk thresholds by requested word count.
const (
	singleChunkMaxWords = 1000
	twoChunkMaxWords    = 2000
	maxChunks           = 3
)

// Plan describes how an article is split into sequential generation calls.
type Plan struct {
	Chunks        int
	WordsPerChunk int
}

// PlanChunks returns 1 chunk up to 1000 words, 2 up to 2000, and 3 beyond.
func PlanChunks(wordCount int) Plan {
	if wordCount <= 0 {
		return Plan{Chunks: 1}
	}
	n := maxChunks
	switch {
	case wordCount <= singleChunkMaxWords:
		n = 1
	case wordCount <= twoChunkMaxWords:
		n = 2
	}
	return Plan{Chunks: n, WordsPerChunk: ceilDiv(wordCount, n)}
}

// PartitionOutline returns the outline sections owned by chunk index of
// total. Sections are split evenly in order, ceil(len/total) per chunk, and
// trailing chunks may own none.
func PartitionOutline(outline []string, total, index int) []string {
	if total <= 0 || index < 0 || index >= total || len(outline) == 0 {
		return nil
	}
	per := ceilDiv(len(outline), total)
	start := index * per
	if start >= len(outline) {
		return nil
	}
	end := min(start+per, len(outline))
	out := make([]string, end-start)
	copy(out, outline[start:end])
	return out
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

var (
	htmlParagraphRe = regexp.MustCompile(`(?is)<p\b[^>]*>.*?</p>`)
	blankLineRe     = regexp.MustCompile(`\n[ \t]*\n`)
)

// LastParagraphs returns up to n trailing paragraphs of text, joined by blank
// lines. HTML paragraphs are preferred when present.
func LastParagraphs(text string, n int) string {
	if n <= 0 || strings.TrimSpace(text) == "" {
		return ""
	}
	paras := htmlParagraphRe.FindAllString(text, -1)
	if len(paras) == 0 {
		for _, p := range blankLineRe.Split(text, -1) {
			if p = strings.TrimSpace(p); p != "" {
				paras = append(paras, p)
			}
		}
	}
	if len(paras) > n {
		paras = paras[len(paras)-n:]
	}
	return strings.Join(paras, "\n\n")
}
