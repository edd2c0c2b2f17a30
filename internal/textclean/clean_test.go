package textclean

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/content-orchestrator/internal/apperr"
)

func TestDedupeSectionsAcrossChunks(t *testing.T) {
	t.Parallel()

	chunks := []string{
		"<p>intro</p>\n<h2>Benefits</h2>\n<p>first benefits</p>\n<h2>Costs</h2>\n<p>costs</p>",
		"<h2>benefits</h2>\n<p>repeated benefits</p>\n<h2>Installation</h2>\n<p>install</p>",
		"## Costs\nrepeat\n<h2>Installation </h2><p>again</p>\n<h2>FAQ</h2><p>q</p>",
	}
	got := DedupeSections(chunks)

	require.Contains(t, got[0], "first benefits")
	require.NotContains(t, got[1], "repeated benefits")
	require.Contains(t, got[1], "install")
	require.Equal(t, "<h2>FAQ</h2><p>q</p>", got[2])
}

func TestDedupeSectionsWithinChunk(t *testing.T) {
	t.Parallel()

	got := DedupeSections([]string{"<h2>A</h2><p>1</p><h2>B</h2><p>2</p><h2>a</h2><p>3</p>"})
	require.Equal(t, "<h2>A</h2><p>1</p><h2>B</h2><p>2</p>", got[0])
}

func TestStripTopHeadings(t *testing.T) {
	t.Parallel()

	in := "<h1>Title</h1>\n<p>a</p>\n# Markdown Title\n<h2>Keep</h2>"
	require.Equal(t, "\n<p>a</p>\n\n<h2>Keep</h2>", StripTopHeadings(in))
}

func TestCollapseBlankLines(t *testing.T) {
	t.Parallel()

	require.Equal(t, "a\n\nb\n\nc", CollapseBlankLines("\n\na\n\n\n\nb\n \n\t\n\nc\n\n"))
}

func TestScrubMetaDescriptionShapes(t *testing.T) {
	t.Parallel()

	shapes := []string{
		"Meta Description: Learn how heat pumps work.",
		"<p>Meta description: Learn how heat pumps work.</p>",
		"**Meta Description:** Learn how heat pumps work.",
		"<p><strong>Meta Description</strong>: Learn how.</p>",
		"META_DESCRIPTION: Learn how heat pumps work.",
		"### Meta Description",
		"*meta-description*: short text",
		"<em>Suggested meta description</em> - Learn more",
	}
	for _, shape := range shapes {
		t.Run(shape, func(t *testing.T) {
			t.Parallel()
			in := "<h2>Heat pumps</h2>\n<p>Body.</p>\n" + shape + "\n<p>More body.</p>"
			got := ScrubMetaDescription(in)
			require.NotContains(t, strings.ToLower(got), "description")
			require.Contains(t, got, "<p>Body.</p>")
			require.Contains(t, got, "<p>More body.</p>")
		})
	}

	single := "<h2>Heat pumps</h2><p>Body.</p><p><strong>Meta Description:</strong> Learn how.</p><p>More body.</p>"
	require.Equal(t, "<h2>Heat pumps</h2><p>Body.</p><p>More body.</p>", ScrubMetaDescription(single))

	kept := []string{
		"<h2>Meta Tags That Still Matter</h2><p>A clear page description helps readers.</p><p>Keep it focused.</p>",
		"<p>The meta description you write shows under the link.</p>",
		"Meta tags and a good description both help.",
	}
	for _, in := range kept {
		require.Equal(t, in, ScrubMetaDescription(in))
	}
}

func TestCombineKeepsSingleLineArticleMentioningMeta(t *testing.T) {
	t.Parallel()

	body := strings.Repeat("A clear page description helps readers decide whether to click. ", 3)
	chunk := "<h2>Meta Tags That Still Matter</h2><p>" + body + "</p><p>Keep every page focused on one topic.</p>"
	got, err := Combine([]string{chunk}, 100)
	require.NoError(t, err)
	require.Equal(t, chunk, got)
}

func TestScrubMetaDescriptionInlineParagraph(t *testing.T) {
	t.Parallel()

	in := "<p>Keep me.</p><p>Meta description: drop me.</p><p>Keep too.</p>"
	require.Equal(t, "<p>Keep me.</p><p>Keep too.</p>", ScrubMetaDescription(in))
}

func TestScrubMetaDescriptionIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"",
		"no markers at all\n\njust text",
		"<p>Meta description: a</p>\n<p>b</p>",
		"line one\nMeta Description - two\nline three",
		"<p>The meta\ndescription spans lines</p><p>ok</p>",
		"**Meta Description:** x\n\n\n<h2>Meta</h2>\n<p>description of the product</p>",
		"<p>meta</p><p>description</p>",
	}
	for i, in := range inputs {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			t.Parallel()
			once := ScrubMetaDescription(in)
			require.Equal(t, once, ScrubMetaDescription(once))
		})
	}
}

func TestCheckLength(t *testing.T) {
	t.Parallel()

	require.NoError(t, CheckLength("<p>"+strings.Repeat("a", 101)+"</p>", 100))

	err := CheckLength("<p>"+strings.Repeat("a", 100)+"</p>", 100)
	require.Error(t, err)
	require.Contains(t, err.Error(), "Combined article too short: 107 bytes")

	var ae *apperr.Error
	require.True(t, errors.As(err, &ae))
	require.Equal(t, apperr.CodeExecutionFailed, ae.Code)
}

func TestCombineProducesUniqueHeadings(t *testing.T) {
	t.Parallel()

	body := strings.Repeat("Heat pumps move heat rather than generate it. ", 5)
	chunks := []string{
		"<h1>Heat Pumps</h1>\n<p>" + body + "</p>\n<h2>How They Work</h2>\n<p>" + body + "</p>",
		"<h2>How they work</h2>\n<p>dup</p>\n\n\n\n<h2>Cold Weather</h2>\n<p>" + body + "</p>\nMeta Description: leaked",
		"## Cold weather\n<p>dup</p>\n<h2>FAQ</h2>\n<h3>Do they work?</h3><p>Yes.</p>",
	}
	article, err := Combine(chunks, 100)
	require.NoError(t, err)

	headings := ExtractHeadings(article)
	seen := map[string]bool{}
	for _, h := range headings {
		require.False(t, seen[h], "duplicate heading %q", h)
		seen[h] = true
	}
	require.Equal(t, []string{"how they work", "cold weather", "faq", "do they work?"}, headings)
	require.NotContains(t, article, "<h1>")
	require.NotContains(t, article, "dup")
	require.NotContains(t, article, "leaked")
	require.NotContains(t, article, "\n\n\n")
}

func TestCombineTooShort(t *testing.T) {
	t.Parallel()

	_, err := Combine([]string{"<h2>Only</h2><p>short</p>", ""}, 100)
	require.Error(t, err)
	require.Contains(t, err.Error(), "Combined article too short")
	require.ErrorIs(t, err, apperr.ErrExecutionFailed)
}

func TestWordCount(t *testing.T) {
	t.Parallel()

	require.Equal(t, 4, WordCount("<h2>One two</h2><p>three four</p>"))
}
