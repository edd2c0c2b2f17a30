package prompt

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPlanChunks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		words int
		want  Plan
	}{
		{words: 0, want: Plan{Chunks: 1}},
		{words: 800, want: Plan{Chunks: 1, WordsPerChunk: 800}},
		{words: 1000, want: Plan{Chunks: 1, WordsPerChunk: 1000}},
		{words: 1001, want: Plan{Chunks: 2, WordsPerChunk: 501}},
		{words: 2000, want: Plan{Chunks: 2, WordsPerChunk: 1000}},
		{words: 3000, want: Plan{Chunks: 3, WordsPerChunk: 1000}},
		{words: 5000, want: Plan{Chunks: 3, WordsPerChunk: 1667}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.words), func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, PlanChunks(tt.words))
		})
	}
}

func TestPartitionOutlineCoversEverySectionOnceInOrder(t *testing.T) {
	t.Parallel()

	for n := 0; n <= 12; n++ {
		outline := make([]string, n)
		for i := range outline {
			outline[i] = fmt.Sprintf("section-%d", i)
		}
		for total := 1; total <= 3; total++ {
			var joined []string
			for i := 0; i < total; i++ {
				part := PartitionOutline(outline, total, i)
				if i > 0 && len(part) > 0 {
					require.NotEmpty(t, PartitionOutline(outline, total, i-1), "n=%d total=%d chunk=%d", n, total, i)
				}
				joined = append(joined, part...)
			}
			if n == 0 {
				require.Empty(t, joined)
				continue
			}
			require.Equal(t, outline, joined, "n=%d total=%d", n, total)
		}
	}
}

func TestPartitionOutlineTrailingChunkMayBeEmpty(t *testing.T) {
	t.Parallel()

	outline := []string{"a", "b", "c", "d"}
	require.Equal(t, []string{"a", "b"}, PartitionOutline(outline, 3, 0))
	require.Equal(t, []string{"c", "d"}, PartitionOutline(outline, 3, 1))
	require.Empty(t, PartitionOutline(outline, 3, 2))
	require.Empty(t, PartitionOutline(outline, 3, 5))
	require.Empty(t, PartitionOutline(outline, 0, 0))
}

func TestLastParagraphs(t *testing.T) {
	t.Parallel()

	html := "<h2>A</h2><p>one</p><p>two</p>\n<p>three</p><p>four</p>"
	require.Equal(t, "<p>two</p>\n\n<p>three</p>\n\n<p>four</p>", LastParagraphs(html, 3))

	plain := "one\n\ntwo\n \nthree"
	require.Equal(t, "two\n\nthree", LastParagraphs(plain, 2))
	require.Empty(t, LastParagraphs("", 3))
	require.Empty(t, LastParagraphs("x", 0))
}
