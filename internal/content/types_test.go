package content

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTopicPrimaryKeyword(t *testing.T) {
	t.Parallel()

	require.Equal(t, "solar panels", Topic{Title: "T", Keywords: []string{" ", "solar panels", "roofs"}}.PrimaryKeyword())
	require.Equal(t, "T", Topic{Title: "T"}.PrimaryKeyword())
}

func TestTopicEffectiveCampaignID(t *testing.T) {
	t.Parallel()

	require.Equal(t, "seo", Topic{CampaignID: "c", SEOCampaignID: "seo"}.EffectiveCampaignID())
	require.Equal(t, "c", Topic{CampaignID: "c"}.EffectiveCampaignID())
}

func TestStageResultsComplete(t *testing.T) {
	t.Parallel()

	require.False(t, StageResults{Strategy: "s", Blueprint: "b"}.Complete())
	require.True(t, StageResults{Strategy: "s", Blueprint: "b", VoiceProfile: "v"}.Complete())
}

func TestChunkPosition(t *testing.T) {
	t.Parallel()

	only := Chunk{Index: 0, Total: 1}
	require.True(t, only.First())
	require.True(t, only.Last())

	middle := Chunk{Index: 1, Total: 3}
	require.False(t, middle.First())
	require.False(t, middle.Last())
}

func TestExecutionStatusTerminal(t *testing.T) {
	t.Parallel()

	require.False(t, ExecutionProcessing.Terminal())
	require.True(t, ExecutionCompleted.Terminal())
	require.True(t, ExecutionFailed.Terminal())
}
