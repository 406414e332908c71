package stage_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"dubforge/internal/stage"
)

func TestOrderedCoversEveryExecutorStage(t *testing.T) {
	require.Len(t, stage.Ordered, 10)
	require.Equal(t, stage.Download, stage.Ordered[0])
	require.Equal(t, stage.Publish, stage.Ordered[len(stage.Ordered)-1])
}

func TestDecisionHelpers(t *testing.T) {
	require.False(t, stage.Run().Skip)

	d := stage.SkipBecause("output current")
	require.True(t, d.Skip)
	require.Equal(t, "output current", d.Reason)
}

func TestNameString(t *testing.T) {
	require.Equal(t, "correct", stage.Correct.String())
}
