package review_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"dubforge/internal/review"
)

func TestPunctuationOnlyDiffDetectsPunctuationChangesOnly(t *testing.T) {
	before := "hello world how are you"
	after := "Hello, world! How are you?"
	changes, only := review.PunctuationOnlyDiff(before, after)
	require.True(t, only)
	require.Greater(t, changes, 0)
}

func TestPunctuationOnlyDiffRejectsWordChanges(t *testing.T) {
	before := "the quick fox"
	after := "the slow fox"
	_, only := review.PunctuationOnlyDiff(before, after)
	require.False(t, only)
}

func TestQualifiesForAutoApprovalThreshold(t *testing.T) {
	before := "one two three four five six seven"
	heavilyRepunctuated := "One, two; three: four! five? six... seven."
	require.False(t, review.QualifiesForAutoApproval(before, heavilyRepunctuated))

	tinyBefore := "hello world"
	tinyAfter := "Hello, world."
	require.True(t, review.QualifiesForAutoApproval(tinyBefore, tinyAfter))
}
