package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssessmentScoreWeighted(t *testing.T) {
	components := []ComponentScore{
		{Score: 80, Weight: 30},
		{Score: 90, Weight: 30},
		{Score: 70, Weight: 40},
	}
	// (80*30 + 90*30 + 70*40) / 100 = 79
	assert.InDelta(t, 79.0, AssessmentScore(components), 1e-9)
}

func TestAssessmentScoreWeightsNeedNotSumToHundred(t *testing.T) {
	components := []ComponentScore{
		{Score: 60, Weight: 1},
		{Score: 90, Weight: 3},
	}
	assert.InDelta(t, 82.5, AssessmentScore(components), 1e-9)
}

func TestAssessmentScoreZeroWeightsFallBackToMean(t *testing.T) {
	components := []ComponentScore{
		{Score: 50, Weight: 0},
		{Score: 70, Weight: 0},
		{Score: 90, Weight: 0},
	}
	assert.InDelta(t, 70.0, AssessmentScore(components), 1e-9)
}

func TestAssessmentScoreEmpty(t *testing.T) {
	assert.Zero(t, AssessmentScore(nil))
	assert.Zero(t, AssessmentScore([]ComponentScore{}))
}

func TestAssessmentScoreDoesNotMutateInput(t *testing.T) {
	components := []ComponentScore{{Score: 80, Weight: 2}, {Score: 60, Weight: 1}}
	AssessmentScore(components)
	assert.Equal(t, []ComponentScore{{Score: 80, Weight: 2}, {Score: 60, Weight: 1}}, components)
}

func TestFinalScoreFiftyFifty(t *testing.T) {
	assert.InDelta(t, 75.0, FinalScore(80, 70), 1e-9)
	assert.InDelta(t, 0.0, FinalScore(0, 0), 1e-9)
	assert.InDelta(t, 100.0, FinalScore(100, 100), 1e-9)
	assert.InDelta(t, 42.5, FinalScore(25, 60), 1e-9)
}

func TestRankEntriesCompetitionRanking(t *testing.T) {
	entries := []ScoreEntry{
		{StudentID: "a", FinalScore: 80},
		{StudentID: "b", FinalScore: 90},
		{StudentID: "c", FinalScore: 80},
		{StudentID: "d", FinalScore: 60},
	}
	ranked := RankEntries(entries)
	require.Len(t, ranked, 4)

	byStudent := make(map[string]int, len(ranked))
	for _, entry := range ranked {
		byStudent[entry.StudentID] = entry.Rank
	}
	assert.Equal(t, 1, byStudent["b"])
	assert.Equal(t, 2, byStudent["a"])
	assert.Equal(t, 2, byStudent["c"])
	assert.Equal(t, 4, byStudent["d"])
}

func TestRankEntriesStableUnderPermutation(t *testing.T) {
	forward := RankEntries([]ScoreEntry{{StudentID: "a", FinalScore: 75}, {StudentID: "b", FinalScore: 75}})
	backward := RankEntries([]ScoreEntry{{StudentID: "b", FinalScore: 75}, {StudentID: "a", FinalScore: 75}})
	for _, entry := range append(forward, backward...) {
		assert.Equal(t, 1, entry.Rank)
	}
}

func TestRankEntriesEdgeCases(t *testing.T) {
	assert.Empty(t, RankEntries(nil))

	single := RankEntries([]ScoreEntry{{StudentID: "only", FinalScore: 12}})
	require.Len(t, single, 1)
	assert.Equal(t, 1, single[0].Rank)
}

func TestRankEntriesDoesNotMutateInput(t *testing.T) {
	entries := []ScoreEntry{{StudentID: "low", FinalScore: 10}, {StudentID: "high", FinalScore: 90}}
	RankEntries(entries)
	assert.Equal(t, "low", entries[0].StudentID)
}

func TestOrdinalLabel(t *testing.T) {
	cases := map[int]string{
		1:   "1st",
		2:   "2nd",
		3:   "3rd",
		4:   "4th",
		11:  "11th",
		12:  "12th",
		13:  "13th",
		21:  "21st",
		22:  "22nd",
		23:  "23rd",
		101: "101st",
		111: "111th",
	}
	for rank, expected := range cases {
		assert.Equal(t, expected, OrdinalLabel(rank), "rank %d", rank)
	}
}
