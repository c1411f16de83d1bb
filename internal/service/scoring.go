package service

import (
	"fmt"
	"sort"
)

// examWeight is the fixed share of the exam in the final score. The remainder
// goes to the class assessment. Policy constant, not configurable per call.
const examWeight = 0.5

// ComponentScore pairs one assessment component's 0-100 score with its weight.
type ComponentScore struct {
	Score  float64
	Weight float64
}

// AssessmentScore computes the weighted class-assessment score. A zero weight
// sum degrades to the unweighted arithmetic mean; an empty list yields 0.
func AssessmentScore(components []ComponentScore) float64 {
	if len(components) == 0 {
		return 0
	}
	var weightedSum, weightTotal float64
	for _, c := range components {
		weightedSum += c.Score * c.Weight
		weightTotal += c.Weight
	}
	if weightTotal == 0 {
		var sum float64
		for _, c := range components {
			sum += c.Score
		}
		return sum / float64(len(components))
	}
	return weightedSum / weightTotal
}

// FinalScore combines the exam score with the assessment score 50/50.
func FinalScore(examScore, assessmentScore float64) float64 {
	return examWeight*examScore + (1-examWeight)*assessmentScore
}

// ScoreEntry is one student's final score inside a ranking scope.
type ScoreEntry struct {
	StudentID  string
	FinalScore float64
}

// RankedEntry is a ScoreEntry with its assigned competition rank.
type RankedEntry struct {
	StudentID  string
	FinalScore float64
	Rank       int
}

// RankEntries assigns standard competition ranks: ties share a rank and the
// next distinct score resumes at the position index, so [90,80,80,60] ranks as
// [1,2,2,4]. The input slice is not mutated.
func RankEntries(entries []ScoreEntry) []RankedEntry {
	if len(entries) == 0 {
		return []RankedEntry{}
	}
	sorted := make([]ScoreEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].FinalScore > sorted[j].FinalScore
	})

	ranked := make([]RankedEntry, len(sorted))
	rank := 1
	for i, entry := range sorted {
		if i > 0 && entry.FinalScore < sorted[i-1].FinalScore {
			rank = i + 1
		}
		ranked[i] = RankedEntry{StudentID: entry.StudentID, FinalScore: entry.FinalScore, Rank: rank}
	}
	return ranked
}

// OrdinalLabel formats a rank as an English ordinal ("1st", "2nd", "11th").
func OrdinalLabel(rank int) string {
	suffix := "th"
	if rank%100 < 11 || rank%100 > 13 {
		switch rank % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return fmt.Sprintf("%d%s", rank, suffix)
}
