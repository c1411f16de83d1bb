package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gradebook-api/internal/models"
)

type fakeRankingProvider struct {
	board []models.RankedScore
	err   error
}

func (f *fakeRankingProvider) SubjectRanking(_ context.Context, _, _ string) ([]models.RankedScore, error) {
	return f.board, f.err
}

type fakeSummaryProvider struct {
	summary models.PerformanceSummary
}

func (f *fakeSummaryProvider) ClassSummary(_ context.Context, _ string) (models.PerformanceSummary, bool) {
	return f.summary, false
}

func TestSubjectRankingCSV(t *testing.T) {
	rankings := &fakeRankingProvider{board: []models.RankedScore{
		{StudentID: "s1", StudentName: "Aisha", FinalScore: 91.4, Rank: 1, RankLabel: "1st"},
		{StudentID: "s2", StudentName: "Budi", FinalScore: 84.5, Rank: 2, RankLabel: "2nd"},
	}}
	subjects := &fakeScoreSubjects{subjects: map[string]models.Subject{
		"math": {ID: "math", Name: "Mathematics"},
	}}
	svc := NewExportService(rankings, &fakeSummaryProvider{}, subjects, nil, nil, nil)

	file, err := svc.SubjectRankingCSV(context.Background(), "math", "teacher-1")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", file.ContentType)
	assert.Contains(t, file.Filename, "ranking-mathematics-")

	body := string(file.Payload)
	assert.Contains(t, body, "Rank,Student,Final Score")
	assert.Contains(t, body, "1st,Aisha,91.4")
	assert.Contains(t, body, "2nd,Budi,84.5")
}

func TestSubjectRankingPDFProducesDocument(t *testing.T) {
	rankings := &fakeRankingProvider{board: []models.RankedScore{
		{StudentID: "s1", StudentName: "Aisha", FinalScore: 90, Rank: 1, RankLabel: "1st"},
	}}
	subjects := &fakeScoreSubjects{subjects: map[string]models.Subject{
		"math": {ID: "math", Name: "Mathematics"},
	}}
	svc := NewExportService(rankings, &fakeSummaryProvider{}, subjects, nil, nil, nil)

	file, err := svc.SubjectRankingPDF(context.Background(), "math", "teacher-1")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", file.ContentType)
	assert.True(t, len(file.Payload) > 0)
	assert.Equal(t, "%PDF", string(file.Payload[:4]))
}

func TestClassSummaryCSVIncludesNarrativeRows(t *testing.T) {
	insights := &fakeSummaryProvider{summary: models.PerformanceSummary{
		Summary:      "The class of 2 students across 2 subjects averages 72.5 overall.",
		ClassAverage: 72.5,
		TopSubjects: []models.SubjectAverage{
			{SubjectID: "math", SubjectName: "Mathematics", Average: 86},
		},
		ImprovementAreas: []models.SubjectAverage{
			{SubjectID: "art", SubjectName: "Art", Average: 59},
		},
		GeneratedAt: time.Now().UTC(),
	}}
	svc := NewExportService(&fakeRankingProvider{}, insights, &fakeScoreSubjects{}, nil, nil, nil)

	file, err := svc.ClassSummaryCSV(context.Background(), "teacher-1")
	require.NoError(t, err)

	body := string(file.Payload)
	assert.Contains(t, body, "Mathematics,86.0,top subject")
	assert.Contains(t, body, "Art,59.0,improvement area")
	assert.Contains(t, body, "Class overall,72.5,average")
}
