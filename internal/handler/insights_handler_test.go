package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gradebook-api/internal/models"
	"github.com/noah-isme/gradebook-api/internal/service"
)

type fakeInsightsStudents struct {
	students []models.Student
}

func (f *fakeInsightsStudents) ListAll(context.Context, string) ([]models.Student, error) {
	return f.students, nil
}

type fakeInsightsSubjects struct {
	subjects []models.Subject
}

func (f *fakeInsightsSubjects) ListAll(context.Context, string) ([]models.Subject, error) {
	return f.subjects, nil
}

type fakeInsightsScores struct {
	byStudent map[string][]models.StudentScore
}

func (f *fakeInsightsScores) ListByStudent(_ context.Context, studentID, _ string) ([]models.StudentScore, error) {
	return f.byStudent[studentID], nil
}

func newInsightsHandlerFixture(students []models.Student, subjects []models.Subject, scores map[string][]models.StudentScore) *InsightsHandler {
	svc := service.NewInsightsService(
		&fakeInsightsStudents{students: students},
		&fakeInsightsSubjects{subjects: subjects},
		&fakeInsightsScores{byStudent: scores},
		nil, nil, time.Minute, nil,
	)
	return NewInsightsHandler(svc)
}

func TestInsightsHandlerAtRiskRequiresAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newInsightsHandlerFixture(nil, nil, nil)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/analytics/at-risk", nil)

	handler.AtRisk(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestInsightsHandlerAtRiskFlagsWeakStudent(t *testing.T) {
	gin.SetMode(gin.TestMode)
	final := func(v float64) *float64 { return &v }
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	history := []models.StudentScore{
		{StudentID: "stu-1", SubjectID: "sub-1", FinalScore: final(50), RecordedAt: base},
		{StudentID: "stu-1", SubjectID: "sub-1", FinalScore: final(48), RecordedAt: base.AddDate(0, 0, 7)},
	}
	handler := newInsightsHandlerFixture(
		[]models.Student{{ID: "stu-1", TeacherID: "t1", FullName: "Aisha", Active: true}},
		[]models.Subject{{ID: "sub-1", TeacherID: "t1", Name: "Mathematics"}},
		map[string][]models.StudentScore{"stu-1": history},
	)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/analytics/at-risk", nil)
	withClaims(c)

	handler.AtRisk(c)

	require.Equal(t, http.StatusOK, rec.Code)
	var envelope handlerEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, false, envelope.Meta["cache_hit"])
	assert.Contains(t, envelope.Meta, "processing_time_ms")

	var flagged []models.AtRiskStudent
	require.NoError(t, json.Unmarshal(envelope.Data, &flagged))
	require.Len(t, flagged, 1)
	assert.Equal(t, "Aisha", flagged[0].Student.FullName)
}

func TestInsightsHandlerSummaryEmptyRoster(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newInsightsHandlerFixture(nil, nil, nil)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/analytics/summary", nil)
	withClaims(c)

	handler.Summary(c)

	require.Equal(t, http.StatusOK, rec.Code)
	var envelope handlerEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))

	var summary models.PerformanceSummary
	require.NoError(t, json.Unmarshal(envelope.Data, &summary))
	assert.Contains(t, summary.Summary, "not enough data")
}

func TestInsightsHandlerSystem(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newInsightsHandlerFixture(nil, nil, nil)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/analytics/system", nil)
	withClaims(c)

	handler.System(c)

	require.Equal(t, http.StatusOK, rec.Code)
	var envelope handlerEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))

	var snapshot models.SystemMetrics
	require.NoError(t, json.Unmarshal(envelope.Data, &snapshot))
	assert.False(t, snapshot.GeneratedAt.IsZero())
}
