package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gradebook-api/internal/middleware"
	"github.com/noah-isme/gradebook-api/internal/models"
	"github.com/noah-isme/gradebook-api/internal/service"
)

type fakeStudentRepo struct {
	students map[string]*models.Student
	listed   models.StudentFilter
}

func newFakeStudentRepo() *fakeStudentRepo {
	return &fakeStudentRepo{students: map[string]*models.Student{}}
}

func (f *fakeStudentRepo) List(_ context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	f.listed = filter
	var out []models.Student
	for _, s := range f.students {
		if s.TeacherID == filter.TeacherID {
			out = append(out, *s)
		}
	}
	return out, len(out), nil
}

func (f *fakeStudentRepo) FindByID(_ context.Context, id, teacherID string) (*models.Student, error) {
	s, ok := f.students[id]
	if !ok || s.TeacherID != teacherID {
		return nil, sql.ErrNoRows
	}
	copied := *s
	return &copied, nil
}

func (f *fakeStudentRepo) Create(_ context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = "stu-new"
	}
	copied := *student
	f.students[student.ID] = &copied
	return nil
}

func (f *fakeStudentRepo) Update(_ context.Context, student *models.Student) error {
	if _, ok := f.students[student.ID]; !ok {
		return sql.ErrNoRows
	}
	copied := *student
	f.students[student.ID] = &copied
	return nil
}

func (f *fakeStudentRepo) Deactivate(_ context.Context, id, _ string) error {
	if s, ok := f.students[id]; ok {
		s.Active = false
	}
	return nil
}

type handlerEnvelope struct {
	Data       json.RawMessage        `json:"data"`
	Error      map[string]interface{} `json:"error"`
	Pagination map[string]interface{} `json:"pagination"`
	Meta       map[string]interface{} `json:"meta"`
}

func newStudentHandlerFixture() (*StudentHandler, *fakeStudentRepo) {
	repo := newFakeStudentRepo()
	svc := service.NewStudentService(repo, nil, nil, nil)
	return NewStudentHandler(svc), repo
}

func withClaims(c *gin.Context) {
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "t1", OrgID: "org-1"})
}

func TestStudentHandlerListRequiresAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, _ := newStudentHandlerFixture()

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/students", nil)

	handler.List(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStudentHandlerListScopesToTeacher(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, repo := newStudentHandlerFixture()
	repo.students["stu-1"] = &models.Student{ID: "stu-1", TeacherID: "t1", FullName: "Aisha", Active: true}
	repo.students["stu-2"] = &models.Student{ID: "stu-2", TeacherID: "other", FullName: "Not Mine", Active: true}

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/students?grade_level=10&page=2&page_size=5", nil)
	withClaims(c)

	handler.List(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "t1", repo.listed.TeacherID)
	assert.Equal(t, "10", repo.listed.GradeLevel)
	assert.Equal(t, 2, repo.listed.Page)
	assert.Equal(t, 5, repo.listed.PageSize)

	var envelope handlerEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, float64(1), envelope.Pagination["total_count"])
}

func TestStudentHandlerCreate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, repo := newStudentHandlerFixture()

	body := strings.NewReader(`{"full_name":"Budi Santoso","grade_level":"11"}`)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/students", body)
	c.Request.Header.Set("Content-Type", "application/json")
	withClaims(c)

	handler.Create(c)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, repo.students, 1)
	for _, s := range repo.students {
		assert.Equal(t, "t1", s.TeacherID)
		assert.Equal(t, "org-1", s.OrgID)
		assert.True(t, s.Active)
	}
}

func TestStudentHandlerCreateRejectsShortName(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, repo := newStudentHandlerFixture()

	body := strings.NewReader(`{"full_name":"x","grade_level":"11"}`)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/students", body)
	c.Request.Header.Set("Content-Type", "application/json")
	withClaims(c)

	handler.Create(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, repo.students)
}

func TestStudentHandlerGetMissing(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, _ := newStudentHandlerFixture()

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/students/ghost", nil)
	c.Params = gin.Params{{Key: "id", Value: "ghost"}}
	withClaims(c)

	handler.Get(c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStudentHandlerDeactivate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, repo := newStudentHandlerFixture()
	repo.students["stu-1"] = &models.Student{ID: "stu-1", TeacherID: "t1", FullName: "Aisha", Active: true}

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodDelete, "/students/stu-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "stu-1"}}
	withClaims(c)

	handler.Deactivate(c)
	c.Writer.WriteHeaderNow()

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.False(t, repo.students["stu-1"].Active)
}
